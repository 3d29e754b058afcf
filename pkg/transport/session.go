package transport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/orbitvoice/go-orbit/pkg/wire"
)

const (
	// DefaultURL is the live service's bidirectional streaming endpoint.
	DefaultURL = "wss://generativelanguage.googleapis.com/ws/google.ai.generativelanguage.v1beta.GenerativeService.BidiGenerateContent"

	defaultHandshakeTimeout = 10 * time.Second
	writeTimeout            = 10 * time.Second
	pingInterval            = 30 * time.Second
)

// Sentinel errors for the transport package.
var (
	// ErrSessionClosed indicates a send on a session that was closed.
	ErrSessionClosed = errors.New("transport: session closed")
)

// SessionConfig holds everything needed to open and configure one
// session.
type SessionConfig struct {
	// URL overrides the service endpoint (tests point this at a local
	// server). Empty means DefaultURL.
	URL string

	// APIKey authenticates the session; it is appended to the dial URL.
	APIKey string

	// Model is the model resource name.
	Model string

	// Voice is the prebuilt voice name for synthesized speech.
	Voice string

	// SystemInstruction is the persona text for this session.
	SystemInstruction string

	// Declarations are the tools the service may call back into.
	Declarations []wire.FunctionDeclaration

	// HandshakeTimeout bounds the WebSocket dial. Zero means 10s.
	HandshakeTimeout time.Duration
}

func (c *SessionConfig) dialURL() (string, error) {
	raw := c.URL
	if raw == "" {
		raw = DefaultURL
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("transport: invalid endpoint: %w", err)
	}
	q := u.Query()
	q.Set("key", c.APIKey)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func (c *SessionConfig) setupMessage() *wire.ClientMessage {
	setup := &wire.Setup{
		Model: c.Model,
		GenerationConfig: &wire.GenerationConfig{
			ResponseModalities: []string{"AUDIO"},
			SpeechConfig: &wire.SpeechConfig{
				VoiceConfig: &wire.VoiceConfig{
					PrebuiltVoiceConfig: &wire.PrebuiltVoiceConfig{VoiceName: c.Voice},
				},
			},
		},
	}
	if c.SystemInstruction != "" {
		setup.SystemInstruction = &wire.Content{Parts: []wire.Part{{Text: c.SystemInstruction}}}
	}
	if len(c.Declarations) > 0 {
		setup.Tools = []wire.ToolDeclarations{{FunctionDeclarations: c.Declarations}}
	}
	return &wire.ClientMessage{Setup: setup}
}

// Session is one live connection instance. Events are delivered on a
// single channel in arrival order; the channel is closed after the
// terminal EventClosed.
type Session struct {
	// ID identifies this session instance in logs.
	ID string

	ws     *websocket.Conn
	wsMu   sync.Mutex
	events chan Event
	closed atomic.Bool
	stopCh chan struct{}
	logger *slog.Logger
}

// Dial opens a session: WebSocket connect, setup frame, then the read
// loop and keepalive pinger. On success the first event is EventOpened.
func Dial(ctx context.Context, cfg SessionConfig) (*Session, error) {
	dialURL, err := cfg.dialURL()
	if err != nil {
		return nil, err
	}

	timeout := cfg.HandshakeTimeout
	if timeout == 0 {
		timeout = defaultHandshakeTimeout
	}
	dialer := websocket.Dialer{HandshakeTimeout: timeout}

	ws, _, err := dialer.DialContext(ctx, dialURL, nil)
	if err != nil {
		return nil, fmt.Errorf("transport: dial failed: %w", err)
	}

	s := &Session{
		ID:     uuid.NewString(),
		ws:     ws,
		events: make(chan Event, 64),
		stopCh: make(chan struct{}),
	}
	s.logger = slog.Default().With("component", "transport", "session_id", s.ID)

	if err := s.sendJSON(cfg.setupMessage()); err != nil {
		ws.Close()
		return nil, fmt.Errorf("transport: setup failed: %w", err)
	}

	s.events <- Event{Type: EventOpened}
	go s.readLoop()
	go s.keepAlive()

	s.logger.Debug("session opened", "model", cfg.Model, "voice", cfg.Voice)
	return s, nil
}

// Events returns the session's event stream.
func (s *Session) Events() <-chan Event {
	return s.events
}

// SendAudio streams one media chunk upstream.
func (s *Session) SendAudio(blob wire.Blob) error {
	return s.sendJSON(&wire.ClientMessage{
		RealtimeInput: &wire.RealtimeInput{Media: &blob},
	})
}

// SendToolResponses answers previously received function calls.
func (s *Session) SendToolResponses(responses []wire.FunctionResponse) error {
	return s.sendJSON(&wire.ClientMessage{
		ToolResponse: &wire.ToolResponse{FunctionResponses: responses},
	})
}

// Close ends the session. The read loop emits a clean EventClosed.
// Idempotent.
func (s *Session) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	close(s.stopCh)

	s.wsMu.Lock()
	s.ws.SetWriteDeadline(time.Now().Add(writeTimeout))
	s.ws.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	s.wsMu.Unlock()

	return s.ws.Close()
}

func (s *Session) sendJSON(msg *wire.ClientMessage) error {
	if s.closed.Load() {
		return ErrSessionClosed
	}
	data, err := msg.Encode()
	if err != nil {
		return fmt.Errorf("transport: encode failed: %w", err)
	}

	s.wsMu.Lock()
	defer s.wsMu.Unlock()
	s.ws.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := s.ws.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("transport: send failed: %w", err)
	}
	return nil
}

func (s *Session) readLoop() {
	defer close(s.events)

	for {
		_, data, err := s.ws.ReadMessage()
		if err != nil {
			s.finish(err)
			return
		}

		msg, perr := wire.ParseServerMessage(data)
		if perr != nil {
			// Protocol errors are dropped, never fatal to the session.
			s.logger.Warn("dropping malformed server message", "error", perr)
			continue
		}
		s.events <- Event{Type: EventMessage, Message: msg}
	}
}

// finish classifies the read-loop error and emits the terminal events.
// An unclean end produces EventError then EventClosed; reconnection is
// driven by the close event alone so a failure is never handled twice.
func (s *Session) finish(err error) {
	if s.closed.Load() {
		s.events <- Event{Type: EventClosed, Clean: true, Reason: ErrSessionClosed}
		return
	}
	s.closed.Store(true)

	var closeErr *websocket.CloseError
	if errors.As(err, &closeErr) && closeErr.Code == websocket.CloseNormalClosure {
		s.logger.Debug("session closed by peer", "reason", closeErr.Text)
		s.events <- Event{Type: EventClosed, Clean: true, Reason: err}
		return
	}

	s.logger.Warn("session ended", "error", err)
	s.events <- Event{Type: EventError, Err: err}
	s.events <- Event{Type: EventClosed, Clean: false, Reason: err}
}

// keepAlive pings the peer so intermediaries keep the connection open.
func (s *Session) keepAlive() {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.wsMu.Lock()
			err := s.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout))
			s.wsMu.Unlock()
			if err != nil {
				return
			}
		}
	}
}
