// Package client is the top-level facade of go-orbit. It wires audio
// capture, the live session controller, tool dispatch and playback
// into a single object.
package client

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/orbitvoice/go-orbit/internal/log"
	"github.com/orbitvoice/go-orbit/internal/observability"
	"github.com/orbitvoice/go-orbit/pkg/audioio"
	"github.com/orbitvoice/go-orbit/pkg/playback"
	"github.com/orbitvoice/go-orbit/pkg/session"
	"github.com/orbitvoice/go-orbit/pkg/tools"
	"github.com/orbitvoice/go-orbit/pkg/transport"
	"github.com/orbitvoice/go-orbit/pkg/wire"
)

// Option customizes a Client.
type Option func(*Client)

// WithEffects sets the visual effects target for tool calls.
func WithEffects(fx tools.VisualEffects) Option {
	return func(c *Client) { c.effects = fx }
}

// WithNotifier sets the status sink for user-facing messages.
func WithNotifier(n session.Notifier) Option {
	return func(c *Client) { c.notifier = n }
}

// WithMetrics attaches a Prometheus instrument set.
func WithMetrics(m *observability.Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

// WithSource injects an audio source, replacing device autodetection.
func WithSource(src audioio.Source) Option {
	return func(c *Client) { c.source = src }
}

// WithDialer injects a session dialer. Used by tests.
func WithDialer(d session.Dialer) Option {
	return func(c *Client) { c.dialer = d }
}

// WithPlayer injects a playback target, replacing the speaker output.
func WithPlayer(p session.Player) Option {
	return func(c *Client) { c.player = p }
}

// Client owns one assistant conversation end to end.
type Client struct {
	cfg      Config
	effects  tools.VisualEffects
	notifier session.Notifier
	metrics  *observability.Metrics
	dialer   session.Dialer
	player   session.Player

	source     audioio.Source
	output     *playback.PortAudioOutput
	dispatcher *tools.Dispatcher
	ctrl       *session.Controller
	recorder   *audioio.WAVRecorder
	logger     *slog.Logger

	mu        sync.Mutex
	capturing bool
	stopCh    chan struct{}
	done      chan struct{}
	closed    bool
}

// New builds a Client from cfg. The audio devices are not touched
// until StartCapture.
func New(cfg Config, opts ...Option) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	c := &Client{
		cfg:      cfg,
		effects:  tools.NopEffects{},
		notifier: session.NopNotifier{},
		logger:   log.Component("client"),
	}
	for _, opt := range opts {
		opt(c)
	}

	c.dispatcher = tools.NewDispatcher(c.effects)

	if c.source == nil {
		src, err := audioio.NewSource(audioio.Config{
			Backend:    audioio.Backend(cfg.AudioBackend),
			SampleRate: cfg.InputSampleRate,
			Channels:   1,
			FrameSize:  cfg.FrameSize,
		})
		if err != nil {
			return nil, err
		}
		c.source = src
	}

	if c.player == nil {
		c.output = playback.NewPortAudioOutput(cfg.OutputSampleRate, 1)
		c.player = playback.NewScheduler(c.output, c.output, cfg.OutputSampleRate, 1)
	}

	if cfg.WAVDumpPath != "" {
		c.recorder = audioio.NewWAVRecorder(cfg.WAVDumpPath, cfg.InputSampleRate)
	}

	ctrl, err := session.NewController(session.Config{
		Session:       c.sessionConfig(),
		Policy:        session.RetryPolicy{MaxRetries: cfg.MaxRetries, BaseDelay: cfg.BaseDelay},
		Dialer:        c.dialer,
		Player:        c.player,
		Tools:         c.dispatcher,
		Notifier:      c.notifier,
		Metrics:       c.metrics,
		CaptureActive: c.Capturing,
		StopCapture:   func() { _ = c.StopCapture() },
	})
	if err != nil {
		return nil, err
	}
	c.ctrl = ctrl
	return c, nil
}

func (c *Client) sessionConfig() transport.SessionConfig {
	return transport.SessionConfig{
		URL:               c.cfg.URL,
		APIKey:            c.cfg.APIKey,
		Model:             c.cfg.Model,
		Voice:             c.cfg.Voice,
		SystemInstruction: c.cfg.Persona.Instruction(),
		Declarations:      c.dispatcher.Declarations(),
	}
}

// Connect opens the live session without starting the microphone.
func (c *Client) Connect() error {
	return c.ctrl.Connect()
}

// StartCapture opens the microphone and begins streaming frames into
// the session. Calling it while capturing is a no-op.
func (c *Client) StartCapture(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return session.ErrControllerClosed
	}
	if c.capturing {
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	if err := c.ctrl.Connect(); err != nil {
		return err
	}
	if c.output != nil {
		if err := c.output.Start(ctx); err != nil {
			c.notifier.OnError(fmt.Sprintf("Speaker unavailable: %v. Check your audio output device.", err))
			return err
		}
	}
	if err := c.source.Start(ctx); err != nil {
		if audioio.IsDeviceError(err) {
			c.notifier.OnError(fmt.Sprintf("Microphone unavailable: %v. Check your audio input device.", err))
		}
		return err
	}

	c.mu.Lock()
	if c.capturing {
		c.mu.Unlock()
		return nil
	}
	c.capturing = true
	c.stopCh = make(chan struct{})
	c.done = make(chan struct{})
	stop, done := c.stopCh, c.done
	c.mu.Unlock()

	c.logger.Info("capture started",
		"rate", c.cfg.InputSampleRate, "frame_size", c.cfg.FrameSize)
	go c.captureLoop(stop, done)
	return nil
}

// StopCapture releases the microphone. Calling it while idle is a
// no-op. The session stays open.
func (c *Client) StopCapture() error {
	c.mu.Lock()
	if !c.capturing {
		c.mu.Unlock()
		return nil
	}
	c.capturing = false
	stop, done := c.stopCh, c.done
	c.stopCh, c.done = nil, nil
	c.mu.Unlock()

	close(stop)
	if err := c.source.Stop(); err != nil {
		c.logger.Warn("source stop failed", "error", err)
	}
	<-done
	c.logger.Info("capture stopped")
	return nil
}

// ToggleCapture flips the capture state and reports the new state.
func (c *Client) ToggleCapture(ctx context.Context) (bool, error) {
	if c.Capturing() {
		return false, c.StopCapture()
	}
	if err := c.StartCapture(ctx); err != nil {
		return false, err
	}
	return true, nil
}

// Capturing reports whether the microphone is streaming.
func (c *Client) Capturing() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.capturing
}

// State returns the session connection state.
func (c *Client) State() session.State {
	return c.ctrl.State()
}

// Voice returns the active voice name.
func (c *Client) Voice() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cfg.Voice
}

// Persona returns the active persona.
func (c *Client) Persona() Persona {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cfg.Persona
}

// SetVoice switches the model voice. The session is reset because
// voice changes only take effect in the setup frame.
func (c *Client) SetVoice(voice string) error {
	if !validVoice(voice) {
		return fmt.Errorf("client: unknown voice: %s", voice)
	}
	c.mu.Lock()
	if c.cfg.Voice == voice {
		c.mu.Unlock()
		return nil
	}
	c.cfg.Voice = voice
	c.mu.Unlock()
	return c.ctrl.Reset(c.sessionConfig())
}

// SetPersona switches the system instruction preset, resetting the
// session.
func (c *Client) SetPersona(p Persona) error {
	if !p.Valid() {
		return fmt.Errorf("client: unknown persona: %s", p)
	}
	c.mu.Lock()
	if c.cfg.Persona == p {
		c.mu.Unlock()
		return nil
	}
	c.cfg.Persona = p
	c.mu.Unlock()
	return c.ctrl.Reset(c.sessionConfig())
}

// Close stops capture and tears everything down.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	_ = c.StopCapture()
	_ = c.ctrl.Close()
	_ = c.source.Close()
	if c.output != nil {
		_ = c.output.Close()
	}
	if c.recorder != nil {
		if err := c.recorder.Close(); err != nil {
			c.logger.Warn("wav dump close failed", "error", err)
		}
	}
	return nil
}

func (c *Client) captureLoop(stop, done chan struct{}) {
	defer close(done)
	stream := c.source.Stream()
	for {
		select {
		case <-stop:
			return
		case frame, ok := <-stream:
			if !ok {
				return
			}
			blob := wire.EncodePCM(frame, c.cfg.InputSampleRate)
			if err := c.ctrl.SendAudio(blob); err != nil {
				continue
			}
			if c.recorder != nil {
				c.recorder.Write(frame)
			}
		}
	}
}
