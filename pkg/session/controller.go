// Package session drives the lifecycle of a live conversation: connect,
// event routing, tool dispatch, playback scheduling and bounded
// reconnection after unclean closes.
package session

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/orbitvoice/go-orbit/internal/log"
	"github.com/orbitvoice/go-orbit/internal/observability"
	"github.com/orbitvoice/go-orbit/pkg/transport"
	"github.com/orbitvoice/go-orbit/pkg/wire"
)

// ErrControllerClosed is returned by operations on a closed controller.
var ErrControllerClosed = errors.New("session: controller closed")

// State is the controller's connection state.
type State int

const (
	StateIdle State = iota
	StateConnecting
	StateOpen
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosed:
		return "closed"
	default:
		return "idle"
	}
}

// Handle is the controller's view of an open transport session.
// *transport.Session satisfies it.
type Handle interface {
	Events() <-chan transport.Event
	SendAudio(blob wire.Blob) error
	SendToolResponses(responses []wire.FunctionResponse) error
	Close() error
}

// Dialer opens a new session. The controller never dials directly so
// tests can substitute a fake transport.
type Dialer interface {
	Dial(ctx context.Context, cfg transport.SessionConfig) (Handle, error)
}

// DialerFunc adapts a function to the Dialer interface.
type DialerFunc func(ctx context.Context, cfg transport.SessionConfig) (Handle, error)

func (f DialerFunc) Dial(ctx context.Context, cfg transport.SessionConfig) (Handle, error) {
	return f(ctx, cfg)
}

// DefaultDialer wraps transport.Dial.
func DefaultDialer() Dialer {
	return DialerFunc(func(ctx context.Context, cfg transport.SessionConfig) (Handle, error) {
		return transport.Dial(ctx, cfg)
	})
}

// Player receives decoded model audio. *playback.Scheduler satisfies it.
type Player interface {
	Enqueue(data string) error
	Flush()
}

// ToolRouter answers tool calls. *tools.Dispatcher satisfies it.
type ToolRouter interface {
	Dispatch(call wire.FunctionCall) wire.FunctionResponse
}

// Config wires the controller's collaborators.
type Config struct {
	Session transport.SessionConfig
	Policy  RetryPolicy

	Dialer   Dialer
	Player   Player
	Tools    ToolRouter
	Notifier Notifier
	Metrics  *observability.Metrics

	// CaptureActive reports whether the microphone is streaming.
	// Unclean closes only trigger reconnection while it returns true.
	CaptureActive func() bool

	// StopCapture force-stops the microphone. Called when the retry
	// budget is exhausted and on reset.
	StopCapture func()

	// After schedules a retry timer and returns a cancel func.
	// Defaults to time.AfterFunc. Tests inject a manual version.
	After func(d time.Duration, f func()) (cancel func() bool)
}

// Controller owns one logical conversation across reconnects. All
// state transitions are guarded by a single mutex; every asynchronous
// continuation (dial completion, session events, retry timer) carries
// the generation it was started under and is discarded when stale.
type Controller struct {
	cfg    Config
	report reporter
	logger *slog.Logger

	mu          sync.Mutex
	state       State
	handle      Handle
	gen         uint64
	inFlight    bool
	attempt     int
	cancelRetry func() bool
	closed      bool
}

// NewController validates cfg, fills defaults and returns an idle
// controller.
func NewController(cfg Config) (*Controller, error) {
	if cfg.Dialer == nil {
		cfg.Dialer = DefaultDialer()
	}
	if cfg.Player == nil {
		return nil, errors.New("session: player required")
	}
	if cfg.Tools == nil {
		return nil, errors.New("session: tool router required")
	}
	if cfg.Notifier == nil {
		cfg.Notifier = NopNotifier{}
	}
	if cfg.Policy == (RetryPolicy{}) {
		cfg.Policy = DefaultRetryPolicy()
	}
	if cfg.CaptureActive == nil {
		cfg.CaptureActive = func() bool { return false }
	}
	if cfg.StopCapture == nil {
		cfg.StopCapture = func() {}
	}
	if cfg.After == nil {
		cfg.After = func(d time.Duration, f func()) func() bool {
			t := time.AfterFunc(d, f)
			return t.Stop
		}
	}
	return &Controller{
		cfg:    cfg,
		report: reporter{n: cfg.Notifier},
		logger: log.Component("session"),
	}, nil
}

// State returns the current connection state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Connect opens a session if none is open or being opened. Concurrent
// calls collapse into a single dial.
func (c *Controller) Connect() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrControllerClosed
	}
	if c.inFlight || c.state == StateOpen {
		c.mu.Unlock()
		return nil
	}
	c.stopRetryLocked()
	c.gen++
	gen := c.gen
	c.inFlight = true
	c.attempt = 0
	c.setStateLocked(StateConnecting)
	cfg := c.cfg.Session
	c.mu.Unlock()

	c.report.connecting()
	go c.dial(gen, cfg)
	return nil
}

// Reset tears down the current session and dials a fresh one with the
// given configuration. Capture is stopped first so no stale audio
// lands in the new session.
func (c *Controller) Reset(cfg transport.SessionConfig) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrControllerClosed
	}
	c.stopRetryLocked()
	c.gen++
	gen := c.gen
	old := c.handle
	c.handle = nil
	c.inFlight = true
	c.attempt = 0
	c.cfg.Session = cfg
	c.setStateLocked(StateConnecting)
	c.mu.Unlock()

	c.cfg.StopCapture()
	c.cfg.Player.Flush()
	if old != nil {
		_ = old.Close()
	}
	c.report.settingsChanged()
	go c.dial(gen, cfg)
	return nil
}

// SendAudio forwards an encoded microphone frame. Frames are dropped
// silently when no session is open.
func (c *Controller) SendAudio(blob wire.Blob) error {
	c.mu.Lock()
	h := c.handle
	c.mu.Unlock()
	if h == nil {
		return nil
	}
	if err := h.SendAudio(blob); err != nil {
		c.logger.Debug("audio send failed", "error", err)
		return err
	}
	if c.cfg.Metrics != nil {
		c.cfg.Metrics.AudioFramesSent.Inc()
	}
	return nil
}

// SendToolResponses forwards tool results, for callers that answer
// calls outside the dispatch path. Dropped when no session is open.
func (c *Controller) SendToolResponses(responses []wire.FunctionResponse) error {
	c.mu.Lock()
	h := c.handle
	c.mu.Unlock()
	if h == nil {
		return nil
	}
	return h.SendToolResponses(responses)
}

// Close shuts the controller down. Further operations fail with
// ErrControllerClosed.
func (c *Controller) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.stopRetryLocked()
	c.gen++
	h := c.handle
	c.handle = nil
	c.inFlight = false
	c.setStateLocked(StateClosed)
	c.mu.Unlock()

	if h != nil {
		_ = h.Close()
	}
	c.report.closed()
	return nil
}

func (c *Controller) setStateLocked(s State) {
	c.state = s
	if c.cfg.Metrics != nil {
		c.cfg.Metrics.SessionState.Set(float64(s))
	}
}

func (c *Controller) stopRetryLocked() {
	if c.cancelRetry != nil {
		c.cancelRetry()
		c.cancelRetry = nil
	}
}

func (c *Controller) dial(gen uint64, cfg transport.SessionConfig) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	h, err := c.cfg.Dialer.Dial(ctx, cfg)

	c.mu.Lock()
	if gen != c.gen || c.closed {
		c.mu.Unlock()
		if h != nil {
			_ = h.Close()
		}
		return
	}
	c.inFlight = false
	if err != nil {
		c.failLocked(gen, err)
		return
	}
	c.handle = h
	c.attempt = 0
	c.setStateLocked(StateOpen)
	c.mu.Unlock()

	c.report.connected()
	go c.consume(gen, h)
}

// failLocked handles a dial failure or unclean close. It either
// schedules the next attempt or gives up. Releases c.mu.
func (c *Controller) failLocked(gen uint64, cause error) {
	c.attempt++
	attempt := c.attempt
	if c.cfg.Policy.Exhausted(attempt) {
		c.setStateLocked(StateIdle)
		c.mu.Unlock()
		c.logger.Error("retries exhausted", "error", cause)
		c.cfg.StopCapture()
		c.report.retriesExhausted(cause)
		return
	}
	delay := c.cfg.Policy.Delay(attempt)
	c.setStateLocked(StateConnecting)
	c.cancelRetry = c.cfg.After(delay, func() { c.retryFire(gen) })
	c.mu.Unlock()

	if c.cfg.Metrics != nil {
		c.cfg.Metrics.ReconnectAttempts.Inc()
	}
	c.logger.Warn("connection lost, retrying",
		"attempt", attempt, "delay", delay, "error", cause)
	c.report.retrying(attempt, c.cfg.Policy.MaxRetries, int(delay/time.Second), cause)
}

func (c *Controller) retryFire(gen uint64) {
	c.mu.Lock()
	if gen != c.gen || c.closed || c.inFlight {
		c.mu.Unlock()
		return
	}
	c.cancelRetry = nil
	c.inFlight = true
	cfg := c.cfg.Session
	c.mu.Unlock()
	c.dial(gen, cfg)
}

// consume routes events from one session until its channel closes.
func (c *Controller) consume(gen uint64, h Handle) {
	for ev := range h.Events() {
		switch ev.Type {
		case transport.EventMessage:
			c.handleMessage(gen, h, ev.Message)
		case transport.EventError:
			c.logger.Warn("session error", "error", ev.Err)
			c.report.transportError(ev.Err)
		case transport.EventClosed:
			c.onClosed(gen, ev.Clean, ev.Reason)
			return
		}
	}
}

func (c *Controller) handleMessage(gen uint64, h Handle, msg *wire.ServerMessage) {
	c.mu.Lock()
	stale := gen != c.gen
	c.mu.Unlock()
	if stale || msg == nil {
		return
	}

	if sc := msg.ServerContent; sc != nil {
		if sc.Interrupted {
			c.logger.Debug("model interrupted, flushing playback")
			c.cfg.Player.Flush()
			if c.cfg.Metrics != nil {
				c.cfg.Metrics.PlaybackFlushes.Inc()
			}
		}
		for _, data := range sc.AudioParts() {
			if err := c.cfg.Player.Enqueue(data); err != nil {
				c.logger.Warn("dropping audio chunk", "error", err)
				continue
			}
			if c.cfg.Metrics != nil {
				c.cfg.Metrics.ChunksScheduled.Inc()
			}
		}
		if sc.TurnComplete {
			c.logger.Debug("model turn complete")
		}
	}

	if tc := msg.ToolCall; tc != nil && len(tc.FunctionCalls) > 0 {
		responses := make([]wire.FunctionResponse, 0, len(tc.FunctionCalls))
		for _, call := range tc.FunctionCalls {
			resp := c.cfg.Tools.Dispatch(call)
			if c.cfg.Metrics != nil {
				outcome := "ok"
				if strings.HasPrefix(resp.Response.Result, "Unknown function:") {
					outcome = "unknown"
				}
				c.cfg.Metrics.ToolCalls.WithLabelValues(outcome).Inc()
			}
			responses = append(responses, resp)
		}
		if err := h.SendToolResponses(responses); err != nil {
			c.logger.Warn("tool response send failed", "error", err)
		}
	}

	if msg.ToolCallCancellation != nil {
		c.logger.Debug("tool call cancellation received")
	}
}

func (c *Controller) onClosed(gen uint64, clean bool, reason error) {
	c.mu.Lock()
	if gen != c.gen || c.closed {
		c.mu.Unlock()
		return
	}
	c.handle = nil
	if clean || !c.cfg.CaptureActive() {
		c.setStateLocked(StateIdle)
		c.mu.Unlock()
		c.logger.Info("session closed", "clean", clean)
		c.report.closed()
		return
	}
	c.failLocked(gen, reason)
}
