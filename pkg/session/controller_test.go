package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/orbitvoice/go-orbit/pkg/transport"
	"github.com/orbitvoice/go-orbit/pkg/wire"
)

type fakeHandle struct {
	events chan transport.Event
	once   sync.Once

	mu        sync.Mutex
	audio     []wire.Blob
	responses [][]wire.FunctionResponse
	closed    bool
}

func newFakeHandle() *fakeHandle {
	return &fakeHandle{events: make(chan transport.Event, 16)}
}

func (h *fakeHandle) Events() <-chan transport.Event { return h.events }

func (h *fakeHandle) SendAudio(blob wire.Blob) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return errors.New("closed")
	}
	h.audio = append(h.audio, blob)
	return nil
}

func (h *fakeHandle) SendToolResponses(rs []wire.FunctionResponse) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.responses = append(h.responses, rs)
	return nil
}

func (h *fakeHandle) Close() error {
	h.mu.Lock()
	h.closed = true
	h.mu.Unlock()
	h.once.Do(func() {
		h.events <- transport.Event{Type: transport.EventClosed, Clean: true}
		close(h.events)
	})
	return nil
}

// drop delivers an unclean close, as after a network failure.
func (h *fakeHandle) drop(reason error) {
	h.once.Do(func() {
		h.events <- transport.Event{Type: transport.EventError, Err: reason}
		h.events <- transport.Event{Type: transport.EventClosed, Clean: false, Reason: reason}
		close(h.events)
	})
}

func (h *fakeHandle) isClosed() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.closed
}

type fakeDialer struct {
	mu      sync.Mutex
	calls   []transport.SessionConfig
	results []func() (Handle, error)
	block   chan struct{}
}

func (d *fakeDialer) Dial(ctx context.Context, cfg transport.SessionConfig) (Handle, error) {
	d.mu.Lock()
	d.calls = append(d.calls, cfg)
	n := len(d.calls)
	block := d.block
	d.mu.Unlock()
	if block != nil {
		<-block
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if n <= len(d.results) {
		return d.results[n-1]()
	}
	return newFakeHandle(), nil
}

func (d *fakeDialer) dialCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.calls)
}

func (d *fakeDialer) lastHandle(t *testing.T, c *Controller) *fakeHandle {
	t.Helper()
	waitFor(t, func() bool { return c.State() == StateOpen })
	c.mu.Lock()
	defer c.mu.Unlock()
	h, ok := c.handle.(*fakeHandle)
	if !ok {
		t.Fatalf("no fake handle installed")
	}
	return h
}

type manualAfter struct {
	mu     sync.Mutex
	delays []time.Duration
	fns    []func()
}

func (a *manualAfter) After(d time.Duration, f func()) func() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.delays = append(a.delays, d)
	a.fns = append(a.fns, f)
	return func() bool { return true }
}

// fire runs the most recently scheduled timer.
func (a *manualAfter) fire(t *testing.T) {
	t.Helper()
	a.mu.Lock()
	if len(a.fns) == 0 {
		a.mu.Unlock()
		t.Fatalf("no timer scheduled")
	}
	f := a.fns[len(a.fns)-1]
	a.mu.Unlock()
	f()
}

func (a *manualAfter) scheduled() []time.Duration {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]time.Duration(nil), a.delays...)
}

type recordingNotifier struct {
	mu       sync.Mutex
	statuses []string
	errors   []string
}

func (n *recordingNotifier) OnStatus(msg string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.statuses = append(n.statuses, msg)
}

func (n *recordingNotifier) OnError(msg string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.errors = append(n.errors, msg)
}

func (n *recordingNotifier) hasStatus(sub string) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, s := range n.statuses {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

func (n *recordingNotifier) hasError(sub string) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, s := range n.errors {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

type fakePlayer struct {
	mu      sync.Mutex
	chunks  []string
	flushes int
}

func (p *fakePlayer) Enqueue(data string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.chunks = append(p.chunks, data)
	return nil
}

func (p *fakePlayer) Flush() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.flushes++
}

type echoRouter struct {
	mu    sync.Mutex
	calls []wire.FunctionCall
}

func (r *echoRouter) Dispatch(call wire.FunctionCall) wire.FunctionResponse {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, call)
	return wire.FunctionResponse{
		ID:       call.ID,
		Name:     call.Name,
		Response: wire.ResponsePayload{Result: "ok"},
	}
}

type harness struct {
	ctrl     *Controller
	dialer   *fakeDialer
	after    *manualAfter
	notifier *recordingNotifier
	player   *fakePlayer
	router   *echoRouter

	mu        sync.Mutex
	capturing bool
	stops     int
}

func newHarness(t *testing.T, mutate func(*Config)) *harness {
	t.Helper()
	h := &harness{
		dialer:   &fakeDialer{},
		after:    &manualAfter{},
		notifier: &recordingNotifier{},
		player:   &fakePlayer{},
		router:   &echoRouter{},
	}
	cfg := Config{
		Session:  transport.SessionConfig{Model: "models/gemini-2.0-flash-exp", Voice: "Zephyr"},
		Dialer:   h.dialer,
		Player:   h.player,
		Tools:    h.router,
		Notifier: h.notifier,
		After:    h.after.After,
		CaptureActive: func() bool {
			h.mu.Lock()
			defer h.mu.Unlock()
			return h.capturing
		},
		StopCapture: func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			h.capturing = false
			h.stops++
		},
	}
	if mutate != nil {
		mutate(&cfg)
	}
	ctrl, err := NewController(cfg)
	if err != nil {
		t.Fatalf("NewController: %v", err)
	}
	h.ctrl = ctrl
	t.Cleanup(func() { _ = ctrl.Close() })
	return h
}

func (h *harness) setCapturing(v bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.capturing = v
}

func (h *harness) stopCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.stops
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("condition not met within deadline")
}

func TestConnectCollapsesConcurrentCalls(t *testing.T) {
	h := newHarness(t, nil)
	h.dialer.block = make(chan struct{})

	for i := 0; i < 5; i++ {
		if err := h.ctrl.Connect(); err != nil {
			t.Fatalf("Connect: %v", err)
		}
	}
	close(h.dialer.block)
	waitFor(t, func() bool { return h.ctrl.State() == StateOpen })

	if got := h.dialer.dialCount(); got != 1 {
		t.Errorf("dial count = %d, want 1", got)
	}

	// Connect on an open session is a no-op.
	if err := h.ctrl.Connect(); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if got := h.dialer.dialCount(); got != 1 {
		t.Errorf("dial count after redundant Connect = %d, want 1", got)
	}
}

func TestRetryScheduleDoublesFromBaseDelay(t *testing.T) {
	h := newHarness(t, nil)
	fail := func() (Handle, error) { return nil, errors.New("connection refused") }
	h.dialer.results = []func() (Handle, error){fail, fail, fail, fail}

	if err := h.ctrl.Connect(); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	waitFor(t, func() bool { return len(h.after.scheduled()) == 1 })
	h.after.fire(t)
	waitFor(t, func() bool { return len(h.after.scheduled()) == 2 })
	h.after.fire(t)
	waitFor(t, func() bool { return len(h.after.scheduled()) == 3 })
	h.after.fire(t)
	waitFor(t, func() bool { return h.notifier.hasError("Connection failed") })

	want := []time.Duration{time.Second, 2 * time.Second, 4 * time.Second}
	got := h.after.scheduled()
	if len(got) != len(want) {
		t.Fatalf("scheduled %d retries, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("retry %d delay = %v, want %v", i+1, got[i], want[i])
		}
	}
	if got := h.dialer.dialCount(); got != 4 {
		t.Errorf("dial count = %d, want 4 (initial plus three retries)", got)
	}
	if h.ctrl.State() != StateIdle {
		t.Errorf("state = %v after exhaustion, want idle", h.ctrl.State())
	}
	if h.stopCount() == 0 {
		t.Errorf("capture not force-stopped after retries exhausted")
	}
	if !h.notifier.hasError("network") && !h.notifier.hasError("Check your network connection") {
		t.Errorf("terminal error lacks network remediation: %v", h.notifier.errors)
	}
}

func TestRetryStatusNamesDelaySeconds(t *testing.T) {
	h := newHarness(t, nil)
	h.dialer.results = []func() (Handle, error){
		func() (Handle, error) { return nil, errors.New("connection refused") },
	}
	if err := h.ctrl.Connect(); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	waitFor(t, func() bool { return h.notifier.hasStatus("Retrying in 1s") })
}

func TestCleanCloseDoesNotReconnect(t *testing.T) {
	h := newHarness(t, nil)
	h.setCapturing(true)

	if err := h.ctrl.Connect(); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	fh := h.dialer.lastHandle(t, h.ctrl)
	_ = fh.Close()

	waitFor(t, func() bool { return h.ctrl.State() == StateIdle })
	if len(h.after.scheduled()) != 0 {
		t.Errorf("retry scheduled after clean close")
	}
	if got := h.dialer.dialCount(); got != 1 {
		t.Errorf("dial count = %d, want 1", got)
	}
	if !h.notifier.hasStatus("Session closed") {
		t.Errorf("missing closed status, got %v", h.notifier.statuses)
	}
}

func TestUncleanCloseWhileIdleMicDoesNotReconnect(t *testing.T) {
	h := newHarness(t, nil)
	h.setCapturing(false)

	if err := h.ctrl.Connect(); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	fh := h.dialer.lastHandle(t, h.ctrl)
	fh.drop(errors.New("connection reset"))

	waitFor(t, func() bool { return h.ctrl.State() == StateIdle })
	if len(h.after.scheduled()) != 0 {
		t.Errorf("retry scheduled while microphone inactive")
	}
}

func TestUncleanCloseWhileCapturingReconnects(t *testing.T) {
	h := newHarness(t, nil)
	h.setCapturing(true)

	if err := h.ctrl.Connect(); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	fh := h.dialer.lastHandle(t, h.ctrl)
	fh.drop(errors.New("connection reset"))

	waitFor(t, func() bool { return len(h.after.scheduled()) == 1 })
	h.after.fire(t)
	waitFor(t, func() bool { return h.ctrl.State() == StateOpen && h.dialer.dialCount() == 2 })
	if !h.notifier.hasStatus("Retrying in 1s") {
		t.Errorf("missing retry status, got %v", h.notifier.statuses)
	}
	// The close reason must reach classification for the remediation hint.
	if !h.notifier.hasStatus("Check your network connection") {
		t.Errorf("retry status lacks network remediation, got %v", h.notifier.statuses)
	}
}

func TestTransportErrorReportsTransientStatus(t *testing.T) {
	h := newHarness(t, nil)

	if err := h.ctrl.Connect(); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	fh := h.dialer.lastHandle(t, h.ctrl)
	fh.drop(errors.New("read: connection reset by peer"))

	waitFor(t, func() bool { return h.notifier.hasStatus("Connection problem.") })
	if !h.notifier.hasStatus("Check your network connection") {
		t.Errorf("transient status lacks remediation, got %v", h.notifier.statuses)
	}
}

func TestResetDialsNewConfigAndStopsCapture(t *testing.T) {
	h := newHarness(t, nil)
	h.setCapturing(true)

	if err := h.ctrl.Connect(); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	old := h.dialer.lastHandle(t, h.ctrl)

	next := transport.SessionConfig{Model: "models/gemini-2.0-flash-exp", Voice: "Puck"}
	if err := h.ctrl.Reset(next); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	waitFor(t, func() bool { return h.dialer.dialCount() == 2 && h.ctrl.State() == StateOpen })

	if !old.isClosed() {
		t.Errorf("previous session not closed on reset")
	}
	if h.stopCount() == 0 {
		t.Errorf("capture not stopped on reset")
	}
	if !h.notifier.hasStatus("Settings changed. Session reset.") {
		t.Errorf("missing reset status, got %v", h.notifier.statuses)
	}
	h.dialer.mu.Lock()
	voice := h.dialer.calls[1].Voice
	h.dialer.mu.Unlock()
	if voice != "Puck" {
		t.Errorf("second dial voice = %q, want Puck", voice)
	}
	if h.player.flushes == 0 {
		t.Errorf("playback not flushed on reset")
	}
}

func TestToolCallsGetExactlyOneResponseEach(t *testing.T) {
	h := newHarness(t, nil)
	if err := h.ctrl.Connect(); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	fh := h.dialer.lastHandle(t, h.ctrl)

	fh.events <- transport.Event{Type: transport.EventMessage, Message: &wire.ServerMessage{
		ToolCall: &wire.ToolCall{FunctionCalls: []wire.FunctionCall{
			{ID: "call-1", Name: "set_sphere_color", Args: map[string]any{"color": "#ff0000"}},
			{ID: "call-2", Name: "bogus_tool"},
		}},
	}}

	waitFor(t, func() bool {
		fh.mu.Lock()
		defer fh.mu.Unlock()
		return len(fh.responses) == 1
	})
	fh.mu.Lock()
	batch := fh.responses[0]
	fh.mu.Unlock()
	if len(batch) != 2 {
		t.Fatalf("got %d responses, want 2", len(batch))
	}
	for i, id := range []string{"call-1", "call-2"} {
		if batch[i].ID != id {
			t.Errorf("response %d id = %q, want %q", i, batch[i].ID, id)
		}
	}
}

func TestInterruptedFlushesBeforeNewAudio(t *testing.T) {
	h := newHarness(t, nil)
	if err := h.ctrl.Connect(); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	fh := h.dialer.lastHandle(t, h.ctrl)

	fh.events <- transport.Event{Type: transport.EventMessage, Message: &wire.ServerMessage{
		ServerContent: &wire.ServerContent{Interrupted: true},
	}}
	fh.events <- transport.Event{Type: transport.EventMessage, Message: &wire.ServerMessage{
		ServerContent: &wire.ServerContent{
			ModelTurn: &wire.Content{Parts: []wire.Part{
				{InlineData: &wire.Blob{MimeType: "audio/pcm;rate=24000", Data: "AAAA"}},
			}},
		},
	}}

	waitFor(t, func() bool {
		h.player.mu.Lock()
		defer h.player.mu.Unlock()
		return h.player.flushes == 1 && len(h.player.chunks) == 1
	})
}

func TestSendAudioDroppedWithoutSession(t *testing.T) {
	h := newHarness(t, nil)
	if err := h.ctrl.SendAudio(wire.Blob{Data: "AAAA"}); err != nil {
		t.Fatalf("SendAudio while idle: %v", err)
	}
	if got := h.dialer.dialCount(); got != 0 {
		t.Errorf("SendAudio triggered a dial")
	}
}

func TestStaleDialResultDiscardedAfterClose(t *testing.T) {
	h := newHarness(t, nil)
	h.dialer.block = make(chan struct{})
	late := newFakeHandle()
	h.dialer.results = []func() (Handle, error){
		func() (Handle, error) { return late, nil },
	}

	if err := h.ctrl.Connect(); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if err := h.ctrl.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	close(h.dialer.block)

	waitFor(t, func() bool { return late.isClosed() })
	if h.ctrl.State() != StateClosed {
		t.Errorf("state = %v, want closed", h.ctrl.State())
	}
	if err := h.ctrl.Connect(); !errors.Is(err, ErrControllerClosed) {
		t.Errorf("Connect after Close = %v, want ErrControllerClosed", err)
	}
}

func TestRetryPolicyDelays(t *testing.T) {
	p := DefaultRetryPolicy()
	for attempt, want := range map[int]time.Duration{
		1: time.Second,
		2: 2 * time.Second,
		3: 4 * time.Second,
	} {
		if got := p.Delay(attempt); got != want {
			t.Errorf("Delay(%d) = %v, want %v", attempt, got, want)
		}
	}
	if p.Exhausted(3) {
		t.Errorf("attempt 3 should be within budget")
	}
	if !p.Exhausted(4) {
		t.Errorf("attempt 4 should exhaust the budget")
	}
}

func TestClassify(t *testing.T) {
	cases := []struct {
		err  error
		want FailureClass
	}{
		{errors.New("dial tcp: connection refused"), FailureNetwork},
		{errors.New("read: connection reset by peer"), FailureNetwork},
		{errors.New("websocket: close 1011 (internal server error)"), FailureServiceUnavailable},
		{errors.New("bad handshake: 503 Service Unavailable"), FailureServiceUnavailable},
		{errors.New("something odd"), FailureGeneric},
		{nil, FailureGeneric},
	}
	for _, tc := range cases {
		name := "nil"
		if tc.err != nil {
			name = tc.err.Error()
		}
		t.Run(fmt.Sprintf("%.30s", name), func(t *testing.T) {
			if got := Classify(tc.err); got != tc.want {
				t.Errorf("Classify(%v) = %v, want %v", tc.err, got, tc.want)
			}
		})
	}
}
