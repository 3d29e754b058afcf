package audioio

import (
	"context"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"
	"time"
)

// MockSource is a synthetic audio source for testing.
// It generates silence or a sine wave at the configured frame size.
type MockSource struct {
	cfg    Config
	logger *slog.Logger

	mu      sync.Mutex
	running bool
	closed  bool
	frames  chan Frame
	stopCh  chan struct{}

	framesRead atomic.Int64

	// Synthetic audio generation
	phase     float64
	frequency float64 // Hz, 0 = silence
	amplitude float64 // 0.0 to 1.0
}

// MockSourceOption configures a MockSource.
type MockSourceOption func(*MockSource)

// WithSineWave configures the mock to generate a sine wave.
func WithSineWave(frequency, amplitude float64) MockSourceOption {
	return func(m *MockSource) {
		m.frequency = frequency
		m.amplitude = amplitude
	}
}

// NewMockSource creates a new mock audio source.
func NewMockSource(cfg Config, opts ...MockSourceOption) *MockSource {
	m := &MockSource{
		cfg:       cfg,
		logger:    slog.Default().With("component", "audioio", "backend", "mock"),
		frequency: 0, // Silence by default
		amplitude: 0.5,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Start begins generating frames at the frame-duration cadence.
func (m *MockSource) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrSourceClosed
	}
	if m.running {
		return nil
	}

	m.running = true
	m.frames = make(chan Frame, 8)
	m.stopCh = make(chan struct{})

	go m.generateLoop(ctx, m.frames, m.stopCh)
	return nil
}

func (m *MockSource) generateLoop(ctx context.Context, out chan<- Frame, stop <-chan struct{}) {
	defer close(out)

	ticker := time.NewTicker(m.cfg.FrameDuration())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-stop:
			return
		case <-ticker.C:
			frame := m.generateFrame()
			select {
			case out <- frame:
				m.framesRead.Add(1)
			case <-stop:
				return
			default:
				// Consumer lagging: drop the frame rather than buffer.
				m.logger.Debug("mock source: frame dropped")
			}
		}
	}
}

func (m *MockSource) generateFrame() Frame {
	frame := make(Frame, m.cfg.FrameSize)
	if m.frequency == 0 {
		return frame
	}
	step := 2 * math.Pi * m.frequency / float64(m.cfg.SampleRate)
	for i := range frame {
		frame[i] = float32(m.amplitude * math.Sin(m.phase))
		m.phase += step
	}
	return frame
}

// Stop halts frame generation. Idempotent.
func (m *MockSource) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.running {
		return nil
	}
	m.running = false
	close(m.stopCh)
	return nil
}

// Stream returns the channel of generated frames.
func (m *MockSource) Stream() <-chan Frame {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.frames
}

// Config returns the capture configuration.
func (m *MockSource) Config() Config {
	return m.cfg
}

// Name returns the backend name.
func (m *MockSource) Name() string {
	return string(BackendMock)
}

// FramesRead returns the number of frames produced so far.
func (m *MockSource) FramesRead() int64 {
	return m.framesRead.Load()
}

// Close stops the source permanently.
func (m *MockSource) Close() error {
	m.Stop()
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

var _ Source = (*MockSource)(nil)
