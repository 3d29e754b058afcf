package audioio

import (
	"context"
	"log/slog"
	"sync"

	"github.com/gordonklaus/portaudio"
)

// PortAudioSource captures audio from the default input device via
// PortAudio. Each Start opens a fresh device stream; Stop releases it.
type PortAudioSource struct {
	cfg    Config
	logger *slog.Logger

	mu      sync.Mutex
	stream  *portaudio.Stream
	buffer  []float32
	frames  chan Frame
	stopCh  chan struct{}
	running bool
	closed  bool
	inited  bool
}

// NewPortAudioSource creates a PortAudio-backed capture source.
func NewPortAudioSource(cfg Config) *PortAudioSource {
	return &PortAudioSource{
		cfg:    cfg,
		logger: slog.Default().With("component", "audioio", "backend", "portaudio"),
	}
}

// Start acquires the default input device and begins producing frames.
func (s *PortAudioSource) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrSourceClosed
	}
	if s.running {
		return nil
	}

	if !s.inited {
		if err := portaudio.Initialize(); err != nil {
			return &DeviceError{Op: "open", Cause: err}
		}
		s.inited = true
	}

	s.buffer = make([]float32, s.cfg.FrameSize)
	stream, err := portaudio.OpenDefaultStream(
		s.cfg.Channels, 0, float64(s.cfg.SampleRate), s.cfg.FrameSize, s.buffer)
	if err != nil {
		return &DeviceError{Op: "open", Cause: err}
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		return &DeviceError{Op: "start", Cause: err}
	}

	s.stream = stream
	s.frames = make(chan Frame, 8)
	s.stopCh = make(chan struct{})
	s.running = true

	go s.readLoop(ctx, stream, s.buffer, s.frames, s.stopCh)

	s.logger.Info("capture started",
		"sample_rate", s.cfg.SampleRate,
		"frame_size", s.cfg.FrameSize,
	)
	return nil
}

func (s *PortAudioSource) readLoop(ctx context.Context, stream *portaudio.Stream, buf []float32, out chan<- Frame, stop <-chan struct{}) {
	defer close(out)

	for {
		select {
		case <-ctx.Done():
			return
		case <-stop:
			return
		default:
		}

		if err := stream.Read(); err != nil {
			select {
			case <-stop:
				// Expected: Stop closed the stream under us.
			default:
				s.logger.Error("capture read failed", "error", err)
			}
			return
		}

		frame := make(Frame, len(buf))
		copy(frame, buf)

		select {
		case out <- frame:
		case <-stop:
			return
		case <-ctx.Done():
			return
		}
	}
}

// Stop halts capture and releases the device. Idempotent.
func (s *PortAudioSource) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return nil
	}
	s.running = false
	close(s.stopCh)

	if s.stream != nil {
		s.stream.Stop()
		s.stream.Close()
		s.stream = nil
	}

	s.logger.Info("capture stopped")
	return nil
}

// Stream returns the channel of captured frames.
func (s *PortAudioSource) Stream() <-chan Frame {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.frames
}

// Config returns the capture configuration.
func (s *PortAudioSource) Config() Config {
	return s.cfg
}

// Name returns the backend name.
func (s *PortAudioSource) Name() string {
	return string(BackendPortAudio)
}

// Close stops capture and tears down PortAudio.
func (s *PortAudioSource) Close() error {
	s.Stop()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if s.inited {
		s.inited = false
		return portaudio.Terminate()
	}
	return nil
}

var _ Source = (*PortAudioSource)(nil)
