package audioio

import (
	"context"
	"io"
)

// Frame is one fixed-size buffer of float32 PCM samples captured from the
// input device. Frames are immutable once produced.
type Frame []float32

// Source captures audio from a microphone or other input device.
type Source interface {
	// Start acquires the device and begins capture. It fails with a
	// *DeviceError if the device is unavailable or access is denied.
	Start(ctx context.Context) error

	// Stop halts capture and releases the device so the OS-level capture
	// indicator turns off. It is safe to call Stop multiple times.
	Stop() error

	// Stream returns the channel of captured frames. The channel is
	// closed when the source is stopped.
	Stream() <-chan Frame

	// Config returns the capture configuration.
	Config() Config

	// Name returns the backend name (e.g. "portaudio", "mock").
	Name() string

	// Close releases all resources. After Close the source cannot be
	// restarted.
	io.Closer
}

// NewSource creates a capture source for the configured backend.
func NewSource(cfg Config) (Source, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	backend := cfg.Backend
	if backend == BackendAuto {
		backend = BackendPortAudio
	}

	switch backend {
	case BackendMock:
		return NewMockSource(cfg), nil
	case BackendPortAudio:
		return NewPortAudioSource(cfg), nil
	default:
		return nil, &DeviceError{Op: "open", Reason: "unsupported backend " + string(backend)}
	}
}
