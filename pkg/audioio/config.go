// Package audioio provides microphone capture for the live client.
//
// Capture is exposed as a lazy stream of fixed-size float32 PCM frames at a
// fixed sample rate. Two backends are supported:
//   - PortAudio - real capture devices on Linux/macOS/Windows
//   - Mock - synthetic audio for CI and tests, no hardware required
package audioio

import (
	"fmt"
	"time"
)

// Backend represents the audio capture backend.
type Backend string

const (
	// BackendAuto selects the best available backend for the platform.
	BackendAuto Backend = "auto"
	// BackendPortAudio uses PortAudio for device capture.
	BackendPortAudio Backend = "portaudio"
	// BackendMock uses a synthetic source for testing.
	BackendMock Backend = "mock"
)

// Config holds capture configuration.
type Config struct {
	// Backend specifies which capture backend to use.
	// Default: "auto" (PortAudio).
	Backend Backend `json:"backend"`

	// SampleRate is the capture sample rate in Hz.
	// Default: 16000 (required by the live service for input audio).
	SampleRate int `json:"sample_rate"`

	// Channels is the number of capture channels.
	// Default: 1 (mono).
	Channels int `json:"channels"`

	// FrameSize is the number of samples per captured frame.
	// Default: 4096 (256ms at 16kHz).
	FrameSize int `json:"frame_size"`

	// Device is the platform-specific device identifier.
	// Empty selects the system default input device.
	Device string `json:"device"`
}

// DefaultConfig returns a Config with the live service's input defaults.
func DefaultConfig() Config {
	return Config{
		Backend:    BackendAuto,
		SampleRate: 16000,
		Channels:   1,
		FrameSize:  4096,
	}
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	if c.SampleRate <= 0 {
		return fmt.Errorf("audioio: sample_rate must be positive, got %d", c.SampleRate)
	}
	if c.Channels <= 0 {
		return fmt.Errorf("audioio: channels must be positive, got %d", c.Channels)
	}
	if c.FrameSize <= 0 {
		return fmt.Errorf("audioio: frame_size must be positive, got %d", c.FrameSize)
	}
	return nil
}

// FrameDuration returns the wall-clock duration of one captured frame.
func (c *Config) FrameDuration() time.Duration {
	if c.SampleRate <= 0 {
		return 0
	}
	return time.Duration(c.FrameSize) * time.Second / time.Duration(c.SampleRate)
}
