package audioio

import (
	"fmt"
	"os"
	"sync"

	wav "github.com/youpy/go-wav"
)

// WAVRecorder accumulates captured frames and writes them to a WAV file on
// Close. It is a debug aid for inspecting exactly what was sent upstream.
type WAVRecorder struct {
	path       string
	sampleRate int

	mu      sync.Mutex
	samples []wav.Sample
	closed  bool
}

// NewWAVRecorder creates a recorder that writes mono PCM16 to path.
func NewWAVRecorder(path string, sampleRate int) *WAVRecorder {
	return &WAVRecorder{path: path, sampleRate: sampleRate}
}

// Write appends one captured frame. Frames written after Close are dropped.
func (r *WAVRecorder) Write(frame Frame) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	for _, f := range frame {
		if f > 1 {
			f = 1
		} else if f < -1 {
			f = -1
		}
		r.samples = append(r.samples, wav.Sample{Values: [2]int{int(f * 32767), 0}})
	}
}

// Len returns the number of samples recorded so far.
func (r *WAVRecorder) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.samples)
}

// Close writes the accumulated samples to the WAV file. Idempotent;
// subsequent calls return nil without rewriting.
func (r *WAVRecorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true

	f, err := os.Create(r.path)
	if err != nil {
		return fmt.Errorf("audioio: create wav dump: %w", err)
	}
	defer f.Close()

	w := wav.NewWriter(f, uint32(len(r.samples)), 1, uint32(r.sampleRate), 16)
	if err := w.WriteSamples(r.samples); err != nil {
		return fmt.Errorf("audioio: write wav dump: %w", err)
	}
	return nil
}
