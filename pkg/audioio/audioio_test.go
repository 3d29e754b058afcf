package audioio

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.SampleRate != 16000 {
		t.Errorf("expected sample rate 16000, got %d", cfg.SampleRate)
	}
	if cfg.Channels != 1 {
		t.Errorf("expected mono capture, got %d channels", cfg.Channels)
	}
	if cfg.FrameSize != 4096 {
		t.Errorf("expected frame size 4096, got %d", cfg.FrameSize)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should validate, got %v", err)
	}
}

func TestConfigValidation(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"valid", func(c *Config) {}, false},
		{"zero sample rate", func(c *Config) { c.SampleRate = 0 }, true},
		{"negative channels", func(c *Config) { c.Channels = -1 }, true},
		{"zero frame size", func(c *Config) { c.FrameSize = 0 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestFrameDuration(t *testing.T) {
	cfg := DefaultConfig()
	if d := cfg.FrameDuration(); d != 256*time.Millisecond {
		t.Errorf("expected 256ms frames at 16kHz/4096, got %v", d)
	}
}

func TestChunkDuration(t *testing.T) {
	chunk := AudioChunk{Samples: make([]int16, 24000), SampleRate: 24000, Channels: 1}
	if d := chunk.Duration(); d != time.Second {
		t.Errorf("expected 1s, got %v", d)
	}

	empty := AudioChunk{}
	if d := empty.Duration(); d != 0 {
		t.Errorf("expected 0 for empty chunk, got %v", d)
	}
}

func TestChunkBytes(t *testing.T) {
	chunk := AudioChunk{Samples: []int16{0x1234, -2}, SampleRate: 24000, Channels: 1}
	b := chunk.Bytes()
	if len(b) != 4 {
		t.Fatalf("expected 4 bytes, got %d", len(b))
	}
	if b[0] != 0x34 || b[1] != 0x12 {
		t.Errorf("little-endian encoding wrong: % x", b)
	}
	if b[2] != 0xfe || b[3] != 0xff {
		t.Errorf("negative sample encoding wrong: % x", b)
	}
}

func TestMockSourceProducesFrames(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Backend = BackendMock
	cfg.FrameSize = 160 // 10ms frames so the test is fast

	src := NewMockSource(cfg, WithSineWave(440, 0.5))
	defer src.Close()

	if err := src.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	select {
	case frame, ok := <-src.Stream():
		if !ok {
			t.Fatal("stream closed before first frame")
		}
		if len(frame) != cfg.FrameSize {
			t.Errorf("expected %d samples, got %d", cfg.FrameSize, len(frame))
		}
		var peak float32
		for _, s := range frame {
			if s > peak {
				peak = s
			}
		}
		if peak == 0 {
			t.Error("sine source produced silence")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no frame produced within 2s")
	}
}

func TestMockSourceStopIdempotent(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Backend = BackendMock

	src := NewMockSource(cfg)
	if err := src.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	if err := src.Stop(); err != nil {
		t.Errorf("first Stop failed: %v", err)
	}
	if err := src.Stop(); err != nil {
		t.Errorf("second Stop failed: %v", err)
	}

	// Stream must be closed after Stop.
	select {
	case _, ok := <-src.Stream():
		if ok {
			// A buffered frame is fine; drain until closed.
			for range src.Stream() {
			}
		}
	case <-time.After(time.Second):
		t.Fatal("stream not closed after Stop")
	}

	if err := src.Close(); err != nil {
		t.Errorf("Close failed: %v", err)
	}
	if err := src.Start(context.Background()); err != ErrSourceClosed {
		t.Errorf("expected ErrSourceClosed after Close, got %v", err)
	}
}

func TestNewSourceMockBackend(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Backend = BackendMock

	src, err := NewSource(cfg)
	if err != nil {
		t.Fatalf("NewSource failed: %v", err)
	}
	defer src.Close()

	if src.Name() != "mock" {
		t.Errorf("expected mock backend, got %s", src.Name())
	}
}

func TestWAVRecorder(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dump.wav")

	rec := NewWAVRecorder(path, 16000)
	rec.Write(Frame{0, 0.25, -0.25, 1.0})
	rec.Write(Frame{0.5, -0.5})

	if rec.Len() != 6 {
		t.Errorf("expected 6 recorded samples, got %d", rec.Len())
	}

	if err := rec.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	// Writes after close are dropped, second close is a no-op.
	rec.Write(Frame{1.0})
	if err := rec.Close(); err != nil {
		t.Errorf("second Close failed: %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("wav file not written: %v", err)
	}
	// 44-byte RIFF header + 6 samples * 2 bytes.
	if info.Size() < 44+12 {
		t.Errorf("wav file suspiciously small: %d bytes", info.Size())
	}
}
