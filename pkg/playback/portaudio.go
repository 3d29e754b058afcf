package playback

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/gordonklaus/portaudio"

	"github.com/orbitvoice/go-orbit/pkg/audioio"
)

const outputBufferFrames = 1024

// PortAudioOutput plays scheduled chunks through the default output
// device. It maintains a sample timeline: the stream callback copies
// each entry's samples into the output buffer once the cursor reaches
// its start sample. The cursor doubles as the output clock, so
// scheduling is sample-accurate regardless of callback jitter.
type PortAudioOutput struct {
	sampleRate int
	channels   int
	logger     *slog.Logger

	mu      sync.Mutex
	stream  *portaudio.Stream
	entries []*playbackEntry
	cursor  int64
	started bool
	closed  bool
	inited  bool
}

type playbackEntry struct {
	samples     []int16
	startSample int64
	pos         int
	done        func()
	stopped     bool

	out *PortAudioOutput
}

// Stop silences the entry; its done callback will not fire.
func (e *playbackEntry) Stop() {
	e.out.mu.Lock()
	e.stopped = true
	e.out.mu.Unlock()
}

// NewPortAudioOutput creates an output for the given format. The live
// service synthesizes 24kHz mono.
func NewPortAudioOutput(sampleRate, channels int) *PortAudioOutput {
	return &PortAudioOutput{
		sampleRate: sampleRate,
		channels:   channels,
		logger:     slog.Default().With("component", "playback", "backend", "portaudio"),
	}
}

// Start opens the output device stream.
func (o *PortAudioOutput) Start(ctx context.Context) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.closed {
		return audioio.ErrSourceClosed
	}
	if o.started {
		return nil
	}

	if !o.inited {
		if err := portaudio.Initialize(); err != nil {
			return &audioio.DeviceError{Op: "open", Cause: err}
		}
		o.inited = true
	}

	stream, err := portaudio.OpenDefaultStream(
		0, o.channels, float64(o.sampleRate), outputBufferFrames, o.fill)
	if err != nil {
		return &audioio.DeviceError{Op: "open", Cause: err}
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		return &audioio.DeviceError{Op: "start", Cause: err}
	}

	o.stream = stream
	o.started = true
	o.logger.Info("playback started", "sample_rate", o.sampleRate)
	return nil
}

// fill is the stream callback: it advances the cursor and copies
// scheduled samples into the device buffer.
func (o *PortAudioOutput) fill(out []float32) {
	o.mu.Lock()

	for i := range out {
		out[i] = 0
	}

	var finished []func()
	kept := o.entries[:0]
	for _, e := range o.entries {
		if e.stopped {
			continue
		}
		o.fillEntry(e, out)
		if e.pos >= len(e.samples) {
			if e.done != nil {
				finished = append(finished, e.done)
			}
			continue
		}
		kept = append(kept, e)
	}
	o.entries = kept
	o.cursor += int64(len(out) / o.channels)

	o.mu.Unlock()

	for _, done := range finished {
		go done()
	}
}

// fillEntry copies the overlap between the current buffer window and the
// entry's remaining samples. Called with the lock held.
func (o *PortAudioOutput) fillEntry(e *playbackEntry, out []float32) {
	bufFrames := int64(len(out) / o.channels)
	entryPos := e.startSample + int64(e.pos)

	// Not due yet within this buffer.
	if entryPos >= o.cursor+bufFrames {
		return
	}

	offset := entryPos - o.cursor
	if offset < 0 {
		// The entry's start predates this buffer (scheduled in the past
		// or a long callback gap): skip what can no longer be played.
		skip := int(-offset)
		if skip > len(e.samples)-e.pos {
			skip = len(e.samples) - e.pos
		}
		e.pos += skip
		offset = 0
	}

	for i := int(offset) * o.channels; i < len(out) && e.pos < len(e.samples); i++ {
		out[i] = float32(e.samples[e.pos]) / 32768
		e.pos++
	}
}

// PlayAt schedules a chunk to begin at start on the output clock.
func (o *PortAudioOutput) PlayAt(chunk audioio.AudioChunk, start time.Duration, done func()) (Handle, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.closed {
		return nil, audioio.ErrSourceClosed
	}

	// Round, don't truncate: start values round-trip through Now(), and
	// flooring would shift chunks a sample early.
	startSample := (int64(start)*int64(o.sampleRate) + int64(time.Second)/2) / int64(time.Second)

	e := &playbackEntry{
		samples:     chunk.Samples,
		startSample: startSample,
		done:        done,
		out:         o,
	}
	o.entries = append(o.entries, e)
	return e, nil
}

// Now returns the output clock: samples elapsed since Start.
func (o *PortAudioOutput) Now() time.Duration {
	o.mu.Lock()
	defer o.mu.Unlock()
	return time.Duration(o.cursor) * time.Second / time.Duration(o.sampleRate)
}

// Close stops the stream and tears down PortAudio.
func (o *PortAudioOutput) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.closed {
		return nil
	}
	o.closed = true
	o.entries = nil

	if o.stream != nil {
		o.stream.Stop()
		o.stream.Close()
		o.stream = nil
	}
	if o.inited {
		o.inited = false
		return portaudio.Terminate()
	}
	return nil
}

var (
	_ Output = (*PortAudioOutput)(nil)
	_ Clock  = (*PortAudioOutput)(nil)
)
