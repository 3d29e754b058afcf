// Package playback schedules inbound audio chunks on a virtual output
// clock so consecutive chunks play back-to-back with no gap and no
// overlap, and supports mid-stream interruption by flushing everything
// pending.
package playback

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/orbitvoice/go-orbit/pkg/audioio"
	"github.com/orbitvoice/go-orbit/pkg/wire"
)

// Clock is the monotonic time reference playback start times are
// computed against. The real implementation is the output device's
// sample clock; tests substitute a manual clock.
type Clock interface {
	Now() time.Duration
}

// Handle controls one scheduled chunk.
type Handle interface {
	// Stop silences the chunk immediately, whether pending or playing.
	Stop()
}

// Output plays chunks at requested clock times.
type Output interface {
	// PlayAt schedules chunk to begin at start on the output clock.
	// done runs once when the chunk finishes playing normally; it is
	// not invoked for chunks stopped via the returned Handle.
	PlayAt(chunk audioio.AudioChunk, start time.Duration, done func()) (Handle, error)
}

// Scheduler is the inbound audio pipeline: it decodes wire blobs and
// schedules them seamlessly on the output clock.
//
// For chunks A then B enqueued in arrival order,
// start(B) = max(now, start(A)+duration(A)): strictly sequential,
// never overlapping, never scheduled in the past.
type Scheduler struct {
	clock      Clock
	out        Output
	sampleRate int
	channels   int
	logger     *slog.Logger

	mu       sync.Mutex
	next     time.Duration
	active   map[string]Handle
	flushGen uint64
}

// NewScheduler creates a scheduler for the given output format.
func NewScheduler(clock Clock, out Output, sampleRate, channels int) *Scheduler {
	return &Scheduler{
		clock:      clock,
		out:        out,
		sampleRate: sampleRate,
		channels:   channels,
		logger:     slog.Default().With("component", "playback"),
		active:     make(map[string]Handle),
	}
}

// Enqueue decodes one inbound base64 PCM blob and schedules it directly
// after whatever is already queued. A malformed blob is dropped and the
// error returned; the pipeline stays usable.
func (s *Scheduler) Enqueue(data string) error {
	samples, err := wire.DecodePCM(data)
	if err != nil {
		s.logger.Warn("dropping malformed audio chunk", "error", err)
		return err
	}

	chunk := audioio.AudioChunk{
		Samples:    samples,
		SampleRate: s.sampleRate,
		Channels:   s.channels,
	}

	s.mu.Lock()
	if now := s.clock.Now(); s.next < now {
		s.next = now
	}
	start := s.next
	s.next = start + chunk.Duration()
	gen := s.flushGen
	id := uuid.NewString()
	s.mu.Unlock()

	handle, err := s.out.PlayAt(chunk, start, func() {
		s.mu.Lock()
		delete(s.active, id)
		s.mu.Unlock()
	})
	if err != nil {
		s.mu.Lock()
		// Nothing was scheduled; give the timeline back so the failed
		// chunk does not leave a silent gap before the next one.
		if s.flushGen == gen && s.next == start+chunk.Duration() {
			s.next = start
		}
		s.mu.Unlock()
		return err
	}

	s.mu.Lock()
	if s.flushGen != gen {
		// Flushed while we were scheduling: this chunk must not be heard.
		s.mu.Unlock()
		handle.Stop()
		return nil
	}
	s.active[id] = handle
	s.mu.Unlock()
	return nil
}

// Flush stops every active and pending chunk immediately and resets the
// cursor so the next enqueue re-anchors at "now". Idempotent.
func (s *Scheduler) Flush() {
	s.mu.Lock()
	s.flushGen++
	s.next = 0
	handles := make([]Handle, 0, len(s.active))
	for _, h := range s.active {
		handles = append(handles, h)
	}
	s.active = make(map[string]Handle)
	s.mu.Unlock()

	for _, h := range handles {
		h.Stop()
	}
	if len(handles) > 0 {
		s.logger.Debug("playback flushed", "stopped", len(handles))
	}
}

// Active returns the number of chunks currently scheduled or playing.
func (s *Scheduler) Active() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.active)
}

// NextStart returns the clock time the next enqueued chunk would target.
func (s *Scheduler) NextStart() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.next
}
