package calling

import (
	"sync"
	"time"

	"github.com/viamrobotics/webrtc/v3"
)

// An iceBatcher accumulates locally gathered candidates and emits them in
// ordered batches. A batch is emitted when the pending count exceeds the
// threshold, or when the debounce window elapses with no new arrivals.
// Emission order matches arrival order.
type iceBatcher struct {
	threshold int
	debounce  time.Duration
	emit      func(batch []webrtc.ICECandidateInit)

	mu      sync.Mutex
	pending []webrtc.ICECandidateInit
	timer   *time.Timer
	stopped bool
}

func newICEBatcher(threshold int, debounce time.Duration, emit func(batch []webrtc.ICECandidateInit)) *iceBatcher {
	return &iceBatcher{threshold: threshold, debounce: debounce, emit: emit}
}

// Add queues one candidate. Candidates arriving after Stop are dropped.
func (b *iceBatcher) Add(cand webrtc.ICECandidateInit) {
	b.mu.Lock()
	if b.stopped {
		b.mu.Unlock()
		return
	}
	b.pending = append(b.pending, cand)
	if len(b.pending) > b.threshold {
		batch := b.drainLocked()
		b.mu.Unlock()
		b.emit(batch)
		return
	}
	// each arrival restarts the window
	if b.timer != nil {
		b.timer.Stop()
	}
	b.timer = time.AfterFunc(b.debounce, b.Flush)
	b.mu.Unlock()
}

// Flush emits whatever is pending now. An empty queue is a no-op.
func (b *iceBatcher) Flush() {
	b.mu.Lock()
	if b.stopped || len(b.pending) == 0 {
		b.mu.Unlock()
		return
	}
	batch := b.drainLocked()
	b.mu.Unlock()
	b.emit(batch)
}

// Stop cancels the pending timer and discards queued candidates. No emission
// happens after Stop returns, except for an emit already in flight.
func (b *iceBatcher) Stop() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.stopped = true
	b.pending = nil
	if b.timer != nil {
		b.timer.Stop()
		b.timer = nil
	}
}

func (b *iceBatcher) drainLocked() []webrtc.ICECandidateInit {
	batch := b.pending
	b.pending = nil
	if b.timer != nil {
		b.timer.Stop()
		b.timer = nil
	}
	return batch
}
