package calling

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/viamrobotics/webrtc/v3"
	"go.viam.com/test"
)

type batchCollector struct {
	mu      sync.Mutex
	batches [][]webrtc.ICECandidateInit
}

func (c *batchCollector) emit(batch []webrtc.ICECandidateInit) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.batches = append(c.batches, batch)
}

func (c *batchCollector) snapshot() [][]webrtc.ICECandidateInit {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([][]webrtc.ICECandidateInit, len(c.batches))
	copy(out, c.batches)
	return out
}

func candN(n int) webrtc.ICECandidateInit {
	return webrtc.ICECandidateInit{Candidate: fmt.Sprintf("cand-%d", n)}
}

func TestICEBatcherThreshold(t *testing.T) {
	var collector batchCollector
	b := newICEBatcher(24, 50*time.Millisecond, collector.emit)
	defer b.Stop()

	for i := 0; i < 30; i++ {
		b.Add(candN(i))
	}

	// 25 candidates exceed the threshold and flush immediately; the
	// remaining 5 flush once the debounce window lapses
	waitForCondition(t, func() bool { return len(collector.snapshot()) == 2 })

	batches := collector.snapshot()
	test.That(t, len(batches[0]), test.ShouldEqual, 25)
	test.That(t, len(batches[1]), test.ShouldEqual, 5)
	for i := 0; i < 25; i++ {
		test.That(t, batches[0][i].Candidate, test.ShouldEqual, fmt.Sprintf("cand-%d", i))
	}
	for i := 0; i < 5; i++ {
		test.That(t, batches[1][i].Candidate, test.ShouldEqual, fmt.Sprintf("cand-%d", 25+i))
	}
}

func TestICEBatcherDebounce(t *testing.T) {
	var collector batchCollector
	b := newICEBatcher(24, 20*time.Millisecond, collector.emit)
	defer b.Stop()

	b.Add(candN(0))
	b.Add(candN(1))

	waitForCondition(t, func() bool { return len(collector.snapshot()) == 1 })
	batches := collector.snapshot()
	test.That(t, len(batches[0]), test.ShouldEqual, 2)
	test.That(t, batches[0][0].Candidate, test.ShouldEqual, "cand-0")
	test.That(t, batches[0][1].Candidate, test.ShouldEqual, "cand-1")
}

func TestICEBatcherFlushEmpty(t *testing.T) {
	var collector batchCollector
	b := newICEBatcher(24, time.Hour, collector.emit)
	defer b.Stop()

	b.Flush()
	test.That(t, collector.snapshot(), test.ShouldBeEmpty)

	b.Add(candN(0))
	b.Flush()
	test.That(t, len(collector.snapshot()), test.ShouldEqual, 1)

	b.Flush()
	test.That(t, len(collector.snapshot()), test.ShouldEqual, 1)
}

func TestICEBatcherStop(t *testing.T) {
	var collector batchCollector
	b := newICEBatcher(24, 10*time.Millisecond, collector.emit)

	b.Add(candN(0))
	b.Stop()
	b.Add(candN(1))
	b.Flush()

	time.Sleep(50 * time.Millisecond)
	test.That(t, collector.snapshot(), test.ShouldBeEmpty)
}
