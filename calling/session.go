package calling

import (
	"context"
	"sync"

	"github.com/viamrobotics/webrtc/v3"
	"go.uber.org/atomic"
	"go.uber.org/multierr"
)

// A future settles exactly once, either successfully or with an error.
// Waiters observe the settled result; later settle attempts are ignored.
type future struct {
	once    sync.Once
	done    chan struct{}
	settled atomic.Bool
	err     error
}

func newFuture() *future {
	return &future{done: make(chan struct{})}
}

func (f *future) resolve() {
	f.once.Do(func() {
		f.settled.Store(true)
		close(f.done)
	})
}

func (f *future) reject(err error) {
	f.once.Do(func() {
		f.err = err
		f.settled.Store(true)
		close(f.done)
	})
}

// wait blocks until the future settles or the context ends.
func (f *future) wait(ctx context.Context) error {
	select {
	case <-f.done:
		return f.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (f *future) resolved() bool {
	select {
	case <-f.done:
		return f.err == nil
	default:
		return false
	}
}

// outboxCapacity bounds queued candidate batches per session. A full outbox
// drops the oldest batch rather than blocking the gathering callback.
const outboxCapacity = 16

// A callSession is the per-attempt companion to a Call: the transport, the
// gating futures, and the candidate pipeline. A new session is built for
// every attempt and torn down exactly once.
type callSession struct {
	call *Call

	// attemptCtx ends when the session is superseded or torn down; all of
	// the session's asynchronous work hangs off it.
	attemptCtx    context.Context
	attemptCancel func()

	// signalingReady settles once the local offer or answer has been sent,
	// unblocking candidate delivery. accepted settles when the local user
	// answers an incoming call. connected settles on the first transition to
	// StateConnected.
	signalingReady *future
	accepted       *future
	connected      *future

	batcher *iceBatcher
	outbox  chan []webrtc.ICECandidateInit

	// pendingRemote buffers remote candidates that arrive before the remote
	// description is applied. Both fields are touched only on the
	// coordinator's run loop.
	pendingRemote []webrtc.ICECandidateInit
	remoteReady   bool

	transportMu sync.Mutex
	transport   MediaTransport

	terminateOnce sync.Once
}

func newCallSession(ctx context.Context, call *Call) *callSession {
	attemptCtx, attemptCancel := context.WithCancel(ctx)
	sess := &callSession{
		call:           call,
		attemptCtx:     attemptCtx,
		attemptCancel:  attemptCancel,
		signalingReady: newFuture(),
		accepted:       newFuture(),
		connected:      newFuture(),
		outbox:         make(chan []webrtc.ICECandidateInit, outboxCapacity),
	}
	return sess
}

// enqueueBatch pushes a candidate batch onto the outbox, evicting the oldest
// batch if the sender has fallen far behind. Order among surviving batches
// is preserved.
func (s *callSession) enqueueBatch(batch []webrtc.ICECandidateInit) {
	for {
		select {
		case s.outbox <- batch:
			return
		default:
		}
		select {
		case <-s.outbox:
		default:
		}
	}
}

func (s *callSession) setTransport(t MediaTransport) {
	s.transportMu.Lock()
	defer s.transportMu.Unlock()
	s.transport = t
}

func (s *callSession) getTransport() MediaTransport {
	s.transportMu.Lock()
	defer s.transportMu.Unlock()
	return s.transport
}

// terminate tears the session down: pending waiters are released with an
// obsolescence error, the candidate pipeline stops, and the transport is
// closed. Safe to call more than once; only the first call acts.
func (s *callSession) terminate() error {
	var err error
	s.terminateOnce.Do(func() {
		obsolete := newObsolete("call %s terminated", s.call.identifiersForLog())
		s.signalingReady.reject(obsolete)
		s.accepted.reject(obsolete)
		s.connected.reject(obsolete)
		if s.batcher != nil {
			s.batcher.Stop()
		}
		s.attemptCancel()
		if t := s.getTransport(); t != nil {
			err = multierr.Combine(err, t.Close())
		}
		s.call.removeAllObservers()
	})
	return err
}
