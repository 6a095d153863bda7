package calling

import (
	"context"
	"sync"
	"time"

	"github.com/edaniels/golog"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/viamrobotics/webrtc/v3"

	"github.com/forstalabs/relay"
)

// ErrCallInProgress is returned when starting a call while one is active.
var ErrCallInProgress = errors.New("a call is already in progress")

// controlSendTimeout bounds fire-and-forget control sends during teardown.
const controlSendTimeout = 10 * time.Second

// taskQueueSize is the run loop's task buffer. Overflow falls back to a
// short-lived goroutine per task, so the exact size only affects throughput.
const taskQueueSize = 64

type task struct {
	name string
	fn   func(ctx context.Context)
	done chan struct{}
}

// A Coordinator owns call lifecycle: it serializes all state mutation onto a
// single run loop, drives signaling and media setup for each call attempt,
// and enforces the at-most-one-active-call invariant via its Registry.
//
// Inbound signaling events (HandleOffer and friends) and user actions
// (StartOutgoingCall, AnswerCall, HangupCall) dispatch synchronously onto
// the run loop. Media transport callbacks dispatch asynchronously so that
// closing a transport from the loop can never deadlock against its own
// in-flight callbacks.
type Coordinator struct {
	localID    string
	signaling  SignalingChannel
	transports MediaTransportFactory
	registry   *Registry
	opts       coordinatorOptions
	logger     golog.Logger

	tasks chan *task
	loop  *relay.StoppableWorkers

	// closeCtx ends when Close begins; dynamically spawned workers (call
	// attempts, candidate senders) hang off it rather than the loop's
	// context so Close can drain them before stopping the loop.
	closeCtx        context.Context
	cancelBgWorkers func()
	bgWorkersMu     sync.RWMutex
	bgWorkers       sync.WaitGroup
}

// NewCoordinator wires a coordinator from its collaborators and starts its
// run loop. Call Close to release it.
func NewCoordinator(
	localID string,
	signaling SignalingChannel,
	transports MediaTransportFactory,
	logger golog.Logger,
	opts ...CoordinatorOption,
) *Coordinator {
	options := defaultCoordinatorOptions()
	for _, opt := range opts {
		opt(&options)
	}
	if options.directory == nil {
		options.directory = &selfOnlyDirectory{localID: localID}
	}
	if options.iceServers == nil {
		options.iceServers = StaticICEServers(DefaultICEServers...)
	}
	closeCtx, cancelBgWorkers := context.WithCancel(context.Background())
	c := &Coordinator{
		localID:         localID,
		signaling:       signaling,
		transports:      transports,
		registry:        NewRegistry(),
		opts:            options,
		logger:          logger,
		tasks:           make(chan *task, taskQueueSize),
		closeCtx:        closeCtx,
		cancelBgWorkers: cancelBgWorkers,
	}
	c.loop = relay.NewBackgroundStoppableWorkers(c.runLoop)
	return c
}

// CurrentCall returns the active call, or nil when idle.
func (c *Coordinator) CurrentCall() *Call {
	return c.registry.Current()
}

// Close ends any active call and shuts the coordinator down. No methods may
// be called after Close returns.
func (c *Coordinator) Close(ctx context.Context) error {
	if err := c.HangupCall(ctx); err != nil && !IsObsolete(err) {
		relay.UncheckedError(err)
	}
	c.bgWorkersMu.Lock()
	c.cancelBgWorkers()
	c.bgWorkersMu.Unlock()
	c.bgWorkers.Wait()
	c.loop.Stop()
	return nil
}

func (c *Coordinator) runLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case t := <-c.tasks:
			t.fn(ctx)
			close(t.done)
		}
	}
}

// do runs fn on the run loop and waits for it to finish.
func (c *Coordinator) do(ctx context.Context, name string, fn func(ctx context.Context)) error {
	t := &task{name: name, fn: fn, done: make(chan struct{})}
	loopCtx := c.loop.Context()
	select {
	case c.tasks <- t:
	case <-loopCtx.Done():
		return newObsolete("coordinator closed before %q could run", name)
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-t.done:
		return nil
	case <-loopCtx.Done():
		return newObsolete("coordinator closed while %q was queued", name)
	case <-ctx.Done():
		return ctx.Err()
	}
}

// enqueue dispatches fn onto the run loop without waiting. It never blocks
// the caller; if the task queue is full the handoff moves to a worker. Used
// for transport callbacks, which must be able to return while the loop is
// busy (possibly closing the very transport that fired them).
func (c *Coordinator) enqueue(name string, fn func(ctx context.Context)) {
	t := &task{name: name, fn: fn, done: make(chan struct{})}
	select {
	case c.tasks <- t:
		return
	default:
	}
	c.startWorker(func(ctx context.Context) {
		select {
		case c.tasks <- t:
		case <-ctx.Done():
		}
	})
}

// startWorker spawns a background goroutine tied to closeCtx. Unlike
// StoppableWorkers.Add, it is safe to call from within another worker.
func (c *Coordinator) startWorker(f func(ctx context.Context)) {
	c.bgWorkersMu.RLock()
	if c.closeCtx.Err() != nil {
		c.bgWorkersMu.RUnlock()
		return
	}
	c.bgWorkers.Add(1)
	c.bgWorkersMu.RUnlock()
	relay.PanicCapturingGo(func() {
		defer c.bgWorkers.Done()
		f(c.closeCtx)
	})
}

// StartOutgoingCall begins a new outgoing call on the given thread. It
// returns as soon as the call is registered and dialing; progress is
// observable on the returned Call.
func (c *Coordinator) StartOutgoingCall(ctx context.Context, threadID string) (*Call, error) {
	var call *Call
	var startErr error
	if err := c.do(ctx, "start outgoing call", func(loopCtx context.Context) {
		if existing := c.registry.Current(); existing != nil {
			startErr = ErrCallInProgress
			return
		}
		call = newOutgoingCall(threadID, c.localID)
		sess := newCallSession(c.closeCtx, call)
		sess.batcher = c.newBatcherFor(sess)
		c.registry.setSession(sess)
		c.recordStart(loopCtx, call, RecordOutgoingIncomplete)
		c.startWorker(func(workerCtx context.Context) { c.runCandidateSender(workerCtx, sess) })
		c.startWorker(func(workerCtx context.Context) { c.runOutgoingAttempt(workerCtx, sess) })
	}); err != nil {
		return nil, err
	}
	if startErr != nil {
		return nil, startErr
	}
	return call, nil
}

// HandleOffer processes an inbound call offer from the signaling channel.
func (c *Coordinator) HandleOffer(ctx context.Context, offer Offer) error {
	return c.do(ctx, "handle offer", func(loopCtx context.Context) {
		c.handleOffer(loopCtx, offer)
	})
}

func (c *Coordinator) handleOffer(ctx context.Context, offer Offer) {
	if existing := c.registry.session(); existing != nil {
		cur := existing.call
		if cur.CallID == offer.CallID {
			if cur.Direction == DirectionIncoming {
				// retransmitted offer for the call we already ring for
				c.logger.Debugw("ignoring duplicate offer", "call", cur.identifiersForLog())
				return
			}
			switch cur.State() {
			case StateDialing, StateRemoteRinging:
				// glare: both parties dialed each other; resolve it by
				// having both sides observe busy
				c.sendControlAsync(offer.ThreadID, &CallBusy{PeerID: offer.PeerID})
				c.promoteIncompleteRecord(ctx, cur)
				relay.UncheckedError(cur.setState(StateRemoteBusy))
				c.opts.ui.RemoteBusy(cur)
				c.terminate(ctx, existing)
			default:
				c.logger.Debugw("ignoring offer for call already past signaling",
					"call", cur.identifiersForLog(), "state", cur.State())
			}
			return
		}
		// busy: reject the new offer and leave the active call untouched
		c.sendControlAsync(offer.ThreadID, &CallBusy{PeerID: offer.PeerID})
		c.recordMissedOffer(ctx, offer)
		return
	}

	call := newIncomingCall(offer.ThreadID, offer.CallID, offer.OriginatorID, offer.PeerID)
	sess := newCallSession(c.closeCtx, call)
	sess.batcher = c.newBatcherFor(sess)
	c.registry.setSession(sess)
	c.recordStart(ctx, call, RecordIncomingIncomplete)

	if err := c.opts.ui.ReportIncomingCall(call); err != nil {
		c.logger.Infow("incoming call refused by platform", "call", call.identifiersForLog(), "error", err)
		c.declineSession(ctx, sess)
		return
	}
	relay.UncheckedError(call.setState(StateLocalRinging))
	remoteOffer := offer.SessionDescription
	c.startWorker(func(workerCtx context.Context) { c.runCandidateSender(workerCtx, sess) })
	c.startWorker(func(workerCtx context.Context) { c.runIncomingAttempt(workerCtx, sess, remoteOffer) })
}

// recordMissedOffer notes a call we rejected as busy in call history so the
// user still sees they were called.
func (c *Coordinator) recordMissedOffer(ctx context.Context, offer Offer) {
	rejected := newIncomingCall(offer.ThreadID, offer.CallID, offer.OriginatorID, offer.PeerID)
	rejected.setRecordKind(RecordMissed)
	if err := c.opts.recorder.RecordCall(ctx, CallRecord{
		ID:           rejected.LocalID,
		ThreadID:     offer.ThreadID,
		CallID:       offer.CallID,
		OriginatorID: offer.OriginatorID,
		Kind:         RecordMissed,
		CreatedAt:    time.Now(),
	}); err != nil {
		c.logger.Errorw("failed to record missed call", "error", err)
	}
	c.opts.ui.MissedCall(rejected)
}

// HandleAnswer processes an inbound answer to an offer we sent.
func (c *Coordinator) HandleAnswer(ctx context.Context, answer AcceptOffer) error {
	return c.do(ctx, "handle answer", func(loopCtx context.Context) {
		sess := c.registry.session()
		if sess == nil || sess.call.CallID != answer.CallID {
			c.logger.Debugw("ignoring answer for unknown call", "callId", answer.CallID)
			return
		}
		call := sess.call
		if call.Direction != DirectionOutgoing {
			c.logger.Debugw("ignoring answer for incoming call", "call", call.identifiersForLog())
			return
		}
		switch call.State() {
		case StateDialing, StateRemoteRinging:
		default:
			// a second device answered, or the answer was retransmitted
			c.logger.Debugw("ignoring answer in state", "state", call.State(), "call", call.identifiersForLog())
			return
		}
		t := sess.getTransport()
		if t == nil {
			c.logger.Debugw("answer arrived before transport setup finished", "call", call.identifiersForLog())
			return
		}
		desc := webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: answer.SessionDescription}
		if err := t.SetRemoteDescription(loopCtx, desc); err != nil {
			c.handleFailedCall(loopCtx, sess, asCallError(err))
			return
		}
		c.markRemoteReady(loopCtx, sess)
		c.opts.ui.RecipientAcceptedCall(call)
	})
}

// HandleRemoteCandidates processes an inbound batch of remote candidates.
// Candidates arriving before the remote description is applied are buffered
// and drained in order once it is.
func (c *Coordinator) HandleRemoteCandidates(ctx context.Context, batch IceCandidates) error {
	return c.do(ctx, "handle remote candidates", func(loopCtx context.Context) {
		sess := c.registry.session()
		if sess == nil || sess.call.CallID != batch.CallID {
			c.logger.Debugw("ignoring candidates for unknown call", "callId", batch.CallID)
			return
		}
		cands := make([]webrtc.ICECandidateInit, 0, len(batch.Candidates))
		for _, cand := range batch.Candidates {
			cands = append(cands, cand.init())
		}
		if !sess.remoteReady {
			sess.pendingRemote = append(sess.pendingRemote, cands...)
			return
		}
		c.addRemoteCandidates(loopCtx, sess, cands)
	})
}

func (c *Coordinator) addRemoteCandidates(ctx context.Context, sess *callSession, cands []webrtc.ICECandidateInit) {
	t := sess.getTransport()
	if t == nil {
		sess.pendingRemote = append(sess.pendingRemote, cands...)
		return
	}
	for _, cand := range cands {
		if err := t.AddRemoteCandidate(ctx, cand); err != nil {
			// one bad candidate should not sink the call
			c.logger.Debugw("failed to add remote candidate", "error", err)
		}
	}
}

// markRemoteReady flips the session to direct candidate delivery and drains
// anything buffered while the remote description was pending.
func (c *Coordinator) markRemoteReady(ctx context.Context, sess *callSession) {
	sess.remoteReady = true
	if len(sess.pendingRemote) == 0 {
		return
	}
	pending := sess.pendingRemote
	sess.pendingRemote = nil
	c.addRemoteCandidates(ctx, sess, pending)
}

// HandleLeave processes an inbound hangup. Leaves for unknown or already
// terminated calls are no-ops.
func (c *Coordinator) HandleLeave(ctx context.Context, leave Leave) error {
	return c.do(ctx, "handle leave", func(loopCtx context.Context) {
		sess := c.registry.session()
		if sess == nil || sess.call.CallID != leave.CallID {
			c.logger.Debugw("ignoring leave for unknown call", "callId", leave.CallID)
			return
		}
		c.handleRemoteHangup(loopCtx, sess)
	})
}

func (c *Coordinator) handleRemoteHangup(ctx context.Context, sess *callSession) {
	call := sess.call
	if call.Terminated() {
		c.terminate(ctx, sess)
		return
	}
	if call.Direction == DirectionIncoming {
		switch call.State() {
		case StateAnswering, StateLocalRinging:
			c.promoteRecord(ctx, call, RecordMissed)
			c.opts.ui.MissedCall(call)
		}
	} else {
		c.promoteIncompleteRecord(ctx, call)
	}
	relay.UncheckedError(call.setState(StateRemoteHangup))
	c.opts.ui.RemoteDidHangupCall(call)
	c.terminate(ctx, sess)
}

// HandleRemoteBusy processes an inbound busy signal for a call we placed.
func (c *Coordinator) HandleRemoteBusy(ctx context.Context, busy Busy) error {
	return c.do(ctx, "handle remote busy", func(loopCtx context.Context) {
		sess := c.registry.session()
		if sess == nil {
			c.logger.Debugw("ignoring busy with no active call", "peerId", busy.PeerID)
			return
		}
		call := sess.call
		if call.Direction != DirectionOutgoing {
			return
		}
		if busy.PeerID != "" && busy.PeerID != call.PeerID {
			c.logger.Debugw("ignoring busy for stale peer", "peerId", busy.PeerID, "call", call.identifiersForLog())
			return
		}
		switch call.State() {
		case StateDialing, StateRemoteRinging:
		default:
			// another of the callee's devices already answered
			return
		}
		c.promoteIncompleteRecord(loopCtx, call)
		relay.UncheckedError(call.setState(StateRemoteBusy))
		c.opts.ui.RemoteBusy(call)
		c.terminate(loopCtx, sess)
	})
}

// AnswerCall accepts the ringing incoming call with the given local ID.
func (c *Coordinator) AnswerCall(ctx context.Context, localID uuid.UUID) error {
	var answerErr error
	if err := c.do(ctx, "answer call", func(loopCtx context.Context) {
		sess := c.registry.session()
		if sess == nil || sess.call.Direction != DirectionIncoming || sess.call.LocalID != localID {
			answerErr = newObsolete("no incoming call %s to answer", localID)
			return
		}
		switch sess.call.State() {
		case StateAnswering, StateLocalRinging:
			sess.accepted.resolve()
		case StateConnected:
			// duplicate accept
		default:
			answerErr = newObsolete("call %s no longer answerable", sess.call.identifiersForLog())
		}
	}); err != nil {
		return err
	}
	return answerErr
}

// DeclineCall rejects the ringing incoming call with the given local ID.
func (c *Coordinator) DeclineCall(ctx context.Context, localID uuid.UUID) error {
	var declineErr error
	if err := c.do(ctx, "decline call", func(loopCtx context.Context) {
		sess := c.registry.session()
		if sess == nil || sess.call.Direction != DirectionIncoming || sess.call.LocalID != localID {
			declineErr = newObsolete("no incoming call %s to decline", localID)
			return
		}
		c.declineSession(loopCtx, sess)
	}); err != nil {
		return err
	}
	return declineErr
}

func (c *Coordinator) declineSession(ctx context.Context, sess *callSession) {
	call := sess.call
	c.promoteRecord(ctx, call, RecordDeclined)
	c.sendControlAsync(call.ThreadID, &CallLeave{CallID: call.CallID, Originator: call.OriginatorID})
	relay.UncheckedError(call.setState(StateLocalHangup))
	c.terminate(ctx, sess)
}

// HangupCall ends the active call, if any. Hanging up with no active call is
// a no-op.
func (c *Coordinator) HangupCall(ctx context.Context) error {
	return c.do(ctx, "hangup call", func(loopCtx context.Context) {
		sess := c.registry.session()
		if sess == nil {
			return
		}
		c.hangupSession(loopCtx, sess)
	})
}

func (c *Coordinator) hangupSession(ctx context.Context, sess *callSession) {
	call := sess.call
	if call.Terminated() {
		c.terminate(ctx, sess)
		return
	}
	c.promoteIncompleteRecord(ctx, call)
	if sess.connected.resolved() {
		// tell the peer in band first so the hangup beats signaling latency
		if data, err := encodeDataMessage(dataMessage{Hangup: &dataHangup{ID: call.CallID}}); err == nil {
			if t := sess.getTransport(); t != nil {
				relay.UncheckedError(t.SendDataMessage(data))
			}
		}
	}
	c.sendControlAsync(call.ThreadID, &CallLeave{CallID: call.CallID, Originator: call.OriginatorID})
	relay.UncheckedError(call.setState(StateLocalHangup))
	c.terminate(ctx, sess)
}

// SetMuted mutes or unmutes local audio on the active call.
func (c *Coordinator) SetMuted(ctx context.Context, muted bool) error {
	var opErr error
	if err := c.do(ctx, "set muted", func(loopCtx context.Context) {
		sess := c.registry.session()
		if sess == nil {
			opErr = newObsolete("no active call to mute")
			return
		}
		sess.call.setMuted(muted)
		c.applyAudioState(sess)
	}); err != nil {
		return err
	}
	return opErr
}

// SetOnHold places the active call on or off hold. Hold silences both
// directions of audio until released.
func (c *Coordinator) SetOnHold(ctx context.Context, onHold bool) error {
	var opErr error
	if err := c.do(ctx, "set on hold", func(loopCtx context.Context) {
		sess := c.registry.session()
		if sess == nil {
			opErr = newObsolete("no active call to hold")
			return
		}
		sess.call.setOnHold(onHold)
		c.applyAudioState(sess)
	}); err != nil {
		return err
	}
	return opErr
}

// SetLocalVideo starts or stops streaming local video on the active call and
// notifies the remote party in band.
func (c *Coordinator) SetLocalVideo(ctx context.Context, enabled bool) error {
	var opErr error
	if err := c.do(ctx, "set local video", func(loopCtx context.Context) {
		sess := c.registry.session()
		if sess == nil {
			opErr = newObsolete("no active call for video")
			return
		}
		call := sess.call
		call.setLocalVideo(enabled)
		t := sess.getTransport()
		if t == nil {
			return
		}
		t.SetVideoEnabled(enabled)
		if sess.connected.resolved() {
			c.sendSessionData(sess, dataMessage{
				VideoStreamingStatus: &dataVideoStreamingStatus{ID: call.CallID, Enabled: enabled},
			})
		}
	}); err != nil {
		return err
	}
	return opErr
}

func (c *Coordinator) newBatcherFor(sess *callSession) *iceBatcher {
	return newICEBatcher(c.opts.iceBatchThreshold, c.opts.iceBatchDebounce, sess.enqueueBatch)
}

func (c *Coordinator) mediaEventsFor(sess *callSession) MediaEvents {
	return MediaEvents{
		ConnectivityEstablished: func() {
			c.enqueue("media connected", func(ctx context.Context) { c.connectCall(ctx, sess) })
		},
		ConnectivityLost: func() {
			c.enqueue("media lost", func(ctx context.Context) { c.handleMediaLost(ctx, sess) })
		},
		ConnectivityFailed: func() {
			c.failCall(sess, ErrDisconnected)
		},
		LocalCandidate: func(cand webrtc.ICECandidateInit) {
			sess.batcher.Add(cand)
		},
		DataMessage: func(data []byte) {
			c.enqueue("data message", func(ctx context.Context) { c.handleDataMessage(ctx, sess, data) })
		},
	}
}

// runOutgoingAttempt drives one outgoing call from transport setup through
// connection or failure. It runs on its own worker; every step re-checks the
// session is still current before acting.
func (c *Coordinator) runOutgoingAttempt(ctx context.Context, sess *callSession) {
	timeoutCtx, cancel := context.WithTimeout(ctx, c.opts.connectTimeout)
	defer cancel()

	if err := c.setupTransportAndOffer(ctx, sess); err != nil {
		c.failCall(sess, asCallError(err))
		return
	}
	c.awaitConnected(ctx, timeoutCtx, sess)
}

func (c *Coordinator) setupTransportAndOffer(ctx context.Context, sess *callSession) error {
	call := sess.call

	transport, err := c.buildTransport(ctx, sess)
	if err != nil {
		return err
	}

	offer, err := transport.CreateOffer(ctx)
	if err != nil {
		return err
	}
	if err := transport.SetLocalDescription(ctx, offer); err != nil {
		return err
	}

	participants, err := c.opts.directory.Participants(ctx, call.ThreadID)
	if err != nil {
		return errors.Wrap(err, "resolving thread participants")
	}
	msg := &CallOffer{
		CallID:     call.CallID,
		Members:    participants,
		Originator: call.OriginatorID,
		PeerID:     call.PeerID,
		Offer:      SessionDescriptionPayload{Type: "offer", SDP: offer.SDP},
	}
	if err := c.signaling.SendControl(ctx, call.ThreadID, msg); err != nil {
		return errors.Wrap(err, "sending call offer")
	}
	if err := c.checkStillCurrent(sess, "offer sent"); err != nil {
		return err
	}

	// candidates may flow now that the remote knows about the call
	sess.signalingReady.resolve()

	return c.do(ctx, "offer delivered", func(loopCtx context.Context) {
		if !c.registry.isCurrent(sess) {
			return
		}
		if call.State() == StateDialing {
			relay.UncheckedError(call.setState(StateRemoteRinging))
		}
	})
}

// runIncomingAttempt drives one incoming call: transport setup, then waiting
// for the local user to accept, then answering and connecting. The connect
// timeout spans ringing and connecting together.
func (c *Coordinator) runIncomingAttempt(ctx context.Context, sess *callSession, remoteOffer string) {
	timeoutCtx, cancel := context.WithTimeout(ctx, c.opts.connectTimeout)
	defer cancel()

	if _, err := c.buildTransport(ctx, sess); err != nil {
		c.failCall(sess, asCallError(err))
		return
	}

	if err := sess.accepted.wait(timeoutCtx); err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			c.failCall(sess, &TimeoutError{Reason: "not answered within " + c.opts.connectTimeout.String()})
		}
		return
	}
	if err := c.sendAnswer(ctx, sess, remoteOffer); err != nil {
		c.failCall(sess, asCallError(err))
		return
	}
	c.awaitConnected(ctx, timeoutCtx, sess)
}

// buildTransport fetches ICE servers, creates the transport, and installs it
// on the session via the run loop. The returned transport is already closed
// if installation found the session superseded.
func (c *Coordinator) buildTransport(ctx context.Context, sess *callSession) (MediaTransport, error) {
	servers, err := relay.RetryNTimes(func() ([]webrtc.ICEServer, error) {
		return c.opts.iceServers.ICEServers(ctx)
	}, c.opts.iceFetchAttempts)
	if err != nil {
		return nil, errors.Wrap(err, "fetching ice servers")
	}
	if err := c.checkStillCurrent(sess, "ice servers fetched"); err != nil {
		return nil, err
	}

	transport, err := c.transports.NewTransport(ctx, servers, c.mediaEventsFor(sess))
	if err != nil {
		return nil, errors.Wrap(err, "creating media transport")
	}

	var installErr error
	if err := c.do(ctx, "install transport", func(loopCtx context.Context) {
		if !c.registry.isCurrent(sess) || sess.attemptCtx.Err() != nil {
			installErr = newObsolete("call %s superseded before transport install", sess.call.identifiersForLog())
			return
		}
		sess.setTransport(transport)
	}); err != nil {
		installErr = err
	}
	if installErr != nil {
		relay.UncheckedError(transport.Close())
		return nil, installErr
	}
	return transport, nil
}

func (c *Coordinator) sendAnswer(ctx context.Context, sess *callSession, remoteOffer string) error {
	call := sess.call
	t := sess.getTransport()
	if t == nil {
		return &AssertionError{Reason: "answering call " + call.identifiersForLog() + " with no transport"}
	}

	offerDesc := webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: remoteOffer}
	answer, err := t.Negotiate(ctx, offerDesc)
	if err != nil {
		return err
	}
	if err := t.SetLocalDescription(ctx, answer); err != nil {
		return err
	}
	if err := c.do(ctx, "remote offer applied", func(loopCtx context.Context) {
		if !c.registry.isCurrent(sess) {
			return
		}
		c.markRemoteReady(loopCtx, sess)
	}); err != nil {
		return err
	}

	participants, err := c.opts.directory.Participants(ctx, call.ThreadID)
	if err != nil {
		return errors.Wrap(err, "resolving thread participants")
	}
	msg := &CallAcceptOffer{
		CallID:     call.CallID,
		Members:    participants,
		Originator: call.OriginatorID,
		PeerID:     call.PeerID,
		Answer:     SessionDescriptionPayload{Type: "answer", SDP: answer.SDP},
	}
	if err := c.signaling.SendControl(ctx, call.ThreadID, msg); err != nil {
		return errors.Wrap(err, "sending call answer")
	}
	if err := c.checkStillCurrent(sess, "answer sent"); err != nil {
		return err
	}
	sess.signalingReady.resolve()
	return nil
}

// awaitConnected blocks until the session connects, times out, or becomes
// obsolete. Only the timeout produces a user visible failure; obsolescence
// means a teardown path already ran.
func (c *Coordinator) awaitConnected(ctx, timeoutCtx context.Context, sess *callSession) {
	err := sess.connected.wait(timeoutCtx)
	if err == nil {
		return
	}
	if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
		c.failCall(sess, &TimeoutError{Reason: "no connection within " + c.opts.connectTimeout.String()})
		return
	}
	if IsObsolete(err) || ctx.Err() != nil {
		return
	}
	c.failCall(sess, asCallError(err))
}

// checkStillCurrent guards a worker resuming after a suspension point.
func (c *Coordinator) checkStillCurrent(sess *callSession, at string) error {
	if !c.registry.isCurrent(sess) || sess.attemptCtx.Err() != nil {
		return newObsolete("call %s superseded at %q", sess.call.identifiersForLog(), at)
	}
	return nil
}

// runCandidateSender forwards batched local candidates to the signaling
// channel, strictly after the offer or answer has been sent, in gathering
// order.
func (c *Coordinator) runCandidateSender(ctx context.Context, sess *callSession) {
	if err := sess.signalingReady.wait(ctx); err != nil {
		return
	}
	call := sess.call
	for {
		select {
		case <-ctx.Done():
			return
		case <-sess.attemptCtx.Done():
			return
		case batch := <-sess.outbox:
			if !c.registry.isCurrent(sess) {
				return
			}
			payloads := make([]ICECandidatePayload, 0, len(batch))
			for _, cand := range batch {
				payloads = append(payloads, candidatePayload(cand))
			}
			msg := &CallICECandidates{
				CallID:     call.CallID,
				PeerID:     call.PeerID,
				Originator: call.OriginatorID,
				Candidates: payloads,
			}
			if err := c.signaling.SendControl(ctx, call.ThreadID, msg); err != nil {
				c.failCall(sess, asCallError(errors.Wrap(err, "sending ice candidates")))
				return
			}
		}
	}
}

// connectCall moves the session's call to StateConnected. It is idempotent;
// both the ICE connectivity callback and the peer's in-band connected
// message land here.
func (c *Coordinator) connectCall(ctx context.Context, sess *callSession) {
	if !c.registry.isCurrent(sess) {
		return
	}
	call := sess.call
	switch call.State() {
	case StateConnected:
		return
	case StateAnswering:
		// connectivity before the user was even alerted just promotes to
		// ringing; Connected waits for the local answer
		relay.UncheckedError(call.setState(StateLocalRinging))
		return
	case StateLocalFailure, StateLocalHangup, StateRemoteHangup, StateRemoteBusy:
		return
	}
	if err := call.setState(StateConnected); err != nil {
		c.handleFailedCall(ctx, sess, err)
		return
	}
	sess.connected.resolve()

	switch call.currentRecordKind() {
	case RecordOutgoingIncomplete:
		c.promoteRecord(ctx, call, RecordOutgoing)
	case RecordIncomingIncomplete:
		c.promoteRecord(ctx, call, RecordIncoming)
	}

	c.applyAudioState(sess)
	if t := sess.getTransport(); t != nil {
		t.SetVideoEnabled(call.HasLocalVideo())
	}
	c.sendSessionData(sess, dataMessage{Connected: &dataConnected{ID: call.CallID}})

	c.logger.Infow("call connected", "call", call.identifiersForLog(), "direction", call.Direction)
}

func (c *Coordinator) handleMediaLost(ctx context.Context, sess *callSession) {
	if !c.registry.isCurrent(sess) {
		return
	}
	call := sess.call
	if call.State() != StateConnected {
		// pre-connect loss shows up as failure or timeout instead
		c.logger.Debugw("media lost before connection", "call", call.identifiersForLog(), "state", call.State())
		return
	}
	c.logger.Infow("call media interrupted", "call", call.identifiersForLog())
	relay.UncheckedError(call.setState(StateReconnecting))
	c.applyAudioState(sess)
}

func (c *Coordinator) handleDataMessage(ctx context.Context, sess *callSession, data []byte) {
	if !c.registry.isCurrent(sess) {
		return
	}
	call := sess.call
	msg, err := decodeDataMessage(data)
	if err != nil {
		c.logger.Debugw("dropping undecodable data channel message", "error", err)
		return
	}
	switch {
	case msg.Connected != nil:
		if msg.Connected.ID != call.CallID {
			c.logger.Debugw("connected message for wrong call", "id", msg.Connected.ID)
			return
		}
		c.connectCall(ctx, sess)
	case msg.Hangup != nil:
		if msg.Hangup.ID != call.CallID {
			c.logger.Debugw("hangup message for wrong call", "id", msg.Hangup.ID)
			return
		}
		c.handleRemoteHangup(ctx, sess)
	case msg.VideoStreamingStatus != nil:
		if msg.VideoStreamingStatus.ID != call.CallID {
			return
		}
		call.setRemoteVideoEnabled(msg.VideoStreamingStatus.Enabled)
	}
}

// failCall routes a failure from any goroutine onto the run loop.
func (c *Coordinator) failCall(sess *callSession, err error) {
	c.enqueue("fail call", func(ctx context.Context) {
		c.handleFailedCall(ctx, sess, err)
	})
}

func (c *Coordinator) handleFailedCall(ctx context.Context, sess *callSession, err error) {
	call := sess.call
	if IsObsolete(err) {
		c.logger.Debugw("ignoring failure for obsolete call", "call", call.identifiersForLog(), "error", err)
		return
	}
	if !c.registry.isCurrent(sess) {
		c.logger.Debugw("ignoring failure for superseded call", "call", call.identifiersForLog(), "error", err)
		return
	}
	if IsAssertion(err) {
		c.logger.Errorw("call failed on invariant violation", "call", call.identifiersForLog(), "error", err)
	} else {
		c.logger.Infow("call failed", "call", call.identifiersForLog(), "error", err)
	}

	if call.Direction == DirectionIncoming {
		switch call.State() {
		case StateAnswering, StateLocalRinging:
			c.promoteRecord(ctx, call, RecordMissed)
			c.opts.ui.MissedCall(call)
		}
	} else {
		c.promoteIncompleteRecord(ctx, call)
	}
	call.fail(err)
	c.opts.ui.FailCall(call, err)
	c.terminate(ctx, sess)
}

// terminate tears down a session and vacates the registry slot if it still
// holds it. DidTerminateCall fires at most once per call.
func (c *Coordinator) terminate(ctx context.Context, sess *callSession) {
	cleared := c.registry.clear(sess)
	relay.UncheckedError(relay.FilterOutError(sess.terminate(), context.Canceled))
	if cleared {
		c.opts.ui.DidTerminateCall(sess.call)
	}
}

// applyAudioState derives whether audio should flow from the call's state
// and flags. Audio flows only while connected, unmuted, and off hold.
func (c *Coordinator) applyAudioState(sess *callSession) {
	t := sess.getTransport()
	if t == nil {
		return
	}
	call := sess.call
	enabled := call.State() == StateConnected && !call.IsMuted() && !call.IsOnHold()
	t.SetAudioEnabled(enabled)
}

func (c *Coordinator) sendSessionData(sess *callSession, msg dataMessage) {
	t := sess.getTransport()
	if t == nil {
		return
	}
	data, err := encodeDataMessage(msg)
	if err != nil {
		c.logger.Errorw("failed to encode data channel message", "error", err)
		return
	}
	relay.UncheckedError(t.SendDataMessage(data))
}

// sendControlAsync fires a control message without blocking the run loop.
// Delivery failures are logged only; these are best effort notifications.
func (c *Coordinator) sendControlAsync(threadID string, msg ControlMessage) {
	c.startWorker(func(ctx context.Context) {
		sendCtx, cancel := context.WithTimeout(ctx, controlSendTimeout)
		defer cancel()
		relay.UncheckedError(c.signaling.SendControl(sendCtx, threadID, msg))
	})
}

func (c *Coordinator) recordStart(ctx context.Context, call *Call, kind RecordKind) {
	call.setRecordKind(kind)
	if err := c.opts.recorder.RecordCall(ctx, CallRecord{
		ID:           call.LocalID,
		ThreadID:     call.ThreadID,
		CallID:       call.CallID,
		OriginatorID: call.OriginatorID,
		Kind:         kind,
		CreatedAt:    time.Now(),
	}); err != nil {
		c.logger.Errorw("failed to record call start", "call", call.identifiersForLog(), "error", err)
	}
}

func (c *Coordinator) promoteRecord(ctx context.Context, call *Call, kind RecordKind) {
	call.setRecordKind(kind)
	if err := c.opts.recorder.UpdateRecord(ctx, call.LocalID, kind); err != nil {
		c.logger.Errorw("failed to update call record", "call", call.identifiersForLog(), "error", err)
	}
}

// promoteIncompleteRecord resolves an incomplete record for a call that
// ended without connecting.
func (c *Coordinator) promoteIncompleteRecord(ctx context.Context, call *Call) {
	switch call.currentRecordKind() {
	case RecordOutgoingIncomplete:
		c.promoteRecord(ctx, call, RecordOutgoingMissed)
	case RecordIncomingIncomplete:
		c.promoteRecord(ctx, call, RecordDeclined)
	}
}
