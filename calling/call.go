package calling

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// A Call is the data model for one logical WebRTC backed voice/video session.
// Mutations happen only on the coordinator's run loop; accessors are safe to
// call from any goroutine.
type Call struct {
	// CallID is shared by both parties of the call and is stable across its
	// signaling exchange.
	CallID string

	// PeerID identifies this call's signaling session. It may differ between
	// the two legs of the same call.
	PeerID string

	// LocalID distinguishes calls locally (e.g. for notification actions)
	// and is never transmitted.
	LocalID uuid.UUID

	// ThreadID is the conversation this call belongs to.
	ThreadID string

	// OriginatorID is the participant that initiated the call.
	OriginatorID string

	Direction Direction

	mu                 sync.Mutex
	state              State
	isMuted            bool
	isOnHold           bool
	hasLocalVideo      bool
	remoteVideoEnabled bool
	connectedAt        time.Time
	err                error
	recordKind         RecordKind

	observersMu     sync.Mutex
	observers       map[int]Observer
	nextObserverKey int
}

// An Observer is notified of changes to a call. Notifications fire on the
// coordinator's run loop and must not block.
type Observer interface {
	StateDidChange(call *Call, state State)
	MuteDidChange(call *Call, isMuted bool)
	HoldDidChange(call *Call, isOnHold bool)
	LocalVideoDidChange(call *Call, enabled bool)
	RemoteVideoDidChange(call *Call, enabled bool)
}

func newCall(direction Direction, threadID, callID, originatorID, peerID string, state State) *Call {
	return &Call{
		CallID:       callID,
		PeerID:       peerID,
		LocalID:      uuid.New(),
		ThreadID:     threadID,
		OriginatorID: originatorID,
		Direction:    direction,
		state:        state,
		observers:    map[int]Observer{},
	}
}

func newOutgoingCall(threadID, originatorID string) *Call {
	return newCall(DirectionOutgoing, threadID, uuid.NewString(), originatorID, newSignalingID(), StateDialing)
}

func newIncomingCall(threadID, callID, originatorID, peerID string) *Call {
	return newCall(DirectionIncoming, threadID, callID, originatorID, peerID, StateAnswering)
}

// newSignalingID mints a fresh signaling session identifier for a call leg.
func newSignalingID() string {
	return uuid.NewString()
}

// State returns the call's current lifecycle state.
func (c *Call) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Terminated reports whether the call has reached a terminal state.
func (c *Call) Terminated() bool {
	return c.State().Terminal()
}

// ConnectedAt returns when the call first connected, or the zero time if it
// never has. It is set at most once and never cleared, even across
// reconnects.
func (c *Call) ConnectedAt() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connectedAt
}

// ConnectionDuration returns how long the call has been connected.
func (c *Call) ConnectionDuration() (time.Duration, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.connectedAt.IsZero() {
		return 0, errors.New("call never connected")
	}
	return time.Since(c.connectedAt), nil
}

// Err returns the failure that ended the call, if any.
func (c *Call) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// IsMuted reports whether local audio is muted.
func (c *Call) IsMuted() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.isMuted
}

// IsOnHold reports whether the call is on hold.
func (c *Call) IsOnHold() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.isOnHold
}

// HasLocalVideo reports whether local video is intended to stream.
func (c *Call) HasLocalVideo() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hasLocalVideo
}

// RemoteVideoEnabled reports whether the remote party has said it is
// streaming video.
func (c *Call) RemoteVideoEnabled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.remoteVideoEnabled
}

// identifiersForLog is a compact form of the call's three identifiers.
func (c *Call) identifiersForLog() string {
	return fmt.Sprintf("{%s, %s, %s}", c.CallID, c.LocalID, c.PeerID)
}

// setState moves the call to the given state, enforcing the transition
// graph. connectedAt is set on the first transition into StateConnected
// only.
func (c *Call) setState(to State) error {
	c.mu.Lock()
	from := c.state
	if !canTransition(from, to) {
		c.mu.Unlock()
		return &AssertionError{Reason: fmt.Sprintf("invalid call state transition %v -> %v for %s", from, to, c.identifiersForLog())}
	}
	c.state = to
	if to == StateConnected && c.connectedAt.IsZero() {
		c.connectedAt = time.Now()
	}
	c.mu.Unlock()

	c.eachObserver(func(o Observer) { o.StateDidChange(c, to) })
	return nil
}

// fail records the failure and forces the call into StateLocalFailure. If
// the call already reached a terminal state, only the error is recorded.
func (c *Call) fail(err error) {
	c.mu.Lock()
	if c.err == nil {
		c.err = err
	}
	if c.state.Terminal() {
		c.mu.Unlock()
		return
	}
	c.state = StateLocalFailure
	c.mu.Unlock()

	c.eachObserver(func(o Observer) { o.StateDidChange(c, StateLocalFailure) })
}

func (c *Call) setMuted(muted bool) {
	c.mu.Lock()
	c.isMuted = muted
	c.mu.Unlock()
	c.eachObserver(func(o Observer) { o.MuteDidChange(c, muted) })
}

func (c *Call) setOnHold(onHold bool) {
	c.mu.Lock()
	c.isOnHold = onHold
	c.mu.Unlock()
	c.eachObserver(func(o Observer) { o.HoldDidChange(c, onHold) })
}

func (c *Call) setLocalVideo(enabled bool) {
	c.mu.Lock()
	c.hasLocalVideo = enabled
	c.mu.Unlock()
	c.eachObserver(func(o Observer) { o.LocalVideoDidChange(c, enabled) })
}

func (c *Call) setRemoteVideoEnabled(enabled bool) {
	c.mu.Lock()
	c.remoteVideoEnabled = enabled
	c.mu.Unlock()
	c.eachObserver(func(o Observer) { o.RemoteVideoDidChange(c, enabled) })
}

func (c *Call) currentRecordKind() RecordKind {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.recordKind
}

func (c *Call) setRecordKind(kind RecordKind) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.recordKind = kind
}

// Observe registers an observer and returns a function that unregisters it.
// Observers are removed wholesale when the call terminates.
func (c *Call) Observe(o Observer) func() {
	c.observersMu.Lock()
	defer c.observersMu.Unlock()
	key := c.nextObserverKey
	c.nextObserverKey++
	c.observers[key] = o
	return func() {
		c.observersMu.Lock()
		defer c.observersMu.Unlock()
		delete(c.observers, key)
	}
}

func (c *Call) removeAllObservers() {
	c.observersMu.Lock()
	defer c.observersMu.Unlock()
	c.observers = map[int]Observer{}
}

func (c *Call) eachObserver(notify func(Observer)) {
	c.observersMu.Lock()
	observers := make([]Observer, 0, len(c.observers))
	for _, o := range c.observers {
		observers = append(observers, o)
	}
	c.observersMu.Unlock()
	for _, o := range observers {
		notify(o)
	}
}

// ObserverFuncs adapts a set of optional functions into an Observer.
type ObserverFuncs struct {
	OnState       func(call *Call, state State)
	OnMute        func(call *Call, isMuted bool)
	OnHold        func(call *Call, isOnHold bool)
	OnLocalVideo  func(call *Call, enabled bool)
	OnRemoteVideo func(call *Call, enabled bool)
}

// StateDidChange implements Observer.
func (f ObserverFuncs) StateDidChange(call *Call, state State) {
	if f.OnState != nil {
		f.OnState(call, state)
	}
}

// MuteDidChange implements Observer.
func (f ObserverFuncs) MuteDidChange(call *Call, isMuted bool) {
	if f.OnMute != nil {
		f.OnMute(call, isMuted)
	}
}

// HoldDidChange implements Observer.
func (f ObserverFuncs) HoldDidChange(call *Call, isOnHold bool) {
	if f.OnHold != nil {
		f.OnHold(call, isOnHold)
	}
}

// LocalVideoDidChange implements Observer.
func (f ObserverFuncs) LocalVideoDidChange(call *Call, enabled bool) {
	if f.OnLocalVideo != nil {
		f.OnLocalVideo(call, enabled)
	}
}

// RemoteVideoDidChange implements Observer.
func (f ObserverFuncs) RemoteVideoDidChange(call *Call, enabled bool) {
	if f.OnRemoteVideo != nil {
		f.OnRemoteVideo(call, enabled)
	}
}
