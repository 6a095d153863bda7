package calling

import (
	"testing"

	"go.viam.com/test"
)

func TestStateTransitions(t *testing.T) {
	allStates := []State{
		StateIdle, StateDialing, StateRemoteRinging, StateAnswering,
		StateLocalRinging, StateConnected, StateReconnecting,
		StateLocalFailure, StateLocalHangup, StateRemoteHangup, StateRemoteBusy,
	}

	t.Run("progress transitions", func(t *testing.T) {
		test.That(t, canTransition(StateDialing, StateRemoteRinging), test.ShouldBeTrue)
		test.That(t, canTransition(StateDialing, StateConnected), test.ShouldBeTrue)
		test.That(t, canTransition(StateRemoteRinging, StateConnected), test.ShouldBeTrue)
		test.That(t, canTransition(StateAnswering, StateLocalRinging), test.ShouldBeTrue)
		test.That(t, canTransition(StateAnswering, StateConnected), test.ShouldBeTrue)
		test.That(t, canTransition(StateLocalRinging, StateConnected), test.ShouldBeTrue)
		test.That(t, canTransition(StateConnected, StateReconnecting), test.ShouldBeTrue)
		test.That(t, canTransition(StateReconnecting, StateConnected), test.ShouldBeTrue)
	})

	t.Run("invalid progress transitions", func(t *testing.T) {
		test.That(t, canTransition(StateDialing, StateLocalRinging), test.ShouldBeFalse)
		test.That(t, canTransition(StateRemoteRinging, StateDialing), test.ShouldBeFalse)
		test.That(t, canTransition(StateConnected, StateDialing), test.ShouldBeFalse)
		test.That(t, canTransition(StateReconnecting, StateRemoteRinging), test.ShouldBeFalse)
		test.That(t, canTransition(StateLocalRinging, StateAnswering), test.ShouldBeFalse)
	})

	t.Run("any non-terminal state can end", func(t *testing.T) {
		for _, from := range allStates {
			if from.Terminal() {
				continue
			}
			test.That(t, canTransition(from, StateLocalHangup), test.ShouldBeTrue)
			test.That(t, canTransition(from, StateRemoteHangup), test.ShouldBeTrue)
			test.That(t, canTransition(from, StateLocalFailure), test.ShouldBeTrue)
		}
	})

	t.Run("terminal states are final", func(t *testing.T) {
		for _, from := range allStates {
			if !from.Terminal() {
				continue
			}
			for _, to := range allStates {
				test.That(t, canTransition(from, to), test.ShouldBeFalse)
			}
		}
	})

	t.Run("remote busy only while unanswered outgoing", func(t *testing.T) {
		test.That(t, canTransition(StateDialing, StateRemoteBusy), test.ShouldBeTrue)
		test.That(t, canTransition(StateRemoteRinging, StateRemoteBusy), test.ShouldBeTrue)
		test.That(t, canTransition(StateConnected, StateRemoteBusy), test.ShouldBeFalse)
		test.That(t, canTransition(StateLocalRinging, StateRemoteBusy), test.ShouldBeFalse)
	})
}

func TestStateString(t *testing.T) {
	test.That(t, StateDialing.String(), test.ShouldEqual, "dialing")
	test.That(t, StateRemoteBusy.String(), test.ShouldEqual, "remote_busy")
	test.That(t, State(99).String(), test.ShouldEqual, "unknown")
	test.That(t, DirectionOutgoing.String(), test.ShouldEqual, "outgoing")
	test.That(t, DirectionIncoming.String(), test.ShouldEqual, "incoming")
}
