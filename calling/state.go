package calling

// State describes where a call is in its lifecycle.
type State int

// The states a call moves through. StateIdle is implicit; a constructed Call
// always starts in StateDialing (outgoing) or StateAnswering (incoming).
const (
	StateIdle State = iota
	StateDialing
	StateRemoteRinging
	StateAnswering
	StateLocalRinging
	StateConnected
	StateReconnecting
	StateLocalFailure
	StateLocalHangup
	StateRemoteHangup
	StateRemoteBusy
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateDialing:
		return "dialing"
	case StateRemoteRinging:
		return "remote_ringing"
	case StateAnswering:
		return "answering"
	case StateLocalRinging:
		return "local_ringing"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	case StateLocalFailure:
		return "local_failure"
	case StateLocalHangup:
		return "local_hangup"
	case StateRemoteHangup:
		return "remote_hangup"
	case StateRemoteBusy:
		return "remote_busy"
	default:
		return "unknown"
	}
}

// Terminal reports whether no transitions leave this state. A fresh Call is
// required to continue after reaching a terminal state.
func (s State) Terminal() bool {
	switch s {
	case StateLocalFailure, StateLocalHangup, StateRemoteHangup, StateRemoteBusy:
		return true
	default:
		return false
	}
}

// validNextStates is the allowed transition graph. Every state can
// additionally move to any terminal state via hangup/failure; see
// canTransition.
var validNextStates = map[State][]State{
	StateDialing:       {StateRemoteRinging, StateConnected},
	StateRemoteRinging: {StateConnected},
	StateAnswering:     {StateLocalRinging, StateConnected},
	StateLocalRinging:  {StateConnected},
	StateConnected:     {StateReconnecting},
	StateReconnecting:  {StateConnected},
}

func canTransition(from, to State) bool {
	if from.Terminal() {
		return false
	}
	switch to {
	case StateLocalHangup, StateRemoteHangup, StateLocalFailure:
		return true
	case StateRemoteBusy:
		return from == StateDialing || from == StateRemoteRinging
	}
	for _, next := range validNextStates[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Direction distinguishes who initiated a call.
type Direction int

// The two call directions.
const (
	DirectionOutgoing Direction = iota
	DirectionIncoming
)

func (d Direction) String() string {
	if d == DirectionIncoming {
		return "incoming"
	}
	return "outgoing"
}
