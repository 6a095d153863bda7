package calling

// A UI receives user facing call events. Methods fire on the coordinator's
// run loop and must not block; a platform layer typically bounces them onto
// its own main thread.
type UI interface {
	// ReportIncomingCall surfaces ringing for a new inbound call. Returning
	// an error declines the call (e.g. the platform refused to ring).
	ReportIncomingCall(call *Call) error

	// RecipientAcceptedCall fires when the remote party answered our offer.
	RecipientAcceptedCall(call *Call)

	// RemoteDidHangupCall fires when the remote party ended the call.
	RemoteDidHangupCall(call *Call)

	// RemoteBusy fires when the callee reported being in another call.
	RemoteBusy(call *Call)

	// MissedCall fires when an inbound call ended before it was answered.
	MissedCall(call *Call)

	// FailCall fires when a call ends due to an error.
	FailCall(call *Call, err error)

	// DidTerminateCall fires exactly once per call after teardown completes.
	DidTerminateCall(call *Call)
}

type nopUI struct{}

func (nopUI) ReportIncomingCall(call *Call) error { return nil }
func (nopUI) RecipientAcceptedCall(call *Call)    {}
func (nopUI) RemoteDidHangupCall(call *Call)      {}
func (nopUI) RemoteBusy(call *Call)               {}
func (nopUI) MissedCall(call *Call)               {}
func (nopUI) FailCall(call *Call, err error)      {}
func (nopUI) DidTerminateCall(call *Call)         {}
