package calling

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/edaniels/golog"
	"github.com/viamrobotics/webrtc/v3"
	"go.viam.com/test"

	"github.com/forstalabs/relay"
)

func TestWebRTCTransportOffer(t *testing.T) {
	logger := golog.NewTestLogger(t)
	factory := NewWebRTCTransportFactory(logger)
	ctx := context.Background()

	transport, err := factory.NewTransport(ctx, []webrtc.ICEServer{}, MediaEvents{})
	test.That(t, err, test.ShouldBeNil)
	defer func() {
		test.That(t, transport.Close(), test.ShouldBeNil)
	}()

	offer, err := transport.CreateOffer(ctx)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, offer.Type, test.ShouldEqual, webrtc.SDPTypeOffer)
	test.That(t, offer.SDP, test.ShouldNotBeEmpty)
	test.That(t, transport.SetLocalDescription(ctx, offer), test.ShouldBeNil)

	transport.SetAudioEnabled(true)
	transport.SetVideoEnabled(false)
	wt := transport.(*webrtcTransport)
	test.That(t, wt.AudioEnabled(), test.ShouldBeTrue)
	test.That(t, wt.VideoEnabled(), test.ShouldBeFalse)
}

func TestWebRTCTransportLoopback(t *testing.T) {
	logger := golog.NewTestLogger(t)
	factory := NewWebRTCTransportFactory(logger)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	callerCands := make(chan webrtc.ICECandidateInit, 64)
	calleeCands := make(chan webrtc.ICECandidateInit, 64)
	callerConnected := make(chan struct{})
	calleeConnected := make(chan struct{})
	received := make(chan []byte, 1)
	var callerOnce, calleeOnce sync.Once

	caller, err := factory.NewTransport(ctx, []webrtc.ICEServer{}, MediaEvents{
		ConnectivityEstablished: func() { callerOnce.Do(func() { close(callerConnected) }) },
		LocalCandidate:          func(cand webrtc.ICECandidateInit) { callerCands <- cand },
	})
	test.That(t, err, test.ShouldBeNil)
	defer func() {
		test.That(t, caller.Close(), test.ShouldBeNil)
	}()

	callee, err := factory.NewTransport(ctx, []webrtc.ICEServer{}, MediaEvents{
		ConnectivityEstablished: func() { calleeOnce.Do(func() { close(calleeConnected) }) },
		LocalCandidate:          func(cand webrtc.ICECandidateInit) { calleeCands <- cand },
		DataMessage: func(data []byte) {
			select {
			case received <- data:
			default:
			}
		},
	})
	test.That(t, err, test.ShouldBeNil)
	defer func() {
		test.That(t, callee.Close(), test.ShouldBeNil)
	}()

	offer, err := caller.CreateOffer(ctx)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, caller.SetLocalDescription(ctx, offer), test.ShouldBeNil)

	answer, err := callee.Negotiate(ctx, offer)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, callee.SetLocalDescription(ctx, answer), test.ShouldBeNil)
	test.That(t, caller.SetRemoteDescription(ctx, answer), test.ShouldBeNil)

	// shuttle trickled candidates across until both sides connect
	for done := false; !done; {
		select {
		case cand := <-callerCands:
			test.That(t, callee.AddRemoteCandidate(ctx, cand), test.ShouldBeNil)
		case cand := <-calleeCands:
			test.That(t, caller.AddRemoteCandidate(ctx, cand), test.ShouldBeNil)
		case <-callerConnected:
			done = true
		case <-ctx.Done():
			t.Fatal("peers never connected")
		}
	}
	select {
	case <-calleeConnected:
	case <-ctx.Done():
		t.Fatal("callee never connected")
	}

	// the negotiated data channel opens shortly after connectivity
	msg := []byte(`{"connected":{"id":"loopback"}}`)
	for {
		if err := caller.SendDataMessage(msg); err == nil {
			break
		}
		if !relay.SelectContextOrWait(ctx, 50*time.Millisecond) {
			t.Fatal("data channel never opened")
		}
	}
	select {
	case data := <-received:
		decoded, err := decodeDataMessage(data)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, decoded.Connected, test.ShouldNotBeNil)
		test.That(t, decoded.Connected.ID, test.ShouldEqual, "loopback")
	case <-ctx.Done():
		t.Fatal("data message never arrived")
	}
}
