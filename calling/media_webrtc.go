package calling

import (
	"context"

	"github.com/edaniels/golog"
	"github.com/viamrobotics/webrtc/v3"
	"go.uber.org/atomic"
	"go.uber.org/multierr"
)

// WebRTCTransportFactory creates MediaTransports backed by pion WebRTC peer
// connections with a pre-negotiated data channel for in-band call control.
type WebRTCTransportFactory struct {
	logger golog.Logger
}

// NewWebRTCTransportFactory returns a factory producing peer connection
// backed transports.
func NewWebRTCTransportFactory(logger golog.Logger) *WebRTCTransportFactory {
	return &WebRTCTransportFactory{logger: logger}
}

// NewTransport implements MediaTransportFactory.
func (f *WebRTCTransportFactory) NewTransport(
	ctx context.Context,
	iceServers []webrtc.ICEServer,
	events MediaEvents,
) (transport MediaTransport, err error) {
	if iceServers == nil {
		iceServers = DefaultICEServers
	}
	pc, err := webrtc.NewPeerConnection(webrtc.Configuration{ICEServers: iceServers})
	if err != nil {
		return nil, err
	}
	var successful bool
	defer func() {
		if !successful {
			err = multierr.Combine(err, pc.GracefulClose())
		}
	}()

	// Both sides declare the same channel so no in-band negotiation round
	// trip is needed before control messages can flow.
	negotiated := true
	ordered := true
	dataChannelID := uint16(0)
	dataChannel, err := pc.CreateDataChannel("control", &webrtc.DataChannelInit{
		ID:         &dataChannelID,
		Negotiated: &negotiated,
		Ordered:    &ordered,
	})
	if err != nil {
		return nil, err
	}

	pc.OnICECandidate(func(cand *webrtc.ICECandidate) {
		// nil marks the end of gathering for this negotiation
		if cand == nil || events.LocalCandidate == nil {
			return
		}
		events.LocalCandidate(cand.ToJSON())
	})
	pc.OnICEConnectionStateChange(func(state webrtc.ICEConnectionState) {
		switch state {
		case webrtc.ICEConnectionStateConnected, webrtc.ICEConnectionStateCompleted:
			if events.ConnectivityEstablished != nil {
				events.ConnectivityEstablished()
			}
		case webrtc.ICEConnectionStateDisconnected:
			if events.ConnectivityLost != nil {
				events.ConnectivityLost()
			}
		case webrtc.ICEConnectionStateFailed:
			if events.ConnectivityFailed != nil {
				events.ConnectivityFailed()
			}
		}
	})
	dataChannel.OnMessage(func(msg webrtc.DataChannelMessage) {
		if events.DataMessage != nil {
			events.DataMessage(msg.Data)
		}
	})
	dataChannel.OnError(func(chErr error) {
		f.logger.Errorw("data channel error", "error", chErr)
	})

	successful = true
	return &webrtcTransport{pc: pc, dataChannel: dataChannel, logger: f.logger}, nil
}

type webrtcTransport struct {
	pc          *webrtc.PeerConnection
	dataChannel *webrtc.DataChannel
	logger      golog.Logger

	// Track enablement is owned by the media layer above this package; the
	// transport records the intended state for it to act on.
	audioEnabled atomic.Bool
	videoEnabled atomic.Bool
}

func (t *webrtcTransport) CreateOffer(ctx context.Context) (webrtc.SessionDescription, error) {
	return t.pc.CreateOffer(nil)
}

func (t *webrtcTransport) Negotiate(
	ctx context.Context,
	remoteOffer webrtc.SessionDescription,
) (webrtc.SessionDescription, error) {
	if err := t.pc.SetRemoteDescription(remoteOffer); err != nil {
		return webrtc.SessionDescription{}, err
	}
	return t.pc.CreateAnswer(nil)
}

func (t *webrtcTransport) SetLocalDescription(ctx context.Context, desc webrtc.SessionDescription) error {
	return t.pc.SetLocalDescription(desc)
}

func (t *webrtcTransport) SetRemoteDescription(ctx context.Context, desc webrtc.SessionDescription) error {
	return t.pc.SetRemoteDescription(desc)
}

func (t *webrtcTransport) AddRemoteCandidate(ctx context.Context, cand webrtc.ICECandidateInit) error {
	return t.pc.AddICECandidate(cand)
}

func (t *webrtcTransport) SetAudioEnabled(enabled bool) {
	t.audioEnabled.Store(enabled)
	t.logger.Debugw("audio enablement changed", "enabled", enabled)
}

func (t *webrtcTransport) SetVideoEnabled(enabled bool) {
	t.videoEnabled.Store(enabled)
	t.logger.Debugw("video enablement changed", "enabled", enabled)
}

// AudioEnabled reports the intended audio state for the media layer.
func (t *webrtcTransport) AudioEnabled() bool {
	return t.audioEnabled.Load()
}

// VideoEnabled reports the intended video state for the media layer.
func (t *webrtcTransport) VideoEnabled() bool {
	return t.videoEnabled.Load()
}

func (t *webrtcTransport) SendDataMessage(data []byte) error {
	return t.dataChannel.Send(data)
}

func (t *webrtcTransport) Close() error {
	return t.pc.GracefulClose()
}
