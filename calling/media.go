package calling

import (
	"context"

	"github.com/viamrobotics/webrtc/v3"
)

// MediaEvents are the callbacks a MediaTransport fires as its underlying
// connection progresses. They may be invoked from arbitrary goroutines; the
// coordinator dispatches them onto its run loop before touching call state.
type MediaEvents struct {
	// ConnectivityEstablished fires when compatible candidates have been
	// exchanged and media can flow. It may fire again after a reconnect.
	ConnectivityEstablished func()

	// ConnectivityLost fires on transient media loss.
	ConnectivityLost func()

	// ConnectivityFailed fires when the connection is permanently down.
	ConnectivityFailed func()

	// LocalCandidate fires for each locally gathered connectivity candidate
	// that must be signaled to the remote party.
	LocalCandidate func(cand webrtc.ICECandidateInit)

	// DataMessage fires for each message received on the transport's data
	// channel.
	DataMessage func(data []byte)
}

// A MediaTransport is the capability interface onto one peer connection.
// Codec negotiation and track management internals live behind it; this
// package only drives session descriptions, candidates, and the data
// channel.
type MediaTransport interface {
	// CreateOffer produces a local session description to initiate a call.
	CreateOffer(ctx context.Context) (webrtc.SessionDescription, error)

	// Negotiate applies the remote offer and produces an answer description
	// compatible with it. The answer must still be applied via
	// SetLocalDescription.
	Negotiate(ctx context.Context, remoteOffer webrtc.SessionDescription) (webrtc.SessionDescription, error)

	SetLocalDescription(ctx context.Context, desc webrtc.SessionDescription) error
	SetRemoteDescription(ctx context.Context, desc webrtc.SessionDescription) error
	AddRemoteCandidate(ctx context.Context, cand webrtc.ICECandidateInit) error

	SetAudioEnabled(enabled bool)
	SetVideoEnabled(enabled bool)

	// SendDataMessage sends bytes over the transport's data channel. It
	// fails if the channel is not open yet.
	SendDataMessage(data []byte) error

	// Close releases the transport's OS resources (sockets, capture
	// devices) synchronously.
	Close() error
}

// A MediaTransportFactory creates a transport for each call attempt.
type MediaTransportFactory interface {
	NewTransport(ctx context.Context, iceServers []webrtc.ICEServer, events MediaEvents) (MediaTransport, error)
}

// An ICEServerProvider returns the STUN/TURN servers a new transport should
// use. Fetching time bound TURN credentials may require network I/O.
type ICEServerProvider interface {
	ICEServers(ctx context.Context) ([]webrtc.ICEServer, error)
}

type staticICEServers struct {
	servers []webrtc.ICEServer
}

// StaticICEServers returns a provider that always serves the given servers.
func StaticICEServers(servers ...webrtc.ICEServer) ICEServerProvider {
	return &staticICEServers{servers: servers}
}

func (p *staticICEServers) ICEServers(ctx context.Context) ([]webrtc.ICEServer, error) {
	return p.servers, nil
}

// DefaultICEServers is used when no provider is configured.
var DefaultICEServers = []webrtc.ICEServer{
	{URLs: []string{"stun:global.stun.twilio.com:3478"}},
}
