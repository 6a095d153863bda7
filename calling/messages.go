package calling

import (
	"github.com/viamrobotics/webrtc/v3"
)

// ControlKind tags the out-of-band control message variants.
type ControlKind string

// The control message kinds exchanged over the signaling channel.
const (
	ControlCallOffer         ControlKind = "callOffer"
	ControlCallAcceptOffer   ControlKind = "callAcceptOffer"
	ControlCallICECandidates ControlKind = "callICECandidates"
	ControlCallLeave         ControlKind = "callLeave"
	ControlCallBusy          ControlKind = "callBusy"
)

// A ControlMessage is an outbound call control payload addressed to the
// other members of a conversation thread.
type ControlMessage interface {
	Kind() ControlKind
}

// SessionDescriptionPayload carries an SDP blob with its type tag.
type SessionDescriptionPayload struct {
	Type string `json:"type"`
	SDP  string `json:"sdp"`
}

// ICECandidatePayload is the wire shape of one connectivity candidate.
type ICECandidatePayload struct {
	Candidate     string `json:"candidate"`
	SDPMLineIndex uint16 `json:"sdpMLineIndex"`
	SDPMid        string `json:"sdpMid"`
}

func candidatePayload(cand webrtc.ICECandidateInit) ICECandidatePayload {
	p := ICECandidatePayload{Candidate: cand.Candidate}
	if cand.SDPMLineIndex != nil {
		p.SDPMLineIndex = *cand.SDPMLineIndex
	}
	if cand.SDPMid != nil {
		p.SDPMid = *cand.SDPMid
	}
	return p
}

// CallOffer initiates a call with the caller's session description.
type CallOffer struct {
	CallID     string                    `json:"callId"`
	Members    []string                  `json:"members"`
	Originator string                    `json:"originator"`
	PeerID     string                    `json:"peerId"`
	Offer      SessionDescriptionPayload `json:"offer"`
}

// Kind implements ControlMessage.
func (*CallOffer) Kind() ControlKind { return ControlCallOffer }

// CallAcceptOffer answers a call offer with the callee's negotiated session
// description.
type CallAcceptOffer struct {
	CallID     string                    `json:"callId"`
	Members    []string                  `json:"members"`
	Originator string                    `json:"originator"`
	PeerID     string                    `json:"peerId"`
	Answer     SessionDescriptionPayload `json:"answer"`
}

// Kind implements ControlMessage.
func (*CallAcceptOffer) Kind() ControlKind { return ControlCallAcceptOffer }

// CallICECandidates carries a batch of locally gathered candidates.
type CallICECandidates struct {
	CallID     string                `json:"callId"`
	PeerID     string                `json:"peerId"`
	Originator string                `json:"originator"`
	Candidates []ICECandidatePayload `json:"icecandidates"`
}

// Kind implements ControlMessage.
func (*CallICECandidates) Kind() ControlKind { return ControlCallICECandidates }

// CallLeave ends a call out of band.
type CallLeave struct {
	CallID     string `json:"callId"`
	Originator string `json:"originator"`
}

// Kind implements ControlMessage.
func (*CallLeave) Kind() ControlKind { return ControlCallLeave }

// CallBusy tells a caller the callee is already in a call.
type CallBusy struct {
	PeerID string `json:"peerId"`
}

// Kind implements ControlMessage.
func (*CallBusy) Kind() ControlKind { return ControlCallBusy }

// Offer is an inbound call offer event.
type Offer struct {
	ThreadID           string
	CallID             string
	OriginatorID       string
	PeerID             string
	SenderID           string
	SessionDescription string
}

// AcceptOffer is an inbound answer to an offer we sent.
type AcceptOffer struct {
	ThreadID           string
	CallID             string
	PeerID             string
	SessionDescription string
}

// A RemoteICECandidate is one candidate received from the remote party.
type RemoteICECandidate struct {
	SDP       string
	LineIndex uint16
	Mid       string
}

func (c RemoteICECandidate) init() webrtc.ICECandidateInit {
	lineIndex := c.LineIndex
	mid := c.Mid
	return webrtc.ICECandidateInit{
		Candidate:     c.SDP,
		SDPMLineIndex: &lineIndex,
		SDPMid:        &mid,
	}
}

// IceCandidates is an inbound batch of remote candidates.
type IceCandidates struct {
	ThreadID   string
	CallID     string
	PeerID     string
	Candidates []RemoteICECandidate
}

// Leave is an inbound hangup event.
type Leave struct {
	ThreadID string
	CallID   string
	PeerID   string
}

// Busy is an inbound busy event; the callee was already in another call.
type Busy struct {
	ThreadID string
	PeerID   string
}
