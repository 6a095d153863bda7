// Package calling implements peer-to-peer call lifecycle management on top
// of WebRTC: an explicit call state machine, a coordinator that serializes
// all signaling and media events, batched trickle ICE delivery, and call
// history records.
//
// The transport (SignalingChannel), media stack (MediaTransportFactory), and
// user interface (UI) are injected, so the package carries no platform or
// messaging dependencies of its own beyond WebRTC itself.
package calling
