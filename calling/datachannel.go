package calling

import (
	"encoding/json"

	"github.com/pkg/errors"
)

// dataMessage is the envelope for in-band control sent over the transport's
// data channel. Exactly one field is set per message.
type dataMessage struct {
	Connected            *dataConnected            `json:"connected,omitempty"`
	Hangup               *dataHangup               `json:"hangup,omitempty"`
	VideoStreamingStatus *dataVideoStreamingStatus `json:"videoStreamingStatus,omitempty"`
}

type dataConnected struct {
	ID string `json:"id"`
}

type dataHangup struct {
	ID string `json:"id"`
}

type dataVideoStreamingStatus struct {
	ID      string `json:"id"`
	Enabled bool   `json:"enabled"`
}

func encodeDataMessage(msg dataMessage) ([]byte, error) {
	data, err := json.Marshal(msg)
	if err != nil {
		return nil, errors.Wrap(err, "encoding data channel message")
	}
	return data, nil
}

func decodeDataMessage(data []byte) (dataMessage, error) {
	var msg dataMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return dataMessage{}, errors.Wrap(err, "decoding data channel message")
	}
	return msg, nil
}
