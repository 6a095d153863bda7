package calling

import "context"

// A SignalingChannel delivers out-of-band control messages to the other
// members of a conversation thread. Implementations need only provide
// at-least-once delivery; the coordinator handles duplicate inbound events
// idempotently. Send order per thread must be preserved.
type SignalingChannel interface {
	SendControl(ctx context.Context, threadID string, msg ControlMessage) error
}

// A ThreadDirectory resolves the participants of a conversation thread.
// Contact and identity lookup live outside this package.
type ThreadDirectory interface {
	Participants(ctx context.Context, threadID string) ([]string, error)
}

type selfOnlyDirectory struct {
	localID string
}

func (d *selfOnlyDirectory) Participants(ctx context.Context, threadID string) ([]string, error) {
	return []string{d.localID}, nil
}
