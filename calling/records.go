package calling

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// RecordKind classifies a call history entry. Incomplete kinds are written
// when a call starts and promoted once its outcome is known.
type RecordKind string

// The call record kinds, in rough lifecycle order.
const (
	RecordNone               RecordKind = ""
	RecordOutgoingIncomplete RecordKind = "outgoing-incomplete"
	RecordIncomingIncomplete RecordKind = "incoming-incomplete"
	RecordOutgoing           RecordKind = "outgoing"
	RecordIncoming           RecordKind = "incoming"
	RecordMissed             RecordKind = "missed"
	RecordDeclined           RecordKind = "declined"
	RecordOutgoingMissed     RecordKind = "outgoing-missed"
)

// A CallRecord is one call history entry.
type CallRecord struct {
	ID           uuid.UUID
	ThreadID     string
	CallID       string
	OriginatorID string
	Kind         RecordKind
	CreatedAt    time.Time
}

// A CallRecorder persists call history. Implementations must tolerate
// updates for records they have already seen and ignore updates for unknown
// records.
type CallRecorder interface {
	RecordCall(ctx context.Context, record CallRecord) error
	UpdateRecord(ctx context.Context, id uuid.UUID, kind RecordKind) error
}

// A MemoryCallRecorder keeps records in memory, most recent last. It is
// suitable for tests and as a default when no persistent store is wired.
type MemoryCallRecorder struct {
	mu      sync.Mutex
	records []CallRecord
}

// NewMemoryCallRecorder returns an empty in-memory recorder.
func NewMemoryCallRecorder() *MemoryCallRecorder {
	return &MemoryCallRecorder{}
}

// RecordCall implements CallRecorder.
func (r *MemoryCallRecorder) RecordCall(ctx context.Context, record CallRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = append(r.records, record)
	return nil
}

// UpdateRecord implements CallRecorder.
func (r *MemoryCallRecorder) UpdateRecord(ctx context.Context, id uuid.UUID, kind RecordKind) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.records {
		if r.records[i].ID == id {
			r.records[i].Kind = kind
			return nil
		}
	}
	return nil
}

// Records returns a copy of all stored records.
func (r *MemoryCallRecorder) Records() []CallRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]CallRecord, len(r.records))
	copy(out, r.records)
	return out
}

type nopRecorder struct{}

func (nopRecorder) RecordCall(ctx context.Context, record CallRecord) error { return nil }

func (nopRecorder) UpdateRecord(ctx context.Context, id uuid.UUID, kind RecordKind) error {
	return nil
}
