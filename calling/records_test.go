package calling

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.viam.com/test"
)

func TestMemoryCallRecorder(t *testing.T) {
	ctx := context.Background()
	recorder := NewMemoryCallRecorder()

	first := CallRecord{
		ID:        uuid.New(),
		ThreadID:  "thread-1",
		CallID:    "call-1",
		Kind:      RecordOutgoingIncomplete,
		CreatedAt: time.Now(),
	}
	second := CallRecord{
		ID:        uuid.New(),
		ThreadID:  "thread-2",
		CallID:    "call-2",
		Kind:      RecordIncomingIncomplete,
		CreatedAt: time.Now(),
	}
	test.That(t, recorder.RecordCall(ctx, first), test.ShouldBeNil)
	test.That(t, recorder.RecordCall(ctx, second), test.ShouldBeNil)

	test.That(t, recorder.UpdateRecord(ctx, first.ID, RecordOutgoing), test.ShouldBeNil)

	records := recorder.Records()
	test.That(t, len(records), test.ShouldEqual, 2)
	test.That(t, records[0].Kind, test.ShouldEqual, RecordOutgoing)
	test.That(t, records[1].Kind, test.ShouldEqual, RecordIncomingIncomplete)

	// updates for unknown records are ignored
	test.That(t, recorder.UpdateRecord(ctx, uuid.New(), RecordMissed), test.ShouldBeNil)
	test.That(t, len(recorder.Records()), test.ShouldEqual, 2)
}

func TestDataMessageCodec(t *testing.T) {
	data, err := encodeDataMessage(dataMessage{Connected: &dataConnected{ID: "call-1"}})
	test.That(t, err, test.ShouldBeNil)

	decoded, err := decodeDataMessage(data)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, decoded.Connected, test.ShouldNotBeNil)
	test.That(t, decoded.Connected.ID, test.ShouldEqual, "call-1")
	test.That(t, decoded.Hangup, test.ShouldBeNil)

	_, err = decodeDataMessage([]byte("not json"))
	test.That(t, err, test.ShouldNotBeNil)
}
