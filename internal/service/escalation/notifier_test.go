package escalation

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/zhouzirui/z-haven/backend/internal/model/escalation"
)

type fakePublisher struct {
	subject string
	payload []byte
	opts    int
	err     error
}

func (f *fakePublisher) Publish(_ context.Context, subject string, payload []byte, opts ...jetstream.PublishOpt) (*jetstream.PubAck, error) {
	f.subject, f.payload, f.opts = subject, payload, len(opts)
	if f.err != nil {
		return nil, f.err
	}
	return &jetstream.PubAck{Stream: StreamName, Sequence: 1}, nil
}

func TestNATSNotifierPublishesRecord(t *testing.T) {
	pub := &fakePublisher{}
	n := &NATSNotifier{js: pub, log: zap.NewNop()}

	phone := "555"
	record := escalation.Record{ID: "rec-1", OwnerID: "u1", ResponderID: "1", ResponderName: "Dr. A", ContactInfo: &phone}
	require.NoError(t, n.Notify(context.Background(), record))

	require.Equal(t, SubjectCreated, pub.subject)
	require.Equal(t, 1, pub.opts)
	var decoded escalation.Record
	require.NoError(t, json.Unmarshal(pub.payload, &decoded))
	require.Equal(t, "rec-1", decoded.ID)
	require.Equal(t, "555", *decoded.ContactInfo)
}

func TestNATSNotifierWrapsPublishError(t *testing.T) {
	n := &NATSNotifier{js: &fakePublisher{err: errors.New("no responders")}, log: zap.NewNop()}
	err := n.Notify(context.Background(), escalation.Record{ID: "rec-2"})
	require.Error(t, err)
	require.Contains(t, err.Error(), "rec-2")
}

func TestNoopNotifier(t *testing.T) {
	require.NoError(t, NoopNotifier{}.Notify(context.Background(), escalation.Record{}))
}
