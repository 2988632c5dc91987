package escalation

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"go.uber.org/zap"

	"github.com/zhouzirui/z-haven/backend/internal/logger"
	"github.com/zhouzirui/z-haven/backend/internal/model/escalation"
)

const (
	// StreamName is the JetStream stream holding escalation events.
	StreamName = "ESCALATIONS"
	// SubjectCreated is published once per created record.
	SubjectCreated = "escalations.created"
)

// Notifier hands a freshly created record to whoever performs the human follow-up.
type Notifier interface {
	Notify(ctx context.Context, record escalation.Record) error
}

// NoopNotifier drops notifications. Used when no event bus is configured.
type NoopNotifier struct{}

func (NoopNotifier) Notify(context.Context, escalation.Record) error { return nil }

type publisher interface {
	Publish(ctx context.Context, subject string, payload []byte, opts ...jetstream.PublishOpt) (*jetstream.PubAck, error)
}

// NATSNotifier publishes records to JetStream.
type NATSNotifier struct {
	nc  *nats.Conn
	js  publisher
	log *zap.Logger
}

// NewNATSNotifier connects to url and makes sure the escalation stream exists.
func NewNATSNotifier(url string, log *zap.Logger) (*NATSNotifier, error) {
	nc, err := nats.Connect(url,
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(5),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	moduleLog := logger.Module(log, "escalation")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err = js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:      StreamName,
		Subjects:  []string{"escalations.>"},
		Storage:   jetstream.FileStorage,
		Retention: jetstream.WorkQueuePolicy,
	})
	if err != nil {
		moduleLog.Warn("failed to ensure escalation stream", zap.String("stream", StreamName), zap.Error(err))
	}

	return &NATSNotifier{nc: nc, js: js, log: moduleLog}, nil
}

// Notify publishes the record as JSON on SubjectCreated. The record ID is used as the
// JetStream message ID so a redelivered publish is deduplicated by the server.
func (n *NATSNotifier) Notify(ctx context.Context, record escalation.Record) error {
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal escalation: %w", err)
	}

	if _, err := n.js.Publish(ctx, SubjectCreated, data, jetstream.WithMsgID(record.ID)); err != nil {
		return fmt.Errorf("failed to publish escalation %s: %w", record.ID, err)
	}
	n.log.Info("escalation published", zap.String("record", record.ID), zap.String("responder", record.ResponderID))
	return nil
}

// Close closes the NATS connection.
func (n *NATSNotifier) Close() {
	if n.nc != nil {
		n.nc.Close()
	}
}
