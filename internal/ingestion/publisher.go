package ingestion

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"FightPool/internal/core"
	"FightPool/internal/event"
	"FightPool/internal/observability"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog"
)

// NotifySubjectPrefix is the namespace for outbound notifications:
// fightpool.events.<Kind>[.<match_id>].
const NotifySubjectPrefix = "fightpool.events."

// PublishableEvent carries the notifications of one accepted command.
type PublishableEvent struct {
	Sequence       int64                `json:"sequence"`
	EventType      string               `json:"event_type"`
	IdempotencyKey string               `json:"idempotency_key"`
	StateHash      string               `json:"state_hash"`
	Timestamp      time.Time            `json:"timestamp"`
	Notifications  []event.Notification `json:"notifications"`
}

// PublishableFromOutput flattens a core output for publishing.
func PublishableFromOutput(out core.CoreOutput) PublishableEvent {
	env := out.Envelope
	return PublishableEvent{
		Sequence:       env.Sequence,
		EventType:      env.EventType.String(),
		IdempotencyKey: env.IdempotencyKey,
		StateHash:      hex.EncodeToString(env.StateHash[:]),
		Timestamp:      env.Timestamp,
		Notifications:  out.Notifications,
	}
}

// NotificationSubject returns the subject a notification is published on.
func NotificationSubject(n event.Notification) string {
	subject := NotifySubjectPrefix + string(n.Kind)
	if n.MatchID != nil {
		subject += "." + n.MatchID.String()
	}
	return subject
}

// notificationMsgID lets JetStream drop a republished notification.
func notificationMsgID(seq int64, idx int) string {
	return fmt.Sprintf("%d-%d", seq, idx)
}

// OutboundPublisher publishes notifications to NATS for downstream
// consumers. Publishing is best-effort: consumers that miss one can
// reconcile from the query API.
type OutboundPublisher struct {
	js        jetstream.JetStream
	inputChan <-chan PublishableEvent
	logger    zerolog.Logger
}

func NewOutboundPublisher(js jetstream.JetStream, inputChan <-chan PublishableEvent) *OutboundPublisher {
	return &OutboundPublisher{
		js:        js,
		inputChan: inputChan,
		logger:    observability.NewLogger("publisher"),
	}
}

func (op *OutboundPublisher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case evt, ok := <-op.inputChan:
			if !ok {
				return nil
			}
			if err := op.publish(ctx, evt); err != nil {
				op.logger.Warn().Err(err).Int64("seq", evt.Sequence).Msg("notification publish failed")
			}
		}
	}
}

func (op *OutboundPublisher) publish(ctx context.Context, evt PublishableEvent) error {
	for i, n := range evt.Notifications {
		data, err := json.Marshal(n)
		if err != nil {
			return fmt.Errorf("marshal notification: %w", err)
		}
		if _, err := op.js.Publish(ctx, NotificationSubject(n), data,
			jetstream.WithMsgID(notificationMsgID(evt.Sequence, i)),
		); err != nil {
			return fmt.Errorf("publish %s: %w", n.Kind, err)
		}
	}
	return nil
}

// EnsureNotifyStream creates the outbound notification stream.
func EnsureNotifyStream(ctx context.Context, js jetstream.JetStream, name string) error {
	_, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:       name,
		Subjects:   []string{NotifySubjectPrefix + ">"},
		Storage:    jetstream.FileStorage,
		Retention:  jetstream.LimitsPolicy,
		MaxAge:     72 * time.Hour,
		Duplicates: 10 * time.Minute,
		Replicas:   1,
	})
	if err != nil {
		return fmt.Errorf("create notify stream %s: %w", name, err)
	}
	return nil
}
