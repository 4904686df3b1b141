package ingestion

import (
	"context"
	"errors"
	"fmt"
	"time"

	"FightPool/internal/observability"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog"
)

// SubscriberConfig names the JetStream stream and durable consumer that
// carry inbound commands.
type SubscriberConfig struct {
	Stream     string
	Consumer   string
	AckWait    time.Duration
	MaxDeliver int
}

// NATSSubscriber feeds JetStream commands into the core. A message is acked
// once the core has ruled on it, accepted or rejected, so a crash between
// receive and apply leads to redelivery and the request id absorbs the
// replay.
type NATSSubscriber struct {
	js       jetstream.JetStream
	commands *CommandService
	logger   zerolog.Logger
	consumer jetstream.ConsumeContext
}

func NewNATSSubscriber(js jetstream.JetStream, commands *CommandService) *NATSSubscriber {
	return &NATSSubscriber{
		js:       js,
		commands: commands,
		logger:   observability.NewLogger("nats-subscriber"),
	}
}

// Subscribe creates the durable consumer and starts delivering.
func (ns *NATSSubscriber) Subscribe(ctx context.Context, cfg SubscriberConfig) error {
	consumer, err := ns.js.CreateOrUpdateConsumer(ctx, cfg.Stream, jetstream.ConsumerConfig{
		Durable:       cfg.Consumer,
		FilterSubject: CommandSubjectPrefix + ">",
		AckPolicy:     jetstream.AckExplicitPolicy,
		AckWait:       cfg.AckWait,
		MaxDeliver:    cfg.MaxDeliver,
		DeliverPolicy: jetstream.DeliverAllPolicy,
		// One in flight keeps the core's view of a stream in publish order.
		MaxAckPending: 1,
	})
	if err != nil {
		return fmt.Errorf("create consumer %s: %w", cfg.Consumer, err)
	}

	cc, err := consumer.Consume(func(msg jetstream.Msg) {
		ns.handle(ctx, msg)
	})
	if err != nil {
		return fmt.Errorf("consume %s: %w", cfg.Consumer, err)
	}
	ns.consumer = cc
	ns.logger.Info().Str("stream", cfg.Stream).Str("consumer", cfg.Consumer).Msg("subscribed to commands")
	return nil
}

func (ns *NATSSubscriber) handle(ctx context.Context, msg jetstream.Msg) {
	name, ok := CommandFromSubject(msg.Subject())
	if !ok {
		ns.logger.Warn().Str("subject", msg.Subject()).Msg("unknown command subject")
		_ = msg.Term()
		return
	}

	res, err := ns.commands.Execute(ctx, name, msg.Data(), "nats")
	switch {
	case err == nil:
		ns.logger.Debug().Str("command", name).Int64("seq", res.Sequence).Bool("duplicate", res.Duplicate).Msg("applied")
		_ = msg.Ack()

	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		_ = msg.Nak()

	case errors.Is(err, ErrMalformed):
		ns.logger.Warn().Err(err).Str("command", name).Msg("malformed command dropped")
		_ = msg.Term()

	default:
		// Rejected commands are final; redelivery would get the same answer.
		ns.logger.Warn().Err(err).Str("command", name).Msg("command rejected")
		_ = msg.Ack()
	}
}

// Stop stops delivery. In-flight handlers finish on their own.
func (ns *NATSSubscriber) Stop() {
	if ns.consumer != nil {
		ns.consumer.Stop()
	}
	ns.logger.Info().Msg("NATS subscriber stopped")
}

// EnsureCommandStream creates the inbound command stream if missing.
func EnsureCommandStream(ctx context.Context, js jetstream.JetStream, name string) error {
	_, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:       name,
		Subjects:   []string{CommandSubjectPrefix + ">"},
		Storage:    jetstream.FileStorage,
		Retention:  jetstream.WorkQueuePolicy,
		MaxAge:     72 * time.Hour,
		Duplicates: 2 * time.Minute,
		Replicas:   1,
	})
	if err != nil {
		return fmt.Errorf("create stream %s: %w", name, err)
	}
	return nil
}

// ConnectNATS establishes a NATS connection and returns a JetStream context.
func ConnectNATS(url string) (*nats.Conn, jetstream.JetStream, error) {
	logger := observability.NewLogger("nats")
	nc, err := nats.Connect(url,
		nats.Name("fightpool"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			logger.Info().Msg("NATS reconnected")
		}),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("nats connect: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, nil, fmt.Errorf("jetstream: %w", err)
	}
	return nc, js, nil
}
