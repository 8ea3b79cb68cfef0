// Package consumer wires the inbound event bus to the enrichment pipeline
// and the merge engine. Raw identity events arrive on a durable JetStream
// queue group; enriched copies are republished for downstream consumers.
package consumer

import (
	"context"
	"encoding/json"
	"fmt"

	wmNats "github.com/ThreeDotsLabs/watermill-nats/v2/pkg/nats"
	"github.com/ThreeDotsLabs/watermill/message"
	natsgo "github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/opencdp/profile-engine/domain"
	"github.com/opencdp/profile-engine/internal/config"
	"github.com/opencdp/profile-engine/internal/enrich"
	"github.com/opencdp/profile-engine/internal/metrics"
	"github.com/opencdp/profile-engine/usecase/track"
)

// EnrichedPublisher republishes events after enrichment. Publishing is
// best-effort relative to profile resolution.
type EnrichedPublisher interface {
	PublishEnriched(event *domain.EnrichedEvent) error
}

type Consumer struct {
	subscriber message.Subscriber
	publisher  EnrichedPublisher
	pipeline   *enrich.Pipeline
	tracker    *track.UseCase
	topic      string
	logger     *zap.Logger
}

func NewSubscriber(cfg config.NATSConfig, logger *zap.Logger) (message.Subscriber, error) {
	wmLogger := newZapAdapter(logger)

	natsOpts := []natsgo.Option{
		natsgo.RetryOnFailedConnect(true),
		natsgo.MaxReconnects(cfg.MaxReconnects),
		natsgo.ReconnectWait(cfg.ReconnectWait),
		natsgo.DisconnectErrHandler(func(nc *natsgo.Conn, err error) {
			if err != nil {
				wmLogger.Error("nats subscriber disconnected", err, nil)
			}
		}),
		natsgo.ReconnectHandler(func(nc *natsgo.Conn) {
			wmLogger.Info("nats subscriber reconnected", nil)
		}),
	}

	subOpts := []natsgo.SubOpt{
		natsgo.MaxDeliver(cfg.MaxDeliver),
		natsgo.AckWait(cfg.AckWait),
		natsgo.DeliverNew(),
	}

	sub, err := wmNats.NewSubscriber(wmNats.SubscriberConfig{
		URL:              cfg.URL,
		QueueGroupPrefix: cfg.QueueGroup,
		SubscribersCount: cfg.SubscribersCount,
		AckWaitTimeout:   cfg.AckWait,
		NatsOptions:      natsOpts,
		Unmarshaler:      &wmNats.NATSMarshaler{},
		JetStream: wmNats.JetStreamConfig{
			Disabled:         false,
			AutoProvision:    true,
			SubscribeOptions: subOpts,
			DurablePrefix:    cfg.Durable,
		},
	}, wmLogger)
	if err != nil {
		return nil, fmt.Errorf("create raw subscriber: %w", err)
	}
	return sub, nil
}

func New(
	subscriber message.Subscriber,
	publisher EnrichedPublisher,
	pipeline *enrich.Pipeline,
	tracker *track.UseCase,
	topic string,
	logger *zap.Logger,
) *Consumer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Consumer{
		subscriber: subscriber,
		publisher:  publisher,
		pipeline:   pipeline,
		tracker:    tracker,
		topic:      topic,
		logger:     logger,
	}
}

// Run consumes raw events until the context is canceled. No failure mode
// stops the loop: undecodable or invalid records are dropped with a
// warning, and engine errors degrade to skipping the record. Everything
// is acked; there is no dead-letter queue.
func (c *Consumer) Run(ctx context.Context) error {
	messages, err := c.subscriber.Subscribe(ctx, c.topic)
	if err != nil {
		return fmt.Errorf("subscribe to %s: %w", c.topic, err)
	}

	c.logger.Info("consumer started", zap.String("topic", c.topic))
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-messages:
			if !ok {
				return nil
			}
			c.handle(ctx, msg)
			msg.Ack()
		}
	}
}

func (c *Consumer) handle(ctx context.Context, msg *message.Message) {
	var event domain.IdentityEvent
	if err := json.Unmarshal(msg.Payload, &event); err != nil {
		c.logger.Warn("dropping undecodable event",
			zap.String("message_uuid", msg.UUID),
			zap.Error(err),
		)
		metrics.RecordDroppedEvent()
		return
	}

	enriched, err := c.pipeline.Process(&event)
	if err != nil {
		// Validation already logged the reason.
		metrics.RecordDroppedEvent()
		return
	}

	if c.publisher != nil {
		if err := c.publisher.PublishEnriched(enriched); err != nil {
			c.logger.Warn("enriched publish failed, continuing with resolution",
				zap.String("enriched_id", enriched.EnrichedID),
				zap.Error(err),
			)
		}
	}

	result, err := c.tracker.ProcessIdentity(ctx, &event)
	if err != nil {
		c.logger.Error("identity resolution failed, dropping record",
			zap.String("tenant_id", event.TenantID),
			zap.String("app_id", event.AppID),
			zap.Error(err),
		)
		metrics.RecordDroppedEvent()
		return
	}

	c.logger.Debug("identity resolved",
		zap.String("tenant_id", event.TenantID),
		zap.String("profile_id", result.ProfileID),
		zap.String("outcome", string(result.Outcome)),
	)
}
