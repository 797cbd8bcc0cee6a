package reconcile

import (
	"context"
	"encoding/json"
	"fmt"

	pubsub "cloud.google.com/go/pubsub/v2"

	pkgerrors "github.com/edukamer/edupay-backend/pkg/errors"
	"github.com/edukamer/edupay-backend/pkg/logger"
)

type processor interface {
	Process(ctx context.Context, event WebhookEvent) (*Outcome, error)
}

type guard interface {
	CheckAndMark(ctx context.Context, eventID string) (bool, error)
	Delete(ctx context.Context, eventID string) error
}

// Consumer drains the payments topic and reconciles each webhook event.
type Consumer struct {
	service      processor
	subscription *pubsub.Subscriber
	guard        guard
	logg         *logger.Logger
}

// NewConsumer builds a webhook event consumer.
func NewConsumer(service processor, subscription *pubsub.Subscriber, guard guard, logg *logger.Logger) (*Consumer, error) {
	if service == nil {
		return nil, fmt.Errorf("reconcile service required")
	}
	if subscription == nil {
		return nil, fmt.Errorf("payments subscription required")
	}
	if guard == nil {
		return nil, fmt.Errorf("idempotency guard required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &Consumer{
		service:      service,
		subscription: subscription,
		guard:        guard,
		logg:         logg,
	}, nil
}

// Run starts the consumer loop until the context is canceled.
func (c *Consumer) Run(ctx context.Context) error {
	return c.subscription.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		if c.process(ctx, msg) {
			msg.Nack()
			return
		}
		msg.Ack()
	})
}

// process returns true when the message should be redelivered.
func (c *Consumer) process(ctx context.Context, msg *pubsub.Message) bool {
	eventType := msg.Attributes["event_type"]
	logCtx := c.logg.WithFields(ctx, map[string]any{
		"message_id": msg.ID,
		"event_type": eventType,
	})

	if eventType != EventTypeWebhook {
		c.logg.Info(logCtx, "skipping unrelated event")
		return false
	}

	var envelope Envelope
	if err := json.Unmarshal(msg.Data, &envelope); err != nil {
		c.logg.Error(logCtx, "malformed webhook envelope; dropping", err)
		return false
	}
	logCtx = c.logg.WithField(logCtx, "event_id", envelope.EventID)

	alreadySeen, err := c.guard.CheckAndMark(logCtx, envelope.EventID)
	if err != nil {
		c.logg.Error(logCtx, "idempotency check failed", err)
		return true
	}
	if alreadySeen {
		c.logg.Info(logCtx, "duplicate webhook event; acking")
		return false
	}

	outcome, err := c.service.Process(logCtx, envelope.Event)
	if err != nil {
		// clear the mark so the redelivery is not mistaken for a replay
		if delErr := c.guard.Delete(logCtx, envelope.EventID); delErr != nil {
			c.logg.Error(logCtx, "failed to clear idempotency mark", delErr)
		}
		c.logg.Error(logCtx, "reconcile failed; requeueing", err)
		return pkgerrors.As(err) == nil || pkgerrors.As(err).Code() == pkgerrors.CodeDependency
	}

	logCtx = c.logg.WithFields(logCtx, map[string]any{
		"reference":         outcome.Reference,
		"status":            string(outcome.Status),
		"match_path":        outcome.Path,
		"already_processed": outcome.AlreadyProcessed,
		"orphaned":          outcome.Orphaned,
	})
	c.logg.Info(logCtx, "webhook event reconciled")
	return false
}
