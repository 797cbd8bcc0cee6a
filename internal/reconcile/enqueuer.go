package reconcile

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	pubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"

	pkgerrors "github.com/edukamer/edupay-backend/pkg/errors"
	"github.com/edukamer/edupay-backend/pkg/logger"
)

// EventTypeWebhook tags aggregator callback envelopes on the payments topic.
const EventTypeWebhook = "campay.webhook"

type publisher interface {
	Publish(ctx context.Context, msg *pubsub.Message) *pubsub.PublishResult
}

// Enqueuer hands webhook events to the async reconciliation pipeline.
type Enqueuer struct {
	publisher publisher
	logg      *logger.Logger
}

// NewEnqueuer builds an enqueuer bound to the payments topic.
func NewEnqueuer(pub publisher, logg *logger.Logger) (*Enqueuer, error) {
	if pub == nil {
		return nil, errors.New("publisher is required")
	}
	return &Enqueuer{publisher: pub, logg: logg}, nil
}

// Enqueue publishes the event and returns the generated task id. The receiver
// acknowledges the aggregator before any business processing happens, so
// publish is the only thing that can fail here.
func (e *Enqueuer) Enqueue(ctx context.Context, event WebhookEvent) (string, error) {
	envelope := Envelope{
		EventID:    uuid.NewString(),
		ReceivedAt: time.Now().UTC(),
		Event:      event,
	}

	data, err := json.Marshal(envelope)
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode webhook envelope")
	}

	result := e.publisher.Publish(ctx, &pubsub.Message{
		Data: data,
		Attributes: map[string]string{
			"event_type": EventTypeWebhook,
			"event_id":   envelope.EventID,
		},
	})
	if _, err := result.Get(ctx); err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "publish webhook event")
	}

	if e.logg != nil {
		logCtx := e.logg.WithField(ctx, "event_id", envelope.EventID)
		e.logg.Info(logCtx, "webhook event enqueued")
	}
	return envelope.EventID, nil
}
