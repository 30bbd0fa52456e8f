// Package payments applies payment gateway confirmations to orders.
package payments

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	pubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-orders/pkg/db/models"
	"github.com/angelmondragon/storefront-orders/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-orders/pkg/errors"
	"github.com/angelmondragon/storefront-orders/pkg/logger"
	"github.com/angelmondragon/storefront-orders/pkg/outbox"
	"github.com/angelmondragon/storefront-orders/pkg/outbox/payloads"
)

const consumerName = "payments-worker"

type orderConfirmer interface {
	ConfirmPayment(ctx context.Context, orderID uuid.UUID, reference string, confirmedAt time.Time) (*models.Order, error)
}

type idempotencyChecker interface {
	CheckAndMarkProcessed(ctx context.Context, consumer, eventID string) (bool, error)
	Forget(ctx context.Context, consumer, eventID string) error
}

type payloadDecoder interface {
	Decode(eventType enums.OutboxEventType, version int, payload json.RawMessage) (any, error)
}

type receiver interface {
	Receive(ctx context.Context, f func(context.Context, *pubsub.Message)) error
}

// Message is the transport-neutral view of one delivery.
type Message struct {
	ID         string
	Data       []byte
	Attributes map[string]string
}

// Result tells the transport whether to ack or redeliver.
type Result struct {
	Ack bool
}

// Consumer confirms orders from PaymentConfirmed events.
type Consumer struct {
	orders       orderConfirmer
	decoder      payloadDecoder
	idempotency  idempotencyChecker
	subscription receiver
	logg         *logger.Logger
}

// NewConsumer builds a payment confirmation consumer. subscription may be nil
// when messages are fed through Handle directly.
func NewConsumer(orders orderConfirmer, decoder payloadDecoder, manager idempotencyChecker, subscription receiver, logg *logger.Logger) (*Consumer, error) {
	if orders == nil {
		return nil, fmt.Errorf("order confirmer required")
	}
	if decoder == nil {
		return nil, fmt.Errorf("payload decoder required")
	}
	if manager == nil {
		return nil, fmt.Errorf("idempotency manager required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &Consumer{
		orders:       orders,
		decoder:      decoder,
		idempotency:  manager,
		subscription: subscription,
		logg:         logg,
	}, nil
}

// Run receives from the subscription until ctx is canceled.
func (c *Consumer) Run(ctx context.Context) error {
	if c.subscription == nil {
		return fmt.Errorf("payments subscription not configured")
	}
	return c.subscription.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		result := c.Handle(ctx, Message{ID: msg.ID, Data: msg.Data, Attributes: msg.Attributes})
		if !result.Ack {
			msg.Nack()
			return
		}
		msg.Ack()
	})
}

// Handle processes one delivery. Malformed messages and orders that can no
// longer be confirmed are acked; transient failures are redelivered.
func (c *Consumer) Handle(ctx context.Context, msg Message) Result {
	eventType := enums.OutboxEventType(msg.Attributes["event_type"])
	logCtx := c.logg.WithFields(ctx, map[string]any{
		"message_id": msg.ID,
		"event_type": string(eventType),
	})

	if eventType != "" && eventType != enums.EventPaymentConfirmed {
		c.logg.Info(logCtx, "skipping non-payment event")
		return Result{Ack: true}
	}

	envelope, err := outbox.DecodeEnvelope(msg.Data)
	if err != nil {
		c.logg.Error(logCtx, "failed to decode envelope", err)
		return Result{Ack: true}
	}
	decoded, err := c.decoder.Decode(enums.EventPaymentConfirmed, envelope.Version, envelope.Data)
	if err != nil {
		c.logg.Error(logCtx, "failed to decode payment payload", err)
		return Result{Ack: true}
	}
	event, ok := decoded.(*payloads.PaymentConfirmedEvent)
	if !ok || event.OrderID == uuid.Nil {
		c.logg.Warn(logCtx, "payment payload missing order id")
		return Result{Ack: true}
	}

	logCtx = c.logg.WithEvent(logCtx, envelope.EventID, string(enums.EventPaymentConfirmed))
	logCtx = c.logg.WithOrder(logCtx, event.OrderID.String(), "")
	logCtx = c.logg.WithField(logCtx, "payment_reference", event.PaymentReference)

	already, err := c.idempotency.CheckAndMarkProcessed(ctx, consumerName, envelope.EventID)
	if err != nil {
		c.logg.Error(logCtx, "idempotency check failed", err)
		return Result{Ack: false}
	}
	if already {
		c.logg.Info(logCtx, "event already processed")
		return Result{Ack: true}
	}

	confirmedAt := event.ConfirmedAt
	if confirmedAt.IsZero() {
		confirmedAt = envelope.OccurredAt
	}
	if _, err := c.orders.ConfirmPayment(ctx, event.OrderID, event.PaymentReference, confirmedAt); err != nil {
		switch {
		case pkgerrors.IsCode(err, pkgerrors.CodeNotFound),
			pkgerrors.IsCode(err, pkgerrors.CodeInvalidTransition),
			pkgerrors.IsCode(err, pkgerrors.CodeConflict),
			pkgerrors.IsCode(err, pkgerrors.CodeValidation):
			c.logg.Warn(logCtx, "payment not applied: "+err.Error())
			return Result{Ack: true}
		default:
			c.logg.Error(logCtx, "payment confirmation failed", err)
			if ferr := c.idempotency.Forget(ctx, consumerName, envelope.EventID); ferr != nil {
				c.logg.Error(logCtx, "failed to clear idempotency mark", ferr)
			}
			return Result{Ack: false}
		}
	}

	c.logg.Info(logCtx, "payment confirmed")
	return Result{Ack: true}
}
