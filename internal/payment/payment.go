// Package payment creates payment intents for orders and reconciles the processor's
// asynchronous outcome callbacks against the order store.
package payment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"storefront-service/internal/apperr"
	"storefront-service/internal/models"
	"storefront-service/internal/stores/kafka"
	"storefront-service/pkg/ctxmanage"
	"storefront-service/pkg/logkey"
)

var minorUnits = decimal.NewFromInt(100)

const publishTimeout = 3 * time.Second

// Publisher emits payment events after a transaction commits.
type Publisher interface {
	Publish(ctx context.Context, topic, key string, event any) error
}

type IntentResponse struct {
	ClientSecret    string          `json:"client_secret"`
	PaymentIntentID string          `json:"payment_intent_id"`
	Amount          decimal.Decimal `json:"amount"`
}

type Conf struct {
	db             *gorm.DB
	processor      Processor
	currency       string
	publisher      Publisher
	publishTimeout time.Duration
}

// NewConf builds the payment service. publisher may be nil.
func NewConf(db *gorm.DB, processor Processor, currency string, publisher Publisher) (*Conf, error) {
	if db == nil {
		return nil, fmt.Errorf("db is nil")
	}
	if processor == nil {
		return nil, fmt.Errorf("payment processor is nil")
	}
	if currency == "" {
		currency = "usd"
	}
	return &Conf{
		db:             db,
		processor:      processor,
		currency:       currency,
		publisher:      publisher,
		publishTimeout: publishTimeout,
	}, nil
}

// CreatePaymentIntent asks the processor for an intent covering the order total and records
// the intent id on the order.
func (c *Conf) CreatePaymentIntent(ctx context.Context, userID, orderID uint) (*IntentResponse, error) {
	traceId := ctxmanage.TraceID(ctx)
	db := c.db.WithContext(ctx)

	var order models.Order
	err := db.Where("id = ? AND user_id = ?", orderID, userID).First(&order).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.NotFound("order not found")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query order: %w", err)
	}
	if order.PaymentStatus == models.PaymentPaid {
		return nil, apperr.Conflict("order has already been paid")
	}

	amount := order.TotalAmount.Mul(minorUnits).IntPart()
	metadata := map[string]string{
		"order_id":     strconv.FormatUint(uint64(order.ID), 10),
		"order_number": order.OrderNumber,
	}
	intent, err := c.processor.CreateIntent(ctx, amount, c.currency, metadata)
	if err != nil {
		slog.Error("failed to create payment intent", slog.String(logkey.TraceID, traceId),
			slog.Uint64(logkey.OrderID, uint64(orderID)), slog.String(logkey.ERROR, err.Error()))
		var pe *ProcessorError
		msg := err.Error()
		if errors.As(err, &pe) {
			msg = pe.Msg
		}
		return nil, apperr.Wrap(apperr.KindConflict, err, "payment processing error: %s", msg)
	}

	err = db.Model(&models.Order{}).Where("id = ?", order.ID).
		Updates(map[string]any{"payment_intent_id": intent.ID, "updated_at": time.Now().UTC()}).Error
	if err != nil {
		return nil, fmt.Errorf("failed to store payment intent: %w", err)
	}

	slog.Info("payment intent created", slog.String(logkey.TraceID, traceId),
		slog.String(logkey.IntentID, intent.ID), slog.String(logkey.OrderNumber, order.OrderNumber))
	return &IntentResponse{
		ClientSecret:    intent.ClientSecret,
		PaymentIntentID: intent.ID,
		Amount:          order.TotalAmount,
	}, nil
}

// HandleCallback verifies and applies a processor callback. It reports false when the
// payload cannot be verified. Events for unknown intents and unhandled event types are
// acknowledged so the processor does not retry them. A succeeded event for an order that
// is already Paid is a no-op and does not reset a later status such as Shipped.
func (c *Conf) HandleCallback(ctx context.Context, payload []byte, signature string) (bool, error) {
	traceId := ctxmanage.TraceID(ctx)

	event, err := c.processor.ParseEvent(payload, signature)
	if err != nil {
		slog.Warn("webhook verification failed", slog.String(logkey.TraceID, traceId), slog.String(logkey.ERROR, err.Error()))
		return false, nil
	}
	slog.Info("webhook event received", slog.String(logkey.TraceID, traceId), slog.String(logkey.EventType, event.Type))

	switch event.Type {
	case EventIntentSucceeded:
		if err := c.markPaid(ctx, event.IntentID); err != nil {
			return false, err
		}
	case EventIntentFailed:
		if err := c.markFailed(ctx, event.IntentID); err != nil {
			return false, err
		}
	default:
		slog.Info("unhandled event type", slog.String(logkey.TraceID, traceId), slog.String(logkey.EventType, event.Type))
	}
	return true, nil
}

// markPaid sets Paid/Processing on the order holding the intent. Orders already paid are
// left unchanged.
func (c *Conf) markPaid(ctx context.Context, intentID string) error {
	var order *models.Order
	changed := false
	err := c.withTx(ctx, func(tx *gorm.DB) error {
		var err error
		order, err = orderByIntent(tx, intentID)
		if err != nil || order == nil {
			return err
		}
		if order.PaymentStatus == models.PaymentPaid {
			return nil
		}
		changed = true
		return tx.Model(&models.Order{}).Where("id = ?", order.ID).Updates(map[string]any{
			"payment_status": string(models.PaymentPaid),
			"status":         string(models.OrderProcessing),
			"updated_at":     time.Now().UTC(),
		}).Error
	})
	if err != nil {
		return fmt.Errorf("failed to mark order paid: %w", err)
	}

	traceId := ctxmanage.TraceID(ctx)
	if order == nil {
		slog.Warn("order not found for payment intent", slog.String(logkey.TraceID, traceId), slog.String(logkey.IntentID, intentID))
		return nil
	}
	if !changed {
		slog.Info("order already paid", slog.String(logkey.TraceID, traceId), slog.String(logkey.OrderNumber, order.OrderNumber))
		return nil
	}

	slog.Info("order marked as paid", slog.String(logkey.TraceID, traceId), slog.String(logkey.OrderNumber, order.OrderNumber))
	c.publishPaid(ctx, *order, intentID)
	return nil
}

func (c *Conf) markFailed(ctx context.Context, intentID string) error {
	var order *models.Order
	err := c.withTx(ctx, func(tx *gorm.DB) error {
		var err error
		order, err = orderByIntent(tx, intentID)
		if err != nil || order == nil {
			return err
		}
		return tx.Model(&models.Order{}).Where("id = ?", order.ID).Updates(map[string]any{
			"payment_status": string(models.PaymentFailed),
			"updated_at":     time.Now().UTC(),
		}).Error
	})
	if err != nil {
		return fmt.Errorf("failed to mark order payment failed: %w", err)
	}

	traceId := ctxmanage.TraceID(ctx)
	if order == nil {
		slog.Warn("order not found for payment intent", slog.String(logkey.TraceID, traceId), slog.String(logkey.IntentID, intentID))
		return nil
	}
	slog.Info("order marked as payment failed", slog.String(logkey.TraceID, traceId), slog.String(logkey.OrderNumber, order.OrderNumber))
	return nil
}

func (c *Conf) publishPaid(ctx context.Context, order models.Order, intentID string) {
	if c.publisher == nil {
		return
	}
	event := kafka.OrderPaidEvent{
		OrderID:         order.ID,
		OrderNumber:     order.OrderNumber,
		PaymentIntentID: intentID,
		CreatedAt:       time.Now().UTC(),
	}
	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.publishTimeout)
	defer cancel()
	if err := c.publisher.Publish(pubCtx, kafka.TopicOrderPaid, order.OrderNumber, event); err != nil {
		slog.Error("failed to publish order paid event", slog.String(logkey.TraceID, ctxmanage.TraceID(ctx)),
			slog.String(logkey.OrderNumber, order.OrderNumber), slog.String(logkey.ERROR, err.Error()))
	}
}

func orderByIntent(tx *gorm.DB, intentID string) (*models.Order, error) {
	if intentID == "" {
		return nil, nil
	}
	var order models.Order
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("payment_intent_id = ?", intentID).First(&order).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query order by payment intent: %w", err)
	}
	return &order, nil
}

func (c *Conf) withTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return c.db.WithContext(ctx).Transaction(fn)
}
