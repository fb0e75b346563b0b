package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/stripe/stripe-go/v81"
	"github.com/stripe/stripe-go/v81/client"
	"github.com/stripe/stripe-go/v81/webhook"
)

const (
	EventIntentSucceeded = string(stripe.EventTypePaymentIntentSucceeded)
	EventIntentFailed    = string(stripe.EventTypePaymentIntentPaymentFailed)
)

type Intent struct {
	ID           string
	ClientSecret string
}

// Event is a verified processor callback reduced to what reconciliation needs.
type Event struct {
	ID       string
	Type     string
	IntentID string
}

// Processor is the external payment provider.
type Processor interface {
	CreateIntent(ctx context.Context, amount int64, currency string, metadata map[string]string) (Intent, error)
	// ParseEvent verifies the signature of a callback payload and decodes it.
	ParseEvent(payload []byte, signature string) (Event, error)
}

// ProcessorError carries the provider's caller-facing message.
type ProcessorError struct {
	Msg string
	Err error
}

func (e *ProcessorError) Error() string { return e.Msg }

func (e *ProcessorError) Unwrap() error { return e.Err }

type StripeProcessor struct {
	api           *client.API
	webhookSecret string
}

// NewStripeProcessor builds a Stripe client. Nil backends use Stripe's production endpoints.
func NewStripeProcessor(secretKey, webhookSecret string, backends *stripe.Backends) (*StripeProcessor, error) {
	if secretKey == "" {
		return nil, errors.New("stripe secret key is empty")
	}
	return &StripeProcessor{
		api:           client.New(secretKey, backends),
		webhookSecret: webhookSecret,
	}, nil
}

func (s *StripeProcessor) CreateIntent(ctx context.Context, amount int64, currency string, metadata map[string]string) (Intent, error) {
	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(amount),
		Currency: stripe.String(currency),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	params.Context = ctx
	for k, v := range metadata {
		params.AddMetadata(k, v)
	}

	pi, err := s.api.PaymentIntents.New(params)
	if err != nil {
		var se *stripe.Error
		if errors.As(err, &se) && se.Msg != "" {
			return Intent{}, &ProcessorError{Msg: se.Msg, Err: err}
		}
		return Intent{}, &ProcessorError{Msg: err.Error(), Err: err}
	}
	return Intent{ID: pi.ID, ClientSecret: pi.ClientSecret}, nil
}

func (s *StripeProcessor) ParseEvent(payload []byte, signature string) (Event, error) {
	if s.webhookSecret == "" {
		return Event{}, errors.New("stripe webhook secret is not configured")
	}
	event, err := webhook.ConstructEventWithOptions(payload, signature, s.webhookSecret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		return Event{}, fmt.Errorf("verify webhook: %w", err)
	}

	out := Event{ID: event.ID, Type: string(event.Type)}
	if event.Data != nil && (out.Type == EventIntentSucceeded || out.Type == EventIntentFailed) {
		var pi stripe.PaymentIntent
		if err := json.Unmarshal(event.Data.Raw, &pi); err != nil {
			return Event{}, fmt.Errorf("decode payment intent: %w", err)
		}
		out.IntentID = pi.ID
	}
	return out, nil
}
