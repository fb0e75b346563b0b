package payment

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v81"
)

const testWebhookSecret = "whsec_test"

func sign(payload []byte, secret string, at time.Time) string {
	ts := at.Unix()
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(fmt.Sprintf("%d.", ts)))
	mac.Write(payload)
	return fmt.Sprintf("t=%d,v1=%s", ts, hex.EncodeToString(mac.Sum(nil)))
}

func eventPayload(typ, intentID string) []byte {
	return []byte(fmt.Sprintf(`{
  "id": "evt_1",
  "object": "event",
  "type": %q,
  "api_version": "2020-08-27",
  "data": {"object": {"id": %q, "object": "payment_intent", "amount": 2599, "currency": "usd"}}
}`, typ, intentID))
}

func stripeBackends(baseURL string) *stripe.Backends {
	backend := stripe.GetBackendWithConfig(stripe.APIBackend, &stripe.BackendConfig{
		URL:               stripe.String(baseURL),
		MaxNetworkRetries: stripe.Int64(0),
	})
	return &stripe.Backends{API: backend, Connect: backend, Uploads: backend}
}

func TestNewStripeProcessorRequiresKey(t *testing.T) {
	_, err := NewStripeProcessor("", testWebhookSecret, nil)
	assert.Error(t, err)
}

func TestStripeParseEvent(t *testing.T) {
	p, err := NewStripeProcessor("sk_test_123", testWebhookSecret, nil)
	require.NoError(t, err)

	tt := []struct {
		name      string
		payload   []byte
		signature func([]byte) string
		wantErr   bool
		wantType  string
		wantID    string
	}{
		{
			name:      "succeeded",
			payload:   eventPayload(EventIntentSucceeded, "pi_1"),
			signature: func(b []byte) string { return sign(b, testWebhookSecret, time.Now()) },
			wantType:  EventIntentSucceeded,
			wantID:    "pi_1",
		},
		{
			name:      "failed",
			payload:   eventPayload(EventIntentFailed, "pi_2"),
			signature: func(b []byte) string { return sign(b, testWebhookSecret, time.Now()) },
			wantType:  EventIntentFailed,
			wantID:    "pi_2",
		},
		{
			name:      "other event type carries no intent",
			payload:   eventPayload("charge.refunded", "ch_1"),
			signature: func(b []byte) string { return sign(b, testWebhookSecret, time.Now()) },
			wantType:  "charge.refunded",
		},
		{
			name:      "wrong secret",
			payload:   eventPayload(EventIntentSucceeded, "pi_1"),
			signature: func(b []byte) string { return sign(b, "whsec_other", time.Now()) },
			wantErr:   true,
		},
		{
			name:      "stale timestamp",
			payload:   eventPayload(EventIntentSucceeded, "pi_1"),
			signature: func(b []byte) string { return sign(b, testWebhookSecret, time.Now().Add(-time.Hour)) },
			wantErr:   true,
		},
		{
			name:      "garbage signature",
			payload:   eventPayload(EventIntentSucceeded, "pi_1"),
			signature: func([]byte) string { return "nonsense" },
			wantErr:   true,
		},
	}

	for _, tc := range tt {
		t.Run(tc.name, func(t *testing.T) {
			ev, err := p.ParseEvent(tc.payload, tc.signature(tc.payload))
			if tc.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "evt_1", ev.ID)
			assert.Equal(t, tc.wantType, ev.Type)
			assert.Equal(t, tc.wantID, ev.IntentID)
		})
	}
}

func TestStripeParseEventWithoutSecret(t *testing.T) {
	p, err := NewStripeProcessor("sk_test_123", "", nil)
	require.NoError(t, err)

	payload := eventPayload(EventIntentSucceeded, "pi_1")
	_, err = p.ParseEvent(payload, sign(payload, "", time.Now()))
	assert.Error(t, err)
}

func TestStripeCreateIntent(t *testing.T) {
	var form url.Values
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/payment_intents", r.URL.Path)
		require.NoError(t, r.ParseForm())
		form = r.PostForm
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"pi_abc","object":"payment_intent","amount":2599,"currency":"usd","client_secret":"pi_abc_secret_xyz"}`))
	}))
	defer srv.Close()

	p, err := NewStripeProcessor("sk_test_123", testWebhookSecret, stripeBackends(srv.URL))
	require.NoError(t, err)

	intent, err := p.CreateIntent(context.Background(), 2599, "usd", map[string]string{"order_id": "7", "order_number": "ORD-1"})
	require.NoError(t, err)
	assert.Equal(t, "pi_abc", intent.ID)
	assert.Equal(t, "pi_abc_secret_xyz", intent.ClientSecret)

	assert.Equal(t, "2599", form.Get("amount"))
	assert.Equal(t, "usd", form.Get("currency"))
	assert.Equal(t, "true", form.Get("automatic_payment_methods[enabled]"))
	assert.Equal(t, "7", form.Get("metadata[order_id]"))
	assert.Equal(t, "ORD-1", form.Get("metadata[order_number]"))
}

func TestStripeCreateIntentDeclined(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusPaymentRequired)
		_, _ = w.Write([]byte(`{"error":{"type":"card_error","code":"card_declined","message":"Your card was declined."}}`))
	}))
	defer srv.Close()

	p, err := NewStripeProcessor("sk_test_123", testWebhookSecret, stripeBackends(srv.URL))
	require.NoError(t, err)

	_, err = p.CreateIntent(context.Background(), 100, "usd", nil)
	require.Error(t, err)
	var pe *ProcessorError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "Your card was declined.", pe.Msg)
}
