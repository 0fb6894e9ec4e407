package paymentprovider

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/magabrotheeeer/schoolhub/internal/config"
)

const testSecret = "whsec_test"

func sign(payload []byte, secret string, ts time.Time) string {
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%d.%s", ts.Unix(), payload)
	return fmt.Sprintf("t=%d,v1=%s", ts.Unix(), hex.EncodeToString(mac.Sum(nil)))
}

func newTestClient(opts ...Option) *Client {
	return NewClient(config.Stripe{
		SecretKey:     "sk_test_123",
		WebhookSecret: testSecret,
		SuccessURL:    "https://app/success",
		CancelURL:     "https://app/cancel",
		Currency:      "usd",
	}, opts...)
}

func TestParseWebhook(t *testing.T) {
	c := newTestClient()

	tests := []struct {
		name    string
		payload string
		check   func(t *testing.T, typ, session, sub, customer string, meta map[string]string)
	}{
		{
			name: "checkout completed",
			payload: `{"id":"evt_1","object":"event","type":"checkout.session.completed","data":{"object":{
				"id":"cs_1","object":"checkout.session","customer":"cus_1","subscription":"sub_1",
				"metadata":{"kind":"parent_intent","intent_id":"i-1"}}}}`,
			check: func(t *testing.T, typ, session, sub, customer string, meta map[string]string) {
				assert.Equal(t, EventCheckoutCompleted, typ)
				assert.Equal(t, "cs_1", session)
				assert.Equal(t, "sub_1", sub)
				assert.Equal(t, "cus_1", customer)
				assert.Equal(t, KindParentIntent, meta["kind"])
				assert.Equal(t, "i-1", meta["intent_id"])
			},
		},
		{
			name: "invoice paid",
			payload: `{"id":"evt_2","object":"event","type":"invoice.paid","data":{"object":{
				"id":"in_1","object":"invoice","customer":"cus_2","subscription":"sub_2",
				"billing_reason":"subscription_cycle"}}}`,
			check: func(t *testing.T, typ, _, sub, customer string, _ map[string]string) {
				assert.Equal(t, EventInvoicePaid, typ)
				assert.Equal(t, "sub_2", sub)
				assert.Equal(t, "cus_2", customer)
			},
		},
		{
			name: "subscription deleted",
			payload: `{"id":"evt_3","object":"event","type":"customer.subscription.deleted","data":{"object":{
				"id":"sub_3","object":"subscription","customer":"cus_3","metadata":{"kind":"subscription"}}}}`,
			check: func(t *testing.T, typ, _, sub, _ string, meta map[string]string) {
				assert.Equal(t, EventSubscriptionDeleted, typ)
				assert.Equal(t, "sub_3", sub)
				assert.Equal(t, KindSubscription, meta["kind"])
			},
		},
		{
			name:    "unknown type is passed through",
			payload: `{"id":"evt_4","object":"event","type":"charge.refunded","data":{"object":{"id":"ch_1","object":"charge"}}}`,
			check: func(t *testing.T, typ, session, sub, _ string, _ map[string]string) {
				assert.Equal(t, "charge.refunded", typ)
				assert.Empty(t, session)
				assert.Empty(t, sub)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			payload := []byte(tt.payload)
			ev, err := c.ParseWebhook(payload, sign(payload, testSecret, time.Now()))
			require.NoError(t, err)
			tt.check(t, ev.Type, ev.SessionID, ev.StripeSubscriptionID, ev.CustomerID, ev.Metadata)
		})
	}
}

func TestParseWebhook_InvalidSignature(t *testing.T) {
	c := newTestClient()
	payload := []byte(`{"id":"evt_1","object":"event","type":"invoice.paid","data":{"object":{}}}`)

	_, err := c.ParseWebhook(payload, sign(payload, "whsec_other", time.Now()))
	assert.ErrorIs(t, err, ErrInvalidSignature)

	_, err = c.ParseWebhook(payload, "")
	assert.ErrorIs(t, err, ErrInvalidSignature)

	_, err = c.ParseWebhook(payload, sign(payload, testSecret, time.Now().Add(-time.Hour)))
	assert.ErrorIs(t, err, ErrInvalidSignature, "stale timestamp")
}

func TestCreateCheckout(t *testing.T) {
	var form url.Values
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/checkout/sessions", r.URL.Path)
		body, _ := io.ReadAll(r.Body)
		form, _ = url.ParseQuery(string(body))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"cs_test_1","object":"checkout.session","url":"https://checkout.stripe.com/c/cs_test_1"}`))
	}))
	defer srv.Close()

	c := newTestClient(WithBackendURL(srv.URL))
	s, err := c.CreateCheckout(context.Background(), CheckoutRequest{
		Plan: "student_premium", Title: "Student Premium", Cycle: "yearly", Amount: 4990,
		Email: "kid@mail.com", Metadata: map[string]string{"kind": KindSubscription, "user_id": "u1"},
	})
	require.NoError(t, err)
	assert.Equal(t, "cs_test_1", s.ID)
	assert.Equal(t, "https://checkout.stripe.com/c/cs_test_1", s.URL)

	assert.Equal(t, "subscription", form.Get("mode"))
	assert.Equal(t, "4990", form.Get("line_items[0][price_data][unit_amount]"))
	assert.Equal(t, "year", form.Get("line_items[0][price_data][recurring][interval]"))
	assert.Equal(t, KindSubscription, form.Get("metadata[kind]"))
	assert.Equal(t, "u1", form.Get("subscription_data[metadata][user_id]"))
	assert.Equal(t, "kid@mail.com", form.Get("customer_email"))
}
