package stripegw

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v76"

	"github.com/xraph/entitle/gateway"
)

const webhookSecret = "whsec_test"

func newTestGateway(t *testing.T, mux *http.ServeMux) *Gateway {
	t.Helper()
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	backend := stripe.GetBackendWithConfig(stripe.APIBackend, &stripe.BackendConfig{
		URL:               stripe.String(srv.URL),
		MaxNetworkRetries: stripe.Int64(0),
		LeveledLogger:     &stripe.LeveledLogger{Level: stripe.LevelNull},
	})
	g, err := New(Config{
		SecretKey:     "sk_test_123",
		WebhookSecret: webhookSecret,
		SuccessURL:    "https://app.test/success",
		CancelURL:     "https://app.test/cancel",
	}, WithBackends(&stripe.Backends{API: backend, Connect: backend, Uploads: backend}))
	require.NoError(t, err)
	return g
}

func TestNewRequiresSecretKey(t *testing.T) {
	_, err := New(Config{})
	require.Error(t, err)
}

func TestListCompletedTransactions(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/checkout/sessions", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "50", r.URL.Query().Get("limit"))
		assert.Equal(t, "complete", r.URL.Query().Get("status"))
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{
  "object": "list",
  "url": "/v1/checkout/sessions",
  "has_more": false,
  "data": [
    {
      "id": "cs_1", "object": "checkout.session", "status": "complete",
      "client_reference_id": "ck_a", "metadata": {"pack_id": "gamer"}, "created": 1760000000,
      "line_items": {"object": "list", "url": "/v1/checkout/sessions/cs_1/line_items", "has_more": false,
        "data": [{"id": "li_1", "object": "item", "quantity": 1, "price": {"id": "price_gamer", "object": "price"}}]}
    },
    {"id": "cs_2", "object": "checkout.session", "status": "open", "client_reference_id": "ck_a"},
    {"id": "cs_3", "object": "checkout.session", "status": "complete", "metadata": {"client_key": "ck_b"}}
  ]
}`)
	})
	g := newTestGateway(t, mux)

	txs, err := g.ListCompletedTransactions(context.Background(), 50)
	require.NoError(t, err)
	require.Len(t, txs, 2)

	assert.Equal(t, "cs_1", txs[0].ID)
	assert.Equal(t, "ck_a", txs[0].ClientKey())
	assert.True(t, txs[0].LineItemsExpanded)
	assert.Equal(t, []gateway.LineItem{{PriceID: "price_gamer", Quantity: 1}}, txs[0].LineItems)

	assert.Equal(t, "ck_b", txs[1].ClientKey())
	assert.False(t, txs[1].LineItemsExpanded)
}

func TestListLineItems(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/checkout/sessions/cs_9/line_items", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"object": "list", "url": "/v1/checkout/sessions/cs_9/line_items", "has_more": false,
  "data": [{"id": "li_1", "object": "item", "quantity": 1, "price": {"id": "price_date", "object": "price"}}]}`)
	})
	g := newTestGateway(t, mux)

	items, err := g.ListLineItems(context.Background(), "cs_9")
	require.NoError(t, err)
	assert.Equal(t, []gateway.LineItem{{PriceID: "price_date", Quantity: 1}}, items)
}

func TestCreateCheckoutSession(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/checkout/sessions", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "subscription", r.PostForm.Get("mode"))
		assert.Equal(t, "price_sub", r.PostForm.Get("line_items[0][price]"))
		assert.Equal(t, "ck_a", r.PostForm.Get("client_reference_id"))
		assert.Equal(t, "ck_a", r.PostForm.Get("metadata[client_key]"))
		assert.Equal(t, "ck_a", r.PostForm.Get("subscription_data[metadata][client_key]"))
		assert.Equal(t, "https://app.test/success", r.PostForm.Get("success_url"))

		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"id": "cs_new", "object": "checkout.session", "url": "https://checkout.stripe.test/cs_new"}`)
	})
	g := newTestGateway(t, mux)

	s, err := g.CreateCheckoutSession(context.Background(), gateway.CheckoutRequest{
		PriceID:           "price_sub",
		Mode:              gateway.ModeSubscription,
		ClientReferenceID: "ck_a",
		Metadata:          map[string]string{gateway.MetadataClientKey: "ck_a", gateway.MetadataPackID: "subscription"},
	})
	require.NoError(t, err)
	assert.Equal(t, "cs_new", s.ID)
	assert.Equal(t, "https://checkout.stripe.test/cs_new", s.URL)
}

func TestGetSubscription(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/subscriptions/sub_1", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"id": "sub_1", "object": "subscription", "status": "active", "metadata": {"client_key": "ck_a"}}`)
	})
	g := newTestGateway(t, mux)

	sub, err := g.GetSubscription(context.Background(), "sub_1")
	require.NoError(t, err)
	assert.Equal(t, "active", sub.Status)
	assert.Equal(t, "ck_a", sub.Metadata[gateway.MetadataClientKey])
}

func TestVerifyEvent(t *testing.T) {
	g := newTestGateway(t, http.NewServeMux())

	tests := []struct {
		name    string
		payload string
		want    gateway.EventType
		check   func(t *testing.T, e *gateway.Event)
	}{
		{
			name: "checkout completed",
			payload: `{"id": "evt_1", "object": "event", "type": "checkout.session.completed", "api_version": "2023-10-16",
  "data": {"object": {"id": "cs_1", "object": "checkout.session", "status": "complete",
    "client_reference_id": "ck_a", "metadata": {"pack_id": "gamer"}}}}`,
			want: gateway.EventPurchaseCompleted,
			check: func(t *testing.T, e *gateway.Event) {
				require.NotNil(t, e.Transaction)
				assert.Equal(t, "ck_a", e.Transaction.ClientKey())
				assert.Equal(t, "gamer", e.Transaction.Metadata[gateway.MetadataPackID])
			},
		},
		{
			name: "invoice paid",
			payload: `{"id": "evt_2", "object": "event", "type": "invoice.paid", "api_version": "2023-10-16",
  "data": {"object": {"id": "in_1", "object": "invoice", "subscription": "sub_1"}}}`,
			want: gateway.EventSubscriptionInvoicePaid,
			check: func(t *testing.T, e *gateway.Event) {
				assert.Equal(t, "sub_1", e.SubscriptionID)
			},
		},
		{
			name: "one-off invoice",
			payload: `{"id": "evt_3", "object": "event", "type": "invoice.payment_succeeded", "api_version": "2023-10-16",
  "data": {"object": {"id": "in_2", "object": "invoice"}}}`,
			want: gateway.EventOther,
		},
		{
			name: "unrelated",
			payload: `{"id": "evt_4", "object": "event", "type": "customer.created", "api_version": "2023-10-16",
  "data": {"object": {"id": "cus_1", "object": "customer"}}}`,
			want: gateway.EventOther,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			payload := []byte(tt.payload)
			e, err := g.VerifyEvent(payload, signHeader(payload, webhookSecret, time.Now()))
			require.NoError(t, err)
			assert.Equal(t, tt.want, e.Type)
			if tt.check != nil {
				tt.check(t, e)
			}
		})
	}
}

func TestVerifyEventRejects(t *testing.T) {
	g := newTestGateway(t, http.NewServeMux())
	payload := []byte(`{"id": "evt_1", "object": "event", "type": "checkout.session.completed", "data": {"object": {}}}`)

	tests := []struct {
		name   string
		header string
	}{
		{"wrong secret", signHeader(payload, "whsec_other", time.Now())},
		{"stale timestamp", signHeader(payload, webhookSecret, time.Now().Add(-time.Hour))},
		{"garbage", "not-a-signature"},
		{"empty", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := g.VerifyEvent(payload, tt.header)
			require.ErrorIs(t, err, gateway.ErrInvalidSignature)
		})
	}

	t.Run("tampered body", func(t *testing.T) {
		header := signHeader(payload, webhookSecret, time.Now())
		tampered := append([]byte(nil), payload...)
		tampered[len(tampered)-2] = ' '
		_, err := g.VerifyEvent(tampered, header)
		require.ErrorIs(t, err, gateway.ErrInvalidSignature)
	})
}

func signHeader(payload []byte, secret string, at time.Time) string {
	ts := at.Unix()
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%d.%s", ts, payload)
	return fmt.Sprintf("t=%d,v1=%s", ts, hex.EncodeToString(mac.Sum(nil)))
}
