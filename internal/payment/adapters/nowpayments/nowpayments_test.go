package nowpayments

import (
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	paymentdomain "github.com/tekwealth/tekwealth/internal/payment/domain"
)

func newTestAdapter(t *testing.T, baseURL, ipnSecret string) *Adapter {
	t.Helper()
	gw, err := NewFactory().NewGateway(paymentdomain.AdapterConfig{
		APIKey:         "test-key",
		IPNSecret:      ipnSecret,
		BaseURL:        baseURL,
		IPNCallbackURL: "https://api.example.com/payment",
		Timeout:        2 * time.Second,
	})
	require.NoError(t, err)
	return gw.(*Adapter)
}

func TestNewGatewayRequiresAPIKey(t *testing.T) {
	_, err := NewFactory().NewGateway(paymentdomain.AdapterConfig{})
	assert.ErrorIs(t, err, paymentdomain.ErrInvalidConfig)
}

func TestCreateIntent(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/payment", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("x-api-key"))
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &got))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"payment_id": 5077125051,
			"payment_status": "waiting",
			"pay_address": "0xabc",
			"price_amount": 50,
			"price_currency": "usd",
			"pay_amount": 0.0234,
			"pay_currency": "eth",
			"order_id": "order_1",
			"order_description": "Pro Plan Subscription",
			"purchase_id": "4944856743",
			"outcome_amount": 49.5,
			"outcome_currency": "usd"
		}`))
	}))
	defer srv.Close()

	adapter := newTestAdapter(t, srv.URL, "")
	intent, err := adapter.CreateIntent(context.Background(), paymentdomain.IntentRequest{
		PriceAmount:      decimal.NewFromInt(50),
		PriceCurrency:    "USD",
		PayCurrency:      "ETH",
		OrderID:          "order_1",
		OrderDescription: "Pro Plan Subscription",
	})
	require.NoError(t, err)

	assert.Equal(t, "5077125051", intent.PaymentID)
	assert.Equal(t, paymentdomain.StatusWaiting, intent.PaymentStatus)
	assert.Equal(t, "ETH", intent.PayCurrency)
	assert.True(t, intent.PayAmount.Equal(decimal.RequireFromString("0.0234")))
	assert.Equal(t, "4944856743", intent.PurchaseID)

	assert.Equal(t, float64(50), got["price_amount"])
	assert.Equal(t, "usd", got["price_currency"])
	assert.Equal(t, "eth", got["pay_currency"])
	assert.Equal(t, "https://api.example.com/payment", got["ipn_callback_url"])
}

func TestCreateIntentMapsGatewayFailures(t *testing.T) {
	cases := []struct {
		name   string
		status int
		want   error
	}{
		{"server error", http.StatusBadGateway, paymentdomain.ErrGatewayUnavailable},
		{"throttled", http.StatusTooManyRequests, paymentdomain.ErrGatewayUnavailable},
		{"rejected", http.StatusBadRequest, paymentdomain.ErrIntentRejected},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(`{"message":"nope"}`))
			}))
			defer srv.Close()

			_, err := newTestAdapter(t, srv.URL, "").CreateIntent(context.Background(), paymentdomain.IntentRequest{
				PriceAmount: decimal.NewFromInt(25), PriceCurrency: "USD", PayCurrency: "BTC",
			})
			assert.ErrorIs(t, err, tc.want)
		})
	}
}

func TestCreateIntentTimesOut(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	gw, err := NewFactory().NewGateway(paymentdomain.AdapterConfig{
		APIKey:  "test-key",
		BaseURL: srv.URL,
		Timeout: 50 * time.Millisecond,
	})
	require.NoError(t, err)

	_, err = gw.CreateIntent(context.Background(), paymentdomain.IntentRequest{
		PriceAmount: decimal.NewFromInt(25), PriceCurrency: "USD", PayCurrency: "BTC",
	})
	assert.True(t, errors.Is(err, paymentdomain.ErrGatewayUnavailable), "got %v", err)
}

func TestGetStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v1/payment/123":
			_, _ = w.Write([]byte(`{"payment_id":123,"payment_status":"Finished"}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	adapter := newTestAdapter(t, srv.URL, "")
	event, err := adapter.GetStatus(context.Background(), "123")
	require.NoError(t, err)
	assert.Equal(t, "123", event.PaymentID)
	assert.Equal(t, paymentdomain.StatusFinished, event.Status)
	assert.Equal(t, "nowpayments", event.Provider)

	_, err = adapter.GetStatus(context.Background(), "999")
	assert.ErrorIs(t, err, paymentdomain.ErrPaymentNotFound)
}

func TestCanonicalJSONSortsKeys(t *testing.T) {
	out, err := CanonicalJSON([]byte(`{"b":1.50,"a":{"z":"<x>","y":[2,1]}}`))
	require.NoError(t, err)
	assert.Equal(t, `{"a":{"y":[2,1],"z":"<x>"},"b":1.50}`, string(out))

	_, err = CanonicalJSON([]byte(`{"a":1} {"b":2}`))
	assert.Error(t, err)
}

func TestVerifySignature(t *testing.T) {
	secret := "ipn_secret"
	payload := []byte(`{"payment_status":"finished","payment_id":42,"actually_paid":0.0234}`)
	sorted := `{"actually_paid":0.0234,"payment_id":42,"payment_status":"finished"}`

	mac := hmac.New(sha512.New, []byte(secret))
	mac.Write([]byte(sorted))
	valid := hex.EncodeToString(mac.Sum(nil))

	adapter := newTestAdapter(t, "http://unused", secret)
	headers := http.Header{}
	headers.Set("x-nowpayments-sig", valid)
	require.NoError(t, adapter.Verify(context.Background(), payload, headers))

	headers.Set("x-nowpayments-sig", Sign("wrong", []byte(sorted)))
	assert.ErrorIs(t, adapter.Verify(context.Background(), payload, headers), paymentdomain.ErrInvalidSignature)

	assert.ErrorIs(t, adapter.Verify(context.Background(), payload, http.Header{}), paymentdomain.ErrInvalidSignature)

	unsigned := newTestAdapter(t, "http://unused", "")
	assert.NoError(t, unsigned.Verify(context.Background(), payload, http.Header{}))
}

func TestParseStatus(t *testing.T) {
	adapter := newTestAdapter(t, "http://unused", "")

	event, err := adapter.ParseStatus(context.Background(), []byte(`{"payment_id":"np_1","payment_status":"failed"}`))
	require.NoError(t, err)
	assert.Equal(t, "np_1", event.PaymentID)
	assert.Equal(t, paymentdomain.StatusFailed, event.Status)

	_, err = adapter.ParseStatus(context.Background(), []byte(`{"payment_status":"failed"}`))
	assert.ErrorIs(t, err, paymentdomain.ErrInvalidPayload)

	_, err = adapter.ParseStatus(context.Background(), []byte(`not json`))
	assert.ErrorIs(t, err, paymentdomain.ErrInvalidPayload)
}
