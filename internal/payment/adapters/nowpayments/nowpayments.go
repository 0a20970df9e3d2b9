package nowpayments

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	paymentdomain "github.com/tekwealth/tekwealth/internal/payment/domain"
)

const (
	ProviderName     = "nowpayments"
	defaultBaseURL   = "https://api.nowpayments.io"
	defaultTimeout   = 15 * time.Second
	signatureHeader  = "x-nowpayments-sig"
	apiKeyHeader     = "x-api-key"
	maxResponseBytes = 1 << 20
)

type Factory struct{}

func NewFactory() *Factory {
	return &Factory{}
}

func (f *Factory) Provider() string {
	return ProviderName
}

func (f *Factory) NewGateway(cfg paymentdomain.AdapterConfig) (paymentdomain.Gateway, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, paymentdomain.ErrInvalidConfig
	}

	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	if _, err := url.Parse(baseURL); err != nil {
		return nil, paymentdomain.ErrInvalidConfig
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: timeout}
	}

	return &Adapter{
		apiKey:         apiKey,
		ipnSecret:      strings.TrimSpace(cfg.IPNSecret),
		baseURL:        baseURL,
		ipnCallbackURL: strings.TrimSpace(cfg.IPNCallbackURL),
		timeout:        timeout,
		client:         client,
	}, nil
}

type Adapter struct {
	apiKey         string
	ipnSecret      string
	baseURL        string
	ipnCallbackURL string
	timeout        time.Duration
	client         *http.Client
}

func (a *Adapter) Provider() string {
	return ProviderName
}

type createPaymentRequest struct {
	PriceAmount      json.Number `json:"price_amount"`
	PriceCurrency    string      `json:"price_currency"`
	PayCurrency      string      `json:"pay_currency"`
	OrderID          string      `json:"order_id,omitempty"`
	OrderDescription string      `json:"order_description,omitempty"`
	IPNCallbackURL   string      `json:"ipn_callback_url,omitempty"`
}

type paymentResponse struct {
	PaymentID        paymentdomain.FlexString `json:"payment_id"`
	PaymentStatus    string                   `json:"payment_status"`
	PayAddress       string                   `json:"pay_address"`
	PriceAmount      decimal.NullDecimal      `json:"price_amount"`
	PriceCurrency    string                   `json:"price_currency"`
	PayAmount        decimal.NullDecimal      `json:"pay_amount"`
	PayCurrency      string                   `json:"pay_currency"`
	OrderID          string                   `json:"order_id"`
	OrderDescription string                   `json:"order_description"`
	PurchaseID       paymentdomain.FlexString `json:"purchase_id"`
	OutcomeAmount    decimal.NullDecimal      `json:"outcome_amount"`
	OutcomeCurrency  string                   `json:"outcome_currency"`
}

func (a *Adapter) CreateIntent(ctx context.Context, req paymentdomain.IntentRequest) (*paymentdomain.PaymentIntent, error) {
	body, err := json.Marshal(createPaymentRequest{
		PriceAmount:      json.Number(req.PriceAmount.String()),
		PriceCurrency:    strings.ToLower(req.PriceCurrency),
		PayCurrency:      strings.ToLower(req.PayCurrency),
		OrderID:          req.OrderID,
		OrderDescription: req.OrderDescription,
		IPNCallbackURL:   a.ipnCallbackURL,
	})
	if err != nil {
		return nil, err
	}

	raw, err := a.do(ctx, http.MethodPost, "/v1/payment", body)
	if err != nil {
		return nil, err
	}

	var resp paymentResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("%w: decode payment: %v", paymentdomain.ErrGatewayUnavailable, err)
	}
	if resp.PaymentID.String() == "" {
		return nil, fmt.Errorf("%w: payment id missing", paymentdomain.ErrGatewayUnavailable)
	}

	return &paymentdomain.PaymentIntent{
		PaymentID:        resp.PaymentID.String(),
		PaymentStatus:    paymentdomain.NormalizeStatus(resp.PaymentStatus),
		PayAddress:       resp.PayAddress,
		PriceAmount:      resp.PriceAmount.Decimal,
		PriceCurrency:    strings.ToUpper(resp.PriceCurrency),
		PayAmount:        resp.PayAmount.Decimal,
		PayCurrency:      strings.ToUpper(resp.PayCurrency),
		OrderID:          resp.OrderID,
		OrderDescription: resp.OrderDescription,
		PurchaseID:       resp.PurchaseID.String(),
		OutcomeAmount:    resp.OutcomeAmount.Decimal,
		OutcomeCurrency:  strings.ToUpper(resp.OutcomeCurrency),
	}, nil
}

func (a *Adapter) GetStatus(ctx context.Context, paymentID string) (*paymentdomain.StatusEvent, error) {
	paymentID = strings.TrimSpace(paymentID)
	if paymentID == "" {
		return nil, paymentdomain.ErrInvalidPayload
	}

	raw, err := a.do(ctx, http.MethodGet, "/v1/payment/"+url.PathEscape(paymentID), nil)
	if err != nil {
		return nil, err
	}
	return paymentdomain.ParseStatusPayload(ProviderName, raw)
}

// Verify checks the IPN signature: hex HMAC-SHA512 over the body re-encoded
// with object keys sorted. Skipped when no IPN secret is configured.
func (a *Adapter) Verify(ctx context.Context, payload []byte, headers http.Header) error {
	if a.ipnSecret == "" {
		return nil
	}
	signature := strings.TrimSpace(headers.Get(signatureHeader))
	if signature == "" {
		return paymentdomain.ErrInvalidSignature
	}

	canonical, err := CanonicalJSON(payload)
	if err != nil {
		return paymentdomain.ErrInvalidPayload
	}
	expected := Sign(a.ipnSecret, canonical)
	if !hmac.Equal([]byte(strings.ToLower(signature)), []byte(expected)) {
		return paymentdomain.ErrInvalidSignature
	}
	return nil
}

func (a *Adapter) ParseStatus(ctx context.Context, payload []byte) (*paymentdomain.StatusEvent, error) {
	return paymentdomain.ParseStatusPayload(ProviderName, payload)
}

func (a *Adapter) do(ctx context.Context, method, path string, body []byte) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, a.baseURL+path, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set(apiKeyHeader, a.apiKey)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", paymentdomain.ErrGatewayUnavailable, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %v", paymentdomain.ErrGatewayUnavailable, err)
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, paymentdomain.ErrPaymentNotFound
	case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
		return nil, fmt.Errorf("%w: status %d", paymentdomain.ErrGatewayUnavailable, resp.StatusCode)
	case resp.StatusCode >= 400:
		return nil, fmt.Errorf("%w: status %d: %s", paymentdomain.ErrIntentRejected, resp.StatusCode, gatewayMessage(raw))
	}
	return raw, nil
}

func gatewayMessage(raw []byte) string {
	var body struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(raw, &body); err == nil && body.Message != "" {
		return body.Message
	}
	return "unexpected response"
}

// CanonicalJSON re-encodes a JSON document with object keys sorted at every
// depth, numbers kept verbatim and HTML characters unescaped.
func CanonicalJSON(payload []byte) ([]byte, error) {
	decoder := json.NewDecoder(bytes.NewReader(payload))
	decoder.UseNumber()

	var value any
	if err := decoder.Decode(&value); err != nil {
		return nil, err
	}
	if decoder.More() {
		return nil, errors.New("trailing data after json document")
	}

	var buf bytes.Buffer
	encoder := json.NewEncoder(&buf)
	encoder.SetEscapeHTML(false)
	if err := encoder.Encode(value); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// Sign returns the hex HMAC-SHA512 of payload.
func Sign(secret string, payload []byte) string {
	mac := hmac.New(sha512.New, []byte(secret))
	_, _ = mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}
