// Package sandbox is an offline gateway that issues NOWPayments-shaped
// intents without network calls. Used for local development and demos.
package sandbox

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/shopspring/decimal"
	"github.com/tekwealth/tekwealth/internal/clock"
	paymentdomain "github.com/tekwealth/tekwealth/internal/payment/domain"
)

const providerName = "sandbox"

const (
	btcAddress = "1A1zP1eP5QGefi2DMPTfTL5SLmv7DivfNa"
	evmAddress = "0x742d35cc6644c4532b7b8b52b1b0b8b5d4e4e4e4"
)

var (
	btcPayAmount   = decimal.RequireFromString("0.00087")
	otherPayAmount = decimal.RequireFromString("0.0234")
)

type Factory struct {
	clock clock.Clock
}

func NewFactory(clk clock.Clock) *Factory {
	if clk == nil {
		clk = clock.SystemClock{}
	}
	return &Factory{clock: clk}
}

func (f *Factory) Provider() string {
	return providerName
}

func (f *Factory) NewGateway(cfg paymentdomain.AdapterConfig) (paymentdomain.Gateway, error) {
	return &Adapter{clock: f.clock, statuses: map[string]paymentdomain.PaymentStatus{}}, nil
}

type Adapter struct {
	clock clock.Clock

	mu       sync.Mutex
	lastID   int64
	statuses map[string]paymentdomain.PaymentStatus
}

func (a *Adapter) Provider() string {
	return providerName
}

func (a *Adapter) CreateIntent(ctx context.Context, req paymentdomain.IntentRequest) (*paymentdomain.PaymentIntent, error) {
	currency, err := paymentdomain.NormalizeCurrency(req.PayCurrency)
	if err != nil {
		return nil, err
	}

	a.mu.Lock()
	ms := a.clock.Now().UnixMilli()
	if ms <= a.lastID {
		ms = a.lastID + 1
	}
	a.lastID = ms
	paymentID := fmt.Sprintf("np_%d", ms)
	a.statuses[paymentID] = paymentdomain.StatusWaiting
	a.mu.Unlock()

	address, payAmount := evmAddress, otherPayAmount
	if currency == "BTC" {
		address, payAmount = btcAddress, btcPayAmount
	}

	return &paymentdomain.PaymentIntent{
		PaymentID:        paymentID,
		PaymentStatus:    paymentdomain.StatusWaiting,
		PayAddress:       address,
		PriceAmount:      req.PriceAmount,
		PriceCurrency:    req.PriceCurrency,
		PayAmount:        payAmount,
		PayCurrency:      currency,
		OrderID:          req.OrderID,
		OrderDescription: req.OrderDescription,
		PurchaseID:       fmt.Sprintf("purchase_%d", ms),
		OutcomeAmount:    req.PriceAmount,
		OutcomeCurrency:  req.PriceCurrency,
	}, nil
}

func (a *Adapter) GetStatus(ctx context.Context, paymentID string) (*paymentdomain.StatusEvent, error) {
	a.mu.Lock()
	status, ok := a.statuses[paymentID]
	a.mu.Unlock()
	if !ok {
		return nil, paymentdomain.ErrPaymentNotFound
	}
	return &paymentdomain.StatusEvent{
		Provider:  providerName,
		PaymentID: paymentID,
		Status:    status,
		Payload:   []byte(fmt.Sprintf(`{"payment_id":%q,"payment_status":%q}`, paymentID, status)),
	}, nil
}

// Verify accepts every delivery; the sandbox has no shared secret.
func (a *Adapter) Verify(context.Context, []byte, http.Header) error {
	return nil
}

// ParseStatus also records the delivered status so later polls reflect it.
func (a *Adapter) ParseStatus(ctx context.Context, payload []byte) (*paymentdomain.StatusEvent, error) {
	event, err := paymentdomain.ParseStatusPayload(providerName, payload)
	if err != nil {
		return nil, err
	}
	a.mu.Lock()
	if _, ok := a.statuses[event.PaymentID]; ok {
		a.statuses[event.PaymentID] = event.Status
	}
	a.mu.Unlock()
	return event, nil
}
