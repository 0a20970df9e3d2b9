package adapters

import (
	"context"
	"net/http"

	"github.com/tekwealth/tekwealth/internal/payment/domain"
)

// Unconfigured stands in when no gateway credential is set. Intents and
// polls fail; inbound status payloads still parse so deliveries get logged.
type Unconfigured struct {
	provider string
}

func NewUnconfigured(provider string) *Unconfigured {
	return &Unconfigured{provider: provider}
}

func (u *Unconfigured) Provider() string { return u.provider }

func (u *Unconfigured) CreateIntent(context.Context, domain.IntentRequest) (*domain.PaymentIntent, error) {
	return nil, domain.ErrGatewayNotConfigured
}

func (u *Unconfigured) GetStatus(context.Context, string) (*domain.StatusEvent, error) {
	return nil, domain.ErrGatewayNotConfigured
}

func (u *Unconfigured) Verify(context.Context, []byte, http.Header) error {
	return nil
}

func (u *Unconfigured) ParseStatus(_ context.Context, payload []byte) (*domain.StatusEvent, error) {
	return domain.ParseStatusPayload(u.provider, payload)
}
