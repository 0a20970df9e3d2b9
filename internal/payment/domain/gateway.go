package domain

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

//go:generate mockgen -source=gateway.go -destination=../mocks/mock_gateway.go -package=mocks
type Gateway interface {
	Provider() string
	CreateIntent(ctx context.Context, req IntentRequest) (*PaymentIntent, error)
	GetStatus(ctx context.Context, paymentID string) (*StatusEvent, error)
	Verify(ctx context.Context, payload []byte, headers http.Header) error
	ParseStatus(ctx context.Context, payload []byte) (*StatusEvent, error)
}

type AdapterConfig struct {
	APIKey         string
	IPNSecret      string
	BaseURL        string
	IPNCallbackURL string
	Timeout        time.Duration
	HTTPClient     *http.Client
}

type AdapterFactory interface {
	Provider() string
	NewGateway(cfg AdapterConfig) (Gateway, error)
}

type Repository interface {
	RecordEvent(ctx context.Context, db *gorm.DB, event *WebhookEventRecord) (bool, error)
	FindEvent(ctx context.Context, db *gorm.DB, provider, paymentID, status string) (*WebhookEventRecord, error)
	MarkProcessed(ctx context.Context, db *gorm.DB, id snowflake.ID, outcome string, processedAt time.Time) error
}

var (
	ErrProviderNotFound     = errors.New("payment_provider_not_found")
	ErrInvalidConfig        = errors.New("invalid_payment_config")
	ErrGatewayNotConfigured = errors.New("payment_gateway_not_configured")
	ErrGatewayUnavailable   = errors.New("payment_gateway_unavailable")
	ErrIntentRejected       = errors.New("payment_intent_rejected")
	ErrUnsupportedCurrency  = errors.New("unsupported_currency")
	ErrInvalidSignature     = errors.New("invalid_signature")
	ErrInvalidPayload       = errors.New("invalid_payload")
	ErrPaymentNotFound      = errors.New("payment_not_found")
)
