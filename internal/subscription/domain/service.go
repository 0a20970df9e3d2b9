package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	paymentdomain "github.com/tekwealth/tekwealth/internal/payment/domain"
	"gorm.io/gorm"
)

type CreatePendingRequest struct {
	UserID   string `json:"userId"`
	PlanID   string `json:"planId"`
	Currency string `json:"currency"`
}

type CreatePendingResult struct {
	Subscription UserSubscription
	Payment      paymentdomain.PaymentIntent
}

type WebhookResult struct {
	SubscriptionID snowflake.ID
	Outcome        string
	Commissions    int
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, sub *UserSubscription) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*UserSubscription, error)
	FindByPaymentID(ctx context.Context, db *gorm.DB, paymentID string) (*UserSubscription, error)
	ListByUser(ctx context.Context, db *gorm.DB, userID string) ([]UserSubscription, error)
	// Transition moves a row to `to` only while it is in one of `from`.
	Transition(ctx context.Context, db *gorm.DB, id snowflake.ID, from []Status, to Status, at time.Time) (int64, error)
	ExpireDue(ctx context.Context, db *gorm.DB, now time.Time) (int64, error)
}

//go:generate mockgen -source=service.go -destination=./mocks/mock_service.go -package=mocks
type Service interface {
	CreatePending(ctx context.Context, req CreatePendingRequest) (*CreatePendingResult, error)
	HandlePaymentWebhook(ctx context.Context, event paymentdomain.StatusEvent) (WebhookResult, error)
	Reconcile(ctx context.Context, paymentID string) (WebhookResult, error)
	ExpireDue(ctx context.Context) (int64, error)
	Cancel(ctx context.Context, id string) (*UserSubscription, error)
	Get(ctx context.Context, id string) (*UserSubscription, error)
	ListByUser(ctx context.Context, userID string) ([]UserSubscription, error)
}

var (
	ErrUserRequired         = errors.New("user_required")
	ErrPlanRequired         = errors.New("plan_required")
	ErrCurrencyRequired     = errors.New("currency_required")
	ErrInvalidSubscription  = errors.New("invalid_subscription")
	ErrSubscriptionNotFound = errors.New("subscription_not_found")
	ErrInvalidTransition    = errors.New("invalid_transition")
	ErrCreateFailed         = errors.New("subscription_create_failed")
)
