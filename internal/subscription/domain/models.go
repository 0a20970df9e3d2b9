// Package domain contains the user subscription model and its lifecycle contract.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// Status represents lifecycle states for a user subscription.
type Status string

const (
	StatusPending   Status = "pending"
	StatusActive    Status = "active"
	StatusExpired   Status = "expired"
	StatusCancelled Status = "cancelled"
)

// Terminal reports whether no further transition is allowed.
func (s Status) Terminal() bool {
	return s == StatusExpired || s == StatusCancelled
}

// UserSubscription is a user's paid access to a plan, backed by one crypto payment.
type UserSubscription struct {
	ID                  snowflake.ID `json:"id" gorm:"primaryKey"`
	UserID              string       `json:"user_id" gorm:"type:text;not null;index"`
	PlanID              string       `json:"plan_id" gorm:"type:text;not null"`
	Status              Status       `json:"status" gorm:"type:text;not null"`
	PaymentMethod       string       `json:"payment_method" gorm:"type:text;not null"`
	CryptoTransactionID string       `json:"crypto_transaction_id" gorm:"type:text;not null;uniqueIndex"`
	StartedAt           time.Time    `json:"started_at" gorm:"not null"`
	ExpiresAt           time.Time    `json:"expires_at" gorm:"not null"`
	ActivatedAt         *time.Time   `json:"activated_at,omitempty"`
	CancelledAt         *time.Time   `json:"cancelled_at,omitempty"`
	CreatedAt           time.Time    `json:"created_at" gorm:"not null"`
	UpdatedAt           time.Time    `json:"updated_at" gorm:"not null"`
}

// TableName sets the database table name.
func (UserSubscription) TableName() string { return "user_subscriptions" }

// Webhook outcomes recorded against each processed delivery.
const (
	OutcomeActivated             = "activated"
	OutcomeExpired               = "expired"
	OutcomeDuplicate             = "duplicate"
	OutcomeIgnoredUnknownPayment = "ignored_unknown_payment"
	OutcomeIgnoredStatus         = "ignored_status"
)
