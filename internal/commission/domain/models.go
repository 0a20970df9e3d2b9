package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

type PaymentStatus string

const (
	PaymentStatusPending PaymentStatus = "pending"
	PaymentStatusPaid    PaymentStatus = "paid"
)

const (
	TransactionTypeSubscription = "subscription_commission"
	DefaultCurrency             = "USD"
)

// Transaction is one commission earned by an upline from a downline payment.
type Transaction struct {
	ID              snowflake.ID    `json:"id" gorm:"primaryKey"`
	UserID          string          `json:"user_id" gorm:"type:text;not null;index"`
	ReferralID      snowflake.ID    `json:"referral_id" gorm:"not null"`
	SourceUserID    string          `json:"source_user_id" gorm:"type:text;not null"`
	SourceRef       *string         `json:"source_ref,omitempty" gorm:"type:text"`
	Level           int             `json:"level" gorm:"not null"`
	Amount          decimal.Decimal `json:"amount" gorm:"type:numeric(20,8);not null"`
	Currency        string          `json:"currency" gorm:"type:text;not null"`
	TransactionType string          `json:"transaction_type" gorm:"type:text;not null"`
	PaymentStatus   PaymentStatus   `json:"payment_status" gorm:"type:text;not null"`
	CreatedAt       time.Time       `json:"created_at"`
	PaidAt          *time.Time      `json:"paid_at,omitempty"`
}

// TableName sets the database table name.
func (Transaction) TableName() string { return "commission_transactions" }

// Beneficiary is an upline edge of the paying user.
type Beneficiary struct {
	ReferralID snowflake.ID
	ReferrerID string
	Level      int
}
