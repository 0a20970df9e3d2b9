// Package domain defines referral codes and the referral graph.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

// Code is a shareable referral code owned by a single user.
type Code struct {
	ID        snowflake.ID `json:"id" gorm:"primaryKey"`
	Code      string       `json:"code" gorm:"type:text;not null;uniqueIndex"`
	UserID    string       `json:"user_id" gorm:"type:text;not null"`
	IsActive  bool         `json:"is_active" gorm:"not null;default:true"`
	UsesCount int          `json:"uses_count" gorm:"not null;default:0"`
	CreatedAt time.Time    `json:"created_at"`
	UpdatedAt time.Time    `json:"updated_at"`
}

// TableName sets the database table name.
func (Code) TableName() string { return "referral_codes" }

// Edge links an upline (referrer) to a downline (referred) at a depth of 1..10.
type Edge struct {
	ID              snowflake.ID    `json:"id" gorm:"primaryKey"`
	ReferrerID      string          `json:"referrer_id" gorm:"type:text;not null"`
	ReferredID      string          `json:"referred_id" gorm:"type:text;not null"`
	Level           int             `json:"level" gorm:"not null"`
	CommissionRate  decimal.Decimal `json:"commission_rate" gorm:"type:numeric(8,6);not null"`
	TotalCommission decimal.Decimal `json:"total_commission" gorm:"type:numeric(20,8);not null"`
	CreatedAt       time.Time       `json:"created_at"`
}

// TableName sets the database table name.
func (Edge) TableName() string { return "user_referrals" }

type ApplyResult struct {
	ReferrerID   string
	EdgesCreated int
	Edges        []Edge
}

type LevelBreakdown struct {
	Level      int             `json:"level"`
	Count      int             `json:"count"`
	Commission decimal.Decimal `json:"commission"`
}

type Stats struct {
	TotalReferrals   int
	TotalCommissions decimal.Decimal
	LevelBreakdown   []LevelBreakdown
}

// LevelCount is a per-level aggregate row.
type LevelCount struct {
	Level int
	Count int
}

// LevelAmount is a paid commission amount at a level.
type LevelAmount struct {
	Level  int
	Amount decimal.Decimal
}
