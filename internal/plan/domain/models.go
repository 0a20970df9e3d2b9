package domain

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Plan is a purchasable subscription tier. Plans are reference data seeded by migration.
type Plan struct {
	ID            string          `json:"id" gorm:"primaryKey;type:text"`
	Name          string          `json:"name" gorm:"type:text;not null"`
	PriceUSD      decimal.Decimal `json:"price_usd" gorm:"type:numeric(20,8);not null"`
	MaxStrategies int             `json:"max_strategies" gorm:"not null"`
	MaxExchanges  int             `json:"max_exchanges" gorm:"not null"`
	Features      datatypes.JSON  `json:"features" gorm:"type:jsonb"`
	IsActive      bool            `json:"is_active" gorm:"not null;default:true"`
	SortOrder     int             `json:"-" gorm:"not null;default:0"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// TableName sets the database table name.
func (Plan) TableName() string { return "subscription_plans" }

type Repository interface {
	FindByID(ctx context.Context, db *gorm.DB, id string) (*Plan, error)
	ListActive(ctx context.Context, db *gorm.DB) ([]Plan, error)
}

type Service interface {
	Get(ctx context.Context, id string) (*Plan, error)
	List(ctx context.Context) ([]Plan, error)
}

var (
	ErrInvalidPlan  = errors.New("invalid_plan")
	ErrPlanNotFound = errors.New("plan_not_found")
)
