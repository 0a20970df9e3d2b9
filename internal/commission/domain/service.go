package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/tekwealth/tekwealth/pkg/db/pagination"
	"gorm.io/gorm"
)

type DistributeRequest struct {
	SourceUserID string
	Amount       decimal.Decimal
	Currency     string
	// SourceRef identifies the originating payment; blank for manual runs.
	SourceRef string
}

type DistributeResult struct {
	Count        int
	Total        decimal.Decimal
	Transactions []Transaction
}

type ListRequest struct {
	UserID    string
	Status    string
	PageToken string
	PageSize  int
}

type ListResponse struct {
	pagination.PageInfo
	Transactions []Transaction `json:"transactions"`
}

type Repository interface {
	ListBeneficiaries(ctx context.Context, db *gorm.DB, sourceUserID string) ([]Beneficiary, error)
	Insert(ctx context.Context, db *gorm.DB, txn *Transaction) error
	AddToEdgeTotal(ctx context.Context, db *gorm.DB, referralID snowflake.ID, amount decimal.Decimal) (int64, error)
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Transaction, error)
	MarkPaid(ctx context.Context, db *gorm.DB, id snowflake.ID, paidAt time.Time) (int64, error)
	ListByBeneficiary(ctx context.Context, db *gorm.DB, userID string, status PaymentStatus, beforeID snowflake.ID, limit int) ([]Transaction, error)
}

//go:generate mockgen -source=service.go -destination=./mocks/mock_service.go -package=mocks
type Service interface {
	Distribute(ctx context.Context, req DistributeRequest) (DistributeResult, error)
	// DistributeTx runs inside the caller's transaction.
	DistributeTx(ctx context.Context, tx *gorm.DB, req DistributeRequest) (DistributeResult, error)
	MarkPaid(ctx context.Context, id string) (*Transaction, error)
	ListByBeneficiary(ctx context.Context, req ListRequest) (ListResponse, error)
}

var (
	ErrSourceUserRequired  = errors.New("source_user_required")
	ErrInvalidAmount       = errors.New("invalid_amount")
	ErrInvalidStatus       = errors.New("invalid_commission_status")
	ErrInvalidID           = errors.New("invalid_commission_id")
	ErrUserRequired        = errors.New("user_required")
	ErrTransactionNotFound = errors.New("commission_transaction_not_found")
	ErrEdgeNotFound        = errors.New("referral_edge_not_found")
	ErrAlreadyDistributed  = errors.New("commission_already_distributed")
)
