package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// PostingLine is one side of an entry, addressed by account code.
type PostingLine struct {
	Account   LedgerAccountCode
	Direction LedgerEntryDirection
	Amount    decimal.Decimal
}

type PostEntryRequest struct {
	SourceType LedgerSourceType
	SourceID   snowflake.ID
	Currency   string
	OccurredAt time.Time
	Lines      []PostingLine
}

type Repository interface {
	FindAccountByCode(ctx context.Context, db *gorm.DB, code LedgerAccountCode) (*LedgerAccount, error)
	InsertEntry(ctx context.Context, db *gorm.DB, entry *LedgerEntry) (bool, error)
	InsertLine(ctx context.Context, db *gorm.DB, line *LedgerEntryLine) error
	ListLinesByAccount(ctx context.Context, db *gorm.DB, accountID snowflake.ID) ([]LedgerEntryLine, error)
}

type Service interface {
	// PostEntry writes a balanced entry inside tx, or its own transaction when tx is nil.
	// Re-posting the same (source type, source id) is a no-op.
	PostEntry(ctx context.Context, tx *gorm.DB, req PostEntryRequest) error
	// Balance returns debits minus credits for the account.
	Balance(ctx context.Context, code LedgerAccountCode) (decimal.Decimal, error)
}

var (
	ErrInvalidSourceType    = errors.New("invalid_source_type")
	ErrInvalidSourceID      = errors.New("invalid_source_id")
	ErrInvalidCurrency      = errors.New("invalid_currency")
	ErrInvalidOccurredAt    = errors.New("invalid_occurred_at")
	ErrInvalidEntryLines    = errors.New("invalid_entry_lines")
	ErrInvalidAccount       = errors.New("invalid_account")
	ErrInvalidLineDirection = errors.New("invalid_line_direction")
	ErrInvalidLineAmount    = errors.New("invalid_line_amount")
	ErrUnbalancedEntry      = errors.New("unbalanced_entry")
	ErrAccountNotFound      = errors.New("ledger_account_not_found")
)

// ValidateBalanced checks that debits equal credits.
func ValidateBalanced(lines []PostingLine) error {
	debits := decimal.Zero
	credits := decimal.Zero
	for _, line := range lines {
		switch line.Direction {
		case LedgerEntryDirectionDebit:
			debits = debits.Add(line.Amount)
		case LedgerEntryDirectionCredit:
			credits = credits.Add(line.Amount)
		default:
			return ErrInvalidLineDirection
		}
	}
	if !debits.Equal(credits) {
		return ErrUnbalancedEntry
	}
	return nil
}
