package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	ledgerdomain "github.com/tekwealth/tekwealth/internal/ledger/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() ledgerdomain.Repository {
	return &repo{}
}

func (r *repo) FindAccountByCode(ctx context.Context, db *gorm.DB, code ledgerdomain.LedgerAccountCode) (*ledgerdomain.LedgerAccount, error) {
	var account ledgerdomain.LedgerAccount
	err := db.WithContext(ctx).Raw(
		`SELECT id, code, name, created_at FROM ledger_accounts WHERE code = ?`,
		string(code),
	).Scan(&account).Error
	if err != nil {
		return nil, err
	}
	if account.ID == 0 {
		return nil, nil
	}
	return &account, nil
}

func (r *repo) InsertEntry(ctx context.Context, db *gorm.DB, entry *ledgerdomain.LedgerEntry) (bool, error) {
	result := db.WithContext(ctx).Exec(
		`INSERT INTO ledger_entries (
			id, source_type, source_id, currency, occurred_at, created_at
		) VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (source_type, source_id) DO NOTHING`,
		entry.ID,
		string(entry.SourceType),
		entry.SourceID,
		entry.Currency,
		entry.OccurredAt,
		entry.CreatedAt,
	)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repo) InsertLine(ctx context.Context, db *gorm.DB, line *ledgerdomain.LedgerEntryLine) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO ledger_entry_lines (
			id, ledger_entry_id, account_id, direction, amount, created_at
		) VALUES (?, ?, ?, ?, ?, ?)`,
		line.ID,
		line.LedgerEntryID,
		line.AccountID,
		string(line.Direction),
		line.Amount,
		line.CreatedAt,
	).Error
}

func (r *repo) ListLinesByAccount(ctx context.Context, db *gorm.DB, accountID snowflake.ID) ([]ledgerdomain.LedgerEntryLine, error) {
	var lines []ledgerdomain.LedgerEntryLine
	err := db.WithContext(ctx).Raw(
		`SELECT id, ledger_entry_id, account_id, direction, amount, created_at
		 FROM ledger_entry_lines WHERE account_id = ? ORDER BY id ASC`,
		accountID,
	).Scan(&lines).Error
	if err != nil {
		return nil, err
	}
	return lines, nil
}
