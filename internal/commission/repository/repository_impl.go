package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	commissiondomain "github.com/tekwealth/tekwealth/internal/commission/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() commissiondomain.Repository {
	return &repo{}
}

func (r *repo) ListBeneficiaries(ctx context.Context, db *gorm.DB, sourceUserID string) ([]commissiondomain.Beneficiary, error) {
	var rows []commissiondomain.Beneficiary
	err := db.WithContext(ctx).Raw(
		`SELECT id AS referral_id, referrer_id, level
		 FROM user_referrals
		 WHERE referred_id = ? AND level BETWEEN 1 AND ?
		 ORDER BY level ASC`,
		sourceUserID,
		commissiondomain.MaxLevel,
	).Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, txn *commissiondomain.Transaction) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO commission_transactions (
			id, user_id, referral_id, source_user_id, source_ref, level, amount, currency,
			transaction_type, payment_status, created_at, paid_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		txn.ID,
		txn.UserID,
		txn.ReferralID,
		txn.SourceUserID,
		txn.SourceRef,
		txn.Level,
		txn.Amount,
		txn.Currency,
		txn.TransactionType,
		string(txn.PaymentStatus),
		txn.CreatedAt,
		txn.PaidAt,
	).Error
}

func (r *repo) AddToEdgeTotal(ctx context.Context, db *gorm.DB, referralID snowflake.ID, amount decimal.Decimal) (int64, error) {
	result := db.WithContext(ctx).Exec(
		`UPDATE user_referrals SET total_commission = total_commission + ? WHERE id = ?`,
		amount,
		referralID,
	)
	return result.RowsAffected, result.Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*commissiondomain.Transaction, error) {
	var txn commissiondomain.Transaction
	err := db.WithContext(ctx).Raw(
		`SELECT id, user_id, referral_id, source_user_id, source_ref, level, amount, currency,
		 transaction_type, payment_status, created_at, paid_at
		 FROM commission_transactions WHERE id = ?`,
		id,
	).Scan(&txn).Error
	if err != nil {
		return nil, err
	}
	if txn.ID == 0 {
		return nil, nil
	}
	return &txn, nil
}

func (r *repo) MarkPaid(ctx context.Context, db *gorm.DB, id snowflake.ID, paidAt time.Time) (int64, error) {
	result := db.WithContext(ctx).Exec(
		`UPDATE commission_transactions SET payment_status = ?, paid_at = ?
		 WHERE id = ? AND payment_status = ?`,
		string(commissiondomain.PaymentStatusPaid),
		paidAt,
		id,
		string(commissiondomain.PaymentStatusPending),
	)
	return result.RowsAffected, result.Error
}

func (r *repo) ListByBeneficiary(ctx context.Context, db *gorm.DB, userID string, status commissiondomain.PaymentStatus, beforeID snowflake.ID, limit int) ([]commissiondomain.Transaction, error) {
	stmt := db.WithContext(ctx).
		Table("commission_transactions").
		Select(`id, user_id, referral_id, source_user_id, source_ref, level, amount, currency,
			transaction_type, payment_status, created_at, paid_at`).
		Where("user_id = ?", userID)
	if status != "" {
		stmt = stmt.Where("payment_status = ?", string(status))
	}
	if beforeID != 0 {
		stmt = stmt.Where("id < ?", beforeID)
	}

	var rows []commissiondomain.Transaction
	if err := stmt.Order("id DESC").Limit(limit).Scan(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}
