package repository

import (
	"context"
	"time"

	commissiondomain "github.com/tekwealth/tekwealth/internal/commission/domain"
	referraldomain "github.com/tekwealth/tekwealth/internal/referral/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() referraldomain.Repository {
	return &repo{}
}

func (r *repo) FindCode(ctx context.Context, db *gorm.DB, code string) (*referraldomain.Code, error) {
	var row referraldomain.Code
	err := db.WithContext(ctx).Raw(
		`SELECT id, code, user_id, is_active, uses_count, created_at, updated_at
		 FROM referral_codes WHERE code = ?`,
		code,
	).Scan(&row).Error
	if err != nil {
		return nil, err
	}
	if row.ID == 0 {
		return nil, nil
	}
	return &row, nil
}

func (r *repo) FindActiveCodeByOwner(ctx context.Context, db *gorm.DB, userID string) (*referraldomain.Code, error) {
	var row referraldomain.Code
	err := db.WithContext(ctx).Raw(
		`SELECT id, code, user_id, is_active, uses_count, created_at, updated_at
		 FROM referral_codes WHERE user_id = ? AND is_active = ?`,
		userID,
		true,
	).Scan(&row).Error
	if err != nil {
		return nil, err
	}
	if row.ID == 0 {
		return nil, nil
	}
	return &row, nil
}

func (r *repo) CodeExists(ctx context.Context, db *gorm.DB, code string) (bool, error) {
	var count int64
	err := db.WithContext(ctx).Raw(
		`SELECT COUNT(1) FROM referral_codes WHERE code = ?`,
		code,
	).Scan(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *repo) InsertCode(ctx context.Context, db *gorm.DB, code *referraldomain.Code) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO referral_codes (id, code, user_id, is_active, uses_count, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		code.ID,
		code.Code,
		code.UserID,
		code.IsActive,
		code.UsesCount,
		code.CreatedAt,
		code.UpdatedAt,
	).Error
}

func (r *repo) DeactivateOwnerCodes(ctx context.Context, db *gorm.DB, userID string, now time.Time) (int64, error) {
	result := db.WithContext(ctx).Exec(
		`UPDATE referral_codes SET is_active = ?, updated_at = ? WHERE user_id = ? AND is_active = ?`,
		false,
		now,
		userID,
		true,
	)
	return result.RowsAffected, result.Error
}

func (r *repo) IncrementUses(ctx context.Context, db *gorm.DB, code string, now time.Time) (int64, error) {
	result := db.WithContext(ctx).Exec(
		`UPDATE referral_codes SET uses_count = uses_count + 1, updated_at = ?
		 WHERE code = ? AND is_active = ?`,
		now,
		code,
		true,
	)
	return result.RowsAffected, result.Error
}

func (r *repo) FindReferrer(ctx context.Context, db *gorm.DB, userID string) (string, error) {
	var row struct {
		ReferrerID string
	}
	err := db.WithContext(ctx).Raw(
		`SELECT referrer_id FROM user_referrals WHERE referred_id = ? AND level = 1`,
		userID,
	).Scan(&row).Error
	if err != nil {
		return "", err
	}
	return row.ReferrerID, nil
}

func (r *repo) ListUpline(ctx context.Context, db *gorm.DB, userID string) ([]referraldomain.Edge, error) {
	var edges []referraldomain.Edge
	err := db.WithContext(ctx).Raw(
		`SELECT id, referrer_id, referred_id, level, commission_rate, total_commission, created_at
		 FROM user_referrals WHERE referred_id = ? ORDER BY level ASC`,
		userID,
	).Scan(&edges).Error
	if err != nil {
		return nil, err
	}
	return edges, nil
}

func (r *repo) ListDownline(ctx context.Context, db *gorm.DB, userID string) ([]referraldomain.Edge, error) {
	var edges []referraldomain.Edge
	err := db.WithContext(ctx).Raw(
		`SELECT id, referrer_id, referred_id, level, commission_rate, total_commission, created_at
		 FROM user_referrals WHERE referrer_id = ? ORDER BY level ASC, id ASC`,
		userID,
	).Scan(&edges).Error
	if err != nil {
		return nil, err
	}
	return edges, nil
}

func (r *repo) InsertEdge(ctx context.Context, db *gorm.DB, edge *referraldomain.Edge) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO user_referrals (id, referrer_id, referred_id, level, commission_rate, total_commission, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		edge.ID,
		edge.ReferrerID,
		edge.ReferredID,
		edge.Level,
		edge.CommissionRate,
		edge.TotalCommission,
		edge.CreatedAt,
	).Error
}

func (r *repo) CountByLevel(ctx context.Context, db *gorm.DB, referrerID string) ([]referraldomain.LevelCount, error) {
	var rows []referraldomain.LevelCount
	err := db.WithContext(ctx).Raw(
		`SELECT level, COUNT(1) AS count FROM user_referrals
		 WHERE referrer_id = ? GROUP BY level ORDER BY level ASC`,
		referrerID,
	).Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repo) ListPaidCommissions(ctx context.Context, db *gorm.DB, userID string) ([]referraldomain.LevelAmount, error) {
	var rows []referraldomain.LevelAmount
	err := db.WithContext(ctx).Raw(
		`SELECT level, amount FROM commission_transactions
		 WHERE user_id = ? AND payment_status = ?`,
		userID,
		string(commissiondomain.PaymentStatusPaid),
	).Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}
