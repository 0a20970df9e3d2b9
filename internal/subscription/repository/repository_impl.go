package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	subscriptiondomain "github.com/tekwealth/tekwealth/internal/subscription/domain"
	"gorm.io/gorm"
)

const subscriptionColumns = `id, user_id, plan_id, status, payment_method, crypto_transaction_id,
	started_at, expires_at, activated_at, cancelled_at, created_at, updated_at`

type repo struct{}

func Provide() subscriptiondomain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, sub *subscriptiondomain.UserSubscription) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO user_subscriptions (`+subscriptionColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sub.ID,
		sub.UserID,
		sub.PlanID,
		sub.Status,
		sub.PaymentMethod,
		sub.CryptoTransactionID,
		sub.StartedAt,
		sub.ExpiresAt,
		sub.ActivatedAt,
		sub.CancelledAt,
		sub.CreatedAt,
		sub.UpdatedAt,
	).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*subscriptiondomain.UserSubscription, error) {
	var item subscriptiondomain.UserSubscription
	err := db.WithContext(ctx).Raw(
		`SELECT `+subscriptionColumns+`
		 FROM user_subscriptions
		 WHERE id = ?`,
		id,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) FindByPaymentID(ctx context.Context, db *gorm.DB, paymentID string) (*subscriptiondomain.UserSubscription, error) {
	var item subscriptiondomain.UserSubscription
	err := db.WithContext(ctx).Raw(
		`SELECT `+subscriptionColumns+`
		 FROM user_subscriptions
		 WHERE crypto_transaction_id = ?`,
		paymentID,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) ListByUser(ctx context.Context, db *gorm.DB, userID string) ([]subscriptiondomain.UserSubscription, error) {
	var items []subscriptiondomain.UserSubscription
	err := db.WithContext(ctx).Raw(
		`SELECT `+subscriptionColumns+`
		 FROM user_subscriptions
		 WHERE user_id = ?
		 ORDER BY created_at DESC, id DESC`,
		userID,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) Transition(ctx context.Context, db *gorm.DB, id snowflake.ID, from []subscriptiondomain.Status, to subscriptiondomain.Status, at time.Time) (int64, error) {
	if len(from) == 0 {
		return 0, nil
	}
	statuses := make([]string, 0, len(from))
	for _, status := range from {
		statuses = append(statuses, string(status))
	}

	var activatedAt, cancelledAt *time.Time
	switch to {
	case subscriptiondomain.StatusActive:
		activatedAt = &at
	case subscriptiondomain.StatusCancelled:
		cancelledAt = &at
	}

	res := db.WithContext(ctx).Exec(
		`UPDATE user_subscriptions
		 SET status = ?,
		     activated_at = COALESCE(?, activated_at),
		     cancelled_at = COALESCE(?, cancelled_at),
		     updated_at = ?
		 WHERE id = ? AND status IN ?`,
		to,
		activatedAt,
		cancelledAt,
		at,
		id,
		statuses,
	)
	if res.Error != nil {
		return 0, res.Error
	}
	return res.RowsAffected, nil
}

func (r *repo) ExpireDue(ctx context.Context, db *gorm.DB, now time.Time) (int64, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE user_subscriptions
		 SET status = ?, updated_at = ?
		 WHERE status = ? AND expires_at <= ?`,
		subscriptiondomain.StatusExpired,
		now,
		subscriptiondomain.StatusActive,
		now,
	)
	if res.Error != nil {
		return 0, res.Error
	}
	return res.RowsAffected, nil
}
