package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/tekwealth/tekwealth/internal/payment/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) FindEvent(ctx context.Context, db *gorm.DB, provider, paymentID, status string) (*domain.WebhookEventRecord, error) {
	var item domain.WebhookEventRecord
	err := db.WithContext(ctx).Raw(
		`SELECT id, provider, payment_id, payment_status, payload, outcome, received_at, processed_at
		 FROM payment_webhook_events
		 WHERE provider = ? AND payment_id = ? AND payment_status = ?
		 LIMIT 1`,
		provider,
		paymentID,
		status,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) RecordEvent(ctx context.Context, db *gorm.DB, event *domain.WebhookEventRecord) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`INSERT INTO payment_webhook_events (
			id, provider, payment_id, payment_status, payload, outcome, received_at, processed_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (provider, payment_id, payment_status) DO NOTHING`,
		event.ID,
		event.Provider,
		event.PaymentID,
		event.PaymentStatus,
		event.Payload,
		event.Outcome,
		event.ReceivedAt,
		event.ProcessedAt,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) MarkProcessed(ctx context.Context, db *gorm.DB, id snowflake.ID, outcome string, processedAt time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE payment_webhook_events
		 SET outcome = ?, processed_at = ?
		 WHERE id = ?`,
		outcome,
		processedAt,
		id,
	).Error
}
