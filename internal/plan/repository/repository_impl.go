package repository

import (
	"context"

	plandomain "github.com/tekwealth/tekwealth/internal/plan/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() plandomain.Repository {
	return &repo{}
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id string) (*plandomain.Plan, error) {
	var plan plandomain.Plan
	err := db.WithContext(ctx).Raw(
		`SELECT id, name, price_usd, max_strategies, max_exchanges, features, is_active,
		 sort_order, created_at, updated_at
		 FROM subscription_plans WHERE id = ? AND is_active = ?`,
		id,
		true,
	).Scan(&plan).Error
	if err != nil {
		return nil, err
	}
	if plan.ID == "" {
		return nil, nil
	}
	return &plan, nil
}

func (r *repo) ListActive(ctx context.Context, db *gorm.DB) ([]plandomain.Plan, error) {
	var plans []plandomain.Plan
	err := db.WithContext(ctx).Raw(
		`SELECT id, name, price_usd, max_strategies, max_exchanges, features, is_active,
		 sort_order, created_at, updated_at
		 FROM subscription_plans WHERE is_active = ?
		 ORDER BY sort_order ASC, id ASC`,
		true,
	).Scan(&plans).Error
	if err != nil {
		return nil, err
	}
	return plans, nil
}
