package service

import (
	"context"
	"strings"

	"github.com/gosimple/slug"
	"github.com/tekwealth/tekwealth/internal/cache"
	plandomain "github.com/tekwealth/tekwealth/internal/plan/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	Repo  plandomain.Repository
	Cache cache.PlanCache `optional:"true"`
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	repo  plandomain.Repository
	cache cache.PlanCache
}

func NewService(p Params) plandomain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("plan.service"),
		repo:  p.Repo,
		cache: p.Cache,
	}
}

// NormalizeID maps user supplied plan names ("Pro", " ELITE ") onto catalog ids.
func NormalizeID(id string) string {
	return slug.Make(strings.TrimSpace(id))
}

func (s *Service) Get(ctx context.Context, id string) (*plandomain.Plan, error) {
	key := NormalizeID(id)
	if key == "" {
		return nil, plandomain.ErrInvalidPlan
	}

	if s.cache != nil {
		if plan, ok := s.cache.GetPlan(key); ok {
			return &plan, nil
		}
	}

	plan, err := s.repo.FindByID(ctx, s.db, key)
	if err != nil {
		return nil, err
	}
	if plan == nil {
		return nil, plandomain.ErrPlanNotFound
	}

	if s.cache != nil {
		s.cache.SetPlan(*plan)
	}
	return plan, nil
}

func (s *Service) List(ctx context.Context) ([]plandomain.Plan, error) {
	if s.cache != nil {
		if plans, ok := s.cache.GetCatalog(); ok {
			return plans, nil
		}
	}

	plans, err := s.repo.ListActive(ctx, s.db)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		s.cache.SetCatalog(plans)
	}
	return plans, nil
}
