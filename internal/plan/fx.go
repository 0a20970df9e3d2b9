package plan

import (
	"github.com/tekwealth/tekwealth/internal/cache"
	"github.com/tekwealth/tekwealth/internal/plan/repository"
	"github.com/tekwealth/tekwealth/internal/plan/service"
	"go.uber.org/fx"
)

var Module = fx.Module("plan.service",
	fx.Provide(cache.NewPlanCache),
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
