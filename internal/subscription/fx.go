package subscription

import (
	"github.com/tekwealth/tekwealth/internal/subscription/repository"
	"github.com/tekwealth/tekwealth/internal/subscription/service"
	"go.uber.org/fx"
)

var Module = fx.Module("subscription.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
