package commission

import (
	"github.com/tekwealth/tekwealth/internal/commission/repository"
	"github.com/tekwealth/tekwealth/internal/commission/service"
	"go.uber.org/fx"
)

var Module = fx.Module("commission.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
