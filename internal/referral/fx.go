package referral

import (
	"github.com/tekwealth/tekwealth/internal/referral/repository"
	"github.com/tekwealth/tekwealth/internal/referral/service"
	"go.uber.org/fx"
)

var Module = fx.Module("referral.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
