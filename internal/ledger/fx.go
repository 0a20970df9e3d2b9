package ledger

import (
	"github.com/tekwealth/tekwealth/internal/ledger/repository"
	"github.com/tekwealth/tekwealth/internal/ledger/service"
	"go.uber.org/fx"
)

var Module = fx.Module("ledger.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
