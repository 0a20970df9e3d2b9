package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/tekwealth/tekwealth/internal/clock"
	"github.com/tekwealth/tekwealth/internal/commission"
	"github.com/tekwealth/tekwealth/internal/config"
	"github.com/tekwealth/tekwealth/internal/ledger"
	"github.com/tekwealth/tekwealth/internal/migration"
	"github.com/tekwealth/tekwealth/internal/observability"
	"github.com/tekwealth/tekwealth/internal/payment"
	"github.com/tekwealth/tekwealth/internal/plan"
	"github.com/tekwealth/tekwealth/internal/ratelimit"
	"github.com/tekwealth/tekwealth/internal/referral"
	"github.com/tekwealth/tekwealth/internal/server"
	"github.com/tekwealth/tekwealth/internal/subscription"
	"github.com/tekwealth/tekwealth/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		migration.Module,

		plan.Module,
		ledger.Module,
		commission.Module,
		referral.Module,
		payment.Module,
		subscription.Module,
		ratelimit.Module,

		server.Module,
	)
	app.Run()
}

func RegisterSnowflake(cfg config.Config) (*snowflake.Node, error) {
	return snowflake.NewNode(cfg.SnowflakeNode)
}
