package migration

import (
	"github.com/tekwealth/tekwealth/internal/config"
	"github.com/tekwealth/tekwealth/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, cfg config.Config, log *zap.Logger) error {
		if !cfg.MigrateOnStart {
			log.Info("migrations skipped", zap.Bool("migrate_on_start", false))
			return nil
		}
		if db.NormalizeDriver(cfg.DBType) != db.DriverPostgres {
			log.Warn("embedded migrations target postgres; skipping", zap.String("db_type", cfg.DBType))
			return nil
		}

		sqlDB, err := conn.DB()
		if err != nil {
			return err
		}
		return RunMigrations(sqlDB, log)
	}),
)
