package migration

import (
	"github.com/smallbiznis/storefront-ledger/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(applySchema),
)

func applySchema(conn *gorm.DB, cfg config.Config, log *zap.Logger) error {
	if cfg.DBType != "postgres" {
		log.Warn("schema migrations skipped for non-postgres database", zap.String("db_type", cfg.DBType))
		return nil
	}

	sqlDB, err := conn.DB()
	if err != nil {
		return err
	}
	version, err := RunMigrations(sqlDB)
	if err != nil {
		return err
	}
	log.Info("ledger schema ready",
		zap.Uint("version", version),
		zap.String("table", MigrationsTable),
	)
	return nil
}
