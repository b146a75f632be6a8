package db

import (
	"fmt"
	"net/url"

	"github.com/smallbiznis/storefront-ledger/internal/config"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// Dialect picks the gorm driver for DATABASE_TYPE. Every connection runs in
// UTC because commission maturity and month boundaries are computed from
// stored timestamps.
func Dialect(cfg config.Config) (gorm.Dialector, error) {
	dsn, err := DSN(cfg)
	if err != nil {
		return nil, err
	}
	switch cfg.DBType {
	case "postgres":
		return postgres.Open(dsn), nil
	case "mysql":
		return mysql.Open(dsn), nil
	default:
		return sqlite.Open(dsn), nil
	}
}

func DSN(cfg config.Config) (string, error) {
	switch cfg.DBType {
	case "postgres":
		return fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=%s TimeZone=UTC application_name=%s",
			cfg.DBHost,
			cfg.DBUser,
			cfg.DBPassword,
			cfg.DBName,
			cfg.DBPort,
			cfg.DBSSLMode,
			applicationName(cfg),
		), nil
	case "mysql":
		return fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=UTC&time_zone=%s",
			cfg.DBUser,
			cfg.DBPassword,
			cfg.DBHost,
			cfg.DBPort,
			cfg.DBName,
			url.QueryEscape("'+00:00'"),
		), nil
	case "sqlite":
		// the decay sweep opens one write transaction per user
		return cfg.DBPath + "?_foreign_keys=1&_busy_timeout=5000&_journal_mode=WAL", nil
	default:
		return "", fmt.Errorf("unsupported %s type", cfg.DBType)
	}
}

func applicationName(cfg config.Config) string {
	if cfg.AppName == "" {
		return "storefront-ledger"
	}
	return cfg.AppName
}
