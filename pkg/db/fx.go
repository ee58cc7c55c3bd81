package db

import (
	"time"

	"github.com/smallbiznis/payline/internal/config"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

// Open builds the shared gorm connection with pool settings from Config.
func Open(cfg config.Config) (*gorm.DB, error) {
	dialector, err := Dialect(cfg)
	if err != nil {
		return nil, err
	}

	conn, err := gorm.Open(dialector, &gorm.Config{
		TranslateError: true,
	})
	if err != nil {
		return nil, err
	}

	sqlDB, err := conn.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxIdleConns(cfg.DBMaxIdleConn)
	sqlDB.SetMaxOpenConns(cfg.DBMaxOpenConn)
	sqlDB.SetConnMaxLifetime(time.Duration(cfg.DBConnMaxLifetime) * time.Second)

	return conn, nil
}

// Module provides the gorm database handle.
var Module = fx.Module("db",
	fx.Provide(Open),
)
