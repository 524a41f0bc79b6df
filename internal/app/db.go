package app

import (
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/polymarket-pulse/trader/internal/accounts"
	"github.com/polymarket-pulse/trader/internal/config"
	"github.com/polymarket-pulse/trader/internal/copytrading"
	"github.com/polymarket-pulse/trader/internal/marketstore"
	"github.com/polymarket-pulse/trader/internal/smartwallet"
	"github.com/polymarket-pulse/trader/internal/tpsl"
	"github.com/polymarket-pulse/trader/internal/watched"
)

// openDB connects to the configured MySQL database; autoMigrate creates
// the domain packages' tables. Only called when cfg.SkipDB is false.
func openDB(cfg config.DatabaseConfig) (*gorm.DB, error) {
	db, err := gorm.Open(mysql.Open(cfg.URL), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, err
	}
	return db, nil
}

func autoMigrate(db *gorm.DB) error {
	migrations := []func() error{
		marketstore.NewGormRepository(db).AutoMigrate,
		watched.NewGormRepository(db).AutoMigrate,
		accounts.NewGormDirectory(db).AutoMigrate,
		copytrading.NewGormRepository(db).AutoMigrate,
		smartwallet.NewGormRepository(db).AutoMigrate,
		tpsl.NewGormRepository(db).AutoMigrate,
	}
	for _, m := range migrations {
		if err := m(); err != nil {
			return err
		}
	}
	return nil
}
