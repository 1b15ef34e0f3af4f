package storage

import (
	"fmt"

	"market-engine/src/interfaces"
	"market-engine/src/logger"
	"market-engine/src/models"
)

// NewPriceStore picks the Tier-2 backend named by storage.db_type.
func NewPriceStore(cfg *models.MStorageConfig, log *logger.Logger) (interfaces.IPriceStore, error) {
	switch cfg.DBType {
	case "postgres":
		return NewPostgresPriceStore(cfg, log.Named("PostgresPriceStore"))
	case "sqlite", "":
		return NewSQLitePriceStore(cfg, log.Named("SQLitePriceStore"))
	default:
		return nil, fmt.Errorf("unsupported storage.db_type %q", cfg.DBType)
	}
}
