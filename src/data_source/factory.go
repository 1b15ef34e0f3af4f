package datasource

import (
	"fmt"

	"market-engine/src/data_source/alphavantage"
	"market-engine/src/data_source/yahoo"
	"market-engine/src/interfaces"
	"market-engine/src/logger"
	"market-engine/src/models"
)

// NewProvider builds the configured quote provider.
func NewProvider(cfg *models.MConfig, netMgr interfaces.INetworkManager, log *logger.Logger) (interfaces.IPriceProvider, error) {
	switch cfg.Provider.Name {
	case "yahoo":
		return yahoo.NewYahooFinanceSource(cfg, netMgr, log.Named("YahooFinanceSource")), nil
	case "alphavantage":
		return alphavantage.NewAlphaVantageSource(cfg, netMgr, log.Named("AlphaVantageSource")), nil
	default:
		return nil, fmt.Errorf("unknown provider %q", cfg.Provider.Name)
	}
}
