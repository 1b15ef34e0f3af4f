package main

import (
	"context"
	"time"

	"market-engine/src/cache"
	"market-engine/src/config"
	datasource "market-engine/src/data_source"
	"market-engine/src/gateway"
	"market-engine/src/helpers"
	"market-engine/src/interfaces"
	"market-engine/src/logger"
	"market-engine/src/network"
	"market-engine/src/ratelimit"
	"market-engine/src/storage"
	"market-engine/src/utils"

	"github.com/redis/go-redis/v9"
)

// startupRetryDelay is the base backoff for dependencies that may still be
// coming up (Redis, the database) when the engine starts.
const startupRetryDelay = 500 * time.Millisecond

// -----------------------------------------------------------------------------

// setupRedis connects the shared Tier-1 / rate-limit store.
func setupRedis(ctx context.Context, cfg *config.Config, appLogger *logger.Logger) (*redis.Client, error) {
	var client *redis.Client
	err := helpers.RetryWithBackoff(ctx, appLogger, "redis connect", cfg.Network.MaxRetries, startupRetryDelay, func(ctx context.Context) error {
		c, err := cache.NewRedisClient(ctx, cfg.Redis)
		if err != nil {
			return err
		}
		client = c
		return nil
	})
	return client, err
}

// -----------------------------------------------------------------------------

// setupDatabase initializes the Tier-2 store based on config
func setupDatabase(ctx context.Context, cfg *config.Config, appLogger *logger.Logger) (interfaces.IPriceStore, error) {
	store, err := storage.NewPriceStore(&cfg.Storage, appLogger)
	if err != nil {
		return nil, err
	}
	err = helpers.RetryWithBackoff(ctx, appLogger, "database init", cfg.Network.MaxRetries, startupRetryDelay, store.Initialize)
	if err != nil {
		return nil, err
	}
	return store, nil
}

// -----------------------------------------------------------------------------

// setupProvider builds the network manager and the configured provider.
func setupProvider(cfg *config.Config, appLogger *logger.Logger) (interfaces.IPriceProvider, error) {
	networkManager := network.NewAsyncNetworkManager(cfg.MConfig, appLogger.Named("NetworkManager"))
	return datasource.NewProvider(cfg.MConfig, networkManager, appLogger.Named("Provider"))
}

// -----------------------------------------------------------------------------

// setupCalendar returns the holiday-aware exchange calendar when a MIC is
// configured, the weekend-only calendar otherwise.
func setupCalendar(cfg *config.Config, appLogger *logger.Logger) (*utils.TradingCalendar, error) {
	open, err := utils.ParseClock(cfg.Calendar.MarketOpen)
	if err != nil {
		return nil, err
	}
	closeAt, err := utils.ParseClock(cfg.Calendar.MarketClose)
	if err != nil {
		return nil, err
	}

	if cfg.Calendar.MIC != "" {
		cal := utils.NewExchangeCalendar(cfg.Calendar.MIC, open, closeAt)
		appLogger.Info("Trading calendar: exchange %s (%s)", cfg.Calendar.MIC, cal.Location())
		return cal, nil
	}

	loc, err := time.LoadLocation(cfg.Calendar.Timezone)
	if err != nil {
		return nil, err
	}
	appLogger.Info("Trading calendar: weekends only (%s), holidays not modeled", loc)
	return utils.NewWeekendCalendar(loc, open, closeAt), nil
}

// -----------------------------------------------------------------------------

// setupGateway wires the tiers, the limiter and the provider together.
func setupGateway(cfg *config.Config, client *redis.Client, store interfaces.IPriceStore, provider interfaces.IPriceProvider, cal interfaces.ITradingCalendar, appLogger *logger.Logger) *gateway.MarketDataGateway {
	priceCache := cache.NewRedisPriceCache(client, cfg.Redis.KeyPrefix, appLogger.Named("RedisPriceCache"))
	limiter := ratelimit.NewRedisRateLimiter(client, cfg.Redis.KeyPrefix, cfg.RateLimit, appLogger.Named("RedisRateLimiter"))
	return gateway.NewMarketDataGateway(cfg, priceCache, store, limiter, provider, cal, appLogger.Named("Gateway"))
}
