package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"market-engine/src/helpers"
	"market-engine/src/interfaces"
	"market-engine/src/logger"
	"market-engine/src/models"

	"github.com/robfig/cron/v3"
)

// RefreshReport summarizes one batch refresh run.
type RefreshReport struct {
	Refreshed int
	Stale     int
	Failed    int
	Skipped   int
	Stopped   bool // quota ran out mid-run
}

// -----------------------------------------------------------------------------

// Refresher warms the tiers for tracked tickers on a cron schedule and
// prunes old rows. It goes through the public gateway contract only.
type Refresher struct {
	Cron    *cron.Cron
	Config  *models.MRefreshConfig
	Storage *models.MStorageConfig
	Gateway interfaces.IMarketDataGateway
	Store   interfaces.IPriceStore
	Logger  *logger.Logger
	Ctx     context.Context

	running sync.Mutex
}

// -----------------------------------------------------------------------------

func NewRefresher(ctx context.Context, cfg *models.MConfig, gw interfaces.IMarketDataGateway, store interfaces.IPriceStore, log *logger.Logger) *Refresher {
	return &Refresher{
		Cron:    cron.New(cron.WithSeconds()),
		Config:  &cfg.Refresh,
		Storage: &cfg.Storage,
		Gateway: gw,
		Store:   store,
		Logger:  log,
		Ctx:     ctx,
	}
}

// -----------------------------------------------------------------------------

// RegisterAll registers the refresh and cleanup jobs.
func (r *Refresher) RegisterAll() error {
	if r.Config.Enabled {
		if _, err := r.Cron.AddFunc(r.Config.Cron, r.refreshTask); err != nil {
			return fmt.Errorf("register refresh task: %w", err)
		}
	}
	if r.Storage.RetentionDays > 0 {
		if _, err := r.Cron.AddFunc(r.Config.CleanupCron, r.cleanupTask); err != nil {
			return fmt.Errorf("register cleanup task: %w", err)
		}
	}
	return nil
}

// Start starts the cron scheduler.
func (r *Refresher) Start() {
	r.Cron.Start()
	r.Logger.Info("Refresher started (%d jobs)", len(r.Cron.Entries()))
}

// Stop stops the scheduler and waits for a running job to finish.
func (r *Refresher) Stop() {
	<-r.Cron.Stop().Done()
	r.Logger.Info("Refresher stopped")
}

// -----------------------------------------------------------------------------

// RunNow refreshes every tracked ticker once. Overlapping runs are skipped.
func (r *Refresher) RunNow(ctx context.Context) (RefreshReport, error) {
	if !r.running.TryLock() {
		return RefreshReport{}, fmt.Errorf("refresh already running")
	}
	defer r.running.Unlock()

	tickers, err := r.trackedTickers(ctx)
	if err != nil {
		return RefreshReport{}, err
	}

	var report RefreshReport
	for i, ticker := range tickers {
		if ctx.Err() != nil {
			report.Skipped += len(tickers) - i
			return report, ctx.Err()
		}

		quote, err := r.Gateway.GetCurrentPrice(ctx, ticker)
		if err != nil {
			var unavailable *helpers.UnavailableError
			if errors.As(err, &unavailable) && unavailable.Reason == models.ReasonRateLimited {
				report.Stopped = true
				report.Skipped += len(tickers) - i
				r.Logger.Warning("Quota exhausted at %s, skipping %d tickers (retry after %v)", ticker, len(tickers)-i, unavailable.RetryAfter)
				return report, nil
			}
			report.Failed++
			r.Logger.Error("Refresh %s: %v", ticker, err)
			continue
		}

		if quote.Stale {
			report.Stale++
			if quote.Reason == models.ReasonRateLimited {
				report.Stopped = true
				report.Skipped += len(tickers) - i - 1
				r.Logger.Warning("Quota exhausted after %s, skipping %d tickers", ticker, len(tickers)-i-1)
				return report, nil
			}
			continue
		}
		report.Refreshed++
	}
	return report, nil
}

// -----------------------------------------------------------------------------

// trackedTickers is the configured list plus every ticker in the store.
func (r *Refresher) trackedTickers(ctx context.Context) ([]string, error) {
	seen := make(map[string]struct{})
	for _, t := range r.Config.Tickers {
		seen[models.NormalizeTicker(t)] = struct{}{}
	}

	stored, err := r.Store.Tickers(ctx)
	if err != nil {
		return nil, fmt.Errorf("list stored tickers: %w", err)
	}
	for _, t := range stored {
		seen[t] = struct{}{}
	}
	delete(seen, "")

	tickers := make([]string, 0, len(seen))
	for t := range seen {
		tickers = append(tickers, t)
	}
	sort.Strings(tickers)
	return tickers, nil
}

// -----------------------------------------------------------------------------

func (r *Refresher) refreshTask() {
	r.Logger.Info("Running refresh task")
	report, err := r.RunNow(r.Ctx)
	if err != nil {
		r.Logger.Error("Refresh task: %v", err)
		return
	}
	r.Logger.Info("Refresh done: refreshed=%d stale=%d failed=%d skipped=%d",
		report.Refreshed, report.Stale, report.Failed, report.Skipped)
}

func (r *Refresher) cleanupTask() {
	n, err := r.Store.CleanupOldData(r.Ctx, r.Storage.RetentionDays)
	if err != nil {
		r.Logger.Error("Cleanup task: %v", err)
		return
	}
	r.Logger.Info("Cleanup removed %d rows", n)
}
