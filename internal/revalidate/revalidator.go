// Package revalidate keeps the document cache warm in the background.
package revalidate

import (
	"context"
	"sync"
	"time"

	"github.com/bryan-buckman/spacetraveling/internal/content"
	"github.com/bryan-buckman/spacetraveling/internal/database"
	"github.com/bryan-buckman/spacetraveling/internal/model"
	"github.com/hashicorp/go-multierror"
	"go.uber.org/zap"
)

// MinInterval is the minimum allowed interval between passes.
const MinInterval = time.Minute

// Concurrency settings
const (
	// MaxConcurrencyPostgres is the number of parallel refreshes for PostgreSQL
	MaxConcurrencyPostgres = 10
	// MaxConcurrencySQLite is the number of parallel refreshes for SQLite (limited due to locking)
	MaxConcurrencySQLite = 1
)

// Refresher is the part of the content repository a pass needs.
type Refresher interface {
	Refresh(ctx context.Context, key string) error
	CachedPostUIDs() ([]string, error)
}

// Revalidator refreshes every cached document on an interval and purges
// documents that stopped being refreshed.
type Revalidator struct {
	repo        Refresher
	db          database.Store
	interval    time.Duration
	retainFor   time.Duration
	concurrency int
	logger      *zap.Logger

	stopChan chan struct{}
	wg       sync.WaitGroup
}

// New creates a revalidator with concurrency based on database type.
func New(repo Refresher, db database.Store, interval, retainFor time.Duration, logger *zap.Logger) *Revalidator {
	concurrency := MaxConcurrencySQLite
	if db.SupportsHighConcurrency() {
		concurrency = MaxConcurrencyPostgres
	}
	if interval < MinInterval {
		interval = MinInterval
	}
	return &Revalidator{
		repo:        repo,
		db:          db,
		interval:    interval,
		retainFor:   retainFor,
		concurrency: concurrency,
		logger:      logger,
		stopChan:    make(chan struct{}),
	}
}

// Result summarises one pass.
type Result struct {
	Refreshed int
	Failed    int
	Purged    int64
}

// RunOnce refreshes the home page and every cached post, then purges
// entries older than the retention window. Per-key failures are collected
// into the returned error; the pass still covers every key.
func (rv *Revalidator) RunOnce(ctx context.Context) (Result, error) {
	var res Result

	uids, err := rv.repo.CachedPostUIDs()
	if err != nil {
		return res, err
	}
	keys := make([]string, 0, len(uids)+1)
	keys = append(keys, content.KeyHome)
	for _, uid := range uids {
		keys = append(keys, content.PostKey(uid))
	}

	var errs *multierror.Error
	for _, err := range rv.refreshAll(ctx, keys) {
		if err != nil {
			errs = multierror.Append(errs, err)
			res.Failed++
			continue
		}
		res.Refreshed++
	}

	if rv.retainFor > 0 {
		purged, err := rv.db.PurgeEntries(time.Now().Add(-rv.retainFor))
		if err != nil {
			errs = multierror.Append(errs, err)
		}
		res.Purged = purged
	}

	if err := rv.db.SetSetting(model.SettingLastRevalidated, time.Now().UTC().Format(time.RFC3339)); err != nil {
		rv.logger.Warn("record revalidation time", zap.Error(err))
	}
	return res, errs.ErrorOrNil()
}

// refreshAll refreshes keys with a worker pool and returns one error slot
// per key.
func (rv *Revalidator) refreshAll(ctx context.Context, keys []string) []error {
	errs := make([]error, len(keys))
	indexes := make(chan int, len(keys))
	for i := range keys {
		indexes <- i
	}
	close(indexes)

	var wg sync.WaitGroup
	workers := rv.concurrency
	if workers > len(keys) {
		workers = len(keys)
	}
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range indexes {
				if err := ctx.Err(); err != nil {
					errs[i] = err
					continue
				}
				if err := rv.repo.Refresh(ctx, keys[i]); err != nil {
					rv.logger.Warn("refresh failed", zap.String("key", keys[i]), zap.Error(err))
					errs[i] = err
				}
			}
		}()
	}
	wg.Wait()
	return errs
}

// Start begins the revalidation loop.
func (rv *Revalidator) Start() {
	rv.wg.Add(1)
	go func() {
		defer rv.wg.Done()
		for {
			select {
			case <-rv.stopChan:
				return
			case <-time.After(rv.interval):
			}

			rv.logger.Info("revalidating cache", zap.Duration("interval", rv.interval))
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
			res, err := rv.RunOnce(ctx)
			cancel()

			if err != nil {
				rv.logger.Warn("revalidation finished with errors", zap.Error(err))
			}
			rv.logger.Info("revalidation done",
				zap.Int("refreshed", res.Refreshed),
				zap.Int("failed", res.Failed),
				zap.Int64("purged", res.Purged))
		}
	}()
}

// Stop stops the loop gracefully.
func (rv *Revalidator) Stop() {
	close(rv.stopChan)
	rv.wg.Wait()
}
