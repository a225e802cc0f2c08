package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"surgeWatch/internal/ports"
	"surgeWatch/internal/registry"
)

// PollerConfig holds open interest polling settings.
type PollerConfig struct {
	Interval    time.Duration // Pause between full passes
	BatchSize   int
	Concurrency int64         // Requests in flight at once
	BatchPause  time.Duration // Pause between batches within a pass
}

// PollResult summarises one polling pass.
type PollResult struct {
	Updated int
	Failed  map[string]error
}

// OpenInterestPoller periodically refreshes open interest for every tracked symbol.
type OpenInterestPoller struct {
	cfg      PollerConfig
	registry *registry.Registry
	source   ports.OpenInterestSource
	logger   ports.Logger
	sem      *semaphore.Weighted
}

// NewOpenInterestPoller creates a new poller.
func NewOpenInterestPoller(cfg PollerConfig, reg *registry.Registry, source ports.OpenInterestSource, logger ports.Logger) (*OpenInterestPoller, error) {
	if reg == nil || source == nil || logger == nil {
		return nil, fmt.Errorf("missing required dependencies for OpenInterestPoller")
	}
	if cfg.Interval <= 0 || cfg.BatchSize <= 0 || cfg.Concurrency <= 0 {
		return nil, fmt.Errorf("poll interval, batch size and concurrency must be positive")
	}
	return &OpenInterestPoller{
		cfg:      cfg,
		registry: reg,
		source:   source,
		logger:   logger,
		sem:      semaphore.NewWeighted(cfg.Concurrency),
	}, nil
}

// Run polls immediately and then after every Interval until ctx is done.
func (p *OpenInterestPoller) Run(ctx context.Context) error {
	p.logger.Info(ctx, "Open interest poller started", map[string]interface{}{"interval": p.cfg.Interval.String()})
	for {
		start := time.Now()
		res := p.PollOnce(ctx)
		if ctx.Err() != nil {
			break
		}
		fields := map[string]interface{}{
			"updated":  res.Updated,
			"failed":   len(res.Failed),
			"duration": time.Since(start).String(),
		}
		if len(res.Failed) > 0 {
			p.logger.Warn(ctx, "Open interest pass finished with failures", fields)
		} else {
			p.logger.Debug(ctx, "Open interest pass finished", fields)
		}
		if !sleepCtx(ctx, p.cfg.Interval) {
			break
		}
	}
	p.logger.Info(ctx, "Open interest poller stopped")
	return nil
}

// PollOnce fetches open interest for the tracked symbols batch by batch.
// A failed symbol is recorded in the result and never affects its siblings.
func (p *OpenInterestPoller) PollOnce(ctx context.Context) PollResult {
	res := PollResult{Failed: make(map[string]error)}
	var mu sync.Mutex

	for idx, batch := range partition(p.registry.Tracked(), p.cfg.BatchSize) {
		if idx > 0 && p.cfg.BatchPause > 0 && !sleepCtx(ctx, p.cfg.BatchPause) {
			return res
		}

		var g errgroup.Group
		for _, symbol := range batch {
			symbol := symbol
			g.Go(func() error {
				err := p.pollSymbol(ctx, symbol)
				mu.Lock()
				defer mu.Unlock()
				if err != nil {
					res.Failed[symbol] = err
				} else {
					res.Updated++
				}
				return nil
			})
		}
		_ = g.Wait()
	}
	return res
}

func (p *OpenInterestPoller) pollSymbol(ctx context.Context, symbol string) error {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	defer p.sem.Release(1)

	oi, err := p.source.GetOpenInterest(ctx, symbol)
	if err != nil {
		return err
	}
	if err := p.registry.SetOpenInterest(symbol, oi); err != nil && !errors.Is(err, ports.ErrSymbolNotTracked) {
		return err
	}
	return nil
}
