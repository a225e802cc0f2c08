package app

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"surgeWatch/internal/domain"
	"surgeWatch/internal/ports"
	"surgeWatch/internal/registry"
	"surgeWatch/internal/strategy"
)

const (
	defaultBackfillLimit = 100
	backfillConcurrency  = 5
	screenConcurrency    = 8
)

// ScreenerConfig holds universe eligibility and screening settings.
type ScreenerConfig struct {
	Interval       time.Duration
	QuoteAsset     string   // Required symbol suffix
	MinQuoteVolume float64  // Inclusive 24h quote volume floor
	Exclude        []string // Symbols containing any of these are skipped
	TrendBackfill  bool     // Seed trend closes over REST for newly admitted symbols
	BackfillLimit  int
}

// ScreenResult summarises one screening pass.
type ScreenResult struct {
	Evaluated int
	Alerted   int
}

// Screener periodically refreshes the tracked universe and evaluates every
// tracked symbol, dispatching alerts for those that qualify.
type Screener struct {
	cfg        ScreenerConfig
	registry   *registry.Registry
	universe   ports.UniverseSource
	klines     ports.KlineSource
	evaluator  *strategy.Evaluator
	dispatcher *AlertDispatcher
	logger     ports.Logger
	now        func() time.Time
}

// NewScreener creates a screener. klines is only needed when TrendBackfill is set.
func NewScreener(cfg ScreenerConfig, reg *registry.Registry, universe ports.UniverseSource, klines ports.KlineSource,
	evaluator *strategy.Evaluator, dispatcher *AlertDispatcher, logger ports.Logger) (*Screener, error) {
	if reg == nil || universe == nil || evaluator == nil || dispatcher == nil || logger == nil {
		return nil, fmt.Errorf("missing required dependencies for Screener")
	}
	if cfg.Interval <= 0 {
		return nil, fmt.Errorf("screen interval must be positive")
	}
	if cfg.QuoteAsset == "" {
		return nil, fmt.Errorf("quote asset must be set")
	}
	if cfg.TrendBackfill && klines == nil {
		return nil, fmt.Errorf("kline source is required for trend backfill")
	}
	if cfg.BackfillLimit <= 0 {
		cfg.BackfillLimit = defaultBackfillLimit
	}
	return &Screener{
		cfg:        cfg,
		registry:   reg,
		universe:   universe,
		klines:     klines,
		evaluator:  evaluator,
		dispatcher: dispatcher,
		logger:     logger,
		now:        time.Now,
	}, nil
}

// FilterEligible returns, sorted, the symbols that end with the quote asset,
// trade at least the minimum 24h quote volume and match no exclusion.
func FilterEligible(stats []domain.TickerStat, quoteAsset string, minQuoteVolume float64, exclude []string) []string {
	var out []string
	for _, s := range stats {
		if !strings.HasSuffix(s.Symbol, quoteAsset) {
			continue
		}
		if s.QuoteVolume24h < minQuoteVolume {
			continue
		}
		if containsAny(s.Symbol, exclude) {
			continue
		}
		out = append(out, s.Symbol)
	}
	sort.Strings(out)
	return out
}

func containsAny(symbol string, subs []string) bool {
	for _, ex := range subs {
		if ex != "" && strings.Contains(symbol, ex) {
			return true
		}
	}
	return false
}

// Reconcile fetches the universe and aligns the registry with it. On a fetch
// failure the tracked set is left untouched.
func (s *Screener) Reconcile(ctx context.Context) (registry.ReconcileResult, error) {
	stats, err := s.universe.GetUniverse(ctx)
	if err != nil {
		return registry.ReconcileResult{}, fmt.Errorf("fetch universe: %w", err)
	}
	eligible := FilterEligible(stats, s.cfg.QuoteAsset, s.cfg.MinQuoteVolume, s.cfg.Exclude)
	res := s.registry.Reconcile(eligible)

	if len(res.Added) > 0 || len(res.Removed) > 0 {
		s.logger.Info(ctx, "Universe updated", map[string]interface{}{
			"tracked": s.registry.Len(),
			"added":   len(res.Added),
			"removed": len(res.Removed),
		})
	}
	if s.cfg.TrendBackfill && len(res.Added) > 0 {
		s.backfill(ctx, res.Added)
	}
	return res, nil
}

// backfill seeds the trend close series of newly admitted symbols from REST
// klines. Live bars at or before the loaded closes are then ignored by the
// registry watermark.
func (s *Screener) backfill(ctx context.Context, symbols []string) {
	var (
		g      errgroup.Group
		failed atomic.Int64
	)
	g.SetLimit(backfillConcurrency)
	for _, symbol := range symbols {
		symbol := symbol
		for _, iv := range domain.TrendIntervals {
			iv := iv
			g.Go(func() error {
				if err := s.backfillSymbol(ctx, symbol, iv); err != nil {
					failed.Add(1)
					s.logger.Debug(ctx, "Trend backfill failed", map[string]interface{}{"symbol": symbol, "interval": iv.String(), "error": err.Error()})
				}
				return nil
			})
		}
	}
	_ = g.Wait()
	s.logger.Info(ctx, "Trend backfill finished", map[string]interface{}{"symbols": len(symbols), "failed": failed.Load()})
}

func (s *Screener) backfillSymbol(ctx context.Context, symbol string, iv domain.Interval) error {
	klines, err := s.klines.GetKlines(ctx, symbol, iv.String(), s.cfg.BackfillLimit)
	if err != nil {
		return err
	}
	for _, k := range klines {
		if !k.IsFinal {
			continue
		}
		if err := s.registry.AppendCloseAndRecomputeEMA(symbol, iv, k.CloseTime.UnixMilli(), k.Close); err != nil {
			return err
		}
	}
	return nil
}

// Screen evaluates every tracked symbol once. A failure or panic while
// handling one symbol does not affect the others.
func (s *Screener) Screen(ctx context.Context) ScreenResult {
	var (
		g         errgroup.Group
		evaluated atomic.Int64
		alerted   atomic.Int64
	)
	g.SetLimit(screenConcurrency)
	now := s.now()
	for _, symbol := range s.registry.Tracked() {
		symbol := symbol
		g.Go(func() error {
			defer func() {
				if r := recover(); r != nil {
					s.logger.Error(ctx, fmt.Errorf("panic: %v", r), "Screening symbol crashed", map[string]interface{}{"symbol": symbol})
				}
			}()
			view, err := s.registry.View(symbol)
			if err != nil {
				return nil // removed since Tracked was read
			}
			evaluated.Add(1)
			res := s.evaluator.Evaluate(view, now)
			if res != nil && s.dispatcher.Dispatch(ctx, symbol, res) {
				alerted.Add(1)
			}
			return nil
		})
	}
	_ = g.Wait()
	return ScreenResult{Evaluated: int(evaluated.Load()), Alerted: int(alerted.Load())}
}

// Run reconciles and screens every Interval until ctx is done.
func (s *Screener) Run(ctx context.Context) error {
	s.logger.Info(ctx, "Screener started", map[string]interface{}{"interval": s.cfg.Interval.String()})
	for {
		if _, err := s.Reconcile(ctx); err != nil && ctx.Err() == nil {
			s.logger.Warn(ctx, "Universe refresh failed, keeping current symbols", map[string]interface{}{"error": err.Error()})
		}
		if ctx.Err() != nil {
			break
		}
		res := s.Screen(ctx)
		if res.Alerted > 0 {
			s.logger.Info(ctx, "Screening pass sent alerts", map[string]interface{}{"evaluated": res.Evaluated, "alerted": res.Alerted})
		}
		if !sleepCtx(ctx, s.cfg.Interval) {
			break
		}
	}
	s.logger.Info(ctx, "Screener stopped")
	return nil
}
