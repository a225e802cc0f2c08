package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"surgeWatch/internal/domain"
	"surgeWatch/internal/ports"
	"surgeWatch/internal/registry"
)

const defaultEmptyUniverseRetry = 10 * time.Second

// IngestorConfig holds batching and restart settings for the stream ingestor.
type IngestorConfig struct {
	BatchSize          int           // Symbols per websocket connection
	RestartInterval    time.Duration // Lifetime of one generation of connections
	EmptyUniverseRetry time.Duration // Wait before retrying when nothing is tracked
}

// StreamIngestor keeps one generation of websocket batches running over the
// tracked symbols and applies their events to the registry.
type StreamIngestor struct {
	cfg      IngestorConfig
	registry *registry.Registry
	stream   ports.MarketStream
	logger   ports.Logger
}

// NewStreamIngestor creates a new stream ingestor.
func NewStreamIngestor(cfg IngestorConfig, reg *registry.Registry, stream ports.MarketStream, logger ports.Logger) (*StreamIngestor, error) {
	if reg == nil || stream == nil || logger == nil {
		return nil, fmt.Errorf("missing required dependencies for StreamIngestor")
	}
	if cfg.BatchSize <= 0 {
		return nil, fmt.Errorf("stream batch size must be positive")
	}
	if cfg.RestartInterval <= 0 {
		return nil, fmt.Errorf("stream restart interval must be positive")
	}
	if cfg.EmptyUniverseRetry <= 0 {
		cfg.EmptyUniverseRetry = defaultEmptyUniverseRetry
	}
	return &StreamIngestor{cfg: cfg, registry: reg, stream: stream, logger: logger}, nil
}

// StreamNames returns the per-symbol subscriptions: mark price plus one kline
// stream per bar interval.
func StreamNames(symbol string) []string {
	s := strings.ToLower(symbol)
	names := make([]string, 0, 1+len(domain.BarIntervals))
	names = append(names, s+"@markPrice")
	for _, iv := range domain.BarIntervals {
		names = append(names, s+"@kline_"+iv.String())
	}
	return names
}

// partition splits symbols into consecutive batches of at most size.
func partition(symbols []string, size int) [][]string {
	var batches [][]string
	for start := 0; start < len(symbols); start += size {
		end := start + size
		if end > len(symbols) {
			end = len(symbols)
		}
		batches = append(batches, symbols[start:end])
	}
	return batches
}

// Run supervises generations of batches until ctx is done. Each generation
// covers the symbols tracked when it starts and is torn down after
// RestartInterval, which is also how failed batches get replaced.
func (i *StreamIngestor) Run(ctx context.Context) error {
	i.logger.Info(ctx, "Stream ingestor started", map[string]interface{}{
		"batchSize":       i.cfg.BatchSize,
		"restartInterval": i.cfg.RestartInterval.String(),
	})
	for generation := 1; ; generation++ {
		symbols := i.registry.Tracked()
		if len(symbols) == 0 {
			i.logger.Warn(ctx, "No tracked symbols, waiting before starting streams")
			if !sleepCtx(ctx, i.cfg.EmptyUniverseRetry) {
				break
			}
			continue
		}

		i.runGeneration(ctx, generation, symbols)
		if ctx.Err() != nil {
			break
		}
	}
	i.logger.Info(ctx, "Stream ingestor stopped")
	return nil
}

func (i *StreamIngestor) runGeneration(ctx context.Context, generation int, symbols []string) {
	batches := partition(symbols, i.cfg.BatchSize)
	i.logger.Info(ctx, "Starting stream generation", map[string]interface{}{
		"generation": generation,
		"batches":    len(batches),
		"symbols":    len(symbols),
	})

	genCtx, cancel := context.WithCancel(ctx)
	var wg sync.WaitGroup
	for idx, batch := range batches {
		wg.Add(1)
		go func(id int, batch []string) {
			defer wg.Done()
			i.runBatch(genCtx, id, batch)
		}(idx, batch)
	}

	sleepCtx(ctx, i.cfg.RestartInterval)
	cancel()
	wg.Wait()
}

// runBatch owns one connection. Errors and panics end the batch and are only
// logged; the next generation replaces it.
func (i *StreamIngestor) runBatch(ctx context.Context, id int, symbols []string) {
	fields := map[string]interface{}{"batch": id, "symbols": len(symbols)}
	defer func() {
		if r := recover(); r != nil {
			i.logger.Error(ctx, fmt.Errorf("panic: %v", r), "Stream batch crashed", fields)
		}
	}()

	streams := make([]string, 0, len(symbols)*(1+len(domain.BarIntervals)))
	for _, s := range symbols {
		streams = append(streams, StreamNames(s)...)
	}

	if err := i.stream.Subscribe(ctx, streams, i); err != nil {
		i.logger.Error(ctx, err, "Stream batch exited", fields)
		return
	}
	i.logger.Debug(ctx, "Stream batch closed", fields)
}

// OnMarkPrice applies a mark price tick. Ticks for symbols that are no longer
// tracked are dropped.
func (i *StreamIngestor) OnMarkPrice(ev domain.MarkPrice) {
	if err := i.registry.SetPrice(ev.Symbol, ev.Price); err != nil {
		i.ignoreOrLog(err, ev.Symbol)
		return
	}
	if err := i.registry.SetFundingRate(ev.Symbol, ev.FundingRate*100); err != nil {
		i.ignoreOrLog(err, ev.Symbol)
	}
}

// OnKline applies a closed bar. Open bars, replays at or before the
// interval's watermark, and untracked symbols are ignored.
func (i *StreamIngestor) OnKline(k *domain.Kline) {
	if k == nil || !k.IsFinal {
		return
	}
	iv, err := domain.ParseInterval(k.Interval)
	if err != nil {
		i.logger.Debug(context.Background(), "Dropping kline with unexpected interval", map[string]interface{}{"symbol": k.Symbol, "interval": k.Interval})
		return
	}

	closeTime := k.CloseTime.UnixMilli()
	if iv == domain.VolumeInterval {
		err = i.registry.AppendVolumeBar(k.Symbol, closeTime, k.QuoteVolume)
	} else {
		err = i.registry.AppendCloseAndRecomputeEMA(k.Symbol, iv, closeTime, k.Close)
	}
	if err != nil {
		i.ignoreOrLog(err, k.Symbol)
	}
}

func (i *StreamIngestor) ignoreOrLog(err error, symbol string) {
	if errors.Is(err, ports.ErrSymbolNotTracked) || errors.Is(err, ports.ErrDuplicateBar) {
		return
	}
	i.logger.Debug(context.Background(), "Dropping stream event", map[string]interface{}{"symbol": symbol, "error": err.Error()})
}

// sleepCtx waits for d or until ctx is done. It reports whether the full
// duration elapsed.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
