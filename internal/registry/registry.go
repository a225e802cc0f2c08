package registry

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"surgeWatch/internal/domain"
	"surgeWatch/internal/ports"
	"surgeWatch/internal/strategy/indicators"
)

const (
	defaultWarmUp               = 120 * time.Second
	defaultVolumeCapacity       = 240
	defaultCloseCapacity        = 100
	defaultPriceHistoryCapacity = 100
	defaultOIHistoryCapacity    = 370
	defaultSampleSpacing        = 10 * time.Second
)

// Config holds window sizes and timing of the registry. Zero values use defaults.
type Config struct {
	WarmUp               time.Duration // Subtracted from the admission time to form MonitorStart
	VolumeCapacity       int
	CloseCapacity        int
	PriceHistoryCapacity int
	OIHistoryCapacity    int
	SampleSpacing        time.Duration // Minimum gap between retained history samples
	Now                  func() time.Time
}

func (c *Config) applyDefaults() {
	if c.WarmUp <= 0 {
		c.WarmUp = defaultWarmUp
	}
	if c.VolumeCapacity <= 0 {
		c.VolumeCapacity = defaultVolumeCapacity
	}
	if c.CloseCapacity <= 0 {
		c.CloseCapacity = defaultCloseCapacity
	}
	if c.PriceHistoryCapacity <= 0 {
		c.PriceHistoryCapacity = defaultPriceHistoryCapacity
	}
	if c.OIHistoryCapacity <= 0 {
		c.OIHistoryCapacity = defaultOIHistoryCapacity
	}
	if c.SampleSpacing <= 0 {
		c.SampleSpacing = defaultSampleSpacing
	}
	if c.Now == nil {
		c.Now = time.Now
	}
}

type symbolRecord struct {
	lastPrice        float64
	hasPrice         bool
	lastOpenInterest float64
	hasOpenInterest  bool
	fundingRatePct   float64
	monitorStart     time.Time
	volumes          *domain.Window[float64]
	lastBarClose     map[domain.Interval]int64
	closes           map[domain.Interval]*domain.Window[float64]
	ema              map[domain.Interval]domain.EMAStack
}

// ReconcileResult lists the symbols admitted and dropped by a Reconcile call.
type ReconcileResult struct {
	Added   []string
	Removed []string
}

// Registry is the single owner of per-symbol monitoring state. Every method is
// safe for concurrent use; readers receive copies.
type Registry struct {
	cfg   Config
	trend *indicators.TrendStack

	mu           sync.RWMutex
	symbols      map[string]*symbolRecord
	priceHistory map[string]*domain.Window[domain.Sample]
	oiHistory    map[string]*domain.Window[domain.Sample]
	lastAlert    map[string]time.Time
}

// New creates an empty registry.
func New(cfg Config) *Registry {
	cfg.applyDefaults()
	return &Registry{
		cfg:          cfg,
		trend:        indicators.DefaultTrendStack(),
		symbols:      make(map[string]*symbolRecord),
		priceHistory: make(map[string]*domain.Window[domain.Sample]),
		oiHistory:    make(map[string]*domain.Window[domain.Sample]),
		lastAlert:    make(map[string]time.Time),
	}
}

// Reconcile aligns the tracked universe with eligible. New symbols get a fresh
// record; symbols no longer eligible are removed from every table at once.
func (r *Registry) Reconcile(eligible []string) ReconcileResult {
	now := r.cfg.Now()
	want := make(map[string]struct{}, len(eligible))
	for _, s := range eligible {
		want[s] = struct{}{}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	var res ReconcileResult
	for s := range want {
		if _, ok := r.symbols[s]; ok {
			continue
		}
		r.symbols[s] = r.newRecord(now)
		r.priceHistory[s] = domain.NewWindow[domain.Sample](r.cfg.PriceHistoryCapacity)
		r.oiHistory[s] = domain.NewWindow[domain.Sample](r.cfg.OIHistoryCapacity)
		res.Added = append(res.Added, s)
	}
	for s := range r.symbols {
		if _, ok := want[s]; ok {
			continue
		}
		delete(r.symbols, s)
		delete(r.priceHistory, s)
		delete(r.oiHistory, s)
		delete(r.lastAlert, s)
		res.Removed = append(res.Removed, s)
	}
	sort.Strings(res.Added)
	sort.Strings(res.Removed)
	return res
}

func (r *Registry) newRecord(now time.Time) *symbolRecord {
	rec := &symbolRecord{
		monitorStart: now.Add(-r.cfg.WarmUp),
		volumes:      domain.NewWindow[float64](r.cfg.VolumeCapacity),
		lastBarClose: make(map[domain.Interval]int64, len(domain.BarIntervals)),
		closes:       make(map[domain.Interval]*domain.Window[float64], len(domain.TrendIntervals)),
		ema:          make(map[domain.Interval]domain.EMAStack, len(domain.TrendIntervals)),
	}
	for _, iv := range domain.TrendIntervals {
		rec.closes[iv] = domain.NewWindow[float64](r.cfg.CloseCapacity)
		rec.ema[iv] = domain.EMAStack{}
	}
	return rec
}

// Tracked returns the tracked symbols in sorted order.
func (r *Registry) Tracked() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.symbols))
	for s := range r.symbols {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// IsTracked reports whether symbol is currently monitored.
func (r *Registry) IsTracked(symbol string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.symbols[symbol]
	return ok
}

// Len returns the number of tracked symbols.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.symbols)
}

// --- Mutators ---

// SetPrice records the latest mark price and samples it into the price history.
func (r *Registry) SetPrice(symbol string, price float64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.symbols[symbol]
	if !ok {
		return fmt.Errorf("set price %s: %w", symbol, ports.ErrSymbolNotTracked)
	}
	rec.lastPrice = price
	rec.hasPrice = true
	r.appendSparse(r.priceHistory[symbol], price)
	return nil
}

// SetFundingRate records the funding rate, in percent.
func (r *Registry) SetFundingRate(symbol string, pct float64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.symbols[symbol]
	if !ok {
		return fmt.Errorf("set funding rate %s: %w", symbol, ports.ErrSymbolNotTracked)
	}
	rec.fundingRatePct = pct
	return nil
}

// SetOpenInterest records the latest open interest and samples it into the OI history.
func (r *Registry) SetOpenInterest(symbol string, oi float64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.symbols[symbol]
	if !ok {
		return fmt.Errorf("set open interest %s: %w", symbol, ports.ErrSymbolNotTracked)
	}
	rec.lastOpenInterest = oi
	rec.hasOpenInterest = true
	r.appendSparse(r.oiHistory[symbol], oi)
	return nil
}

// AppendVolumeBar appends a closed volume bar's quote volume. Bars whose close
// time does not exceed the watermark are rejected with ErrDuplicateBar.
func (r *Registry) AppendVolumeBar(symbol string, closeTime int64, quoteVolume float64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.symbols[symbol]
	if !ok {
		return fmt.Errorf("append volume bar %s: %w", symbol, ports.ErrSymbolNotTracked)
	}
	if closeTime <= rec.lastBarClose[domain.VolumeInterval] {
		return fmt.Errorf("append volume bar %s at %d: %w", symbol, closeTime, ports.ErrDuplicateBar)
	}
	rec.volumes.Push(quoteVolume)
	rec.lastBarClose[domain.VolumeInterval] = closeTime
	return nil
}

// AppendCloseAndRecomputeEMA appends a closed trend bar and refreshes the EMA
// stack once the close series covers the largest EMA period.
func (r *Registry) AppendCloseAndRecomputeEMA(symbol string, interval domain.Interval, closeTime int64, closePrice float64) error {
	if !interval.IsTrend() {
		return fmt.Errorf("append close %s: interval %s is not a trend interval: %w", symbol, interval, ports.ErrInvalidRequest)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.symbols[symbol]
	if !ok {
		return fmt.Errorf("append close %s: %w", symbol, ports.ErrSymbolNotTracked)
	}
	if closeTime <= rec.lastBarClose[interval] {
		return fmt.Errorf("append close %s %s at %d: %w", symbol, interval, closeTime, ports.ErrDuplicateBar)
	}
	series := rec.closes[interval]
	series.Push(closePrice)
	rec.lastBarClose[interval] = closeTime

	if values, ok := r.trend.Compute(series.Values()); ok {
		rec.ema[interval] = values
	}
	return nil
}

// appendSparse appends a sample only if the history is empty or the newest
// retained sample is at least SampleSpacing old. Caller holds r.mu.
func (r *Registry) appendSparse(hist *domain.Window[domain.Sample], value float64) {
	now := r.cfg.Now()
	if last, ok := hist.Last(); ok && now.Sub(last.Time) < r.cfg.SampleSpacing {
		return
	}
	hist.Push(domain.Sample{Time: now, Value: value})
}

// --- Alert cooldown ---

// TryAcquireAlert records an alert for symbol unless one was recorded within
// cooldown. The check and the update happen under one lock.
func (r *Registry) TryAcquireAlert(symbol string, cooldown time.Duration) (bool, error) {
	now := r.cfg.Now()
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.symbols[symbol]; !ok {
		return false, fmt.Errorf("acquire alert %s: %w", symbol, ports.ErrSymbolNotTracked)
	}
	if last, ok := r.lastAlert[symbol]; ok && now.Sub(last) < cooldown {
		return false, nil
	}
	r.lastAlert[symbol] = now
	return true, nil
}

// LastAlert returns the time of the last alert for symbol, zero if none.
func (r *Registry) LastAlert(symbol string) time.Time {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.lastAlert[symbol]
}

// --- Readers ---

// Snapshot returns a copy of symbol's state.
func (r *Registry) Snapshot(symbol string) (domain.SymbolState, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.symbols[symbol]
	if !ok {
		return domain.SymbolState{}, fmt.Errorf("snapshot %s: %w", symbol, ports.ErrSymbolNotTracked)
	}
	return rec.snapshot(symbol), nil
}

// PriceHistory returns a copy of symbol's sampled price history, oldest first.
func (r *Registry) PriceHistory(symbol string) ([]domain.Sample, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	hist, ok := r.priceHistory[symbol]
	if !ok {
		return nil, fmt.Errorf("price history %s: %w", symbol, ports.ErrSymbolNotTracked)
	}
	return hist.Values(), nil
}

// OpenInterestHistory returns a copy of symbol's sampled OI history, oldest first.
func (r *Registry) OpenInterestHistory(symbol string) ([]domain.Sample, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	hist, ok := r.oiHistory[symbol]
	if !ok {
		return nil, fmt.Errorf("open interest history %s: %w", symbol, ports.ErrSymbolNotTracked)
	}
	return hist.Values(), nil
}

// View returns state and both histories captured under a single read lock.
func (r *Registry) View(symbol string) (domain.MarketView, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.symbols[symbol]
	if !ok {
		return domain.MarketView{}, fmt.Errorf("view %s: %w", symbol, ports.ErrSymbolNotTracked)
	}
	return domain.MarketView{
		State:               rec.snapshot(symbol),
		PriceHistory:        r.priceHistory[symbol].Values(),
		OpenInterestHistory: r.oiHistory[symbol].Values(),
	}, nil
}

func (rec *symbolRecord) snapshot(symbol string) domain.SymbolState {
	st := domain.SymbolState{
		Symbol:           symbol,
		LastPrice:        rec.lastPrice,
		HasPrice:         rec.hasPrice,
		LastOpenInterest: rec.lastOpenInterest,
		HasOpenInterest:  rec.hasOpenInterest,
		FundingRatePct:   rec.fundingRatePct,
		MonitorStart:     rec.monitorStart,
		Volumes:          rec.volumes.Values(),
		LastBarClose:     make(map[domain.Interval]int64, len(rec.lastBarClose)),
		Closes:           make(map[domain.Interval][]float64, len(rec.closes)),
		EMA:              make(map[domain.Interval]domain.EMAStack, len(rec.ema)),
	}
	for iv, t := range rec.lastBarClose {
		st.LastBarClose[iv] = t
	}
	for iv, w := range rec.closes {
		st.Closes[iv] = w.Values()
	}
	for iv, s := range rec.ema {
		st.EMA[iv] = s.Clone()
	}
	return st
}
