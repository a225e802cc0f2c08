package strategy

import (
	"context"
	"fmt"
	"time"

	"surgeWatch/internal/domain"
	"surgeWatch/internal/ports"
)

// Config holds the alert thresholds and evaluation windows.
type Config struct {
	VolumeThreshold   float64       // Current hour volume multiple of the historical hourly average, e.g. 3
	PriceThreshold    float64       // Percent move over PriceLookback, e.g. 5
	OIThreshold       float64       // Percent open interest change over OILookback, e.g. 10
	MinMonitorAge     time.Duration // e.g. 60s
	MinVolumeBars     int           // e.g. 24
	CurrentWindowBars int           // Bars summed as the "current hour", e.g. 60
	PriceLookback     time.Duration // e.g. 15m
	OILookback        time.Duration // e.g. 1h
}

// DefaultConfig returns the production windows with the given thresholds.
func DefaultConfig(volume, price, oi float64) Config {
	return Config{
		VolumeThreshold:   volume,
		PriceThreshold:    price,
		OIThreshold:       oi,
		MinMonitorAge:     60 * time.Second,
		MinVolumeBars:     24,
		CurrentWindowBars: 60,
		PriceLookback:     15 * time.Minute,
		OILookback:        time.Hour,
	}
}

// Evaluator decides whether a symbol's market view qualifies for an alert.
type Evaluator struct {
	cfg    Config
	logger ports.Logger
}

// New creates a new Evaluator instance.
func New(cfg Config, logger ports.Logger) (*Evaluator, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger is required for evaluator")
	}
	if cfg.MinVolumeBars <= 0 || cfg.CurrentWindowBars <= 0 {
		return nil, fmt.Errorf("volume windows must be positive")
	}
	if cfg.PriceLookback <= 0 || cfg.OILookback <= 0 {
		return nil, fmt.Errorf("lookback durations must be positive")
	}
	return &Evaluator{cfg: cfg, logger: logger}, nil
}

// Config returns the evaluator configuration.
func (e *Evaluator) Config() Config {
	return e.cfg
}

type volumeCheck struct {
	bars    int
	current float64
	avg     float64
	ratio   float64
	enough  bool
	passed  bool
}

type moveCheck struct {
	pct     *float64
	elapsed time.Duration
	passed  bool
}

// checkVolume compares the newest CurrentWindowBars of quote volume with the
// average hourly volume of everything older.
func (e *Evaluator) checkVolume(volumes []float64) volumeCheck {
	vc := volumeCheck{bars: len(volumes)}
	if len(volumes) < e.cfg.MinVolumeBars {
		return vc
	}
	vc.enough = true

	split := len(volumes) - e.cfg.CurrentWindowBars
	if split < 0 {
		split = 0
	}
	for _, v := range volumes[split:] {
		vc.current += v
	}

	history := volumes[:split]
	vc.avg = 1
	if len(history) > 0 {
		sum := 0.0
		for _, v := range history {
			sum += v
		}
		hours := len(history) / e.cfg.CurrentWindowBars
		if hours < 1 {
			hours = 1
		}
		vc.avg = sum / float64(hours)
	}

	if vc.avg > 0 {
		vc.ratio = vc.current / vc.avg
		vc.passed = vc.current > vc.avg*e.cfg.VolumeThreshold
	}
	return vc
}

// checkMove measures the percent change of current against the oldest retained
// sample. The move only counts once that sample is at least lookback old.
func checkMove(history []domain.Sample, current float64, now time.Time, lookback time.Duration, threshold float64) moveCheck {
	var mc moveCheck
	if len(history) < 2 || current <= 0 {
		return mc
	}
	oldest := history[0]
	if oldest.Value <= 0 {
		return mc
	}
	pct := (current - oldest.Value) / oldest.Value * 100
	mc.pct = &pct
	mc.elapsed = now.Sub(oldest.Time)
	mc.passed = mc.elapsed >= lookback && pct > threshold
	return mc
}

// TrendConfirmed reports whether interval's EMA stack is fully present,
// strictly ordered ema15 > ema30 > ema45 > ema60, and the price is above ema45.
func TrendConfirmed(state domain.SymbolState, interval domain.Interval) bool {
	stack, ok := state.EMA[interval]
	if !ok || !stack.Complete() {
		return false
	}
	return stack[15] > stack[30] && stack[30] > stack[45] && stack[45] > stack[60] &&
		state.LastPrice > stack[45]
}

func (e *Evaluator) ready(state domain.SymbolState, now time.Time) bool {
	return state.HasPrice && state.HasOpenInterest && now.Sub(state.MonitorStart) >= e.cfg.MinMonitorAge
}

// Evaluate runs the gates in order and stops at the first required one that
// fails. It returns nil when no alert should be raised.
func (e *Evaluator) Evaluate(view domain.MarketView, now time.Time) *domain.AlertResult {
	st := view.State
	if !e.ready(st, now) {
		return nil
	}
	if !TrendConfirmed(st, domain.Interval1h) {
		return nil
	}
	vol := e.checkVolume(st.Volumes)
	if !vol.passed {
		return nil
	}
	price := checkMove(view.PriceHistory, st.LastPrice, now, e.cfg.PriceLookback, e.cfg.PriceThreshold)
	if !price.passed {
		return nil
	}
	oi := checkMove(view.OpenInterestHistory, st.LastOpenInterest, now, e.cfg.OILookback, e.cfg.OIThreshold)
	trend4h := TrendConfirmed(st, domain.Interval4h)

	res := buildResult(vol, price, oi, trend4h)
	e.logger.Debug(context.Background(), "Alert conditions met", map[string]interface{}{
		"symbol":      st.Symbol,
		"volumeRatio": res.VolumeRatio,
		"pricePct":    res.PricePct,
		"trend4h":     trend4h,
	})
	return res
}

// Diagnose performs the same checks as Evaluate without stopping early and
// narrates every step. The returned result is identical to Evaluate's.
func (e *Evaluator) Diagnose(view domain.MarketView, now time.Time) (*domain.AlertResult, []string) {
	st := view.State
	var lines []string
	logf := func(format string, args ...interface{}) {
		lines = append(lines, fmt.Sprintf(format, args...))
	}
	logf("Checking %s", st.Symbol)

	age := now.Sub(st.MonitorStart)
	ready := e.ready(st, now)
	switch {
	case !st.HasPrice || !st.HasOpenInterest:
		logf("FAIL readiness: price present=%t, open interest present=%t", st.HasPrice, st.HasOpenInterest)
	case !ready:
		logf("FAIL readiness: monitored %.1fs < %.0fs", age.Seconds(), e.cfg.MinMonitorAge.Seconds())
	default:
		logf("PASS readiness: monitored %.1fs", age.Seconds())
	}

	trend1h := TrendConfirmed(st, domain.Interval1h)
	logf("%s 1h trend: %s", passFail(trend1h), describeStack(st, domain.Interval1h))

	vol := e.checkVolume(st.Volumes)
	switch {
	case !vol.enough:
		logf("FAIL volume: %d bars < %d required", vol.bars, e.cfg.MinVolumeBars)
	case vol.avg <= 0:
		logf("FAIL volume: average hourly volume is %.0f, cannot compare", vol.avg)
	default:
		logf("%s volume: current %.0f, hourly average %.0f, ratio %.2fx, threshold %.2fx",
			passFail(vol.passed), vol.current, vol.avg, vol.ratio, e.cfg.VolumeThreshold)
	}

	price := checkMove(view.PriceHistory, st.LastPrice, now, e.cfg.PriceLookback, e.cfg.PriceThreshold)
	logf("%s price: %s", passFail(price.passed), describeMove(price, e.cfg.PriceLookback, e.cfg.PriceThreshold))

	oi := checkMove(view.OpenInterestHistory, st.LastOpenInterest, now, e.cfg.OILookback, e.cfg.OIThreshold)
	logf("%s open interest (optional): %s", passFail(oi.passed), describeMove(oi, e.cfg.OILookback, e.cfg.OIThreshold))

	trend4h := TrendConfirmed(st, domain.Interval4h)
	logf("%s 4h trend (optional): %s", passFail(trend4h), describeStack(st, domain.Interval4h))

	if !(ready && trend1h && vol.passed && price.passed) {
		logf("No alert would be raised")
		return nil, lines
	}
	logf("All required conditions met, an alert would be raised")
	return buildResult(vol, price, oi, trend4h), lines
}

func buildResult(vol volumeCheck, price, oi moveCheck, trend4h bool) *domain.AlertResult {
	res := &domain.AlertResult{
		VolumeRatio: vol.ratio,
		PricePct:    *price.pct,
		OIPct:       oi.pct,
	}
	res.Reasons = append(res.Reasons,
		fmt.Sprintf("Volume surge %.1fx", vol.ratio),
		fmt.Sprintf("Price move %+.2f%%", *price.pct),
	)
	if oi.passed {
		res.Reasons = append(res.Reasons, fmt.Sprintf("Open interest %+.1f%%", *oi.pct))
	}
	if trend4h {
		res.Reasons = append(res.Reasons, "4h trend bullish")
	}
	return res
}

func passFail(ok bool) string {
	if ok {
		return "PASS"
	}
	return "FAIL"
}

func describeStack(state domain.SymbolState, interval domain.Interval) string {
	stack := state.EMA[interval]
	if !stack.Complete() {
		return fmt.Sprintf("EMA stack not ready (%d closes)", len(state.Closes[interval]))
	}
	return fmt.Sprintf("ema15=%.6g ema30=%.6g ema45=%.6g ema60=%.6g price=%.6g",
		stack[15], stack[30], stack[45], stack[60], state.LastPrice)
}

func describeMove(mc moveCheck, lookback time.Duration, threshold float64) string {
	if mc.pct == nil {
		return "not enough history"
	}
	if mc.elapsed < lookback {
		return fmt.Sprintf("%+.2f%% over %.0fs, needs %.0fs of history", *mc.pct, mc.elapsed.Seconds(), lookback.Seconds())
	}
	return fmt.Sprintf("%+.2f%% over %.0fs, threshold %.2f%%", *mc.pct, mc.elapsed.Seconds(), threshold)
}
