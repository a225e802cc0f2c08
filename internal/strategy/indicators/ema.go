package indicators

import (
	"fmt"

	"surgeWatch/internal/domain"
)

// EMA implements the exponential moving average seeded with the first price:
// ema[0] = p[0], ema[t] = α·p[t] + (1−α)·ema[t−1], α = 2/(period+1).
type EMA struct {
	BaseIndicator
}

// NewEMA creates a new EMA indicator for the given period.
func NewEMA(period int) *EMA {
	return &EMA{BaseIndicator: BaseIndicator{Config: IndicatorConfig{Period: period}}}
}

// Name returns the name of the indicator
func (e *EMA) Name() string {
	return fmt.Sprintf("EMA%d", e.Config.Period)
}

// Calculate returns the last value of the EMA recurrence over series.
func (e *EMA) Calculate(series []float64) (float64, error) {
	if e.Config.Period <= 0 {
		return 0, fmt.Errorf("invalid EMA period %d", e.Config.Period)
	}
	if len(series) < e.Config.Period {
		return 0, fmt.Errorf("not enough data (%d) to calculate EMA for period %d", len(series), e.Config.Period)
	}

	alpha := 2.0 / float64(e.Config.Period+1)
	ema := series[0]
	for _, price := range series[1:] {
		ema = alpha*price + (1-alpha)*ema
	}
	return ema, nil
}

// TrendStack computes a fixed set of EMAs together. Values are only produced
// once the series covers the largest period, so every period is defined
// whenever any is.
type TrendStack struct {
	emas     []*EMA
	required int
}

// NewTrendStack builds a stack for the given periods.
func NewTrendStack(periods ...int) *TrendStack {
	s := &TrendStack{}
	for _, p := range periods {
		s.emas = append(s.emas, NewEMA(p))
		if p > s.required {
			s.required = p
		}
	}
	return s
}

// DefaultTrendStack returns the stack over domain.EMAPeriods.
func DefaultTrendStack() *TrendStack {
	return NewTrendStack(domain.EMAPeriods...)
}

// RequiredDataPoints is the largest period in the stack.
func (s *TrendStack) RequiredDataPoints() int {
	return s.required
}

// Compute returns the latest value of each EMA, or ok=false when the series is
// shorter than the largest period.
func (s *TrendStack) Compute(series []float64) (domain.EMAStack, bool) {
	if len(series) < s.required || len(s.emas) == 0 {
		return nil, false
	}
	out := make(domain.EMAStack, len(s.emas))
	for _, e := range s.emas {
		v, err := e.Calculate(series)
		if err != nil {
			return nil, false
		}
		out[e.Config.Period] = v
	}
	return out, true
}
