package domain

import "time"

// Sample is one retained history point.
type Sample struct {
	Time  time.Time
	Value float64
}

// EMAStack maps an EMA period to its latest value. A period missing from the
// map has no value yet.
type EMAStack map[int]float64

// Complete reports whether every period in EMAPeriods has a value.
func (s EMAStack) Complete() bool {
	for _, p := range EMAPeriods {
		if _, ok := s[p]; !ok {
			return false
		}
	}
	return true
}

// Clone returns an independent copy of the stack.
func (s EMAStack) Clone() EMAStack {
	out := make(EMAStack, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}

// SymbolState is a point-in-time copy of one monitored symbol.
type SymbolState struct {
	Symbol           string
	LastPrice        float64
	HasPrice         bool
	LastOpenInterest float64
	HasOpenInterest  bool
	FundingRatePct   float64
	MonitorStart     time.Time
	Volumes          []float64              // Closed 5m quote volumes, oldest first
	LastBarClose     map[Interval]int64     // Close-time watermark (Unix ms) per interval
	Closes           map[Interval][]float64 // Closed-bar close prices per trend interval
	EMA              map[Interval]EMAStack
}

// MarketView bundles a symbol's state with its histories, captured together.
type MarketView struct {
	State               SymbolState
	PriceHistory        []Sample
	OpenInterestHistory []Sample
}
