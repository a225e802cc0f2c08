package domain

import "fmt"

// Interval is a kline interval tracked by the monitor.
type Interval string

const (
	Interval5m Interval = "5m" // Volume accounting bars
	Interval1h Interval = "1h" // Trend bars
	Interval4h Interval = "4h" // Trend bars
)

// VolumeInterval is the bar size whose quote volume feeds the surge check.
const VolumeInterval = Interval5m

// TrendIntervals are the bar sizes whose closes feed the EMA stacks.
var TrendIntervals = []Interval{Interval1h, Interval4h}

// BarIntervals lists every interval subscribed per symbol.
var BarIntervals = []Interval{Interval5m, Interval1h, Interval4h}

// EMAPeriods is the fixed set of EMA periods computed per trend interval.
var EMAPeriods = []int{15, 30, 45, 60}

// ParseInterval converts an exchange interval string into an Interval.
func ParseInterval(s string) (Interval, error) {
	switch Interval(s) {
	case Interval5m, Interval1h, Interval4h:
		return Interval(s), nil
	default:
		return "", fmt.Errorf("unsupported interval %q", s)
	}
}

// IsTrend reports whether the interval feeds an EMA stack.
func (i Interval) IsTrend() bool {
	return i == Interval1h || i == Interval4h
}

// String returns the exchange representation of the interval.
func (i Interval) String() string {
	return string(i)
}
