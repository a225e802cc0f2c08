package indicators

// Indicator represents a technical indicator computed over a closed-bar price series.
type Indicator interface {
	// Calculate computes the latest indicator value for the given series, oldest first.
	Calculate(series []float64) (float64, error)

	// RequiredDataPoints returns the minimum series length needed for calculation.
	RequiredDataPoints() int

	// Name returns the name of the indicator
	Name() string
}

// IndicatorConfig holds common configuration for indicators
type IndicatorConfig struct {
	Period int
}

// BaseIndicator provides common functionality for indicators
type BaseIndicator struct {
	Config IndicatorConfig
}

// RequiredDataPoints returns the minimum number of points needed for calculation
func (b *BaseIndicator) RequiredDataPoints() int {
	return b.Config.Period
}
