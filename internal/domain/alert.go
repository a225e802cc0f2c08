package domain

import "time"

// AlertResult is produced by the condition evaluator when a symbol qualifies.
type AlertResult struct {
	VolumeRatio float64  `json:"volumeRatio"`
	PricePct    float64  `json:"pricePct"`
	OIPct       *float64 `json:"oiPct"` // nil when the OI change could not be computed
	Reasons     []string `json:"reasons"`
}

// AlertRecord is a journal entry for a dispatched alert.
type AlertRecord struct {
	ID             string    `json:"id"`
	Symbol         string    `json:"symbol"`
	Price          float64   `json:"price"`
	PricePct       float64   `json:"pricePct"`
	OIPct          *float64  `json:"oiPct"`
	FundingRatePct float64   `json:"fundingRatePct"`
	Reasons        []string  `json:"reasons"`
	Delivered      bool      `json:"delivered"`
	CreatedAt      time.Time `json:"createdAt"`
}
