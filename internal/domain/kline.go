package domain

import "time"

// Kline represents a single candlestick data point.
type Kline struct {
	OpenTime    time.Time // Start time of the interval
	CloseTime   time.Time // End time of the interval
	Symbol      string    // Trading symbol
	Interval    string    // Kline interval (e.g., "5m", "1h")
	Open        float64   // Opening price
	High        float64   // Highest price
	Low         float64   // Lowest price
	Close       float64   // Closing price
	Volume      float64   // Base asset volume
	QuoteVolume float64   // Quote asset (USDT) volume
	IsFinal     bool      // Whether this kline is the final one for the interval
}

// MarkPrice is a mark-price tick for one symbol.
type MarkPrice struct {
	Symbol      string
	Price       float64
	FundingRate float64 // Raw rate as published, e.g. 0.0001 for 0.01%
	Time        time.Time
}

// TickerStat is the 24h summary used for universe eligibility.
type TickerStat struct {
	Symbol         string
	QuoteVolume24h float64
	LastPrice      float64
	PriceChangePct float64
}
