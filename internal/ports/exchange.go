package ports

import (
	"context"
	"time"

	"surgeWatch/internal/domain"
)

// UniverseSource lists every instrument with its 24h statistics.
type UniverseSource interface {
	// GetUniverse returns the 24h ticker statistics of all futures symbols.
	GetUniverse(ctx context.Context) ([]domain.TickerStat, error)
}

// OpenInterestSource fetches the current open interest of a symbol.
type OpenInterestSource interface {
	GetOpenInterest(ctx context.Context, symbol string) (float64, error)
}

// KlineSource retrieves historical klines.
type KlineSource interface {
	// GetKlines retrieves the most recent klines for the given symbol, oldest first.
	GetKlines(ctx context.Context, symbol string, interval string, limit int) ([]*domain.Kline, error)
}

// ExchangeClient defines the REST surface of the exchange used by the monitor.
type ExchangeClient interface {
	UniverseSource
	OpenInterestSource
	KlineSource

	// Ping checks the connectivity to the exchange API.
	Ping(ctx context.Context) error

	// GetServerTime retrieves the current server time from the exchange.
	GetServerTime(ctx context.Context) (time.Time, error)
}

// MarketEventHandler receives decoded stream events.
// Implementations must not block for long; they run on the connection's read loop.
type MarketEventHandler interface {
	OnMarkPrice(event domain.MarkPrice)
	OnKline(kline *domain.Kline)
}

// MarketStream opens multiplexed market-data subscriptions.
type MarketStream interface {
	// Subscribe connects to the given stream names and delivers events to handler
	// until ctx is cancelled or the connection fails. A nil error means ctx ended it.
	Subscribe(ctx context.Context, streams []string, handler MarketEventHandler) error
}
