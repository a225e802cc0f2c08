package binanceclient

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"surgeWatch/internal/domain"
	"surgeWatch/internal/ports"

	"github.com/adshao/go-binance/v2/common"
	"github.com/adshao/go-binance/v2/futures"
)

const (
	// Base URLs
	baseURLProduction = "https://fapi.binance.com"
	baseURLTestnet    = "https://testnet.binancefuture.com"
)

// Client implements the ports.ExchangeClient interface using the go-binance library.
type Client struct {
	futuresClient *futures.Client
	logger        ports.Logger
}

// Config holds configuration specific to the Binance client adapter.
type Config struct {
	APIKey     string
	SecretKey  string
	UseTestnet bool
	BaseURL    string // Overrides the production/testnet URL when set
	Logger     ports.Logger
}

// New creates a new Binance client adapter.
func New(cfg Config) (*Client, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for Binance client")
	}
	if cfg.APIKey == "" || cfg.SecretKey == "" {
		// Every endpoint used by the monitor is public.
		cfg.Logger.Debug(context.Background(), "APIKey or SecretKey is empty, using public endpoints only")
	}

	client := futures.NewClient(cfg.APIKey, cfg.SecretKey)

	// Set BaseURL directly instead of using global futures.UseTestnet
	switch {
	case cfg.BaseURL != "":
		client.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	case cfg.UseTestnet:
		client.BaseURL = baseURLTestnet
	default:
		client.BaseURL = baseURLProduction
	}
	cfg.Logger.Info(context.Background(), "Binance client configured", map[string]interface{}{"baseURL": client.BaseURL, "testnet": cfg.UseTestnet})

	return &Client{
		futuresClient: client,
		logger:        cfg.Logger,
	}, nil
}

// handleError translates common Binance API errors into standardized ports errors.
func (c *Client) handleError(ctx context.Context, err error, operation string) error {
	if err == nil {
		return nil
	}

	fields := map[string]interface{}{"operation": operation, "originalError": err.Error()}

	var apiErr *common.APIError
	if errors.As(err, &apiErr) {
		fields["apiErrorCode"] = apiErr.Code
		fields["apiErrorMessage"] = apiErr.Message

		// Map specific Binance error codes to custom errors
		var mappedErr error
		switch apiErr.Code {
		case -1003, -1015: // Too many requests
			mappedErr = ports.ErrRateLimited
		case -1000, -1001, -1006, -1007: // Unknown / disconnected / unexpected response / timeout on the exchange side
			mappedErr = ports.ErrExchangeUnavailable
		case -1021: // Timestamp for this request is outside of the recvWindow
			mappedErr = ports.ErrTimeout
		case -1022, -2014, -2015: // Signature or API key rejected
			mappedErr = ports.ErrAuthenticationFailed
		case -1100, -1101, -1102, -1103, -1104, -1105, -1106, -1111, -1115, -1116, -1117, -1120, -1121, -1125, -1127, -1128, -1130: // Parameter/Request format errors
			mappedErr = ports.ErrInvalidRequest
		case -4108: // Symbol is on delivering or delivered or settling or closed or pre-trading
			mappedErr = ports.ErrNotFound
		default:
			// General classification for unmapped API errors
			mappedErr = ports.ErrUnknown
		}
		finalErr := fmt.Errorf("%s failed: %w: %w", operation, mappedErr, err)
		c.logger.Debug(ctx, fmt.Sprintf("%s failed with API error", operation), fields)
		return finalErr
	}

	// Handle non-API errors (network, context cancellation, etc.)
	var finalErr error
	if errors.Is(err, context.DeadlineExceeded) {
		finalErr = fmt.Errorf("%s failed: %w: %w", operation, ports.ErrTimeout, err)
	} else if errors.Is(err, context.Canceled) {
		finalErr = fmt.Errorf("%s operation canceled: %w: %w", operation, ports.ErrContextCanceled, err)
	} else if strings.Contains(err.Error(), "use of closed network connection") ||
		strings.Contains(err.Error(), "connection refused") ||
		strings.Contains(err.Error(), "connection reset by peer") ||
		strings.Contains(err.Error(), "no such host") {
		finalErr = fmt.Errorf("%s failed: %w: %w", operation, ports.ErrConnectionFailed, err)
	} else {
		// Default for other errors (e.g., parsing errors within the adapter)
		finalErr = fmt.Errorf("%s failed: %w: %w", operation, ports.ErrUnknown, err)
	}

	c.logger.Debug(ctx, fmt.Sprintf("%s failed", operation), fields)
	return finalErr
}

// GetUniverse returns the 24h statistics of every futures symbol.
func (c *Client) GetUniverse(ctx context.Context) ([]domain.TickerStat, error) {
	op := "GetUniverse"
	stats, err := c.futuresClient.NewListPriceChangeStatsService().Do(ctx)
	if err != nil {
		return nil, c.handleError(ctx, err, op)
	}

	out := make([]domain.TickerStat, 0, len(stats))
	for _, s := range stats {
		stat, err := translatePriceChangeStats(s)
		if err != nil {
			// Skip the one bad row rather than failing the whole universe
			c.logger.Debug(ctx, "Skipping malformed ticker row", map[string]interface{}{"error": err.Error()})
			continue
		}
		out = append(out, stat)
	}
	c.logger.Debug(ctx, op+" successful", map[string]interface{}{"symbols": len(out)})
	return out, nil
}

// GetOpenInterest retrieves the current open interest of a symbol.
func (c *Client) GetOpenInterest(ctx context.Context, symbol string) (float64, error) {
	op := "GetOpenInterest"
	res, err := c.futuresClient.NewGetOpenInterestService().Symbol(symbol).Do(ctx)
	if err != nil {
		return 0, c.handleError(ctx, err, op)
	}
	if res == nil {
		return 0, c.handleError(ctx, fmt.Errorf("no open interest returned for symbol %s", symbol), op)
	}
	oi, err := strconv.ParseFloat(res.OpenInterest, 64)
	if err != nil {
		parseErr := fmt.Errorf("could not parse open interest '%s': %w", res.OpenInterest, err)
		return 0, c.handleError(ctx, parseErr, op)
	}
	return oi, nil
}

// Ping checks the connectivity to the exchange API.
func (c *Client) Ping(ctx context.Context) error {
	op := "Ping"
	err := c.futuresClient.NewPingService().Do(ctx)
	if err != nil {
		// Ping failure likely indicates connection or availability issues
		return c.handleError(ctx, fmt.Errorf("ping failed: %w", err), op) // Wrap inner error
	}
	c.logger.Debug(ctx, op+" successful")
	return nil
}

// GetServerTime retrieves the current server time from the exchange.
func (c *Client) GetServerTime(ctx context.Context) (time.Time, error) {
	op := "GetServerTime"
	serverTimeMs, err := c.futuresClient.NewServerTimeService().Do(ctx)
	if err != nil {
		return time.Time{}, c.handleError(ctx, err, op)
	}
	// Convert milliseconds to time.Time
	return time.UnixMilli(serverTimeMs), nil
}

// GetKlines retrieves historical klines/candlestick data for the given symbol.
func (c *Client) GetKlines(ctx context.Context, symbol string, interval string, limit int) ([]*domain.Kline, error) {
	op := "GetKlines"
	binanceKlines, err := c.futuresClient.NewKlinesService().Symbol(symbol).Interval(interval).Limit(limit).Do(ctx)
	if err != nil {
		return nil, c.handleError(ctx, err, op)
	}

	domainKlines := make([]*domain.Kline, 0, len(binanceKlines))
	for _, bk := range binanceKlines {
		dk, err := translateBinanceKline(bk, symbol, interval)
		if err != nil {
			return nil, c.handleError(ctx, err, op)
		}
		domainKlines = append(domainKlines, dk)
	}
	return domainKlines, nil
}

func translatePriceChangeStats(s *futures.PriceChangeStats) (domain.TickerStat, error) {
	if s == nil {
		return domain.TickerStat{}, errors.New("received nil ticker")
	}
	quoteVol, err := strconv.ParseFloat(s.QuoteVolume, 64)
	if err != nil {
		return domain.TickerStat{}, fmt.Errorf("parsing quote volume '%s' for %s: %w", s.QuoteVolume, s.Symbol, err)
	}
	stat := domain.TickerStat{Symbol: s.Symbol, QuoteVolume24h: quoteVol}
	// Informational fields, zero when absent
	stat.LastPrice, _ = strconv.ParseFloat(s.LastPrice, 64)
	stat.PriceChangePct, _ = strconv.ParseFloat(s.PriceChangePercent, 64)
	return stat, nil
}

func translateBinanceKline(bk *futures.Kline, symbol, interval string) (*domain.Kline, error) {
	if bk == nil {
		return nil, errors.New("received nil historical kline")
	}
	open, err := strconv.ParseFloat(bk.Open, 64)
	if err != nil {
		return nil, fmt.Errorf("parsing open price '%s': %w", bk.Open, err)
	}
	high, err := strconv.ParseFloat(bk.High, 64)
	if err != nil {
		return nil, fmt.Errorf("parsing high price '%s': %w", bk.High, err)
	}
	low, err := strconv.ParseFloat(bk.Low, 64)
	if err != nil {
		return nil, fmt.Errorf("parsing low price '%s': %w", bk.Low, err)
	}
	cls, err := strconv.ParseFloat(bk.Close, 64)
	if err != nil {
		return nil, fmt.Errorf("parsing close price '%s': %w", bk.Close, err)
	}
	vol, err := strconv.ParseFloat(bk.Volume, 64)
	if err != nil {
		return nil, fmt.Errorf("parsing volume '%s': %w", bk.Volume, err)
	}
	quoteVol, err := strconv.ParseFloat(bk.QuoteAssetVolume, 64)
	if err != nil {
		return nil, fmt.Errorf("parsing quote volume '%s': %w", bk.QuoteAssetVolume, err)
	}

	return &domain.Kline{
		OpenTime:    time.UnixMilli(bk.OpenTime),
		CloseTime:   time.UnixMilli(bk.CloseTime),
		Symbol:      symbol,   // Use passed symbol as it's not in futures.Kline
		Interval:    interval, // Use passed interval
		Open:        open,
		High:        high,
		Low:         low,
		Close:       cls,
		Volume:      vol,
		QuoteVolume: quoteVol,
		IsFinal:     bk.CloseTime < time.Now().UnixMilli(), // The newest REST kline may still be open
	}, nil
}
