package binanceclient

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/adshao/go-binance/v2/futures"
	"github.com/gorilla/websocket"

	"surgeWatch/internal/domain"
	"surgeWatch/internal/ports"
)

const (
	streamURLProduction = "wss://fstream.binance.com"
	streamURLTestnet    = "wss://stream.binancefuture.com"

	defaultReadTimeout = 60 * time.Second
)

// StreamConfig configures the combined-stream websocket adapter.
type StreamConfig struct {
	UseTestnet  bool
	BaseURL     string        // Overrides the production/testnet URL when set
	ReadTimeout time.Duration // A connection silent for this long is treated as failed
	Logger      ports.Logger
}

// Stream implements ports.MarketStream over Binance combined streams.
type Stream struct {
	baseURL     string
	readTimeout time.Duration
	dialer      *websocket.Dialer
	logger      ports.Logger
}

// NewStream creates a websocket stream adapter.
func NewStream(cfg StreamConfig) (*Stream, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for Binance stream")
	}
	base := streamURLProduction
	switch {
	case cfg.BaseURL != "":
		base = strings.TrimRight(cfg.BaseURL, "/")
	case cfg.UseTestnet:
		base = streamURLTestnet
	}
	timeout := cfg.ReadTimeout
	if timeout <= 0 {
		timeout = defaultReadTimeout
	}
	return &Stream{
		baseURL:     base,
		readTimeout: timeout,
		dialer:      websocket.DefaultDialer,
		logger:      cfg.Logger,
	}, nil
}

// combinedEvent is the envelope of a combined-stream message.
type combinedEvent struct {
	Stream string          `json:"stream"`
	Data   json.RawMessage `json:"data"`
}

// Subscribe opens one connection for all streams and delivers decoded events
// to handler. It returns nil once ctx is done; any other exit is an error and
// is not retried here.
func (s *Stream) Subscribe(ctx context.Context, streams []string, handler ports.MarketEventHandler) error {
	op := "Subscribe"
	if len(streams) == 0 {
		return fmt.Errorf("%s failed: %w: no streams", op, ports.ErrInvalidRequest)
	}

	url := s.baseURL + "/stream?streams=" + strings.Join(streams, "/")
	conn, _, err := s.dialer.DialContext(ctx, url, nil)
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("%s failed: %w: %w", op, ports.ErrConnectionFailed, err)
	}
	defer conn.Close()

	// Closing the connection unblocks ReadMessage when ctx ends.
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	s.logger.Debug(ctx, "Stream connected", map[string]interface{}{"streams": len(streams)})

	for {
		_ = conn.SetReadDeadline(time.Now().Add(s.readTimeout))
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("%s read failed: %w: %w", op, ports.ErrConnectionFailed, err)
		}
		if err := dispatchEvent(msg, handler); err != nil {
			s.logger.Debug(ctx, "Dropping stream event", map[string]interface{}{"error": err.Error()})
		}
	}
}

// dispatchEvent decodes one combined-stream message and hands it to handler.
func dispatchEvent(msg []byte, handler ports.MarketEventHandler) error {
	var env combinedEvent
	if err := json.Unmarshal(msg, &env); err != nil {
		return fmt.Errorf("%w: %w", ports.ErrMalformedEvent, err)
	}

	switch {
	case strings.HasSuffix(env.Stream, "@markPrice") || strings.Contains(env.Stream, "@markPrice@"):
		var ev futures.WsMarkPriceEvent
		if err := json.Unmarshal(env.Data, &ev); err != nil {
			return fmt.Errorf("%w: %s: %w", ports.ErrMalformedEvent, env.Stream, err)
		}
		mp, err := translateWsMarkPrice(&ev)
		if err != nil {
			return fmt.Errorf("%w: %s: %w", ports.ErrMalformedEvent, env.Stream, err)
		}
		handler.OnMarkPrice(mp)
	case strings.Contains(env.Stream, "@kline_"):
		var ev futures.WsKlineEvent
		if err := json.Unmarshal(env.Data, &ev); err != nil {
			return fmt.Errorf("%w: %s: %w", ports.ErrMalformedEvent, env.Stream, err)
		}
		k, err := translateWsKline(&ev)
		if err != nil {
			return fmt.Errorf("%w: %s: %w", ports.ErrMalformedEvent, env.Stream, err)
		}
		handler.OnKline(k)
	default:
		return fmt.Errorf("%w: unknown stream %q", ports.ErrMalformedEvent, env.Stream)
	}
	return nil
}

func translateWsMarkPrice(ev *futures.WsMarkPriceEvent) (domain.MarkPrice, error) {
	if ev.Symbol == "" {
		return domain.MarkPrice{}, fmt.Errorf("mark price event without symbol")
	}
	price, err := strconv.ParseFloat(ev.MarkPrice, 64)
	if err != nil {
		return domain.MarkPrice{}, fmt.Errorf("parsing mark price '%s': %w", ev.MarkPrice, err)
	}
	var rate float64
	if ev.FundingRate != "" {
		rate, err = strconv.ParseFloat(ev.FundingRate, 64)
		if err != nil {
			return domain.MarkPrice{}, fmt.Errorf("parsing funding rate '%s': %w", ev.FundingRate, err)
		}
	}
	return domain.MarkPrice{
		Symbol:      ev.Symbol,
		Price:       price,
		FundingRate: rate,
		Time:        time.UnixMilli(ev.Time),
	}, nil
}

func translateWsKline(event *futures.WsKlineEvent) (*domain.Kline, error) {
	k := event.Kline
	if k.Symbol == "" {
		return nil, fmt.Errorf("kline event without symbol")
	}
	open, err := strconv.ParseFloat(k.Open, 64)
	if err != nil {
		return nil, fmt.Errorf("parsing open price '%s': %w", k.Open, err)
	}
	high, err := strconv.ParseFloat(k.High, 64)
	if err != nil {
		return nil, fmt.Errorf("parsing high price '%s': %w", k.High, err)
	}
	low, err := strconv.ParseFloat(k.Low, 64)
	if err != nil {
		return nil, fmt.Errorf("parsing low price '%s': %w", k.Low, err)
	}
	cls, err := strconv.ParseFloat(k.Close, 64)
	if err != nil {
		return nil, fmt.Errorf("parsing close price '%s': %w", k.Close, err)
	}
	vol, err := strconv.ParseFloat(k.Volume, 64)
	if err != nil {
		return nil, fmt.Errorf("parsing volume '%s': %w", k.Volume, err)
	}
	quoteVol, err := strconv.ParseFloat(k.QuoteVolume, 64)
	if err != nil {
		return nil, fmt.Errorf("parsing quote volume '%s': %w", k.QuoteVolume, err)
	}

	return &domain.Kline{
		OpenTime:    time.UnixMilli(k.StartTime),
		CloseTime:   time.UnixMilli(k.EndTime),
		Symbol:      k.Symbol,
		Interval:    k.Interval,
		Open:        open,
		High:        high,
		Low:         low,
		Close:       cls,
		Volume:      vol,
		QuoteVolume: quoteVol,
		IsFinal:     k.IsFinal,
	}, nil
}
