package binanceclient

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"surgeWatch/internal/ports"
)

// mockLogger implements ports.Logger for testing
type mockLogger struct {
	mu        sync.Mutex
	debugMsgs []string
	infoMsgs  []string
	warnMsgs  []string
	errorMsgs []string
}

func (m *mockLogger) Debug(ctx context.Context, msg string, fields ...map[string]interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.debugMsgs = append(m.debugMsgs, msg)
}

func (m *mockLogger) Info(ctx context.Context, msg string, fields ...map[string]interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.infoMsgs = append(m.infoMsgs, msg)
}

func (m *mockLogger) Warn(ctx context.Context, msg string, fields ...map[string]interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.warnMsgs = append(m.warnMsgs, msg)
}

func (m *mockLogger) Error(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errorMsgs = append(m.errorMsgs, msg)
}

var _ ports.ExchangeClient = (*Client)(nil)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c, err := New(Config{BaseURL: srv.URL, Logger: &mockLogger{}})
	require.NoError(t, err)
	return c
}

func TestNewRequiresLogger(t *testing.T) {
	_, err := New(Config{})
	assert.Error(t, err)
}

func TestGetUniverse(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/fapi/v1/ticker/24hr", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `[
			{"symbol":"BTCUSDT","lastPrice":"65000.1","priceChangePercent":"2.5","quoteVolume":"1500000000.5"},
			{"symbol":"ETHUSDC","lastPrice":"3000","priceChangePercent":"-1.0","quoteVolume":"2000000"},
			{"symbol":"BROKEN","lastPrice":"1","priceChangePercent":"0","quoteVolume":"n/a"}
		]`)
	})

	stats, err := c.GetUniverse(context.Background())
	require.NoError(t, err)
	require.Len(t, stats, 2)
	assert.Equal(t, "BTCUSDT", stats[0].Symbol)
	assert.Equal(t, 1500000000.5, stats[0].QuoteVolume24h)
	assert.Equal(t, 65000.1, stats[0].LastPrice)
	assert.Equal(t, 2.5, stats[0].PriceChangePct)
	assert.Equal(t, "ETHUSDC", stats[1].Symbol)
}

func TestGetOpenInterest(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/fapi/v1/openInterest", r.URL.Path)
		assert.Equal(t, "BTCUSDT", r.URL.Query().Get("symbol"))
		fmt.Fprint(w, `{"openInterest":"10659.509","symbol":"BTCUSDT","time":1589437530011}`)
	})

	oi, err := c.GetOpenInterest(context.Background(), "BTCUSDT")
	require.NoError(t, err)
	assert.Equal(t, 10659.509, oi)
}

func TestGetOpenInterestAPIErrors(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantErr error
	}{
		{name: "rate limited", status: http.StatusTooManyRequests, body: `{"code":-1003,"msg":"Too many requests"}`, wantErr: ports.ErrRateLimited},
		{name: "bad symbol", status: http.StatusBadRequest, body: `{"code":-1121,"msg":"Invalid symbol."}`, wantErr: ports.ErrInvalidRequest},
		{name: "exchange busy", status: http.StatusServiceUnavailable, body: `{"code":-1001,"msg":"Internal error"}`, wantErr: ports.ErrExchangeUnavailable},
		{name: "unmapped code", status: http.StatusBadRequest, body: `{"code":-9999,"msg":"?"}`, wantErr: ports.ErrUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				fmt.Fprint(w, tt.body)
			})
			_, err := c.GetOpenInterest(context.Background(), "BTCUSDT")
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestGetOpenInterestParseError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"openInterest":"abc","symbol":"BTCUSDT","time":1}`)
	})
	_, err := c.GetOpenInterest(context.Background(), "BTCUSDT")
	assert.ErrorIs(t, err, ports.ErrUnknown)
}

func TestGetOpenInterestContextCanceled(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"openInterest":"1","symbol":"BTCUSDT","time":1}`)
	})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := c.GetOpenInterest(ctx, "BTCUSDT")
	assert.ErrorIs(t, err, ports.ErrContextCanceled)
}

func TestGetKlines(t *testing.T) {
	past := time.Now().Add(-2 * time.Hour).UnixMilli()
	future := time.Now().Add(time.Hour).UnixMilli()
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/fapi/v1/klines", r.URL.Path)
		assert.Equal(t, "1h", r.URL.Query().Get("interval"))
		assert.Equal(t, "2", r.URL.Query().Get("limit"))
		fmt.Fprintf(w, `[
			[%d,"100.0","110.0","95.0","105.0","12.5",%d,"1300.0",10,"6.0","620.0","0"],
			[%d,"105.0","106.0","104.0","105.5","3.0",%d,"315.0",4,"1.0","105.0","0"]
		]`, past-3600000, past-1, past, future)
	})

	klines, err := c.GetKlines(context.Background(), "BTCUSDT", "1h", 2)
	require.NoError(t, err)
	require.Len(t, klines, 2)
	assert.Equal(t, "BTCUSDT", klines[0].Symbol)
	assert.Equal(t, "1h", klines[0].Interval)
	assert.Equal(t, 105.0, klines[0].Close)
	assert.Equal(t, 1300.0, klines[0].QuoteVolume)
	assert.True(t, klines[0].IsFinal)
	assert.False(t, klines[1].IsFinal, "the still-open kline is not final")
}

func TestPingAndServerTime(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/fapi/v1/ping":
			fmt.Fprint(w, `{}`)
		case "/fapi/v1/time":
			fmt.Fprint(w, `{"serverTime":1700000000000}`)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})

	require.NoError(t, c.Ping(context.Background()))
	ts, err := c.GetServerTime(context.Background())
	require.NoError(t, err)
	assert.Equal(t, time.UnixMilli(1700000000000), ts)
}

func TestPingConnectionRefused(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c, err := New(Config{BaseURL: url, Logger: &mockLogger{}})
	require.NoError(t, err)
	err = c.Ping(context.Background())
	assert.ErrorIs(t, err, ports.ErrConnectionFailed)
}
