package app

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"surgeWatch/internal/domain"
	"surgeWatch/internal/ports"
	"surgeWatch/internal/registry"
	"surgeWatch/internal/strategy"
)

// mockLogger implements ports.Logger and is safe for concurrent use.
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

func (m *mockLogger) debug() []string { return m.copyOf(&m.debugMsgs) }
func (m *mockLogger) info() []string  { return m.copyOf(&m.infoMsgs) }
func (m *mockLogger) warn() []string  { return m.copyOf(&m.warnMsgs) }
func (m *mockLogger) errs() []string  { return m.copyOf(&m.errorMsgs) }

func (m *mockLogger) copyOf(msgs *[]string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), *msgs...)
}

// mockExchange implements ports.ExchangeClient.
type mockExchange struct {
	mu          sync.Mutex
	pingErr     error
	universe    []domain.TickerStat
	universeErr error
	oi          map[string]float64
	oiErr       map[string]error
	oiDelay     time.Duration
	klines      map[string][]*domain.Kline // keyed by symbol + "/" + interval
	klinesErr   error

	oiCalls     atomic.Int64
	inFlight    atomic.Int64
	maxInFlight atomic.Int64
}

var _ ports.ExchangeClient = (*mockExchange)(nil)

func (m *mockExchange) GetUniverse(ctx context.Context) ([]domain.TickerStat, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.universeErr != nil {
		return nil, m.universeErr
	}
	return append([]domain.TickerStat(nil), m.universe...), nil
}

func (m *mockExchange) setUniverse(stats []domain.TickerStat, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.universe = stats
	m.universeErr = err
}

func (m *mockExchange) GetOpenInterest(ctx context.Context, symbol string) (float64, error) {
	m.oiCalls.Add(1)
	n := m.inFlight.Add(1)
	defer m.inFlight.Add(-1)
	for {
		prev := m.maxInFlight.Load()
		if n <= prev || m.maxInFlight.CompareAndSwap(prev, n) {
			break
		}
	}
	if m.oiDelay > 0 {
		time.Sleep(m.oiDelay)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.oiErr[symbol]; err != nil {
		return 0, err
	}
	return m.oi[symbol], nil
}

func (m *mockExchange) GetKlines(ctx context.Context, symbol string, interval string, limit int) ([]*domain.Kline, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.klinesErr != nil {
		return nil, m.klinesErr
	}
	return m.klines[symbol+"/"+interval], nil
}

func (m *mockExchange) Ping(ctx context.Context) error {
	return m.pingErr
}

func (m *mockExchange) GetServerTime(ctx context.Context) (time.Time, error) {
	return time.Now(), nil
}

// mockStream implements ports.MarketStream. Subscribe blocks until ctx is done
// unless err or panicMsg is set.
type mockStream struct {
	mu       sync.Mutex
	calls    [][]string
	err      error
	panicMsg string
}

func (m *mockStream) Subscribe(ctx context.Context, streams []string, handler ports.MarketEventHandler) error {
	m.mu.Lock()
	m.calls = append(m.calls, append([]string(nil), streams...))
	m.mu.Unlock()
	if m.panicMsg != "" {
		panic(m.panicMsg)
	}
	if m.err != nil {
		return m.err
	}
	<-ctx.Done()
	return nil
}

func (m *mockStream) subscriptions() [][]string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([][]string(nil), m.calls...)
}

type sentMessage struct {
	channel string
	text    string
}

// mockNotifier implements ports.Notifier.
type mockNotifier struct {
	mu   sync.Mutex
	sent []sentMessage
	err  error
}

func (m *mockNotifier) Send(ctx context.Context, channel, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, sentMessage{channel: channel, text: text})
	return m.err
}

func (m *mockNotifier) messages() []sentMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]sentMessage(nil), m.sent...)
}

// mockRepo implements ports.AlertRepository in memory.
type mockRepo struct {
	mu      sync.Mutex
	saved   []*domain.AlertRecord
	saveErr error
}

func (m *mockRepo) SaveAlert(ctx context.Context, rec *domain.AlertRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveErr != nil {
		return m.saveErr
	}
	if rec.ID == "" {
		rec.ID = fmt.Sprintf("alert-%d", len(m.saved)+1)
	}
	m.saved = append(m.saved, rec)
	return nil
}

func (m *mockRepo) FindRecentBySymbol(ctx context.Context, symbol string, limit int) ([]*domain.AlertRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if limit <= 0 {
		return nil, ports.ErrInvalidRequest
	}
	var out []*domain.AlertRecord
	for i := len(m.saved) - 1; i >= 0 && len(out) < limit; i-- {
		if m.saved[i].Symbol == symbol {
			out = append(out, m.saved[i])
		}
	}
	return out, nil
}

func (m *mockRepo) records() []*domain.AlertRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*domain.AlertRecord(nil), m.saved...)
}

// fakeClock is a settable time source shared by the registry and components.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestRegistry(clock *fakeClock) *registry.Registry {
	return registry.New(registry.Config{Now: clock.Now})
}

func newTestEvaluator(t *testing.T, logger ports.Logger) *strategy.Evaluator {
	t.Helper()
	e, err := strategy.New(strategy.DefaultConfig(3, 5, 10), logger)
	require.NoError(t, err)
	return e
}

// seedQualifying drives symbol into a state that passes every required gate:
// a 6% price rise over 1000s, 24 equal volume bars with no older history and
// a rising 1h close series. It leaves the clock at the time of the last tick.
func seedQualifying(t *testing.T, reg *registry.Registry, clock *fakeClock, symbol string) {
	t.Helper()
	require.True(t, reg.IsTracked(symbol), "symbol must be tracked before seeding")
	require.NoError(t, reg.SetPrice(symbol, 100))
	clock.Advance(1000 * time.Second)
	require.NoError(t, reg.SetPrice(symbol, 106))
	require.NoError(t, reg.SetOpenInterest(symbol, 1000))
	for i := 1; i <= 24; i++ {
		require.NoError(t, reg.AppendVolumeBar(symbol, int64(i), 100))
	}
	for i := 1; i <= 60; i++ {
		require.NoError(t, reg.AppendCloseAndRecomputeEMA(symbol, domain.Interval1h, int64(i), float64(40+i)))
	}
}

func containsMsg(msgs []string, want string) bool {
	for _, m := range msgs {
		if m == want {
			return true
		}
	}
	return false
}
