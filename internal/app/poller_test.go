package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewOpenInterestPoller(t *testing.T) {
	reg := newTestRegistry(newFakeClock())
	valid := PollerConfig{Interval: time.Minute, BatchSize: 50, Concurrency: 20}

	_, err := NewOpenInterestPoller(valid, nil, &mockExchange{}, &mockLogger{})
	assert.Error(t, err)
	_, err = NewOpenInterestPoller(PollerConfig{Interval: time.Minute, BatchSize: 50}, reg, &mockExchange{}, &mockLogger{})
	assert.Error(t, err)
	_, err = NewOpenInterestPoller(valid, reg, &mockExchange{}, &mockLogger{})
	assert.NoError(t, err)
}

func TestOpenInterestPoller_PollOnce(t *testing.T) {
	clock := newFakeClock()
	reg := newTestRegistry(clock)
	reg.Reconcile([]string{"ADAUSDT", "BTCUSDT", "ETHUSDT", "SOLUSDT", "XRPUSDT"})

	fetchErr := errors.New("rate limited")
	exchange := &mockExchange{
		oi: map[string]float64{
			"ADAUSDT": 10, "BTCUSDT": 20, "ETHUSDT": 30, "SOLUSDT": 40, "XRPUSDT": 50,
		},
		oiErr: map[string]error{"ETHUSDT": fetchErr},
	}
	poller, err := NewOpenInterestPoller(PollerConfig{
		Interval:    time.Minute,
		BatchSize:   2,
		Concurrency: 20,
		BatchPause:  time.Millisecond,
	}, reg, exchange, &mockLogger{})
	require.NoError(t, err)

	res := poller.PollOnce(context.Background())
	assert.Equal(t, 4, res.Updated)
	require.Len(t, res.Failed, 1)
	assert.ErrorIs(t, res.Failed["ETHUSDT"], fetchErr)
	assert.Equal(t, int64(5), exchange.oiCalls.Load())

	// A failed symbol leaves its siblings updated and itself untouched.
	st, err := reg.Snapshot("SOLUSDT")
	require.NoError(t, err)
	assert.True(t, st.HasOpenInterest)
	assert.Equal(t, 40.0, st.LastOpenInterest)

	st, err = reg.Snapshot("ETHUSDT")
	require.NoError(t, err)
	assert.False(t, st.HasOpenInterest)

	hist, err := reg.OpenInterestHistory("BTCUSDT")
	require.NoError(t, err)
	require.Len(t, hist, 1)
	assert.Equal(t, 20.0, hist[0].Value)
}

func TestOpenInterestPoller_ConcurrencyBound(t *testing.T) {
	reg := newTestRegistry(newFakeClock())
	var symbols []string
	for _, s := range []string{"A", "B", "C", "D", "E", "F", "G", "H", "I", "J"} {
		symbols = append(symbols, s+"USDT")
	}
	reg.Reconcile(symbols)

	exchange := &mockExchange{oi: map[string]float64{}, oiDelay: 10 * time.Millisecond}
	poller, err := NewOpenInterestPoller(PollerConfig{
		Interval:    time.Minute,
		BatchSize:   10,
		Concurrency: 3,
	}, reg, exchange, &mockLogger{})
	require.NoError(t, err)

	res := poller.PollOnce(context.Background())
	assert.Equal(t, 10, res.Updated)
	assert.Empty(t, res.Failed)
	assert.LessOrEqual(t, exchange.maxInFlight.Load(), int64(3))
	assert.GreaterOrEqual(t, exchange.maxInFlight.Load(), int64(1))
}

func TestOpenInterestPoller_PollOnceCancelled(t *testing.T) {
	reg := newTestRegistry(newFakeClock())
	reg.Reconcile([]string{"BTCUSDT", "ETHUSDT"})
	exchange := &mockExchange{oi: map[string]float64{"BTCUSDT": 1, "ETHUSDT": 2}}
	poller, err := NewOpenInterestPoller(PollerConfig{Interval: time.Minute, BatchSize: 1, Concurrency: 1, BatchPause: time.Hour}, reg, exchange, &mockLogger{})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	// The first batch completes, then the pause before the second is interrupted.
	res := poller.PollOnce(ctx)
	assert.Equal(t, 1, res.Updated)
	assert.Equal(t, int64(1), exchange.oiCalls.Load())
}

func TestOpenInterestPoller_Run(t *testing.T) {
	reg := newTestRegistry(newFakeClock())
	reg.Reconcile([]string{"BTCUSDT"})
	exchange := &mockExchange{oi: map[string]float64{"BTCUSDT": 7}}
	logger := &mockLogger{}
	poller, err := NewOpenInterestPoller(PollerConfig{Interval: time.Hour, BatchSize: 10, Concurrency: 2}, reg, exchange, logger)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- poller.Run(ctx) }()

	// The first pass runs immediately.
	require.Eventually(t, func() bool {
		st, err := reg.Snapshot("BTCUSDT")
		return err == nil && st.HasOpenInterest
	}, 5*time.Second, 5*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("poller did not stop")
	}
	assert.Contains(t, logger.info(), "Open interest poller stopped")
}
