package app

import (
	"context"
	"fmt"
	"time"

	"surgeWatch/internal/domain"
	"surgeWatch/internal/ports"
	"surgeWatch/internal/registry"
	"surgeWatch/internal/strategy"
)

// QueryService exposes read-only views of the monitor for manual checks.
type QueryService struct {
	registry  *registry.Registry
	evaluator *strategy.Evaluator
	journal   ports.AlertRepository
	now       func() time.Time
}

// NewQueryService creates a query service. journal may be nil, in which case
// RecentAlerts reports ErrNotFound.
func NewQueryService(reg *registry.Registry, evaluator *strategy.Evaluator, journal ports.AlertRepository) (*QueryService, error) {
	if reg == nil || evaluator == nil {
		return nil, fmt.Errorf("missing required dependencies for QueryService")
	}
	return &QueryService{registry: reg, evaluator: evaluator, journal: journal, now: time.Now}, nil
}

// TrackedSymbols returns the currently monitored symbols, sorted.
func (q *QueryService) TrackedSymbols() []string {
	return q.registry.Tracked()
}

// GetSnapshot returns a copy of the symbol's state. Untracked symbols yield
// ErrSymbolNotTracked.
func (q *QueryService) GetSnapshot(symbol string) (domain.SymbolState, error) {
	return q.registry.Snapshot(symbol)
}

// GetPriceHistory returns the retained price samples, oldest first.
func (q *QueryService) GetPriceHistory(symbol string) ([]domain.Sample, error) {
	return q.registry.PriceHistory(symbol)
}

// ManualEvaluate runs the alert conditions against the symbol's current state
// and returns the result, if any, together with a step-by-step narration.
// It never dispatches and never touches the cooldown.
func (q *QueryService) ManualEvaluate(symbol string) (*domain.AlertResult, []string, error) {
	view, err := q.registry.View(symbol)
	if err != nil {
		return nil, nil, err
	}
	res, lines := q.evaluator.Diagnose(view, q.now())
	return res, lines, nil
}

// RecentAlerts returns the newest journaled alerts for a symbol.
func (q *QueryService) RecentAlerts(ctx context.Context, symbol string, limit int) ([]*domain.AlertRecord, error) {
	if q.journal == nil {
		return nil, fmt.Errorf("alert journal disabled: %w", ports.ErrNotFound)
	}
	return q.journal.FindRecentBySymbol(ctx, symbol, limit)
}
