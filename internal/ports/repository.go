package ports

import (
	"context"

	"surgeWatch/internal/domain"
)

// AlertRepository stores and retrieves dispatched alerts.
type AlertRepository interface {
	// SaveAlert appends an alert record. The record ID is assigned when empty.
	SaveAlert(ctx context.Context, rec *domain.AlertRecord) error
	// FindRecentBySymbol retrieves the newest alerts for a symbol, up to a limit.
	FindRecentBySymbol(ctx context.Context, symbol string, limit int) ([]*domain.AlertRecord, error)
}
