package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"surgeWatch/internal/domain"
	"surgeWatch/internal/ports"
	"surgeWatch/internal/registry"
)

const defaultChartBaseURL = "https://www.binance.com/en/futures/"

// DispatcherConfig holds alert delivery settings.
type DispatcherConfig struct {
	Cooldown     time.Duration
	ChatID       string // Notifier channel
	ChartBaseURL string // Symbol is appended, defaults to the Binance futures page
}

// AlertDispatcher rate-limits alerts per symbol, formats them and hands them
// to the notifier. Every dispatched alert is written to the journal when one
// is configured.
type AlertDispatcher struct {
	cfg      DispatcherConfig
	registry *registry.Registry
	notifier ports.Notifier
	journal  ports.AlertRepository
	logger   ports.Logger
	now      func() time.Time
}

// NewAlertDispatcher creates a dispatcher. journal may be nil.
func NewAlertDispatcher(cfg DispatcherConfig, reg *registry.Registry, notifier ports.Notifier, journal ports.AlertRepository, logger ports.Logger) (*AlertDispatcher, error) {
	if reg == nil || notifier == nil || logger == nil {
		return nil, fmt.Errorf("missing required dependencies for AlertDispatcher")
	}
	if cfg.Cooldown <= 0 {
		return nil, fmt.Errorf("alert cooldown must be positive")
	}
	if cfg.ChartBaseURL == "" {
		cfg.ChartBaseURL = defaultChartBaseURL
	}
	return &AlertDispatcher{
		cfg:      cfg,
		registry: reg,
		notifier: notifier,
		journal:  journal,
		logger:   logger,
		now:      time.Now,
	}, nil
}

// Dispatch sends an alert for symbol unless one was sent within the cooldown.
// The cooldown is consumed before sending, so a failed delivery is not retried.
// It returns true only when the notifier accepted the message.
func (d *AlertDispatcher) Dispatch(ctx context.Context, symbol string, res *domain.AlertResult) bool {
	if res == nil {
		return false
	}
	acquired, err := d.registry.TryAcquireAlert(symbol, d.cfg.Cooldown)
	if err != nil {
		d.logger.Debug(ctx, "Skipping alert for untracked symbol", map[string]interface{}{"symbol": symbol})
		return false
	}
	if !acquired {
		d.logger.Debug(ctx, "Alert suppressed by cooldown", map[string]interface{}{"symbol": symbol})
		return false
	}

	state, err := d.registry.Snapshot(symbol)
	if err != nil {
		d.logger.Debug(ctx, "Symbol removed before alert could be sent", map[string]interface{}{"symbol": symbol})
		return false
	}

	now := d.now()
	text := FormatAlert(state, res, d.cfg.ChartBaseURL, now)
	sendErr := d.notifier.Send(ctx, d.cfg.ChatID, text)
	delivered := sendErr == nil

	fields := map[string]interface{}{"symbol": symbol, "pricePct": res.PricePct, "reasons": strings.Join(res.Reasons, "; ")}
	if delivered {
		d.logger.Info(ctx, "Alert sent", fields)
	} else {
		d.logger.Error(ctx, sendErr, "Alert delivery failed", fields)
	}

	if d.journal != nil {
		rec := &domain.AlertRecord{
			Symbol:         symbol,
			Price:          state.LastPrice,
			PricePct:       res.PricePct,
			OIPct:          res.OIPct,
			FundingRatePct: state.FundingRatePct,
			Reasons:        res.Reasons,
			Delivered:      delivered,
			CreatedAt:      now,
		}
		if err := d.journal.SaveAlert(ctx, rec); err != nil {
			d.logger.Error(ctx, err, "Failed to journal alert", map[string]interface{}{"symbol": symbol})
		}
	}
	return delivered
}

// FormatAlert renders the Markdown alert message.
func FormatAlert(state domain.SymbolState, res *domain.AlertResult, chartBaseURL string, at time.Time) string {
	var b strings.Builder
	fmt.Fprintf(&b, "🚨 *%s* surge alert\n", state.Symbol)
	if res.PricePct >= 0 {
		b.WriteString("🟢📈 Rising\n")
	} else {
		b.WriteString("🔴📉 Falling\n")
	}
	fmt.Fprintf(&b, "💰 Price: `%s` USDT (`%s%%`)\n", formatPrice(state.LastPrice), signedFixed(res.PricePct, 2))
	if res.OIPct != nil {
		fmt.Fprintf(&b, "📊 Open interest: `%s%%`\n", signedFixed(*res.OIPct, 1))
	} else {
		b.WriteString("📊 Open interest: `N/A`\n")
	}
	fmt.Fprintf(&b, "💲 Funding rate: `%s%%`\n", decimal.NewFromFloat(state.FundingRatePct).StringFixed(4))
	b.WriteString("🧩 Reasons:\n")
	for _, r := range res.Reasons {
		fmt.Fprintf(&b, "• %s\n", r)
	}
	fmt.Fprintf(&b, "📈 [Chart](%s%s)\n", chartBaseURL, state.Symbol)
	fmt.Fprintf(&b, "⌚ %s UTC", at.UTC().Format("2006-01-02 15:04:05"))
	return b.String()
}

// formatPrice trims trailing zeros while keeping up to eight decimals.
func formatPrice(p float64) string {
	return decimal.NewFromFloat(p).Round(8).String()
}

func signedFixed(v float64, places int32) string {
	s := decimal.NewFromFloat(v).StringFixed(places)
	if v >= 0 {
		return "+" + s
	}
	return s
}
