package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"surgeWatch/internal/ports"
)

// Runner is a long-running component that stops when ctx is done.
type Runner interface {
	Run(ctx context.Context) error
}

// MonitorService orchestrates the monitor's loops.
type MonitorService struct {
	logger   ports.Logger
	exchange ports.ExchangeClient
	screener *Screener
	ingestor *StreamIngestor
	poller   *OpenInterestPoller
	extras   []Runner
}

// NewMonitorService creates a new application service instance. extras run
// alongside the core loops, e.g. the HTTP query API.
func NewMonitorService(
	logger ports.Logger,
	exchange ports.ExchangeClient,
	screener *Screener,
	ingestor *StreamIngestor,
	poller *OpenInterestPoller,
	extras ...Runner,
) (*MonitorService, error) {
	if logger == nil || exchange == nil || screener == nil || ingestor == nil || poller == nil {
		return nil, fmt.Errorf("missing required dependencies for MonitorService")
	}
	return &MonitorService{
		logger:   logger,
		exchange: exchange,
		screener: screener,
		ingestor: ingestor,
		poller:   poller,
		extras:   extras,
	}, nil
}

// Start checks connectivity, loads the initial universe and runs every loop
// until ctx is cancelled or a termination signal arrives.
func (s *MonitorService) Start(ctx context.Context) error {
	s.logger.Info(ctx, "Starting monitor service...")

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Handle graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case sig := <-sigCh:
			s.logger.Info(ctx, "Received shutdown signal", map[string]interface{}{"signal": sig.String()})
			cancel()
		case <-ctx.Done():
		}
	}()

	if err := s.exchange.Ping(ctx); err != nil {
		s.logger.Error(ctx, err, "Exchange connectivity check failed")
		return fmt.Errorf("exchange ping failed: %w", err)
	}
	s.logger.Info(ctx, "Exchange reachable")

	// An empty or unavailable universe is not fatal; the screener keeps retrying.
	res, err := s.screener.Reconcile(ctx)
	if err != nil {
		s.logger.Warn(ctx, "Initial universe load failed", map[string]interface{}{"error": err.Error()})
	} else {
		s.logger.Info(ctx, "Initial universe loaded", map[string]interface{}{"tracked": len(res.Added)})
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return s.ingestor.Run(gctx) })
	g.Go(func() error { return s.poller.Run(gctx) })
	g.Go(func() error { return s.screener.Run(gctx) })
	for _, r := range s.extras {
		r := r
		g.Go(func() error { return r.Run(gctx) })
	}

	if err := g.Wait(); err != nil {
		s.logger.Error(ctx, err, "Monitor service stopped with error")
		return err
	}
	s.logger.Info(ctx, "Monitor service stopped.")
	return nil
}
