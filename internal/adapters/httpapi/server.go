package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"surgeWatch/internal/domain"
	"surgeWatch/internal/ports"
)

const (
	defaultAlertLimit = 20
	maxAlertLimit     = 500
	shutdownTimeout   = 5 * time.Second
)

// SymbolQuery is the read surface served over HTTP.
type SymbolQuery interface {
	TrackedSymbols() []string
	GetSnapshot(symbol string) (domain.SymbolState, error)
	GetPriceHistory(symbol string) ([]domain.Sample, error)
	ManualEvaluate(symbol string) (*domain.AlertResult, []string, error)
	RecentAlerts(ctx context.Context, symbol string, limit int) ([]*domain.AlertRecord, error)
}

// Config holds HTTP server settings.
type Config struct {
	Addr   string
	Debug  bool
	Query  SymbolQuery
	Logger ports.Logger
}

// Server serves the read-only monitor API.
type Server struct {
	srv    *http.Server
	engine *gin.Engine
	query  SymbolQuery
	logger ports.Logger
}

type apiResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

type snapshotResponse struct {
	Symbol           string                        `json:"symbol"`
	LastPrice        *float64                      `json:"lastPrice"`
	LastOpenInterest *float64                      `json:"lastOpenInterest"`
	FundingRatePct   float64                       `json:"fundingRatePct"`
	MonitorStart     time.Time                     `json:"monitorStart"`
	VolumeBars       int                           `json:"volumeBars"`
	LastBarClose     map[string]int64              `json:"lastBarClose"`
	CloseBars        map[string]int                `json:"closeBars"`
	EMA              map[string]map[string]float64 `json:"ema"`
}

type sampleResponse struct {
	Time  time.Time `json:"time"`
	Price float64   `json:"price"`
}

type checkResponse struct {
	Alert  *domain.AlertResult `json:"alert"`
	Report []string            `json:"report"`
}

// New creates a server. Routes are registered immediately so the handler can
// be exercised without listening.
func New(cfg Config) (*Server, error) {
	if cfg.Query == nil || cfg.Logger == nil {
		return nil, fmt.Errorf("missing required dependencies for HTTP server")
	}
	if cfg.Debug {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	engine := gin.New()
	engine.Use(gin.Recovery())

	s := &Server{
		engine: engine,
		query:  cfg.Query,
		logger: cfg.Logger,
		srv:    &http.Server{Addr: cfg.Addr, Handler: engine, ReadHeaderTimeout: 5 * time.Second},
	}
	s.register(engine)
	return s, nil
}

// Handler returns the underlying HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.engine
}

func (s *Server) register(r *gin.Engine) {
	r.GET("/healthz", s.health)
	g := r.Group("/api/symbols")
	g.GET("", s.listSymbols)
	g.GET("/:symbol", s.snapshot)
	g.GET("/:symbol/prices", s.prices)
	g.GET("/:symbol/check", s.check)
	g.GET("/:symbol/alerts", s.alerts)
}

// Run listens until ctx is done and then shuts the server down.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info(ctx, "HTTP API listening", map[string]interface{}{"addr": s.srv.Addr})
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := s.srv.Shutdown(shutdownCtx); err != nil {
		s.logger.Error(ctx, err, "HTTP API shutdown failed")
		return err
	}
	s.logger.Info(ctx, "HTTP API stopped")
	return nil
}

func ok(c *gin.Context, data any) {
	c.JSON(http.StatusOK, apiResponse{Code: 0, Message: "ok", Data: data})
}

func fail(c *gin.Context, status int, message string) {
	c.JSON(status, apiResponse{Code: status, Message: message})
}

// failFor maps a query error to a status code.
func failFor(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ports.ErrSymbolNotTracked), errors.Is(err, ports.ErrNotFound):
		fail(c, http.StatusNotFound, err.Error())
	case errors.Is(err, ports.ErrInvalidRequest):
		fail(c, http.StatusBadRequest, err.Error())
	default:
		fail(c, http.StatusInternalServerError, err.Error())
	}
}

func symbolParam(c *gin.Context) string {
	return strings.ToUpper(strings.TrimSpace(c.Param("symbol")))
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "tracked": len(s.query.TrackedSymbols())})
}

func (s *Server) listSymbols(c *gin.Context) {
	ok(c, s.query.TrackedSymbols())
}

func (s *Server) snapshot(c *gin.Context) {
	st, err := s.query.GetSnapshot(symbolParam(c))
	if err != nil {
		failFor(c, err)
		return
	}
	ok(c, toSnapshotResponse(st))
}

func (s *Server) prices(c *gin.Context) {
	hist, err := s.query.GetPriceHistory(symbolParam(c))
	if err != nil {
		failFor(c, err)
		return
	}
	out := make([]sampleResponse, 0, len(hist))
	for _, smp := range hist {
		out = append(out, sampleResponse{Time: smp.Time, Price: smp.Value})
	}
	ok(c, out)
}

func (s *Server) check(c *gin.Context) {
	res, lines, err := s.query.ManualEvaluate(symbolParam(c))
	if err != nil {
		failFor(c, err)
		return
	}
	ok(c, checkResponse{Alert: res, Report: lines})
}

func (s *Server) alerts(c *gin.Context) {
	limit := defaultAlertLimit
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > maxAlertLimit {
			fail(c, http.StatusBadRequest, fmt.Sprintf("limit must be between 1 and %d", maxAlertLimit))
			return
		}
		limit = n
	}
	recs, err := s.query.RecentAlerts(c.Request.Context(), symbolParam(c), limit)
	if err != nil {
		failFor(c, err)
		return
	}
	ok(c, recs)
}

func toSnapshotResponse(st domain.SymbolState) snapshotResponse {
	out := snapshotResponse{
		Symbol:         st.Symbol,
		FundingRatePct: st.FundingRatePct,
		MonitorStart:   st.MonitorStart,
		VolumeBars:     len(st.Volumes),
		LastBarClose:   make(map[string]int64, len(st.LastBarClose)),
		CloseBars:      make(map[string]int, len(st.Closes)),
		EMA:            make(map[string]map[string]float64, len(st.EMA)),
	}
	if st.HasPrice {
		p := st.LastPrice
		out.LastPrice = &p
	}
	if st.HasOpenInterest {
		oi := st.LastOpenInterest
		out.LastOpenInterest = &oi
	}
	for iv, ts := range st.LastBarClose {
		out.LastBarClose[iv.String()] = ts
	}
	for iv, closes := range st.Closes {
		out.CloseBars[iv.String()] = len(closes)
	}
	for iv, stack := range st.EMA {
		m := make(map[string]float64, len(stack))
		for period, v := range stack {
			m["ema"+strconv.Itoa(period)] = v
		}
		out.EMA[iv.String()] = m
	}
	return out
}
