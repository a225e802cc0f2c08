package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"surgeWatch/internal/domain"
	"surgeWatch/internal/ports"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// Repository implements the ports.AlertRepository interface using SQLite.
type Repository struct {
	db     *sql.DB
	logger ports.Logger
}

// Config holds configuration for the SQLite repository.
type Config struct {
	DBPath string
	Logger ports.Logger
}

// NewRepository creates a new SQLite repository instance.
func NewRepository(cfg Config) (*Repository, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for SQLite repository")
	}
	dbPath := cfg.DBPath
	if dbPath == "" {
		dbPath = "./data/surge_watch.db" // Default path
	}

	// Create data directory if it doesn't exist
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		err = fmt.Errorf("failed to create data directory '%s': %w", filepath.Dir(dbPath), err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}

	// Open database connection
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000") // WAL mode for better concurrency
	if err != nil {
		err = fmt.Errorf("failed to open database at '%s': %w: %w", dbPath, ports.ErrDBConnection, err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}

	// Test the connection
	if err := db.Ping(); err != nil {
		db.Close() // Close the connection if ping fails
		err = fmt.Errorf("failed to ping database at '%s': %w: %w", dbPath, ports.ErrDBConnection, err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}

	// Set connection pool settings (important for SQLite)
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	cfg.Logger.Info(context.Background(), "SQLite database connection established", map[string]interface{}{"path": dbPath})

	repo := &Repository{db: db, logger: cfg.Logger}

	if err := repo.initializeSchema(context.Background()); err != nil {
		db.Close()
		err = fmt.Errorf("failed to initialize database schema: %w", err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}

	return repo, nil
}

// initializeSchema creates tables if they don't exist.
func (r *Repository) initializeSchema(ctx context.Context) error {
	const schema = `
	CREATE TABLE IF NOT EXISTS alerts (
		id TEXT PRIMARY KEY,
		symbol TEXT NOT NULL,
		price REAL NOT NULL,
		price_pct REAL NOT NULL,
		oi_pct REAL NULL,
		funding_rate_pct REAL NOT NULL,
		reasons TEXT NOT NULL,
		delivered INTEGER NOT NULL,
		created_at INTEGER NOT NULL -- Unix milliseconds
	);
	CREATE INDEX IF NOT EXISTS idx_alerts_symbol_created_at ON alerts (symbol, created_at);
	`
	_, err := r.db.ExecContext(ctx, schema)
	if err != nil {
		return fmt.Errorf("failed to execute schema initialization: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (r *Repository) Close() error {
	if r.db != nil {
		r.logger.Info(context.Background(), "Closing SQLite database connection")
		return r.db.Close()
	}
	return nil
}

// --- AlertRepository Implementation ---

// SaveAlert appends an alert to the journal, assigning an ID and timestamp when missing.
func (r *Repository) SaveAlert(ctx context.Context, rec *domain.AlertRecord) error {
	const query = `
	INSERT INTO alerts (id, symbol, price, price_pct, oi_pct, funding_rate_pct, reasons, delivered, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	reasons, err := json.Marshal(rec.Reasons)
	if err != nil {
		return fmt.Errorf("failed to encode reasons for alert %s: %w", rec.ID, err)
	}
	var oiPct sql.NullFloat64
	if rec.OIPct != nil {
		oiPct = sql.NullFloat64{Float64: *rec.OIPct, Valid: true}
	}

	_, err = r.db.ExecContext(ctx, query,
		rec.ID, rec.Symbol, rec.Price, rec.PricePct, oiPct, rec.FundingRatePct,
		string(reasons), rec.Delivered, rec.CreatedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to insert alert for symbol %s: %w: %w", rec.Symbol, ports.ErrQueryFailed, err)
	}
	r.logger.Debug(ctx, "Alert saved", map[string]interface{}{"alertID": rec.ID, "symbol": rec.Symbol, "delivered": rec.Delivered})
	return nil
}

// FindRecentBySymbol retrieves the newest alerts for a symbol, newest first.
func (r *Repository) FindRecentBySymbol(ctx context.Context, symbol string, limit int) ([]*domain.AlertRecord, error) {
	const query = `
	SELECT id, symbol, price, price_pct, oi_pct, funding_rate_pct, reasons, delivered, created_at
	FROM alerts
	WHERE symbol = ?
	ORDER BY created_at DESC
	LIMIT ?`

	if limit <= 0 {
		return nil, fmt.Errorf("limit must be positive: %w", ports.ErrInvalidRequest)
	}

	rows, err := r.db.QueryContext(ctx, query, symbol, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query alerts for symbol %s: %w: %w", symbol, ports.ErrQueryFailed, err)
	}
	defer rows.Close()

	alerts := make([]*domain.AlertRecord, 0)
	for rows.Next() {
		rec, err := scanAlert(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan alert for symbol %s: %w", symbol, err)
		}
		alerts = append(alerts, rec)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating alert rows: %w", err)
	}
	return alerts, nil
}

// --- Helper Functions ---

// scanner is satisfied by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanAlert(s scanner) (*domain.AlertRecord, error) {
	var (
		rec       domain.AlertRecord
		oiPct     sql.NullFloat64
		reasons   string
		createdAt int64
	)
	if err := s.Scan(&rec.ID, &rec.Symbol, &rec.Price, &rec.PricePct, &oiPct,
		&rec.FundingRatePct, &reasons, &rec.Delivered, &createdAt); err != nil {
		return nil, err
	}
	if oiPct.Valid {
		v := oiPct.Float64
		rec.OIPct = &v
	}
	if err := json.Unmarshal([]byte(reasons), &rec.Reasons); err != nil {
		return nil, fmt.Errorf("decoding reasons of alert %s: %w", rec.ID, err)
	}
	rec.CreatedAt = time.UnixMilli(createdAt)
	return &rec, nil
}
