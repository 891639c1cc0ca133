package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"breakoutBot/internal/domain"
	"breakoutBot/internal/ports"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// Repository implements the ports.TradeRepository interface using SQLite.
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
		dbPath = "./data/breakout_bot.db"
	}

	// Create data directory if it doesn't exist
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		err = fmt.Errorf("failed to create data directory '%s': %w", filepath.Dir(dbPath), err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000") // WAL mode for better concurrency
	if err != nil {
		err = fmt.Errorf("failed to open database at '%s': %w", dbPath, err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}

	if err := db.Ping(); err != nil {
		db.Close()
		err = fmt.Errorf("%w: failed to ping database at '%s': %v", ports.ErrDBConnection, dbPath, err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}

	// SQLite handles concurrency internally; the Go driver benefits from limiting connections
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
// NOTE: This is a basic approach. A proper migration tool is recommended for production.
func (r *Repository) initializeSchema(ctx context.Context) error {
	const schema = `
	CREATE TABLE IF NOT EXISTS trades (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		underlying TEXT NOT NULL,
		symbol TEXT NOT NULL,
		direction TEXT NOT NULL,
		entry_price REAL NOT NULL,
		exit_price REAL NOT NULL,
		entry_quantity INTEGER NOT NULL,
		exit_quantity INTEGER NOT NULL,
		pnl REAL NOT NULL,
		entry_time TIMESTAMP NOT NULL,
		exit_time TIMESTAMP NOT NULL,
		exit_reason TEXT NOT NULL,
		max_up REAL NOT NULL DEFAULT 0,
		max_down REAL NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS partial_exits (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		trade_id INTEGER NOT NULL,
		after_minutes INTEGER NOT NULL,
		quantity INTEGER NOT NULL,
		price REAL NOT NULL,
		profit_pct REAL NOT NULL,
		executed_at TIMESTAMP NOT NULL,
		FOREIGN KEY (trade_id) REFERENCES trades (id)
	);
	-- Indexes for the daily-limit queries and per-underlying reports
	CREATE INDEX IF NOT EXISTS idx_trades_underlying_entry_time ON trades (underlying, entry_time);
	CREATE INDEX IF NOT EXISTS idx_trades_entry_time ON trades (entry_time);
	CREATE INDEX IF NOT EXISTS idx_partial_exits_trade_id ON partial_exits (trade_id);
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

// --- TradeRepository Implementation ---

// CreateTrade saves a completed trade and its partial fills in a single
// transaction, and returns the assigned trade ID.
func (r *Repository) CreateTrade(ctx context.Context, trade *domain.Trade) (int64, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction for trade %s: %w", trade.Symbol, err)
	}
	defer tx.Rollback()

	const insertTrade = `
	INSERT INTO trades (underlying, symbol, direction, entry_price, exit_price,
	                    entry_quantity, exit_quantity, pnl, entry_time, exit_time,
	                    exit_reason, max_up, max_down)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	result, err := tx.ExecContext(ctx, insertTrade,
		trade.Underlying, trade.Symbol, trade.Direction, trade.EntryPrice, trade.ExitPrice,
		trade.EntryQuantity, trade.ExitQuantity, trade.PNL, trade.EntryTime, trade.ExitTime,
		trade.ExitReason, trade.MaxUp, trade.MaxDown)
	if err != nil {
		return 0, fmt.Errorf("%w: failed to insert trade for %s: %v", ports.ErrQueryFailed, trade.Symbol, err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get last insert ID for trade %s: %w", trade.Symbol, err)
	}

	const insertFill = `
	INSERT INTO partial_exits (trade_id, after_minutes, quantity, price, profit_pct, executed_at)
	VALUES (?, ?, ?, ?, ?, ?)`

	for _, pe := range trade.PartialExits {
		if _, err := tx.ExecContext(ctx, insertFill,
			id, pe.AfterMinutes, pe.Quantity, pe.Price, pe.ProfitPct, pe.ExecutedAt); err != nil {
			return 0, fmt.Errorf("%w: failed to insert partial exit for trade %d: %v", ports.ErrQueryFailed, id, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit trade %s: %w", trade.Symbol, err)
	}

	trade.ID = id
	r.logger.Debug(ctx, "Trade recorded", map[string]interface{}{"tradeID": id, "symbol": trade.Symbol, "pnl": trade.PNL})
	return id, nil
}

const tradeColumns = `
	id, underlying, symbol, direction, entry_price, exit_price,
	entry_quantity, exit_quantity, pnl, entry_time, exit_time,
	exit_reason, max_up, max_down`

// FindByUnderlying retrieves the most recent trades for an underlying, up to a limit.
func (r *Repository) FindByUnderlying(ctx context.Context, underlying string, limit int) ([]*domain.Trade, error) {
	query := `SELECT` + tradeColumns + `
	FROM trades WHERE underlying = ? ORDER BY entry_time DESC LIMIT ?`

	rows, err := r.db.QueryContext(ctx, query, underlying, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to query trades for %s: %v", ports.ErrQueryFailed, underlying, err)
	}
	defer rows.Close()

	return r.collectTrades(ctx, rows)
}

// FindAll retrieves all trades, ordered by entry time descending.
func (r *Repository) FindAll(ctx context.Context) ([]*domain.Trade, error) {
	query := `SELECT` + tradeColumns + ` FROM trades ORDER BY entry_time DESC`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to query all trades: %v", ports.ErrQueryFailed, err)
	}
	defer rows.Close()

	return r.collectTrades(ctx, rows)
}

// CountToday counts trades recorded today across all underlyings.
func (r *Repository) CountToday(ctx context.Context) (int, error) {
	const query = `SELECT COUNT(*) FROM trades WHERE date(entry_time) = date('now', 'localtime')`
	var count int
	if err := r.db.QueryRowContext(ctx, query).Scan(&count); err != nil {
		return 0, fmt.Errorf("%w: failed to count trades today: %v", ports.ErrQueryFailed, err)
	}
	return count, nil
}

// TotalPNLToday sums realized P&L for trades recorded today.
func (r *Repository) TotalPNLToday(ctx context.Context) (float64, error) {
	const query = `SELECT COALESCE(SUM(pnl), 0) FROM trades WHERE date(entry_time) = date('now', 'localtime')`
	var total float64
	if err := r.db.QueryRowContext(ctx, query).Scan(&total); err != nil {
		return 0, fmt.Errorf("%w: failed to sum P&L today: %v", ports.ErrQueryFailed, err)
	}
	return total, nil
}

// collectTrades scans all rows and attaches their partial fills.
func (r *Repository) collectTrades(ctx context.Context, rows *sql.Rows) ([]*domain.Trade, error) {
	trades := make([]*domain.Trade, 0)
	for rows.Next() {
		trade, err := scanTrade(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan trade row: %w", err)
		}
		trades = append(trades, trade)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating trade rows: %w", err)
	}

	for _, trade := range trades {
		fills, err := r.findPartialExits(ctx, trade.ID)
		if err != nil {
			return nil, err
		}
		trade.PartialExits = fills
	}
	return trades, nil
}

func (r *Repository) findPartialExits(ctx context.Context, tradeID int64) ([]domain.PartialExit, error) {
	const query = `
	SELECT after_minutes, quantity, price, profit_pct, executed_at
	FROM partial_exits WHERE trade_id = ? ORDER BY executed_at ASC`

	rows, err := r.db.QueryContext(ctx, query, tradeID)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to query partial exits for trade %d: %v", ports.ErrQueryFailed, tradeID, err)
	}
	defer rows.Close()

	fills := make([]domain.PartialExit, 0)
	for rows.Next() {
		var pe domain.PartialExit
		if err := rows.Scan(&pe.AfterMinutes, &pe.Quantity, &pe.Price, &pe.ProfitPct, &pe.ExecutedAt); err != nil {
			return nil, fmt.Errorf("failed to scan partial exit for trade %d: %w", tradeID, err)
		}
		fills = append(fills, pe)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating partial exit rows: %w", err)
	}
	return fills, nil
}

// scanTrade scans a row into a domain.Trade struct.
func scanTrade(rows *sql.Rows) (*domain.Trade, error) {
	t := &domain.Trade{}
	var direction, exitReason string
	err := rows.Scan(
		&t.ID, &t.Underlying, &t.Symbol, &direction, &t.EntryPrice, &t.ExitPrice,
		&t.EntryQuantity, &t.ExitQuantity, &t.PNL, &t.EntryTime, &t.ExitTime,
		&exitReason, &t.MaxUp, &t.MaxDown)
	if err != nil {
		return nil, err
	}
	t.Direction = domain.Direction(direction)
	t.ExitReason = domain.ExitReason(exitReason)
	return t, nil
}
