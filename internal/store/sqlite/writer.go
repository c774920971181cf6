package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"crypto-analyzer/internal/logger"
	"crypto-analyzer/internal/model"

	_ "github.com/mattn/go-sqlite3"
)

// Store persists daily price bars in SQLite. It implements model.BarStore.
type Store struct {
	db  *sql.DB
	log *slog.Logger
}

// DB returns the underlying sql.DB for health checks.
func (s *Store) DB() *sql.DB { return s.db }

// New opens the database at path with WAL mode and creates the schema.
func New(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("sqlite open: %w", err)
	}

	// Single writer; readers share the same connection
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := createSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite schema: %w", err)
	}

	log := logger.Component("sqlite")
	log.Info("opened database", slog.String("path", path))
	return &Store{db: db, log: log}, nil
}

func createSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS daily_bars (
			symbol  TEXT    NOT NULL,
			ts      INTEGER NOT NULL,
			open    REAL    NOT NULL,
			high    REAL    NOT NULL,
			low     REAL    NOT NULL,
			close   REAL    NOT NULL,
			volume  INTEGER,
			PRIMARY KEY (symbol, ts)
		);

		CREATE TABLE IF NOT EXISTS bar_updates (
			symbol     TEXT    PRIMARY KEY,
			updated_at INTEGER NOT NULL
		);
	`)
	return err
}

// SaveBars upserts bars in a single transaction and stamps each symbol's
// update time.
func (s *Store) SaveBars(ctx context.Context, bars []model.Bar) error {
	if len(bars) == 0 {
		return nil
	}
	start := time.Now()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite begin: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO daily_bars (symbol, ts, open, high, low, close, volume)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("sqlite prepare: %w", err)
	}
	defer stmt.Close()

	symbols := make(map[string]bool)
	for _, b := range bars {
		if _, err := stmt.ExecContext(ctx, b.Symbol, b.TS.Unix(), b.Open, b.High, b.Low, b.Close, b.Volume); err != nil {
			tx.Rollback()
			return fmt.Errorf("sqlite insert bar: %w", err)
		}
		symbols[b.Symbol] = true
	}

	now := time.Now().UTC().UnixNano()
	for sym := range symbols {
		if _, err := tx.ExecContext(ctx,
			`INSERT OR REPLACE INTO bar_updates (symbol, updated_at) VALUES (?, ?)`, sym, now,
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("sqlite stamp update: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite commit: %w", err)
	}
	s.log.Debug("committed bars", slog.Int("count", len(bars)), slog.Duration("took", time.Since(start)))
	return nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}
