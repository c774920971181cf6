package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"crypto-analyzer/internal/model"
)

// ReadBars returns bars for symbol with session date on or after since,
// ordered by timestamp ascending.
func (s *Store) ReadBars(ctx context.Context, symbol string, since time.Time) ([]model.Bar, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT symbol, ts, open, high, low, close, volume
		FROM daily_bars
		WHERE symbol = ? AND ts >= ?
		ORDER BY ts ASC
	`, symbol, since.Unix())
	if err != nil {
		return nil, fmt.Errorf("sqlite query daily_bars: %w", err)
	}
	defer rows.Close()

	var bars []model.Bar
	for rows.Next() {
		var b model.Bar
		var tsUnix int64
		var volume sql.NullInt64
		if err := rows.Scan(&b.Symbol, &tsUnix, &b.Open, &b.High, &b.Low, &b.Close, &volume); err != nil {
			return nil, fmt.Errorf("sqlite scan daily_bars: %w", err)
		}
		b.TS = time.Unix(tsUnix, 0).UTC()
		b.Volume = volume.Int64
		bars = append(bars, b)
	}
	return bars, rows.Err()
}

// LastUpdated returns when bars for symbol were last saved, or the zero
// time if never.
func (s *Store) LastUpdated(ctx context.Context, symbol string) (time.Time, error) {
	var nanos int64
	err := s.db.QueryRowContext(ctx,
		`SELECT updated_at FROM bar_updates WHERE symbol = ?`, symbol,
	).Scan(&nanos)
	if err != nil {
		if err == sql.ErrNoRows {
			return time.Time{}, nil
		}
		return time.Time{}, fmt.Errorf("sqlite read bar_updates: %w", err)
	}
	return time.Unix(0, nanos).UTC(), nil
}
