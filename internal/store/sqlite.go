package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"quantlab/internal/domain"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver.
)

// Compile-time interface check.
var _ QuoteStore = (*SQLiteStore)(nil)

// SQLiteStore implements QuoteStore backed by a SQLite database. Each row is
// one top-of-book snapshot, keyed by symbol and millisecond timestamp.
type SQLiteStore struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS quotes (
	symbol    TEXT    NOT NULL,
	ts        INTEGER NOT NULL,
	bid_1     REAL    NOT NULL,
	bid_vol_1 REAL    NOT NULL DEFAULT 0,
	ask_1     REAL    NOT NULL,
	ask_vol_1 REAL    NOT NULL DEFAULT 0,
	PRIMARY KEY (symbol, ts)
);`

// NewSQLiteStore opens (or creates) a SQLite database at dbPath, creates the
// quotes table if needed and returns a ready-to-use SQLiteStore.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}
	// SQLite allows one writer; gatherer workers share this handle.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate %s: %w", dbPath, err)
	}
	return &SQLiteStore{db: db}, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// WriteQuotes upserts quotes in a single transaction.
func (s *SQLiteStore) WriteQuotes(ctx context.Context, quotes []domain.Quote) error {
	if len(quotes) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT OR REPLACE INTO quotes (symbol, ts, bid_1, bid_vol_1, ask_1, ask_vol_1) VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, q := range quotes {
		if _, err := stmt.ExecContext(ctx,
			strings.ToUpper(q.Symbol), q.Timestamp.UnixMilli(),
			q.BidPrice, q.BidSize, q.AskPrice, q.AskSize,
		); err != nil {
			return fmt.Errorf("insert quote %s@%s: %w", q.Symbol, q.Timestamp.Format(time.RFC3339), err)
		}
	}
	return tx.Commit()
}

// ReadQuotes returns quotes for symbol ordered by timestamp.
func (s *SQLiteStore) ReadQuotes(ctx context.Context, symbol string, start, end time.Time, limit int) ([]domain.Quote, error) {
	query := `SELECT symbol, ts, bid_1, bid_vol_1, ask_1, ask_vol_1 FROM quotes WHERE symbol = ?`
	args := []any{strings.ToUpper(symbol)}
	if !start.IsZero() {
		query += ` AND ts >= ?`
		args = append(args, start.UnixMilli())
	}
	if !end.IsZero() {
		query += ` AND ts <= ?`
		args = append(args, end.UnixMilli())
	}
	query += ` ORDER BY ts`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var quotes []domain.Quote
	for rows.Next() {
		var q domain.Quote
		var ts int64
		if err := rows.Scan(&q.Symbol, &ts, &q.BidPrice, &q.BidSize, &q.AskPrice, &q.AskSize); err != nil {
			return nil, err
		}
		q.Timestamp = time.UnixMilli(ts).UTC()
		quotes = append(quotes, q)
	}
	return quotes, rows.Err()
}

// ListQuoteSymbols returns the distinct symbols with stored quotes.
func (s *SQLiteStore) ListQuoteSymbols(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT symbol FROM quotes ORDER BY symbol`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var symbols []string
	for rows.Next() {
		var sym string
		if err := rows.Scan(&sym); err != nil {
			return nil, err
		}
		symbols = append(symbols, sym)
	}
	return symbols, rows.Err()
}
