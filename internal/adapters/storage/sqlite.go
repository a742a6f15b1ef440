// Package storage implements ports.SessionStore with SQLite (pure Go, no
// CGo): an upsert-on-conflict orders table keyed by local order ID, with
// append-only sessions and trades tables. Rows older than a fixed 30-day
// retention window are pruned once, when the database is opened.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/alejandrodnm/hftcore/internal/domain"
	"github.com/alejandrodnm/hftcore/internal/ports"
)

const schema = `
CREATE TABLE IF NOT EXISTS sessions (
    id           INTEGER PRIMARY KEY AUTOINCREMENT,
    trading_date INTEGER NOT NULL,
    begin        INTEGER NOT NULL,
    at           DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS orders (
    local_id     INTEGER PRIMARY KEY,
    trading_date INTEGER NOT NULL,
    broker_id    TEXT    NOT NULL DEFAULT '',
    std_code     TEXT    NOT NULL,
    side         INTEGER NOT NULL,
    offset       INTEGER NOT NULL,
    price        REAL    NOT NULL DEFAULT 0,
    qty          REAL    NOT NULL DEFAULT 0,
    filled       REAL    NOT NULL DEFAULT 0,
    state        INTEGER NOT NULL,
    updated_at   DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS trades (
    id           INTEGER PRIMARY KEY AUTOINCREMENT,
    local_id     INTEGER NOT NULL,
    trading_date INTEGER NOT NULL,
    std_code     TEXT    NOT NULL,
    side         INTEGER NOT NULL,
    offset       INTEGER NOT NULL,
    price        REAL    NOT NULL DEFAULT 0,
    qty          REAL    NOT NULL DEFAULT 0,
    trade_ref    TEXT    NOT NULL DEFAULT '',
    at           DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_sessions_date ON sessions(trading_date DESC);
CREATE INDEX IF NOT EXISTS idx_orders_code   ON orders(std_code, trading_date DESC);
CREATE INDEX IF NOT EXISTS idx_trades_code   ON trades(std_code, trading_date DESC);
`

const retentionOrders = 30 * 24 * time.Hour

// SQLiteStorage implements ports.SessionStore with a single-writer SQLite
// connection (SetMaxOpenConns(1)), avoiding SQLITE_BUSY under concurrent
// writers.
type SQLiteStorage struct {
	db *sql.DB
	mu sync.Mutex
}

// NewSQLiteStorage opens (or creates) the database at path, applies the
// schema, and prunes rows older than the retention window.
func NewSQLiteStorage(path string) (*SQLiteStorage, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("storage.NewSQLiteStorage: open %q: %w", path, err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("storage.NewSQLiteStorage: apply schema: %w", err)
	}

	s := &SQLiteStorage{db: db}
	s.pruneOld(context.Background())
	return s, nil
}

// SaveSessionEvent records a session begin/end transition.
func (s *SQLiteStorage) SaveSessionEvent(tradingDate uint32, begin bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	beginInt := 0
	if begin {
		beginInt = 1
	}
	_, err := s.db.Exec(
		`INSERT INTO sessions (trading_date, begin, at) VALUES (?, ?, ?)`,
		tradingDate, beginInt, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("storage.SaveSessionEvent: %w", err)
	}
	return nil
}

// SaveOrder upserts the current state of a local order.
func (s *SQLiteStorage) SaveOrder(tradingDate uint32, order domain.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.Exec(`
		INSERT INTO orders
			(local_id, trading_date, broker_id, std_code, side, offset, price, qty, filled, state, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(local_id) DO UPDATE SET
			trading_date = excluded.trading_date,
			broker_id  = excluded.broker_id,
			price      = excluded.price,
			qty        = excluded.qty,
			filled     = excluded.filled,
			state      = excluded.state,
			updated_at = excluded.updated_at
	`,
		order.LocalID, tradingDate, order.BrokerID, order.StdCode,
		int(order.Side), int(order.Offset), order.Price, order.Qty, order.Filled,
		int(order.State), time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("storage.SaveOrder: local_id %d: %w", order.LocalID, err)
	}
	return nil
}

// SaveTrade appends a fill report.
func (s *SQLiteStorage) SaveTrade(tradingDate uint32, trade domain.Trade) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.Exec(`
		INSERT INTO trades (local_id, trading_date, std_code, side, offset, price, qty, trade_ref, at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		trade.LocalID, tradingDate, trade.StdCode, int(trade.Side), int(trade.Offset),
		trade.Price, trade.Qty, trade.TradeRef, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("storage.SaveTrade: local_id %d: %w", trade.LocalID, err)
	}
	return nil
}

// OrderHistory returns order rows for stdCode within [fromDate, toDate],
// newest first.
func (s *SQLiteStorage) OrderHistory(stdCode string, fromDate, toDate uint32) ([]ports.OrderRecord, error) {
	rows, err := s.db.Query(`
		SELECT trading_date, local_id, broker_id, std_code, side, offset, price, qty, filled, state
		FROM orders
		WHERE std_code = ? AND trading_date BETWEEN ? AND ?
		ORDER BY trading_date DESC, local_id DESC
	`, stdCode, fromDate, toDate)
	if err != nil {
		return nil, fmt.Errorf("storage.OrderHistory: query: %w", err)
	}
	defer rows.Close()

	var out []ports.OrderRecord
	for rows.Next() {
		var rec ports.OrderRecord
		var side, offset, state int
		if err := rows.Scan(
			&rec.TradingDate, &rec.Order.LocalID, &rec.Order.BrokerID, &rec.Order.StdCode,
			&side, &offset, &rec.Order.Price, &rec.Order.Qty, &rec.Order.Filled, &state,
		); err != nil {
			return nil, fmt.Errorf("storage.OrderHistory: scan row: %w", err)
		}
		rec.Order.Side = domain.Side(side)
		rec.Order.Offset = domain.Offset(offset)
		rec.Order.State = domain.OrderState(state)
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Close closes the database connection.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

func (s *SQLiteStorage) pruneOld(ctx context.Context) {
	cutoff := time.Now().UTC().Add(-retentionOrders)
	s.db.ExecContext(ctx, `DELETE FROM orders WHERE updated_at < ?`, cutoff)
	s.db.ExecContext(ctx, `DELETE FROM trades WHERE at < ?`, cutoff)
	s.db.ExecContext(ctx, `DELETE FROM sessions WHERE at < ?`, cutoff)
}

var _ ports.SessionStore = (*SQLiteStorage)(nil)
