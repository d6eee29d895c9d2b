// Package sqlite is a single-file RecordStore for paper trading without a
// database server. Pure Go, no cgo.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/alanyoungcy/polystrat/internal/domain"
)

const schema = `
CREATE TABLE IF NOT EXISTS trades (
    id            TEXT PRIMARY KEY,
    strategy      TEXT    NOT NULL,
    action        TEXT    NOT NULL,
    position_id   TEXT    NOT NULL DEFAULT '',
    instrument_id TEXT    NOT NULL DEFAULT '',
    slug          TEXT    NOT NULL DEFAULT '',
    outcome_id    TEXT    NOT NULL DEFAULT '',
    outcome_name  TEXT    NOT NULL DEFAULT '',
    side          TEXT    NOT NULL DEFAULT '',
    price         REAL    NOT NULL DEFAULT 0,
    quantity      REAL    NOT NULL DEFAULT 0,
    value         REAL    NOT NULL DEFAULT 0,
    pnl           REAL    NOT NULL DEFAULT 0,
    reason        TEXT    NOT NULL DEFAULT '',
    meta          TEXT,
    ts_ns         INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS decisions (
    id            INTEGER PRIMARY KEY AUTOINCREMENT,
    strategy      TEXT    NOT NULL,
    verdict       TEXT    NOT NULL,
    instrument_id TEXT    NOT NULL DEFAULT '',
    slug          TEXT    NOT NULL DEFAULT '',
    question      TEXT    NOT NULL DEFAULT '',
    reason        TEXT    NOT NULL DEFAULT '',
    price         REAL    NOT NULL DEFAULT 0,
    edge          REAL    NOT NULL DEFAULT 0,
    size          REAL    NOT NULL DEFAULT 0,
    meta          TEXT,
    ts_ns         INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS portfolio_snapshots (
    id              INTEGER PRIMARY KEY AUTOINCREMENT,
    strategy        TEXT    NOT NULL,
    cash            REAL    NOT NULL,
    positions_value REAL    NOT NULL,
    total_value     REAL    NOT NULL,
    realized_pnl    REAL    NOT NULL,
    open_positions  INTEGER NOT NULL,
    ts_ns           INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS strategy_events (
    id         INTEGER PRIMARY KEY AUTOINCREMENT,
    strategy   TEXT    NOT NULL,
    level      TEXT    NOT NULL,
    event_type TEXT    NOT NULL,
    message    TEXT    NOT NULL DEFAULT '',
    meta       TEXT,
    ts_ns      INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_trades_strategy_ts    ON trades(strategy, ts_ns DESC);
CREATE INDEX IF NOT EXISTS idx_decisions_strategy_ts ON decisions(strategy, ts_ns DESC);
CREATE INDEX IF NOT EXISTS idx_snapshots_strategy_ts ON portfolio_snapshots(strategy, ts_ns DESC);
CREATE INDEX IF NOT EXISTS idx_events_strategy_ts    ON strategy_events(strategy, ts_ns DESC);
`

// Store implements domain.RecordStore and domain.TradeHistory on SQLite.
type Store struct {
	db *sql.DB
}

var (
	_ domain.RecordStore  = (*Store)(nil)
	_ domain.TradeHistory = (*Store)(nil)
)

// Open opens (or creates) the database at path and applies the schema.
// ":memory:" works for tests.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open %q: %w", path, err)
	}
	// single writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: apply schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error { return s.db.Close() }

// Ping checks the database file is still usable.
func (s *Store) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

// InsertTrades writes trades in one transaction. Re-sent IDs are ignored.
func (s *Store) InsertTrades(ctx context.Context, trades []domain.TradeRecord) error {
	return s.insertAll(ctx, "trade", `
		INSERT OR IGNORE INTO trades
			(id, strategy, action, position_id, instrument_id, slug, outcome_id, outcome_name,
			 side, price, quantity, value, pnl, reason, meta, ts_ns)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		len(trades), func(i int) []any {
			t := trades[i]
			return []any{
				t.ID, t.Strategy, string(t.Action), t.PositionID, t.InstrumentID, t.Slug, t.OutcomeID, t.OutcomeName,
				string(t.Side), t.Price, t.Quantity, t.Value, t.PnL, t.Reason, metaText(t.Meta), t.Timestamp.UnixNano(),
			}
		})
}

func (s *Store) InsertDecisions(ctx context.Context, decisions []domain.DecisionRecord) error {
	return s.insertAll(ctx, "decision", `
		INSERT INTO decisions
			(strategy, verdict, instrument_id, slug, question, reason, price, edge, size, meta, ts_ns)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		len(decisions), func(i int) []any {
			d := decisions[i]
			return []any{
				d.Strategy, string(d.Verdict), d.InstrumentID, d.Slug, d.Question, d.Reason,
				d.Price, d.Edge, d.Size, metaText(d.Meta), d.Timestamp.UnixNano(),
			}
		})
}

func (s *Store) InsertSnapshots(ctx context.Context, snaps []domain.PortfolioSnapshot) error {
	return s.insertAll(ctx, "snapshot", `
		INSERT INTO portfolio_snapshots
			(strategy, cash, positions_value, total_value, realized_pnl, open_positions, ts_ns)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		len(snaps), func(i int) []any {
			p := snaps[i]
			return []any{p.Strategy, p.Cash, p.PositionsValue, p.TotalValue, p.RealizedPnL, p.OpenPositions, p.Timestamp.UnixNano()}
		})
}

func (s *Store) InsertEvents(ctx context.Context, events []domain.LogRecord) error {
	return s.insertAll(ctx, "event", `
		INSERT INTO strategy_events (strategy, level, event_type, message, meta, ts_ns)
		VALUES (?, ?, ?, ?, ?, ?)`,
		len(events), func(i int) []any {
			e := events[i]
			return []any{e.Strategy, string(e.Level), e.Type, e.Message, metaText(e.Meta), e.Timestamp.UnixNano()}
		})
}

func (s *Store) insertAll(ctx context.Context, what, query string, n int, row func(int) []any) error {
	if n == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: insert %s: begin tx: %w", what, err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return fmt.Errorf("sqlite: insert %s: prepare: %w", what, err)
	}
	defer stmt.Close()

	for i := range n {
		if _, err := stmt.ExecContext(ctx, row(i)...); err != nil {
			return fmt.Errorf("sqlite: insert %s item %d: %w", what, i, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: insert %s: commit: %w", what, err)
	}
	return nil
}

// ListTrades returns trades newest first.
func (s *Store) ListTrades(ctx context.Context, opts domain.ListOpts) ([]domain.TradeRecord, error) {
	var (
		where []string
		args  []any
	)
	if opts.Strategy != "" {
		where = append(where, "strategy = ?")
		args = append(args, opts.Strategy)
	}
	if opts.Since != nil {
		where = append(where, "ts_ns >= ?")
		args = append(args, opts.Since.UnixNano())
	}
	if opts.Until != nil {
		where = append(where, "ts_ns < ?")
		args = append(args, opts.Until.UnixNano())
	}

	query := `SELECT id, strategy, action, position_id, instrument_id, slug, outcome_id, outcome_name,
		side, price, quantity, value, pnl, reason, meta, ts_ns FROM trades`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY ts_ns DESC, rowid DESC"
	if opts.Limit > 0 || opts.Offset > 0 {
		limit := opts.Limit
		if limit <= 0 {
			limit = -1
		}
		query += " LIMIT ? OFFSET ?"
		args = append(args, limit, opts.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list trades: %w", err)
	}
	defer rows.Close()

	var trades []domain.TradeRecord
	for rows.Next() {
		var (
			t            domain.TradeRecord
			action, side string
			meta         sql.NullString
			ts           int64
		)
		if err := rows.Scan(
			&t.ID, &t.Strategy, &action, &t.PositionID, &t.InstrumentID, &t.Slug, &t.OutcomeID, &t.OutcomeName,
			&side, &t.Price, &t.Quantity, &t.Value, &t.PnL, &t.Reason, &meta, &ts,
		); err != nil {
			return nil, fmt.Errorf("sqlite: scan trade: %w", err)
		}
		t.Action = domain.TradeAction(action)
		t.Side = domain.OrderSide(side)
		t.Meta = parseMeta(meta)
		t.Timestamp = time.Unix(0, ts).UTC()
		trades = append(trades, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: list trades: %w", err)
	}
	return trades, nil
}

// LatestSnapshots returns the most recent snapshot of every strategy.
func (s *Store) LatestSnapshots(ctx context.Context) ([]domain.PortfolioSnapshot, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT strategy, cash, positions_value, total_value, realized_pnl, open_positions, ts_ns
		FROM (
			SELECT *, ROW_NUMBER() OVER (PARTITION BY strategy ORDER BY ts_ns DESC, id DESC) AS rn
			FROM portfolio_snapshots
		)
		WHERE rn = 1
		ORDER BY strategy`)
	if err != nil {
		return nil, fmt.Errorf("sqlite: latest snapshots: %w", err)
	}
	defer rows.Close()

	var out []domain.PortfolioSnapshot
	for rows.Next() {
		var (
			p  domain.PortfolioSnapshot
			ts int64
		)
		if err := rows.Scan(&p.Strategy, &p.Cash, &p.PositionsValue, &p.TotalValue, &p.RealizedPnL, &p.OpenPositions, &ts); err != nil {
			return nil, fmt.Errorf("sqlite: scan snapshot: %w", err)
		}
		p.Timestamp = time.Unix(0, ts).UTC()
		out = append(out, p)
	}
	return out, rows.Err()
}

// CountRows reports the row count of a record table; used by the report.
func (s *Store) CountRows(ctx context.Context, table string) (int64, error) {
	switch table {
	case "trades", "decisions", "portfolio_snapshots", "strategy_events":
	default:
		return 0, fmt.Errorf("sqlite: unknown table %q", table)
	}
	var n int64
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+table).Scan(&n); err != nil {
		return 0, fmt.Errorf("sqlite: count %s: %w", table, err)
	}
	return n, nil
}

func metaText(meta map[string]any) any {
	if len(meta) == 0 {
		return nil
	}
	b, err := json.Marshal(meta)
	if err != nil {
		return nil
	}
	return string(b)
}

func parseMeta(s sql.NullString) map[string]any {
	if !s.Valid || s.String == "" {
		return nil
	}
	var m map[string]any
	if err := json.Unmarshal([]byte(s.String), &m); err != nil {
		return nil
	}
	return m
}
