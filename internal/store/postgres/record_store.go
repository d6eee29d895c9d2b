package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/polystrat/internal/domain"
)

// RecordStore implements domain.RecordStore and domain.TradeHistory.
type RecordStore struct {
	pool *pgxpool.Pool
}

var (
	_ domain.RecordStore  = (*RecordStore)(nil)
	_ domain.TradeHistory = (*RecordStore)(nil)
)

// NewRecordStore creates a RecordStore backed by pool.
func NewRecordStore(pool *pgxpool.Pool) *RecordStore {
	return &RecordStore{pool: pool}
}

// InsertTrades writes trades in one batch. Re-sent trade IDs are skipped.
func (s *RecordStore) InsertTrades(ctx context.Context, trades []domain.TradeRecord) error {
	const query = `
		INSERT INTO trades (
			id, strategy, action, position_id, instrument_id, slug,
			outcome_id, outcome_name, side, price, quantity, value,
			pnl, reason, meta, ts
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		ON CONFLICT (id) DO NOTHING`

	batch := &pgx.Batch{}
	for _, t := range trades {
		batch.Queue(query,
			t.ID, t.Strategy, string(t.Action), t.PositionID, t.InstrumentID, t.Slug,
			t.OutcomeID, t.OutcomeName, string(t.Side), t.Price, t.Quantity, t.Value,
			t.PnL, t.Reason, marshalMeta(t.Meta), t.Timestamp,
		)
	}
	return s.send(ctx, "trade", batch)
}

func (s *RecordStore) InsertDecisions(ctx context.Context, decisions []domain.DecisionRecord) error {
	const query = `
		INSERT INTO decisions (
			strategy, verdict, instrument_id, slug, question, reason,
			price, edge, size, meta, ts
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	batch := &pgx.Batch{}
	for _, d := range decisions {
		batch.Queue(query,
			d.Strategy, string(d.Verdict), d.InstrumentID, d.Slug, d.Question, d.Reason,
			d.Price, d.Edge, d.Size, marshalMeta(d.Meta), d.Timestamp,
		)
	}
	return s.send(ctx, "decision", batch)
}

func (s *RecordStore) InsertSnapshots(ctx context.Context, snaps []domain.PortfolioSnapshot) error {
	const query = `
		INSERT INTO portfolio_snapshots (
			strategy, cash, positions_value, total_value, realized_pnl, open_positions, ts
		) VALUES ($1, $2, $3, $4, $5, $6, $7)`

	batch := &pgx.Batch{}
	for _, p := range snaps {
		batch.Queue(query, p.Strategy, p.Cash, p.PositionsValue, p.TotalValue, p.RealizedPnL, p.OpenPositions, p.Timestamp)
	}
	return s.send(ctx, "snapshot", batch)
}

func (s *RecordStore) InsertEvents(ctx context.Context, events []domain.LogRecord) error {
	const query = `
		INSERT INTO strategy_events (strategy, level, event_type, message, meta, ts)
		VALUES ($1, $2, $3, $4, $5, $6)`

	batch := &pgx.Batch{}
	for _, e := range events {
		batch.Queue(query, e.Strategy, string(e.Level), e.Type, e.Message, marshalMeta(e.Meta), e.Timestamp)
	}
	return s.send(ctx, "event", batch)
}

func (s *RecordStore) send(ctx context.Context, what string, batch *pgx.Batch) error {
	if batch.Len() == 0 {
		return nil
	}
	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()
	for i := range batch.Len() {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("postgres: insert %s batch item %d: %w", what, i, err)
		}
	}
	return nil
}

const tradeSelectCols = `id, strategy, action, position_id, instrument_id, slug,
	outcome_id, outcome_name, side, price, quantity, value, pnl, reason, meta, ts`

// ListTrades returns trades newest first.
func (s *RecordStore) ListTrades(ctx context.Context, opts domain.ListOpts) ([]domain.TradeRecord, error) {
	query, args := listTradesQuery(opts)
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list trades: %w", err)
	}
	defer rows.Close()

	var trades []domain.TradeRecord
	for rows.Next() {
		var (
			t            domain.TradeRecord
			action, side string
			meta         []byte
		)
		if err := rows.Scan(
			&t.ID, &t.Strategy, &action, &t.PositionID, &t.InstrumentID, &t.Slug,
			&t.OutcomeID, &t.OutcomeName, &side, &t.Price, &t.Quantity, &t.Value,
			&t.PnL, &t.Reason, &meta, &t.Timestamp,
		); err != nil {
			return nil, fmt.Errorf("postgres: scan trade: %w", err)
		}
		t.Action = domain.TradeAction(action)
		t.Side = domain.OrderSide(side)
		t.Meta = unmarshalMeta(meta)
		trades = append(trades, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list trades: %w", err)
	}
	return trades, nil
}

// listTradesQuery builds the filtered trade query with numbered
// placeholders.
func listTradesQuery(opts domain.ListOpts) (string, []any) {
	var (
		where []string
		args  []any
	)
	add := func(cond string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}
	if opts.Strategy != "" {
		add("strategy = $%d", opts.Strategy)
	}
	if opts.Since != nil {
		add("ts >= $%d", *opts.Since)
	}
	if opts.Until != nil {
		add("ts < $%d", *opts.Until)
	}

	query := `SELECT ` + tradeSelectCols + ` FROM trades`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY ts DESC"
	if opts.Limit > 0 {
		args = append(args, opts.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if opts.Offset > 0 {
		args = append(args, opts.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}
	return query, args
}

// LatestSnapshots returns the most recent snapshot of every strategy.
func (s *RecordStore) LatestSnapshots(ctx context.Context) ([]domain.PortfolioSnapshot, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT DISTINCT ON (strategy)
			strategy, cash, positions_value, total_value, realized_pnl, open_positions, ts
		FROM portfolio_snapshots
		ORDER BY strategy, ts DESC`)
	if err != nil {
		return nil, fmt.Errorf("postgres: latest snapshots: %w", err)
	}
	defer rows.Close()

	var out []domain.PortfolioSnapshot
	for rows.Next() {
		var p domain.PortfolioSnapshot
		if err := rows.Scan(&p.Strategy, &p.Cash, &p.PositionsValue, &p.TotalValue, &p.RealizedPnL, &p.OpenPositions, &p.Timestamp); err != nil {
			return nil, fmt.Errorf("postgres: scan snapshot: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// marshalMeta encodes meta for a JSONB column; empty maps become NULL.
func marshalMeta(meta map[string]any) []byte {
	if len(meta) == 0 {
		return nil
	}
	b, err := json.Marshal(meta)
	if err != nil {
		return nil
	}
	return b
}

func unmarshalMeta(b []byte) map[string]any {
	if len(b) == 0 {
		return nil
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		return nil
	}
	return m
}
