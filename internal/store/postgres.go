package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/osvelia/propulsion/internal/models"
)

var migrations = []string{
	`CREATE TABLE IF NOT EXISTS watchlist (
		symbol TEXT PRIMARY KEY,
		name TEXT NOT NULL DEFAULT '',
		sector TEXT NOT NULL DEFAULT '',
		enabled BOOLEAN NOT NULL DEFAULT TRUE,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS trades (
		id BIGSERIAL PRIMARY KEY,
		symbol TEXT NOT NULL,
		direction TEXT NOT NULL,
		qty DOUBLE PRECISION NOT NULL,
		entry_price DOUBLE PRECISION NOT NULL,
		stop_price DOUBLE PRECISION NOT NULL,
		target_price DOUBLE PRECISION NOT NULL,
		status TEXT NOT NULL,
		opened_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		closed_at TIMESTAMPTZ,
		realized_pnl DOUBLE PRECISION,
		notes TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE TABLE IF NOT EXISTS journals (
		id BIGSERIAL PRIMARY KEY,
		ts TIMESTAMPTZ NOT NULL DEFAULT now(),
		category TEXT NOT NULL,
		message TEXT NOT NULL,
		payload TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE TABLE IF NOT EXISTS signals (
		id BIGSERIAL PRIMARY KEY,
		symbol TEXT NOT NULL,
		run_ts TIMESTAMPTZ NOT NULL,
		cycle_id TEXT NOT NULL,
		base_score DOUBLE PRECISION NOT NULL,
		ai_adj_score DOUBLE PRECISION NOT NULL,
		final_score DOUBLE PRECISION NOT NULL,
		rank INTEGER,
		reasons_text TEXT NOT NULL DEFAULT '',
		rules_passed_json TEXT NOT NULL DEFAULT '{}',
		features_json TEXT NOT NULL DEFAULT '{}'
	)`,
	`CREATE TABLE IF NOT EXISTS ai_provenance (
		id BIGSERIAL PRIMARY KEY,
		symbol TEXT NOT NULL,
		run_ts TIMESTAMPTZ NOT NULL,
		source TEXT NOT NULL,
		sentiment_score DOUBLE PRECISION NOT NULL,
		sentiment_label TEXT NOT NULL,
		meta_json TEXT NOT NULL DEFAULT '{}'
	)`,
	`CREATE TABLE IF NOT EXISTS risk_events (
		id BIGSERIAL PRIMARY KEY,
		ts TIMESTAMPTZ NOT NULL DEFAULT now(),
		session TEXT,
		type TEXT NOT NULL,
		symbol TEXT,
		value DOUBLE PRECISION,
		meta_json TEXT NOT NULL DEFAULT '{}'
	)`,
	`CREATE TABLE IF NOT EXISTS metrics_equity (
		id BIGSERIAL PRIMARY KEY,
		ts TIMESTAMPTZ NOT NULL DEFAULT now(),
		starting_equity DOUBLE PRECISION NOT NULL,
		realized_pnl DOUBLE PRECISION NOT NULL,
		unrealized_pnl DOUBLE PRECISION NOT NULL
	)`,
}

// Postgres is the sqlx-backed Store.
type Postgres struct {
	db *sqlx.DB
}

// Open connects and applies migrations. Migrations are idempotent so
// every process start runs them.
func Open(ctx context.Context, dsn string) (*Postgres, error) {
	db, err := sqlx.ConnectContext(ctx, "postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	p := &Postgres{db: db}
	if err := p.migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return p, nil
}

func (p *Postgres) migrate(ctx context.Context) error {
	for _, stmt := range migrations {
		if _, err := p.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply migration: %w", err)
		}
	}
	return nil
}

func (p *Postgres) Close() error {
	return p.db.Close()
}

func (p *Postgres) FetchWatchlist(ctx context.Context, limit int) ([]WatchlistEntry, error) {
	query := `SELECT symbol, name, sector FROM watchlist WHERE enabled ORDER BY symbol`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT $1`
		args = append(args, limit)
	}
	var entries []WatchlistEntry
	if err := p.db.SelectContext(ctx, &entries, query, args...); err != nil {
		return nil, fmt.Errorf("fetch watchlist: %w", err)
	}
	return entries, nil
}

func (p *Postgres) UpsertWatchlist(ctx context.Context, entries []WatchlistEntry) error {
	const query = `INSERT INTO watchlist (symbol, name, sector, enabled)
		VALUES ($1, $2, $3, TRUE)
		ON CONFLICT (symbol) DO UPDATE SET
			name = EXCLUDED.name, sector = EXCLUDED.sector,
			enabled = TRUE, updated_at = now()`
	for _, entry := range entries {
		if _, err := p.db.ExecContext(ctx, query, entry.Symbol, entry.Name, entry.Sector); err != nil {
			return fmt.Errorf("upsert watchlist %s: %w", entry.Symbol, err)
		}
	}
	return nil
}

func (p *Postgres) RecordSignal(ctx context.Context, rec SignalRecord) error {
	const query = `INSERT INTO signals
		(symbol, run_ts, cycle_id, base_score, ai_adj_score, final_score, rank, reasons_text, rules_passed_json, features_json)
		VALUES (:symbol, :run_ts, :cycle_id, :base_score, :ai_adj_score, :final_score, :rank, :reasons_text, :rules_passed_json, :features_json)`
	if _, err := p.db.NamedExecContext(ctx, query, rec); err != nil {
		return fmt.Errorf("record signal %s: %w", rec.Symbol, err)
	}
	return nil
}

func (p *Postgres) RecordAIProvenance(ctx context.Context, rec AIProvenanceRecord) error {
	const query = `INSERT INTO ai_provenance
		(symbol, run_ts, source, sentiment_score, sentiment_label, meta_json)
		VALUES (:symbol, :run_ts, :source, :sentiment_score, :sentiment_label, :meta_json)`
	if _, err := p.db.NamedExecContext(ctx, query, rec); err != nil {
		return fmt.Errorf("record ai provenance %s: %w", rec.Symbol, err)
	}
	return nil
}

func (p *Postgres) RecordTrade(ctx context.Context, rec TradeRecord) (int64, error) {
	const query = `INSERT INTO trades
		(symbol, direction, qty, entry_price, stop_price, target_price, status, notes)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id`
	var id int64
	err := p.db.QueryRowxContext(ctx, query,
		rec.Symbol, rec.Direction, rec.Qty, rec.EntryPrice, rec.StopPrice,
		rec.TargetPrice, rec.Status, rec.Notes).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("record trade %s: %w", rec.Symbol, err)
	}
	return id, nil
}

func (p *Postgres) CloseTrade(ctx context.Context, tradeID int64, exitPrice, pnl float64, notes string) error {
	const query = `UPDATE trades
		SET status = 'closed', closed_at = now(), realized_pnl = $1, notes = $2
		WHERE id = $3`
	if _, err := p.db.ExecContext(ctx, query, pnl, notes, tradeID); err != nil {
		return fmt.Errorf("close trade %d: %w", tradeID, err)
	}
	return nil
}

func (p *Postgres) OpenTrades(ctx context.Context) ([]TradeRecord, error) {
	var trades []TradeRecord
	const query = `SELECT id, symbol, direction, qty, entry_price, stop_price, target_price,
		status, opened_at, closed_at, realized_pnl, notes
		FROM trades WHERE status = 'open' ORDER BY id`
	if err := p.db.SelectContext(ctx, &trades, query); err != nil {
		return nil, fmt.Errorf("open trades: %w", err)
	}
	return trades, nil
}

func (p *Postgres) CountTradesForDate(ctx context.Context, date time.Time) (int, error) {
	start := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, date.Location())
	end := start.AddDate(0, 0, 1)
	var count int
	const query = `SELECT COUNT(*) FROM trades WHERE opened_at >= $1 AND opened_at < $2`
	if err := p.db.GetContext(ctx, &count, query, start, end); err != nil {
		return 0, fmt.Errorf("count trades: %w", err)
	}
	return count, nil
}

func (p *Postgres) GetTradeStats(ctx context.Context) (TradeStats, error) {
	var stats TradeStats
	const query = `SELECT COALESCE(SUM(realized_pnl), 0) AS realized_pnl, COUNT(*) AS closed_trades
		FROM trades WHERE closed_at IS NOT NULL`
	if err := p.db.GetContext(ctx, &stats, query); err != nil {
		return TradeStats{}, fmt.Errorf("trade stats: %w", err)
	}
	return stats, nil
}

func (p *Postgres) RecordRiskEvent(ctx context.Context, event models.RiskEvent) error {
	meta := event.Meta
	if meta == nil {
		meta = map[string]any{}
	}
	payload, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("marshal risk event meta: %w", err)
	}
	const query = `INSERT INTO risk_events (session, type, symbol, value, meta_json)
		VALUES (NULLIF($1, ''), $2, NULLIF($3, ''), $4, $5)`
	if _, err := p.db.ExecContext(ctx, query, event.Session, event.Type, event.Symbol, event.Value, string(payload)); err != nil {
		return fmt.Errorf("record risk event %s: %w", event.Type, err)
	}
	return nil
}

func (p *Postgres) Log(ctx context.Context, category, message, payload string) error {
	const query = `INSERT INTO journals (category, message, payload) VALUES ($1, $2, $3)`
	if _, err := p.db.ExecContext(ctx, query, category, message, payload); err != nil {
		return fmt.Errorf("journal log: %w", err)
	}
	return nil
}

func (p *Postgres) RecordEquity(ctx context.Context, snap models.EquitySnapshot) error {
	const query = `INSERT INTO metrics_equity (starting_equity, realized_pnl, unrealized_pnl)
		VALUES ($1, $2, $3)`
	if _, err := p.db.ExecContext(ctx, query, snap.StartingEquity, snap.RealizedPnL, snap.UnrealizedPnL); err != nil {
		return fmt.Errorf("record equity: %w", err)
	}
	return nil
}

func (p *Postgres) LatestEquity(ctx context.Context) (models.EquitySnapshot, bool, error) {
	var snap models.EquitySnapshot
	const query = `SELECT starting_equity, realized_pnl, unrealized_pnl
		FROM metrics_equity ORDER BY ts DESC LIMIT 1`
	err := p.db.QueryRowxContext(ctx, query).Scan(&snap.StartingEquity, &snap.RealizedPnL, &snap.UnrealizedPnL)
	if errors.Is(err, sql.ErrNoRows) {
		return models.EquitySnapshot{}, false, nil
	}
	if err != nil {
		return models.EquitySnapshot{}, false, fmt.Errorf("latest equity: %w", err)
	}
	return snap, true, nil
}
