// Package store persists watchlist, trade, signal, and risk telemetry.
// The Postgres implementation is the production path; Memory backs tests
// and database-less dry runs.
package store

import (
	"context"
	"time"

	"github.com/osvelia/propulsion/internal/models"
)

// WatchlistEntry is one tradable symbol with optional descriptive fields.
type WatchlistEntry struct {
	Symbol string `db:"symbol"`
	Name   string `db:"name"`
	Sector string `db:"sector"`
}

// SignalRecord is the flattened journal row for a scored signal.
type SignalRecord struct {
	Symbol          string    `db:"symbol"`
	RunTs           time.Time `db:"run_ts"`
	CycleID         string    `db:"cycle_id"`
	BaseScore       float64   `db:"base_score"`
	AIAdjScore      float64   `db:"ai_adj_score"`
	FinalScore      float64   `db:"final_score"`
	Rank            int       `db:"rank"`
	ReasonsText     string    `db:"reasons_text"`
	RulesPassedJSON string    `db:"rules_passed_json"`
	FeaturesJSON    string    `db:"features_json"`
}

// AIProvenanceRecord captures one AI overlay evaluation for audit.
type AIProvenanceRecord struct {
	Symbol         string    `db:"symbol"`
	RunTs          time.Time `db:"run_ts"`
	Source         string    `db:"source"`
	SentimentScore float64   `db:"sentiment_score"`
	SentimentLabel string    `db:"sentiment_label"`
	MetaJSON       string    `db:"meta_json"`
}

// TradeRecord mirrors the trades table.
type TradeRecord struct {
	ID          int64      `db:"id"`
	Symbol      string     `db:"symbol"`
	Direction   string     `db:"direction"`
	Qty         float64    `db:"qty"`
	EntryPrice  float64    `db:"entry_price"`
	StopPrice   float64    `db:"stop_price"`
	TargetPrice float64    `db:"target_price"`
	Status      string     `db:"status"`
	OpenedAt    time.Time  `db:"opened_at"`
	ClosedAt    *time.Time `db:"closed_at"`
	RealizedPnL *float64   `db:"realized_pnl"`
	Notes       string     `db:"notes"`
}

// TradeStats summarises closed trades.
type TradeStats struct {
	RealizedPnL  float64 `db:"realized_pnl"`
	ClosedTrades int     `db:"closed_trades"`
}

// Store is the persistence surface the engine depends on.
type Store interface {
	FetchWatchlist(ctx context.Context, limit int) ([]WatchlistEntry, error)
	UpsertWatchlist(ctx context.Context, entries []WatchlistEntry) error

	RecordSignal(ctx context.Context, rec SignalRecord) error
	RecordAIProvenance(ctx context.Context, rec AIProvenanceRecord) error

	RecordTrade(ctx context.Context, rec TradeRecord) (int64, error)
	CloseTrade(ctx context.Context, tradeID int64, exitPrice, pnl float64, notes string) error
	OpenTrades(ctx context.Context) ([]TradeRecord, error)
	CountTradesForDate(ctx context.Context, date time.Time) (int, error)
	GetTradeStats(ctx context.Context) (TradeStats, error)

	RecordRiskEvent(ctx context.Context, event models.RiskEvent) error
	Log(ctx context.Context, category, message, payload string) error

	RecordEquity(ctx context.Context, snap models.EquitySnapshot) error
	LatestEquity(ctx context.Context) (models.EquitySnapshot, bool, error)

	Close() error
}
