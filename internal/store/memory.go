package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/osvelia/propulsion/internal/models"
)

// Memory is an in-process Store for tests and database-less dry runs.
type Memory struct {
	mu        sync.Mutex
	watchlist map[string]WatchlistEntry
	signals   []SignalRecord
	aiRecords []AIProvenanceRecord
	trades    []TradeRecord
	events    []models.RiskEvent
	journals  []journalEntry
	equity    []models.EquitySnapshot
	nextID    int64
}

type journalEntry struct {
	Ts       time.Time
	Category string
	Message  string
	Payload  string
}

func NewMemory() *Memory {
	return &Memory{watchlist: map[string]WatchlistEntry{}, nextID: 1}
}

func (m *Memory) Close() error { return nil }

func (m *Memory) FetchWatchlist(_ context.Context, limit int) ([]WatchlistEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entries := make([]WatchlistEntry, 0, len(m.watchlist))
	for _, entry := range m.watchlist {
		entries = append(entries, entry)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Symbol < entries[j].Symbol })
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	return entries, nil
}

func (m *Memory) UpsertWatchlist(_ context.Context, entries []WatchlistEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, entry := range entries {
		m.watchlist[entry.Symbol] = entry
	}
	return nil
}

func (m *Memory) RecordSignal(_ context.Context, rec SignalRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.signals = append(m.signals, rec)
	return nil
}

func (m *Memory) RecordAIProvenance(_ context.Context, rec AIProvenanceRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.aiRecords = append(m.aiRecords, rec)
	return nil
}

func (m *Memory) RecordTrade(_ context.Context, rec TradeRecord) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec.ID = m.nextID
	m.nextID++
	if rec.OpenedAt.IsZero() {
		rec.OpenedAt = time.Now().UTC()
	}
	m.trades = append(m.trades, rec)
	return rec.ID, nil
}

func (m *Memory) CloseTrade(_ context.Context, tradeID int64, _ float64, pnl float64, notes string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.trades {
		if m.trades[i].ID == tradeID {
			now := time.Now().UTC()
			m.trades[i].Status = "closed"
			m.trades[i].ClosedAt = &now
			m.trades[i].RealizedPnL = &pnl
			m.trades[i].Notes = notes
			return nil
		}
	}
	return nil
}

func (m *Memory) OpenTrades(_ context.Context) ([]TradeRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var open []TradeRecord
	for _, trade := range m.trades {
		if trade.Status == "open" {
			open = append(open, trade)
		}
	}
	return open, nil
}

func (m *Memory) CountTradesForDate(_ context.Context, date time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	y, mo, d := date.Date()
	count := 0
	for _, trade := range m.trades {
		ty, tmo, td := trade.OpenedAt.In(date.Location()).Date()
		if ty == y && tmo == mo && td == d {
			count++
		}
	}
	return count, nil
}

func (m *Memory) GetTradeStats(_ context.Context) (TradeStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var stats TradeStats
	for _, trade := range m.trades {
		if trade.ClosedAt != nil {
			stats.ClosedTrades++
			if trade.RealizedPnL != nil {
				stats.RealizedPnL += *trade.RealizedPnL
			}
		}
	}
	return stats, nil
}

func (m *Memory) RecordRiskEvent(_ context.Context, event models.RiskEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, event)
	return nil
}

// RiskEvents returns a copy of the recorded events, oldest first.
func (m *Memory) RiskEvents() []models.RiskEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.RiskEvent(nil), m.events...)
}

// Signals returns a copy of the recorded signal rows, oldest first.
func (m *Memory) Signals() []SignalRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]SignalRecord(nil), m.signals...)
}

func (m *Memory) Log(_ context.Context, category, message, payload string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.journals = append(m.journals, journalEntry{
		Ts:       time.Now().UTC(),
		Category: category,
		Message:  message,
		Payload:  payload,
	})
	return nil
}

func (m *Memory) RecordEquity(_ context.Context, snap models.EquitySnapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.equity = append(m.equity, snap)
	return nil
}

func (m *Memory) LatestEquity(_ context.Context) (models.EquitySnapshot, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.equity) == 0 {
		return models.EquitySnapshot{}, false, nil
	}
	return m.equity[len(m.equity)-1], true, nil
}
