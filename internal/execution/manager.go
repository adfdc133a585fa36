package execution

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/osvelia/propulsion/internal/models"
	"github.com/osvelia/propulsion/internal/observ"
	"github.com/osvelia/propulsion/internal/store"
)

// Result is the outcome of routing one planned order.
type Result struct {
	Symbol  string
	Status  string // dry_run | submitted
	OrderID string
	TradeID int64
	Qty     int
}

// Manager routes planned orders through the executor and journals every
// live submission as an open trade.
type Manager struct {
	store    store.Store
	executor Executor
	log      zerolog.Logger
}

func NewManager(st store.Store, executor Executor, log zerolog.Logger) *Manager {
	return &Manager{store: st, executor: executor, log: log.With().Str("component", "execution").Logger()}
}

// Execute submits the batch in order. Dry-run submissions are logged but
// never recorded as trades.
func (m *Manager) Execute(ctx context.Context, orders []models.PlannedOrder) ([]Result, error) {
	results := make([]Result, 0, len(orders))
	for _, order := range orders {
		if order.Qty <= 0 {
			continue
		}
		if m.executor.DryRun() {
			m.log.Info().
				Str("symbol", order.Symbol).
				Str("side", order.Side).
				Int("qty", order.Qty).
				Float64("entry", order.Entry).
				Float64("stop", order.Stop).
				Msg("dry run execution")
			results = append(results, Result{Symbol: order.Symbol, Status: "dry_run", Qty: order.Qty})
			continue
		}

		orderID, err := m.executor.Submit(ctx, OrderRequest{
			Symbol:     order.Symbol,
			Action:     order.Side,
			Quantity:   float64(order.Qty),
			LimitPrice: order.Entry,
			StopPrice:  order.Stop,
		})
		if err != nil {
			return results, fmt.Errorf("submit %s: %w", order.Symbol, err)
		}

		direction := "short"
		if order.Side == "BUY" {
			direction = "long"
		}
		tradeID, err := m.store.RecordTrade(ctx, store.TradeRecord{
			Symbol:      order.Symbol,
			Direction:   direction,
			Qty:         float64(order.Qty),
			EntryPrice:  order.Entry,
			StopPrice:   order.Stop,
			TargetPrice: order.Target,
			Status:      "open",
			Notes:       fmt.Sprintf("scale_out=%g;trail=%s;order_id=%s", order.ScaleOut, order.TrailMode, orderID),
		})
		if err != nil {
			return results, fmt.Errorf("record trade %s: %w", order.Symbol, err)
		}

		payload, _ := json.Marshal(order.RiskContext)
		if err := m.store.Log(ctx, "execution", fmt.Sprintf("Placed trade %d for %s", tradeID, order.Symbol), string(payload)); err != nil {
			m.log.Error().Err(err).Int64("trade_id", tradeID).Msg("journal placed trade")
		}
		observ.IncCounter("orders_submitted_total", map[string]string{"side": order.Side})
		results = append(results, Result{
			Symbol:  order.Symbol,
			Status:  "submitted",
			OrderID: orderID,
			TradeID: tradeID,
			Qty:     order.Qty,
		})
	}
	return results, nil
}

// Flatten closes every open trade with an opposing market order and
// records the realized result against the supplied quotes. Symbols
// without a quote settle at their entry price. Returns the number of
// trades flattened.
func (m *Manager) Flatten(ctx context.Context, quotes map[string]float64) (int, error) {
	open, err := m.store.OpenTrades(ctx)
	if err != nil {
		return 0, fmt.Errorf("load open trades: %w", err)
	}
	if len(open) == 0 {
		m.log.Info().Msg("flatten guard: portfolio already flat")
		return 0, nil
	}
	flattened := 0
	for _, trade := range open {
		action := "SELL"
		if models.SideFrom(trade.Direction) == models.SideShort {
			action = "BUY"
		}
		if _, err := m.executor.Submit(ctx, OrderRequest{
			Symbol:   trade.Symbol,
			Action:   action,
			Quantity: trade.Qty,
		}); err != nil {
			return flattened, fmt.Errorf("flatten %s: %w", trade.Symbol, err)
		}
		exit := quotes[trade.Symbol]
		if exit == 0 {
			exit = trade.EntryPrice
		}
		pnl := (exit - trade.EntryPrice) * trade.Qty
		if models.SideFrom(trade.Direction) == models.SideShort {
			pnl = -pnl
		}
		if err := m.store.CloseTrade(ctx, trade.ID, exit, pnl, "flatten_guard"); err != nil {
			m.log.Error().Err(err).Int64("trade_id", trade.ID).Msg("close flattened trade")
		}
		flattened++
	}
	payload, _ := json.Marshal(map[string]int{"flattened_positions": flattened})
	if err := m.store.Log(ctx, "risk", "Flatten guard executed", string(payload)); err != nil {
		m.log.Error().Err(err).Msg("journal flatten guard")
	}
	observ.IncCounterBy("positions_flattened_total", nil, float64(flattened))
	return flattened, nil
}
