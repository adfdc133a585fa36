package execution

import (
	"context"

	"github.com/osvelia/propulsion/internal/models"
	"github.com/osvelia/propulsion/internal/store"
)

// QuoteSource supplies last-trade prices for marking open positions.
type QuoteSource interface {
	GetQuotes(ctx context.Context, symbols []string) (map[string]float64, error)
}

// TradePositions derives open positions from the trade journal, marked
// against the latest quotes. Symbols without a quote fall back to their
// entry price.
type TradePositions struct {
	store  store.Store
	quotes QuoteSource
}

func NewTradePositions(st store.Store, quotes QuoteSource) *TradePositions {
	return &TradePositions{store: st, quotes: quotes}
}

func (p *TradePositions) OpenPositions(ctx context.Context) ([]models.Position, error) {
	trades, err := p.store.OpenTrades(ctx)
	if err != nil {
		return nil, err
	}
	symbols := make([]string, 0, len(trades))
	for _, trade := range trades {
		symbols = append(symbols, trade.Symbol)
	}
	marks := map[string]float64{}
	if p.quotes != nil && len(symbols) > 0 {
		quoted, err := p.quotes.GetQuotes(ctx, symbols)
		if err == nil {
			marks = quoted
		}
	}
	positions := make([]models.Position, 0, len(trades))
	for _, trade := range trades {
		mark := marks[trade.Symbol]
		if mark == 0 {
			mark = trade.EntryPrice
		}
		unrealized := (mark - trade.EntryPrice) * trade.Qty
		side := models.SideFrom(trade.Direction)
		if side == models.SideShort {
			unrealized = -unrealized
		}
		positions = append(positions, models.Position{
			Symbol:        trade.Symbol,
			Side:          side,
			Quantity:      trade.Qty,
			EntryPrice:    trade.EntryPrice,
			Mark:          mark,
			UnrealizedPnL: unrealized,
		})
	}
	return positions, nil
}
