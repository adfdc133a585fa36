package execution

import (
	"context"
	"testing"

	"github.com/osvelia/propulsion/internal/models"
	"github.com/osvelia/propulsion/internal/store"
)

type staticQuotes map[string]float64

func (q staticQuotes) GetQuotes(context.Context, []string) (map[string]float64, error) {
	return q, nil
}

func TestOpenPositionsMarkedAgainstQuotes(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	if _, err := st.RecordTrade(ctx, store.TradeRecord{Symbol: "LONGPOS", Direction: "long", Qty: 10, EntryPrice: 100, Status: "open"}); err != nil {
		t.Fatalf("RecordTrade: %v", err)
	}
	if _, err := st.RecordTrade(ctx, store.TradeRecord{Symbol: "SHORTPOS", Direction: "short", Qty: 4, EntryPrice: 50, Status: "open"}); err != nil {
		t.Fatalf("RecordTrade: %v", err)
	}

	p := NewTradePositions(st, staticQuotes{"LONGPOS": 105, "SHORTPOS": 52})
	positions, err := p.OpenPositions(ctx)
	if err != nil {
		t.Fatalf("OpenPositions: %v", err)
	}
	if len(positions) != 2 {
		t.Fatalf("positions = %+v", positions)
	}
	long := positions[0]
	if long.Side != models.SideLong || long.Mark != 105 || long.UnrealizedPnL != 50 {
		t.Fatalf("long = %+v", long)
	}
	short := positions[1]
	if short.Side != models.SideShort || short.Mark != 52 || short.UnrealizedPnL != -8 {
		t.Fatalf("short = %+v", short)
	}
}

func TestOpenPositionsFallBackToEntryMark(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	if _, err := st.RecordTrade(ctx, store.TradeRecord{Symbol: "NOQUOTE", Direction: "long", Qty: 2, EntryPrice: 80, Status: "open"}); err != nil {
		t.Fatalf("RecordTrade: %v", err)
	}

	p := NewTradePositions(st, nil)
	positions, err := p.OpenPositions(ctx)
	if err != nil {
		t.Fatalf("OpenPositions: %v", err)
	}
	if len(positions) != 1 || positions[0].Mark != 80 || positions[0].UnrealizedPnL != 0 {
		t.Fatalf("positions = %+v", positions)
	}
}
