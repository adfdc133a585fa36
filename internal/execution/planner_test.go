package execution

import (
	"context"
	"testing"

	"github.com/rs/zerolog"

	"github.com/osvelia/propulsion/internal/config"
	"github.com/osvelia/propulsion/internal/models"
)

type staticEquity struct {
	snap models.EquitySnapshot
	ok   bool
}

func (s staticEquity) LatestEquity(context.Context) (models.EquitySnapshot, bool, error) {
	return s.snap, s.ok, nil
}

func testPlanner(equity EquitySource) *Planner {
	riskCfg := config.Risk{
		RiskPerTradePct:     1,
		MinTickBuffer:       0.01,
		MaxPositionValuePct: 20,
	}
	execCfg := config.Execution{
		ScaleOutAtRMultiple:  1,
		FinalTargetRMultiple: 2,
		TrailMode:            "ema21",
	}
	return NewPlanner(riskCfg, execCfg, equity, zerolog.Nop())
}

func signal(symbol string, entry, stop, score float64) models.Signal {
	return models.Signal{Symbol: symbol, EntryHint: entry, StopHint: stop, FinalScore: score}
}

func TestPlanOrdersSizing(t *testing.T) {
	p := testPlanner(staticEquity{})
	orders := p.PlanOrders(context.Background(), []models.Signal{signal("NVDA", 100, 98, 0.8)}, nil)
	if len(orders) != 1 {
		t.Fatalf("orders = %d, want 1", len(orders))
	}
	order := orders[0]
	// equity defaults to 100k: dollar risk 1000, per-share risk 2 -> 500
	// shares, capped by 20k max position value to 200 shares
	if order.Qty != 200 {
		t.Fatalf("qty = %d, want 200", order.Qty)
	}
	if order.Side != "BUY" {
		t.Fatalf("side = %s", order.Side)
	}
	if order.ScaleOut != 102 || order.Target != 104 {
		t.Fatalf("scale_out = %v target = %v", order.ScaleOut, order.Target)
	}
	ctx := order.RiskContext
	if ctx["dollar_risk"] != 1000 || ctx["per_share_risk"] != 2 || ctx["notional"] != 20_000 {
		t.Fatalf("risk context = %v", ctx)
	}
	if ctx["risk_multiple_scale"] != 1 || ctx["risk_multiple_final"] != 2 {
		t.Fatalf("risk context = %v", ctx)
	}
}

func TestPlanOrdersSellSide(t *testing.T) {
	p := testPlanner(staticEquity{})
	orders := p.PlanOrders(context.Background(), []models.Signal{signal("BEAR", 100, 102, 0.2)}, nil)
	if len(orders) != 1 || orders[0].Side != "SELL" {
		t.Fatalf("orders = %+v", orders)
	}
	if orders[0].ScaleOut != 98 || orders[0].Target != 96 {
		t.Fatalf("scale_out = %v target = %v", orders[0].ScaleOut, orders[0].Target)
	}
}

func TestPlanOrdersSkipsBadHints(t *testing.T) {
	p := testPlanner(staticEquity{})
	signals := []models.Signal{
		signal("ZEROENTRY", 0, 98, 0.8),
		signal("ZEROSTOP", 100, 0, 0.8),
		signal("EQUAL", 100, 100, 0.8),
	}
	if orders := p.PlanOrders(context.Background(), signals, nil); len(orders) != 0 {
		t.Fatalf("orders = %+v, want none", orders)
	}
}

func TestPlanOrdersNeverEmitsZeroQty(t *testing.T) {
	p := testPlanner(staticEquity{})
	// entry so high the position cap floors to zero shares
	orders := p.PlanOrders(context.Background(), []models.Signal{signal("PRICY", 30_000, 29_000, 0.8)}, nil)
	if len(orders) != 0 {
		t.Fatalf("orders = %+v, want none", orders)
	}
}

func TestPlanOrdersEquityFromSessionSnapshot(t *testing.T) {
	p := testPlanner(staticEquity{snap: models.EquitySnapshot{StartingEquity: 50_000}, ok: true})
	orders := p.PlanOrders(context.Background(), []models.Signal{signal("SNAP", 100, 99, 0.8)},
		map[string]float64{"starting_equity": 200_000})
	if len(orders) != 1 {
		t.Fatalf("orders = %d", len(orders))
	}
	// session snapshot wins over stored telemetry: 200k -> 2000 risk / 1 per share,
	// capped at 40k notional -> 400 shares
	if orders[0].Qty != 400 {
		t.Fatalf("qty = %d, want 400", orders[0].Qty)
	}
}

func TestPlanOrdersEquityFromStore(t *testing.T) {
	p := testPlanner(staticEquity{snap: models.EquitySnapshot{StartingEquity: 50_000}, ok: true})
	orders := p.PlanOrders(context.Background(), []models.Signal{signal("STORE", 100, 99, 0.8)}, nil)
	// 50k -> 500 risk / 1 per share = 500 shares, capped at 10k notional -> 100
	if len(orders) != 1 || orders[0].Qty != 100 {
		t.Fatalf("orders = %+v", orders)
	}
}

func TestPlanOrdersMinTickBuffer(t *testing.T) {
	p := testPlanner(staticEquity{})
	orders := p.PlanOrders(context.Background(), []models.Signal{signal("TIGHT", 100, 99.9999999999, 0.8)}, nil)
	// hints this close are treated as equal and skipped
	if len(orders) != 0 {
		t.Fatalf("orders = %+v", orders)
	}

	orders = p.PlanOrders(context.Background(), []models.Signal{signal("NARROW", 100, 99.995, 0.8)}, nil)
	if len(orders) != 1 {
		t.Fatalf("orders = %d, want 1", len(orders))
	}
	if orders[0].RiskContext["per_share_risk"] != 0.01 {
		t.Fatalf("per_share_risk = %v, want floor 0.01", orders[0].RiskContext["per_share_risk"])
	}
}
