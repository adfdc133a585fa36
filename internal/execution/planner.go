// Package execution turns approved signals into sized orders and routes
// them through an Executor.
package execution

import (
	"context"
	"math"

	"github.com/rs/zerolog"

	"github.com/osvelia/propulsion/internal/config"
	"github.com/osvelia/propulsion/internal/models"
)

// fallbackEquity sizes orders when no equity telemetry exists yet.
const fallbackEquity = 100_000.0

// EquitySource supplies the latest recorded equity snapshot.
type EquitySource interface {
	LatestEquity(ctx context.Context) (models.EquitySnapshot, bool, error)
}

// Planner converts signals into risk-sized orders.
type Planner struct {
	risk   config.Risk
	exec   config.Execution
	equity EquitySource
	log    zerolog.Logger
}

func NewPlanner(risk config.Risk, exec config.Execution, equity EquitySource, log zerolog.Logger) *Planner {
	return &Planner{risk: risk, exec: exec, equity: equity, log: log.With().Str("component", "planner").Logger()}
}

// PlanOrders sizes one order per plannable signal. Equity resolves from
// the session snapshot, then the recorded telemetry, then a dry-run
// default. Signals with unusable hints or a zero quantity are skipped,
// never zero-padded.
func (p *Planner) PlanOrders(ctx context.Context, signals []models.Signal, sessionSnapshot map[string]float64) []models.PlannedOrder {
	if len(signals) == 0 {
		return nil
	}

	equity := sessionSnapshot["starting_equity"]
	if equity <= 0 {
		if snap, ok, err := p.equity.LatestEquity(ctx); err == nil && ok {
			equity = snap.StartingEquity
		}
	}
	if equity <= 0 {
		equity = fallbackEquity
	}

	dollarRisk := equity * p.risk.RiskPerTradePct / 100
	maxPositionValue := equity * p.risk.MaxPositionValuePct / 100

	var planned []models.PlannedOrder
	for _, signal := range signals {
		entry := signal.EntryHint
		stop := signal.StopHint
		if entry <= 0 || stop <= 0 || nearlyEqual(entry, stop) {
			p.log.Debug().Str("symbol", signal.Symbol).Msg("skipping: invalid entry/stop hints")
			continue
		}

		side := "SELL"
		direction := -1.0
		if signal.FinalScore >= 0.5 {
			side = "BUY"
			direction = 1
		}
		perShareRisk := math.Max(math.Abs(entry-stop), p.risk.MinTickBuffer)
		qty := int(math.Floor(dollarRisk / perShareRisk))
		if qty <= 0 {
			p.log.Debug().Str("symbol", signal.Symbol).Msg("skipping: qty computed as zero")
			continue
		}

		notional := float64(qty) * entry
		if notional > maxPositionValue {
			qty = int(math.Floor(maxPositionValue / entry))
			if qty <= 0 {
				p.log.Debug().Str("symbol", signal.Symbol).Msg("skipping: capped position size zero")
				continue
			}
			notional = float64(qty) * entry
		}

		scaleOutR := p.exec.ScaleOutAtRMultiple
		finalTargetR := p.exec.FinalTargetRMultiple
		planned = append(planned, models.PlannedOrder{
			Symbol:    signal.Symbol,
			Side:      side,
			Qty:       qty,
			Entry:     entry,
			Stop:      stop,
			ScaleOut:  entry + direction*perShareRisk*scaleOutR,
			Target:    entry + direction*perShareRisk*finalTargetR,
			TrailMode: p.exec.TrailMode,
			RiskContext: map[string]float64{
				"dollar_risk":         dollarRisk,
				"per_share_risk":      perShareRisk,
				"notional":            notional,
				"risk_multiple_scale": scaleOutR,
				"risk_multiple_final": finalTargetR,
			},
		})
	}
	return planned
}

func nearlyEqual(a, b float64) bool {
	return math.Abs(a-b) <= 1e-9*math.Max(math.Abs(a), math.Abs(b))
}
