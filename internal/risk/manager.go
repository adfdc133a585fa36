// Package risk applies configurable guardrails at the signal, order, and
// session stages of the pipeline.
package risk

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/osvelia/propulsion/internal/config"
	"github.com/osvelia/propulsion/internal/models"
	"github.com/osvelia/propulsion/internal/observ"
)

// minLiquidShareVolume is the average bar volume below which a symbol is
// considered too thin to trade.
const minLiquidShareVolume = 250_000

// Journal is the audit surface the manager records against.
type Journal interface {
	RecordRiskEvent(ctx context.Context, event models.RiskEvent) error
	LatestEquity(ctx context.Context) (models.EquitySnapshot, bool, error)
}

// Assessment is the outcome of one guardrail stage. Reasons is empty when
// Allowed is true.
type Assessment struct {
	Allowed bool
	Reasons []string
}

func OK() Assessment {
	return Assessment{Allowed: true}
}

func Blocked(reasons ...string) Assessment {
	return Assessment{Allowed: false, Reasons: reasons}
}

// Manager evaluates guardrails and records every veto as a risk event.
type Manager struct {
	cfg     config.Risk
	journal Journal
	log     zerolog.Logger
}

func NewManager(cfg config.Risk, journal Journal, log zerolog.Logger) *Manager {
	return &Manager{cfg: cfg, journal: journal, log: log.With().Str("component", "risk").Logger()}
}

// ApplyGuardrails evaluates per-signal vetoes. In cap mode an earnings
// blackout does not veto; instead the signal comes back with its final
// score capped at 0.6 and an "earnings_cap" reason, and the original
// signal is left untouched.
func (m *Manager) ApplyGuardrails(ctx context.Context, signal models.Signal) (Assessment, models.Signal) {
	var reasons []string
	feats := signal.Features
	updated := signal

	if m.cfg.IlliquidityVeto {
		avgVolume := feats["avg_volume"]
		if avgVolume != 0 && avgVolume < minLiquidShareVolume {
			reasons = append(reasons, "illiquidity_veto")
		}
	}

	if feats["spread_bp"] > m.cfg.SpreadPenaltyBp {
		reasons = append(reasons, "spread_too_wide")
	}

	if m.cfg.EarningsBlackout {
		catalystAge, ok := feats["fresh_catalyst_minutes"]
		if !ok {
			catalystAge = 1e9
		}
		if catalystAge < 60 {
			switch strings.ToLower(m.cfg.EarningsBlackoutMode) {
			case "veto":
				reasons = append(reasons, "earnings_blackout_veto")
			case "cap":
				if signal.FinalScore > 0.6 {
					updated = signal.WithReason("earnings_cap").WithScores(-1, 0.6)
				}
			}
		}
	}

	if len(reasons) > 0 {
		m.log.Info().Str("symbol", signal.Symbol).Strs("reasons", reasons).Msg("signal failed guardrails")
		observ.IncCounter("risk_guardrail_vetoes_total", map[string]string{"symbol": signal.Symbol})
		m.recordEvent(ctx, models.RiskEvent{
			Ts:     time.Now().UTC(),
			Type:   "guardrail_veto",
			Symbol: signal.Symbol,
			Meta:   map[string]any{"reasons": reasons},
		})
		return Blocked(reasons...), updated
	}
	return OK(), updated
}

// PreExecutionChecks evaluates portfolio-level guardrails over a planned
// batch. An empty batch always passes.
func (m *Manager) PreExecutionChecks(ctx context.Context, orders []models.PlannedOrder, positions []models.Position, tradesOpenedToday int, session string) Assessment {
	if len(orders) == 0 {
		return OK()
	}

	var reasons []string

	if tradesOpenedToday+len(orders) > m.cfg.DailyTradeCap {
		reasons = append(reasons, "daily_trade_cap")
	}

	equity, _, err := m.journal.LatestEquity(ctx)
	if err != nil {
		m.log.Warn().Err(err).Msg("equity lookup failed, treating as absent")
		equity = models.EquitySnapshot{}
	}
	netPnL := equity.RealizedPnL + equity.UnrealizedPnL
	drawdownPct := 0.0
	if equity.StartingEquity != 0 {
		drawdownPct = netPnL / equity.StartingEquity * 100
	}
	if equity.StartingEquity != 0 && math.Abs(drawdownPct) >= m.cfg.DailyDrawdownHaltPct && netPnL < 0 {
		reasons = append(reasons, "drawdown_halt")
	}

	currentExposure := 0.0
	for _, pos := range positions {
		currentExposure += math.Abs(pos.Quantity * pos.EntryPrice)
	}
	plannedExposure := 0.0
	for _, order := range orders {
		plannedExposure += order.Entry * float64(order.Qty)
	}
	base := equity.StartingEquity
	if base == 0 {
		base = 1
	}
	grossExposurePct := (currentExposure + plannedExposure) / base * 100
	if grossExposurePct > m.cfg.MaxPortfolioExposurePct {
		reasons = append(reasons, "exposure_cap")
	}

	if len(reasons) > 0 {
		m.log.Warn().Strs("reasons", reasons).Msg("pre-execution checks blocked orders")
		for _, reason := range reasons {
			var value float64
			switch reason {
			case "exposure_cap":
				value = grossExposurePct
			case "drawdown_halt":
				value = drawdownPct
			case "daily_trade_cap":
				value = float64(tradesOpenedToday + len(orders))
			}
			observ.IncCounter("risk_preexec_blocks_total", map[string]string{"reason": reason})
			m.recordEvent(ctx, models.RiskEvent{
				Ts:      time.Now().UTC(),
				Session: session,
				Type:    reason,
				Value:   value,
			})
		}
		return Blocked(reasons...)
	}
	return OK()
}

// CheckDrawdown is the session circuit breaker. It compares signed
// drawdown against the negative halt limit, so gains never trip it.
func (m *Manager) CheckDrawdown(ctx context.Context) Assessment {
	equity, ok, err := m.journal.LatestEquity(ctx)
	if err != nil {
		m.log.Warn().Err(err).Msg("equity lookup failed, skipping drawdown check")
		return OK()
	}
	if !ok || equity.StartingEquity == 0 {
		return OK()
	}
	netPnL := equity.RealizedPnL + equity.UnrealizedPnL
	drawdownPct := netPnL / equity.StartingEquity * 100
	if drawdownPct <= -m.cfg.DailyDrawdownHaltPct {
		observ.SetGauge("risk_drawdown_pct", drawdownPct, nil)
		m.recordEvent(ctx, models.RiskEvent{
			Ts:    time.Now().UTC(),
			Type:  "drawdown_halt",
			Value: drawdownPct,
		})
		return Blocked(fmt.Sprintf("drawdown %.2f%% exceeds limit", drawdownPct))
	}
	return OK()
}

// AssessPortfolio summarises gross exposure for cycle telemetry.
func (m *Manager) AssessPortfolio(positions []models.Position) map[string]float64 {
	exposure := 0.0
	for _, pos := range positions {
		exposure += math.Abs(pos.Quantity * pos.EntryPrice)
	}
	observ.SetGauge("portfolio_gross_exposure", exposure, nil)
	observ.SetGauge("portfolio_open_positions", float64(len(positions)), nil)
	return map[string]float64{
		"exposure":       exposure,
		"open_positions": float64(len(positions)),
	}
}

func (m *Manager) recordEvent(ctx context.Context, event models.RiskEvent) {
	if err := m.journal.RecordRiskEvent(ctx, event); err != nil {
		m.log.Error().Err(err).Str("type", event.Type).Msg("record risk event")
	}
}
