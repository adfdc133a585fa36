// Package orchestrator coordinates the intraday pipeline: data access,
// scoring, risk staging, planning, and execution, on a market-aware
// schedule.
package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/osvelia/propulsion/internal/ai"
	"github.com/osvelia/propulsion/internal/config"
	"github.com/osvelia/propulsion/internal/datahub"
	"github.com/osvelia/propulsion/internal/execution"
	"github.com/osvelia/propulsion/internal/features"
	"github.com/osvelia/propulsion/internal/journal"
	"github.com/osvelia/propulsion/internal/marketclock"
	"github.com/osvelia/propulsion/internal/models"
	"github.com/osvelia/propulsion/internal/observ"
	"github.com/osvelia/propulsion/internal/risk"
	"github.com/osvelia/propulsion/internal/store"
	"github.com/osvelia/propulsion/internal/strategy"
)

// PositionSource reports currently open positions.
type PositionSource interface {
	OpenPositions(ctx context.Context) ([]models.Position, error)
}

// SessionState carries intra-session counters. It resets at every
// pre-open and post-close boundary.
type SessionState struct {
	TradesOpenedToday int
	HaltedReason      string
	EquitySnapshot    map[string]float64
}

// CycleResult summarises one pipeline run.
type CycleResult struct {
	CycleID         string
	Signals         []models.Signal
	Approved        []models.Signal
	Rejected        map[string][]string
	FlattenRequired bool
	Summary         map[string]any
}

// Engine owns the pipeline collaborators and the session state.
type Engine struct {
	cfg       config.Root
	store     store.Store
	hub       *datahub.Hub
	builder   *features.Builder
	scorer    *strategy.Scorer
	risk      *risk.Manager
	planner   *execution.Planner
	trades    *execution.Manager
	journal   *journal.Journal
	gating    *ai.Gating
	positions PositionSource
	clock     *marketclock.Clock
	log       zerolog.Logger

	session SessionState
}

func NewEngine(
	cfg config.Root,
	st store.Store,
	hub *datahub.Hub,
	builder *features.Builder,
	scorer *strategy.Scorer,
	riskMgr *risk.Manager,
	planner *execution.Planner,
	trades *execution.Manager,
	jnl *journal.Journal,
	gating *ai.Gating,
	positions PositionSource,
	clock *marketclock.Clock,
	log zerolog.Logger,
) *Engine {
	return &Engine{
		cfg:       cfg,
		store:     st,
		hub:       hub,
		builder:   builder,
		scorer:    scorer,
		risk:      riskMgr,
		planner:   planner,
		trades:    trades,
		journal:   jnl,
		gating:    gating,
		positions: positions,
		clock:     clock,
		log:       log.With().Str("component", "orchestrator").Logger(),
	}
}

// Session exposes a copy of the current session counters.
func (e *Engine) Session() SessionState {
	return e.session
}

// RunCycle executes the deterministic pipeline once. Session counters are
// only advanced after the steps that justify them, so a cycle that errors
// out early leaves the session untouched.
func (e *Engine) RunCycle(ctx context.Context, cycleID string, openPositions []models.Position) (CycleResult, error) {
	started := time.Now()
	e.log.Info().Str("cycle_id", cycleID).Msg("starting intraday evaluation")
	defer func() {
		observ.Observe("cycle_duration_seconds", time.Since(started).Seconds(), nil)
	}()

	topN := e.cfg.Orchestrator.IntradayTopN
	watchlist, err := e.store.FetchWatchlist(ctx, topN)
	if err != nil {
		return CycleResult{}, fmt.Errorf("fetch watchlist: %w", err)
	}
	if len(watchlist) < topN {
		e.log.Debug().Msg("watchlist shorter than top-n, loading full watchlist")
		if watchlist, err = e.store.FetchWatchlist(ctx, 0); err != nil {
			return CycleResult{}, fmt.Errorf("fetch watchlist: %w", err)
		}
	}
	symbols := make([]string, 0, len(watchlist))
	for _, entry := range watchlist {
		symbols = append(symbols, entry.Symbol)
	}
	if len(symbols) == 0 {
		e.log.Warn().Str("cycle_id", cycleID).Msg("no symbols available for evaluation")
		return CycleResult{
			CycleID:  cycleID,
			Rejected: map[string][]string{},
			Summary:  map[string]any{"signals": 0, "approved": 0, "timestamp": time.Now().UTC().Format(time.RFC3339)},
		}, nil
	}

	lookback := e.cfg.Strategy.ConsolidationLookback
	if slow := e.cfg.Strategy.EMASlow * 3; slow > lookback {
		lookback = slow
	}
	barsBySymbol := e.hub.GetBars(ctx, symbols, "5m", lookback)
	headlines := e.hub.GetHeadlines(ctx, symbols)

	asOf := time.Now().UTC()
	snapshots := make([]features.Snapshot, 0, len(symbols))
	for _, symbol := range symbols {
		bars := barsBySymbol[symbol]
		if len(bars) == 0 {
			e.log.Debug().Str("symbol", symbol).Msg("skipping due to missing bars")
			continue
		}
		snapshots = append(snapshots, e.builder.Build(symbol, bars, headlines[symbol], nil, asOf))
	}

	decisions := e.scorer.Evaluate(snapshots, cycleID)
	if e.cfg.AI.Finbert.Enable {
		signals := make([]models.Signal, len(decisions))
		for i, decision := range decisions {
			signals[i] = decision.Signal
		}
		adjusted := ai.AdjustScores(ctx, signals, e.store, e.cfg.AI.Finbert.DecayHours, e.cfg.AI.Finbert.MinHeadlines)
		for i := range decisions {
			decisions[i].Signal = adjusted[i]
		}
	}

	signals := make([]models.Signal, len(decisions))
	for i, decision := range decisions {
		signals[i] = decision.Signal
	}
	for _, signal := range signals {
		if err := e.journal.RecordSignal(ctx, signal); err != nil {
			e.log.Error().Err(err).Str("symbol", signal.Symbol).Msg("record signal")
		}
	}
	observ.SetGauge("cycle_signals", float64(len(signals)), nil)

	rejected := map[string][]string{}
	var approved []models.Signal
	processed := 0
	for i := range decisions {
		decision := &decisions[i]
		if decision.Intent == nil {
			continue
		}
		if processed >= topN {
			break
		}
		processed++
		assessment, updated := e.risk.ApplyGuardrails(ctx, decision.Signal)
		decision.Signal = updated
		if !assessment.Allowed {
			rejected[updated.Symbol] = append(rejected[updated.Symbol], assessment.Reasons...)
			continue
		}
		if e.gating != nil && e.cfg.AI.EnableGating {
			feats := make(map[string]float64, len(decision.Signal.Features)+1)
			for k, v := range decision.Signal.Features {
				feats[k] = v
			}
			feats["score"] = decision.Signal.BaseScore
			overlay := e.gating.Evaluate(
				decision.Signal.Symbol,
				decision.Signal,
				headlines[decision.Signal.Symbol],
				feats,
				e.cfg.AI.RequirePositiveSentiment || e.cfg.AI.Finbert.Enable,
				e.cfg.AI.RequireFavorableRegime,
			)
			if err := e.journal.RecordAI(ctx, overlay); err != nil {
				e.log.Error().Err(err).Str("symbol", overlay.Symbol).Msg("record overlay")
			}
			if !overlay.Approved {
				rejected[decision.Signal.Symbol] = append(rejected[decision.Signal.Symbol], "ai_gating")
				continue
			}
		}
		approved = append(approved, decision.Signal)
	}

	if drawdown := e.risk.CheckDrawdown(ctx); !drawdown.Allowed {
		e.session.HaltedReason = strings.Join(drawdown.Reasons, "; ")
		e.log.Warn().Str("cycle_id", cycleID).Msg("drawdown threshold breached")
		summary := map[string]any{
			"timestamp": time.Now().UTC().Format(time.RFC3339),
			"signals":   len(signals),
			"approved":  0,
			"status":    "drawdown_halt",
		}
		if err := e.journal.LogCycle(ctx, summary); err != nil {
			e.log.Error().Err(err).Msg("log cycle")
		}
		return CycleResult{
			CycleID:         cycleID,
			Signals:         signals,
			Rejected:        rejected,
			FlattenRequired: true,
			Summary:         summary,
		}, nil
	}

	planned := e.planner.PlanOrders(ctx, approved, e.session.EquitySnapshot)
	preExec := e.risk.PreExecutionChecks(ctx, planned, openPositions, e.session.TradesOpenedToday, cycleID)
	if !preExec.Allowed {
		e.log.Warn().Str("cycle_id", cycleID).Msg("pre-execution guardrails blocked orders")
		summary := map[string]any{
			"timestamp": time.Now().UTC().Format(time.RFC3339),
			"signals":   len(signals),
			"approved":  len(approved),
			"status":    "risk_block",
			"reasons":   strings.Join(preExec.Reasons, ","),
		}
		if err := e.journal.LogCycle(ctx, summary); err != nil {
			e.log.Error().Err(err).Msg("log cycle")
		}
		return CycleResult{
			CycleID:  cycleID,
			Signals:  signals,
			Rejected: rejected,
			Summary:  summary,
		}, nil
	}

	results, err := e.trades.Execute(ctx, planned)
	if err != nil {
		return CycleResult{}, fmt.Errorf("execute orders: %w", err)
	}
	submitted := 0
	for _, result := range results {
		if result.Status == "submitted" {
			submitted++
		}
	}
	e.session.TradesOpenedToday += submitted
	exposure := e.risk.AssessPortfolio(openPositions)
	e.session.EquitySnapshot = exposure

	summary := map[string]any{
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"signals":   len(signals),
		"approved":  len(approved),
		"fills":     submitted,
	}
	for key, value := range exposure {
		summary["portfolio_"+key] = value
	}
	if err := e.journal.LogCycle(ctx, summary); err != nil {
		e.log.Error().Err(err).Msg("log cycle")
	}

	return CycleResult{
		CycleID:  cycleID,
		Signals:  signals,
		Approved: approved,
		Rejected: rejected,
		Summary:  summary,
	}, nil
}
