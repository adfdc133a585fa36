package orchestrator

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/osvelia/propulsion/internal/models"
	"github.com/osvelia/propulsion/internal/observ"
)

// Sleep caps keep the loop responsive to shutdown and clock drift while
// idling outside the session.
const (
	preOpenSleepCap   = 60 * time.Second
	postCloseSleepCap = 300 * time.Second
	pollInterval      = time.Second
)

// Run drives the trading session until ctx is cancelled. Outside the
// session window the loop idles and resets session state; inside it the
// flatten guard fires once per session and cycles run on the configured
// cadence.
func (e *Engine) Run(ctx context.Context) error {
	if err := e.seedEquity(ctx); err != nil {
		e.log.Warn().Err(err).Msg("seed equity telemetry")
	}

	interval := time.Duration(e.cfg.Orchestrator.CadenceMin) * time.Minute
	cycleID := 0
	nextRun := e.clock.Now()
	flattenExecuted := false
	sessionHydrated := false

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		now := e.clock.Now()
		sessionOpen, sessionClose, flattenAt := e.clock.SessionBounds(now)

		if !e.clock.IsTradingDay(now) || now.After(sessionClose) || now.Equal(sessionClose) {
			next := e.clock.NextSessionOpen(now)
			nextRun = next
			flattenExecuted = false
			sessionHydrated = false
			cycleID = 0
			e.session = SessionState{}
			if err := sleepCtx(ctx, minDuration(next.Sub(now), postCloseSleepCap)); err != nil {
				return err
			}
			continue
		}

		if now.Before(sessionOpen) {
			nextRun = sessionOpen
			flattenExecuted = false
			sessionHydrated = false
			cycleID = 0
			e.session = SessionState{}
			if err := sleepCtx(ctx, minDuration(sessionOpen.Sub(now), preOpenSleepCap)); err != nil {
				return err
			}
			continue
		}

		if !sessionHydrated {
			e.hydrateSession(ctx, now)
			sessionHydrated = true
		}

		if !flattenExecuted && !now.Before(flattenAt) {
			if err := e.FlattenGuard(ctx); err != nil {
				e.log.Error().Err(err).Msg("flatten guard")
			}
			flattenExecuted = true
		}

		if !now.Before(nextRun) {
			cycleID++
			positions, err := e.positions.OpenPositions(ctx)
			if err != nil {
				e.log.Error().Err(err).Msg("load open positions")
				positions = nil
			}
			result, err := e.RunCycle(ctx, strconv.Itoa(cycleID), positions)
			if err != nil {
				e.log.Error().Err(err).Int("cycle", cycleID).Msg("cycle failed")
			} else if result.FlattenRequired {
				e.log.Warn().Int("cycle", cycleID).Msg("cycle requested portfolio flatten")
				if err := e.FlattenGuard(ctx); err != nil {
					e.log.Error().Err(err).Msg("flatten guard")
				}
				flattenExecuted = true
			} else {
				e.heartbeat(ctx, result.Summary)
			}
			nextRun = now.Add(interval)
			observ.IncCounter("cycles_total", nil)
		}

		if err := sleepCtx(ctx, pollInterval); err != nil {
			return err
		}
	}
}

// FlattenGuard closes every open trade through the execution manager,
// settling against the latest quotes. Symbols without a quote settle
// at their entry price.
func (e *Engine) FlattenGuard(ctx context.Context) error {
	e.log.Warn().Msg("executing flatten guard")
	open, err := e.store.OpenTrades(ctx)
	if err != nil {
		return err
	}
	symbols := make([]string, 0, len(open))
	for _, trade := range open {
		symbols = append(symbols, trade.Symbol)
	}
	quotes, err := e.hub.GetQuotes(ctx, symbols)
	if err != nil {
		e.log.Warn().Err(err).Msg("quotes unavailable for flatten, settling at entry")
		quotes = nil
	}
	flattened, err := e.trades.Flatten(ctx, quotes)
	if err != nil {
		return err
	}
	e.log.Info().Int("flattened", flattened).Msg("flatten guard complete")
	return nil
}

// hydrateSession restores today's trade count from the trade journal so
// a mid-session restart cannot re-arm the daily trade cap.
func (e *Engine) hydrateSession(ctx context.Context, now time.Time) {
	count, err := e.store.CountTradesForDate(ctx, now)
	if err != nil {
		e.log.Warn().Err(err).Msg("restore session trade count")
		return
	}
	if count > 0 {
		e.log.Info().Int("trades_opened_today", count).Msg("restored session trade count")
	}
	e.session.TradesOpenedToday = count
}

// seedEquity records the configured account equity once so drawdown and
// sizing have a baseline before the first telemetry write.
func (e *Engine) seedEquity(ctx context.Context) error {
	_, ok, err := e.journal.LatestEquity(ctx)
	if err != nil {
		return err
	}
	if ok {
		return nil
	}
	return e.journal.RecordEquity(ctx, models.EquitySnapshot{
		StartingEquity: e.cfg.Risk.AccountEquity,
	})
}

func (e *Engine) heartbeat(ctx context.Context, extra map[string]any) {
	payload := map[string]any{
		"timestamp":    time.Now().UTC().Format(time.RFC3339),
		"dry_run":      e.cfg.Orchestrator.StartWithDryRun,
		"timezone":     e.cfg.Orchestrator.Timezone,
		"trades_today": e.session.TradesOpenedToday,
	}
	if e.session.HaltedReason != "" {
		payload["halted_reason"] = e.session.HaltedReason
	}
	for key, value := range e.session.EquitySnapshot {
		payload["equity_"+key] = value
	}
	if stats, err := e.store.GetTradeStats(ctx); err != nil {
		e.log.Warn().Err(err).Msg("trade stats for heartbeat")
	} else {
		payload["closed_trades"] = stats.ClosedTrades
		payload["closed_realized_pnl"] = stats.RealizedPnL
	}
	for key, value := range extra {
		payload[key] = value
	}
	body, err := json.Marshal(payload)
	if err != nil {
		e.log.Error().Err(err).Msg("marshal heartbeat")
		return
	}
	if err := e.store.Log(ctx, "heartbeat", "orchestrator_alive", string(body)); err != nil {
		e.log.Error().Err(err).Msg("journal heartbeat")
	}
	observ.SetGauge("trades_opened_today", float64(e.session.TradesOpenedToday), nil)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		d = pollInterval
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func minDuration(a, b time.Duration) time.Duration {
	if a < b {
		return a
	}
	return b
}
