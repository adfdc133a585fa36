// Package strategy scores feature snapshots into ranked signals and
// advisory trade intents.
package strategy

import (
	"math"
	"sort"
	"time"

	"github.com/osvelia/propulsion/internal/config"
	"github.com/osvelia/propulsion/internal/features"
	"github.com/osvelia/propulsion/internal/models"
)

// TradeIntent is the scorer's advisory plan for one symbol. Sizing here is
// a risk-budget hint only; the execution planner recomputes quantities
// against live equity before anything is submitted.
type TradeIntent struct {
	Symbol     string
	Side       models.Side
	Confidence float64
	Quantity   float64
	Entry      float64
	Stop       float64
	Target     float64
	Metadata   map[string]float64
}

// Decision pairs a scored signal with its intent. Intent is nil when the
// entry and stop hints cannot anchor a plan.
type Decision struct {
	Signal models.Signal
	Intent *TradeIntent
}

// Scorer applies the rule stack to feature snapshots.
type Scorer struct {
	strategy config.Strategy
	risk     config.Risk
	nowFn    func() time.Time
}

func NewScorer(strategy config.Strategy, risk config.Risk) *Scorer {
	return &Scorer{strategy: strategy, risk: risk, nowFn: time.Now}
}

// Evaluate scores every snapshot, sorts by final score descending, and
// assigns contiguous 1-based ranks. The sort is stable so equal scores
// keep their input order.
func (s *Scorer) Evaluate(batch []features.Snapshot, cycleID string) []Decision {
	decisions := make([]Decision, 0, len(batch))
	for _, snapshot := range batch {
		signal := s.score(snapshot, cycleID)
		decisions = append(decisions, Decision{
			Signal: signal,
			Intent: s.buildIntent(snapshot, signal),
		})
	}
	sort.SliceStable(decisions, func(i, j int) bool {
		return decisions[i].Signal.FinalScore > decisions[j].Signal.FinalScore
	})
	for i := range decisions {
		decisions[i].Signal.Rank = i + 1
	}
	return decisions
}

func (s *Scorer) score(snapshot features.Snapshot, cycleID string) models.Signal {
	feats := snapshot.Features
	lastClose := feats["last_close"]
	atr := feats["atr"]

	score := 0.0
	reasons := []string{}
	rules := map[string]bool{}

	if feats["ema_fast"] > feats["ema_slow"] {
		score += 0.35
		reasons = append(reasons, "ema_fast_gt_slow")
		rules["ema_trend"] = true
	} else {
		score -= 0.4
		rules["ema_trend"] = false
	}

	if feats["ema_slow"] > feats["ema_bias"] {
		score += 0.2
		reasons = append(reasons, "ema_stack")
		rules["ema_stack"] = true
	} else {
		rules["ema_stack"] = false
	}

	if s.strategy.VWAPRequired {
		if lastClose >= feats["vwap"] {
			score += 0.2
			reasons = append(reasons, "above_vwap")
			rules["above_vwap"] = true
		} else {
			score -= 0.5
			rules["above_vwap"] = false
		}
	}

	volSpike := feats["volume_spike"]
	if volSpike >= s.strategy.VolSpikeMultiple {
		score += math.Min(0.25, (volSpike-s.strategy.VolSpikeMultiple)*0.1)
		reasons = append(reasons, "volume_spike")
		rules["volume_spike"] = true
	} else {
		rules["volume_spike"] = false
	}

	consolidation, ok := feats["consolidation"]
	if !ok {
		consolidation = 1.0
	}
	if consolidation <= 0.03 {
		score += 0.15
		reasons = append(reasons, "tight_range")
		rules["tight_range"] = true
	} else {
		rules["tight_range"] = false
	}

	if feats["has_fresh_catalyst"] != 0 {
		score += 0.15
		reasons = append(reasons, "fresh_catalyst")
		rules["fresh_catalyst"] = true
	} else if s.strategy.CatalystRequired {
		score -= 0.3
		rules["fresh_catalyst"] = false
	}

	if s.strategy.EnableSupertrend {
		if feats["supertrend_bullish"] != 0 {
			score += 0.1
			reasons = append(reasons, "supertrend")
			rules["supertrend"] = true
		} else {
			rules["supertrend"] = false
		}
	}

	spreadPenalty := feats["spread_bp"] / math.Max(1, s.risk.SpreadPenaltyBp)
	if spreadPenalty > 0 {
		score -= spreadPenalty
		rules["tight_spread"] = false
	} else {
		rules["tight_spread"] = true
	}

	avgSentiment := feats["avg_sentiment"]
	if avgSentiment < -0.2 {
		score -= math.Max(0.2, math.Abs(avgSentiment))
		rules["sentiment"] = false
	} else {
		rules["sentiment"] = true
	}

	catalystAge, ok := feats["fresh_catalyst_minutes"]
	if !ok {
		catalystAge = math.Inf(1)
	}
	if s.risk.EarningsBlackout && catalystAge < 30 {
		score -= 0.2
		rules["earnings_blackout"] = false
	} else {
		rules["earnings_blackout"] = true
	}

	score = models.Clamp01(score)
	stopHint := lastClose * 0.99
	if atr != 0 {
		stopHint = lastClose - atr
	}

	featCopy := make(map[string]float64, len(feats))
	for k, v := range feats {
		featCopy[k] = v
	}

	return models.Signal{
		Symbol:      snapshot.Symbol,
		RunTs:       s.nowFn().UTC(),
		CycleID:     cycleID,
		EntryHint:   lastClose,
		StopHint:    stopHint,
		BaseScore:   score,
		AIAdjScore:  score,
		FinalScore:  score,
		Reasons:     reasons,
		RulesPassed: rules,
		Features:    featCopy,
	}
}

func (s *Scorer) buildIntent(snapshot features.Snapshot, signal models.Signal) *TradeIntent {
	entry := signal.EntryHint
	stop := signal.StopHint
	if entry <= 0 || stop <= 0 || closeEnough(entry, stop) {
		return nil
	}
	riskPerShare := math.Abs(entry - stop)
	riskBudget := s.risk.AccountEquity * s.risk.RiskPerTradePct / 100
	if riskBudget <= 0 || riskPerShare <= 0 {
		return nil
	}
	side := models.SideLong
	direction := 1.0
	if signal.FinalScore < 0.5 {
		side = models.SideShort
		direction = -1
	}
	atr := snapshot.Features["atr"]
	metadata := make(map[string]float64, len(snapshot.Features))
	for k, v := range snapshot.Features {
		metadata[k] = v
	}
	return &TradeIntent{
		Symbol:     snapshot.Symbol,
		Side:       side,
		Confidence: math.Min(1, signal.FinalScore),
		Quantity:   math.Max(0, riskBudget/riskPerShare),
		Entry:      entry,
		Stop:       stop,
		Target:     entry + direction*atr*2,
		Metadata:   metadata,
	}
}

// closeEnough reports near equality with a relative tolerance of 1e-9.
func closeEnough(a, b float64) bool {
	return math.Abs(a-b) <= 1e-9*math.Max(math.Abs(a), math.Abs(b))
}
