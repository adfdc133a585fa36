// Package models holds the core value types shared across the intraday engine.
package models

import "time"

// Side distinguishes long and short exposure.
type Side string

const (
	SideLong  Side = "long"
	SideShort Side = "short"
)

// SideFrom parses a side string, defaulting to long on unknown input.
func SideFrom(value string) Side {
	if Side(value) == SideShort {
		return SideShort
	}
	return SideLong
}

// Bar is a single OHLCV price bar. Bars are immutable once produced and
// ordered ascending by timestamp within a symbol/timeframe series.
type Bar struct {
	Symbol    string
	Timeframe string
	Ts        time.Time
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    float64
}

// Headline is a deduplicated news catalyst attached to a symbol.
type Headline struct {
	Symbol      string
	Headline    string
	Source      string
	Sentiment   float64 // [-1, 1]
	PublishedAt time.Time
}

// Signal is the standardised representation of a ranked trade opportunity.
// Scores are clamped to [0,1]. Score fields are only updated through
// WithScores, which returns a copy so references already handed to the
// journal are never mutated.
type Signal struct {
	Symbol      string
	RunTs       time.Time
	CycleID     string
	EntryHint   float64
	StopHint    float64
	BaseScore   float64
	AIAdjScore  float64
	FinalScore  float64
	Reasons     []string
	RulesPassed map[string]bool
	Features    map[string]float64
	Rank        int // 1-based, 0 until ranking assigns it
}

// WithScores returns a copy of the signal with the given score fields
// replaced. Negative arguments leave the corresponding field unchanged.
func (s Signal) WithScores(aiAdjScore, finalScore float64) Signal {
	out := s
	out.Reasons = append([]string(nil), s.Reasons...)
	if aiAdjScore >= 0 {
		out.AIAdjScore = aiAdjScore
	}
	if finalScore >= 0 {
		out.FinalScore = finalScore
	}
	return out
}

// WithReason returns a copy of the signal with an extra reason tag appended.
func (s Signal) WithReason(reason string) Signal {
	out := s
	out.Reasons = append(append([]string(nil), s.Reasons...), reason)
	return out
}

// PlannedOrder is the position plan produced by risk-aware sizing.
// Qty is always >= 1 when present in planner output.
type PlannedOrder struct {
	Symbol      string
	Side        string // BUY | SELL
	Qty         int
	Entry       float64
	Stop        float64
	ScaleOut    float64
	Target      float64
	TrailMode   string
	RiskContext map[string]float64
}

// Position is an open position reported by the execution collaborator.
// The core treats positions as read-only.
type Position struct {
	Symbol        string
	Side          Side
	Quantity      float64
	EntryPrice    float64
	Mark          float64
	UnrealizedPnL float64
}

// AIOverlay records the outcome of an optional AI gating evaluation.
type AIOverlay struct {
	Symbol    string
	Ts        time.Time
	Sentiment float64
	Regime    string
	Approved  bool
	Metadata  map[string]float64
}

// RiskEvent is structured risk telemetry persisted for auditing.
type RiskEvent struct {
	Ts      time.Time
	Session string
	Type    string
	Symbol  string
	Value   float64
	Meta    map[string]any
}

// EquitySnapshot is the latest equity telemetry known to the journal store.
type EquitySnapshot struct {
	StartingEquity float64
	RealizedPnL    float64
	UnrealizedPnL  float64
}

// Clamp01 bounds a score to [0,1].
func Clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
