package strategy

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/osvelia/propulsion/internal/config"
	"github.com/osvelia/propulsion/internal/features"
)

func testConfigs() (config.Strategy, config.Risk) {
	strat := config.Strategy{
		EMAFast:          9,
		EMASlow:          21,
		EMABias:          50,
		VWAPRequired:     true,
		VolSpikeMultiple: 1.5,
		CatalystRequired: true,
	}
	riskCfg := config.Risk{
		RiskPerTradePct:  1.0,
		SpreadPenaltyBp:  50,
		EarningsBlackout: true,
		AccountEquity:    100_000,
	}
	return strat, riskCfg
}

func snapshotWith(symbol string, feats map[string]float64) features.Snapshot {
	return features.Snapshot{Symbol: symbol, Features: feats}
}

func bullishFeatures() map[string]float64 {
	return map[string]float64{
		"last_close":             100,
		"ema_fast":               101,
		"ema_slow":               100,
		"ema_bias":               99,
		"vwap":                   99.5,
		"atr":                    1.5,
		"volume_spike":           2.5,
		"consolidation":          0.02,
		"has_fresh_catalyst":     1,
		"fresh_catalyst_minutes": 45,
		"avg_sentiment":          0.3,
		"spread_bp":              0,
		"avg_volume":             500_000,
	}
}

func TestScoreAllRulesPass(t *testing.T) {
	strat, riskCfg := testConfigs()
	scorer := NewScorer(strat, riskCfg)

	decisions := scorer.Evaluate([]features.Snapshot{snapshotWith("NVDA", bullishFeatures())}, "c1")
	require.Len(t, decisions, 1)
	sig := decisions[0].Signal

	// 0.35 + 0.2 + 0.2 + min(0.25, (2.5-1.5)*0.1) + 0.15 + 0.15 = 1.15, clamped
	require.Equal(t, 1.0, sig.BaseScore)
	require.Equal(t, sig.BaseScore, sig.FinalScore)
	require.True(t, sig.RulesPassed["ema_trend"])
	require.True(t, sig.RulesPassed["above_vwap"])
	require.True(t, sig.RulesPassed["volume_spike"])
	require.Contains(t, sig.Reasons, "ema_fast_gt_slow")
	require.Contains(t, sig.Reasons, "fresh_catalyst")
	require.Equal(t, 100.0, sig.EntryHint)
	require.Equal(t, 98.5, sig.StopHint)
}

func TestScoreClampedToZero(t *testing.T) {
	strat, riskCfg := testConfigs()
	scorer := NewScorer(strat, riskCfg)

	feats := map[string]float64{
		"last_close":             100,
		"ema_fast":               99,
		"ema_slow":               100,
		"ema_bias":               101,
		"vwap":                   101,
		"consolidation":          0.1,
		"fresh_catalyst_minutes": 1e9,
		"avg_sentiment":          -0.6,
		"spread_bp":              80,
	}
	decisions := scorer.Evaluate([]features.Snapshot{snapshotWith("XYZ", feats)}, "c1")
	sig := decisions[0].Signal
	require.Equal(t, 0.0, sig.BaseScore)
	require.False(t, sig.RulesPassed["ema_trend"])
	require.False(t, sig.RulesPassed["sentiment"])
	require.False(t, sig.RulesPassed["tight_spread"])
}

func TestVolumeSpikeBonusCapped(t *testing.T) {
	strat, riskCfg := testConfigs()
	strat.VWAPRequired = false
	strat.CatalystRequired = false
	scorer := NewScorer(strat, riskCfg)

	feats := map[string]float64{
		"last_close":             100,
		"ema_fast":               101,
		"ema_slow":               100,
		"ema_bias":               101,
		"volume_spike":           10,
		"consolidation":          0.1,
		"fresh_catalyst_minutes": 1e9,
	}
	decisions := scorer.Evaluate([]features.Snapshot{snapshotWith("SPK", feats)}, "c1")
	// 0.35 + min(0.25, (10-1.5)*0.1) = 0.6
	require.InDelta(t, 0.6, decisions[0].Signal.BaseScore, 1e-9)
}

func TestEarningsBlackoutPenalty(t *testing.T) {
	strat, riskCfg := testConfigs()
	scorer := NewScorer(strat, riskCfg)

	feats := bullishFeatures()
	feats["volume_spike"] = 0
	feats["consolidation"] = 0.1
	feats["fresh_catalyst_minutes"] = 10
	withPenalty := scorer.Evaluate([]features.Snapshot{snapshotWith("ERN", feats)}, "c1")[0].Signal
	require.False(t, withPenalty.RulesPassed["earnings_blackout"])

	feats2 := bullishFeatures()
	feats2["volume_spike"] = 0
	feats2["consolidation"] = 0.1
	clean := scorer.Evaluate([]features.Snapshot{snapshotWith("ERN", feats2)}, "c1")[0].Signal
	require.InDelta(t, 0.2, clean.BaseScore-withPenalty.BaseScore, 1e-9)
}

func TestRankingIsStableAndContiguous(t *testing.T) {
	strat, riskCfg := testConfigs()
	scorer := NewScorer(strat, riskCfg)

	weak := map[string]float64{
		"last_close": 100, "ema_fast": 99, "ema_slow": 100, "ema_bias": 101,
		"vwap": 101, "consolidation": 0.1, "fresh_catalyst_minutes": 1e9,
	}
	batch := []features.Snapshot{
		snapshotWith("LOW1", weak),
		snapshotWith("HIGH", bullishFeatures()),
		snapshotWith("LOW2", weak),
	}
	decisions := scorer.Evaluate(batch, "c1")
	require.Equal(t, "HIGH", decisions[0].Signal.Symbol)
	require.Equal(t, 1, decisions[0].Signal.Rank)
	require.Equal(t, 2, decisions[1].Signal.Rank)
	require.Equal(t, 3, decisions[2].Signal.Rank)
	// equal scores keep input order
	require.Equal(t, "LOW1", decisions[1].Signal.Symbol)
	require.Equal(t, "LOW2", decisions[2].Signal.Symbol)
}

func TestIntentNilOnBadHints(t *testing.T) {
	strat, riskCfg := testConfigs()
	scorer := NewScorer(strat, riskCfg)

	feats := bullishFeatures()
	feats["last_close"] = 0
	decisions := scorer.Evaluate([]features.Snapshot{snapshotWith("NOPX", feats)}, "c1")
	require.Nil(t, decisions[0].Intent)
}

func TestIntentSideFromScore(t *testing.T) {
	strat, riskCfg := testConfigs()
	scorer := NewScorer(strat, riskCfg)

	strong := scorer.Evaluate([]features.Snapshot{snapshotWith("UP", bullishFeatures())}, "c1")[0]
	require.NotNil(t, strong.Intent)
	require.Equal(t, "long", string(strong.Intent.Side))
	require.InDelta(t, 1000.0/1.5, strong.Intent.Quantity, 1e-9)
	require.InDelta(t, 103.0, strong.Intent.Target, 1e-9)

	weak := map[string]float64{
		"last_close": 100, "ema_fast": 99, "ema_slow": 100, "ema_bias": 101,
		"vwap": 101, "atr": 1, "consolidation": 0.1, "fresh_catalyst_minutes": 1e9,
	}
	down := scorer.Evaluate([]features.Snapshot{snapshotWith("DN", weak)}, "c1")[0]
	require.NotNil(t, down.Intent)
	require.Equal(t, "short", string(down.Intent.Side))
	require.InDelta(t, 98.0, down.Intent.Target, 1e-9)
}

func TestStopHintFallbackWithoutATR(t *testing.T) {
	strat, riskCfg := testConfigs()
	scorer := NewScorer(strat, riskCfg)
	feats := bullishFeatures()
	feats["atr"] = 0
	sig := scorer.Evaluate([]features.Snapshot{snapshotWith("NOATR", feats)}, "c1")[0].Signal
	require.True(t, math.Abs(sig.StopHint-99) < 1e-9)
}
