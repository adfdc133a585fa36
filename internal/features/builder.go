// Package features converts raw bar series and catalyst headlines into the
// deterministic indicator set consumed by the strategy scorer. All
// computation is pure: no I/O and no mutation of inputs.
package features

import (
	"fmt"
	"math"
	"time"

	"github.com/osvelia/propulsion/internal/config"
	"github.com/osvelia/propulsion/internal/models"
)

// veryOldMinutes marks "no catalyst seen" in fresh_catalyst_minutes.
const veryOldMinutes = 1e9

// freshCatalystMaxMinutes bounds how old a headline may be and still count
// as a fresh catalyst.
const freshCatalystMaxMinutes = 120

// Snapshot is the immutable per-symbol feature set built once per cycle.
type Snapshot struct {
	Symbol       string
	Bars         []models.Bar
	Features     map[string]float64
	Catalysts    []models.Headline
	Fundamentals map[string]float64
}

// Builder computes indicator snapshots from bar series.
type Builder struct {
	cfg config.Strategy
}

func NewBuilder(cfg config.Strategy) *Builder {
	return &Builder{cfg: cfg}
}

// Build computes the full indicator map for one symbol. The caller skips
// symbols without bars, but an empty series still yields a well-defined
// all-defaults map. asOf anchors catalyst age so repeated runs over the
// same inputs are bit-identical.
func (b *Builder) Build(symbol string, bars []models.Bar, catalysts []models.Headline, fundamentals map[string]float64, asOf time.Time) Snapshot {
	feats := b.indicators(bars)

	for key, value := range fundamentals {
		feats[fmt.Sprintf("fund_%s", key)] = value
	}

	if len(catalysts) > 0 {
		var latest time.Time
		for _, event := range catalysts {
			if event.PublishedAt.After(latest) {
				latest = event.PublishedAt
			}
		}
		ageMinutes := math.Max(0, asOf.Sub(latest).Minutes())
		feats["fresh_catalyst_minutes"] = ageMinutes
		if ageMinutes <= freshCatalystMaxMinutes {
			feats["has_fresh_catalyst"] = 1
		} else {
			feats["has_fresh_catalyst"] = 0
		}
		total := 0.0
		for _, event := range catalysts {
			total += event.Sentiment
		}
		feats["avg_sentiment"] = total / float64(len(catalysts))
		feats["headline_count"] = float64(len(catalysts))
	} else {
		feats["fresh_catalyst_minutes"] = veryOldMinutes
		feats["has_fresh_catalyst"] = 0
		feats["avg_sentiment"] = 0
		feats["headline_count"] = 0
	}

	return Snapshot{
		Symbol:       symbol,
		Bars:         bars,
		Features:     feats,
		Catalysts:    catalysts,
		Fundamentals: fundamentals,
	}
}

func (b *Builder) indicators(bars []models.Bar) map[string]float64 {
	if len(bars) == 0 {
		return map[string]float64{
			"last_close":         0,
			"ema_fast":           0,
			"ema_slow":           0,
			"ema_bias":           0,
			"vwap":               0,
			"atr":                0,
			"rsi":                50,
			"volume_spike":       0,
			"consolidation":      0,
			"supertrend_bullish": 0,
			"spread_bp":          0,
			"avg_volume":         0,
		}
	}

	closes := make([]float64, len(bars))
	highs := make([]float64, len(bars))
	lows := make([]float64, len(bars))
	volumes := make([]float64, len(bars))
	for i, bar := range bars {
		closes[i] = bar.Close
		highs[i] = bar.High
		lows[i] = bar.Low
		volumes[i] = bar.Volume
	}
	lastClose := closes[len(closes)-1]

	spreadBp := 0.0
	if lastClose != 0 {
		spreadBp = math.Max(0, (highs[len(highs)-1]-lows[len(lows)-1])/lastClose*10_000)
	}

	supertrend := 0.0
	if b.supertrendBullish(bars) {
		supertrend = 1
	}

	return map[string]float64{
		"last_close":         lastClose,
		"ema_fast":           EMA(closes, b.cfg.EMAFast),
		"ema_slow":           EMA(closes, b.cfg.EMASlow),
		"ema_bias":           EMA(closes, maxInt(b.cfg.EMABias, 1)),
		"vwap":               VWAP(bars),
		"atr":                ATR(highs, lows, closes, 14),
		"rsi":                RSI(closes, 14),
		"volume_spike":       VolumeSpike(volumes, 20),
		"consolidation":      b.consolidation(highs, lows, lastClose),
		"supertrend_bullish": supertrend,
		"spread_bp":          spreadBp,
		"avg_volume":         mean(volumes),
	}
}

// EMA seeds with the first value and recursively blends with smoothing
// factor 2/(period+1).
func EMA(values []float64, period int) float64 {
	if len(values) == 0 {
		return 0
	}
	alpha := 2.0 / float64(period+1)
	ema := values[0]
	for _, v := range values[1:] {
		ema = alpha*v + (1-alpha)*ema
	}
	return ema
}

// VWAP is the volume-weighted average close over the whole series.
func VWAP(bars []models.Bar) float64 {
	var pv, vol float64
	for _, bar := range bars {
		pv += bar.Close * bar.Volume
		vol += bar.Volume
	}
	if vol == 0 {
		vol = 1
	}
	return pv / vol
}

// ATR averages the standard true range over the trailing window.
func ATR(highs, lows, closes []float64, period int) float64 {
	if len(closes) == 0 {
		return 0
	}
	trs := make([]float64, 0, len(closes))
	prevClose := closes[0]
	for i := range closes {
		tr := math.Max(highs[i]-lows[i], math.Max(math.Abs(highs[i]-prevClose), math.Abs(lows[i]-prevClose)))
		trs = append(trs, tr)
		prevClose = closes[i]
	}
	window := trs
	if len(trs) > period {
		window = trs[len(trs)-period:]
	}
	return mean(window)
}

// RSI uses the Wilder-style average-gain/average-loss ratio over the
// trailing window. Fewer than two closes yields the neutral 50; zero
// average loss yields 100.
func RSI(closes []float64, period int) float64 {
	if len(closes) < 2 {
		return 50
	}
	gains := make([]float64, 0, len(closes)-1)
	losses := make([]float64, 0, len(closes)-1)
	for i := 1; i < len(closes); i++ {
		delta := closes[i] - closes[i-1]
		if delta >= 0 {
			gains = append(gains, delta)
			losses = append(losses, 0)
		} else {
			gains = append(gains, 0)
			losses = append(losses, -delta)
		}
	}
	avgGain := tailMean(gains, period)
	avgLoss := tailMean(losses, period)
	if avgLoss == 0 {
		return 100
	}
	rs := avgGain / avgLoss
	return 100 - (100 / (1 + rs))
}

// VolumeSpike divides the last bar's volume by the average of the prior
// lookback window. Windows of one bar or a zero average yield 0.
func VolumeSpike(volumes []float64, lookback int) float64 {
	if len(volumes) == 0 {
		return 0
	}
	window := volumes
	if len(volumes) > lookback {
		window = volumes[len(volumes)-lookback:]
	}
	if len(window) <= 1 {
		return 0
	}
	avg := mean(window[:len(window)-1])
	if avg == 0 {
		return 0
	}
	return window[len(window)-1] / avg
}

func (b *Builder) consolidation(highs, lows []float64, lastClose float64) float64 {
	if len(highs) == 0 || len(lows) == 0 || lastClose == 0 {
		return 0
	}
	lookback := b.cfg.ConsolidationLookback
	hw := highs
	lw := lows
	if len(hw) > lookback {
		hw = hw[len(hw)-lookback:]
	}
	if len(lw) > lookback {
		lw = lw[len(lw)-lookback:]
	}
	high := hw[0]
	for _, v := range hw[1:] {
		high = math.Max(high, v)
	}
	low := lw[0]
	for _, v := range lw[1:] {
		low = math.Min(low, v)
	}
	return (high - low) / lastClose
}

func (b *Builder) supertrendBullish(bars []models.Bar) bool {
	if len(bars) == 0 || !b.cfg.EnableSupertrend {
		return false
	}
	highs := make([]float64, len(bars))
	lows := make([]float64, len(bars))
	closes := make([]float64, len(bars))
	for i, bar := range bars {
		highs[i] = bar.High
		lows[i] = bar.Low
		closes[i] = bar.Close
	}
	atr := ATR(highs, lows, closes, b.cfg.Supertrend.ATRPeriod)
	last := bars[len(bars)-1]
	hl2 := (last.High + last.Low) / 2
	return last.Close >= hl2-b.cfg.Supertrend.ATRMult*atr
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

func tailMean(values []float64, period int) float64 {
	window := values
	if len(values) > period {
		window = values[len(values)-period:]
	}
	if len(window) == 0 {
		return 0
	}
	return mean(window)
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
