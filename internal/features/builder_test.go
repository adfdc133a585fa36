package features

import (
	"math"
	"testing"
	"time"

	"github.com/osvelia/propulsion/internal/config"
	"github.com/osvelia/propulsion/internal/models"
)

func testStrategyConfig() config.Strategy {
	return config.Strategy{
		EMAFast:               9,
		EMASlow:               21,
		EMABias:               50,
		VolSpikeMultiple:      1.5,
		ConsolidationLookback: 20,
		Supertrend:            config.Supertrend{ATRPeriod: 10, ATRMult: 3},
	}
}

func makeBars(symbol string, closes []float64, volume float64) []models.Bar {
	ts := time.Date(2025, 3, 12, 10, 0, 0, 0, time.UTC)
	bars := make([]models.Bar, len(closes))
	for i, c := range closes {
		bars[i] = models.Bar{
			Symbol:    symbol,
			Timeframe: "5m",
			Ts:        ts.Add(time.Duration(i) * 5 * time.Minute),
			Open:      c * 0.999,
			High:      c * 1.002,
			Low:       c * 0.998,
			Close:     c,
			Volume:    volume,
		}
	}
	return bars
}

func TestBuildEmptySeriesDefaults(t *testing.T) {
	b := NewBuilder(testStrategyConfig())
	snap := b.Build("AAPL", nil, nil, nil, time.Now().UTC())
	if snap.Features["rsi"] != 50 {
		t.Fatalf("rsi default = %v, want 50", snap.Features["rsi"])
	}
	for _, key := range []string{"last_close", "ema_fast", "vwap", "atr", "volume_spike", "spread_bp", "avg_volume"} {
		if snap.Features[key] != 0 {
			t.Errorf("%s = %v, want 0", key, snap.Features[key])
		}
	}
	if snap.Features["fresh_catalyst_minutes"] != 1e9 {
		t.Errorf("fresh_catalyst_minutes = %v", snap.Features["fresh_catalyst_minutes"])
	}
}

func TestBuildIsDeterministic(t *testing.T) {
	b := NewBuilder(testStrategyConfig())
	bars := makeBars("MSFT", []float64{100, 101, 102, 101.5, 103, 104}, 400_000)
	asOf := time.Date(2025, 3, 12, 12, 0, 0, 0, time.UTC)
	first := b.Build("MSFT", bars, nil, nil, asOf)
	second := b.Build("MSFT", bars, nil, nil, asOf)
	for key, value := range first.Features {
		if second.Features[key] != value {
			t.Fatalf("%s differs across builds: %v vs %v", key, value, second.Features[key])
		}
	}
}

func TestRSIBounds(t *testing.T) {
	if got := RSI([]float64{100}, 14); got != 50 {
		t.Fatalf("single close RSI = %v, want 50", got)
	}
	up := []float64{100, 101, 102, 103, 104, 105}
	if got := RSI(up, 14); got != 100 {
		t.Fatalf("monotone up RSI = %v, want 100", got)
	}
	down := []float64{105, 104, 103, 102, 101, 100}
	if got := RSI(down, 14); math.Abs(got) > 1e-9 {
		t.Fatalf("monotone down RSI = %v, want 0", got)
	}
	mixed := []float64{100, 102, 101, 103, 102, 104}
	rsi := RSI(mixed, 14)
	if rsi <= 0 || rsi >= 100 {
		t.Fatalf("mixed RSI = %v, want in (0, 100)", rsi)
	}
}

func TestEMASeedsWithFirstClose(t *testing.T) {
	if got := EMA([]float64{42}, 9); got != 42 {
		t.Fatalf("EMA of single value = %v, want 42", got)
	}
	series := []float64{100, 110}
	want := 2.0/10*110 + 8.0/10*100
	if got := EMA(series, 9); math.Abs(got-want) > 1e-9 {
		t.Fatalf("EMA = %v, want %v", got, want)
	}
}

func TestVWAPZeroVolumeGuard(t *testing.T) {
	bars := makeBars("XYZ", []float64{50, 51}, 0)
	if got := VWAP(bars); got != 0 {
		t.Fatalf("VWAP with zero volume = %v, want 0", got)
	}
}

func TestVolumeSpike(t *testing.T) {
	if got := VolumeSpike([]float64{1000}, 20); got != 0 {
		t.Fatalf("single bar spike = %v, want 0", got)
	}
	volumes := []float64{100, 100, 100, 100, 300}
	if got := VolumeSpike(volumes, 20); math.Abs(got-3) > 1e-9 {
		t.Fatalf("spike = %v, want 3", got)
	}
	if got := VolumeSpike([]float64{0, 0, 0, 500}, 20); got != 0 {
		t.Fatalf("zero-average spike = %v, want 0", got)
	}
}

func TestCatalystFeatures(t *testing.T) {
	b := NewBuilder(testStrategyConfig())
	asOf := time.Date(2025, 3, 12, 12, 0, 0, 0, time.UTC)
	bars := makeBars("NVDA", []float64{100, 101, 102}, 500_000)
	catalysts := []models.Headline{
		{Symbol: "NVDA", Headline: "older", Sentiment: -0.4, PublishedAt: asOf.Add(-3 * time.Hour)},
		{Symbol: "NVDA", Headline: "fresh", Sentiment: 0.6, PublishedAt: asOf.Add(-40 * time.Minute)},
	}
	snap := b.Build("NVDA", bars, catalysts, nil, asOf)

	if got := snap.Features["fresh_catalyst_minutes"]; math.Abs(got-40) > 1e-6 {
		t.Fatalf("fresh_catalyst_minutes = %v, want 40", got)
	}
	if snap.Features["has_fresh_catalyst"] != 1 {
		t.Fatalf("has_fresh_catalyst = %v, want 1", snap.Features["has_fresh_catalyst"])
	}
	if got := snap.Features["avg_sentiment"]; math.Abs(got-0.1) > 1e-9 {
		t.Fatalf("avg_sentiment = %v, want 0.1", got)
	}
	if snap.Features["headline_count"] != 2 {
		t.Fatalf("headline_count = %v, want 2", snap.Features["headline_count"])
	}
}

func TestStaleCatalystNotFresh(t *testing.T) {
	b := NewBuilder(testStrategyConfig())
	asOf := time.Date(2025, 3, 12, 12, 0, 0, 0, time.UTC)
	bars := makeBars("AMD", []float64{100, 101}, 500_000)
	catalysts := []models.Headline{
		{Symbol: "AMD", Headline: "old news", Sentiment: 0.2, PublishedAt: asOf.Add(-5 * time.Hour)},
	}
	snap := b.Build("AMD", bars, catalysts, nil, asOf)
	if snap.Features["has_fresh_catalyst"] != 0 {
		t.Fatal("five hour old headline should not be fresh")
	}
}

func TestFundamentalsPrefixed(t *testing.T) {
	b := NewBuilder(testStrategyConfig())
	bars := makeBars("TSLA", []float64{200, 201}, 500_000)
	snap := b.Build("TSLA", bars, nil, map[string]float64{"pe_ratio": 31.5}, time.Now().UTC())
	if snap.Features["fund_pe_ratio"] != 31.5 {
		t.Fatalf("fund_pe_ratio = %v", snap.Features["fund_pe_ratio"])
	}
}

func TestSpreadBasisPoints(t *testing.T) {
	b := NewBuilder(testStrategyConfig())
	bars := []models.Bar{{
		Symbol: "IBM", Timeframe: "5m", Ts: time.Now().UTC(),
		Open: 100, High: 101, Low: 100, Close: 100, Volume: 500_000,
	}}
	snap := b.Build("IBM", bars, nil, nil, time.Now().UTC())
	if got := snap.Features["spread_bp"]; math.Abs(got-100) > 1e-6 {
		t.Fatalf("spread_bp = %v, want 100", got)
	}
}
