package datahub

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/osvelia/propulsion/internal/config"
	"github.com/osvelia/propulsion/internal/models"
)

type countingSource struct {
	calls int
	bars  []models.Bar
	err   error
}

func (s *countingSource) GetBars(_ context.Context, symbol, timeframe string, lookback int) ([]models.Bar, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return s.bars, nil
}

type mapCache struct {
	data map[string][]models.Bar
}

func newMapCache() *mapCache {
	return &mapCache{data: map[string][]models.Bar{}}
}

func (c *mapCache) Load(_ context.Context, symbol, timeframe string, lookback int) ([]models.Bar, error) {
	bars := c.data[timeframe+":"+symbol]
	if len(bars) > lookback {
		bars = bars[len(bars)-lookback:]
	}
	return bars, nil
}

func (c *mapCache) Store(_ context.Context, symbol, timeframe string, bars []models.Bar) error {
	c.data[timeframe+":"+symbol] = bars
	return nil
}

func seriesOf(symbol string, n int) []models.Bar {
	ts := time.Date(2025, 3, 12, 10, 0, 0, 0, time.UTC)
	bars := make([]models.Bar, n)
	for i := range bars {
		bars[i] = models.Bar{
			Symbol: symbol, Timeframe: "5m", Ts: ts.Add(time.Duration(i) * 5 * time.Minute),
			Open: 100, High: 101, Low: 99, Close: 100, Volume: 300_000,
		}
	}
	return bars
}

func testHub(source BarSource, cache BarCache, news []NewsSource) *Hub {
	return NewHub(config.Feeds{ThrottleRPS: 100}, source, nil, cache, news, zerolog.Nop())
}

func TestGetBarsServesFromCache(t *testing.T) {
	source := &countingSource{bars: seriesOf("NVDA", 60)}
	cache := newMapCache()
	hub := testHub(source, cache, nil)

	first := hub.GetBars(context.Background(), []string{"NVDA"}, "5m", 40)
	if len(first["NVDA"]) != 40 {
		t.Fatalf("bars = %d, want 40", len(first["NVDA"]))
	}
	if source.calls != 1 {
		t.Fatalf("source calls = %d, want 1", source.calls)
	}

	second := hub.GetBars(context.Background(), []string{"NVDA"}, "5m", 40)
	if len(second["NVDA"]) != 40 {
		t.Fatalf("bars = %d, want 40", len(second["NVDA"]))
	}
	if source.calls != 1 {
		t.Fatalf("cache hit should not refetch, calls = %d", source.calls)
	}
}

func TestGetBarsOmitsFailedSymbols(t *testing.T) {
	source := &countingSource{err: errors.New("feed down")}
	hub := testHub(source, NoopBarCache{}, nil)
	out := hub.GetBars(context.Background(), []string{"BAD"}, "5m", 40)
	if _, ok := out["BAD"]; ok {
		t.Fatal("failed symbol should be omitted")
	}
}

func TestMergeCatalystsDedupKeepsFreshest(t *testing.T) {
	now := time.Date(2025, 3, 12, 12, 0, 0, 0, time.UTC)
	streamA := []models.Headline{
		{Symbol: "NVDA", Headline: "earnings beat", Source: "rss", PublishedAt: now.Add(-2 * time.Hour)},
		{Symbol: "AMD", Headline: "guidance cut", Source: "rss", PublishedAt: now.Add(-1 * time.Hour)},
	}
	streamB := []models.Headline{
		{Symbol: "NVDA", Headline: "earnings beat", Source: "finnhub", Sentiment: 0.5, PublishedAt: now.Add(-30 * time.Minute)},
	}
	merged := MergeCatalysts(streamA, streamB)
	if len(merged) != 2 {
		t.Fatalf("merged = %d, want 2", len(merged))
	}
	if merged[0].Symbol != "NVDA" || merged[0].Source != "finnhub" {
		t.Fatalf("freshest copy not kept: %+v", merged[0])
	}
	if !merged[0].PublishedAt.After(merged[1].PublishedAt) {
		t.Fatal("merged headlines must be newest first")
	}
}

func TestGetHeadlinesGroupsBySymbol(t *testing.T) {
	hub := testHub(&countingSource{}, NoopBarCache{}, []NewsSource{NewYahooRSSClient(true)})
	out := hub.GetHeadlines(context.Background(), []string{"NVDA", "AMD"})
	if len(out) != 2 {
		t.Fatalf("grouped symbols = %d, want 2", len(out))
	}
	if len(out["NVDA"]) != 1 || out["NVDA"][0].Source != "yahoo_rss" {
		t.Fatalf("NVDA headlines = %+v", out["NVDA"])
	}
}

func TestSimFeedDeterministic(t *testing.T) {
	feed := NewSimFeed()
	fixed := time.Date(2025, 3, 12, 12, 0, 0, 0, time.UTC)
	feed.nowFn = func() time.Time { return fixed }

	first, err := feed.GetBars(context.Background(), "NVDA", "5m", 30)
	if err != nil {
		t.Fatalf("GetBars: %v", err)
	}
	second, _ := feed.GetBars(context.Background(), "NVDA", "5m", 30)
	if len(first) != 30 || len(second) != 30 {
		t.Fatalf("lengths = %d %d", len(first), len(second))
	}
	for i := range first {
		if first[i] != second[i] {
			t.Fatalf("bar %d differs", i)
		}
	}
	for _, bar := range first {
		if bar.Close <= 0 || bar.Volume < 250_000 {
			t.Fatalf("bar out of bounds: %+v", bar)
		}
	}
}
