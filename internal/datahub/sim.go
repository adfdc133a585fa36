package datahub

import (
	"context"
	"hash/fnv"
	"math"
	"math/rand"
	"time"

	"github.com/osvelia/propulsion/internal/models"
)

// SimFeed generates deterministic synthetic bars and headlines so dry
// runs and tests exercise the full pipeline without a broker connection.
// The same symbol always produces the same series shape.
type SimFeed struct {
	nowFn func() time.Time
}

func NewSimFeed() *SimFeed {
	return &SimFeed{nowFn: time.Now}
}

func symbolSeed(symbol string) int64 {
	h := fnv.New64a()
	h.Write([]byte(symbol))
	return int64(h.Sum64())
}

// GetBars produces a gently trending random walk. Prices stay positive
// and volumes stay comfortably above the illiquidity floor.
func (f *SimFeed) GetBars(_ context.Context, symbol, timeframe string, lookback int) ([]models.Bar, error) {
	if lookback <= 0 {
		return nil, nil
	}
	rng := rand.New(rand.NewSource(symbolSeed(symbol)))
	step := timeframeStep(timeframe)
	end := f.nowFn().UTC().Truncate(step)

	price := 20 + rng.Float64()*180
	drift := (rng.Float64() - 0.35) * 0.001

	bars := make([]models.Bar, 0, lookback)
	for i := 0; i < lookback; i++ {
		move := price * (drift + (rng.Float64()-0.5)*0.004)
		open := price
		closePrice := math.Max(1, price+move)
		high := math.Max(open, closePrice) * (1 + rng.Float64()*0.001)
		low := math.Min(open, closePrice) * (1 - rng.Float64()*0.001)
		volume := 280_000 + rng.Float64()*400_000
		bars = append(bars, models.Bar{
			Symbol:    symbol,
			Timeframe: timeframe,
			Ts:        end.Add(-time.Duration(lookback-1-i) * step),
			Open:      open,
			High:      high,
			Low:       low,
			Close:     closePrice,
			Volume:    volume,
		})
		price = closePrice
	}
	return bars, nil
}

// GetQuotes returns the last synthetic close per symbol.
func (f *SimFeed) GetQuotes(ctx context.Context, symbols []string) (map[string]float64, error) {
	quotes := make(map[string]float64, len(symbols))
	for _, symbol := range symbols {
		bars, err := f.GetBars(ctx, symbol, "5m", 1)
		if err != nil || len(bars) == 0 {
			continue
		}
		quotes[symbol] = bars[len(bars)-1].Close
	}
	return quotes, nil
}

// GetHeadlines emits one recent synthetic headline for roughly half the
// symbols, deterministically chosen.
func (f *SimFeed) GetHeadlines(_ context.Context, symbols []string) ([]models.Headline, error) {
	now := f.nowFn().UTC()
	var headlines []models.Headline
	for _, symbol := range symbols {
		rng := rand.New(rand.NewSource(symbolSeed(symbol) ^ 0x5eed))
		if rng.Float64() < 0.5 {
			continue
		}
		headlines = append(headlines, models.Headline{
			Symbol:      symbol,
			Headline:    symbol + " announces quarterly update",
			Source:      "sim",
			Sentiment:   rng.Float64()*1.2 - 0.4,
			PublishedAt: now.Add(-time.Duration(30+rng.Intn(90)) * time.Minute),
		})
	}
	return headlines, nil
}

func timeframeStep(timeframe string) time.Duration {
	switch timeframe {
	case "1m":
		return time.Minute
	case "15m":
		return 15 * time.Minute
	default:
		return 5 * time.Minute
	}
}
