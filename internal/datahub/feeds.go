package datahub

import (
	"context"
	"hash/fnv"
	"time"

	"github.com/osvelia/propulsion/internal/models"
)

func symbolHash(symbol string) uint64 {
	h := fnv.New64a()
	h.Write([]byte(symbol))
	return h.Sum64()
}

// FinnhubClient surfaces sentiment-tagged headlines. Disabled clients
// return nothing so the hub can always keep it in its source list.
type FinnhubClient struct {
	enabled bool
	nowFn   func() time.Time
}

func NewFinnhubClient(enabled bool) *FinnhubClient {
	return &FinnhubClient{enabled: enabled, nowFn: time.Now}
}

func (c *FinnhubClient) GetHeadlines(_ context.Context, symbols []string) ([]models.Headline, error) {
	if !c.enabled {
		return nil, nil
	}
	now := c.nowFn().UTC()
	var headlines []models.Headline
	for _, symbol := range symbols {
		h := symbolHash(symbol)
		if h%3 == 0 {
			continue
		}
		headlines = append(headlines, models.Headline{
			Symbol:      symbol,
			Headline:    symbol + " sentiment improves",
			Source:      "finnhub",
			Sentiment:   float64(h%100)/100 - 0.5,
			PublishedAt: now.Add(-15 * time.Minute),
		})
	}
	return headlines, nil
}

// YahooRSSClient returns one neutral entry per symbol.
type YahooRSSClient struct {
	enabled bool
	nowFn   func() time.Time
}

func NewYahooRSSClient(enabled bool) *YahooRSSClient {
	return &YahooRSSClient{enabled: enabled, nowFn: time.Now}
}

func (c *YahooRSSClient) GetHeadlines(_ context.Context, symbols []string) ([]models.Headline, error) {
	if !c.enabled {
		return nil, nil
	}
	now := c.nowFn().UTC()
	headlines := make([]models.Headline, 0, len(symbols))
	for _, symbol := range symbols {
		headlines = append(headlines, models.Headline{
			Symbol:      symbol,
			Headline:    symbol + " update",
			Source:      "yahoo_rss",
			Sentiment:   0,
			PublishedAt: now.Add(-45 * time.Minute),
		})
	}
	return headlines, nil
}
