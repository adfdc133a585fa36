// Package datahub unifies bar, quote, and catalyst access behind caching,
// throttling, and a circuit breaker so upstream feed trouble degrades the
// pipeline instead of failing it.
package datahub

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/osvelia/propulsion/internal/config"
	"github.com/osvelia/propulsion/internal/models"
	"github.com/osvelia/propulsion/internal/observ"
)

// BarSource fetches OHLCV series from an upstream feed.
type BarSource interface {
	GetBars(ctx context.Context, symbol, timeframe string, lookback int) ([]models.Bar, error)
}

// NewsSource fetches catalyst headlines for a set of symbols.
type NewsSource interface {
	GetHeadlines(ctx context.Context, symbols []string) ([]models.Headline, error)
}

// QuoteSource fetches last-trade quotes.
type QuoteSource interface {
	GetQuotes(ctx context.Context, symbols []string) (map[string]float64, error)
}

// BarCache stores fetched series so repeat cycles avoid upstream calls.
type BarCache interface {
	Load(ctx context.Context, symbol, timeframe string, lookback int) ([]models.Bar, error)
	Store(ctx context.Context, symbol, timeframe string, bars []models.Bar) error
}

// minBarFetch pads upstream fetches so the cache fills faster than the
// strategy consumes it.
const minBarFetch = 50

// Hub is the cycle-facing data access layer.
type Hub struct {
	bars    BarSource
	news    []NewsSource
	quotes  QuoteSource
	cache   BarCache
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker
	log     zerolog.Logger
}

func NewHub(cfg config.Feeds, bars BarSource, quotes QuoteSource, cache BarCache, news []NewsSource, log zerolog.Logger) *Hub {
	rps := cfg.ThrottleRPS
	if rps <= 0 {
		rps = 1
	}
	return &Hub{
		bars:   bars,
		news:   news,
		quotes: quotes,
		cache:  cache,
		limiter: rate.NewLimiter(rate.Limit(rps), rps),
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:    "bar-feed",
			Timeout: 30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 5
			},
		}),
		log: log.With().Str("component", "datahub").Logger(),
	}
}

// GetBars returns up to lookbackMin trailing bars per symbol. Cached runs
// long enough to cover the lookback are served without an upstream call.
// Symbols whose fetch fails are omitted rather than failing the batch.
func (h *Hub) GetBars(ctx context.Context, symbols []string, timeframe string, lookbackMin int) map[string][]models.Bar {
	out := make(map[string][]models.Bar, len(symbols))
	for _, symbol := range symbols {
		cached, err := h.cache.Load(ctx, symbol, timeframe, lookbackMin)
		if err != nil {
			h.log.Debug().Err(err).Str("symbol", symbol).Msg("bar cache load failed")
		}
		if len(cached) >= lookbackMin {
			out[symbol] = tail(cached, lookbackMin)
			observ.IncCounter("bars_cache_hits_total", nil)
			continue
		}

		fetched, err := h.fetchBars(ctx, symbol, timeframe, maxInt(lookbackMin, minBarFetch))
		if err != nil {
			h.log.Warn().Err(err).Str("symbol", symbol).Msg("bar fetch failed")
			observ.IncCounter("bars_fetch_errors_total", nil)
			continue
		}
		if err := h.cache.Store(ctx, symbol, timeframe, fetched); err != nil {
			h.log.Debug().Err(err).Str("symbol", symbol).Msg("bar cache store failed")
		}
		out[symbol] = tail(fetched, lookbackMin)
	}
	return out
}

func (h *Hub) fetchBars(ctx context.Context, symbol, timeframe string, lookback int) ([]models.Bar, error) {
	if err := h.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("throttle: %w", err)
	}
	result, err := h.breaker.Execute(func() (any, error) {
		return h.bars.GetBars(ctx, symbol, timeframe, lookback)
	})
	if err != nil {
		return nil, err
	}
	return result.([]models.Bar), nil
}

// GetQuotes passes through to the quote source under the shared throttle.
func (h *Hub) GetQuotes(ctx context.Context, symbols []string) (map[string]float64, error) {
	if h.quotes == nil {
		return map[string]float64{}, nil
	}
	if err := h.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("throttle: %w", err)
	}
	return h.quotes.GetQuotes(ctx, symbols)
}

// GetHeadlines merges every configured news source and groups the result
// by symbol. Every requested symbol has an entry, possibly empty.
func (h *Hub) GetHeadlines(ctx context.Context, symbols []string) map[string][]models.Headline {
	streams := make([][]models.Headline, 0, len(h.news))
	for _, source := range h.news {
		events, err := source.GetHeadlines(ctx, symbols)
		if err != nil {
			h.log.Warn().Err(err).Msg("headline fetch failed")
			continue
		}
		streams = append(streams, events)
	}
	merged := MergeCatalysts(streams...)
	bySymbol := make(map[string][]models.Headline, len(symbols))
	for _, symbol := range symbols {
		bySymbol[symbol] = nil
	}
	for _, headline := range merged {
		bySymbol[headline.Symbol] = append(bySymbol[headline.Symbol], headline)
	}
	return bySymbol
}

// MergeCatalysts deduplicates by (symbol, headline) keeping the freshest
// copy, and returns the result newest first.
func MergeCatalysts(streams ...[]models.Headline) []models.Headline {
	type key struct{ symbol, headline string }
	dedup := map[key]models.Headline{}
	for _, stream := range streams {
		for _, candidate := range stream {
			k := key{candidate.Symbol, candidate.Headline}
			existing, ok := dedup[k]
			if !ok || existing.PublishedAt.Before(candidate.PublishedAt) {
				dedup[k] = candidate
			}
		}
	}
	merged := make([]models.Headline, 0, len(dedup))
	for _, headline := range dedup {
		merged = append(merged, headline)
	}
	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].PublishedAt.After(merged[j].PublishedAt)
	})
	return merged
}

func tail(bars []models.Bar, n int) []models.Bar {
	if len(bars) > n {
		return bars[len(bars)-n:]
	}
	return bars
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
