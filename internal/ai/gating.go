// Package ai layers optional sentiment and regime overlays on top of the
// rule scorer. Models here are deterministic stubs with the same shape a
// hosted model integration would have.
package ai

import (
	"context"
	"encoding/json"
	"math"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/osvelia/propulsion/internal/models"
	"github.com/osvelia/propulsion/internal/store"
)

// SentimentModel scores headline text in [-1, 1]. The stub hashes the
// text so runs are reproducible without a model endpoint.
type SentimentModel struct{}

func (SentimentModel) Score(text string) float64 {
	if text == "" {
		return 0
	}
	sum := 0
	for _, ch := range text {
		sum += int(ch)
	}
	val := float64(sum%100)/50 - 1
	return math.Max(-1, math.Min(1, val))
}

// RegimeModel classifies the market regime from volatility features.
type RegimeModel struct{}

func (RegimeModel) Classify(features map[string]float64) string {
	vol := features["volatility"]
	atr := features["atr"]
	denom := atr
	if denom == 0 {
		denom = 1
	}
	if vol > 2*denom {
		return "volatile"
	}
	if vol < math.Max(0.5, atr*0.5) {
		return "calm"
	}
	return "normal"
}

// Gating combines sentiment and regime models into an approval overlay.
type Gating struct {
	sentiment SentimentModel
	regime    RegimeModel
}

func NewGating() *Gating {
	return &Gating{}
}

// Evaluate produces the overlay for one signal. Approval is withheld when
// a required condition fails; the overlay is always journaled regardless.
func (g *Gating) Evaluate(symbol string, signal models.Signal, catalysts []models.Headline, features map[string]float64, requirePositiveSentiment, requireFavorableRegime bool) models.AIOverlay {
	sentiment := 0.0
	if len(catalysts) > 0 {
		for _, event := range catalysts {
			sentiment += g.sentiment.Score(event.Headline)
		}
		sentiment /= float64(len(catalysts))
	}
	regime := g.regime.Classify(features)

	approved := true
	if requirePositiveSentiment && sentiment <= 0 {
		approved = false
	}
	if requireFavorableRegime && regime == "volatile" && math.Abs(features["volatility"]) > 2 {
		approved = false
	}

	return models.AIOverlay{
		Symbol:    symbol,
		Ts:        time.Now().UTC(),
		Sentiment: sentiment,
		Regime:    regime,
		Approved:  approved,
		Metadata: map[string]float64{
			"sentiment":          sentiment,
			"signal_base_score":  signal.BaseScore,
			"signal_final_score": signal.FinalScore,
		},
	}
}

// ProvenanceSink receives the audit record for every score adjustment.
type ProvenanceSink interface {
	RecordAIProvenance(ctx context.Context, rec store.AIProvenanceRecord) error
}

// weakSetupThreshold is the base score below which a strongly negative
// decayed sentiment soft-vetoes the signal.
const weakSetupThreshold = 0.55

func decaySentiment(raw, ageMinutes, decayHours float64) float64 {
	halfLifeMinutes := math.Max(1, decayHours*60)
	return raw * math.Exp(-ageMinutes/halfLifeMinutes)
}

// AdjustScores applies decayed headline sentiment to every signal and
// journals provenance for each adjustment. Signals come back as copies;
// the input slice is never mutated.
func AdjustScores(ctx context.Context, signals []models.Signal, sink ProvenanceSink, decayHours float64, minHeadlines int) []models.Signal {
	adjusted := make([]models.Signal, 0, len(signals))
	for _, signal := range signals {
		feats := signal.Features
		avgSentiment := feats["avg_sentiment"]
		ageMinutes := feats["fresh_catalyst_minutes"]
		headlineCount := int(feats["headline_count"])

		decayed := decaySentiment(avgSentiment, ageMinutes, decayHours)
		if headlineCount < minHeadlines {
			decayed *= 0.5
		}

		var aiAdj float64
		updated := signal
		sentimentLabel := "neutral"
		if decayed < -0.4 && signal.BaseScore <= weakSetupThreshold {
			aiAdj = math.Max(0, signal.BaseScore*0.4)
			updated = signal.WithReason("ai_soft_veto")
			sentimentLabel = "soft_veto"
		} else {
			aiAdj = models.Clamp01(signal.BaseScore + decayed*0.1)
			switch {
			case decayed > 0:
				sentimentLabel = "bullish"
			case decayed < 0:
				sentimentLabel = "bearish"
			}
		}

		updated = updated.WithScores(aiAdj, aiAdj)
		adjusted = append(adjusted, updated)

		meta, _ := json.Marshal(map[string]float64{
			"raw_sentiment":  avgSentiment,
			"decayed":        decayed,
			"age_minutes":    ageMinutes,
			"headline_count": float64(headlineCount),
			"base_score":     signal.BaseScore,
			"ai_adj_score":   aiAdj,
		})
		if err := sink.RecordAIProvenance(ctx, store.AIProvenanceRecord{
			Symbol:         signal.Symbol,
			RunTs:          signal.RunTs,
			Source:         "finbert",
			SentimentScore: decayed,
			SentimentLabel: sentimentLabel,
			MetaJSON:       string(meta),
		}); err != nil {
			log.Error().Err(err).Str("symbol", signal.Symbol).Msg("record ai provenance")
		}
	}
	return adjusted
}
