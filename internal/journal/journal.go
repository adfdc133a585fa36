// Package journal flattens pipeline artifacts into store rows. It is the
// single write path for signals, AI provenance, risk events, cycle
// summaries, and equity telemetry.
package journal

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/osvelia/propulsion/internal/models"
	"github.com/osvelia/propulsion/internal/store"
)

type Journal struct {
	store store.Store
	log   zerolog.Logger
}

func New(st store.Store, log zerolog.Logger) *Journal {
	return &Journal{store: st, log: log.With().Str("component", "journal").Logger()}
}

// RecordSignal persists one scored signal. Reason tags are joined with
// newlines; rules and features are stored as JSON.
func (j *Journal) RecordSignal(ctx context.Context, signal models.Signal) error {
	rules, err := json.Marshal(signal.RulesPassed)
	if err != nil {
		return fmt.Errorf("marshal rules: %w", err)
	}
	feats, err := json.Marshal(signal.Features)
	if err != nil {
		return fmt.Errorf("marshal features: %w", err)
	}
	return j.store.RecordSignal(ctx, store.SignalRecord{
		Symbol:          signal.Symbol,
		RunTs:           signal.RunTs,
		CycleID:         signal.CycleID,
		BaseScore:       signal.BaseScore,
		AIAdjScore:      signal.AIAdjScore,
		FinalScore:      signal.FinalScore,
		Rank:            signal.Rank,
		ReasonsText:     strings.Join(signal.Reasons, "\n"),
		RulesPassedJSON: string(rules),
		FeaturesJSON:    string(feats),
	})
}

// RecordAI persists one overlay evaluation. The regime is stored as the
// provenance source and the approval bit becomes the label.
func (j *Journal) RecordAI(ctx context.Context, overlay models.AIOverlay) error {
	meta, err := json.Marshal(overlay.Metadata)
	if err != nil {
		return fmt.Errorf("marshal overlay metadata: %w", err)
	}
	label := "blocked"
	if overlay.Approved {
		label = "approved"
	}
	return j.store.RecordAIProvenance(ctx, store.AIProvenanceRecord{
		Symbol:         overlay.Symbol,
		RunTs:          overlay.Ts,
		Source:         overlay.Regime,
		SentimentScore: overlay.Sentiment,
		SentimentLabel: label,
		MetaJSON:       string(meta),
	})
}

// LogCycle writes the end-of-cycle summary payload.
func (j *Journal) LogCycle(ctx context.Context, payload map[string]any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal cycle payload: %w", err)
	}
	j.log.Debug().RawJSON("payload", body).Msg("cycle summary")
	return j.store.Log(ctx, "cycle", "Cycle summary", string(body))
}

func (j *Journal) RecordRiskEvent(ctx context.Context, event models.RiskEvent) error {
	return j.store.RecordRiskEvent(ctx, event)
}

func (j *Journal) RecordEquity(ctx context.Context, snap models.EquitySnapshot) error {
	return j.store.RecordEquity(ctx, snap)
}

func (j *Journal) LatestEquity(ctx context.Context) (models.EquitySnapshot, bool, error) {
	return j.store.LatestEquity(ctx)
}
