package execution

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// OutboxOrder is one paper order as persisted to the JSONL outbox.
type OutboxOrder struct {
	ID         string    `json:"id"`
	Symbol     string    `json:"symbol"`
	Action     string    `json:"action"`
	Quantity   float64   `json:"quantity"`
	LimitPrice float64   `json:"limit_price,omitempty"`
	StopPrice  float64   `json:"stop_price,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
	Status     string    `json:"status"`
}

type outboxEntry struct {
	Type  string    `json:"type"`
	Data  any       `json:"data"`
	Event time.Time `json:"event"`
}

// PaperExecutor appends orders to an append-only JSONL file so paper
// sessions can be replayed and audited. Submissions are serialized so
// concurrent callers never interleave lines.
type PaperExecutor struct {
	mu   sync.Mutex
	path string
	log  zerolog.Logger
}

func NewPaperExecutor(path string, log zerolog.Logger) (*PaperExecutor, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create outbox dir: %w", err)
	}
	return &PaperExecutor{
		path: path,
		log:  log.With().Str("component", "executor").Str("mode", "paper").Logger(),
	}, nil
}

func (e *PaperExecutor) Submit(_ context.Context, req OrderRequest) (string, error) {
	order := OutboxOrder{
		ID:         uuid.NewString(),
		Symbol:     req.Symbol,
		Action:     req.Action,
		Quantity:   req.Quantity,
		LimitPrice: req.LimitPrice,
		StopPrice:  req.StopPrice,
		Timestamp:  time.Now().UTC(),
		Status:     "accepted",
	}
	if err := e.append(outboxEntry{Type: "order", Data: order, Event: order.Timestamp}); err != nil {
		return "", err
	}
	e.log.Info().Str("symbol", req.Symbol).Str("action", req.Action).Float64("qty", req.Quantity).Str("order_id", order.ID).Msg("paper order accepted")
	return order.ID, nil
}

func (e *PaperExecutor) CancelAll(_ context.Context) error {
	return e.append(outboxEntry{Type: "cancel_all", Data: nil, Event: time.Now().UTC()})
}

func (e *PaperExecutor) DryRun() bool { return false }

func (e *PaperExecutor) append(entry outboxEntry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal outbox entry: %w", err)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	f, err := os.OpenFile(e.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open outbox: %w", err)
	}
	defer f.Close()
	if _, err := f.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("append outbox: %w", err)
	}
	return nil
}
