package execution

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// OrderRequest is a broker-neutral order submission.
type OrderRequest struct {
	Symbol     string
	Action     string // BUY | SELL
	Quantity   float64
	LimitPrice float64
	StopPrice  float64
}

// Executor submits orders to a broker or a simulation of one.
type Executor interface {
	Submit(ctx context.Context, req OrderRequest) (string, error)
	CancelAll(ctx context.Context) error
	DryRun() bool
}

// DryRunExecutor logs would-be orders without submitting anywhere.
type DryRunExecutor struct {
	log zerolog.Logger
}

func NewDryRunExecutor(log zerolog.Logger) *DryRunExecutor {
	return &DryRunExecutor{log: log.With().Str("component", "executor").Bool("dry_run", true).Logger()}
}

func (e *DryRunExecutor) Submit(_ context.Context, req OrderRequest) (string, error) {
	orderID := fmt.Sprintf("DRY-%s-%s-%s", req.Symbol, req.Action, uuid.NewString()[:8])
	e.log.Info().
		Str("symbol", req.Symbol).
		Str("action", req.Action).
		Float64("qty", req.Quantity).
		Float64("limit", req.LimitPrice).
		Float64("stop", req.StopPrice).
		Msg("dry run order")
	return orderID, nil
}

func (e *DryRunExecutor) CancelAll(context.Context) error {
	e.log.Info().Msg("dry run: cancel all orders noop")
	return nil
}

func (e *DryRunExecutor) DryRun() bool { return true }
