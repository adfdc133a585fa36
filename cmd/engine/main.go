package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/osvelia/propulsion/internal/ai"
	"github.com/osvelia/propulsion/internal/config"
	"github.com/osvelia/propulsion/internal/datahub"
	"github.com/osvelia/propulsion/internal/execution"
	"github.com/osvelia/propulsion/internal/features"
	"github.com/osvelia/propulsion/internal/journal"
	"github.com/osvelia/propulsion/internal/logging"
	"github.com/osvelia/propulsion/internal/marketclock"
	"github.com/osvelia/propulsion/internal/observ"
	"github.com/osvelia/propulsion/internal/orchestrator"
	"github.com/osvelia/propulsion/internal/risk"
	"github.com/osvelia/propulsion/internal/store"
	"github.com/osvelia/propulsion/internal/strategy"
)

func main() {
	configPath := flag.String("config", "config/engine.yaml", "path to engine config")
	oneShot := flag.Bool("once", false, "run a single cycle and exit")
	flag.Parse()

	if err := run(*configPath, *oneShot); err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintln(os.Stderr, "engine:", err)
		os.Exit(1)
	}
}

func run(configPath string, oneShot bool) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	log := logging.New(cfg.Logging)
	log.Info().Str("config", configPath).Bool("dry_run", cfg.Orchestrator.StartWithDryRun).Msg("engine starting")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var st store.Store
	if cfg.Database.DSN != "" {
		pg, err := store.Open(ctx, cfg.Database.DSN)
		if err != nil {
			return err
		}
		st = pg
	} else {
		log.Warn().Msg("no database configured, journaling in memory")
		st = store.NewMemory()
	}
	defer st.Close()

	clock, err := marketclock.FromConfig(cfg.Orchestrator)
	if err != nil {
		return err
	}

	var cache datahub.BarCache = datahub.NoopBarCache{}
	if cfg.Redis.Enabled {
		redisCache := datahub.NewRedisBarCache(cfg.Redis)
		if err := redisCache.Ping(ctx); err != nil {
			return fmt.Errorf("redis ping: %w", err)
		}
		defer redisCache.Close()
		cache = redisCache
	}

	feed := datahub.NewSimFeed()
	news := []datahub.NewsSource{
		datahub.NewYahooRSSClient(cfg.Feeds.EnableRSS),
		datahub.NewFinnhubClient(cfg.Feeds.EnableFinnhub),
	}
	hub := datahub.NewHub(cfg.Feeds, feed, feed, cache, news, log)

	var executor execution.Executor
	if cfg.Orchestrator.StartWithDryRun || !cfg.Execution.EnableOrders {
		executor = execution.NewDryRunExecutor(log)
	} else {
		paper, err := execution.NewPaperExecutor(cfg.Execution.OutboxPath, log)
		if err != nil {
			return err
		}
		executor = paper
	}

	jnl := journal.New(st, log)
	riskMgr := risk.NewManager(cfg.Risk, jnl, log)
	planner := execution.NewPlanner(cfg.Risk, cfg.Execution, jnl, log)
	trades := execution.NewManager(st, executor, log)
	builder := features.NewBuilder(cfg.Strategy)
	scorer := strategy.NewScorer(cfg.Strategy, cfg.Risk)

	var gating *ai.Gating
	if cfg.AI.EnableGating {
		gating = ai.NewGating()
	}

	engine := orchestrator.NewEngine(
		cfg, st, hub, builder, scorer, riskMgr, planner, trades, jnl,
		gating, execution.NewTradePositions(st, hub), clock, log,
	)

	if cfg.Metrics.Enabled {
		go func() {
			if err := observ.Serve(cfg.Metrics.Addr); err != nil {
				log.Error().Err(err).Msg("metrics server")
			}
		}()
	}

	if oneShot {
		positions, err := execution.NewTradePositions(st, hub).OpenPositions(ctx)
		if err != nil {
			return err
		}
		result, err := engine.RunCycle(ctx, "adhoc", positions)
		if err != nil {
			return err
		}
		log.Info().Interface("summary", result.Summary).Msg("cycle complete")
		return nil
	}

	return engine.Run(ctx)
}
