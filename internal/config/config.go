package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type Orchestrator struct {
	Timezone        string `yaml:"timezone"`
	CadenceMin      int    `yaml:"cadence_min"`
	IntradayTopN    int    `yaml:"intraday_top_n"`
	MarketOpen      string `yaml:"market_open"`  // HH:MM local
	MarketClose     string `yaml:"market_close"` // HH:MM local
	FlattenTime     string `yaml:"flatten_time"` // HH:MM local, clamped to close
	StartWithDryRun bool   `yaml:"start_with_dry_run"`
}

type Risk struct {
	EnableLimits            bool    `yaml:"enable_limits"`
	RiskPerTradePct         float64 `yaml:"risk_per_trade_pct"`
	DailyTradeCap           int     `yaml:"daily_trade_cap"`
	DailyDrawdownHaltPct    float64 `yaml:"daily_drawdown_halt_pct"`
	MinTickBuffer           float64 `yaml:"min_tick_buffer"`
	MaxPositionValuePct     float64 `yaml:"max_position_value_pct"`
	MaxPortfolioExposurePct float64 `yaml:"max_portfolio_exposure_pct"`
	EarningsBlackout        bool    `yaml:"earnings_blackout"`
	EarningsBlackoutMode    string  `yaml:"earnings_blackout_mode"` // cap | veto
	SpreadPenaltyBp         float64 `yaml:"spread_penalty_bp"`
	IlliquidityVeto         bool    `yaml:"illiquidity_veto"`
	AccountEquity           float64 `yaml:"account_equity"`
}

type Execution struct {
	EnableOrders         bool    `yaml:"enable_orders"`
	ScaleOutAtRMultiple  float64 `yaml:"scale_out_at_r_multiple"`
	FinalTargetRMultiple float64 `yaml:"final_target_r_multiple"`
	TrailMode            string  `yaml:"trail_mode"` // ema21 | atr | none
	ATRTrailMult         float64 `yaml:"atr_trail_mult"`
	OutboxPath           string  `yaml:"outbox_path"`
}

type Supertrend struct {
	ATRPeriod int     `yaml:"atr_period"`
	ATRMult   float64 `yaml:"atr_mult"`
}

type Strategy struct {
	EMAFast               int        `yaml:"ema_fast"`
	EMASlow               int        `yaml:"ema_slow"`
	EMABias               int        `yaml:"ema_bias"`
	VWAPRequired          bool       `yaml:"vwap_required"`
	VolSpikeMultiple      float64    `yaml:"vol_spike_multiple"`
	ConsolidationLookback int        `yaml:"consolidation_lookback"`
	CatalystRequired      bool       `yaml:"catalyst_required"`
	EnableSupertrend      bool       `yaml:"enable_supertrend"`
	Supertrend            Supertrend `yaml:"supertrend"`
}

type Finbert struct {
	Enable       bool    `yaml:"enable"`
	MinHeadlines int     `yaml:"min_headlines"`
	DecayHours   float64 `yaml:"decay_hours"`
}

type AI struct {
	EnableGating             bool    `yaml:"enable_gating"`
	RequirePositiveSentiment bool    `yaml:"require_positive_sentiment"`
	RequireFavorableRegime   bool    `yaml:"require_favorable_regime"`
	Finbert                  Finbert `yaml:"finbert"`
}

type Feeds struct {
	ThrottleRPS   int  `yaml:"throttle_rps"`
	EnableFinnhub bool `yaml:"enable_finnhub"`
	EnableRSS     bool `yaml:"enable_rss"`
}

type Database struct {
	DSN string `yaml:"dsn"`
}

type Redis struct {
	Enabled  bool   `yaml:"enabled"`
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	TTLMin   int    `yaml:"ttl_min"`
}

type Logging struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // json | console
}

type Metrics struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

type Root struct {
	Orchestrator Orchestrator `yaml:"orchestrator"`
	Risk         Risk         `yaml:"risk"`
	Execution    Execution    `yaml:"execution"`
	Strategy     Strategy     `yaml:"strategy"`
	AI           AI           `yaml:"ai"`
	Feeds        Feeds        `yaml:"feeds"`
	Database     Database     `yaml:"database"`
	Redis        Redis        `yaml:"redis"`
	Logging      Logging      `yaml:"logging"`
	Metrics      Metrics      `yaml:"metrics"`
}

// Load reads a YAML config file, applies defaults, and validates the result.
func Load(path string) (Root, error) {
	c := Defaults()
	b, err := os.ReadFile(path)
	if err != nil {
		return c, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(b, &c); err != nil {
		return c, fmt.Errorf("parse config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return c, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

// Defaults returns the configuration used when a field is absent from the
// YAML file.
func Defaults() Root {
	return Root{
		Orchestrator: Orchestrator{
			Timezone:        "America/Toronto",
			CadenceMin:      5,
			IntradayTopN:    20,
			MarketOpen:      "09:30",
			MarketClose:     "16:00",
			FlattenTime:     "15:55",
			StartWithDryRun: true,
		},
		Risk: Risk{
			EnableLimits:            true,
			RiskPerTradePct:         1.0,
			DailyTradeCap:           20,
			DailyDrawdownHaltPct:    10.0,
			MinTickBuffer:           0.01,
			MaxPositionValuePct:     20.0,
			MaxPortfolioExposurePct: 100.0,
			EarningsBlackout:        true,
			EarningsBlackoutMode:    "cap",
			SpreadPenaltyBp:         50,
			IlliquidityVeto:         true,
			AccountEquity:           100_000,
		},
		Execution: Execution{
			EnableOrders:         false,
			ScaleOutAtRMultiple:  1.0,
			FinalTargetRMultiple: 2.0,
			TrailMode:            "ema21",
			ATRTrailMult:         2.0,
			OutboxPath:           "data/outbox.jsonl",
		},
		Strategy: Strategy{
			EMAFast:               9,
			EMASlow:               21,
			EMABias:               50,
			VWAPRequired:          true,
			VolSpikeMultiple:      1.5,
			ConsolidationLookback: 20,
			CatalystRequired:      true,
			EnableSupertrend:      false,
			Supertrend:            Supertrend{ATRPeriod: 10, ATRMult: 3},
		},
		AI: AI{
			Finbert: Finbert{MinHeadlines: 1, DecayHours: 12},
		},
		Feeds: Feeds{ThrottleRPS: 2, EnableRSS: true},
		Database: Database{
			DSN: "postgres://localhost:5432/propulsion?sslmode=disable",
		},
		Redis:   Redis{Addr: "localhost:6379", TTLMin: 720},
		Logging: Logging{Level: "info", Format: "console"},
		Metrics: Metrics{Addr: ":9105"},
	}
}

// Validate rejects configurations that cannot be run. Malformed clock
// strings are fatal here rather than silently defaulted.
func (c Root) Validate() error {
	for name, v := range map[string]string{
		"market_open":  c.Orchestrator.MarketOpen,
		"market_close": c.Orchestrator.MarketClose,
		"flatten_time": c.Orchestrator.FlattenTime,
	} {
		if _, _, err := ParseClockTime(v); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	if c.Orchestrator.CadenceMin <= 0 {
		return fmt.Errorf("cadence_min must be positive, got %d", c.Orchestrator.CadenceMin)
	}
	if c.Orchestrator.IntradayTopN <= 0 {
		return fmt.Errorf("intraday_top_n must be positive, got %d", c.Orchestrator.IntradayTopN)
	}
	switch c.Risk.EarningsBlackoutMode {
	case "cap", "veto":
	default:
		return fmt.Errorf("earnings_blackout_mode must be cap or veto, got %q", c.Risk.EarningsBlackoutMode)
	}
	switch c.Execution.TrailMode {
	case "ema21", "atr", "none":
	default:
		return fmt.Errorf("trail_mode must be ema21, atr, or none, got %q", c.Execution.TrailMode)
	}
	return nil
}

// ParseClockTime parses an "HH:MM" wall-clock string.
func ParseClockTime(value string) (hour, minute int, err error) {
	var h, m int
	if n, serr := fmt.Sscanf(value, "%d:%d", &h, &m); serr != nil || n != 2 {
		return 0, 0, fmt.Errorf("clock time %q must be HH:MM", value)
	}
	if h < 0 || h > 23 || m < 0 || m > 59 {
		return 0, 0, fmt.Errorf("clock time %q out of range", value)
	}
	return h, m, nil
}
