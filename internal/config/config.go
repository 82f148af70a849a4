// Package config holds the strategy configuration: hard-coded defaults, a
// YAML overlay loaded at startup, environment overrides for secrets, and
// dotted-path updates applied at runtime.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/Whit-fire/MHFTSB/internal/rpcpool"
)

// Config is the full strategy configuration.
type Config struct {
	Wallet     Wallet               `yaml:"wallet"`
	Endpoints  []rpcpool.Descriptor `yaml:"endpoints"`
	Filters    Filters              `yaml:"filters"`
	Risk       Risk                 `yaml:"risk"`
	TakeProfit []TakeProfitTier     `yaml:"take_profit"`
	Scoring    Scoring              `yaml:"scoring"`
	Execution  Execution            `yaml:"execution"`
	HFT        HFT                  `yaml:"hft"`
	Storage    Storage              `yaml:"storage"`
	Simulation bool                 `yaml:"simulation"`
}

// Wallet identifies the signing wallet. The key itself normally arrives via
// the WALLET_PRIVATE_KEY environment variable, not the file.
type Wallet struct {
	PrivateKey string `yaml:"private_key"`
}

// Filters gate which creation events are worth a pipeline at all.
type Filters struct {
	MinLiquiditySOL     float64 `yaml:"min_liquidity_sol"`
	MinLiquidityFastBuy float64 `yaml:"min_liquidity_fast_buy"`
	MaxInitialBuySOL    float64 `yaml:"max_initial_buy_sol"`
	FastBuyEnabled      bool    `yaml:"fast_buy_enabled"`
}

// Risk bundles the exit rules.
type Risk struct {
	KillSwitch  KillSwitch `yaml:"kill_switch"`
	MaxRugScore int        `yaml:"max_rug_score"`
	StopLoss    StopLoss   `yaml:"stop_loss"`
	Trailing    Trailing   `yaml:"trailing"`
}

// KillSwitch closes stale positions that are also under water.
type KillSwitch struct {
	Enabled              bool    `yaml:"enabled"`
	MaxTimeSeconds       int     `yaml:"max_time_seconds"`
	DropThresholdPercent float64 `yaml:"drop_threshold_percent"`
	VelocityDumpPercent  float64 `yaml:"velocity_dump_percent"`
}

// StopLoss thresholds in PnL percent, most severe last.
type StopLoss struct {
	Low    float64 `yaml:"low"`
	Medium float64 `yaml:"medium"`
	High   float64 `yaml:"high"`
	Ultra  float64 `yaml:"ultra"`
}

// Trailing stop parameters in percent.
type Trailing struct {
	StartPercent    float64 `yaml:"start_percent"`
	DistancePercent float64 `yaml:"distance_percent"`
}

// TakeProfitTier notionally sells a fraction of the position when its gain
// threshold is crossed. Fires at most once per position.
type TakeProfitTier struct {
	Name        string  `yaml:"name"`
	SellPercent float64 `yaml:"sell_percent"`
	GainPercent float64 `yaml:"gain_percent"`
}

// Scoring weights and admission thresholds.
type Scoring struct {
	Weights    ScoringWeights    `yaml:"weights"`
	Thresholds ScoringThresholds `yaml:"thresholds"`
}

type ScoringWeights struct {
	RugCheck  float64 `yaml:"rug_check"`
	Liquidity float64 `yaml:"liquidity"`
	Momentum  float64 `yaml:"momentum"`
	Creator   float64 `yaml:"creator"`
}

type ScoringThresholds struct {
	FastBuy    float64 `yaml:"fast_buy"`
	MinScore   float64 `yaml:"min_score"`
	UltraScore float64 `yaml:"ultra_score"`
}

// Execution controls how buys are sized and bounded.
type Execution struct {
	BuyAmountSOL       float64 `yaml:"buy_amount_sol"`
	SlippagePercent    float64 `yaml:"slippage_percent"`
	MaxOpenPositions   int     `yaml:"max_open_positions"`
	MaxInFlight        int     `yaml:"max_in_flight"`
	EnforceOnePerToken bool    `yaml:"enforce_one_per_token"`
	ComputeUnitLimit   uint32  `yaml:"compute_unit_limit"`
	ComputeUnitPrice   uint64  `yaml:"compute_unit_price"`
	TipAccount         string  `yaml:"tip_account"`
	TipAmountSOL       float64 `yaml:"tip_amount_sol"`
}

// HFT cadences, in milliseconds like the wire formats they pace.
type HFT struct {
	EvalIntervalMS        int `yaml:"eval_interval_ms"`
	PriceUpdateIntervalMS int `yaml:"price_update_interval_ms"`
	MaxPositionAgeMS      int `yaml:"max_position_age_ms"`
	CandidateMaxAgeMS     int `yaml:"candidate_max_age_ms"`
	PollIntervalMS        int `yaml:"poll_interval_ms"`
	ProbeIntervalMS       int `yaml:"probe_interval_ms"`
}

// Storage selects the persistence backends. Empty DSNs fall back to memory.
type Storage struct {
	PostgresDSN   string `yaml:"postgres_dsn"`
	ClickHouseDSN string `yaml:"clickhouse_dsn"`
}

// Default returns the hard-coded strategy defaults.
func Default() *Config {
	return &Config{
		Filters: Filters{
			MinLiquiditySOL:     0.5,
			MinLiquidityFastBuy: 1.0,
			MaxInitialBuySOL:    0.03,
			FastBuyEnabled:      true,
		},
		Risk: Risk{
			KillSwitch: KillSwitch{
				Enabled:              true,
				MaxTimeSeconds:       40,
				DropThresholdPercent: -12,
				VelocityDumpPercent:  -15,
			},
			MaxRugScore: 500,
			StopLoss:    StopLoss{Low: -10, Medium: -12, High: -15, Ultra: -20},
			Trailing:    Trailing{StartPercent: 15, DistancePercent: 10},
		},
		TakeProfit: []TakeProfitTier{
			{Name: "TP1", SellPercent: 50, GainPercent: 100},
			{Name: "TP2", SellPercent: 25, GainPercent: 200},
			{Name: "TP3", SellPercent: 25, GainPercent: 500},
		},
		Scoring: Scoring{
			Weights:    ScoringWeights{RugCheck: 0.25, Liquidity: 0.15, Momentum: 0.40, Creator: 0.20},
			Thresholds: ScoringThresholds{FastBuy: 85, MinScore: 70, UltraScore: 90},
		},
		Execution: Execution{
			BuyAmountSOL:       0.03,
			SlippagePercent:    25,
			MaxOpenPositions:   30,
			MaxInFlight:        3,
			EnforceOnePerToken: true,
			ComputeUnitLimit:   200_000,
			ComputeUnitPrice:   500_000,
			TipAmountSOL:       0.015,
		},
		HFT: HFT{
			EvalIntervalMS:        150,
			PriceUpdateIntervalMS: 150,
			MaxPositionAgeMS:      60_000,
			CandidateMaxAgeMS:     8_000,
			PollIntervalMS:        1_500,
			ProbeIntervalMS:       30_000,
		},
	}
}

// Load builds the effective configuration: defaults, then the optional YAML
// file, then environment overrides for secrets.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}
	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("WALLET_PRIVATE_KEY"); v != "" {
		c.Wallet.PrivateKey = v
	}
	if v := os.Getenv("POSTGRES_DSN"); v != "" {
		c.Storage.PostgresDSN = v
	}
	if v := os.Getenv("CLICKHOUSE_DSN"); v != "" {
		c.Storage.ClickHouseDSN = v
	}
	if v := os.Getenv("TIP_ACCOUNT"); v != "" {
		c.Execution.TipAccount = v
	}
}

// Validate rejects configurations the trader cannot run with.
func (c *Config) Validate() error {
	if c.Execution.BuyAmountSOL <= 0 {
		return fmt.Errorf("execution.buy_amount_sol must be positive, got %v", c.Execution.BuyAmountSOL)
	}
	if c.Execution.MaxInFlight <= 0 {
		return fmt.Errorf("execution.max_in_flight must be positive, got %d", c.Execution.MaxInFlight)
	}
	if c.Execution.MaxOpenPositions <= 0 {
		return fmt.Errorf("execution.max_open_positions must be positive, got %d", c.Execution.MaxOpenPositions)
	}
	if c.Risk.StopLoss.Ultra > c.Risk.StopLoss.High {
		return fmt.Errorf("risk.stop_loss.ultra (%v) must be at or below high (%v)", c.Risk.StopLoss.Ultra, c.Risk.StopLoss.High)
	}
	for _, tier := range c.TakeProfit {
		if tier.SellPercent <= 0 || tier.SellPercent > 100 {
			return fmt.Errorf("take_profit %q: sell_percent %v out of (0, 100]", tier.Name, tier.SellPercent)
		}
	}
	if !c.Simulation && len(c.Endpoints) == 0 {
		return fmt.Errorf("endpoints required outside simulation mode")
	}
	return nil
}

// Set applies a dotted-path override ("risk.stop_loss.ultra" = "-25"). The
// value is coerced to the type of the existing field; unknown paths fail.
func (c *Config) Set(path, value string) error {
	raw, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	var tree map[string]interface{}
	if err := yaml.Unmarshal(raw, &tree); err != nil {
		return err
	}

	keys := strings.Split(path, ".")
	node := tree
	for _, key := range keys[:len(keys)-1] {
		child, ok := node[key].(map[string]interface{})
		if !ok {
			return fmt.Errorf("config path %q not found", path)
		}
		node = child
	}

	leaf := keys[len(keys)-1]
	existing, ok := node[leaf]
	if !ok {
		return fmt.Errorf("config path %q not found", path)
	}
	coerced, err := coerce(existing, value)
	if err != nil {
		return fmt.Errorf("config path %q: %w", path, err)
	}
	node[leaf] = coerced

	out, err := yaml.Marshal(tree)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(out, c)
}

// coerce converts the string value to the type the field currently holds.
func coerce(existing interface{}, value string) (interface{}, error) {
	switch existing.(type) {
	case bool:
		switch strings.ToLower(value) {
		case "true", "1", "yes":
			return true, nil
		default:
			return false, nil
		}
	case int:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return nil, err
		}
		return int(f), nil
	case float64:
		return strconv.ParseFloat(value, 64)
	case string, nil:
		return value, nil
	default:
		return nil, fmt.Errorf("cannot set composite value")
	}
}

// BuyLamports converts the configured buy size to lamports.
func (c *Config) BuyLamports() uint64 {
	return uint64(c.Execution.BuyAmountSOL * 1e9)
}

// MaxCostLamports applies the slippage allowance to the buy size.
func (c *Config) MaxCostLamports() uint64 {
	return uint64(c.Execution.BuyAmountSOL * 1e9 * (1 + c.Execution.SlippagePercent/100))
}

// TipLamports converts the tip size to lamports.
func (c *Config) TipLamports() uint64 {
	return uint64(c.Execution.TipAmountSOL * 1e9)
}
