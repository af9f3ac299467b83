// Package config loads rewardledger settings: the reward table, commission
// rates, verification thresholds, Sybil guard tuning and store parameters.
//
// Files are YAML. Before decoding, a file is checked against the embedded CUE
// schema (schema.cue) so that typos and out-of-range values fail loudly with
// a position instead of silently falling back to defaults.
package config

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/roach88/rewardledger/internal/model"
)

//go:embed schema.cue
var schemaCUE string

// DefaultRewardType is the reward table entry used for unlisted reward types.
const DefaultRewardType = "DEFAULT"

// Config is the complete runtime configuration.
type Config struct {
	Database     string                     `yaml:"database"`
	Listen       string                     `yaml:"listen"`
	Rewards      map[string]decimal.Decimal `yaml:"rewards"`
	Commission   CommissionConfig           `yaml:"commission"`
	Verification VerificationConfig         `yaml:"verification"`
	Sybil        SybilConfig                `yaml:"sybil"`
	Reconcile    ReconcileConfig            `yaml:"reconcile"`
	Retry        RetryConfig                `yaml:"retry"`
}

// CommissionConfig holds the per-tier commission rates.
type CommissionConfig struct {
	Tier1Rate decimal.Decimal `yaml:"tier1_rate"`
	Tier2Rate decimal.Decimal `yaml:"tier2_rate"`
}

// VerificationConfig holds the verification predicate thresholds.
type VerificationConfig struct {
	MinLevel int   `yaml:"min_level"`
	MinAds   int64 `yaml:"min_ads"`
}

// SybilConfig tunes cluster detection.
type SybilConfig struct {
	// Threshold is the largest cluster size that is not flagged.
	Threshold int `yaml:"threshold"`
	// Window is how far back a heartbeat counts as recent activity.
	Window time.Duration `yaml:"window"`
	// PoolUnknown groups clients without an ip/device id under one sentinel
	// identity. When false such clients never form a cluster.
	PoolUnknown bool `yaml:"pool_unknown"`
}

// ReconcileConfig tunes the verification sweep.
type ReconcileConfig struct {
	BatchSize    int           `yaml:"batch_size"`
	PollInterval time.Duration `yaml:"poll_interval"`
}

// RetryConfig bounds retries of write transactions that hit lock contention.
type RetryConfig struct {
	MaxAttempts     int           `yaml:"max_attempts"`
	InitialInterval time.Duration `yaml:"initial_interval"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Database: "rewardledger.db",
		Listen:   ":8080",
		Rewards: map[string]decimal.Decimal{
			"INSTANT":         decimal.RequireFromString("0.05"),
			DefaultRewardType: decimal.RequireFromString("0.01"),
		},
		Commission: CommissionConfig{
			Tier1Rate: decimal.RequireFromString("0.10"),
			Tier2Rate: decimal.RequireFromString("0.025"),
		},
		Verification: VerificationConfig{MinLevel: 5, MinAds: 10},
		Sybil: SybilConfig{
			Threshold: 10,
			Window:    60 * time.Minute,
		},
		Reconcile: ReconcileConfig{
			BatchSize:    100,
			PollInterval: 5 * time.Second,
		},
		Retry: RetryConfig{
			MaxAttempts:     5,
			InitialInterval: 10 * time.Millisecond,
		},
	}
}

// Load reads a YAML configuration file and layers it over Default.
// Reward table entries in the file are added to (or replace) the defaults.
//
// An empty path returns Default unchanged.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := validateSchema(data); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}

	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.Rewards = normalizeRewards(cfg.Rewards)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// validateSchema checks raw YAML against the embedded #Config definition.
func validateSchema(data []byte) error {
	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("parse config: %w", err)
	}
	if raw == nil {
		raw = map[string]any{}
	}

	ctx := cuecontext.New()
	schema := ctx.CompileString(schemaCUE, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return fmt.Errorf("compile schema: %w", err)
	}

	def := schema.LookupPath(cue.ParsePath("#Config"))
	v := def.Unify(ctx.Encode(raw))
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return fmt.Errorf("schema violation: %s", strings.TrimSpace(cueerrors.Details(err, nil)))
	}
	return nil
}

// Validate checks cross-field constraints the schema cannot express.
func (c *Config) Validate() error {
	if _, ok := c.Rewards[DefaultRewardType]; !ok {
		return fmt.Errorf("rewards: %s entry is required", DefaultRewardType)
	}
	for name, amount := range c.Rewards {
		if amount.IsNegative() {
			return fmt.Errorf("rewards.%s: amount must be non-negative", name)
		}
	}
	if c.Commission.Tier1Rate.IsNegative() || c.Commission.Tier2Rate.IsNegative() {
		return fmt.Errorf("commission: rates must be non-negative")
	}
	if c.Commission.Tier1Rate.Add(c.Commission.Tier2Rate).GreaterThan(decimal.NewFromInt(1)) {
		return fmt.Errorf("commission: tier1_rate + tier2_rate must not exceed 1")
	}
	if c.Sybil.Threshold < 1 {
		return fmt.Errorf("sybil.threshold must be at least 1")
	}
	if c.Sybil.Window <= 0 {
		return fmt.Errorf("sybil.window must be positive")
	}
	if c.Reconcile.BatchSize < 1 {
		return fmt.Errorf("reconcile.batch_size must be at least 1")
	}
	if c.Reconcile.PollInterval <= 0 {
		return fmt.Errorf("reconcile.poll_interval must be positive")
	}
	if c.Retry.MaxAttempts < 1 {
		return fmt.Errorf("retry.max_attempts must be at least 1")
	}
	return nil
}

func normalizeRewards(in map[string]decimal.Decimal) map[string]decimal.Decimal {
	out := make(map[string]decimal.Decimal, len(in))
	for name, amount := range in {
		out[strings.ToUpper(strings.TrimSpace(name))] = amount
	}
	return out
}

// RewardAmount returns the base reward for rewardType. Lookup is
// case-insensitive; unlisted types get the DEFAULT amount.
func (c *Config) RewardAmount(rewardType string) decimal.Decimal {
	if amount, ok := c.Rewards[strings.ToUpper(strings.TrimSpace(rewardType))]; ok {
		return amount
	}
	return c.Rewards[DefaultRewardType]
}

// VerificationPolicy returns the configured verification predicate.
func (c *Config) VerificationPolicy() model.VerificationPolicy {
	return model.VerificationPolicy{
		MinLevel: c.Verification.MinLevel,
		MinAds:   c.Verification.MinAds,
	}
}
