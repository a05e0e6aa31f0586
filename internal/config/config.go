// Package config loads the dicewager configuration.
//
// Precedence, lowest first: built-in defaults, the YAML file, DICEWAGER_*
// environment variables. The payout rules are checked against an embedded
// CUE schema before anything is started.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/robfig/cron/v3"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/roach88/dicewager/internal/engine"
	"github.com/roach88/dicewager/internal/payout"
)

// Config is the full service configuration.
type Config struct {
	Database    Database     `yaml:"database"`
	HTTP        HTTP         `yaml:"http"`
	House       House        `yaml:"house"`
	Timing      Timing       `yaml:"timing"`
	Rules       payout.Rules `yaml:"rules"`
	Telemetry   Telemetry    `yaml:"telemetry"`
	Maintenance Maintenance  `yaml:"maintenance"`
}

// Database locates the SQLite file.
type Database struct {
	Path string `yaml:"path" env:"DICEWAGER_DB_PATH"`
}

// HTTP configures the front-end transport and outbound webhook.
type HTTP struct {
	Addr           string        `yaml:"addr" env:"DICEWAGER_HTTP_ADDR"`
	WebhookURL     string        `yaml:"webhook_url" env:"DICEWAGER_WEBHOOK_URL"`
	WebhookTimeout time.Duration `yaml:"webhook_timeout" env:"DICEWAGER_WEBHOOK_TIMEOUT"`
}

// House names the house account. A positive SeedBalance registers it on
// first start.
type House struct {
	Account     string          `yaml:"account" env:"DICEWAGER_HOUSE_ACCOUNT"`
	Currency    string          `yaml:"currency" env:"DICEWAGER_HOUSE_CURRENCY"`
	SeedBalance decimal.Decimal `yaml:"seed_balance" env:"DICEWAGER_HOUSE_SEED_BALANCE"`
}

// Timing mirrors engine.Timing in file form.
type Timing struct {
	QueueTimeout       time.Duration   `yaml:"queue_timeout" env:"DICEWAGER_QUEUE_TIMEOUT"`
	RerollWindow       time.Duration   `yaml:"reroll_window" env:"DICEWAGER_REROLL_WINDOW"`
	ConfirmWindow      time.Duration   `yaml:"confirm_window" env:"DICEWAGER_CONFIRM_WINDOW"`
	ContinuationWindow time.Duration   `yaml:"continuation_window" env:"DICEWAGER_CONTINUATION_WINDOW"`
	RollDelay          time.Duration   `yaml:"roll_delay" env:"DICEWAGER_ROLL_DELAY"`
	RetryInterval      time.Duration   `yaml:"retry_interval" env:"DICEWAGER_RETRY_INTERVAL"`
	CooldownBase       time.Duration   `yaml:"cooldown_base" env:"DICEWAGER_COOLDOWN_BASE"`
	CooldownUnit       decimal.Decimal `yaml:"cooldown_unit" env:"DICEWAGER_COOLDOWN_UNIT"`
	CooldownCap        float64         `yaml:"cooldown_cap" env:"DICEWAGER_COOLDOWN_CAP"`
}

// Telemetry configures OTLP/HTTP trace export. Export is off unless an
// endpoint is set.
type Telemetry struct {
	Endpoint    string `yaml:"endpoint" env:"DICEWAGER_OTEL_ENDPOINT"`
	Enabled     bool   `yaml:"enabled" env:"DICEWAGER_OTEL_ENABLED"`
	ServiceName string `yaml:"service_name" env:"DICEWAGER_OTEL_SERVICE_NAME"`
}

// Maintenance holds cron specs for background jobs. An empty spec
// disables the job.
type Maintenance struct {
	PruneCooldowns   string        `yaml:"prune_cooldowns" env:"DICEWAGER_PRUNE_COOLDOWNS"`
	EvictArchived    string        `yaml:"evict_archived" env:"DICEWAGER_EVICT_ARCHIVED"`
	ArchiveRetention time.Duration `yaml:"archive_retention" env:"DICEWAGER_ARCHIVE_RETENTION"`
}

// Default returns the built-in configuration.
func Default() Config {
	t := engine.DefaultTiming()
	return Config{
		Database: Database{Path: "dicewager.db"},
		HTTP: HTTP{
			Addr:           ":8080",
			WebhookTimeout: 5 * time.Second,
		},
		House: House{
			Account:     engine.DefaultHouseAccount,
			Currency:    "chips",
			SeedBalance: decimal.NewFromInt(1_000_000),
		},
		Timing: Timing{
			QueueTimeout:       t.QueueTimeout,
			RerollWindow:       t.RerollWindow,
			ConfirmWindow:      t.ConfirmWindow,
			ContinuationWindow: t.ContinuationWindow,
			RollDelay:          t.RollDelay,
			RetryInterval:      t.RetryInterval,
			CooldownBase:       t.Cooldown.Base,
			CooldownUnit:       t.Cooldown.Unit,
			CooldownCap:        t.Cooldown.Cap,
		},
		Rules: payout.DefaultRules(),
		Telemetry: Telemetry{
			Enabled:     true,
			ServiceName: "dicewager",
		},
		Maintenance: Maintenance{
			PruneCooldowns:   "@every 1m",
			EvictArchived:    "@every 5m",
			ArchiveRetention: 10 * time.Minute,
		},
	}
}

// Load reads path (optional), applies environment overrides and validates.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := decodeYAML(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse %s: %w", path, err)
		}
	}

	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func decodeYAML(data []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// Validate checks every section.
func (c Config) Validate() error {
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}
	if c.House.Account == "" {
		return fmt.Errorf("house.account is required")
	}
	if c.House.SeedBalance.IsNegative() {
		return fmt.Errorf("house.seed_balance must not be negative")
	}
	if err := c.Timing.validate(); err != nil {
		return err
	}
	if err := ValidateRules(c.Rules); err != nil {
		return err
	}
	if c.Maintenance.ArchiveRetention < 0 {
		return fmt.Errorf("maintenance.archive_retention must not be negative")
	}
	for name, spec := range map[string]string{
		"prune_cooldowns": c.Maintenance.PruneCooldowns,
		"evict_archived":  c.Maintenance.EvictArchived,
	} {
		if spec == "" {
			continue
		}
		if _, err := cron.ParseStandard(spec); err != nil {
			return fmt.Errorf("maintenance.%s: %w", name, err)
		}
	}
	return nil
}

func (t Timing) validate() error {
	for name, d := range map[string]time.Duration{
		"queue_timeout":       t.QueueTimeout,
		"reroll_window":       t.RerollWindow,
		"confirm_window":      t.ConfirmWindow,
		"continuation_window": t.ContinuationWindow,
		"roll_delay":          t.RollDelay,
		"retry_interval":      t.RetryInterval,
		"cooldown_base":       t.CooldownBase,
	} {
		if d < 0 {
			return fmt.Errorf("timing.%s must not be negative", name)
		}
	}
	if t.QueueTimeout == 0 {
		return fmt.Errorf("timing.queue_timeout must be positive")
	}
	if t.RerollWindow == 0 {
		return fmt.Errorf("timing.reroll_window must be positive")
	}
	if t.CooldownUnit.IsNegative() || t.CooldownCap < 0 {
		return fmt.Errorf("timing: cooldown unit and cap must not be negative")
	}
	return nil
}

// Engine converts the file form into engine.Timing.
func (t Timing) Engine() engine.Timing {
	return engine.Timing{
		QueueTimeout:       t.QueueTimeout,
		RerollWindow:       t.RerollWindow,
		ConfirmWindow:      t.ConfirmWindow,
		ContinuationWindow: t.ContinuationWindow,
		RollDelay:          t.RollDelay,
		RetryInterval:      t.RetryInterval,
		Cooldown: engine.CooldownPolicy{
			Base: t.CooldownBase,
			Unit: t.CooldownUnit,
			Cap:  t.CooldownCap,
		},
	}
}
