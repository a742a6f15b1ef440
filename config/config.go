package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the process-wide configuration, loaded from a YAML file with
// environment-variable overrides for the log section and the broker API
// key and secret.
type Config struct {
	Engine  EngineConfig  `yaml:"engine"`
	Trader  TraderConfig  `yaml:"trader"`
	Risk    RiskConfig    `yaml:"risk"`
	Policy  PolicyConfig  `yaml:"policy"`
	Broker  BrokerConfig  `yaml:"broker"`
	Parser  ParserConfig  `yaml:"parser"`
	Storage StorageConfig `yaml:"storage"`
	Log     LogConfig     `yaml:"log"`
}

// EngineConfig controls the HFT engine's own behavior.
type EngineConfig struct {
	MarkerPath      string `yaml:"marker_path"`       // loaded and defaulted but not read; engine.Run writes marker.json into its WorkDir
	IgnoreSelfMatch bool   `yaml:"ignore_self_match"` // detection still records; only the order rejection is skipped (testing only)
}

// TraderConfig controls the trader adapter.
type TraderConfig struct {
	AccountID string `yaml:"account_id"`
}

// RiskConfig is the default domain.RiskParams applied to every std code.
// PerCode entries are parsed but not applied: only the defaults reach the
// trader.
type RiskConfig struct {
	OrderRateBound  uint32                     `yaml:"order_rate_bound"`
	OrderWindowSec  uint32                     `yaml:"order_window_sec"`
	OrderTotalCap   uint32                     `yaml:"order_total_cap"`
	CancelRateBound uint32                     `yaml:"cancel_rate_bound"`
	CancelWindowSec uint32                     `yaml:"cancel_window_sec"`
	CancelTotalCap  uint32                     `yaml:"cancel_total_cap"`
	PerCode         map[string]RiskCodeOverride `yaml:"per_code"`
}

// RiskCodeOverride overrides the default RiskConfig for one std code.
type RiskCodeOverride struct {
	OrderRateBound  uint32 `yaml:"order_rate_bound"`
	OrderWindowSec  uint32 `yaml:"order_window_sec"`
	OrderTotalCap   uint32 `yaml:"order_total_cap"`
	CancelRateBound uint32 `yaml:"cancel_rate_bound"`
	CancelWindowSec uint32 `yaml:"cancel_window_sec"`
	CancelTotalCap  uint32 `yaml:"cancel_total_cap"`
}

// PolicyConfig points at the action-policy rule-group YAML file consumed by
// internal/policy, kept separate from the main config per §6.
type PolicyConfig struct {
	RulesPath string `yaml:"rules_path"`
}

// BrokerConfig configures the REST broker adapter.
type BrokerConfig struct {
	BaseURL    string  `yaml:"base_url"`
	APIKey     string  `yaml:"api_key"`
	APISecret  string  `yaml:"api_secret"`
	TimeoutSec int     `yaml:"timeout_sec"`
	RatePerSec float64 `yaml:"rate_per_sec"`
	Burst      int     `yaml:"burst"`
}

// ParserConfig configures the websocket market-feed parser adapter.
type ParserConfig struct {
	URL string `yaml:"url"`
}

// StorageConfig controls where session/order history is persisted.
type StorageConfig struct {
	DSN string `yaml:"dsn"` // SQLite file path, or ":memory:"
}

// LogConfig controls the format and level of logging.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug | info | warn | error
	Format string `yaml:"format"` // text | json
}

// Load reads the YAML config at path and applies a .env file (if present)
// and hard-coded defaults on top of it. Env values override YAML for the
// keys that support it; YAML values override defaults for everything else.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config.Load: read %q: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config.Load: parse YAML: %w", err)
	}

	applyEnvOverrides(&cfg)
	setDefaults(&cfg)

	return &cfg, nil
}

// BrokerTimeout returns the REST broker's request timeout as a
// time.Duration.
func (c *Config) BrokerTimeout() time.Duration {
	return time.Duration(c.Broker.TimeoutSec) * time.Second
}

// applyEnvOverrides overwrites values with environment variables when set.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
	if v := os.Getenv("BROKER_API_KEY"); v != "" {
		cfg.Broker.APIKey = v
	}
	if v := os.Getenv("BROKER_API_SECRET"); v != "" {
		cfg.Broker.APISecret = v
	}
}

// setDefaults ensures required values have sane fallbacks.
func setDefaults(cfg *Config) {
	if cfg.Engine.MarkerPath == "" {
		cfg.Engine.MarkerPath = "marker.json"
	}
	if cfg.Risk.OrderRateBound <= 0 {
		cfg.Risk.OrderRateBound = 10
	}
	if cfg.Risk.OrderWindowSec <= 0 {
		cfg.Risk.OrderWindowSec = 1
	}
	if cfg.Risk.CancelRateBound <= 0 {
		cfg.Risk.CancelRateBound = 10
	}
	if cfg.Risk.CancelWindowSec <= 0 {
		cfg.Risk.CancelWindowSec = 1
	}
	if cfg.Policy.RulesPath == "" {
		cfg.Policy.RulesPath = "policy.yaml"
	}
	if cfg.Broker.TimeoutSec <= 0 {
		cfg.Broker.TimeoutSec = 5
	}
	if cfg.Broker.RatePerSec <= 0 {
		cfg.Broker.RatePerSec = 10
	}
	if cfg.Broker.Burst <= 0 {
		cfg.Broker.Burst = 5
	}
	if cfg.Storage.DSN == "" {
		cfg.Storage.DSN = "hftcore.db"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}
}
