// Package config handles loading and validating the inspector configuration
// from a YAML file. Secrets (database DSNs, RPC keys) stay in the
// environment and are resolved by the binaries, not here.
package config

import (
	"fmt"
	"math/big"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"evm-mev-lab/internal/domain"
)

// Config represents the complete inspector configuration.
type Config struct {
	RPC      RPCConfig      `yaml:"rpc"`
	Pipeline PipelineConfig `yaml:"pipeline"`
	Inspect  InspectConfig  `yaml:"inspect"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	Chain    ChainConfig    `yaml:"chain"`
}

// RPCConfig represents the execution-node connection settings.
type RPCConfig struct {
	HTTPEndpoint string `yaml:"http_endpoint"`
	WSEndpoint   string `yaml:"ws_endpoint"`
	TimeoutSecs  int    `yaml:"timeout_secs"`
	MaxRetries   int    `yaml:"max_retries"`
}

// PipelineConfig represents block processing settings.
type PipelineConfig struct {
	MaxTasks        int `yaml:"max_tasks"`
	TraceRetries    int `yaml:"trace_retries"`
	TraceRetryDelay int `yaml:"trace_retry_delay_ms"`
}

// InspectConfig represents detector thresholds.
type InspectConfig struct {
	// CexDexThresholdBps is the minimum adverse execution deviation in
	// basis points before a swap is flagged.
	CexDexThresholdBps int `yaml:"cexdex_threshold_bps"`
}

// MetricsConfig represents the Prometheus exposition settings.
type MetricsConfig struct {
	Addr string `yaml:"addr"`
}

// ChainConfig represents chain-level constants the detectors need.
type ChainConfig struct {
	USDStable TokenConfig `yaml:"usd_stable"`
}

// TokenConfig represents one token reference in the config file.
type TokenConfig struct {
	Address  string `yaml:"address"`
	Symbol   string `yaml:"symbol"`
	Decimals uint8  `yaml:"decimals"`
}

// Default values applied by Load for omitted fields.
const (
	DefaultTimeoutSecs     = 30
	DefaultMaxRetries      = 3
	DefaultMaxTasks        = 4
	DefaultTraceRetries    = 3
	DefaultTraceRetryDelay = 500
	DefaultThresholdBps    = 100
	DefaultMetricsAddr     = ":9090"
)

// Load reads and validates configuration from a YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.RPC.TimeoutSecs == 0 {
		c.RPC.TimeoutSecs = DefaultTimeoutSecs
	}
	if c.RPC.MaxRetries == 0 {
		c.RPC.MaxRetries = DefaultMaxRetries
	}
	if c.Pipeline.MaxTasks == 0 {
		c.Pipeline.MaxTasks = DefaultMaxTasks
	}
	if c.Pipeline.TraceRetries == 0 {
		c.Pipeline.TraceRetries = DefaultTraceRetries
	}
	if c.Pipeline.TraceRetryDelay == 0 {
		c.Pipeline.TraceRetryDelay = DefaultTraceRetryDelay
	}
	if c.Inspect.CexDexThresholdBps == 0 {
		c.Inspect.CexDexThresholdBps = DefaultThresholdBps
	}
	if c.Metrics.Addr == "" {
		c.Metrics.Addr = DefaultMetricsAddr
	}
}

// Validate ensures the configuration is consistent.
func (c *Config) Validate() error {
	if c.RPC.HTTPEndpoint == "" {
		return fmt.Errorf("rpc http_endpoint is required")
	}
	if c.RPC.TimeoutSecs <= 0 {
		return fmt.Errorf("rpc timeout_secs must be positive, got %d", c.RPC.TimeoutSecs)
	}
	if c.RPC.MaxRetries < 0 {
		return fmt.Errorf("rpc max_retries must not be negative, got %d", c.RPC.MaxRetries)
	}
	if c.Pipeline.MaxTasks <= 0 {
		return fmt.Errorf("pipeline max_tasks must be positive, got %d", c.Pipeline.MaxTasks)
	}
	if c.Pipeline.TraceRetries < 0 {
		return fmt.Errorf("pipeline trace_retries must not be negative, got %d", c.Pipeline.TraceRetries)
	}
	if c.Inspect.CexDexThresholdBps <= 0 || c.Inspect.CexDexThresholdBps >= 10_000 {
		return fmt.Errorf("inspect cexdex_threshold_bps must be in (0, 10000), got %d", c.Inspect.CexDexThresholdBps)
	}
	if c.Chain.USDStable.Address == "" {
		return fmt.Errorf("chain usd_stable.address is required")
	}
	if c.Chain.USDStable.Decimals == 0 {
		return fmt.Errorf("chain usd_stable.decimals is required")
	}
	return nil
}

// RPCTimeout returns the request timeout as a duration.
func (c *Config) RPCTimeout() time.Duration {
	return time.Duration(c.RPC.TimeoutSecs) * time.Second
}

// TraceRetryDelay returns the initial retry delay as a duration.
func (c *Config) TraceRetryDelay() time.Duration {
	return time.Duration(c.Pipeline.TraceRetryDelay) * time.Millisecond
}

// CexDexThreshold returns the threshold as an exact rational fraction.
func (c *Config) CexDexThreshold() *big.Rat {
	return big.NewRat(int64(c.Inspect.CexDexThresholdBps), 10_000)
}

// USDStable returns the configured stable token.
func (c *Config) USDStable() domain.Token {
	return domain.Token{
		Address:  domain.HexToAddress(c.Chain.USDStable.Address),
		Symbol:   c.Chain.USDStable.Symbol,
		Decimals: c.Chain.USDStable.Decimals,
	}
}
