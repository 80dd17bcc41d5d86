// Package config loads the quantd daemon configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the quantd configuration.
type Config struct {
	Env      string          `yaml:"env"`
	Logging  LoggingConfig   `yaml:"logging"`
	HTTP     HTTPConfig      `yaml:"http"`
	Node     NodeConfig      `yaml:"node"`
	NATS     NATSConfig      `yaml:"nats"`
	Host     HostConfig      `yaml:"host"`
	Quant    QuantConfig     `yaml:"quant"`
	Prices   PricesConfig    `yaml:"prices"`
	Programs []ProgramConfig `yaml:"programs"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error (default: determined by env)
}

// HTTPConfig holds HTTP server settings. An empty Addr disables the server.
type HTTPConfig struct {
	Addr            string        `yaml:"addr"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	Metrics         bool          `yaml:"metrics"`
	AllowAdvance    bool          `yaml:"allow_advance"`
}

// NodeConfig holds the token service node settings.
type NodeConfig struct {
	ID        string        `yaml:"id"`
	NumShards uint32        `yaml:"num_shards"`
	NodeIDs   []string      `yaml:"node_ids"`
	ShardSeed string        `yaml:"shard_seed"`
	QueryTTL  time.Duration `yaml:"query_ttl"`
}

// NATSConfig selects the NATS transport and JetStream store. An empty URL
// keeps everything in memory.
type NATSConfig struct {
	URL string `yaml:"url"`
	// Name is reported to the server. Defaults to quantd-<node id>.
	Name          string `yaml:"name"`
	MaxReconnects int    `yaml:"max_reconnects"`
	SubjectPrefix string `yaml:"subject_prefix"`
	Bucket        string `yaml:"bucket"`
}

// HostConfig holds the block producer settings.
type HostConfig struct {
	StartHeight uint32        `yaml:"start_height"`
	DeliveryFee uint64        `yaml:"delivery_fee"`
	Capacity    uint64        `yaml:"capacity"`
	BlockTime   time.Duration `yaml:"block_time"`
}

// QuantConfig is shared by every deployed controller.
type QuantConfig struct {
	Symbol            string        `yaml:"symbol"`
	TickSeconds       uint32        `yaml:"tick_seconds"`
	ReservationAmount uint64        `yaml:"reservation_amount"`
	QueryFee          uint64        `yaml:"query_fee"`
	NoQueryFee        bool          `yaml:"no_query_fee"`
	QueryTimeout      time.Duration `yaml:"query_timeout"`
	Restore           bool          `yaml:"restore"`
	Tokens            []TokenConfig `yaml:"tokens"`
}

type TokenConfig struct {
	Name      string `yaml:"name"`
	ProgramID string `yaml:"program_id"`
}

// PricesConfig seeds the static price table. NoCache sends every lookup to
// the table; concurrent lookups are still collapsed.
type PricesConfig struct {
	Quotes   map[string]uint64 `yaml:"quotes"`
	CacheTTL time.Duration     `yaml:"cache_ttl"`
	NoCache  bool              `yaml:"no_cache"`
}

type ProgramConfig struct {
	ID       string `yaml:"id"`
	Owner    string `yaml:"owner"`
	Ratio    uint64 `yaml:"ratio"`
	Interval uint32 `yaml:"interval"`
}

// Load reads configuration from the YAML file at path.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes, defaults and validates a YAML document.
func Parse(data []byte) (Config, error) {
	// Substitute env variables of the form ${VAR}
	data = expandEnvVars(data)

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// GetEnv returns the current environment from the ENV variable, defaulting to "local".
func GetEnv() string {
	if env := os.Getenv("ENV"); env != "" {
		return env
	}
	return "local"
}

// ApplyDefaults fills empty fields with default values.
func (c *Config) ApplyDefaults() {
	if c.Env == "" {
		c.Env = GetEnv()
	}
	if c.HTTP.ReadTimeout <= 0 {
		c.HTTP.ReadTimeout = 10 * time.Second
	}
	if c.HTTP.WriteTimeout <= 0 {
		c.HTTP.WriteTimeout = 10 * time.Second
	}
	if c.HTTP.ShutdownTimeout <= 0 {
		c.HTTP.ShutdownTimeout = 10 * time.Second
	}
	if c.Node.NumShards == 0 {
		c.Node.NumShards = 256
	}
	if c.Node.ShardSeed == "" {
		c.Node.ShardSeed = "default"
	}
	if c.Node.QueryTTL <= 0 {
		c.Node.QueryTTL = 5 * time.Second
	}
	if c.NATS.Name == "" {
		c.NATS.Name = "quantd"
		if c.Node.ID != "" {
			c.NATS.Name += "-" + c.Node.ID
		}
	}
	if c.NATS.SubjectPrefix == "" {
		c.NATS.SubjectPrefix = "quant"
	}
	if c.NATS.Bucket == "" {
		c.NATS.Bucket = "quant_snapshots"
	}
	if c.Host.BlockTime <= 0 {
		c.Host.BlockTime = 2 * time.Second
	}
	if c.Quant.TickSeconds == 0 {
		c.Quant.TickSeconds = uint32(c.Host.BlockTime / time.Second)
		if c.Quant.TickSeconds == 0 {
			c.Quant.TickSeconds = 1
		}
	}
	if c.Prices.CacheTTL <= 0 {
		c.Prices.CacheTTL = 10 * time.Second
	}
}

var logLevels = map[string]bool{"": true, "debug": true, "info": true, "warn": true, "error": true}

// Validate checks the configuration for correctness.
func (c *Config) Validate() error {
	switch c.Env {
	case "local", "dev", "docker", "prod":
	default:
		return fmt.Errorf("env must be one of local, dev, docker, prod, got %q", c.Env)
	}
	if !logLevels[c.Logging.Level] {
		return fmt.Errorf("logging.level must be debug, info, warn or error, got %q", c.Logging.Level)
	}
	if c.Node.ID != "" && len(c.Node.NodeIDs) > 0 && !slices.Contains(c.Node.NodeIDs, c.Node.ID) {
		return fmt.Errorf("node.node_ids must contain node.id %q", c.Node.ID)
	}
	for i, t := range c.Quant.Tokens {
		if t.Name == "" || t.ProgramID == "" {
			return fmt.Errorf("quant.tokens[%d]: name and program_id are required", i)
		}
	}
	seen := map[string]bool{}
	for i, p := range c.Programs {
		if p.ID == "" || p.Owner == "" {
			return fmt.Errorf("programs[%d]: id and owner are required", i)
		}
		if p.Interval == 0 {
			return fmt.Errorf("programs.%s.interval must be positive", p.ID)
		}
		if seen[p.ID] {
			return fmt.Errorf("programs.%s is defined twice", p.ID)
		}
		seen[p.ID] = true
	}
	return nil
}

// expandEnvVars replaces ${VAR} and ${VAR:-default} with environment variable values.
var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

func expandEnvVars(data []byte) []byte {
	return envVarRegex.ReplaceAllFunc(data, func(match []byte) []byte {
		expr := string(match[2 : len(match)-1]) // strip ${ and }
		varName, defaultVal, hasDefault := strings.Cut(expr, ":-")
		val := os.Getenv(varName)
		if val == "" && hasDefault {
			val = defaultVal
		}
		return []byte(val)
	})
}
