package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Environment variables consumed by the fabric.
const (
	EnvSocketDir            = "RELAY_DOMAIN_SOCKET_DIR"
	EnvReplayBufferSize     = "RELAY_REPLAY_BUFFER_SIZE"
	EnvGapSnapshotThreshold = "RELAY_GAP_SNAPSHOT_THRESHOLD"
	EnvRingCapacityLog2     = "RING_CAPACITY_LOG2"
	EnvRingMaxConsumers     = "RING_MAX_CONSUMERS"
)

// Config is the deployment configuration of a broker process.
// Precedence: environment (including .env) > YAML file > defaults. No
// command-line flag overrides an individual field.
type Config struct {
	SocketDir            string        `yaml:"socket_dir"`
	MarketDataSocket     string        `yaml:"market_data_socket"`
	SignalsSocket        string        `yaml:"signals_socket"`
	ExecutionSocket      string        `yaml:"execution_socket"`
	ReplayBufferSize     int           `yaml:"replay_buffer_size"`
	GapSnapshotThreshold uint64        `yaml:"gap_snapshot_threshold"`
	ConsumerIdleTimeout  time.Duration `yaml:"consumer_idle_timeout"`
	RingDir              string        `yaml:"ring_dir"`
	RingCapacityLog2     uint          `yaml:"ring_capacity_log2"`
	RingMaxConsumers     int           `yaml:"ring_max_consumers"`
	LogLevel             string        `yaml:"log_level"`
}

// Default returns the stock configuration.
func Default() Config {
	return Config{
		SocketDir:            "/tmp/alphapulse",
		MarketDataSocket:     "market_data.sock",
		SignalsSocket:        "signals.sock",
		ExecutionSocket:      "execution.sock",
		GapSnapshotThreshold: 100,
		RingDir:              "/tmp/alphapulse",
		RingCapacityLog2:     20,
		RingMaxConsumers:     8,
		LogLevel:             "info",
	}
}

// Load assembles the configuration: defaults, then the optional YAML
// file, then a .env file if present, then real environment variables.
func Load(yamlPath string) (Config, error) {
	cfg := Default()

	if yamlPath != "" {
		raw, err := os.ReadFile(yamlPath)
		if err != nil {
			return cfg, fmt.Errorf("config: read %s: %w", yamlPath, err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return cfg, fmt.Errorf("config: parse %s: %w", yamlPath, err)
		}
	}

	// .env is optional; a missing file is not an error.
	_ = godotenv.Load()

	if err := cfg.applyEnv(); err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

func (c *Config) applyEnv() error {
	if v := os.Getenv(EnvSocketDir); v != "" {
		c.SocketDir = v
	}
	if v := os.Getenv(EnvReplayBufferSize); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("config: %s=%q: %w", EnvReplayBufferSize, v, err)
		}
		c.ReplayBufferSize = n
	}
	if v := os.Getenv(EnvGapSnapshotThreshold); v != "" {
		n, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return fmt.Errorf("config: %s=%q: %w", EnvGapSnapshotThreshold, v, err)
		}
		c.GapSnapshotThreshold = n
	}
	if v := os.Getenv(EnvRingCapacityLog2); v != "" {
		n, err := strconv.ParseUint(v, 10, 8)
		if err != nil {
			return fmt.Errorf("config: %s=%q: %w", EnvRingCapacityLog2, v, err)
		}
		c.RingCapacityLog2 = uint(n)
	}
	if v := os.Getenv(EnvRingMaxConsumers); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("config: %s=%q: %w", EnvRingMaxConsumers, v, err)
		}
		c.RingMaxConsumers = n
	}
	return nil
}

// Validate rejects configurations a broker cannot run with.
func (c *Config) Validate() error {
	if c.SocketDir == "" {
		return fmt.Errorf("config: empty socket dir")
	}
	if c.RingCapacityLog2 < 3 || c.RingCapacityLog2 > 30 {
		return fmt.Errorf("config: ring capacity log2 %d out of [3,30]", c.RingCapacityLog2)
	}
	if c.RingMaxConsumers < 1 || c.RingMaxConsumers > 64 {
		return fmt.Errorf("config: ring max consumers %d out of [1,64]", c.RingMaxConsumers)
	}
	if c.GapSnapshotThreshold == 0 {
		return fmt.Errorf("config: zero gap snapshot threshold")
	}
	return nil
}

// MarketDataPath returns the market-data socket path.
func (c *Config) MarketDataPath() string { return filepath.Join(c.SocketDir, c.MarketDataSocket) }

// SignalsPath returns the signals socket path.
func (c *Config) SignalsPath() string { return filepath.Join(c.SocketDir, c.SignalsSocket) }

// ExecutionPath returns the execution socket path.
func (c *Config) ExecutionPath() string { return filepath.Join(c.SocketDir, c.ExecutionSocket) }

// RingPath returns the shared-memory file for a channel.
func (c *Config) RingPath(channel string) string {
	return filepath.Join(c.RingDir, channel+".shm")
}
