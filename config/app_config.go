package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v2"
)

const (
	DEFAULT_DIFFICULTY        = 5
	DEFAULT_COINBASE_REWARD   = 50.0
	DEFAULT_BROADCAST_TIMEOUT = 5
	DEFAULT_LOG_LEVEL         = "info"
)

// This is the global app config for the blockchain.
type AppConfig struct {
	// How many leading 0 hex digits form a valid hash.
	DIFFICULTY int `yaml:"difficulty"`
	// The coinbase reward minted by every block.
	COINBASE_REWARD float64 `yaml:"coinbase_reward"`
	// Abandon the current proof of work when a peer block moves the tail.
	REMINE_ON_TAIL_CHANGE bool `yaml:"remine_on_tail_change"`
	// Per peer timeout for gossip calls, in seconds.
	BROADCAST_TIMEOUT_SECONDS int `yaml:"broadcast_timeout_seconds"`
	// Upper bound on the nonce search, 0 is unbounded.
	MAX_NONCE int64 `yaml:"max_nonce"`
	// zap level name.
	LOG_LEVEL string `yaml:"log_level"`
	// Directory of the chain database. Empty keeps everything in memory.
	DATA_DIR string `yaml:"data_dir"`
}

// DefaultAppConfig matches the reference network: difficulty 5, reward 50.
func DefaultAppConfig() AppConfig {
	return AppConfig{
		DIFFICULTY:                DEFAULT_DIFFICULTY,
		COINBASE_REWARD:           DEFAULT_COINBASE_REWARD,
		REMINE_ON_TAIL_CHANGE:     true,
		BROADCAST_TIMEOUT_SECONDS: DEFAULT_BROADCAST_TIMEOUT,
		LOG_LEVEL:                 DEFAULT_LOG_LEVEL,
	}
}

// WithDefaults fills every zero field with its default.
func (c AppConfig) WithDefaults() AppConfig {
	d := DefaultAppConfig()
	if c.DIFFICULTY == 0 {
		c.DIFFICULTY = d.DIFFICULTY
	}
	if c.COINBASE_REWARD == 0 {
		c.COINBASE_REWARD = d.COINBASE_REWARD
	}
	if c.BROADCAST_TIMEOUT_SECONDS == 0 {
		c.BROADCAST_TIMEOUT_SECONDS = d.BROADCAST_TIMEOUT_SECONDS
	}
	if c.LOG_LEVEL == "" {
		c.LOG_LEVEL = d.LOG_LEVEL
	}
	return c
}

func (c AppConfig) Validate() error {
	if c.DIFFICULTY < 1 || c.DIFFICULTY > 64 {
		return fmt.Errorf("difficulty must be within [1, 64], got %d", c.DIFFICULTY)
	}
	if c.COINBASE_REWARD <= 0 {
		return fmt.Errorf("coinbase reward must be positive, got %v", c.COINBASE_REWARD)
	}
	if c.BROADCAST_TIMEOUT_SECONDS < 0 || c.MAX_NONCE < 0 {
		return fmt.Errorf("timeouts and nonce bound cannot be negative")
	}
	return nil
}

func (c AppConfig) BroadcastTimeout() time.Duration {
	return time.Duration(c.BROADCAST_TIMEOUT_SECONDS) * time.Second
}

// ParseAppConfig reads a YAML config on top of the defaults. An empty path
// yields the defaults.
func ParseAppConfig(path string) (AppConfig, error) {
	c := DefaultAppConfig()
	if path != "" {
		yamlFile, err := os.ReadFile(path)
		if err != nil {
			return c, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.UnmarshalStrict(yamlFile, &c); err != nil {
			return c, fmt.Errorf("unmarshal config %s: %w", path, err)
		}
	}
	c = c.WithDefaults()
	return c, c.Validate()
}
