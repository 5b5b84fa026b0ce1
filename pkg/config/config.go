package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/nats-io/nats.go"
	"gopkg.in/yaml.v3"
)

const (
	TransportLocal = "local"
	TransportNATS  = "nats"
)

// Config is the run configuration: how ranks are formed and where results
// and metrics go. It does not describe the integral itself (see Problem).
type Config struct {
	Transport      string        `yaml:"transport"`       // local, nats
	NP             int           `yaml:"np"`              // ranks in local mode, controller included
	ReceiveTimeout time.Duration `yaml:"receive_timeout"` // 0 waits forever
	MetricsAddr    string        `yaml:"metrics_addr"`    // empty disables /metrics
	NATS           NATSConfig    `yaml:"nats"`
	MQTT           MQTTConfig    `yaml:"mqtt"`
}

// NATSConfig describes this process's place in a NATS-backed group.
type NATSConfig struct {
	URL         string        `yaml:"url"`
	Subject     string        `yaml:"subject"` // prefix for rank inboxes and the join subject
	Rank        int           `yaml:"rank"`
	Size        int           `yaml:"size"`
	JoinTimeout time.Duration `yaml:"join_timeout"`
}

// MQTTConfig enables publication of the final result when Broker is set.
type MQTTConfig struct {
	Broker   string `yaml:"broker"`
	Topic    string `yaml:"topic"`
	ClientID string `yaml:"client_id"`
	QoS      byte   `yaml:"qos"`
}

// Default returns a config for a four-rank local run.
func Default() *Config {
	cfg := &Config{}
	if err := Validate(cfg); err != nil {
		panic(err)
	}
	return cfg
}

// Load reads a YAML file (if path is non-empty), applies environment
// overrides and validates the result.
func Load(path string) (*Config, error) {
	cfg, err := Read(path)
	if err != nil {
		return nil, err
	}
	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Read is Load without validation, for callers that layer more overrides
// on top before calling Validate.
func Read(path string) (*Config, error) {
	var cfg Config
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	applyEnv(&cfg)
	return &cfg, nil
}

// Validate checks the config and fills defaults for unset fields.
func Validate(cfg *Config) error {
	if cfg.Transport == "" {
		cfg.Transport = TransportLocal
	}
	if cfg.NP == 0 {
		cfg.NP = 4
	}
	if cfg.ReceiveTimeout < 0 {
		return fmt.Errorf("receive_timeout must be >= 0")
	}

	switch cfg.Transport {
	case TransportLocal:
		if cfg.NP < 1 {
			return fmt.Errorf("np must be >= 1, got %d", cfg.NP)
		}
	case TransportNATS:
		if cfg.NATS.Size < 1 {
			return fmt.Errorf("nats.size must be >= 1, got %d", cfg.NATS.Size)
		}
		if cfg.NATS.Rank < 0 || cfg.NATS.Rank >= cfg.NATS.Size {
			return fmt.Errorf("nats.rank must be in [0, %d), got %d", cfg.NATS.Size, cfg.NATS.Rank)
		}
	default:
		return fmt.Errorf("unknown transport %q (must be 'local' or 'nats')", cfg.Transport)
	}

	if cfg.NATS.URL == "" {
		cfg.NATS.URL = nats.DefaultURL
	}
	if cfg.NATS.Subject == "" {
		cfg.NATS.Subject = "quadsched"
	}
	if cfg.NATS.JoinTimeout == 0 {
		cfg.NATS.JoinTimeout = 30 * time.Second
	}

	if cfg.MQTT.Broker != "" {
		if cfg.MQTT.Topic == "" {
			cfg.MQTT.Topic = "quadsched/results"
		}
		if cfg.MQTT.ClientID == "" {
			cfg.MQTT.ClientID = "quadsched-controller"
		}
		if cfg.MQTT.QoS > 2 {
			return fmt.Errorf("mqtt.qos must be 0, 1 or 2, got %d", cfg.MQTT.QoS)
		}
	}
	return nil
}

func applyEnv(cfg *Config) {
	cfg.Transport = getEnvAsString("QUADSCHED_TRANSPORT", cfg.Transport)
	cfg.NP = getEnvAsInt("QUADSCHED_NP", cfg.NP)
	cfg.NATS.URL = getEnvAsString("QUADSCHED_NATS_URL", cfg.NATS.URL)
	cfg.NATS.Rank = getEnvAsInt("QUADSCHED_RANK", cfg.NATS.Rank)
	cfg.NATS.Size = getEnvAsInt("QUADSCHED_SIZE", cfg.NATS.Size)
}

func getEnvAsString(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvAsInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.Atoi(val); err == nil {
			return parsed
		}
	}
	return defaultVal
}
