package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the server's runtime configuration, loaded once at boot.
type Config struct {
	Server ServerConfig `yaml:"server"`
	Store  StoreConfig  `yaml:"store"`
	Kafka  KafkaConfig  `yaml:"kafka"`
	Log    LogConfig    `yaml:"log"`
}

type ServerConfig struct {
	ListenAddr        string        `yaml:"listenAddr"`
	MetricsAddr       string        `yaml:"metricsAddr"`
	MaxConns          int           `yaml:"maxConns"`
	InactivityTimeout time.Duration `yaml:"inactivityTimeout"`
}

type StoreConfig struct {
	Dir string `yaml:"dir"`
}

type KafkaConfig struct {
	Enabled           bool          `yaml:"enabled"`
	Brokers           []string      `yaml:"brokers"`
	FeedTopic         string        `yaml:"feedTopic"`
	OutboxTopic       string        `yaml:"outboxTopic"`
	BroadcastInterval time.Duration `yaml:"broadcastInterval"`
}

type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json or console
}

func Default() Config {
	return Config{
		Server: ServerConfig{
			ListenAddr:        ":9876",
			MetricsAddr:       ":9100",
			MaxConns:          256,
			InactivityTimeout: 30 * time.Minute,
		},
		Store: StoreConfig{Dir: "./data"},
		Kafka: KafkaConfig{
			Enabled:           false,
			FeedTopic:         "cross.trades",
			OutboxTopic:       "cross.notifications",
			BroadcastInterval: 250 * time.Millisecond,
		},
		Log: LogConfig{Level: "info", Format: "json"},
	}
}

// Load reads YAML config from path over the defaults and applies basic
// validation. A .env file next to the process, if present, is loaded into
// the environment first; CROSS_STORE_DIR overrides the store directory.
func Load(path string) (Config, error) {
	_ = godotenv.Load()

	cfg := Default()
	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return cfg, fmt.Errorf("parse yaml: %w", err)
	}
	if dir := os.Getenv("CROSS_STORE_DIR"); dir != "" {
		cfg.Store.Dir = dir
	}
	if err := Validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func Validate(cfg Config) error {
	if cfg.Server.ListenAddr == "" {
		return errors.New("server.listenAddr is required")
	}
	if cfg.Server.MaxConns <= 0 {
		return errors.New("server.maxConns must be positive")
	}
	if cfg.Server.InactivityTimeout <= 0 {
		return errors.New("server.inactivityTimeout must be positive")
	}
	if cfg.Store.Dir == "" {
		return errors.New("store.dir is required")
	}
	if cfg.Kafka.Enabled && len(cfg.Kafka.Brokers) == 0 {
		return errors.New("kafka.brokers is required when kafka is enabled")
	}
	return nil
}
