package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

// Config is the engine configuration. Values come from an optional YAML
// file; environment variables override them.
type Config struct {
	Port      string `yaml:"port"`
	Store     string `yaml:"store"`
	SeedPath  string `yaml:"seed_path"`
	JWTSecret string `yaml:"jwt_secret"`

	Auction struct {
		BiddingWindow      time.Duration `yaml:"bidding_window"`
		AntiSnipeWindow    time.Duration `yaml:"anti_snipe_window"`
		AntiSnipeExtension time.Duration `yaml:"anti_snipe_extension"`
	} `yaml:"auction"`

	Scheduler struct {
		Interval time.Duration `yaml:"interval"`
		Workers  int           `yaml:"workers"`
	} `yaml:"scheduler"`

	Relay struct {
		Kind          string `yaml:"kind"`
		NATSURL       string `yaml:"nats_url"`
		RedisAddr     string `yaml:"redis_addr"`
		RedisPassword string `yaml:"redis_password"`
		RedisDB       int    `yaml:"redis_db"`
	} `yaml:"relay"`

	Notifications struct {
		QueueSize int `yaml:"queue_size"`
		Workers   int `yaml:"workers"`
	} `yaml:"notifications"`

	CORS struct {
		AllowedOrigins []string `yaml:"allowed_origins"`
	} `yaml:"cors"`
}

const (
	storeMemory   = "memory"
	storePostgres = "postgres"

	relayNone  = "none"
	relayNATS  = "nats"
	relayRedis = "redis"
)

func defaultConfig() *Config {
	cfg := &Config{
		Port:  "8080",
		Store: storePostgres,
	}
	cfg.Auction.BiddingWindow = 5 * time.Minute
	cfg.Auction.AntiSnipeWindow = 15 * time.Second
	cfg.Auction.AntiSnipeExtension = 15 * time.Second
	cfg.Scheduler.Interval = 5 * time.Second
	cfg.Scheduler.Workers = 4
	cfg.Relay.Kind = relayNone
	cfg.CORS.AllowedOrigins = []string{"*"}
	return cfg
}

// loadConfig reads path (if non-empty) over the defaults and then applies
// environment overrides.
func loadConfig(path string) (*Config, error) {
	cfg := defaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	cfg.Port = getEnv("PORT", cfg.Port)
	cfg.Store = strings.ToLower(getEnv("STORE", cfg.Store))
	cfg.SeedPath = getEnv("SEED_PATH", cfg.SeedPath)
	cfg.JWTSecret = getEnv("JWT_SECRET", cfg.JWTSecret)
	cfg.Relay.Kind = strings.ToLower(getEnv("RELAY", cfg.Relay.Kind))
	cfg.Relay.NATSURL = getEnv("NATS_URL", cfg.Relay.NATSURL)
	cfg.Relay.RedisAddr = getEnv("REDIS_ADDR", cfg.Relay.RedisAddr)
	cfg.Relay.RedisPassword = getEnv("REDIS_PASSWORD", cfg.Relay.RedisPassword)
	cfg.Relay.RedisDB = getEnvAsInt("REDIS_DB", cfg.Relay.RedisDB)
	if origins := os.Getenv("CORS_ALLOWED_ORIGINS"); origins != "" {
		cfg.CORS.AllowedOrigins = strings.Split(origins, ",")
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	switch c.Store {
	case storeMemory, storePostgres:
	default:
		return fmt.Errorf("unknown store %q", c.Store)
	}
	switch c.Relay.Kind {
	case relayNone:
	case relayNATS:
		if c.Relay.NATSURL == "" {
			return fmt.Errorf("NATS_URL is required for the nats relay")
		}
	case relayRedis:
		if c.Relay.RedisAddr == "" {
			return fmt.Errorf("REDIS_ADDR is required for the redis relay")
		}
	default:
		return fmt.Errorf("unknown relay %q", c.Relay.Kind)
	}
	return nil
}

// setupLogging configures the global zerolog logger from LOG_LEVEL and
// LOG_FORMAT.
func setupLogging() {
	if getEnv("LOG_FORMAT", "console") == "console" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}
	level, err := zerolog.ParseLevel(getEnv("LOG_LEVEL", "info"))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}
