package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// Storage backends.
const (
	StoragePostgres = "postgres"
	StorageMemory   = "memory"
)

// Config holds the settings shared by the server and historian binaries.
type Config struct {
	Port      string          `yaml:"port"`
	Storage   string          `yaml:"storage"`
	LogLevel  string          `yaml:"log_level"`
	Postgres  PostgresConfig  `yaml:"postgres"`
	Redis     RedisConfig     `yaml:"redis"`
	Auth      AuthConfig      `yaml:"auth"`
	Schedule  ScheduleConfig  `yaml:"schedule"`
	Historian HistorianConfig `yaml:"historian"`

	// AllowedOrigins restricts CORS and websocket origins. Empty allows any origin.
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// PostgresConfig holds Postgres configuration.
type PostgresConfig struct {
	DSN string `yaml:"dsn"`
}

// RedisConfig holds the activity queue connection.
type RedisConfig struct {
	Addr          string `yaml:"addr"`
	DB            int    `yaml:"db"`
	ActivityQueue string `yaml:"activity_queue"`
}

// AuthConfig holds JWT settings. A zero TokenTTL means tokens never expire. Without key
// paths a fresh ed25519 pair is generated at startup.
type AuthConfig struct {
	TokenTTL       time.Duration `yaml:"token_ttl"`
	PrivateKeyPath string        `yaml:"private_key_path"`
	PublicKeyPath  string        `yaml:"public_key_path"`
}

// ScheduleConfig controls roster shuffling. A zero Seed shuffles from the clock.
type ScheduleConfig struct {
	Seed int64 `yaml:"seed"`
}

// HistorianConfig tunes activity batching.
type HistorianConfig struct {
	BatchSize  int           `yaml:"batch_size"`
	FlushDelay time.Duration `yaml:"flush_delay"`
}

// Default returns the configuration used when neither file nor environment say otherwise.
func Default() *Config {
	return &Config{
		Port:     "8080",
		Storage:  StoragePostgres,
		LogLevel: "info",
		Redis: RedisConfig{
			Addr:          "localhost:6379",
			ActivityQueue: "rally_activity",
		},
		Historian: HistorianConfig{
			BatchSize:  20,
			FlushDelay: 500 * time.Millisecond,
		},
	}
}

// LoadConfig reads filename if it exists, then applies environment overrides.
func LoadConfig(filename string) (*Config, error) {
	cfg := Default()

	if filename != "" {
		data, err := os.ReadFile(filename)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("failed to read config: %w", err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to unmarshal config: %w", err)
			}
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	if v := os.Getenv("PORT"); v != "" {
		c.Port = v
	}
	if v := os.Getenv("STORAGE"); v != "" {
		c.Storage = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		c.Postgres.DSN = v
	}
	if v := os.Getenv("ALLOWED_ORIGINS"); v != "" {
		c.AllowedOrigins = nil
		for _, o := range strings.Split(v, ",") {
			if o = strings.TrimSpace(o); o != "" {
				c.AllowedOrigins = append(c.AllowedOrigins, o)
			}
		}
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.Redis.Addr = v
	}
	if v := os.Getenv("REDIS_DB"); v != "" {
		db, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid REDIS_DB %q: %w", v, err)
		}
		c.Redis.DB = db
	}
	if v := os.Getenv("ACTIVITY_QUEUE_NAME"); v != "" {
		c.Redis.ActivityQueue = v
	}
	if v := os.Getenv("TOKEN_EXPIRE_TIME"); v != "" {
		ttl, err := parseTokenTTL(v)
		if err != nil {
			return err
		}
		c.Auth.TokenTTL = ttl
	}
	if v := os.Getenv("JWT_PRIVATE_KEY_PATH"); v != "" {
		c.Auth.PrivateKeyPath = v
	}
	if v := os.Getenv("JWT_PUBLIC_KEY_PATH"); v != "" {
		c.Auth.PublicKeyPath = v
	}
	if v := os.Getenv("SCHEDULE_SEED"); v != "" {
		seed, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid SCHEDULE_SEED %q: %w", v, err)
		}
		c.Schedule.Seed = seed
	}
	if v := os.Getenv("HISTORIAN_BATCH_SIZE"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid HISTORIAN_BATCH_SIZE %q: %w", v, err)
		}
		c.Historian.BatchSize = n
	}
	if v := os.Getenv("HISTORIAN_FLUSH_MS"); v != "" {
		ms, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid HISTORIAN_FLUSH_MS %q: %w", v, err)
		}
		c.Historian.FlushDelay = time.Duration(ms) * time.Millisecond
	}
	return nil
}

// parseTokenTTL accepts a Go duration, or "never"/"0" for tokens without expiry.
func parseTokenTTL(v string) (time.Duration, error) {
	if v == "never" || v == "0" {
		return 0, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("failed to parse token expire time: %w", err)
	}
	return d, nil
}

// Validate rejects settings the binaries cannot run with.
func (c *Config) Validate() error {
	switch c.Storage {
	case StoragePostgres:
		if c.Postgres.DSN == "" {
			return errors.New("postgres storage requires DATABASE_URL or postgres.dsn")
		}
	case StorageMemory:
	default:
		return fmt.Errorf("unknown storage %q (want %s or %s)", c.Storage, StoragePostgres, StorageMemory)
	}
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		return err
	}
	if (c.Auth.PrivateKeyPath == "") != (c.Auth.PublicKeyPath == "") {
		return errors.New("both JWT key paths must be set, or neither")
	}
	return nil
}

// Level returns the parsed log level; Validate has already checked it.
func (c *Config) Level() logrus.Level {
	lvl, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		return logrus.InfoLevel
	}
	return lvl
}
