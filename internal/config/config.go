// Package config loads settings from an optional YAML file, a best-effort
// .env file, and environment variables, in that order of increasing
// precedence. Credentials only ever come from the environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Darwin configures the PushPort STOMP connection.
type Darwin struct {
	Host           string `yaml:"host"`
	Port           int    `yaml:"port"`
	Topic          string `yaml:"topic"`
	HeartbeatMS    int    `yaml:"heartbeat_ms"`
	ReconnectWaitS int    `yaml:"reconnect_wait_s"`

	// Credentials, environment only.
	Username string `yaml:"-"`
	Password string `yaml:"-"`
}

// HSP configures the historical service performance API.
type HSP struct {
	URL      string `yaml:"url"`
	TimeoutS int    `yaml:"timeout_s"`

	Username string `yaml:"-"`
	Password string `yaml:"-"`
}

// Store configures the SQLite store and its writer queue.
type Store struct {
	Path      string `yaml:"path"`
	QueueSize int    `yaml:"queue_size"`
}

// Models configures the ensemble artifact directory.
type Models struct {
	Dir         string `yaml:"dir"`
	WeightsFile string `yaml:"weights_file"`
}

// Stations points at the reference CSV.
type Stations struct {
	CSV string `yaml:"csv"`
}

// Realtime configures the live pipeline.
type Realtime struct {
	CacheSize        int  `yaml:"cache_size"`
	PrintPredictions bool `yaml:"print_predictions"`
}

// Config holds all settings for both commands.
type Config struct {
	Darwin   Darwin   `yaml:"darwin"`
	HSP      HSP      `yaml:"hsp"`
	Store    Store    `yaml:"store"`
	Models   Models   `yaml:"models"`
	Stations Stations `yaml:"stations"`
	Realtime Realtime `yaml:"realtime"`
}

// Defaults returns a config with every optional value filled in.
func Defaults() *Config {
	return &Config{
		Darwin: Darwin{
			Port:           61613,
			HeartbeatMS:    15000,
			ReconnectWaitS: 15,
		},
		HSP: HSP{
			TimeoutS: 25,
		},
		Store: Store{
			Path:      "data/realtime.sqlite3",
			QueueSize: 5000,
		},
		Models: Models{
			Dir:         "models",
			WeightsFile: "ensemble_weights.json",
		},
		Stations: Stations{
			CSV: "data/stations.csv",
		},
		Realtime: Realtime{
			CacheSize:        500,
			PrintPredictions: true,
		},
	}
}

// Load builds the config from path (missing file is fine, the defaults
// stand), a .env file if present, and environment overrides.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case os.IsNotExist(err):
			// run on defaults + environment
		case err != nil:
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
			}
		}
	}

	// .env is a convenience for local runs; absence is not an error.
	_ = godotenv.Load()

	cfg.Darwin.Host = getEnv("DARWIN_HOST", cfg.Darwin.Host)
	cfg.Darwin.Port = getEnvInt("DARWIN_PORT", cfg.Darwin.Port)
	cfg.Darwin.Topic = getEnv("DARWIN_TOPIC", cfg.Darwin.Topic)
	cfg.Darwin.Username = getEnv("DARWIN_USER", cfg.Darwin.Username)
	cfg.Darwin.Password = getEnv("DARWIN_PASS", cfg.Darwin.Password)

	cfg.HSP.URL = getEnv("HSP_URL", cfg.HSP.URL)
	cfg.HSP.Username = getEnv("HSP_USER", cfg.HSP.Username)
	cfg.HSP.Password = getEnv("HSP_PASS", cfg.HSP.Password)

	cfg.Store.Path = getEnv("MASPHD_DB_PATH", cfg.Store.Path)
	cfg.Models.Dir = getEnv("MASPHD_MODELS_DIR", cfg.Models.Dir)
	cfg.Stations.CSV = getEnv("MASPHD_STATIONS_CSV", cfg.Stations.CSV)

	return cfg, nil
}

// Heartbeat returns the STOMP heartbeat interval.
func (d Darwin) Heartbeat() time.Duration {
	return time.Duration(d.HeartbeatMS) * time.Millisecond
}

// ReconnectWait returns the redial backoff.
func (d Darwin) ReconnectWait() time.Duration {
	return time.Duration(d.ReconnectWaitS) * time.Second
}

// Timeout returns the HSP request timeout.
func (h HSP) Timeout() time.Duration {
	return time.Duration(h.TimeoutS) * time.Second
}

// ValidateRealtime checks everything the realtime command needs, naming
// every missing key.
func (c *Config) ValidateRealtime() error {
	var missing []string
	if c.Darwin.Host == "" {
		missing = append(missing, "darwin.host (DARWIN_HOST)")
	}
	if c.Darwin.Topic == "" {
		missing = append(missing, "darwin.topic (DARWIN_TOPIC)")
	}
	if c.Darwin.Username == "" {
		missing = append(missing, "DARWIN_USER")
	}
	if c.Darwin.Password == "" {
		missing = append(missing, "DARWIN_PASS")
	}
	return missingErr(missing)
}

// ValidateEnrich checks everything the enrich command needs.
func (c *Config) ValidateEnrich() error {
	var missing []string
	if c.HSP.URL == "" {
		missing = append(missing, "hsp.url (HSP_URL)")
	}
	if c.HSP.Username == "" {
		missing = append(missing, "HSP_USER")
	}
	if c.HSP.Password == "" {
		missing = append(missing, "HSP_PASS")
	}
	return missingErr(missing)
}

func missingErr(missing []string) error {
	if len(missing) == 0 {
		return nil
	}
	return fmt.Errorf("missing required configuration: %s", strings.Join(missing, ", "))
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}
