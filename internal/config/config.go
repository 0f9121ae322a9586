package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/shadowsight/shadowsight/internal/integrity"
	"github.com/shadowsight/shadowsight/internal/model"
)

// Store backends.
const (
	StorePostgres  = "postgres"
	StoreFirestore = "firestore"
	StoreSQLite    = "sqlite"
)

// Auth modes.
const (
	AuthFirebase = "firebase"
	AuthHS256    = "hs256"
)

// Config holds all application configuration
type Config struct {
	// Storage
	Store       string `yaml:"store"`
	DatabaseURL string `yaml:"database_url"`
	SQLitePath  string `yaml:"sqlite_path"`

	// Google Cloud
	GCPProject           string `yaml:"gcp_project"`
	SessionsCollection   string `yaml:"sessions_collection"`
	EventsCollection     string `yaml:"events_collection"`
	RecruitersCollection string `yaml:"recruiters_collection"`
	PubSubTopic          string `yaml:"pubsub_topic"`

	// HTTP Server
	HTTPAddr string `yaml:"http_addr"`

	// Cache
	RedisURL string        `yaml:"redis_url"`
	CacheTTL time.Duration `yaml:"cache_ttl"`

	// Auth
	AuthMode     string `yaml:"auth_mode"`
	AuthSecret   string `yaml:"auth_secret"`
	AuthSecretID string `yaml:"auth_secret_id"` // Secret Manager ID holding AuthSecret
	JWKSURL      string `yaml:"jwks_url"`

	// Rescore scheduler
	RescoreInterval time.Duration `yaml:"rescore_interval"`
	RescoreWorkers  int           `yaml:"rescore_workers"`
	RescoreBatch    int           `yaml:"rescore_batch"`

	// Trust score deductions per event type
	Weights map[string]int `yaml:"weights"`

	// Logging
	Debug     bool   `yaml:"debug"`
	LogFormat string `yaml:"log_format"`
}

// Default returns the configuration used when nothing is set.
func Default() *Config {
	return &Config{
		Store:                StoreSQLite,
		SQLitePath:           "shadowsight.db",
		SessionsCollection:   "sessions",
		EventsCollection:     "flaggedEvents",
		RecruitersCollection: "recruiters",
		HTTPAddr:             ":8080",
		CacheTTL:             5 * time.Minute,
		AuthMode:             AuthFirebase,
		RescoreInterval:      time.Hour,
		RescoreWorkers:       4,
		RescoreBatch:         100,
		Weights:              weightsToConfig(integrity.DefaultWeights()),
		LogFormat:            "text",
	}
}

// Load reads configuration from the YAML file named by SHADOWSIGHT_CONFIG, if
// any, then from environment variables, which take precedence.
func Load() (*Config, error) {
	cfg := Default()

	if path := os.Getenv("SHADOWSIGHT_CONFIG"); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	cfg.Store = strings.ToLower(getEnv("SHADOWSIGHT_STORE", cfg.Store))
	cfg.DatabaseURL = getEnv("SHADOWSIGHT_DB_URL", cfg.DatabaseURL)
	cfg.SQLitePath = getEnv("SHADOWSIGHT_SQLITE_PATH", cfg.SQLitePath)
	cfg.GCPProject = getEnv("SHADOWSIGHT_GCP_PROJECT", getEnv("GOOGLE_CLOUD_PROJECT", cfg.GCPProject))
	cfg.SessionsCollection = getEnv("SHADOWSIGHT_SESSIONS_COLLECTION", cfg.SessionsCollection)
	cfg.EventsCollection = getEnv("SHADOWSIGHT_EVENTS_COLLECTION", cfg.EventsCollection)
	cfg.RecruitersCollection = getEnv("SHADOWSIGHT_RECRUITERS_COLLECTION", cfg.RecruitersCollection)
	cfg.PubSubTopic = getEnv("SHADOWSIGHT_PUBSUB_TOPIC", cfg.PubSubTopic)
	cfg.HTTPAddr = getEnv("SHADOWSIGHT_HTTP_ADDR", cfg.HTTPAddr)
	cfg.RedisURL = getEnv("SHADOWSIGHT_REDIS_URL", cfg.RedisURL)
	cfg.CacheTTL = getEnvDuration("SHADOWSIGHT_CACHE_TTL", cfg.CacheTTL)
	cfg.AuthMode = strings.ToLower(getEnv("SHADOWSIGHT_AUTH_MODE", cfg.AuthMode))
	cfg.AuthSecret = getEnv("SHADOWSIGHT_AUTH_SECRET", cfg.AuthSecret)
	cfg.AuthSecretID = getEnv("SHADOWSIGHT_AUTH_SECRET_ID", cfg.AuthSecretID)
	cfg.JWKSURL = getEnv("SHADOWSIGHT_JWKS_URL", cfg.JWKSURL)
	cfg.RescoreInterval = getEnvDuration("SHADOWSIGHT_RESCORE_INTERVAL", cfg.RescoreInterval)
	cfg.RescoreWorkers = getEnvInt("SHADOWSIGHT_RESCORE_WORKERS", cfg.RescoreWorkers)
	cfg.RescoreBatch = getEnvInt("SHADOWSIGHT_RESCORE_BATCH", cfg.RescoreBatch)
	if cfg.Weights == nil {
		cfg.Weights = make(map[string]int)
	}
	for _, t := range model.EventTypes {
		key := "SHADOWSIGHT_WEIGHT_" + strings.ToUpper(string(t))
		if os.Getenv(key) != "" {
			cfg.Weights[string(t)] = getEnvInt(key, cfg.Weights[string(t)])
		}
	}
	cfg.Debug = getEnvBool("SHADOWSIGHT_DEBUG", cfg.Debug)
	cfg.LogFormat = strings.ToLower(getEnv("SHADOWSIGHT_LOG_FORMAT", cfg.LogFormat))

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

// Validate checks that each selected backend has what it needs.
func (c *Config) Validate() error {
	switch c.Store {
	case StorePostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("SHADOWSIGHT_DB_URL is required for the postgres store")
		}
	case StoreFirestore:
		if c.GCPProject == "" {
			return fmt.Errorf("SHADOWSIGHT_GCP_PROJECT is required for the firestore store")
		}
	case StoreSQLite:
		if c.SQLitePath == "" {
			return fmt.Errorf("SHADOWSIGHT_SQLITE_PATH is required for the sqlite store")
		}
	default:
		return fmt.Errorf("unknown store %q", c.Store)
	}

	switch c.AuthMode {
	case AuthFirebase:
		if c.GCPProject == "" {
			return fmt.Errorf("SHADOWSIGHT_GCP_PROJECT is required for firebase auth")
		}
	case AuthHS256:
		if c.AuthSecret == "" && c.AuthSecretID == "" {
			return fmt.Errorf("SHADOWSIGHT_AUTH_SECRET or SHADOWSIGHT_AUTH_SECRET_ID is required for hs256 auth")
		}
		if c.AuthSecret == "" && c.GCPProject == "" {
			return fmt.Errorf("SHADOWSIGHT_GCP_PROJECT is required to read SHADOWSIGHT_AUTH_SECRET_ID")
		}
	default:
		return fmt.Errorf("unknown auth mode %q", c.AuthMode)
	}

	if c.PubSubTopic != "" && c.GCPProject == "" {
		return fmt.Errorf("SHADOWSIGHT_GCP_PROJECT is required for SHADOWSIGHT_PUBSUB_TOPIC")
	}
	if c.RescoreWorkers < 1 {
		return fmt.Errorf("rescore workers must be at least 1")
	}
	if c.LogFormat != "text" && c.LogFormat != "json" {
		return fmt.Errorf("unknown log format %q", c.LogFormat)
	}
	if err := c.ScoreWeights().Validate(); err != nil {
		return fmt.Errorf("weights: %w", err)
	}
	return nil
}

// ScoreWeights returns the configured deduction table.
func (c *Config) ScoreWeights() integrity.Weights {
	w := make(integrity.Weights, len(c.Weights))
	for t, v := range c.Weights {
		w[model.EventType(strings.ToLower(t))] = v
	}
	return w
}

func weightsToConfig(w integrity.Weights) map[string]int {
	out := make(map[string]int, len(w))
	for t, v := range w {
		out[string(t)] = v
	}
	return out
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt retrieves an environment variable as an integer or returns a default value
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvBool retrieves an environment variable as a boolean or returns a default value
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

// getEnvDuration retrieves an environment variable as a duration or returns a default value
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
