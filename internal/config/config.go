package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

const (
	defaultConfigPath    = "config.json"
	defaultServerAddress = ":3001"
	defaultConvertAPIURL = "https://v2.convertapi.com"
	defaultMaxUploadMB   = 50
)

// Config represents runtime configuration for the relay.
type Config struct {
	BasicConfig BasicConfig               `json:"basic_config" toml:"basic_config"`
	ConvertAPI  ConvertAPIConfig          `json:"convertapi" toml:"convertapi"`
	Assistant   AssistantConfig           `json:"assistant" toml:"assistant"`
	Providers   map[string]ProviderConfig `json:"providers" toml:"providers"`
	Databases   map[string]DatabaseConfig `json:"databases" toml:"databases"`
	Redis       RedisConfig               `json:"redis" toml:"redis"`
}

type BasicConfig struct {
	ServerAddress string `json:"server_address" toml:"server_address"`
	UploadDir     string `json:"upload_dir" toml:"upload_dir"`
	ConvertedDir  string `json:"converted_dir" toml:"converted_dir"`
	// PublicBaseURL is prepended to artifact links when the client is not same-origin.
	PublicBaseURL      string   `json:"public_base_url" toml:"public_base_url"`
	MaxUploadMB        int64    `json:"max_upload_mb" toml:"max_upload_mb"`
	ArtifactTTLMinutes int      `json:"artifact_ttl_minutes" toml:"artifact_ttl_minutes"`
	CleanInterval      int      `json:"clean_interval_minutes" toml:"clean_interval_minutes"`
	RateLimitPerMinute int      `json:"rate_limit_per_minute" toml:"rate_limit_per_minute"`
	AllowedOrigins     []string `json:"allowed_origins" toml:"allowed_origins"`
	Database           string   `json:"database" toml:"database"`
}

type ConvertAPIConfig struct {
	BaseURL        string `json:"base_url" toml:"base_url"`
	Secret         string `json:"secret" toml:"secret"`
	TimeoutSeconds int    `json:"timeout_seconds" toml:"timeout_seconds"`
}

// AssistantConfig selects the backend used for summaries and chat.
// Provider is one of openai, claude, gemini, remote; empty disables both endpoints.
type AssistantConfig struct {
	Provider    string `json:"provider" toml:"provider"`
	Model       string `json:"model" toml:"model"`
	EnableTools bool   `json:"enable_tools" toml:"enable_tools"`
}

type ProviderConfig struct {
	BaseURL string `json:"base_url" toml:"base_url"`
	Model   string `json:"model" toml:"model"`
	APIKey  string `json:"api_key" toml:"api_key"`
}

type DatabaseConfig struct {
	DSN      string `json:"dsn" toml:"dsn"`
	Host     string `json:"host" toml:"host"`
	Port     int    `json:"port" toml:"port"`
	Username string `json:"username" toml:"username"`
	Password string `json:"password" toml:"password"`
	DBName   string `json:"db_name" toml:"db_name"`
	Params   string `json:"params" toml:"params"`
}

type RedisConfig struct {
	Enabled           bool   `json:"enabled" toml:"enabled"`
	Host              string `json:"host" toml:"host"`
	Port              int    `json:"port" toml:"port"`
	Username          string `json:"username" toml:"username"`
	Password          string `json:"password" toml:"password"`
	DB                int    `json:"db" toml:"db"`
	Prefix            string `json:"prefix" toml:"prefix"`
	SummaryTTLMinutes int    `json:"summary_ttl_minutes" toml:"summary_ttl_minutes"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		BasicConfig: BasicConfig{
			ServerAddress:      defaultServerAddress,
			UploadDir:          "uploads",
			ConvertedDir:       "converted",
			MaxUploadMB:        defaultMaxUploadMB,
			ArtifactTTLMinutes: 24 * 60,
			CleanInterval:      60,
			Database:           "sqlite3",
		},
		ConvertAPI: ConvertAPIConfig{
			BaseURL:        defaultConvertAPIURL,
			TimeoutSeconds: 120,
		},
		Databases: map[string]DatabaseConfig{
			"sqlite3": {DSN: "ctrlr.db"},
		},
	}
}

// Load reads configuration from the provided path (defaults to config.json).
// A missing default file falls back to Default(); an explicit path must exist.
// Files ending in .toml are decoded as TOML, everything else as JSON.
func Load(path string) (*Config, error) {
	explicit := path != ""
	if path == "" {
		path = defaultConfigPath
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve config path: %w", err)
	}

	cfg := Default()
	file, err := os.Open(absPath)
	switch {
	case err == nil:
		defer file.Close()
		if strings.EqualFold(filepath.Ext(absPath), ".toml") {
			if _, err := toml.NewDecoder(file).Decode(cfg); err != nil {
				return nil, fmt.Errorf("decode config: %w", err)
			}
		} else if err := json.NewDecoder(file).Decode(cfg); err != nil {
			return nil, fmt.Errorf("decode config: %w", err)
		}
	case errors.Is(err, os.ErrNotExist) && !explicit:
		// run on defaults
	default:
		return nil, fmt.Errorf("open config %s: %w", absPath, err)
	}

	applyEnv(cfg)
	cfg.resolvePaths(filepath.Dir(absPath))
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := strings.TrimSpace(os.Getenv("CONVERTAPI_SECRET")); v != "" {
		cfg.ConvertAPI.Secret = v
	}
	if v := strings.TrimSpace(os.Getenv("CTRLR_ADDR")); v != "" {
		cfg.BasicConfig.ServerAddress = v
	}
	if v := strings.TrimSpace(os.Getenv("CTRLR_PUBLIC_BASE_URL")); v != "" {
		cfg.BasicConfig.PublicBaseURL = v
	}
}

func (c *Config) resolvePaths(base string) {
	abs := func(p string) string {
		if p == "" || filepath.IsAbs(p) {
			return p
		}
		return filepath.Join(base, p)
	}
	c.BasicConfig.UploadDir = abs(c.BasicConfig.UploadDir)
	c.BasicConfig.ConvertedDir = abs(c.BasicConfig.ConvertedDir)
	for name, db := range c.Databases {
		if isSQLite(name) && db.DSN != "" && !strings.HasPrefix(db.DSN, ":memory:") && !strings.HasPrefix(db.DSN, "file:") {
			db.DSN = abs(db.DSN)
			c.Databases[name] = db
		}
	}
}

func (c *Config) validate() error {
	if c.BasicConfig.UploadDir == "" || c.BasicConfig.ConvertedDir == "" {
		return errors.New("upload_dir and converted_dir must be configured")
	}
	if c.BasicConfig.UploadDir == c.BasicConfig.ConvertedDir {
		return errors.New("upload_dir and converted_dir must differ")
	}
	if c.BasicConfig.MaxUploadMB < 0 {
		return errors.New("max_upload_mb cannot be negative")
	}
	if p := strings.ToLower(strings.TrimSpace(c.Assistant.Provider)); p != "" {
		if _, ok := c.Providers[p]; !ok {
			return fmt.Errorf("assistant provider %s not configured", p)
		}
	}
	return nil
}

// MaxUploadBytes is the largest accepted upload; zero means unlimited.
func (b BasicConfig) MaxUploadBytes() int64 {
	return b.MaxUploadMB << 20
}

// ArtifactTTL is how long converted files are kept; zero keeps them forever.
func (b BasicConfig) ArtifactTTL() time.Duration {
	if b.ArtifactTTLMinutes <= 0 {
		return 0
	}
	return time.Duration(b.ArtifactTTLMinutes) * time.Minute
}

func (b BasicConfig) CleanupInterval() time.Duration {
	if b.CleanInterval <= 0 {
		return time.Hour
	}
	return time.Duration(b.CleanInterval) * time.Minute
}

func (c ConvertAPIConfig) Timeout() time.Duration {
	if c.TimeoutSeconds <= 0 {
		return 2 * time.Minute
	}
	return time.Duration(c.TimeoutSeconds) * time.Second
}

func (r RedisConfig) SummaryTTL() time.Duration {
	if r.SummaryTTLMinutes <= 0 {
		return 6 * time.Hour
	}
	return time.Duration(r.SummaryTTLMinutes) * time.Minute
}

func isSQLite(name string) bool {
	switch strings.ToLower(name) {
	case "sqlite", "sqlite3":
		return true
	}
	return false
}
