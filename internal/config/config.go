// File: internal/config/config.go
package config

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type RuntimeConfig struct {
	Dev bool
}

type BotConfig struct {
	Token      string  `yaml:"token"`
	Username   string  `yaml:"username"`
	AdminIDs   []int64 `yaml:"admin_ids"`
	PartnerIDs []int64 `yaml:"partner_ids"`
	Lang       string  `yaml:"lang"` // locale for bot and notifier texts
}

type LogConfig struct {
	Level    string `yaml:"level"`    // trace|debug|info|warn|error
	Format   string `yaml:"format"`   // json|console
	Sampling bool   `yaml:"sampling"` // enable sampling in prod
}

type APIConfig struct {
	Port         int           `yaml:"port"`
	Secret       string        `yaml:"secret"`
	Timeout      time.Duration `yaml:"timeout"`
	CheckLimit   int           `yaml:"check_limit"`  // requests per window per hwid, 0 disables
	CheckWindow  time.Duration `yaml:"check_window"` // rate-limit window
	MaxBodyBytes int64         `yaml:"max_body_bytes"`
}

type AdminConfig struct {
	Port      int           `yaml:"port"`
	APIKey    string        `yaml:"api_key"`
	JWTSecret string        `yaml:"jwt_secret"`
	JWTTTL    time.Duration `yaml:"jwt_ttl"`
}

// DatabaseConfig selects the backend by URL: postgres:// or postgresql://
// use PostgreSQL, anything else is treated as a SQLite path or DSN.
type DatabaseConfig struct {
	URL           string        `yaml:"url"`
	Path          string        `yaml:"path"`
	MaxConns      int32         `yaml:"max_conns"`
	RetryAttempts int           `yaml:"retry_attempts"`
	RetryDelay    time.Duration `yaml:"retry_delay"`
}

type RedisConfig struct {
	URL      string        `yaml:"url"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	TTL      time.Duration `yaml:"ttl"`
}

type LicenseConfig struct {
	TokenSecret   string        `yaml:"token_secret"`
	TokenMaxAge   time.Duration `yaml:"token_max_age"`
	SoftwareURL   string        `yaml:"software_url"`
	ManualContact string        `yaml:"manual_contact"`
}

type WorkerConfig struct {
	Count       int `yaml:"count"`
	QueueSize   int `yaml:"queue_size"`
	DeferredMax int `yaml:"deferred_max"`
}

type SchedulerConfig struct {
	Interval time.Duration `yaml:"interval"`
}

type Config struct {
	Bot       BotConfig       `yaml:"bot"`
	Log       LogConfig       `yaml:"log"`
	API       APIConfig       `yaml:"api"`
	Admin     AdminConfig     `yaml:"admin"`
	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	License   LicenseConfig   `yaml:"license"`
	Worker    WorkerConfig    `yaml:"worker"`
	Scheduler SchedulerConfig `yaml:"scheduler"`

	Runtime RuntimeConfig `yaml:"-"`
}

// LoadConfig parses command-line flags and loads the config file they point to.
func LoadConfig() (*Config, error) {
	var configPath string
	var envPath string
	var dev bool
	flag.StringVar(&configPath, "config", "config.yaml", "path to config yaml")
	flag.StringVar(&envPath, "env", ".env", "path to dotenv file")
	flag.BoolVar(&dev, "dev", false, "development mode")
	flag.Parse()

	// A missing .env is fine; real environment variables still apply.
	_ = godotenv.Load(envPath)

	return Load(configPath, dev)
}

// Load reads the yaml file at path (optional when the environment carries
// everything), applies environment overrides and defaults, and validates.
func Load(path string, dev bool) (*Config, error) {
	var cfg Config
	b, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	case errors.Is(err, os.ErrNotExist):
		// env-only deployment
	default:
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := applyEnv(&cfg); err != nil {
		return nil, err
	}
	applyDefaults(&cfg)

	// Minimal validation
	if cfg.Database.URL == "" {
		return nil, errors.New("database.url or database.path is required")
	}
	if cfg.API.Secret == "" && !dev {
		return nil, errors.New("api.secret is required")
	}
	if cfg.Database.RetryAttempts < 1 {
		return nil, errors.New("database.retry_attempts must be >= 1")
	}

	cfg.Runtime.Dev = dev
	return &cfg, nil
}

func applyEnv(cfg *Config) error {
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Database.URL = v
	}
	if v := os.Getenv("DB_PATH"); v != "" {
		cfg.Database.Path = v
	}
	if v := os.Getenv("API_SECRET"); v != "" {
		cfg.API.Secret = v
	}
	if v := os.Getenv("TOKEN_SECRET"); v != "" {
		cfg.License.TokenSecret = v
	}
	if v := firstEnv("ADMIN_BOT_TOKEN", "BOT_TOKEN"); v != "" {
		cfg.Bot.Token = v
	}
	if v := os.Getenv("BOT_LANG"); v != "" {
		cfg.Bot.Lang = v
	}
	if v := os.Getenv("REDIS_URL"); v != "" {
		cfg.Redis.URL = v
	}
	if v := os.Getenv("ADMIN_API_KEY"); v != "" {
		cfg.Admin.APIKey = v
	}
	if v := os.Getenv("PORT"); v != "" {
		p, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("parse PORT: %w", err)
		}
		cfg.API.Port = p
	}
	if v := os.Getenv("ADMIN_USER_IDS"); v != "" {
		ids, err := parseIDs(v)
		if err != nil {
			return fmt.Errorf("parse ADMIN_USER_IDS: %w", err)
		}
		cfg.Bot.AdminIDs = ids
	}
	if v := os.Getenv("PARTNER_USER_IDS"); v != "" {
		ids, err := parseIDs(v)
		if err != nil {
			return fmt.Errorf("parse PARTNER_USER_IDS: %w", err)
		}
		cfg.Bot.PartnerIDs = ids
	}
	return nil
}

func applyDefaults(cfg *Config) {
	if cfg.Database.URL == "" && cfg.Database.Path != "" {
		cfg.Database.URL = cfg.Database.Path
	}
	if cfg.Database.MaxConns <= 0 {
		cfg.Database.MaxConns = 10
	}
	if cfg.Database.RetryAttempts == 0 {
		cfg.Database.RetryAttempts = 3
	}
	if cfg.Database.RetryDelay <= 0 {
		cfg.Database.RetryDelay = 2 * time.Second
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}
	if cfg.API.Port <= 0 {
		cfg.API.Port = 8000
	}
	if cfg.API.Timeout <= 0 {
		cfg.API.Timeout = 15 * time.Second
	}
	if cfg.API.CheckWindow <= 0 {
		cfg.API.CheckWindow = time.Minute
	}
	if cfg.API.MaxBodyBytes <= 0 {
		cfg.API.MaxBodyBytes = 64 << 10
	}
	if cfg.Admin.JWTTTL <= 0 {
		cfg.Admin.JWTTTL = 12 * time.Hour
	}
	if cfg.License.TokenSecret == "" {
		cfg.License.TokenSecret = cfg.API.Secret
	}
	if cfg.License.TokenMaxAge <= 0 {
		cfg.License.TokenMaxAge = 15 * time.Minute
	}
	if cfg.Worker.Count <= 0 {
		cfg.Worker.Count = 4
	}
	if cfg.Worker.QueueSize <= 0 {
		cfg.Worker.QueueSize = 256
	}
	if cfg.Worker.DeferredMax <= 0 {
		cfg.Worker.DeferredMax = 1000
	}
	if cfg.Scheduler.Interval <= 0 {
		cfg.Scheduler.Interval = time.Minute
	}
	cfg.Redis.TTL = normalizeTTL(cfg.Redis.TTL)
}

func normalizeTTL(d time.Duration) time.Duration {
	if d <= 0 {
		return 5 * time.Minute
	}
	return d
}

func firstEnv(keys ...string) string {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			return v
		}
	}
	return ""
}

// parseIDs reads a comma separated list of numeric telegram ids, skipping blanks.
func parseIDs(s string) ([]int64, error) {
	var out []int64
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, nil
}

// OwnerID is the first configured admin, or 0 when none is set. The owner
// is the one admin who cannot be removed and who adds partner admins.
func (c *Config) OwnerID() int64 {
	if len(c.Bot.AdminIDs) == 0 {
		return 0
	}
	return c.Bot.AdminIDs[0]
}

// IsAdmin reports whether id is one of the configured bot admins.
func (c *Config) IsAdmin(id int64) bool {
	for _, a := range c.Bot.AdminIDs {
		if a == id {
			return true
		}
	}
	return false
}
