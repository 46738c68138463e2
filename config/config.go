package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config represents the overall application configuration.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Booking    BookingConfig    `yaml:"booking"`
	Admin      AdminConfig      `yaml:"admin"`
	Database   DatabaseConfig   `yaml:"database"`
	Lark       LarkConfig       `yaml:"lark"`
	Push       PushConfig       `yaml:"push"`
	WorkerPool WorkerPoolConfig `yaml:"worker_pool"`
}

// ServerConfig holds the server-related configuration.
type ServerConfig struct {
	Port            int      `yaml:"port"`
	RequestIPHeader string   `yaml:"request_ip_header"`
	RateLimitPerSec float64  `yaml:"rate_limit_per_sec"`
	RateLimitBurst  int      `yaml:"rate_limit_burst"`
	AllowedOrigins  []string `yaml:"allowed_origins"`
}

// SlotCount is the number of weekly slots in a month's ledger.
const SlotCount = 4

// BookingConfig describes the monthly slot ledger.
type BookingConfig struct {
	SlotNames []string       `yaml:"slot_names"`
	Timezone  string         `yaml:"timezone"`
	Location  *time.Location `yaml:"-"`
}

// AdminConfig holds the digest of the admin password used for ledger resets.
// Both bcrypt hashes and hex encoded SHA-256 digests are accepted.
type AdminConfig struct {
	PasswordDigest string `yaml:"password_digest"`
}

// DatabaseConfig holds the storage backend configuration.
type DatabaseConfig struct {
	Driver                 string `yaml:"driver"` // sqlite, postgres or redis
	DSN                    string `yaml:"dsn"`
	MaxOpenConns           int    `yaml:"max_open_conns"`
	MaxIdleConns           int    `yaml:"max_idle_conns"`
	ConnMaxLifetimeMinutes int    `yaml:"conn_max_lifetime_minutes"`
	LogSQL                 bool   `yaml:"log_sql"`
	RedisAddr              string `yaml:"redis_addr"`
	RedisPassword          string `yaml:"redis_password"`
	RedisDB                int    `yaml:"redis_db"`
	RedisKeyPrefix         string `yaml:"redis_key_prefix"`
	FallbackCacheMinutes   int    `yaml:"fallback_cache_minutes"`
}

// LarkConfig holds the chat platform credentials and endpoints.
type LarkConfig struct {
	AppID                string `yaml:"app_id"`
	AppSecret            string `yaml:"app_secret"`
	BaseURL              string `yaml:"base_url"`
	ReceiveID            string `yaml:"receive_id"`
	ReceiveIDType        string `yaml:"receive_id_type"`
	WebhookURL           string `yaml:"webhook_url"`
	InvitationTemplateID string `yaml:"invitation_template_id"`
	EnableCallbacks      bool   `yaml:"enable_callbacks"`
}

// Enabled reports whether the app credentials are present.
func (l LarkConfig) Enabled() bool {
	return l.AppID != "" && l.AppSecret != ""
}

// CallbacksEnabled reports whether card callbacks arrive over the long
// connection instead of the HTTP respond endpoint.
func (l LarkConfig) CallbacksEnabled() bool {
	return l.Enabled() && l.EnableCallbacks
}

// PushConfig holds the VAPID keys for web push notifications.
type PushConfig struct {
	PublicKey  string `yaml:"vapid_public_key"`
	PrivateKey string `yaml:"vapid_private_key"`
	Subject    string `yaml:"subject"`
	TTL        int    `yaml:"ttl"`
}

// Enabled reports whether both VAPID keys are configured.
func (p PushConfig) Enabled() bool {
	return p.PublicKey != "" && p.PrivateKey != ""
}

// WorkerPoolConfig holds the configuration for the notification worker pool.
type WorkerPoolConfig struct {
	Size                 int `yaml:"size"`
	QueueSize            int `yaml:"queue_size"`
	MaxAttempts          int `yaml:"max_attempts"`
	InitialBackoffMillis int `yaml:"initial_backoff_ms"`
	MaxBackoffMillis     int `yaml:"max_backoff_ms"`
}

// InitialBackoff returns the delay before the first retry.
func (w WorkerPoolConfig) InitialBackoff() time.Duration {
	return time.Duration(w.InitialBackoffMillis) * time.Millisecond
}

// MaxBackoff returns the upper bound for retry delays.
func (w WorkerPoolConfig) MaxBackoff() time.Duration {
	return time.Duration(w.MaxBackoffMillis) * time.Millisecond
}

// LoadEnvFiles loads .env style files into the process environment.
// Missing files are skipped; variables that are already set win.
func LoadEnvFiles(paths ...string) error {
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("failed to load env file %s: %w", p, err)
		}
		log.Printf("environment loaded from %s", p)
	}
	return nil
}

// Load reads the configuration from the given path. A missing file is not an
// error: defaults and environment overrides are used instead.
func Load(path string) (*Config, error) {
	var cfg Config

	f, err := os.Open(path)
	switch {
	case err == nil:
		defer f.Close()
		decoder := yaml.NewDecoder(f)
		if err := decoder.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("failed to decode %s: %w", path, err)
		}
	case errors.Is(err, fs.ErrNotExist):
		log.Printf("config file %s not found; using defaults and environment", path)
	default:
		return nil, err
	}

	applyEnv(&cfg)

	if err := applyDefaults(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyEnv(cfg *Config) {
	setString := func(dst *string, key string) {
		if v, ok := os.LookupEnv(key); ok && v != "" {
			*dst = v
		}
	}
	setString(&cfg.Lark.AppID, "LARK_APP_ID")
	setString(&cfg.Lark.AppSecret, "LARK_APP_SECRET")
	setString(&cfg.Lark.WebhookURL, "LARK_WEBHOOK_URL")
	setString(&cfg.Lark.ReceiveID, "LARK_RECEIVE_ID")
	setString(&cfg.Admin.PasswordDigest, "ADMIN_PASSWORD_DIGEST")
	setString(&cfg.Database.Driver, "DATABASE_DRIVER")
	setString(&cfg.Database.DSN, "DATABASE_DSN")
	setString(&cfg.Database.RedisAddr, "REDIS_ADDR")
	setString(&cfg.Push.PublicKey, "VAPID_PUBLIC_KEY")
	setString(&cfg.Push.PrivateKey, "VAPID_PRIVATE_KEY")

	if v := os.Getenv("PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		} else {
			log.Printf("ignoring invalid PORT %q: %v", v, err)
		}
	}
}

func applyDefaults(cfg *Config) error {
	if cfg.Server.Port <= 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.RateLimitPerSec <= 0 {
		cfg.Server.RateLimitPerSec = 10
	}
	if cfg.Server.RateLimitBurst <= 0 {
		cfg.Server.RateLimitBurst = 5
	}

	if len(cfg.Booking.SlotNames) == 0 {
		cfg.Booking.SlotNames = []string{"Week 1", "Week 2", "Week 3", "Week 4"}
	}
	if len(cfg.Booking.SlotNames) != SlotCount {
		return fmt.Errorf("booking.slot_names must name exactly %d slots, got %d", SlotCount, len(cfg.Booking.SlotNames))
	}
	seen := make(map[string]bool, len(cfg.Booking.SlotNames))
	for _, name := range cfg.Booking.SlotNames {
		if name == "" {
			return errors.New("booking.slot_names must not contain empty names")
		}
		if seen[name] {
			return fmt.Errorf("booking.slot_names contains duplicate %q", name)
		}
		seen[name] = true
	}
	if cfg.Booking.Timezone == "" {
		cfg.Booking.Timezone = "Asia/Shanghai"
	}
	loc, err := time.LoadLocation(cfg.Booking.Timezone)
	if err != nil {
		return fmt.Errorf("failed to load timezone %q: %w", cfg.Booking.Timezone, err)
	}
	cfg.Booking.Location = loc

	if cfg.Admin.PasswordDigest == "" {
		log.Printf("admin.password_digest is not set; ledger resets are disabled")
	}

	if cfg.Database.Driver == "" {
		cfg.Database.Driver = "sqlite"
	}
	switch cfg.Database.Driver {
	case "sqlite":
		if cfg.Database.DSN == "" {
			cfg.Database.DSN = "./data/booking.db"
		}
	case "postgres":
		if cfg.Database.DSN == "" {
			return errors.New("database.dsn is required for the postgres driver")
		}
	case "redis":
		if cfg.Database.RedisAddr == "" {
			cfg.Database.RedisAddr = "localhost:6379"
		}
	default:
		return fmt.Errorf("unsupported database.driver %q", cfg.Database.Driver)
	}
	if cfg.Database.RedisKeyPrefix == "" {
		cfg.Database.RedisKeyPrefix = "coffee:"
	}
	if cfg.Database.FallbackCacheMinutes <= 0 {
		cfg.Database.FallbackCacheMinutes = 24 * 60
	}

	if cfg.Lark.ReceiveIDType == "" {
		cfg.Lark.ReceiveIDType = "open_id"
	}

	if cfg.Push.TTL <= 0 {
		cfg.Push.TTL = 3600
	}

	if cfg.WorkerPool.Size <= 0 {
		log.Printf("worker_pool.size is not set or invalid; defaulting to 1")
		cfg.WorkerPool.Size = 1
	}
	if cfg.WorkerPool.QueueSize <= 0 {
		cfg.WorkerPool.QueueSize = 64
	}
	if cfg.WorkerPool.MaxAttempts <= 0 {
		cfg.WorkerPool.MaxAttempts = 3
	}
	if cfg.WorkerPool.InitialBackoffMillis <= 0 {
		cfg.WorkerPool.InitialBackoffMillis = 500
	}
	if cfg.WorkerPool.MaxBackoffMillis < cfg.WorkerPool.InitialBackoffMillis {
		cfg.WorkerPool.MaxBackoffMillis = 10 * cfg.WorkerPool.InitialBackoffMillis
	}

	return nil
}
