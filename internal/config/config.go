// File: internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type RuntimeConfig struct {
	Dev bool
}

type BotConfig struct {
	Token      string  `yaml:"token" validate:"required"`
	Username   string  `yaml:"username" validate:"required"` // used for referral links
	Workers    int     `yaml:"workers" validate:"min=1"`     // polling workers
	AdminIDs   []int64 `yaml:"admin_ids"`
	SupportURL string  `yaml:"support_url"`
}

type LogConfig struct {
	Level    string `yaml:"level" validate:"oneof=trace debug info warn error"`
	Format   string `yaml:"format" validate:"oneof=json console"`
	Sampling bool   `yaml:"sampling"` // enable sampling in prod
}

type AdminConfig struct {
	Port         int           `yaml:"port" validate:"min=0,max=65535"`
	JWTSecret    string        `yaml:"jwt_secret"`
	PasswordHash string        `yaml:"password_hash"` // bcrypt
	TokenTTL     time.Duration `yaml:"token_ttl"`
}

type DatabaseConfig struct {
	URL      string `yaml:"url" validate:"required"`
	MaxConns int32  `yaml:"max_conns"`
}

type RedisConfig struct {
	URL      string        `yaml:"url" validate:"required"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	TTL      time.Duration `yaml:"ttl"` // instruction cache lifetime
}

type PaymentConfig struct {
	ProviderToken string `yaml:"provider_token" validate:"required"`
	Currency      string `yaml:"currency" validate:"len=3"`
	Receipt       bool   `yaml:"receipt"` // attach a fiscal receipt to provider_data
	VATCode       int    `yaml:"vat_code"`
	TaxSystemCode int    `yaml:"tax_system_code"`
}

type GoogleConfig struct {
	CredentialsJSON string        `yaml:"credentials_json"` // inline JSON or a path to the key file
	DriveFolderID   string        `yaml:"drive_folder_id"`
	SheetID         string        `yaml:"sheet_id"`
	SheetRange      string        `yaml:"sheet_range"`
	Timeout         time.Duration `yaml:"timeout"`
}

type StorageConfig struct {
	Dir string `yaml:"dir" validate:"required"`
}

type SchedulerConfig struct {
	Timezone         string        `yaml:"timezone"`
	DecrementAt      string        `yaml:"decrement_at"`    // HH:MM
	ExpiryCheckAt    string        `yaml:"expiry_check_at"` // HH:MM
	FeedInterval     time.Duration `yaml:"feed_interval"`
	ReminderInterval time.Duration `yaml:"reminder_interval"`
	SweepInterval    time.Duration `yaml:"sweep_interval"`
}

type SessionConfig struct {
	IdleTimeout time.Duration `yaml:"idle_timeout"`
	LockTTL     time.Duration `yaml:"lock_ttl"`
}

type OperatorConfig struct {
	ChannelID     int64   `yaml:"channel_id"`
	RatePerSecond float64 `yaml:"rate_per_second"`
}

type VPNServerConfig struct {
	URL      string        `yaml:"url"` // wg-easy base url; empty disables peer toggling
	Password string        `yaml:"password"`
	Timeout  time.Duration `yaml:"timeout"`
}

type SecurityConfig struct {
	EncryptionKey string `yaml:"encryption_key"` // empty stores contacts in plaintext
}

type Config struct {
	Bot       BotConfig       `yaml:"bot"`
	Log       LogConfig       `yaml:"log"`
	Admin     AdminConfig     `yaml:"admin"`
	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	Payment   PaymentConfig   `yaml:"payment"`
	Google    GoogleConfig    `yaml:"google"`
	Storage   StorageConfig   `yaml:"storage"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Session   SessionConfig   `yaml:"session"`
	Operator  OperatorConfig  `yaml:"operator"`
	VPNServer VPNServerConfig `yaml:"vpn_server"`
	Security  SecurityConfig  `yaml:"security"`

	Runtime RuntimeConfig `yaml:"-"`
}

// LoadConfig reads the yaml file at path, overlays variables from .env and the
// environment, applies defaults and validates the result.
func LoadConfig(path string, dev bool) (*Config, error) {
	// .env is optional
	_ = godotenv.Load()

	var cfg Config
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err == nil {
			if err := yaml.Unmarshal(b, &cfg); err != nil {
				return nil, fmt.Errorf("parse config: %w", err)
			}
		}
	}
	if err := applyEnv(&cfg); err != nil {
		return nil, err
	}
	applyDefaults(&cfg)

	if err := validator.New().Struct(&cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	for _, hhmm := range []string{cfg.Scheduler.DecrementAt, cfg.Scheduler.ExpiryCheckAt} {
		if _, _, err := ParseClock(hhmm); err != nil {
			return nil, err
		}
	}
	if _, err := time.LoadLocation(cfg.Scheduler.Timezone); err != nil {
		return nil, fmt.Errorf("scheduler.timezone: %w", err)
	}

	cfg.Runtime.Dev = dev
	return &cfg, nil
}

func applyEnv(cfg *Config) error {
	str := map[string]*string{
		"BOT_TOKEN":               &cfg.Bot.Token,
		"BOT_USERNAME":            &cfg.Bot.Username,
		"PROVIDER_TOKEN":          &cfg.Payment.ProviderToken,
		"DATABASE_URL":            &cfg.Database.URL,
		"REDIS_URL":               &cfg.Redis.URL,
		"REDIS_PASSWORD":          &cfg.Redis.Password,
		"GOOGLE_CREDENTIALS_JSON": &cfg.Google.CredentialsJSON,
		"DRIVE_FOLDER_ID":         &cfg.Google.DriveFolderID,
		"SHEET_ID":                &cfg.Google.SheetID,
		"ADMIN_JWT_SECRET":        &cfg.Admin.JWTSecret,
		"ADMIN_PASSWORD_HASH":     &cfg.Admin.PasswordHash,
		"ENCRYPTION_KEY":          &cfg.Security.EncryptionKey,
		"WG_EASY_URL":             &cfg.VPNServer.URL,
		"WG_EASY_PASSWORD":        &cfg.VPNServer.Password,
	}
	for k, dst := range str {
		if v, ok := os.LookupEnv(k); ok && v != "" {
			*dst = v
		}
	}
	if v := os.Getenv("OPERATOR_CHANNEL_ID"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("OPERATOR_CHANNEL_ID: %w", err)
		}
		cfg.Operator.ChannelID = id
	}
	if v := os.Getenv("ADMIN_IDS"); v != "" {
		ids, err := parseIDs(v)
		if err != nil {
			return fmt.Errorf("ADMIN_IDS: %w", err)
		}
		cfg.Bot.AdminIDs = ids
	}
	return nil
}

func applyDefaults(cfg *Config) {
	if cfg.Bot.Workers <= 0 {
		cfg.Bot.Workers = 8
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}
	if cfg.Admin.TokenTTL <= 0 {
		cfg.Admin.TokenTTL = 12 * time.Hour
	}
	if cfg.Database.MaxConns <= 0 {
		cfg.Database.MaxConns = 10
	}
	cfg.Redis.TTL = normalizeTTL(cfg.Redis.TTL, 10*time.Minute)
	if cfg.Payment.Currency == "" {
		cfg.Payment.Currency = "RUB"
	}
	if cfg.Payment.VATCode == 0 {
		cfg.Payment.VATCode = 1
	}
	if cfg.Payment.TaxSystemCode == 0 {
		cfg.Payment.TaxSystemCode = 1
	}
	if cfg.Google.SheetRange == "" {
		cfg.Google.SheetRange = "A:C"
	}
	cfg.Google.Timeout = normalizeTTL(cfg.Google.Timeout, 30*time.Second)
	if cfg.Storage.Dir == "" {
		cfg.Storage.Dir = "configs"
	}
	if cfg.Scheduler.Timezone == "" {
		cfg.Scheduler.Timezone = "Europe/Moscow"
	}
	if cfg.Scheduler.DecrementAt == "" {
		cfg.Scheduler.DecrementAt = "11:40"
	}
	if cfg.Scheduler.ExpiryCheckAt == "" {
		cfg.Scheduler.ExpiryCheckAt = "12:00"
	}
	cfg.Scheduler.FeedInterval = normalizeTTL(cfg.Scheduler.FeedInterval, 10*time.Minute)
	cfg.Scheduler.ReminderInterval = normalizeTTL(cfg.Scheduler.ReminderInterval, time.Minute)
	cfg.Scheduler.SweepInterval = normalizeTTL(cfg.Scheduler.SweepInterval, time.Minute)
	cfg.Session.IdleTimeout = normalizeTTL(cfg.Session.IdleTimeout, 900*time.Second)
	cfg.Session.LockTTL = normalizeTTL(cfg.Session.LockTTL, 30*time.Second)
	if cfg.Operator.RatePerSecond <= 0 {
		cfg.Operator.RatePerSecond = 1
	}
	cfg.VPNServer.Timeout = normalizeTTL(cfg.VPNServer.Timeout, 10*time.Second)
}

// ParseClock parses HH:MM.
func ParseClock(s string) (hour, minute int, err error) {
	t, err := time.Parse("15:04", strings.TrimSpace(s))
	if err != nil {
		return 0, 0, fmt.Errorf("invalid clock %q: want HH:MM", s)
	}
	return t.Hour(), t.Minute(), nil
}

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

func normalizeTTL(d, def time.Duration) time.Duration {
	if d <= 0 {
		return def
	}
	return d
}
