// Package config provides YAML-based configuration loading for Parlor.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

// Environment variables that override values from the config file.
const (
	EnvDatabaseDSN = "PARLOR_DB_DSN"
	EnvHTTPAddr    = "PARLOR_HTTP_ADDR"
	EnvJWTSecret   = "PARLOR_JWT_SECRET"
	EnvLogLevel    = "PARLOR_LOG_LEVEL"
)

// Config is the top-level Parlor configuration, loaded from parlor.yaml.
type Config struct {
	Database  DatabaseConfig `yaml:"database"`
	HTTP      HTTPConfig     `yaml:"http"`
	Bot       BotConfig      `yaml:"bot"`
	Reminders ReminderConfig `yaml:"reminders"`
	Log       LogConfig      `yaml:"log"`
}

// DatabaseConfig selects the GORM dialect and connection string.
type DatabaseConfig struct {
	Driver string `yaml:"driver"` // sqlite, mysql, postgres
	DSN    string `yaml:"dsn"`
}

// HTTPConfig holds settings for the administration API.
type HTTPConfig struct {
	Addr      string `yaml:"addr"`
	JWTSecret string `yaml:"jwt_secret"`
}

// BotConfig holds settings shared by every tenant worker.
type BotConfig struct {
	Platform        string        `yaml:"platform"`
	StopTimeout     time.Duration `yaml:"stop_timeout"`
	NotifyTimeout   time.Duration `yaml:"notify_timeout"`
	SlotStepMinutes int           `yaml:"slot_step_minutes"`
	BookingDays     int           `yaml:"booking_days"`
	NotifyRate      float64       `yaml:"notify_rate"` // sends per second per dispatcher
	NotifyBurst     int           `yaml:"notify_burst"`
}

// ReminderConfig controls the per-worker appointment reminder job.
type ReminderConfig struct {
	Enabled       bool   `yaml:"enabled"`
	Cron          string `yaml:"cron"`
	LookaheadDays int    `yaml:"lookahead_days"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level string `yaml:"level"`
}

// Platforms lists the messaging transports a tenant can run on.
var Platforms = []string{"telegram", "discord", "slack"}

var drivers = []string{"sqlite", "mysql", "postgres"}

// Load reads a YAML config file from path, applies environment overrides
// and returns a validated Config.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	return parse(data, os.LookupEnv)
}

// Parse unmarshals YAML bytes into a validated Config. Environment
// overrides are not applied.
func Parse(data []byte) (*Config, error) {
	return parse(data, func(string) (string, bool) { return "", false })
}

func parse(data []byte, lookup func(string) (string, bool)) (*Config, error) {
	cfg := Config{Reminders: ReminderConfig{Enabled: true}}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse: %w", err)
	}
	cfg.applyEnv(lookup)
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyEnv overlays environment variables onto file values.
func (c *Config) applyEnv(lookup func(string) (string, bool)) {
	if v, ok := lookup(EnvDatabaseDSN); ok && v != "" {
		c.Database.DSN = v
	}
	if v, ok := lookup(EnvHTTPAddr); ok && v != "" {
		c.HTTP.Addr = v
	}
	if v, ok := lookup(EnvJWTSecret); ok && v != "" {
		c.HTTP.JWTSecret = v
	}
	if v, ok := lookup(EnvLogLevel); ok && v != "" {
		c.Log.Level = v
	}
}

// applyDefaults fills in default values.
func (c *Config) applyDefaults() {
	if c.Database.Driver == "" {
		c.Database.Driver = "sqlite"
	}
	if c.Database.DSN == "" && c.Database.Driver == "sqlite" {
		c.Database.DSN = "parlor.db"
	}
	if c.HTTP.Addr == "" {
		c.HTTP.Addr = ":8080"
	}
	if c.Bot.Platform == "" {
		c.Bot.Platform = "telegram"
	}
	if c.Bot.StopTimeout == 0 {
		c.Bot.StopTimeout = 8 * time.Second
	}
	if c.Bot.NotifyTimeout == 0 {
		c.Bot.NotifyTimeout = 10 * time.Second
	}
	if c.Bot.SlotStepMinutes == 0 {
		c.Bot.SlotStepMinutes = 30
	}
	if c.Bot.BookingDays == 0 {
		c.Bot.BookingDays = 14
	}
	if c.Bot.NotifyRate == 0 {
		c.Bot.NotifyRate = 20
	}
	if c.Bot.NotifyBurst == 0 {
		c.Bot.NotifyBurst = 5
	}
	if c.Reminders.Cron == "" {
		c.Reminders.Cron = "0 * * * *"
	}
	if c.Reminders.LookaheadDays == 0 {
		c.Reminders.LookaheadDays = 1
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
}

// validate checks that all required fields are present and consistent.
func (c *Config) validate() error {
	var errs []string
	if !contains(drivers, c.Database.Driver) {
		errs = append(errs, fmt.Sprintf("database.driver %q must be one of %s", c.Database.Driver, strings.Join(drivers, ", ")))
	}
	if c.Database.DSN == "" {
		errs = append(errs, "database.dsn is required")
	}
	if !contains(Platforms, c.Bot.Platform) {
		errs = append(errs, fmt.Sprintf("bot.platform %q must be one of %s", c.Bot.Platform, strings.Join(Platforms, ", ")))
	}
	if c.Bot.StopTimeout < 0 {
		errs = append(errs, "bot.stop_timeout must be positive")
	}
	if c.Bot.NotifyTimeout < 0 {
		errs = append(errs, "bot.notify_timeout must be positive")
	}
	if c.Bot.SlotStepMinutes < 0 || c.Bot.SlotStepMinutes > 24*60 {
		errs = append(errs, "bot.slot_step_minutes must be between 1 and 1440")
	}
	if c.Bot.BookingDays < 0 {
		errs = append(errs, "bot.booking_days must be positive")
	}
	if c.Bot.NotifyRate < 0 {
		errs = append(errs, "bot.notify_rate must not be negative")
	}
	if c.Bot.NotifyBurst < 0 {
		errs = append(errs, "bot.notify_burst must not be negative")
	}
	if _, err := cron.ParseStandard(c.Reminders.Cron); err != nil {
		errs = append(errs, fmt.Sprintf("reminders.cron %q: %v", c.Reminders.Cron, err))
	}
	if c.Reminders.LookaheadDays < 0 {
		errs = append(errs, "reminders.lookahead_days must be positive")
	}
	if _, err := zerolog.ParseLevel(strings.ToLower(c.Log.Level)); err != nil {
		errs = append(errs, fmt.Sprintf("log.level %q is not a valid level", c.Log.Level))
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

// Level returns the zerolog level named by Log.Level, defaulting to info.
func (c *Config) Level() zerolog.Level {
	lvl, err := zerolog.ParseLevel(strings.ToLower(c.Log.Level))
	if err != nil || lvl == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return lvl
}

// String renders the config with secrets masked, for startup logging.
func (c *Config) String() string {
	secret := ""
	if c.HTTP.JWTSecret != "" {
		secret = "****"
	}
	return "driver=" + c.Database.Driver +
		" http=" + c.HTTP.Addr +
		" jwt=" + strconv.Quote(secret) +
		" platform=" + c.Bot.Platform +
		" stop_timeout=" + c.Bot.StopTimeout.String() +
		" reminders=" + strconv.FormatBool(c.Reminders.Enabled)
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
