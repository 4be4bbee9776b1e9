// Package config loads the keeper configuration from YAML with
// environment overrides.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the full keeper configuration.
type Config struct {
	Ledger  LedgerConfig  `yaml:"ledger"`
	Draw    DrawConfig    `yaml:"draw"`
	Health  HealthConfig  `yaml:"health"`
	HTTP    HTTPConfig    `yaml:"http"`
	Storage StorageConfig `yaml:"storage"`
	Profile ProfileConfig `yaml:"profile"`
}

// LedgerConfig locates the program and the authority key.
type LedgerConfig struct {
	RPCURL           string        `yaml:"rpc_url"`
	ProgramID        string        `yaml:"program_id"`
	OracleQueue      string        `yaml:"oracle_queue"`
	AuthorityKeyPath string        `yaml:"authority_key_path"` // empty = read-only mode
	RequestTimeout   time.Duration `yaml:"request_timeout"`
	ConfirmAttempts  int           `yaml:"confirm_attempts"`
	ConfirmInterval  time.Duration `yaml:"confirm_interval"`
}

// DrawConfig tunes the scheduled draw.
type DrawConfig struct {
	// Time is the daily wall-clock trigger, "HH:MM" in Timezone.
	Time         string        `yaml:"time"`
	Timezone     string        `yaml:"timezone"`
	PollAttempts int           `yaml:"poll_attempts"`
	PollInterval time.Duration `yaml:"poll_interval"`
}

// HealthConfig tunes the monitor loop.
type HealthConfig struct {
	Interval time.Duration `yaml:"interval"`
}

// HTTPConfig tunes the REST surface.
type HTTPConfig struct {
	Listen       string  `yaml:"listen"`
	AdminSecret  string  `yaml:"admin_secret"`
	TriggerRate  float64 `yaml:"trigger_rate"`
	TriggerBurst int     `yaml:"trigger_burst"`
}

// StorageConfig selects persistence backends. Empty values fall back to
// in-memory implementations.
type StorageConfig struct {
	PostgresDSN string `yaml:"postgres_dsn"`
	RedisAddr   string `yaml:"redis_addr"`
	RedisDB     int    `yaml:"redis_db"`
}

// ProfileConfig locates the optional profile service.
type ProfileConfig struct {
	BaseURL string `yaml:"base_url"`
	APIKey  string `yaml:"api_key"`
}

// Default returns the baseline configuration before file and environment
// overrides.
func Default() Config {
	return Config{
		Ledger: LedgerConfig{
			RPCURL:          "http://localhost:8899",
			RequestTimeout:  30 * time.Second,
			ConfirmAttempts: 30,
			ConfirmInterval: 2 * time.Second,
		},
		Draw: DrawConfig{
			Time:         "21:00",
			Timezone:     "UTC",
			PollAttempts: 30,
			PollInterval: 2 * time.Second,
		},
		Health: HealthConfig{Interval: 5 * time.Minute},
		HTTP: HTTPConfig{
			Listen:       ":8080",
			TriggerRate:  0.2,
			TriggerBurst: 1,
		},
	}
}

// Load reads the config file at path (optional) and applies environment
// overrides on top of the defaults.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config: %w", err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	setString(&c.Ledger.RPCURL, "LOTTERY_RPC_URL")
	setString(&c.Ledger.ProgramID, "LOTTERY_PROGRAM_ID")
	setString(&c.Ledger.OracleQueue, "LOTTERY_ORACLE_QUEUE")
	setString(&c.Ledger.AuthorityKeyPath, "LOTTERY_AUTHORITY_KEY")
	setString(&c.Draw.Time, "LOTTERY_DRAW_TIME")
	setString(&c.Draw.Timezone, "LOTTERY_DRAW_TIMEZONE")
	setString(&c.HTTP.Listen, "LOTTERY_HTTP_LISTEN")
	setString(&c.HTTP.AdminSecret, "LOTTERY_ADMIN_SECRET")
	setString(&c.Storage.PostgresDSN, "LOTTERY_POSTGRES_DSN")
	setString(&c.Storage.RedisAddr, "LOTTERY_REDIS_ADDR")
	setInt(&c.Storage.RedisDB, "LOTTERY_REDIS_DB")
	setString(&c.Profile.BaseURL, "LOTTERY_PROFILE_URL")
	setString(&c.Profile.APIKey, "LOTTERY_PROFILE_API_KEY")
}

// Validate checks the fields every run needs.
func (c *Config) Validate() error {
	if c.Ledger.RPCURL == "" {
		return fmt.Errorf("ledger rpc_url is required")
	}
	if c.Ledger.ProgramID == "" {
		return fmt.Errorf("ledger program_id is required")
	}
	if _, err := time.Parse("15:04", c.Draw.Time); err != nil {
		return fmt.Errorf("draw time %q: want HH:MM", c.Draw.Time)
	}
	if _, err := time.LoadLocation(c.Draw.Timezone); err != nil {
		return fmt.Errorf("draw timezone %q: %w", c.Draw.Timezone, err)
	}
	if c.HTTP.Listen == "" {
		return fmt.Errorf("http listen address is required")
	}
	return nil
}

// Location resolves the draw timezone. Validate must have passed.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Draw.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}
