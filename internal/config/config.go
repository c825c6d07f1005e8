package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Run modes
const (
	ModeLive   = "LIVE"
	ModeDryRun = "DRY_RUN"
)

// Config holds all configuration for the straddle seller. It is built once
// at startup and passed by pointer into each component; nothing reads
// configuration globally after that.
type Config struct {
	API      APIConfig      `yaml:"api"`
	Market   MarketConfig   `yaml:"market"`
	Strategy StrategyConfig `yaml:"strategy"`
	Client   ClientConfig   `yaml:"client"`
	Ops      OpsConfig      `yaml:"ops"`
	LogLevel string         `yaml:"log_level"`
}

// APIConfig holds exchange connection settings. Credentials come from the
// environment only, never from the config file.
type APIConfig struct {
	Key     string `yaml:"-"`
	Secret  string `yaml:"-"`
	BaseURL string `yaml:"base_url"`
}

// MarketConfig identifies the reference asset
type MarketConfig struct {
	Symbol     string `yaml:"symbol"`     // e.g. ETHUSDT
	Underlying string `yaml:"underlying"` // ticker substring matched against option descriptions, e.g. ETH
}

// StrategyConfig holds the trade parameters
type StrategyConfig struct {
	Mode            string  `yaml:"mode"`      // LIVE or DRY_RUN
	SellTime        string  `yaml:"sell_time"` // HH:MM, 24-hour, in Timezone
	Timezone        string  `yaml:"timezone"`
	Quantity        int64   `yaml:"quantity"`
	StopLossFactor  float64 `yaml:"stop_loss_factor"`  // fraction of best bid
	StopPriceFactor float64 `yaml:"stop_price_factor"` // fraction of the stop-loss price
}

// ClientConfig holds REST client tuning
type ClientConfig struct {
	Timeout       time.Duration `yaml:"timeout"`
	MaxRetries    int           `yaml:"max_retries"`
	RatePerSecond float64       `yaml:"rate_per_second"`
	RateBurst     int           `yaml:"rate_burst"`
}

// OpsConfig holds the observability HTTP server settings
type OpsConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

// Load reads the YAML config file, applies environment overrides and
// defaults, and validates the result
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	c.applyEnv()
	c.applyDefaults()

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &c, nil
}

func (c *Config) applyEnv() {
	c.API.Key = os.Getenv("DELTA_API_KEY")
	c.API.Secret = os.Getenv("DELTA_API_SECRET")

	if v := os.Getenv("DELTA_BASE_URL"); v != "" {
		c.API.BaseURL = v
	}
	if v := os.Getenv("STRADDLE_MODE"); v != "" {
		c.Strategy.Mode = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
}

func (c *Config) applyDefaults() {
	if c.API.BaseURL == "" {
		c.API.BaseURL = "https://api.india.delta.exchange"
	}
	if c.Strategy.Mode == "" {
		c.Strategy.Mode = ModeDryRun
	}
	if c.Strategy.Timezone == "" {
		c.Strategy.Timezone = "Asia/Kolkata"
	}
	if c.Market.Underlying == "" {
		c.Market.Underlying = strings.TrimSuffix(c.Market.Symbol, "USDT")
	}
	if c.Client.Timeout == 0 {
		c.Client.Timeout = 10 * time.Second
	}
	if c.Client.MaxRetries == 0 {
		c.Client.MaxRetries = 3
	}
	if c.Client.RatePerSecond == 0 {
		c.Client.RatePerSecond = 10
	}
	if c.Client.RateBurst == 0 {
		c.Client.RateBurst = 5
	}
	if c.Ops.Port == 0 {
		c.Ops.Port = 8080
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
}

// Validate validates the configuration. Missing required keys are fatal at
// startup.
func (c *Config) Validate() error {
	if c.API.Key == "" {
		return fmt.Errorf("DELTA_API_KEY is required")
	}
	if c.API.Secret == "" {
		return fmt.Errorf("DELTA_API_SECRET is required")
	}
	if c.Market.Symbol == "" {
		return fmt.Errorf("market.symbol is required")
	}
	if c.Strategy.Mode != ModeLive && c.Strategy.Mode != ModeDryRun {
		return fmt.Errorf("strategy.mode must be %q or %q, got %q", ModeLive, ModeDryRun, c.Strategy.Mode)
	}
	if _, _, err := c.SellAt(); err != nil {
		return err
	}
	if _, err := c.Location(); err != nil {
		return fmt.Errorf("invalid strategy.timezone %q: %w", c.Strategy.Timezone, err)
	}
	if c.Strategy.Quantity <= 0 {
		return fmt.Errorf("strategy.quantity must be positive, got %d", c.Strategy.Quantity)
	}
	if c.Strategy.StopLossFactor <= 0 {
		return fmt.Errorf("strategy.stop_loss_factor must be positive, got %v", c.Strategy.StopLossFactor)
	}
	if c.Strategy.StopPriceFactor <= 0 {
		return fmt.Errorf("strategy.stop_price_factor must be positive, got %v", c.Strategy.StopPriceFactor)
	}
	if c.Ops.Port <= 0 || c.Ops.Port > 65535 {
		return fmt.Errorf("invalid ops.port: %d", c.Ops.Port)
	}
	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[c.LogLevel] {
		return fmt.Errorf("invalid log_level: %s", c.LogLevel)
	}
	return nil
}

// SellAt parses the configured sell time into hour and minute
func (c *Config) SellAt() (hour, minute int, err error) {
	parts := strings.Split(c.Strategy.SellTime, ":")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("strategy.sell_time must be HH:MM, got %q", c.Strategy.SellTime)
	}

	hour, err = strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return 0, 0, fmt.Errorf("invalid hour in strategy.sell_time: %q", c.Strategy.SellTime)
	}
	minute, err = strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return 0, 0, fmt.Errorf("invalid minute in strategy.sell_time: %q", c.Strategy.SellTime)
	}

	return hour, minute, nil
}

// Location resolves the configured timezone
func (c *Config) Location() (*time.Location, error) {
	return time.LoadLocation(c.Strategy.Timezone)
}

// DryRun reports whether orders should be simulated instead of submitted
func (c *Config) DryRun() bool {
	return c.Strategy.Mode == ModeDryRun
}
