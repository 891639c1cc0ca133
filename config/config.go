package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"breakoutBot/internal/risk"
)

// Config holds all application configuration: broker credentials and
// infrastructure settings from the environment, strategy and risk
// settings from a YAML file.
type Config struct {
	// Fyers API
	ClientID    string
	AccessToken string
	BaseURL     string
	WSURL       string

	// When set, orders are logged but not sent to the broker.
	SimulateOrders bool

	// Database
	DBPath string

	// Logging
	LogLevel string

	// Strategy file path and its parsed contents
	StrategyFile string
	Strategy     StrategyConfig
}

// TimingConfig controls the session schedule and polling cadence.
type TimingConfig struct {
	MarketOpen           string `yaml:"market_open"`            // e.g. "09:15"
	FirstCandleEnd       string `yaml:"first_candle_end"`       // e.g. "09:20"
	OpeningRangeMinutes  int    `yaml:"opening_range_minutes"`  // e.g. 5
	MonitorWindowMinutes int    `yaml:"monitor_window_minutes"` // e.g. 60
	MonitorPollMs        int    `yaml:"monitor_poll_ms"`        // e.g. 500
	PositionPollMs       int    `yaml:"position_poll_ms"`       // e.g. 500
}

// SymbolConfig describes one tradable underlying index.
type SymbolConfig struct {
	Enabled     bool   `yaml:"enabled"`
	IndexSymbol string `yaml:"index_symbol"` // e.g. "NSE:NIFTYBANK-INDEX"
	StepSize    int    `yaml:"step_size"`    // strike step, e.g. 100
	Lots        int    `yaml:"lots"`
	LotSize     int    `yaml:"lot_size"` // contract multiplier, e.g. 35
}

// EntryFilters configures the optional volume/momentum confirmation.
type EntryFilters struct {
	VolumeConfirmation   bool    `yaml:"volume_confirmation"`
	VolumePeriods        int     `yaml:"volume_periods"`
	VolumeThreshold      float64 `yaml:"volume_threshold"`
	MomentumConfirmation bool    `yaml:"momentum_confirmation"`
	MomentumPeriods      int     `yaml:"momentum_periods"`
}

// DataConfig controls retries for historical data retrieval.
type DataConfig struct {
	MaxRetries   int `yaml:"max_retries"`
	RetryDelayMs int `yaml:"retry_delay_ms"`
}

// StrategyConfig is the YAML-backed strategy definition.
type StrategyConfig struct {
	BreakoutBuffer float64                 `yaml:"breakout_buffer"` // absolute premium buffer over reference
	Timing         TimingConfig            `yaml:"timing"`
	Symbols        map[string]SymbolConfig `yaml:"symbols"`
	EntryFilters   EntryFilters            `yaml:"entry_filters"`
	Data           DataConfig              `yaml:"data"`
	Risk           risk.Parameters         `yaml:"risk"`
}

// OpeningRange returns the opening-range bar duration.
func (s *StrategyConfig) OpeningRange() time.Duration {
	return time.Duration(s.Timing.OpeningRangeMinutes) * time.Minute
}

// MonitorWindow returns the maximum breakout monitoring duration.
func (s *StrategyConfig) MonitorWindow() time.Duration {
	return time.Duration(s.Timing.MonitorWindowMinutes) * time.Minute
}

// MonitorPoll returns the breakout polling interval.
func (s *StrategyConfig) MonitorPoll() time.Duration {
	return time.Duration(s.Timing.MonitorPollMs) * time.Millisecond
}

// PositionPoll returns the position management polling interval.
func (s *StrategyConfig) PositionPoll() time.Duration {
	return time.Duration(s.Timing.PositionPollMs) * time.Millisecond
}

// RetryDelay returns the base delay between data retrieval retries.
func (s *StrategyConfig) RetryDelay() time.Duration {
	return time.Duration(s.Data.RetryDelayMs) * time.Millisecond
}

// LoadConfig loads configuration from environment variables (.env file)
// and the strategy YAML file. Any validation failure is returned as an
// error and must abort startup: the bot never runs with undefined risk
// limits or placeholder credentials.
func LoadConfig() (*Config, error) {
	// Load .env file, but don't fail if it doesn't exist (allow pure env vars)
	_ = godotenv.Load()

	cfg := &Config{}
	var errs []string

	// Fyers API
	cfg.ClientID = getEnv("FYERS_CLIENT_ID", "")
	cfg.AccessToken = getEnv("FYERS_ACCESS_TOKEN", "")
	cfg.BaseURL = getEnv("FYERS_BASE_URL", "https://api-t1.fyers.in")
	cfg.WSURL = getEnv("FYERS_WS_URL", "wss://socket.fyers.in/hsm/v1-5/prod")
	cfg.SimulateOrders = getEnvAsBool("SIMULATE_ORDERS", true) // Default to simulation for safety

	if cfg.ClientID == "" {
		errs = append(errs, "FYERS_CLIENT_ID must be set")
	}
	if cfg.AccessToken == "" {
		errs = append(errs, "FYERS_ACCESS_TOKEN must be set")
	}
	// Reject placeholder credentials copied from a template
	if strings.HasPrefix(cfg.ClientID, "YOUR_") || strings.HasPrefix(cfg.AccessToken, "YOUR_") {
		errs = append(errs, "credentials contain placeholder values")
	}

	// Database
	cfg.DBPath = getEnv("DB_PATH", "./data/breakout_bot.db")
	if cfg.DBPath == "" {
		errs = append(errs, "DB_PATH must be set")
	}

	// Logging
	cfg.LogLevel = getEnv("LOG_LEVEL", "info")

	// Strategy file
	cfg.StrategyFile = getEnv("STRATEGY_CONFIG", "./config.yaml")
	strat, stratErrs := loadStrategyFile(cfg.StrategyFile)
	if len(stratErrs) > 0 {
		errs = append(errs, stratErrs...)
	} else {
		cfg.Strategy = *strat
	}

	if len(errs) > 0 {
		return nil, fmt.Errorf("configuration validation failed: %s", strings.Join(errs, "; "))
	}

	return cfg, nil
}

// loadStrategyFile parses and validates the strategy YAML.
func loadStrategyFile(path string) (*StrategyConfig, []string) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, []string{fmt.Sprintf("failed to read strategy file %s: %v", path, err)}
	}

	strat := &StrategyConfig{}
	if err := yaml.Unmarshal(raw, strat); err != nil {
		return nil, []string{fmt.Sprintf("failed to parse strategy file %s: %v", path, err)}
	}

	return strat, ValidateStrategy(strat)
}

// ValidateStrategy checks the parsed strategy configuration and returns
// all problems found.
func ValidateStrategy(strat *StrategyConfig) []string {
	var errs []string

	if strat.BreakoutBuffer < 0 {
		errs = append(errs, "breakout_buffer cannot be negative")
	}

	if _, err := ParseClock(strat.Timing.MarketOpen); err != nil {
		errs = append(errs, fmt.Sprintf("invalid timing.market_open: %v", err))
	}
	if _, err := ParseClock(strat.Timing.FirstCandleEnd); err != nil {
		errs = append(errs, fmt.Sprintf("invalid timing.first_candle_end: %v", err))
	}
	if strat.Timing.OpeningRangeMinutes <= 0 {
		errs = append(errs, "timing.opening_range_minutes must be positive")
	}
	if strat.Timing.MonitorWindowMinutes <= 0 {
		errs = append(errs, "timing.monitor_window_minutes must be positive")
	}
	if strat.Timing.MonitorPollMs <= 0 {
		errs = append(errs, "timing.monitor_poll_ms must be positive")
	}
	if strat.Timing.PositionPollMs <= 0 {
		errs = append(errs, "timing.position_poll_ms must be positive")
	}

	enabled := 0
	for name, sym := range strat.Symbols {
		if !sym.Enabled {
			continue
		}
		enabled++
		if sym.IndexSymbol == "" {
			errs = append(errs, fmt.Sprintf("symbols.%s.index_symbol must be set", name))
		}
		if sym.StepSize <= 0 {
			errs = append(errs, fmt.Sprintf("symbols.%s.step_size must be positive", name))
		}
		if sym.Lots <= 0 {
			errs = append(errs, fmt.Sprintf("symbols.%s.lots must be positive", name))
		}
		if sym.LotSize <= 0 {
			errs = append(errs, fmt.Sprintf("symbols.%s.lot_size must be positive", name))
		}
	}
	if enabled == 0 {
		errs = append(errs, "at least one symbol must be enabled")
	}

	if strat.EntryFilters.VolumeConfirmation {
		if strat.EntryFilters.VolumePeriods <= 0 {
			errs = append(errs, "entry_filters.volume_periods must be positive")
		}
		if strat.EntryFilters.VolumeThreshold <= 0 {
			errs = append(errs, "entry_filters.volume_threshold must be positive")
		}
	}
	if strat.EntryFilters.MomentumConfirmation && strat.EntryFilters.MomentumPeriods <= 1 {
		errs = append(errs, "entry_filters.momentum_periods must be greater than 1")
	}

	if strat.Data.MaxRetries <= 0 {
		errs = append(errs, "data.max_retries must be positive")
	}
	if strat.Data.RetryDelayMs <= 0 {
		errs = append(errs, "data.retry_delay_ms must be positive")
	}

	if err := strat.Risk.Validate(); err != nil {
		errs = append(errs, err.Error())
	}

	return errs
}

// ParseClock parses an "HH:MM" wall-clock string.
func ParseClock(value string) (time.Time, error) {
	t, err := time.Parse("15:04", value)
	if err != nil {
		return time.Time{}, fmt.Errorf("expected HH:MM, got %q", value)
	}
	return t, nil
}

// --- Env Var Helpers ---

func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
