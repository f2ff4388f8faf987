package infra

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/Samsonboadi/CryptoPro/internal/risk"
	"github.com/Samsonboadi/CryptoPro/internal/strategy"
)

// Trading modes.
const (
	ModePaper = "PAPER"
	ModeLive  = "LIVE"
)

// Config holds the full application configuration. Loaded from YAML, then
// sensitive values are overridden from the environment.
type Config struct {
	App struct {
		Name    string `yaml:"name"`
		Version string `yaml:"version"`
	} `yaml:"app"`

	Trading struct {
		Mode              string   `yaml:"mode"`
		Pairs             []string `yaml:"pairs"`
		TradeFrequencySec int      `yaml:"trade_frequency_sec"`
		MinConfidence     float64  `yaml:"min_confidence"`
		InitialBalance    float64  `yaml:"initial_balance"`
	} `yaml:"trading"`

	Risk risk.Limits `yaml:"risk"`

	Strategies struct {
		Enabled  []string                `yaml:"enabled"`
		RSI      strategy.RSIConfig      `yaml:"rsi"`
		MACD     strategy.MACDConfig     `yaml:"macd"`
		SMACross strategy.SMACrossConfig `yaml:"sma_cross"`
	} `yaml:"strategies"`

	Indicators struct {
		Lookback int `yaml:"lookback"`
	} `yaml:"indicators"`

	Exchange struct {
		WSURL     string `yaml:"ws_url"`
		APIKey    string `yaml:"api_key"`
		APISecret string `yaml:"api_secret"`
	} `yaml:"exchange"`

	Storage struct {
		JournalPath string `yaml:"journal_path"`
	} `yaml:"storage"`

	Logging struct {
		Level string `yaml:"level"`
	} `yaml:"logging"`
}

// TradeFrequency returns the evaluation cadence as a duration.
func (c *Config) TradeFrequency() time.Duration {
	return time.Duration(c.Trading.TradeFrequencySec) * time.Second
}

// DefaultConfig returns a runnable paper-mode configuration.
func DefaultConfig() *Config {
	cfg := &Config{}
	cfg.App.Name = "cryptopro"
	cfg.Trading.Mode = ModePaper
	cfg.Trading.Pairs = []string{"BTCUSD-PERP"}
	cfg.Trading.TradeFrequencySec = 10
	cfg.Trading.MinConfidence = 0.6
	cfg.Trading.InitialBalance = 10000
	cfg.Risk = risk.DefaultLimits()
	cfg.Strategies.Enabled = []string{"rsi"}
	cfg.Strategies.RSI = strategy.DefaultRSIConfig()
	cfg.Strategies.MACD = strategy.DefaultMACDConfig()
	cfg.Strategies.SMACross = strategy.DefaultSMACrossConfig()
	cfg.Indicators.Lookback = 200
	cfg.Storage.JournalPath = "cryptopro.db"
	cfg.Logging.Level = "info"
	return cfg
}

// LoadConfig reads and parses the config file, applies environment
// overrides and validates the result.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	overrideWithEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks configuration validity.
func (c *Config) Validate() error {
	switch c.Trading.Mode {
	case ModePaper, ModeLive:
	default:
		return fmt.Errorf("unknown trading mode: %s", c.Trading.Mode)
	}
	if len(c.Trading.Pairs) == 0 {
		return fmt.Errorf("at least one trading pair is required")
	}
	if c.Trading.TradeFrequencySec <= 0 {
		return fmt.Errorf("trade frequency must be positive")
	}
	if c.Trading.MinConfidence < 0 || c.Trading.MinConfidence > 1 {
		return fmt.Errorf("min_confidence must be in [0,1]: %v", c.Trading.MinConfidence)
	}
	if c.Risk.MaxOpenPositions <= 0 {
		return fmt.Errorf("max_open_positions must be positive")
	}
	if c.Risk.MinTradeAmount.GreaterThan(c.Risk.MaxTradeAmount) {
		return fmt.Errorf("min_trade_amount exceeds max_trade_amount")
	}
	if len(c.Strategies.Enabled) == 0 {
		return fmt.Errorf("at least one strategy must be enabled")
	}
	for _, id := range c.Strategies.Enabled {
		switch id {
		case "rsi", "macd", "sma_cross":
		default:
			return fmt.Errorf("unknown strategy: %s", id)
		}
	}
	if c.Indicators.Lookback <= 0 {
		return fmt.Errorf("indicator lookback must be positive")
	}
	if c.Trading.Mode == ModeLive {
		if c.Exchange.WSURL == "" ||
			(!strings.HasPrefix(c.Exchange.WSURL, "ws://") && !strings.HasPrefix(c.Exchange.WSURL, "wss://")) {
			return fmt.Errorf("invalid exchange WS URL: %s", c.Exchange.WSURL)
		}
		if c.Exchange.APIKey == "" || c.Exchange.APISecret == "" {
			return fmt.Errorf("live mode requires API credentials")
		}
	}
	return nil
}

// overrideWithEnv lets the environment take precedence over the file for
// credentials.
func overrideWithEnv(cfg *Config) {
	if cfg.Exchange.APISecret != "" {
		fmt.Println("WARNING: API secret found in config file; prefer CRYPTOPRO_API_SECRET")
	}
	if key := os.Getenv("CRYPTOPRO_API_KEY"); key != "" {
		cfg.Exchange.APIKey = key
	}
	if secret := os.Getenv("CRYPTOPRO_API_SECRET"); secret != "" {
		cfg.Exchange.APISecret = secret
	}
	if mode := os.Getenv("CRYPTOPRO_MODE"); mode != "" {
		cfg.Trading.Mode = mode
	}
}
