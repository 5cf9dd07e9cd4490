// Package config provides configuration management for the trade processing
// pipeline.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	yaml "gopkg.in/yaml.v3"

	"github.com/anshugovil/testenfusion/internal/instrument"
)

const (
	// defaultQuoteTimeout bounds a single quote lookup when quotes.timeout is unset
	defaultQuoteTimeout = 5 * time.Second
	// defaultBaseCurrency is the native currency assumed for underlyings
	// with no explicit override
	defaultBaseCurrency = "INR"
)

// Config represents the complete application configuration.
type Config struct {
	Environment EnvironmentConfig `yaml:"environment"`
	Instruments InstrumentsConfig `yaml:"instruments"`
	FX          FXConfig          `yaml:"fx"`
	Quotes      QuotesConfig      `yaml:"quotes"`
	Report      ReportConfig      `yaml:"report"`
	Dashboard   DashboardConfig   `yaml:"dashboard"`
}

// EnvironmentConfig defines the environment settings.
type EnvironmentConfig struct {
	LogLevel string `yaml:"log_level"` // debug | info | warn | error
}

// InstrumentsConfig defines the symbol reference data exposed to the
// normalizer and the deliverables generator.
type InstrumentsConfig struct {
	// LotSizes maps underlying symbols to contract lot sizes. Underlyings
	// missing here fall back to 1 and are flagged on the parsed key.
	LotSizes map[string]int64 `yaml:"lot_sizes"`
	// IndexUnderlyings are cash-settled index products: no physical
	// delivery legs are generated for them at expiry.
	IndexUnderlyings []string `yaml:"index_underlyings"`
	// Currencies overrides the native currency per underlying.
	Currencies map[string]string `yaml:"currencies"`
	// BaseCurrency is the native currency assumed when no override exists.
	BaseCurrency string `yaml:"base_currency"`
}

// FXConfig defines the reporting-currency conversion applied by the report
// layer. The core calculators never convert.
type FXConfig struct {
	USDRate float64 `yaml:"usd_rate"` // units of base currency per USD
}

// QuotesConfig defines the price-quote provider settings.
type QuotesConfig struct {
	Provider string `yaml:"provider"` // static | http
	File     string `yaml:"file"`     // price CSV for the static provider
	Endpoint string `yaml:"endpoint"` // quote URL for the http provider
	Timeout  string `yaml:"timeout"`  // Go duration string, e.g. "5s"
}

// ReportConfig defines report output settings.
type ReportConfig struct {
	OutputDir string `yaml:"output_dir"`
	Prefix    string `yaml:"prefix"`
	AccountID string `yaml:"account_id"`
	// CounterpartyCode and BrokerName feed the ACM ListedTrades mapping.
	CounterpartyCode string `yaml:"counterparty_code"`
	BrokerName       string `yaml:"broker_name"`
}

// DashboardConfig defines the run-result HTTP view settings.
type DashboardConfig struct {
	Port      int    `yaml:"port"`
	AuthToken string `yaml:"auth_token"`
	RunFile   string `yaml:"run_file"`
}

// Load reads and parses the configuration file from the specified path.
func Load(configPath string) (*Config, error) {
	if configPath == "" {
		configPath = "config.yaml"
	}

	data, err := os.ReadFile(configPath) // #nosec G304 -- configPath is a user-provided config file path
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables
	expanded := os.ExpandEnv(string(data))

	var config Config
	dec := yaml.NewDecoder(strings.NewReader(expanded))
	dec.KnownFields(true)
	if err := dec.Decode(&config); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &config, nil
}

// Validate checks that all configuration values are valid and consistent,
// and normalizes defaults in place.
func (c *Config) Validate() error {
	switch c.Environment.LogLevel {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("environment.log_level must be one of debug, info, warn, error")
	}

	for sym, n := range c.Instruments.LotSizes {
		if n <= 0 {
			return fmt.Errorf("instruments.lot_sizes[%s] must be > 0", sym)
		}
	}
	if c.Instruments.BaseCurrency == "" {
		c.Instruments.BaseCurrency = defaultBaseCurrency
	}

	if c.FX.USDRate < 0 {
		return fmt.Errorf("fx.usd_rate must be >= 0")
	}

	switch c.Quotes.Provider {
	case "", "static":
		c.Quotes.Provider = "static"
	case "http":
		if c.Quotes.Endpoint == "" {
			return fmt.Errorf("quotes.endpoint is required for the http provider")
		}
	default:
		return fmt.Errorf("quotes.provider must be 'static' or 'http'")
	}
	if c.Quotes.Timeout != "" {
		if _, err := time.ParseDuration(c.Quotes.Timeout); err != nil {
			return fmt.Errorf("quotes.timeout: %w", err)
		}
	}

	if c.Report.OutputDir == "" {
		c.Report.OutputDir = "output"
	}
	if c.Report.Prefix == "" {
		c.Report.Prefix = "run"
	}

	if c.Dashboard.Port < 0 || c.Dashboard.Port > 65535 {
		return fmt.Errorf("dashboard.port must be a valid port number")
	}

	return nil
}

// QuoteTimeout returns the parsed quote timeout, falling back to the default
// when unset.
func (c *Config) QuoteTimeout() time.Duration {
	d, err := time.ParseDuration(c.Quotes.Timeout)
	if err != nil || d <= 0 {
		return defaultQuoteTimeout
	}
	return d
}

// LotSizeTable returns the lot-size table in the normalizer's form, keyed by
// upper-cased underlying.
func (c *Config) LotSizeTable() instrument.LotSizeTable {
	table := make(instrument.LotSizeTable, len(c.Instruments.LotSizes))
	for sym, n := range c.Instruments.LotSizes {
		table[strings.ToUpper(sym)] = n
	}
	return table
}

// IsIndex reports whether the underlying is a cash-settled index product.
func (c *Config) IsIndex(underlying string) bool {
	for _, idx := range c.Instruments.IndexUnderlyings {
		if strings.EqualFold(idx, underlying) {
			return true
		}
	}
	return false
}

// CurrencyFor returns the native currency tag for an underlying.
func (c *Config) CurrencyFor(underlying string) string {
	if cur, ok := c.Instruments.Currencies[strings.ToUpper(underlying)]; ok {
		return cur
	}
	for sym, cur := range c.Instruments.Currencies {
		if strings.EqualFold(sym, underlying) {
			return cur
		}
	}
	return c.Instruments.BaseCurrency
}
