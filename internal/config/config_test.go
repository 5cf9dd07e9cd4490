package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoad(t *testing.T) {
	configPath := filepath.Join("..", "..", "config.yaml.example")
	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Expected example config to load, got error: %v", err)
	}
	if cfg.Quotes.Provider != "static" {
		t.Errorf("quotes.provider = %q, want static", cfg.Quotes.Provider)
	}
	if cfg.Instruments.LotSizes["NIFTY"] != 50 {
		t.Errorf("lot size NIFTY = %d, want 50", cfg.Instruments.LotSizes["NIFTY"])
	}
}

func TestLoad_InvalidPath(t *testing.T) {
	_, err := Load("nonexistent.yaml")
	if err == nil {
		t.Error("Expected error when loading nonexistent config file, got nil")
	}
}

func TestLoad_UnknownFieldRejected(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("environment:\n  log_level: info\nunknown_section:\n  x: 1\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	_, err := Load(path)
	if err == nil || !strings.Contains(err.Error(), "parsing config") {
		t.Errorf("expected parse error for unknown field, got %v", err)
	}
}

func TestLoad_ExpandsEnvironment(t *testing.T) {
	t.Setenv("TEST_PIPELINE_OUTPUT", "env-output")
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("report:\n  output_dir: ${TEST_PIPELINE_OUTPUT}\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if cfg.Report.OutputDir != "env-output" {
		t.Errorf("output_dir = %q, want env-output", cfg.Report.OutputDir)
	}
}

func TestValidate_Defaults(t *testing.T) {
	cfg := &Config{}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate on empty config: %v", err)
	}
	if cfg.Instruments.BaseCurrency != "INR" {
		t.Errorf("base currency = %q, want INR", cfg.Instruments.BaseCurrency)
	}
	if cfg.Quotes.Provider != "static" {
		t.Errorf("provider = %q, want static", cfg.Quotes.Provider)
	}
	if cfg.Report.OutputDir != "output" || cfg.Report.Prefix != "run" {
		t.Errorf("report defaults = %q/%q", cfg.Report.OutputDir, cfg.Report.Prefix)
	}
	if cfg.QuoteTimeout() != 5*time.Second {
		t.Errorf("quote timeout = %s, want 5s", cfg.QuoteTimeout())
	}
}

func TestValidate_Errors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad log level", func(c *Config) { c.Environment.LogLevel = "verbose" }},
		{"zero lot size", func(c *Config) { c.Instruments.LotSizes = map[string]int64{"NIFTY": 0} }},
		{"negative usd rate", func(c *Config) { c.FX.USDRate = -1 }},
		{"unknown provider", func(c *Config) { c.Quotes.Provider = "bloomberg" }},
		{"http without endpoint", func(c *Config) { c.Quotes.Provider = "http" }},
		{"bad timeout", func(c *Config) { c.Quotes.Timeout = "fast" }},
		{"bad port", func(c *Config) { c.Dashboard.Port = 70000 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{}
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected validation error, got nil")
			}
		})
	}
}

func TestHelpers(t *testing.T) {
	cfg := &Config{
		Instruments: InstrumentsConfig{
			LotSizes:         map[string]int64{"nifty": 50},
			IndexUnderlyings: []string{"NIFTY"},
			Currencies:       map[string]string{"AAPL": "USD"},
			BaseCurrency:     "INR",
		},
	}

	if n, ok := cfg.LotSizeTable().Lookup("NIFTY"); n != 50 || !ok {
		t.Errorf("LotSizeTable lookup = (%d, %v), want (50, true)", n, ok)
	}
	if !cfg.IsIndex("nifty") {
		t.Error("IsIndex(nifty) = false, want true")
	}
	if cfg.IsIndex("RELIANCE") {
		t.Error("IsIndex(RELIANCE) = true, want false")
	}
	if cur := cfg.CurrencyFor("aapl"); cur != "USD" {
		t.Errorf("CurrencyFor(aapl) = %s, want USD", cur)
	}
	if cur := cfg.CurrencyFor("RELIANCE"); cur != "INR" {
		t.Errorf("CurrencyFor(RELIANCE) = %s, want INR", cur)
	}
}
