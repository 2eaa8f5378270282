package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/rewired-gh/strikewatch/internal/models"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}

	if len(cfg.Sources.Aviation.Regions) != 2 || cfg.Sources.Aviation.Regions[0].LaMin != 25.08 {
		t.Errorf("unexpected aviation regions %+v", cfg.Sources.Aviation.Regions)
	}
	if cfg.Sources.Aviation.BaselineLength != 144 || cfg.Sources.Tanker.BaselineLength != 1008 {
		t.Errorf("unexpected baseline lengths %d/%d", cfg.Sources.Aviation.BaselineLength, cfg.Sources.Tanker.BaselineLength)
	}
	if cfg.Sources.Aviation.Policy.MinHistory != 6 || len(cfg.Sources.Aviation.Policy.ColdStart) != 3 {
		t.Errorf("drop policy not decoded: %+v", cfg.Sources.Aviation.Policy)
	}
	if cfg.Sources.Tanker.Policy.SurgeThreshold != 12 || cfg.Sources.Tanker.Policy.SurgeBase != 70 {
		t.Errorf("surge policy not decoded: %+v", cfg.Sources.Tanker.Policy)
	}
	if cfg.Sources.Tanker.Region.Name != "middle_east" {
		t.Errorf("tanker region = %+v", cfg.Sources.Tanker.Region)
	}
	if len(cfg.Sources.Polymarket.Targets) != 3 || len(cfg.Sources.Polymarket.Targets[0].PreferredMarkets) != 3 {
		t.Errorf("unexpected polymarket targets %+v", cfg.Sources.Polymarket.Targets)
	}
	if cfg.Aggregator.Weights[models.KeyPolymarket] != 0.40 || cfg.Aggregator.DisplayHistoryLength != 17 {
		t.Errorf("unexpected aggregator config %+v", cfg.Aggregator)
	}
	if cfg.Trend.PinInterval != 50*time.Minute || cfg.Trend.Retention != 72*time.Hour {
		t.Errorf("unexpected trend config %+v", cfg.Trend)
	}
	if cfg.HTTP.Timeout != 30*time.Second {
		t.Errorf("http.timeout = %s", cfg.HTTP.Timeout)
	}
	if cfg.Metrics.ServiceName != "strikewatch" || cfg.Metrics.OTLPEndpoint != "" || cfg.Metrics.ExportInterval != 10*time.Second {
		t.Errorf("unexpected metrics config %+v", cfg.Metrics)
	}
}

func TestLoadAndValidate(t *testing.T) {
	path := writeConfig(t, `
sources:
  aviation:
    regions:
      - name: test
        lamin: 10
        lamax: 20
        lomin: 30
        lomax: 40
    min_history: 3
  pentagon:
    api_key: "file_key"

telegram:
  bot_token: "test_token"
  chat_id: "test_chat_id"
  enabled: true
  alert_threshold: 70

storage:
  file_path: "./data/test.json"

schedule:
  cron: "*/10 * * * *"

logging:
  level: "debug"
  format: "text"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate failed: %v", err)
	}

	if len(cfg.Sources.Aviation.Regions) != 1 || cfg.Sources.Aviation.Regions[0].Name != "test" {
		t.Errorf("regions not overridden: %+v", cfg.Sources.Aviation.Regions)
	}
	if cfg.Sources.Aviation.Policy.MinHistory != 3 {
		t.Errorf("min_history = %d, want 3", cfg.Sources.Aviation.Policy.MinHistory)
	}
	if len(cfg.Sources.Aviation.Policy.Deviation) != 5 {
		t.Errorf("deviation curve default lost: %+v", cfg.Sources.Aviation.Policy.Deviation)
	}
	if cfg.Sources.Pentagon.APIKey != "file_key" {
		t.Errorf("api_key = %q", cfg.Sources.Pentagon.APIKey)
	}
	if cfg.Telegram.AlertThreshold != 70 || !cfg.Telegram.Enabled {
		t.Errorf("unexpected telegram config %+v", cfg.Telegram)
	}
	if cfg.Schedule.Cron != "*/10 * * * *" {
		t.Errorf("cron = %q", cfg.Schedule.Cron)
	}
	if cfg.Logging.Format != "text" {
		t.Errorf("format = %q", cfg.Logging.Format)
	}
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("STRIKEWATCH_SOURCES_PENTAGON_API_KEY", "env_key")
	t.Setenv("STRIKEWATCH_LOGGING_LEVEL", "warn")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Sources.Pentagon.APIKey != "env_key" {
		t.Errorf("api_key = %q, want env_key", cfg.Sources.Pentagon.APIKey)
	}
	if cfg.Logging.Level != "warn" {
		t.Errorf("level = %q, want warn", cfg.Logging.Level)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing config file")
	}
}

func TestValidateErrors(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"weights do not sum to one", func(c *Config) { c.Aggregator.Weights[models.KeyNews] = 0.5 }, "sum to 1.0"},
		{"missing weight", func(c *Config) {
			delete(c.Aggregator.Weights, models.KeyWeather)
			c.Aggregator.Weights[models.KeyNews] = 0.15
		}, "aggregator.weights.weather"},
		{"unknown weight", func(c *Config) { c.Aggregator.Weights["radar"] = 0.1 }, "unknown sources: radar"},
		{"non-positive weight", func(c *Config) {
			c.Aggregator.Weights[models.KeyWeather] = 0
			c.Aggregator.Weights[models.KeyNews] = 0.15
		}, "must be positive"},
		{"no aviation regions", func(c *Config) { c.Sources.Aviation.Regions = nil }, "sources.aviation.regions"},
		{"inverted tanker region", func(c *Config) { c.Sources.Tanker.Region.LaMin = 50 }, "sources.tanker.region"},
		{"non-monotone cold start", func(c *Config) {
			c.Sources.Aviation.Policy.ColdStart[2].Y = 100
		}, "sources.aviation: cold_start must be non-increasing"},
		{"zero baseline length", func(c *Config) { c.Sources.Tanker.BaselineLength = 0 }, "sources.tanker.baseline_length"},
		{"bad timezone", func(c *Config) { c.Sources.Pentagon.Timezone = "Mars/Olympus" }, "sources.pentagon.timezone"},
		{"no polymarket targets", func(c *Config) { c.Sources.Polymarket.Targets = nil }, "sources.polymarket.targets"},
		{"bad weather coordinates", func(c *Config) { c.Sources.Weather.Locations[0].Lat = 91 }, "sources.weather.locations[0]"},
		{"zero retries", func(c *Config) { c.HTTP.MaxRetries = 0 }, "http.max_retries"},
		{"elevated threshold", func(c *Config) { c.Aggregator.ElevatedThreshold = 101 }, "aggregator.elevated_threshold"},
		{"trend keep recent", func(c *Config) { c.Trend.MaxEntries = 5 }, "trend.max_entries"},
		{"bad cron", func(c *Config) { c.Schedule.Cron = "every tuesday" }, "schedule.cron"},
		{"telegram without token", func(c *Config) { c.Telegram.Enabled = true }, "telegram.bot_token"},
		{"ledger without dir", func(c *Config) {
			c.Storage.LedgerEnabled = true
			c.Storage.LedgerDir = ""
		}, "storage.ledger_dir"},
		{"metrics interval", func(c *Config) {
			c.Metrics.OTLPEndpoint = "collector:4317"
			c.Metrics.ExportInterval = 0
		}, "metrics.export_interval"},
		{"bad log level", func(c *Config) { c.Logging.Level = "verbose" }, "logging.level"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load("")
			if err != nil {
				t.Fatalf("Load failed: %v", err)
			}
			tt.mutate(cfg)

			err = cfg.Validate()
			if err == nil {
				t.Fatalf("expected error containing %q", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q does not contain %q", err.Error(), tt.wantErr)
			}
		})
	}
}
