package config

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/spf13/viper"

	"github.com/rewired-gh/strikewatch/internal/baseline"
	"github.com/rewired-gh/strikewatch/internal/models"
	"github.com/rewired-gh/strikewatch/internal/opensky"
	"github.com/rewired-gh/strikewatch/internal/trend"
)

// Config represents the complete application configuration
type Config struct {
	Sources    SourcesConfig    `mapstructure:"sources"`
	HTTP       HTTPConfig       `mapstructure:"http"`
	Aggregator AggregatorConfig `mapstructure:"aggregator"`
	Trend      trend.Policy     `mapstructure:"trend"`
	Storage    StorageConfig    `mapstructure:"storage"`
	Schedule   ScheduleConfig   `mapstructure:"schedule"`
	Status     StatusConfig     `mapstructure:"status"`
	Telegram   TelegramConfig   `mapstructure:"telegram"`
	Metrics    MetricsConfig    `mapstructure:"metrics"`
	Logging    LoggingConfig    `mapstructure:"logging"`
}

// SourcesConfig holds one section per source adapter
type SourcesConfig struct {
	Aviation   AviationConfig   `mapstructure:"aviation"`
	Tanker     TankerConfig     `mapstructure:"tanker"`
	News       NewsConfig       `mapstructure:"news"`
	Pentagon   PentagonConfig   `mapstructure:"pentagon"`
	Polymarket PolymarketConfig `mapstructure:"polymarket"`
	Weather    WeatherConfig    `mapstructure:"weather"`
}

// AviationConfig holds the civil traffic source configuration
type AviationConfig struct {
	APIBaseURL     string                `mapstructure:"api_base_url"`
	Regions        []opensky.BoundingBox `mapstructure:"regions"`
	BaselineLength int                   `mapstructure:"baseline_length"`
	Policy         baseline.DropPolicy   `mapstructure:",squash"`
}

// TankerConfig holds the refueling aircraft source configuration
type TankerConfig struct {
	APIBaseURL       string               `mapstructure:"api_base_url"`
	Region           opensky.BoundingBox  `mapstructure:"region"`
	CallsignPrefixes []string             `mapstructure:"callsign_prefixes"`
	BaselineLength   int                  `mapstructure:"baseline_length"`
	Policy           baseline.SurgePolicy `mapstructure:",squash"`
}

// NewsConfig holds the GDELT news volume source configuration
type NewsConfig struct {
	APIBaseURL     string         `mapstructure:"api_base_url"`
	Query          string         `mapstructure:"query"`
	Timespan       string         `mapstructure:"timespan"`
	RecentPoints   int            `mapstructure:"recent_points"`
	Ratio          baseline.Curve `mapstructure:"ratio"`
	IntensityScale float64        `mapstructure:"intensity_scale"`
}

// PentagonConfig holds the Outscraper popular-times source configuration
type PentagonConfig struct {
	APIBaseURL     string   `mapstructure:"api_base_url"`
	APIKey         string   `mapstructure:"api_key"`
	Places         []string `mapstructure:"places"`
	Timezone       string   `mapstructure:"timezone"`
	LateNightStart int      `mapstructure:"late_night_start"`
	LateNightEnd   int      `mapstructure:"late_night_end"`
	LateNightBonus float64  `mapstructure:"late_night_bonus"`
	RiskScale      float64  `mapstructure:"risk_scale"`
}

// PolymarketConfig holds the prediction market source configuration
type PolymarketConfig struct {
	APIBaseURL string             `mapstructure:"api_base_url"`
	Targets    []PolymarketTarget `mapstructure:"targets"`
}

// PolymarketTarget is one tracked event
type PolymarketTarget struct {
	Slug             string   `mapstructure:"slug"`
	Name             string   `mapstructure:"name"`
	PreferredMarkets []string `mapstructure:"preferred_markets"`
}

// WeatherConfig holds the Open-Meteo source configuration
type WeatherConfig struct {
	APIBaseURL string            `mapstructure:"api_base_url"`
	Locations  []WeatherLocation `mapstructure:"locations"`
}

// WeatherLocation is one observed point
type WeatherLocation struct {
	Name string  `mapstructure:"name"`
	Lat  float64 `mapstructure:"lat"`
	Lon  float64 `mapstructure:"lon"`
}

// HTTPConfig holds outbound request configuration shared by all sources
type HTTPConfig struct {
	Timeout        time.Duration `mapstructure:"timeout"`
	MaxRetries     int           `mapstructure:"max_retries"`
	RetryDelayBase time.Duration `mapstructure:"retry_delay_base"`
	UserAgent      string        `mapstructure:"user_agent"`
}

// AggregatorConfig holds composite scoring configuration
type AggregatorConfig struct {
	Weights              map[string]float64 `mapstructure:"weights"`
	ElevatedThreshold    int                `mapstructure:"elevated_threshold"`
	DisplayHistoryLength int                `mapstructure:"display_history_length"`
}

// StorageConfig holds storage and persistence configuration
type StorageConfig struct {
	FilePath      string `mapstructure:"file_path"`
	LedgerEnabled bool   `mapstructure:"ledger_enabled"`
	LedgerDir     string `mapstructure:"ledger_dir"`
}

// ScheduleConfig holds daemon mode configuration. An empty cron runs once.
type ScheduleConfig struct {
	Cron string `mapstructure:"cron"`
}

// StatusConfig holds the read-only status endpoint configuration
type StatusConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	ListenAddr string `mapstructure:"listen_addr"`
}

// TelegramConfig holds Telegram notification configuration
type TelegramConfig struct {
	BotToken       string        `mapstructure:"bot_token"`
	ChatID         string        `mapstructure:"chat_id"`
	Enabled        bool          `mapstructure:"enabled"`
	AlertThreshold int           `mapstructure:"alert_threshold"`
	MaxRetries     int           `mapstructure:"max_retries"`
	RetryDelayBase time.Duration `mapstructure:"retry_delay_base"`
}

// MetricsConfig holds OpenTelemetry configuration. An empty endpoint keeps metrics in-process.
type MetricsConfig struct {
	ServiceName    string        `mapstructure:"service_name"`
	OTLPEndpoint   string        `mapstructure:"otlp_endpoint"`
	ExportInterval time.Duration `mapstructure:"export_interval"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load reads configuration from file and environment variables.
// An empty path uses defaults and environment only.
func Load(path string) (*Config, error) {
	v := viper.New()

	// Set defaults
	setDefaults(v)

	// Enable environment variable override, e.g. STRIKEWATCH_SOURCES_PENTAGON_API_KEY
	v.SetEnvPrefix("STRIKEWATCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Read config file
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// Unmarshal into Config struct
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// setDefaults configures default values for all configuration options
func setDefaults(v *viper.Viper) {
	// Aviation defaults
	v.SetDefault("sources.aviation.api_base_url", "https://opensky-network.org/api")
	v.SetDefault("sources.aviation.regions", []map[string]interface{}{
		{"name": "iran", "lamin": 25.08, "lamax": 39.71, "lomin": 44.11, "lomax": 63.32},
		{"name": "persian_gulf", "lamin": 23.5, "lamax": 30.5, "lomin": 47.5, "lomax": 58.0},
	})
	v.SetDefault("sources.aviation.baseline_length", 144)
	drop := baseline.DefaultDropPolicy()
	v.SetDefault("sources.aviation.min_history", drop.MinHistory)
	v.SetDefault("sources.aviation.baseline_floor", drop.Floor)
	v.SetDefault("sources.aviation.cold_start", curveDefault(drop.ColdStart))
	v.SetDefault("sources.aviation.deviation", curveDefault(drop.Deviation))

	// Tanker defaults
	v.SetDefault("sources.tanker.api_base_url", "https://opensky-network.org/api")
	v.SetDefault("sources.tanker.region", map[string]interface{}{
		"name": "middle_east", "lamin": 12.0, "lamax": 42.2, "lomin": 32.0, "lomax": 63.5,
	})
	v.SetDefault("sources.tanker.callsign_prefixes", []string{
		"KING", "SHELL", "TEXCO", "PETRO", "GUCCI", "ARCO", "ESSO", "MOBIL",
		"PACK", "ATOM", "TREK", "PEARL", "ASCOT", "RRR", "QUID", "BRASS",
	})
	v.SetDefault("sources.tanker.baseline_length", 1008)
	surge := baseline.DefaultSurgePolicy()
	v.SetDefault("sources.tanker.min_history", surge.MinHistory)
	v.SetDefault("sources.tanker.baseline_floor", surge.Floor)
	v.SetDefault("sources.tanker.cold_start", curveDefault(surge.ColdStart))
	v.SetDefault("sources.tanker.ratio", curveDefault(surge.Ratio))
	v.SetDefault("sources.tanker.surge_threshold", surge.SurgeThreshold)
	v.SetDefault("sources.tanker.surge_base", surge.SurgeBase)
	v.SetDefault("sources.tanker.surge_step", surge.SurgeStep)

	// News defaults
	v.SetDefault("sources.news.api_base_url", "https://api.gdeltproject.org/api/v2/doc/doc")
	v.SetDefault("sources.news.query", `(iran OR tehran) (strike OR attack OR military OR missile) sourcelang:english`)
	v.SetDefault("sources.news.timespan", "24h")
	v.SetDefault("sources.news.recent_points", 6)
	v.SetDefault("sources.news.ratio", []map[string]interface{}{
		{"x": 0, "y": 0}, {"x": 1, "y": 15}, {"x": 1.5, "y": 40}, {"x": 2, "y": 65}, {"x": 3, "y": 90},
	})
	v.SetDefault("sources.news.intensity_scale", 20)

	// Pentagon defaults
	v.SetDefault("sources.pentagon.api_base_url", "https://api.app.outscraper.com/maps/search-v3")
	v.SetDefault("sources.pentagon.api_key", "")
	v.SetDefault("sources.pentagon.places", []string{
		"Domino's Pizza, Pentagon City, Arlington, VA",
		"Papa John's, Pentagon City, Arlington, VA",
		"Pizza Hut, Crystal City, Arlington, VA",
	})
	v.SetDefault("sources.pentagon.timezone", "America/New_York")
	v.SetDefault("sources.pentagon.late_night_start", 22)
	v.SetDefault("sources.pentagon.late_night_end", 6)
	v.SetDefault("sources.pentagon.late_night_bonus", 15)
	v.SetDefault("sources.pentagon.risk_scale", 0.6)

	// Polymarket defaults
	v.SetDefault("sources.polymarket.api_base_url", "https://gamma-api.polymarket.com")
	v.SetDefault("sources.polymarket.targets", []map[string]interface{}{
		{"slug": "usisrael-strikes-iran-by", "name": "US/Israel strikes Iran", "preferred_markets": []string{"February 28", "March 31", "June 30"}},
		{"slug": "israel-strikes-iran-by-june-30-2026", "name": "Israel strikes Iran by June 30", "preferred_markets": []string{"June 30"}},
		{"slug": "us-x-iran-military-engagement-by", "name": "US x Iran Military Engagement", "preferred_markets": []string{"March 31", "June 30"}},
	})

	// Weather defaults
	v.SetDefault("sources.weather.api_base_url", "https://api.open-meteo.com/v1/forecast")
	v.SetDefault("sources.weather.locations", []map[string]interface{}{
		{"name": "Tehran", "lat": 35.6892, "lon": 51.3890},
		{"name": "Isfahan", "lat": 32.6546, "lon": 51.6680},
		{"name": "Natanz", "lat": 33.5125, "lon": 51.9164},
		{"name": "Bushehr", "lat": 28.9234, "lon": 50.8203},
	})

	// HTTP defaults
	v.SetDefault("http.timeout", "30s")
	v.SetDefault("http.max_retries", 3)
	v.SetDefault("http.retry_delay_base", "1s")
	v.SetDefault("http.user_agent", "strikewatch/1.0")

	// Aggregator defaults
	v.SetDefault("aggregator.weights", map[string]interface{}{
		models.KeyPolymarket: 0.40,
		models.KeyAviation:   0.20,
		models.KeyTanker:     0.15,
		models.KeyNews:       0.10,
		models.KeyPentagon:   0.10,
		models.KeyWeather:    0.05,
	})
	v.SetDefault("aggregator.elevated_threshold", 50)
	v.SetDefault("aggregator.display_history_length", 17)

	// Trend defaults
	tp := trend.DefaultPolicy()
	v.SetDefault("trend.pin_interval", tp.PinInterval.String())
	v.SetDefault("trend.max_entries", tp.MaxEntries)
	v.SetDefault("trend.retention", tp.Retention.String())
	v.SetDefault("trend.keep_recent", tp.KeepRecent)

	// Storage defaults
	v.SetDefault("storage.file_path", "./data/data.json")
	v.SetDefault("storage.ledger_enabled", false)
	v.SetDefault("storage.ledger_dir", "./data/ledger")

	// Schedule and status defaults
	v.SetDefault("schedule.cron", "")
	v.SetDefault("status.enabled", false)
	v.SetDefault("status.listen_addr", ":8080")

	// Telegram defaults
	v.SetDefault("telegram.enabled", false)
	v.SetDefault("telegram.bot_token", "")
	v.SetDefault("telegram.chat_id", "")
	v.SetDefault("telegram.alert_threshold", 60)
	v.SetDefault("telegram.max_retries", 3)
	v.SetDefault("telegram.retry_delay_base", "1s")

	// Metrics defaults
	v.SetDefault("metrics.service_name", "strikewatch")
	v.SetDefault("metrics.otlp_endpoint", "")
	v.SetDefault("metrics.export_interval", "10s")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}

func curveDefault(c baseline.Curve) []map[string]interface{} {
	out := make([]map[string]interface{}, 0, len(c))
	for _, p := range c {
		out = append(out, map[string]interface{}{"x": p.X, "y": p.Y})
	}
	return out
}

// Validate checks that all configuration values are valid
func (c *Config) Validate() error {
	if err := c.Sources.validate(); err != nil {
		return err
	}

	// Validate HTTP config
	if c.HTTP.Timeout < time.Second {
		return fmt.Errorf("http.timeout must be at least 1 second")
	}
	if c.HTTP.MaxRetries < 1 {
		return fmt.Errorf("http.max_retries must be at least 1")
	}
	if c.HTTP.RetryDelayBase < 0 {
		return fmt.Errorf("http.retry_delay_base must not be negative")
	}

	// Validate Aggregator config
	if err := validateWeights(c.Aggregator.Weights); err != nil {
		return err
	}
	if c.Aggregator.ElevatedThreshold < 0 || c.Aggregator.ElevatedThreshold > 100 {
		return fmt.Errorf("aggregator.elevated_threshold must be between 0 and 100")
	}
	if c.Aggregator.DisplayHistoryLength < 1 {
		return fmt.Errorf("aggregator.display_history_length must be at least 1")
	}

	// Validate Trend config
	if c.Trend.PinInterval <= 0 {
		return fmt.Errorf("trend.pin_interval must be positive")
	}
	if c.Trend.KeepRecent < 1 {
		return fmt.Errorf("trend.keep_recent must be at least 1")
	}
	if c.Trend.MaxEntries < c.Trend.KeepRecent {
		return fmt.Errorf("trend.max_entries must be at least trend.keep_recent")
	}
	if c.Trend.Retention < c.Trend.PinInterval {
		return fmt.Errorf("trend.retention must be at least trend.pin_interval")
	}

	// Validate Storage config
	if c.Storage.FilePath == "" {
		return fmt.Errorf("storage.file_path is required")
	}
	if c.Storage.LedgerEnabled && c.Storage.LedgerDir == "" {
		return fmt.Errorf("storage.ledger_dir is required when the ledger is enabled")
	}

	// Validate Schedule and Status config
	if c.Schedule.Cron != "" {
		if _, err := cron.ParseStandard(c.Schedule.Cron); err != nil {
			return fmt.Errorf("schedule.cron is invalid: %w", err)
		}
	}
	if c.Status.Enabled && c.Status.ListenAddr == "" {
		return fmt.Errorf("status.listen_addr is required when status is enabled")
	}

	// Validate Telegram config
	if c.Telegram.Enabled {
		if c.Telegram.BotToken == "" {
			return fmt.Errorf("telegram.bot_token is required when telegram is enabled")
		}
		if c.Telegram.ChatID == "" {
			return fmt.Errorf("telegram.chat_id is required when telegram is enabled")
		}
	}
	if c.Telegram.AlertThreshold < 0 || c.Telegram.AlertThreshold > 100 {
		return fmt.Errorf("telegram.alert_threshold must be between 0 and 100")
	}

	// Validate Metrics config
	if c.Metrics.OTLPEndpoint != "" && c.Metrics.ExportInterval <= 0 {
		return fmt.Errorf("metrics.export_interval must be positive when metrics.otlp_endpoint is set")
	}

	// Validate Logging config
	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("logging.level must be one of: debug, info, warn, error")
	}
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[c.Logging.Format] {
		return fmt.Errorf("logging.format must be one of: json, text")
	}

	return nil
}

func (s *SourcesConfig) validate() error {
	// Aviation
	if s.Aviation.APIBaseURL == "" {
		return fmt.Errorf("sources.aviation.api_base_url is required")
	}
	if len(s.Aviation.Regions) == 0 {
		return fmt.Errorf("sources.aviation.regions must contain at least one region")
	}
	for i, r := range s.Aviation.Regions {
		if r.Name == "" {
			return fmt.Errorf("sources.aviation.regions[%d].name is required", i)
		}
		if err := r.Validate(); err != nil {
			return fmt.Errorf("sources.aviation.regions[%d]: %w", i, err)
		}
	}
	if s.Aviation.BaselineLength < 1 {
		return fmt.Errorf("sources.aviation.baseline_length must be at least 1")
	}
	if err := s.Aviation.Policy.Validate(); err != nil {
		return fmt.Errorf("sources.aviation: %w", err)
	}

	// Tanker
	if s.Tanker.APIBaseURL == "" {
		return fmt.Errorf("sources.tanker.api_base_url is required")
	}
	if err := s.Tanker.Region.Validate(); err != nil {
		return fmt.Errorf("sources.tanker.region: %w", err)
	}
	if len(s.Tanker.CallsignPrefixes) == 0 {
		return fmt.Errorf("sources.tanker.callsign_prefixes must contain at least one prefix")
	}
	if s.Tanker.BaselineLength < 1 {
		return fmt.Errorf("sources.tanker.baseline_length must be at least 1")
	}
	if err := s.Tanker.Policy.Validate(); err != nil {
		return fmt.Errorf("sources.tanker: %w", err)
	}

	// News
	if s.News.APIBaseURL == "" {
		return fmt.Errorf("sources.news.api_base_url is required")
	}
	if s.News.Query == "" {
		return fmt.Errorf("sources.news.query is required")
	}
	if s.News.RecentPoints < 1 {
		return fmt.Errorf("sources.news.recent_points must be at least 1")
	}
	if err := s.News.Ratio.Validate(); err != nil {
		return fmt.Errorf("sources.news.ratio: %w", err)
	}
	if s.News.IntensityScale < 0 {
		return fmt.Errorf("sources.news.intensity_scale must not be negative")
	}

	// Pentagon
	if s.Pentagon.APIBaseURL == "" {
		return fmt.Errorf("sources.pentagon.api_base_url is required")
	}
	if len(s.Pentagon.Places) == 0 {
		return fmt.Errorf("sources.pentagon.places must contain at least one place")
	}
	if _, err := time.LoadLocation(s.Pentagon.Timezone); err != nil {
		return fmt.Errorf("sources.pentagon.timezone is invalid: %w", err)
	}
	if s.Pentagon.LateNightStart < 0 || s.Pentagon.LateNightStart > 23 || s.Pentagon.LateNightEnd < 0 || s.Pentagon.LateNightEnd > 23 {
		return fmt.Errorf("sources.pentagon.late_night_start and late_night_end must be hours between 0 and 23")
	}
	if s.Pentagon.RiskScale <= 0 || s.Pentagon.RiskScale > 1 {
		return fmt.Errorf("sources.pentagon.risk_scale must be in (0, 1]")
	}

	// Polymarket
	if s.Polymarket.APIBaseURL == "" {
		return fmt.Errorf("sources.polymarket.api_base_url is required")
	}
	if len(s.Polymarket.Targets) == 0 {
		return fmt.Errorf("sources.polymarket.targets must contain at least one target")
	}
	for i, t := range s.Polymarket.Targets {
		if t.Slug == "" {
			return fmt.Errorf("sources.polymarket.targets[%d].slug is required", i)
		}
	}

	// Weather
	if s.Weather.APIBaseURL == "" {
		return fmt.Errorf("sources.weather.api_base_url is required")
	}
	if len(s.Weather.Locations) == 0 {
		return fmt.Errorf("sources.weather.locations must contain at least one location")
	}
	for i, l := range s.Weather.Locations {
		if l.Lat < -90 || l.Lat > 90 || l.Lon < -180 || l.Lon > 180 {
			return fmt.Errorf("sources.weather.locations[%d] coordinates out of range", i)
		}
	}

	return nil
}

func validateWeights(weights map[string]float64) error {
	expected := make(map[string]bool, len(models.SourceOrder))
	for _, key := range models.SourceOrder {
		expected[key] = true
	}

	var unknown []string
	for key := range weights {
		if !expected[key] {
			unknown = append(unknown, key)
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return fmt.Errorf("aggregator.weights has unknown sources: %s", strings.Join(unknown, ", "))
	}

	var sum float64
	for _, key := range models.SourceOrder {
		w, ok := weights[key]
		if !ok {
			return fmt.Errorf("aggregator.weights.%s is required", key)
		}
		if w <= 0 {
			return fmt.Errorf("aggregator.weights.%s must be positive", key)
		}
		sum += w
	}
	if math.Abs(sum-1) > 0.001 {
		return fmt.Errorf("aggregator.weights must sum to 1.0, got %.3f", sum)
	}
	return nil
}
