package sources

import (
	"fmt"
	"time"

	"github.com/rewired-gh/strikewatch/internal/config"
	"github.com/rewired-gh/strikewatch/internal/fetch"
	"github.com/rewired-gh/strikewatch/internal/opensky"
	"github.com/rewired-gh/strikewatch/internal/polymarket"
)

// FromConfig builds all six sources in polling order, sharing one HTTP client.
func FromConfig(cfg config.SourcesConfig, client *fetch.Client) ([]Source, error) {
	loc, err := time.LoadLocation(cfg.Pentagon.Timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", cfg.Pentagon.Timezone, err)
	}

	targets := make([]MarketTarget, 0, len(cfg.Polymarket.Targets))
	for _, t := range cfg.Polymarket.Targets {
		targets = append(targets, MarketTarget{Slug: t.Slug, Name: t.Name, PreferredMarkets: t.PreferredMarkets})
	}
	locations := make([]WeatherLocation, 0, len(cfg.Weather.Locations))
	for _, l := range cfg.Weather.Locations {
		locations = append(locations, WeatherLocation{Name: l.Name, Lat: l.Lat, Lon: l.Lon})
	}

	return []Source{
		NewNews(client, NewsConfig{
			APIBaseURL:     cfg.News.APIBaseURL,
			Query:          cfg.News.Query,
			Timespan:       cfg.News.Timespan,
			RecentPoints:   cfg.News.RecentPoints,
			Ratio:          cfg.News.Ratio,
			IntensityScale: cfg.News.IntensityScale,
		}),
		NewAviation(opensky.NewClient(cfg.Aviation.APIBaseURL, client), cfg.Aviation.Regions, cfg.Aviation.Policy, cfg.Aviation.BaselineLength),
		NewTanker(opensky.NewClient(cfg.Tanker.APIBaseURL, client), cfg.Tanker.Region, cfg.Tanker.CallsignPrefixes, cfg.Tanker.Policy, cfg.Tanker.BaselineLength),
		NewPentagon(client, PentagonConfig{
			APIBaseURL:     cfg.Pentagon.APIBaseURL,
			APIKey:         cfg.Pentagon.APIKey,
			Places:         cfg.Pentagon.Places,
			Location:       loc,
			LateNightStart: cfg.Pentagon.LateNightStart,
			LateNightEnd:   cfg.Pentagon.LateNightEnd,
			LateNightBonus: cfg.Pentagon.LateNightBonus,
			RiskScale:      cfg.Pentagon.RiskScale,
		}),
		NewPolymarket(polymarket.NewClient(cfg.Polymarket.APIBaseURL, client), targets),
		NewWeather(client, cfg.Weather.APIBaseURL, locations),
	}, nil
}
