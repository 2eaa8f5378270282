package sources

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"github.com/rewired-gh/strikewatch/internal/baseline"
	"github.com/rewired-gh/strikewatch/internal/fetch"
	"github.com/rewired-gh/strikewatch/internal/models"
)

const currentFields = "temperature_2m,weather_code,cloud_cover,visibility,wind_speed_10m"

// WeatherLocation is one observed point
type WeatherLocation struct {
	Name string
	Lat  float64
	Lon  float64
}

// Weather scores flying conditions. Clear skies favor air operations, so better
// weather means higher risk.
type Weather struct {
	clock
	fetcher    JSONFetcher
	apiBaseURL string
	locations  []WeatherLocation
}

type currentWeather struct {
	Temperature *float64 `json:"temperature_2m"`
	WeatherCode *int     `json:"weather_code"`
	CloudCover  *float64 `json:"cloud_cover"`
	Visibility  *float64 `json:"visibility"`
	WindSpeed   *float64 `json:"wind_speed_10m"`
}

var wmoDescriptions = map[int]string{
	0:  "clear sky",
	1:  "mainly clear",
	2:  "partly cloudy",
	3:  "overcast",
	45: "fog",
	48: "depositing rime fog",
	51: "light drizzle",
	53: "moderate drizzle",
	55: "dense drizzle",
	61: "slight rain",
	63: "moderate rain",
	65: "heavy rain",
	71: "slight snow",
	73: "moderate snow",
	75: "heavy snow",
	80: "slight rain showers",
	81: "moderate rain showers",
	82: "violent rain showers",
	95: "thunderstorm",
	96: "thunderstorm with slight hail",
	99: "thunderstorm with heavy hail",
}

// NewWeather creates the weather source
func NewWeather(fetcher JSONFetcher, apiBaseURL string, locations []WeatherLocation) *Weather {
	return &Weather{fetcher: fetcher, apiBaseURL: apiBaseURL, locations: locations}
}

func (w *Weather) Name() string { return models.KeyWeather }

func (w *Weather) GetRisk(ctx context.Context, _ []float64) (*models.Snapshot, error) {
	if len(w.locations) == 0 {
		return nil, fmt.Errorf("no locations configured")
	}

	locations := make([]interface{}, 0, len(w.locations))
	var total float64
	for _, loc := range w.locations {
		current, err := w.fetchCurrent(ctx, loc)
		if err != nil {
			return nil, err
		}

		score := current.score()
		code := valueOr(current.WeatherCode, 0)
		locations = append(locations, map[string]interface{}{
			"name":         loc.Name,
			"score":        score,
			"temp":         current.Temperature,
			"visibility":   current.Visibility,
			"clouds":       current.CloudCover,
			"wind_speed":   current.WindSpeed,
			"weather_code": code,
			"description":  describeWeather(code),
			"condition":    conditionLabel(score),
		})
		total += float64(score)
	}

	avg := total / float64(len(w.locations))
	risk := baseline.ToRisk(avg)
	return &models.Snapshot{
		Risk:   risk,
		Detail: conditionLabel(risk),
		RawData: map[string]interface{}{
			"avg_score": round(avg, 1),
			"locations": locations,
			"timestamp": w.stamp(),
		},
	}, nil
}

func (w *Weather) fetchCurrent(ctx context.Context, loc WeatherLocation) (*currentWeather, error) {
	query := url.Values{}
	query.Set("latitude", strconv.FormatFloat(loc.Lat, 'f', -1, 64))
	query.Set("longitude", strconv.FormatFloat(loc.Lon, 'f', -1, 64))
	query.Set("current", currentFields)

	var resp struct {
		Current *currentWeather `json:"current"`
	}
	if err := w.fetcher.GetJSON(ctx, w.apiBaseURL, query, nil, &resp); err != nil {
		return nil, fmt.Errorf("failed to fetch weather for %s: %w", loc.Name, err)
	}
	if resp.Current == nil {
		return nil, fmt.Errorf("weather for %s: %w: current", loc.Name, fetch.ErrMissingField)
	}
	return resp.Current, nil
}

// score rates conditions for air operations on a 0-100 scale.
// Missing readings fall back to unremarkable values.
func (c *currentWeather) score() int {
	score := 0

	switch visibility := valueOr(c.Visibility, 10000); {
	case visibility >= 50000:
		score += 30
	case visibility >= 20000:
		score += 25
	case visibility >= 10000:
		score += 20
	case visibility >= 5000:
		score += 10
	}

	switch clouds := valueOr(c.CloudCover, 0); {
	case clouds <= 10:
		score += 30
	case clouds <= 30:
		score += 25
	case clouds <= 50:
		score += 15
	case clouds <= 75:
		score += 5
	}

	switch code := valueOr(c.WeatherCode, 0); {
	case code == 0:
		score += 30
	case code <= 3:
		score += 20
	case code == 45 || code == 48:
		score += 5
	}

	switch wind := valueOr(c.WindSpeed, 0); {
	case wind <= 20:
		score += 10
	case wind <= 40:
		score += 5
	}

	if score > 100 {
		score = 100
	}
	return score
}

func describeWeather(code int) string {
	if d, ok := wmoDescriptions[code]; ok {
		return d
	}
	return "unknown"
}

func conditionLabel(score int) string {
	switch {
	case score >= 80:
		return "clear"
	case score >= 60:
		return "favorable"
	case score >= 40:
		return "marginal"
	default:
		return "poor"
	}
}

func valueOr[T any](p *T, fallback T) T {
	if p == nil {
		return fallback
	}
	return *p
}
