package sources

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/rewired-gh/strikewatch/internal/baseline"
	"github.com/rewired-gh/strikewatch/internal/models"
)

// defaultBusyness is the reference level when a place has no positive readings for the hour.
const defaultBusyness = 50.0

// lateNightBusyness is the minimum busyness for the late-night bonus to apply.
const lateNightBusyness = 20.0

// PentagonConfig parameterizes the popular-times source
type PentagonConfig struct {
	APIBaseURL     string
	APIKey         string
	Places         []string
	Location       *time.Location
	LateNightStart int
	LateNightEnd   int
	LateNightBonus float64
	RiskScale      float64
}

// Pentagon compares current busyness of food places near the Pentagon against the
// usual level for the same hour.
type Pentagon struct {
	clock
	fetcher JSONFetcher
	cfg     PentagonConfig
}

type outscraperPlace struct {
	Name         string `json:"name"`
	PopularTimes []struct {
		Data []*float64 `json:"data"`
	} `json:"popular_times"`
}

// NewPentagon creates the pentagon source
func NewPentagon(fetcher JSONFetcher, cfg PentagonConfig) *Pentagon {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	return &Pentagon{fetcher: fetcher, cfg: cfg}
}

func (p *Pentagon) Name() string { return models.KeyPentagon }

func (p *Pentagon) GetRisk(ctx context.Context, _ []float64) (*models.Snapshot, error) {
	if p.cfg.APIKey == "" {
		return nil, errors.New("outscraper api key is not configured")
	}

	now := p.Now().In(p.cfg.Location)
	day := mondayIndex(now.Weekday())
	hour := now.Hour()
	lateNight := p.isLateNight(hour)

	places := make([]interface{}, 0, len(p.cfg.Places))
	var total float64
	valid := 0
	for _, query := range p.cfg.Places {
		place, err := p.fetchPlace(ctx, query)
		if err != nil {
			return nil, err
		}
		if place == nil {
			continue
		}

		entry := map[string]interface{}{
			"name":             place.Name,
			"current_busyness": nil,
			"baseline":         defaultBusyness,
			"status":           "unknown",
		}
		places = append(places, entry)

		current, ok := place.busyness(day, hour)
		if !ok {
			continue
		}
		usual := place.usual(hour)
		score, status := scoreBusyness(current, usual)
		if lateNight && current > lateNightBusyness {
			score += p.cfg.LateNightBonus
			if score > 100 {
				score = 100
			}
		}

		entry["current_busyness"] = current
		entry["baseline"] = round(usual, 1)
		entry["score"] = score
		entry["status"] = status
		total += score
		valid++
	}

	if valid == 0 {
		return nil, fmt.Errorf("no place returned usable popular times (%d queried)", len(p.cfg.Places))
	}

	avg := total / float64(valid)
	risk := baseline.ToRisk(avg * p.cfg.RiskScale)
	status := pentagonStatus(avg)

	return &models.Snapshot{
		Risk:   risk,
		Detail: status,
		RawData: map[string]interface{}{
			"score":         round(avg, 1),
			"status":        status,
			"places":        places,
			"is_late_night": lateNight,
			"is_weekend":    day >= 5,
			"local_time":    now.Format("Mon 15:04 MST"),
			"timestamp":     p.stamp(),
		},
	}, nil
}

// fetchPlace returns the first search hit for query, or nil when nothing matched.
func (p *Pentagon) fetchPlace(ctx context.Context, query string) (*outscraperPlace, error) {
	params := url.Values{}
	params.Set("query", query)
	params.Set("limit", "1")
	params.Set("async", "false")
	header := http.Header{}
	header.Set("X-API-KEY", p.cfg.APIKey)

	var raw json.RawMessage
	if err := p.fetcher.GetJSON(ctx, p.cfg.APIBaseURL, params, header, &raw); err != nil {
		return nil, fmt.Errorf("failed to fetch place %q: %w", query, err)
	}

	// Results arrive either bare or wrapped in {"data": ...}, one list per query.
	var wrapped struct {
		Data json.RawMessage `json:"data"`
	}
	if json.Unmarshal(raw, &wrapped) == nil && len(wrapped.Data) > 0 {
		raw = wrapped.Data
	}
	var results [][]outscraperPlace
	if err := json.Unmarshal(raw, &results); err != nil {
		return nil, fmt.Errorf("failed to decode place %q: %w", query, err)
	}
	if len(results) == 0 || len(results[0]) == 0 {
		return nil, nil
	}
	return &results[0][0], nil
}

func (p *Pentagon) isLateNight(hour int) bool {
	start, end := p.cfg.LateNightStart, p.cfg.LateNightEnd
	if start <= end {
		return hour >= start && hour < end
	}
	return hour >= start || hour < end
}

// busyness returns the reading for day (Monday=0) and hour.
func (o *outscraperPlace) busyness(day, hour int) (float64, bool) {
	if day >= len(o.PopularTimes) {
		return 0, false
	}
	data := o.PopularTimes[day].Data
	if hour >= len(data) || data[hour] == nil {
		return 0, false
	}
	return *data[hour], true
}

// usual is the mean positive reading for hour across all days.
func (o *outscraperPlace) usual(hour int) float64 {
	var values []float64
	for _, d := range o.PopularTimes {
		if hour < len(d.Data) && d.Data[hour] != nil && *d.Data[hour] > 0 {
			values = append(values, *d.Data[hour])
		}
	}
	if len(values) == 0 {
		return defaultBusyness
	}
	return baseline.Mean(values)
}

func scoreBusyness(current, usual float64) (float64, string) {
	ratio := 1.0
	if usual > 0 {
		ratio = current / usual
	}
	switch {
	case ratio <= 1.0:
		return float64(int(50 * ratio)), "normal"
	case ratio <= 1.5:
		return float64(int(50 + (ratio-1.0)*60)), "elevated"
	default:
		score := float64(int(80 + (ratio-1.5)*40))
		if score > 100 {
			score = 100
		}
		return score, "high"
	}
}

func pentagonStatus(avg float64) string {
	switch {
	case avg < 60:
		return "Normal"
	case avg < 80:
		return "Elevated"
	default:
		return "High"
	}
}

func mondayIndex(wd time.Weekday) int {
	return (int(wd) + 6) % 7
}
