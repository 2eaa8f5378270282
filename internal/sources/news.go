package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/rewired-gh/strikewatch/internal/baseline"
	"github.com/rewired-gh/strikewatch/internal/fetch"
	"github.com/rewired-gh/strikewatch/internal/models"
)

// JSONFetcher performs a JSON GET. *fetch.Client implements it.
type JSONFetcher interface {
	GetJSON(ctx context.Context, rawURL string, query url.Values, header http.Header, out any) error
}

// NewsConfig parameterizes the news volume source
type NewsConfig struct {
	APIBaseURL     string
	Query          string
	Timespan       string
	RecentPoints   int
	Ratio          baseline.Curve
	IntensityScale float64
}

// News scores coverage volume from the GDELT DOC 2.0 timeline. A recent burst
// relative to the window average, and a high absolute share of coverage, both raise risk.
type News struct {
	clock
	fetcher JSONFetcher
	cfg     NewsConfig
}

type timelineResponse struct {
	Timeline *[]struct {
		Series string `json:"series"`
		Data   []struct {
			Date  string          `json:"date"`
			Value json.RawMessage `json:"value"`
		} `json:"data"`
	} `json:"timeline"`
}

// NewNews creates the news source
func NewNews(fetcher JSONFetcher, cfg NewsConfig) *News {
	if cfg.RecentPoints < 1 {
		cfg.RecentPoints = 1
	}
	return &News{fetcher: fetcher, cfg: cfg}
}

func (n *News) Name() string { return models.KeyNews }

func (n *News) GetRisk(ctx context.Context, _ []float64) (*models.Snapshot, error) {
	query := url.Values{}
	query.Set("query", n.cfg.Query)
	query.Set("mode", "timelinevol")
	query.Set("format", "json")
	if n.cfg.Timespan != "" {
		query.Set("timespan", n.cfg.Timespan)
	}

	var resp timelineResponse
	if err := n.fetcher.GetJSON(ctx, n.cfg.APIBaseURL, query, nil, &resp); err != nil {
		return nil, fmt.Errorf("failed to fetch timeline: %w", err)
	}
	if resp.Timeline == nil {
		return nil, fmt.Errorf("timeline response: %w: timeline", fetch.ErrMissingField)
	}

	var points int
	var values []float64
	if timeline := *resp.Timeline; len(timeline) > 0 {
		points = len(timeline[0].Data)
		for _, point := range timeline[0].Data {
			if v, ok := parseVolume(point.Value); ok {
				values = append(values, v)
			}
		}
	}

	if points > 0 && len(values) == 0 {
		return nil, fmt.Errorf("timeline response: %w: none of %d points usable", fetch.ErrMissingField, points)
	}
	if points == 0 {
		return &models.Snapshot{
			Risk:   0,
			Detail: "no timeline data received",
			RawData: map[string]interface{}{
				"points":    0,
				"timestamp": n.stamp(),
			},
		}, nil
	}

	recentN := n.cfg.RecentPoints
	if recentN > len(values) {
		recentN = len(values)
	}
	recent := baseline.Mean(values[len(values)-recentN:])
	overall := baseline.Mean(values)
	ratio := 1.0
	if overall > 0 {
		ratio = recent / overall
	}
	risk := baseline.ToRisk(n.cfg.Ratio.At(ratio) + n.cfg.IntensityScale*recent)

	return &models.Snapshot{
		Risk:   risk,
		Detail: fmt.Sprintf("%.1fx coverage, %.2f%% of news", ratio, recent),
		RawData: map[string]interface{}{
			"points":         len(values),
			"recent_volume":  round(recent, 4),
			"overall_volume": round(overall, 4),
			"volume_ratio":   round(ratio, 3),
			"query":          n.cfg.Query,
			"timespan":       n.cfg.Timespan,
			"timestamp":      n.stamp(),
		},
	}, nil
}

// parseVolume accepts a number or a numeric string; anything else is skipped.
func parseVolume(raw json.RawMessage) (float64, bool) {
	if len(raw) == 0 || string(raw) == "null" {
		return 0, false
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		return f, f >= 0
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return 0, false
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f < 0 {
		return 0, false
	}
	return f, true
}
