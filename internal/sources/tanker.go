package sources

import (
	"context"
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/rewired-gh/strikewatch/internal/baseline"
	"github.com/rewired-gh/strikewatch/internal/models"
	"github.com/rewired-gh/strikewatch/internal/opensky"
)

// maxTankerDetails bounds the per-aircraft details kept in raw_data.
const maxTankerDetails = 10

// Tanker scores aerial refueling activity. More tankers than usual means
// support for an operation and therefore higher risk.
type Tanker struct {
	clock
	states         StatesFetcher
	region         opensky.BoundingBox
	prefixes       []string
	policy         baseline.SurgePolicy
	baselineLength int
}

// NewTanker creates the tanker source
func NewTanker(states StatesFetcher, region opensky.BoundingBox, prefixes []string, policy baseline.SurgePolicy, baselineLength int) *Tanker {
	upper := make([]string, 0, len(prefixes))
	for _, p := range prefixes {
		if p = strings.ToUpper(strings.TrimSpace(p)); p != "" {
			upper = append(upper, p)
		}
	}
	return &Tanker{
		states:         states,
		region:         region,
		prefixes:       upper,
		policy:         policy,
		baselineLength: baselineLength,
	}
}

func (t *Tanker) Name() string { return models.KeyTanker }

func (t *Tanker) BaselineLength() int { return t.baselineLength }

// IsTanker reports whether callsign starts with a known tanker prefix
func (t *Tanker) IsTanker(callsign string) bool {
	callsign = strings.ToUpper(strings.TrimSpace(callsign))
	if callsign == "" {
		return false
	}
	for _, p := range t.prefixes {
		if strings.HasPrefix(callsign, p) {
			return true
		}
	}
	return false
}

func (t *Tanker) GetRisk(ctx context.Context, history []float64) (*models.Snapshot, error) {
	resp, err := t.states.States(ctx, t.region)
	if err != nil {
		return nil, err
	}

	callsigns := []string{}
	details := []interface{}{}
	for _, s := range resp.Airborne() {
		if !t.IsTanker(s.Callsign) {
			continue
		}
		callsigns = append(callsigns, s.Callsign)
		if len(details) < maxTankerDetails {
			details = append(details, map[string]interface{}{
				"icao24":         s.ICAO24,
				"callsign":       s.Callsign,
				"origin_country": s.OriginCountry,
				"latitude":       s.Latitude,
				"longitude":      s.Longitude,
				"altitude":       s.Altitude,
				"velocity":       s.Velocity,
			})
		}
	}

	count := len(callsigns)
	res := t.policy.Score(float64(count), history)

	return &models.Snapshot{
		Risk:   res.Risk,
		Detail: fmt.Sprintf("%s detected in region", humanize.Comma(int64(count))),
		RawData: map[string]interface{}{
			"tanker_count": count,
			"callsigns":    callsigns,
			"tankers":      details,
			"baseline":     round(res.Baseline, 2),
			"ratio":        round(res.Ratio, 3),
			"history_size": res.HistorySize,
			"mode":         res.Mode,
			"timestamp":    t.stamp(),
		},
		Observation: observation(float64(count)),
	}, nil
}
