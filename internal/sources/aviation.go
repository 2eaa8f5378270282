package sources

import (
	"context"
	"fmt"

	"github.com/dustin/go-humanize"

	"github.com/rewired-gh/strikewatch/internal/baseline"
	"github.com/rewired-gh/strikewatch/internal/models"
	"github.com/rewired-gh/strikewatch/internal/opensky"
)

// StatesFetcher returns aircraft inside a bounding box
type StatesFetcher interface {
	States(ctx context.Context, box opensky.BoundingBox) (*opensky.Response, error)
}

// Aviation scores civil traffic over the watched regions. Fewer aircraft than the
// rolling baseline means airspace avoidance and therefore higher risk.
type Aviation struct {
	clock
	states         StatesFetcher
	regions        []opensky.BoundingBox
	policy         baseline.DropPolicy
	baselineLength int
}

// NewAviation creates the aviation source
func NewAviation(states StatesFetcher, regions []opensky.BoundingBox, policy baseline.DropPolicy, baselineLength int) *Aviation {
	return &Aviation{
		states:         states,
		regions:        regions,
		policy:         policy,
		baselineLength: baselineLength,
	}
}

func (a *Aviation) Name() string { return models.KeyAviation }

func (a *Aviation) BaselineLength() int { return a.baselineLength }

// GetRisk counts unique airborne aircraft across all regions.
// Regions may overlap, so an aircraft seen in more than one is counted once.
func (a *Aviation) GetRisk(ctx context.Context, history []float64) (*models.Snapshot, error) {
	if len(a.regions) == 0 {
		return nil, fmt.Errorf("no regions configured")
	}

	seen := make(map[string]struct{})
	perRegion := make(map[string]interface{}, len(a.regions))
	for _, region := range a.regions {
		resp, err := a.states.States(ctx, region)
		if err != nil {
			return nil, err
		}
		airborne := resp.Airborne()
		perRegion[region.Name] = len(airborne)
		for _, s := range airborne {
			seen[s.ICAO24] = struct{}{}
		}
	}

	count := len(seen)
	res := a.policy.Score(float64(count), history)

	return &models.Snapshot{
		Risk:   res.Risk,
		Detail: fmt.Sprintf("%s flights in region", humanize.Comma(int64(count))),
		RawData: map[string]interface{}{
			"regions":        perRegion,
			"aircraft_count": count,
			"baseline":       round(res.Baseline, 2),
			"deviation":      round(res.Ratio, 3),
			"history_size":   res.HistorySize,
			"mode":           res.Mode,
			"timestamp":      a.stamp(),
		},
		Observation: observation(float64(count)),
	}, nil
}
