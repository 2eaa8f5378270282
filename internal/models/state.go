package models

import (
	"encoding/json"
	"fmt"
	"time"
)

const (
	keyTotalRisk   = "total_risk"
	keyLastUpdated = "last_updated"
)

// lastUpdatedLayouts are accepted when reading a document. The first one is written.
var lastUpdatedLayouts = []string{
	time.RFC3339,
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999",
	"2006-01-02T15:04:05",
}

// State is the persisted root document. Each source key maps to its latest Snapshot;
// total_risk and last_updated sit next to them at the top level.
type State struct {
	Signals     map[string]*Snapshot
	Total       TotalRisk
	LastUpdated time.Time
}

// NewState returns an empty document, the starting point of a first run.
func NewState() *State {
	return &State{Signals: make(map[string]*Snapshot)}
}

// Snapshot returns the stored snapshot for key, or nil.
func (s *State) Snapshot(key string) *Snapshot {
	if s == nil || s.Signals == nil {
		return nil
	}
	return s.Signals[key]
}

// DisplayHistory returns the stored risk history for key.
// Values outside [0,100] are dropped so a damaged document cannot fail the next run.
func (s *State) DisplayHistory(key string) []int {
	snap := s.Snapshot(key)
	if snap == nil {
		return nil
	}
	out := make([]int, 0, len(snap.History))
	for _, h := range snap.History {
		if h >= 0 && h <= 100 {
			out = append(out, h)
		}
	}
	return out
}

// BaselineHistory returns the stored raw-count baseline for key.
func (s *State) BaselineHistory(key string) []float64 {
	return s.Snapshot(key).BaselineHistory()
}

// Trend returns the stored composite trend series.
func (s *State) Trend() []TrendEntry {
	if s == nil {
		return nil
	}
	return s.Total.History
}

// IsEmpty reports whether the document holds no prior run.
func (s *State) IsEmpty() bool {
	return s == nil || (len(s.Signals) == 0 && len(s.Total.History) == 0)
}

// Validate checks every snapshot and the composite block
func (s *State) Validate() error {
	for key, snap := range s.Signals {
		if key == keyTotalRisk || key == keyLastUpdated {
			return fmt.Errorf("signal key %q is reserved", key)
		}
		if snap == nil {
			return fmt.Errorf("signal %s is nil", key)
		}
		if err := snap.Validate(); err != nil {
			return fmt.Errorf("signal %s: %w", key, err)
		}
	}
	return s.Total.Validate()
}

// MarshalJSON flattens signals next to total_risk and last_updated.
func (s State) MarshalJSON() ([]byte, error) {
	doc := make(map[string]interface{}, len(s.Signals)+2)
	for key, snap := range s.Signals {
		doc[key] = snap
	}
	history := s.Total.History
	if history == nil {
		history = []TrendEntry{}
	}
	doc[keyTotalRisk] = TotalRisk{
		Risk:          s.Total.Risk,
		History:       history,
		ElevatedCount: s.Total.ElevatedCount,
	}
	doc[keyLastUpdated] = s.LastUpdated.UTC().Format(lastUpdatedLayouts[0])
	return json.Marshal(doc)
}

// UnmarshalJSON reads the flattened document. Any top-level key other than
// total_risk and last_updated is decoded as a Snapshot.
func (s *State) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	out := State{Signals: make(map[string]*Snapshot)}
	for key, msg := range raw {
		switch key {
		case keyTotalRisk:
			if err := json.Unmarshal(msg, &out.Total); err != nil {
				return fmt.Errorf("decode %s: %w", key, err)
			}
		case keyLastUpdated:
			var ts string
			if err := json.Unmarshal(msg, &ts); err != nil {
				return fmt.Errorf("decode %s: %w", key, err)
			}
			parsed, err := parseLastUpdated(ts)
			if err != nil {
				return err
			}
			out.LastUpdated = parsed
		default:
			var snap Snapshot
			if err := json.Unmarshal(msg, &snap); err != nil {
				return fmt.Errorf("decode signal %s: %w", key, err)
			}
			out.Signals[key] = &snap
		}
	}

	*s = out
	return nil
}

func parseLastUpdated(ts string) (time.Time, error) {
	for _, layout := range lastUpdatedLayouts {
		if t, err := time.Parse(layout, ts); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid last_updated %q", ts)
}
