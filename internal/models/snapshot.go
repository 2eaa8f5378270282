// Package models defines the core domain entities for strikewatch.
// These models represent per-source risk snapshots, the composite trend series and
// the persisted document that a dashboard reads between runs.
//
// Terminology:
//   - Signal: one source's risk assessment for the current run (a Snapshot).
//   - Baseline history: recent raw observation counts used as the "normal" reference.
//   - Display history: recent risk scores rendered next to each signal.
package models

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Source keys of the persisted document. They are part of the dashboard contract.
const (
	KeyNews       = "news"
	KeyAviation   = "aviation"
	KeyTanker     = "tanker"
	KeyPentagon   = "pentagon"
	KeyPolymarket = "polymarket"
	KeyWeather    = "weather"
)

// SourceOrder is the fixed order in which sources are polled and reported.
var SourceOrder = []string{KeyNews, KeyAviation, KeyTanker, KeyPentagon, KeyPolymarket, KeyWeather}

// BaselineHistoryKey is the raw_data entry carrying a source's baseline history.
const BaselineHistoryKey = "baseline_history"

// Snapshot is one source's result at one poll.
type Snapshot struct {
	Risk    int                    `json:"risk"`
	Detail  string                 `json:"detail"`
	RawData map[string]interface{} `json:"raw_data"`
	History []int                  `json:"history"`

	// Observation is the raw count a baseline-tracked source observed this run.
	// The aggregator folds it into raw_data.baseline_history; it is never serialized itself.
	Observation *float64 `json:"-"`
}

// Validate checks that all snapshot fields are valid
func (s *Snapshot) Validate() error {
	if s.Risk < 0 || s.Risk > 100 {
		return fmt.Errorf("risk %d must be between 0 and 100", s.Risk)
	}
	if s.Detail == "" {
		return errors.New("detail must not be empty")
	}
	if s.RawData == nil {
		return errors.New("raw data must not be nil")
	}
	for i, h := range s.History {
		if h < 0 || h > 100 {
			return fmt.Errorf("history[%d] = %d must be between 0 and 100", i, h)
		}
	}
	return nil
}

// BaselineHistory returns the numeric baseline history embedded in raw_data.
// Values decoded from JSON arrive as []interface{}; non-numeric entries are skipped.
func (s *Snapshot) BaselineHistory() []float64 {
	if s == nil || s.RawData == nil {
		return nil
	}
	switch v := s.RawData[BaselineHistoryKey].(type) {
	case []float64:
		out := make([]float64, len(v))
		copy(out, v)
		return out
	case []int:
		out := make([]float64, 0, len(v))
		for _, n := range v {
			out = append(out, float64(n))
		}
		return out
	case []interface{}:
		out := make([]float64, 0, len(v))
		for _, item := range v {
			switch n := item.(type) {
			case float64:
				out = append(out, n)
			case int:
				out = append(out, float64(n))
			case json.Number:
				if f, err := n.Float64(); err == nil {
					out = append(out, f)
				}
			}
		}
		return out
	default:
		return nil
	}
}
