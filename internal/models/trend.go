package models

import "fmt"

// TrendEntry is one point of the composite risk series.
// Timestamp is milliseconds since the Unix epoch.
type TrendEntry struct {
	Timestamp int64 `json:"timestamp"`
	Risk      int   `json:"risk"`
	Pinned    bool  `json:"pinned,omitempty"`
}

// TotalRisk is the composite block of the persisted document.
type TotalRisk struct {
	Risk          int          `json:"risk"`
	History       []TrendEntry `json:"history"`
	ElevatedCount int          `json:"elevated_count"`
}

// Validate checks that the composite block is in range
func (t *TotalRisk) Validate() error {
	if t.Risk < 0 || t.Risk > 100 {
		return fmt.Errorf("total risk %d must be between 0 and 100", t.Risk)
	}
	if t.ElevatedCount < 0 {
		return fmt.Errorf("elevated count %d must not be negative", t.ElevatedCount)
	}
	return nil
}
