// Package trend maintains the composite risk series charted by the dashboard.
//
// Every run appends one entry. Roughly once per PinInterval an entry is pinned;
// pinned entries form the long-horizon chart while unpinned ones only provide
// recent granularity. When the series grows past MaxEntries it is rebuilt from
// the pinned entries inside Retention plus the KeepRecent newest entries.
package trend

import (
	"time"

	"github.com/rewired-gh/strikewatch/internal/models"
)

// Policy configures pinning and retention.
type Policy struct {
	PinInterval time.Duration `mapstructure:"pin_interval"`
	MaxEntries  int           `mapstructure:"max_entries"`
	Retention   time.Duration `mapstructure:"retention"`
	KeepRecent  int           `mapstructure:"keep_recent"`
}

// DefaultPolicy pins hourly-ish and keeps three days of pinned points.
func DefaultPolicy() Policy {
	return Policy{
		PinInterval: 50 * time.Minute,
		MaxEntries:  80,
		Retention:   72 * time.Hour,
		KeepRecent:  10,
	}
}

// ShouldPin reports whether an entry at nowMs may be pinned: the most recent pinned
// entry in series must be at least PinInterval old.
func (p Policy) ShouldPin(series []models.TrendEntry, nowMs int64) bool {
	for i := len(series) - 1; i >= 0; i-- {
		if series[i].Pinned {
			return nowMs-series[i].Timestamp >= p.PinInterval.Milliseconds()
		}
	}
	return true
}

// Update returns a new series with {nowMs, risk} appended and retention applied.
// The input series is never modified.
func Update(series []models.TrendEntry, risk int, nowMs int64, p Policy) []models.TrendEntry {
	out := make([]models.TrendEntry, 0, len(series)+1)
	out = append(out, series...)
	out = append(out, models.TrendEntry{
		Timestamp: nowMs,
		Risk:      risk,
		Pinned:    p.ShouldPin(series, nowMs),
	})

	if len(out) <= p.MaxEntries {
		return out
	}
	return p.retain(out, nowMs)
}

// retain keeps pinned entries newer than the retention cutoff together with the
// KeepRecent newest entries, preserving insertion order.
func (p Policy) retain(series []models.TrendEntry, nowMs int64) []models.TrendEntry {
	cutoff := nowMs - p.Retention.Milliseconds()
	recentFrom := len(series) - p.KeepRecent

	kept := make([]models.TrendEntry, 0, p.MaxEntries)
	for i, e := range series {
		if (e.Pinned && e.Timestamp > cutoff) || i >= recentFrom {
			kept = append(kept, e)
		}
	}
	return kept
}
