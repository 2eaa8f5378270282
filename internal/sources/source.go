// Package sources turns each upstream feed into a risk Snapshot.
//
// Every adapter fetches its raw data, scores it with a deterministic function and
// returns either a complete Snapshot or an error. Upstream failures are never papered
// over with a substitute value; only documented degenerate-but-valid responses (such as
// an empty news timeline) produce a zero-risk Snapshot.
package sources

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/rewired-gh/strikewatch/internal/models"
)

// Source produces one signal per run
type Source interface {
	// Name is the key the snapshot is stored under.
	Name() string
	// GetRisk fetches and scores the current observation. history is the stored
	// baseline history and is only meaningful for a BaselineSource.
	GetRisk(ctx context.Context, history []float64) (*models.Snapshot, error)
}

// BaselineSource scores against a rolling baseline of its own raw observations.
// Its snapshots carry Observation, which the caller folds into the baseline history.
type BaselineSource interface {
	Source
	BaselineLength() int
}

// Error identifies the adapter that failed a run
type Error struct {
	Source string
	Err    error
}

func (e *Error) Error() string {
	return fmt.Sprintf("source %s: %v", e.Source, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// clock is shared by adapters that stamp raw_data or depend on wall time.
type clock struct {
	now func() time.Time
}

func (c clock) Now() time.Time {
	if c.now == nil {
		return time.Now().UTC()
	}
	return c.now().UTC()
}

func (c clock) stamp() string {
	return c.Now().Format(time.RFC3339)
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}

func observation(v float64) *float64 {
	return &v
}
