// Package aggregator runs one polling cycle end to end.
//
// A run loads the previous document, polls every source in a fixed order, extends each
// signal's display and baseline histories, computes the weighted composite and the
// elevated count, appends to the trend series and replaces the document in one write.
// Any source failure aborts the run before the document is touched.
package aggregator

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/rewired-gh/strikewatch/internal/baseline"
	"github.com/rewired-gh/strikewatch/internal/logger"
	"github.com/rewired-gh/strikewatch/internal/models"
	"github.com/rewired-gh/strikewatch/internal/sources"
	"github.com/rewired-gh/strikewatch/internal/trend"
)

// Store loads and replaces the persisted document
type Store interface {
	Load() (*models.State, error)
	Save(state *models.State) error
}

// Recorder receives a summary of every saved run
type Recorder interface {
	Record(runID string, state *models.State) error
}

// Config holds composite scoring parameters
type Config struct {
	Weights              map[string]float64
	ElevatedThreshold    int
	DisplayHistoryLength int
	Trend                trend.Policy
}

// Result is the outcome of a successful run
type Result struct {
	RunID    string
	Previous *models.State
	State    *models.State
}

// Aggregator orchestrates one run over all sources
type Aggregator struct {
	sources []sources.Source
	store   Store
	cfg     Config
	ledger  Recorder
	now     func() time.Time

	runs     metric.Int64Counter
	failures metric.Int64Counter
}

// New creates a new Aggregator. Sources are polled in the order given.
func New(srcs []sources.Source, store Store, cfg Config) *Aggregator {
	meter := otel.Meter("strikewatch/aggregator")
	runs, _ := meter.Int64Counter("strikewatch_runs_total")
	failures, _ := meter.Int64Counter("strikewatch_run_failures_total")

	return &Aggregator{
		sources:  srcs,
		store:    store,
		cfg:      cfg,
		now:      time.Now,
		runs:     runs,
		failures: failures,
	}
}

// WithLedger records every saved run to r
func (a *Aggregator) WithLedger(r Recorder) *Aggregator {
	a.ledger = r
	return a
}

// WithClock overrides the wall clock
func (a *Aggregator) WithClock(now func() time.Time) *Aggregator {
	a.now = now
	return a
}

// Run performs one cycle. On error nothing has been written.
func (a *Aggregator) Run(ctx context.Context) (*Result, error) {
	runID := uuid.NewString()
	a.runs.Add(ctx, 1)
	logger.Info("Run %s started with %d sources", runID, len(a.sources))

	previous, err := a.store.Load()
	if err != nil {
		logger.Warn("Previous state unusable, starting with empty history: %v", err)
	}
	if previous == nil {
		previous = models.NewState()
	}

	now := a.now().UTC()
	next := &models.State{
		Signals:     make(map[string]*models.Snapshot, len(a.sources)),
		LastUpdated: now,
	}

	risks := make(map[string]int, len(a.sources))
	for _, src := range a.sources {
		if err := ctx.Err(); err != nil {
			return nil, a.fail(ctx, "", err)
		}

		name := src.Name()
		snap, err := src.GetRisk(ctx, previous.BaselineHistory(name))
		if err != nil {
			return nil, a.fail(ctx, name, err)
		}
		if snap == nil {
			return nil, a.fail(ctx, name, errors.New("no snapshot returned"))
		}

		snap = a.attachHistory(src, snap, previous)
		if err := snap.Validate(); err != nil {
			return nil, a.fail(ctx, name, fmt.Errorf("invalid snapshot: %w", err))
		}

		next.Signals[name] = snap
		risks[name] = snap.Risk
		logger.Info("%s: risk=%d (%s)", name, snap.Risk, snap.Detail)
	}

	composite := Composite(risks, a.cfg.Weights)
	elevated := ElevatedCount(risks, a.cfg.ElevatedThreshold)
	next.Total = models.TotalRisk{
		Risk:          composite,
		History:       trend.Update(previous.Trend(), composite, now.UnixMilli(), a.cfg.Trend),
		ElevatedCount: elevated,
	}
	logger.Info("Total risk: %d, elevated signals: %d", composite, elevated)

	if err := a.store.Save(next); err != nil {
		return nil, a.fail(ctx, "", fmt.Errorf("failed to save state: %w", err))
	}

	if a.ledger != nil {
		if err := a.ledger.Record(runID, next); err != nil {
			logger.Warn("Failed to record run %s in ledger: %v", runID, err)
		}
	}

	logger.Info("Run %s completed", runID)
	return &Result{RunID: runID, Previous: previous, State: next}, nil
}

// attachHistory returns a copy of snap carrying its display history and, for
// baseline sources, the extended baseline history inside raw_data.
func (a *Aggregator) attachHistory(src sources.Source, snap *models.Snapshot, previous *models.State) *models.Snapshot {
	name := src.Name()
	out := *snap
	out.RawData = make(map[string]interface{}, len(snap.RawData)+1)
	for k, v := range snap.RawData {
		out.RawData[k] = v
	}
	out.History = baseline.Update(previous.DisplayHistory(name), snap.Risk, a.cfg.DisplayHistoryLength)

	if bs, ok := src.(sources.BaselineSource); ok {
		prior := previous.BaselineHistory(name)
		if snap.Observation != nil {
			out.RawData[models.BaselineHistoryKey] = baseline.Update(prior, *snap.Observation, bs.BaselineLength())
		} else if prior != nil {
			out.RawData[models.BaselineHistoryKey] = prior
		}
	}
	out.Observation = nil
	return &out
}

func (a *Aggregator) fail(ctx context.Context, source string, err error) error {
	a.failures.Add(ctx, 1, metric.WithAttributes(attribute.String("source", source)))
	if source == "" {
		return err
	}
	return &sources.Error{Source: source, Err: err}
}

// Composite is the weighted average of risks over the sources present.
// When some weighted sources are absent the average is rescaled by
// sum(all weights)/sum(present weights); with every source present the factor is 1.
func Composite(risks map[string]int, weights map[string]float64) int {
	keys := make([]string, 0, len(weights))
	for key := range weights {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	var total, present, all float64
	for _, key := range keys {
		w := weights[key]
		all += w
		r, ok := risks[key]
		if !ok {
			continue
		}
		total += float64(r) * w
		present += w
	}
	if present <= 0 {
		return 0
	}
	return baseline.ToRisk(total / present * (all / present))
}

// ElevatedCount is the number of sources at or above threshold
func ElevatedCount(risks map[string]int, threshold int) int {
	n := 0
	for _, r := range risks {
		if r >= threshold {
			n++
		}
	}
	return n
}
