package baseline

import (
	"errors"
	"fmt"
)

// Scoring modes reported in raw_data.
const (
	ModeColdStart = "cold_start"
	ModeBaseline  = "baseline"
	ModeSurge     = "surge"
)

// Result is the outcome of scoring one observation.
type Result struct {
	Risk        int
	Mode        string
	Baseline    float64 // rolling mean used, 0 in cold start
	Ratio       float64 // count/baseline (surge) or deviation (drop), 0 in cold start
	HistorySize int
}

// DropPolicy scores sources where a shortfall against the baseline is the signal.
type DropPolicy struct {
	MinHistory int     `mapstructure:"min_history"`
	Floor      float64 `mapstructure:"baseline_floor"`
	ColdStart  Curve   `mapstructure:"cold_start"` // absolute count -> risk, non-increasing
	Deviation  Curve   `mapstructure:"deviation"`  // (baseline-count)/baseline -> risk, non-decreasing
}

// DefaultDropPolicy returns the aviation tables.
func DefaultDropPolicy() DropPolicy {
	return DropPolicy{
		MinHistory: 6,
		Floor:      1,
		ColdStart:  Curve{{X: 0, Y: 100}, {X: 30, Y: 40}, {X: 50, Y: 0}},
		Deviation:  Curve{{X: 0, Y: 0}, {X: 0.2, Y: 20}, {X: 0.4, Y: 50}, {X: 0.6, Y: 80}, {X: 1, Y: 100}},
	}
}

// Validate checks the tables and their direction.
func (p DropPolicy) Validate() error {
	if p.MinHistory < 1 {
		return errors.New("min_history must be at least 1")
	}
	if err := p.ColdStart.Validate(); err != nil {
		return fmt.Errorf("cold_start: %w", err)
	}
	if !p.ColdStart.NonIncreasing() {
		return errors.New("cold_start must be non-increasing")
	}
	if err := p.Deviation.Validate(); err != nil {
		return fmt.Errorf("deviation: %w", err)
	}
	if !p.Deviation.NonDecreasing() {
		return errors.New("deviation must be non-decreasing")
	}
	return nil
}

// Score maps count against history. Risk never rises as count grows.
func (p DropPolicy) Score(count float64, history []float64) Result {
	if count < 0 {
		count = 0
	}
	if len(history) < p.MinHistory {
		return Result{
			Risk:        ToRisk(p.ColdStart.At(count)),
			Mode:        ModeColdStart,
			HistorySize: len(history),
		}
	}

	base := floored(Mean(history), p.Floor)
	deviation := (base - count) / base
	return Result{
		Risk:        ToRisk(p.Deviation.At(deviation)),
		Mode:        ModeBaseline,
		Baseline:    base,
		Ratio:       deviation,
		HistorySize: len(history),
	}
}

// SurgePolicy scores sources where an excess over the baseline is the signal.
// Counts above SurgeThreshold bypass the baseline entirely.
type SurgePolicy struct {
	MinHistory     int     `mapstructure:"min_history"`
	Floor          float64 `mapstructure:"baseline_floor"`
	ColdStart      Curve   `mapstructure:"cold_start"` // absolute count -> risk, non-decreasing
	Ratio          Curve   `mapstructure:"ratio"`      // count/baseline -> risk, non-decreasing
	SurgeThreshold float64 `mapstructure:"surge_threshold"`
	SurgeBase      float64 `mapstructure:"surge_base"`
	SurgeStep      float64 `mapstructure:"surge_step"`
}

// DefaultSurgePolicy returns the tanker tables.
func DefaultSurgePolicy() SurgePolicy {
	return SurgePolicy{
		MinHistory: 6,
		Floor:      1,
		ColdStart: Curve{
			{X: 0, Y: 0}, {X: 1, Y: 20}, {X: 2, Y: 40}, {X: 3, Y: 45}, {X: 5, Y: 75}, {X: 10, Y: 100},
		},
		Ratio:          Curve{{X: 0, Y: 0}, {X: 1, Y: 20}, {X: 1.5, Y: 50}, {X: 2, Y: 80}, {X: 3, Y: 100}},
		SurgeThreshold: 12,
		SurgeBase:      70,
		SurgeStep:      3,
	}
}

// Validate checks the tables and their direction.
func (p SurgePolicy) Validate() error {
	if p.MinHistory < 1 {
		return errors.New("min_history must be at least 1")
	}
	if err := p.ColdStart.Validate(); err != nil {
		return fmt.Errorf("cold_start: %w", err)
	}
	if !p.ColdStart.NonDecreasing() {
		return errors.New("cold_start must be non-decreasing")
	}
	if err := p.Ratio.Validate(); err != nil {
		return fmt.Errorf("ratio: %w", err)
	}
	if !p.Ratio.NonDecreasing() {
		return errors.New("ratio must be non-decreasing")
	}
	if p.SurgeThreshold < 0 || p.SurgeStep < 0 {
		return errors.New("surge_threshold and surge_step must not be negative")
	}
	if p.SurgeBase < 0 || p.SurgeBase > 100 {
		return errors.New("surge_base must be between 0 and 100")
	}
	return nil
}

// Score maps count against history. Risk never falls as count grows within a mode.
func (p SurgePolicy) Score(count float64, history []float64) Result {
	if count < 0 {
		count = 0
	}
	if p.SurgeThreshold > 0 && count > p.SurgeThreshold {
		return Result{
			Risk:        ToRisk(p.SurgeBase + (count-p.SurgeThreshold)*p.SurgeStep),
			Mode:        ModeSurge,
			HistorySize: len(history),
		}
	}
	if len(history) < p.MinHistory {
		return Result{
			Risk:        ToRisk(p.ColdStart.At(count)),
			Mode:        ModeColdStart,
			HistorySize: len(history),
		}
	}

	base := floored(Mean(history), p.Floor)
	ratio := count / base
	return Result{
		Risk:        ToRisk(p.Ratio.At(ratio)),
		Mode:        ModeBaseline,
		Baseline:    base,
		Ratio:       ratio,
		HistorySize: len(history),
	}
}

// floored substitutes floor (or 1 when unset) for a non-positive baseline.
func floored(base, floor float64) float64 {
	if base > 0 {
		return base
	}
	if floor > 0 {
		return floor
	}
	return 1
}
