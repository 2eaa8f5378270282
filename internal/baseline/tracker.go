// Package baseline maintains bounded observation histories and turns a current
// observation into a 0-100 risk score relative to its rolling baseline.
//
// Two scoring directions exist:
//
//	DropPolicy:  fewer observations than normal means higher risk (air traffic avoidance).
//	SurgePolicy: more observations than normal means higher risk (tanker activity).
//
// Both fall back to an absolute cold-start curve until MinHistory observations exist.
package baseline

import "math"

// Number is the element type of a bounded history.
type Number interface {
	~int | ~int64 | ~float64
}

// Update appends v to history and keeps at most maxLength of the newest values.
// The input slice is never modified; callers must use the returned slice.
// A nil history is treated as empty.
func Update[T Number](history []T, v T, maxLength int) []T {
	if maxLength <= 0 {
		return []T{}
	}

	start := 0
	if n := len(history) + 1; n > maxLength {
		start = n - maxLength
	}

	out := make([]T, 0, len(history)-start+1)
	out = append(out, history[start:]...)
	return append(out, v)
}

// Mean returns the arithmetic mean of values, or 0 for an empty slice.
func Mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// ToRisk clamps v into [0,100] and truncates it to an integer risk.
// The small epsilon keeps exact breakpoints from landing one below due to float error.
func ToRisk(v float64) int {
	if math.IsNaN(v) {
		return 0
	}
	v = math.Floor(v + 1e-9)
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return int(v)
}
