package baseline

import (
	"errors"
	"fmt"
)

// Point is one breakpoint of a piecewise-linear curve.
type Point struct {
	X float64 `mapstructure:"x" json:"x"`
	Y float64 `mapstructure:"y" json:"y"`
}

// Curve is a piecewise-linear mapping defined by breakpoints sorted by X.
// Inputs left of the first point take its Y, inputs right of the last point take its Y.
type Curve []Point

// At evaluates the curve at x.
func (c Curve) At(x float64) float64 {
	if len(c) == 0 {
		return 0
	}
	if x <= c[0].X {
		return c[0].Y
	}
	last := c[len(c)-1]
	if x >= last.X {
		return last.Y
	}
	for i := 1; i < len(c); i++ {
		hi := c[i]
		if x > hi.X {
			continue
		}
		lo := c[i-1]
		return lo.Y + (x-lo.X)*(hi.Y-lo.Y)/(hi.X-lo.X)
	}
	return last.Y
}

// Validate checks that the curve is usable as a risk table.
func (c Curve) Validate() error {
	if len(c) == 0 {
		return errors.New("curve must have at least one point")
	}
	for i, p := range c {
		if p.Y < 0 || p.Y > 100 {
			return fmt.Errorf("point %d: y=%g must be between 0 and 100", i, p.Y)
		}
		if i > 0 && p.X <= c[i-1].X {
			return fmt.Errorf("point %d: x=%g must be greater than previous x=%g", i, p.X, c[i-1].X)
		}
	}
	return nil
}

// NonDecreasing reports whether Y never falls as X grows.
func (c Curve) NonDecreasing() bool {
	for i := 1; i < len(c); i++ {
		if c[i].Y < c[i-1].Y {
			return false
		}
	}
	return true
}

// NonIncreasing reports whether Y never rises as X grows.
func (c Curve) NonIncreasing() bool {
	for i := 1; i < len(c); i++ {
		if c[i].Y > c[i-1].Y {
			return false
		}
	}
	return true
}
