package attenuation

import (
	"fmt"
	"strings"
)

// Curve selects the function that maps normalised distance to gain.
type Curve int

const (
	Linear Curve = iota
	Exponential
	Logarithmic
	InverseSquare
)

var curveNames = map[Curve]string{
	Linear:        "linear",
	Exponential:   "exponential",
	Logarithmic:   "logarithmic",
	InverseSquare: "inverse_square",
}

// String returns the wire name of the curve.
func (c Curve) String() string {
	if name, ok := curveNames[c]; ok {
		return name
	}
	return fmt.Sprintf("curve(%d)", int(c))
}

// Valid reports whether c is one of the known curves.
func (c Curve) Valid() bool {
	_, ok := curveNames[c]
	return ok
}

// ParseCurve resolves a curve name. Unknown names are rejected.
func ParseCurve(name string) (Curve, error) {
	normalized := strings.ToLower(strings.TrimSpace(name))
	for c, n := range curveNames {
		if n == normalized {
			return c, nil
		}
	}
	return Linear, fmt.Errorf("%w: unknown curve %q", ErrInvalidParameter, name)
}

// CurveOrDefault resolves a curve name, falling back to Linear.
func CurveOrDefault(name string) Curve {
	c, err := ParseCurve(name)
	if err != nil {
		return Linear
	}
	return c
}
