package attenuation

import (
	"errors"
	"fmt"
	"math"

	"github.com/rickgao/proximity-voice/internal/model"
)

// ErrInvalidParameter is returned for inputs the model cannot evaluate.
var ErrInvalidParameter = errors.New("invalid parameter")

// Defaults match the relay's out-of-the-box behaviour.
const (
	DefaultMaxDistance  = 20.0
	DefaultCurve        = Exponential
	DefaultMasterVolume = 1.0
)

// Params bundles the listener-independent mixing settings.
type Params struct {
	MaxDistance  float64
	Curve        Curve
	MasterVolume float64 // 0..1, applied after the curve
}

// DefaultParams returns the default mixing settings.
func DefaultParams() Params {
	return Params{
		MaxDistance:  DefaultMaxDistance,
		Curve:        DefaultCurve,
		MasterVolume: DefaultMasterVolume,
	}
}

// Validate checks that the params can be evaluated.
func (p Params) Validate() error {
	if err := checkMaxDistance(p.MaxDistance); err != nil {
		return err
	}
	if math.IsNaN(p.MasterVolume) || p.MasterVolume < 0 || p.MasterVolume > 1 {
		return fmt.Errorf("%w: master volume %v outside [0,1]", ErrInvalidParameter, p.MasterVolume)
	}
	return nil
}

// Attenuation is what one listener hears from one speaker.
type Attenuation struct {
	Distance float64
	Gain     float64 // Curve output, [0,1]
	Pan      float64 // [-1,1], -1 = left
	Volume   float64 // Gain * MasterVolume
}

// Distance returns the Euclidean distance between a and b on the (x, z) plane.
func Distance(a, b model.Position) float64 {
	dx := a.X - b.X
	dz := a.Z - b.Z
	return math.Sqrt(dx*dx + dz*dz)
}

// InRange reports whether a listener at distance d receives audio.
func InRange(d, maxDistance float64) bool {
	return d <= maxDistance
}

// Gain maps a distance to a volume multiplier in [0,1].
// Negative distances are treated as 0. An unknown curve behaves as Linear.
func Gain(distance, maxDistance float64, curve Curve) (float64, error) {
	if err := checkMaxDistance(maxDistance); err != nil {
		return 0, err
	}
	if math.IsNaN(distance) {
		return 0, fmt.Errorf("%w: distance is NaN", ErrInvalidParameter)
	}
	if distance < 0 {
		distance = 0
	}

	ratio := math.Min(distance/maxDistance, 1)

	switch curve {
	case Exponential:
		return (1 - ratio) * (1 - ratio), nil

	case Logarithmic:
		if distance == 0 {
			return 1, nil
		}
		return math.Max(0, 1-math.Log(distance+1)/math.Log(maxDistance+1)), nil

	case InverseSquare:
		if distance == 0 {
			return 1, nil
		}
		return 1 / ((ratio + 1) * (ratio + 1)), nil

	default:
		return math.Max(0, 1-ratio), nil
	}
}

// Pan returns the stereo balance of a speaker as heard by a listener.
// A speaker at lower x than the listener is heard on the left (-1).
func Pan(speaker, listener model.Position) float64 {
	dx := speaker.X - listener.X
	angle := math.Atan2(dx, 0)
	return clamp(math.Sin(angle), -1, 1)
}

// Compute evaluates distance, gain, pan and final volume for one listener.
func Compute(speaker, listener model.Position, p Params) (Attenuation, error) {
	if err := p.Validate(); err != nil {
		return Attenuation{}, err
	}

	d := Distance(speaker, listener)
	g, err := Gain(d, p.MaxDistance, p.Curve)
	if err != nil {
		return Attenuation{}, err
	}

	return Attenuation{
		Distance: d,
		Gain:     g,
		Pan:      Pan(speaker, listener),
		Volume:   clamp(g*p.MasterVolume, 0, 1),
	}, nil
}

func checkMaxDistance(maxDistance float64) error {
	if math.IsNaN(maxDistance) || math.IsInf(maxDistance, 0) || maxDistance <= 0 {
		return fmt.Errorf("%w: max distance must be a positive finite number, got %v", ErrInvalidParameter, maxDistance)
	}
	return nil
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
