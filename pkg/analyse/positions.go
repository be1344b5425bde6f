package analyse

import (
	"fmt"
	"math"
	"strings"

	"github.com/abel-research/ampscan/pkg/geom"
	"github.com/abel-research/ampscan/pkg/mesh"
)

// PositionMode selects how slice positions are generated.
type PositionMode int

const (
	// Explicit uses the listed planes as given.
	Explicit PositionMode = iota
	// RealIntervals steps from Start to End in model units.
	RealIntervals
	// NormIntervals steps through fractions of the mesh's extent along the
	// slicing axis, 0 at its minimum and 1 at its maximum.
	NormIntervals
)

// ParsePositionMode accepts "slices" or "explicit", "real_intervals" and
// "norm_intervals" (dashes allowed in place of underscores).
func ParsePositionMode(s string) (PositionMode, error) {
	switch strings.ReplaceAll(strings.ToLower(s), "-", "_") {
	case "slices", "explicit":
		return Explicit, nil
	case "real_intervals", "real":
		return RealIntervals, nil
	case "norm_intervals", "norm":
		return NormIntervals, nil
	}
	return 0, fmt.Errorf("unknown slice position mode %q", s)
}

func (p PositionMode) String() string {
	switch p {
	case Explicit:
		return "explicit"
	case RealIntervals:
		return "real_intervals"
	case NormIntervals:
		return "norm_intervals"
	}
	return fmt.Sprintf("PositionMode(%d)", int(p))
}

// PositionSpec describes a set of slice planes.
type PositionSpec struct {
	Mode   PositionMode
	Planes []float64 // Explicit
	Start  float64   // interval modes
	End    float64
	Step   float64
}

// Positions returns the plane coordinates along axis described by ps.
// Interval modes step from Start by Step and always finish exactly at End.
func Positions(m *mesh.Mesh, axis geom.Axis, ps PositionSpec) ([]float64, error) {
	switch ps.Mode {
	case Explicit:
		return append([]float64(nil), ps.Planes...), nil
	case RealIntervals:
		return intervals(ps.Start, ps.End, ps.Step)
	case NormIntervals:
		if !axis.Valid() {
			return nil, fmt.Errorf("positions: invalid axis %d", int(axis))
		}
		fr, err := intervals(ps.Start, ps.End, ps.Step)
		if err != nil {
			return nil, err
		}
		b := m.Bounds()
		lo, hi := axis.Coord(b.Min), axis.Coord(b.Max)
		for i, f := range fr {
			fr[i] = lo + f*(hi-lo)
		}
		return fr, nil
	}
	return nil, fmt.Errorf("positions: unknown mode %v", ps.Mode)
}

func intervals(start, end, step float64) ([]float64, error) {
	if !(step > 0) {
		return nil, fmt.Errorf("positions: step must be positive, got %g", step)
	}
	if end < start {
		return nil, fmt.Errorf("positions: end %g before start %g", end, start)
	}
	n := int(math.Ceil((end-start)/step - 1e-9))
	out := make([]float64, 0, n+1)
	for i := 0; i < n; i++ {
		out = append(out, start+float64(i)*step)
	}
	return append(out, end), nil
}
