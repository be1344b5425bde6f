package align

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/abel-research/ampscan/pkg/analyse"
	"github.com/abel-research/ampscan/pkg/geom"
	"github.com/abel-research/ampscan/pkg/mesh"
	"gonum.org/v1/gonum/spatial/r3"
)

// ZVolumeOptions configures FitZVolume.
type ZVolumeOptions struct {
	// Level is the top of the compared band. A level at or below the start
	// of the band selects the static mesh's highest point.
	Level float64
	// Offset raises the start of the band above the static mesh's lowest
	// point, skipping the poorly sampled tip.
	Offset float64
	// Step is the slice spacing used to integrate volumes.
	Step   float64
	Logger *slog.Logger
}

// DefaultZVolumeOptions uses a 1 unit offset and 0.5 unit slices.
func DefaultZVolumeOptions() ZVolumeOptions {
	return ZVolumeOptions{Offset: 1, Step: 0.5}
}

// FitZVolume finds the translation along z that seats the moving mesh so
// it encloses, between its lowest point plus Offset and Level, the same
// slice-integrated volume as the static mesh does between its own lowest
// point plus Offset and Level. This seats a limb scan in a socket scan
// without touching its rotation.
func FitZVolume(ctx context.Context, moving, static *mesh.Mesh, opts ZVolumeOptions) (*Result, error) {
	if !(opts.Step > 0) {
		return nil, fmt.Errorf("fit z volume: step must be positive, got %g", opts.Step)
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("fit z volume: %w", err)
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}

	sb, mb := static.Bounds(), moving.Bounds()
	lo := sb.Min.Z + opts.Offset
	level := opts.Level
	if level <= lo {
		level = sb.Max.Z
	}
	if level <= lo {
		return nil, fmt.Errorf("fit z volume: static mesh shorter than offset %g", opts.Offset)
	}

	target, err := sliceVolume(static, lo, level, opts.Step)
	if err != nil {
		return nil, fmt.Errorf("fit z volume: static: %w", err)
	}
	prof, err := newProfile(moving, mb.Min.Z+opts.Offset, mb.Max.Z, opts.Step)
	if err != nil {
		return nil, fmt.Errorf("fit z volume: moving: %w", err)
	}
	z, ok := prof.reach(target)
	if !ok {
		return nil, fmt.Errorf("fit z volume: moving mesh holds %g, need %g",
			prof.v[len(prof.v)-1], target)
	}
	s := level - z

	t := Transform{R: r3.Eye(), T: r3.Vec{Z: s}}
	out := moving.Clone()
	t.ApplyMesh(out)
	log.Info("z volume fit finished", "shift", s, "volume", target)
	return &Result{Mesh: out, Transform: t}, nil
}

func sliceVolume(m *mesh.Mesh, lo, hi, step float64) (float64, error) {
	planes, err := analyse.Positions(m, geom.Z, analyse.PositionSpec{
		Mode: analyse.RealIntervals, Start: lo, End: hi, Step: step,
	})
	if err != nil {
		return 0, err
	}
	polys, err := analyse.Slice(m, planes, geom.Z)
	if err != nil {
		return 0, err
	}
	return analyse.EstimateVolume(polys)
}

// profile is the cumulative slice volume of a mesh from its lowest
// section upward, interpolated linearly between sections.
type profile struct {
	z, v []float64
}

func newProfile(m *mesh.Mesh, lo, hi, step float64) (*profile, error) {
	planes, err := analyse.Positions(m, geom.Z, analyse.PositionSpec{
		Mode: analyse.RealIntervals, Start: lo, End: hi, Step: step,
	})
	if err != nil {
		return nil, err
	}
	polys, err := analyse.Slice(m, planes, geom.Z)
	if err != nil {
		return nil, err
	}
	secs := analyse.Sections(polys)
	if len(secs) < 2 {
		return nil, fmt.Errorf("%d sections: %w", len(secs), analyse.ErrNoSlices)
	}
	p := &profile{v: analyse.CumulativeVolume(secs)}
	for _, s := range secs {
		p.z = append(p.z, s.Plane)
	}
	return p, nil
}

// reach returns the height at which the cumulative volume first reaches v.
func (p *profile) reach(v float64) (float64, bool) {
	if v <= 0 {
		return p.z[0], true
	}
	for i := 1; i < len(p.v); i++ {
		if p.v[i] < v {
			continue
		}
		dv := p.v[i] - p.v[i-1]
		if dv == 0 {
			return p.z[i], true
		}
		return p.z[i-1] + (v-p.v[i-1])/dv*(p.z[i]-p.z[i-1]), true
	}
	return 0, false
}
