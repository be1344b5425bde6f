package analyse

import (
	"context"
	"errors"
	"fmt"

	"github.com/abel-research/ampscan/pkg/geom"
	"github.com/abel-research/ampscan/pkg/mesh"
)

// Summary is the measurement record of a sliced scan, shaped for report
// and plotting collaborators.
type Summary struct {
	Axis     string    `json:"axis"`
	Sections []Section `json:"sections"`
	// Volume is the slice-integrated volume, zero with fewer than two
	// sections.
	Volume float64 `json:"volume"`
	// ClosedVolume is the volume of the hole-closed mesh when requested.
	ClosedVolume float64 `json:"closed_volume,omitempty"`
}

// SummaryOptions configures Summarise.
type SummaryOptions struct {
	Axis      geom.Axis
	Positions PositionSpec
	// Closed also closes the mesh and reports its enclosed volume.
	Closed    bool
	CloseIter int
}

// Summarise slices m and collects per-section measurements and volumes.
func Summarise(ctx context.Context, m *mesh.Mesh, opts SummaryOptions) (*Summary, error) {
	planes, err := Positions(m, opts.Axis, opts.Positions)
	if err != nil {
		return nil, fmt.Errorf("summarise: %w", err)
	}
	polys, err := Slice(m, planes, opts.Axis)
	if err != nil {
		return nil, fmt.Errorf("summarise: %w", err)
	}
	s := &Summary{Axis: opts.Axis.String(), Sections: Sections(polys)}
	vol, err := EstimateVolume(polys)
	switch {
	case err == nil:
		s.Volume = vol
	case !errors.Is(err, ErrNoSlices):
		return nil, fmt.Errorf("summarise: %w", err)
	}
	if opts.Closed {
		v, _, err := CloseVolume(ctx, m, opts.CloseIter)
		if err != nil {
			return nil, fmt.Errorf("summarise: %w", err)
		}
		s.ClosedVolume = v
	}
	return s, nil
}
