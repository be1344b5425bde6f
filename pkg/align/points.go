package align

import (
	"fmt"

	"github.com/abel-research/ampscan/pkg/mesh"
	"gonum.org/v1/gonum/spatial/r3"
)

// AlignPoints returns the rigid transform that best maps the moving
// landmarks onto the static ones, pair by pair.
func AlignPoints(moving, static []r3.Vec) (Transform, error) {
	if len(moving) != len(static) {
		return Transform{}, fmt.Errorf("align points: %d moving, %d static: %w",
			len(moving), len(static), ErrPointMismatch)
	}
	if len(moving) < 3 {
		return Transform{}, fmt.Errorf("align points: need at least 3 pairs, got %d: %w",
			len(moving), ErrPointMismatch)
	}
	return kabsch(moving, static), nil
}

// AlignMeshPoints fits the transform from landmark pairs and applies it to
// a copy of m.
func AlignMeshPoints(m *mesh.Mesh, moving, static []r3.Vec) (*mesh.Mesh, Transform, error) {
	t, err := AlignPoints(moving, static)
	if err != nil {
		return nil, Transform{}, err
	}
	out := m.Clone()
	t.ApplyMesh(out)
	return out, t, nil
}

// AlignIndices fits the transform from corresponding vertex indices of the
// moving and static meshes and applies it to a copy of moving.
func AlignIndices(moving, static *mesh.Mesh, movingIdx, staticIdx []int) (*mesh.Mesh, Transform, error) {
	mv, err := pick(moving, movingIdx)
	if err != nil {
		return nil, Transform{}, fmt.Errorf("align indices: moving: %w", err)
	}
	sv, err := pick(static, staticIdx)
	if err != nil {
		return nil, Transform{}, fmt.Errorf("align indices: static: %w", err)
	}
	return AlignMeshPoints(moving, mv, sv)
}

func pick(m *mesh.Mesh, idx []int) ([]r3.Vec, error) {
	out := make([]r3.Vec, len(idx))
	for i, v := range idx {
		if v < 0 || v >= len(m.Vertices) {
			return nil, fmt.Errorf("vertex %d of %d: %w", v, len(m.Vertices), mesh.ErrIndexRange)
		}
		out[i] = m.Vertices[v]
	}
	return out, nil
}
