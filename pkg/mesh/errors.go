package mesh

import "errors"

var (
	// ErrCorrupt reports raw mesh data that cannot describe a triangle
	// mesh: a soup that is not a whole number of triangles, a stated face
	// count that disagrees with the data, or non-finite coordinates.
	ErrCorrupt = errors.New("corrupt mesh data")

	// ErrIndexRange reports a face index outside the vertex array.
	ErrIndexRange = errors.New("face index out of range")

	// ErrLength reports a per-vertex array whose length differs from the
	// vertex count.
	ErrLength = errors.New("per-vertex array length mismatch")
)
