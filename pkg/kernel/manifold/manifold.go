//go:build manifold

// Package manifold provides a CGo-based geometry kernel binding to the
// Manifold library (https://github.com/elalish/manifold). Manifold booleans
// always yield closed, manifold meshes, so phantom sockets built with it
// need no hole closing before their volume is measured.
//
// This package requires the Manifold C library (manifoldc) to be installed.
// Build with: go build -tags=manifold
package manifold

/*
#cgo CFLAGS: -I/usr/local/include
#cgo LDFLAGS: -L/usr/local/lib -lmanifoldc

#include <stdlib.h>
#include <manifold/manifoldc.h>
*/
import "C"

import (
	"fmt"
	"runtime"
	"unsafe"

	"github.com/abel-research/ampscan/pkg/kernel"
	"github.com/abel-research/ampscan/pkg/mesh"
	"gonum.org/v1/gonum/spatial/r3"
)

// DefaultSegments is the number of segments used for circular primitives.
const DefaultSegments = 64

// Compile-time interface checks.
var _ kernel.Kernel = (*ManifoldKernel)(nil)
var _ kernel.Solid = (*manifoldSolid)(nil)

// manifoldSolid wraps a C ManifoldManifold pointer and implements kernel.Solid.
type manifoldSolid struct {
	ptr *C.ManifoldManifold
}

// BoundingBox returns the axis-aligned bounding box of the solid.
func (s *manifoldSolid) BoundingBox() r3.Box {
	alloc := C.manifold_alloc_box()
	bbox := C.manifold_bounding_box(alloc, s.ptr)
	defer C.manifold_delete_box(bbox)

	return r3.Box{
		Min: r3.Vec{
			X: float64(C.manifold_box_min_x(bbox)),
			Y: float64(C.manifold_box_min_y(bbox)),
			Z: float64(C.manifold_box_min_z(bbox)),
		},
		Max: r3.Vec{
			X: float64(C.manifold_box_max_x(bbox)),
			Y: float64(C.manifold_box_max_y(bbox)),
			Z: float64(C.manifold_box_max_z(bbox)),
		},
	}
}

// newSolid wraps a C ManifoldManifold pointer with Go-side finalizer
// for automatic memory management.
func newSolid(ptr *C.ManifoldManifold) *manifoldSolid {
	s := &manifoldSolid{ptr: ptr}
	runtime.SetFinalizer(s, func(s *manifoldSolid) {
		if s.ptr != nil {
			C.manifold_delete_manifold(s.ptr)
			s.ptr = nil
		}
	})
	return s
}

// ManifoldKernel implements kernel.Kernel using the Manifold C library.
// Mesh resolution is fixed by Segments when primitives are built.
type ManifoldKernel struct {
	Segments int
}

// New creates a ManifoldKernel with DefaultSegments.
func New() (kernel.Kernel, error) {
	return &ManifoldKernel{Segments: DefaultSegments}, nil
}

func positive(name string, vs ...float64) error {
	for _, v := range vs {
		if !(v > 0) {
			return fmt.Errorf("manifold: %s dimensions must be positive, got %v", name, vs)
		}
	}
	return nil
}

// Sphere creates a sphere centred at the origin.
func (k *ManifoldKernel) Sphere(radius float64) (kernel.Solid, error) {
	if err := positive("sphere", radius); err != nil {
		return nil, err
	}
	alloc := C.manifold_alloc_manifold()
	return newSolid(C.manifold_sphere(alloc, C.double(radius), C.int(k.Segments))), nil
}

// Box creates an axis-aligned box with the given dimensions.
// The box is centered at the origin.
func (k *ManifoldKernel) Box(x, y, z float64) (kernel.Solid, error) {
	if err := positive("box", x, y, z); err != nil {
		return nil, err
	}
	alloc := C.manifold_alloc_manifold()
	ptr := C.manifold_cube(alloc,
		C.double(x), C.double(y), C.double(z),
		C.int(1), // center=true
	)
	return newSolid(ptr), nil
}

// Cylinder creates a cylinder along the Z axis with the given height and
// radius, centered at the origin.
func (k *ManifoldKernel) Cylinder(height, radius float64) (kernel.Solid, error) {
	if err := positive("cylinder", height, radius); err != nil {
		return nil, err
	}
	alloc := C.manifold_alloc_manifold()
	ptr := C.manifold_cylinder(alloc,
		C.double(height),
		C.double(radius), // radius_low
		C.double(radius), // radius_high (same = not tapered)
		C.int(k.Segments),
		C.int(1), // center=true
	)
	return newSolid(ptr), nil
}

// Union returns the boolean union of two solids.
func (k *ManifoldKernel) Union(a, b kernel.Solid) kernel.Solid {
	alloc := C.manifold_alloc_manifold()
	return newSolid(C.manifold_union(alloc, a.(*manifoldSolid).ptr, b.(*manifoldSolid).ptr))
}

// Difference returns the boolean difference (a minus b).
func (k *ManifoldKernel) Difference(a, b kernel.Solid) kernel.Solid {
	alloc := C.manifold_alloc_manifold()
	return newSolid(C.manifold_difference(alloc, a.(*manifoldSolid).ptr, b.(*manifoldSolid).ptr))
}

// Intersection returns the boolean intersection of two solids.
func (k *ManifoldKernel) Intersection(a, b kernel.Solid) kernel.Solid {
	alloc := C.manifold_alloc_manifold()
	return newSolid(C.manifold_intersection(alloc, a.(*manifoldSolid).ptr, b.(*manifoldSolid).ptr))
}

// Translate moves the solid by t.
func (k *ManifoldKernel) Translate(s kernel.Solid, t r3.Vec) kernel.Solid {
	alloc := C.manifold_alloc_manifold()
	ptr := C.manifold_translate(alloc, s.(*manifoldSolid).ptr,
		C.double(t.X), C.double(t.Y), C.double(t.Z),
	)
	return newSolid(ptr)
}

// Rotate rotates the solid by Euler angles (in degrees) around the X, Y, Z axes.
func (k *ManifoldKernel) Rotate(s kernel.Solid, ang r3.Vec) kernel.Solid {
	alloc := C.manifold_alloc_manifold()
	ptr := C.manifold_rotate(alloc, s.(*manifoldSolid).ptr,
		C.double(ang.X), C.double(ang.Y), C.double(ang.Z),
	)
	return newSolid(ptr)
}

// ToMesh extracts the solid's triangles from Manifold's MeshGL format.
// cells is ignored; Manifold meshes are exact at the primitives'
// segment count.
func (k *ManifoldKernel) ToMesh(s kernel.Solid, cells int) (*mesh.Mesh, error) {
	ms := s.(*manifoldSolid)

	meshAlloc := C.manifold_alloc_meshgl()
	meshGL := C.manifold_get_meshgl(meshAlloc, ms.ptr)
	defer C.manifold_delete_meshgl(meshGL)

	numVert := int(C.manifold_meshgl_num_vert(meshGL))
	numTri := int(C.manifold_meshgl_num_tri(meshGL))
	if numVert == 0 || numTri == 0 {
		return nil, fmt.Errorf("manifold: solid produced no triangles")
	}

	// MeshGL stores numProp floats per vertex; the first 3 are position.
	numProp := int(C.manifold_meshgl_num_prop(meshGL))
	propData := make([]float32, numVert*numProp)
	C.manifold_meshgl_vert_properties(
		(*C.float)(unsafe.Pointer(&propData[0])),
		meshGL,
	)
	indices := make([]uint32, numTri*3)
	C.manifold_meshgl_tri_verts(
		(*C.uint32_t)(unsafe.Pointer(&indices[0])),
		meshGL,
	)

	verts := make([]r3.Vec, numVert)
	for i := range verts {
		p := propData[i*numProp:]
		verts[i] = r3.Vec{X: float64(p[0]), Y: float64(p[1]), Z: float64(p[2])}
	}
	faces := make([][3]int, numTri)
	for t := range faces {
		for j := 0; j < 3; j++ {
			idx := int(indices[t*3+j])
			if idx >= numVert {
				return nil, fmt.Errorf("manifold: triangle %d references vertex %d of %d: %w",
					t, idx, numVert, mesh.ErrIndexRange)
			}
			faces[t][j] = idx
		}
	}
	return mesh.FromData(mesh.Data{Vertices: verts, Faces: faces})
}
