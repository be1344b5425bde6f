// Package registration morphs a baseline scan onto a target surface while
// keeping the baseline's topology, then reports the signed per-vertex
// deviation between the two. This is the shape-change measurement used to
// compare scans of the same limb over time.
package registration

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"

	"github.com/abel-research/ampscan/pkg/geom"
	"github.com/abel-research/ampscan/pkg/mesh"
	"github.com/abel-research/ampscan/pkg/smooth"
	"github.com/abel-research/ampscan/pkg/spatial"
	"gonum.org/v1/gonum/spatial/r3"
)

// ErrUnknownErrorMethod is returned for an unrecognised deviation method.
var ErrUnknownErrorMethod = errors.New("unknown registration error method")

// ErrorMethod selects how deviation magnitudes are signed.
type ErrorMethod int

const (
	// Normal signs by the baseline vertex normal: outward is positive.
	Normal ErrorMethod = iota
	// Centroid signs by whether the vertex moved away from the baseline's
	// mean vertex.
	Centroid
	// Abs reports unsigned magnitudes.
	Abs
)

// ParseErrorMethod accepts "norm"/"normal", "cent"/"centroid" and "abs".
func ParseErrorMethod(s string) (ErrorMethod, error) {
	switch strings.ToLower(s) {
	case "norm", "normal":
		return Normal, nil
	case "cent", "centroid":
		return Centroid, nil
	case "abs", "absolute":
		return Abs, nil
	}
	return 0, fmt.Errorf("%w: %q, expected norm, cent or abs", ErrUnknownErrorMethod, s)
}

func (e ErrorMethod) String() string {
	switch e {
	case Normal:
		return "norm"
	case Centroid:
		return "cent"
	case Abs:
		return "abs"
	}
	return fmt.Sprintf("ErrorMethod(%d)", int(e))
}

// Options configures Register.
type Options struct {
	// Steps is the number of passes; pass k of n moves each vertex by
	// 1/(n-k+1) of its remaining offset, so the last pass lands on the
	// target.
	Steps int
	// Neighbours is the number of nearest target faces tried per vertex.
	Neighbours int
	// Inside clamps projections into their triangle. Without it a
	// projection may land on a face's plane outside the face.
	Inside bool
	// Smooth is the number of HC iterations applied to the displacement
	// field between passes. Zero disables smoothing.
	Smooth  int
	Beta    float64
	FixBrim bool
	// ScaleBelow, when set, stretches the baseline along z below this
	// height so its lowest point meets the target's before registering.
	ScaleBelow *float64
	Error      ErrorMethod
	Logger     *slog.Logger
}

// DefaultOptions returns a single clamped pass over ten neighbours with
// normal-signed deviation.
func DefaultOptions() Options {
	return Options{
		Steps:      1,
		Neighbours: 10,
		Inside:     true,
		Smooth:     1,
		Beta:       0.6,
		Error:      Normal,
	}
}

func (o Options) validate() error {
	if o.Steps < 1 {
		return fmt.Errorf("steps must be at least 1, got %d", o.Steps)
	}
	if o.Neighbours < 1 {
		return fmt.Errorf("neighbours must be at least 1, got %d", o.Neighbours)
	}
	if o.Smooth < 0 {
		return fmt.Errorf("negative smoothing iterations %d", o.Smooth)
	}
	if o.Beta < 0 || o.Beta > 1 {
		return fmt.Errorf("beta %g outside [0, 1]", o.Beta)
	}
	if o.Error < Normal || o.Error > Abs {
		return fmt.Errorf("%w: %v", ErrUnknownErrorMethod, o.Error)
	}
	return nil
}

// coincidentIterations caps the tie breaking after the final pass.
const coincidentIterations = 20

// Result is the outcome of a registration.
type Result struct {
	// Mesh has the baseline's faces, the registered vertex positions and
	// the signed deviation in Values.
	Mesh *mesh.Mesh
	// Displacement is the accumulated per-vertex offset from the baseline.
	Displacement []r3.Vec
	// Adjusted counts the tie-breaking iterations applied to coincident
	// vertices after the last pass.
	Adjusted int
}

// target is the read-only view of the target surface used by every pass.
type target struct {
	m       *mesh.Mesh
	idx     *spatial.Index
	normals []r3.Vec // unnormalised face normals
}

func newTarget(m *mesh.Mesh) *target {
	t := &target{m: m, idx: spatial.NewFaceIndex(m), normals: make([]r3.Vec, len(m.Faces))}
	for f := range m.Faces {
		a, b, c := m.Corners(f)
		t.normals[f] = r3.Cross(r3.Sub(b, a), r3.Sub(c, a))
	}
	return t
}

// offset returns the shortest displacement from p onto one of the k
// nearest target faces.
func (t *target) offset(p r3.Vec, k int, inside bool) r3.Vec {
	var best r3.Vec
	bestD := math.Inf(1)
	for _, n := range t.idx.KNearest(p, k) {
		a, b, c := t.m.Corners(n.Index)
		g := geom.ProjectOntoPlane(p, a, t.normals[n.Index])
		if inside {
			g = geom.ClampToTriangle(g, a, b, c)
		}
		d := r3.Sub(g, p)
		if m := r3.Norm2(d); m < bestD {
			best, bestD = d, m
		}
	}
	return best
}

// Register morphs a copy of baseline onto target. Each pass finds, for
// every vertex, the shortest offset onto the nearest target faces and moves
// the vertex a growing fraction of it; the displacement field is HC
// smoothed between passes. Neither input is modified.
func Register(ctx context.Context, baseline, tgt *mesh.Mesh, opts Options) (*Result, error) {
	if err := opts.validate(); err != nil {
		return nil, fmt.Errorf("register: %w", err)
	}
	if baseline.IsEmpty() || tgt.IsEmpty() {
		return nil, fmt.Errorf("register: empty mesh")
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}

	reg := baseline.Clone()
	if len(reg.FaceEdges) != len(reg.Faces) || len(reg.EdgeFaces) != len(reg.Edges) {
		reg.CalcStruct(mesh.StructOptions{Edges: true, EdgeFaces: true})
	}
	adj := reg.Adjacency()
	var frozen []bool
	if opts.FixBrim {
		frozen = reg.BoundaryVertices()
	}

	base := baseline.Vertices
	disp := make([]r3.Vec, len(base))
	if opts.ScaleBelow != nil {
		scaleBelow(disp, base, *opts.ScaleBelow, tgt.Bounds().Min.Z)
	}
	apply := func() {
		for i := range reg.Vertices {
			reg.Vertices[i] = r3.Add(base[i], disp[i])
		}
	}
	apply()

	t := newTarget(tgt)
	adjusted := 0
	for step := opts.Steps; step >= 1; step-- {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("register: step %d: %w", step, err)
		}
		frac := 1 / float64(step)
		for i, p := range reg.Vertices {
			disp[i] = r3.Add(disp[i], r3.Scale(frac, t.offset(p, opts.Neighbours, opts.Inside)))
		}
		if opts.Smooth > 0 && step > 1 {
			smooth.Field(adj, disp, frozen, opts.Smooth, opts.Beta)
			apply()
		} else {
			apply()
			adjusted = smooth.AdjustCoincident(reg, opts.Beta, coincidentIterations)
		}
		log.Debug("registration pass", "step", step, "fraction", frac)
	}

	reg.CalcStruct(mesh.AllStruct())
	for i := range disp {
		disp[i] = r3.Sub(reg.Vertices[i], base[i])
	}
	values, err := ErrorValues(baseline, reg, opts.Error)
	if err != nil {
		return nil, fmt.Errorf("register: %w", err)
	}
	reg.Values = values
	log.Info("registration finished",
		"steps", opts.Steps,
		"vertices", len(reg.Vertices),
		"error", opts.Error.String())
	return &Result{Mesh: reg, Displacement: disp, Adjusted: adjusted}, nil
}

// scaleBelow stretches the baseline along z below the given height so its
// lowest point reaches tmin, writing the offsets into disp.
func scaleBelow(disp, base []r3.Vec, height, tmin float64) {
	rmin := math.Inf(1)
	for _, v := range base {
		rmin = math.Min(rmin, v.Z)
	}
	if rmin >= height {
		return
	}
	sf := (tmin-height)/(rmin-height) - 1
	for i, v := range base {
		if v.Z < height {
			disp[i].Z += (v.Z - height) * sf
		}
	}
}

// ErrorValues returns the deviation of each registered vertex from its
// baseline counterpart, signed by method.
func ErrorValues(base, reg *mesh.Mesh, method ErrorMethod) ([]float64, error) {
	n := len(base.Vertices)
	if len(reg.Vertices) != n {
		return nil, fmt.Errorf("error values: %d registered vertices for %d baseline: %w",
			len(reg.Vertices), n, mesh.ErrLength)
	}
	values := make([]float64, n)
	for i := range values {
		values[i] = r3.Norm(r3.Sub(reg.Vertices[i], base.Vertices[i]))
	}

	switch method {
	case Abs:
	case Centroid:
		cent := base.Mean()
		for i := range values {
			r := r3.Norm(r3.Sub(reg.Vertices[i], cent))
			b := r3.Norm(r3.Sub(base.Vertices[i], cent))
			if r < b {
				values[i] = -values[i]
			}
		}
	case Normal:
		vn := base.VertexNormals
		if len(vn) != n {
			c := base.Clone()
			c.CalcStruct(mesh.NormOnly())
			vn = c.VertexNormals
		}
		for i := range values {
			if r3.Dot(vn[i], r3.Sub(reg.Vertices[i], base.Vertices[i])) < 0 {
				values[i] = -values[i]
			}
		}
	default:
		return nil, fmt.Errorf("error values: %w: %v", ErrUnknownErrorMethod, method)
	}
	return values, nil
}
