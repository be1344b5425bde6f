// Package align estimates the rigid transform that brings a moving scan
// onto a static one. The iterative methods pair every moving vertex with
// the nearest static face centroid, solve for an increment, apply it and
// repeat for a fixed iteration budget. Closed-form fitting of
// user-supplied landmark pairs and a z-only volume fit are also provided.
//
// Alignment never modifies its inputs; the aligned mesh is returned as a
// new value alongside the transform that produced it.
package align

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"slices"
	"strings"

	"github.com/abel-research/ampscan/pkg/mesh"
	"github.com/abel-research/ampscan/pkg/spatial"
	"gonum.org/v1/gonum/spatial/r3"
)

var (
	// ErrUnknownMethod is returned for an unrecognised method or optimiser
	// name.
	ErrUnknownMethod = errors.New("unknown alignment method")

	// ErrPointMismatch is returned when landmark sets differ in length or
	// are too short to fix a rigid transform.
	ErrPointMismatch = errors.New("moving and static point sets do not match")
)

// Method selects how each ICP increment is solved.
type Method int

const (
	// PointToPoint is the closed-form Kabsch solution.
	PointToPoint Method = iota
	// PointToPlane linearises rotation and minimises distance to the
	// tangent plane at each match.
	PointToPlane
	// Optimize minimises the pair RMSE numerically over six parameters.
	Optimize
)

// ParseMethod accepts "point-to-point" ("p2p", "linPoint2Point"),
// "point-to-plane" ("p2pl", "linPoint2Plane") and "optimize" ("opt",
// "optPoint2Point"), case-insensitively.
func ParseMethod(s string) (Method, error) {
	switch strings.ToLower(s) {
	case "point-to-point", "p2p", "linpoint2point":
		return PointToPoint, nil
	case "point-to-plane", "p2pl", "linpoint2plane":
		return PointToPlane, nil
	case "optimize", "optimise", "opt", "optpoint2point":
		return Optimize, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownMethod, s)
}

func (m Method) String() string {
	switch m {
	case PointToPoint:
		return "point-to-point"
	case PointToPlane:
		return "point-to-plane"
	case Optimize:
		return "optimize"
	}
	return fmt.Sprintf("Method(%d)", int(m))
}

// ParseOptimizer accepts the names of the supported gonum optimisers:
// "nelder-mead", "bfgs", "lbfgs", "cg" and "gradient-descent".
func ParseOptimizer(s string) (OptimizerKind, error) {
	if k, ok := optimizerNames[strings.ToLower(s)]; ok {
		return k, nil
	}
	return 0, fmt.Errorf("%w: optimizer %q", ErrUnknownMethod, s)
}

// Options configures Align.
type Options struct {
	Method  Method
	MaxIter int
	// Inlier is the fraction of correspondences kept each iteration, the
	// closest first. It must lie in (0, 1].
	Inlier float64
	// InitTransform, when set, is applied to the moving mesh before the
	// first iteration and is included in the returned transform.
	InitTransform *Transform
	// Inverse aligns static onto moving and inverts the result, so the
	// static mesh defines the frame of the estimate.
	Inverse   bool
	Optimizer OptimizerKind
	Bounded   bool
	// Neighbours is the number of candidate faces examined when measuring
	// the distance from a vertex to the static surface.
	Neighbours int
	Logger     *slog.Logger
}

// DefaultOptions returns 20 point-to-point iterations with every
// correspondence kept.
func DefaultOptions() Options {
	return Options{
		Method:     PointToPoint,
		MaxIter:    20,
		Inlier:     1,
		Optimizer:  NelderMead,
		Neighbours: spatial.DefaultCandidates,
	}
}

func (o Options) validate() error {
	if o.MaxIter < 0 {
		return fmt.Errorf("negative iteration count %d", o.MaxIter)
	}
	if !(o.Inlier > 0 && o.Inlier <= 1) {
		return fmt.Errorf("inlier fraction %g outside (0, 1]", o.Inlier)
	}
	if o.Method < PointToPoint || o.Method > Optimize {
		return fmt.Errorf("%w: %v", ErrUnknownMethod, o.Method)
	}
	if o.Optimizer < NelderMead || o.Optimizer > GradientDescent {
		return fmt.Errorf("%w: optimizer %v", ErrUnknownMethod, o.Optimizer)
	}
	return nil
}

func (o Options) logger() *slog.Logger {
	if o.Logger != nil {
		return o.Logger
	}
	return slog.Default()
}

// Result is the outcome of an alignment.
type Result struct {
	// Mesh is a copy of the moving mesh with Transform applied.
	Mesh      *mesh.Mesh
	Transform Transform
	// RMSE is the root-mean-square distance from the aligned vertices to
	// the static surface.
	RMSE float64
	// History holds the RMSE before the first iteration and after each
	// one.
	History    []float64
	Iterations int
}

// Align runs iterative closest point alignment of moving onto static.
// The context is checked between iterations.
func Align(ctx context.Context, moving, static *mesh.Mesh, opts Options) (*Result, error) {
	if err := opts.validate(); err != nil {
		return nil, fmt.Errorf("align: %w", err)
	}
	if moving.IsEmpty() || static.IsEmpty() {
		return nil, fmt.Errorf("align: empty mesh")
	}
	log := opts.logger()

	init := Identity()
	if opts.InitTransform != nil {
		init = *opts.InitTransform
	}

	var total Transform
	var history []float64
	var iters int
	var err error
	if opts.Inverse {
		start := moving.Clone()
		init.ApplyMesh(start)
		var back Transform
		back, history, iters, err = icp(ctx, static, start, Identity(), opts, log)
		if err != nil {
			return nil, err
		}
		total = init.Then(back.Orthonormal().Inverse())
	} else {
		total, history, iters, err = icp(ctx, moving, static, init, opts, log)
		if err != nil {
			return nil, err
		}
		total = total.Orthonormal()
	}

	out := moving.Clone()
	total.ApplyMesh(out)
	out.CalcStruct(mesh.NormOnly())

	surf := spatial.NewSurface(static, opts.Neighbours)
	rmse := surf.RMSE(out.Vertices)
	log.Info("alignment finished",
		"method", opts.Method.String(),
		"inverse", opts.Inverse,
		"iterations", iters,
		"rmse", rmse)

	return &Result{
		Mesh:       out,
		Transform:  total,
		RMSE:       rmse,
		History:    history,
		Iterations: iters,
	}, nil
}

// icp aligns moving onto static starting from init and returns the
// accumulated transform. Neither mesh is modified.
func icp(ctx context.Context, moving, static *mesh.Mesh, init Transform, opts Options, log *slog.Logger) (Transform, []float64, int, error) {
	work := moving.Clone()
	init.ApplyMesh(work)
	total := init

	if len(static.FaceNormals) != len(static.Faces) {
		static = static.Clone()
		static.CalcStruct(mesh.NormOnly())
	}
	surf := spatial.NewSurface(static, opts.Neighbours)

	history := []float64{surf.RMSE(work.Vertices)}
	keep := int(math.Ceil(float64(len(work.Vertices)) * opts.Inlier))

	it := 0
	for ; it < opts.MaxIter; it++ {
		if err := ctx.Err(); err != nil {
			return Transform{}, nil, it, fmt.Errorf("align: iteration %d: %w", it, err)
		}

		p := correspond(work.Vertices, static, surf, keep)
		step, err := solveStep(p, opts)
		if err != nil {
			return Transform{}, nil, it, fmt.Errorf("align: iteration %d: %w", it, err)
		}
		step.ApplyMesh(work)
		total = total.Then(step)

		rmse := surf.RMSE(work.Vertices)
		history = append(history, rmse)
		log.Debug("alignment iteration", "iter", it+1, "rmse", rmse, "pairs", p.len())
	}
	return total, history, it, nil
}

// correspond pairs each vertex with its closest point on the static
// surface, found among the faces of the nearest centroids, and keeps the
// keep closest pairs.
func correspond(verts []r3.Vec, static *mesh.Mesh, surf *spatial.Surface, keep int) pairs {
	type match struct {
		v   int
		hit spatial.Hit
	}
	ms := make([]match, 0, len(verts))
	for i, v := range verts {
		if hit := surf.Closest(v); hit.Face >= 0 {
			ms = append(ms, match{v: i, hit: hit})
		}
	}
	if keep < len(ms) {
		slices.SortStableFunc(ms, func(a, b match) int {
			switch {
			case a.hit.Dist < b.hit.Dist:
				return -1
			case a.hit.Dist > b.hit.Dist:
				return 1
			}
			return 0
		})
		ms = ms[:keep]
	}

	p := pairs{
		mv: make([]r3.Vec, len(ms)),
		sv: make([]r3.Vec, len(ms)),
		sn: make([]r3.Vec, len(ms)),
	}
	for i, m := range ms {
		p.mv[i] = verts[m.v]
		p.sv[i] = m.hit.Point
		p.sn[i] = static.FaceNormals[m.hit.Face]
	}
	return p
}

func solveStep(p pairs, opts Options) (Transform, error) {
	switch opts.Method {
	case PointToPoint:
		return kabsch(p.mv, p.sv), nil
	case PointToPlane:
		return pointToPlane(p), nil
	case Optimize:
		return minimiseRMSE(p.mv, p.sv, opts.Optimizer, opts.Bounded)
	}
	return Transform{}, fmt.Errorf("%w: %v", ErrUnknownMethod, opts.Method)
}
