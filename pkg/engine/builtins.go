package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"

	"github.com/abel-research/ampscan/pkg/align"
	"github.com/abel-research/ampscan/pkg/analyse"
	"github.com/abel-research/ampscan/pkg/config"
	"github.com/abel-research/ampscan/pkg/geom"
	"github.com/abel-research/ampscan/pkg/kernel"
	"github.com/abel-research/ampscan/pkg/mesh"
	"github.com/abel-research/ampscan/pkg/primitive"
	"github.com/abel-research/ampscan/pkg/registration"
	"github.com/abel-research/ampscan/pkg/smooth"
	"github.com/abel-research/ampscan/pkg/stl"
	"github.com/abel-research/ampscan/pkg/trim"
	zygo "github.com/glycerine/zygomys/zygo"
	"gonum.org/v1/gonum/spatial/r3"
)

// ErrIODisabled is returned by load and save when file access is off.
var ErrIODisabled = errors.New("file access is disabled")

// ---------------------------------------------------------------------------
// Custom Sexp types for passing Go values through the zygomys environment
// ---------------------------------------------------------------------------

// sexpMesh wraps a mesh so it can be passed between builtins. Builtins
// never modify a mesh they receive; they return a new one.
type sexpMesh struct {
	m *mesh.Mesh
}

func (s *sexpMesh) SexpString(ps *zygo.PrintState) string {
	return fmt.Sprintf("(mesh %d vertices %d faces)", s.m.VertexCount(), s.m.FaceCount())
}
func (s *sexpMesh) Type() *zygo.RegisteredType { return nil }

// sexpVec3 wraps an r3.Vec.
type sexpVec3 struct {
	vec r3.Vec
}

func (v *sexpVec3) SexpString(ps *zygo.PrintState) string {
	return fmt.Sprintf("(vec3 %g %g %g)", v.vec.X, v.vec.Y, v.vec.Z)
}
func (v *sexpVec3) Type() *zygo.RegisteredType { return nil }

// ---------------------------------------------------------------------------
// Keyword argument parsing
// ---------------------------------------------------------------------------

// isKW checks if a Sexp is a preprocessed keyword string.
// Returns the keyword name (without prefix) and true if it is.
func isKW(s zygo.Sexp) (string, bool) {
	str, ok := s.(*zygo.SexpStr)
	if !ok {
		return "", false
	}
	return keywordName(str.S)
}

// kwArgs holds the result of parsing a mixed positional+keyword argument list.
type kwArgs struct {
	fn         string
	kw         map[string]zygo.Sexp
	positional []zygo.Sexp
}

// parseArgs separates args into keyword and positional arguments.
func parseArgs(fn string, args []zygo.Sexp) kwArgs {
	result := kwArgs{fn: fn, kw: make(map[string]zygo.Sexp)}
	for i := 0; i < len(args); i++ {
		name, ok := isKW(args[i])
		if !ok {
			result.positional = append(result.positional, args[i])
			continue
		}
		if i+1 < len(args) {
			result.kw[name] = args[i+1]
			i++
		} else {
			// Keyword at end with no value: treat as a flag.
			result.kw[name] = &zygo.SexpBool{Val: true}
		}
	}
	return result
}

func (a kwArgs) float(name string, def float64) (float64, error) {
	v, ok := a.kw[name]
	if !ok {
		return def, nil
	}
	f, err := toFloat64(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %s: %w", a.fn, name, err)
	}
	return f, nil
}

func (a kwArgs) int(name string, def int) (int, error) {
	f, err := a.float(name, float64(def))
	if err != nil {
		return 0, err
	}
	if f != math.Trunc(f) {
		return 0, fmt.Errorf("%s: %s: expected integer, got %g", a.fn, name, f)
	}
	return int(f), nil
}

func (a kwArgs) bool(name string, def bool) (bool, error) {
	v, ok := a.kw[name]
	if !ok {
		return def, nil
	}
	b, ok := v.(*zygo.SexpBool)
	if !ok {
		return false, fmt.Errorf("%s: %s: expected boolean, got %s", a.fn, name, v.SexpString(nil))
	}
	return b.Val, nil
}

// word returns a keyword or string argument, or def when absent.
func (a kwArgs) word(name, def string) (string, error) {
	v, ok := a.kw[name]
	if !ok {
		return def, nil
	}
	s, err := toKeywordString(v)
	if err != nil {
		return "", fmt.Errorf("%s: %s: %w", a.fn, name, err)
	}
	return s, nil
}

func (a kwArgs) axis(name string, def geom.Axis) (geom.Axis, error) {
	s, err := a.word(name, def.String())
	if err != nil {
		return 0, err
	}
	ax, err := geom.ParseAxis(s)
	if err != nil {
		return 0, fmt.Errorf("%s: %s: %w", a.fn, name, err)
	}
	return ax, nil
}

// mesh returns positional argument i as a mesh.
func (a kwArgs) mesh(i int) (*mesh.Mesh, error) {
	if i >= len(a.positional) {
		return nil, fmt.Errorf("%s requires a mesh as argument %d", a.fn, i+1)
	}
	m, ok := a.positional[i].(*sexpMesh)
	if !ok {
		return nil, fmt.Errorf("%s: argument %d: expected mesh, got %s", a.fn, i+1, a.positional[i].SexpString(nil))
	}
	return m.m, nil
}

// vec returns positional argument i as a vector.
func (a kwArgs) vec(i int) (r3.Vec, error) {
	if i >= len(a.positional) {
		return r3.Vec{}, fmt.Errorf("%s requires a vec3 as argument %d", a.fn, i+1)
	}
	v, err := toVec3(a.positional[i])
	if err != nil {
		return r3.Vec{}, fmt.Errorf("%s: argument %d: %w", a.fn, i+1, err)
	}
	return v, nil
}

// ---------------------------------------------------------------------------
// Value extraction helpers
// ---------------------------------------------------------------------------

// toFloat64 extracts a float64 from a Sexp (SexpInt or SexpFloat).
func toFloat64(s zygo.Sexp) (float64, error) {
	switch v := s.(type) {
	case *zygo.SexpInt:
		return float64(v.Val), nil
	case *zygo.SexpFloat:
		return v.Val, nil
	}
	return 0, fmt.Errorf("expected number, got %T (%s)", s, s.SexpString(nil))
}

// toString extracts a string from a Sexp.
func toString(s zygo.Sexp) (string, error) {
	if str, ok := s.(*zygo.SexpStr); ok {
		return str.S, nil
	}
	return "", fmt.Errorf("expected string, got %T (%s)", s, s.SexpString(nil))
}

// toKeywordString extracts a keyword name or plain string from a Sexp.
// Handles both preprocessed keywords (__kw_z) and plain strings ("z").
func toKeywordString(s zygo.Sexp) (string, error) {
	str, ok := s.(*zygo.SexpStr)
	if !ok {
		return "", fmt.Errorf("expected keyword or string, got %T (%s)", s, s.SexpString(nil))
	}
	name, _ := keywordName(str.S)
	return name, nil
}

// toVec3 extracts an r3.Vec from a sexpVec3.
func toVec3(s zygo.Sexp) (r3.Vec, error) {
	if v, ok := s.(*sexpVec3); ok {
		return v.vec, nil
	}
	return r3.Vec{}, fmt.Errorf("expected vec3, got %T (%s)", s, s.SexpString(nil))
}

func float(v float64) zygo.Sexp { return &zygo.SexpFloat{Val: v} }

func floats(vs []float64) zygo.Sexp {
	items := make([]zygo.Sexp, len(vs))
	for i, v := range vs {
		items[i] = float(v)
	}
	return zygo.MakeList(items)
}

// ---------------------------------------------------------------------------
// Builtin registration
// ---------------------------------------------------------------------------

// session is the state shared by the builtins of one evaluation.
type session struct {
	ctx     context.Context
	res     *Result
	cfg     *config.Config
	kernel  kernel.Kernel
	log     *slog.Logger
	allowIO bool
}

// builtin is the signature of every registered function after argument
// parsing.
type builtin func(s *session, a kwArgs) (zygo.Sexp, error)

var builtins = map[string]builtin{
	"vec3":           vec3Builtin,
	"sphere":         sphereBuiltin,
	"tube":           tubeBuiltin,
	"limb":           limbBuiltin,
	"phantom_limb":   phantomLimbBuiltin,
	"phantom_socket": phantomSocketBuiltin,
	"load":           loadBuiltin,
	"save":           saveBuiltin,
	"defmesh":        defmeshBuiltin,
	"mesh":           meshBuiltin,
	"translate":      translateBuiltin,
	"rotate":         rotateBuiltin,
	"scale":          scaleBuiltin,
	"centre":         centreBuiltin,
	"flip":           flipBuiltin,
	"smooth":         smoothBuiltin,
	"align":          alignBuiltin,
	"fit_z":          fitZBuiltin,
	"register":       registerBuiltin,
	"close":          closeBuiltin,
	"volume":         volumeBuiltin,
	"slices":         slicesBuiltin,
	"trim_height":    trimHeightBuiltin,
	"trim_plane":     trimPlaneBuiltin,
	"trim_near":      trimNearBuiltin,
	"deviation":      deviationBuiltin,
	"vertex_count":   vertexCountBuiltin,
	"face_count":     faceCountBuiltin,
}

// registerBuiltins installs all ampscan builtins into a zygomys environment.
// zygomys dispatches its own builtins before globals, so none of these names
// may shadow one of the sandbox functions.
//
// Source code must be preprocessed with preprocessSource() before evaluation
// so that :keyword tokens are converted to recognizable string literals.
func registerBuiltins(env *zygo.Zlisp, s *session) {
	for name, fn := range builtins {
		env.AddFunction(name, func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
			if err := s.ctx.Err(); err != nil {
				return zygo.SexpNull, fmt.Errorf("%s: %w", name, err)
			}
			return fn(s, parseArgs(name, args))
		})
	}
}

// (vec3 1 2 3)
func vec3Builtin(_ *session, a kwArgs) (zygo.Sexp, error) {
	if len(a.positional) != 3 {
		return zygo.SexpNull, fmt.Errorf("vec3 requires exactly 3 arguments, got %d", len(a.positional))
	}
	var c [3]float64
	for i, arg := range a.positional {
		f, err := toFloat64(arg)
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("vec3: %c: %w", "xyz"[i], err)
		}
		c[i] = f
	}
	return &sexpVec3{vec: r3.Vec{X: c[0], Y: c[1], Z: c[2]}}, nil
}

// ---------------------------------------------------------------------------
// Mesh sources
// ---------------------------------------------------------------------------

// (sphere :radius 1 :rows 24 :segs 48)
func sphereBuiltin(_ *session, a kwArgs) (zygo.Sexp, error) {
	r, err := a.float("radius", 1)
	if err != nil {
		return zygo.SexpNull, err
	}
	rows, segs, err := resolution(a, 24, 48)
	if err != nil {
		return zygo.SexpNull, err
	}
	if !(r > 0) {
		return zygo.SexpNull, fmt.Errorf("sphere: radius must be positive, got %g", r)
	}
	m, err := primitive.Sphere(r, rows, segs)
	if err != nil {
		return zygo.SexpNull, err
	}
	return &sexpMesh{m: m}, nil
}

// (tube :radius 1 :height 2 :rows 8 :segs 32)
func tubeBuiltin(_ *session, a kwArgs) (zygo.Sexp, error) {
	r, h, err := radiusLength(a, "height")
	if err != nil {
		return zygo.SexpNull, err
	}
	rows, segs, err := resolution(a, 8, 32)
	if err != nil {
		return zygo.SexpNull, err
	}
	m, err := primitive.Tube(r, h, rows, segs)
	if err != nil {
		return zygo.SexpNull, err
	}
	return &sexpMesh{m: m}, nil
}

// (limb :radius 1 :length 2 :rows 8 :segs 32)
func limbBuiltin(_ *session, a kwArgs) (zygo.Sexp, error) {
	r, l, err := radiusLength(a, "length")
	if err != nil {
		return zygo.SexpNull, err
	}
	rows, segs, err := resolution(a, 8, 32)
	if err != nil {
		return zygo.SexpNull, err
	}
	m, err := primitive.Limb(r, l, rows, segs)
	if err != nil {
		return zygo.SexpNull, err
	}
	return &sexpMesh{m: m}, nil
}

// (phantom-limb :radius 5 :length 20 :cells 60)
func phantomLimbBuiltin(s *session, a kwArgs) (zygo.Sexp, error) {
	r, l, err := radiusLength(a, "length")
	if err != nil {
		return zygo.SexpNull, err
	}
	solid, err := kernel.Limb(s.kernel, r, l)
	if err != nil {
		return zygo.SexpNull, err
	}
	return s.tessellate(a, solid)
}

// (phantom-socket :radius 5 :length 20 :wall 1 :cells 60)
func phantomSocketBuiltin(s *session, a kwArgs) (zygo.Sexp, error) {
	r, l, err := radiusLength(a, "length")
	if err != nil {
		return zygo.SexpNull, err
	}
	wall, err := a.float("wall", r/10)
	if err != nil {
		return zygo.SexpNull, err
	}
	solid, err := kernel.Socket(s.kernel, r, l, wall)
	if err != nil {
		return zygo.SexpNull, err
	}
	return s.tessellate(a, solid)
}

func (s *session) tessellate(a kwArgs, solid kernel.Solid) (zygo.Sexp, error) {
	cells, err := a.int("cells", kernel.DefaultCells)
	if err != nil {
		return zygo.SexpNull, err
	}
	m, err := s.kernel.ToMesh(solid, cells)
	if err != nil {
		return zygo.SexpNull, fmt.Errorf("%s: %w", a.fn, err)
	}
	return &sexpMesh{m: m}, nil
}

func radiusLength(a kwArgs, lengthName string) (float64, float64, error) {
	r, err := a.float("radius", 1)
	if err != nil {
		return 0, 0, err
	}
	l, err := a.float(lengthName, 2)
	if err != nil {
		return 0, 0, err
	}
	if !(r > 0) || !(l > 0) {
		return 0, 0, fmt.Errorf("%s: radius %g and %s %g must be positive", a.fn, r, lengthName, l)
	}
	return r, l, nil
}

func resolution(a kwArgs, rows, segs int) (int, int, error) {
	rows, err := a.int("rows", rows)
	if err != nil {
		return 0, 0, err
	}
	segs, err = a.int("segs", segs)
	if err != nil {
		return 0, 0, err
	}
	return rows, segs, nil
}

// (load "scan.stl")
func loadBuiltin(s *session, a kwArgs) (zygo.Sexp, error) {
	if !s.allowIO {
		return zygo.SexpNull, fmt.Errorf("load: %w", ErrIODisabled)
	}
	if len(a.positional) != 1 {
		return zygo.SexpNull, fmt.Errorf("load requires a file name")
	}
	name, err := toString(a.positional[0])
	if err != nil {
		return zygo.SexpNull, fmt.Errorf("load: %w", err)
	}
	m, err := stl.ReadFile(name)
	if err != nil {
		return zygo.SexpNull, fmt.Errorf("load: %w", err)
	}
	s.log.Info("loaded mesh", "file", name, "vertices", m.VertexCount(), "faces", m.FaceCount())
	return &sexpMesh{m: m}, nil
}

// (save m "out.stl" :header "registered")
func saveBuiltin(s *session, a kwArgs) (zygo.Sexp, error) {
	if !s.allowIO {
		return zygo.SexpNull, fmt.Errorf("save: %w", ErrIODisabled)
	}
	m, err := a.mesh(0)
	if err != nil {
		return zygo.SexpNull, err
	}
	if len(a.positional) != 2 {
		return zygo.SexpNull, fmt.Errorf("save requires a mesh and a file name")
	}
	name, err := toString(a.positional[1])
	if err != nil {
		return zygo.SexpNull, fmt.Errorf("save: %w", err)
	}
	header, err := a.word("header", "ampscan")
	if err != nil {
		return zygo.SexpNull, err
	}
	if err := stl.WriteFile(name, m, header); err != nil {
		return zygo.SexpNull, fmt.Errorf("save: %w", err)
	}
	return a.positional[0], nil
}

// (defmesh "socket" expr) names a mesh in the result.
func defmeshBuiltin(s *session, a kwArgs) (zygo.Sexp, error) {
	if len(a.positional) != 2 {
		return zygo.SexpNull, fmt.Errorf("defmesh requires a name and a mesh expression")
	}
	name, err := toString(a.positional[0])
	if err != nil {
		return zygo.SexpNull, fmt.Errorf("defmesh: name: %w", err)
	}
	m, err := a.mesh(1)
	if err != nil {
		return zygo.SexpNull, err
	}
	s.res.define(name, m)
	return a.positional[1], nil
}

// (mesh "socket")
func meshBuiltin(s *session, a kwArgs) (zygo.Sexp, error) {
	if len(a.positional) != 1 {
		return zygo.SexpNull, fmt.Errorf("mesh requires a name argument")
	}
	name, err := toString(a.positional[0])
	if err != nil {
		return zygo.SexpNull, fmt.Errorf("mesh: name: %w", err)
	}
	m := s.res.Mesh(name)
	if m == nil {
		return zygo.SexpNull, fmt.Errorf("mesh: no mesh named %q", name)
	}
	return &sexpMesh{m: m}, nil
}

// ---------------------------------------------------------------------------
// Transforms
// ---------------------------------------------------------------------------

// (translate m (vec3 0 0 10))
func translateBuiltin(_ *session, a kwArgs) (zygo.Sexp, error) {
	m, err := a.mesh(0)
	if err != nil {
		return zygo.SexpNull, err
	}
	t, err := a.vec(1)
	if err != nil {
		return zygo.SexpNull, err
	}
	out := m.Clone()
	out.Translate(t)
	return &sexpMesh{m: out}, nil
}

// (rotate m (vec3 0 0 90) :unit :deg)
func rotateBuiltin(_ *session, a kwArgs) (zygo.Sexp, error) {
	m, err := a.mesh(0)
	if err != nil {
		return zygo.SexpNull, err
	}
	ang, err := a.vec(1)
	if err != nil {
		return zygo.SexpNull, err
	}
	u, err := a.word("unit", "deg")
	if err != nil {
		return zygo.SexpNull, err
	}
	unit, err := geom.ParseAngleUnit(u)
	if err != nil {
		return zygo.SexpNull, fmt.Errorf("rotate: %w", err)
	}
	out := m.Clone()
	out.RotateAng(ang, unit)
	return &sexpMesh{m: out}, nil
}

// (scale m 1.1)
func scaleBuiltin(_ *session, a kwArgs) (zygo.Sexp, error) {
	m, err := a.mesh(0)
	if err != nil {
		return zygo.SexpNull, err
	}
	if len(a.positional) != 2 {
		return zygo.SexpNull, fmt.Errorf("scale requires a mesh and a factor")
	}
	f, err := toFloat64(a.positional[1])
	if err != nil {
		return zygo.SexpNull, fmt.Errorf("scale: %w", err)
	}
	out := m.Clone()
	out.Scale(f)
	return &sexpMesh{m: out}, nil
}

// (centre m) or (centre m :on static)
func centreBuiltin(_ *session, a kwArgs) (zygo.Sexp, error) {
	m, err := a.mesh(0)
	if err != nil {
		return zygo.SexpNull, err
	}
	out := m.Clone()
	if on, ok := a.kw["on"]; ok {
		static, ok := on.(*sexpMesh)
		if !ok {
			return zygo.SexpNull, fmt.Errorf("centre: on: expected mesh, got %s", on.SexpString(nil))
		}
		out.CentreStatic(static.m)
	} else {
		out.Centre()
	}
	return &sexpMesh{m: out}, nil
}

// (flip m :x)
func flipBuiltin(_ *session, a kwArgs) (zygo.Sexp, error) {
	m, err := a.mesh(0)
	if err != nil {
		return zygo.SexpNull, err
	}
	axis := geom.X
	if len(a.positional) > 1 {
		s, err := toKeywordString(a.positional[1])
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("flip: axis: %w", err)
		}
		if axis, err = geom.ParseAxis(s); err != nil {
			return zygo.SexpNull, fmt.Errorf("flip: %w", err)
		}
	}
	out := m.Clone()
	if err := out.Flip(axis); err != nil {
		return zygo.SexpNull, fmt.Errorf("flip: %w", err)
	}
	return &sexpMesh{m: out}, nil
}

// (smooth m :method :hc :iterations 2 :beta 0.6 :exclude-boundary true)
func smoothBuiltin(s *session, a kwArgs) (zygo.Sexp, error) {
	m, err := a.mesh(0)
	if err != nil {
		return zygo.SexpNull, err
	}
	opts, err := s.cfg.SmoothOptions()
	if err != nil {
		return zygo.SexpNull, err
	}
	method, err := a.word("method", opts.Method.String())
	if err != nil {
		return zygo.SexpNull, err
	}
	if opts.Method, err = smooth.ParseMethod(method); err != nil {
		return zygo.SexpNull, fmt.Errorf("smooth: %w", err)
	}
	if opts.Iterations, err = a.int("iterations", opts.Iterations); err != nil {
		return zygo.SexpNull, err
	}
	if opts.Beta, err = a.float("beta", opts.Beta); err != nil {
		return zygo.SexpNull, err
	}
	if opts.ExcludeBoundary, err = a.bool("exclude-boundary", opts.ExcludeBoundary); err != nil {
		return zygo.SexpNull, err
	}
	out := m.Clone()
	if err := smooth.Apply(out, opts); err != nil {
		return zygo.SexpNull, err
	}
	return &sexpMesh{m: out}, nil
}

// ---------------------------------------------------------------------------
// Alignment and registration
// ---------------------------------------------------------------------------

// (align moving static :method :point-to-plane :max-iter 30 :inlier 0.9
//        :inverse false :optimizer :bfgs :bounded true)
func alignBuiltin(s *session, a kwArgs) (zygo.Sexp, error) {
	moving, err := a.mesh(0)
	if err != nil {
		return zygo.SexpNull, err
	}
	static, err := a.mesh(1)
	if err != nil {
		return zygo.SexpNull, err
	}
	opts, err := s.cfg.AlignOptions()
	if err != nil {
		return zygo.SexpNull, err
	}
	method, err := a.word("method", opts.Method.String())
	if err != nil {
		return zygo.SexpNull, err
	}
	if opts.Method, err = align.ParseMethod(method); err != nil {
		return zygo.SexpNull, fmt.Errorf("align: %w", err)
	}
	optimizer, err := a.word("optimizer", opts.Optimizer.String())
	if err != nil {
		return zygo.SexpNull, err
	}
	if opts.Optimizer, err = align.ParseOptimizer(optimizer); err != nil {
		return zygo.SexpNull, fmt.Errorf("align: %w", err)
	}
	if opts.MaxIter, err = a.int("max-iter", opts.MaxIter); err != nil {
		return zygo.SexpNull, err
	}
	if opts.Inlier, err = a.float("inlier", opts.Inlier); err != nil {
		return zygo.SexpNull, err
	}
	if opts.Inverse, err = a.bool("inverse", opts.Inverse); err != nil {
		return zygo.SexpNull, err
	}
	if opts.Bounded, err = a.bool("bounded", opts.Bounded); err != nil {
		return zygo.SexpNull, err
	}
	opts.Logger = s.log

	res, err := align.Align(s.ctx, moving, static, opts)
	if err != nil {
		return zygo.SexpNull, err
	}
	label, err := a.word("label", "align")
	if err != nil {
		return zygo.SexpNull, err
	}
	s.res.record(Measurement{Label: label, Kind: "rmse", Value: res.RMSE})
	return &sexpMesh{m: res.Mesh}, nil
}

// (fit-z moving static :level 10 :offset 1 :step 0.5)
func fitZBuiltin(s *session, a kwArgs) (zygo.Sexp, error) {
	moving, err := a.mesh(0)
	if err != nil {
		return zygo.SexpNull, err
	}
	static, err := a.mesh(1)
	if err != nil {
		return zygo.SexpNull, err
	}
	opts := align.DefaultZVolumeOptions()
	if opts.Level, err = a.float("level", opts.Level); err != nil {
		return zygo.SexpNull, err
	}
	if opts.Offset, err = a.float("offset", opts.Offset); err != nil {
		return zygo.SexpNull, err
	}
	if opts.Step, err = a.float("step", opts.Step); err != nil {
		return zygo.SexpNull, err
	}
	opts.Logger = s.log
	res, err := align.FitZVolume(s.ctx, moving, static, opts)
	if err != nil {
		return zygo.SexpNull, err
	}
	s.res.record(Measurement{Label: "fit-z", Kind: "shift", Value: res.Transform.T.Z})
	return &sexpMesh{m: res.Mesh}, nil
}

// (register baseline target :steps 3 :neighbours 10 :smooth 1 :beta 0.6
//           :fix-brim true :scale-below 10 :error :norm)
func registerBuiltin(s *session, a kwArgs) (zygo.Sexp, error) {
	base, err := a.mesh(0)
	if err != nil {
		return zygo.SexpNull, err
	}
	tgt, err := a.mesh(1)
	if err != nil {
		return zygo.SexpNull, err
	}
	opts, err := s.cfg.RegistrationOptions()
	if err != nil {
		return zygo.SexpNull, err
	}
	if opts.Steps, err = a.int("steps", opts.Steps); err != nil {
		return zygo.SexpNull, err
	}
	if opts.Neighbours, err = a.int("neighbours", opts.Neighbours); err != nil {
		return zygo.SexpNull, err
	}
	if opts.Smooth, err = a.int("smooth", opts.Smooth); err != nil {
		return zygo.SexpNull, err
	}
	if opts.Beta, err = a.float("beta", opts.Beta); err != nil {
		return zygo.SexpNull, err
	}
	if opts.FixBrim, err = a.bool("fix-brim", opts.FixBrim); err != nil {
		return zygo.SexpNull, err
	}
	if _, ok := a.kw["scale-below"]; ok {
		h, err := a.float("scale-below", 0)
		if err != nil {
			return zygo.SexpNull, err
		}
		opts.ScaleBelow = &h
	}
	method, err := a.word("error", opts.Error.String())
	if err != nil {
		return zygo.SexpNull, err
	}
	if opts.Error, err = registration.ParseErrorMethod(method); err != nil {
		return zygo.SexpNull, fmt.Errorf("register: %w", err)
	}
	opts.Logger = s.log

	res, err := registration.Register(s.ctx, base, tgt, opts)
	if err != nil {
		return zygo.SexpNull, err
	}
	label, err := a.word("label", "register")
	if err != nil {
		return zygo.SexpNull, err
	}
	s.res.record(Measurement{Label: label, Kind: "max-deviation", Value: maxAbs(res.Mesh.Values)})
	return &sexpMesh{m: res.Mesh}, nil
}

func maxAbs(vs []float64) float64 {
	var m float64
	for _, v := range vs {
		m = math.Max(m, math.Abs(v))
	}
	return m
}

// ---------------------------------------------------------------------------
// Analysis
// ---------------------------------------------------------------------------

// (close m :max-iter 16)
func closeBuiltin(s *session, a kwArgs) (zygo.Sexp, error) {
	m, err := a.mesh(0)
	if err != nil {
		return zygo.SexpNull, err
	}
	iter, err := a.int("max-iter", s.cfg.Close.MaxIter)
	if err != nil {
		return zygo.SexpNull, err
	}
	out, err := analyse.Close(s.ctx, m, iter)
	if err != nil {
		return zygo.SexpNull, err
	}
	return &sexpMesh{m: out}, nil
}

// (volume m :label "socket") closes m and returns its enclosed volume.
func volumeBuiltin(s *session, a kwArgs) (zygo.Sexp, error) {
	m, err := a.mesh(0)
	if err != nil {
		return zygo.SexpNull, err
	}
	v, _, err := analyse.CloseVolume(s.ctx, m, s.cfg.Close.MaxIter)
	if err != nil {
		return zygo.SexpNull, err
	}
	label, err := a.word("label", "volume")
	if err != nil {
		return zygo.SexpNull, err
	}
	s.res.record(Measurement{Label: label, Kind: "volume", Value: v})
	return float(v), nil
}

// (slices m :axis :z :mode :norm-intervals :start 0 :end 1 :step 0.1
//           :planes (list 1 2 3) :label "limb")
//
// Records a slice summary and returns the list of section areas.
func slicesBuiltin(s *session, a kwArgs) (zygo.Sexp, error) {
	m, err := a.mesh(0)
	if err != nil {
		return zygo.SexpNull, err
	}
	axis, ps, err := s.cfg.SliceSpec()
	if err != nil {
		return zygo.SexpNull, err
	}
	if axis, err = a.axis("axis", axis); err != nil {
		return zygo.SexpNull, err
	}
	mode, err := a.word("mode", ps.Mode.String())
	if err != nil {
		return zygo.SexpNull, err
	}
	if ps.Mode, err = analyse.ParsePositionMode(mode); err != nil {
		return zygo.SexpNull, fmt.Errorf("slices: %w", err)
	}
	if v, ok := a.kw["planes"]; ok {
		items, err := sexpListToSlice(v)
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("slices: planes: %w", err)
		}
		ps.Planes = nil
		for _, item := range items {
			f, err := toFloat64(item)
			if err != nil {
				return zygo.SexpNull, fmt.Errorf("slices: plane entry: %w", err)
			}
			ps.Planes = append(ps.Planes, f)
		}
		if _, ok := a.kw["mode"]; !ok {
			ps.Mode = analyse.Explicit
		}
	}
	if ps.Start, err = a.float("start", ps.Start); err != nil {
		return zygo.SexpNull, err
	}
	if ps.End, err = a.float("end", ps.End); err != nil {
		return zygo.SexpNull, err
	}
	if ps.Step, err = a.float("step", ps.Step); err != nil {
		return zygo.SexpNull, err
	}
	closed, err := a.bool("closed", false)
	if err != nil {
		return zygo.SexpNull, err
	}

	sum, err := analyse.Summarise(s.ctx, m, analyse.SummaryOptions{
		Axis:      axis,
		Positions: ps,
		Closed:    closed,
		CloseIter: s.cfg.Close.MaxIter,
	})
	if err != nil {
		return zygo.SexpNull, err
	}
	label, err := a.word("label", "slices")
	if err != nil {
		return zygo.SexpNull, err
	}
	s.res.record(Measurement{Label: label, Kind: "slices", Value: sum.Volume, Summary: sum})

	areas := make([]float64, len(sum.Sections))
	for i, sec := range sum.Sections {
		areas[i] = sec.Area
	}
	return floats(areas), nil
}

// (deviation m) returns the per-vertex values left by register.
func deviationBuiltin(_ *session, a kwArgs) (zygo.Sexp, error) {
	m, err := a.mesh(0)
	if err != nil {
		return zygo.SexpNull, err
	}
	return floats(m.Values), nil
}

func vertexCountBuiltin(_ *session, a kwArgs) (zygo.Sexp, error) {
	m, err := a.mesh(0)
	if err != nil {
		return zygo.SexpNull, err
	}
	return &zygo.SexpInt{Val: int64(m.VertexCount())}, nil
}

func faceCountBuiltin(_ *session, a kwArgs) (zygo.Sexp, error) {
	m, err := a.mesh(0)
	if err != nil {
		return zygo.SexpNull, err
	}
	return &zygo.SexpInt{Val: int64(m.FaceCount())}, nil
}

// ---------------------------------------------------------------------------
// Trimming
// ---------------------------------------------------------------------------

// (trim-height m :height 10 :axis :z)
func trimHeightBuiltin(_ *session, a kwArgs) (zygo.Sexp, error) {
	m, err := a.mesh(0)
	if err != nil {
		return zygo.SexpNull, err
	}
	if _, ok := a.kw["height"]; !ok {
		return zygo.SexpNull, fmt.Errorf("trim-height requires :height")
	}
	h, err := a.float("height", 0)
	if err != nil {
		return zygo.SexpNull, err
	}
	axis, err := a.axis("axis", geom.Z)
	if err != nil {
		return zygo.SexpNull, err
	}
	out, err := trim.Planar(m, h, axis)
	if err != nil {
		return zygo.SexpNull, err
	}
	return &sexpMesh{m: out}, nil
}

// (trim-plane m (vec3 ...) (vec3 ...) (vec3 ...))
func trimPlaneBuiltin(_ *session, a kwArgs) (zygo.Sexp, error) {
	m, err := a.mesh(0)
	if err != nil {
		return zygo.SexpNull, err
	}
	var p [3]r3.Vec
	for i := range p {
		if p[i], err = a.vec(i + 1); err != nil {
			return zygo.SexpNull, err
		}
	}
	out, err := trim.ThreePoint(m, p[0], p[1], p[2])
	if err != nil {
		return zygo.SexpNull, err
	}
	return &sexpMesh{m: out}, nil
}

// (trim-near m ref :max-dist 20)
func trimNearBuiltin(_ *session, a kwArgs) (zygo.Sexp, error) {
	m, err := a.mesh(0)
	if err != nil {
		return zygo.SexpNull, err
	}
	ref, err := a.mesh(1)
	if err != nil {
		return zygo.SexpNull, err
	}
	d, err := a.float("max-dist", 20)
	if err != nil {
		return zygo.SexpNull, err
	}
	out, err := trim.Dynamic(m, ref, d)
	if err != nil {
		return zygo.SexpNull, err
	}
	return &sexpMesh{m: out}, nil
}

// sexpListToSlice converts a SexpPair (Lisp list) or SexpArray to a Go slice.
func sexpListToSlice(s zygo.Sexp) ([]zygo.Sexp, error) {
	switch v := s.(type) {
	case *zygo.SexpPair:
		return zygo.ListToArray(v)
	case *zygo.SexpArray:
		return v.Val, nil
	case *zygo.SexpSentinel:
		if v == zygo.SexpNull {
			return nil, nil
		}
	}
	return nil, fmt.Errorf("expected list or array, got %T", s)
}
