package engine

import (
	"math"
	"path/filepath"
	"strings"
	"testing"

	"github.com/abel-research/ampscan/pkg/primitive"
	"github.com/abel-research/ampscan/pkg/stl"
	zygo "github.com/glycerine/zygomys/zygo"
)

// ---------------------------------------------------------------------------
// Preprocessing tests
// ---------------------------------------------------------------------------

func TestPreprocessKeywords(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		expect string
	}{
		{
			name:   "simple keyword",
			input:  `(sphere :radius 2)`,
			expect: `(sphere "__kw_radius" 2)`,
		},
		{
			name:   "multiple keywords",
			input:  `(tube :radius 1 :height 4)`,
			expect: `(tube "__kw_radius" 1 "__kw_height" 4)`,
		},
		{
			name:   "keyword in string preserved",
			input:  `"thing with :keyword inside"`,
			expect: `"thing with :keyword inside"`,
		},
		{
			name:   "keyword in raw string preserved",
			input:  "`raw :keyword`",
			expect: "`raw :keyword`",
		},
		{
			name:   "assignment operator preserved",
			input:  `(def x := 10)`,
			expect: `(def x := 10)`,
		},
		{
			name:   "kebab-case identifier",
			input:  `(phantom-limb :max-iter 3)`,
			expect: `(phantom_limb "__kw_max-iter" 3)`,
		},
		{
			name:   "minus operator preserved",
			input:  `(- 10 5)`,
			expect: `(- 10 5)`,
		},
		{
			name:   "negative number preserved",
			input:  `(vec3 -1 0 -2.5)`,
			expect: `(vec3 -1 0 -2.5)`,
		},
		{
			name:   "comment converted to // style",
			input:  `;; comment with :keyword`,
			expect: `// comment with :keyword`,
		},
		{
			name:   "single semicolon comment",
			input:  `; simple comment`,
			expect: `// simple comment`,
		},
		{
			name:   "hyphen in keyword preserved",
			input:  `:exclude-boundary`,
			expect: `"__kw_exclude-boundary"`,
		},
		{
			name:   "escaped quote in string",
			input:  `"a \" :b" :c`,
			expect: `"a \" :b" "__kw_c"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := preprocessSource(tt.input)
			if got != tt.expect {
				t.Errorf("preprocessSource(%q) = %q, want %q", tt.input, got, tt.expect)
			}
		})
	}
}

// ---------------------------------------------------------------------------
// Argument parsing
// ---------------------------------------------------------------------------

func TestParseArgs(t *testing.T) {
	args := []zygo.Sexp{
		&sexpVec3{},
		&zygo.SexpStr{S: kwPrefix + "radius"},
		&zygo.SexpInt{Val: 3},
		&zygo.SexpStr{S: "plain"},
		&zygo.SexpStr{S: kwPrefix + "closed"},
	}
	a := parseArgs("test", args)
	if len(a.positional) != 2 {
		t.Fatalf("expected 2 positional args, got %d", len(a.positional))
	}
	r, err := a.float("radius", 1)
	if err != nil || r != 3 {
		t.Errorf("radius = %g, %v; want 3", r, err)
	}
	closed, err := a.bool("closed", false)
	if err != nil || !closed {
		t.Errorf("trailing keyword should read as true, got %v, %v", closed, err)
	}
	if d, _ := a.float("missing", 7); d != 7 {
		t.Errorf("missing keyword should use default, got %g", d)
	}
	if _, err := a.int("radius", 0); err != nil {
		t.Errorf("integral float should convert: %v", err)
	}
	a.kw["step"] = &zygo.SexpFloat{Val: 0.5}
	if _, err := a.int("step", 0); err == nil {
		t.Error("expected error for non-integral count")
	}
	if _, err := a.mesh(0); err == nil {
		t.Error("expected error for vec3 used as mesh")
	}
}

// ---------------------------------------------------------------------------
// Script tests
// ---------------------------------------------------------------------------

func evaluate(t *testing.T, eng *Engine, source string) *Result {
	t.Helper()
	res, evalErrs, err := eng.Evaluate(source)
	if err != nil {
		t.Fatalf("fatal error: %v", err)
	}
	if len(evalErrs) > 0 {
		t.Fatalf("eval errors: %v", evalErrs)
	}
	if res == nil {
		t.Fatal("expected non-nil result")
	}
	return res
}

func TestDefmeshSphere(t *testing.T) {
	res := evaluate(t, NewEngine(), `(defmesh "ball" (sphere :radius 2 :rows 12 :segs 24))`)

	if len(res.Names) != 1 || res.Names[0] != "ball" {
		t.Fatalf("expected one mesh named ball, got %v", res.Names)
	}
	m := res.Mesh("ball")
	if m == nil {
		t.Fatal("expected mesh named 'ball'")
	}
	b := m.Bounds()
	if math.Abs(b.Max.Z-2) > 1e-9 || math.Abs(b.Min.Z+2) > 1e-9 {
		t.Errorf("expected z extent [-2, 2], got [%g, %g]", b.Min.Z, b.Max.Z)
	}
}

func TestVariableReference(t *testing.T) {
	source := `
(def r 1.5)
(def ball (sphere :radius r :rows 8 :segs 16))
(defmesh "moved" (translate ball (vec3 0 0 10)))
(defmesh "same" ball)
`
	res := evaluate(t, NewEngine(), source)

	moved, same := res.Mesh("moved"), res.Mesh("same")
	if moved == nil || same == nil {
		t.Fatalf("expected meshes moved and same, got %v", res.Names)
	}
	if got := moved.Bounds().Max.Z; math.Abs(got-11.5) > 1e-9 {
		t.Errorf("moved top = %g, want 11.5", got)
	}
	if got := same.Bounds().Max.Z; math.Abs(got-1.5) > 1e-9 {
		t.Errorf("translate must not change its input, top = %g", got)
	}
}

func TestMeshLookup(t *testing.T) {
	source := `
(defmesh "a" (sphere :rows 8 :segs 16))
(defmesh "b" (scale (mesh "a") 3))
`
	res := evaluate(t, NewEngine(), source)
	if got := res.Mesh("b").Bounds().Max.X; math.Abs(got-3) > 1e-9 {
		t.Errorf("scaled radius = %g, want 3", got)
	}
}

func TestMeshLookupError(t *testing.T) {
	_, evalErrs, err := NewEngine().Evaluate(`(mesh "nonexistent")`)
	if err != nil {
		t.Fatalf("expected non-fatal eval error, got fatal: %v", err)
	}
	if len(evalErrs) == 0 {
		t.Fatal("expected at least one eval error for missing mesh")
	}
	if evalErrs[0].Message == "" {
		t.Error("eval error should have a non-empty message")
	}
}

func TestVolumeMeasurement(t *testing.T) {
	source := `
(def leg (limb :radius 1 :length 2 :rows 8 :segs 32))
(volume leg :label "limb")
`
	res := evaluate(t, NewEngine(), source)
	if len(res.Measurements) != 1 {
		t.Fatalf("expected 1 measurement, got %d", len(res.Measurements))
	}
	m := res.Measurements[0]
	if m.Label != "limb" || m.Kind != "volume" {
		t.Errorf("unexpected measurement %+v", m)
	}
	want := 2*math.Pi + 2.0/3*math.Pi
	if math.Abs(m.Value-want)/want > 0.05 {
		t.Errorf("volume = %g, want about %g", m.Value, want)
	}
}

func TestSlicesMeasurement(t *testing.T) {
	source := `
(slices (limb :radius 1 :length 2 :rows 8 :segs 32)
        :mode :real-intervals :start 0.5 :end 1.5 :step 0.25 :label "shaft")
(slices (sphere :rows 12 :segs 24) :planes (list 0 0.5) :axis :x)
`
	res := evaluate(t, NewEngine(), source)
	if len(res.Measurements) != 2 {
		t.Fatalf("expected 2 measurements, got %d", len(res.Measurements))
	}

	shaft := res.Measurements[0]
	if shaft.Summary == nil {
		t.Fatal("expected a slice summary")
	}
	if len(shaft.Summary.Sections) != 5 {
		t.Errorf("expected 5 sections, got %d", len(shaft.Summary.Sections))
	}
	if math.Abs(shaft.Value-math.Pi)/math.Pi > 0.05 {
		t.Errorf("shaft volume = %g, want about pi", shaft.Value)
	}

	ball := res.Measurements[1].Summary
	if ball.Axis != "x" || len(ball.Sections) != 2 {
		t.Errorf("expected 2 x sections, got %s %d", ball.Axis, len(ball.Sections))
	}
}

func TestAlignScript(t *testing.T) {
	source := `
(def static (sphere :rows 24 :segs 48))
(def moving (translate static (vec3 0.2 -0.1 0)))
(defmesh "aligned" (align moving static :max-iter 30 :label "fit"))
`
	res := evaluate(t, NewEngine(), source)
	if len(res.Measurements) != 1 || res.Measurements[0].Kind != "rmse" {
		t.Fatalf("expected an rmse measurement, got %+v", res.Measurements)
	}
	if res.Measurements[0].Value > 0.02 {
		t.Errorf("rmse = %g, expected a close fit", res.Measurements[0].Value)
	}
	c := res.Mesh("aligned").Mean()
	if math.Hypot(c.X, c.Y) > 0.02 {
		t.Errorf("aligned centre = %v, want origin", c)
	}
}

func TestRegisterScript(t *testing.T) {
	source := `
(def base (sphere :radius 1 :rows 12 :segs 24))
(def target (sphere :radius 1.2 :rows 16 :segs 32))
(defmesh "reg" (register base target :steps 2))
(def dev (deviation (mesh "reg")))
`
	res := evaluate(t, NewEngine(), source)
	reg := res.Mesh("reg")
	if reg == nil {
		t.Fatal("expected mesh named 'reg'")
	}
	if len(reg.Values) != reg.VertexCount() {
		t.Fatalf("expected %d deviation values, got %d", reg.VertexCount(), len(reg.Values))
	}
	if len(res.Measurements) != 1 || res.Measurements[0].Kind != "max-deviation" {
		t.Fatalf("expected a max-deviation measurement, got %+v", res.Measurements)
	}
	if v := res.Measurements[0].Value; v < 0.1 || v > 0.3 {
		t.Errorf("max deviation = %g, want about 0.2", v)
	}
}

func TestTrimScript(t *testing.T) {
	source := `
(def ball (sphere :rows 12 :segs 24))
(defmesh "low" (trim-height ball :height 0.5))
(defmesh "tilted" (trim-plane ball (vec3 0 0 0) (vec3 1 0 0.5) (vec3 0 1 0)))
`
	res := evaluate(t, NewEngine(), source)
	if got := res.Mesh("low").Bounds().Max.Z; got > 0.5+1e-9 {
		t.Errorf("trimmed top = %g, want at most 0.5", got)
	}
	for _, v := range res.Mesh("tilted").Vertices {
		if v.Z > 0.5*v.X+1e-9 {
			t.Fatalf("vertex %v above the cutting plane", v)
		}
	}
}

func TestBuiltinNamesAreCallable(t *testing.T) {
	env := zygo.NewZlispSandbox()
	for name := range builtins {
		if ok, kind := env.IsBuiltinSym(env.MakeSymbol(name)); ok {
			t.Errorf("builtin %q is hidden by a zygomys %s", name, kind)
		}
	}
}

func TestSmoothAndCount(t *testing.T) {
	source := `
(def ball (smooth (sphere :rows 8 :segs 16) :method :laplacian :iterations 2))
(defmesh "ball" ball)
(def n (vertex-count ball))
(def f (face-count ball))
`
	res := evaluate(t, NewEngine(), source)
	ball := res.Mesh("ball")
	if ball.Bounds().Max.Z >= 1 {
		t.Error("laplacian smoothing should shrink the sphere")
	}
}

func TestBadKeywordValue(t *testing.T) {
	for _, source := range []string{
		`(sphere :radius "big")`,
		`(sphere :radius -1)`,
		`(smooth (sphere) :method :spline)`,
		`(slices (sphere) :axis :w)`,
		`(vec3 1 2)`,
		`(translate (vec3 1 2 3) (vec3 1 2 3))`,
	} {
		t.Run(source, func(t *testing.T) {
			_, evalErrs, err := NewEngine().Evaluate(source)
			if err != nil {
				t.Fatalf("expected non-fatal eval error, got fatal: %v", err)
			}
			if len(evalErrs) == 0 {
				t.Fatal("expected an eval error")
			}
		})
	}
}

func TestPhantomLimb(t *testing.T) {
	res := evaluate(t, NewEngine(), `(defmesh "phantom" (phantom-limb :radius 5 :length 20 :cells 24))`)
	m := res.Mesh("phantom")
	if m == nil || m.FaceCount() == 0 {
		t.Fatal("expected a tessellated phantom")
	}
	b := m.Bounds()
	if b.Max.Z < 19 || b.Min.Z > -4 {
		t.Errorf("unexpected phantom extent %v", b)
	}
}

// ---------------------------------------------------------------------------
// File access
// ---------------------------------------------------------------------------

func TestLoadRequiresIO(t *testing.T) {
	_, evalErrs, err := NewEngine().Evaluate(`(load "scan.stl")`)
	if err != nil {
		t.Fatalf("expected non-fatal eval error, got fatal: %v", err)
	}
	if len(evalErrs) == 0 {
		t.Fatal("expected load to fail without file access")
	}
	if !strings.Contains(evalErrs[0].Message, "disabled") {
		t.Errorf("unexpected message %q", evalErrs[0].Message)
	}
}

func TestLoadSaveRoundTrip(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "in.stl")
	out := filepath.Join(dir, "out.stl")

	tube, err := primitive.Tube(1, 2, 4, 16)
	if err != nil {
		t.Fatal(err)
	}
	if err := stl.WriteFile(in, tube, "tube"); err != nil {
		t.Fatal(err)
	}

	source := `
(defmesh "scan" (load "` + in + `"))
(save (translate (mesh "scan") (vec3 0 0 1)) "` + out + `")
`
	res := evaluate(t, NewEngine(WithIO(true)), source)
	if got := res.Mesh("scan").FaceCount(); got != tube.FaceCount() {
		t.Errorf("loaded %d faces, want %d", got, tube.FaceCount())
	}

	saved, err := stl.ReadFile(out)
	if err != nil {
		t.Fatal(err)
	}
	if saved.VertexCount() != tube.VertexCount() {
		t.Errorf("saved %d vertices, want %d", saved.VertexCount(), tube.VertexCount())
	}
	if got := saved.Bounds().Max.Z; math.Abs(got-(tube.Bounds().Max.Z+1)) > 1e-5 {
		t.Errorf("saved top = %g, want the translated mesh", got)
	}
}
