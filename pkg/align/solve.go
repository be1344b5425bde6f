package align

import (
	"math"

	"github.com/abel-research/ampscan/pkg/geom"
	"gonum.org/v1/gonum/diff/fd"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize"
	"gonum.org/v1/gonum/spatial/r3"
)

// pairs holds matched moving and static points, with the static surface
// normal at each match.
type pairs struct {
	mv, sv, sn []r3.Vec
}

func (p pairs) len() int { return len(p.mv) }

// rcond is the relative singular value cutoff for least squares solves.
const rcond = 1e-10

// kabsch returns the least-squares rigid transform taking mv onto sv.
// The covariance is decomposed with an SVD and a reflection is corrected
// by the sign of the determinant.
func kabsch(mv, sv []r3.Vec) Transform {
	if len(mv) == 0 {
		return Identity()
	}
	mc, sc := mean(mv), mean(sv)

	cov := mat.NewDense(3, 3, nil)
	for i := range mv {
		a := r3.Sub(mv[i], mc)
		b := r3.Sub(sv[i], sc)
		ar := [3]float64{a.X, a.Y, a.Z}
		br := [3]float64{b.X, b.Y, b.Z}
		for r := 0; r < 3; r++ {
			for c := 0; c < 3; c++ {
				cov.Set(r, c, cov.At(r, c)+ar[r]*br[c])
			}
		}
	}

	var svd mat.SVD
	if !svd.Factorize(cov, mat.SVDFull) {
		return Transform{R: r3.Eye(), T: r3.Sub(sc, mc)}
	}
	var u, v mat.Dense
	svd.UTo(&u)
	svd.VTo(&v)

	// R = V·diag(1, 1, sign(det(V·Uᵀ)))·Uᵀ
	var vut mat.Dense
	vut.Mul(&v, u.T())
	sign := mat.NewDiagDense(3, []float64{1, 1, 1})
	if mat.Det(&vut) < 0 {
		sign.SetDiag(2, -1)
	}
	var vs, r mat.Dense
	vs.Mul(&v, sign)
	r.Mul(&vs, u.T())

	rot := geom.MatFromDense(&r)
	return Transform{R: rot, T: r3.Sub(sc, rot.MulVec(mc))}
}

// pointToPlane solves the linearised small-angle problem minimising the
// distance from each moved point to the tangent plane at its match. The
// six unknowns are three rotation angles and a translation. A singular
// system yields a zero increment along its null space.
func pointToPlane(p pairs) Transform {
	c := mat.NewSymDense(6, nil)
	b := mat.NewVecDense(6, nil)
	for i := range p.mv {
		n := p.sn[i]
		x := r3.Cross(p.mv[i], n)
		row := [6]float64{x.X, x.Y, x.Z, n.X, n.Y, n.Z}
		d := r3.Dot(r3.Sub(p.sv[i], p.mv[i]), n)
		for r := 0; r < 6; r++ {
			for k := r; k < 6; k++ {
				c.SetSym(r, k, c.At(r, k)+row[r]*row[k])
			}
			b.SetVec(r, b.AtVec(r)+row[r]*d)
		}
	}
	x := lstsq(c, b)
	ang := r3.Vec{X: x[0], Y: x[1], Z: x[2]}
	return Transform{
		R: geom.RotationMatrix(ang, geom.Radians),
		T: r3.Vec{X: x[3], Y: x[4], Z: x[5]},
	}
}

// lstsq returns the minimum-norm least squares solution of a·x = b,
// truncating singular values below rcond relative to the largest.
func lstsq(a mat.Matrix, b mat.Vector) []float64 {
	_, n := a.Dims()
	out := make([]float64, n)
	var svd mat.SVD
	if !svd.Factorize(a, mat.SVDThin) {
		return out
	}
	rank := svd.Rank(rcond)
	if rank == 0 {
		return out
	}
	var x mat.VecDense
	svd.SolveVecTo(&x, b, rank)
	for i := range out {
		if v := x.AtVec(i); !math.IsNaN(v) && !math.IsInf(v, 0) {
			out[i] = v
		}
	}
	return out
}

// OptimizerKind selects the gonum/optimize method used by the Optimize
// alignment method.
type OptimizerKind int

const (
	NelderMead OptimizerKind = iota
	BFGS
	LBFGS
	CG
	GradientDescent
)

var optimizerNames = map[string]OptimizerKind{
	"nelder-mead":      NelderMead,
	"neldermead":       NelderMead,
	"bfgs":             BFGS,
	"l-bfgs":           LBFGS,
	"lbfgs":            LBFGS,
	"cg":               CG,
	"gradient-descent": GradientDescent,
	"gd":               GradientDescent,
}

func (k OptimizerKind) String() string {
	switch k {
	case NelderMead:
		return "nelder-mead"
	case BFGS:
		return "bfgs"
	case LBFGS:
		return "lbfgs"
	case CG:
		return "cg"
	case GradientDescent:
		return "gradient-descent"
	}
	return "unknown"
}

func (k OptimizerKind) method() optimize.Method {
	switch k {
	case BFGS:
		return &optimize.BFGS{}
	case LBFGS:
		return &optimize.LBFGS{}
	case CG:
		return &optimize.CG{}
	case GradientDescent:
		return &optimize.GradientDescent{}
	}
	return &optimize.NelderMead{}
}

func (k OptimizerKind) needsGradient() bool { return k != NelderMead }

// Bounds on the optimised parameters: angles in radians, then translation.
var (
	angleBound       = math.Pi / 4
	translationBound = 5.0
)

// paramTransform converts three Euler angles and a translation into a
// Transform.
func paramTransform(x []float64) Transform {
	return Transform{
		R: geom.RotationMatrix(r3.Vec{X: x[0], Y: x[1], Z: x[2]}, geom.Radians),
		T: r3.Vec{X: x[3], Y: x[4], Z: x[5]},
	}
}

// pairRMSE is the objective minimised by the Optimize method.
func pairRMSE(x []float64, mv, sv []r3.Vec) float64 {
	t := paramTransform(x)
	sum := 0.0
	for i := range mv {
		sum += r3.Norm2(r3.Sub(t.Apply(mv[i]), sv[i]))
	}
	return math.Sqrt(sum / float64(len(mv)))
}

// outOfBounds returns how far x lies outside the parameter box.
func outOfBounds(x []float64) float64 {
	excess := 0.0
	for i, v := range x {
		lim := translationBound
		if i < 3 {
			lim = angleBound
		}
		if a := math.Abs(v); a > lim {
			excess += a - lim
		}
	}
	return excess
}

// minimiseRMSE fits the six rigid parameters directly by minimising the
// RMSE between the pairs. Bounds are imposed with a steep penalty.
func minimiseRMSE(mv, sv []r3.Vec, kind OptimizerKind, bounded bool) (Transform, error) {
	if len(mv) == 0 {
		return Identity(), nil
	}
	f := func(x []float64) float64 {
		v := pairRMSE(x, mv, sv)
		if bounded {
			v += 1e3 * outOfBounds(x)
		}
		return v
	}
	prob := optimize.Problem{Func: f}
	if kind.needsGradient() {
		prob.Grad = func(grad, x []float64) {
			fd.Gradient(grad, f, x, &fd.Settings{Formula: fd.Central})
		}
	}

	x0 := make([]float64, 6)
	f0 := f(x0)
	settings := &optimize.Settings{
		MajorIterations: 500,
		FuncEvaluations: 5000,
		Converger: &optimize.FunctionConverge{
			Absolute:   1e-12,
			Iterations: 20,
		},
	}
	res, err := optimize.Minimize(prob, x0, settings, kind.method())
	if res == nil {
		return Identity(), err
	}
	if res.F > f0 || (bounded && outOfBounds(res.X) > 0) {
		return Identity(), nil
	}
	return paramTransform(res.X), nil
}

func mean(pts []r3.Vec) r3.Vec {
	var s r3.Vec
	for _, p := range pts {
		s = r3.Add(s, p)
	}
	return r3.Scale(1/float64(len(pts)), s)
}
