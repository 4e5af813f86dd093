// Package fitting implements bounded nonlinear least-squares estimation of
// tracer-kinetic model parameters, with confidence intervals derived from
// the local curvature of the objective at the solution.
package fitting

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// ErrBounds reports an inconsistent box constraint passed to Minimize.
var ErrBounds = errors.New("fitting: inconsistent bounds")

// ResidualFunc evaluates the residual vector at a parameter vector x. The
// returned slice must have the same length on every call.
type ResidualFunc func(x []float64) []float64

// Options tunes the optimizer. The zero value selects the defaults, which
// are adequate for the well-scaled parameter vectors the model catalog
// produces.
type Options struct {
	// MaxIterations caps the number of accepted or rejected damped steps.
	// Default 200.
	MaxIterations int

	// TolSSR stops the iteration when an accepted step reduces the sum of
	// squared residuals by less than this relative amount. Default 1e-10.
	TolSSR float64

	// TolStep stops the iteration when the infinity norm of an accepted
	// step falls below this. Default 1e-12.
	TolStep float64
}

func (o Options) withDefaults() Options {
	if o.MaxIterations == 0 {
		o.MaxIterations = 200
	}
	if o.TolSSR == 0 {
		o.TolSSR = 1e-10
	}
	if o.TolStep == 0 {
		o.TolStep = 1e-12
	}
	return o
}

// Solution is the outcome of a Minimize call.
type Solution struct {
	// X is the best parameter vector found, always inside the bounds.
	X []float64

	// SSR is the sum of squared residuals at X.
	SSR float64

	// Jacobian is the forward-difference Jacobian evaluated at X, with one
	// row per residual and one column per parameter. Used downstream for
	// covariance estimation.
	Jacobian *mat.Dense

	// Iterations is the number of damped steps taken.
	Iterations int

	// Converged reports whether a tolerance was met before the iteration
	// cap. A non-converged solution still carries the best point found.
	Converged bool
}

// Damping range for the Levenberg-Marquardt parameter. The iteration gives
// up on a step once lambda exceeds the upper limit without finding a
// decrease.
const (
	minLambda = 1e-12
	maxLambda = 1e12
)

// Minimize runs a bounded Levenberg-Marquardt iteration from x0.
//
// The Jacobian is approximated by forward differences. Each damped step
// solves (J'J + lambda*diag(J'J)) dx = -J'r and projects the trial point
// onto the box [lower, upper]; a step is accepted only when it decreases
// the sum of squared residuals. Lambda shrinks on acceptance and grows on
// rejection.
func Minimize(f ResidualFunc, x0, lower, upper []float64, opts Options) (*Solution, error) {
	opts = opts.withDefaults()

	p := len(x0)
	if len(lower) != p || len(upper) != p {
		return nil, fmt.Errorf("%w: %d parameters, %d lower, %d upper", ErrBounds, p, len(lower), len(upper))
	}
	for i := range lower {
		if lower[i] > upper[i] {
			return nil, fmt.Errorf("%w: parameter %d has lower %g > upper %g", ErrBounds, i, lower[i], upper[i])
		}
	}

	x := make([]float64, p)
	for i := range x {
		x[i] = project(x0[i], lower[i], upper[i])
	}

	r := f(x)
	n := len(r)
	ssr := floats.Dot(r, r)

	J := mat.NewDense(n, p, nil)
	jacobian(f, x, r, lower, upper, J)

	sol := &Solution{X: x, SSR: ssr, Jacobian: J}
	lambda := 1e-3

	jtj := mat.NewDense(p, p, nil)
	jtr := mat.NewVecDense(p, nil)
	damped := mat.NewDense(p, p, nil)
	dx := mat.NewVecDense(p, nil)

	for sol.Iterations = 0; sol.Iterations < opts.MaxIterations; sol.Iterations++ {
		jtj.Mul(J.T(), J)
		jtr.MulVec(J.T(), mat.NewVecDense(n, r))

		accepted := false
		for lambda <= maxLambda {
			damped.Copy(jtj)
			for i := 0; i < p; i++ {
				scale := jtj.At(i, i)
				if scale == 0 {
					scale = 1
				}
				damped.Set(i, i, jtj.At(i, i)+lambda*scale)
			}

			if err := solveStep(damped, jtr, dx); err != nil {
				lambda *= 10
				continue
			}

			trial := make([]float64, p)
			for i := range trial {
				trial[i] = project(x[i]-dx.AtVec(i), lower[i], upper[i])
			}

			rTrial := f(trial)
			ssrTrial := floats.Dot(rTrial, rTrial)
			if ssrTrial < ssr {
				step := 0.0
				for i := range trial {
					step = math.Max(step, math.Abs(trial[i]-x[i]))
				}
				decrease := (ssr - ssrTrial) / math.Max(ssr, 1e-300)

				copy(x, trial)
				r = rTrial
				ssr = ssrTrial
				lambda = math.Max(lambda/10, minLambda)
				accepted = true

				if decrease < opts.TolSSR || step < opts.TolStep {
					sol.Converged = true
				}
				break
			}
			lambda *= 10
		}

		if !accepted {
			// No decrease found across the whole damping range: the
			// current point is as good as this iteration gets.
			sol.Converged = true
		}
		if sol.Converged {
			sol.Iterations++
			break
		}

		jacobian(f, x, r, lower, upper, J)
	}

	sol.SSR = ssr
	jacobian(f, x, r, lower, upper, J)
	return sol, nil
}

// jacobian fills J with the forward-difference Jacobian of f at x, with r
// the residual at x. Steps that would leave the box are flipped backward.
func jacobian(f ResidualFunc, x, r, lower, upper []float64, J *mat.Dense) {
	n, p := J.Dims()
	xh := make([]float64, p)

	for j := 0; j < p; j++ {
		h := 1e-7 * math.Max(math.Abs(x[j]), 1)
		copy(xh, x)

		xh[j] = x[j] + h
		if xh[j] > upper[j] {
			h = -h
			xh[j] = x[j] + h
		}
		if xh[j] < lower[j] {
			// Degenerate box; column stays zero.
			for i := 0; i < n; i++ {
				J.Set(i, j, 0)
			}
			continue
		}

		rh := f(xh)
		for i := 0; i < n; i++ {
			J.Set(i, j, (rh[i]-r[i])/h)
		}
	}
}

// solveStep solves A dx = b for the damped normal equations. QR handles the
// near-singular systems that arise when a parameter hits its bound; a
// failure is retried once with a stiffer diagonal before giving up so the
// caller can raise the damping instead.
func solveStep(A *mat.Dense, b, dx *mat.VecDense) error {
	var qr mat.QR
	qr.Factorize(A)
	if err := qr.SolveVecTo(dx, false, b); err == nil {
		return nil
	}

	p, _ := A.Dims()
	for i := 0; i < p; i++ {
		A.Set(i, i, A.At(i, i)+1e-6)
	}
	qr.Factorize(A)
	return qr.SolveVecTo(dx, false, b)
}

// project clamps v into [lo, hi].
func project(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
