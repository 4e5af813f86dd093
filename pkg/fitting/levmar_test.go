package fitting

import (
	"errors"
	"math"
	"testing"
)

// TestMinimizeQuadratic recovers the minimum of a separable quadratic with
// the optimum inside the box.
func TestMinimizeQuadratic(t *testing.T) {
	target := []float64{1.5, -0.5}
	f := func(x []float64) []float64 {
		return []float64{x[0] - target[0], 2 * (x[1] - target[1])}
	}

	sol, err := Minimize(f, []float64{0, 0}, []float64{-10, -10}, []float64{10, 10}, Options{})
	if err != nil {
		t.Fatalf("Minimize failed: %v", err)
	}
	if !sol.Converged {
		t.Errorf("did not converge in %d iterations", sol.Iterations)
	}
	for i := range target {
		if math.Abs(sol.X[i]-target[i]) > 1e-6 {
			t.Errorf("X[%d] = %g, want %g", i, sol.X[i], target[i])
		}
	}
	if sol.SSR > 1e-10 {
		t.Errorf("SSR = %g at the optimum", sol.SSR)
	}
}

// TestMinimizeActiveBound pins the optimum outside the box and checks the
// solution lands on the boundary.
func TestMinimizeActiveBound(t *testing.T) {
	f := func(x []float64) []float64 {
		return []float64{x[0] - 5}
	}

	sol, err := Minimize(f, []float64{0}, []float64{-1}, []float64{2}, Options{})
	if err != nil {
		t.Fatalf("Minimize failed: %v", err)
	}
	if math.Abs(sol.X[0]-2) > 1e-9 {
		t.Errorf("X[0] = %g, want the upper bound 2", sol.X[0])
	}
}

// TestMinimizeStartOutsideBox checks that an infeasible starting point is
// projected into the box before the first evaluation.
func TestMinimizeStartOutsideBox(t *testing.T) {
	evals := 0
	f := func(x []float64) []float64 {
		evals++
		if x[0] < 0 || x[0] > 1 {
			t.Errorf("evaluated outside the box at x=%g", x[0])
		}
		return []float64{x[0] - 0.5}
	}

	sol, err := Minimize(f, []float64{7}, []float64{0}, []float64{1}, Options{})
	if err != nil {
		t.Fatalf("Minimize failed: %v", err)
	}
	if math.Abs(sol.X[0]-0.5) > 1e-6 {
		t.Errorf("X[0] = %g, want 0.5", sol.X[0])
	}
	if evals == 0 {
		t.Error("residual function never evaluated")
	}
}

// TestMinimizeInconsistentBounds checks the bounds validation.
func TestMinimizeInconsistentBounds(t *testing.T) {
	f := func(x []float64) []float64 { return []float64{x[0]} }

	_, err := Minimize(f, []float64{0}, []float64{1}, []float64{0}, Options{})
	if !errors.Is(err, ErrBounds) {
		t.Errorf("got %v, want ErrBounds", err)
	}

	_, err = Minimize(f, []float64{0}, []float64{0, 0}, []float64{1}, Options{})
	if !errors.Is(err, ErrBounds) {
		t.Errorf("got %v, want ErrBounds", err)
	}
}

// TestMinimizeNonlinear fits a two-parameter exponential decay to
// noiseless samples of itself.
func TestMinimizeNonlinear(t *testing.T) {
	const (
		amp  = 2.0
		rate = 0.8
	)
	n := 50
	tt := make([]float64, n)
	y := make([]float64, n)
	for i := range tt {
		tt[i] = float64(i) * 0.1
		y[i] = amp * math.Exp(-rate*tt[i])
	}

	f := func(p []float64) []float64 {
		r := make([]float64, n)
		for i := range r {
			r[i] = p[0]*math.Exp(-p[1]*tt[i]) - y[i]
		}
		return r
	}

	sol, err := Minimize(f, []float64{1, 0.1}, []float64{0, 0}, []float64{10, 10}, Options{})
	if err != nil {
		t.Fatalf("Minimize failed: %v", err)
	}
	if !sol.Converged {
		t.Errorf("did not converge in %d iterations", sol.Iterations)
	}
	if math.Abs(sol.X[0]-amp) > 1e-4 || math.Abs(sol.X[1]-rate) > 1e-4 {
		t.Errorf("recovered (%g, %g), want (%g, %g)", sol.X[0], sol.X[1], amp, rate)
	}
}
