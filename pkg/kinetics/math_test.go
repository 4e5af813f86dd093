package kinetics

import (
	"math"
	"testing"
)

// TestExpConvConstantInput checks the recursion against the closed-form
// response to a constant input: convolving a constant a with the kernel
// (1/T)exp(-t/T) gives a*(1-exp(-t/T)).
func TestExpConvConstantInput(t *testing.T) {
	const (
		T = 2.0
		a = 3.0
		n = 200
	)

	tt := make([]float64, n)
	aa := make([]float64, n)
	for i := range tt {
		tt[i] = float64(i) * 0.05
		aa[i] = a
	}

	got := ExpConv(T, tt, aa)
	for i := range tt {
		want := a * (1 - math.Exp(-tt[i]/T))
		if math.Abs(got[i]-want) > 1e-9 {
			t.Fatalf("ExpConv at t=%.2f: got %g, want %g", tt[i], got[i], want)
		}
	}
}

// TestExpConvLinearInput checks exactness for a linear ramp, for which the
// piecewise-linear recursion should have no quadrature error at all.
func TestExpConvLinearInput(t *testing.T) {
	const (
		T     = 0.7
		slope = 1.5
		n     = 150
	)

	tt := make([]float64, n)
	aa := make([]float64, n)
	for i := range tt {
		tt[i] = float64(i) * 0.04
		aa[i] = slope * tt[i]
	}

	// Analytic convolution of a ramp with the normalised exponential:
	// slope*(t - T*(1-exp(-t/T))).
	got := ExpConv(T, tt, aa)
	for i := range tt {
		want := slope * (tt[i] - T*(1-math.Exp(-tt[i]/T)))
		if math.Abs(got[i]-want) > 1e-9 {
			t.Fatalf("ExpConv at t=%.2f: got %g, want %g", tt[i], got[i], want)
		}
	}
}

// TestExpConvZeroTimeConstant verifies that T=0 degenerates to the
// identity and returns an independent copy.
func TestExpConvZeroTimeConstant(t *testing.T) {
	tt := []float64{0, 1, 2, 3}
	aa := []float64{5, 6, 7, 8}

	got := ExpConv(0, tt, aa)
	for i := range aa {
		if got[i] != aa[i] {
			t.Errorf("ExpConv(0) at index %d: got %g, want %g", i, got[i], aa[i])
		}
	}

	got[0] = -1
	if aa[0] != 5 {
		t.Errorf("ExpConv(0) aliases its input")
	}
}

// TestExpConvNonUniformSpacing checks the recursion handles an irregular
// time axis, again against the constant-input closed form.
func TestExpConvNonUniformSpacing(t *testing.T) {
	const T = 1.3
	tt := []float64{0, 0.1, 0.35, 0.4, 1.0, 2.5, 2.6, 4.0}
	aa := make([]float64, len(tt))
	for i := range aa {
		aa[i] = 2.0
	}

	got := ExpConv(T, tt, aa)
	for i := range tt {
		want := 2.0 * (1 - math.Exp(-tt[i]/T))
		if math.Abs(got[i]-want) > 1e-9 {
			t.Fatalf("ExpConv at t=%.2f: got %g, want %g", tt[i], got[i], want)
		}
	}
}

// TestConvolve checks the discrete convolution on a short hand-computed
// example.
func TestConvolve(t *testing.T) {
	a := []float64{1, 2, 3}
	b := []float64{1, 1, 1}
	dt := 0.5

	got := Convolve(a, b, dt)
	want := []float64{0.5, 1.5, 3.0}
	for i := range want {
		if math.Abs(got[i]-want[i]) > 1e-12 {
			t.Errorf("Convolve[%d]: got %g, want %g", i, got[i], want[i])
		}
	}
}

// TestIntegrate checks the running integral of a constant.
func TestIntegrate(t *testing.T) {
	tt := []float64{0, 0.5, 1.0, 1.5}
	aa := []float64{2, 2, 2, 2}

	got := Integrate(aa, tt)
	want := []float64{0, 1, 2, 3}
	for i := range want {
		if math.Abs(got[i]-want[i]) > 1e-12 {
			t.Errorf("Integrate[%d]: got %g, want %g", i, got[i], want[i])
		}
	}
}
