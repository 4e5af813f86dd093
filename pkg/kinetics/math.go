// Package kinetics implements the numerical core of the model fitting
// application: the signal/concentration conversion functions for the
// steady-state spoiled gradient echo (SPGR) sequence, the shared math
// helpers, and the registry of tracer-kinetic model functions that
// predict tissue concentration from one or two input-function curves.
package kinetics

import "math"

// ExpConv convolves a sampled curve a(t) with the normalised exponential
// impulse response (1/T)*exp(-t/T).
//
// The samples in a are assumed piecewise linear between the (not
// necessarily uniform) time points in t. Within each interval the
// convolution integral then has a closed form, which gives the recursion
//
//	f[i+1] = E*f[i] + a[i]*(1-E) + da*(x - (1-E))
//
// with x the interval length in units of T, E = exp(-x) and da the slope
// of a over the interval. The recursion is exact for piecewise-linear
// input, so no quadrature error accumulates over long series.
//
// T = 0 degenerates to the identity (the impulse response becomes a delta)
// and returns a copy of a.
func ExpConv(T float64, t, a []float64) []float64 {
	n := len(t)
	f := make([]float64, n)
	if n == 0 {
		return f
	}
	if T == 0 {
		copy(f, a)
		return f
	}

	for i := 0; i < n-1; i++ {
		x := (t[i+1] - t[i]) / T
		da := (a[i+1] - a[i]) / x

		E := math.Exp(-x)
		E0 := 1 - E
		E1 := x - E0

		f[i+1] = E*f[i] + a[i]*E0 + da*E1
	}

	return f
}

// Convolve computes the discrete convolution of two equal-length series
// sampled at uniform spacing dt, truncated to the input length:
//
//	c[i] = dt * sum_{j<=i} a[j]*b[i-j]
//
// It is used to combine an input-function curve with a compartment's
// sampled impulse response.
func Convolve(a, b []float64, dt float64) []float64 {
	n := len(a)
	c := make([]float64, n)
	for i := 0; i < n; i++ {
		sum := 0.0
		for j := 0; j <= i; j++ {
			sum += a[j] * b[i-j]
		}
		c[i] = sum * dt
	}
	return c
}

// Integrate computes the running discrete integral of a over the time
// points in t, using the spacing of the first interval as the sample
// period. f[0] is zero.
func Integrate(a, t []float64) []float64 {
	f := make([]float64, len(a))
	if len(t) < 2 {
		return f
	}
	dt := t[1] - t[0]
	for i := 1; i < len(t); i++ {
		f[i] = f[i-1] + dt*a[i]
	}
	return f
}

// mean returns the arithmetic mean of v. Callers guarantee len(v) > 0.
func mean(v []float64) float64 {
	sum := 0.0
	for _, x := range v {
		sum += x
	}
	return sum / float64(len(v))
}

// clamp limits x to the closed interval [lo, hi].
func clamp(x, lo, hi float64) float64 {
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}
