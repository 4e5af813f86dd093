package kinetics

import (
	"errors"
	"fmt"
	"math"
)

// ErrDomain reports numerically invalid input to a conversion function,
// such as a baseline-scan count exceeding the series length or a
// non-positive equilibrium magnetization estimate. Fits that hit it are
// recorded as failed; the error never crosses a public contract unwrapped.
var ErrDomain = errors.New("kinetics: domain error")

// Constants holds the physical acquisition constants shared by every model
// in a catalog. They describe the SPGR sequence the signal curves were
// acquired with.
type Constants struct {
	// TR is the repetition time of the dynamic SPGR sequence in seconds.
	TR float64

	// FA is the flip angle in degrees.
	FA float64

	// Relaxivity is the longitudinal relaxivity r1 of the contrast agent
	// in Hz/mM.
	Relaxivity float64

	// R10 is the precontrast longitudinal relaxation rate in Hz.
	R10 float64

	// BaselineScans is the number of scans acquired before the contrast
	// agent reaches the tissue. The mean over these samples estimates the
	// equilibrium magnetization.
	BaselineScans int
}

// Validate checks that the constants describe a physically meaningful
// acquisition.
func (c Constants) Validate() error {
	switch {
	case c.TR <= 0:
		return fmt.Errorf("%w: repetition time TR must be positive, got %g", ErrDomain, c.TR)
	case c.Relaxivity <= 0:
		return fmt.Errorf("%w: relaxivity r1 must be positive, got %g", ErrDomain, c.Relaxivity)
	case c.BaselineScans < 1:
		return fmt.Errorf("%w: baseline scan count must be at least 1, got %d", ErrDomain, c.BaselineScans)
	}
	return nil
}

// spgrRelative evaluates the steady-state SPGR signal equation
// (1-E)/(1-cos(FA)*E) with E = exp(-TR*R1). The sin(FA)*M0 amplitude
// cancels on the baseline-normalised scale the engine works on.
func spgrRelative(c Constants, r1 float64) float64 {
	E := math.Exp(-c.TR * r1)
	cosFA := math.Cos(c.FA * math.Pi / 180)
	return (1 - E) / (1 - cosFA*E)
}

// SignalToConcentration converts a baseline-referenced MR signal series to
// tracer concentration.
//
// The equilibrium magnetization is estimated from the mean of the first
// BaselineScans samples; the series is normalised by it, the SPGR signal
// equation is inverted for the relaxation rate R1, and concentration
// follows from (R1 - R10)/r1.
//
// Fails with ErrDomain when the baseline-scan count exceeds the series
// length or when the equilibrium magnetization estimate is non-positive.
func SignalToConcentration(signal []float64, c Constants) ([]float64, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	if c.BaselineScans > len(signal) {
		return nil, fmt.Errorf("%w: baseline scan count %d exceeds series length %d",
			ErrDomain, c.BaselineScans, len(signal))
	}

	base := mean(signal[:c.BaselineScans])
	if base <= 0 {
		return nil, fmt.Errorf("%w: non-positive equilibrium magnetization estimate %g", ErrDomain, base)
	}

	cosFA := math.Cos(c.FA * math.Pi / 180)
	g0 := spgrRelative(c, c.R10)

	conc := make([]float64, len(signal))
	for i, s := range signal {
		// Signal relative to baseline, then back onto the absolute
		// (1-E)/(1-c*E) scale.
		y := (s / base) * g0

		// Invert the signal equation for E. The signal saturates as
		// R1 grows, so y is clamped just below the asymptote to keep
		// the inversion finite for noisy samples.
		y = clamp(y, -maxRelativeSignal, maxRelativeSignal)
		E := (1 - y) / (1 - cosFA*y)
		if E < minExp {
			E = minExp
		}

		r1 := -math.Log(E) / c.TR
		conc[i] = (r1 - c.R10) / c.Relaxivity
	}

	return conc, nil
}

// ConcentrationToSignal is the forward transform: it maps a tracer
// concentration series to the SPGR signal it would produce, on the
// baseline-normalised scale (zero concentration maps to signal 1).
//
// Together with SignalToConcentration it satisfies the round-trip identity
// ConcentrationToSignal(SignalToConcentration(s)) == s up to floating-point
// tolerance for any series on that scale.
func ConcentrationToSignal(conc []float64, c Constants) ([]float64, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}

	g0 := spgrRelative(c, c.R10)

	signal := make([]float64, len(conc))
	for i, ct := range conc {
		r1 := c.R10 + c.Relaxivity*ct
		signal[i] = spgrRelative(c, r1) / g0
	}

	return signal, nil
}

const (
	// maxRelativeSignal bounds the normalised signal away from the SPGR
	// saturation asymptote during inversion.
	maxRelativeSignal = 1 - 1e-9

	// minExp keeps exp(-TR*R1) positive under inversion of extreme samples.
	minExp = 1e-12
)
