package fitting

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"

	"kineticfit/pkg/catalog"
	"kineticfit/pkg/kinetics"
)

// ErrMissingInput reports a fit request whose model needs an input series
// the caller did not provide, e.g. a dual-inlet model without a venous
// curve.
var ErrMissingInput = errors.New("fitting: missing input series")

// CIStatus describes whether confidence intervals accompany a fit result.
type CIStatus string

const (
	// CIAvailable means Intervals is populated.
	CIAvailable CIStatus = "available"

	// CINotConverged means the optimizer hit its iteration cap, so the
	// curvature at the final point does not describe a minimum.
	CINotConverged CIStatus = "optimizer did not converge"

	// CIIllConditioned means the curvature matrix was not invertible.
	CIIllConditioned CIStatus = "curvature matrix is ill-conditioned"

	// CITooFewPoints means there were no spare degrees of freedom.
	CITooFewPoints CIStatus = "too few data points for the parameter count"

	// CIInvalidated means a parameter was edited after the fit, so the
	// intervals no longer describe the current vector.
	CIInvalidated CIStatus = "parameters edited since last fit"
)

// ConfidenceInterval is a two-sided 95% confidence interval for one fitted
// parameter.
type ConfidenceInterval struct {
	Lower float64
	Upper float64
}

// FitResult holds the outcome of fitting one model to one region of
// interest.
type FitResult struct {
	// Model is the fitted model descriptor.
	Model *catalog.ModelDescriptor

	// Params is the fitted parameter vector, in descriptor order.
	Params []float64

	// Intervals holds the 95% confidence intervals, parallel to Params.
	// Nil when intervals are unavailable; Status says why.
	Intervals []ConfidenceInterval

	// Status reports confidence-interval availability.
	Status CIStatus

	// Predicted is the model concentration curve at Params, sampled on
	// the fitted time axis.
	Predicted []float64

	// SSR is the sum of squared residuals of the fit.
	SSR float64

	// Converged reports whether the optimizer met a tolerance before its
	// iteration cap.
	Converged bool
}

// SetParameter replaces one parameter value, recomputes the predicted
// curve, and drops the confidence intervals: after a manual edit the
// intervals no longer describe the vector they were computed for.
func (r *FitResult) SetParameter(i int, v float64, t, aif, vif []float64, c kinetics.Constants) error {
	if i < 0 || i >= len(r.Params) {
		return fmt.Errorf("fitting: parameter index %d out of range [0, %d)", i, len(r.Params))
	}
	r.Params[i] = v
	r.Intervals = nil
	r.Status = CIInvalidated
	r.Predicted = r.Model.Compute()(t, aif, vif, r.Params, c)
	return nil
}

// Request describes one fit: the model, the measured curves on the signal
// scale, and the starting parameter vector.
type Request struct {
	Model *catalog.ModelDescriptor

	// Time is the time axis in minutes.
	Time []float64

	// ROI is the measured tissue signal to fit. AIF is the arterial input
	// signal; VIF the venous input signal, required only by dual-inlet
	// models.
	ROI, AIF, VIF []float64

	// Initial is the starting parameter vector. Nil selects the
	// descriptor defaults.
	Initial []float64

	// Lower and Upper, when non-nil, replace the descriptor's constraint
	// ranges with tighter ones. Both must have one entry per parameter.
	Lower, Upper []float64

	// Constants are the acquisition constants used for the
	// signal-to-concentration conversion.
	Constants kinetics.Constants
}

// Fit estimates the model parameters that best explain the measured region
// signal.
//
// All three signal curves are converted to concentration first, so the
// optimizer works in the domain the model functions predict. Parameters
// are constrained to the descriptor's ranges. Fitting failures (domain
// errors in the conversion, inconsistent inputs) are returned as errors; a
// fit that runs but does not converge is not an error, it is a result with
// Converged false and no intervals.
func Fit(req *Request) (*FitResult, error) {
	m := req.Model
	if len(req.Time) == 0 || len(req.ROI) != len(req.Time) || len(req.AIF) != len(req.Time) {
		return nil, fmt.Errorf("%w: time, region and arterial series must have equal nonzero length", ErrMissingInput)
	}
	if m.Inlet == kinetics.DualInlet && len(req.VIF) != len(req.Time) {
		return nil, fmt.Errorf("%w: model %q needs a venous input series", ErrMissingInput, m.ID)
	}

	roiConc, err := kinetics.SignalToConcentration(req.ROI, req.Constants)
	if err != nil {
		return nil, err
	}
	aifConc, err := kinetics.SignalToConcentration(req.AIF, req.Constants)
	if err != nil {
		return nil, err
	}
	var vifConc []float64
	if m.Inlet == kinetics.DualInlet {
		if vifConc, err = kinetics.SignalToConcentration(req.VIF, req.Constants); err != nil {
			return nil, err
		}
	}

	initial := req.Initial
	if initial == nil {
		initial = m.Defaults()
	}
	if len(initial) != len(m.Parameters) {
		return nil, fmt.Errorf("fitting: model %q takes %d parameters, got %d", m.ID, len(m.Parameters), len(initial))
	}
	lower, upper := m.Bounds()
	if req.Lower != nil {
		lower = req.Lower
	}
	if req.Upper != nil {
		upper = req.Upper
	}

	fn := m.Compute()
	residuals := func(p []float64) []float64 {
		pred := fn(req.Time, aifConc, vifConc, p, req.Constants)
		r := make([]float64, len(pred))
		for i := range r {
			r[i] = pred[i] - roiConc[i]
		}
		return r
	}

	sol, err := Minimize(residuals, initial, lower, upper, Options{})
	if err != nil {
		return nil, err
	}

	result := &FitResult{
		Model:     m,
		Params:    sol.X,
		Predicted: fn(req.Time, aifConc, vifConc, sol.X, req.Constants),
		SSR:       sol.SSR,
		Converged: sol.Converged,
	}
	result.Intervals, result.Status = confidenceIntervals(sol, len(req.Time))
	return result, nil
}

// confidenceIntervals derives 95% intervals from the covariance estimate
// SSR/(n-p) * inv(J'J) at the solution. Unavailability is reported through
// the status, never as an error: a fit without intervals is still a usable
// fit.
func confidenceIntervals(sol *Solution, n int) ([]ConfidenceInterval, CIStatus) {
	if !sol.Converged {
		return nil, CINotConverged
	}

	_, p := sol.Jacobian.Dims()
	dof := n - p
	if dof <= 0 {
		return nil, CITooFewPoints
	}

	var jtj mat.Dense
	jtj.Mul(sol.Jacobian.T(), sol.Jacobian)

	var inv mat.Dense
	if err := inv.Inverse(&jtj); err != nil {
		return nil, CIIllConditioned
	}

	variance := sol.SSR / float64(dof)
	tcrit := distuv.StudentsT{Mu: 0, Sigma: 1, Nu: float64(dof)}.Quantile(0.975)

	intervals := make([]ConfidenceInterval, p)
	for i := range intervals {
		v := variance * inv.At(i, i)
		if v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, CIIllConditioned
		}
		half := tcrit * math.Sqrt(v)
		intervals[i] = ConfidenceInterval{
			Lower: sol.X[i] - half,
			Upper: sol.X[i] + half,
		}
	}
	return intervals, CIAvailable
}
