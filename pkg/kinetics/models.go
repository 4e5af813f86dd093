package kinetics

import (
	"math"
	"sort"
)

// Inlet is the number of input-function series a model consumes.
type Inlet int

const (
	// SingleInlet models are driven by the arterial input function alone.
	SingleInlet Inlet = iota + 1

	// DualInlet models combine arterial and venous input contributions.
	DualInlet
)

// String returns the catalog spelling of the inlet type.
func (in Inlet) String() string {
	if in == DualInlet {
		return "dual"
	}
	return "single"
}

// ModelFunc predicts a tissue concentration series from the time points,
// the input-function concentration series and the model parameter vector.
// vif is nil for single-inlet models.
//
// Implementations must be pure, defined at t=0, and tolerant of parameter
// values outside the declared constraint range: the optimizer evaluates at
// transiently infeasible points, so functions clamp internally instead of
// failing.
type ModelFunc func(t, aif, vif []float64, p []float64, c Constants) []float64

// ModelInfo describes a registered model function: its implementation, the
// inlet arity it requires and the number of parameters it takes. The
// catalog validates model entries against this at load time, so a name or
// arity mismatch is caught once instead of on every call.
type ModelInfo struct {
	Fn        ModelFunc
	Inlet     Inlet
	NumParams int
}

// registry maps catalog function names to their implementations. The set
// is fixed at compile time; the catalog selects from it by name.
var registry = map[string]ModelInfo{
	"DualInletTwoCompartmentFiltration": {
		Fn:        dualInletTwoCompartmentFiltration,
		Inlet:     DualInlet,
		NumParams: 5,
	},
	"HighFlowDualInletGadoxetate": {
		Fn:        highFlowDualInletGadoxetate,
		Inlet:     DualInlet,
		NumParams: 4,
	},
	"HighFlowSingleInletGadoxetate": {
		Fn:        highFlowSingleInletGadoxetate,
		Inlet:     SingleInlet,
		NumParams: 3,
	},
	"HighFlowSingleInletGadoxetateFixedVe": {
		Fn:        highFlowSingleInletGadoxetateFixedVe,
		Inlet:     SingleInlet,
		NumParams: 2,
	},
}

// Lookup resolves a catalog function name to its registered model.
func Lookup(name string) (ModelInfo, bool) {
	info, ok := registry[name]
	return info, ok
}

// FunctionNames returns the registered function names in sorted order.
func FunctionNames() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Guard values used when clamping transiently infeasible parameters. Volume
// fractions stay strictly inside (0,1) and rate constants strictly positive
// so the compartment transit times remain finite.
const (
	minFraction = 1e-4
	maxFraction = 1 - 1e-4
	minRate     = 1e-4
)

// dualInletTwoCompartmentFiltration implements the dual-input
// two-compartment filtration model (2-2CFM).
//
// Parameters: fa (arterial flow fraction), Ve (extracellular volume
// fraction), Fp (total plasma inflow), Khe (hepatocyte uptake rate),
// Kbh (biliary efflux rate).
//
// The combined inlet concentration Fp*(fa*ca + (1-fa)*cv) passes through a
// biexponential extracellular impulse response with time constants derived
// from the extracellular and hepatocyte transit times, followed by
// hepatocyte uptake.
func dualInletTwoCompartmentFiltration(t, aif, vif []float64, p []float64, c Constants) []float64 {
	fa := clamp(p[0], 0, 1)
	ve := clamp(p[1], minFraction, maxFraction)
	fp := max(p[2], minRate)
	khe := max(p[3], minRate)
	kbh := max(p[4], minRate)

	fv := 1 - fa
	combined := make([]float64, len(t))
	for i := range combined {
		combined[i] = fp * (fa*aif[i] + fv*vif[i])
	}

	th := (1 - ve) / kbh
	te := ve / (fp + khe)

	alpha := sqrtPos(square((1/te+1/th)/2) - 1/(te*th))
	beta := (1/th - 1/te) / 2
	gamma := (1/th + 1/te) / 2

	tc1 := 1 / (gamma - alpha)
	tc2 := 1 / (gamma + alpha)

	conv1 := ExpConv(tc1, t, combined)
	conv2 := ExpConv(tc2, t, combined)

	ce := make([]float64, len(t))
	for i := range ce {
		ce[i] = (1 / (2 * ve)) * ((1+beta/alpha)*tc1*conv1[i] + (1-beta/alpha)*tc2*conv2[i])
	}

	convH := ExpConv(th, t, ce)
	out := make([]float64, len(t))
	for i := range out {
		out[i] = ve*ce[i] + khe*th*convH[i]
	}
	return out
}

// highFlowDualInletGadoxetate implements the high-flow dual-inlet
// two-compartment gadoxetate model (HF2-2CFM): in the high-flow limit the
// extracellular space equilibrates instantly with the combined inlet.
//
// Parameters: fa, Ve, Khe, Kbh.
func highFlowDualInletGadoxetate(t, aif, vif []float64, p []float64, c Constants) []float64 {
	fa := clamp(p[0], 0, 1)
	ve := clamp(p[1], minFraction, maxFraction)
	khe := max(p[2], minRate)
	kbh := max(p[3], minRate)

	fv := 1 - fa
	combined := make([]float64, len(t))
	for i := range combined {
		combined[i] = fa*aif[i] + fv*vif[i]
	}

	return highFlowResponse(t, combined, ve, khe, kbh)
}

// highFlowSingleInletGadoxetate implements the high-flow single-inlet
// two-compartment gadoxetate model (HF1-2CFM).
//
// Parameters: Ve, Khe, Kbh.
func highFlowSingleInletGadoxetate(t, aif, _ []float64, p []float64, c Constants) []float64 {
	ve := clamp(p[0], minFraction, maxFraction)
	khe := max(p[1], minRate)
	kbh := max(p[2], minRate)

	return highFlowResponse(t, aif, ve, khe, kbh)
}

// highFlowSingleInletGadoxetateFixedVe is the HF1-2CFM variant with the
// extracellular volume fraction fixed to zero contribution, leaving only
// the hepatocyte compartment.
//
// Parameters: Khe, Kbh.
func highFlowSingleInletGadoxetateFixedVe(t, aif, _ []float64, p []float64, c Constants) []float64 {
	khe := max(p[0], minRate)
	kbh := max(p[1], minRate)

	tc := 1 / kbh
	conv := ExpConv(tc, t, aif)

	out := make([]float64, len(t))
	for i := range out {
		out[i] = khe * tc * conv[i]
	}
	return out
}

// highFlowResponse is the shared high-flow limit: the extracellular
// concentration equals the inlet, and hepatocytes accumulate it through an
// exponential impulse response with transit time (1-Ve)/Kbh.
func highFlowResponse(t, inlet []float64, ve, khe, kbh float64) []float64 {
	th := (1 - ve) / kbh
	conv := ExpConv(th, t, inlet)

	out := make([]float64, len(t))
	for i := range out {
		out[i] = ve*inlet[i] + khe*th*conv[i]
	}
	return out
}

func square(x float64) float64 { return x * x }

// sqrtPos guards the biexponential discriminant against tiny negative
// values from cancellation at near-degenerate transit times.
func sqrtPos(x float64) float64 {
	if x <= 0 {
		return minRate
	}
	return math.Sqrt(x)
}
