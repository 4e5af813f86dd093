package session

import (
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"kineticfit/pkg/catalog"
	"kineticfit/pkg/fitting"
	"kineticfit/pkg/kinetics"
)

const sessionCatalog = `
constants:
  - {name: TR, value: "0.0037"}
  - {name: FA, value: "15"}
  - {name: r1, value: "5.5"}
  - {name: R10, value: "1.0"}
  - {name: baseline, value: "3"}
models:
  - id: HF1-2CFM
    name: {short: HF1-2CFM, long: High-Flow Single-Inlet Gadoxetate}
    function: HighFlowSingleInletGadoxetate
    inlet: single
    parameters:
      - name: {short: Ve}
        default: 0.1
        constraints: {lower: 0.001, upper: 0.999}
      - name: {short: Khe}
        default: 0.02
        constraints: {lower: 0.0001, upper: 100}
      - name: {short: Kbh}
        default: 0.01
        constraints: {lower: 0.0001, upper: 100}
`

func newTestSession(t *testing.T) *Session {
	t.Helper()
	cat, err := catalog.Parse([]byte(sessionCatalog))
	if err != nil {
		t.Fatal(err)
	}
	return New(cat)
}

// writeDataFile writes a fittable synthetic data file and returns its path.
func writeDataFile(t *testing.T, s *Session) string {
	t.Helper()
	consts, err := s.Catalog().Constants.Constants()
	if err != nil {
		t.Fatal(err)
	}

	n := 60
	tt := make([]float64, n)
	aifConc := make([]float64, n)
	for i := range tt {
		tt[i] = float64(i) * 0.125
		if i >= consts.BaselineScans {
			x := tt[i] - tt[consts.BaselineScans]
			aifConc[i] = 4 * x * math.Exp(-x/0.4)
		}
	}
	info, _ := kinetics.Lookup("HighFlowSingleInletGadoxetate")
	roiConc := info.Fn(tt, aifConc, nil, []float64{0.25, 0.08, 0.03}, consts)

	aif, err := kinetics.ConcentrationToSignal(aifConc, consts)
	if err != nil {
		t.Fatal(err)
	}
	roi, err := kinetics.ConcentrationToSignal(roiConc, consts)
	if err != nil {
		t.Fatal(err)
	}

	var b strings.Builder
	b.WriteString("Time (s),Liver,Aorta\n")
	for i := range tt {
		fmt.Fprintf(&b, "%g,%g,%g\n", tt[i]*60, roi[i], aif[i])
	}

	path := filepath.Join(t.TempDir(), "patient1.csv")
	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

// TestSessionWorkflow drives a full interactive sequence: load data,
// select everything, fit, edit a parameter, export.
func TestSessionWorkflow(t *testing.T) {
	s := newTestSession(t)
	path := writeDataFile(t, s)

	set, err := s.LoadData(path)
	if err != nil {
		t.Fatalf("LoadData failed: %v", err)
	}
	if got := set.Names(); len(got) != 2 {
		t.Fatalf("Names = %v", got)
	}

	if _, err := s.SelectModel("HF1-2CFM"); err != nil {
		t.Fatalf("SelectModel failed: %v", err)
	}
	if err := s.SelectROI("Liver"); err != nil {
		t.Fatalf("SelectROI failed: %v", err)
	}
	if err := s.SelectAIF("Aorta"); err != nil {
		t.Fatalf("SelectAIF failed: %v", err)
	}

	result, err := s.Fit(nil)
	if err != nil {
		t.Fatalf("Fit failed: %v", err)
	}
	if math.Abs(result.Params[0]-0.25) > 1e-3 {
		t.Errorf("Ve = %g, want 0.25", result.Params[0])
	}
	if s.Result() != result {
		t.Errorf("Result does not return the last fit")
	}
	if result.Status != fitting.CIAvailable {
		t.Fatalf("intervals unavailable: %s", result.Status)
	}

	if err := s.SetParameter(0, 0.5); err != nil {
		t.Fatalf("SetParameter failed: %v", err)
	}
	if result.Intervals != nil {
		t.Errorf("intervals survived a manual edit")
	}
	if result.Params[0] != 0.5 {
		t.Errorf("Ve = %g after edit, want 0.5", result.Params[0])
	}

	out := t.TempDir()
	if err := s.WritePlotData(out); err != nil {
		t.Fatalf("WritePlotData failed: %v", err)
	}
	if _, err := os.Stat(filepath.Join(out, "plotdata", "patient1_fit.csv")); err != nil {
		t.Errorf("curve export not written: %v", err)
	}
}

// TestSessionSelectionGuards checks the incomplete-selection errors.
func TestSessionSelectionGuards(t *testing.T) {
	s := newTestSession(t)

	if err := s.SelectROI("Liver"); !errors.Is(err, ErrNoSelection) {
		t.Errorf("ROI selection without data: %v", err)
	}
	if _, err := s.Fit(nil); !errors.Is(err, ErrNoSelection) {
		t.Errorf("Fit without data: %v", err)
	}
	if err := s.SetParameter(0, 1); !errors.Is(err, ErrNoSelection) {
		t.Errorf("SetParameter without fit: %v", err)
	}
	if err := s.WritePlotData(t.TempDir()); !errors.Is(err, ErrNoSelection) {
		t.Errorf("WritePlotData without fit: %v", err)
	}

	path := writeDataFile(t, s)
	if _, err := s.LoadData(path); err != nil {
		t.Fatal(err)
	}
	if err := s.SelectROI("Spleen"); err == nil {
		t.Errorf("selection of missing column succeeded")
	}
	if _, err := s.SelectModel("NoSuchModel"); err == nil {
		t.Errorf("selection of missing model succeeded")
	}
	if _, err := s.Fit(nil); !errors.Is(err, ErrNoSelection) {
		t.Errorf("Fit without full selection: %v", err)
	}
}

// TestSessionReloadClearsStaleSelections checks that loading a new file
// clears selections naming columns the file does not have.
func TestSessionReloadClearsStaleSelections(t *testing.T) {
	s := newTestSession(t)
	path := writeDataFile(t, s)

	if _, err := s.LoadData(path); err != nil {
		t.Fatal(err)
	}
	if _, err := s.SelectModel("HF1-2CFM"); err != nil {
		t.Fatal(err)
	}
	if err := s.SelectROI("Liver"); err != nil {
		t.Fatal(err)
	}
	if err := s.SelectAIF("Aorta"); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Fit(nil); err != nil {
		t.Fatal(err)
	}

	other := filepath.Join(t.TempDir(), "other.csv")
	if err := os.WriteFile(other,
		[]byte("Time,Spleen,Aorta\n0,1,1\n30,1,1\n60,1,1\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := s.LoadData(other); err != nil {
		t.Fatal(err)
	}

	if s.Result() != nil {
		t.Errorf("fit survived a data reload")
	}
	if _, err := s.Fit(nil); !errors.Is(err, ErrNoSelection) {
		t.Errorf("stale ROI selection survived the reload: %v", err)
	}
}
