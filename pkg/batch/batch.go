// Package batch fits one model to every data file in a folder and writes
// the results to disk: a summary CSV with the fitted parameters and their
// confidence intervals, plus a per-file curve export for plotting.
package batch

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"kineticfit/pkg/catalog"
	"kineticfit/pkg/fitting"
	"kineticfit/pkg/kinetics"
	"kineticfit/pkg/series"
)

// Status is the final state a data file reaches in a batch run. Every
// discovered file ends in exactly one of these.
type Status string

const (
	// StatusFitted means the file validated and the fit ran to an
	// exported result.
	StatusFitted Status = "fitted"

	// StatusRejected means the file failed structural validation or is
	// missing a required column; it was skipped before fitting.
	StatusRejected Status = "rejected"

	// StatusFitFailed means the file validated but the fit errored.
	StatusFitFailed Status = "fit failed"
)

// Record is the outcome for one data file.
type Record struct {
	// File is the base name of the data file.
	File string

	Status Status

	// Reason explains a rejection or fit failure. Empty for fitted files.
	Reason string

	// Result is the fit outcome. Nil unless Status is StatusFitted.
	Result *fitting.FitResult

	// PlotPath is the path of the per-file curve export. Empty unless
	// Status is StatusFitted.
	PlotPath string
}

// ProgressFunc is called after each file completes, with the 1-based index
// of the file, the total count, and its record.
type ProgressFunc func(done, total int, rec Record)

// Params configures a batch run.
type Params struct {
	// InputDir is the folder scanned for data files.
	InputDir string

	// Extension filters the scan. Defaults to ".csv".
	Extension string

	// ROIColumn, AIFColumn and VIFColumn name the data columns to use
	// from each file. VIFColumn is required only for dual-inlet models.
	ROIColumn, AIFColumn, VIFColumn string

	// ModelID selects the model from the catalog.
	ModelID string

	// Catalog supplies the model descriptor and acquisition constants.
	Catalog *catalog.Catalog

	// Initial overrides the model's default starting parameters. Nil
	// selects the defaults.
	Initial []float64

	// OutputDir receives the summary CSV and the plotdata subfolder.
	// Defaults to InputDir.
	OutputDir string

	// Progress, when non-nil, is invoked after each file.
	Progress ProgressFunc
}

// Summary is the outcome of a batch run.
type Summary struct {
	// Records holds one entry per discovered file, in scan order.
	Records []Record

	// Fitted, Rejected and Failed count the records by status.
	Fitted, Rejected, Failed int

	// SummaryPath is the path of the written summary CSV. Empty when the
	// run was cancelled before the summary was written.
	SummaryPath string
}

// Run fits the selected model to every matching file under p.InputDir.
//
// Files are processed in sorted name order. A file that fails validation
// or fitting is recorded with its reason and the run moves on; per-file
// problems never abort the batch. Cancellation through ctx is checked
// between files, so an interrupted run returns the records completed so
// far along with ctx.Err().
func Run(ctx context.Context, p *Params) (*Summary, error) {
	model, err := p.Catalog.Model(p.ModelID)
	if err != nil {
		return nil, err
	}
	consts, err := p.Catalog.Constants.Constants()
	if err != nil {
		return nil, err
	}
	if model.Inlet == kinetics.DualInlet && p.VIFColumn == "" {
		return nil, fmt.Errorf("%w: model %q needs a venous input column", fitting.ErrMissingInput, model.ID)
	}

	ext := p.Extension
	if ext == "" {
		ext = ".csv"
	}
	outDir := p.OutputDir
	if outDir == "" {
		outDir = p.InputDir
	}

	files, err := discover(p.InputDir, ext)
	if err != nil {
		return nil, err
	}

	sum := &Summary{}
	for i, path := range files {
		if err := ctx.Err(); err != nil {
			return sum, err
		}

		rec := p.processFile(path, model, consts, outDir)
		sum.Records = append(sum.Records, rec)
		switch rec.Status {
		case StatusFitted:
			sum.Fitted++
		case StatusRejected:
			sum.Rejected++
		case StatusFitFailed:
			sum.Failed++
		}

		if p.Progress != nil {
			p.Progress(i+1, len(files), rec)
		}
	}

	sum.SummaryPath, err = writeSummary(outDir, model, sum.Records)
	if err != nil {
		return sum, err
	}
	return sum, nil
}

// discover lists the matching data files under dir in sorted name order.
func discover(dir, ext string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("batch: scanning %s: %w", dir, err)
	}

	var files []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if strings.EqualFold(filepath.Ext(e.Name()), ext) {
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(files)
	return files, nil
}

// processFile runs one file through validation, fitting and export, and
// reduces whatever happens to a Record.
func (p *Params) processFile(path string, model *catalog.ModelDescriptor, consts kinetics.Constants, outDir string) Record {
	rec := Record{File: filepath.Base(path)}

	set, err := series.Load(path)
	if err != nil {
		rec.Status = StatusRejected
		var verr *series.ValidationError
		if errors.As(err, &verr) {
			rec.Reason = verr.Reason
		} else {
			rec.Reason = err.Error()
		}
		return rec
	}

	required := []string{p.ROIColumn, p.AIFColumn}
	if model.Inlet == kinetics.DualInlet {
		required = append(required, p.VIFColumn)
	}
	for _, name := range required {
		if !set.Has(name) {
			rec.Status = StatusRejected
			rec.Reason = fmt.Sprintf("%s data missing", name)
			return rec
		}
	}

	roi, _ := set.Column(p.ROIColumn)
	aif, _ := set.Column(p.AIFColumn)
	var vif []float64
	if model.Inlet == kinetics.DualInlet {
		vif, _ = set.Column(p.VIFColumn)
	}

	result, err := fitting.Fit(&fitting.Request{
		Model:     model,
		Time:      set.Time,
		ROI:       roi,
		AIF:       aif,
		VIF:       vif,
		Initial:   p.Initial,
		Constants: consts,
	})
	if err != nil {
		rec.Status = StatusFitFailed
		rec.Reason = err.Error()
		return rec
	}
	if !result.Converged {
		rec.Status = StatusFitFailed
		rec.Reason = "fit did not converge"
		return rec
	}

	// Export in the concentration domain the fit compared, so every
	// column shares one scale.
	roiConc, err := kinetics.SignalToConcentration(roi, consts)
	if err != nil {
		rec.Status = StatusFitFailed
		rec.Reason = err.Error()
		return rec
	}
	aifConc, err := kinetics.SignalToConcentration(aif, consts)
	if err != nil {
		rec.Status = StatusFitFailed
		rec.Reason = err.Error()
		return rec
	}
	var vifConc []float64
	if vif != nil {
		if vifConc, err = kinetics.SignalToConcentration(vif, consts); err != nil {
			rec.Status = StatusFitFailed
			rec.Reason = err.Error()
			return rec
		}
	}

	plotPath, err := WriteCurves(outDir, rec.File, set.Time, roiConc, aifConc, vifConc, result.Predicted)
	if err != nil {
		rec.Status = StatusFitFailed
		rec.Reason = err.Error()
		return rec
	}

	rec.Status = StatusFitted
	rec.Result = result
	rec.PlotPath = plotPath
	return rec
}
