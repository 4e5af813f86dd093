package batch

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"kineticfit/pkg/catalog"
	"kineticfit/pkg/fitting"
)

// plotDataDir is the subfolder of the output directory that receives the
// per-file curve exports.
const plotDataDir = "plotdata"

// WriteCurves exports the curves for one fitted file: time, the measured
// region and input curves, and the model prediction, one row per time
// point. All curve columns must be on the same scale (the concentration
// domain the fit compared). vif may be nil. The file lands in a plotdata
// subfolder of outDir, named after the source file; the written path is
// returned.
func WriteCurves(outDir, file string, t, roi, aif, vif, fit []float64) (string, error) {
	dir := filepath.Join(outDir, plotDataDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("batch: creating %s: %w", dir, err)
	}

	base := strings.TrimSuffix(file, filepath.Ext(file))
	path := filepath.Join(dir, base+"_fit.csv")
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("batch: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	header := []string{"time (min)", "ROI", "AIF"}
	if vif != nil {
		header = append(header, "VIF")
	}
	header = append(header, "fit")
	if err := w.Write(header); err != nil {
		return "", fmt.Errorf("batch: %w", err)
	}

	for i := range t {
		row := []string{fmtFloat(t[i]), fmtFloat(roi[i]), fmtFloat(aif[i])}
		if vif != nil {
			row = append(row, fmtFloat(vif[i]))
		}
		row = append(row, fmtFloat(fit[i]))
		if err := w.Write(row); err != nil {
			return "", fmt.Errorf("batch: %w", err)
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return "", fmt.Errorf("batch: %w", err)
	}
	return path, f.Close()
}

// writeSummary writes the batch summary CSV: one row per discovered file
// with its status and, for fitted files, each parameter value with its 95%
// confidence bounds. Interval columns carry "n/a" when intervals are
// unavailable for the file.
func writeSummary(outDir string, model *catalog.ModelDescriptor, records []Record) (string, error) {
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return "", fmt.Errorf("batch: creating %s: %w", outDir, err)
	}

	path := filepath.Join(outDir, "batch_summary.csv")
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("batch: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	header := []string{"file", "status", "reason"}
	for _, p := range model.Parameters {
		header = append(header,
			p.ShortName,
			p.ShortName+" 95% lower",
			p.ShortName+" 95% upper",
		)
	}
	if err := w.Write(header); err != nil {
		return "", fmt.Errorf("batch: %w", err)
	}

	for _, rec := range records {
		row := []string{rec.File, string(rec.Status), rec.Reason}
		row = append(row, paramCells(model, rec.Result)...)
		if err := w.Write(row); err != nil {
			return "", fmt.Errorf("batch: %w", err)
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return "", fmt.Errorf("batch: %w", err)
	}
	return path, f.Close()
}

// paramCells renders the parameter columns for one record. Files that
// never reached a result get empty cells so the summary stays rectangular.
func paramCells(model *catalog.ModelDescriptor, result *fitting.FitResult) []string {
	cells := make([]string, 0, 3*len(model.Parameters))
	if result == nil {
		for range model.Parameters {
			cells = append(cells, "", "", "")
		}
		return cells
	}

	for i := range model.Parameters {
		cells = append(cells, fmtFloat(result.Params[i]))
		if result.Intervals != nil {
			cells = append(cells,
				fmtFloat(result.Intervals[i].Lower),
				fmtFloat(result.Intervals[i].Upper),
			)
		} else {
			cells = append(cells, "n/a", "n/a")
		}
	}
	return cells
}

func fmtFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', 8, 64)
}
