package series

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// ValidationError reports a data file that failed one of the structural
// checks. The Reason is a short human-readable sentence suitable for batch
// reports and dialog boxes.
type ValidationError struct {
	File   string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("series: %s: %s", e.File, e.Reason)
}

func reject(file, format string, args ...any) error {
	return &ValidationError{File: file, Reason: fmt.Sprintf(format, args...)}
}

// Load reads and validates a CSV data file.
//
// The expected layout is a single header row followed by numeric rows: the
// first column is acquisition time in seconds, every further column is a
// named signal series. Validation short-circuits on the first failure, in
// order:
//
//  1. the file must have at least three columns, which leaves at least two
//     signal columns after the time column,
//  2. the first header cell must contain the word "time" (case-insensitive),
//  3. every data cell must parse as a number,
//  4. time values must be strictly increasing.
//
// Times are converted from seconds to minutes on load; model transit times
// and rate constants are all per-minute quantities. The returned set is
// fully built before being handed back, so a failed load leaves no partial
// state behind.
func Load(path string) (*TimeSeriesSet, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("series: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.TrimLeadingSpace = true
	r.FieldsPerRecord = -1

	rows, err := r.ReadAll()
	if err != nil {
		return nil, reject(path, "not a well-formed CSV file: %v", err)
	}
	if len(rows) < 2 {
		return nil, reject(path, "no data rows below the header")
	}

	header := rows[0]
	if len(header) < 3 {
		return nil, reject(path, "only %d column(s), need a time column and at least 2 data columns", len(header))
	}
	if !strings.Contains(strings.ToLower(header[0]), "time") {
		return nil, reject(path, "first column header %q does not contain 'time'", header[0])
	}

	numeric := make([][]float64, len(rows)-1)
	for i, row := range rows[1:] {
		if len(row) != len(header) {
			return nil, reject(path, "row %d has %d cells, header has %d", i+2, len(row), len(header))
		}
		vals := make([]float64, len(row))
		for j, cell := range row {
			v, err := strconv.ParseFloat(strings.TrimSpace(cell), 64)
			if err != nil {
				return nil, reject(path, "row %d column %q: %q is not a number", i+2, header[j], cell)
			}
			vals[j] = v
		}
		numeric[i] = vals
	}

	for i := 1; i < len(numeric); i++ {
		if numeric[i][0] <= numeric[i-1][0] {
			return nil, reject(path, "time values are not strictly increasing at row %d", i+2)
		}
	}

	set := &TimeSeriesSet{
		Source:  path,
		Time:    make([]float64, len(numeric)),
		names:   make([]string, 0, len(header)-1),
		columns: make(map[string][]float64, len(header)-1),
	}
	for i, vals := range numeric {
		set.Time[i] = vals[0] / 60
	}
	for j := 1; j < len(header); j++ {
		name := strings.TrimSpace(header[j])
		col := make([]float64, len(numeric))
		for i, vals := range numeric {
			col[i] = vals[j]
		}
		set.names = append(set.names, name)
		set.columns[name] = col
	}

	return set, nil
}
