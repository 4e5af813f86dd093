// Package series holds the in-memory representation of a loaded dynamic MR
// data file and the CSV loader that builds it.
package series

import "fmt"

// TimeSeriesSet is one loaded data file: a time axis in minutes and one or
// more named signal columns of the same length. Column order follows the
// file header so selection lists match what the user sees in the file.
type TimeSeriesSet struct {
	// Source is the path the set was loaded from.
	Source string

	// Time is the time axis in minutes.
	Time []float64

	names   []string
	columns map[string][]float64
}

// Names returns the signal column names in file order. The time column is
// not included.
func (s *TimeSeriesSet) Names() []string {
	out := make([]string, len(s.names))
	copy(out, s.names)
	return out
}

// Column returns the named signal series.
func (s *TimeSeriesSet) Column(name string) ([]float64, error) {
	col, ok := s.columns[name]
	if !ok {
		return nil, fmt.Errorf("series: no column %q in %s", name, s.Source)
	}
	return col, nil
}

// Has reports whether the named signal column exists.
func (s *TimeSeriesSet) Has(name string) bool {
	_, ok := s.columns[name]
	return ok
}

// Len returns the number of time points.
func (s *TimeSeriesSet) Len() int {
	return len(s.Time)
}
