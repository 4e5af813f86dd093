// Package session coordinates one interactive analysis: the loaded
// catalog, the current data file, the model and curve selections, and the
// most recent fit. It is the surface a front end (CLI or GUI) drives; the
// packages below it stay stateless.
package session

import (
	"errors"
	"fmt"
	"path/filepath"

	"kineticfit/pkg/batch"
	"kineticfit/pkg/catalog"
	"kineticfit/pkg/fitting"
	"kineticfit/pkg/kinetics"
	"kineticfit/pkg/series"
)

// ErrNoSelection reports an operation that needs a selection the user has
// not made yet.
var ErrNoSelection = errors.New("session: incomplete selection")

// Session is one interactive analysis. Not safe for concurrent use; a
// front end drives it from a single goroutine.
type Session struct {
	catalog *catalog.Catalog

	data *series.TimeSeriesSet

	model         *catalog.ModelDescriptor
	roi, aif, vif string

	result *fitting.FitResult
}

// New creates a session over a loaded catalog.
func New(cat *catalog.Catalog) *Session {
	return &Session{catalog: cat}
}

// Catalog returns the session's model catalog.
func (s *Session) Catalog() *catalog.Catalog { return s.catalog }

// LoadData loads a data file into the session. Selections that name a
// column absent from the new file are cleared; the model selection and any
// previous fit are kept or dropped accordingly.
func (s *Session) LoadData(path string) (*series.TimeSeriesSet, error) {
	set, err := series.Load(path)
	if err != nil {
		return nil, err
	}
	s.data = set
	s.result = nil
	if s.roi != "" && !set.Has(s.roi) {
		s.roi = ""
	}
	if s.aif != "" && !set.Has(s.aif) {
		s.aif = ""
	}
	if s.vif != "" && !set.Has(s.vif) {
		s.vif = ""
	}
	return set, nil
}

// Data returns the currently loaded data set, or nil.
func (s *Session) Data() *series.TimeSeriesSet { return s.data }

// SelectModel selects the model to fit. Changing the model drops the
// previous fit.
func (s *Session) SelectModel(id string) (*catalog.ModelDescriptor, error) {
	m, err := s.catalog.Model(id)
	if err != nil {
		return nil, err
	}
	s.model = m
	s.result = nil
	return m, nil
}

// SelectROI selects the region-of-interest column to fit.
func (s *Session) SelectROI(name string) error { return s.selectColumn(&s.roi, name) }

// SelectAIF selects the arterial input-function column.
func (s *Session) SelectAIF(name string) error { return s.selectColumn(&s.aif, name) }

// SelectVIF selects the venous input-function column.
func (s *Session) SelectVIF(name string) error { return s.selectColumn(&s.vif, name) }

func (s *Session) selectColumn(dst *string, name string) error {
	if s.data == nil {
		return fmt.Errorf("%w: no data file loaded", ErrNoSelection)
	}
	if !s.data.Has(name) {
		return fmt.Errorf("session: no column %q in %s", name, s.data.Source)
	}
	*dst = name
	s.result = nil
	return nil
}

// Fit runs the selected model against the selected curves, starting from
// the given parameter vector (nil selects the model defaults). The result
// is retained as the session's current fit.
func (s *Session) Fit(initial []float64) (*fitting.FitResult, error) {
	req, err := s.request(initial)
	if err != nil {
		return nil, err
	}
	result, err := fitting.Fit(req)
	if err != nil {
		return nil, err
	}
	s.result = result
	return result, nil
}

// Result returns the current fit, or nil when none has run.
func (s *Session) Result() *fitting.FitResult { return s.result }

// SetParameter overrides one parameter of the current fit and recomputes
// the predicted curve. The fit's confidence intervals are dropped.
func (s *Session) SetParameter(i int, v float64) error {
	if s.result == nil {
		return fmt.Errorf("%w: no fit to edit", ErrNoSelection)
	}
	req, err := s.request(nil)
	if err != nil {
		return err
	}

	aifConc, err := kinetics.SignalToConcentration(req.AIF, req.Constants)
	if err != nil {
		return err
	}
	var vifConc []float64
	if req.VIF != nil {
		if vifConc, err = kinetics.SignalToConcentration(req.VIF, req.Constants); err != nil {
			return err
		}
	}
	return s.result.SetParameter(i, v, req.Time, aifConc, vifConc, req.Constants)
}

// WritePlotData exports the current curves and fit to a CSV under dir, in
// the same layout the batch runner produces. All columns are on the
// concentration scale the fit compared.
func (s *Session) WritePlotData(dir string) error {
	if s.result == nil {
		return fmt.Errorf("%w: no fit to export", ErrNoSelection)
	}
	req, err := s.request(nil)
	if err != nil {
		return err
	}

	roiConc, err := kinetics.SignalToConcentration(req.ROI, req.Constants)
	if err != nil {
		return err
	}
	aifConc, err := kinetics.SignalToConcentration(req.AIF, req.Constants)
	if err != nil {
		return err
	}
	var vifConc []float64
	if req.VIF != nil {
		if vifConc, err = kinetics.SignalToConcentration(req.VIF, req.Constants); err != nil {
			return err
		}
	}

	_, err = batch.WriteCurves(dir, filepath.Base(s.data.Source), req.Time, roiConc, aifConc, vifConc, s.result.Predicted)
	return err
}

// request assembles a fitting request from the current selections.
func (s *Session) request(initial []float64) (*fitting.Request, error) {
	if s.data == nil {
		return nil, fmt.Errorf("%w: no data file loaded", ErrNoSelection)
	}
	if s.model == nil {
		return nil, fmt.Errorf("%w: no model selected", ErrNoSelection)
	}
	if s.roi == "" || s.aif == "" {
		return nil, fmt.Errorf("%w: region and arterial input columns must be selected", ErrNoSelection)
	}
	if s.model.Inlet == kinetics.DualInlet && s.vif == "" {
		return nil, fmt.Errorf("%w: model %q needs a venous input column", ErrNoSelection, s.model.ID)
	}

	consts, err := s.catalog.Constants.Constants()
	if err != nil {
		return nil, err
	}

	roi, _ := s.data.Column(s.roi)
	aif, _ := s.data.Column(s.aif)
	var vif []float64
	if s.model.Inlet == kinetics.DualInlet {
		vif, _ = s.data.Column(s.vif)
	}

	return &fitting.Request{
		Model:     s.model,
		Time:      s.data.Time,
		ROI:       roi,
		AIF:       aif,
		VIF:       vif,
		Initial:   initial,
		Constants: consts,
	}, nil
}
