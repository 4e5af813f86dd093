// Package catalog provides loading and validation of the declarative model
// catalog document. The catalog describes the tracer-kinetic models offered
// to the user: their display names, the computation function implementing
// them, the inlet arity, the parameter set with defaults and fit
// constraints, and the acquisition constants shared by every model.
package catalog

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"kineticfit/pkg/kinetics"
)

// Load failures. A catalog that fails to load is fatal to application
// start: without it there is no usable model selection. Each error is
// wrapped with the offending constant, model or parameter name.
var (
	ErrDuplicateConstant     = errors.New("catalog: duplicate constant")
	ErrMalformedConstant     = errors.New("catalog: malformed constant value")
	ErrUnknownFunction       = errors.New("catalog: unknown model function")
	ErrInvalidInlet          = errors.New("catalog: missing or invalid inlet type")
	ErrInvalidParameterRange = errors.New("catalog: invalid parameter range")
	ErrNoParameters          = errors.New("catalog: model has no parameters")
	ErrParameterCount        = errors.New("catalog: parameter count does not match model function")
	ErrMissingConstant       = errors.New("catalog: missing required constant")
)

// ParameterSpec describes one model parameter: how it is displayed and the
// box constraint the fitting engine applies to it.
type ParameterSpec struct {
	// ShortName and LongName are the display names, e.g. "Khe" and
	// "Hepatocyte Uptake Rate".
	ShortName string
	LongName  string

	// Units is the display unit label, e.g. "mL/min/mL".
	Units string

	// Default is the initial value offered to the user and used as the
	// starting point for fitting.
	Default float64

	// Step is the spin-box increment and Precision the number of decimal
	// places shown. Both are pass-through display metadata.
	Step      float64
	Precision int

	// DisplayMin and DisplayMax bound the displayed value range.
	DisplayMin float64
	DisplayMax float64

	// Lower and Upper are the fit constraint range. The optimizer never
	// reports a value outside [Lower, Upper].
	Lower float64
	Upper float64
}

// ModelDescriptor describes one tracer-kinetic model entry in the catalog.
type ModelDescriptor struct {
	// ID is the short identifier used to select the model, e.g. "HF1-2CFM".
	ID string

	// ShortName and LongName are the display names.
	ShortName string
	LongName  string

	// Function names the registered computation function in the kinetics
	// package. Resolution is checked at load time.
	Function string

	// Image names the schematic image for the model. Pass-through to the
	// GUI; the core never reads it.
	Image string

	// Inlet is the input-function arity the model requires.
	Inlet kinetics.Inlet

	// Parameters holds at least one ParameterSpec, in the order the model
	// function consumes them.
	Parameters []ParameterSpec
}

// Compute resolves the descriptor's registered model function.
func (m *ModelDescriptor) Compute() kinetics.ModelFunc {
	info, _ := kinetics.Lookup(m.Function)
	return info.Fn
}

// Defaults returns the default parameter vector.
func (m *ModelDescriptor) Defaults() []float64 {
	p := make([]float64, len(m.Parameters))
	for i, spec := range m.Parameters {
		p[i] = spec.Default
	}
	return p
}

// Bounds returns the per-parameter fit constraint ranges as parallel
// lower/upper slices.
func (m *ModelDescriptor) Bounds() (lower, upper []float64) {
	lower = make([]float64, len(m.Parameters))
	upper = make([]float64, len(m.Parameters))
	for i, spec := range m.Parameters {
		lower[i] = spec.Lower
		upper[i] = spec.Upper
	}
	return lower, upper
}

// ConstantSet maps constant names to their numeric values. It is shared
// across all models in a catalog and immutable after load.
type ConstantSet map[string]float64

// Value returns the named constant.
func (s ConstantSet) Value(name string) (float64, error) {
	v, ok := s[name]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrMissingConstant, name)
	}
	return v, nil
}

// Constants assembles the typed acquisition constants the kinetics package
// consumes. The required names are TR, FA, r1, R10 and baseline.
func (s ConstantSet) Constants() (kinetics.Constants, error) {
	var c kinetics.Constants
	var err error

	if c.TR, err = s.Value("TR"); err != nil {
		return c, err
	}
	if c.FA, err = s.Value("FA"); err != nil {
		return c, err
	}
	if c.Relaxivity, err = s.Value("r1"); err != nil {
		return c, err
	}
	if c.R10, err = s.Value("R10"); err != nil {
		return c, err
	}
	baseline, err := s.Value("baseline")
	if err != nil {
		return c, err
	}
	c.BaselineScans = int(baseline)

	return c, c.Validate()
}

// Catalog is the immutable result of loading a model catalog document.
type Catalog struct {
	// DataFolder is the default folder offered when opening data files.
	// Optional pass-through metadata.
	DataFolder string

	// YAxisLabel is the plot axis label. Optional pass-through metadata.
	YAxisLabel string

	// Constants holds the acquisition constants shared by all models.
	Constants ConstantSet

	// Models lists the model descriptors in document order.
	Models []ModelDescriptor
}

// Model returns the descriptor with the given ID.
func (c *Catalog) Model(id string) (*ModelDescriptor, error) {
	for i := range c.Models {
		if c.Models[i].ID == id {
			return &c.Models[i], nil
		}
	}
	return nil, fmt.Errorf("catalog: no model with id %q", id)
}

// ModelIDs returns the model identifiers in document order, for display in
// a selection list.
func (c *Catalog) ModelIDs() []string {
	ids := make([]string, len(c.Models))
	for i := range c.Models {
		ids[i] = c.Models[i].ID
	}
	return ids
}

// document mirrors the YAML structure of the catalog file. Values are
// decoded loosely here and validated into the exported types by Parse.
type document struct {
	DataFolder string `yaml:"dataFolder"`
	Plot       struct {
		YAxisLabel string `yaml:"yAxisLabel"`
	} `yaml:"plot"`
	Constants []struct {
		Name  string `yaml:"name"`
		Value string `yaml:"value"`
	} `yaml:"constants"`
	Models []struct {
		ID   string `yaml:"id"`
		Name struct {
			Short string `yaml:"short"`
			Long  string `yaml:"long"`
		} `yaml:"name"`
		Function   string `yaml:"function"`
		Image      string `yaml:"image"`
		Inlet      string `yaml:"inlet"`
		Parameters []struct {
			Name struct {
				Short string `yaml:"short"`
				Long  string `yaml:"long"`
			} `yaml:"name"`
			Units     string   `yaml:"units"`
			Default   float64  `yaml:"default"`
			Step      float64  `yaml:"step"`
			Precision int      `yaml:"precision"`
			Display   struct {
				Min float64 `yaml:"min"`
				Max float64 `yaml:"max"`
			} `yaml:"display"`
			Constraints *struct {
				Lower float64 `yaml:"lower"`
				Upper float64 `yaml:"upper"`
			} `yaml:"constraints"`
		} `yaml:"parameters"`
	} `yaml:"models"`
}

// LoadFile loads and validates the catalog document at path.
func LoadFile(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("catalog: reading %s: %w", path, err)
	}
	c, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("catalog: parsing %s: %w", path, err)
	}
	return c, nil
}

// Parse parses and validates a catalog document.
//
// Optional elements (data folder, plot metadata) may be absent. Mandatory
// elements (constants, inlet arity, parameter constraint ranges) fail the
// load with a specific error when missing or malformed. Model entries are
// checked against the kinetics registry so that an unknown function or an
// arity mismatch is a load-time error rather than a fitting-time surprise.
func Parse(data []byte) (*Catalog, error) {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("catalog: %w", err)
	}

	cat := &Catalog{
		DataFolder: doc.DataFolder,
		YAxisLabel: doc.Plot.YAxisLabel,
		Constants:  make(ConstantSet, len(doc.Constants)),
	}

	for _, entry := range doc.Constants {
		if _, dup := cat.Constants[entry.Name]; dup {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateConstant, entry.Name)
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(entry.Value), 64)
		if err != nil {
			return nil, fmt.Errorf("%w: %q = %q", ErrMalformedConstant, entry.Name, entry.Value)
		}
		cat.Constants[entry.Name] = v
	}

	for _, m := range doc.Models {
		info, ok := kinetics.Lookup(m.Function)
		if !ok {
			return nil, fmt.Errorf("%w: model %q references %q", ErrUnknownFunction, m.ID, m.Function)
		}

		var inlet kinetics.Inlet
		switch strings.ToLower(strings.TrimSpace(m.Inlet)) {
		case "single":
			inlet = kinetics.SingleInlet
		case "dual":
			inlet = kinetics.DualInlet
		default:
			return nil, fmt.Errorf("%w: model %q has inlet %q", ErrInvalidInlet, m.ID, m.Inlet)
		}
		if inlet != info.Inlet {
			return nil, fmt.Errorf("%w: model %q declares %s but %q is %s",
				ErrInvalidInlet, m.ID, inlet, m.Function, info.Inlet)
		}

		if len(m.Parameters) == 0 {
			return nil, fmt.Errorf("%w: model %q", ErrNoParameters, m.ID)
		}
		if len(m.Parameters) != info.NumParams {
			return nil, fmt.Errorf("%w: model %q has %d, function %q takes %d",
				ErrParameterCount, m.ID, len(m.Parameters), m.Function, info.NumParams)
		}

		desc := ModelDescriptor{
			ID:        m.ID,
			ShortName: m.Name.Short,
			LongName:  m.Name.Long,
			Function:  m.Function,
			Image:     m.Image,
			Inlet:     inlet,
		}
		if desc.ShortName == "" {
			desc.ShortName = m.ID
		}

		for _, p := range m.Parameters {
			if p.Constraints == nil {
				return nil, fmt.Errorf("%w: model %q parameter %q has no constraint range",
					ErrInvalidParameterRange, m.ID, p.Name.Short)
			}
			lower, upper := p.Constraints.Lower, p.Constraints.Upper
			if lower > upper {
				return nil, fmt.Errorf("%w: model %q parameter %q has lower %g > upper %g",
					ErrInvalidParameterRange, m.ID, p.Name.Short, lower, upper)
			}
			if p.Default < lower || p.Default > upper {
				return nil, fmt.Errorf("%w: model %q parameter %q default %g outside [%g, %g]",
					ErrInvalidParameterRange, m.ID, p.Name.Short, p.Default, lower, upper)
			}

			desc.Parameters = append(desc.Parameters, ParameterSpec{
				ShortName:  p.Name.Short,
				LongName:   p.Name.Long,
				Units:      p.Units,
				Default:    p.Default,
				Step:       p.Step,
				Precision:  p.Precision,
				DisplayMin: p.Display.Min,
				DisplayMax: p.Display.Max,
				Lower:      lower,
				Upper:      upper,
			})
		}

		cat.Models = append(cat.Models, desc)
	}

	return cat, nil
}
