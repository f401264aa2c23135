package optimize

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
)

// Parameter is a variance component optimized in place. Value points
// into the model so that changing it changes the model.
type Parameter struct {
	name  string
	value *float64
	min   float64
}

// NewParameter creates a parameter bound to v with lower bound min.
func NewParameter(name string, v *float64, min float64) *Parameter {
	return &Parameter{name: name, value: v, min: min}
}

func (p *Parameter) Name() string    { return p.name }
func (p *Parameter) Get() float64    { return *p.value }
func (p *Parameter) Set(v float64)   { *p.value = v }
func (p *Parameter) GetMin() float64 { return p.min }

// InRange reports whether the value is finite and above the lower bound.
func (p *Parameter) InRange() bool {
	return p.ValueInRange(*p.value)
}

func (p *Parameter) ValueInRange(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0) && v >= p.min
}

func (p *Parameter) String() string {
	return strconv.FormatFloat(*p.value, 'g', 8, 64)
}

// Parameters is an ordered set of variance components.
type Parameters []*Parameter

func (p Parameters) Names(is []string) (s []string) {
	if is == nil {
		s = make([]string, len(p))
	} else {
		s = is
	}
	for i, par := range p {
		s[i] = par.Name()
	}
	return
}

func (p Parameters) Values(iv []float64) (v []float64) {
	if iv == nil {
		v = make([]float64, len(p))
	} else {
		v = iv
	}
	for i, par := range p {
		v[i] = par.Get()
	}
	return
}

func (p Parameters) SetValues(v []float64) error {
	if len(v) != len(p) {
		return errors.New("incorrect number of parameters")
	}
	for i, par := range p {
		par.Set(v[i])
	}
	return nil
}

func (p Parameters) ValuesInRange(vals []float64) bool {
	if len(vals) != len(p) {
		return false
	}
	for i, par := range p {
		if !par.ValueInRange(vals[i]) {
			return false
		}
	}
	return true
}

func (p Parameters) InRange() bool {
	for _, par := range p {
		if !par.InRange() {
			return false
		}
	}
	return true
}

// Map returns parameter values by name.
func (p Parameters) Map() map[string]float64 {
	m := make(map[string]float64, len(p))
	for _, par := range p {
		m[par.Name()] = par.Get()
	}
	return m
}

// SetMap sets parameter values by name; every parameter must be present.
func (p Parameters) SetMap(m map[string]float64) error {
	for _, par := range p {
		v, ok := m[par.Name()]
		if !ok {
			return fmt.Errorf("parameter %s is missing", par.Name())
		}
		par.Set(v)
	}
	return nil
}

func (p Parameters) NamesString() string {
	return strings.Join(p.Names(nil), "\t")
}

func (p Parameters) ValuesString() string {
	s := make([]string, len(p))
	for i, par := range p {
		s[i] = par.String()
	}
	return strings.Join(s, "\t")
}

// ReadLine sets values from a trajectory line (iteration, likelihood,
// then one column per parameter).
func (p Parameters) ReadLine(l string) error {
	fields := strings.Fields(l)
	if len(fields) != len(p)+2 {
		return fmt.Errorf("trajectory line has %d values, expected %d", len(fields), len(p)+2)
	}
	v := make([]float64, len(fields))
	for i, f := range fields {
		x, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return err
		}
		v[i] = x
	}
	return p.SetValues(v[2:])
}

// ReadFromJSON sets values from a JSON object mapping names to values.
func (p Parameters) ReadFromJSON(fn string) error {
	b, err := os.ReadFile(fn)
	if err != nil {
		return err
	}
	var m map[string]float64
	if err := json.Unmarshal(b, &m); err != nil {
		return err
	}
	return p.SetMap(m)
}
