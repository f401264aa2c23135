// Package bayes holds the Bayesian linear model fitted by the Gibbs
// sampler: intercept, fixed effects, random effects, marker effects
// and the residual, together with their priors.
package bayes

import (
	"sort"

	"github.com/op/go-logging"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/grexlab/grex/dist"
	"github.com/grexlab/grex/errs"
)

var log = logging.MustGetLogger("bayes")

// MonomorphicNorm is the column squared norm below which a marker is
// treated as monomorphic.
const MonomorphicNorm = 1e-10

// Design is a design matrix stored column by column: row j of Cols is
// column j of the n×p design.
type Design struct {
	Names    []string
	Cols     *mat.Dense
	ColsNorm []float64
}

func newDesign(names []string, cols *mat.Dense) *Design {
	p, _ := cols.Dims()
	d := &Design{Names: names, Cols: cols, ColsNorm: make([]float64, p)}
	for j := 0; j < p; j++ {
		c := cols.RawRowView(j)
		d.ColsNorm[j] = floats.Dot(c, c)
	}
	return d
}

// NumCols returns the number of columns.
func (d *Design) NumCols() int {
	p, _ := d.Cols.Dims()
	return p
}

// Col returns column j.
func (d *Design) Col(j int) []float64 {
	return d.Cols.RawRowView(j)
}

// RandomEffect is a block of exchangeable coefficients with a shared
// variance.
type RandomEffect struct {
	Name string
	*Design
	Prior        dist.ScaledInvChiSq
	InitVariance float64
}

// MarkerEffect is a block of SNP effects with an alphabet prior.
type MarkerEffect struct {
	Name string
	*Design
	Alphabet Alphabet
	// Monomorphic columns are skipped by the sampler.
	Monomorphic []bool
	Prior       dist.ScaledInvChiSq
	// Pi are the prior mixture proportions; Pi[0] is the spike.
	Pi []float64
	// Scales are the BayesR variance multipliers γ_k, Scales[0] = 0.
	Scales       []float64
	InitVariance float64
}

// NumComponents returns the number of mixture components.
func (e *MarkerEffect) NumComponents() int {
	switch {
	case e.Alphabet.ScaleMixture:
		return len(e.Scales)
	case e.Alphabet.Spike:
		return 2
	}
	return 1
}

// Residual is the residual term.
type Residual struct {
	Prior        dist.ScaledInvChiSq
	InitVariance float64
}

// Model is y = μ + Xβ + Σ Z_r u_r + Σ M_g a_g + e.
type Model struct {
	IDs      []string
	Y        []float64
	Fixed    *Design
	Random   []*RandomEffect
	Markers  []*MarkerEffect
	Residual Residual
}

// New creates a model. x excludes the intercept and may be nil.
func New(ids []string, y []float64, x *mat.Dense, names []string) (*Model, error) {
	n := len(y)
	if n < 2 {
		return nil, errs.Inconsistentf("%d individuals", n)
	}
	if ids != nil && len(ids) != n {
		return nil, errs.Invalidf("%d IDs for %d phenotypes", len(ids), n)
	}
	m := &Model{IDs: ids, Y: y}
	if x != nil {
		r, c := x.Dims()
		if r != n {
			return nil, errs.Invalidf("design has %d rows for %d phenotypes", r, n)
		}
		if n < c+2 {
			return nil, errs.Inconsistentf("%d individuals for %d fixed effects", n, c+1)
		}
		if c > 0 {
			cols := mat.DenseCopyOf(x.T())
			m.Fixed = newDesign(names, cols)
		}
	}
	return m, nil
}

// N returns the number of individuals.
func (m *Model) N() int {
	return len(m.Y)
}

// AddRandom adds a random effect with one coefficient per group label.
func (m *Model) AddRandom(name string, groups []string) error {
	if len(groups) != m.N() {
		return errs.Invalidf("random effect %s has %d labels for %d individuals", name, len(groups), m.N())
	}
	levels := make(map[string]int)
	var names []string
	for _, g := range groups {
		if _, ok := levels[g]; !ok {
			levels[g] = 0
			names = append(names, g)
		}
	}
	sort.Strings(names)
	for i, l := range names {
		levels[l] = i
	}
	cols := mat.NewDense(len(names), m.N(), nil)
	for i, g := range groups {
		cols.Set(levels[g], i, 1)
	}
	m.Random = append(m.Random, &RandomEffect{Name: name, Design: newDesign(names, cols)})
	return nil
}

// AddMarkers adds a marker term. cols is SNP-major (one row per SNP)
// and is already coded.
func (m *Model) AddMarkers(name string, cols *mat.Dense, snps []string, a Alphabet) error {
	p, n := cols.Dims()
	if n != m.N() {
		return errs.Invalidf("marker term %s has %d individuals, expected %d", name, n, m.N())
	}
	if len(snps) != p {
		return errs.Invalidf("marker term %s has %d names for %d SNPs", name, len(snps), p)
	}
	e := &MarkerEffect{
		Name:        name,
		Design:      newDesign(snps, cols),
		Alphabet:    a,
		Monomorphic: make([]bool, p),
	}
	nmono := 0
	for j, v := range e.ColsNorm {
		if v < MonomorphicNorm {
			e.Monomorphic[j] = true
			nmono++
		}
	}
	if nmono == p {
		return errs.Inconsistentf("marker term %s has only monomorphic SNPs", name)
	}
	if nmono > 0 {
		log.Infof("%s: %d monomorphic SNPs are skipped", name, nmono)
	}
	m.Markers = append(m.Markers, e)
	return nil
}

// PhenotypeVariance returns the sample variance of y.
func (m *Model) PhenotypeVariance() float64 {
	return stat.Variance(m.Y, nil)
}

// ColumnVarianceSum returns Σ_j var(M_j) over the columns of a design.
func (d *Design) ColumnVarianceSum() float64 {
	s := 0.0
	p := d.NumCols()
	for j := 0; j < p; j++ {
		s += stat.Variance(d.Col(j), nil)
	}
	return s
}
