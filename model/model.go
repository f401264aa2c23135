// Package model holds a variance-component linear mixed model: the
// phenotype, the fixed-effect design and the covariance terms with their
// variance components.
package model

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/grexlab/grex/bed"
	"github.com/grexlab/grex/errs"
)

// Kind is the kind of a covariance term.
type Kind int

const (
	Residual Kind = iota
	Random
	Genetic
)

func (k Kind) String() string {
	switch k {
	case Residual:
		return "residual"
	case Random:
		return "random"
	case Genetic:
		return "genetic"
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Term is a covariance matrix with its variance component. The
// residual term has K == nil, meaning the identity.
type Term struct {
	Name  string
	Kind  Kind
	K     *mat.SymDense
	Sigma float64
}

// Model is y = Xβ + Σ u_k + e with Var(u_k) = σ_k² K_k.
type Model struct {
	IDs    []string
	Y      *mat.VecDense
	X      *mat.Dense
	XNames []string
	// Terms are ordered residual first, then random, then genetic.
	Terms []*Term
	// Individuals optionally hold the FID and IID behind IDs.
	Individuals []bed.Individual
}

// New creates a model with a residual term only.
func New(ids []string, y *mat.VecDense, x *mat.Dense, xNames []string) (*Model, error) {
	n := y.Len()
	r, c := x.Dims()
	if r != n {
		return nil, errs.Invalidf("design has %d rows for %d phenotypes", r, n)
	}
	if xNames != nil && len(xNames) != c {
		return nil, errs.Invalidf("%d names for %d fixed effects", len(xNames), c)
	}
	if ids != nil && len(ids) != n {
		return nil, errs.Invalidf("%d IDs for %d phenotypes", len(ids), n)
	}
	if n < c+1 {
		return nil, errs.Inconsistentf("%d individuals for %d fixed effects", n, c)
	}
	return &Model{
		IDs:    ids,
		Y:      y,
		X:      x,
		XNames: xNames,
		Terms:  []*Term{{Name: "e", Kind: Residual}},
	}, nil
}

// N returns the number of individuals.
func (m *Model) N() int {
	return m.Y.Len()
}

// NumFixed returns the number of fixed effects.
func (m *Model) NumFixed() int {
	_, c := m.X.Dims()
	return c
}

// Add inserts a term keeping the residual, random, genetic order.
func (m *Model) Add(name string, kind Kind, k *mat.SymDense) error {
	if kind == Residual {
		return errs.Argumentf("the residual term is implicit")
	}
	if k.Symmetric() != m.N() {
		return errs.Invalidf("term %s is %d×%d for %d individuals", name, k.Symmetric(), k.Symmetric(), m.N())
	}
	for _, t := range m.Terms {
		if t.Name == name {
			return errs.Invalidf("duplicate term %s", name)
		}
	}
	t := &Term{Name: name, Kind: kind, K: k}
	i := len(m.Terms)
	for i > 0 && m.Terms[i-1].Kind > kind {
		i--
	}
	m.Terms = append(m.Terms, nil)
	copy(m.Terms[i+1:], m.Terms[i:])
	m.Terms[i] = t
	return nil
}

// AddGroups adds a random term with incidence matrix Z given by group
// labels, so K = ZZᵀ has K_ij = 1 when i and j share a group.
func (m *Model) AddGroups(name string, groups []string) error {
	if len(groups) != m.N() {
		return errs.Invalidf("term %s has %d labels for %d individuals", name, len(groups), m.N())
	}
	k := mat.NewSymDense(m.N(), nil)
	for i := range groups {
		for j := i; j < len(groups); j++ {
			if groups[i] == groups[j] {
				k.SetSym(i, j, 1)
			}
		}
	}
	return m.Add(name, Random, k)
}

// Copy returns a model sharing the data and covariance matrices of m
// with its own variance components.
func (m *Model) Copy() *Model {
	c := *m
	c.Terms = make([]*Term, len(m.Terms))
	for i, t := range m.Terms {
		tc := *t
		c.Terms[i] = &tc
	}
	return &c
}

// Names returns the term names in order.
func (m *Model) Names() []string {
	s := make([]string, len(m.Terms))
	for i, t := range m.Terms {
		s[i] = t.Name
	}
	return s
}

// Sigma returns the variance components in term order.
func (m *Model) Sigma() []float64 {
	s := make([]float64, len(m.Terms))
	for i, t := range m.Terms {
		s[i] = t.Sigma
	}
	return s
}

// SetSigma sets the variance components in term order.
func (m *Model) SetSigma(s []float64) error {
	if len(s) != len(m.Terms) {
		return errs.Argumentf("%d variance components for %d terms", len(s), len(m.Terms))
	}
	for i, t := range m.Terms {
		t.Sigma = s[i]
	}
	return nil
}

// PhenotypeVariance returns the sample variance of y.
func (m *Model) PhenotypeVariance() float64 {
	return stat.Variance(m.Y.RawVector().Data, nil)
}

// InitSigma sets every variance component to var(y)/len(Terms).
func (m *Model) InitSigma() {
	v := m.PhenotypeVariance() / float64(len(m.Terms))
	for _, t := range m.Terms {
		t.Sigma = v
	}
}

// Genetic returns the indices of genetic terms.
func (m *Model) Genetic() []int {
	var idx []int
	for i, t := range m.Terms {
		if t.Kind == Genetic {
			idx = append(idx, i)
		}
	}
	return idx
}
