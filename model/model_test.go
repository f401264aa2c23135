package model

import (
	"errors"
	"math"
	"testing"

	"gonum.org/v1/gonum/mat"

	"github.com/grexlab/grex/errs"
)

func newModel(tst *testing.T, n int) *Model {
	y := mat.NewVecDense(n, nil)
	for i := 0; i < n; i++ {
		y.SetVec(i, float64(i))
	}
	x := mat.NewDense(n, 1, nil)
	for i := 0; i < n; i++ {
		x.Set(i, 0, 1)
	}
	m, err := New(nil, y, x, []string{"intercept"})
	if err != nil {
		tst.Fatal(err)
	}
	return m
}

func identity(n int) *mat.SymDense {
	k := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		k.SetSym(i, i, 1)
	}
	return k
}

func TestTermOrder(tst *testing.T) {
	m := newModel(tst, 4)
	if err := m.Add("add", Genetic, identity(4)); err != nil {
		tst.Fatal(err)
	}
	if err := m.AddGroups("pen", []string{"a", "b", "a", "c"}); err != nil {
		tst.Fatal(err)
	}
	if err := m.Add("dom", Genetic, identity(4)); err != nil {
		tst.Fatal(err)
	}
	names := m.Names()
	expected := []string{"e", "pen", "add", "dom"}
	for i := range expected {
		if names[i] != expected[i] {
			tst.Fatal("wrong term order:", names)
		}
	}
	g := m.Genetic()
	if len(g) != 2 || g[0] != 2 || g[1] != 3 {
		tst.Error("wrong genetic indices:", g)
	}

	pen := m.Terms[1].K
	if pen.At(0, 2) != 1 || pen.At(0, 1) != 0 || pen.At(3, 3) != 1 {
		tst.Error("wrong incidence covariance")
	}

	if err := m.Add("add", Random, identity(4)); !errors.Is(err, errs.ErrInvalidInput) {
		tst.Error("duplicate term accepted:", err)
	}
	if err := m.Add("small", Random, identity(3)); !errors.Is(err, errs.ErrInvalidInput) {
		tst.Error("wrong sized term accepted:", err)
	}
}

func TestInitSigma(tst *testing.T) {
	m := newModel(tst, 5)
	if err := m.Add("add", Genetic, identity(5)); err != nil {
		tst.Fatal(err)
	}
	m.InitSigma()
	// var(0..4) = 2.5
	for _, s := range m.Sigma() {
		if math.Abs(s-1.25) > 1e-12 {
			tst.Error("wrong initial sigma:", m.Sigma())
		}
	}
	if err := m.SetSigma([]float64{1}); !errors.Is(err, errs.ErrArgument) {
		tst.Error("wrong number of components accepted")
	}
}

func TestTooSmall(tst *testing.T) {
	y := mat.NewVecDense(2, []float64{1, 2})
	x := mat.NewDense(2, 2, []float64{1, 0, 1, 1})
	if _, err := New(nil, y, x, nil); !errors.Is(err, errs.ErrDataInconsistency) {
		tst.Error("expected data inconsistency, got", err)
	}
}

func TestCopy(tst *testing.T) {
	m := newModel(tst, 4)
	if err := m.AddGroups("herd", []string{"a", "a", "b", "b"}); err != nil {
		tst.Fatal(err)
	}
	m.InitSigma()
	c := m.Copy()
	if err := c.Add("add", Genetic, identity(4)); err != nil {
		tst.Fatal(err)
	}
	c.Terms[0].Sigma = 42
	if len(m.Terms) != 2 || m.Terms[0].Sigma == 42 {
		tst.Error("copy changed the original:", m.Names(), m.Sigma())
	}
	if c.Terms[1].K != m.Terms[1].K {
		tst.Error("covariance matrix not shared")
	}
}
