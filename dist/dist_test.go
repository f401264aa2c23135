package dist

import (
	"math"
	"testing"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

const smallDiff = 1e-6

/*** Tests if a and b are approximately equal ***/
func appreq(a, b, tol float64) bool {
	return math.Abs(a-b) <= tol
}

func TestScaledInvChiSq(tst *testing.T) {
	s := NewSampler(1)
	p := ScaledInvChiSq{Nu: 4, S2: 0.5}.Posterior(30, 10)
	if p.Nu != 14 || !appreq(p.S2, (4*0.5+30)/14, smallDiff) {
		tst.Fatal("wrong posterior:", p)
	}
	const n = 100000
	x := make([]float64, n)
	for i := range x {
		x[i] = p.Rand(s)
	}
	if m := stat.Mean(x, nil); !appreq(m, p.Mean(), 0.02*p.Mean()) {
		tst.Errorf("mean %v, expected %v", m, p.Mean())
	}
}

func TestResidualPrior(tst *testing.T) {
	// ν = -2, s² = 0 gives sse/χ²(n-2)
	p := ScaledInvChiSq{Nu: -2, S2: 0}.Posterior(50, 52)
	if p.Nu != 50 || !appreq(p.S2, 1, smallDiff) {
		tst.Error("wrong posterior:", p)
	}
}

func TestDirichlet(tst *testing.T) {
	s := NewSampler(2)
	alpha := []float64{90, 10}
	mean := make([]float64, 2)
	const n = 20000
	for i := 0; i < n; i++ {
		d := s.Dirichlet(nil, alpha)
		if !appreq(floats.Sum(d), 1, 1e-12) {
			tst.Fatal("draw does not sum to one:", d)
		}
		floats.Add(mean, d)
	}
	floats.Scale(1.0/n, mean)
	if !appreq(mean[0], 0.9, 0.005) {
		tst.Error("wrong mean:", mean)
	}
}

func TestCategorical(tst *testing.T) {
	s := NewSampler(3)
	p := []float64{0.2, 0.5, 0.3}
	counts := make([]float64, 3)
	const n = 50000
	for i := 0; i < n; i++ {
		counts[s.Categorical(p)]++
	}
	for i := range p {
		if !appreq(counts[i]/n, p[i], 0.01) {
			tst.Error("wrong frequencies:", counts)
		}
	}
}

func TestSoftmax(tst *testing.T) {
	x := Softmax([]float64{1000, 1000 + math.Log(3)})
	if !appreq(x[0], 0.25, smallDiff) || !appreq(x[1], 0.75, smallDiff) {
		tst.Error("wrong probabilities:", x)
	}
	if !appreq(LogSumExp([]float64{0, 0}), math.Log(2), smallDiff) {
		tst.Error("wrong log-sum-exp")
	}
}

func TestReproducible(tst *testing.T) {
	a, b := NewSampler(42), NewSampler(42)
	for i := 0; i < 100; i++ {
		if a.Normal(0, 1) != b.Normal(0, 1) || a.Gamma(2) != b.Gamma(2) {
			tst.Fatal("samplers with equal seeds differ")
		}
	}
}
