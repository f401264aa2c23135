package gwas

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/mathext"

	"github.com/grexlab/grex/coding"
)

var machEps = math.Nextafter(1, 2) - 1

// Result is the Wald test of one SNP. Effects which are not estimated
// are NaN.
type Result struct {
	BetaA, SEA float64
	BetaD, SED float64
	Stat       float64
	P          float64
	// PA and PD are the 1 df p-values of the ad model.
	PA, PD float64
	DF     int
}

func emptyResult() Result {
	nan := math.NaN()
	return Result{BetaA: nan, SEA: nan, BetaD: nan, SED: nan, PA: nan, PD: nan}
}

// PValue returns the upper tail probability of χ²(df) at stat. It is
// NaN for a negative or undefined statistic.
func PValue(stat float64, df int) float64 {
	if math.IsNaN(stat) || stat < 0 || df < 1 {
		return math.NaN()
	}
	return mathext.GammaIncRegComp(float64(df)/2, stat/2)
}

// tester runs Wald tests against a null model with covariance V and
// fixed-effect residuals r.
type tester struct {
	model Model
	test  Test
	vinv  *mat.SymDense
	// vr is V⁻¹r.
	vr []float64
}

func newTester(vinv *mat.SymDense, residual *mat.VecDense, m Model, t Test) *tester {
	var vr mat.VecDense
	vr.MulVec(vinv, residual)
	return &tester{model: m, test: t, vinv: vinv, vr: vr.RawVector().Data}
}

// scratch are the per-worker buffers of a tester.
type scratch struct {
	a, d   []float64
	va, vd *mat.VecDense
}

func (t *tester) scratch() *scratch {
	n := len(t.vr)
	return &scratch{
		a:  make([]float64, n),
		d:  make([]float64, n),
		va: mat.NewVecDense(n, nil),
		vd: mat.NewVecDense(n, nil),
	}
}

var (
	addPolicy = coding.Policy{Method: coding.Standardized, Effect: coding.Additive}
	domPolicy = coding.Policy{Method: coding.OrthStandardized, Effect: coding.Dominant}
)

// encode codes the raw genotypes of a SNP into s.a and s.d. Missing
// genotypes are replaced by the mean. It returns the frequency of the
// counted allele, the number of called genotypes and whether the SNP
// is polymorphic.
func (t *tester) encode(raw []float64, s *scratch) (freq float64, n int, ok bool) {
	sum := 0.0
	for _, g := range raw {
		if !math.IsNaN(g) {
			sum += g
			n++
		}
	}
	if n == 0 {
		return math.NaN(), 0, false
	}
	mean := sum / float64(n)
	ss := 0.0
	for _, g := range raw {
		if !math.IsNaN(g) {
			ss += (g - mean) * (g - mean)
		}
	}
	freq = mean / 2
	if n < 2 || ss/float64(n-1) < coding.Epsilon {
		return freq, n, false
	}
	if t.model != Dominance {
		copy(s.a, raw)
		addPolicy.Code(s.a)
	}
	if t.model != Additive {
		copy(s.d, raw)
		domPolicy.Code(s.d)
	}
	return freq, n, true
}

// single tests one coded column z. The statistic is 0 when z'V⁻¹z
// vanishes.
func (t *tester) single(z []float64, vz *mat.VecDense) (beta, se, stat, p float64) {
	vz.MulVec(t.vinv, mat.NewVecDense(len(z), z))
	q := floats.Dot(z, vz.RawVector().Data)
	if q < machEps {
		return math.NaN(), math.NaN(), 0, 1
	}
	beta = floats.Dot(z, t.vr) / q
	se = math.Sqrt(1 / q)
	stat = beta * beta * q
	return beta, se, stat, PValue(stat, 1)
}

// joint tests the additive and dominance columns together with 2 df.
func (t *tester) joint(s *scratch, res *Result) {
	res.DF = 2
	s.va.MulVec(t.vinv, mat.NewVecDense(len(s.a), s.a))
	s.vd.MulVec(t.vinv, mat.NewVecDense(len(s.d), s.d))
	va, vd := s.va.RawVector().Data, s.vd.RawVector().Data
	m00 := floats.Dot(s.a, va)
	m01 := floats.Dot(s.a, vd)
	m11 := floats.Dot(s.d, vd)
	det := m00*m11 - m01*m01
	if math.Abs(det) < machEps {
		res.Stat, res.P = 0, 1
		return
	}
	i00, i01, i11 := m11/det, -m01/det, m00/det
	ga, gd := floats.Dot(s.a, t.vr), floats.Dot(s.d, t.vr)
	ba := i00*ga + i01*gd
	bd := i01*ga + i11*gd
	res.BetaA, res.SEA = ba, math.Sqrt(i00)
	res.BetaD, res.SED = bd, math.Sqrt(i11)
	res.Stat = ba*(m00*ba+m01*bd) + bd*(m01*ba+m11*bd)
	res.P = PValue(res.Stat, 2)
	if t.test == Separate {
		res.PA = PValue(ba*ba/i00, 1)
		res.PD = PValue(bd*bd/i11, 1)
	}
}

// run tests the raw genotypes of one SNP.
func (t *tester) run(raw []float64, s *scratch) Row {
	row := Row{Result: emptyResult()}
	var ok bool
	row.Freq, row.N, ok = t.encode(raw, s)
	if !ok {
		row.Stat, row.P, row.DF = 0, 1, 0
		return row
	}
	switch t.model {
	case Additive:
		row.BetaA, row.SEA, row.Stat, row.P = t.single(s.a, s.va)
		row.DF = 1
	case Dominance:
		row.BetaD, row.SED, row.Stat, row.P = t.single(s.d, s.vd)
		row.DF = 1
	case AddDom:
		t.joint(s, &row.Result)
	}
	return row
}
