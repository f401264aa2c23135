package mcmc

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/pgzip"
	"github.com/op/go-logging"
	"gonum.org/v1/gonum/mat"

	"github.com/grexlab/grex/bayes"
	"github.com/grexlab/grex/dist"
	"github.com/grexlab/grex/errs"
)

func init() {
	logging.SetLevel(logging.WARNING, "mcmc")
	logging.SetLevel(logging.WARNING, "bayes")
}

// testModel simulates n individuals with p markers of which the first
// nCausal have effects ±1, one covariate and a random group effect.
func testModel(tst *testing.T, n, p, nCausal int, alphabet string, seed uint64) *bayes.Model {
	rnd := dist.NewSampler(seed)
	x := mat.NewDense(n, 1, nil)
	cols := mat.NewDense(p, n, nil)
	groups := make([]string, n)
	y := make([]float64, n)
	for i := 0; i < n; i++ {
		x.Set(i, 0, rnd.Normal(0, 1))
		groups[i] = fmt.Sprintf("g%d", i%5)
		y[i] = 1 + 0.5*x.At(i, 0) + rnd.Normal(0, 1)
	}
	snps := make([]string, p)
	for j := 0; j < p; j++ {
		snps[j] = fmt.Sprintf("rs%d", j)
		if j == p-1 {
			// monomorphic
			continue
		}
		b := 0.0
		if j < nCausal {
			b = float64(1 - 2*(j%2))
		}
		for i := 0; i < n; i++ {
			g := 0.0
			for k := 0; k < 2; k++ {
				if rnd.Uniform() < 0.4 {
					g++
				}
			}
			cols.Set(j, i, g-0.8)
			y[i] += b * (g - 0.8)
		}
	}
	m, err := bayes.New(nil, y, x, []string{"cov"})
	if err != nil {
		tst.Fatal(err)
	}
	if err := m.AddRandom("group", groups); err != nil {
		tst.Fatal(err)
	}
	a, err := bayes.ParseAlphabet(alphabet)
	if err != nil {
		tst.Fatal(err)
	}
	if err := m.AddMarkers("add", cols, snps, a); err != nil {
		tst.Fatal(err)
	}
	if err := m.SetPriors(bayes.DefaultPriorConfig()); err != nil {
		tst.Fatal(err)
	}
	return m
}

// residuals recomputes y - mu - X·beta - Z·u - M·a.
func residuals(m *bayes.Model, s *State) []float64 {
	r := make([]float64, m.N())
	for i, y := range m.Y {
		r[i] = y - s.Mu
	}
	sub := func(d *bayes.Design, coeffs []float64) {
		for j, b := range coeffs {
			for i, v := range d.Col(j) {
				r[i] -= b * v
			}
		}
	}
	sub(m.Fixed, s.Beta)
	for k, e := range m.Random {
		sub(e.Design, s.Random[k].Coeffs)
	}
	for k, e := range m.Markers {
		sub(e.Design, s.Markers[k].Coeffs)
	}
	return r
}

func TestAdjustedResiduals(tst *testing.T) {
	for _, a := range bayes.AlphabetNames() {
		m := testModel(tst, 100, 20, 3, a, 1)
		c := NewChain(m, 0, 42)
		for iter := 0; iter < 50; iter++ {
			if err := c.Step(); err != nil {
				tst.Fatal(a, err)
			}
		}
		for i, r := range residuals(m, c.State) {
			if math.Abs(r-c.State.YAdj[i]) > 1e-8 {
				tst.Fatalf("%s: y_adj[%d] = %v, recomputed %v", a, i, c.State.YAdj[i], r)
			}
		}
	}
}

func TestMonomorphicSkipped(tst *testing.T) {
	m := testModel(tst, 60, 10, 2, "B", 2)
	c := NewChain(m, 0, 1)
	p := m.Markers[0].NumCols()
	for iter := 0; iter < 30; iter++ {
		if err := c.Step(); err != nil {
			tst.Fatal(err)
		}
		ms := c.State.Markers[0]
		if ms.Coeffs[p-1] != 0 || ms.Variance[p-1] != m.Markers[0].InitVariance {
			tst.Fatal("monomorphic SNP changed:", ms.Coeffs[p-1], ms.Variance[p-1])
		}
	}
}

func TestRecordRule(tst *testing.T) {
	s := Settings{Iter: 2000, Burnin: 1000, Thin: 500, Chains: 1}
	if s.NumRecorded() != 2 {
		tst.Error("wrong number of draws:", s.NumRecorded())
	}
	var rec []int
	for iter := 0; iter < s.Iter; iter++ {
		if s.recorded(iter) {
			rec = append(rec, iter)
		}
	}
	if len(rec) != 2 || rec[0] != 1000 || rec[1] != 1500 {
		tst.Error("wrong recorded iterations:", rec)
	}
	s = Settings{Iter: 10, Burnin: 3, Thin: 3, Chains: 1}
	if s.NumRecorded() != 3 {
		tst.Error("wrong number of draws:", s.NumRecorded())
	}
}

func TestValidate(tst *testing.T) {
	bad := []Settings{
		{Iter: 0, Thin: 1, Chains: 1},
		{Iter: 10, Burnin: 10, Thin: 1, Chains: 1},
		{Iter: 10, Thin: 0, Chains: 1},
		{Iter: 10, Thin: 1, Chains: 0},
	}
	for _, s := range bad {
		if s.Validate() == nil {
			tst.Error("invalid settings accepted:", s)
		}
	}
	if err := DefaultSettings().Validate(); err != nil {
		tst.Error(err)
	}
}

func TestReproducible(tst *testing.T) {
	s := Settings{Iter: 2000, Burnin: 1000, Thin: 500, Chains: 1, Threads: 1, Seed: 7}
	var out [2]bytes.Buffer
	for k := range out {
		m := testModel(tst, 50, 10, 2, "A", 3)
		res, err := Run(m, s)
		if err != nil {
			tst.Fatal(err)
		}
		if res.Store.NumDraws() != 2 {
			tst.Fatal("wrong number of draws:", res.Store.NumDraws())
		}
		if _, err := res.Store.WriteTo(&out[k]); err != nil {
			tst.Fatal(err)
		}
	}
	if out[0].Len() == 0 || !bytes.Equal(out[0].Bytes(), out[1].Bytes()) {
		tst.Error("sample stores differ")
	}
}

func TestChainsDiffer(tst *testing.T) {
	m := testModel(tst, 50, 10, 2, "C", 4)
	res, err := Run(m, Settings{Iter: 200, Burnin: 100, Thin: 10, Chains: 3, Threads: 3, Seed: 1})
	if err != nil {
		tst.Fatal(err)
	}
	if res.Chains != 3 || res.Store.NumChains() != 3 || res.Store.NumDraws() != 10 {
		tst.Fatal("wrong store shape:", res.Chains, res.Store.NumChains(), res.Store.NumDraws())
	}
	mu, ok := res.Store.Param("mu")
	if !ok {
		tst.Fatal("mu is not stored")
	}
	if mu[0][0] == mu[1][0] {
		tst.Error("chains with different seeds agree")
	}
}

func TestInclusion(tst *testing.T) {
	m := testModel(tst, 300, 40, 4, "Cpi", 5)
	res, err := Run(m, Settings{Iter: 1500, Burnin: 500, Thin: 5, Chains: 1, Seed: 3})
	if err != nil {
		tst.Fatal(err)
	}
	pip := res.Markers[0].PIP
	causal, null := 0.0, 0.0
	for j := 0; j < 4; j++ {
		causal += pip[j] / 4
	}
	for j := 4; j < len(pip)-1; j++ {
		null += pip[j] / float64(len(pip)-5)
	}
	if causal < 0.8 || causal <= null {
		tst.Error("causal SNPs not selected:", causal, null)
	}
	if pip[len(pip)-1] != 0 {
		tst.Error("monomorphic SNP included")
	}

	pi, ok := res.Store.Param("pi1_add")
	if !ok {
		tst.Fatal("pi is not stored")
	}
	mean := 0.0
	for _, v := range pi[0] {
		mean += v / float64(len(pi[0]))
	}
	if mean <= 0 || mean >= 0.5 {
		tst.Error("wrong inclusion proportion:", mean)
	}
}

func TestParameterNames(tst *testing.T) {
	m := testModel(tst, 30, 5, 1, "R", 6)
	names := ParameterNames(m)
	want := []string{"mu", "beta_cov", "var_group", "var_add", "sigma_add",
		"pi0_add", "pi1_add", "pi2_add", "pi3_add", "var_e", "h2_add"}
	if len(names) != len(want) {
		tst.Fatal("wrong names:", names)
	}
	for i := range want {
		if names[i] != want[i] {
			tst.Error("wrong name:", names[i], want[i])
		}
	}
	c := NewChain(m, 0, 1)
	if v := c.Scalars(nil); len(v) != len(names) {
		tst.Error("wrong number of values:", len(v))
	}
}

func TestWriteTSV(tst *testing.T) {
	m := testModel(tst, 30, 5, 1, "RR", 7)
	res, err := Run(m, Settings{Iter: 20, Burnin: 10, Thin: 2, Chains: 2, Threads: 2, Seed: 1})
	if err != nil {
		tst.Fatal(err)
	}
	fn := filepath.Join(tst.TempDir(), "samples.tsv.gz")
	if err := res.Store.WriteTSV(fn); err != nil {
		tst.Fatal(err)
	}
	f, err := os.Open(fn)
	if err != nil {
		tst.Fatal(err)
	}
	defer f.Close()
	zr, err := pgzip.NewReader(f)
	if err != nil {
		tst.Fatal(err)
	}
	sc := bufio.NewScanner(zr)
	lines := 0
	for sc.Scan() {
		lines++
	}
	if err := sc.Err(); err != nil {
		tst.Fatal(err)
	}
	if lines != 1+2*5 {
		tst.Error("wrong number of lines:", lines)
	}
}

func TestPlotTrace(tst *testing.T) {
	m := testModel(tst, 30, 5, 1, "C", 8)
	res, err := Run(m, Settings{Iter: 50, Burnin: 10, Thin: 1, Chains: 2, Seed: 1})
	if err != nil {
		tst.Fatal(err)
	}
	fn := filepath.Join(tst.TempDir(), "mu.svg")
	if err := res.Store.PlotTrace("mu", fn); err != nil {
		tst.Fatal(err)
	}
	if st, err := os.Stat(fn); err != nil || st.Size() == 0 {
		tst.Error("no plot written:", err)
	}
	if err := res.Store.PlotTrace("nope", fn); err == nil {
		tst.Error("unknown parameter accepted")
	}
}

func TestFailingChainDropped(tst *testing.T) {
	afterStep = func(ch *Chain, iter int) error {
		if ch.id == 1 && iter == 150 {
			return fmt.Errorf("chain %d: residual variance is NaN", ch.id)
		}
		return nil
	}
	defer func() { afterStep = nil }()

	m := testModel(tst, 50, 10, 2, "C", 4)
	s := Settings{Iter: 200, Burnin: 100, Thin: 10, Chains: 3, Threads: 3, Seed: 1}
	res, err := Run(m, s)
	if err != nil {
		tst.Fatal(err)
	}
	if res.Chains != 2 || len(res.Dropped) != 1 {
		tst.Fatal("wrong chains:", res.Chains, res.Dropped)
	}
	if !errors.Is(res.Dropped[0], errs.ErrNonConvergence) {
		tst.Error("dropped chain error does not wrap non-convergence:", res.Dropped[0])
	}
	for p, name := range res.Store.Names {
		if len(res.Store.Samples[p]) != 2 {
			tst.Errorf("%s has %d chains, expected 2", name, len(res.Store.Samples[p]))
		}
		for c, draws := range res.Store.Samples[p] {
			if len(draws) != s.NumRecorded() {
				tst.Errorf("%s chain %d has %d draws", name, c, len(draws))
			}
		}
	}
	for _, ms := range res.Markers {
		for j, pip := range ms.PIP {
			if pip < 0 || pip > 1 {
				tst.Errorf("PIP of %s is %v", ms.SNPs[j], pip)
			}
		}
	}
}

func TestAllChainsFail(tst *testing.T) {
	afterStep = func(ch *Chain, iter int) error {
		return fmt.Errorf("chain %d failed", ch.id)
	}
	defer func() { afterStep = nil }()

	m := testModel(tst, 30, 5, 1, "A", 2)
	_, err := Run(m, Settings{Iter: 20, Burnin: 10, Thin: 1, Chains: 2, Threads: 2, Seed: 1})
	if !errors.Is(err, errs.ErrNonConvergence) {
		tst.Error("expected non-convergence, got", err)
	}
}
