package coding

import (
	"errors"
	"math"
	"testing"

	"github.com/grexlab/grex/errs"
)

const smallDiff = 1e-10

func appreq(a, b float64) bool {
	return math.Abs(a-b) <= smallDiff
}

func mean(x []float64) float64 {
	s := 0.0
	for _, v := range x {
		s += v
	}
	return s / float64(len(x))
}

func sampleVar(x []float64) float64 {
	m := mean(x)
	s := 0.0
	for _, v := range x {
		s += (v - m) * (v - m)
	}
	return s / float64(len(x)-1)
}

func TestParseMethod(tst *testing.T) {
	for s, m := range map[string]Method{
		"centered":          Centered,
		"Standardized":      Standardized,
		"Centered_HWE":      CenteredHWE,
		"standardized-hwe":  StandardizedHWE,
		"OrthCentered":      OrthCentered,
		"orth_standardized": OrthStandardized,
		"orth-centered-hwe": OrthCenteredHWE,
	} {
		got, err := ParseMethod(s)
		if err != nil {
			tst.Error(s, err)
			continue
		}
		if got != m {
			tst.Errorf("ParseMethod(%q)=%v, expected %v", s, got, m)
		}
	}
	if _, err := ParseMethod("vanraden"); !errors.Is(err, errs.ErrInvalidInput) {
		tst.Error("expected invalid input error, got", err)
	}
}

func TestCentered(tst *testing.T) {
	col := []float64{0, 1, 2, math.NaN(), 1}
	st := Policy{Centered, Additive}.Code(col)
	if !appreq(st.Mean, 1) || !appreq(st.Freq, 0.5) {
		tst.Error("wrong stats:", st)
	}
	expected := []float64{-1, 0, 1, 0, 0}
	for i := range col {
		if !appreq(col[i], expected[i]) {
			tst.Errorf("col[%d]=%v, expected %v", i, col[i], expected[i])
		}
	}
	if !appreq(st.Stddev, math.Sqrt(0.5)) {
		tst.Error("wrong stddev:", st.Stddev)
	}
}

func TestStandardized(tst *testing.T) {
	col := []float64{0, 0, 1, 2, 2, 1, 0, 1}
	st := Policy{Standardized, Additive}.Code(col)
	if st.Monomorphic {
		tst.Fatal("unexpected monomorphic column")
	}
	if !appreq(mean(col), 0) || !appreq(sampleVar(col), 1) {
		tst.Error("column is not standardized:", mean(col), sampleVar(col))
	}

	// idempotent on its own output
	again := append([]float64(nil), col...)
	Policy{Standardized, Additive}.Code(again)
	for i := range col {
		if !appreq(col[i], again[i]) {
			tst.Errorf("standardization changed value %d: %v -> %v", i, col[i], again[i])
		}
	}

	centered := append([]float64(nil), col...)
	Policy{Centered, Additive}.Code(centered)
	for i := range col {
		if !appreq(col[i], centered[i]) {
			tst.Errorf("centering changed value %d: %v -> %v", i, col[i], centered[i])
		}
	}
}

func TestHWE(tst *testing.T) {
	col := []float64{0, 1, 1, 2, 0, 0}
	st := Policy{StandardizedHWE, Additive}.Code(col)
	p := 4.0 / 12
	if !appreq(st.Freq, p) || !appreq(st.Mean, 2*p) {
		tst.Error("wrong HWE stats:", st)
	}
	if !appreq(st.Stddev, math.Sqrt(2*p*(1-p))) {
		tst.Error("wrong HWE stddev:", st.Stddev)
	}
	if !appreq(col[3], (2-2*p)/math.Sqrt(2*p*(1-p))) {
		tst.Error("wrong coded value:", col[3])
	}
}

func TestDominant(tst *testing.T) {
	col := []float64{0, 1, 2, 1}
	st := Policy{Centered, Dominant}.Code(col)
	// recoded to 0 1 0 1
	if !appreq(st.Mean, 0.5) {
		tst.Error("wrong dominance mean:", st.Mean)
	}
	expected := []float64{-0.5, 0.5, -0.5, 0.5}
	for i := range col {
		if !appreq(col[i], expected[i]) {
			tst.Errorf("col[%d]=%v, expected %v", i, col[i], expected[i])
		}
	}
}

func TestOrthogonal(tst *testing.T) {
	// Orthogonal dominance coding is uncorrelated with additive coding
	// in the sample.
	geno := []float64{0, 0, 0, 0, 1, 1, 1, 2, 0, 1, 2, 0}
	add := append([]float64(nil), geno...)
	dom := append([]float64(nil), geno...)
	Policy{OrthStandardized, Additive}.Code(add)
	st := Policy{OrthStandardized, Dominant}.Code(dom)
	if st.Monomorphic {
		tst.Fatal("unexpected monomorphic column")
	}
	p := st.Freq
	// 1 -> 2p, 2 -> 4p-2, 0 -> 0 before centring
	raw := []float64{0, 2 * p, 4*p - 2}
	m := 0.0
	for _, g := range geno {
		m += raw[int(g)]
	}
	m /= float64(len(geno))
	if !appreq(st.Mean, m) {
		tst.Error("wrong orth dominance mean:", st.Mean, m)
	}
	if !appreq(mean(dom), 0) || !appreq(sampleVar(dom), 1) {
		tst.Error("dominance column is not standardized")
	}
}

func TestMonomorphic(tst *testing.T) {
	for _, col := range [][]float64{
		{1, 1, 1, 1},
		{2, 2, math.NaN(), 2},
		{math.NaN(), math.NaN()},
	} {
		for m := Centered; m <= OrthStandardizedHWE; m++ {
			c := append([]float64(nil), col...)
			st := Policy{m, Additive}.Code(c)
			if !st.Monomorphic {
				tst.Errorf("%v: column %v not flagged monomorphic", m, col)
			}
			for i := range c {
				if c[i] != 0 {
					tst.Errorf("%v: column %v not zeroed: %v", m, col, c)
					break
				}
			}
		}
	}
}

func TestApply(tst *testing.T) {
	for m := Centered; m <= OrthStandardizedHWE; m++ {
		for _, e := range []Effect{Additive, Dominant} {
			pol := Policy{m, e}
			train := []float64{0, 1, 2, 1, 0, 2, 1, 1}
			coded := append([]float64(nil), train...)
			st := pol.Code(coded)

			applied := append([]float64(nil), train...)
			pol.Apply(applied, st)
			for i := range coded {
				if !appreq(coded[i], applied[i]) {
					tst.Errorf("%v: Apply differs from Code at %d: %v vs %v", pol, i, applied[i], coded[i])
				}
			}
		}
	}

	test := []float64{math.NaN(), 2}
	Policy{Standardized, Additive}.Apply(test, ColumnStats{Freq: 0.5, Mean: 1, Stddev: 0.5})
	if test[0] != 0 || !appreq(test[1], 2) {
		tst.Error("wrong applied values:", test)
	}
}

func TestVanRaden(tst *testing.T) {
	st := ColumnStats{Freq: 0.2}
	if !appreq(st.VanRaden(Additive), 0.32) || !appreq(st.VanRaden(Dominant), 0.32*0.32) {
		tst.Error("wrong VanRaden contributions")
	}
	st.Monomorphic = true
	if st.VanRaden(Additive) != 0 {
		tst.Error("monomorphic column contributes to scale")
	}
}

func TestValidate(tst *testing.T) {
	if err := Validate([]float64{0, 1, 2, math.NaN()}); err != nil {
		tst.Error("valid column rejected:", err)
	}
	for _, col := range [][]float64{{0, 0.5}, {3}, {math.Inf(1)}, {-1, 2}} {
		if err := Validate(col); !errors.Is(err, errs.ErrInvalidInput) {
			tst.Errorf("Validate(%v)=%v, expected invalid input", col, err)
		}
	}
}
