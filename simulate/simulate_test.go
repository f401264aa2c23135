package simulate

import (
	"bufio"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/op/go-logging"

	"github.com/grexlab/grex/bed"
	"github.com/grexlab/grex/dist"
	"github.com/grexlab/grex/errs"
)

func init() {
	logging.SetLevel(logging.WARNING, "simulate")
	logging.SetLevel(logging.WARNING, "bed")
}

func writeBed(tst *testing.T, prefix string, n, m int, seed int64) {
	rng := rand.New(rand.NewSource(seed))
	inds := make([]bed.Individual, n)
	for i := range inds {
		inds[i] = bed.Individual{FID: "f", IID: fmt.Sprintf("i%d", i)}
	}
	snps := make([]bed.SNP, m)
	for j := range snps {
		snps[j] = bed.SNP{Chrom: "1", ID: fmt.Sprintf("rs%d", j), Pos: j + 1, A1: "A", A2: "G"}
	}
	w, err := bed.Create(prefix, inds, snps)
	if err != nil {
		tst.Fatal(err)
	}
	geno := make([]float64, n)
	for j := 0; j < m; j++ {
		p := 0.1 + 0.4*rng.Float64()
		for i := range geno {
			geno[i] = 0
			for k := 0; k < 2; k++ {
				if rng.Float64() < p {
					geno[i]++
				}
			}
		}
		if err := w.WriteSNP(geno); err != nil {
			tst.Fatal(err)
		}
	}
	if err := w.Close(); err != nil {
		tst.Fatal(err)
	}
}

func open(tst *testing.T, prefix string) *bed.Reader {
	r, err := bed.Open(prefix, bed.Options{})
	if err != nil {
		tst.Fatal(err)
	}
	tst.Cleanup(func() { r.Close() })
	return r
}

func TestParseClass(tst *testing.T) {
	c, err := ParseClass("0.3:1e-2")
	if err != nil || c.Proportion != 0.3 || c.Variance != 0.01 {
		tst.Error("wrong class:", c, err)
	}
	for _, s := range []string{"0.3", "a:1", "0.1:b", "1:2:3"} {
		if _, err := ParseClass(s); !errors.Is(err, errs.ErrArgument) {
			tst.Error("accepted", s, err)
		}
	}
}

func TestValidateClasses(tst *testing.T) {
	bad := [][]Class{
		nil,
		{{0.5, 1}, {0.4, 1}},
		{{0, 1}, {1, 1}},
		{{0.5, 1}, {0.5, -1}},
	}
	for _, c := range bad {
		if err := ValidateClasses(c, "additive"); !errors.Is(err, errs.ErrArgument) {
			tst.Error("accepted", c, err)
		}
	}
	if err := ValidateClasses([]Class{{0.5, 1e-4}, {0.3, 1e-2}, {0.2 + 1e-7, 1}}, "additive"); err != nil {
		tst.Error(err)
	}
}

func TestAssignClasses(tst *testing.T) {
	classes := []Class{{0.5, 1e-4}, {0.3, 1e-2}, {0.2, 1}}
	a := AssignClasses(classes, 1000, dist.NewSampler(1))
	counts := make([]int, len(classes))
	for _, k := range a {
		counts[k]++
	}
	for k, c := range classes {
		if math.Abs(float64(counts[k])/1000-c.Proportion) > 0.05 {
			tst.Error("wrong class proportion:", k, counts[k])
		}
	}
	// remainder goes to the last class
	a = AssignClasses([]Class{{0.33, 1}, {0.33, 1}, {0.34, 1}}, 10, dist.NewSampler(1))
	counts = make([]int, 3)
	for _, k := range a {
		counts[k]++
	}
	if counts[0] != 3 || counts[1] != 3 || counts[2] != 4 {
		tst.Error("wrong counts:", counts)
	}
}

func TestZeroVarianceClass(tst *testing.T) {
	effects := SampleEffects([]Class{{0.9, 0}, {0.1, 1}}, nil, 500, dist.NewSampler(2))
	nonZero := 0
	for _, e := range effects {
		if e.AddClass == 0 && e.Additive != 0 {
			tst.Fatal("non-zero effect in a zero variance class:", e)
		}
		if e.Additive != 0 {
			nonZero++
		}
		if e.Dominance != 0 || e.DomClass != 0 {
			tst.Fatal("dominance effect without dominance classes:", e)
		}
	}
	if nonZero != 50 {
		tst.Error("wrong number of non-zero effects:", nonZero)
	}
}

func TestValidate(tst *testing.T) {
	good := Config{H2: 0.5, AddClasses: DefaultClasses()}
	if err := good.Validate(); err != nil {
		tst.Error(err)
	}
	for _, c := range []Config{
		{H2: 0, AddClasses: DefaultClasses()},
		{H2: 1, AddClasses: DefaultClasses()},
		{H2: 0.5, D2: -0.1, AddClasses: DefaultClasses()},
		{H2: 0.6, D2: 0.4, AddClasses: DefaultClasses(), DomClasses: DefaultClasses()},
		{H2: 0.5, D2: 0.1, AddClasses: DefaultClasses()},
	} {
		if err := c.Validate(); !errors.Is(err, errs.ErrArgument) {
			tst.Error("accepted", c, err)
		}
	}
}

func TestRun(tst *testing.T) {
	prefix := filepath.Join(tst.TempDir(), "sim")
	writeBed(tst, prefix, 500, 200, 1)
	c := Config{H2: 0.5, AddClasses: DefaultClasses(), Seed: 3, ChunkSize: 64}
	res, err := Run(open(tst, prefix), c)
	if err != nil {
		tst.Fatal(err)
	}
	if len(res.Phenotypes) != 500 || len(res.Effects) != 200 {
		tst.Fatal("wrong sizes:", len(res.Phenotypes), len(res.Effects))
	}
	if math.Abs(res.TrueH2-0.5) > 0.15 || res.TrueD2 != 0 {
		tst.Error("wrong realized heritability:", res.TrueH2, res.TrueD2)
	}

	again, err := Run(open(tst, prefix), c)
	if err != nil {
		tst.Fatal(err)
	}
	for i := range res.Phenotypes {
		if res.Phenotypes[i] != again.Phenotypes[i] {
			tst.Fatal("same seed gave different phenotypes")
		}
	}

	if err := res.Write(prefix); err != nil {
		tst.Fatal(err)
	}
	phen := readLines(tst, prefix+".phen")
	if len(phen) != 501 || phen[0] != "FID\tIID\tphenotype" || !strings.HasPrefix(phen[1], "f\ti0\t") {
		tst.Error("wrong phenotype file:", phen[:2])
	}
	causal := readLines(tst, prefix+".causal")
	if len(causal) != 201 || causal[0] != "SNP\tadditive_effect\tdominance_effect\tadd_class\tdom_class" {
		tst.Error("wrong causal file:", causal[:2])
	}
}

func TestDominance(tst *testing.T) {
	prefix := filepath.Join(tst.TempDir(), "sim")
	writeBed(tst, prefix, 800, 150, 2)
	c := Config{
		H2:         0.3,
		D2:         0.2,
		Intercept:  10,
		AddClasses: DefaultClasses(),
		DomClasses: []Class{{0.5, 0}, {0.5, 1}},
		Seed:       4,
	}
	res, err := Run(open(tst, prefix), c)
	if err != nil {
		tst.Fatal(err)
	}
	if math.Abs(res.TrueH2-0.3) > 0.12 || math.Abs(res.TrueD2-0.2) > 0.12 {
		tst.Error("wrong realized variance proportions:", res.TrueH2, res.TrueD2)
	}
	mean := 0.0
	for _, y := range res.Phenotypes {
		mean += y / float64(len(res.Phenotypes))
	}
	if math.Abs(mean-10) > 3 {
		tst.Error("intercept not applied:", mean)
	}
}

func readLines(tst *testing.T, fn string) []string {
	f, err := os.Open(fn)
	if err != nil {
		tst.Fatal(err)
	}
	defer f.Close()
	var lines []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		lines = append(lines, sc.Text())
	}
	return lines
}
