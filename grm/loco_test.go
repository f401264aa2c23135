package grm

import (
	"errors"
	"fmt"
	"math/rand"
	"path/filepath"
	"testing"

	"gonum.org/v1/gonum/mat"

	"github.com/grexlab/grex/bed"
	"github.com/grexlab/grex/coding"
	"github.com/grexlab/grex/errs"
)

// writeChromBed writes perChrom[c] HWE SNPs on chromosome c+1.
func writeChromBed(tst *testing.T, prefix string, n int, perChrom []int, seed int64) {
	rng := rand.New(rand.NewSource(seed))
	inds := make([]bed.Individual, n)
	for i := range inds {
		inds[i] = bed.Individual{FID: "f", IID: fmt.Sprintf("%d", i)}
	}
	var snps []bed.SNP
	for c, m := range perChrom {
		for j := 0; j < m; j++ {
			snps = append(snps, bed.SNP{Chrom: fmt.Sprintf("%d", c+1), ID: fmt.Sprintf("rs%d_%d", c+1, j),
				Pos: j + 1, A1: "A", A2: "G"})
		}
	}
	w, err := bed.Create(prefix, inds, snps)
	if err != nil {
		tst.Fatal(err)
	}
	geno := make([]float64, n)
	for range snps {
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

func TestLOCO(tst *testing.T) {
	prefix := filepath.Join(tst.TempDir(), "g")
	writeChromBed(tst, prefix, 25, []int{30, 20, 15}, 5)
	r := open(tst, prefix)

	for _, norm := range []Norm{Trace, VanRaden} {
		b := Builder{Reader: r, Method: coding.Standardized, Norm: norm, ChunkSize: 7, Threads: 2}
		l, err := b.ComputeLOCO(coding.Additive)
		if err != nil {
			tst.Fatal(err)
		}
		if len(l.Chroms) != 3 || l.Chroms[0] != "1" || len(l.SNPs["2"]) != 20 || l.SNPs["3"][0] != 50 {
			tst.Fatal("wrong chromosome layout:", l.Chroms, l.SNPs)
		}

		g, err := b.Compute(coding.Additive)
		if err != nil {
			tst.Fatal(err)
		}
		if d := maxDiff(l.Whole(), g.K); d > 1e-10 {
			tst.Errorf("%v: whole genome GRM differs by %v", norm, d)
		}

		// rebuild the GRM without chromosome 2 from the coded markers
		pol := coding.Policy{Method: coding.Standardized, Effect: coding.Additive}
		mk, err := LoadMarkers(r, pol, 10, 1)
		if err != nil {
			tst.Fatal(err)
		}
		var rest []int
		scale := 0.0
		for j := range mk.SNPs {
			if j < 30 || j >= 50 {
				rest = append(rest, j)
				scale += mk.Stats[j].VanRaden(coding.Additive)
			}
		}
		m := mat.NewDense(25, len(rest), nil)
		for k, j := range rest {
			m.SetCol(k, mk.Cols.RawRowView(j))
		}
		want := mat.NewSymDense(25, nil)
		want.SymOuterK(1, m)
		if norm == Trace {
			scale = mat.Trace(want) / 25
		}
		want.ScaleSym(1/scale, want)

		k, err := l.Leave("2")
		if err != nil {
			tst.Fatal(err)
		}
		if d := maxDiff(k, want); d > 1e-10 {
			tst.Errorf("%v: LOCO GRM differs by %v", norm, d)
		}
	}
}

func TestLOCOErrors(tst *testing.T) {
	prefix := filepath.Join(tst.TempDir(), "g")
	writeChromBed(tst, prefix, 20, []int{25}, 6)
	b := Builder{Reader: open(tst, prefix), Method: coding.Centered}
	l, err := b.ComputeLOCO(coding.Additive)
	if err != nil {
		tst.Fatal(err)
	}
	if _, err := l.Leave("1"); !errors.Is(err, errs.ErrDataInconsistency) {
		tst.Error("expected inconsistency leaving the only chromosome out, got", err)
	}
	if _, err := l.Leave("X"); !errors.Is(err, errs.ErrArgument) {
		tst.Error("expected argument error for unknown chromosome, got", err)
	}
}
