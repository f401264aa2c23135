package bed

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/op/go-logging"
)

func init() {
	logging.SetLevel(logging.WARNING, "bed")
}

// writeFixture writes n individuals and m SNPs of random genotypes with
// roughly 5% missing values and returns the prefix and genotypes per SNP.
func writeFixture(tst *testing.T, n, m int, seed int64) (string, [][]float64) {
	prefix := filepath.Join(tst.TempDir(), "fixture")
	rng := rand.New(rand.NewSource(seed))
	inds := make([]Individual, n)
	for i := range inds {
		inds[i] = Individual{FID: fmt.Sprintf("f%d", i), IID: fmt.Sprintf("i%d", i)}
	}
	snps := make([]SNP, m)
	for j := range snps {
		snps[j] = SNP{Chrom: "1", ID: fmt.Sprintf("rs%d", j), Pos: 1000 + j, A1: "A", A2: "G"}
	}
	w, err := Create(prefix, inds, snps)
	if err != nil {
		tst.Fatal(err)
	}
	geno := make([][]float64, m)
	for j := range geno {
		geno[j] = make([]float64, n)
		for i := range geno[j] {
			if rng.Float64() < 0.05 {
				geno[j][i] = math.NaN()
			} else {
				geno[j][i] = float64(rng.Intn(3))
			}
		}
		if err := w.WriteSNP(geno[j]); err != nil {
			tst.Fatal(err)
		}
	}
	if err := w.Close(); err != nil {
		tst.Fatal(err)
	}
	return prefix, geno
}

func same(a, b float64) bool {
	return a == b || (math.IsNaN(a) && math.IsNaN(b))
}

func TestDecode(tst *testing.T) {
	// n=7 leaves padding bits in the last byte of each SNP
	prefix, geno := writeFixture(tst, 7, 11, 1)
	r, err := Open(prefix, Options{})
	if err != nil {
		tst.Fatal(err)
	}
	defer r.Close()
	if r.NumSNPs() != 11 || r.NumIndividuals() != 7 {
		tst.Fatal("wrong dimensions:", r.NumSNPs(), r.NumIndividuals())
	}

	read := 0
	for {
		chunk, err := r.ReadChunk(4)
		if err == io.EOF {
			break
		}
		if err != nil {
			tst.Fatal(err)
		}
		if chunk.Start != read {
			tst.Error("chunk start", chunk.Start, "expected", read)
		}
		for j := 0; j < chunk.NumSNPs(); j++ {
			col := chunk.Column(j)
			for i := range col {
				if !same(col[i], geno[read+j][i]) {
					tst.Errorf("SNP %d individual %d: got %v expected %v", read+j, i, col[i], geno[read+j][i])
				}
			}
		}
		read += chunk.NumSNPs()
	}
	if read != 11 {
		tst.Error("read", read, "SNPs")
	}

	r.Reset()
	chunk, err := r.ReadChunk(100)
	if err != nil {
		tst.Fatal(err)
	}
	n, c := chunk.Matrix().Dims()
	if n != 7 || c != 11 {
		tst.Error("wrong matrix view dimensions", n, c)
	}
}

func TestTargetOrder(tst *testing.T) {
	prefix, geno := writeFixture(tst, 9, 3, 2)
	target := []string{"f5_i5", "f0_i0", "f8_i8"}
	r, err := Open(prefix, Options{Target: target})
	if err != nil {
		tst.Fatal(err)
	}
	defer r.Close()
	if r.NumIndividuals() != 3 {
		tst.Fatal("expected 3 individuals, got", r.NumIndividuals())
	}
	chunk, err := r.ReadChunk(3)
	if err != nil {
		tst.Fatal(err)
	}
	for j := 0; j < 3; j++ {
		col := chunk.Column(j)
		for t, i := range []int{5, 0, 8} {
			if !same(col[t], geno[j][i]) {
				tst.Errorf("SNP %d target %d: got %v expected %v", j, t, col[t], geno[j][i])
			}
		}
	}

	r2, err := Open(prefix, Options{IIDOnly: true, Target: []string{"i3"}})
	if err != nil {
		tst.Fatal(err)
	}
	r2.Close()

	_, err = Open(prefix, Options{Target: []string{"f0_i0", "nobody"}})
	if !errors.Is(err, ErrMissingIndividual) {
		tst.Error("expected missing individual error, got", err)
	}
}

func TestBadFiles(tst *testing.T) {
	prefix, _ := writeFixture(tst, 8, 5, 3)
	data, err := os.ReadFile(prefix + ".bed")
	if err != nil {
		tst.Fatal(err)
	}

	if err := os.WriteFile(prefix+".bed", data[:len(data)-1], 0644); err != nil {
		tst.Fatal(err)
	}
	if _, err := Open(prefix, Options{}); !errors.Is(err, ErrInvalidFile) {
		tst.Error("expected truncation error, got", err)
	}

	bad := append([]byte{}, data...)
	bad[2] = 0x00
	if err := os.WriteFile(prefix+".bed", bad, 0644); err != nil {
		tst.Fatal(err)
	}
	if _, err := Open(prefix, Options{}); !errors.Is(err, ErrInvalidFile) {
		tst.Error("expected bad magic error, got", err)
	}
}

func TestRoundTrip(tst *testing.T) {
	prefix, _ := writeFixture(tst, 13, 6, 4)
	r, err := Open(prefix, Options{})
	if err != nil {
		tst.Fatal(err)
	}
	defer r.Close()
	chunk, err := r.ReadChunk(6)
	if err != nil {
		tst.Fatal(err)
	}

	prefix2 := filepath.Join(tst.TempDir(), "copy")
	w, err := Create(prefix2, r.Individuals, r.SNPs)
	if err != nil {
		tst.Fatal(err)
	}
	for j := 0; j < chunk.NumSNPs(); j++ {
		if err := w.WriteSNP(chunk.Column(j)); err != nil {
			tst.Fatal(err)
		}
	}
	if err := w.Close(); err != nil {
		tst.Fatal(err)
	}

	a, _ := os.ReadFile(prefix + ".bed")
	b, _ := os.ReadFile(prefix2 + ".bed")
	if !bytes.Equal(a, b) {
		tst.Error("re-encoded bed differs from the original")
	}
}
