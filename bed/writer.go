package bed

import (
	"bufio"
	"math"
	"os"

	"github.com/grexlab/grex/errs"
)

// Writer encodes genotypes into a .bed file, one SNP at a time.
type Writer struct {
	f   *os.File
	w   *bufio.Writer
	n   int
	buf []byte
}

// Create writes prefix.fam and prefix.bim and opens prefix.bed for
// writing genotypes of len(inds) individuals.
func Create(prefix string, inds []Individual, snps []SNP) (*Writer, error) {
	if err := WriteFam(prefix+".fam", inds); err != nil {
		return nil, err
	}
	if err := WriteBim(prefix+".bim", snps); err != nil {
		return nil, err
	}
	f, err := os.Create(prefix + ".bed")
	if err != nil {
		return nil, errs.IOf("%v", err)
	}
	w := &Writer{
		f:   f,
		w:   bufio.NewWriter(f),
		n:   len(inds),
		buf: make([]byte, (len(inds)+3)/4),
	}
	if _, err := w.w.Write(magic[:]); err != nil {
		f.Close()
		return nil, errs.IOf("%v", err)
	}
	return w, nil
}

// encode returns the 2-bit code of a genotype value.
func encode(g float64) byte {
	switch {
	case math.IsNaN(g):
		return 1
	case g == 2:
		return 0
	case g == 1:
		return 2
	case g == 0:
		return 3
	}
	return 1
}

// WriteSNP appends one SNP. Values other than 0, 1 and 2 are written
// as missing.
func (w *Writer) WriteSNP(geno []float64) error {
	if len(geno) != w.n {
		return errs.Argumentf("SNP has %d genotypes, expected %d", len(geno), w.n)
	}
	for i := range w.buf {
		w.buf[i] = 0
	}
	for i, g := range geno {
		w.buf[i>>2] |= encode(g) << (2 * uint(i&3))
	}
	if _, err := w.w.Write(w.buf); err != nil {
		return errs.IOf("%v", err)
	}
	return nil
}

// Close flushes and closes the .bed file.
func (w *Writer) Close() error {
	if err := w.w.Flush(); err != nil {
		w.f.Close()
		return errs.IOf("%v", err)
	}
	if err := w.f.Close(); err != nil {
		return errs.IOf("%v", err)
	}
	return nil
}
