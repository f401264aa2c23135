package grm

import (
	"bufio"
	"io"
	"os"
	"strings"

	"github.com/kshedden/gonpy"
	"gonum.org/v1/gonum/mat"

	"github.com/grexlab/grex/errs"
)

type nopCloser struct {
	io.Writer
}

func (nopCloser) Close() error { return nil }

// WriteNpy writes K to fn as a float64 .npy array and the IDs, one per
// line, to fn+".id".
func (g *GRM) WriteNpy(fn string) error {
	n := g.K.Symmetric()
	data := make([]float64, n*n)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			data[i*n+j] = g.K.At(i, j)
		}
	}
	if err := WriteMatrixNpy(fn, n, n, data); err != nil {
		return err
	}
	return writeLines(fn+".id", g.IDs)
}

// WriteNpy writes the cross block to fn, the test IDs to fn+".id" and
// the training IDs to fn+".train.id".
func (c *Cross) WriteNpy(fn string) error {
	r, k := c.K.Dims()
	data := make([]float64, 0, r*k)
	for i := 0; i < r; i++ {
		data = append(data, c.K.RawRowView(i)...)
	}
	if err := WriteMatrixNpy(fn, r, k, data); err != nil {
		return err
	}
	if err := writeLines(fn+".id", c.TestIDs); err != nil {
		return err
	}
	return writeLines(fn+".train.id", c.TrainIDs)
}

// WriteMatrixNpy writes a row-major rows×cols matrix to fn.
func WriteMatrixNpy(fn string, rows, cols int, data []float64) error {
	f, err := os.Create(fn)
	if err != nil {
		return errs.IOf("%v", err)
	}
	bufw := bufio.NewWriter(f)
	npw, err := gonpy.NewWriter(nopCloser{bufw})
	if err != nil {
		f.Close()
		return errs.IOf("%s: %v", fn, err)
	}
	npw.Shape = []int{rows, cols}
	if err := npw.WriteFloat64(data); err != nil {
		f.Close()
		return errs.IOf("%s: %v", fn, err)
	}
	if err := bufw.Flush(); err != nil {
		f.Close()
		return errs.IOf("%s: %v", fn, err)
	}
	if err := f.Close(); err != nil {
		return errs.IOf("%s: %v", fn, err)
	}
	return nil
}

// ReadNpy loads a GRM written by WriteNpy.
func ReadNpy(fn string) (*GRM, error) {
	f, err := os.Open(fn)
	if err != nil {
		return nil, errs.Invalidf("%v", err)
	}
	defer f.Close()
	npr, err := gonpy.NewReader(bufio.NewReader(f))
	if err != nil {
		return nil, errs.Invalidf("%s: %v", fn, err)
	}
	if len(npr.Shape) != 2 || npr.Shape[0] != npr.Shape[1] {
		return nil, errs.Invalidf("%s: expected a square matrix, got shape %v", fn, npr.Shape)
	}
	data, err := npr.GetFloat64()
	if err != nil {
		return nil, errs.Invalidf("%s: %v", fn, err)
	}
	n := npr.Shape[0]
	ids, err := readLines(fn + ".id")
	if err != nil {
		return nil, err
	}
	if len(ids) != n {
		return nil, errs.Invalidf("%s.id has %d IDs for a %d×%d matrix", fn, len(ids), n, n)
	}
	k := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			k.SetSym(i, j, data[i*n+j])
		}
	}
	log.Infof("Loaded GRM of %d individuals from %s", n, fn)
	return &GRM{IDs: ids, K: k}, nil
}

func writeLines(fn string, lines []string) error {
	f, err := os.Create(fn)
	if err != nil {
		return errs.IOf("%v", err)
	}
	w := bufio.NewWriter(f)
	for _, l := range lines {
		w.WriteString(l)
		w.WriteByte('\n')
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return errs.IOf("%s: %v", fn, err)
	}
	if err := f.Close(); err != nil {
		return errs.IOf("%s: %v", fn, err)
	}
	return nil
}

func readLines(fn string) ([]string, error) {
	f, err := os.Open(fn)
	if err != nil {
		return nil, errs.Invalidf("%v", err)
	}
	defer f.Close()
	var lines []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		if l := strings.TrimSpace(scanner.Text()); l != "" {
			lines = append(lines, l)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, errs.IOf("%s: %v", fn, err)
	}
	return lines, nil
}
