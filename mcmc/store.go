package mcmc

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/klauspost/pgzip"

	"github.com/grexlab/grex/errs"
)

// Store keeps recorded samples as Samples[parameter][chain][draw].
type Store struct {
	Names   []string
	Samples [][][]float64
}

func newStore(names []string, chains, draws int) *Store {
	s := &Store{Names: names, Samples: make([][][]float64, len(names))}
	for p := range s.Samples {
		s.Samples[p] = make([][]float64, chains)
		for c := range s.Samples[p] {
			s.Samples[p][c] = make([]float64, 0, draws)
		}
	}
	return s
}

// NumChains returns the number of chains.
func (s *Store) NumChains() int {
	if len(s.Samples) == 0 {
		return 0
	}
	return len(s.Samples[0])
}

// NumDraws returns the number of draws per chain.
func (s *Store) NumDraws() int {
	if s.NumChains() == 0 {
		return 0
	}
	return len(s.Samples[0][0])
}

// Param returns the chains of a parameter by name.
func (s *Store) Param(name string) ([][]float64, bool) {
	for p, n := range s.Names {
		if n == name {
			return s.Samples[p], true
		}
	}
	return nil, false
}

// record appends a draw of chain c.
func (s *Store) record(c int, values []float64) {
	for p, v := range values {
		s.Samples[p][c] = append(s.Samples[p][c], v)
	}
}

// keep removes all chains but the given ones.
func (s *Store) keep(chains []int) {
	for p := range s.Samples {
		kept := make([][]float64, len(chains))
		for i, c := range chains {
			kept[i] = s.Samples[p][c]
		}
		s.Samples[p] = kept
	}
}

// WriteTo writes the samples as little-endian float64 values in
// parameter, chain, draw order.
func (s *Store) WriteTo(w io.Writer) (int64, error) {
	bw := bufio.NewWriter(w)
	var n int64
	buf := make([]byte, 8)
	for _, p := range s.Samples {
		for _, c := range p {
			for _, v := range c {
				binary.LittleEndian.PutUint64(buf, math.Float64bits(v))
				if _, err := bw.Write(buf); err != nil {
					return n, err
				}
				n += 8
			}
		}
	}
	return n, bw.Flush()
}

// WriteTSV writes the draws as a table with chain and draw columns,
// gzip compressed if fn ends with .gz.
func (s *Store) WriteTSV(fn string) error {
	f, err := os.Create(fn)
	if err != nil {
		return errs.IOf("%v", err)
	}
	var w io.Writer = f
	var zw *pgzip.Writer
	if strings.HasSuffix(fn, ".gz") {
		zw = pgzip.NewWriter(f)
		w = zw
	}
	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "chain\tdraw\t%s\n", strings.Join(s.Names, "\t"))
	for c := 0; c < s.NumChains(); c++ {
		for d := 0; d < s.NumDraws(); d++ {
			bw.WriteString(strconv.Itoa(c))
			bw.WriteByte('\t')
			bw.WriteString(strconv.Itoa(d))
			for p := range s.Names {
				bw.WriteByte('\t')
				bw.WriteString(strconv.FormatFloat(s.Samples[p][c][d], 'g', -1, 64))
			}
			bw.WriteByte('\n')
		}
	}
	err = bw.Flush()
	if zw != nil {
		if cerr := zw.Close(); err == nil {
			err = cerr
		}
	}
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return errs.IOf("writing %s: %v", fn, err)
	}
	return nil
}
