// Package grm builds genomic relationship matrices from PLINK genotypes.
package grm

import (
	"fmt"
	"io"
	"runtime"
	"strings"

	"github.com/op/go-logging"
	"gonum.org/v1/gonum/mat"

	"github.com/grexlab/grex/bed"
	"github.com/grexlab/grex/coding"
	"github.com/grexlab/grex/errs"
)

var log = logging.MustGetLogger("grm")

// DefaultChunkSize is the number of SNPs decoded at once.
const DefaultChunkSize = 10000

// Norm selects the divisor of M·Mᵀ.
type Norm int

const (
	// Trace divides by tr(M·Mᵀ)/n so that tr(K)/n = 1.
	Trace Norm = iota
	// VanRaden divides by Σ 2p(1-p).
	VanRaden
)

func (n Norm) String() string {
	if n == VanRaden {
		return "vanraden"
	}
	return "trace"
}

// ParseNorm parses "trace" (also "yang") or "vanraden".
func ParseNorm(s string) (Norm, error) {
	switch strings.ToLower(s) {
	case "trace", "yang":
		return Trace, nil
	case "vanraden", "van-raden":
		return VanRaden, nil
	}
	return Trace, errs.Invalidf("unknown GRM normalization %q", s)
}

// GRM is a relationship matrix together with the coding that produced it.
type GRM struct {
	IDs    []string
	SNPs   []string
	K      *mat.SymDense
	Policy coding.Policy
	Norm   Norm
	Stats  []coding.ColumnStats
	// Scale is the divisor applied to M·Mᵀ.
	Scale float64
	// Monomorphic is the number of skipped columns.
	Monomorphic int
}

// Builder accumulates K = M·Mᵀ/s over SNP chunks.
type Builder struct {
	Reader    *bed.Reader
	Method    coding.Method
	Norm      Norm
	ChunkSize int
	// Threads bounds the number of columns coded concurrently.
	Threads int
}

func (b *Builder) chunkSize() int {
	if b.ChunkSize <= 0 {
		return DefaultChunkSize
	}
	return b.ChunkSize
}

func (b *Builder) threads() int {
	if b.Threads <= 0 {
		return runtime.GOMAXPROCS(0)
	}
	return b.Threads
}

// codeChunk codes all columns of a chunk in place. The first column
// holding something other than a genotype count fails the chunk.
func codeChunk(chunk *bed.Chunk, pol coding.Policy, threads int) ([]coding.ColumnStats, error) {
	stats := make([]coding.ColumnStats, chunk.NumSNPs())
	th := throttle{Max: threads}
	for j := range stats {
		th.Acquire()
		go func(j int) {
			defer th.Release()
			col := chunk.Column(j)
			if err := coding.Validate(col); err != nil {
				th.Report(fmt.Errorf("SNP %d: %w", chunk.Start+j, err))
				return
			}
			stats[j] = pol.Code(col)
		}(j)
	}
	if err := th.Wait(); err != nil {
		return nil, err
	}
	return stats, nil
}

// Compute builds the GRM for the given effect.
func (b *Builder) Compute(effect coding.Effect) (*GRM, error) {
	pol := coding.Policy{Method: b.Method, Effect: effect}
	n := b.Reader.NumIndividuals()
	raw := mat.NewSymDense(n, nil)
	g := &GRM{
		IDs:    b.Reader.IDs(),
		SNPs:   b.Reader.SNPIDs(),
		Policy: pol,
		Norm:   b.Norm,
		Stats:  make([]coding.ColumnStats, 0, b.Reader.NumSNPs()),
	}

	b.Reader.Reset()
	for {
		chunk, err := b.Reader.ReadChunk(b.chunkSize())
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		stats, err := codeChunk(chunk, pol, b.threads())
		if err != nil {
			return nil, err
		}
		raw.SymRankK(raw, 1, chunk.Matrix())
		g.Stats = append(g.Stats, stats...)
		log.Debugf("Accumulated SNPs %d-%d", chunk.Start, chunk.Start+chunk.NumSNPs())
	}

	for _, st := range g.Stats {
		if st.Monomorphic {
			g.Monomorphic++
		}
	}
	if g.Monomorphic > 0 {
		log.Infof("%d monomorphic SNPs skipped", g.Monomorphic)
	}

	g.Scale = scale(raw, g.Stats, b.Norm, effect)
	if !(g.Scale > 0) {
		return nil, errs.Inconsistentf("GRM scale is %v, no polymorphic SNPs", g.Scale)
	}
	g.K = mat.NewSymDense(n, nil)
	g.K.ScaleSym(1/g.Scale, raw)
	log.Infof("Built %s GRM of %d individuals from %d SNPs (scale %.6g)", pol, n, len(g.Stats), g.Scale)
	return g, nil
}

// scale returns the divisor of the accumulated M·Mᵀ.
func scale(raw *mat.SymDense, stats []coding.ColumnStats, norm Norm, effect coding.Effect) float64 {
	if norm == VanRaden {
		s := 0.0
		for _, st := range stats {
			s += st.VanRaden(effect)
		}
		return s
	}
	n := raw.Symmetric()
	return mat.Trace(raw) / float64(n)
}

// Select returns the submatrix of K for ids, in the given order.
func (g *GRM) Select(ids []string) (*mat.SymDense, error) {
	pos := make(map[string]int, len(g.IDs))
	for i, id := range g.IDs {
		pos[id] = i
	}
	idx := make([]int, len(ids))
	for i, id := range ids {
		j, ok := pos[id]
		if !ok {
			return nil, fmt.Errorf("%w: %s not in GRM", bed.ErrMissingIndividual, id)
		}
		idx[i] = j
	}
	k := mat.NewSymDense(len(ids), nil)
	for i := range idx {
		for j := i; j < len(idx); j++ {
			k.SetSym(i, j, g.K.At(idx[i], idx[j]))
		}
	}
	return k, nil
}
