package grm

import (
	"io"

	"gonum.org/v1/gonum/mat"

	"github.com/grexlab/grex/coding"
	"github.com/grexlab/grex/errs"
)

// LOCO holds M·Mᵀ of every chromosome, from which the GRM leaving one
// chromosome out is assembled. It keeps one n×n matrix per chromosome.
type LOCO struct {
	IDs    []string
	Policy coding.Policy
	Norm   Norm
	// Chroms are the chromosomes in order of first appearance.
	Chroms []string
	// SNPs are the indices of the SNPs of each chromosome.
	SNPs map[string][]int

	raw   map[string]*mat.SymDense
	scale map[string]float64
	whole *mat.SymDense
	total float64
}

// ComputeLOCO accumulates the per-chromosome M·Mᵀ for the given effect
// in a single pass over the genotypes.
func (b *Builder) ComputeLOCO(effect coding.Effect) (*LOCO, error) {
	pol := coding.Policy{Method: b.Method, Effect: effect}
	n := b.Reader.NumIndividuals()
	l := &LOCO{
		IDs:    b.Reader.IDs(),
		Policy: pol,
		Norm:   b.Norm,
		SNPs:   make(map[string][]int),
		raw:    make(map[string]*mat.SymDense),
		scale:  make(map[string]float64),
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
		// runs of SNPs on the same chromosome share one rank-k update
		for lo := 0; lo < len(stats); {
			chrom := b.Reader.SNPs[chunk.Start+lo].Chrom
			hi := lo + 1
			for hi < len(stats) && b.Reader.SNPs[chunk.Start+hi].Chrom == chrom {
				hi++
			}
			raw, ok := l.raw[chrom]
			if !ok {
				raw = mat.NewSymDense(n, nil)
				l.raw[chrom] = raw
				l.Chroms = append(l.Chroms, chrom)
			}
			block := chunk.Data.Slice(lo, hi, 0, n).T()
			raw.SymRankK(raw, 1, block)
			for j := lo; j < hi; j++ {
				l.SNPs[chrom] = append(l.SNPs[chrom], chunk.Start+j)
				if b.Norm == VanRaden {
					l.scale[chrom] += stats[j].VanRaden(effect)
				}
			}
			lo = hi
		}
	}

	l.whole = mat.NewSymDense(n, nil)
	for _, chrom := range l.Chroms {
		raw := l.raw[chrom]
		if b.Norm == Trace {
			l.scale[chrom] = mat.Trace(raw) / float64(n)
		}
		l.whole.AddSym(l.whole, raw)
		l.total += l.scale[chrom]
	}
	if !(l.total > 0) {
		return nil, errs.Inconsistentf("GRM scale is %v, no polymorphic SNPs", l.total)
	}
	log.Infof("Accumulated %s relationships of %d individuals on %d chromosomes", pol, n, len(l.Chroms))
	return l, nil
}

// Whole returns the GRM of all chromosomes.
func (l *LOCO) Whole() *mat.SymDense {
	k := mat.NewSymDense(len(l.IDs), nil)
	k.ScaleSym(1/l.total, l.whole)
	return k
}

// Leave returns the GRM of all chromosomes but chrom, scaled by the
// divisor of the remaining SNPs.
func (l *LOCO) Leave(chrom string) (*mat.SymDense, error) {
	raw, ok := l.raw[chrom]
	if !ok {
		return nil, errs.Argumentf("no SNPs on chromosome %s", chrom)
	}
	s := l.total - l.scale[chrom]
	if !(s > 0) {
		return nil, errs.Inconsistentf("GRM scale without chromosome %s is %v", chrom, s)
	}
	k := mat.NewSymDense(len(l.IDs), nil)
	k.ScaleSym(-1, raw)
	k.AddSym(k, l.whole)
	k.ScaleSym(1/s, k)
	log.Debugf("LOCO GRM without chromosome %s, scale %.6g", chrom, s)
	return k, nil
}
