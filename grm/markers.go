package grm

import (
	"io"

	"gonum.org/v1/gonum/mat"

	"github.com/grexlab/grex/bed"
	"github.com/grexlab/grex/coding"
)

// Markers are coded genotypes of all SNPs, stored SNP-major.
type Markers struct {
	IDs   []string
	SNPs  []string
	Cols  *mat.Dense
	Stats []coding.ColumnStats
}

// LoadMarkers reads and codes every SNP of r. The whole matrix is kept
// in memory, so this is only used by the samplers and the simulator.
func LoadMarkers(r *bed.Reader, pol coding.Policy, chunkSize, threads int) (*Markers, error) {
	b := Builder{Reader: r, ChunkSize: chunkSize, Threads: threads}
	m := &Markers{
		IDs:   r.IDs(),
		SNPs:  r.SNPIDs(),
		Cols:  mat.NewDense(r.NumSNPs(), r.NumIndividuals(), nil),
		Stats: make([]coding.ColumnStats, 0, r.NumSNPs()),
	}
	r.Reset()
	for {
		chunk, err := r.ReadChunk(b.chunkSize())
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
		m.Stats = append(m.Stats, stats...)
		for j := 0; j < chunk.NumSNPs(); j++ {
			m.Cols.SetRow(chunk.Start+j, chunk.Column(j))
		}
	}
	log.Infof("Loaded %d %s coded SNPs of %d individuals", len(m.SNPs), pol, len(m.IDs))
	return m, nil
}
