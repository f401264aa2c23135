package gwas

import (
	"errors"
	"runtime"
	"sync"

	"gonum.org/v1/gonum/mat"

	"github.com/grexlab/grex/bed"
	"github.com/grexlab/grex/coding"
	"github.com/grexlab/grex/errs"
	"github.com/grexlab/grex/grm"
	"github.com/grexlab/grex/model"
	"github.com/grexlab/grex/reml"
)

// DefaultChunkSize is the number of SNPs read and tested at once.
const DefaultChunkSize = 1000

// Config controls a genome scan.
type Config struct {
	Model Model
	Test  Test
	// LOCO fits one null model per chromosome with a GRM leaving that
	// chromosome out. Otherwise a single null model uses all SNPs.
	LOCO bool
	// Dominance adds a dominance GRM to the null model.
	Dominance bool
	// Coding and Norm build the null model GRMs.
	Coding    coding.Method
	Norm      grm.Norm
	ChunkSize int
	Threads   int
	REML      reml.Settings
}

func (c Config) chunkSize() int {
	if c.ChunkSize <= 0 {
		return DefaultChunkSize
	}
	return c.ChunkSize
}

func (c Config) threads() int {
	if c.Threads <= 0 {
		return runtime.GOMAXPROCS(0)
	}
	return c.Threads
}

// NullFit summarizes the null model of a set of tested SNPs.
type NullFit struct {
	// Chrom is the left out chromosome, empty without LOCO.
	Chrom      string           `json:"chrom,omitempty"`
	SNPs       int              `json:"snps"`
	Converged  bool             `json:"converged"`
	Components []reml.Component `json:"components"`
}

// Summary summarizes a genome scan.
type Summary struct {
	Model  string `json:"model"`
	Tested int    `json:"tested"`
	// Invalid counts monomorphic or uncalled SNPs.
	Invalid int       `json:"invalid"`
	Nulls   []NullFit `json:"nulls"`
}

// Scan tests every SNP of r. base holds the phenotype, the fixed
// effects and any non-genetic random terms; the GRMs are added to a
// copy of it. The individuals of r must be those of base, in order.
// Results are written in order of the chromosomes' first appearance.
func Scan(base *model.Model, r *bed.Reader, c Config, w *Writer) (*Summary, error) {
	if r.NumIndividuals() != base.N() {
		return nil, errs.Inconsistentf("%d genotyped individuals for %d phenotypes", r.NumIndividuals(), base.N())
	}
	b := grm.Builder{Reader: r, Method: c.Coding, Norm: c.Norm, ChunkSize: c.chunkSize(), Threads: c.threads()}
	add, err := b.ComputeLOCO(coding.Additive)
	if err != nil {
		return nil, err
	}
	var dom *grm.LOCO
	if c.Dominance {
		if dom, err = b.ComputeLOCO(coding.Dominant); err != nil {
			return nil, err
		}
	}

	if err := w.WriteHeader(); err != nil {
		return nil, errs.IOf("writing association results: %v", err)
	}
	sum := &Summary{Model: c.Model.String()}

	if !c.LOCO {
		var kDom *mat.SymDense
		if dom != nil {
			kDom = dom.Whole()
		}
		var snps []int
		for _, chrom := range add.Chroms {
			snps = append(snps, add.SNPs[chrom]...)
		}
		if err := scanSet(base, r, c, w, sum, "", snps, add.Whole(), kDom); err != nil {
			return nil, err
		}
		return sum, w.Flush()
	}

	for _, chrom := range add.Chroms {
		kAdd, err := add.Leave(chrom)
		if err != nil {
			return nil, err
		}
		var kDom *mat.SymDense
		if dom != nil {
			if kDom, err = dom.Leave(chrom); err != nil {
				return nil, err
			}
		}
		if err := scanSet(base, r, c, w, sum, chrom, add.SNPs[chrom], kAdd, kDom); err != nil {
			return nil, err
		}
	}
	return sum, w.Flush()
}

// scanSet fits the null model with the given GRMs and tests snps.
func scanSet(base *model.Model, r *bed.Reader, c Config, w *Writer, sum *Summary,
	chrom string, snps []int, kAdd, kDom *mat.SymDense) error {
	m := base.Copy()
	if err := m.Add("g", model.Genetic, kAdd); err != nil {
		return err
	}
	if kDom != nil {
		if err := m.Add("d", model.Genetic, kDom); err != nil {
			return err
		}
	}
	null, err := reml.FitNull(m, c.REML)
	if err != nil && !errors.Is(err, errs.ErrNonConvergence) {
		return err
	}
	fit := NullFit{
		Chrom:      chrom,
		SNPs:       len(snps),
		Converged:  err == nil,
		Components: null.Result.Components,
	}
	sum.Nulls = append(sum.Nulls, fit)
	if chrom != "" {
		log.Infof("Chromosome %s: %d SNPs, null model %v", chrom, len(snps), m.Sigma())
	} else {
		log.Infof("%d SNPs, null model %v", len(snps), m.Sigma())
	}

	if len(snps) == 0 {
		return nil
	}
	t := newTester(null.VInv, null.Residual, c.Model, c.Test)
	chunk := min(c.chunkSize(), len(snps))
	block := mat.NewDense(chunk, r.NumIndividuals(), nil)
	rows := make([]Row, chunk)
	for lo := 0; lo < len(snps); lo += chunk {
		hi := min(lo+chunk, len(snps))
		for k, j := range snps[lo:hi] {
			if err := r.ReadSNP(j, block.RawRowView(k)); err != nil {
				return err
			}
		}
		t.runBlock(block, rows[:hi-lo], c.threads())
		for k, j := range snps[lo:hi] {
			rows[k].SNP = r.SNPs[j]
			if rows[k].DF == 0 {
				sum.Invalid++
			}
			if err := w.Write(rows[k]); err != nil {
				return errs.IOf("writing association results: %v", err)
			}
		}
		sum.Tested += hi - lo
		log.Debugf("Tested %d of %d SNPs", hi, len(snps))
	}
	return nil
}

// runBlock tests the first len(rows) rows of block with the given
// number of workers.
func (t *tester) runBlock(block *mat.Dense, rows []Row, threads int) {
	next := make(chan int)
	var wg sync.WaitGroup
	for i := 0; i < threads; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s := t.scratch()
			for k := range next {
				rows[k] = t.run(block.RawRowView(k), s)
			}
		}()
	}
	for k := range rows {
		next <- k
	}
	close(next)
	wg.Wait()
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
