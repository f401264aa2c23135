package simulate

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"

	"github.com/op/go-logging"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/grexlab/grex/bed"
	"github.com/grexlab/grex/coding"
	"github.com/grexlab/grex/dist"
	"github.com/grexlab/grex/errs"
)

var log = logging.MustGetLogger("simulate")

// DefaultChunkSize is the number of SNPs decoded at once.
const DefaultChunkSize = 10000

// Config describes a simulation.
type Config struct {
	// H2 is the additive heritability, in (0, 1).
	H2 float64
	// D2 is the dominance variance proportion, in [0, 1).
	D2         float64
	Intercept  float64
	AddClasses []Class
	DomClasses []Class
	Seed       uint64
	ChunkSize  int
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if c.H2 <= 0 || c.H2 >= 1 {
		return errs.Argumentf("heritability must be in (0, 1), got %v", c.H2)
	}
	if c.D2 < 0 || c.D2 >= 1 {
		return errs.Argumentf("dominance variance must be in [0, 1), got %v", c.D2)
	}
	if c.H2+c.D2 >= 1 {
		return errs.Argumentf("h2 + d2 must be less than 1, got %v", c.H2+c.D2)
	}
	if err := ValidateClasses(c.AddClasses, "additive"); err != nil {
		return err
	}
	if c.D2 > 0 {
		return ValidateClasses(c.DomClasses, "dominance")
	}
	return nil
}

// Result is a simulated data set.
type Result struct {
	Individuals []bed.Individual
	Phenotypes  []float64
	SNPs        []string
	Effects     []Effect
	// TrueH2 and TrueD2 are the realized variance proportions.
	TrueH2 float64
	TrueD2 float64
}

// Run simulates phenotypes for every individual of r. Genetic values
// use orthogonal standardized coding. The dominance values are
// rescaled to variance Va·d2/h2 and the residual variance is
// Va·(1-h2-d2)/h2, where Va is the realized additive variance.
func Run(r *bed.Reader, c Config) (*Result, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	rnd := dist.NewSampler(c.Seed)
	var domClasses []Class
	if c.D2 > 0 {
		domClasses = c.DomClasses
	}
	m := r.NumSNPs()
	res := &Result{
		Individuals: r.Individuals,
		SNPs:        r.SNPIDs(),
		Effects:     SampleEffects(c.AddClasses, domClasses, m, rnd),
	}
	log.Infof("Simulating h2 = %.2f, d2 = %.2f with %d SNPs, seed %d", c.H2, c.D2, m, c.Seed)

	add, dom, err := geneticValues(r, res.Effects, c)
	if err != nil {
		return nil, err
	}

	va := stat.Variance(add, nil)
	ve := va * (1/c.H2 - 1)
	if c.D2 > 0 && va > 0 {
		if vd := stat.Variance(dom, nil); vd > 0 {
			floats.Scale(math.Sqrt(va*c.D2/c.H2/vd), dom)
		}
		ve = va * (1 - c.H2 - c.D2) / c.H2
	}
	if va == 0 {
		log.Warning("Additive genetic variance is zero")
	}

	sd := math.Sqrt(math.Max(0, ve))
	res.Phenotypes = make([]float64, len(add))
	for i := range add {
		res.Phenotypes[i] = c.Intercept + add[i] + dom[i] + rnd.Normal(0, sd)
	}
	vp := stat.Variance(res.Phenotypes, nil)
	if vp > 0 {
		res.TrueH2 = va / vp
		res.TrueD2 = stat.Variance(dom, nil) / vp
	}
	log.Noticef("Realized h2 = %.4f, d2 = %.4f", res.TrueH2, res.TrueD2)
	return res, nil
}

// geneticValues accumulates M·a and D·d chunk by chunk.
func geneticValues(r *bed.Reader, effects []Effect, c Config) (add, dom []float64, err error) {
	n := r.NumIndividuals()
	add = make([]float64, n)
	dom = make([]float64, n)
	addPol := coding.Policy{Method: coding.OrthStandardized, Effect: coding.Additive}
	domPol := coding.Policy{Method: coding.OrthStandardized, Effect: coding.Dominant}
	chunkSize := c.ChunkSize
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	col := make([]float64, n)

	r.Reset()
	for {
		chunk, err := r.ReadChunk(chunkSize)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, nil, err
		}
		for j := 0; j < chunk.NumSNPs(); j++ {
			e := effects[chunk.Start+j]
			g := chunk.Column(j)
			if err := coding.Validate(g); err != nil {
				return nil, nil, fmt.Errorf("SNP %d: %w", chunk.Start+j, err)
			}
			if c.D2 > 0 && e.Dominance != 0 {
				copy(col, g)
				domPol.Code(col)
				floats.AddScaled(dom, e.Dominance, col)
			}
			if e.Additive != 0 {
				addPol.Code(g)
				floats.AddScaled(add, e.Additive, g)
			}
		}
	}
	return add, dom, nil
}

// WritePhenotypes writes FID, IID and phenotype columns.
func (res *Result) WritePhenotypes(fn string) error {
	return writeFile(fn, func(w *bufio.Writer) {
		fmt.Fprintln(w, "FID\tIID\tphenotype")
		for i, ind := range res.Individuals {
			fmt.Fprintf(w, "%s\t%s\t%s\n", ind.FID, ind.IID,
				strconv.FormatFloat(res.Phenotypes[i], 'g', -1, 64))
		}
	})
}

// WriteCausal writes the effect and class of every SNP.
func (res *Result) WriteCausal(fn string) error {
	return writeFile(fn, func(w *bufio.Writer) {
		fmt.Fprintln(w, "SNP\tadditive_effect\tdominance_effect\tadd_class\tdom_class")
		for j, e := range res.Effects {
			fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\n", res.SNPs[j],
				strconv.FormatFloat(e.Additive, 'g', -1, 64),
				strconv.FormatFloat(e.Dominance, 'g', -1, 64),
				e.AddClass, e.DomClass)
		}
	})
}

// Write writes <prefix>.phen and <prefix>.causal.
func (res *Result) Write(prefix string) error {
	if err := res.WritePhenotypes(prefix + ".phen"); err != nil {
		return err
	}
	if err := res.WriteCausal(prefix + ".causal"); err != nil {
		return err
	}
	log.Noticef("Wrote %s.phen and %s.causal", prefix, prefix)
	return nil
}

func writeFile(fn string, body func(w *bufio.Writer)) error {
	f, err := os.Create(fn)
	if err != nil {
		return errs.IOf("%v", err)
	}
	w := bufio.NewWriter(f)
	body(w)
	err = w.Flush()
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return errs.IOf("writing %s: %v", fn, err)
	}
	return nil
}
