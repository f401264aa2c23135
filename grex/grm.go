package main

import (
	"strings"

	"gopkg.in/alecthomas/kingpin.v2"

	"github.com/grexlab/grex/bed"
	"github.com/grexlab/grex/coding"
	"github.com/grexlab/grex/grm"
)

// grmOptions are the options of the grm command.
type grmOptions struct {
	bfile     string
	testBfile string
	iidOnly   bool
	coding    string
	norm      string
	dom       bool
	chunkSize int
	out       string
}

func (o *grmOptions) register(cmd *kingpin.CmdClause) {
	cmd.Flag("bfile", "PLINK .bed/.bim/.fam prefix").Required().StringVar(&o.bfile)
	cmd.Flag("test-bfile", "compute the cross-GRM between these individuals and --bfile").StringVar(&o.testBfile)
	cmd.Flag("iid-only", "identify individuals by IID only").BoolVar(&o.iidOnly)
	cmd.Flag("coding", "genotype coding ("+strings.Join(coding.MethodNames(), ", ")+")").
		Default("standardized").StringVar(&o.coding)
	cmd.Flag("norm", "GRM normalization (yang or vanraden)").Default("yang").StringVar(&o.norm)
	cmd.Flag("dom", "also build the dominance GRM").BoolVar(&o.dom)
	cmd.Flag("chunk-size", "number of SNPs decoded at once").Default("10000").IntVar(&o.chunkSize)
	cmd.Flag("out", "output prefix, writes <out>.add.npy and <out>.dom.npy").Required().StringVar(&o.out)
}

func (o *grmOptions) effects() []coding.Effect {
	if o.dom {
		return []coding.Effect{coding.Additive, coding.Dominant}
	}
	return []coding.Effect{coding.Additive}
}

func effectName(e coding.Effect) string {
	if e == coding.Dominant {
		return "dom"
	}
	return "add"
}

// run runs the grm command.
func (o *grmOptions) run(threads int) (*GRMSummary, error) {
	method, err := coding.ParseMethod(o.coding)
	if err != nil {
		return nil, err
	}
	norm, err := grm.ParseNorm(o.norm)
	if err != nil {
		return nil, err
	}
	r, err := bed.Open(o.bfile, bed.Options{IIDOnly: o.iidOnly})
	if err != nil {
		return nil, err
	}
	defer r.Close()
	if o.testBfile != "" {
		return o.cross(r, method, norm, threads)
	}

	b := grm.Builder{Reader: r, Method: method, Norm: norm, ChunkSize: o.chunkSize, Threads: threads}
	summary := &GRMSummary{N: r.NumIndividuals(), SNPs: r.NumSNPs()}
	for _, e := range o.effects() {
		g, err := b.Compute(e)
		if err != nil {
			return nil, err
		}
		fn := o.out + "." + effectName(e) + ".npy"
		if err := g.WriteNpy(fn); err != nil {
			return nil, err
		}
		log.Noticef("Wrote %s", fn)
		summary.Monomorphic = g.Monomorphic
		summary.Files = append(summary.Files, fn)
	}
	return summary, nil
}

// cross writes the test×train cross-GRMs.
func (o *grmOptions) cross(train *bed.Reader, method coding.Method, norm grm.Norm, threads int) (*GRMSummary, error) {
	test, err := bed.Open(o.testBfile, bed.Options{IIDOnly: o.iidOnly})
	if err != nil {
		return nil, err
	}
	defer test.Close()

	b := grm.CrossBuilder{Train: train, Test: test, Method: method, Norm: norm,
		ChunkSize: o.chunkSize, Threads: threads}
	summary := &GRMSummary{N: test.NumIndividuals(), SNPs: train.NumSNPs()}
	for _, e := range o.effects() {
		c, err := b.Compute(e)
		if err != nil {
			return nil, err
		}
		fn := o.out + "." + effectName(e) + ".cross.npy"
		if err := c.WriteNpy(fn); err != nil {
			return nil, err
		}
		log.Noticef("Wrote %s", fn)
		summary.Files = append(summary.Files, fn)
	}
	return summary, nil
}
