package main

import (
	"os"
	"strings"

	"gopkg.in/alecthomas/kingpin.v2"

	"github.com/grexlab/grex/coding"
	"github.com/grexlab/grex/errs"
	"github.com/grexlab/grex/grm"
	"github.com/grexlab/grex/gwas"
	"github.com/grexlab/grex/model"
	"github.com/grexlab/grex/reml"
)

// gwasOptions are the options of the gwas command.
type gwasOptions struct {
	data dataOptions

	model     string
	test      string
	loco      bool
	dom       bool
	coding    string
	norm      string
	chunkSize int

	method  string
	maxIter int
	tol     float64

	out string
}

func (o *gwasOptions) register(cmd *kingpin.CmdClause) {
	o.data.register(cmd, true)
	cmd.Flag("model", "tested effects: a (additive), d (dominance) or ad (both)").Default("a").StringVar(&o.model)
	cmd.Flag("test", "test of the ad model: joint, or separate to add per-effect p-values").
		Default("joint").StringVar(&o.test)
	cmd.Flag("loco", "leave the chromosome of the tested SNP out of the GRM").Default("true").BoolVar(&o.loco)
	cmd.Flag("dom", "add a dominance GRM to the null model").BoolVar(&o.dom)
	cmd.Flag("coding", "genotype coding of the GRMs ("+strings.Join(coding.MethodNames(), ", ")+")").
		Default("standardized").StringVar(&o.coding)
	cmd.Flag("norm", "GRM normalization (yang or vanraden)").Default("yang").StringVar(&o.norm)
	cmd.Flag("chunk-size", "number of SNPs decoded at once").Default("1000").IntVar(&o.chunkSize)
	cmd.Flag("method", "null model optimization method (AI, EM, lbfgsb, bfgs, simplex)").
		Default("AI").EnumVar(&o.method, "AI", "ai", "EM", "em", "lbfgsb", "bfgs", "simplex")
	cmd.Flag("max-iter", "maximum number of null model iterations").Default("100").IntVar(&o.maxIter)
	cmd.Flag("tol", "null model relative variance change tolerance").Default("1e-6").Float64Var(&o.tol)
	cmd.Flag("out", "output prefix, writes <out>.gwas.tsv").Required().StringVar(&o.out)
}

// run runs the gwas command.
func (o *gwasOptions) run(threads int) (*GwasSummary, error) {
	c := gwas.Config{LOCO: o.loco, Dominance: o.dom, ChunkSize: o.chunkSize, Threads: threads}
	var err error
	if c.Model, err = gwas.ParseModel(o.model); err != nil {
		return nil, err
	}
	if c.Test, err = gwas.ParseTest(o.test); err != nil {
		return nil, err
	}
	if c.Coding, err = coding.ParseMethod(o.coding); err != nil {
		return nil, err
	}
	if c.Norm, err = grm.ParseNorm(o.norm); err != nil {
		return nil, err
	}
	c.REML = reml.DefaultSettings()
	c.REML.Method = o.method
	c.REML.MaxIter = o.maxIter
	c.REML.Tol = o.tol
	c.REML.ReportPeriod = 0

	dt, err := o.data.load()
	if err != nil {
		return nil, err
	}
	base, err := model.New(dt.IDs, dt.Y, dt.X, dt.XNames)
	if err != nil {
		return nil, err
	}
	base.Individuals = dt.Individuals
	for _, name := range dt.GroupsOrder {
		if err := base.AddGroups(name, dt.Groups[name]); err != nil {
			return nil, err
		}
	}
	r, err := o.data.openBed(dt.IDs)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	fn := o.out + ".gwas.tsv"
	f, err := os.Create(fn)
	if err != nil {
		return nil, errs.IOf("%v", err)
	}
	res, err := gwas.Scan(base, r, c, gwas.NewWriter(f, c.Model, c.Test))
	if cerr := f.Close(); err == nil && cerr != nil {
		err = errs.IOf("writing %s: %v", fn, cerr)
	}
	if err != nil {
		return nil, err
	}
	log.Noticef("Tested %d SNPs (%d invalid), wrote %s", res.Tested, res.Invalid, fn)
	return &GwasSummary{N: base.N(), Phenotype: dt.PhenoName, Summary: res}, nil
}
