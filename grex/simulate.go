package main

import (
	"gopkg.in/alecthomas/kingpin.v2"

	"github.com/grexlab/grex/bed"
	"github.com/grexlab/grex/simulate"
)

// simOptions are the options of the simulate command.
type simOptions struct {
	bfile      string
	h2         float64
	d2         float64
	intercept  float64
	addClasses []string
	domClasses []string
	chunkSize  int
	out        string
}

func (o *simOptions) register(cmd *kingpin.CmdClause) {
	cmd.Flag("bfile", "PLINK .bed/.bim/.fam prefix").Required().StringVar(&o.bfile)
	cmd.Flag("h2", "narrow-sense heritability").Default("0.5").Float64Var(&o.h2)
	cmd.Flag("d2", "dominance variance proportion").Default("0").Float64Var(&o.d2)
	cmd.Flag("intercept", "phenotype intercept").Default("0").Float64Var(&o.intercept)
	cmd.Flag("add-class", "additive effect class proportion:variance (repeatable)").StringsVar(&o.addClasses)
	cmd.Flag("dom-class", "dominance effect class proportion:variance (repeatable)").StringsVar(&o.domClasses)
	cmd.Flag("chunk-size", "number of SNPs decoded at once").
		Default(itoa(simulate.DefaultChunkSize)).IntVar(&o.chunkSize)
	cmd.Flag("out", "output prefix, writes <out>.phen and <out>.causal").Required().StringVar(&o.out)
}

// parseClasses parses class flags, the default is a single class.
func parseClasses(flags []string) ([]simulate.Class, error) {
	if len(flags) == 0 {
		return simulate.DefaultClasses(), nil
	}
	classes := make([]simulate.Class, 0, len(flags))
	for _, f := range flags {
		c, err := simulate.ParseClass(f)
		if err != nil {
			return nil, err
		}
		classes = append(classes, c)
	}
	return classes, nil
}

// config creates the simulation configuration.
func (o *simOptions) config(seed uint64) (simulate.Config, error) {
	c := simulate.Config{
		H2:        o.h2,
		D2:        o.d2,
		Intercept: o.intercept,
		Seed:      seed,
		ChunkSize: o.chunkSize,
	}
	var err error
	if c.AddClasses, err = parseClasses(o.addClasses); err != nil {
		return c, err
	}
	if c.DomClasses, err = parseClasses(o.domClasses); err != nil {
		return c, err
	}
	return c, c.Validate()
}

// run runs the simulate command.
func (o *simOptions) run(seed uint64) (*SimulationSummary, error) {
	c, err := o.config(seed)
	if err != nil {
		return nil, err
	}
	r, err := bed.Open(o.bfile, bed.Options{})
	if err != nil {
		return nil, err
	}
	defer r.Close()

	res, err := simulate.Run(r, c)
	if err != nil {
		return nil, err
	}
	if err := res.Write(o.out); err != nil {
		return nil, err
	}
	log.Noticef("Wrote %s.phen and %s.causal", o.out, o.out)
	return &SimulationSummary{
		N:      len(res.Phenotypes),
		SNPs:   len(res.SNPs),
		TrueH2: res.TrueH2,
		TrueD2: res.TrueD2,
	}, nil
}
