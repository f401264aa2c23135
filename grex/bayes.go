package main

import (
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/alecthomas/kingpin.v2"

	"github.com/grexlab/grex/bayes"
	"github.com/grexlab/grex/coding"
	"github.com/grexlab/grex/errs"
	"github.com/grexlab/grex/grm"
	"github.com/grexlab/grex/mcmc"
	"github.com/grexlab/grex/posterior"
)

// bayesOptions are the options of the bayes command.
type bayesOptions struct {
	data dataOptions

	model     string
	dom       bool
	coding    string
	chunkSize int

	iter   int
	burnin int
	thin   int
	chains int
	report int

	h2       float64
	randProp float64
	pi       []float64
	prob     float64

	out       string
	samples   bool
	tracePlot string
}

func (o *bayesOptions) register(cmd *kingpin.CmdClause) {
	o.data.register(cmd, true)
	cmd.Flag("model", "Bayesian alphabet ("+strings.Join(bayes.AlphabetNames(), ", ")+")").
		Default("RR").StringVar(&o.model)
	cmd.Flag("dom", "add dominance marker effects").BoolVar(&o.dom)
	cmd.Flag("coding", "genotype coding ("+strings.Join(coding.MethodNames(), ", ")+")").
		Default("standardized").StringVar(&o.coding)
	cmd.Flag("chunk-size", "number of SNPs decoded at once").Default("10000").IntVar(&o.chunkSize)

	d := mcmc.DefaultSettings()
	cmd.Flag("iter", "number of iterations").Default(itoa(d.Iter)).IntVar(&o.iter)
	cmd.Flag("burnin", "number of burn-in iterations").Default(itoa(d.Burnin)).IntVar(&o.burnin)
	cmd.Flag("thin", "record every N-th iteration after burn-in").Default(itoa(d.Thin)).IntVar(&o.thin)
	cmd.Flag("chains", "number of chains").Default(itoa(d.Chains)).IntVar(&o.chains)
	cmd.Flag("report", "report every N iterations").Default(itoa(d.ReportPeriod)).IntVar(&o.report)

	p := bayes.DefaultPriorConfig()
	cmd.Flag("h2", "prior heritability target").Default(ftoa(p.H2)).Float64Var(&o.h2)
	cmd.Flag("random-prop", "prior proportion of variance of random effects").
		Default(ftoa(p.RandomProportion)).Float64Var(&o.randProp)
	cmd.Flag("pi", "prior mixture proportions of spike models, zero first (repeatable)").Float64ListVar(&o.pi)
	cmd.Flag("hpdi", "probability mass of the highest posterior density interval").
		Default(ftoa(posterior.DefaultHPDIProb)).Float64Var(&o.prob)

	cmd.Flag("out", "output prefix").Required().StringVar(&o.out)
	cmd.Flag("samples", "write all recorded draws to <out>.samples.tsv.gz").BoolVar(&o.samples)
	cmd.Flag("trace-plot", "write trace plots to this directory (png)").StringVar(&o.tracePlot)
}

// bayesSettings gathers the settings of the sampler.
type bayesSettings struct {
	alphabet bayes.Alphabet
	priors   bayes.PriorConfig
	run      mcmc.Settings
}

// create validates the options and builds the settings.
func (o *bayesOptions) create(threads int, seed uint64) (*bayesSettings, error) {
	a, err := bayes.ParseAlphabet(o.model)
	if err != nil {
		return nil, err
	}
	s := &bayesSettings{alphabet: a}
	s.priors = bayes.DefaultPriorConfig()
	s.priors.H2 = o.h2
	s.priors.RandomProportion = o.randProp
	if len(o.pi) > 0 {
		s.priors.Pi = o.pi
	}
	s.run = mcmc.Settings{
		Iter:         o.iter,
		Burnin:       o.burnin,
		Thin:         o.thin,
		Chains:       o.chains,
		Threads:      threads,
		Seed:         seed,
		ReportPeriod: o.report,
	}
	if err := s.run.Validate(); err != nil {
		return nil, err
	}
	if o.prob <= 0 || o.prob > 1 {
		return nil, errs.Argumentf("HPDI probability must be in (0, 1], got %v", o.prob)
	}
	return s, nil
}

// buildModel loads the data and the coded markers.
func (o *bayesOptions) buildModel(s *bayesSettings, threads int) (*bayes.Model, string, error) {
	dt, err := o.data.load()
	if err != nil {
		return nil, "", err
	}
	x, names := dt.covariates()
	m, err := bayes.New(dt.IDs, dt.Y.RawVector().Data, x, names)
	if err != nil {
		return nil, "", err
	}
	for _, name := range dt.GroupsOrder {
		if err := m.AddRandom(name, dt.Groups[name]); err != nil {
			return nil, "", err
		}
	}

	method, err := coding.ParseMethod(o.coding)
	if err != nil {
		return nil, "", err
	}
	r, err := o.data.openBed(dt.IDs)
	if err != nil {
		return nil, "", err
	}
	defer r.Close()
	effects := []coding.Effect{coding.Additive}
	if o.dom {
		effects = append(effects, coding.Dominant)
	}
	for _, e := range effects {
		mk, err := grm.LoadMarkers(r, coding.Policy{Method: method, Effect: e}, o.chunkSize, threads)
		if err != nil {
			return nil, "", err
		}
		name := effectName(e)
		if err := m.AddMarkers(name, mk.Cols, mk.SNPs, s.alphabet); err != nil {
			return nil, "", err
		}
	}
	if err := m.SetPriors(s.priors); err != nil {
		return nil, "", err
	}
	return m, dt.PhenoName, nil
}

// run runs the bayes command.
func (o *bayesOptions) run(threads int, seed uint64) (*BayesSummary, error) {
	s, err := o.create(threads, seed)
	if err != nil {
		return nil, err
	}
	m, pheno, err := o.buildModel(s, threads)
	if err != nil {
		return nil, err
	}
	log.Infof("Sampling %s: %d iterations, burn-in %d, thinning %d, %d chain(s)",
		s.alphabet, s.run.Iter, s.run.Burnin, s.run.Thin, s.run.Chains)

	res, err := mcmc.Run(m, s.run)
	if err != nil {
		return nil, err
	}
	rows := posterior.Summarize(res.Store, o.prob)
	if err := o.write(res, rows); err != nil {
		return nil, err
	}
	for _, r := range rows {
		log.Noticef("%s: %.6g (sd %.4g, n_eff %.1f, r_hat %.3f)", r.Parameter, r.Mean, r.Std, r.NEff, r.RHat)
	}
	return &BayesSummary{
		N:         m.N(),
		Phenotype: pheno,
		Model:     s.alphabet.String(),
		Chains:    res.Chains,
		Dropped:   len(res.Dropped),
		Time:      res.Time.Seconds(),
		Posterior: rows,
	}, nil
}

// write writes the posterior summary, the marker effects, and
// optionally the draws and trace plots.
func (o *bayesOptions) write(res *mcmc.Result, rows []posterior.Row) error {
	if err := writeTo(o.out+".bayes.tsv", func(f *os.File) error { return posterior.WriteTSV(f, rows) }); err != nil {
		return err
	}
	if err := writeTo(o.out+".snp.tsv", func(f *os.File) error { return posterior.WriteMarkers(f, res.Markers) }); err != nil {
		return err
	}
	if o.samples {
		if err := res.Store.WriteTSV(o.out + ".samples.tsv.gz"); err != nil {
			return err
		}
	}
	if o.tracePlot != "" {
		if err := os.MkdirAll(o.tracePlot, 0755); err != nil {
			return errs.IOf("%v", err)
		}
		for _, name := range res.Store.Names {
			fn := filepath.Join(o.tracePlot, name+".png")
			if err := res.Store.PlotTrace(name, fn); err != nil {
				return err
			}
		}
	}
	return nil
}
