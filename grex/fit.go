package main

import (
	"os"
	"path/filepath"
	"strings"
	"syscall"

	"gopkg.in/alecthomas/kingpin.v2"

	"github.com/grexlab/grex/checkpoint"
	"github.com/grexlab/grex/coding"
	"github.com/grexlab/grex/errs"
	"github.com/grexlab/grex/grm"
	"github.com/grexlab/grex/model"
	"github.com/grexlab/grex/reml"
)

// fitOptions are the options of the fit command.
type fitOptions struct {
	data dataOptions

	grms      []string
	dom       bool
	coding    string
	norm      string
	chunkSize int

	method     string
	emInit     bool
	maxIter    int
	tol        float64
	report     int
	start      string
	trajectory string
	checkpoint string
	cpSeconds  float64

	out string
}

func (o *fitOptions) register(cmd *kingpin.CmdClause) {
	o.data.register(cmd, false)
	cmd.Flag("grm", "precomputed GRM in .npy format with IDs in <file>.id (repeatable); "+
		"by default an additive GRM is built from --bfile").ExistingFilesVar(&o.grms)
	cmd.Flag("dom", "add a dominance GRM built from --bfile").BoolVar(&o.dom)
	cmd.Flag("coding", "genotype coding ("+strings.Join(coding.MethodNames(), ", ")+")").
		Default("standardized").StringVar(&o.coding)
	cmd.Flag("norm", "GRM normalization (yang or vanraden)").Default("yang").StringVar(&o.norm)
	cmd.Flag("chunk-size", "number of SNPs decoded at once").Default("10000").IntVar(&o.chunkSize)

	cmd.Flag("method", "optimization method to use "+
		"(AI: average information, "+
		"EM: expectation maximization, "+
		"lbfgsb: limited-memory Broyden–Fletcher–Goldfarb–Shanno with bounding constraints, "+
		"bfgs: BFGS on log variance components, "+
		"simplex: downhill simplex on log variance components, "+
		"none: just compute likelihood, no optimization"+
		")").Default("AI").EnumVar(&o.method, "AI", "ai", "EM", "em", "lbfgsb", "bfgs", "simplex", "none")
	cmd.Flag("em-init", "perform one EM step before AI iterations").BoolVar(&o.emInit)
	cmd.Flag("max-iter", "maximum number of iterations").Default("100").IntVar(&o.maxIter)
	cmd.Flag("tol", "relative variance change tolerance").Default("1e-8").Float64Var(&o.tol)
	cmd.Flag("report", "report every N iterations").Default("1").IntVar(&o.report)
	cmd.Flag("start", "read start position from the trajectory or JSON file").ExistingFileVar(&o.start)
	cmd.Flag("trajectory", "write optimization trajectory to a file").StringVar(&o.trajectory)
	cmd.Flag("checkpoint", "checkpoint database, the fit resumes from it").StringVar(&o.checkpoint)
	cmd.Flag("checkpoint-seconds", "minimum time between checkpoints").Default("60").Float64Var(&o.cpSeconds)
	cmd.Flag("out", "output prefix").Required().StringVar(&o.out)
}

// buildModel loads the data and assembles the model terms.
func (o *fitOptions) buildModel(threads int) (*model.Model, error) {
	if o.bfile() == "" && len(o.grms) == 0 {
		return nil, errs.Argumentf("either --bfile or --grm is required")
	}
	if o.dom && o.bfile() == "" {
		return nil, errs.Argumentf("--dom requires --bfile")
	}

	var loaded []*grm.GRM
	var restrictIDs [][]string
	for _, fn := range o.grms {
		g, err := grm.ReadNpy(fn)
		if err != nil {
			return nil, err
		}
		loaded = append(loaded, g)
		restrictIDs = append(restrictIDs, g.IDs)
	}

	dt, err := o.data.load(restrictIDs...)
	if err != nil {
		return nil, err
	}
	m, err := model.New(dt.IDs, dt.Y, dt.X, dt.XNames)
	if err != nil {
		return nil, err
	}
	m.Individuals = dt.Individuals
	for _, name := range dt.GroupsOrder {
		if err := m.AddGroups(name, dt.Groups[name]); err != nil {
			return nil, err
		}
	}
	for i, g := range loaded {
		k, err := g.Select(dt.IDs)
		if err != nil {
			return nil, err
		}
		name := strings.TrimSuffix(filepath.Base(o.grms[i]), ".npy")
		if err := m.Add(name, model.Genetic, k); err != nil {
			return nil, err
		}
	}

	if o.bfile() != "" && (len(o.grms) == 0 || o.dom) {
		method, err := coding.ParseMethod(o.coding)
		if err != nil {
			return nil, err
		}
		norm, err := grm.ParseNorm(o.norm)
		if err != nil {
			return nil, err
		}
		r, err := o.data.openBed(dt.IDs)
		if err != nil {
			return nil, err
		}
		defer r.Close()
		b := grm.Builder{Reader: r, Method: method, Norm: norm, ChunkSize: o.chunkSize, Threads: threads}
		var effects []coding.Effect
		if len(o.grms) == 0 {
			effects = append(effects, coding.Additive)
		}
		if o.dom {
			effects = append(effects, coding.Dominant)
		}
		for _, e := range effects {
			g, err := b.Compute(e)
			if err != nil {
				return nil, err
			}
			name := effectName(e)
			if err := m.Add(name, model.Genetic, g.K); err != nil {
				return nil, err
			}
		}
	}
	log.Infof("Model terms: %v", m.Names())
	return m, nil
}

func (o *fitOptions) bfile() string {
	return o.data.bfile
}

// optimizerSettings stores settings for creation of the REML fit.
type optimizerSettings struct {
	method  string
	emInit  bool
	maxIter int
	tol     float64
	report  int

	start      string
	trajF      string
	checkpoint string
	cpSeconds  float64
}

// newOptimizerSettings creates optimizerSettings from the command
// line options.
func newOptimizerSettings(o *fitOptions) *optimizerSettings {
	return &optimizerSettings{
		method:  o.method,
		emInit:  o.emInit,
		maxIter: o.maxIter,
		tol:     o.tol,
		report:  o.report,

		start:      o.start,
		trajF:      o.trajectory,
		checkpoint: o.checkpoint,
		cpSeconds:  o.cpSeconds,
	}
}

// create builds the REML settings. The returned function releases
// the files it opened.
func (s *optimizerSettings) create(m *model.Model, key string) (reml.Settings, func(), error) {
	rs := reml.DefaultSettings()
	rs.Method = s.method
	rs.EMInit = s.emInit
	rs.MaxIter = s.maxIter
	rs.Tol = s.tol
	rs.ReportPeriod = s.report
	rs.Signals = []os.Signal{os.Interrupt, syscall.SIGTERM}

	var closers []func()
	release := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	if s.start != "" {
		start, err := readStart(s.start, m.Names())
		if err != nil {
			return rs, release, err
		}
		rs.Start = start
	}

	rs.Trajectory = os.Stdout
	if s.trajF != "" {
		f, err := os.Create(s.trajF)
		if err != nil {
			return rs, release, errs.IOf("creating trajectory file: %v", err)
		}
		closers = append(closers, func() { f.Close() })
		rs.Trajectory = f
	}

	if s.checkpoint != "" {
		db, err := checkpoint.Open(s.checkpoint)
		if err != nil {
			return rs, release, errs.IOf("opening checkpoint database: %v", err)
		}
		closers = append(closers, func() { db.Close() })
		rs.Checkpoint = checkpoint.NewCheckpointIO(db, checkpoint.Key(key, s.method), s.cpSeconds)
	}
	return rs, release, nil
}

// run runs the fit command.
func (o *fitOptions) run(threads int) (*FitSummary, error) {
	m, err := o.buildModel(threads)
	if err != nil {
		return nil, err
	}
	key := strings.Join(append([]string{o.data.pheno, o.bfile()}, m.Names()...), "\t")
	rs, release, err := newOptimizerSettings(o).create(m, key)
	defer release()
	if err != nil {
		return nil, err
	}

	res, fitErr := reml.Fit(m, rs)
	if res == nil {
		return nil, fitErr
	}
	if err := o.write(res); err != nil {
		return nil, err
	}
	for _, c := range res.Components {
		log.Noticef("%s: %.6g (SE %.4g)", c.Name, c.Variance, c.SE)
		if c.Heritability != nil {
			log.Noticef("h2(%s): %.4f (SE %.4f)", c.Name, *c.Heritability, *c.HeritabilitySE)
		}
	}
	summary := &FitSummary{
		N:      m.N(),
		Terms:  m.Names(),
		Result: res,
	}
	return summary, fitErr
}

// write writes <out>.reml, <out>.reml.json and <out>.blup.
func (o *fitOptions) write(res *reml.Result) error {
	if err := writeTo(o.out+".reml", func(f *os.File) error { return res.Print(f) }); err != nil {
		return err
	}
	if err := writeTo(o.out+".reml.json", func(f *os.File) error { return res.WriteJSON(f) }); err != nil {
		return err
	}
	if len(res.BLUPs) > 0 {
		return res.WriteBLUPs(o.out + ".blup")
	}
	return nil
}
