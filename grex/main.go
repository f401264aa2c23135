/*

Grex fits linear mixed models to quantitative traits using PLINK
genotypes. It estimates variance components by restricted maximum
likelihood and samples Bayesian whole-genome regressions (the Bayes
alphabet).

Estimate the heritability with a genomic relationship matrix built
from the genotypes:

	grex fit --bfile geno --pheno trait.phen --out trait

Sample BayesCπ marker effects with four chains:

	grex bayes --bfile geno --pheno trait.phen --model Cpi --chains 4 --out trait

Simulate a phenotype and build a GRM:

	grex simulate --bfile geno --h2 0.5 --out sim
	grex grm --bfile geno --out geno

Test SNPs for association, leaving each chromosome out of the GRM:

	grex gwas --bfile geno --pheno trait.phen --model ad --out trait

To see all the options run:

	grex --help-long

*/
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"runtime"
	"runtime/pprof"
	"time"

	"github.com/op/go-logging"
	"gopkg.in/alecthomas/kingpin.v2"

	"github.com/grexlab/grex/errs"
)

// These three variables are set during the compilation.
var githash = ""
var gitbranch = ""
var buildstamp = ""
var version = fmt.Sprintf("branch: %s, revision: %s, build time: %s", gitbranch, githash, buildstamp)

var log = logging.MustGetLogger("grex")

// packages lists the loggers whose level is set by --loglevel.
var packages = []string{
	"grex", "bed", "grm", "dataset", "optimize", "reml", "checkpoint",
	"bayes", "mcmc", "posterior", "simulate", "gwas",
}

// options are the global command-line options.
type options struct {
	logLevel   string
	logFile    string
	cpuProfile string
	threads    int
	seed       int64
	jsonF      string

	fit   fitOptions
	bayes bayesOptions
	sim   simOptions
	grm   grmOptions
	gwas  gwasOptions
}

// newApp creates the command-line application.
func newApp() (*kingpin.Application, *options) {
	o := &options{}
	app := kingpin.New("grex", "genomic mixed models: REML and Bayesian alphabet").Version(version)

	app.Flag("loglevel", "set loglevel "+
		"('critical', 'error', 'warning', 'notice', 'info', 'debug')").
		Default("notice").
		EnumVar(&o.logLevel, "critical", "error", "warning", "notice", "info", "debug")
	app.Flag("log", "write log to a file").StringVar(&o.logFile)
	app.Flag("cpuprofile", "write cpu profile to file").StringVar(&o.cpuProfile)
	app.Flag("threads", "number of threads to use, all by default").Short('t').IntVar(&o.threads)
	app.Flag("seed", "random generator seed, default time based").Default("-1").Int64Var(&o.seed)
	app.Flag("json", "write json run summary to a file").StringVar(&o.jsonF)

	o.fit.register(app.Command("fit", "estimate variance components by REML"))
	o.bayes.register(app.Command("bayes", "sample a Bayesian alphabet model"))
	o.sim.register(app.Command("simulate", "simulate phenotypes from genotypes"))
	o.grm.register(app.Command("grm", "build a genomic relationship matrix"))
	o.gwas.register(app.Command("gwas", "test SNPs for association under a mixed model"))
	return app, o
}

// setupLogging configures the backend, the formatter and the levels.
// The returned function closes the log file.
func (o *options) setupLogging() (func(), error) {
	closer := func() {}
	out := os.Stderr
	if o.logFile != "" {
		f, err := os.OpenFile(o.logFile, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0666)
		if err != nil {
			return closer, errs.IOf("creating log file: %v", err)
		}
		out = f
		closer = func() { f.Close() }
	}
	backend := logging.NewLogBackend(out, "", 0)
	logging.SetBackend(logging.NewBackendFormatter(backend, formatter(out)))

	level, err := logging.LogLevel(o.logLevel)
	if err != nil {
		return closer, errs.Argumentf("%v", err)
	}
	for _, p := range packages {
		logging.SetLevel(level, p)
	}
	return closer, nil
}

// run executes the parsed command and returns the call summary.
func (o *options) run(cmd string) (summary *CallSummary, err error) {
	startTime := time.Now()
	summary = &CallSummary{
		Version:     version,
		CommandLine: os.Args,
		Command:     cmd,
	}

	if o.seed == -1 {
		o.seed = time.Now().UnixNano()
		log.Debug("Random seed from time")
	}
	log.Infof("Random seed=%v", o.seed)
	summary.Seed = o.seed

	if o.threads > 0 {
		runtime.GOMAXPROCS(o.threads)
	}
	summary.NThreads = runtime.GOMAXPROCS(0)
	log.Infof("Using threads: %d.", summary.NThreads)

	if o.cpuProfile != "" {
		f, err := os.Create(o.cpuProfile)
		if err != nil {
			return summary, errs.IOf("%v", err)
		}
		pprof.StartCPUProfile(f)
		defer pprof.StopCPUProfile()
	}

	switch cmd {
	case "fit":
		summary.Result, err = o.fit.run(summary.NThreads)
	case "bayes":
		summary.Result, err = o.bayes.run(summary.NThreads, uint64(o.seed))
	case "simulate":
		summary.Result, err = o.sim.run(uint64(o.seed))
	case "grm":
		summary.Result, err = o.grm.run(summary.NThreads)
	case "gwas":
		summary.Result, err = o.gwas.run(summary.NThreads)
	default:
		err = errs.Argumentf("unknown command %s", cmd)
	}

	deltaT := time.Since(startTime)
	log.Noticef("Running time: %v", deltaT)
	summary.TotalTime = deltaT.Seconds()
	return summary, err
}

// writeJSON writes the summary to fn.
func writeJSON(fn string, summary *CallSummary) error {
	j, err := json.Marshal(summary)
	if err != nil {
		return err
	}
	log.Debug(string(j))
	f, err := os.Create(fn)
	if err != nil {
		return errs.IOf("creating json output file: %v", err)
	}
	if _, err := f.Write(j); err != nil {
		f.Close()
		return errs.IOf("%v", err)
	}
	return f.Close()
}

func main() {
	app, o := newApp()
	cmd := kingpin.MustParse(app.Parse(os.Args[1:]))

	closeLog, err := o.setupLogging()
	defer closeLog()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(errs.ExitCode(err))
	}

	// print revision
	log.Info(version)

	// print commandline
	log.Info("Command line:", os.Args)

	summary, err := o.run(cmd)
	if o.jsonF != "" {
		if jerr := writeJSON(o.jsonF, summary); jerr != nil {
			log.Error(jerr)
		}
	}
	if err != nil {
		log.Critical(err)
		closeLog()
		os.Exit(errs.ExitCode(err))
	}
}
