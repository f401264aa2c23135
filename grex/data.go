package main

import (
	"bufio"
	"os"
	"strings"

	"gonum.org/v1/gonum/mat"
	"gopkg.in/alecthomas/kingpin.v2"

	"github.com/grexlab/grex/bed"
	"github.com/grexlab/grex/dataset"
	"github.com/grexlab/grex/errs"
	"github.com/grexlab/grex/optimize"
)

// dataOptions select the phenotype, covariates and genotypes.
type dataOptions struct {
	bfile    string
	pheno    string
	phenoCol int
	qcovar   []string
	covar    []string
	random   []string
	iidOnly  bool
}

func (d *dataOptions) register(cmd *kingpin.CmdClause, bfileRequired bool) {
	bf := cmd.Flag("bfile", "PLINK .bed/.bim/.fam prefix")
	if bfileRequired {
		bf = bf.Required()
	}
	bf.StringVar(&d.bfile)
	cmd.Flag("pheno", "phenotype file (FID, IID, phenotypes)").Required().ExistingFileVar(&d.pheno)
	cmd.Flag("pheno-col", "phenotype column, 1-based").Default("3").IntVar(&d.phenoCol)
	cmd.Flag("qcovar", "quantitative covariate file (repeatable)").ExistingFilesVar(&d.qcovar)
	cmd.Flag("covar", "discrete covariate file (repeatable)").ExistingFilesVar(&d.covar)
	cmd.Flag("random", "file of grouping factors, one random effect per column (repeatable)").ExistingFilesVar(&d.random)
	cmd.Flag("iid-only", "match individuals by IID only").BoolVar(&d.iidOnly)
}

// data is the intersected input of a model.
type data struct {
	*dataset.Dataset
	// Groups are grouping factors of random effects by name, in
	// the order of Dataset.IDs.
	Groups      map[string][]string
	GroupsOrder []string
}

// load reads and intersects the inputs. Extra ID sets (for example of
// precomputed GRMs) restrict the individuals further.
func (d *dataOptions) load(extra ...[]string) (*data, error) {
	pheno, err := dataset.ReadPhenotype(d.pheno, d.phenoCol, d.iidOnly)
	if err != nil {
		return nil, err
	}
	src := dataset.Sources{Pheno: pheno}
	if d.bfile != "" {
		inds, err := bed.ReadFam(d.bfile + ".fam")
		if err != nil {
			return nil, err
		}
		for _, ind := range inds {
			src.Genotyped = append(src.Genotyped, ind.ID(d.iidOnly))
		}
	}
	for _, fn := range d.qcovar {
		q, err := dataset.ReadQCovar(fn, d.iidOnly)
		if err != nil {
			return nil, err
		}
		src.QCovars = append(src.QCovars, q)
	}
	for _, fn := range d.covar {
		c, err := dataset.ReadCovar(fn, d.iidOnly)
		if err != nil {
			return nil, err
		}
		src.Covars = append(src.Covars, c)
	}

	// random effect factors and extra ID sets restrict the phenotype
	var factors []*dataset.Covar
	for _, fn := range d.random {
		c, err := dataset.ReadCovar(fn, d.iidOnly)
		if err != nil {
			return nil, err
		}
		factors = append(factors, c)
		restrict(pheno, func(id string) bool { _, ok := c.Values[id]; return ok })
	}
	for _, ids := range extra {
		set := make(map[string]bool, len(ids))
		for _, id := range ids {
			set[id] = true
		}
		restrict(pheno, func(id string) bool { return set[id] })
	}

	ds, err := dataset.Intersect(src)
	if err != nil {
		return nil, err
	}
	dt := &data{Dataset: ds, Groups: make(map[string][]string)}
	for _, c := range factors {
		for j, name := range c.Names {
			if _, dup := dt.Groups[name]; dup {
				return nil, errs.Invalidf("duplicate random effect %s", name)
			}
			g := make([]string, len(ds.IDs))
			for i, id := range ds.IDs {
				g[i] = c.Values[id][j]
			}
			dt.Groups[name] = g
			dt.GroupsOrder = append(dt.GroupsOrder, name)
		}
	}
	return dt, nil
}

// restrict removes the phenotypes of individuals not kept.
func restrict(p *dataset.Phenotype, keep func(id string) bool) {
	for id := range p.Values {
		if !keep(id) {
			delete(p.Values, id)
		}
	}
}

// openBed opens the genotypes of the selected individuals in order.
func (d *dataOptions) openBed(ids []string) (*bed.Reader, error) {
	return bed.Open(d.bfile, bed.Options{IIDOnly: d.iidOnly, Target: ids})
}

// covariates returns X without the intercept column, or nil.
func (dt *data) covariates() (*mat.Dense, []string) {
	n, p := dt.X.Dims()
	if p < 2 {
		return nil, nil
	}
	return mat.DenseCopyOf(dt.X.Slice(0, n, 1, p)), dt.XNames[1:]
}

// lastLine returns the last line of a file content.
func lastLine(fn string) (line string, err error) {
	f, err := os.Open(fn)
	if err != nil {
		return line, err
	}
	defer f.Close()
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		if l := strings.TrimSpace(scanner.Text()); l != "" {
			line = l
		}
	}
	err = scanner.Err()
	return line, err
}

// readStart reads starting variance components for the named terms
// from the last line of a trajectory file or from a JSON object.
func readStart(fn string, names []string) (map[string]float64, error) {
	values := make([]float64, len(names))
	par := make(optimize.Parameters, len(names))
	for i, name := range names {
		par[i] = optimize.NewParameter(name, &values[i], 0)
	}
	l, err := lastLine(fn)
	if err == nil {
		err = par.ReadLine(l)
	}
	if err != nil {
		log.Debug("Reading start file as JSON")
		if err2 := par.ReadFromJSON(fn); err2 != nil {
			// fn is neither trajectory nor correct JSON
			log.Error("Error reading start position from JSON:", err2)
			return nil, errs.Invalidf("reading start position from %s: %v", fn, err)
		}
	}
	if !par.InRange() {
		return nil, errs.Argumentf("initial parameters are not in the range")
	}
	return par.Map(), nil
}
