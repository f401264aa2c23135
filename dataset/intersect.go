package dataset

import (
	"sort"

	"gonum.org/v1/gonum/mat"

	"github.com/grexlab/grex/bed"
	"github.com/grexlab/grex/errs"
)

// Sources are the inputs to Intersect.
type Sources struct {
	Pheno *Phenotype
	// Genotyped are the IDs of genotyped individuals (from the .fam).
	// Nil means no genotype restriction.
	Genotyped []string
	QCovars   []*QCovar
	Covars    []*Covar
}

// Dataset is the intersected response and fixed-effect design.
type Dataset struct {
	IDs       []string
	PhenoName string
	Y         *mat.VecDense
	// Individuals hold the FID and IID of each entry of IDs.
	Individuals []bed.Individual
	// X has the intercept in column 0, then quantitative covariates,
	// then k-1 indicators per k-level discrete covariate.
	X      *mat.Dense
	XNames []string
}

// N returns the number of individuals.
func (d *Dataset) N() int {
	return len(d.IDs)
}

// Intersect keeps individuals present in every source, sorted by ID,
// and builds y and X.
func Intersect(s Sources) (*Dataset, error) {
	if s.Pheno == nil {
		return nil, errs.Argumentf("no phenotype")
	}
	var geno map[string]bool
	if s.Genotyped != nil {
		geno = make(map[string]bool, len(s.Genotyped))
		for _, id := range s.Genotyped {
			geno[id] = true
		}
	}

	var ids []string
	for id := range s.Pheno.Values {
		if geno != nil && !geno[id] {
			continue
		}
		keep := true
		for _, q := range s.QCovars {
			if _, ok := q.Values[id]; !ok {
				keep = false
				break
			}
		}
		for _, c := range s.Covars {
			if !keep {
				break
			}
			if _, ok := c.Values[id]; !ok {
				keep = false
			}
		}
		if keep {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)

	names := []string{"intercept"}
	columns := [][]float64{ones(len(ids))}
	for _, q := range s.QCovars {
		for j, name := range q.Names {
			col := make([]float64, len(ids))
			for i, id := range ids {
				col[i] = q.Values[id][j]
			}
			names = append(names, name)
			columns = append(columns, col)
		}
	}
	for _, c := range s.Covars {
		for j, name := range c.Names {
			levels := levelsOf(c, j, ids)
			if len(levels) < 2 {
				log.Warningf("Discrete covariate %s has %d level(s), skipped", name, len(levels))
				continue
			}
			for _, level := range levels[1:] {
				col := make([]float64, len(ids))
				for i, id := range ids {
					if c.Values[id][j] == level {
						col[i] = 1
					}
				}
				names = append(names, name+"_"+level)
				columns = append(columns, col)
			}
		}
	}

	p := len(columns)
	if len(ids) < p+1 {
		return nil, errs.Inconsistentf("%d individuals remain for %d fixed effects", len(ids), p)
	}

	d := &Dataset{
		IDs:       ids,
		PhenoName: s.Pheno.Name,
		Y:         mat.NewVecDense(len(ids), nil),
		X:         mat.NewDense(len(ids), p, nil),
		XNames:    names,
	}
	d.Individuals = make([]bed.Individual, len(ids))
	for i, id := range ids {
		d.Y.SetVec(i, s.Pheno.Values[id])
		ind, ok := s.Pheno.Individuals[id]
		if !ok {
			ind = bed.Individual{FID: id, IID: id}
		}
		d.Individuals[i] = ind
	}
	for j, col := range columns {
		d.X.SetCol(j, col)
	}
	log.Infof("%d individuals and %d fixed effects after intersection", len(ids), p)
	return d, nil
}

func ones(n int) []float64 {
	v := make([]float64, n)
	for i := range v {
		v[i] = 1
	}
	return v
}

// levelsOf returns the sorted levels of discrete covariate j among ids.
func levelsOf(c *Covar, j int, ids []string) []string {
	seen := make(map[string]bool)
	var levels []string
	for _, id := range ids {
		l := c.Values[id][j]
		if !seen[l] {
			seen[l] = true
			levels = append(levels, l)
		}
	}
	sort.Strings(levels)
	return levels
}
