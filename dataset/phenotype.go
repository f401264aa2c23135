package dataset

import (
	"math"
	"strconv"
	"strings"

	"github.com/grexlab/grex/bed"
	"github.com/grexlab/grex/errs"
)

// parseValue parses a numeric cell. NA, non-numeric, NaN and infinite
// values are reported as unusable.
func parseValue(s string) (float64, bool) {
	if strings.EqualFold(s, "NA") {
		return 0, false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

// Phenotype is one phenotype column keyed by sample ID.
type Phenotype struct {
	Name   string
	Values map[string]float64
	// Individuals are the FID and IID behind each sample ID.
	Individuals map[string]bed.Individual
}

// ReadPhenotype reads column col (1-based, at least 3) of fn.
func ReadPhenotype(fn string, col int, iidOnly bool) (*Phenotype, error) {
	t, err := readTable(fn)
	if err != nil {
		return nil, err
	}
	if col < 3 || col > len(t.header) {
		return nil, errs.Invalidf("%s: phenotype column %d out of range 3..%d", fn, col, len(t.header))
	}
	p := &Phenotype{
		Name:        t.header[col-1],
		Values:      make(map[string]float64, len(t.rows)),
		Individuals: make(map[string]bed.Individual, len(t.rows)),
	}
	dropped := 0
	for _, row := range t.rows {
		v, ok := parseValue(row[col-1])
		if !ok {
			dropped++
			continue
		}
		k := id(row, iidOnly)
		p.Values[k] = v
		p.Individuals[k] = individual(row)
	}
	log.Infof("Phenotype %s: %d individuals, %d dropped for missing values", p.Name, len(p.Values), dropped)
	return p, nil
}

// QCovar holds quantitative covariates keyed by sample ID.
type QCovar struct {
	Names  []string
	Values map[string][]float64
}

// ReadQCovar reads all columns after FID and IID as quantitative
// covariates. Rows with any unusable value are dropped.
func ReadQCovar(fn string, iidOnly bool) (*QCovar, error) {
	t, err := readTable(fn)
	if err != nil {
		return nil, err
	}
	if len(t.header) < 3 {
		return nil, errs.Invalidf("%s: no covariate columns", fn)
	}
	q := &QCovar{Names: t.header[2:], Values: make(map[string][]float64, len(t.rows))}
	dropped := 0
rows:
	for _, row := range t.rows {
		v := make([]float64, len(q.Names))
		for j := range v {
			x, ok := parseValue(row[j+2])
			if !ok {
				dropped++
				continue rows
			}
			v[j] = x
		}
		q.Values[id(row, iidOnly)] = v
	}
	log.Infof("Quantitative covariates %v: %d individuals, %d dropped", q.Names, len(q.Values), dropped)
	return q, nil
}

// Covar holds discrete covariates keyed by sample ID.
type Covar struct {
	Names  []string
	Values map[string][]string
}

// ReadCovar reads all columns after FID and IID as discrete covariates.
// Rows with NA or an infinite/NaN level are dropped.
func ReadCovar(fn string, iidOnly bool) (*Covar, error) {
	t, err := readTable(fn)
	if err != nil {
		return nil, err
	}
	if len(t.header) < 3 {
		return nil, errs.Invalidf("%s: no covariate columns", fn)
	}
	c := &Covar{Names: t.header[2:], Values: make(map[string][]string, len(t.rows))}
	dropped := 0
rows:
	for _, row := range t.rows {
		for _, v := range row[2:] {
			switch strings.ToLower(v) {
			case "na", "nan", "inf", "+inf", "-inf", "":
				dropped++
				continue rows
			}
		}
		c.Values[id(row, iidOnly)] = append([]string(nil), row[2:]...)
	}
	log.Infof("Discrete covariates %v: %d individuals, %d dropped", c.Names, len(c.Values), dropped)
	return c, nil
}
