// Package bed reads and writes PLINK v1 binary genotype triples
// (.bed, .bim and .fam).
package bed

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/op/go-logging"

	"github.com/grexlab/grex/errs"
)

var log = logging.MustGetLogger("bed")

var (
	// ErrInvalidFile is returned for a bad magic number or a truncated file.
	ErrInvalidFile = fmt.Errorf("invalid bed file: %w", errs.ErrInvalidInput)
	// ErrMissingIndividual is returned when a requested individual is
	// absent from the .fam file.
	ErrMissingIndividual = fmt.Errorf("missing individual: %w", errs.ErrInvalidInput)
)

// Individual is a .fam entry.
type Individual struct {
	FID string
	IID string
}

// ID returns the sample identifier used to match individuals across
// files: FID_IID, or IID alone when iidOnly is set.
func (ind Individual) ID(iidOnly bool) string {
	if iidOnly {
		return ind.IID
	}
	return ind.FID + "_" + ind.IID
}

// SNP is a .bim entry.
type SNP struct {
	Chrom string
	ID    string
	CM    float64
	Pos   int
	A1    string
	A2    string
}

// ReadFam parses a whitespace separated .fam file.
func ReadFam(fn string) ([]Individual, error) {
	f, err := os.Open(fn)
	if err != nil {
		return nil, errs.Invalidf("%v", err)
	}
	defer f.Close()

	var inds []Individual
	scanner := bufio.NewScanner(f)
	line := 0
	for scanner.Scan() {
		line++
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}
		if len(fields) < 2 {
			return nil, errs.Invalidf("%s:%d: expected at least 2 columns, got %d", fn, line, len(fields))
		}
		inds = append(inds, Individual{FID: fields[0], IID: fields[1]})
	}
	if err := scanner.Err(); err != nil {
		return nil, errs.IOf("%s: %v", fn, err)
	}
	return inds, nil
}

// ReadBim parses a whitespace separated .bim file.
func ReadBim(fn string) ([]SNP, error) {
	f, err := os.Open(fn)
	if err != nil {
		return nil, errs.Invalidf("%v", err)
	}
	defer f.Close()

	var snps []SNP
	scanner := bufio.NewScanner(f)
	line := 0
	for scanner.Scan() {
		line++
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}
		if len(fields) < 6 {
			return nil, errs.Invalidf("%s:%d: expected 6 columns, got %d", fn, line, len(fields))
		}
		cm, err := strconv.ParseFloat(fields[2], 64)
		if err != nil {
			return nil, errs.Invalidf("%s:%d: bad genetic distance %q", fn, line, fields[2])
		}
		pos, err := strconv.Atoi(fields[3])
		if err != nil {
			return nil, errs.Invalidf("%s:%d: bad position %q", fn, line, fields[3])
		}
		snps = append(snps, SNP{
			Chrom: fields[0],
			ID:    fields[1],
			CM:    cm,
			Pos:   pos,
			A1:    fields[4],
			A2:    fields[5],
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, errs.IOf("%s: %v", fn, err)
	}
	return snps, nil
}

// WriteFam writes individuals in .fam format with unknown parents,
// sex and phenotype.
func WriteFam(fn string, inds []Individual) error {
	f, err := os.Create(fn)
	if err != nil {
		return errs.IOf("%v", err)
	}
	w := bufio.NewWriter(f)
	for _, ind := range inds {
		fmt.Fprintf(w, "%s\t%s\t0\t0\t0\t-9\n", ind.FID, ind.IID)
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return errs.IOf("%s: %v", fn, err)
	}
	if err := f.Close(); err != nil {
		return errs.IOf("%s: %v", fn, err)
	}
	return nil
}

// WriteBim writes SNPs in .bim format.
func WriteBim(fn string, snps []SNP) error {
	f, err := os.Create(fn)
	if err != nil {
		return errs.IOf("%v", err)
	}
	w := bufio.NewWriter(f)
	for _, s := range snps {
		fmt.Fprintf(w, "%s\t%s\t%g\t%d\t%s\t%s\n", s.Chrom, s.ID, s.CM, s.Pos, s.A1, s.A2)
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return errs.IOf("%s: %v", fn, err)
	}
	if err := f.Close(); err != nil {
		return errs.IOf("%s: %v", fn, err)
	}
	return nil
}
