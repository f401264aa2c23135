// Package gwas tests SNPs one at a time for association with a
// phenotype under a fitted linear mixed null model. The polygenic
// background is a GRM which, with LOCO, leaves out the chromosome of
// the tested SNP.
package gwas

import (
	"strings"

	"github.com/op/go-logging"

	"github.com/grexlab/grex/errs"
)

var log = logging.MustGetLogger("gwas")

// Model selects the tested SNP effects.
type Model int

const (
	Additive Model = iota
	Dominance
	AddDom
)

func (m Model) String() string {
	switch m {
	case Dominance:
		return "d"
	case AddDom:
		return "ad"
	}
	return "a"
}

// ParseModel parses a, d or ad and their long forms.
func ParseModel(s string) (Model, error) {
	switch strings.ToLower(s) {
	case "a", "add", "additive":
		return Additive, nil
	case "d", "dom", "dominance":
		return Dominance, nil
	case "ad", "a+d", "full":
		return AddDom, nil
	}
	return Additive, errs.Invalidf("unknown association model %q, expected a, d or ad", s)
}

// Test selects how the ad model is reported. Joint reports the 2 df
// test only, Separate adds the 1 df p-values of both effects.
type Test int

const (
	Joint Test = iota
	Separate
)

func (t Test) String() string {
	if t == Separate {
		return "separate"
	}
	return "joint"
}

// ParseTest parses joint or separate.
func ParseTest(s string) (Test, error) {
	switch strings.ToLower(s) {
	case "joint":
		return Joint, nil
	case "separate":
		return Separate, nil
	}
	return Joint, errs.Invalidf("unknown test type %q, expected joint or separate", s)
}
