package bayes

import (
	"strings"

	"github.com/grexlab/grex/errs"
)

// Alphabet describes the prior of a marker term by the features it
// uses, so a single marker sweep serves every model.
type Alphabet struct {
	Name string
	// PerSNPVariance gives every SNP its own variance.
	PerSNPVariance bool
	// Spike adds a point mass at zero.
	Spike bool
	// EstimatePi samples mixture proportions from their posterior.
	EstimatePi bool
	// ScaleMixture uses a mixture of normals with variances γ_k σ².
	ScaleMixture bool
}

var alphabets = []Alphabet{
	{Name: "A", PerSNPVariance: true},
	{Name: "B", PerSNPVariance: true, Spike: true},
	{Name: "Bpi", PerSNPVariance: true, Spike: true, EstimatePi: true},
	{Name: "C", Spike: true},
	{Name: "Cpi", Spike: true, EstimatePi: true},
	{Name: "RR"},
	{Name: "R", Spike: true, EstimatePi: true, ScaleMixture: true},
}

// ParseAlphabet returns an alphabet by name (A, B, Bpi, C, Cpi, RR or
// R, case insensitive, with an optional Bayes prefix).
func ParseAlphabet(s string) (Alphabet, error) {
	name := strings.TrimPrefix(strings.ToLower(strings.TrimSpace(s)), "bayes")
	for _, a := range alphabets {
		if strings.ToLower(a.Name) == name {
			return a, nil
		}
	}
	return Alphabet{}, errs.Invalidf("unknown Bayes model: %s (expected one of %s)", s, strings.Join(AlphabetNames(), ", "))
}

// AlphabetNames returns the names of all alphabets.
func AlphabetNames() []string {
	s := make([]string, len(alphabets))
	for i, a := range alphabets {
		s[i] = a.Name
	}
	return s
}

func (a Alphabet) String() string {
	return "Bayes" + a.Name
}
