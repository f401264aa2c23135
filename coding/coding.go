// Package coding implements genotype coding policies. A policy turns a
// column of 0/1/2 allele counts (NaN for missing) into a centred and
// optionally scaled column for additive or dominance effects.
package coding

import (
	"fmt"
	"strings"

	"github.com/grexlab/grex/errs"
)

// Epsilon is the variance below which a column is monomorphic.
const Epsilon = 1e-10

// Method selects centring and scaling.
type Method int

const (
	Centered Method = iota
	Standardized
	CenteredHWE
	StandardizedHWE
	OrthCentered
	OrthStandardized
	OrthCenteredHWE
	OrthStandardizedHWE
)

var methodNames = []string{
	"centered",
	"standardized",
	"centered-hwe",
	"standardized-hwe",
	"orth-centered",
	"orth-standardized",
	"orth-centered-hwe",
	"orth-standardized-hwe",
}

func (m Method) String() string {
	if m < 0 || int(m) >= len(methodNames) {
		return fmt.Sprintf("Method(%d)", int(m))
	}
	return methodNames[m]
}

// ParseMethod parses a method name. Case and the choice of '_' or '-'
// as separator are ignored, so "Centered_HWE" equals "centered-hwe".
func ParseMethod(s string) (Method, error) {
	norm := strings.ReplaceAll(strings.ToLower(s), "_", "-")
	norm = strings.Replace(norm, "orth-", "orth", 1)
	norm = strings.Replace(norm, "orth", "orth-", 1)
	for i, name := range methodNames {
		if name == norm {
			return Method(i), nil
		}
	}
	return 0, errs.Invalidf("unknown coding method %q", s)
}

// MethodNames lists the accepted method names.
func MethodNames() []string {
	return append([]string(nil), methodNames...)
}

// Effect selects additive or dominance coding.
type Effect int

const (
	Additive Effect = iota
	Dominant
)

func (e Effect) String() string {
	if e == Dominant {
		return "dominant"
	}
	return "additive"
}

// Policy is a coding method applied to an effect.
type Policy struct {
	Method Method
	Effect Effect
}

// ParsePolicy parses a method name for the given effect.
func ParsePolicy(method string, effect Effect) (Policy, error) {
	m, err := ParseMethod(method)
	if err != nil {
		return Policy{}, err
	}
	return Policy{Method: m, Effect: effect}, nil
}

func (p Policy) String() string {
	return p.Effect.String() + "/" + p.Method.String()
}

// ColumnStats describes how a column was coded.
type ColumnStats struct {
	// Freq is the estimated frequency of the counted allele.
	Freq float64
	// Mean is the value subtracted after encoding.
	Mean float64
	// Stddev is the scale of the encoded column.
	Stddev float64
	// Monomorphic columns are zeroed and skipped by samplers.
	Monomorphic bool
}

// Het returns 2p(1-p).
func (s ColumnStats) Het() float64 {
	return 2 * s.Freq * (1 - s.Freq)
}

// VanRaden returns the contribution of the column to the VanRaden
// GRM scale: 2p(1-p) for additive and (2p(1-p))² for dominance coding.
func (s ColumnStats) VanRaden(e Effect) float64 {
	if s.Monomorphic {
		return 0
	}
	h := s.Het()
	if e == Dominant {
		return h * h
	}
	return h
}

// statsKind selects how mean and stddev are obtained.
type statsKind int

const (
	sampleStats statsKind = iota
	hweStats
	orthHWEStats
)

// strategy is the resolved form of a policy used in the per-column code.
type strategy struct {
	orth  bool
	stats statsKind
	scale bool
}

func (p Policy) strategy() strategy {
	switch p.Method {
	case Centered:
		return strategy{}
	case Standardized:
		return strategy{scale: true}
	case CenteredHWE:
		return strategy{stats: hweStats}
	case StandardizedHWE:
		return strategy{stats: hweStats, scale: true}
	case OrthCentered:
		return strategy{orth: true}
	case OrthStandardized:
		return strategy{orth: true, scale: true}
	case OrthCenteredHWE:
		return strategy{orth: true, stats: orthHWEStats}
	case OrthStandardizedHWE:
		return strategy{orth: true, stats: orthHWEStats, scale: true}
	}
	panic(fmt.Sprintf("unknown coding method %d", p.Method))
}
