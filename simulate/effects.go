// Package simulate generates phenotypes from PLINK genotypes with
// additive and dominance effects drawn from a mixture of effect size
// classes.
package simulate

import (
	"math"
	"strconv"
	"strings"

	"github.com/grexlab/grex/dist"
	"github.com/grexlab/grex/errs"
)

// Class is an effect size class: a proportion of SNPs whose effects
// are drawn from N(0, Variance).
type Class struct {
	Proportion float64
	Variance   float64
}

// ParseClass parses "proportion:variance".
func ParseClass(s string) (Class, error) {
	f := strings.Split(s, ":")
	if len(f) != 2 {
		return Class{}, errs.Argumentf("effect class %q is not proportion:variance", s)
	}
	p, err := strconv.ParseFloat(strings.TrimSpace(f[0]), 64)
	if err != nil {
		return Class{}, errs.Argumentf("effect class %q: %v", s, err)
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(f[1]), 64)
	if err != nil {
		return Class{}, errs.Argumentf("effect class %q: %v", s, err)
	}
	return Class{Proportion: p, Variance: v}, nil
}

// DefaultClasses puts every SNP in a single class of variance one.
func DefaultClasses() []Class {
	return []Class{{Proportion: 1, Variance: 1}}
}

// ValidateClasses checks that proportions are positive and sum to one
// and that variances are non-negative.
func ValidateClasses(classes []Class, label string) error {
	if len(classes) == 0 {
		return errs.Argumentf("%s effect classes must not be empty", label)
	}
	total := 0.0
	for _, c := range classes {
		if c.Proportion <= 0 {
			return errs.Argumentf("%s effect class proportion must be > 0, got %v", label, c.Proportion)
		}
		if c.Variance < 0 {
			return errs.Argumentf("%s effect class variance must be >= 0, got %v", label, c.Variance)
		}
		total += c.Proportion
	}
	if math.Abs(total-1) > 1e-6 {
		return errs.Argumentf("%s effect class proportions must sum to 1, got %v", label, total)
	}
	return nil
}

// AssignClasses gives each of count SNPs a class. Class k gets
// round(count·proportion) SNPs and the last class the remainder; the
// assignment is then shuffled.
func AssignClasses(classes []Class, count int, rnd *dist.Sampler) []int {
	a := make([]int, count)
	offset := 0
	for k, c := range classes {
		n := count - offset
		if k < len(classes)-1 {
			if r := int(math.Round(float64(count) * c.Proportion)); r < n {
				n = r
			}
		}
		for i := offset; i < offset+n; i++ {
			a[i] = k
		}
		offset += n
	}
	rnd.Shuffle(count, func(i, j int) { a[i], a[j] = a[j], a[i] })
	return a
}

// Effect is the simulated effect of a SNP.
type Effect struct {
	Additive  float64
	Dominance float64
	AddClass  int
	DomClass  int
}

func drawEffect(c Class, rnd *dist.Sampler) float64 {
	if c.Variance == 0 {
		return 0
	}
	return rnd.Normal(0, math.Sqrt(c.Variance))
}

// SampleEffects draws the effects of n SNPs. Dominance effects are
// drawn only when dom is not nil.
func SampleEffects(add, dom []Class, n int, rnd *dist.Sampler) []Effect {
	addClass := AssignClasses(add, n, rnd)
	var domClass []int
	if dom != nil {
		domClass = AssignClasses(dom, n, rnd)
	}
	effects := make([]Effect, n)
	for i := range effects {
		e := &effects[i]
		e.AddClass = addClass[i]
		e.Additive = drawEffect(add[e.AddClass], rnd)
		if dom != nil {
			e.DomClass = domClass[i]
			e.Dominance = drawEffect(dom[e.DomClass], rnd)
		}
	}
	return effects
}
