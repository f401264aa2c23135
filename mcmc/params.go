package mcmc

import (
	"fmt"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/grexlab/grex/bayes"
)

// ParameterNames returns the names of the scalar parameters recorded
// for a model, in the order of Chain.Scalars.
func ParameterNames(m *bayes.Model) []string {
	names := []string{"mu"}
	if m.Fixed != nil {
		for j := 0; j < m.Fixed.NumCols(); j++ {
			name := fmt.Sprintf("x%d", j+1)
			if m.Fixed.Names != nil {
				name = m.Fixed.Names[j]
			}
			names = append(names, "beta_"+name)
		}
	}
	for _, r := range m.Random {
		names = append(names, "var_"+r.Name)
	}
	for _, e := range m.Markers {
		names = append(names, "var_"+e.Name, "sigma_"+e.Name)
		if e.Alphabet.Spike {
			for k := range e.Pi {
				names = append(names, fmt.Sprintf("pi%d_%s", k, e.Name))
			}
		}
	}
	names = append(names, "var_e")
	for _, e := range m.Markers {
		names = append(names, "h2_"+e.Name)
	}
	return names
}

// Scalars appends the current scalar parameters to dst.
func (c *Chain) Scalars(dst []float64) []float64 {
	s := c.State
	dst = append(dst[:0], s.Mu)
	dst = append(dst, s.Beta...)
	total := s.ResidualVariance
	for _, r := range s.Random {
		dst = append(dst, r.Variance)
		total += r.Variance
	}
	gv := make([]float64, len(s.Markers))
	for i, e := range c.model.Markers {
		ms := s.Markers[i]
		gv[i] = stat.Variance(ms.U, nil)
		total += gv[i]
		dst = append(dst, gv[i], floats.Sum(ms.Variance)/float64(len(ms.Variance)))
		if e.Alphabet.Spike {
			dst = append(dst, ms.Pi...)
		}
	}
	dst = append(dst, s.ResidualVariance)
	for _, v := range gv {
		dst = append(dst, v/total)
	}
	return dst
}
