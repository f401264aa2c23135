package bayes

import (
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/grexlab/grex/dist"
	"github.com/grexlab/grex/errs"
)

// Prior shape parameters.
const (
	MarkerNu   = 4
	RandomNu   = 4
	ResidualNu = -2
	// ScaleMultiplier times the initial variance gives the prior scale
	// of marker and random effect variances.
	ScaleMultiplier = 0.5
)

// PriorConfig are the targets the default priors are derived from.
type PriorConfig struct {
	// H2 is the share of phenotype variance attributed to the marker
	// terms together.
	H2 float64
	// RandomProportion is the share attributed to the random terms
	// together.
	RandomProportion float64
	// Pi are spike and slab proportions (spike first) for B, Bpi, C
	// and Cpi; nil means the default.
	Pi []float64
	// Scales and ScalePi configure BayesR; nil means the default.
	Scales  []float64
	ScalePi []float64
}

// DefaultPriorConfig returns the default prior targets.
func DefaultPriorConfig() PriorConfig {
	return PriorConfig{
		H2:               0.5,
		RandomProportion: 0.1,
		Pi:               []float64{0.95, 0.05},
		Scales:           []float64{0, 1e-4, 1e-3, 1e-2},
		ScalePi:          []float64{0.95, 0.02, 0.02, 0.01},
	}
}

func checkProportions(p []float64, name string) error {
	for _, v := range p {
		if v <= 0 || v >= 1 {
			return errs.Argumentf("%s proportions must be in (0, 1): %v", name, p)
		}
	}
	if math.Abs(floats.Sum(p)-1) > 1e-6 {
		return errs.Argumentf("%s proportions must sum to 1: %v", name, p)
	}
	return nil
}

// SetPriors sets the priors and initial variances of every term.
func (m *Model) SetPriors(c PriorConfig) error {
	if c.H2 <= 0 || c.H2 >= 1 {
		return errs.Argumentf("heritability must be in (0, 1): %v", c.H2)
	}
	if c.RandomProportion < 0 || c.H2+c.RandomProportion >= 1 {
		return errs.Argumentf("random proportion %v and heritability %v leave no residual variance", c.RandomProportion, c.H2)
	}
	d := DefaultPriorConfig()
	if c.Pi == nil {
		c.Pi = d.Pi
	}
	if c.Scales == nil {
		c.Scales, c.ScalePi = d.Scales, d.ScalePi
	}
	if len(c.Scales) != len(c.ScalePi) || len(c.Scales) < 2 || c.Scales[0] != 0 {
		return errs.Argumentf("BayesR scales %v must start with 0 and match proportions %v", c.Scales, c.ScalePi)
	}
	if err := checkProportions(c.Pi, "pi"); err != nil {
		return err
	}
	if err := checkProportions(c.ScalePi, "BayesR"); err != nil {
		return err
	}

	yVar := m.PhenotypeVariance()
	if yVar <= 0 {
		return errs.Inconsistentf("phenotype has zero variance")
	}

	randomShare := 0.0
	if len(m.Random) > 0 {
		randomShare = c.RandomProportion
		v := c.RandomProportion * yVar / float64(len(m.Random))
		for _, r := range m.Random {
			r.InitVariance = v
			r.Prior = dist.ScaledInvChiSq{Nu: RandomNu, S2: ScaleMultiplier * v}
		}
	}

	markerShare := 0.0
	if len(m.Markers) > 0 {
		markerShare = c.H2
		target := c.H2 * yVar / float64(len(m.Markers))
		for _, e := range m.Markers {
			switch {
			case e.Alphabet.ScaleMixture:
				e.Pi = append([]float64(nil), c.ScalePi...)
				e.Scales = append([]float64(nil), c.Scales...)
			case e.Alphabet.Spike:
				e.Pi = append([]float64(nil), c.Pi...)
			default:
				e.Pi = []float64{0, 1}
			}
			nonZero := 1 - e.Pi[0]
			if e.Alphabet.ScaleMixture {
				// expected scale of a SNP effect variance
				nonZero = floats.Dot(e.Pi, e.Scales)
			}
			v := target / (e.ColumnVarianceSum() * nonZero)
			if math.IsNaN(v) || math.IsInf(v, 0) || v <= 0 {
				return errs.Inconsistentf("cannot derive the initial variance of %s", e.Name)
			}
			e.InitVariance = v
			e.Prior = dist.ScaledInvChiSq{Nu: MarkerNu, S2: ScaleMultiplier * v}
		}
	}

	m.Residual = Residual{
		Prior:        dist.ScaledInvChiSq{Nu: ResidualNu, S2: 0},
		InitVariance: (1 - markerShare - randomShare) * yVar,
	}
	return nil
}
