// Package mcmc implements the Gibbs sampler of the Bayesian alphabet
// models and runs it on several chains in parallel.
package mcmc

import (
	"fmt"
	"math"

	"github.com/op/go-logging"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/grexlab/grex/bayes"
	"github.com/grexlab/grex/dist"
)

var log = logging.MustGetLogger("mcmc")

// Chain is a single Gibbs sampler. A chain owns its state and random
// source and is not safe for concurrent use.
type Chain struct {
	model *bayes.Model
	State *State
	rnd   *dist.Sampler
	id    int
	// scratch for mixture log likelihoods
	logL []float64
}

// NewChain creates a chain at the initial values of the model.
func NewChain(m *bayes.Model, id int, seed uint64) *Chain {
	return &Chain{
		model: m,
		State: newState(m),
		rnd:   dist.NewSampler(seed),
		id:    id,
	}
}

// Step performs one Gibbs iteration: intercept, fixed effects, random
// effects, marker effects, residual variance.
func (c *Chain) Step() error {
	c.sampleMu()
	c.sampleFixed()
	for i, r := range c.model.Random {
		c.sampleRandom(r, &c.State.Random[i])
	}
	for i, e := range c.model.Markers {
		c.sampleMarkers(e, &c.State.Markers[i])
	}
	c.sampleResidual()

	v := c.State.ResidualVariance
	if math.IsNaN(v) || math.IsInf(v, 0) || v <= 0 {
		return fmt.Errorf("chain %d: residual variance is %v", c.id, v)
	}
	return nil
}

// adjust adds d·col to y_adj.
func (c *Chain) adjust(col []float64, d float64) {
	floats.AddScaled(c.State.YAdj, d, col)
}

func (c *Chain) sampleMu() {
	s := c.State
	n := float64(len(s.YAdj))
	d := c.rnd.Normal(stat.Mean(s.YAdj, nil), math.Sqrt(s.ResidualVariance/n))
	s.Mu += d
	for i := range s.YAdj {
		s.YAdj[i] -= d
	}
}

func (c *Chain) sampleFixed() {
	f := c.model.Fixed
	if f == nil {
		return
	}
	s := c.State
	for j, old := range s.Beta {
		nj := f.ColsNorm[j]
		if nj == 0 {
			continue
		}
		col := f.Col(j)
		rhs := floats.Dot(col, s.YAdj) + nj*old
		b := c.rnd.Normal(rhs/nj, math.Sqrt(s.ResidualVariance/nj))
		c.adjust(col, old-b)
		s.Beta[j] = b
	}
}

func (c *Chain) sampleRandom(r *bayes.RandomEffect, rs *RandomState) {
	se := c.State.ResidualVariance
	ratio := se / rs.Variance
	for j, old := range rs.Coeffs {
		nj := r.ColsNorm[j]
		col := r.Col(j)
		rhs := floats.Dot(col, c.State.YAdj) + nj*old
		kappa := 1 / (nj + ratio)
		a := c.rnd.Normal(rhs*kappa, math.Sqrt(se*kappa))
		c.adjust(col, old-a)
		rs.Coeffs[j] = a
	}
	ss := floats.Dot(rs.Coeffs, rs.Coeffs)
	rs.Variance = r.Prior.Posterior(ss, len(rs.Coeffs)).Rand(c.rnd)
}

// logLikelihood is the log likelihood of including a SNP with effect
// variance v relative to excluding it.
func logLikelihood(rhs, v, nj, se float64) float64 {
	kappa := 1 / (nj + se/v)
	mean := rhs * kappa
	return -0.5 * (math.Log(v*nj/se+1) - mean*rhs/se)
}

// sampleMarkers sweeps a marker term. The alphabet flags select the
// spike, mixture and variance updates.
func (c *Chain) sampleMarkers(e *bayes.MarkerEffect, ms *MarkerState) {
	s := c.State
	se := s.ResidualVariance
	a := e.Alphabet
	logPi := make([]float64, len(ms.Pi))
	for k, p := range ms.Pi {
		logPi[k] = math.Log(p)
	}
	if len(c.logL) < len(ms.Pi) {
		c.logL = make([]float64, len(ms.Pi))
	}
	logL := c.logL[:len(ms.Pi)]

	ss, nonZero := 0.0, 0
	for j, old := range ms.Coeffs {
		if e.Monomorphic[j] {
			continue
		}
		nj := e.ColsNorm[j]
		col := e.Col(j)
		rhs := floats.Dot(col, s.YAdj) + nj*old

		var v float64
		if a.PerSNPVariance {
			v = ms.Variance[j]
		} else {
			v = ms.Variance[0]
		}

		comp := 1
		switch {
		case a.ScaleMixture:
			logL[0] = logPi[0]
			for k := 1; k < len(logL); k++ {
				logL[k] = logLikelihood(rhs, e.Scales[k]*v, nj, se) + logPi[k]
			}
			comp = c.rnd.Categorical(dist.Softmax(logL))
			if comp > 0 {
				v *= e.Scales[comp]
			}
		case a.Spike:
			diff := logLikelihood(rhs, v, nj, se) + logPi[1] - logPi[0]
			if c.rnd.Uniform() < 1/(1+math.Exp(diff)) {
				comp = 0
			}
		}

		b := 0.0
		if comp > 0 {
			kappa := 1 / (nj + se/v)
			b = c.rnd.Normal(rhs*kappa, math.Sqrt(se*kappa))
			nonZero++
			if a.ScaleMixture {
				ss += b * b / e.Scales[comp]
			} else {
				ss += b * b
			}
			if a.PerSNPVariance {
				ms.Variance[j] = e.Prior.Posterior(b*b, 1).Rand(c.rnd)
			}
		} else if a.PerSNPVariance {
			ms.Variance[j] = e.Prior.Rand(c.rnd)
		}
		if b != old {
			c.adjust(col, old-b)
			floats.AddScaled(ms.U, b-old, col)
		}
		ms.Coeffs[j] = b
		if a.Spike {
			ms.Tracker[j] = comp
		}
	}

	if !a.PerSNPVariance {
		ms.Variance[0] = e.Prior.Posterior(ss, nonZero).Rand(c.rnd)
	}

	if a.Spike {
		for k := range ms.Counts {
			ms.Counts[k] = 0
		}
		for j, k := range ms.Tracker {
			if !e.Monomorphic[j] {
				ms.Counts[k]++
			}
		}
		if a.EstimatePi {
			alpha := make([]float64, len(ms.Counts))
			for k, n := range ms.Counts {
				alpha[k] = float64(n) + 1
			}
			c.rnd.Dirichlet(ms.Pi, alpha)
		}
	}
}

func (c *Chain) sampleResidual() {
	s := c.State
	ss := floats.Dot(s.YAdj, s.YAdj)
	s.ResidualVariance = c.model.Residual.Prior.Posterior(ss, len(s.YAdj)).Rand(c.rnd)
}
