// Package dist implements the random draws and density helpers used by
// the Gibbs samplers.
package dist

import (
	"math"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat/distuv"
)

// Sampler draws random variates from a single source. It is not safe
// for concurrent use; every chain owns its own sampler.
type Sampler struct {
	Src    rand.Source
	rnd    *rand.Rand
	normal distuv.Normal
	unif   distuv.Uniform
}

// NewSampler creates a sampler seeded with seed.
func NewSampler(seed uint64) *Sampler {
	src := rand.NewSource(seed)
	return &Sampler{
		Src:    src,
		rnd:    rand.New(src),
		normal: distuv.Normal{Mu: 0, Sigma: 1, Src: src},
		unif:   distuv.Uniform{Min: 0, Max: 1, Src: src},
	}
}

// Normal draws from N(mu, sd²).
func (s *Sampler) Normal(mu, sd float64) float64 {
	return mu + sd*s.normal.Rand()
}

// Uniform draws from U(0, 1).
func (s *Sampler) Uniform() float64 {
	return s.unif.Rand()
}

// ChiSquared draws from χ²(k).
func (s *Sampler) ChiSquared(k float64) float64 {
	return distuv.ChiSquared{K: k, Src: s.Src}.Rand()
}

// Gamma draws from Gamma(shape, rate=1).
func (s *Sampler) Gamma(shape float64) float64 {
	return distuv.Gamma{Alpha: shape, Beta: 1, Src: s.Src}.Rand()
}

// Perm returns a random permutation of [0, n).
func (s *Sampler) Perm(n int) []int {
	return s.rnd.Perm(n)
}

// Shuffle shuffles n elements using swap.
func (s *Sampler) Shuffle(n int, swap func(i, j int)) {
	s.rnd.Shuffle(n, swap)
}

// Categorical draws an index with the given probabilities, which must
// sum to one.
func (s *Sampler) Categorical(p []float64) int {
	u := s.Uniform()
	c := 0.0
	for i, v := range p {
		c += v
		if u <= c {
			return i
		}
	}
	return len(p) - 1
}

// Dirichlet draws from Dirichlet(alpha) into dst.
func (s *Sampler) Dirichlet(dst, alpha []float64) []float64 {
	if dst == nil {
		dst = make([]float64, len(alpha))
	}
	sum := 0.0
	for i, a := range alpha {
		dst[i] = s.Gamma(a)
		sum += dst[i]
	}
	floats.Scale(1/sum, dst)
	return dst
}

// ScaledInvChiSq is the Scaled-Inv-χ²(ν, s²) prior of a variance.
type ScaledInvChiSq struct {
	Nu float64
	S2 float64
}

// Posterior returns the posterior after observing n values with the
// sum of squares sse.
func (p ScaledInvChiSq) Posterior(sse float64, n int) ScaledInvChiSq {
	nu := p.Nu + float64(n)
	return ScaledInvChiSq{
		Nu: nu,
		S2: (p.Nu*p.S2 + sse) / nu,
	}
}

// Rand draws from the distribution using s.
func (p ScaledInvChiSq) Rand(s *Sampler) float64 {
	return p.Nu * p.S2 / s.ChiSquared(p.Nu)
}

// Mean returns the distribution mean (defined for ν > 2).
func (p ScaledInvChiSq) Mean() float64 {
	if p.Nu <= 2 {
		return math.Inf(+1)
	}
	return p.Nu * p.S2 / (p.Nu - 2)
}

// LogSumExp returns log Σ exp(x_i) without overflow.
func LogSumExp(x []float64) float64 {
	return floats.LogSumExp(x)
}

// Softmax converts log weights into probabilities in place.
func Softmax(x []float64) []float64 {
	lse := LogSumExp(x)
	for i := range x {
		x[i] = math.Exp(x[i] - lse)
	}
	return x
}
