// Package posterior computes convergence diagnostics and summaries of
// MCMC draws. Draws of one parameter are given as chains[c][d].
package posterior

import (
	"math"
	"math/cmplx"
	"sort"

	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// varianceStats returns the within-chain variance W and the pooled
// variance estimator (d-1)/d·W + B.
func varianceStats(chains [][]float64) (within, est float64) {
	c := len(chains)
	d := float64(len(chains[0]))
	means := make([]float64, c)
	for i, x := range chains {
		m, v := stat.MeanVariance(x, nil)
		means[i] = m
		within += v / float64(c)
	}
	est = within * (d - 1) / d
	if c > 1 {
		est += stat.Variance(means, nil)
	} else {
		within = est
	}
	return within, est
}

// Rhat returns the Gelman-Rubin potential scale reduction factor.
func Rhat(chains [][]float64) float64 {
	if len(chains) == 0 || len(chains[0]) < 2 {
		return math.NaN()
	}
	within, est := varianceStats(chains)
	return math.Sqrt(est / within)
}

// SplitRhat splits every chain in halves and returns Rhat of the 2c
// half chains. A trailing draw of an odd length chain is dropped.
func SplitRhat(chains [][]float64) float64 {
	if len(chains) == 0 {
		return math.NaN()
	}
	h := len(chains[0]) / 2
	split := make([][]float64, 0, 2*len(chains))
	for _, x := range chains {
		split = append(split, x[:h], x[len(x)-h:])
	}
	return Rhat(split)
}

// fastLength returns the smallest n ≥ target whose only prime factors
// are 2, 3 and 5.
func fastLength(target int) int {
	if target <= 2 {
		return target
	}
	for ; ; target++ {
		m := target
		for _, f := range []int{2, 3, 5} {
			for m%f == 0 {
				m /= f
			}
		}
		if m == 1 {
			return target
		}
	}
}

// Autocorrelation returns the autocorrelation of x at lags 0..len(x)-1
// computed by FFT. If unbiased, lag k is divided by len(x)-k before
// normalizing by lag 0.
func Autocorrelation(x []float64, unbiased bool) []float64 {
	n := len(x)
	if n == 0 {
		return nil
	}
	m := 2 * fastLength(n)
	mean := stat.Mean(x, nil)
	seq := make([]float64, m)
	for i, v := range x {
		seq[i] = v - mean
	}

	fft := fourier.NewFFT(m)
	coeff := fft.Coefficients(nil, seq)
	for i, c := range coeff {
		coeff[i] = c * cmplx.Conj(c)
	}
	seq = fft.Sequence(seq, coeff)

	ac := seq[:n:n]
	if unbiased {
		for k := range ac {
			ac[k] /= float64(n - k)
		}
	}
	if ac[0] == 0 {
		for k := range ac {
			ac[k] = 0
		}
		ac[0] = 1
		return ac
	}
	floats.Scale(1/ac[0], ac)
	return ac
}

// Autocovariance returns the autocorrelation scaled by the population
// variance of x.
func Autocovariance(x []float64, unbiased bool) []float64 {
	ac := Autocorrelation(x, unbiased)
	mean := stat.Mean(x, nil)
	v := 0.0
	for _, xi := range x {
		v += (xi - mean) * (xi - mean)
	}
	floats.Scale(v/float64(len(x)), ac)
	return ac
}

// ESS returns the effective sample size of all chains combined, using
// Geyer's initial monotone sequence of paired autocorrelations.
func ESS(chains [][]float64) float64 {
	c := len(chains)
	if c == 0 || len(chains[0]) < 2 {
		return math.NaN()
	}
	d := len(chains[0])
	gamma := make([]float64, d)
	for _, x := range chains {
		floats.AddScaled(gamma, 1/float64(c), Autocovariance(x, false))
	}
	within, est := varianceStats(chains)
	if est == 0 {
		return math.NaN()
	}

	rho := make([]float64, d)
	rho[0] = 1
	for k := 1; k < d; k++ {
		rho[k] = 1 - (within-gamma[k])/est
	}

	sum := rho[0] + rho[1]
	cur := sum
	for j := 1; j < d/2; j++ {
		p := math.Min(math.Max(rho[2*j]+rho[2*j+1], 0), cur)
		cur = p
		sum += p
	}
	return float64(c*d) / (2*sum - 1)
}

// HPDI returns the narrowest interval containing a fraction prob of the
// draws. x is sorted in place.
func HPDI(x []float64, prob float64) (lo, hi float64) {
	if len(x) == 0 {
		return math.NaN(), math.NaN()
	}
	sort.Float64s(x)
	n := len(x)
	if prob >= 1 {
		return x[0], x[n-1]
	}
	length := int(prob * float64(n))
	tails := n - length
	if length >= n {
		return x[0], x[n-1]
	}
	best := 0
	for i := 1; i < tails; i++ {
		if x[i+length]-x[i] < x[best+length]-x[best] {
			best = i
		}
	}
	return x[best], x[best+length]
}
