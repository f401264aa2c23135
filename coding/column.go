package coding

import (
	"math"

	"github.com/grexlab/grex/errs"
)

// encode applies the dominance recoding to one genotype.
func (s strategy) encode(g, p float64) float64 {
	if s.orth {
		switch g {
		case 2:
			return 4*p - 2
		case 1:
			return 2 * p
		}
		return 0
	}
	if g == 2 {
		return 0
	}
	return g
}

// meanCount returns the mean of the non-missing values and their number.
func meanCount(col []float64) (float64, int) {
	sum := 0.0
	n := 0
	for _, v := range col {
		if !math.IsNaN(v) {
			sum += v
			n++
		}
	}
	if n == 0 {
		return 0, 0
	}
	return sum / float64(n), n
}

func zero(col []float64) {
	for i := range col {
		col[i] = 0
	}
}

// Validate checks that col holds only genotype counts 0, 1, 2 or
// missing values.
func Validate(col []float64) error {
	for i, g := range col {
		if math.IsNaN(g) {
			continue
		}
		if g != 0 && g != 1 && g != 2 {
			return errs.Invalidf("genotype %v of individual %d is not a 0/1/2 count", g, i)
		}
	}
	return nil
}

// Code codes col in place and returns the statistics used. Missing
// values are replaced by the column mean before centring.
func (p Policy) Code(col []float64) ColumnStats {
	s := p.strategy()
	addMean, n := meanCount(col)
	if n == 0 {
		zero(col)
		return ColumnStats{Monomorphic: true}
	}
	freq := math.Min(math.Max(addMean/2, 0), 1)
	stats := ColumnStats{Freq: freq}

	mean := addMean
	if p.Effect == Dominant {
		for i, g := range col {
			if !math.IsNaN(g) {
				col[i] = s.encode(g, freq)
			}
		}
		mean, _ = meanCount(col)
	}

	sampleMean := mean
	switch s.stats {
	case hweStats:
		if p.Effect == Dominant {
			mean = 2 * freq * (1 - freq)
		} else {
			mean = 2 * freq
		}
	case orthHWEStats:
		if p.Effect == Dominant {
			mean = 2 * freq * freq
		} else {
			mean = 2 * freq
		}
	}
	stats.Mean = mean

	// Sample variance is taken around the sample mean so that the
	// monomorphic test does not depend on the policy.
	ss := 0.0
	for i, v := range col {
		if math.IsNaN(v) {
			col[i] = mean
			v = mean
		}
		d := v - sampleMean
		ss += d * d
		col[i] = v - mean
	}
	variance := 0.0
	if n > 1 {
		variance = ss / float64(n-1)
	}

	q := 1 - freq
	switch s.stats {
	case sampleStats:
		stats.Stddev = math.Sqrt(variance)
	case hweStats:
		if p.Effect == Dominant {
			stats.Stddev = math.Sqrt(math.Max(0, 2*freq*q*(freq*freq+q*q)))
		} else {
			stats.Stddev = math.Sqrt(math.Max(0, 2*freq*q))
		}
	case orthHWEStats:
		if p.Effect == Dominant {
			stats.Stddev = 2 * freq * q
		} else {
			stats.Stddev = math.Sqrt(math.Max(0, 2*freq*q))
		}
	}

	if variance < Epsilon || stats.Stddev < Epsilon {
		stats.Monomorphic = true
		zero(col)
		return stats
	}
	if s.scale {
		inv := 1 / stats.Stddev
		for i := range col {
			col[i] *= inv
		}
	}
	return stats
}

// Apply codes col in place using statistics computed on another
// sample, as needed for cross-GRMs and prediction.
func (p Policy) Apply(col []float64, stats ColumnStats) {
	if stats.Monomorphic {
		zero(col)
		return
	}
	s := p.strategy()
	inv := 1.0
	if s.scale {
		inv = 1 / stats.Stddev
	}
	for i, g := range col {
		if math.IsNaN(g) {
			col[i] = 0
			continue
		}
		if p.Effect == Dominant {
			g = s.encode(g, stats.Freq)
		}
		col[i] = (g - stats.Mean) * inv
	}
}
