package mcmc

import (
	"gonum.org/v1/gonum/stat"

	"github.com/grexlab/grex/bayes"
)

// RandomState is the state of a random effect.
type RandomState struct {
	Coeffs   []float64
	Variance float64
}

// MarkerState is the state of a marker term.
type MarkerState struct {
	Coeffs []float64
	// Variance has one entry per SNP for per-SNP variance models and a
	// single shared entry otherwise.
	Variance []float64
	Pi       []float64
	// Tracker is the mixture component of every SNP.
	Tracker []int
	Counts  []int
	// U are the genetic values M·a.
	U []float64
}

// State is the mutable state of one chain.
type State struct {
	Mu               float64
	Beta             []float64
	Random           []RandomState
	Markers          []MarkerState
	ResidualVariance float64
	// YAdj is y minus all the current mean terms.
	YAdj []float64
}

func newState(m *bayes.Model) *State {
	n := m.N()
	s := &State{
		Mu:               stat.Mean(m.Y, nil),
		ResidualVariance: m.Residual.InitVariance,
		YAdj:             make([]float64, n),
	}
	for i, y := range m.Y {
		s.YAdj[i] = y - s.Mu
	}
	if m.Fixed != nil {
		s.Beta = make([]float64, m.Fixed.NumCols())
	}
	for _, r := range m.Random {
		s.Random = append(s.Random, RandomState{
			Coeffs:   make([]float64, r.NumCols()),
			Variance: r.InitVariance,
		})
	}
	for _, e := range m.Markers {
		p := e.NumCols()
		ms := MarkerState{
			Coeffs:  make([]float64, p),
			Pi:      append([]float64(nil), e.Pi...),
			Tracker: make([]int, p),
			Counts:  make([]int, e.NumComponents()),
			U:       make([]float64, n),
		}
		nv := 1
		if e.Alphabet.PerSNPVariance {
			nv = p
		}
		ms.Variance = make([]float64, nv)
		for j := range ms.Variance {
			ms.Variance[j] = e.InitVariance
		}
		if !e.Alphabet.Spike {
			for j := range ms.Tracker {
				ms.Tracker[j] = len(ms.Counts) - 1
			}
		}
		s.Markers = append(s.Markers, ms)
	}
	return s
}
