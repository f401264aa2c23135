package mcmc

import (
	"fmt"
	"sync"
	"time"

	"github.com/grexlab/grex/bayes"
	"github.com/grexlab/grex/errs"
)

// Settings controls a multi-chain run.
type Settings struct {
	Iter   int
	Burnin int
	Thin   int
	Chains int
	// Threads bounds the number of chains running at once.
	Threads int
	Seed    uint64
	// ReportPeriod is the number of iterations between progress
	// messages, zero disables them.
	ReportPeriod int
}

// DefaultSettings returns the default run settings.
func DefaultSettings() Settings {
	return Settings{
		Iter:         5000,
		Burnin:       1000,
		Thin:         10,
		Chains:       1,
		Threads:      1,
		Seed:         1,
		ReportPeriod: 1000,
	}
}

// Validate checks the settings.
func (s Settings) Validate() error {
	switch {
	case s.Iter <= 0:
		return errs.Argumentf("number of iterations must be positive, got %d", s.Iter)
	case s.Burnin < 0 || s.Burnin >= s.Iter:
		return errs.Argumentf("burnin must be in [0, %d), got %d", s.Iter, s.Burnin)
	case s.Thin < 1:
		return errs.Argumentf("thinning must be at least 1, got %d", s.Thin)
	case s.Chains < 1:
		return errs.Argumentf("number of chains must be at least 1, got %d", s.Chains)
	}
	return nil
}

// NumRecorded returns the number of draws recorded per chain.
func (s Settings) NumRecorded() int {
	return (s.Iter - s.Burnin + s.Thin - 1) / s.Thin
}

// recorded reports whether iteration iter (counted from 0) is stored.
func (s Settings) recorded(iter int) bool {
	return iter >= s.Burnin && (iter-s.Burnin)%s.Thin == 0
}

// MarkerSummary holds per-SNP posterior means of a marker term,
// averaged over the recorded draws of all surviving chains.
type MarkerSummary struct {
	Name string
	SNPs []string
	// Effect is the posterior mean effect.
	Effect []float64
	// PIP is the posterior inclusion probability.
	PIP []float64
}

// Result is the outcome of a run.
type Result struct {
	Store   *Store
	Markers []MarkerSummary
	// Chains is the number of chains that finished.
	Chains int
	// Dropped lists the errors of failed chains.
	Dropped []error
	Time    time.Duration
}

type chainResult struct {
	effect [][]float64
	pip    [][]float64
	err    error
}

// Run samples the model with s.Chains chains. Chain c uses seed
// s.Seed+c. Failing chains are dropped from the result; the run fails
// only when no chain finishes.
func Run(m *bayes.Model, s Settings) (*Result, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	start := time.Now()
	names := ParameterNames(m)
	store := newStore(names, s.Chains, s.NumRecorded())
	results := make([]chainResult, s.Chains)

	threads := s.Threads
	if threads < 1 {
		threads = 1
	}
	sem := make(chan struct{}, threads)
	var wg sync.WaitGroup
	for c := 0; c < s.Chains; c++ {
		wg.Add(1)
		sem <- struct{}{}
		go func(c int) {
			defer func() {
				<-sem
				wg.Done()
			}()
			results[c] = runChain(m, s, c, store)
		}(c)
	}
	wg.Wait()

	res := &Result{Store: store}
	var ok []int
	for c, r := range results {
		if r.err != nil {
			log.Errorf("Dropping chain %d: %v", c, r.err)
			res.Dropped = append(res.Dropped, r.err)
			continue
		}
		ok = append(ok, c)
	}
	res.Chains = len(ok)
	if len(ok) == 0 {
		return nil, fmt.Errorf("%w: all %d chains failed, first: %v",
			errs.ErrNonConvergence, s.Chains, res.Dropped[0])
	}
	if len(ok) < s.Chains {
		log.Warningf("%d of %d chains finished", len(ok), s.Chains)
		store.keep(ok)
	}

	for i, e := range m.Markers {
		ms := MarkerSummary{
			Name:   e.Name,
			SNPs:   e.Names,
			Effect: make([]float64, e.NumCols()),
			PIP:    make([]float64, e.NumCols()),
		}
		for _, c := range ok {
			for j := range ms.Effect {
				ms.Effect[j] += results[c].effect[i][j]
				ms.PIP[j] += results[c].pip[i][j]
			}
		}
		for j := range ms.Effect {
			ms.Effect[j] /= float64(len(ok))
			ms.PIP[j] /= float64(len(ok))
		}
		res.Markers = append(res.Markers, ms)
	}
	res.Time = time.Since(start)
	return res, nil
}

// chainError marks a numerical failure inside a chain.
type chainError struct {
	iter int
	err  error
}

func (e *chainError) Error() string {
	return fmt.Sprintf("iteration %d: %v", e.iter, e.err)
}

func (e *chainError) Unwrap() error {
	return errs.ErrNonConvergence
}

// afterStep, when set, is called after every iteration of every chain
// and fails the chain on error.
var afterStep func(ch *Chain, iter int) error

func runChain(m *bayes.Model, s Settings, c int, store *Store) (r chainResult) {
	defer func() {
		if p := recover(); p != nil {
			r.err = fmt.Errorf("chain %d: %v", c, p)
		}
	}()
	ch := NewChain(m, c, s.Seed+uint64(c))
	r.effect = make([][]float64, len(m.Markers))
	r.pip = make([][]float64, len(m.Markers))
	for i, e := range m.Markers {
		r.effect[i] = make([]float64, e.NumCols())
		r.pip[i] = make([]float64, e.NumCols())
	}

	var values []float64
	nrec := 0
	for iter := 0; iter < s.Iter; iter++ {
		err := ch.Step()
		if err == nil && afterStep != nil {
			err = afterStep(ch, iter)
		}
		if err != nil {
			r.err = &chainError{iter, err}
			return
		}
		if s.ReportPeriod > 0 && iter > 0 && iter%s.ReportPeriod == 0 {
			log.Infof("chain %d: iteration %d, residual variance %g",
				c, iter, ch.State.ResidualVariance)
		}
		if !s.recorded(iter) {
			continue
		}
		values = ch.Scalars(values)
		store.record(c, values)
		nrec++
		for i, ms := range ch.State.Markers {
			for j, b := range ms.Coeffs {
				r.effect[i][j] += b
				if b != 0 {
					r.pip[i][j]++
				}
			}
		}
	}
	for i := range r.effect {
		for j := range r.effect[i] {
			r.effect[i][j] /= float64(nrec)
			r.pip[i][j] /= float64(nrec)
		}
	}
	return
}
