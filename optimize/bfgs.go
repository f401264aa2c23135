package optimize

import (
	"errors"
	"math"

	opt "gonum.org/v1/gonum/optimize"
)

// BFGS maximizes the restricted likelihood with the gonum BFGS
// implementation. Variance components are optimized on the log scale,
// which keeps them positive.
type BFGS struct {
	BaseOptimizer
	grad []float64
}

// NewBFGS creates a new BFGS optimizer.
func NewBFGS() *BFGS {
	return &BFGS{
		BaseOptimizer: newBaseOptimizer("bfgs"),
	}
}

func (b *BFGS) Init() error {
	return nil
}

func (b *BFGS) Record(l *opt.Location, op opt.Operation, s *opt.Stats) error {
	if op == opt.MajorIteration {
		b.i = s.MajorIterations
		b.l = -l.F
		b.setLog(l.X)
		b.PrintLine()
		b.saveCheckpoint(false)
	}
	return b.checkSignal()
}

func (b *BFGS) setLog(x []float64) {
	for i, par := range b.parameters {
		par.Set(math.Exp(x[i]))
	}
}

// Func returns the negative likelihood at exp(x).
func (b *BFGS) Func(x []float64) float64 {
	b.setLog(x)
	if err := b.Update(); err != nil {
		return math.Inf(+1)
	}
	return -b.Likelihood()
}

// Grad returns the gradient of Func; dL/dlogσ = σ dL/dσ.
func (b *BFGS) Grad(grad, x []float64) {
	b.setLog(x)
	if err := b.Update(); err != nil {
		for i := range grad {
			grad[i] = 0
		}
		return
	}
	b.grad = b.Gradient(b.grad)
	for i, par := range b.parameters {
		grad[i] = -b.grad[i] * par.Get()
	}
}

// Run runs the optimizer.
func (b *BFGS) Run(iterations int) error {
	if err := b.begin(); err != nil {
		return err
	}
	b.PrintHeader()

	tau := ConstrainScale * b.PhenotypeVariance()
	x0 := b.parameters.Values(nil)
	for i := range x0 {
		x0[i] = math.Log(math.Max(x0[i], tau))
	}

	p := opt.Problem{
		Func: b.Func,
		Grad: b.Grad,
	}
	settings := &opt.Settings{
		GradientThreshold: 1e-6,
		MajorIterations:   iterations,
		Converger: &opt.FunctionConverge{
			Absolute:   1e-10,
			Iterations: 20,
		},
		Recorder: b,
	}
	res, err := opt.Minimize(p, x0, settings, &opt.BFGS{})
	if res == nil {
		if err == nil {
			err = errors.New("BFGS returned no result")
		}
		return err
	}
	if err != nil {
		log.Warningf("BFGS: %v", err)
	}
	b.setLog(res.X)
	b.converged = res.Status == opt.GradientThreshold || res.Status == opt.FunctionConvergence
	return b.finish()
}
