package optimize

import (
	"errors"
	"math"

	lbfgsb "github.com/idavydov/go-lbfgsb"
)

// LBFGSB maximizes the restricted likelihood with the bounded
// limited memory BFGS algorithm and the analytical gradient.
type LBFGSB struct {
	BaseOptimizer
	iterations int
	lastX      []float64
	lastErr    error
	grad       []float64
	maxL       float64
	maxLPar    []float64
	stop       error
	calls      int // likelihood calls
}

// NewLBFGSB creates a new L-BFGS-B optimizer.
func NewLBFGSB() *LBFGSB {
	return &LBFGSB{
		BaseOptimizer: newBaseOptimizer("lbfgsb"),
	}
}

// evaluate updates the likelihood at x unless it was the last point.
func (l *LBFGSB) evaluate(x []float64) error {
	if l.lastX != nil && equal(l.lastX, x) {
		return l.lastErr
	}
	l.lastX = append(l.lastX[:0], x...)
	if !l.parameters.ValuesInRange(x) {
		l.lastErr = errors.New("parameters out of range")
		return l.lastErr
	}
	if err := l.parameters.SetValues(x); err != nil {
		l.lastErr = err
		return err
	}
	l.lastErr = l.Update()
	l.calls++
	if l.lastErr == nil {
		if L := l.Likelihood(); L > l.maxL {
			l.maxL = L
			l.maxLPar = l.parameters.Values(l.maxLPar)
		}
	}
	return l.lastErr
}

func (l *LBFGSB) EvaluateFunction(x []float64) float64 {
	if l.stop != nil {
		return math.NaN()
	}
	if err := l.evaluate(x); err != nil {
		return math.Inf(+1)
	}
	return -l.Likelihood()
}

func (l *LBFGSB) EvaluateGradient(x []float64) []float64 {
	if l.grad == nil {
		l.grad = make([]float64, len(x))
	}
	if err := l.evaluate(x); err != nil {
		for i := range l.grad {
			l.grad[i] = 0
		}
		return l.grad
	}
	l.Gradient(l.grad)
	for i := range l.grad {
		l.grad[i] = -l.grad[i]
	}
	return l.grad
}

// Logger is called by L-BFGS-B after every iteration.
func (l *LBFGSB) Logger(info *lbfgsb.OptimizationIterationInformation) {
	l.i = info.Iteration
	l.l = -info.F
	l.PrintLine()
	l.saveCheckpoint(false)
	if err := l.checkSignal(); err != nil {
		l.stop = err
	}
	if l.i >= l.iterations && l.stop == nil {
		l.stop = errors.New("maximum number of iterations reached")
	}
}

// Run runs the optimizer.
func (l *LBFGSB) Run(iterations int) error {
	if err := l.begin(); err != nil {
		return err
	}
	l.iterations = iterations
	l.maxL = math.Inf(-1)
	l.PrintHeader()

	tau := ConstrainScale * l.PhenotypeVariance()
	bounds := make([][2]float64, len(l.parameters))
	x0 := l.parameters.Values(nil)
	for i := range l.parameters {
		bounds[i][0] = tau
		bounds[i][1] = math.Inf(+1)
		if x0[i] < tau {
			x0[i] = tau
		}
	}

	opt := new(lbfgsb.Lbfgsb)
	opt.SetApproximationSize(10)
	opt.SetFTolerance(1e-12)
	opt.SetGTolerance(1e-8)
	opt.SetBounds(bounds)
	opt.SetLogger(l.Logger)

	_, exitStatus := opt.Minimize(l, x0)
	log.Infof("L-BFGS-B exit status: %v", exitStatus)
	log.Debugf("Likelihood function calls: %v", l.calls)

	if l.maxLPar == nil {
		return l.lastErr
	}
	if err := l.parameters.SetValues(l.maxLPar); err != nil {
		return err
	}
	l.converged = l.stop == nil && exitStatus.Code == lbfgsb.SUCCESS
	return l.finish()
}

func equal(a, b []float64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
