// Package optimize implements restricted maximum likelihood
// optimizers for variance components.
package optimize

import (
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"
	"os/signal"
	"time"

	"github.com/op/go-logging"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/grexlab/grex/checkpoint"
	"github.com/grexlab/grex/errs"
)

var log = logging.MustGetLogger("optimize")

// ConstrainScale multiplied by the phenotype variance gives the value
// assigned to variance components which leave the feasible region.
const ConstrainScale = 1e-6

// DefaultTolerance is the default relative variance change tolerance.
const DefaultTolerance = 1e-8

// Optimizable is a restricted likelihood of variance components. All
// the methods except Update report values computed by the last
// successful Update.
type Optimizable interface {
	// GetParameters returns the variance components, residual first.
	GetParameters() Parameters
	// Update recomputes the likelihood at the current parameters.
	Update() error
	Likelihood() float64
	// Traces returns tr(P K_k) for every component.
	Traces() []float64
	// Quadratics returns Py' K_k Py for every component.
	Quadratics() []float64
	// AIMatrix returns the average information Hessian
	// H_kl = -1/2 (K_k Py)' P (K_l Py).
	AIMatrix() *mat.SymDense
	NumObservations() int
	PhenotypeVariance() float64
}

// Optimizer maximizes the restricted likelihood.
type Optimizer interface {
	SetOptimizable(Optimizable)
	SetTrajectoryOutput(io.Writer)
	SetReportPeriod(period int)
	SetTolerance(tol float64)
	SetCheckpointIO(*checkpoint.CheckpointIO)
	WatchSignals(...os.Signal)
	Run(iterations int) error
	GetL() float64
	Converged() bool
	Summary() Summary
}

// Summary stores optimizer run information.
type Summary struct {
	// Method is the optimization method name.
	Method string `json:"method"`
	// Iterations is the number of iterations performed.
	Iterations int `json:"iterations"`
	// Converged is true if the convergence criteria were met.
	Converged bool `json:"converged"`
	// LogLikelihood is the final restricted log likelihood.
	LogLikelihood float64 `json:"logLikelihood"`
	// Parameters are the final variance components.
	Parameters map[string]float64 `json:"parameters"`
	// Time is the optimization time in seconds.
	Time float64 `json:"time"`
}

type summaryFields Summary

// MarshalJSON writes non-finite values as null.
func (s Summary) MarshalJSON() ([]byte, error) {
	params := make(map[string]interface{}, len(s.Parameters))
	for k, v := range s.Parameters {
		params[k] = finite(v)
	}
	f := summaryFields(s)
	return json.Marshal(struct {
		*summaryFields
		LogLikelihood interface{}            `json:"logLikelihood"`
		Parameters    map[string]interface{} `json:"parameters"`
	}{&f, finite(s.LogLikelihood), params})
}

func finite(v float64) interface{} {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return v
}

// BaseOptimizer contains the bookkeeping shared by all the optimizers:
// trajectory output, convergence, projection and checkpoints.
type BaseOptimizer struct {
	Optimizable
	parameters Parameters
	method     string

	i         int
	l         float64
	dL        float64
	prevSigma []float64
	converged bool
	tol       float64

	repPeriod int
	trajF     io.Writer
	sig       chan os.Signal
	cpIO      *checkpoint.CheckpointIO
	startIter int
	start     time.Time
	elapsed   time.Duration

	Quiet bool
}

func newBaseOptimizer(method string) BaseOptimizer {
	return BaseOptimizer{
		method:    method,
		tol:       DefaultTolerance,
		repPeriod: 1,
		trajF:     os.Stdout,
	}
}

func (o *BaseOptimizer) SetOptimizable(opt Optimizable) {
	o.Optimizable = opt
	o.parameters = opt.GetParameters()
}

func (o *BaseOptimizer) SetTrajectoryOutput(w io.Writer) {
	o.trajF = w
}

func (o *BaseOptimizer) SetReportPeriod(period int) {
	o.repPeriod = period
}

func (o *BaseOptimizer) SetTolerance(tol float64) {
	o.tol = tol
}

func (o *BaseOptimizer) SetCheckpointIO(cpIO *checkpoint.CheckpointIO) {
	o.cpIO = cpIO
}

func (o *BaseOptimizer) WatchSignals(sigs ...os.Signal) {
	o.sig = make(chan os.Signal, 1)
	signal.Notify(o.sig, sigs...)
}

func (o *BaseOptimizer) GetL() float64 {
	return o.l
}

func (o *BaseOptimizer) Converged() bool {
	return o.converged
}

func (o *BaseOptimizer) Summary() Summary {
	return Summary{
		Method:        o.method,
		Iterations:    o.i,
		Converged:     o.converged,
		LogLikelihood: o.l,
		Parameters:    o.parameters.Map(),
		Time:          o.elapsed.Seconds(),
	}
}

func (o *BaseOptimizer) PrintHeader() {
	if !o.Quiet && o.trajF != nil {
		fmt.Fprintf(o.trajF, "iteration\tlikelihood\t%s\n", o.parameters.NamesString())
	}
}

func (o *BaseOptimizer) PrintLine() {
	if o.Quiet || o.trajF == nil || o.repPeriod <= 0 || o.i%o.repPeriod != 0 {
		return
	}
	fmt.Fprintf(o.trajF, "%d\t%f\t%s\n", o.i, o.l, o.parameters.ValuesString())
}

func (o *BaseOptimizer) PrintFinal() {
	if o.Quiet {
		return
	}
	for _, par := range o.parameters {
		log.Noticef("%s=%v", par.Name(), par.Get())
	}
}

// begin starts the clock and restores the parameters from a
// checkpoint if one is available.
func (o *BaseOptimizer) begin() error {
	o.start = time.Now()
	o.i = 0
	o.dL = math.Inf(+1)
	o.converged = false
	o.prevSigma = o.parameters.Values(nil)
	if o.cpIO == nil {
		return nil
	}
	data, err := o.cpIO.Load()
	if err != nil {
		return errs.IOf("reading checkpoint: %v", err)
	}
	if data == nil {
		return nil
	}
	if err := o.parameters.SetMap(data.Parameters); err != nil {
		log.Warningf("Ignoring checkpoint: %v", err)
		return nil
	}
	o.startIter = data.Iter
	o.prevSigma = o.parameters.Values(o.prevSigma)
	log.Infof("Restored variance components: %s", o.parameters.ValuesString())
	return nil
}

// finish recomputes the likelihood at the final parameters and
// reports the result.
func (o *BaseOptimizer) finish() error {
	if err := o.Update(); err != nil {
		return err
	}
	o.l = o.Likelihood()
	o.elapsed = time.Since(o.start)
	o.saveCheckpoint(true)
	if !o.Quiet {
		log.Infof("Finished %s after %d iterations, lnL=%v", o.method, o.i, o.l)
	}
	o.PrintFinal()
	if !o.converged {
		return fmt.Errorf("%w: %s did not converge in %d iterations",
			errs.ErrNonConvergence, o.method, o.i)
	}
	return nil
}

// saveCheckpoint saves parameters if the last checkpoint is old or
// if the optimization finished.
func (o *BaseOptimizer) saveCheckpoint(final bool) {
	if o.cpIO == nil || (!final && !o.cpIO.Old()) {
		return
	}
	// errors are logged by the checkpoint saver
	_ = o.cpIO.Save(&checkpoint.CheckpointData{
		Parameters: o.parameters.Map(),
		Likelihood: o.l,
		Iter:       o.startIter + o.i,
		Final:      final,
	})
}

// checkSignal returns an error if a watched signal was received.
func (o *BaseOptimizer) checkSignal() error {
	select {
	case s := <-o.sig:
		log.Warningf("Received signal %v, exiting.", s)
		o.saveCheckpoint(false)
		return fmt.Errorf("interrupted by signal %v", s)
	default:
	}
	return nil
}

// Gradient computes the first derivatives of the restricted
// likelihood, g_k = -1/2 (tr(P K_k) - Py' K_k Py).
func (o *BaseOptimizer) Gradient(grad []float64) []float64 {
	t := o.Traces()
	q := o.Quadratics()
	if grad == nil {
		grad = make([]float64, len(t))
	}
	for k := range t {
		grad[k] = -0.5 * (t[k] - q[k])
	}
	return grad
}

// Constrain projects variance components into the feasible region.
// Non-positive components are set to a small positive value and the
// deficit is subtracted from the unconstrained components which are
// larger than it.
func (o *BaseOptimizer) Constrain(sigma []float64) []float64 {
	return Constrain(sigma, o.PhenotypeVariance())
}

// Constrain projects sigma into the feasible region given the
// phenotype variance.
func Constrain(sigma []float64, yVar float64) []float64 {
	tau := ConstrainScale * yVar
	res := append([]float64(nil), sigma...)
	var constrained, unconstrained []int
	for i, s := range sigma {
		switch {
		case s <= 0:
			constrained = append(constrained, i)
		case s > 0:
			unconstrained = append(unconstrained, i)
		}
	}
	if len(constrained) == 0 {
		return res
	}
	deficit := 0.0
	for _, i := range constrained {
		deficit += tau - sigma[i]
		res[i] = tau
	}
	if len(unconstrained) > 0 {
		delta := deficit / float64(len(unconstrained))
		for _, i := range unconstrained {
			if sigma[i] > delta {
				res[i] -= delta
			}
		}
	}
	if len(constrained) > len(sigma)/2 {
		log.Warning("Half of the variance components are constrained, the estimate is not reliable")
	}
	return res
}

// checkConvergence compares new parameters with the previous ones and
// l (the likelihood at the previous parameters) with its previous
// value.
func (o *BaseOptimizer) checkConvergence(sigma []float64, l float64) {
	diff := make([]float64, len(sigma))
	floats.SubTo(diff, sigma, o.prevSigma)
	sigmaDiff := floats.Norm(diff, 2) / floats.Norm(sigma, 2)
	copy(o.prevSigma, sigma)

	if o.i <= 1 {
		o.dL = math.Inf(+1)
	} else {
		o.dL = l - o.l
	}
	o.l = l

	ad := math.Abs(o.dL)
	if sigmaDiff < o.tol && (ad < 1e-4 || (o.dL < 0 && ad < 1e-2)) {
		o.converged = true
	}
}
