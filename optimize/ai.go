package optimize

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/grexlab/grex/errs"
)

// Damping is the step length used while the likelihood still changes
// by more than one unit per iteration.
const Damping = 0.316

// AI is the average information Newton optimizer.
type AI struct {
	BaseOptimizer
	// EMInit requests one EM step before the Newton iterations.
	EMInit bool
}

// NewAI creates a new average information optimizer.
func NewAI(emInit bool) *AI {
	return &AI{
		BaseOptimizer: newBaseOptimizer("AI"),
		EMInit:        emInit,
	}
}

// Step computes the Newton step -H⁺g at the current parameters.
func (a *AI) Step() ([]float64, error) {
	hinv, err := Pinv(a.AIMatrix())
	if err != nil {
		return nil, fmt.Errorf("%w: average information matrix: %v", errs.ErrNonPD, err)
	}
	g := mat.NewVecDense(len(a.parameters), a.Gradient(nil))
	var delta mat.VecDense
	delta.MulVec(hinv, g)
	delta.ScaleVec(-1, &delta)
	return delta.RawVector().Data, nil
}

// Run runs the optimizer.
func (a *AI) Run(iterations int) error {
	if err := a.begin(); err != nil {
		return err
	}
	if a.EMInit {
		if err := emStep(&a.BaseOptimizer); err != nil {
			return err
		}
		log.Infof("EM initialization: lnL=%v, %s", a.l, a.parameters.ValuesString())
	}
	a.PrintHeader()
	for a.i = 1; a.i <= iterations; a.i++ {
		if err := a.Update(); err != nil {
			return err
		}
		l := a.Likelihood()
		delta, err := a.Step()
		if err != nil {
			return err
		}
		scale := 1.0
		if math.Abs(a.dL) > 1 {
			scale = Damping
		}
		sigma := a.parameters.Values(nil)
		for i := range sigma {
			sigma[i] += scale * delta[i]
		}
		if err := a.parameters.SetValues(a.Constrain(sigma)); err != nil {
			return err
		}
		a.checkConvergence(a.parameters.Values(sigma), l)
		a.PrintLine()
		a.saveCheckpoint(false)
		if err := a.checkSignal(); err != nil {
			return err
		}
		if a.converged {
			break
		}
	}
	if a.i > iterations {
		a.i = iterations
	}
	return a.finish()
}
