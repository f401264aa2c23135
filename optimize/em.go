package optimize

// EM is the expectation maximization optimizer.
type EM struct {
	BaseOptimizer
}

// NewEM creates a new expectation maximization optimizer.
func NewEM() *EM {
	return &EM{
		BaseOptimizer: newBaseOptimizer("EM"),
	}
}

// emStep updates every component with
// σ_k ← (σ_k² Py'K_kPy − σ_k² tr(PK_k) + σ_k n) / n
// and projects the result into the feasible region.
func emStep(o *BaseOptimizer) error {
	if err := o.Update(); err != nil {
		return err
	}
	l := o.Likelihood()
	t := o.Traces()
	q := o.Quadratics()
	n := float64(o.NumObservations())
	sigma := o.parameters.Values(nil)
	for k, s := range sigma {
		sigma[k] = (s*s*q[k] - s*s*t[k] + s*n) / n
	}
	if err := o.parameters.SetValues(o.Constrain(sigma)); err != nil {
		return err
	}
	o.checkConvergence(o.parameters.Values(sigma), l)
	return nil
}

// Run runs the optimizer.
func (e *EM) Run(iterations int) error {
	if err := e.begin(); err != nil {
		return err
	}
	e.PrintHeader()
	for e.i = 1; e.i <= iterations; e.i++ {
		if err := emStep(&e.BaseOptimizer); err != nil {
			return err
		}
		e.PrintLine()
		e.saveCheckpoint(false)
		if err := e.checkSignal(); err != nil {
			return err
		}
		if e.converged {
			break
		}
	}
	if e.i > iterations {
		e.i = iterations
	}
	return e.finish()
}
