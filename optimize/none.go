package optimize

// None is an optimizer which computes the likelihood at the starting
// values and exits.
type None struct {
	BaseOptimizer
}

// NewNone creates an optimizer which computes initial likelihood only.
func NewNone() *None {
	return &None{
		BaseOptimizer: newBaseOptimizer("none"),
	}
}

// Run computes the likelihood.
func (n *None) Run(iterations int) error {
	if err := n.begin(); err != nil {
		return err
	}
	n.converged = true
	if err := n.finish(); err != nil {
		return err
	}
	n.PrintHeader()
	n.PrintLine()
	return nil
}
