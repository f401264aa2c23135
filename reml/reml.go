package reml

import (
	"errors"
	"fmt"
	"io"
	"math"
	"os"

	"gonum.org/v1/gonum/mat"

	"github.com/grexlab/grex/checkpoint"
	"github.com/grexlab/grex/errs"
	"github.com/grexlab/grex/model"
	"github.com/grexlab/grex/optimize"
)

// Settings configures a REML fit.
type Settings struct {
	// Method is one of AI, EM, lbfgsb, bfgs or none.
	Method  string
	EMInit  bool
	MaxIter int
	Tol     float64
	// Start are starting variance components by term name; when nil
	// every component starts at var(y)/number of terms.
	Start map[string]float64

	Trajectory   io.Writer
	ReportPeriod int
	Checkpoint   *checkpoint.CheckpointIO
	Signals      []os.Signal
}

// DefaultSettings returns the settings used by the command line
// unless overridden.
func DefaultSettings() Settings {
	return Settings{
		Method:       "AI",
		MaxIter:      100,
		Tol:          optimize.DefaultTolerance,
		ReportPeriod: 1,
	}
}

// NewOptimizer returns an optimizer by method name.
func NewOptimizer(method string, emInit bool) (optimize.Optimizer, error) {
	switch method {
	case "AI", "ai":
		return optimize.NewAI(emInit), nil
	case "EM", "em":
		return optimize.NewEM(), nil
	case "lbfgsb":
		return optimize.NewLBFGSB(), nil
	case "bfgs":
		return optimize.NewBFGS(), nil
	case "simplex":
		return optimize.NewDS(), nil
	case "none":
		return optimize.NewNone(), nil
	}
	return nil, errs.Invalidf("unknown optimization method: %s", method)
}

// Fit estimates the variance components of m in place and computes
// the fixed effects, BLUPs and their standard errors. If the
// optimizer does not converge the result is returned together with
// an error wrapping errs.ErrNonConvergence.
func Fit(m *model.Model, s Settings) (*Result, error) {
	res, _, err := fit(m, s)
	return res, err
}

// Null is a fitted null model ready for testing extra fixed effects.
type Null struct {
	Result *Result
	// VInv is V⁻¹ at the estimated variance components.
	VInv *mat.SymDense
	// Residual is y - Xβ̂.
	Residual *mat.VecDense
}

// FitNull fits m like Fit and keeps V⁻¹ and the fixed-effect
// residuals. Non-convergence is reported like in Fit.
func FitNull(m *model.Model, s Settings) (*Null, error) {
	res, p, err := fit(m, s)
	if res == nil {
		return nil, err
	}
	null := &Null{
		Result:   res,
		VInv:     mat.NewSymDense(m.N(), nil),
		Residual: mat.NewVecDense(m.N(), nil),
	}
	null.VInv.CopySym(p.v)
	beta := make([]float64, len(res.Fixed))
	for i, f := range res.Fixed {
		beta[i] = f.Estimate
	}
	null.Residual.MulVec(m.X, mat.NewVecDense(len(beta), beta))
	null.Residual.SubVec(m.Y, null.Residual)
	return null, err
}

func fit(m *model.Model, s Settings) (*Result, *Problem, error) {
	if s.MaxIter <= 0 {
		return nil, nil, errs.Argumentf("maximum number of iterations must be positive")
	}
	if s.Tol <= 0 {
		return nil, nil, errs.Argumentf("tolerance must be positive")
	}
	if s.Start != nil {
		for _, t := range m.Terms {
			v, ok := s.Start[t.Name]
			if !ok {
				return nil, nil, errs.Argumentf("no starting value for %s", t.Name)
			}
			if v <= 0 {
				return nil, nil, errs.Argumentf("starting value for %s is not positive", t.Name)
			}
			t.Sigma = v
		}
	} else {
		m.InitSigma()
	}
	if m.PhenotypeVariance() <= 0 {
		return nil, nil, errs.Inconsistentf("phenotype has zero variance")
	}

	opt, err := NewOptimizer(s.Method, s.EMInit)
	if err != nil {
		return nil, nil, err
	}
	log.Infof("Using %s optimization, tol=%v, max iterations=%v", s.Method, s.Tol, s.MaxIter)

	p := NewProblem(m)
	opt.SetOptimizable(p)
	opt.SetTrajectoryOutput(s.Trajectory)
	opt.SetReportPeriod(s.ReportPeriod)
	opt.SetTolerance(s.Tol)
	if s.Checkpoint != nil {
		opt.SetCheckpointIO(s.Checkpoint)
	}
	if len(s.Signals) > 0 {
		opt.WatchSignals(s.Signals...)
	}

	runErr := opt.Run(s.MaxIter)
	if runErr != nil && !errors.Is(runErr, errs.ErrNonConvergence) {
		return nil, nil, runErr
	}
	if runErr != nil {
		log.Warning("REML did not converge, results may be unreliable")
	}

	res, err := newResult(m, p, opt.Summary())
	if err != nil {
		return nil, nil, err
	}
	return res, p, runErr
}

// newResult computes the post-fit statistics from a problem updated
// at the final variance components.
func newResult(m *model.Model, p *Problem, sum optimize.Summary) (*Result, error) {
	hinv, err := optimize.Pinv(p.AIMatrix())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errs.ErrNonPD, err)
	}
	l := p.Likelihood()
	res := &Result{
		IDs:           m.IDs,
		Individuals:   m.Individuals,
		Method:        sum.Method,
		Iterations:    sum.Iterations,
		Converged:     sum.Converged,
		LogLikelihood: l,
		Optimizer:     sum,
	}

	// β = (X'V⁻¹X)⁻¹ X'V⁻¹y
	var xvy, beta mat.VecDense
	xvy.MulVec(p.vinvX.T(), m.Y)
	beta.MulVec(p.xtvxInv, &xvy)
	for i := 0; i < beta.Len(); i++ {
		name := fmt.Sprintf("x%d", i)
		if m.XNames != nil {
			name = m.XNames[i]
		}
		res.Fixed = append(res.Fixed, FixedEffect{
			Name:     name,
			Estimate: beta.AtVec(i),
			SE:       math.Sqrt(math.Max(0, p.xtvxInv.At(i, i))),
		})
	}

	total := 0.0
	for _, t := range m.Terms {
		total += t.Sigma
	}
	for i, t := range m.Terms {
		c := Component{
			Name:     t.Name,
			Kind:     t.Kind.String(),
			Variance: t.Sigma,
			SE:       math.Sqrt(math.Max(0, -hinv.At(i, i))),
		}
		if t.Kind == model.Genetic && total > 0 {
			h2, se := heritability(hinv, i, m.Sigma(), total)
			c.Heritability = &h2
			c.HeritabilitySE = &se
		}
		res.Components = append(res.Components, c)

		if t.K != nil {
			var u mat.VecDense
			u.MulVec(t.K, p.Py())
			u.ScaleVec(t.Sigma, &u)
			res.BLUPs = append(res.BLUPs, BLUP{
				Name:   t.Name,
				Values: u.RawVector().Data,
			})
		}
	}

	k := float64(len(m.Terms) + m.NumFixed())
	res.AIC = -2*l + 2*k
	res.BIC = -2*l + k*math.Log(float64(m.N()))
	return res, nil
}

// heritability returns h² = σ_g/Σσ and its delta method standard
// error using -H⁻¹ as the covariance of the components.
func heritability(hinv *mat.SymDense, g int, sigma []float64, total float64) (float64, float64) {
	h2 := sigma[g] / total
	grad := mat.NewVecDense(len(sigma), nil)
	for i := range sigma {
		if i == g {
			grad.SetVec(i, (total-sigma[g])/(total*total))
		} else {
			grad.SetVec(i, -sigma[g]/(total*total))
		}
	}
	v := -mat.Inner(grad, hinv, grad)
	return h2, math.Sqrt(math.Max(0, v))
}
