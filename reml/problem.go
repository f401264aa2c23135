// Package reml fits variance components of a linear mixed model by
// restricted maximum likelihood.
package reml

import (
	"fmt"

	"github.com/op/go-logging"
	"gonum.org/v1/gonum/blas/blas64"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/grexlab/grex/errs"
	"github.com/grexlab/grex/model"
	"github.com/grexlab/grex/optimize"
)

var log = logging.MustGetLogger("reml")

// Problem is the restricted likelihood of a model. It implements
// optimize.Optimizable; the variance components are the model term
// sigmas, so the optimizers change the model in place.
type Problem struct {
	model  *model.Model
	params optimize.Parameters
	yVar   float64
	n, k   int

	v        *mat.SymDense // V, then V⁻¹
	logDetV  float64
	vinvX    *mat.Dense
	xtvx     *mat.SymDense
	xtvxInv  *mat.SymDense
	logDetXV float64
	proj     *mat.SymDense
	py       *mat.VecDense
	dvpy     *mat.Dense
	l        float64
	traces   []float64
	quads    []float64
	ai       *mat.SymDense
}

// NewProblem creates a restricted likelihood for a model.
func NewProblem(m *model.Model) *Problem {
	n := m.N()
	k := len(m.Terms)
	p := &Problem{
		model:  m,
		yVar:   m.PhenotypeVariance(),
		n:      n,
		k:      k,
		v:      mat.NewSymDense(n, nil),
		proj:   mat.NewSymDense(n, nil),
		py:     mat.NewVecDense(n, nil),
		dvpy:   mat.NewDense(n, k, nil),
		traces: make([]float64, k),
		quads:  make([]float64, k),
		ai:     mat.NewSymDense(k, nil),
	}
	p.params = make(optimize.Parameters, k)
	for i, t := range m.Terms {
		p.params[i] = optimize.NewParameter(t.Name, &t.Sigma, 0)
	}
	return p
}

func (p *Problem) GetParameters() optimize.Parameters {
	return p.params
}

func (p *Problem) NumObservations() int {
	return p.n
}

func (p *Problem) PhenotypeVariance() float64 {
	return p.yVar
}

func (p *Problem) Likelihood() float64 {
	return p.l
}

func (p *Problem) Traces() []float64 {
	return p.traces
}

func (p *Problem) Quadratics() []float64 {
	return p.quads
}

func (p *Problem) AIMatrix() *mat.SymDense {
	return p.ai
}

// Proj returns the projection matrix P.
func (p *Problem) Proj() *mat.SymDense {
	return p.proj
}

// Py returns P y.
func (p *Problem) Py() *mat.VecDense {
	return p.py
}

// assemble computes V = Σ σ_k K_k.
func (p *Problem) assemble() {
	p.v.Zero()
	for _, t := range p.model.Terms {
		if t.K == nil {
			for i := 0; i < p.n; i++ {
				p.v.SetSym(i, i, p.v.At(i, i)+t.Sigma)
			}
			continue
		}
		p.v.AddSym(p.v, scaledSym(t.Sigma, t.K))
	}
}

func scaledSym(s float64, k *mat.SymDense) *mat.SymDense {
	var r mat.SymDense
	r.ScaleSym(s, k)
	return &r
}

// Update recomputes V⁻¹, P, Py, the likelihood and its derivatives at
// the current variance components.
func (p *Problem) Update() error {
	x := p.model.X
	y := p.model.Y
	_, c := x.Dims()

	p.assemble()
	var chol mat.Cholesky
	if !chol.Factorize(p.v) {
		return fmt.Errorf("%w: V at σ=%v", errs.ErrNonPD, p.model.Sigma())
	}
	p.logDetV = chol.LogDet()
	if err := chol.InverseTo(p.v); err != nil {
		return fmt.Errorf("%w: inverting V: %v", errs.ErrNonPD, err)
	}

	p.vinvX = mat.NewDense(p.n, c, nil)
	p.vinvX.Mul(p.v, x)
	var xtvx mat.Dense
	xtvx.Mul(x.T(), p.vinvX)
	p.xtvx = mat.NewSymDense(c, nil)
	for i := 0; i < c; i++ {
		for j := i; j < c; j++ {
			p.xtvx.SetSym(i, j, 0.5*(xtvx.At(i, j)+xtvx.At(j, i)))
		}
	}
	var cholX mat.Cholesky
	if !cholX.Factorize(p.xtvx) {
		return fmt.Errorf("%w: X'V⁻¹X", errs.ErrNonPD)
	}
	p.logDetXV = cholX.LogDet()
	p.xtvxInv = mat.NewSymDense(c, nil)
	if err := cholX.InverseTo(p.xtvxInv); err != nil {
		return fmt.Errorf("%w: inverting X'V⁻¹X: %v", errs.ErrNonPD, err)
	}

	// P = V⁻¹ - V⁻¹X (X'V⁻¹X)⁻¹ X'V⁻¹
	var tmp, corr mat.Dense
	tmp.Mul(p.vinvX, p.xtvxInv)
	corr.Mul(&tmp, p.vinvX.T())
	for i := 0; i < p.n; i++ {
		for j := i; j < p.n; j++ {
			p.proj.SetSym(i, j, p.v.At(i, j)-corr.At(i, j))
		}
	}

	p.py.MulVec(p.proj, y)
	p.l = -0.5 * (p.logDetV + p.logDetXV + mat.Dot(y, p.py))

	p.derivatives()
	return nil
}

// derivatives computes K_k Py, tr(P K_k), Py'K_kPy and the average
// information matrix.
func (p *Problem) derivatives() {
	praw := p.proj.RawSymmetric()
	for k, t := range p.model.Terms {
		col := make([]float64, p.n)
		if t.K == nil {
			copy(col, p.py.RawVector().Data)
			p.traces[k] = mat.Trace(p.proj)
		} else {
			d := mat.NewVecDense(p.n, col)
			d.MulVec(t.K, p.py)
			p.traces[k] = traceProd(praw, t.K.RawSymmetric(), p.n)
		}
		p.dvpy.SetCol(k, col)
		p.quads[k] = floats.Dot(p.py.RawVector().Data, col)
	}

	var pd mat.Dense
	pd.Mul(p.proj, p.dvpy)
	for i := 0; i < p.k; i++ {
		for j := i; j < p.k; j++ {
			p.ai.SetSym(i, j, -0.5*mat.Dot(p.dvpy.ColView(i), pd.ColView(j)))
		}
	}
}

// traceProd returns tr(AB) for symmetric A and B stored in the upper
// triangle.
func traceProd(a, b blas64.Symmetric, n int) float64 {
	s := 0.0
	for i := 0; i < n; i++ {
		ra := a.Data[i*a.Stride : i*a.Stride+n]
		rb := b.Data[i*b.Stride : i*b.Stride+n]
		s += ra[i] * rb[i]
		s += 2 * floats.Dot(ra[i+1:], rb[i+1:])
	}
	return s
}
