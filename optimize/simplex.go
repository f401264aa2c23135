package optimize

import (
	"math"
)

const (
	simplexTiny  = 1e-10
	simplexSmall = 1e-6
)

// DS maximizes the restricted likelihood with the downhill simplex
// (Nelder-Mead) method on log variance components. It needs
// likelihood values only.
type DS struct {
	BaseOptimizer
	// Delta is the initial simplex edge on the log scale.
	Delta float64
	ftol  float64

	points [][]float64
	l      []float64
	psum   []float64
	trial  []float64
}

// NewDS creates a new downhill simplex optimizer.
func NewDS() *DS {
	return &DS{
		BaseOptimizer: newBaseOptimizer("simplex"),
		Delta:         1,
		ftol:          simplexTiny,
	}
}

// eval returns the likelihood at exp(x), -Inf if V is not positive
// definite.
func (ds *DS) eval(x []float64) float64 {
	ds.set(x)
	if err := ds.Update(); err != nil {
		return math.Inf(-1)
	}
	return ds.Likelihood()
}

func (ds *DS) set(x []float64) {
	for i, par := range ds.parameters {
		par.Set(math.Exp(x[i]))
	}
}

// createSimplex builds a simplex around x0.
func (ds *DS) createSimplex(x0 []float64) {
	ds.points = make([][]float64, len(x0)+1)
	ds.l = make([]float64, len(ds.points))
	for i := range ds.points {
		ds.points[i] = append([]float64(nil), x0...)
		if i > 0 {
			ds.points[i][i-1] += ds.Delta
		}
		ds.l[i] = ds.eval(ds.points[i])
	}
}

func (ds *DS) calcPsum() {
	ds.psum = make([]float64, len(ds.points[0]))
	for _, p := range ds.points {
		for j, v := range p {
			ds.psum[j] += v
		}
	}
}

// amotry extrapolates by factor fac through the face of the simplex
// across from the lowest point and replaces it if the new point is
// better.
func (ds *DS) amotry(ilo int, fac float64) float64 {
	ds.calcPsum()
	ndim := len(ds.psum)
	if ds.trial == nil {
		ds.trial = make([]float64, ndim)
	}
	fac1 := (1 - fac) / float64(ndim)
	fac2 := fac1 - fac
	for j := 0; j < ndim; j++ {
		ds.trial[j] = ds.psum[j]*fac1 - ds.points[ilo][j]*fac2
	}
	l := ds.eval(ds.trial)
	if l > ds.l[ilo] {
		ds.points[ilo], ds.trial = ds.trial, ds.points[ilo]
		ds.l[ilo] = l
	}
	return l
}

// Run runs the optimizer. The simplex is rebuilt once around the
// best point after the first convergence.
func (ds *DS) Run(iterations int) error {
	if err := ds.begin(); err != nil {
		return err
	}
	ds.PrintHeader()

	tau := ConstrainScale * ds.PhenotypeVariance()
	x0 := ds.parameters.Values(nil)
	for i := range x0 {
		x0[i] = math.Log(math.Max(x0[i], tau))
	}
	ds.createSimplex(x0)

	// lowest (worst), next-lowest and highest points
	var ilo, inlo, ihi int
	repeat := false
	oldL := 0.0
	for ds.i = 1; ds.i <= iterations; ds.i++ {
		ilo, inlo, ihi = 0, 1, 1
		if ds.l[0] >= ds.l[1] {
			ilo, inlo, ihi = 1, 0, 0
		}
		for i := 2; i < len(ds.points); i++ {
			if ds.l[i] >= ds.l[ihi] {
				ihi = i
			}
			if ds.l[i] < ds.l[ilo] {
				inlo = ilo
				ilo = i
			} else if ds.l[i] < ds.l[inlo] {
				inlo = i
			}
		}
		lhi, llo, lnlo := ds.l[ihi], ds.l[ilo], ds.l[inlo]
		ds.set(ds.points[ihi])
		ds.BaseOptimizer.l = lhi
		ds.PrintLine()
		ds.saveCheckpoint(false)
		if err := ds.checkSignal(); err != nil {
			return err
		}

		rtol := 2 * math.Abs(lhi-llo) / (math.Abs(llo) + math.Abs(lhi) + simplexTiny)
		if rtol < ds.ftol {
			if repeat && math.Abs(oldL-lhi) < simplexSmall {
				ds.converged = true
				break
			}
			repeat = true
			oldL = lhi
			log.Debug("Simplex converged, restarting around the best point")
			ds.createSimplex(append([]float64(nil), ds.points[ihi]...))
			continue
		}

		l := ds.amotry(ilo, -1)
		switch {
		case l >= lhi:
			ds.amotry(ilo, 2)
		case l <= lnlo:
			if ds.amotry(ilo, 0.5) <= llo {
				for i := range ds.points {
					if i == ihi {
						continue
					}
					for j := range ds.points[i] {
						ds.points[i][j] = 0.5 * (ds.points[i][j] + ds.points[ihi][j])
					}
					ds.l[i] = ds.eval(ds.points[i])
				}
			}
		}
	}

	best := 0
	for i := range ds.l {
		if ds.l[i] > ds.l[best] {
			best = i
		}
	}
	ds.set(ds.points[best])
	if math.IsInf(ds.l[best], -1) {
		log.Warning("Simplex found no point with a positive definite V")
	}
	return ds.finish()
}
