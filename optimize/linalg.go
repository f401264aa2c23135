package optimize

import (
	"errors"

	"gonum.org/v1/gonum/mat"
)

// epsilon is the float64 machine epsilon.
const epsilon = 0x1p-52

// Pinv computes the Moore-Penrose pseudo-inverse of a symmetric
// matrix using the singular value decomposition.
func Pinv(a mat.Symmetric) (*mat.SymDense, error) {
	n := a.Symmetric()
	var svd mat.SVD
	if !svd.Factorize(a, mat.SVDThin) {
		return nil, errors.New("singular value decomposition failed")
	}
	var u, v mat.Dense
	svd.UTo(&u)
	svd.VTo(&v)
	s := svd.Values(nil)

	tol := 0.0
	if len(s) > 0 {
		tol = float64(n) * s[0] * epsilon
	}
	res := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			x := 0.0
			for k, sk := range s {
				if sk > tol {
					x += v.At(i, k) * u.At(j, k) / sk
				}
			}
			res.SetSym(i, j, x)
		}
	}
	return res, nil
}
