// Package errs defines the error kinds reported by grex.
//
// Errors are wrapped with fmt.Errorf("...: %w", kind) so callers can
// classify them with errors.Is.
package errs

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidInput is a bad option, unknown name, missing file,
	// mismatched SNP set or malformed header.
	ErrInvalidInput = errors.New("invalid input")
	// ErrArgument is an argument which is well-formed but violates a
	// constraint (proportions, heritability bounds, negative variances).
	ErrArgument = errors.New("argument validation failure")
	// ErrNonPD is returned when the Cholesky factorization of V fails.
	ErrNonPD = errors.New("covariance matrix is not positive definite")
	// ErrNonConvergence means REML reached max_iter without converging.
	ErrNonConvergence = errors.New("numerical non-convergence")
	// ErrDataInconsistency means the intersected data cannot support the model.
	ErrDataInconsistency = errors.New("data inconsistency")
	// ErrIO is a short read or a failed write.
	ErrIO = errors.New("i/o failure")
)

// Invalidf wraps ErrInvalidInput.
func Invalidf(format string, a ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, a...))
}

// Argumentf wraps ErrArgument.
func Argumentf(format string, a ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrArgument, fmt.Sprintf(format, a...))
}

// IOf wraps ErrIO.
func IOf(format string, a ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrIO, fmt.Sprintf(format, a...))
}

// Inconsistentf wraps ErrDataInconsistency.
func Inconsistentf(format string, a ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrDataInconsistency, fmt.Sprintf(format, a...))
}

// ExitCode maps an error to the process exit status:
// 0 on success, 2 for numerical failures, 1 otherwise.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, ErrNonPD), errors.Is(err, ErrNonConvergence):
		return 2
	}
	return 1
}
