package reml

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"

	"github.com/grexlab/grex/bed"
	"github.com/grexlab/grex/errs"
	"github.com/grexlab/grex/optimize"
)

// Result is a fitted model.
type Result struct {
	// IDs are individual IDs in the order of the BLUP values.
	IDs []string `json:"-"`
	// Individuals are the FID and IID of each entry of IDs, if known.
	Individuals []bed.Individual `json:"-"`
	// Method is the optimization method.
	Method string `json:"method"`
	// Iterations is the number of optimizer iterations.
	Iterations int `json:"iterations"`
	// Converged is false if the maximum number of iterations was reached.
	Converged bool `json:"converged"`
	// LogLikelihood is the restricted log likelihood at the estimates.
	LogLikelihood float64 `json:"logLikelihood"`
	AIC           float64 `json:"aic"`
	BIC           float64 `json:"bic"`
	// Fixed are the fixed effect estimates.
	Fixed []FixedEffect `json:"fixed"`
	// Components are the variance components, residual first.
	Components []Component `json:"components"`
	// BLUPs are the predicted random and genetic effects.
	BLUPs []BLUP `json:"-"`
	// Optimizer is the optimizer summary.
	Optimizer optimize.Summary `json:"optimizer"`
}

// FixedEffect is a fixed effect estimate.
type FixedEffect struct {
	Name     string  `json:"name"`
	Estimate float64 `json:"estimate"`
	SE       float64 `json:"se"`
}

// Component is a variance component estimate. Heritability is only
// set for genetic components.
type Component struct {
	Name           string   `json:"name"`
	Kind           string   `json:"kind"`
	Variance       float64  `json:"variance"`
	SE             float64  `json:"se"`
	Heritability   *float64 `json:"h2,omitempty"`
	HeritabilitySE *float64 `json:"h2SE,omitempty"`
}

// BLUP are the predicted effects of a term.
type BLUP struct {
	Name   string
	Values []float64
}

// Component returns a component by name.
func (r *Result) Component(name string) (Component, bool) {
	for _, c := range r.Components {
		if c.Name == name {
			return c, true
		}
	}
	return Component{}, false
}

// Print writes a human readable report.
func (r *Result) Print(w io.Writer) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "Method\t%s\nIterations\t%d\nConverged\t%v\n", r.Method, r.Iterations, r.Converged)
	fmt.Fprintf(bw, "logL\t%.4f\nAIC\t%.4f\nBIC\t%.4f\n\n", r.LogLikelihood, r.AIC, r.BIC)
	fmt.Fprintln(bw, "Source\tVariance\tSE")
	for _, c := range r.Components {
		fmt.Fprintf(bw, "%s\t%.6g\t%.6g\n", c.Name, c.Variance, c.SE)
	}
	for _, c := range r.Components {
		if c.Heritability != nil {
			fmt.Fprintf(bw, "h2(%s)\t%.6g\t%.6g\n", c.Name, *c.Heritability, *c.HeritabilitySE)
		}
	}
	fmt.Fprintln(bw, "\nFixed\tEstimate\tSE")
	for _, f := range r.Fixed {
		fmt.Fprintf(bw, "%s\t%.6g\t%.6g\n", f.Name, f.Estimate, f.SE)
	}
	return bw.Flush()
}

// WriteBLUPs writes predicted effects as FID, IID and one column per
// term.
func (r *Result) WriteBLUPs(fn string) error {
	f, err := os.Create(fn)
	if err != nil {
		return errs.IOf("%v", err)
	}
	bw := bufio.NewWriter(f)
	fmt.Fprint(bw, "FID\tIID")
	for _, b := range r.BLUPs {
		fmt.Fprintf(bw, "\t%s", b.Name)
	}
	fmt.Fprintln(bw)
	for i := range r.IDs {
		ind := r.individual(i)
		fmt.Fprintf(bw, "%s\t%s", ind.FID, ind.IID)
		for _, b := range r.BLUPs {
			fmt.Fprintf(bw, "\t%g", b.Values[i])
		}
		fmt.Fprintln(bw)
	}
	if err := bw.Flush(); err != nil {
		f.Close()
		return errs.IOf("writing %s: %v", fn, err)
	}
	if err := f.Close(); err != nil {
		return errs.IOf("writing %s: %v", fn, err)
	}
	return nil
}

// individual returns the FID and IID of the i-th individual. Without
// known individuals the ID is used for both.
func (r *Result) individual(i int) bed.Individual {
	if len(r.Individuals) == len(r.IDs) {
		return r.Individuals[i]
	}
	return bed.Individual{FID: r.IDs[i], IID: r.IDs[i]}
}

func finite(v float64) interface{} {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return v
}

func finitePtr(v *float64) interface{} {
	if v == nil {
		return nil
	}
	return finite(*v)
}

// MarshalJSON writes an undefined standard error as null.
func (f FixedEffect) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]interface{}{
		"name":     f.Name,
		"estimate": finite(f.Estimate),
		"se":       finite(f.SE),
	})
}

// MarshalJSON writes undefined estimates as null and omits the
// heritability of non-genetic components.
func (c Component) MarshalJSON() ([]byte, error) {
	m := map[string]interface{}{
		"name":     c.Name,
		"kind":     c.Kind,
		"variance": finite(c.Variance),
		"se":       finite(c.SE),
	}
	if c.Heritability != nil {
		m["h2"] = finitePtr(c.Heritability)
		m["h2SE"] = finitePtr(c.HeritabilitySE)
	}
	return json.Marshal(m)
}

// resultFields is Result without its MarshalJSON method.
type resultFields Result

// MarshalJSON writes non-finite likelihoods as null.
func (r Result) MarshalJSON() ([]byte, error) {
	f := resultFields(r)
	return json.Marshal(struct {
		*resultFields
		LogLikelihood interface{} `json:"logLikelihood"`
		AIC           interface{} `json:"aic"`
		BIC           interface{} `json:"bic"`
	}{
		resultFields:  &f,
		LogLikelihood: finite(r.LogLikelihood),
		AIC:           finite(r.AIC),
		BIC:           finite(r.BIC),
	})
}

// WriteJSON writes the result as JSON.
func (r *Result) WriteJSON(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(r)
}
