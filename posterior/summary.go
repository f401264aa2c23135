package posterior

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"sort"

	"github.com/op/go-logging"
	"gonum.org/v1/gonum/stat"

	"github.com/grexlab/grex/mcmc"
)

var log = logging.MustGetLogger("posterior")

// DefaultHPDIProb is the mass of the reported highest density interval.
const DefaultHPDIProb = 0.9

// Row summarizes the draws of one parameter.
type Row struct {
	Parameter string  `json:"parameter"`
	Mean      float64 `json:"mean"`
	Std       float64 `json:"std"`
	Median    float64 `json:"median"`
	Q5        float64 `json:"q5"`
	Q95       float64 `json:"q95"`
	HPDILow   float64 `json:"hpdiLow"`
	HPDIHigh  float64 `json:"hpdiHigh"`
	NEff      float64 `json:"nEff"`
	RHat      float64 `json:"rHat"`
}

func finite(v float64) interface{} {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return v
}

// MarshalJSON writes undefined statistics (for example r_hat of a
// constant parameter) as null.
func (r Row) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]interface{}{
		"parameter": r.Parameter,
		"mean":      finite(r.Mean),
		"std":       finite(r.Std),
		"median":    finite(r.Median),
		"q5":        finite(r.Q5),
		"q95":       finite(r.Q95),
		"hpdiLow":   finite(r.HPDILow),
		"hpdiHigh":  finite(r.HPDIHigh),
		"nEff":      finite(r.NEff),
		"rHat":      finite(r.RHat),
	})
}

// SummarizeParam summarizes the chains of a single parameter.
func SummarizeParam(name string, chains [][]float64, prob float64) Row {
	var flat []float64
	for _, x := range chains {
		flat = append(flat, x...)
	}
	r := Row{Parameter: name}
	if len(flat) == 0 {
		nan := math.NaN()
		r.Mean, r.Std, r.Median, r.Q5, r.Q95 = nan, nan, nan, nan, nan
		r.HPDILow, r.HPDIHigh, r.NEff, r.RHat = nan, nan, nan, nan
		return r
	}
	r.Mean, r.Std = stat.MeanStdDev(flat, nil)
	r.HPDILow, r.HPDIHigh = HPDI(flat, prob)
	// flat is sorted now
	r.Median = stat.Quantile(0.5, stat.LinInterp, flat, nil)
	r.Q5 = stat.Quantile(0.05, stat.LinInterp, flat, nil)
	r.Q95 = stat.Quantile(0.95, stat.LinInterp, flat, nil)
	r.NEff = ESS(chains)
	r.RHat = SplitRhat(chains)
	return r
}

// Summarize summarizes every stored parameter.
func Summarize(s *mcmc.Store, prob float64) []Row {
	rows := make([]Row, len(s.Names))
	for p, name := range s.Names {
		rows[p] = SummarizeParam(name, s.Samples[p], prob)
		if rows[p].RHat > 1.1 {
			log.Warningf("%s: r_hat = %.3f, chains may not have converged", name, rows[p].RHat)
		}
	}
	return rows
}

// WriteTSV writes the summary table.
func WriteTSV(w io.Writer, rows []Row) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintln(bw, "parameter\tmean\tstd\tmedian\tq5\tq95\tn_eff\tr_hat")
	for _, r := range rows {
		fmt.Fprintf(bw, "%s\t%.6g\t%.6g\t%.6g\t%.6g\t%.6g\t%.1f\t%.4f\n",
			r.Parameter, r.Mean, r.Std, r.Median, r.Q5, r.Q95, r.NEff, r.RHat)
	}
	return bw.Flush()
}

// WriteMarkers writes per-SNP posterior mean effects and inclusion
// probabilities, SNPs of a term in decreasing order of PIP.
func WriteMarkers(w io.Writer, markers []mcmc.MarkerSummary) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintln(bw, "term\tSNP\teffect\tpip")
	for _, ms := range markers {
		idx := make([]int, len(ms.SNPs))
		for i := range idx {
			idx[i] = i
		}
		sort.SliceStable(idx, func(a, b int) bool {
			return ms.PIP[idx[a]] > ms.PIP[idx[b]]
		})
		for _, j := range idx {
			fmt.Fprintf(bw, "%s\t%s\t%.6g\t%.4f\n", ms.Name, ms.SNPs[j], ms.Effect[j], ms.PIP[j])
		}
	}
	return bw.Flush()
}
