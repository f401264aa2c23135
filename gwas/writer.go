package gwas

import (
	"bufio"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/grexlab/grex/bed"
	"github.com/grexlab/grex/errs"
)

// Row is the result line of one SNP.
type Row struct {
	SNP bed.SNP
	// Freq is the frequency of the counted allele A1.
	Freq float64
	// N is the number of called genotypes.
	N int
	Result
}

// Writer writes tab separated association results.
type Writer struct {
	w     *bufio.Writer
	model Model
	test  Test
}

// NewWriter creates a writer for the columns of the given model.
func NewWriter(w io.Writer, m Model, t Test) *Writer {
	return &Writer{w: bufio.NewWriter(w), model: m, test: t}
}

func (w *Writer) separate() bool {
	return w.model == AddDom && w.test == Separate
}

// Header returns the column names.
func (w *Writer) Header() []string {
	h := []string{"CHR", "SNP", "BP", "A1", "A2", "FREQ"}
	switch w.model {
	case Additive:
		h = append(h, "BETA", "SE")
	case Dominance:
		h = append(h, "BETA_D", "SE_D")
	case AddDom:
		h = append(h, "BETA_A", "SE_A", "BETA_D", "SE_D")
	}
	h = append(h, "STAT", "P")
	if w.separate() {
		h = append(h, "P_A", "P_D")
	}
	return append(h, "DF", "N")
}

// WriteHeader writes the header line.
func (w *Writer) WriteHeader() error {
	_, err := w.w.WriteString(strings.Join(w.Header(), "\t") + "\n")
	return err
}

func format(v float64) string {
	if math.IsNaN(v) {
		return "NA"
	}
	return strconv.FormatFloat(v, 'g', 6, 64)
}

// Write writes one result line.
func (w *Writer) Write(r Row) error {
	f := []string{r.SNP.Chrom, r.SNP.ID, strconv.Itoa(r.SNP.Pos), r.SNP.A1, r.SNP.A2, format(r.Freq)}
	switch w.model {
	case Additive:
		f = append(f, format(r.BetaA), format(r.SEA))
	case Dominance:
		f = append(f, format(r.BetaD), format(r.SED))
	case AddDom:
		f = append(f, format(r.BetaA), format(r.SEA), format(r.BetaD), format(r.SED))
	}
	f = append(f, format(r.Stat), format(r.P))
	if w.separate() {
		f = append(f, format(r.PA), format(r.PD))
	}
	f = append(f, strconv.Itoa(r.DF), strconv.Itoa(r.N))
	_, err := w.w.WriteString(strings.Join(f, "\t") + "\n")
	return err
}

// Flush writes buffered lines to the underlying writer.
func (w *Writer) Flush() error {
	if err := w.w.Flush(); err != nil {
		return errs.IOf("writing association results: %v", err)
	}
	return nil
}
