package dataset

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/pgzip"
	"github.com/op/go-logging"

	"github.com/grexlab/grex/errs"
)

func init() {
	logging.SetLevel(logging.WARNING, "dataset")
}

func write(tst *testing.T, name, content string) string {
	fn := filepath.Join(tst.TempDir(), name)
	if err := os.WriteFile(fn, []byte(content), 0644); err != nil {
		tst.Fatal(err)
	}
	return fn
}

func writeGz(tst *testing.T, name, content string) string {
	fn := filepath.Join(tst.TempDir(), name)
	f, err := os.Create(fn)
	if err != nil {
		tst.Fatal(err)
	}
	w := pgzip.NewWriter(f)
	if _, err := w.Write([]byte(content)); err != nil {
		tst.Fatal(err)
	}
	if err := w.Close(); err != nil {
		tst.Fatal(err)
	}
	if err := f.Close(); err != nil {
		tst.Fatal(err)
	}
	return fn
}

const pheno = "FID\tIID\theight\tweight\n" +
	"b\t2\t1.5\t70\n" +
	"a\t1\tNA\t60\n" +
	"a\t3\t2.5\tx\n" +
	"c\t1\t0.5\t80\n" +
	"d\t9\tabc\t90\n" +
	"e\t5\t3.0\t55\n"

func TestReadPhenotype(tst *testing.T) {
	fn := write(tst, "pheno.txt", pheno)
	p, err := ReadPhenotype(fn, 3, false)
	if err != nil {
		tst.Fatal(err)
	}
	if p.Name != "height" || len(p.Values) != 4 {
		tst.Fatal("wrong phenotype:", p.Name, p.Values)
	}
	if p.Values["a_3"] != 2.5 {
		tst.Error("wrong value for a_3:", p.Values["a_3"])
	}
	if _, ok := p.Values["a_1"]; ok {
		tst.Error("NA row kept")
	}

	w, err := ReadPhenotype(fn, 4, true)
	if err != nil {
		tst.Fatal(err)
	}
	if w.Name != "weight" || len(w.Values) != 5 {
		tst.Error("wrong weight phenotype:", w.Values)
	}

	for _, col := range []int{2, 5} {
		if _, err := ReadPhenotype(fn, col, false); !errors.Is(err, errs.ErrInvalidInput) {
			tst.Errorf("column %d: expected invalid input, got %v", col, err)
		}
	}
}

func TestBadHeader(tst *testing.T) {
	fn := write(tst, "bad.txt", "ID\tIID\tx\n1\t1\t1\n")
	if _, err := ReadPhenotype(fn, 3, false); !errors.Is(err, errs.ErrInvalidInput) {
		tst.Error("expected bad header error, got", err)
	}
	if _, err := ReadPhenotype(filepath.Join(tst.TempDir(), "missing"), 3, false); !errors.Is(err, errs.ErrInvalidInput) {
		tst.Error("expected missing file error, got", err)
	}
}

func TestIntersect(tst *testing.T) {
	p, err := ReadPhenotype(writeGz(tst, "pheno.txt.gz", pheno+
		"f\t6\t1.0\t1\ng\t7\t2.0\t1\nh\t8\t4.0\t1\n"), 3, false)
	if err != nil {
		tst.Fatal(err)
	}
	q, err := ReadQCovar(write(tst, "q.txt", "FID\tIID\tage\n"+
		"b\t2\t30\nc\t1\t40\ne\t5\t50\na\t3\tNA\nf\t6\t20\ng\t7\t25\nh\t8\t35\n"), false)
	if err != nil {
		tst.Fatal(err)
	}
	c, err := ReadCovar(write(tst, "c.txt", "FID\tIID\tsex\n"+
		"b\t2\tM\nc\t1\tF\ne\t5\tM\na\t3\tF\nf\t6\tF\ng\t7\tNA\nh\t8\tM\n"), false)
	if err != nil {
		tst.Fatal(err)
	}

	d, err := Intersect(Sources{
		Pheno:     p,
		Genotyped: []string{"e_5", "c_1", "b_2", "a_3", "f_6", "g_7", "h_8", "z_0"},
		QCovars:   []*QCovar{q},
		Covars:    []*Covar{c},
	})
	if err != nil {
		tst.Fatal(err)
	}
	// a_1 and d_9 have no phenotype, a_3 no age, g_7 no sex
	expectedIDs := []string{"b_2", "c_1", "e_5", "f_6", "h_8"}
	if len(d.IDs) != len(expectedIDs) {
		tst.Fatal("wrong IDs:", d.IDs)
	}
	for i := range expectedIDs {
		if d.IDs[i] != expectedIDs[i] {
			tst.Error("wrong ID order:", d.IDs)
		}
	}
	expectedNames := []string{"intercept", "age", "sex_M"}
	if len(d.XNames) != len(expectedNames) {
		tst.Fatal("wrong design columns:", d.XNames)
	}
	for i := range expectedNames {
		if d.XNames[i] != expectedNames[i] {
			tst.Error("wrong design columns:", d.XNames)
		}
	}
	if d.X.At(2, 1) != 50 || d.X.At(2, 2) != 1 || d.X.At(1, 2) != 0 {
		tst.Error("wrong design values")
	}
	if d.Y.AtVec(3) != 1.0 {
		tst.Error("wrong phenotype value for f_6:", d.Y.AtVec(3))
	}
}

func TestOneHot(tst *testing.T) {
	var content = "FID\tIID\ty\n"
	var covar = "FID\tIID\tbreed\n"
	levels := []string{"c", "a", "b", "a", "c", "b", "a", "b"}
	for i, l := range levels {
		id := string(rune('a'+i)) + "\t1"
		content += id + "\t" + string(rune('0'+i)) + "\n"
		covar += id + "\t" + l + "\n"
	}
	p, err := ReadPhenotype(write(tst, "y.txt", content), 3, false)
	if err != nil {
		tst.Fatal(err)
	}
	c, err := ReadCovar(write(tst, "c.txt", covar), false)
	if err != nil {
		tst.Fatal(err)
	}
	d, err := Intersect(Sources{Pheno: p, Covars: []*Covar{c}})
	if err != nil {
		tst.Fatal(err)
	}
	if d.N() != 8 {
		tst.Fatal("expected 8 individuals, got", d.N())
	}
	_, cols := d.X.Dims()
	if cols != 3 || d.XNames[1] != "breed_b" || d.XNames[2] != "breed_c" {
		tst.Fatal("wrong design:", d.XNames)
	}
	for i, l := range levels {
		if d.X.At(i, 0) != 1 {
			tst.Error("intercept is not 1")
		}
		b, cc := d.X.At(i, 1), d.X.At(i, 2)
		switch l {
		case "a":
			if b != 0 || cc != 0 {
				tst.Error("reference level is not all zeros")
			}
		case "b":
			if b != 1 || cc != 0 {
				tst.Error("wrong indicator for level b")
			}
		case "c":
			if b != 0 || cc != 1 {
				tst.Error("wrong indicator for level c")
			}
		}
		if d.Y.AtVec(i) != float64(i) {
			tst.Error("phenotype not aligned with IDs")
		}
	}
}

func TestTooFewIndividuals(tst *testing.T) {
	p, err := ReadPhenotype(write(tst, "y.txt", "FID\tIID\ty\na\t1\t1\nb\t1\t2\n"), 3, false)
	if err != nil {
		tst.Fatal(err)
	}
	q, err := ReadQCovar(write(tst, "q.txt", "FID\tIID\tx\n"+"a\t1\t1\nb\t1\t5\n"), false)
	if err != nil {
		tst.Fatal(err)
	}
	_, err = Intersect(Sources{Pheno: p, QCovars: []*QCovar{q}})
	if !errors.Is(err, errs.ErrDataInconsistency) {
		tst.Error("expected data inconsistency, got", err)
	}
}

func TestIndividualsKeepUnderscores(tst *testing.T) {
	p, err := ReadPhenotype(write(tst, "p.txt", "FID\tIID\ty\n"+
		"fam_1\tind_a\t1.5\nfam\t1_ind_b\t2\nx\ty_z\t3\n"), 3, false)
	if err != nil {
		tst.Fatal(err)
	}
	d, err := Intersect(Sources{Pheno: p})
	if err != nil {
		tst.Fatal(err)
	}
	expected := map[string][2]string{
		"fam_1_ind_a": {"fam_1", "ind_a"},
		"fam_1_ind_b": {"fam", "1_ind_b"},
		"x_y_z":       {"x", "y_z"},
	}
	if len(d.Individuals) != len(d.IDs) {
		tst.Fatal("individuals not aligned with IDs:", d.Individuals)
	}
	for i, id := range d.IDs {
		e, ok := expected[id]
		if !ok {
			tst.Fatal("unexpected ID", id)
		}
		if d.Individuals[i].FID != e[0] || d.Individuals[i].IID != e[1] {
			tst.Errorf("individual of %s is %v, expected %v", id, d.Individuals[i], e)
		}
	}
}
