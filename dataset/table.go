// Package dataset reads phenotype and covariate tables and intersects
// them with genotyped individuals into a response vector and a
// fixed-effect design matrix.
package dataset

import (
	"bufio"
	"io"
	"os"
	"strings"

	"github.com/klauspost/pgzip"
	"github.com/op/go-logging"

	"github.com/grexlab/grex/bed"
	"github.com/grexlab/grex/errs"
)

var log = logging.MustGetLogger("dataset")

// table is a parsed text table with an FID IID header.
type table struct {
	fn     string
	header []string
	rows   [][]string
	lines  []int
}

type gzipFile struct {
	*pgzip.Reader
	f *os.File
}

func (g gzipFile) Close() error {
	g.Reader.Close()
	return g.f.Close()
}

// openText opens fn, decompressing it when the name ends with .gz.
func openText(fn string) (io.ReadCloser, error) {
	f, err := os.Open(fn)
	if err != nil {
		return nil, errs.Invalidf("%v", err)
	}
	if !strings.HasSuffix(fn, ".gz") {
		return f, nil
	}
	rdr, err := pgzip.NewReader(bufio.NewReaderSize(f, 1<<20))
	if err != nil {
		f.Close()
		return nil, errs.Invalidf("%s: %v", fn, err)
	}
	return gzipFile{Reader: rdr, f: f}, nil
}

func splitLine(l string) []string {
	l = strings.TrimRight(l, "\r")
	if strings.IndexByte(l, '\t') >= 0 {
		return strings.Split(l, "\t")
	}
	return strings.Fields(l)
}

// readTable reads a table whose first two header columns are FID and IID.
func readTable(fn string) (*table, error) {
	rc, err := openText(fn)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	t := &table{fn: fn}
	scanner := bufio.NewScanner(rc)
	scanner.Buffer(make([]byte, 0, 1<<16), 1<<26)
	line := 0
	for scanner.Scan() {
		line++
		if strings.TrimSpace(scanner.Text()) == "" {
			continue
		}
		fields := splitLine(scanner.Text())
		if t.header == nil {
			if len(fields) < 2 || fields[0] != "FID" || fields[1] != "IID" {
				return nil, errs.Invalidf("%s: header must start with FID and IID, got %q", fn, fields)
			}
			t.header = fields
			continue
		}
		if len(fields) != len(t.header) {
			return nil, errs.Invalidf("%s:%d: %d columns, header has %d", fn, line, len(fields), len(t.header))
		}
		t.rows = append(t.rows, fields)
		t.lines = append(t.lines, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, errs.IOf("%s: %v", fn, err)
	}
	if t.header == nil {
		return nil, errs.Invalidf("%s: empty file", fn)
	}
	return t, nil
}

// individual returns the FID and IID of a row.
func individual(row []string) bed.Individual {
	return bed.Individual{FID: row[0], IID: row[1]}
}

// id returns the sample identifier of a row, matching bed.Individual.ID.
func id(row []string, iidOnly bool) string {
	return individual(row).ID(iidOnly)
}
