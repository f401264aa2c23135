package bed

import (
	"fmt"
	"io"
	"math"
	"os"

	"gonum.org/v1/gonum/mat"

	"github.com/grexlab/grex/errs"
)

// magic is the PLINK v1 SNP-major header.
var magic = [3]byte{0x6c, 0x1b, 0x01}

// decodeLUT maps a packed byte to its four genotypes, lowest bits first.
// Codes 00, 01, 10 and 11 are homozygous A1 (2), missing, heterozygous (1)
// and homozygous A2 (0).
var decodeLUT [256][4]float64

func init() {
	codes := [4]float64{2, math.NaN(), 1, 0}
	for b := 0; b < 256; b++ {
		for k := 0; k < 4; k++ {
			decodeLUT[b][k] = codes[(b>>(2*uint(k)))&3]
		}
	}
}

// Options controls how individuals are selected and ordered.
type Options struct {
	// IIDOnly matches individuals by IID instead of FID_IID.
	IIDOnly bool
	// Target is the output order of individual IDs. Nil keeps
	// the .fam order.
	Target []string
}

// Chunk is a block of decoded genotypes. Data is stored SNP-major:
// row j holds SNP Start+j for every individual, so Matrix is the
// n×c individuals by SNPs view.
type Chunk struct {
	Start int
	Data  *mat.Dense
}

// Matrix returns the n×c view of the chunk.
func (c *Chunk) Matrix() mat.Matrix {
	return c.Data.T()
}

// NumSNPs returns the number of SNPs in the chunk.
func (c *Chunk) NumSNPs() int {
	r, _ := c.Data.Dims()
	return r
}

// Column returns the genotypes of SNP Start+j. The slice aliases
// the chunk storage.
func (c *Chunk) Column(j int) []float64 {
	return c.Data.RawRowView(j)
}

// Reader decodes a .bed file chunk by chunk.
type Reader struct {
	Prefix      string
	SNPs        []SNP
	Individuals []Individual

	f            *os.File
	ids          []string
	fileToTarget []int
	nFile        int
	bytesPerSNP  int
	cursor       int
	buf          []byte
}

// Open opens prefix.bed, prefix.bim and prefix.fam.
func Open(prefix string, opts Options) (*Reader, error) {
	inds, err := ReadFam(prefix + ".fam")
	if err != nil {
		return nil, err
	}
	snps, err := ReadBim(prefix + ".bim")
	if err != nil {
		return nil, err
	}

	r := &Reader{
		Prefix:      prefix,
		SNPs:        snps,
		Individuals: inds,
		nFile:       len(inds),
		bytesPerSNP: (len(inds) + 3) / 4,
	}
	if err := r.setTarget(opts); err != nil {
		return nil, err
	}

	f, err := os.Open(prefix + ".bed")
	if err != nil {
		return nil, errs.Invalidf("%v", err)
	}
	r.f = f
	if err := r.checkHeader(); err != nil {
		f.Close()
		return nil, err
	}
	r.buf = make([]byte, r.bytesPerSNP)

	log.Infof("Read %d individuals (%d used) and %d SNPs from %s", r.nFile, len(r.ids), len(snps), prefix)
	return r, nil
}

func (r *Reader) setTarget(opts Options) error {
	r.fileToTarget = make([]int, r.nFile)
	if opts.Target == nil {
		r.ids = make([]string, r.nFile)
		for i, ind := range r.Individuals {
			r.ids[i] = ind.ID(opts.IIDOnly)
			r.fileToTarget[i] = i
		}
		return nil
	}

	pos := make(map[string]int, r.nFile)
	for i, ind := range r.Individuals {
		pos[ind.ID(opts.IIDOnly)] = i
		r.fileToTarget[i] = -1
	}
	r.ids = make([]string, len(opts.Target))
	for t, id := range opts.Target {
		i, ok := pos[id]
		if !ok {
			return fmt.Errorf("%w: %s not in %s.fam", ErrMissingIndividual, id, r.Prefix)
		}
		r.fileToTarget[i] = t
		r.ids[t] = id
	}
	return nil
}

func (r *Reader) checkHeader() error {
	var h [3]byte
	if _, err := io.ReadFull(r.f, h[:]); err != nil {
		return fmt.Errorf("%w: %s.bed: header: %v", ErrInvalidFile, r.Prefix, err)
	}
	if h != magic {
		return fmt.Errorf("%w: %s.bed: bad magic %x", ErrInvalidFile, r.Prefix, h)
	}
	st, err := r.f.Stat()
	if err != nil {
		return errs.IOf("%v", err)
	}
	expected := int64(len(magic)) + int64(len(r.SNPs))*int64(r.bytesPerSNP)
	if st.Size() < expected {
		return fmt.Errorf("%w: %s.bed: truncated, %d bytes, expected %d", ErrInvalidFile, r.Prefix, st.Size(), expected)
	}
	if st.Size() > expected {
		log.Warningf("%s.bed has %d trailing bytes", r.Prefix, st.Size()-expected)
	}
	return nil
}

// NumSNPs returns the number of SNPs in the file.
func (r *Reader) NumSNPs() int {
	return len(r.SNPs)
}

// NumIndividuals returns the number of individuals in the output order.
func (r *Reader) NumIndividuals() int {
	return len(r.ids)
}

// IDs returns the individual IDs in output order.
func (r *Reader) IDs() []string {
	return r.ids
}

// SNPIDs returns the SNP identifiers in file order.
func (r *Reader) SNPIDs() []string {
	ids := make([]string, len(r.SNPs))
	for i, s := range r.SNPs {
		ids[i] = s.ID
	}
	return ids
}

// Reset rewinds the chunk cursor.
func (r *Reader) Reset() {
	r.cursor = 0
}

// Close closes the underlying .bed file.
func (r *Reader) Close() error {
	return r.f.Close()
}

// ReadChunk decodes up to k SNPs starting at the cursor and advances it.
// It returns io.EOF once all SNPs were read.
func (r *Reader) ReadChunk(k int) (*Chunk, error) {
	if k <= 0 {
		return nil, errs.Argumentf("chunk size %d", k)
	}
	if r.cursor >= len(r.SNPs) {
		return nil, io.EOF
	}
	c := k
	if r.cursor+c > len(r.SNPs) {
		c = len(r.SNPs) - r.cursor
	}
	chunk := &Chunk{Start: r.cursor, Data: mat.NewDense(c, len(r.ids), nil)}
	for j := 0; j < c; j++ {
		if err := r.ReadSNP(r.cursor+j, chunk.Column(j)); err != nil {
			return nil, err
		}
	}
	r.cursor += c
	return chunk, nil
}

// ReadSNP decodes SNP j into dst, which must have NumIndividuals elements.
// Missing genotypes are NaN.
func (r *Reader) ReadSNP(j int, dst []float64) error {
	off := int64(len(magic)) + int64(j)*int64(r.bytesPerSNP)
	n, err := r.f.ReadAt(r.buf, off)
	if n < len(r.buf) {
		return errs.IOf("%s.bed: SNP %d: read %d of %d bytes: %v", r.Prefix, j, n, len(r.buf), err)
	}
	for i := 0; i < r.nFile; i++ {
		t := r.fileToTarget[i]
		if t < 0 {
			continue
		}
		dst[t] = decodeLUT[r.buf[i>>2]][i&3]
	}
	return nil
}
