package grm

import (
	"io"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/grexlab/grex/bed"
	"github.com/grexlab/grex/coding"
	"github.com/grexlab/grex/errs"
)

// CrossBuilder computes the n_test × n_train relationship block with
// test genotypes coded using training statistics and scale.
type CrossBuilder struct {
	Train     *bed.Reader
	Test      *bed.Reader
	Method    coding.Method
	Norm      Norm
	ChunkSize int
	Threads   int
}

// Cross is a rectangular relationship block.
type Cross struct {
	TestIDs  []string
	TrainIDs []string
	K        *mat.Dense
	Scale    float64
}

func (b *CrossBuilder) checkSNPs() error {
	train, test := b.Train.SNPIDs(), b.Test.SNPIDs()
	if len(train) != len(test) {
		return errs.Invalidf("SNP mismatch: %d training and %d test SNPs", len(train), len(test))
	}
	for i := range train {
		if train[i] != test[i] {
			return errs.Invalidf("SNP mismatch at position %d: %s != %s", i, train[i], test[i])
		}
	}
	return nil
}

// Compute builds the cross-GRM for the given effect.
func (b *CrossBuilder) Compute(effect coding.Effect) (*Cross, error) {
	if err := b.checkSNPs(); err != nil {
		return nil, err
	}
	bb := Builder{ChunkSize: b.ChunkSize, Threads: b.Threads}
	chunkSize, threads := bb.chunkSize(), bb.threads()
	pol := coding.Policy{Method: b.Method, Effect: effect}

	nTest, nTrain := b.Test.NumIndividuals(), b.Train.NumIndividuals()
	c := &Cross{
		TestIDs:  b.Test.IDs(),
		TrainIDs: b.Train.IDs(),
		K:        mat.NewDense(nTest, nTrain, nil),
	}
	var prod mat.Dense
	trace, vanRaden := 0.0, 0.0

	b.Train.Reset()
	b.Test.Reset()
	for {
		train, err := b.Train.ReadChunk(chunkSize)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		test, err := b.Test.ReadChunk(chunkSize)
		if err != nil {
			return nil, err
		}

		stats, err := codeChunk(train, pol, threads)
		if err != nil {
			return nil, err
		}
		for j, st := range stats {
			pol.Apply(test.Column(j), st)
			col := train.Column(j)
			trace += floats.Dot(col, col)
			vanRaden += st.VanRaden(effect)
		}
		prod.Reset()
		prod.Mul(test.Data.T(), train.Data)
		c.K.Add(c.K, &prod)
	}

	if b.Norm == VanRaden {
		c.Scale = vanRaden
	} else {
		c.Scale = trace / float64(nTrain)
	}
	if !(c.Scale > 0) {
		return nil, errs.Inconsistentf("cross-GRM scale is %v, no polymorphic SNPs", c.Scale)
	}
	c.K.Scale(1/c.Scale, c.K)
	log.Infof("Built %s cross-GRM %d×%d (training scale %.6g)", pol, nTest, nTrain, c.Scale)
	return c, nil
}
