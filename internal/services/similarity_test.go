package services

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func TestSimilarityStrategyFor(t *testing.T) {
	assert.Equal(t, StrategyGonum, SimilarityStrategyFor("gonum").Name())
	assert.Equal(t, StrategyNaive, SimilarityStrategyFor("naive").Name())

	// Unknown names fall back to the accelerated default.
	assert.Equal(t, StrategyGonum, SimilarityStrategyFor("").Name())
	assert.Equal(t, StrategyGonum, SimilarityStrategyFor("cuda").Name())
}

func TestCosineMatrix_SymmetricZeroDiagonal(t *testing.T) {
	features := mat.NewDense(3, 4, []float64{
		1, 0, 0, 1,
		1, 0, 1, 0,
		0, 1, 0, 1,
	})

	for _, strategy := range []SimilarityStrategy{gonumSimilarity{}, naiveSimilarity{}} {
		t.Run(strategy.Name(), func(t *testing.T) {
			sim := strategy.CosineMatrix(features)

			n, m := sim.Dims()
			require.Equal(t, 3, n)
			require.Equal(t, 3, m)

			for i := 0; i < n; i++ {
				assert.Zero(t, sim.At(i, i))
				for j := 0; j < n; j++ {
					assert.InDelta(t, sim.At(i, j), sim.At(j, i), 1e-12)
					assert.GreaterOrEqual(t, sim.At(i, j), 0.0)
					assert.LessOrEqual(t, sim.At(i, j), 1.0+1e-12)
				}
			}

			// Rows 0 and 1 share one of two set dimensions: cos = 1/2.
			assert.InDelta(t, 0.5, sim.At(0, 1), 1e-12)
		})
	}
}

func TestCosineMatrix_ZeroNormRow(t *testing.T) {
	features := mat.NewDense(2, 3, []float64{
		0, 0, 0,
		1, 1, 0,
	})

	for _, strategy := range []SimilarityStrategy{gonumSimilarity{}, naiveSimilarity{}} {
		t.Run(strategy.Name(), func(t *testing.T) {
			sim := strategy.CosineMatrix(features)
			assert.Zero(t, sim.At(0, 1))
			assert.Zero(t, sim.At(1, 0))
		})
	}
}

func TestCosineMatrix_StrategiesAgree(t *testing.T) {
	features := mat.NewDense(5, 6, []float64{
		1, 0, 0, 0, 1, 0,
		1, 0, 0, 0, 0, 1,
		0, 1, 0, 0, 1, 0,
		0, 0, 1, 0, 0, 1,
		0, 1, 0, 1, 1, 0,
	})

	fast := gonumSimilarity{}.CosineMatrix(features)
	slow := naiveSimilarity{}.CosineMatrix(features)

	n, _ := fast.Dims()
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			diff := math.Abs(fast.At(i, j) - slow.At(i, j))
			assert.LessOrEqual(t, diff, 1e-9, "entry (%d,%d) diverges between strategies", i, j)
		}
	}
}

func TestCosineMatrix_SingleProduct(t *testing.T) {
	for _, strategy := range []SimilarityStrategy{gonumSimilarity{}, naiveSimilarity{}} {
		sim := strategy.CosineMatrix(mat.NewDense(1, 2, []float64{1, 0}))
		n, m := sim.Dims()
		assert.Equal(t, 1, n)
		assert.Equal(t, 1, m)
		assert.Zero(t, sim.At(0, 0))
	}
}
