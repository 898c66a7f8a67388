package services

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

const (
	StrategyGonum = "gonum"
	StrategyNaive = "naive"
)

// SimilarityStrategy computes a pairwise cosine similarity matrix from a
// row-per-product feature matrix. Implementations must return a symmetric
// matrix with a zero diagonal and must agree with each other within
// floating-point tolerance; the engine's contract is identical regardless of
// which strategy is active.
type SimilarityStrategy interface {
	Name() string
	CosineMatrix(features *mat.Dense) *mat.Dense
}

// SimilarityStrategyFor selects a strategy by name, defaulting to the
// BLAS-backed gonum implementation.
func SimilarityStrategyFor(name string) SimilarityStrategy {
	if name == StrategyNaive {
		return naiveSimilarity{}
	}
	return gonumSimilarity{}
}

// gonumSimilarity computes the full Gram matrix with a single BLAS-backed
// matrix product, then normalizes rows in place.
type gonumSimilarity struct{}

func (gonumSimilarity) Name() string { return StrategyGonum }

func (gonumSimilarity) CosineMatrix(features *mat.Dense) *mat.Dense {
	n, _ := features.Dims()
	out := mat.NewDense(n, n, nil)
	if n == 0 {
		return out
	}

	out.Mul(features, features.T())

	// Row norms fall out of the Gram matrix diagonal.
	norms := make([]float64, n)
	for i := 0; i < n; i++ {
		norms[i] = math.Sqrt(out.At(i, i))
	}

	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			if i == j {
				out.Set(i, j, 0)
				continue
			}
			denom := norms[i] * norms[j]
			if denom == 0 {
				out.Set(i, j, 0)
				continue
			}
			out.Set(i, j, out.At(i, j)/denom)
		}
	}

	return out
}

// naiveSimilarity is the portable fallback: plain nested loops over raw rows.
type naiveSimilarity struct{}

func (naiveSimilarity) Name() string { return StrategyNaive }

func (naiveSimilarity) CosineMatrix(features *mat.Dense) *mat.Dense {
	n, _ := features.Dims()
	out := mat.NewDense(n, n, nil)
	if n == 0 {
		return out
	}

	norms := make([]float64, n)
	for i := 0; i < n; i++ {
		row := features.RawRowView(i)
		var sum float64
		for _, v := range row {
			sum += v * v
		}
		norms[i] = math.Sqrt(sum)
	}

	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			denom := norms[i] * norms[j]
			if denom == 0 {
				continue
			}
			ri, rj := features.RawRowView(i), features.RawRowView(j)
			var dot float64
			for k := range ri {
				dot += ri[k] * rj[k]
			}
			sim := dot / denom
			out.Set(i, j, sim)
			out.Set(j, i, sim)
		}
	}

	return out
}
