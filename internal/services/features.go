package services

import (
	"sort"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"gonum.org/v1/gonum/mat"

	"github.com/marev/vitrina/pkg/models"
)

// Price indicator buckets: low, medium, high.
const priceBuckets = 3

// catalogSnapshot is the immutable model the engine serves from: the product
// set, its derived feature vectors and the pairwise similarity matrix.
// Snapshots are built wholesale and published with a single pointer swap;
// they are never patched after publication, so concurrent readers need no
// further synchronization.
type catalogSnapshot struct {
	generation uint64
	healthy    bool // false when the catalog read failed and we degraded to empty

	products   []models.Product // ascending id; defines row order for both matrices
	indexByID  map[int64]int
	categories []string // sorted distinct canonical categories

	features   *mat.Dense // len(products) x (len(categories) + priceBuckets)
	similarity *mat.Dense // symmetric, zero diagonal
}

func (s *catalogSnapshot) Len() int { return len(s.products) }

func (s *catalogSnapshot) byID(id int64) (models.Product, bool) {
	idx, ok := s.indexByID[id]
	if !ok {
		return models.Product{}, false
	}
	return s.products[idx], true
}

// buildSnapshot derives feature vectors and the similarity matrix for one
// catalog read. Feature vectors are one-hot category indicators plus a
// 3-bucket equal-width bin of the min-max-normalized price.
func buildSnapshot(products []models.Product, strategy SimilarityStrategy, generation uint64, healthy bool) *catalogSnapshot {
	snap := &catalogSnapshot{
		generation: generation,
		healthy:    healthy,
		indexByID:  make(map[int64]int, len(products)),
	}
	if len(products) == 0 {
		return snap
	}

	caser := cases.Title(language.Und)

	snap.products = make([]models.Product, len(products))
	copy(snap.products, products)
	for i := range snap.products {
		snap.products[i].Category = caser.String(strings.ToLower(strings.TrimSpace(snap.products[i].Category)))
	}
	sort.Slice(snap.products, func(i, j int) bool {
		return snap.products[i].ID < snap.products[j].ID
	})

	categorySet := make(map[string]int)
	for i, p := range snap.products {
		snap.indexByID[p.ID] = i
		categorySet[p.Category] = 0
	}
	for cat := range categorySet {
		snap.categories = append(snap.categories, cat)
	}
	sort.Strings(snap.categories)
	for i, cat := range snap.categories {
		categorySet[cat] = i
	}

	// Min-max normalize prices; a flat catalog normalizes everything to the
	// middle bucket.
	minPrice, maxPrice := snap.products[0].Price, snap.products[0].Price
	for _, p := range snap.products[1:] {
		if p.Price < minPrice {
			minPrice = p.Price
		}
		if p.Price > maxPrice {
			maxPrice = p.Price
		}
	}
	priceRange := maxPrice - minPrice

	dims := len(snap.categories) + priceBuckets
	snap.features = mat.NewDense(len(snap.products), dims, nil)
	for i, p := range snap.products {
		snap.features.Set(i, categorySet[p.Category], 1)

		normalized := 0.5
		if priceRange > 0 {
			normalized = (p.Price - minPrice) / priceRange
		}
		bucket := int(normalized * priceBuckets)
		if bucket >= priceBuckets {
			bucket = priceBuckets - 1
		}
		snap.features.Set(i, len(snap.categories)+bucket, 1)
	}

	snap.similarity = strategy.CosineMatrix(snap.features)
	return snap
}
