package models

// Recommendation is one ranked entry in a recommendation response.
// SimilarityScore is the raw cosine similarity against the seed product;
// FinalScore is the similarity after user preference adjustment. Fallback
// entries carry SimilarityScore 0 and a flat low FinalScore.
type Recommendation struct {
	ProductID       int64   `json:"product_id"`
	Name            string  `json:"name"`
	Price           float64 `json:"price"`
	Category        string  `json:"category"`
	SimilarityScore float64 `json:"similarity_score"`
	FinalScore      float64 `json:"final_score"`
	Reason          string  `json:"reason"`
	DetailURL       string  `json:"detail_url"`
	ImageURL        *string `json:"image_url,omitempty"`
}

type RecommendationResponse struct {
	ProductID       int64            `json:"product_id"`
	Recommendations []Recommendation `json:"recommendations"`
	Count           int              `json:"count"`
}

// EngineStats is the read-only observability view of the engine.
type EngineStats struct {
	TotalProducts    int    `json:"total_products"`
	UniqueCategories int    `json:"unique_categories"`
	IsLoaded         bool   `json:"is_loaded"`
	Optimized        bool   `json:"optimized"`
	Strategy         string `json:"strategy"`
}
