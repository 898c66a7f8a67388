package services

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/sirupsen/logrus"

	"github.com/marev/vitrina/pkg/models"
)

// DatabaseQuerier is the subset of pgxpool.Pool the services use; pgxmock
// satisfies it in tests.
type DatabaseQuerier interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

// ProductCatalogService reads the product catalog. The engine consumes it
// through the ProductSource interface and never writes through it.
type ProductCatalogService struct {
	db     DatabaseQuerier
	logger *logrus.Logger
}

func NewProductCatalogService(db DatabaseQuerier, logger *logrus.Logger) *ProductCatalogService {
	return &ProductCatalogService{db: db, logger: logger}
}

// AllProducts returns the full catalog in one read. This is the single
// blocking call behind the engine's lazy load.
func (s *ProductCatalogService) AllProducts(ctx context.Context) ([]models.Product, error) {
	query := `
		SELECT id, name, description, price, category, image_url, created_at, updated_at
		FROM products
		ORDER BY id`

	rows, err := s.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query products: %w", err)
	}
	defer rows.Close()

	var products []models.Product
	for rows.Next() {
		var p models.Product
		if err := rows.Scan(&p.ID, &p.Name, &p.Description, &p.Price, &p.Category, &p.ImageURL, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan product: %w", err)
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read products: %w", err)
	}

	return products, nil
}
