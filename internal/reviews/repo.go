package reviews

import (
	"context"
	"math"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/furnishly-backend/pkg/db/models"
	"github.com/angelmondragon/furnishly-backend/pkg/pagination"
)

// Repository persists product reviews.
type Repository struct {
	db *gorm.DB
}

// NewRepository constructs a reviews repository bound to the provided DB.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) Create(ctx context.Context, review *models.Review) error {
	return r.db.WithContext(ctx).Create(review).Error
}

// ProductExists reports whether an active product with id exists.
func (r *Repository) ProductExists(ctx context.Context, id uuid.UUID) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.Product{}).
		Where("id = ? AND is_active = ?", id, true).
		Count(&count).Error
	return count > 0, err
}

// List pages through a product's reviews newest first.
func (r *Repository) List(ctx context.Context, productID uuid.UUID, params pagination.Params) ([]models.Review, string, error) {
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, "", err
	}
	var rows []models.Review
	err = r.db.WithContext(ctx).
		Preload("User").
		Where("product_id = ?", productID).
		Scopes(pagination.Scope("", cursor, params.Limit)).
		Find(&rows).Error
	if err != nil {
		return nil, "", err
	}
	rows, next := pagination.Trim(rows, params.Limit)
	return rows, next, nil
}

type summaryRow struct {
	ProductID uuid.UUID
	Average   float64
	Count     int
}

// Summaries aggregates ratings per product. Products without reviews are
// absent from the result.
func (r *Repository) Summaries(ctx context.Context, productIDs []uuid.UUID) (map[uuid.UUID]Summary, error) {
	out := make(map[uuid.UUID]Summary, len(productIDs))
	if len(productIDs) == 0 {
		return out, nil
	}
	var rows []summaryRow
	err := r.db.WithContext(ctx).
		Model(&models.Review{}).
		Select("product_id, AVG(rating) AS average, COUNT(*) AS count").
		Where("product_id IN ?", productIDs).
		Group("product_id").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	for _, row := range rows {
		out[row.ProductID] = Summary{Average: math.Round(row.Average*100) / 100, Count: row.Count}
	}
	return out, nil
}
