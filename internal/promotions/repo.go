package promotions

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/furnishly-backend/pkg/db/models"
	"github.com/angelmondragon/furnishly-backend/pkg/pagination"
)

// Repository persists promotions.
type Repository struct {
	db *gorm.DB
}

// NewRepository constructs a promotions repository bound to the provided DB.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// WithTx binds the repository to a transaction.
func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	if tx == nil {
		return r
	}
	return &Repository{db: tx}
}

func (r *Repository) Create(ctx context.Context, promo *models.Promotion) error {
	return r.db.WithContext(ctx).Create(promo).Error
}

// Save writes every column of an existing promotion.
func (r *Repository) Save(ctx context.Context, promo *models.Promotion) error {
	return r.db.WithContext(ctx).Save(promo).Error
}

func (r *Repository) Delete(ctx context.Context, id uuid.UUID) error {
	res := r.db.WithContext(ctx).Delete(&models.Promotion{}, "id = ?", id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Promotion, error) {
	var promo models.Promotion
	if err := r.db.WithContext(ctx).First(&promo, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &promo, nil
}

func (r *Repository) FindByCode(ctx context.Context, code string) (*models.Promotion, error) {
	var promo models.Promotion
	if err := r.db.WithContext(ctx).Where("code = ?", code).First(&promo).Error; err != nil {
		return nil, err
	}
	return &promo, nil
}

// ListActive returns every promotion flagged active, oldest first so the
// evaluator's later-wins tie break follows creation order. Date and code
// eligibility are decided by the evaluator.
func (r *Repository) ListActive(ctx context.Context) ([]models.Promotion, error) {
	var rows []models.Promotion
	err := r.db.WithContext(ctx).
		Where("is_active = ?", true).
		Order("created_at ASC").
		Order("id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// List pages through promotions newest first.
func (r *Repository) List(ctx context.Context, filters ListFilters, params pagination.Params) ([]models.Promotion, string, error) {
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, "", err
	}
	qb := r.db.WithContext(ctx).Model(&models.Promotion{})
	if filters.ActiveOnly {
		qb = qb.Where("is_active = ?", true)
	}
	if filters.CouponOnly {
		qb = qb.Where("code IS NOT NULL")
	}

	var rows []models.Promotion
	if err := qb.Scopes(pagination.Scope("", cursor, params.Limit)).Find(&rows).Error; err != nil {
		return nil, "", err
	}
	rows, next := pagination.Trim(rows, params.Limit)
	return rows, next, nil
}

// Redeem increments the redemption counter when the usage limit allows it.
// It reports false when the limit is exhausted.
func (r *Repository) Redeem(ctx context.Context, id uuid.UUID) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Promotion{}).
		Where("id = ? AND (usage_limit IS NULL OR redemption_count < usage_limit)", id).
		UpdateColumn("redemption_count", gorm.Expr("redemption_count + 1"))
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// Release gives back a redemption, used when an order that used a coupon is cancelled.
func (r *Repository) Release(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).
		Model(&models.Promotion{}).
		Where("id = ? AND redemption_count > 0", id).
		UpdateColumn("redemption_count", gorm.Expr("redemption_count - 1")).Error
}

// DeactivateEndedBefore switches off active promotions whose end date is
// before day and returns how many were changed.
func (r *Repository) DeactivateEndedBefore(ctx context.Context, day time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Promotion{}).
		Where("is_active = ? AND end_date < ?", true, day).
		Updates(map[string]any{"is_active": false, "updated_at": time.Now().UTC()})
	return res.RowsAffected, res.Error
}
