package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/furnishly-backend/pkg/enums"
)

// Promotion is either a general discount applied automatically or a
// redeemable coupon, depending on Code. Dates are calendar days stored at
// UTC midnight and both ends are inclusive.
type Promotion struct {
	ID              uuid.UUID           `gorm:"column:id;type:uuid;primaryKey"`
	Code            *string             `gorm:"column:code;uniqueIndex"`
	Title           string              `gorm:"column:title;not null;default:''"`
	Type            enums.PromotionType `gorm:"column:type;type:text;not null"`
	Value           decimal.Decimal     `gorm:"column:value;type:numeric(12,2);not null"`
	StartDate       time.Time           `gorm:"column:start_date;type:date;not null"`
	EndDate         time.Time           `gorm:"column:end_date;type:date;not null"`
	AppliesTo       string              `gorm:"column:applies_to;not null;default:'AllProducts'"`
	IsActive        bool                `gorm:"column:is_active;not null"`
	UsageLimit      *int                `gorm:"column:usage_limit"`
	RedemptionCount int                 `gorm:"column:redemption_count;not null;default:0"`
	CreatedAt       time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}
