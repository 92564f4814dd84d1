package promotions

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/furnishly-backend/pkg/db/models"
	"github.com/angelmondragon/furnishly-backend/pkg/enums"
	"github.com/angelmondragon/furnishly-backend/pkg/types"
)

const dateLayout = "2006-01-02"

// PromotionRequest is the admin create payload. Dates are calendar days.
type PromotionRequest struct {
	Code       *string             `json:"code,omitempty" validate:"omitempty,max=64"`
	Title      string              `json:"title" validate:"max=200"`
	Type       enums.PromotionType `json:"type" validate:"required"`
	Value      types.Money         `json:"value"`
	StartDate  string              `json:"start_date" validate:"required,isodate"`
	EndDate    string              `json:"end_date" validate:"required,isodate"`
	AppliesTo  string              `json:"applies_to"`
	IsActive   *bool               `json:"is_active,omitempty"`
	UsageLimit *int                `json:"usage_limit,omitempty" validate:"omitempty,min=0"`
}

// PromotionPatch is the admin update payload. Nil fields are left unchanged.
type PromotionPatch struct {
	Code       *string              `json:"code,omitempty" validate:"omitempty,max=64"`
	Title      *string              `json:"title,omitempty" validate:"omitempty,max=200"`
	Type       *enums.PromotionType `json:"type,omitempty"`
	Value      *types.Money         `json:"value,omitempty"`
	StartDate  *string              `json:"start_date,omitempty"`
	EndDate    *string              `json:"end_date,omitempty"`
	AppliesTo  *string              `json:"applies_to,omitempty"`
	IsActive   *bool                `json:"is_active,omitempty"`
	UsageLimit *int                 `json:"usage_limit,omitempty" validate:"omitempty,min=0"`
}

// PromotionDTO is the transport shape for promotions.
type PromotionDTO struct {
	ID              uuid.UUID           `json:"id"`
	Code            *string             `json:"code,omitempty"`
	Title           string              `json:"title"`
	Type            enums.PromotionType `json:"type"`
	Value           types.Money         `json:"value"`
	StartDate       string              `json:"start_date"`
	EndDate         string              `json:"end_date"`
	AppliesTo       string              `json:"applies_to"`
	IsActive        bool                `json:"is_active"`
	UsageLimit      *int                `json:"usage_limit,omitempty"`
	RedemptionCount int                 `json:"redemption_count"`
	CreatedAt       time.Time           `json:"created_at"`
	UpdatedAt       time.Time           `json:"updated_at"`
}

// PromotionList is a page of promotions ordered newest first.
type PromotionList struct {
	Promotions []PromotionDTO `json:"promotions"`
	NextCursor string         `json:"next_cursor,omitempty"`
}

// ListFilters narrows the admin listing.
type ListFilters struct {
	ActiveOnly bool
	CouponOnly bool
}

func FromModel(p models.Promotion) PromotionDTO {
	return PromotionDTO{
		ID:              p.ID,
		Code:            p.Code,
		Title:           p.Title,
		Type:            p.Type,
		Value:           types.NewMoney(p.Value),
		StartDate:       p.StartDate.UTC().Format(dateLayout),
		EndDate:         p.EndDate.UTC().Format(dateLayout),
		AppliesTo:       p.AppliesTo,
		IsActive:        p.IsActive,
		UsageLimit:      p.UsageLimit,
		RedemptionCount: p.RedemptionCount,
		CreatedAt:       p.CreatedAt,
		UpdatedAt:       p.UpdatedAt,
	}
}

// NormalizeCode trims and upper-cases a redeem code; blank codes become nil.
func NormalizeCode(code *string) *string {
	if code == nil {
		return nil
	}
	value := strings.ToUpper(strings.TrimSpace(*code))
	if value == "" {
		return nil
	}
	return &value
}

func parseDate(field, value string) (time.Time, error) {
	t, err := time.ParseInLocation(dateLayout, strings.TrimSpace(value), time.UTC)
	if err != nil {
		return time.Time{}, &fieldError{field: field, msg: "must be a YYYY-MM-DD date"}
	}
	return t, nil
}

type fieldError struct {
	field string
	msg   string
}

func (e *fieldError) Error() string { return e.field + " " + e.msg }
