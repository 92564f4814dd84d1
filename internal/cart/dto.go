package cart

import (
	"github.com/google/uuid"

	"github.com/angelmondragon/furnishly-backend/internal/pricing"
	"github.com/angelmondragon/furnishly-backend/pkg/types"
)

// AddItemRequest adds quantity units of a product, merging with an existing line.
type AddItemRequest struct {
	ProductID uuid.UUID `json:"product_id" validate:"required"`
	Quantity  int       `json:"quantity" validate:"required,min=1"`
}

// UpdateItemRequest sets a line's quantity.
type UpdateItemRequest struct {
	Quantity int `json:"quantity" validate:"required,min=1"`
}

// CouponRequest names a redeem code to preview against the cart.
type CouponRequest struct {
	Code string `json:"code" validate:"required,max=64"`
}

// CartView is the priced cart returned by every cart endpoint.
type CartView struct {
	Items  []pricing.PricedCartLine `json:"items"`
	Totals pricing.Totals           `json:"totals"`
}

// CouponPreview shows what a code would take off the current cart.
type CouponPreview struct {
	Code          string      `json:"code"`
	EligibleTotal types.Money `json:"eligible_total"`
	Discount      types.Money `json:"discount"`
	Total         types.Money `json:"total"`
}
