package orders

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/furnishly-backend/pkg/db/models"
	"github.com/angelmondragon/furnishly-backend/pkg/enums"
	"github.com/angelmondragon/furnishly-backend/pkg/types"
)

// PlaceOrderRequest turns the caller's cart into an order.
type PlaceOrderRequest struct {
	ShippingAddress string  `json:"shipping_address" validate:"required,max=500"`
	CouponCode      *string `json:"coupon_code,omitempty" validate:"omitempty,max=64"`
}

// UpdateStatusRequest moves an order along its lifecycle.
type UpdateStatusRequest struct {
	Status string `json:"status" validate:"required"`
}

// ListFilters narrow the admin order list.
type ListFilters struct {
	Status *enums.OrderStatus
	UserID *uuid.UUID
}

// OrderItemDTO is one sold line with its frozen prices.
type OrderItemDTO struct {
	ID              uuid.UUID   `json:"id"`
	ProductID       uuid.UUID   `json:"product_id"`
	Name            string      `json:"name"`
	SKU             string      `json:"sku"`
	Quantity        int         `json:"quantity"`
	BasePrice       types.Money `json:"base_price"`
	UnitPrice       types.Money `json:"unit_price"`
	DiscountPercent int         `json:"discount_percent"`
	LineTotal       types.Money `json:"line_total"`
}

// OrderDTO is the order representation returned by the API.
type OrderDTO struct {
	ID              uuid.UUID         `json:"id"`
	UserID          uuid.UUID         `json:"user_id"`
	Status          enums.OrderStatus `json:"status"`
	Subtotal        types.Money       `json:"subtotal"`
	DiscountTotal   types.Money       `json:"discount_total"`
	CouponCode      *string           `json:"coupon_code,omitempty"`
	CouponDiscount  types.Money       `json:"coupon_discount"`
	Total           types.Money       `json:"total"`
	ShippingAddress string            `json:"shipping_address"`
	Items           []OrderItemDTO    `json:"items"`
	CreatedAt       time.Time         `json:"created_at"`
	UpdatedAt       time.Time         `json:"updated_at"`
}

// OrderList is a page of orders.
type OrderList struct {
	Orders     []OrderDTO `json:"orders"`
	NextCursor string     `json:"next_cursor,omitempty"`
}

// FromModel converts a persisted order.
func FromModel(o models.Order) OrderDTO {
	items := make([]OrderItemDTO, 0, len(o.Items))
	for _, item := range o.Items {
		items = append(items, OrderItemDTO{
			ID:              item.ID,
			ProductID:       item.ProductID,
			Name:            item.ProductName,
			SKU:             item.SKU,
			Quantity:        item.Quantity,
			BasePrice:       types.NewMoney(item.BasePrice),
			UnitPrice:       types.NewMoney(item.UnitPrice),
			DiscountPercent: item.DiscountPercent,
			LineTotal:       types.NewMoney(item.LineTotal),
		})
	}
	return OrderDTO{
		ID:              o.ID,
		UserID:          o.UserID,
		Status:          o.Status,
		Subtotal:        types.NewMoney(o.Subtotal),
		DiscountTotal:   types.NewMoney(o.DiscountTotal),
		CouponCode:      o.CouponCode,
		CouponDiscount:  types.NewMoney(o.CouponDiscount),
		Total:           types.NewMoney(o.Total),
		ShippingAddress: o.ShippingAddress,
		Items:           items,
		CreatedAt:       o.CreatedAt,
		UpdatedAt:       o.UpdatedAt,
	}
}

func fromModels(rows []models.Order) []OrderDTO {
	out := make([]OrderDTO, 0, len(rows))
	for _, row := range rows {
		out = append(out, FromModel(row))
	}
	return out
}
