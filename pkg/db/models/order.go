package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/furnishly-backend/pkg/enums"
)

// Order is a placed checkout. Amounts are frozen at placement time.
type Order struct {
	ID                uuid.UUID         `gorm:"column:id;type:uuid;primaryKey"`
	UserID            uuid.UUID         `gorm:"column:user_id;type:uuid;not null;index"`
	Status            enums.OrderStatus `gorm:"column:status;type:text;not null;default:'pending'"`
	Subtotal          decimal.Decimal   `gorm:"column:subtotal;type:numeric(12,2);not null"`
	DiscountTotal     decimal.Decimal   `gorm:"column:discount_total;type:numeric(12,2);not null"`
	CouponDiscount    decimal.Decimal   `gorm:"column:coupon_discount;type:numeric(12,2);not null"`
	Total             decimal.Decimal   `gorm:"column:total;type:numeric(12,2);not null"`
	CouponCode        *string           `gorm:"column:coupon_code"`
	CouponPromotionID *uuid.UUID        `gorm:"column:coupon_promotion_id;type:uuid"`
	ShippingAddress   string            `gorm:"column:shipping_address;not null"`
	Items             []OrderItem       `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
	CreatedAt         time.Time         `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt         time.Time         `gorm:"column:updated_at;autoUpdateTime"`
}

// OrderItem snapshots the product and price a line was sold at.
type OrderItem struct {
	ID              uuid.UUID       `gorm:"column:id;type:uuid;primaryKey"`
	OrderID         uuid.UUID       `gorm:"column:order_id;type:uuid;not null;index"`
	ProductID       uuid.UUID       `gorm:"column:product_id;type:uuid;not null"`
	ProductName     string          `gorm:"column:product_name;not null"`
	SKU             string          `gorm:"column:sku;not null"`
	Quantity        int             `gorm:"column:quantity;not null"`
	BasePrice       decimal.Decimal `gorm:"column:base_price;type:numeric(12,2);not null"`
	UnitPrice       decimal.Decimal `gorm:"column:unit_price;type:numeric(12,2);not null"`
	DiscountPercent int             `gorm:"column:discount_percent;not null;default:0"`
	PromotionID     *uuid.UUID      `gorm:"column:promotion_id;type:uuid"`
	LineTotal       decimal.Decimal `gorm:"column:line_total;type:numeric(12,2);not null"`
	CreatedAt       time.Time       `gorm:"column:created_at;autoCreateTime"`
}
