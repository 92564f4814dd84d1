package products

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/furnishly-backend/internal/pricing"
	"github.com/angelmondragon/furnishly-backend/internal/reviews"
	"github.com/angelmondragon/furnishly-backend/pkg/db/models"
	"github.com/angelmondragon/furnishly-backend/pkg/enums"
	"github.com/angelmondragon/furnishly-backend/pkg/types"
)

// Actor identifies who is managing a product.
type Actor struct {
	UserID uuid.UUID
	Role   enums.UserRole
}

// CanManage reports whether the actor may edit the product.
func (a Actor) CanManage(p models.Product) bool {
	if a.Role == enums.UserRoleAdmin {
		return true
	}
	return a.Role == enums.UserRoleSupplier && p.SupplierID != nil && *p.SupplierID == a.UserID
}

// CreateProductRequest is the supplier payload for a new listing.
type CreateProductRequest struct {
	Name        string      `json:"name" validate:"required,notblank,max=200"`
	Description string      `json:"description" validate:"max=5000"`
	Price       types.Money `json:"price"`
	Stock       int         `json:"stock" validate:"min=0"`
	Category    string      `json:"category" validate:"required,notblank,max=100"`
	SKU         string      `json:"sku" validate:"required,max=64"`
	ImageURLs   []string    `json:"images" validate:"omitempty,max=20,dive,url"`
	IsActive    *bool       `json:"is_active,omitempty"`
	SupplierID  *uuid.UUID  `json:"supplier_id,omitempty"`
}

// UpdateProductRequest patches a listing. Nil fields are left unchanged and a
// non-nil ImageURLs replaces the whole image list.
type UpdateProductRequest struct {
	Name        *string      `json:"name,omitempty" validate:"omitempty,max=200"`
	Description *string      `json:"description,omitempty" validate:"omitempty,max=5000"`
	Price       *types.Money `json:"price,omitempty"`
	Stock       *int         `json:"stock,omitempty" validate:"omitempty,min=0"`
	Category    *string      `json:"category,omitempty" validate:"omitempty,max=100"`
	SKU         *string      `json:"sku,omitempty" validate:"omitempty,max=64"`
	ImageURLs   *[]string    `json:"images,omitempty" validate:"omitempty,max=20,dive,url"`
	IsActive    *bool        `json:"is_active,omitempty"`
}

// ListFilters narrows the catalog listing.
type ListFilters struct {
	Category        string
	Search          string
	SupplierID      *uuid.UUID
	IncludeInactive bool
}

// ProductDTO is the catalog shape with the live promotion price attached.
type ProductDTO struct {
	ID              uuid.UUID        `json:"id"`
	SupplierID      *uuid.UUID       `json:"supplier_id,omitempty"`
	Name            string           `json:"name"`
	Description     string           `json:"description"`
	Price           types.Money      `json:"price"`
	DiscountedPrice *types.Money     `json:"discounted_price,omitempty"`
	DiscountPercent *int             `json:"discount_percent,omitempty"`
	Stock           int              `json:"stock"`
	Category        string           `json:"category"`
	SKU             string           `json:"sku"`
	IsActive        bool             `json:"is_active"`
	Images          []string         `json:"images"`
	Rating          *reviews.Summary `json:"rating,omitempty"`
	CreatedAt       time.Time        `json:"created_at"`
	UpdatedAt       time.Time        `json:"updated_at"`
}

// ProductList is a page of products ordered newest first.
type ProductList struct {
	Products   []ProductDTO `json:"products"`
	NextCursor string       `json:"next_cursor,omitempty"`
}

func fromModel(p models.Product, quote pricing.Quote) ProductDTO {
	dto := ProductDTO{
		ID:          p.ID,
		SupplierID:  p.SupplierID,
		Name:        p.Name,
		Description: p.Description,
		Price:       types.NewMoney(p.Price),
		Stock:       p.Stock,
		Category:    p.Category,
		SKU:         p.SKU,
		IsActive:    p.IsActive,
		Images:      p.ImageURLs(),
		CreatedAt:   p.CreatedAt,
		UpdatedAt:   p.UpdatedAt,
	}
	if quote.Discounted() {
		discounted := types.NewMoney(quote.FinalPrice)
		percent := quote.DiscountPercent
		dto.DiscountedPrice = &discounted
		dto.DiscountPercent = &percent
	}
	return dto
}

func imagesFromURLs(urls []string) []models.ProductImage {
	images := make([]models.ProductImage, 0, len(urls))
	for i, url := range urls {
		images = append(images, models.ProductImage{URL: url, Position: i})
	}
	return images
}
