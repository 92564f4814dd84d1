package reviews

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/furnishly-backend/pkg/db/models"
)

// CreateReviewRequest is the customer payload for rating a product.
type CreateReviewRequest struct {
	Rating  int     `json:"rating" validate:"required,min=1,max=5"`
	Comment *string `json:"comment,omitempty" validate:"omitempty,max=2000"`
}

// ReviewDTO is the public shape of a review.
type ReviewDTO struct {
	ID        uuid.UUID `json:"id"`
	ProductID uuid.UUID `json:"product_id"`
	UserID    uuid.UUID `json:"user_id"`
	UserName  string    `json:"user_name,omitempty"`
	Rating    int       `json:"rating"`
	Comment   *string   `json:"comment,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Summary is the rating aggregate for a product.
type Summary struct {
	Average float64 `json:"average"`
	Count   int     `json:"count"`
}

// ReviewList is a page of reviews plus the product-wide summary.
type ReviewList struct {
	Reviews    []ReviewDTO `json:"reviews"`
	Summary    Summary     `json:"summary"`
	NextCursor string      `json:"next_cursor,omitempty"`
}

func FromModel(r models.Review) ReviewDTO {
	dto := ReviewDTO{
		ID:        r.ID,
		ProductID: r.ProductID,
		UserID:    r.UserID,
		Rating:    r.Rating,
		Comment:   r.Comment,
		CreatedAt: r.CreatedAt,
	}
	if r.User != nil {
		dto.UserName = r.User.Name
	}
	return dto
}
