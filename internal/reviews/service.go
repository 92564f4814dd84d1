package reviews

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/angelmondragon/furnishly-backend/pkg/db"
	"github.com/angelmondragon/furnishly-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/furnishly-backend/pkg/errors"
	"github.com/angelmondragon/furnishly-backend/pkg/pagination"
)

// Service handles posting and reading product reviews.
type Service interface {
	Create(ctx context.Context, userID, productID uuid.UUID, req CreateReviewRequest) (*ReviewDTO, error)
	List(ctx context.Context, productID uuid.UUID, params pagination.Params) (*ReviewList, error)
	Summaries(ctx context.Context, productIDs []uuid.UUID) (map[uuid.UUID]Summary, error)
}

type reviewRepository interface {
	Create(ctx context.Context, review *models.Review) error
	ProductExists(ctx context.Context, id uuid.UUID) (bool, error)
	List(ctx context.Context, productID uuid.UUID, params pagination.Params) ([]models.Review, string, error)
	Summaries(ctx context.Context, productIDs []uuid.UUID) (map[uuid.UUID]Summary, error)
}

type service struct {
	repo reviewRepository
}

// NewService builds the reviews service.
func NewService(repo reviewRepository) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("review repository is required")
	}
	return &service{repo: repo}, nil
}

func (s *service) Create(ctx context.Context, userID, productID uuid.UUID, req CreateReviewRequest) (*ReviewDTO, error) {
	if req.Rating < 1 || req.Rating > 5 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "rating must be between 1 and 5").
			WithDetails(map[string]string{"rating": "must be between 1 and 5"})
	}
	exists, err := s.repo.ProductExists(ctx, productID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check product")
	}
	if !exists {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
	}

	review := models.Review{
		ProductID: productID,
		UserID:    userID,
		Rating:    req.Rating,
		Comment:   trimComment(req.Comment),
	}
	if err := s.repo.Create(ctx, &review); err != nil {
		if db.IsUniqueViolation(err, "") {
			return nil, pkgerrors.New(pkgerrors.CodeConflict, "you have already reviewed this product")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create review")
	}
	dto := FromModel(review)
	return &dto, nil
}

func (s *service) List(ctx context.Context, productID uuid.UUID, params pagination.Params) (*ReviewList, error) {
	if _, err := pagination.ParseCursor(params.Cursor); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	exists, err := s.repo.ProductExists(ctx, productID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check product")
	}
	if !exists {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
	}

	rows, next, err := s.repo.List(ctx, productID, params)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list reviews")
	}
	summaries, err := s.repo.Summaries(ctx, []uuid.UUID{productID})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "summarize reviews")
	}

	out := make([]ReviewDTO, 0, len(rows))
	for _, row := range rows {
		out = append(out, FromModel(row))
	}
	return &ReviewList{Reviews: out, Summary: summaries[productID], NextCursor: next}, nil
}

func (s *service) Summaries(ctx context.Context, productIDs []uuid.UUID) (map[uuid.UUID]Summary, error) {
	out, err := s.repo.Summaries(ctx, productIDs)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "summarize reviews")
	}
	return out, nil
}

func trimComment(comment *string) *string {
	if comment == nil {
		return nil
	}
	value := strings.TrimSpace(*comment)
	if value == "" {
		return nil
	}
	return &value
}
