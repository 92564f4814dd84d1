package promotions

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/furnishly-backend/internal/pricing"
	"github.com/angelmondragon/furnishly-backend/pkg/db"
	"github.com/angelmondragon/furnishly-backend/pkg/db/models"
	"github.com/angelmondragon/furnishly-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/furnishly-backend/pkg/errors"
	"github.com/angelmondragon/furnishly-backend/pkg/logger"
	"github.com/angelmondragon/furnishly-backend/pkg/pagination"
)

// Service manages promotions for admins and lists the live ones publicly.
type Service interface {
	Create(ctx context.Context, req PromotionRequest) (*PromotionDTO, error)
	Update(ctx context.Context, id uuid.UUID, patch PromotionPatch) (*PromotionDTO, error)
	Delete(ctx context.Context, id uuid.UUID) error
	Get(ctx context.Context, id uuid.UUID) (*PromotionDTO, error)
	List(ctx context.Context, filters ListFilters, params pagination.Params) (*PromotionList, error)
	ListCurrent(ctx context.Context) ([]PromotionDTO, error)
}

type promotionRepository interface {
	Create(ctx context.Context, promo *models.Promotion) error
	Save(ctx context.Context, promo *models.Promotion) error
	Delete(ctx context.Context, id uuid.UUID) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Promotion, error)
	ListActive(ctx context.Context) ([]models.Promotion, error)
	List(ctx context.Context, filters ListFilters, params pagination.Params) ([]models.Promotion, string, error)
}

// ServiceParams bundles the promotions service dependencies.
type ServiceParams struct {
	Repo      promotionRepository
	Evaluator pricing.Evaluator
	Clock     pricing.Clock
	Logger    *logger.Logger
}

type service struct {
	repo      promotionRepository
	evaluator pricing.Evaluator
	clock     pricing.Clock
	logg      *logger.Logger
}

// NewService builds the promotions service.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("promotion repository is required")
	}
	if params.Logger == nil {
		params.Logger = logger.Nop()
	}
	return &service{
		repo:      params.Repo,
		evaluator: params.Evaluator,
		clock:     params.Clock,
		logg:      params.Logger,
	}, nil
}

func (s *service) Create(ctx context.Context, req PromotionRequest) (*PromotionDTO, error) {
	promo := models.Promotion{
		Code:       s.storedCode(req.Code),
		Title:      strings.TrimSpace(req.Title),
		Type:       req.Type,
		Value:      req.Value.Decimal,
		AppliesTo:  strings.TrimSpace(req.AppliesTo),
		IsActive:   true,
		UsageLimit: req.UsageLimit,
	}
	if promo.AppliesTo == "" {
		promo.AppliesTo = pricing.ScopeAllProducts
	}
	if req.IsActive != nil {
		promo.IsActive = *req.IsActive
	}

	var err error
	if promo.StartDate, err = parseDate("start_date", req.StartDate); err != nil {
		return nil, validationError(err)
	}
	if promo.EndDate, err = parseDate("end_date", req.EndDate); err != nil {
		return nil, validationError(err)
	}
	if err := validate(promo); err != nil {
		return nil, err
	}

	if err := s.repo.Create(ctx, &promo); err != nil {
		return nil, mapWriteError(err, "create promotion")
	}
	s.logg.Info(s.logg.WithField(ctx, "promotion_id", promo.ID.String()), "promotion created")
	dto := FromModel(promo)
	return &dto, nil
}

func (s *service) Update(ctx context.Context, id uuid.UUID, patch PromotionPatch) (*PromotionDTO, error) {
	promo, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}

	if patch.Code != nil {
		promo.Code = s.storedCode(patch.Code)
	}
	if patch.Title != nil {
		promo.Title = strings.TrimSpace(*patch.Title)
	}
	if patch.Type != nil {
		promo.Type = *patch.Type
	}
	if patch.Value != nil {
		promo.Value = patch.Value.Decimal
	}
	if patch.StartDate != nil {
		if promo.StartDate, err = parseDate("start_date", *patch.StartDate); err != nil {
			return nil, validationError(err)
		}
	}
	if patch.EndDate != nil {
		if promo.EndDate, err = parseDate("end_date", *patch.EndDate); err != nil {
			return nil, validationError(err)
		}
	}
	if patch.AppliesTo != nil {
		promo.AppliesTo = strings.TrimSpace(*patch.AppliesTo)
	}
	if patch.IsActive != nil {
		promo.IsActive = *patch.IsActive
	}
	if patch.UsageLimit != nil {
		promo.UsageLimit = patch.UsageLimit
	}
	if err := validate(*promo); err != nil {
		return nil, err
	}

	if err := s.repo.Save(ctx, promo); err != nil {
		return nil, mapWriteError(err, "update promotion")
	}
	dto := FromModel(*promo)
	return &dto, nil
}

func (s *service) Delete(ctx context.Context, id uuid.UUID) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return pkgerrors.New(pkgerrors.CodeNotFound, "promotion not found")
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "delete promotion")
	}
	return nil
}

func (s *service) Get(ctx context.Context, id uuid.UUID) (*PromotionDTO, error) {
	promo, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	dto := FromModel(*promo)
	return &dto, nil
}

func (s *service) List(ctx context.Context, filters ListFilters, params pagination.Params) (*PromotionList, error) {
	if _, err := pagination.ParseCursor(params.Cursor); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	rows, next, err := s.repo.List(ctx, filters, params)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list promotions")
	}
	out := make([]PromotionDTO, 0, len(rows))
	for _, row := range rows {
		out = append(out, FromModel(row))
	}
	return &PromotionList{Promotions: out, NextCursor: next}, nil
}

// ListCurrent returns the general promotions the evaluator would apply today.
func (s *service) ListCurrent(ctx context.Context) ([]PromotionDTO, error) {
	rows, err := s.repo.ListActive(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list active promotions")
	}
	eligible := s.evaluator.FilterEligible(rows, s.clock.Today())
	out := make([]PromotionDTO, 0, len(eligible))
	for _, row := range eligible {
		out = append(out, FromModel(row))
	}
	return out, nil
}

// storedCode normalizes a redeem code. The general sentinel is stored as NULL,
// so the unique code index only ever covers coupons.
func (s *service) storedCode(raw *string) *string {
	code := NormalizeCode(raw)
	if code != nil && *code == s.evaluator.GeneralCode() {
		return nil
	}
	return code
}

func (s *service) load(ctx context.Context, id uuid.UUID) (*models.Promotion, error) {
	promo, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "promotion not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load promotion")
	}
	return promo, nil
}

func validate(p models.Promotion) error {
	fields := map[string]string{}
	if !p.Type.IsValid() {
		fields["type"] = "must be percentage or fixed"
	} else if !pricing.ValidValue(p.Type, p.Value) {
		if p.Type == enums.PromotionTypePercentage {
			fields["value"] = "must be between 0 and 100"
		} else {
			fields["value"] = "must be zero or greater"
		}
	}
	if !p.Value.Equal(p.Value.Round(2)) {
		fields["value"] = "must have at most two decimal places"
	}
	if p.EndDate.Before(p.StartDate) {
		fields["end_date"] = "must not be before start_date"
	}
	if !pricing.ValidScope(p.AppliesTo) {
		fields["applies_to"] = "must be AllProducts or Category:<name>"
	}
	if p.UsageLimit != nil && *p.UsageLimit < 0 {
		fields["usage_limit"] = "must be zero or greater"
	}
	if len(fields) > 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "invalid promotion").WithDetails(fields)
	}
	return nil
}

func validationError(err error) error {
	var fe *fieldError
	if errors.As(err, &fe) {
		return pkgerrors.New(pkgerrors.CodeValidation, "invalid promotion").
			WithDetails(map[string]string{fe.field: fe.msg})
	}
	return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid promotion")
}

func mapWriteError(err error, op string) error {
	if db.IsUniqueViolation(err, "") {
		return pkgerrors.New(pkgerrors.CodeConflict, "promotion code already exists")
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, op)
}
