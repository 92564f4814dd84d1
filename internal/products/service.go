package products

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/furnishly-backend/internal/pricing"
	"github.com/angelmondragon/furnishly-backend/internal/reviews"
	"github.com/angelmondragon/furnishly-backend/pkg/db"
	"github.com/angelmondragon/furnishly-backend/pkg/db/models"
	"github.com/angelmondragon/furnishly-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/furnishly-backend/pkg/errors"
	"github.com/angelmondragon/furnishly-backend/pkg/logger"
	"github.com/angelmondragon/furnishly-backend/pkg/pagination"
)

// Service exposes the catalog to shoppers and listing management to suppliers.
type Service interface {
	List(ctx context.Context, filters ListFilters, params pagination.Params) (*ProductList, error)
	Get(ctx context.Context, id uuid.UUID) (*ProductDTO, error)
	Create(ctx context.Context, actor Actor, req CreateProductRequest) (*ProductDTO, error)
	Update(ctx context.Context, actor Actor, id uuid.UUID, req UpdateProductRequest) (*ProductDTO, error)
	Delete(ctx context.Context, actor Actor, id uuid.UUID) error
}

type productRepository interface {
	Create(ctx context.Context, product *models.Product) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Product, error)
	List(ctx context.Context, filters ListFilters, params pagination.Params) ([]models.Product, string, error)
}

type promotionLister interface {
	ListActive(ctx context.Context) ([]models.Promotion, error)
}

type ratingSummarizer interface {
	Summaries(ctx context.Context, productIDs []uuid.UUID) (map[uuid.UUID]reviews.Summary, error)
}

// ServiceParams bundles the catalog dependencies.
type ServiceParams struct {
	DB         *db.Client
	Repo       productRepository
	Promotions promotionLister
	Ratings    ratingSummarizer
	Evaluator  pricing.Evaluator
	Clock      pricing.Clock
	Logger     *logger.Logger
}

type service struct {
	db         *db.Client
	repo       productRepository
	promotions promotionLister
	ratings    ratingSummarizer
	evaluator  pricing.Evaluator
	clock      pricing.Clock
	logg       *logger.Logger
}

// NewService builds the catalog service.
func NewService(params ServiceParams) (Service, error) {
	if params.DB == nil {
		return nil, fmt.Errorf("db client is required")
	}
	if params.Repo == nil {
		return nil, fmt.Errorf("product repository is required")
	}
	if params.Promotions == nil {
		return nil, fmt.Errorf("promotion lister is required")
	}
	if params.Ratings == nil {
		return nil, fmt.Errorf("rating summarizer is required")
	}
	if params.Logger == nil {
		params.Logger = logger.Nop()
	}
	return &service{
		db:         params.DB,
		repo:       params.Repo,
		promotions: params.Promotions,
		ratings:    params.Ratings,
		evaluator:  params.Evaluator,
		clock:      params.Clock,
		logg:       params.Logger,
	}, nil
}

func (s *service) List(ctx context.Context, filters ListFilters, params pagination.Params) (*ProductList, error) {
	if _, err := pagination.ParseCursor(params.Cursor); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	rows, next, err := s.repo.List(ctx, filters, params)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list products")
	}
	dtos, err := s.present(ctx, rows)
	if err != nil {
		return nil, err
	}
	return &ProductList{Products: dtos, NextCursor: next}, nil
}

func (s *service) Get(ctx context.Context, id uuid.UUID) (*ProductDTO, error) {
	product, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !product.IsActive {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
	}
	dtos, err := s.present(ctx, []models.Product{*product})
	if err != nil {
		return nil, err
	}
	return &dtos[0], nil
}

func (s *service) Create(ctx context.Context, actor Actor, req CreateProductRequest) (*ProductDTO, error) {
	product := models.Product{
		Name:        strings.TrimSpace(req.Name),
		Description: strings.TrimSpace(req.Description),
		Price:       req.Price.Decimal,
		Stock:       req.Stock,
		Category:    strings.TrimSpace(req.Category),
		SKU:         strings.TrimSpace(req.SKU),
		IsActive:    true,
		Images:      imagesFromURLs(req.ImageURLs),
	}
	if req.IsActive != nil {
		product.IsActive = *req.IsActive
	}

	switch actor.Role {
	case enums.UserRoleSupplier:
		supplierID := actor.UserID
		product.SupplierID = &supplierID
	case enums.UserRoleAdmin:
		product.SupplierID = req.SupplierID
	default:
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "only suppliers and admins can create products")
	}

	if err := validateProduct(product); err != nil {
		return nil, err
	}
	if err := s.repo.Create(ctx, &product); err != nil {
		return nil, mapWriteError(err, "create product")
	}

	s.logg.Info(s.logg.WithField(ctx, "product_id", product.ID.String()), "product created")
	dto := fromModel(product, pricing.Quote{})
	return &dto, nil
}

func (s *service) Update(ctx context.Context, actor Actor, id uuid.UUID, req UpdateProductRequest) (*ProductDTO, error) {
	var updated *models.Product
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		repo := NewRepository(tx)
		product, err := repo.FindByID(ctx, id)
		if err != nil {
			return mapReadError(err)
		}
		if !actor.CanManage(*product) {
			return pkgerrors.New(pkgerrors.CodeForbidden, "you do not manage this product")
		}

		applyUpdate(product, req)
		if err := validateProduct(*product); err != nil {
			return err
		}
		if err := repo.Save(ctx, product); err != nil {
			return mapWriteError(err, "update product")
		}
		if req.ImageURLs != nil {
			if err := repo.ReplaceImages(ctx, product.ID, *req.ImageURLs); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "replace images")
			}
		}
		updated, err = repo.FindByID(ctx, id)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload product")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	dto := fromModel(*updated, pricing.Quote{})
	return &dto, nil
}

// Delete archives the listing so existing orders keep their product rows.
func (s *service) Delete(ctx context.Context, actor Actor, id uuid.UUID) error {
	return s.db.WithTx(ctx, func(tx *gorm.DB) error {
		repo := NewRepository(tx)
		product, err := repo.FindByID(ctx, id)
		if err != nil {
			return mapReadError(err)
		}
		if !actor.CanManage(*product) {
			return pkgerrors.New(pkgerrors.CodeForbidden, "you do not manage this product")
		}
		if err := repo.Archive(ctx, id); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "archive product")
		}
		s.logg.Info(s.logg.WithField(ctx, "product_id", id.String()), "product archived")
		return nil
	})
}

// present attaches live prices and rating summaries.
func (s *service) present(ctx context.Context, rows []models.Product) ([]ProductDTO, error) {
	if len(rows) == 0 {
		return []ProductDTO{}, nil
	}
	promos, err := s.promotions.ListActive(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list promotions")
	}
	ids := make([]uuid.UUID, 0, len(rows))
	for _, row := range rows {
		ids = append(ids, row.ID)
	}
	summaries, err := s.ratings.Summaries(ctx, ids)
	if err != nil {
		return nil, err
	}

	today := s.clock.Today()
	eligible := s.evaluator.FilterEligible(promos, today)
	out := make([]ProductDTO, 0, len(rows))
	for _, row := range rows {
		dto := fromModel(row, s.evaluator.BestPrice(row, eligible, today))
		if summary, ok := summaries[row.ID]; ok {
			summary := summary
			dto.Rating = &summary
		}
		out = append(out, dto)
	}
	return out, nil
}

func (s *service) load(ctx context.Context, id uuid.UUID) (*models.Product, error) {
	product, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, mapReadError(err)
	}
	return product, nil
}

func applyUpdate(product *models.Product, req UpdateProductRequest) {
	if req.Name != nil {
		product.Name = strings.TrimSpace(*req.Name)
	}
	if req.Description != nil {
		product.Description = strings.TrimSpace(*req.Description)
	}
	if req.Price != nil {
		product.Price = req.Price.Decimal
	}
	if req.Stock != nil {
		product.Stock = *req.Stock
	}
	if req.Category != nil {
		product.Category = strings.TrimSpace(*req.Category)
	}
	if req.SKU != nil {
		product.SKU = strings.TrimSpace(*req.SKU)
	}
	if req.IsActive != nil {
		product.IsActive = *req.IsActive
	}
}

func validateProduct(p models.Product) error {
	fields := map[string]string{}
	if p.Name == "" {
		fields["name"] = "is required"
	}
	if p.Category == "" {
		fields["category"] = "is required"
	}
	if p.SKU == "" {
		fields["sku"] = "is required"
	}
	if p.Price.IsNegative() {
		fields["price"] = "must be zero or greater"
	} else if !p.Price.Equal(p.Price.Round(2)) {
		fields["price"] = "must have at most two decimal places"
	}
	if p.Stock < 0 {
		fields["stock"] = "must be zero or greater"
	}
	if len(fields) > 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "invalid product").WithDetails(fields)
	}
	return nil
}

func mapReadError(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load product")
}

func mapWriteError(err error, op string) error {
	if db.IsUniqueViolation(err, "") {
		return pkgerrors.New(pkgerrors.CodeConflict, "sku already exists")
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, op)
}

