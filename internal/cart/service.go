package cart

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"gorm.io/gorm"

	"github.com/angelmondragon/furnishly-backend/internal/pricing"
	"github.com/angelmondragon/furnishly-backend/internal/promotions"
	"github.com/angelmondragon/furnishly-backend/pkg/db"
	"github.com/angelmondragon/furnishly-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/furnishly-backend/pkg/errors"
	"github.com/angelmondragon/furnishly-backend/pkg/logger"
	"github.com/angelmondragon/furnishly-backend/pkg/metrics"
	"github.com/angelmondragon/furnishly-backend/pkg/tracing"
	"github.com/angelmondragon/furnishly-backend/pkg/types"
)

// Service manages the shopper's cart and prices it on every read.
type Service interface {
	Get(ctx context.Context, userID uuid.UUID) (*CartView, error)
	AddItem(ctx context.Context, userID uuid.UUID, req AddItemRequest) (*CartView, error)
	UpdateItem(ctx context.Context, userID, itemID uuid.UUID, req UpdateItemRequest) (*CartView, error)
	RemoveItem(ctx context.Context, userID, itemID uuid.UUID) (*CartView, error)
	Clear(ctx context.Context, userID uuid.UUID) error
	PreviewCoupon(ctx context.Context, userID uuid.UUID, code string) (*CouponPreview, error)
}

type cartRepository interface {
	ListByUser(ctx context.Context, userID uuid.UUID) ([]models.CartItem, error)
	FindByProduct(ctx context.Context, userID, productID uuid.UUID) (*models.CartItem, error)
	FindByID(ctx context.Context, userID, id uuid.UUID) (*models.CartItem, error)
	Create(ctx context.Context, item *models.CartItem) error
	UpdateQuantity(ctx context.Context, id uuid.UUID, quantity int) error
	Delete(ctx context.Context, userID, id uuid.UUID) error
	Clear(ctx context.Context, userID uuid.UUID) error
}

type productFinder interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.Product, error)
}

type promotionSource interface {
	ListActive(ctx context.Context) ([]models.Promotion, error)
	FindByCode(ctx context.Context, code string) (*models.Promotion, error)
}

// ServiceParams bundles the cart dependencies.
type ServiceParams struct {
	Repo       cartRepository
	Products   productFinder
	Promotions promotionSource
	Evaluator  pricing.Evaluator
	Clock      pricing.Clock
	Metrics    *metrics.PricingMetrics
	Logger     *logger.Logger
}

type service struct {
	repo       cartRepository
	products   productFinder
	promotions promotionSource
	evaluator  pricing.Evaluator
	clock      pricing.Clock
	metrics    *metrics.PricingMetrics
	logg       *logger.Logger
}

// NewService builds the cart service.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("cart repository is required")
	}
	if params.Products == nil {
		return nil, fmt.Errorf("product finder is required")
	}
	if params.Promotions == nil {
		return nil, fmt.Errorf("promotion source is required")
	}
	if params.Logger == nil {
		params.Logger = logger.Nop()
	}
	return &service{
		repo:       params.Repo,
		products:   params.Products,
		promotions: params.Promotions,
		evaluator:  params.Evaluator,
		clock:      params.Clock,
		metrics:    params.Metrics,
		logg:       params.Logger,
	}, nil
}

func (s *service) Get(ctx context.Context, userID uuid.UUID) (*CartView, error) {
	lines, _, err := s.price(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &CartView{Items: lines, Totals: pricing.Summarize(lines)}, nil
}

func (s *service) AddItem(ctx context.Context, userID uuid.UUID, req AddItemRequest) (*CartView, error) {
	if req.Quantity < 1 {
		return nil, quantityError()
	}
	product, err := s.activeProduct(ctx, req.ProductID)
	if err != nil {
		return nil, err
	}

	existing, err := s.repo.FindByProduct(ctx, userID, product.ID)
	switch {
	case err == nil:
		if err := s.setQuantity(ctx, existing, product, existing.Quantity+req.Quantity); err != nil {
			return nil, err
		}
	case errors.Is(err, gorm.ErrRecordNotFound):
		if err := checkStock(product, req.Quantity); err != nil {
			return nil, err
		}
		item := models.CartItem{UserID: userID, ProductID: product.ID, Quantity: req.Quantity}
		if err := s.repo.Create(ctx, &item); err != nil {
			if !db.IsUniqueViolation(err, "") {
				return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "add cart item")
			}
			// A concurrent add created the line first.
			existing, err := s.repo.FindByProduct(ctx, userID, product.ID)
			if err != nil {
				return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load cart item")
			}
			if err := s.setQuantity(ctx, existing, product, existing.Quantity+req.Quantity); err != nil {
				return nil, err
			}
		}
	default:
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load cart item")
	}

	return s.Get(ctx, userID)
}

func (s *service) UpdateItem(ctx context.Context, userID, itemID uuid.UUID, req UpdateItemRequest) (*CartView, error) {
	if req.Quantity < 1 {
		return nil, quantityError()
	}
	item, err := s.repo.FindByID(ctx, userID, itemID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "cart item not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load cart item")
	}
	product, err := s.activeProduct(ctx, item.ProductID)
	if err != nil {
		return nil, err
	}
	if err := s.setQuantity(ctx, item, product, req.Quantity); err != nil {
		return nil, err
	}
	return s.Get(ctx, userID)
}

func (s *service) RemoveItem(ctx context.Context, userID, itemID uuid.UUID) (*CartView, error) {
	if err := s.repo.Delete(ctx, userID, itemID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "cart item not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "remove cart item")
	}
	return s.Get(ctx, userID)
}

func (s *service) Clear(ctx context.Context, userID uuid.UUID) error {
	if err := s.repo.Clear(ctx, userID); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "clear cart")
	}
	return nil
}

func (s *service) PreviewCoupon(ctx context.Context, userID uuid.UUID, code string) (*CouponPreview, error) {
	normalized := promotions.NormalizeCode(&code)
	if normalized == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "code is required")
	}
	promo, err := s.promotions.FindByCode(ctx, *normalized)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "coupon not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load coupon")
	}

	lines, today, err := s.price(ctx, userID)
	if err != nil {
		return nil, err
	}
	if len(lines) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "cart is empty")
	}
	result, err := s.evaluator.ApplyCoupon(*promo, lines, today)
	if err != nil {
		return nil, err
	}
	totals := pricing.Summarize(lines)
	return &CouponPreview{
		Code:          *normalized,
		EligibleTotal: types.NewMoney(result.EligibleTotal),
		Discount:      types.NewMoney(result.Discount),
		Total:         types.NewMoney(totals.Total.Sub(result.Discount)),
	}, nil
}

// price loads a fresh snapshot of the cart and promotions and runs the
// aggregator over it. It returns the evaluation date used.
func (s *service) price(ctx context.Context, userID uuid.UUID) (lines []pricing.PricedCartLine, today time.Time, err error) {
	ctx, span := tracing.Start(ctx, "cart.price")
	defer span.End()
	start := time.Now()
	defer func() {
		outcome := metrics.OutcomeOK
		if err != nil {
			outcome = metrics.OutcomeError
			span.RecordError(err)
		}
		s.metrics.ObserveCart(outcome, len(lines), time.Since(start))
	}()

	items, err := s.repo.ListByUser(ctx, userID)
	if err != nil {
		return nil, today, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list cart items")
	}
	promos, err := s.promotions.ListActive(ctx)
	if err != nil {
		return nil, today, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list promotions")
	}

	products := make(map[uuid.UUID]models.Product, len(items))
	images := make(map[uuid.UUID][]string, len(items))
	for _, item := range items {
		if item.Product == nil {
			continue
		}
		products[item.ProductID] = *item.Product
		images[item.ProductID] = item.Product.ImageURLs()
	}

	today = s.clock.Today()
	lines, err = s.evaluator.PriceCart(items, products, images, s.evaluator.FilterEligible(promos, today), today)
	if err != nil {
		s.logg.Error(s.logg.WithUserID(ctx, userID.String()), "cart pricing failed", err)
		return nil, today, err
	}

	kinds := make(map[uuid.UUID]string, len(promos))
	for _, p := range promos {
		kinds[p.ID] = string(p.Type)
	}
	for _, line := range lines {
		if line.PromotionID != nil {
			s.metrics.IncDiscount(kinds[*line.PromotionID])
		}
	}
	span.SetAttributes(attribute.Int("cart.lines", len(lines)))
	return lines, today, nil
}

func (s *service) activeProduct(ctx context.Context, id uuid.UUID) (*models.Product, error) {
	product, err := s.products.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load product")
	}
	if !product.IsActive {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
	}
	return product, nil
}

func (s *service) setQuantity(ctx context.Context, item *models.CartItem, product *models.Product, quantity int) error {
	if err := checkStock(product, quantity); err != nil {
		return err
	}
	if err := s.repo.UpdateQuantity(ctx, item.ID, quantity); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update cart item")
	}
	return nil
}

func checkStock(product *models.Product, quantity int) error {
	if quantity > product.Stock {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "not enough stock").
			WithDetails(map[string]any{
				"product_id": product.ID.String(),
				"available":  product.Stock,
				"requested":  quantity,
			})
	}
	return nil
}

func quantityError() error {
	return pkgerrors.New(pkgerrors.CodeValidation, "quantity must be at least 1").
		WithDetails(map[string]string{"quantity": "must be at least 1"})
}
