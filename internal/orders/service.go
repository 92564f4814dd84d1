package orders

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"gorm.io/gorm"

	"github.com/angelmondragon/furnishly-backend/internal/cart"
	"github.com/angelmondragon/furnishly-backend/internal/pricing"
	"github.com/angelmondragon/furnishly-backend/internal/products"
	"github.com/angelmondragon/furnishly-backend/internal/promotions"
	"github.com/angelmondragon/furnishly-backend/pkg/db/models"
	"github.com/angelmondragon/furnishly-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/furnishly-backend/pkg/errors"
	"github.com/angelmondragon/furnishly-backend/pkg/logger"
	"github.com/angelmondragon/furnishly-backend/pkg/pagination"
	"github.com/angelmondragon/furnishly-backend/pkg/tracing"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Service places orders from carts and manages their lifecycle.
type Service interface {
	Place(ctx context.Context, userID uuid.UUID, req PlaceOrderRequest) (*OrderDTO, error)
	ListMine(ctx context.Context, userID uuid.UUID, params pagination.Params) (*OrderList, error)
	GetMine(ctx context.Context, userID, orderID uuid.UUID) (*OrderDTO, error)
	Cancel(ctx context.Context, userID, orderID uuid.UUID) (*OrderDTO, error)
	List(ctx context.Context, filters ListFilters, params pagination.Params) (*OrderList, error)
	Get(ctx context.Context, orderID uuid.UUID) (*OrderDTO, error)
	UpdateStatus(ctx context.Context, orderID uuid.UUID, req UpdateStatusRequest) (*OrderDTO, error)
}

// ServiceParams bundles the order dependencies.
type ServiceParams struct {
	Repo      Repository
	Tx        txRunner
	Evaluator pricing.Evaluator
	Clock     pricing.Clock
	Logger    *logger.Logger
}

type service struct {
	repo      Repository
	tx        txRunner
	evaluator pricing.Evaluator
	clock     pricing.Clock
	logg      *logger.Logger
}

// NewService builds the order service.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if params.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Logger == nil {
		params.Logger = logger.Nop()
	}
	return &service{
		repo:      params.Repo,
		tx:        params.Tx,
		evaluator: params.Evaluator,
		clock:     params.Clock,
		logg:      params.Logger,
	}, nil
}

// Place reprices the cart against live promotions, reserves stock, redeems
// an optional coupon and records the order, all in one transaction.
func (s *service) Place(ctx context.Context, userID uuid.UUID, req PlaceOrderRequest) (*OrderDTO, error) {
	address := strings.TrimSpace(req.ShippingAddress)
	if address == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "shipping address is required")
	}
	code := promotions.NormalizeCode(req.CouponCode)

	ctx, span := tracing.Start(ctx, "orders.place")
	defer span.End()

	var order models.Order
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		carts := cart.NewRepository(tx)
		catalog := products.NewRepository(tx)
		promos := promotions.NewRepository(tx)

		items, err := carts.ListByUser(ctx, userID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list cart items")
		}
		if len(items) == 0 {
			return pkgerrors.New(pkgerrors.CodeValidation, "cart is empty")
		}
		active, err := promos.ListActive(ctx)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list promotions")
		}

		byID := make(map[uuid.UUID]models.Product, len(items))
		images := make(map[uuid.UUID][]string, len(items))
		for _, item := range items {
			if item.Product == nil {
				continue
			}
			if !item.Product.IsActive {
				return pkgerrors.New(pkgerrors.CodeStateConflict, "product is no longer available").
					WithDetails(map[string]any{"product_id": item.ProductID.String()})
			}
			byID[item.ProductID] = *item.Product
			images[item.ProductID] = item.Product.ImageURLs()
		}

		today := s.clock.Today()
		lines, err := s.evaluator.PriceCart(items, byID, images, active, today)
		if err != nil {
			return err
		}

		for _, line := range lines {
			ok, err := catalog.DecrementStock(ctx, line.ProductID, line.Quantity)
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reserve stock")
			}
			if !ok {
				return pkgerrors.New(pkgerrors.CodeStateConflict, "not enough stock").
					WithDetails(map[string]any{
						"product_id": line.ProductID.String(),
						"requested":  line.Quantity,
						"available":  byID[line.ProductID].Stock,
					})
			}
		}

		totals := pricing.Summarize(lines)
		order = models.Order{
			UserID:          userID,
			Status:          enums.OrderStatusPending,
			Subtotal:        totals.Subtotal.Decimal,
			DiscountTotal:   totals.DiscountTotal.Decimal,
			CouponDiscount:  decimal.Zero,
			Total:           totals.Total.Decimal,
			ShippingAddress: address,
			Items:           orderItems(lines),
		}

		if code != nil {
			result, err := s.redeem(ctx, promos, *code, lines, today)
			if err != nil {
				return err
			}
			promoID := result.Promotion.ID
			order.CouponCode = &result.Code
			order.CouponPromotionID = &promoID
			order.CouponDiscount = result.Discount
			order.Total = order.Total.Sub(result.Discount)
		}

		if err := s.repo.WithTx(tx).Create(ctx, &order); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create order")
		}
		if err := carts.Clear(ctx, userID); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "clear cart")
		}
		return nil
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	span.SetAttributes(attribute.String("order.id", order.ID.String()), attribute.Int("order.items", len(order.Items)))
	logCtx := s.logg.WithFields(ctx, map[string]any{
		"user_id":  userID.String(),
		"order_id": order.ID.String(),
		"total":    order.Total.StringFixed(2),
	})
	s.logg.Info(logCtx, "order placed")
	dto := FromModel(order)
	return &dto, nil
}

func (s *service) redeem(ctx context.Context, promos *promotions.Repository, code string, lines []pricing.PricedCartLine, today time.Time) (pricing.CouponResult, error) {
	promo, err := promos.FindByCode(ctx, code)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return pricing.CouponResult{}, pkgerrors.New(pkgerrors.CodeNotFound, "coupon not found")
		}
		return pricing.CouponResult{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load coupon")
	}
	result, err := s.evaluator.ApplyCoupon(*promo, lines, today)
	if err != nil {
		return pricing.CouponResult{}, err
	}
	ok, err := promos.Redeem(ctx, promo.ID)
	if err != nil {
		return pricing.CouponResult{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "redeem coupon")
	}
	if !ok {
		return pricing.CouponResult{}, pkgerrors.New(pkgerrors.CodeStateConflict, "coupon usage limit reached")
	}
	return result, nil
}

func orderItems(lines []pricing.PricedCartLine) []models.OrderItem {
	items := make([]models.OrderItem, 0, len(lines))
	for _, line := range lines {
		percent := 0
		if line.DiscountPercent != nil {
			percent = *line.DiscountPercent
		}
		items = append(items, models.OrderItem{
			ProductID:       line.ProductID,
			ProductName:     line.Name,
			SKU:             line.SKU,
			Quantity:        line.Quantity,
			BasePrice:       line.Price.Decimal,
			UnitPrice:       line.UnitPrice(),
			DiscountPercent: percent,
			PromotionID:     line.PromotionID,
			LineTotal:       line.LineTotal(),
		})
	}
	return items
}

func (s *service) ListMine(ctx context.Context, userID uuid.UUID, params pagination.Params) (*OrderList, error) {
	if _, err := pagination.ParseCursor(params.Cursor); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	rows, next, err := s.repo.ListByUser(ctx, userID, params)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list orders")
	}
	return &OrderList{Orders: fromModels(rows), NextCursor: next}, nil
}

// GetMine hides other customers' orders behind a not found.
func (s *service) GetMine(ctx context.Context, userID, orderID uuid.UUID) (*OrderDTO, error) {
	order, err := s.load(ctx, s.repo, orderID)
	if err != nil {
		return nil, err
	}
	if order.UserID != userID {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}
	dto := FromModel(*order)
	return &dto, nil
}

// Cancel lets a customer withdraw their own order while it is still pending.
func (s *service) Cancel(ctx context.Context, userID, orderID uuid.UUID) (*OrderDTO, error) {
	return s.transition(ctx, orderID, enums.OrderStatusCancelled, func(order *models.Order) error {
		if order.UserID != userID {
			return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		if order.Status != enums.OrderStatusPending {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "only pending orders can be cancelled")
		}
		return nil
	})
}

func (s *service) List(ctx context.Context, filters ListFilters, params pagination.Params) (*OrderList, error) {
	if _, err := pagination.ParseCursor(params.Cursor); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	rows, next, err := s.repo.List(ctx, filters, params)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list orders")
	}
	return &OrderList{Orders: fromModels(rows), NextCursor: next}, nil
}

func (s *service) Get(ctx context.Context, orderID uuid.UUID) (*OrderDTO, error) {
	order, err := s.load(ctx, s.repo, orderID)
	if err != nil {
		return nil, err
	}
	dto := FromModel(*order)
	return &dto, nil
}

func (s *service) UpdateStatus(ctx context.Context, orderID uuid.UUID, req UpdateStatusRequest) (*OrderDTO, error) {
	target, err := enums.ParseOrderStatus(strings.TrimSpace(req.Status))
	if err != nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "unknown order status").
			WithDetails(map[string]string{"status": err.Error()})
	}
	return s.transition(ctx, orderID, target, nil)
}

// transition moves an order to target inside a transaction. Cancelling puts
// the stock back and frees the coupon redemption.
func (s *service) transition(ctx context.Context, orderID uuid.UUID, target enums.OrderStatus, guard func(*models.Order) error) (*OrderDTO, error) {
	var updated *models.Order
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		order, err := s.load(ctx, repo, orderID)
		if err != nil {
			return err
		}
		if guard != nil {
			if err := guard(order); err != nil {
				return err
			}
		}
		if order.Status == target {
			updated = order
			return nil
		}
		if !order.Status.CanTransitionTo(target) {
			return pkgerrors.Newf(pkgerrors.CodeStateConflict, "cannot move order from %s to %s", order.Status, target)
		}

		ok, err := repo.UpdateStatus(ctx, order.ID, order.Status, target)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update order status")
		}
		if !ok {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "order changed concurrently")
		}

		if target == enums.OrderStatusCancelled {
			catalog := products.NewRepository(tx)
			for _, item := range order.Items {
				if err := catalog.IncrementStock(ctx, item.ProductID, item.Quantity); err != nil {
					return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "restock product")
				}
			}
			if order.CouponPromotionID != nil {
				if err := promotions.NewRepository(tx).Release(ctx, *order.CouponPromotionID); err != nil {
					return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "release coupon")
				}
			}
		}

		updated, err = repo.FindByID(ctx, order.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload order")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	logCtx := s.logg.WithFields(ctx, map[string]any{
		"order_id": updated.ID.String(),
		"status":   string(updated.Status),
	})
	s.logg.Info(logCtx, "order status updated")
	dto := FromModel(*updated)
	return &dto, nil
}

func (s *service) load(ctx context.Context, repo Repository, id uuid.UUID) (*models.Order, error) {
	order, err := repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}
	return order, nil
}
