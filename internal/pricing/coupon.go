package pricing

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/furnishly-backend/pkg/db/models"
	"github.com/angelmondragon/furnishly-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/furnishly-backend/pkg/errors"
)

// CouponResult describes what a redeemable code takes off an order.
type CouponResult struct {
	Code          string
	Promotion     models.Promotion
	EligibleTotal decimal.Decimal
	Discount      decimal.Decimal
}

// ApplyCoupon computes a coupon discount over the lines its scope covers.
// Coupons stack on top of automatic promotions and work on the already
// discounted line totals. The discount never exceeds the covered amount.
func (e Evaluator) ApplyCoupon(promo models.Promotion, lines []PricedCartLine, today time.Time) (CouponResult, error) {
	if e.IsGeneral(promo) {
		return CouponResult{}, pkgerrors.New(pkgerrors.CodeValidation, "promotion is not a redeemable coupon")
	}
	if !promo.IsActive || !InWindow(promo, today) {
		return CouponResult{}, pkgerrors.New(pkgerrors.CodeValidation, "coupon is not active")
	}
	if promo.UsageLimit != nil && promo.RedemptionCount >= *promo.UsageLimit {
		return CouponResult{}, pkgerrors.New(pkgerrors.CodeStateConflict, "coupon usage limit reached")
	}
	if !ValidValue(promo.Type, promo.Value) {
		return CouponResult{}, pkgerrors.New(pkgerrors.CodeValidation, "coupon is misconfigured")
	}

	covered := decimal.Zero
	for _, line := range lines {
		if Applies(promo.AppliesTo, line.Category) {
			covered = covered.Add(line.LineTotal())
		}
	}
	if !covered.IsPositive() {
		return CouponResult{}, pkgerrors.New(pkgerrors.CodeValidation, "coupon does not apply to any cart item")
	}

	var discount decimal.Decimal
	switch promo.Type {
	case enums.PromotionTypePercentage:
		discount = covered.Mul(promo.Value).Div(hundred).Round(2)
	case enums.PromotionTypeFixed:
		discount = decimal.Min(promo.Value, covered)
	}

	return CouponResult{
		Code:          strings.TrimSpace(*promo.Code),
		Promotion:     promo,
		EligibleTotal: covered,
		Discount:      discount,
	}, nil
}
