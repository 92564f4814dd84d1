// Package pricing computes promotion-adjusted prices. Everything here is a pure
// function of its inputs: no reads, no writes, no caching.
package pricing

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/furnishly-backend/pkg/db/models"
	"github.com/angelmondragon/furnishly-backend/pkg/enums"
)

const (
	ScopeAllProducts    = "AllProducts"
	CategoryScopePrefix = "Category:"

	// DefaultGeneralCode marks a promotion that carries a code but still applies
	// automatically.
	DefaultGeneralCode = "GENERAL_DISCOUNT"
)

var hundred = decimal.NewFromInt(100)

// Evaluator selects the single best automatic promotion for a product.
type Evaluator struct {
	generalCode string
}

// NewEvaluator builds an evaluator. An empty sentinel falls back to DefaultGeneralCode.
func NewEvaluator(generalCode string) Evaluator {
	code := strings.ToUpper(strings.TrimSpace(generalCode))
	if code == "" {
		code = DefaultGeneralCode
	}
	return Evaluator{generalCode: code}
}

// GeneralCode returns the sentinel code treated as "no code".
func (e Evaluator) GeneralCode() string {
	if e.generalCode == "" {
		return DefaultGeneralCode
	}
	return e.generalCode
}

// Quote is the evaluated price of one product.
type Quote struct {
	BasePrice       decimal.Decimal
	FinalPrice      decimal.Decimal
	DiscountPercent int
	PromotionID     *uuid.UUID
	PromotionType   enums.PromotionType
}

// Discounted reports whether a promotion lowered the unrounded price. FinalPrice
// may still equal BasePrice when the discount is below one cent.
func (q Quote) Discounted() bool {
	return q.PromotionID != nil
}

// IsGeneral reports whether the promotion applies without a redeem code.
func (e Evaluator) IsGeneral(p models.Promotion) bool {
	if p.Code == nil {
		return true
	}
	code := strings.TrimSpace(*p.Code)
	return code == "" || strings.EqualFold(code, e.GeneralCode())
}

// Eligible reports whether p may be applied automatically on today.
func (e Evaluator) Eligible(p models.Promotion, today time.Time) bool {
	return p.IsActive && InWindow(p, today) && e.IsGeneral(p)
}

// InWindow compares calendar days only. Stored promotion dates are read in UTC,
// today is read in its own location.
func InWindow(p models.Promotion, today time.Time) bool {
	day := dayKey(today.Date())
	start := dayKey(p.StartDate.UTC().Date())
	end := dayKey(p.EndDate.UTC().Date())
	return start <= day && day <= end
}

func dayKey(year int, month time.Month, day int) int {
	return year*10000 + int(month)*100 + day
}

// Applies reports whether a scope string covers the category. Unknown scope
// shapes never apply.
func Applies(scope, category string) bool {
	scope = strings.TrimSpace(scope)
	if scope == ScopeAllProducts {
		return true
	}
	if !strings.HasPrefix(scope, CategoryScopePrefix) {
		return false
	}
	name := strings.TrimSpace(strings.TrimPrefix(scope, CategoryScopePrefix))
	return name != "" && name == category
}

// ValidScope reports whether scope is one of the recognised shapes.
func ValidScope(scope string) bool {
	scope = strings.TrimSpace(scope)
	if scope == ScopeAllProducts {
		return true
	}
	return strings.HasPrefix(scope, CategoryScopePrefix) &&
		strings.TrimSpace(strings.TrimPrefix(scope, CategoryScopePrefix)) != ""
}

// ValidValue reports whether value is in range for the promotion type.
func ValidValue(kind enums.PromotionType, value decimal.Decimal) bool {
	switch kind {
	case enums.PromotionTypePercentage:
		return !value.IsNegative() && value.LessThanOrEqual(hundred)
	case enums.PromotionTypeFixed:
		return !value.IsNegative()
	default:
		return false
	}
}

// candidatePrice returns false for malformed promotions.
func candidatePrice(base decimal.Decimal, p models.Promotion) (decimal.Decimal, bool) {
	if !ValidValue(p.Type, p.Value) {
		return decimal.Zero, false
	}
	switch p.Type {
	case enums.PromotionTypePercentage:
		return base.Mul(hundred.Sub(p.Value)).Div(hundred), true
	case enums.PromotionTypeFixed:
		candidate := base.Sub(p.Value)
		if candidate.IsNegative() {
			candidate = decimal.Zero
		}
		return candidate, true
	}
	return decimal.Zero, false
}

func percentFor(base, candidate decimal.Decimal, p models.Promotion) int {
	if p.Type == enums.PromotionTypePercentage {
		return int(p.Value.Round(0).IntPart())
	}
	if !base.IsPositive() {
		return 0
	}
	return int(base.Sub(candidate).Div(base).Mul(hundred).Round(0).IntPart())
}

// BestPrice folds over the eligible promotions keeping the lowest candidate.
// A candidate equal to the current best replaces it once some promotion has
// already won, so the later of two tied promotions is reported.
func (e Evaluator) BestPrice(product models.Product, promotions []models.Promotion, today time.Time) Quote {
	base := product.Price
	best := base
	percent := 0
	var winner *models.Promotion

	for i := range promotions {
		promo := &promotions[i]
		if !e.Eligible(*promo, today) || !Applies(promo.AppliesTo, product.Category) {
			continue
		}
		candidate, ok := candidatePrice(base, *promo)
		if !ok {
			continue
		}
		if candidate.LessThan(best) || (winner != nil && candidate.Equal(best)) {
			best = candidate
			percent = percentFor(base, candidate, *promo)
			winner = promo
		}
	}

	// the unrounded best decides; a sub-cent discount still reports its percent
	if winner == nil || !best.LessThan(base) {
		return Quote{BasePrice: base, FinalPrice: base}
	}

	id := winner.ID
	return Quote{
		BasePrice:       base,
		FinalPrice:      best.Round(2),
		DiscountPercent: percent,
		PromotionID:     &id,
		PromotionType:   winner.Type,
	}
}

// FilterEligible keeps the promotions that would be applied automatically on today.
func (e Evaluator) FilterEligible(promotions []models.Promotion, today time.Time) []models.Promotion {
	eligible := make([]models.Promotion, 0, len(promotions))
	for _, promo := range promotions {
		if e.Eligible(promo, today) && ValidValue(promo.Type, promo.Value) {
			eligible = append(eligible, promo)
		}
	}
	return eligible
}
