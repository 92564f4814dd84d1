package pricing

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/furnishly-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/furnishly-backend/pkg/errors"
	"github.com/angelmondragon/furnishly-backend/pkg/types"
)

// PricedCartLine is a cart line with its live promotion price attached.
type PricedCartLine struct {
	ID              uuid.UUID    `json:"id"`
	ProductID       uuid.UUID    `json:"product_id"`
	Name            string       `json:"name"`
	Price           types.Money  `json:"price"`
	DiscountedPrice *types.Money `json:"discounted_price,omitempty"`
	DiscountPercent *int         `json:"discount_percent,omitempty"`
	Image           string       `json:"image"`
	Quantity        int          `json:"quantity"`
	Stock           int          `json:"stock"`
	Category        string       `json:"category"`
	SKU             string       `json:"sku"`

	PromotionID *uuid.UUID `json:"-"`
}

// UnitPrice is the price a single unit sells at.
func (l PricedCartLine) UnitPrice() decimal.Decimal {
	if l.DiscountedPrice != nil {
		return l.DiscountedPrice.Decimal
	}
	return l.Price.Decimal
}

// LineTotal is the unit price times quantity.
func (l PricedCartLine) LineTotal() decimal.Decimal {
	return l.UnitPrice().Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// PriceCart prices every line against the promotion snapshot, keeping the
// input order. A line whose product is missing from products fails the call.
func (e Evaluator) PriceCart(
	lines []models.CartItem,
	products map[uuid.UUID]models.Product,
	images map[uuid.UUID][]string,
	promotions []models.Promotion,
	today time.Time,
) ([]PricedCartLine, error) {
	priced := make([]PricedCartLine, 0, len(lines))
	for _, line := range lines {
		product, ok := products[line.ProductID]
		if !ok {
			return nil, pkgerrors.New(pkgerrors.CodeInternal, "cart item references missing product").
				WithDetails(map[string]any{
					"cart_item_id": line.ID.String(),
					"product_id":   line.ProductID.String(),
				})
		}

		entry := PricedCartLine{
			ID:        line.ID,
			ProductID: product.ID,
			Name:      product.Name,
			Price:     types.NewMoney(product.Price),
			Image:     firstImage(images[product.ID]),
			Quantity:  line.Quantity,
			Stock:     product.Stock,
			Category:  product.Category,
			SKU:       product.SKU,
		}

		quote := e.BestPrice(product, promotions, today)
		if quote.Discounted() {
			discounted := types.NewMoney(quote.FinalPrice)
			percent := quote.DiscountPercent
			entry.DiscountedPrice = &discounted
			entry.DiscountPercent = &percent
			entry.PromotionID = quote.PromotionID
		}

		priced = append(priced, entry)
	}
	return priced, nil
}

func firstImage(urls []string) string {
	if len(urls) == 0 {
		return ""
	}
	return urls[0]
}

// Totals summarises a priced cart.
type Totals struct {
	ItemCount     int         `json:"item_count"`
	Subtotal      types.Money `json:"subtotal"`
	DiscountTotal types.Money `json:"discount_total"`
	Total         types.Money `json:"total"`
}

// Summarize adds up quantities and amounts across lines.
func Summarize(lines []PricedCartLine) Totals {
	subtotal := decimal.Zero
	total := decimal.Zero
	count := 0
	for _, line := range lines {
		qty := decimal.NewFromInt(int64(line.Quantity))
		subtotal = subtotal.Add(line.Price.Mul(qty))
		total = total.Add(line.LineTotal())
		count += line.Quantity
	}
	return Totals{
		ItemCount:     count,
		Subtotal:      types.NewMoney(subtotal),
		DiscountTotal: types.NewMoney(subtotal.Sub(total)),
		Total:         types.NewMoney(total),
	}
}
