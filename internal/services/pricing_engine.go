package services

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	domain "github.com/solventline/api/internal/domain"
)

var (
	// ErrCartPricingInvalidInput signals bad request data such as missing cart items or negative prices.
	ErrCartPricingInvalidInput = errors.New("cart pricing: invalid input")
	// ErrCartPricingCurrencyMismatch is returned when the cart currency is unsupported.
	ErrCartPricingCurrencyMismatch = errors.New("cart pricing: currency mismatch")
)

// GSTRatePercent is the flat GST rate applied to the goods subtotal.
const GSTRatePercent = 18

// TaxCalculator quotes tax in paise for a pre-discount goods subtotal.
type TaxCalculator interface {
	CalculateTax(ctx context.Context, req TaxCalculationRequest) (int64, error)
}

// TaxCalculationRequest carries the amounts a calculator may consider.
type TaxCalculationRequest struct {
	Currency string
	Subtotal int64
	Items    []ItemPricing
}

// GSTCalculator applies a flat percentage with half-up paise rounding.
type GSTCalculator struct {
	RatePercent int64
}

func (c GSTCalculator) CalculateTax(_ context.Context, req TaxCalculationRequest) (int64, error) {
	rate := c.RatePercent
	if rate <= 0 {
		rate = GSTRatePercent
	}
	if req.Subtotal < 0 {
		return 0, fmt.Errorf("%w: subtotal cannot be negative", ErrCartPricingInvalidInput)
	}
	if req.Subtotal > 0 && req.Subtotal > (math.MaxInt64-50)/rate {
		return 0, fmt.Errorf("%w: subtotal overflow", ErrCartPricingInvalidInput)
	}
	return (req.Subtotal*rate + 50) / 100, nil
}

// CartPricingEngineDeps bundles constructor inputs for the pricing engine.
type CartPricingEngineDeps struct {
	Coupons  CouponService
	Tax      TaxCalculator
	Currency string
	Now      func() time.Time
	Logger   func(context.Context, string, map[string]any)
}

// CartPricingEngine derives the authoritative money breakdown for a set of
// cart lines. All amounts are paise.
type CartPricingEngine struct {
	coupons  CouponService
	tax      TaxCalculator
	currency string
	now      func() time.Time
	logger   func(context.Context, string, map[string]any)
}

func NewCartPricingEngine(deps CartPricingEngineDeps) (*CartPricingEngine, error) {
	if deps.Coupons == nil {
		return nil, errors.New("cart pricing engine: coupon service is required")
	}
	tax := deps.Tax
	if tax == nil {
		tax = GSTCalculator{RatePercent: GSTRatePercent}
	}
	currency := strings.ToUpper(strings.TrimSpace(deps.Currency))
	if currency == "" {
		currency = "INR"
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &CartPricingEngine{
		coupons:  deps.Coupons,
		tax:      tax,
		currency: currency,
		now:      func() time.Time { return now().UTC() },
		logger:   logger,
	}, nil
}

// PriceCartCommand describes one pricing run. Items must already carry
// catalog-resolved unit prices.
type PriceCartCommand struct {
	Currency   string
	Items      []domain.CartItem
	CouponCode string
}

// Calculate folds the lines into subtotal, tax, discount and total. The
// discount applies after tax and the total never goes below zero.
func (e *CartPricingEngine) Calculate(ctx context.Context, cmd PriceCartCommand) (domain.CartPricing, error) {
	if len(cmd.Items) == 0 {
		return domain.CartPricing{}, fmt.Errorf("%w: at least one item is required", ErrCartPricingInvalidInput)
	}
	currency := strings.ToUpper(strings.TrimSpace(cmd.Currency))
	if currency == "" {
		currency = e.currency
	}
	if currency != e.currency {
		return domain.CartPricing{}, fmt.Errorf("%w: %s", ErrCartPricingCurrencyMismatch, currency)
	}

	items := make([]domain.ItemPricing, 0, len(cmd.Items))
	var subtotal int64
	for _, item := range cmd.Items {
		if item.Quantity <= 0 {
			return domain.CartPricing{}, fmt.Errorf("%w: line %s quantity must be positive", ErrCartPricingInvalidInput, item.LineID)
		}
		if item.UnitPrice < 0 {
			return domain.CartPricing{}, fmt.Errorf("%w: line %s unit price cannot be negative", ErrCartPricingInvalidInput, item.LineID)
		}
		if item.UnitPrice > 0 && item.Quantity > math.MaxInt64/item.UnitPrice {
			return domain.CartPricing{}, fmt.Errorf("%w: line %s subtotal overflow", ErrCartPricingInvalidInput, item.LineID)
		}
		lineSubtotal := item.UnitPrice * item.Quantity
		if subtotal > math.MaxInt64-lineSubtotal {
			return domain.CartPricing{}, fmt.Errorf("%w: cart subtotal overflow", ErrCartPricingInvalidInput)
		}
		subtotal += lineSubtotal
		items = append(items, domain.ItemPricing{
			LineID:    item.LineID,
			ProductID: item.ProductID,
			VariantID: item.VariantID,
			UnitPrice: item.UnitPrice,
			Quantity:  item.Quantity,
			Subtotal:  lineSubtotal,
		})
	}

	tax, err := e.tax.CalculateTax(ctx, TaxCalculationRequest{Currency: currency, Subtotal: subtotal, Items: items})
	if err != nil {
		return domain.CartPricing{}, err
	}
	if tax < 0 {
		return domain.CartPricing{}, fmt.Errorf("%w: tax cannot be negative", ErrCartPricingInvalidInput)
	}

	var discount int64
	var applied *domain.AppliedCoupon
	if code := strings.ToUpper(strings.TrimSpace(cmd.CouponCode)); code != "" {
		now := e.now()
		resolution, err := e.coupons.Resolve(ctx, ResolveCouponCommand{
			Code:     code,
			Subtotal: subtotal,
			Tax:      tax,
			Now:      &now,
		})
		if err != nil {
			return domain.CartPricing{}, err
		}
		discount = resolution.Discount
		applied = &domain.AppliedCoupon{
			Code:         resolution.Coupon.Code,
			DiscountType: resolution.Coupon.DiscountType,
			Amount:       resolution.Discount,
		}
	}

	const shipping = int64(0)
	total := subtotal + tax + shipping - discount
	if total < 0 {
		e.logger(ctx, "pricing.total_clamped", map[string]any{
			"subtotal": subtotal,
			"tax":      tax,
			"discount": discount,
		})
		total = 0
	}

	return domain.CartPricing{
		Currency: currency,
		Subtotal: subtotal,
		Tax:      tax,
		Discount: discount,
		Shipping: shipping,
		Total:    total,
		Items:    items,
		Coupon:   applied,
	}, nil
}
