package services

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	domain "github.com/solventline/api/internal/domain"
)

type stubCouponService struct {
	resolveFunc func(ctx context.Context, cmd ResolveCouponCommand) (CouponResolution, error)
}

func (s *stubCouponService) Resolve(ctx context.Context, cmd ResolveCouponCommand) (CouponResolution, error) {
	if s.resolveFunc == nil {
		return CouponResolution{}, errors.New("unexpected Resolve call")
	}
	return s.resolveFunc(ctx, cmd)
}

func (s *stubCouponService) ListCoupons(ctx context.Context, filter CouponListFilter) (domain.CursorPage[Coupon], error) {
	return domain.CursorPage[Coupon]{}, errors.New("unexpected ListCoupons call")
}

func (s *stubCouponService) CreateCoupon(ctx context.Context, cmd UpsertCouponCommand) (Coupon, error) {
	return Coupon{}, errors.New("unexpected CreateCoupon call")
}

func (s *stubCouponService) UpdateCoupon(ctx context.Context, cmd UpsertCouponCommand) (Coupon, error) {
	return Coupon{}, errors.New("unexpected UpdateCoupon call")
}

func (s *stubCouponService) DeleteCoupon(ctx context.Context, couponID string) error {
	return errors.New("unexpected DeleteCoupon call")
}

func newTestPricingEngine(t *testing.T, coupons CouponService) *CartPricingEngine {
	t.Helper()
	if coupons == nil {
		coupons = &stubCouponService{}
	}
	engine, err := NewCartPricingEngine(CartPricingEngineDeps{
		Coupons: coupons,
		Now:     func() time.Time { return time.Date(2025, 3, 4, 10, 0, 0, 0, time.UTC) },
	})
	if err != nil {
		t.Fatalf("unexpected error constructing pricing engine: %v", err)
	}
	return engine
}

func TestPricingEngineSubtotalTaxAndTotal(t *testing.T) {
	engine := newTestPricingEngine(t, nil)

	pricing, err := engine.Calculate(context.Background(), PriceCartCommand{
		Items: []domain.CartItem{
			{LineID: "line-1", ProductID: "prod-1", VariantID: "var-5l", UnitPrice: 29000, Quantity: 2},
		},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if pricing.Subtotal != 58000 {
		t.Fatalf("expected subtotal 58000, got %d", pricing.Subtotal)
	}
	if pricing.Tax != 10440 {
		t.Fatalf("expected 18%% GST of 10440, got %d", pricing.Tax)
	}
	if pricing.Discount != 0 {
		t.Fatalf("expected no discount, got %d", pricing.Discount)
	}
	if pricing.Shipping != 0 {
		t.Fatalf("expected flat zero shipping, got %d", pricing.Shipping)
	}
	if pricing.Total != 68440 {
		t.Fatalf("expected total 68440, got %d", pricing.Total)
	}
	if pricing.Currency != "INR" {
		t.Fatalf("expected currency INR, got %q", pricing.Currency)
	}
	if len(pricing.Items) != 1 || pricing.Items[0].Subtotal != 58000 {
		t.Fatalf("unexpected item pricing %+v", pricing.Items)
	}
}

func TestPricingEngineTaxRoundsHalfUp(t *testing.T) {
	engine := newTestPricingEngine(t, nil)

	// 18% of 103 paise is 18.54; half-up rounding lands on 19.
	pricing, err := engine.Calculate(context.Background(), PriceCartCommand{
		Items: []domain.CartItem{
			{LineID: "line-1", UnitPrice: 103, Quantity: 1},
		},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if pricing.Tax != 19 {
		t.Fatalf("expected tax 19, got %d", pricing.Tax)
	}
}

func TestPricingEngineAppliesCouponAfterTax(t *testing.T) {
	coupons := &stubCouponService{
		resolveFunc: func(ctx context.Context, cmd ResolveCouponCommand) (CouponResolution, error) {
			if cmd.Code != "THIN10" {
				t.Fatalf("expected uppercased code THIN10, got %q", cmd.Code)
			}
			if cmd.Subtotal != 58000 {
				t.Fatalf("expected subtotal 58000 passed to resolver, got %d", cmd.Subtotal)
			}
			if cmd.Tax != 10440 {
				t.Fatalf("expected tax 10440 passed to resolver, got %d", cmd.Tax)
			}
			if cmd.Now == nil {
				t.Fatalf("expected pricing clock forwarded to resolver")
			}
			return CouponResolution{
				Coupon:   Coupon{Code: "THIN10", DiscountType: domain.DiscountTypeFixed, DiscountValue: 5000},
				Discount: 5000,
			}, nil
		},
	}
	engine := newTestPricingEngine(t, coupons)

	pricing, err := engine.Calculate(context.Background(), PriceCartCommand{
		Items: []domain.CartItem{
			{LineID: "line-1", UnitPrice: 29000, Quantity: 2},
		},
		CouponCode: " thin10 ",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if pricing.Discount != 5000 {
		t.Fatalf("expected discount 5000, got %d", pricing.Discount)
	}
	if pricing.Total != 63440 {
		t.Fatalf("expected total 63440, got %d", pricing.Total)
	}
	if pricing.Coupon == nil || pricing.Coupon.Code != "THIN10" || pricing.Coupon.Amount != 5000 {
		t.Fatalf("expected applied coupon snapshot, got %+v", pricing.Coupon)
	}
}

func TestPricingEngineClampsTotalAtZero(t *testing.T) {
	clamped := false
	coupons := &stubCouponService{
		resolveFunc: func(ctx context.Context, cmd ResolveCouponCommand) (CouponResolution, error) {
			return CouponResolution{
				Coupon:   Coupon{Code: "FREEBIE", DiscountType: domain.DiscountTypeFixed, DiscountValue: 1_000_000},
				Discount: 1_000_000,
			}, nil
		},
	}
	engine, err := NewCartPricingEngine(CartPricingEngineDeps{
		Coupons: coupons,
		Logger: func(ctx context.Context, event string, fields map[string]any) {
			if event == "pricing.total_clamped" {
				clamped = true
			}
		},
	})
	if err != nil {
		t.Fatalf("unexpected error constructing pricing engine: %v", err)
	}

	pricing, err := engine.Calculate(context.Background(), PriceCartCommand{
		Items: []domain.CartItem{
			{LineID: "line-1", UnitPrice: 100, Quantity: 1},
		},
		CouponCode: "FREEBIE",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if pricing.Total != 0 {
		t.Fatalf("expected total clamped to 0, got %d", pricing.Total)
	}
	if !clamped {
		t.Fatalf("expected clamp to be logged")
	}
}

func TestPricingEnginePropagatesCouponError(t *testing.T) {
	coupons := &stubCouponService{
		resolveFunc: func(ctx context.Context, cmd ResolveCouponCommand) (CouponResolution, error) {
			return CouponResolution{}, ErrCouponMinOrder
		},
	}
	engine := newTestPricingEngine(t, coupons)

	_, err := engine.Calculate(context.Background(), PriceCartCommand{
		Items: []domain.CartItem{
			{LineID: "line-1", UnitPrice: 100, Quantity: 1},
		},
		CouponCode: "BULK",
	})
	if !errors.Is(err, ErrCouponMinOrder) {
		t.Fatalf("expected ErrCouponMinOrder, got %v", err)
	}
}

func TestPricingEngineRejectsBadInput(t *testing.T) {
	engine := newTestPricingEngine(t, nil)
	ctx := context.Background()

	cases := []struct {
		name string
		cmd  PriceCartCommand
	}{
		{name: "empty cart", cmd: PriceCartCommand{}},
		{
			name: "zero quantity",
			cmd: PriceCartCommand{Items: []domain.CartItem{
				{LineID: "line-1", UnitPrice: 100, Quantity: 0},
			}},
		},
		{
			name: "negative price",
			cmd: PriceCartCommand{Items: []domain.CartItem{
				{LineID: "line-1", UnitPrice: -5, Quantity: 1},
			}},
		},
		{
			name: "line overflow",
			cmd: PriceCartCommand{Items: []domain.CartItem{
				{LineID: "line-1", UnitPrice: math.MaxInt64 / 2, Quantity: 3},
			}},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := engine.Calculate(ctx, tc.cmd); !errors.Is(err, ErrCartPricingInvalidInput) {
				t.Fatalf("expected ErrCartPricingInvalidInput, got %v", err)
			}
		})
	}
}

func TestPricingEngineRejectsForeignCurrency(t *testing.T) {
	engine := newTestPricingEngine(t, nil)

	_, err := engine.Calculate(context.Background(), PriceCartCommand{
		Currency: "USD",
		Items: []domain.CartItem{
			{LineID: "line-1", UnitPrice: 100, Quantity: 1},
		},
	})
	if !errors.Is(err, ErrCartPricingCurrencyMismatch) {
		t.Fatalf("expected ErrCartPricingCurrencyMismatch, got %v", err)
	}
}
