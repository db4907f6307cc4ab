package services

import (
	"context"
	"errors"
	"testing"
	"time"

	domain "github.com/solventline/api/internal/domain"
	"github.com/solventline/api/internal/repositories"
)

type stubCouponRepository struct {
	insertFunc     func(ctx context.Context, coupon domain.Coupon) error
	updateFunc     func(ctx context.Context, coupon domain.Coupon) error
	deleteFunc     func(ctx context.Context, couponID string) error
	findByCodeFunc func(ctx context.Context, code string) (domain.Coupon, error)
	listFunc       func(ctx context.Context, filter repositories.CouponListFilter) (domain.CursorPage[domain.Coupon], error)
}

func (s *stubCouponRepository) Insert(ctx context.Context, coupon domain.Coupon) error {
	if s.insertFunc == nil {
		return errors.New("unexpected Insert call")
	}
	return s.insertFunc(ctx, coupon)
}

func (s *stubCouponRepository) Update(ctx context.Context, coupon domain.Coupon) error {
	if s.updateFunc == nil {
		return errors.New("unexpected Update call")
	}
	return s.updateFunc(ctx, coupon)
}

func (s *stubCouponRepository) Delete(ctx context.Context, couponID string) error {
	if s.deleteFunc == nil {
		return errors.New("unexpected Delete call")
	}
	return s.deleteFunc(ctx, couponID)
}

func (s *stubCouponRepository) FindByCode(ctx context.Context, code string) (domain.Coupon, error) {
	if s.findByCodeFunc == nil {
		return domain.Coupon{}, errors.New("unexpected FindByCode call")
	}
	return s.findByCodeFunc(ctx, code)
}

func (s *stubCouponRepository) List(ctx context.Context, filter repositories.CouponListFilter) (domain.CursorPage[domain.Coupon], error) {
	if s.listFunc == nil {
		return domain.CursorPage[domain.Coupon]{}, errors.New("unexpected List call")
	}
	return s.listFunc(ctx, filter)
}

func couponFixture() domain.Coupon {
	return domain.Coupon{
		ID:            "coupon-1",
		Code:          "THIN10",
		DiscountType:  domain.DiscountTypePercentage,
		DiscountValue: 10,
		MinOrderValue: 10000,
		MaxDiscount:   5000,
		StartsAt:      time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		ExpiresAt:     time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		Active:        true,
	}
}

func newTestCouponService(t *testing.T, repo repositories.CouponRepository, now time.Time) CouponService {
	t.Helper()
	service, err := NewCouponService(CouponServiceDeps{
		Coupons:     repo,
		Clock:       func() time.Time { return now },
		IDGenerator: func() string { return "coupon-fixed" },
	})
	if err != nil {
		t.Fatalf("unexpected error constructing coupon service: %v", err)
	}
	return service
}

func TestCouponResolvePercentageCapped(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	repo := &stubCouponRepository{
		findByCodeFunc: func(ctx context.Context, code string) (domain.Coupon, error) {
			if code != "THIN10" {
				t.Fatalf("expected uppercased lookup THIN10, got %q", code)
			}
			return couponFixture(), nil
		},
	}
	service := newTestCouponService(t, repo, now)

	resolution, err := service.Resolve(context.Background(), ResolveCouponCommand{
		Code:     " thin10 ",
		Subtotal: 120000,
		Tax:      21600,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// 10% of 120000 is 12000, capped by MaxDiscount 5000.
	if resolution.Discount != 5000 {
		t.Fatalf("expected capped discount 5000, got %d", resolution.Discount)
	}
	if resolution.Coupon.Code != "THIN10" {
		t.Fatalf("expected resolved coupon THIN10, got %q", resolution.Coupon.Code)
	}
}

func TestCouponResolvePercentageUncapped(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	coupon := couponFixture()
	coupon.MaxDiscount = 0
	repo := &stubCouponRepository{
		findByCodeFunc: func(ctx context.Context, code string) (domain.Coupon, error) {
			return coupon, nil
		},
	}
	service := newTestCouponService(t, repo, now)

	resolution, err := service.Resolve(context.Background(), ResolveCouponCommand{
		Code:     "THIN10",
		Subtotal: 120000,
		Tax:      21600,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resolution.Discount != 12000 {
		t.Fatalf("expected full 10%% discount 12000, got %d", resolution.Discount)
	}
}

func TestCouponResolveFixedNeverExceedsOwed(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	coupon := couponFixture()
	coupon.Code = "FLAT500"
	coupon.DiscountType = domain.DiscountTypeFixed
	coupon.DiscountValue = 50000
	coupon.MinOrderValue = 0
	repo := &stubCouponRepository{
		findByCodeFunc: func(ctx context.Context, code string) (domain.Coupon, error) {
			return coupon, nil
		},
	}
	service := newTestCouponService(t, repo, now)

	resolution, err := service.Resolve(context.Background(), ResolveCouponCommand{
		Code:     "FLAT500",
		Subtotal: 10000,
		Tax:      1800,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resolution.Discount != 11800 {
		t.Fatalf("expected discount clamped to subtotal+tax 11800, got %d", resolution.Discount)
	}
}

func TestCouponResolveRejectsInactiveAndWindow(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	disabled := couponFixture()
	disabled.Active = false

	early := couponFixture()
	early.StartsAt = now.Add(24 * time.Hour)

	expired := couponFixture()
	expired.ExpiresAt = now.Add(-time.Hour)

	boundary := couponFixture()
	boundary.ExpiresAt = now

	cases := []struct {
		name   string
		coupon domain.Coupon
	}{
		{name: "disabled", coupon: disabled},
		{name: "not yet active", coupon: early},
		{name: "expired", coupon: expired},
		{name: "expires exactly now", coupon: boundary},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			repo := &stubCouponRepository{
				findByCodeFunc: func(ctx context.Context, code string) (domain.Coupon, error) {
					return tc.coupon, nil
				},
			}
			service := newTestCouponService(t, repo, now)

			_, err := service.Resolve(context.Background(), ResolveCouponCommand{
				Code:     tc.coupon.Code,
				Subtotal: 120000,
			})
			if !errors.Is(err, ErrCouponInactive) {
				t.Fatalf("expected ErrCouponInactive, got %v", err)
			}
		})
	}
}

func TestCouponResolveHonoursCallerClock(t *testing.T) {
	serviceNow := time.Date(2027, 1, 1, 0, 0, 0, 0, time.UTC)
	repo := &stubCouponRepository{
		findByCodeFunc: func(ctx context.Context, code string) (domain.Coupon, error) {
			return couponFixture(), nil
		},
	}
	service := newTestCouponService(t, repo, serviceNow)

	within := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	resolution, err := service.Resolve(context.Background(), ResolveCouponCommand{
		Code:     "THIN10",
		Subtotal: 120000,
		Now:      &within,
	})
	if err != nil {
		t.Fatalf("expected caller-supplied instant to win, got %v", err)
	}
	if resolution.Discount == 0 {
		t.Fatalf("expected a discount")
	}
}

func TestCouponResolveBelowMinimum(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	repo := &stubCouponRepository{
		findByCodeFunc: func(ctx context.Context, code string) (domain.Coupon, error) {
			return couponFixture(), nil
		},
	}
	service := newTestCouponService(t, repo, now)

	_, err := service.Resolve(context.Background(), ResolveCouponCommand{
		Code:     "THIN10",
		Subtotal: 9999,
	})
	if !errors.Is(err, ErrCouponMinOrder) {
		t.Fatalf("expected ErrCouponMinOrder, got %v", err)
	}
}

func TestCouponResolveUnknownCode(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	repo := &stubCouponRepository{
		findByCodeFunc: func(ctx context.Context, code string) (domain.Coupon, error) {
			return domain.Coupon{}, &repositoryErrorStub{notFound: true}
		},
	}
	service := newTestCouponService(t, repo, now)

	_, err := service.Resolve(context.Background(), ResolveCouponCommand{Code: "NOPE", Subtotal: 1000})
	if !errors.Is(err, ErrCouponNotFound) {
		t.Fatalf("expected ErrCouponNotFound, got %v", err)
	}
}

func TestCouponCreateNormalisesAndStamps(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	var inserted domain.Coupon
	repo := &stubCouponRepository{
		insertFunc: func(ctx context.Context, coupon domain.Coupon) error {
			inserted = coupon
			return nil
		},
	}
	service := newTestCouponService(t, repo, now)

	created, err := service.CreateCoupon(context.Background(), UpsertCouponCommand{
		Coupon: domain.Coupon{
			Code:          " monsoon25 ",
			DiscountType:  domain.DiscountTypePercentage,
			DiscountValue: 25,
		},
		ActorID: "admin-1",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if inserted.Code != "MONSOON25" {
		t.Fatalf("expected uppercased code MONSOON25, got %q", inserted.Code)
	}
	if inserted.ID != "coupon-fixed" {
		t.Fatalf("expected generated id, got %q", inserted.ID)
	}
	if !inserted.CreatedAt.Equal(now) || !inserted.UpdatedAt.Equal(now) {
		t.Fatalf("expected timestamps stamped with clock, got %v / %v", inserted.CreatedAt, inserted.UpdatedAt)
	}
	if created.Code != "MONSOON25" {
		t.Fatalf("expected returned coupon code MONSOON25, got %q", created.Code)
	}
}

func TestCouponValidationRejectsBadDefinitions(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	service := newTestCouponService(t, &stubCouponRepository{}, now)
	ctx := context.Background()

	cases := []struct {
		name   string
		coupon domain.Coupon
	}{
		{name: "missing code", coupon: domain.Coupon{DiscountType: domain.DiscountTypeFixed, DiscountValue: 100}},
		{name: "unknown type", coupon: domain.Coupon{Code: "X", DiscountType: "bogo", DiscountValue: 1}},
		{name: "zero value", coupon: domain.Coupon{Code: "X", DiscountType: domain.DiscountTypeFixed}},
		{name: "percent over 100", coupon: domain.Coupon{Code: "X", DiscountType: domain.DiscountTypePercentage, DiscountValue: 120}},
		{
			name: "empty window",
			coupon: domain.Coupon{
				Code:          "X",
				DiscountType:  domain.DiscountTypeFixed,
				DiscountValue: 100,
				StartsAt:      time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC),
				ExpiresAt:     time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
			},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := service.CreateCoupon(ctx, UpsertCouponCommand{Coupon: tc.coupon}); !errors.Is(err, ErrCouponInvalidInput) {
				t.Fatalf("expected ErrCouponInvalidInput, got %v", err)
			}
		})
	}
}

func TestCouponUpdateRequiresID(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	service := newTestCouponService(t, &stubCouponRepository{}, now)

	_, err := service.UpdateCoupon(context.Background(), UpsertCouponCommand{
		Coupon: domain.Coupon{Code: "X", DiscountType: domain.DiscountTypeFixed, DiscountValue: 100},
	})
	if !errors.Is(err, ErrCouponInvalidInput) {
		t.Fatalf("expected ErrCouponInvalidInput, got %v", err)
	}
}

func TestCouponDeleteTranslatesNotFound(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	repo := &stubCouponRepository{
		deleteFunc: func(ctx context.Context, couponID string) error {
			return &repositoryErrorStub{notFound: true}
		},
	}
	service := newTestCouponService(t, repo, now)

	if err := service.DeleteCoupon(context.Background(), "coupon-9"); !errors.Is(err, ErrCouponNotFound) {
		t.Fatalf("expected ErrCouponNotFound, got %v", err)
	}
}
