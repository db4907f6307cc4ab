package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/solventline/api/internal/domain"
	"github.com/solventline/api/internal/repositories"
)

var (
	// ErrCouponInvalidInput indicates the caller supplied invalid data to a coupon operation.
	ErrCouponInvalidInput = errors.New("coupon service: invalid input")
	// ErrCouponNotFound indicates no coupon exists for the supplied code or id.
	ErrCouponNotFound = errors.New("coupon service: coupon not found")
	// ErrCouponInactive indicates the coupon exists but is disabled or outside its activity window.
	ErrCouponInactive = errors.New("coupon service: coupon inactive")
	// ErrCouponMinOrder indicates the order subtotal is below the coupon's minimum.
	ErrCouponMinOrder = errors.New("coupon service: order below coupon minimum")
	// ErrCouponConflict indicates a coupon code collision.
	ErrCouponConflict = errors.New("coupon service: conflict")
	// ErrCouponUnavailable indicates the coupon backend could not serve the request.
	ErrCouponUnavailable = errors.New("coupon service: unavailable")
)

// CouponServiceDeps bundles constructor inputs for the coupon service.
type CouponServiceDeps struct {
	Coupons     repositories.CouponRepository
	Clock       func() time.Time
	Logger      func(ctx context.Context, event string, fields map[string]any)
	IDGenerator func() string
}

type couponService struct {
	repo   repositories.CouponRepository
	clock  func() time.Time
	logger func(ctx context.Context, event string, fields map[string]any)
	idgen  func() string
}

// NewCouponService wires a CouponService backed by the provided repository.
func NewCouponService(deps CouponServiceDeps) (CouponService, error) {
	if deps.Coupons == nil {
		return nil, fmt.Errorf("coupon service: coupon repository is required")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	idgen := deps.IDGenerator
	if idgen == nil {
		idgen = func() string { return ulid.Make().String() }
	}
	return &couponService{
		repo:   deps.Coupons,
		clock:  func() time.Time { return clock().UTC() },
		logger: logger,
		idgen:  idgen,
	}, nil
}

func (s *couponService) Resolve(ctx context.Context, cmd ResolveCouponCommand) (CouponResolution, error) {
	code := strings.ToUpper(strings.TrimSpace(cmd.Code))
	if code == "" {
		return CouponResolution{}, fmt.Errorf("%w: coupon code is required", ErrCouponInvalidInput)
	}
	if cmd.Subtotal < 0 || cmd.Tax < 0 {
		return CouponResolution{}, fmt.Errorf("%w: amounts cannot be negative", ErrCouponInvalidInput)
	}

	coupon, err := s.repo.FindByCode(ctx, code)
	if err != nil {
		return CouponResolution{}, s.translateRepoError(err)
	}

	now := s.clock()
	if cmd.Now != nil {
		now = cmd.Now.UTC()
	}
	if !coupon.Active {
		return CouponResolution{}, fmt.Errorf("%w: %s", ErrCouponInactive, code)
	}
	if !coupon.StartsAt.IsZero() && now.Before(coupon.StartsAt) {
		return CouponResolution{}, fmt.Errorf("%w: %s not yet active", ErrCouponInactive, code)
	}
	if !coupon.ExpiresAt.IsZero() && !now.Before(coupon.ExpiresAt) {
		return CouponResolution{}, fmt.Errorf("%w: %s expired", ErrCouponInactive, code)
	}
	if coupon.MinOrderValue > 0 && cmd.Subtotal < coupon.MinOrderValue {
		return CouponResolution{}, fmt.Errorf("%w: subtotal %d below minimum %d", ErrCouponMinOrder, cmd.Subtotal, coupon.MinOrderValue)
	}

	discount := computeDiscount(coupon, cmd.Subtotal, cmd.Tax)
	return CouponResolution{Coupon: coupon, Discount: discount}, nil
}

func (s *couponService) ListCoupons(ctx context.Context, filter CouponListFilter) (domain.CursorPage[domain.Coupon], error) {
	page, err := s.repo.List(ctx, repositories.CouponListFilter{
		ActiveOnly: filter.ActiveOnly,
		Pagination: filter.Pagination,
	})
	if err != nil {
		return domain.CursorPage[domain.Coupon]{}, s.translateRepoError(err)
	}
	return page, nil
}

func (s *couponService) CreateCoupon(ctx context.Context, cmd UpsertCouponCommand) (domain.Coupon, error) {
	coupon, err := s.normaliseCoupon(cmd.Coupon)
	if err != nil {
		return domain.Coupon{}, err
	}
	if coupon.ID == "" {
		coupon.ID = s.idgen()
	}
	now := s.clock()
	coupon.CreatedAt = now
	coupon.UpdatedAt = now
	if err := s.repo.Insert(ctx, coupon); err != nil {
		return domain.Coupon{}, s.translateRepoError(err)
	}
	s.logger(ctx, "coupon.created", map[string]any{"couponId": coupon.ID, "code": coupon.Code})
	return coupon, nil
}

func (s *couponService) UpdateCoupon(ctx context.Context, cmd UpsertCouponCommand) (domain.Coupon, error) {
	coupon, err := s.normaliseCoupon(cmd.Coupon)
	if err != nil {
		return domain.Coupon{}, err
	}
	if coupon.ID == "" {
		return domain.Coupon{}, fmt.Errorf("%w: coupon id is required", ErrCouponInvalidInput)
	}
	coupon.UpdatedAt = s.clock()
	if err := s.repo.Update(ctx, coupon); err != nil {
		return domain.Coupon{}, s.translateRepoError(err)
	}
	s.logger(ctx, "coupon.updated", map[string]any{"couponId": coupon.ID, "code": coupon.Code})
	return coupon, nil
}

func (s *couponService) DeleteCoupon(ctx context.Context, couponID string) error {
	couponID = strings.TrimSpace(couponID)
	if couponID == "" {
		return fmt.Errorf("%w: coupon id is required", ErrCouponInvalidInput)
	}
	if err := s.repo.Delete(ctx, couponID); err != nil {
		return s.translateRepoError(err)
	}
	s.logger(ctx, "coupon.deleted", map[string]any{"couponId": couponID})
	return nil
}

func (s *couponService) normaliseCoupon(input domain.Coupon) (domain.Coupon, error) {
	coupon := input
	coupon.ID = strings.TrimSpace(coupon.ID)
	coupon.Code = strings.ToUpper(strings.TrimSpace(coupon.Code))
	switch {
	case coupon.Code == "":
		return domain.Coupon{}, fmt.Errorf("%w: coupon code is required", ErrCouponInvalidInput)
	case coupon.DiscountType != domain.DiscountTypePercentage && coupon.DiscountType != domain.DiscountTypeFixed:
		return domain.Coupon{}, fmt.Errorf("%w: unknown discount type %q", ErrCouponInvalidInput, coupon.DiscountType)
	case coupon.DiscountValue <= 0:
		return domain.Coupon{}, fmt.Errorf("%w: discount value must be positive", ErrCouponInvalidInput)
	case coupon.DiscountType == domain.DiscountTypePercentage && coupon.DiscountValue > 100:
		return domain.Coupon{}, fmt.Errorf("%w: percentage discount cannot exceed 100", ErrCouponInvalidInput)
	case coupon.MinOrderValue < 0:
		return domain.Coupon{}, fmt.Errorf("%w: minimum order value cannot be negative", ErrCouponInvalidInput)
	case coupon.MaxDiscount < 0:
		return domain.Coupon{}, fmt.Errorf("%w: maximum discount cannot be negative", ErrCouponInvalidInput)
	}
	if !coupon.StartsAt.IsZero() && !coupon.ExpiresAt.IsZero() && !coupon.StartsAt.Before(coupon.ExpiresAt) {
		return domain.Coupon{}, fmt.Errorf("%w: activity window is empty", ErrCouponInvalidInput)
	}
	return coupon, nil
}

// computeDiscount applies the coupon against the pre-discount amounts.
// Percentage discounts apply to the subtotal and honour the per-coupon cap;
// fixed discounts never exceed the amount owed.
func computeDiscount(coupon domain.Coupon, subtotal, tax int64) int64 {
	switch coupon.DiscountType {
	case domain.DiscountTypePercentage:
		discount := subtotal * coupon.DiscountValue / 100
		if coupon.MaxDiscount > 0 && discount > coupon.MaxDiscount {
			discount = coupon.MaxDiscount
		}
		return discount
	case domain.DiscountTypeFixed:
		owed := subtotal + tax
		if coupon.DiscountValue > owed {
			return owed
		}
		return coupon.DiscountValue
	default:
		return 0
	}
}

func (s *couponService) translateRepoError(err error) error {
	switch {
	case err == nil:
		return nil
	case isRepoNotFound(err):
		return fmt.Errorf("%w: %v", ErrCouponNotFound, err)
	case isRepoConflict(err):
		return fmt.Errorf("%w: %v", ErrCouponConflict, err)
	default:
		return fmt.Errorf("%w: %v", ErrCouponUnavailable, err)
	}
}
