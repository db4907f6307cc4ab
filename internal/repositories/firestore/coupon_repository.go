package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/solventline/api/internal/domain"
	pfirestore "github.com/solventline/api/internal/platform/firestore"
	"github.com/solventline/api/internal/repositories"
)

const couponsCollection = "coupons"

// CouponRepository persists coupon definitions. Codes are normalised to
// uppercase on write so lookups stay case-insensitive.
type CouponRepository struct {
	base     *pfirestore.BaseRepository[couponDocument]
	provider *pfirestore.Provider
}

// NewCouponRepository constructs a Firestore-backed coupon repository.
func NewCouponRepository(provider *pfirestore.Provider) (*CouponRepository, error) {
	if provider == nil {
		return nil, errors.New("coupon repository requires firestore provider")
	}
	base := pfirestore.NewBaseRepository[couponDocument](provider, couponsCollection, nil, nil)
	return &CouponRepository{
		base:     base,
		provider: provider,
	}, nil
}

// Insert creates the coupon document, failing when the ID already exists.
func (r *CouponRepository) Insert(ctx context.Context, coupon domain.Coupon) error {
	if r == nil || r.base == nil {
		return errors.New("coupon repository not initialised")
	}
	id := strings.TrimSpace(coupon.ID)
	if id == "" {
		return errors.New("coupon repository: coupon id is required")
	}

	ref, err := r.base.DocumentRef(ctx, id)
	if err != nil {
		return err
	}
	if _, err := ref.Create(ctx, encodeCoupon(coupon)); err != nil {
		return pfirestore.WrapError("coupons.insert", err)
	}
	return nil
}

// Update replaces the coupon document.
func (r *CouponRepository) Update(ctx context.Context, coupon domain.Coupon) error {
	if r == nil || r.base == nil {
		return errors.New("coupon repository not initialised")
	}
	id := strings.TrimSpace(coupon.ID)
	if id == "" {
		return errors.New("coupon repository: coupon id is required")
	}
	_, err := r.base.Set(ctx, id, encodeCoupon(coupon))
	return err
}

// Delete removes the coupon document.
func (r *CouponRepository) Delete(ctx context.Context, couponID string) error {
	if r == nil || r.base == nil {
		return errors.New("coupon repository not initialised")
	}
	id := strings.TrimSpace(couponID)
	if id == "" {
		return errors.New("coupon repository: coupon id is required")
	}
	ref, err := r.base.DocumentRef(ctx, id)
	if err != nil {
		return err
	}
	if _, err := ref.Delete(ctx, firestore.Exists); err != nil {
		return pfirestore.WrapError("coupons.delete", err)
	}
	return nil
}

// FindByCode resolves a coupon by its uppercase code.
func (r *CouponRepository) FindByCode(ctx context.Context, code string) (domain.Coupon, error) {
	if r == nil || r.base == nil {
		return domain.Coupon{}, errors.New("coupon repository not initialised")
	}
	normalised := strings.ToUpper(strings.TrimSpace(code))
	if normalised == "" {
		return domain.Coupon{}, errors.New("coupon repository: code is required")
	}

	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("code", "==", normalised).Limit(1)
	})
	if err != nil {
		return domain.Coupon{}, err
	}
	if len(docs) == 0 {
		return domain.Coupon{}, pfirestore.NewNotFoundError("coupons.findbycode", fmt.Errorf("coupon code %q not found", normalised))
	}
	return decodeCoupon(docs[0]), nil
}

// List returns coupons ordered by code.
func (r *CouponRepository) List(ctx context.Context, filter repositories.CouponListFilter) (domain.CursorPage[domain.Coupon], error) {
	if r == nil || r.base == nil {
		return domain.CursorPage[domain.Coupon]{}, errors.New("coupon repository not initialised")
	}

	limit := filter.Pagination.PageSize
	if limit < 0 {
		limit = 0
	}
	fetchLimit := limit
	if limit > 0 {
		fetchLimit = limit + 1
	}

	var startAfter []any
	if token := strings.TrimSpace(filter.Pagination.PageToken); token != "" {
		code, docID, err := decodeCursorToken(token)
		if err != nil {
			return domain.CursorPage[domain.Coupon]{}, fmt.Errorf("coupon repository: invalid page token: %w", err)
		}
		startAfter = []any{code, docID}
	}

	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		if filter.ActiveOnly {
			q = q.Where("active", "==", true)
		}
		q = q.OrderBy("code", firestore.Asc).OrderBy(firestore.DocumentID, firestore.Asc)
		if len(startAfter) == 2 {
			q = q.StartAfter(startAfter...)
		}
		if fetchLimit > 0 {
			q = q.Limit(fetchLimit)
		}
		return q
	})
	if err != nil {
		return domain.CursorPage[domain.Coupon]{}, err
	}

	valueDocs := docs
	nextToken := ""
	if limit > 0 && len(valueDocs) == fetchLimit {
		last := valueDocs[len(valueDocs)-1]
		nextToken = encodeCursorToken(last.Data.Code, last.ID)
		valueDocs = valueDocs[:len(valueDocs)-1]
	}

	items := make([]domain.Coupon, 0, len(valueDocs))
	for _, doc := range valueDocs {
		items = append(items, decodeCoupon(doc))
	}

	return domain.CursorPage[domain.Coupon]{
		Items:         items,
		NextPageToken: nextToken,
	}, nil
}

func encodeCoupon(coupon domain.Coupon) couponDocument {
	now := time.Now().UTC()
	createdAt := coupon.CreatedAt.UTC()
	if createdAt.IsZero() {
		createdAt = now
	}
	return couponDocument{
		Code:          strings.ToUpper(strings.TrimSpace(coupon.Code)),
		DiscountType:  string(coupon.DiscountType),
		DiscountValue: coupon.DiscountValue,
		MinOrderValue: coupon.MinOrderValue,
		MaxDiscount:   coupon.MaxDiscount,
		StartsAt:      coupon.StartsAt.UTC(),
		ExpiresAt:     coupon.ExpiresAt.UTC(),
		Active:        coupon.Active,
		CreatedAt:     createdAt,
		UpdatedAt:     now,
	}
}

func decodeCoupon(doc pfirestore.Document[couponDocument]) domain.Coupon {
	return domain.Coupon{
		ID:            doc.ID,
		Code:          doc.Data.Code,
		DiscountType:  domain.DiscountType(doc.Data.DiscountType),
		DiscountValue: doc.Data.DiscountValue,
		MinOrderValue: doc.Data.MinOrderValue,
		MaxDiscount:   doc.Data.MaxDiscount,
		StartsAt:      doc.Data.StartsAt,
		ExpiresAt:     doc.Data.ExpiresAt,
		Active:        doc.Data.Active,
		CreatedAt:     doc.Data.CreatedAt,
		UpdatedAt:     doc.UpdateTime,
	}
}

type couponDocument struct {
	Code          string    `firestore:"code"`
	DiscountType  string    `firestore:"discountType"`
	DiscountValue int64     `firestore:"discountValue"`
	MinOrderValue int64     `firestore:"minOrderValue,omitempty"`
	MaxDiscount   int64     `firestore:"maxDiscount,omitempty"`
	StartsAt      time.Time `firestore:"startsAt"`
	ExpiresAt     time.Time `firestore:"expiresAt"`
	Active        bool      `firestore:"active"`
	CreatedAt     time.Time `firestore:"createdAt"`
	UpdatedAt     time.Time `firestore:"updatedAt"`
}

var _ repositories.CouponRepository = (*CouponRepository)(nil)
