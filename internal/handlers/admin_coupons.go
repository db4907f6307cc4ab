package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	domain "github.com/solventline/api/internal/domain"
	"github.com/solventline/api/internal/platform/auth"
	"github.com/solventline/api/internal/platform/httpx"
	"github.com/solventline/api/internal/services"
)

const (
	maxCouponRequestBody  = 32 * 1024
	defaultCouponPageSize = 50
	maxCouponPageSize     = 200
)

// AdminCouponHandlers exposes staff/admin coupon maintenance endpoints.
type AdminCouponHandlers struct {
	authn   *auth.Authenticator
	coupons services.CouponService
}

// NewAdminCouponHandlers constructs admin coupon handlers.
func NewAdminCouponHandlers(authn *auth.Authenticator, coupons services.CouponService) *AdminCouponHandlers {
	return &AdminCouponHandlers{authn: authn, coupons: coupons}
}

// Routes registers admin coupon endpoints.
func (h *AdminCouponHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireFirebaseAuth(auth.RoleStaff, auth.RoleAdmin))
	}
	r.Get("/coupons", h.listCoupons)
	r.Post("/coupons", h.createCoupon)
	r.Put("/coupons/{couponID}", h.updateCoupon)
	r.Delete("/coupons/{couponID}", h.deleteCoupon)
}

func (h *AdminCouponHandlers) listCoupons(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if _, ok := h.requireIdentity(ctx, w); !ok {
		return
	}

	query := r.URL.Query()
	pageSize, err := parsePageSizeParam(query.Get("page_size"), defaultCouponPageSize, maxCouponPageSize)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "page_size must be an integer", http.StatusBadRequest))
		return
	}

	page, err := h.coupons.ListCoupons(ctx, services.CouponListFilter{
		ActiveOnly: parseBoolParam(query.Get("active_only")),
		Pagination: services.Pagination{
			PageSize:  pageSize,
			PageToken: strings.TrimSpace(query.Get("page_token")),
		},
	})
	if err != nil {
		writeCouponError(ctx, w, err)
		return
	}

	items := make([]couponPayload, 0, len(page.Items))
	for _, coupon := range page.Items {
		items = append(items, buildCouponPayload(coupon))
	}
	writeJSONResponse(w, http.StatusOK, couponListResponse{
		Items:         items,
		NextPageToken: strings.TrimSpace(page.NextPageToken),
	})
}

func (h *AdminCouponHandlers) createCoupon(w http.ResponseWriter, r *http.Request) {
	h.saveCoupon(w, r, "")
}

func (h *AdminCouponHandlers) updateCoupon(w http.ResponseWriter, r *http.Request) {
	h.saveCoupon(w, r, chi.URLParam(r, "couponID"))
}

func (h *AdminCouponHandlers) saveCoupon(w http.ResponseWriter, r *http.Request, couponID string) {
	ctx := r.Context()
	identity, ok := h.requireIdentity(ctx, w)
	if !ok {
		return
	}

	body, err := readLimitedBody(r, maxCouponRequestBody)
	if err != nil {
		writeCartBodyError(ctx, w, err)
		return
	}

	var req adminCouponRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "request body must be valid JSON", http.StatusBadRequest))
		return
	}

	coupon, err := couponFromRequest(req, strings.TrimSpace(couponID))
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	cmd := services.UpsertCouponCommand{Coupon: coupon, ActorID: identity.UID}

	var saved services.Coupon
	if r.Method == http.MethodPost {
		saved, err = h.coupons.CreateCoupon(ctx, cmd)
	} else {
		saved, err = h.coupons.UpdateCoupon(ctx, cmd)
	}
	if err != nil {
		writeCouponError(ctx, w, err)
		return
	}

	status := http.StatusOK
	if r.Method == http.MethodPost {
		status = http.StatusCreated
	}
	writeJSONResponse(w, status, couponResponse{Coupon: buildCouponPayload(saved)})
}

func (h *AdminCouponHandlers) deleteCoupon(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if _, ok := h.requireIdentity(ctx, w); !ok {
		return
	}

	couponID := strings.TrimSpace(chi.URLParam(r, "couponID"))
	if couponID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "coupon id is required", http.StatusBadRequest))
		return
	}

	if err := h.coupons.DeleteCoupon(ctx, couponID); err != nil {
		writeCouponError(ctx, w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *AdminCouponHandlers) requireIdentity(ctx context.Context, w http.ResponseWriter) (*auth.Identity, bool) {
	if h.coupons == nil {
		httpx.WriteError(ctx, w, httpx.NewError("coupon_service_unavailable", "coupon service unavailable", http.StatusServiceUnavailable))
		return nil, false
	}
	identity, ok := auth.IdentityFromContext(ctx)
	if !ok || identity == nil || strings.TrimSpace(identity.UID) == "" {
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return nil, false
	}
	return identity, true
}

type adminCouponRequest struct {
	Code             string `json:"code"`
	DiscountType     string `json:"discount_type"`
	DiscountValue    *int64 `json:"discount_value,omitempty"`
	DiscountValueINR *int64 `json:"discount_value_inr,omitempty"`
	MinOrderValue    *int64 `json:"min_order_value,omitempty"`
	MinOrderValueINR *int64 `json:"min_order_value_inr,omitempty"`
	MaxDiscount      *int64 `json:"max_discount,omitempty"`
	MaxDiscountINR   *int64 `json:"max_discount_inr,omitempty"`
	StartsAt         string `json:"starts_at"`
	ExpiresAt        string `json:"expires_at"`
	Active           bool   `json:"active"`
}

type couponListResponse struct {
	Items         []couponPayload `json:"items"`
	NextPageToken string          `json:"next_page_token,omitempty"`
}

type couponResponse struct {
	Coupon couponPayload `json:"coupon"`
}

// Monetary fields are INR paise. DiscountValue is a whole percent for
// percentage coupons.
type couponPayload struct {
	ID            string `json:"id"`
	Code          string `json:"code"`
	DiscountType  string `json:"discount_type"`
	DiscountValue int64  `json:"discount_value"`
	MinOrderValue int64  `json:"min_order_value,omitempty"`
	MaxDiscount   int64  `json:"max_discount,omitempty"`
	StartsAt      string `json:"starts_at"`
	ExpiresAt     string `json:"expires_at"`
	Active        bool   `json:"active"`
	CreatedAt     string `json:"created_at,omitempty"`
	UpdatedAt     string `json:"updated_at,omitempty"`
}

func couponFromRequest(req adminCouponRequest, couponID string) (domain.Coupon, error) {
	coupon := domain.Coupon{
		ID:           couponID,
		Code:         strings.TrimSpace(req.Code),
		DiscountType: domain.DiscountType(strings.TrimSpace(strings.ToLower(req.DiscountType))),
		Active:       req.Active,
	}

	// Percentage values never carry a rupee alternate.
	if coupon.DiscountType == domain.DiscountTypePercentage {
		if req.DiscountValueINR != nil {
			return domain.Coupon{}, errors.New("discount_value_inr is not valid for percentage coupons")
		}
		if req.DiscountValue != nil {
			coupon.DiscountValue = *req.DiscountValue
		}
	} else {
		value, err := paiseFromRequest(req.DiscountValue, req.DiscountValueINR)
		if err != nil {
			return domain.Coupon{}, err
		}
		coupon.DiscountValue = value
	}

	minOrder, err := paiseFromRequest(req.MinOrderValue, req.MinOrderValueINR)
	if err != nil {
		return domain.Coupon{}, err
	}
	coupon.MinOrderValue = minOrder

	maxDiscount, err := paiseFromRequest(req.MaxDiscount, req.MaxDiscountINR)
	if err != nil {
		return domain.Coupon{}, err
	}
	coupon.MaxDiscount = maxDiscount

	if raw := strings.TrimSpace(req.StartsAt); raw != "" {
		ts, err := parseRFC3339(raw)
		if err != nil {
			return domain.Coupon{}, fmt.Errorf("starts_at must be an RFC3339 timestamp: %w", err)
		}
		coupon.StartsAt = ts
	}
	if raw := strings.TrimSpace(req.ExpiresAt); raw != "" {
		ts, err := parseRFC3339(raw)
		if err != nil {
			return domain.Coupon{}, fmt.Errorf("expires_at must be an RFC3339 timestamp: %w", err)
		}
		coupon.ExpiresAt = ts
	}

	return coupon, nil
}

func buildCouponPayload(coupon services.Coupon) couponPayload {
	return couponPayload{
		ID:            strings.TrimSpace(coupon.ID),
		Code:          strings.ToUpper(strings.TrimSpace(coupon.Code)),
		DiscountType:  string(coupon.DiscountType),
		DiscountValue: coupon.DiscountValue,
		MinOrderValue: coupon.MinOrderValue,
		MaxDiscount:   coupon.MaxDiscount,
		StartsAt:      formatTime(coupon.StartsAt),
		ExpiresAt:     formatTime(coupon.ExpiresAt),
		Active:        coupon.Active,
		CreatedAt:     formatTime(coupon.CreatedAt),
		UpdatedAt:     formatTime(coupon.UpdatedAt),
	}
}

func writeCouponError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	switch {
	case errors.Is(err, services.ErrCouponInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrCouponNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("coupon_not_found", "coupon not found", http.StatusNotFound))
	case errors.Is(err, services.ErrCouponConflict):
		httpx.WriteError(ctx, w, httpx.NewError("coupon_conflict", err.Error(), http.StatusConflict))
	case errors.Is(err, services.ErrCouponUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("coupon_service_unavailable", "coupon service unavailable", http.StatusServiceUnavailable))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("coupon_error", "failed to process coupon request", http.StatusInternalServerError))
	}
}
