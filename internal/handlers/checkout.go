package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	domain "github.com/solventline/api/internal/domain"
	"github.com/solventline/api/internal/platform/auth"
	"github.com/solventline/api/internal/platform/httpx"
	"github.com/solventline/api/internal/services"
)

const maxCheckoutBodySize = 64 * 1024

const bankTransferInstructions = "Transfer the order total by NEFT/RTGS to the account on your pro-forma invoice and quote the order number in the payment reference. The order is confirmed once the credit is reconciled."

// CheckoutHandlers drives order creation and the payment lifecycle.
type CheckoutHandlers struct {
	authn    *auth.Authenticator
	checkout services.CheckoutService
	idem     func(http.Handler) http.Handler
	limiter  rateLimiter
}

// CheckoutOption customises checkout handler construction.
type CheckoutOption func(*CheckoutHandlers)

// WithIdempotencyMiddleware wraps the mutating checkout endpoints with an
// Idempotency-Key replay guard.
func WithIdempotencyMiddleware(mw func(http.Handler) http.Handler) CheckoutOption {
	return func(h *CheckoutHandlers) {
		h.idem = mw
	}
}

// WithCheckoutRateLimit caps order creations per user within the window.
func WithCheckoutRateLimit(limit int, window time.Duration) CheckoutOption {
	return func(h *CheckoutHandlers) {
		h.limiter = newSimpleRateLimiter(limit, window, nil)
	}
}

// NewCheckoutHandlers constructs checkout handlers guarded by Firebase authentication.
func NewCheckoutHandlers(authn *auth.Authenticator, checkout services.CheckoutService, opts ...CheckoutOption) *CheckoutHandlers {
	h := &CheckoutHandlers{
		authn:    authn,
		checkout: checkout,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

// Routes registers checkout endpoints under the provided router.
func (h *CheckoutHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireFirebaseAuth())
	}
	group := r
	if h.idem != nil {
		group = r.With(h.idem)
	}
	group.Post("/", h.createOrder)
	group.Post("/{orderID}/payments", h.initiatePayment)
	r.Post("/{orderID}/payments/verify", h.verifyPayment)
}

func (h *CheckoutHandlers) createOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := h.requireIdentity(ctx, w)
	if !ok {
		return
	}
	if h.limiter != nil && !h.limiter.Allow(identity.UID) {
		httpx.WriteError(ctx, w, httpx.NewError("rate_limited", "too many checkout attempts, try again later", http.StatusTooManyRequests))
		return
	}

	body, err := readLimitedBody(r, maxCheckoutBodySize)
	if err != nil {
		writeCartBodyError(ctx, w, err)
		return
	}

	var req createOrderRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "request body must be valid JSON", http.StatusBadRequest))
		return
	}
	if req.ShippingAddress == nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "shipping_address is required", http.StatusBadRequest))
		return
	}

	cmd := services.CreateOrderCommand{
		UserID:          identity.UID,
		CouponCode:      strings.TrimSpace(req.CouponCode),
		ShippingAddress: addressFromPayload(*req.ShippingAddress),
		PaymentMethod:   domain.PaymentMethod(strings.TrimSpace(strings.ToLower(req.PaymentMethod))),
	}
	for _, line := range req.Items {
		cmd.Items = append(cmd.Items, services.CheckoutLine{
			ProductID: strings.TrimSpace(line.ProductID),
			VariantID: strings.TrimSpace(line.VariantID),
			Quantity:  line.Quantity,
			IsSample:  line.IsSample,
		})
	}
	if req.GSTDetails != nil {
		details := domain.GSTDetails{
			GSTNumber:    strings.TrimSpace(req.GSTDetails.GSTNumber),
			BusinessName: strings.TrimSpace(req.GSTDetails.BusinessName),
		}
		if req.GSTDetails.Address != nil {
			details.Address = addressFromPayload(*req.GSTDetails.Address)
		}
		cmd.GSTDetails = &details
	}

	order, err := h.checkout.CreateOrder(ctx, cmd)
	if err != nil {
		writeCheckoutError(ctx, w, err)
		return
	}

	response := checkoutResponse{Order: buildOrderPayload(order)}
	if order.PaymentMethod == domain.PaymentMethodBankTransfer {
		response.PaymentInstructions = bankTransferInstructions
	}
	writeJSONResponse(w, http.StatusCreated, response)
}

func (h *CheckoutHandlers) initiatePayment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := h.requireIdentity(ctx, w)
	if !ok {
		return
	}

	orderID := strings.TrimSpace(chi.URLParam(r, "orderID"))
	if orderID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "order id is required", http.StatusBadRequest))
		return
	}

	var req initiatePaymentRequest
	body, err := readLimitedBody(r, maxCheckoutBodySize)
	if err != nil && !errors.Is(err, errEmptyBody) {
		writeCartBodyError(ctx, w, err)
		return
	}
	if len(body) > 0 {
		if err := json.Unmarshal(body, &req); err != nil {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "request body must be valid JSON", http.StatusBadRequest))
			return
		}
	}

	initiation, err := h.checkout.InitiatePayment(ctx, services.InitiatePaymentCommand{
		UserID:      identity.UID,
		OrderID:     orderID,
		CallbackURL: strings.TrimSpace(req.CallbackURL),
	})
	if err != nil {
		writeCheckoutError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, paymentInitiationResponse{
		OrderID:    initiation.OrderID,
		PaymentID:  initiation.PaymentID,
		PaymentURL: initiation.PaymentURL,
	})
}

func (h *CheckoutHandlers) verifyPayment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := h.requireIdentity(ctx, w)
	if !ok {
		return
	}

	orderID := strings.TrimSpace(chi.URLParam(r, "orderID"))
	if orderID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "order id is required", http.StatusBadRequest))
		return
	}

	var req verifyPaymentRequest
	body, err := readLimitedBody(r, maxCheckoutBodySize)
	if err != nil && !errors.Is(err, errEmptyBody) {
		writeCartBodyError(ctx, w, err)
		return
	}
	if len(body) > 0 {
		if err := json.Unmarshal(body, &req); err != nil {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "request body must be valid JSON", http.StatusBadRequest))
			return
		}
	}

	order, err := h.checkout.VerifyPayment(ctx, services.VerifyPaymentCommand{
		UserID:    identity.UID,
		OrderID:   orderID,
		PaymentID: strings.TrimSpace(req.PaymentID),
	})
	if err != nil {
		writeCheckoutError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, orderResponse{Order: buildOrderPayload(order)})
}

func (h *CheckoutHandlers) requireIdentity(ctx context.Context, w http.ResponseWriter) (*auth.Identity, bool) {
	if h.checkout == nil {
		httpx.WriteError(ctx, w, httpx.NewError("checkout_service_unavailable", "checkout service is unavailable", http.StatusServiceUnavailable))
		return nil, false
	}
	identity, ok := auth.IdentityFromContext(ctx)
	if !ok || identity == nil || strings.TrimSpace(identity.UID) == "" {
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return nil, false
	}
	return identity, true
}

type createOrderRequest struct {
	Items           []checkoutLineRequest `json:"items,omitempty"`
	CouponCode      string                `json:"coupon_code,omitempty"`
	ShippingAddress *addressPayload       `json:"shipping_address"`
	GSTDetails      *gstDetailsPayload    `json:"gst_details,omitempty"`
	PaymentMethod   string                `json:"payment_method"`
}

type checkoutLineRequest struct {
	ProductID string `json:"product_id"`
	VariantID string `json:"variant_id,omitempty"`
	Quantity  int64  `json:"quantity"`
	IsSample  bool   `json:"is_sample,omitempty"`
}

type initiatePaymentRequest struct {
	CallbackURL string `json:"callback_url,omitempty"`
}

type verifyPaymentRequest struct {
	PaymentID string `json:"payment_id,omitempty"`
}

type checkoutResponse struct {
	Order               orderPayload `json:"order"`
	PaymentInstructions string       `json:"payment_instructions,omitempty"`
}

type paymentInitiationResponse struct {
	OrderID    string `json:"order_id"`
	PaymentID  string `json:"payment_id"`
	PaymentURL string `json:"payment_url"`
}

func writeCheckoutError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	switch {
	case errors.Is(err, services.ErrCheckoutInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrCheckoutCartNotReady):
		httpx.WriteError(ctx, w, httpx.NewError("cart_not_ready", "cart is empty or not ready for checkout", http.StatusUnprocessableEntity))
	case errors.Is(err, services.ErrCheckoutItemUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("item_unavailable", err.Error(), http.StatusUnprocessableEntity))
	case errors.Is(err, services.ErrCheckoutInsufficientStock):
		httpx.WriteError(ctx, w, httpx.NewError("insufficient_stock", err.Error(), http.StatusConflict))
	case errors.Is(err, services.ErrCheckoutCouponRejected):
		httpx.WriteError(ctx, w, httpx.NewError("coupon_rejected", err.Error(), http.StatusUnprocessableEntity))
	case errors.Is(err, services.ErrCheckoutOrderNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("order_not_found", "order not found", http.StatusNotFound))
	case errors.Is(err, services.ErrCheckoutConflict):
		httpx.WriteError(ctx, w, httpx.NewError("checkout_conflict", err.Error(), http.StatusConflict))
	case errors.Is(err, services.ErrCheckoutPaymentFailed):
		httpx.WriteError(ctx, w, httpx.NewError("payment_failed", err.Error(), http.StatusBadGateway))
	case errors.Is(err, services.ErrCheckoutUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("checkout_service_unavailable", "checkout service is unavailable", http.StatusServiceUnavailable))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("checkout_error", "failed to process checkout request", http.StatusInternalServerError))
	}
}
