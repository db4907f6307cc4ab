package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	domain "github.com/solventline/api/internal/domain"
	"github.com/solventline/api/internal/platform/auth"
	"github.com/solventline/api/internal/services"
)

func TestCheckoutHandlersCreateOrderSuccess(t *testing.T) {
	var captured services.CreateOrderCommand
	service := &stubCheckoutService{
		createOrderFunc: func(ctx context.Context, cmd services.CreateOrderCommand) (services.Order, error) {
			captured = cmd
			return services.Order{
				ID:            "order-1",
				Number:        "SL-2025-00042",
				UserID:        cmd.UserID,
				Currency:      "INR",
				Subtotal:      129800,
				Tax:           23364,
				Discount:      5000,
				Total:         148164,
				CouponCode:    cmd.CouponCode,
				Status:        domain.OrderStatusPending,
				PaymentStatus: domain.PaymentStatusPending,
				PaymentMethod: cmd.PaymentMethod,
				Items: []services.OrderItem{
					{ProductID: "prod-1", VariantID: "var-2", Name: "Thinner NC-21", Size: "5L", UnitPrice: 64900, Quantity: 2},
				},
				ShippingAddress: cmd.ShippingAddress,
				Version:         1,
				CreatedAt:       time.Date(2025, 7, 1, 8, 0, 0, 0, time.UTC),
			}, nil
		},
	}

	handler := NewCheckoutHandlers(nil, service)
	router := chi.NewRouter()
	router.Route("/checkout", handler.Routes)

	body := `{
		"items":[{"product_id":"prod-1","variant_id":"var-2","quantity":2}],
		"coupon_code":"WELCOME10",
		"shipping_address":{"name":"Asha Rao","phone":"+919800000001","street":"14 Industrial Estate","city":"Pune","state":"MH","postal_code":"411001","country":"IN"},
		"payment_method":"PhonePe"
	}`
	req := httptest.NewRequest(http.MethodPost, "/checkout", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req = req.WithContext(auth.WithIdentity(req.Context(), &auth.Identity{UID: "user-1"}))

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d", rr.Code)
	}
	if captured.PaymentMethod != domain.PaymentMethodPhonePe {
		t.Fatalf("expected payment method normalised to phonepe, got %q", captured.PaymentMethod)
	}
	if captured.CouponCode != "WELCOME10" {
		t.Fatalf("expected coupon code captured, got %q", captured.CouponCode)
	}
	if len(captured.Items) != 1 || captured.Items[0].Quantity != 2 {
		t.Fatalf("unexpected items captured %#v", captured.Items)
	}

	var resp checkoutResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Order.Number != "SL-2025-00042" {
		t.Fatalf("expected order number SL-2025-00042, got %q", resp.Order.Number)
	}
	if resp.PaymentInstructions != "" {
		t.Fatalf("expected no payment instructions for gateway orders, got %q", resp.PaymentInstructions)
	}
}

func TestCheckoutHandlersCreateOrderBankTransferInstructions(t *testing.T) {
	service := &stubCheckoutService{
		createOrderFunc: func(ctx context.Context, cmd services.CreateOrderCommand) (services.Order, error) {
			return services.Order{
				ID:            "order-2",
				UserID:        cmd.UserID,
				Currency:      "INR",
				PaymentMethod: domain.PaymentMethodBankTransfer,
				Status:        domain.OrderStatusPending,
			}, nil
		},
	}

	handler := NewCheckoutHandlers(nil, service)
	router := chi.NewRouter()
	router.Route("/checkout", handler.Routes)

	body := `{"shipping_address":{"name":"Asha Rao","city":"Pune","country":"IN"},"payment_method":"bank_transfer"}`
	req := httptest.NewRequest(http.MethodPost, "/checkout", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req = req.WithContext(auth.WithIdentity(req.Context(), &auth.Identity{UID: "user-2"}))

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d", rr.Code)
	}

	var resp checkoutResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if !strings.Contains(resp.PaymentInstructions, "NEFT") {
		t.Fatalf("expected bank transfer instructions, got %q", resp.PaymentInstructions)
	}
}

func TestCheckoutHandlersCreateOrderRequiresShippingAddress(t *testing.T) {
	handler := NewCheckoutHandlers(nil, &stubCheckoutService{})
	router := chi.NewRouter()
	router.Route("/checkout", handler.Routes)

	req := httptest.NewRequest(http.MethodPost, "/checkout", strings.NewReader(`{"payment_method":"phonepe"}`))
	req.Header.Set("Content-Type", "application/json")
	req = req.WithContext(auth.WithIdentity(req.Context(), &auth.Identity{UID: "user-1"}))

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rr.Code)
	}
}

func TestCheckoutHandlersCreateOrderCartNotReady(t *testing.T) {
	service := &stubCheckoutService{
		createOrderFunc: func(ctx context.Context, cmd services.CreateOrderCommand) (services.Order, error) {
			return services.Order{}, services.ErrCheckoutCartNotReady
		},
	}

	handler := NewCheckoutHandlers(nil, service)
	router := chi.NewRouter()
	router.Route("/checkout", handler.Routes)

	body := `{"shipping_address":{"name":"A","city":"Pune","country":"IN"},"payment_method":"phonepe"}`
	req := httptest.NewRequest(http.MethodPost, "/checkout", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req = req.WithContext(auth.WithIdentity(req.Context(), &auth.Identity{UID: "user-1"}))

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected status 422, got %d", rr.Code)
	}
}

func TestCheckoutHandlersCreateOrderRateLimited(t *testing.T) {
	service := &stubCheckoutService{
		createOrderFunc: func(ctx context.Context, cmd services.CreateOrderCommand) (services.Order, error) {
			return services.Order{ID: "order-1", UserID: cmd.UserID, Currency: "INR"}, nil
		},
	}

	handler := NewCheckoutHandlers(nil, service, WithCheckoutRateLimit(1, time.Minute))
	router := chi.NewRouter()
	router.Route("/checkout", handler.Routes)

	body := `{"shipping_address":{"name":"A","city":"Pune","country":"IN"},"payment_method":"phonepe"}`

	for i, want := range []int{http.StatusCreated, http.StatusTooManyRequests} {
		req := httptest.NewRequest(http.MethodPost, "/checkout", strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		req = req.WithContext(auth.WithIdentity(req.Context(), &auth.Identity{UID: "user-burst"}))
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)
		if rr.Code != want {
			t.Fatalf("request %d: expected status %d, got %d", i, want, rr.Code)
		}
	}
}

func TestCheckoutHandlersIdempotencyMiddlewareApplied(t *testing.T) {
	var wrapped int
	mw := func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			wrapped++
			next.ServeHTTP(w, r)
		})
	}

	service := &stubCheckoutService{
		createOrderFunc: func(ctx context.Context, cmd services.CreateOrderCommand) (services.Order, error) {
			return services.Order{ID: "order-1", UserID: cmd.UserID, Currency: "INR"}, nil
		},
	}

	handler := NewCheckoutHandlers(nil, service, WithIdempotencyMiddleware(mw))
	router := chi.NewRouter()
	router.Route("/checkout", handler.Routes)

	body := `{"shipping_address":{"name":"A","city":"Pune","country":"IN"},"payment_method":"phonepe"}`
	req := httptest.NewRequest(http.MethodPost, "/checkout", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req = req.WithContext(auth.WithIdentity(req.Context(), &auth.Identity{UID: "user-1"}))

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d", rr.Code)
	}
	if wrapped != 1 {
		t.Fatalf("expected idempotency middleware invoked once, got %d", wrapped)
	}
}

func TestCheckoutHandlersInitiatePaymentSuccess(t *testing.T) {
	var captured services.InitiatePaymentCommand
	service := &stubCheckoutService{
		initiateFunc: func(ctx context.Context, cmd services.InitiatePaymentCommand) (services.PaymentInitiation, error) {
			captured = cmd
			return services.PaymentInitiation{
				OrderID:    cmd.OrderID,
				PaymentID:  "order-9",
				PaymentURL: "https://pay.example.com/redirect/abc",
			}, nil
		},
	}

	handler := NewCheckoutHandlers(nil, service)
	router := chi.NewRouter()
	router.Route("/checkout", handler.Routes)

	req := httptest.NewRequest(http.MethodPost, "/checkout/order-9/payments", strings.NewReader(`{"callback_url":"https://shop.example.com/return"}`))
	req.Header.Set("Content-Type", "application/json")
	req = req.WithContext(auth.WithIdentity(req.Context(), &auth.Identity{UID: "user-9"}))

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	if captured.OrderID != "order-9" || captured.CallbackURL != "https://shop.example.com/return" {
		t.Fatalf("unexpected command captured %#v", captured)
	}

	var resp paymentInitiationResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.PaymentURL == "" {
		t.Fatalf("expected payment url in response")
	}
}

func TestCheckoutHandlersInitiatePaymentEmptyBody(t *testing.T) {
	service := &stubCheckoutService{
		initiateFunc: func(ctx context.Context, cmd services.InitiatePaymentCommand) (services.PaymentInitiation, error) {
			return services.PaymentInitiation{OrderID: cmd.OrderID, PaymentID: cmd.OrderID, PaymentURL: "https://pay.example.com/x"}, nil
		},
	}

	handler := NewCheckoutHandlers(nil, service)
	router := chi.NewRouter()
	router.Route("/checkout", handler.Routes)

	req := httptest.NewRequest(http.MethodPost, "/checkout/order-3/payments", nil)
	req = req.WithContext(auth.WithIdentity(req.Context(), &auth.Identity{UID: "user-3"}))

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
}

func TestCheckoutHandlersInitiatePaymentGatewayFailure(t *testing.T) {
	service := &stubCheckoutService{
		initiateFunc: func(ctx context.Context, cmd services.InitiatePaymentCommand) (services.PaymentInitiation, error) {
			return services.PaymentInitiation{}, services.ErrCheckoutPaymentFailed
		},
	}

	handler := NewCheckoutHandlers(nil, service)
	router := chi.NewRouter()
	router.Route("/checkout", handler.Routes)

	req := httptest.NewRequest(http.MethodPost, "/checkout/order-3/payments", nil)
	req = req.WithContext(auth.WithIdentity(req.Context(), &auth.Identity{UID: "user-3"}))

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadGateway {
		t.Fatalf("expected status 502, got %d", rr.Code)
	}
}

func TestCheckoutHandlersVerifyPaymentSuccess(t *testing.T) {
	service := &stubCheckoutService{
		verifyFunc: func(ctx context.Context, cmd services.VerifyPaymentCommand) (services.Order, error) {
			if cmd.OrderID != "order-5" {
				t.Fatalf("unexpected order id %q", cmd.OrderID)
			}
			return services.Order{
				ID:            cmd.OrderID,
				UserID:        cmd.UserID,
				Currency:      "INR",
				Status:        domain.OrderStatusProcessing,
				PaymentStatus: domain.PaymentStatusPaid,
			}, nil
		},
	}

	handler := NewCheckoutHandlers(nil, service)
	router := chi.NewRouter()
	router.Route("/checkout", handler.Routes)

	req := httptest.NewRequest(http.MethodPost, "/checkout/order-5/payments/verify", nil)
	req = req.WithContext(auth.WithIdentity(req.Context(), &auth.Identity{UID: "user-5"}))

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}

	var resp orderResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Order.PaymentStatus != string(domain.PaymentStatusPaid) {
		t.Fatalf("expected payment status paid, got %q", resp.Order.PaymentStatus)
	}
}

func TestCheckoutHandlersUnauthenticated(t *testing.T) {
	handler := NewCheckoutHandlers(nil, &stubCheckoutService{})
	router := chi.NewRouter()
	router.Route("/checkout", handler.Routes)

	req := httptest.NewRequest(http.MethodPost, "/checkout", strings.NewReader(`{}`))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401, got %d", rr.Code)
	}
}

type stubCheckoutService struct {
	createOrderFunc func(ctx context.Context, cmd services.CreateOrderCommand) (services.Order, error)
	initiateFunc    func(ctx context.Context, cmd services.InitiatePaymentCommand) (services.PaymentInitiation, error)
	verifyFunc      func(ctx context.Context, cmd services.VerifyPaymentCommand) (services.Order, error)
}

func (s *stubCheckoutService) CreateOrder(ctx context.Context, cmd services.CreateOrderCommand) (services.Order, error) {
	if s.createOrderFunc != nil {
		return s.createOrderFunc(ctx, cmd)
	}
	return services.Order{}, errors.New("not implemented")
}

func (s *stubCheckoutService) InitiatePayment(ctx context.Context, cmd services.InitiatePaymentCommand) (services.PaymentInitiation, error) {
	if s.initiateFunc != nil {
		return s.initiateFunc(ctx, cmd)
	}
	return services.PaymentInitiation{}, errors.New("not implemented")
}

func (s *stubCheckoutService) VerifyPayment(ctx context.Context, cmd services.VerifyPaymentCommand) (services.Order, error) {
	if s.verifyFunc != nil {
		return s.verifyFunc(ctx, cmd)
	}
	return services.Order{}, errors.New("not implemented")
}
