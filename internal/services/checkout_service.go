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

const (
	orderNumberCounterID = "orders"
	orderNumberPrefix    = "SL"
	maxCheckoutLines     = 100
)

var (
	// ErrCheckoutInvalidInput indicates the caller supplied invalid input parameters.
	ErrCheckoutInvalidInput = errors.New("checkout: invalid input")
	// ErrCheckoutUnavailable indicates checkout dependencies are currently unavailable.
	ErrCheckoutUnavailable = errors.New("checkout: unavailable")
	// ErrCheckoutCartNotReady indicates there is nothing purchasable to check out.
	ErrCheckoutCartNotReady = errors.New("checkout: cart not ready")
	// ErrCheckoutItemUnavailable indicates a requested product or variant no longer exists.
	ErrCheckoutItemUnavailable = errors.New("checkout: item unavailable")
	// ErrCheckoutInsufficientStock indicates a line cannot be covered by current stock.
	ErrCheckoutInsufficientStock = errors.New("checkout: insufficient stock")
	// ErrCheckoutCouponRejected indicates the supplied coupon did not survive re-resolution.
	ErrCheckoutCouponRejected = errors.New("checkout: coupon rejected")
	// ErrCheckoutConflict indicates a concurrent modification prevented completing checkout.
	ErrCheckoutConflict = errors.New("checkout: conflict")
	// ErrCheckoutOrderNotFound indicates the order does not exist or belongs to another user.
	ErrCheckoutOrderNotFound = errors.New("checkout: order not found")
	// ErrCheckoutPaymentFailed indicates the gateway could not create or settle the payment.
	ErrCheckoutPaymentFailed = errors.New("checkout: payment failed")
)

// checkoutCatalog is the slice of CatalogService checkout needs to re-resolve lines.
type checkoutCatalog interface {
	GetProduct(ctx context.Context, productID string) (Product, error)
	GetVariant(ctx context.Context, productID, variantID string) (ProductVariant, error)
	AdjustStock(ctx context.Context, cmd AdjustStockCommand) (int64, error)
}

// CheckoutServiceDeps wires the dependencies required by the checkout service.
type CheckoutServiceDeps struct {
	Registry    repositories.Registry
	Catalog     checkoutCatalog
	Pricing     *CartPricingEngine
	Gateway     PaymentGateway
	Events      OrderEventPublisher
	Currency    string
	Clock       func() time.Time
	Logger      func(ctx context.Context, event string, fields map[string]any)
	IDGenerator func() string
}

type checkoutService struct {
	registry repositories.Registry
	catalog  checkoutCatalog
	pricing  *CartPricingEngine
	gateway  PaymentGateway
	events   OrderEventPublisher
	currency string
	now      func() time.Time
	logger   func(ctx context.Context, event string, fields map[string]any)
	idgen    func() string
}

// NewCheckoutService constructs a CheckoutService validating required dependencies.
func NewCheckoutService(deps CheckoutServiceDeps) (CheckoutService, error) {
	if deps.Registry == nil {
		return nil, errors.New("checkout service: repository registry is required")
	}
	if deps.Catalog == nil {
		return nil, errors.New("checkout service: catalog service is required")
	}
	if deps.Pricing == nil {
		return nil, errors.New("checkout service: pricing engine is required")
	}
	if deps.Gateway == nil {
		return nil, errors.New("checkout service: payment gateway is required")
	}

	currency := strings.ToUpper(strings.TrimSpace(deps.Currency))
	if currency == "" {
		currency = "INR"
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

	return &checkoutService{
		registry: deps.Registry,
		catalog:  deps.Catalog,
		pricing:  deps.Pricing,
		gateway:  deps.Gateway,
		events:   deps.Events,
		currency: currency,
		now:      func() time.Time { return clock().UTC() },
		logger:   logger,
		idgen:    idgen,
	}, nil
}

// CreateOrder re-resolves every line against the catalog, prices the order
// server-side and persists it atomically with its sequence number. Client
// supplied prices never enter the order.
func (s *checkoutService) CreateOrder(ctx context.Context, cmd CreateOrderCommand) (domain.Order, error) {
	userID := strings.TrimSpace(cmd.UserID)
	if userID == "" {
		return domain.Order{}, fmt.Errorf("%w: user id is required", ErrCheckoutInvalidInput)
	}
	if cmd.PaymentMethod != domain.PaymentMethodPhonePe && cmd.PaymentMethod != domain.PaymentMethodBankTransfer {
		return domain.Order{}, fmt.Errorf("%w: unsupported payment method %q", ErrCheckoutInvalidInput, cmd.PaymentMethod)
	}
	if err := validateShippingAddress(cmd.ShippingAddress); err != nil {
		return domain.Order{}, err
	}
	if cmd.GSTDetails != nil && strings.TrimSpace(cmd.GSTDetails.GSTNumber) == "" {
		return domain.Order{}, fmt.Errorf("%w: gst number is required for gst invoices", ErrCheckoutInvalidInput)
	}

	lines, fromCart, err := s.resolveLines(ctx, userID, cmd.Items)
	if err != nil {
		return domain.Order{}, err
	}

	pricing, err := s.pricing.Calculate(ctx, PriceCartCommand{
		Currency:   s.currency,
		Items:      lines,
		CouponCode: cmd.CouponCode,
	})
	if err != nil {
		switch {
		case errors.Is(err, ErrCouponNotFound), errors.Is(err, ErrCouponInactive), errors.Is(err, ErrCouponMinOrder), errors.Is(err, ErrCouponInvalidInput):
			return domain.Order{}, fmt.Errorf("%w: %v", ErrCheckoutCouponRejected, err)
		case errors.Is(err, ErrCartPricingInvalidInput), errors.Is(err, ErrCartPricingCurrencyMismatch):
			return domain.Order{}, fmt.Errorf("%w: %v", ErrCheckoutInvalidInput, err)
		default:
			return domain.Order{}, fmt.Errorf("%w: %v", ErrCheckoutUnavailable, err)
		}
	}

	now := s.now()
	order := domain.Order{
		ID:              s.idgen(),
		UserID:          userID,
		Items:           buildOrderItems(lines),
		Currency:        pricing.Currency,
		Subtotal:        pricing.Subtotal,
		Tax:             pricing.Tax,
		Discount:        pricing.Discount,
		Total:           pricing.Total,
		Status:          domain.OrderStatusPending,
		PaymentStatus:   domain.PaymentStatusPending,
		PaymentMethod:   cmd.PaymentMethod,
		ShippingAddress: normaliseAddress(cmd.ShippingAddress),
		Version:         1,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if pricing.Coupon != nil {
		order.CouponCode = pricing.Coupon.Code
	}
	if cmd.GSTDetails != nil {
		gst := *cmd.GSTDetails
		gst.GSTNumber = strings.ToUpper(strings.TrimSpace(gst.GSTNumber))
		gst.BusinessName = strings.TrimSpace(gst.BusinessName)
		order.GSTDetails = &gst
	}

	err = s.registry.RunInTx(ctx, func(txCtx context.Context) error {
		seq, err := s.registry.Counters().Next(txCtx, orderNumberCounterID, 1)
		if err != nil {
			return err
		}
		order.Number = fmt.Sprintf("%s-%d-%05d", orderNumberPrefix, now.Year(), seq)
		return s.registry.Orders().Insert(txCtx, order)
	})
	if err != nil {
		return domain.Order{}, s.translateRepoError(err)
	}

	s.logger(ctx, "checkout.order_created", map[string]any{
		"orderId":       order.ID,
		"orderNumber":   order.Number,
		"userId":        userID,
		"total":         order.Total,
		"paymentMethod": string(order.PaymentMethod),
	})

	s.decrementStock(ctx, order)
	if fromCart {
		s.clearCart(ctx, userID)
	}
	s.publishEvent(ctx, OrderEvent{
		Type:       "order.created",
		OrderID:    order.ID,
		UserID:     userID,
		Status:     order.Status,
		OccurredAt: now,
		Metadata:   map[string]any{"orderNumber": order.Number, "total": order.Total},
	})

	return order, nil
}

// InitiatePayment starts (or restarts) the hosted pay-page session for a
// pending order. The order id doubles as the merchant transaction id, so
// repeated calls for the same order stay idempotent at the gateway.
func (s *checkoutService) InitiatePayment(ctx context.Context, cmd InitiatePaymentCommand) (PaymentInitiation, error) {
	orderID := strings.TrimSpace(cmd.OrderID)
	if orderID == "" {
		return PaymentInitiation{}, fmt.Errorf("%w: order id is required", ErrCheckoutInvalidInput)
	}

	order, err := s.loadOwnedOrder(ctx, orderID, cmd.UserID)
	if err != nil {
		return PaymentInitiation{}, err
	}
	if order.PaymentMethod != domain.PaymentMethodPhonePe {
		return PaymentInitiation{}, fmt.Errorf("%w: order %s is not gateway settled", ErrCheckoutInvalidInput, orderID)
	}
	if order.PaymentStatus == domain.PaymentStatusPaid {
		return PaymentInitiation{}, fmt.Errorf("%w: order %s already paid", ErrCheckoutInvalidInput, orderID)
	}
	if order.Status != domain.OrderStatusPending {
		return PaymentInitiation{}, fmt.Errorf("%w: order %s is not payable", ErrCheckoutInvalidInput, orderID)
	}

	result, err := s.gateway.Initiate(ctx, GatewayInitiateRequest{
		OrderID:     order.ID,
		UserID:      order.UserID,
		Amount:      order.Total,
		CallbackURL: strings.TrimSpace(cmd.CallbackURL),
	})
	if err != nil {
		s.logger(ctx, "checkout.payment_initiate_failed", map[string]any{
			"orderId": order.ID,
			"error":   err.Error(),
		})
		return PaymentInitiation{}, fmt.Errorf("%w: %v", ErrCheckoutPaymentFailed, err)
	}

	dirty := false
	if result.PaymentID != "" && result.PaymentID != order.PaymentID {
		order.PaymentID = result.PaymentID
		dirty = true
	}
	if order.PaymentStatus == domain.PaymentStatusFailed {
		// A declined charge is not terminal for the order. Re-initiation opens
		// a fresh settlement attempt under the same merchant transaction id.
		order.PaymentStatus = domain.PaymentStatusPending
		dirty = true
	}
	if dirty {
		order.Version++
		order.UpdatedAt = s.now()
		if err := s.registry.Orders().Update(ctx, order); err != nil {
			return PaymentInitiation{}, s.translateRepoError(err)
		}
	}

	s.logger(ctx, "checkout.payment_initiated", map[string]any{
		"orderId":   order.ID,
		"paymentId": result.PaymentID,
	})
	return PaymentInitiation{
		OrderID:    order.ID,
		PaymentID:  result.PaymentID,
		PaymentURL: result.PaymentURL,
	}, nil
}

// VerifyPayment reconciles the gateway's settlement state into the order.
// Replays are safe: a paid order returns as-is and a failed one stays failed.
func (s *checkoutService) VerifyPayment(ctx context.Context, cmd VerifyPaymentCommand) (domain.Order, error) {
	orderID := strings.TrimSpace(cmd.OrderID)
	if orderID == "" {
		return domain.Order{}, fmt.Errorf("%w: order id is required", ErrCheckoutInvalidInput)
	}

	order, err := s.loadOwnedOrder(ctx, orderID, cmd.UserID)
	if err != nil {
		return domain.Order{}, err
	}
	if order.PaymentStatus == domain.PaymentStatusPaid {
		return order, nil
	}
	if order.PaymentMethod != domain.PaymentMethodPhonePe {
		return domain.Order{}, fmt.Errorf("%w: order %s is not gateway settled", ErrCheckoutInvalidInput, orderID)
	}

	verdict, err := s.gateway.Verify(ctx, GatewayVerifyRequest{
		OrderID:   order.ID,
		PaymentID: strings.TrimSpace(cmd.PaymentID),
	})
	if err != nil {
		s.logger(ctx, "checkout.payment_verify_failed", map[string]any{
			"orderId": order.ID,
			"error":   err.Error(),
		})
		return domain.Order{}, fmt.Errorf("%w: %v", ErrCheckoutPaymentFailed, err)
	}

	switch verdict.Status {
	case domain.PaymentStatusPaid:
		updated, err := s.settleOrder(ctx, order.ID, verdict)
		if err != nil {
			return domain.Order{}, err
		}
		s.publishEvent(ctx, OrderEvent{
			Type:       "order.status_changed",
			OrderID:    updated.ID,
			UserID:     updated.UserID,
			Status:     updated.Status,
			OccurredAt: updated.UpdatedAt,
			Metadata:   map[string]any{"paymentStatus": string(updated.PaymentStatus), "gatewayCode": verdict.Code},
		})
		return updated, nil
	case domain.PaymentStatusFailed:
		order.PaymentStatus = domain.PaymentStatusFailed
		order.Version++
		order.UpdatedAt = s.now()
		if err := s.registry.Orders().Update(ctx, order); err != nil {
			return domain.Order{}, s.translateRepoError(err)
		}
		s.logger(ctx, "checkout.payment_failed", map[string]any{
			"orderId":     order.ID,
			"gatewayCode": verdict.Code,
		})
		return order, nil
	default:
		return order, nil
	}
}

// settleOrder re-reads the order inside the transaction so a concurrent
// verification cannot double-apply the settlement.
func (s *checkoutService) settleOrder(ctx context.Context, orderID string, verdict GatewayVerifyResult) (domain.Order, error) {
	var settled domain.Order
	err := s.registry.RunInTx(ctx, func(txCtx context.Context) error {
		order, err := s.registry.Orders().FindByID(txCtx, orderID)
		if err != nil {
			return err
		}
		if order.PaymentStatus == domain.PaymentStatusPaid {
			settled = order
			return nil
		}
		order.PaymentStatus = domain.PaymentStatusPaid
		if order.Status == domain.OrderStatusPending {
			order.Status = domain.OrderStatusProcessing
		}
		if verdict.Code != "" {
			order.PaymentID = firstNonEmpty(order.PaymentID, verdict.Code)
		}
		order.Version++
		order.UpdatedAt = s.now()
		if err := s.registry.Orders().Update(txCtx, order); err != nil {
			return err
		}
		settled = order
		return nil
	})
	if err != nil {
		return domain.Order{}, s.translateRepoError(err)
	}
	s.logger(ctx, "checkout.payment_settled", map[string]any{
		"orderId":     settled.ID,
		"orderStatus": string(settled.Status),
	})
	return settled, nil
}

// resolveLines turns the requested lines into catalog-priced cart items.
// With no explicit lines the stored cart supplies them; either way prices
// and availability come from the catalog at this moment.
func (s *checkoutService) resolveLines(ctx context.Context, userID string, requested []CheckoutLine) ([]domain.CartItem, bool, error) {
	fromCart := false
	if len(requested) == 0 {
		cart, err := s.registry.Carts().GetCart(ctx, userID)
		if err != nil {
			if isRepoNotFound(err) {
				return nil, false, ErrCheckoutCartNotReady
			}
			return nil, false, s.translateRepoError(err)
		}
		if len(cart.Items) == 0 {
			return nil, false, ErrCheckoutCartNotReady
		}
		requested = make([]CheckoutLine, 0, len(cart.Items))
		for _, item := range cart.Items {
			requested = append(requested, CheckoutLine{
				ProductID: item.ProductID,
				VariantID: item.VariantID,
				Quantity:  item.Quantity,
				IsSample:  item.IsSample,
			})
		}
		fromCart = true
	}
	if len(requested) > maxCheckoutLines {
		return nil, false, fmt.Errorf("%w: too many lines", ErrCheckoutInvalidInput)
	}

	lines := make([]domain.CartItem, 0, len(requested))
	for idx, line := range requested {
		productID := strings.TrimSpace(line.ProductID)
		if productID == "" {
			return nil, false, fmt.Errorf("%w: line %d missing product id", ErrCheckoutInvalidInput, idx)
		}
		if line.Quantity <= 0 {
			return nil, false, fmt.Errorf("%w: line %d quantity must be positive", ErrCheckoutInvalidInput, idx)
		}

		item, err := s.resolveLine(ctx, productID, line)
		if err != nil {
			return nil, false, err
		}
		item.LineID = fmt.Sprintf("line-%d", idx+1)
		lines = append(lines, item)
	}
	return lines, fromCart, nil
}

func (s *checkoutService) resolveLine(ctx context.Context, productID string, line CheckoutLine) (domain.CartItem, error) {
	product, err := s.catalog.GetProduct(ctx, productID)
	if err != nil {
		if errors.Is(err, ErrCatalogNotFound) {
			return domain.CartItem{}, fmt.Errorf("%w: product %s", ErrCheckoutItemUnavailable, productID)
		}
		return domain.CartItem{}, fmt.Errorf("%w: %v", ErrCheckoutUnavailable, err)
	}

	if line.IsSample {
		if !product.SampleAvailable {
			return domain.CartItem{}, fmt.Errorf("%w: product %s has no sample", ErrCheckoutItemUnavailable, productID)
		}
		return domain.CartItem{
			ProductID: productID,
			Name:      product.Name,
			Image:     product.MainImage,
			UnitPrice: product.SamplePrice,
			Quantity:  1,
			IsSample:  true,
		}, nil
	}

	variantID := strings.TrimSpace(line.VariantID)
	if variantID == "" {
		return domain.CartItem{}, fmt.Errorf("%w: variant id is required", ErrCheckoutInvalidInput)
	}
	variant, err := s.catalog.GetVariant(ctx, productID, variantID)
	if err != nil {
		if errors.Is(err, ErrCatalogNotFound) {
			return domain.CartItem{}, fmt.Errorf("%w: variant %s/%s", ErrCheckoutItemUnavailable, productID, variantID)
		}
		return domain.CartItem{}, fmt.Errorf("%w: %v", ErrCheckoutUnavailable, err)
	}
	if variant.Stock < line.Quantity {
		return domain.CartItem{}, fmt.Errorf("%w: variant %s/%s has %d left", ErrCheckoutInsufficientStock, productID, variantID, variant.Stock)
	}

	image := variant.Image
	if image == "" {
		image = product.MainImage
	}
	return domain.CartItem{
		ProductID: productID,
		VariantID: variantID,
		Name:      product.Name,
		Size:      variant.Size,
		Image:     image,
		UnitPrice: variant.Price,
		Quantity:  line.Quantity,
	}, nil
}

func (s *checkoutService) loadOwnedOrder(ctx context.Context, orderID, userID string) (domain.Order, error) {
	order, err := s.registry.Orders().FindByID(ctx, orderID)
	if err != nil {
		if isRepoNotFound(err) {
			return domain.Order{}, fmt.Errorf("%w: %s", ErrCheckoutOrderNotFound, orderID)
		}
		return domain.Order{}, s.translateRepoError(err)
	}
	if userID = strings.TrimSpace(userID); userID != "" && order.UserID != userID {
		return domain.Order{}, fmt.Errorf("%w: %s", ErrCheckoutOrderNotFound, orderID)
	}
	return order, nil
}

// decrementStock applies the sold quantities after the order committed.
// Failures are logged for manual reconciliation rather than undoing the sale.
func (s *checkoutService) decrementStock(ctx context.Context, order domain.Order) {
	for _, item := range order.Items {
		if item.IsSample || item.VariantID == "" {
			continue
		}
		_, err := s.catalog.AdjustStock(ctx, AdjustStockCommand{
			ProductID: item.ProductID,
			VariantID: item.VariantID,
			Delta:     -item.Quantity,
		})
		if err != nil {
			s.logger(ctx, "checkout.stock_decrement_failed", map[string]any{
				"orderId":   order.ID,
				"productId": item.ProductID,
				"variantId": item.VariantID,
				"error":     err.Error(),
			})
		}
	}
}

func (s *checkoutService) clearCart(ctx context.Context, userID string) {
	if _, err := s.registry.Carts().ReplaceItems(ctx, userID, nil, nil); err != nil && !isRepoNotFound(err) {
		s.logger(ctx, "checkout.cart_clear_failed", map[string]any{
			"userId": userID,
			"error":  err.Error(),
		})
	}
}

func (s *checkoutService) publishEvent(ctx context.Context, event OrderEvent) {
	if s.events == nil {
		return
	}
	if err := s.events.PublishOrderEvent(ctx, event); err != nil {
		s.logger(ctx, "checkout.event_publish_failed", map[string]any{
			"orderId": event.OrderID,
			"type":    event.Type,
			"error":   err.Error(),
		})
	}
}

func (s *checkoutService) translateRepoError(err error) error {
	switch {
	case err == nil:
		return nil
	case isRepoNotFound(err):
		return fmt.Errorf("%w: %v", ErrCheckoutOrderNotFound, err)
	case isRepoConflict(err):
		return fmt.Errorf("%w: %v", ErrCheckoutConflict, err)
	default:
		return fmt.Errorf("%w: %v", ErrCheckoutUnavailable, err)
	}
}

func validateShippingAddress(addr Address) error {
	switch {
	case strings.TrimSpace(addr.Name) == "":
		return fmt.Errorf("%w: recipient name is required", ErrCheckoutInvalidInput)
	case strings.TrimSpace(addr.Phone) == "":
		return fmt.Errorf("%w: contact phone is required", ErrCheckoutInvalidInput)
	case strings.TrimSpace(addr.Street) == "":
		return fmt.Errorf("%w: street is required", ErrCheckoutInvalidInput)
	case strings.TrimSpace(addr.City) == "":
		return fmt.Errorf("%w: city is required", ErrCheckoutInvalidInput)
	case strings.TrimSpace(addr.State) == "":
		return fmt.Errorf("%w: state is required", ErrCheckoutInvalidInput)
	case strings.TrimSpace(addr.PostalCode) == "":
		return fmt.Errorf("%w: postal code is required", ErrCheckoutInvalidInput)
	}
	return nil
}

func normaliseAddress(addr Address) Address {
	out := Address{
		Name:       strings.TrimSpace(addr.Name),
		Email:      strings.TrimSpace(addr.Email),
		Phone:      strings.TrimSpace(addr.Phone),
		Street:     strings.TrimSpace(addr.Street),
		City:       strings.TrimSpace(addr.City),
		State:      strings.TrimSpace(addr.State),
		PostalCode: strings.TrimSpace(addr.PostalCode),
		Country:    strings.TrimSpace(addr.Country),
	}
	if out.Country == "" {
		out.Country = "India"
	}
	return out
}

func buildOrderItems(lines []domain.CartItem) []domain.OrderItem {
	items := make([]domain.OrderItem, 0, len(lines))
	for _, line := range lines {
		items = append(items, domain.OrderItem{
			ProductID: line.ProductID,
			VariantID: line.VariantID,
			Name:      line.Name,
			Size:      line.Size,
			UnitPrice: line.UnitPrice,
			Quantity:  line.Quantity,
			IsSample:  line.IsSample,
		})
	}
	return items
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if strings.TrimSpace(value) != "" {
			return value
		}
	}
	return ""
}
