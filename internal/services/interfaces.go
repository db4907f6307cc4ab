package services

import (
	"context"
	"time"

	domain "github.com/solventline/api/internal/domain"
	"github.com/solventline/api/internal/repositories"
)

// Type aliases expose domain models to the services package without reversing dependency direction.
type (
	Pagination         = domain.Pagination
	Product            = domain.Product
	ProductVariant     = domain.ProductVariant
	Cart               = domain.Cart
	CartItem           = domain.CartItem
	CartPricing        = domain.CartPricing
	ItemPricing        = domain.ItemPricing
	AppliedCoupon      = domain.AppliedCoupon
	Coupon             = domain.Coupon
	Order              = domain.Order
	OrderItem          = domain.OrderItem
	OrderStatus        = domain.OrderStatus
	PaymentStatus      = domain.PaymentStatus
	PaymentMethod      = domain.PaymentMethod
	Address            = domain.Address
	GSTDetails         = domain.GSTDetails
	UserProfile        = domain.UserProfile
	SystemHealthReport = domain.SystemHealthReport
)

// CatalogService exposes the public product catalog and admin maintenance
// operations.
type CatalogService interface {
	ListProducts(ctx context.Context, filter ProductListFilter) (domain.CursorPage[Product], error)
	GetProduct(ctx context.Context, productID string) (Product, error)
	GetProductBySlug(ctx context.Context, slug string) (Product, error)
	GetVariant(ctx context.Context, productID string, variantID string) (ProductVariant, error)
	UpsertProduct(ctx context.Context, cmd UpsertProductCommand) (Product, error)
	DeleteProduct(ctx context.Context, productID string) error
	UpsertVariant(ctx context.Context, cmd UpsertVariantCommand) (ProductVariant, error)
	DeleteVariant(ctx context.Context, productID string, variantID string) error
	AdjustStock(ctx context.Context, cmd AdjustStockCommand) (int64, error)
}

// CartService manages the per-user append-only cart.
type CartService interface {
	GetOrCreateCart(ctx context.Context, userID string) (Cart, error)
	AddItem(ctx context.Context, cmd AddCartItemCommand) (Cart, error)
	UpdateQuantity(ctx context.Context, cmd UpdateCartQuantityCommand) (Cart, error)
	RemoveItem(ctx context.Context, cmd RemoveCartItemCommand) (Cart, error)
	ClearCart(ctx context.Context, userID string) error
}

// CouponService resolves discount codes and owns admin coupon maintenance.
type CouponService interface {
	// Resolve validates a code against the activity window, minimum order
	// value and computes the discount for the given pre-discount amounts.
	Resolve(ctx context.Context, cmd ResolveCouponCommand) (CouponResolution, error)
	ListCoupons(ctx context.Context, filter CouponListFilter) (domain.CursorPage[Coupon], error)
	CreateCoupon(ctx context.Context, cmd UpsertCouponCommand) (Coupon, error)
	UpdateCoupon(ctx context.Context, cmd UpsertCouponCommand) (Coupon, error)
	DeleteCoupon(ctx context.Context, couponID string) error
}

// CheckoutService turns a cart into an order with authoritative pricing and
// drives the payment lifecycle.
type CheckoutService interface {
	CreateOrder(ctx context.Context, cmd CreateOrderCommand) (Order, error)
	InitiatePayment(ctx context.Context, cmd InitiatePaymentCommand) (PaymentInitiation, error)
	VerifyPayment(ctx context.Context, cmd VerifyPaymentCommand) (Order, error)
}

// OrderService encapsulates the order ledger read/write flows.
type OrderService interface {
	ListOrders(ctx context.Context, filter OrderListFilter) (domain.CursorPage[Order], error)
	GetOrder(ctx context.Context, orderID string) (Order, error)
	TransitionStatus(ctx context.Context, cmd OrderStatusTransitionCommand) (Order, error)
	Cancel(ctx context.Context, cmd CancelOrderCommand) (Order, error)
}

// UserService manages storefront profiles.
type UserService interface {
	GetProfile(ctx context.Context, userID string) (UserProfile, error)
	UpdateProfile(ctx context.Context, cmd UpdateProfileCommand) (UserProfile, error)
	ListUsers(ctx context.Context, filter UserListFilter) (domain.CursorPage[UserProfile], error)
}

// SystemService aggregates utility endpoints (health checks, counters).
type SystemService interface {
	HealthReport(ctx context.Context) (SystemHealthReport, error)
	NextCounterValue(ctx context.Context, cmd CounterCommand) (int64, error)
}

// OrderEventPublisher accepts order lifecycle notifications for downstream processing.
type OrderEventPublisher interface {
	PublishOrderEvent(ctx context.Context, event OrderEvent) error
}

// PaymentGateway abstracts the hosted pay-page provider used by checkout.
type PaymentGateway interface {
	Initiate(ctx context.Context, req GatewayInitiateRequest) (GatewayInitiateResult, error)
	Verify(ctx context.Context, req GatewayVerifyRequest) (GatewayVerifyResult, error)
}

// Command and DTO definitions ------------------------------------------------

type ProductListFilter struct {
	Slug       *string
	SampleOnly bool
	Pagination Pagination
}

type UpsertProductCommand struct {
	Product Product
	ActorID string
}

type UpsertVariantCommand struct {
	Variant ProductVariant
	ActorID string
}

type AdjustStockCommand struct {
	ProductID string
	VariantID string
	Delta     int64
	ActorID   string
}

type AddCartItemCommand struct {
	UserID    string
	ProductID string
	VariantID string
	Quantity  int64
	IsSample  bool
}

type UpdateCartQuantityCommand struct {
	UserID   string
	LineID   string
	Quantity int64
}

type RemoveCartItemCommand struct {
	UserID string
	LineID string
}

type ResolveCouponCommand struct {
	Code     string
	Subtotal int64
	Tax      int64
	Now      *time.Time
}

// CouponResolution reports the matched coupon and the discount it grants
// against the amounts supplied at resolution time.
type CouponResolution struct {
	Coupon   Coupon
	Discount int64
}

type CouponListFilter struct {
	ActiveOnly bool
	Pagination Pagination
}

type UpsertCouponCommand struct {
	Coupon  Coupon
	ActorID string
}

// CheckoutLine identifies a purchasable unit requested at checkout. Prices
// never travel on the line; the catalog is authoritative.
type CheckoutLine struct {
	ProductID string
	VariantID string
	Quantity  int64
	IsSample  bool
}

type CreateOrderCommand struct {
	UserID          string
	Items           []CheckoutLine
	CouponCode      string
	ShippingAddress Address
	GSTDetails      *GSTDetails
	PaymentMethod   PaymentMethod
}

type InitiatePaymentCommand struct {
	UserID      string
	OrderID     string
	CallbackURL string
}

// PaymentInitiation carries the hosted pay-page redirect handed back to the client.
type PaymentInitiation struct {
	OrderID    string
	PaymentID  string
	PaymentURL string
}

type VerifyPaymentCommand struct {
	UserID    string
	OrderID   string
	PaymentID string
}

type OrderListFilter = repositories.OrderListFilter

type UserListFilter struct {
	Role       *string
	Pagination Pagination
}

type OrderStatusTransitionCommand struct {
	OrderID         string
	TargetStatus    OrderStatus
	ActorID         string
	Reason          string
	ExpectedVersion int64
}

type CancelOrderCommand struct {
	OrderID string
	ActorID string
	Reason  string
}

type UpdateProfileCommand struct {
	UserID         string
	ActorID        string
	DisplayName    *string
	Phone          *string
	Locale         *string
	DefaultAddress *Address
	GSTDetails     *GSTDetails
}

type CounterCommand struct {
	CounterID string
	Step      int64
}

// GatewayInitiateRequest starts a hosted pay-page session. Amount is paise.
type GatewayInitiateRequest struct {
	OrderID     string
	UserID      string
	Amount      int64
	CallbackURL string
}

// GatewayInitiateResult reports the redirect target for the pay page.
type GatewayInitiateResult struct {
	PaymentID  string
	PaymentURL string
}

// GatewayVerifyRequest checks the settlement state for a transaction.
type GatewayVerifyRequest struct {
	OrderID   string
	PaymentID string
}

// GatewayVerifyResult carries the normalised settlement outcome.
type GatewayVerifyResult struct {
	Status PaymentStatus
	Code   string
}

// OrderEvent is the payload published on order lifecycle changes.
type OrderEvent struct {
	Type       string
	OrderID    string
	UserID     string
	Status     OrderStatus
	OccurredAt time.Time
	Metadata   map[string]any
}
