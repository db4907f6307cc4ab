package domain

import (
	"time"
)

// Pagination defines standard cursor-based paging inputs for list operations.
type Pagination struct {
	PageSize  int
	PageToken string
}

// SortOrder indicates ascending or descending ordering for list queries.
type SortOrder string

const (
	// SortAsc sorts results in ascending order.
	SortAsc SortOrder = "asc"
	// SortDesc sorts results in descending order.
	SortDesc SortOrder = "desc"
)

// RangeQuery represents inclusive range filters for numeric or timestamp fields.
type RangeQuery[T comparable] struct {
	From *T
	To   *T
}

// CursorPage wraps a page of results together with the token for the next page.
type CursorPage[T any] struct {
	Items         []T
	NextPageToken string
}

// Product is a catalog entry for a thinner line sold in multiple pack sizes.
// Monetary fields across the domain are INR minor units (paise).
type Product struct {
	ID              string
	Name            string
	Slug            string
	Description     string
	Features        []string
	MainImage       string
	SampleAvailable bool
	SamplePrice     int64
	Variants        []ProductVariant
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// ProductVariant is a purchasable pack size of a product.
type ProductVariant struct {
	ID        string
	ProductID string
	Size      string
	Price     int64
	Stock     int64
	Image     string
	UpdatedAt time.Time
}

// Cart is the per-user working cart. Lines are append-only and addressed
// by LineID; identical product/variant pairs may occupy multiple lines.
type Cart struct {
	ID        string
	UserID    string
	Currency  string
	Items     []CartItem
	CreatedAt time.Time
	UpdatedAt time.Time
}

// CartItem is a single cart line. Name, Size and UnitPrice are display
// snapshots taken at add time; checkout re-resolves prices from the catalog.
type CartItem struct {
	LineID    string
	ProductID string
	VariantID string
	Name      string
	Size      string
	Image     string
	UnitPrice int64
	Quantity  int64
	IsSample  bool
}

// DiscountType enumerates the supported coupon mechanics.
type DiscountType string

const (
	// DiscountTypePercentage discounts a percentage of the subtotal.
	DiscountTypePercentage DiscountType = "percentage"
	// DiscountTypeFixed discounts a fixed paise amount.
	DiscountTypeFixed DiscountType = "fixed"
)

// Coupon is a storefront discount code. DiscountValue is a whole percent
// for percentage coupons and paise for fixed coupons. MaxDiscount caps
// percentage discounts; zero means uncapped.
type Coupon struct {
	ID            string
	Code          string
	DiscountType  DiscountType
	DiscountValue int64
	MinOrderValue int64
	MaxDiscount   int64
	StartsAt      time.Time
	ExpiresAt     time.Time
	Active        bool
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// OrderStatus tracks fulfilment progress.
type OrderStatus string

const (
	// OrderStatusPending marks a freshly created, unsettled order.
	OrderStatusPending OrderStatus = "pending"
	// OrderStatusProcessing marks a paid order being prepared.
	OrderStatusProcessing OrderStatus = "processing"
	// OrderStatusShipped marks an order handed to the carrier.
	OrderStatusShipped OrderStatus = "shipped"
	// OrderStatusDelivered marks a completed order.
	OrderStatusDelivered OrderStatus = "delivered"
	// OrderStatusCancelled marks a terminated order.
	OrderStatusCancelled OrderStatus = "cancelled"
)

// PaymentStatus tracks settlement independently of fulfilment.
type PaymentStatus string

const (
	// PaymentStatusPending means no successful charge has been recorded.
	PaymentStatusPending PaymentStatus = "pending"
	// PaymentStatusPaid means the gateway confirmed the charge.
	PaymentStatusPaid PaymentStatus = "paid"
	// PaymentStatusFailed means the gateway reported a terminal failure.
	PaymentStatusFailed PaymentStatus = "failed"
)

// PaymentMethod selects how an order is settled.
type PaymentMethod string

const (
	// PaymentMethodPhonePe settles through the hosted pay page.
	PaymentMethodPhonePe PaymentMethod = "phonepe"
	// PaymentMethodBankTransfer settles offline by NEFT/RTGS.
	PaymentMethodBankTransfer PaymentMethod = "bank_transfer"
)

// Address is a shipping or billing address.
type Address struct {
	Name       string
	Email      string
	Phone      string
	Street     string
	City       string
	State      string
	PostalCode string
	Country    string
}

// GSTDetails carries the buyer's GST registration for B2B invoices.
type GSTDetails struct {
	GSTNumber    string
	BusinessName string
	Address      Address
}

// Order is the persisted order header. Items are denormalized snapshots
// so later catalog edits never rewrite history. Version guards status
// transitions with compare-and-swap semantics.
type Order struct {
	ID              string
	Number          string
	UserID          string
	Items           []OrderItem
	Currency        string
	Subtotal        int64
	Tax             int64
	Discount        int64
	Total           int64
	CouponCode      string
	Status          OrderStatus
	PaymentStatus   PaymentStatus
	PaymentMethod   PaymentMethod
	PaymentID       string
	ShippingAddress Address
	GSTDetails      *GSTDetails
	Version         int64
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// OrderItem is a priced line captured at order creation.
type OrderItem struct {
	ProductID string
	VariantID string
	Name      string
	Size      string
	UnitPrice int64
	Quantity  int64
	IsSample  bool
}

// UserProfile stores storefront account details beyond the auth record.
type UserProfile struct {
	UID            string
	Email          string
	DisplayName    string
	Phone          string
	Locale         string
	DefaultAddress *Address
	GSTDetails     *GSTDetails
	Roles          []string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}
