package domain

// CartPricing captures the aggregated monetary results of pricing a cart.
// All amounts are paise.
type CartPricing struct {
	Currency string
	Subtotal int64
	Tax      int64
	Discount int64
	Shipping int64
	Total    int64
	Items    []ItemPricing
	Coupon   *AppliedCoupon
}

// ItemPricing stores the per-line pricing outputs after running the engine.
type ItemPricing struct {
	LineID    string
	ProductID string
	VariantID string
	UnitPrice int64
	Quantity  int64
	Subtotal  int64
}

// AppliedCoupon records the coupon resolution that fed a pricing run.
type AppliedCoupon struct {
	Code         string
	DiscountType DiscountType
	Amount       int64
}
