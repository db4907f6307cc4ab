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
	errCartRepositoryRequired = errors.New("cart service: repository is required")
	errCartCatalogRequired    = errors.New("cart service: catalog is required")
	errCartClockRequired      = errors.New("cart service: clock is required")
)

const maxCartLines = 100

// ErrCartInvalidInput indicates the caller supplied invalid input.
var ErrCartInvalidInput = errors.New("cart service: invalid input")

// ErrCartUnavailable indicates the cart service cannot fulfil the request due to missing dependencies or backend issues.
var ErrCartUnavailable = errors.New("cart service: unavailable")

// ErrCartNotFound indicates the requested cart or cart line does not exist.
var ErrCartNotFound = errors.New("cart service: not found")

// ErrCartConflict indicates the cart could not be updated due to concurrent modifications.
var ErrCartConflict = errors.New("cart service: conflict")

// ErrCartItemUnavailable indicates the requested product or variant cannot be added.
var ErrCartItemUnavailable = errors.New("cart service: item unavailable")

// cartCatalog is the slice of CatalogService the cart needs to price new lines.
type cartCatalog interface {
	GetProduct(ctx context.Context, productID string) (Product, error)
	GetVariant(ctx context.Context, productID string, variantID string) (ProductVariant, error)
}

// CartServiceDeps wires the repository and catalog dependencies for cart operations.
type CartServiceDeps struct {
	Repository      repositories.CartRepository
	Catalog         cartCatalog
	Clock           func() time.Time
	DefaultCurrency string
	Logger          func(context.Context, string, map[string]any)
	IDGenerator     func() string
}

type cartService struct {
	repo     repositories.CartRepository
	catalog  cartCatalog
	newID    func() string
	now      func() time.Time
	currency string
	logger   func(context.Context, string, map[string]any)
}

// NewCartService constructs a CartService enforcing dependency validation.
func NewCartService(deps CartServiceDeps) (CartService, error) {
	if deps.Repository == nil {
		return nil, errCartRepositoryRequired
	}
	if deps.Catalog == nil {
		return nil, errCartCatalogRequired
	}
	if deps.Clock == nil {
		return nil, errCartClockRequired
	}

	defaultCurrency := strings.ToUpper(strings.TrimSpace(deps.DefaultCurrency))
	if defaultCurrency == "" {
		defaultCurrency = "INR"
	}

	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string { return ulid.Make().String() }
	}

	service := &cartService{
		repo:     deps.Repository,
		catalog:  deps.Catalog,
		newID:    idGen,
		now:      func() time.Time { return deps.Clock().UTC() },
		currency: defaultCurrency,
		logger:   logger,
	}
	return service, nil
}

// GetOrCreateCart loads the active cart for the user, creating an empty cart when absent.
func (s *cartService) GetOrCreateCart(ctx context.Context, userID string) (Cart, error) {
	if s == nil || s.repo == nil {
		return Cart{}, ErrCartUnavailable
	}

	uid := strings.TrimSpace(userID)
	if uid == "" {
		return Cart{}, ErrCartInvalidInput
	}

	cart, err := s.repo.GetCart(ctx, uid)
	if err != nil {
		if !isRepoNotFound(err) {
			return Cart{}, s.translateRepoError(err)
		}
		saved, err := s.repo.UpsertCart(ctx, s.newCart(uid))
		if err != nil {
			return Cart{}, s.translateRepoError(err)
		}
		cart = saved
	}

	return s.normaliseCart(cart, uid), nil
}

// AddItem appends a new line to the cart. Identical product/variant pairs
// deliberately occupy separate lines; callers address lines by LineID.
func (s *cartService) AddItem(ctx context.Context, cmd AddCartItemCommand) (Cart, error) {
	if s == nil || s.repo == nil {
		return Cart{}, ErrCartUnavailable
	}

	uid := strings.TrimSpace(cmd.UserID)
	productID := strings.TrimSpace(cmd.ProductID)
	if uid == "" || productID == "" {
		return Cart{}, ErrCartInvalidInput
	}
	if cmd.Quantity < 1 {
		return Cart{}, fmt.Errorf("%w: quantity must be at least 1", ErrCartInvalidInput)
	}

	line, err := s.resolveLine(ctx, cmd)
	if err != nil {
		return Cart{}, err
	}

	cart, err := s.GetOrCreateCart(ctx, uid)
	if err != nil {
		return Cart{}, err
	}
	if len(cart.Items) >= maxCartLines {
		return Cart{}, fmt.Errorf("%w: cart line limit reached", ErrCartInvalidInput)
	}

	items := append(cloneItems(cart.Items), line)
	expected := cart.UpdatedAt
	saved, err := s.repo.ReplaceItems(ctx, uid, items, &expected)
	if err != nil {
		return Cart{}, s.translateRepoError(err)
	}

	s.logger(ctx, "cart.item_added", map[string]any{
		"userID":    uid,
		"lineID":    line.LineID,
		"productID": line.ProductID,
		"quantity":  line.Quantity,
	})

	cart.Items = saved.Items
	cart.UpdatedAt = saved.UpdatedAt
	return cart, nil
}

// UpdateQuantity changes the quantity of an existing line.
func (s *cartService) UpdateQuantity(ctx context.Context, cmd UpdateCartQuantityCommand) (Cart, error) {
	if s == nil || s.repo == nil {
		return Cart{}, ErrCartUnavailable
	}

	uid := strings.TrimSpace(cmd.UserID)
	lineID := strings.TrimSpace(cmd.LineID)
	if uid == "" || lineID == "" {
		return Cart{}, ErrCartInvalidInput
	}
	if cmd.Quantity < 1 {
		return Cart{}, fmt.Errorf("%w: quantity must be at least 1", ErrCartInvalidInput)
	}

	cart, err := s.loadCart(ctx, uid)
	if err != nil {
		return Cart{}, err
	}

	items := cloneItems(cart.Items)
	found := false
	for i := range items {
		if items[i].LineID != lineID {
			continue
		}
		if items[i].IsSample && cmd.Quantity != 1 {
			return Cart{}, fmt.Errorf("%w: sample lines are limited to quantity 1", ErrCartInvalidInput)
		}
		items[i].Quantity = cmd.Quantity
		found = true
		break
	}
	if !found {
		return Cart{}, ErrCartNotFound
	}

	expected := cart.UpdatedAt
	saved, err := s.repo.ReplaceItems(ctx, uid, items, &expected)
	if err != nil {
		return Cart{}, s.translateRepoError(err)
	}

	cart.Items = saved.Items
	cart.UpdatedAt = saved.UpdatedAt
	return cart, nil
}

// RemoveItem drops a line from the cart.
func (s *cartService) RemoveItem(ctx context.Context, cmd RemoveCartItemCommand) (Cart, error) {
	if s == nil || s.repo == nil {
		return Cart{}, ErrCartUnavailable
	}

	uid := strings.TrimSpace(cmd.UserID)
	lineID := strings.TrimSpace(cmd.LineID)
	if uid == "" || lineID == "" {
		return Cart{}, ErrCartInvalidInput
	}

	cart, err := s.loadCart(ctx, uid)
	if err != nil {
		return Cart{}, err
	}

	items := make([]domain.CartItem, 0, len(cart.Items))
	found := false
	for _, item := range cart.Items {
		if item.LineID == lineID {
			found = true
			continue
		}
		items = append(items, item)
	}
	if !found {
		return Cart{}, ErrCartNotFound
	}

	expected := cart.UpdatedAt
	saved, err := s.repo.ReplaceItems(ctx, uid, items, &expected)
	if err != nil {
		return Cart{}, s.translateRepoError(err)
	}

	s.logger(ctx, "cart.item_removed", map[string]any{
		"userID": uid,
		"lineID": lineID,
	})

	cart.Items = saved.Items
	cart.UpdatedAt = saved.UpdatedAt
	return cart, nil
}

// ClearCart removes every line.
func (s *cartService) ClearCart(ctx context.Context, userID string) error {
	if s == nil || s.repo == nil {
		return ErrCartUnavailable
	}

	uid := strings.TrimSpace(userID)
	if uid == "" {
		return ErrCartInvalidInput
	}

	cart, err := s.repo.GetCart(ctx, uid)
	if err != nil {
		if isRepoNotFound(err) {
			return nil
		}
		return s.translateRepoError(err)
	}

	expected := cart.UpdatedAt
	if _, err := s.repo.ReplaceItems(ctx, uid, nil, &expected); err != nil {
		return s.translateRepoError(err)
	}
	return nil
}

// resolveLine builds a cart line from the catalog. Samples use the product's
// sample price and force quantity 1; regular lines require a variant.
func (s *cartService) resolveLine(ctx context.Context, cmd AddCartItemCommand) (domain.CartItem, error) {
	product, err := s.catalog.GetProduct(ctx, strings.TrimSpace(cmd.ProductID))
	if err != nil {
		if errors.Is(err, ErrCatalogNotFound) {
			return domain.CartItem{}, ErrCartItemUnavailable
		}
		return domain.CartItem{}, ErrCartUnavailable
	}

	line := domain.CartItem{
		LineID:    s.newID(),
		ProductID: product.ID,
		Name:      product.Name,
		Image:     product.MainImage,
		Quantity:  cmd.Quantity,
	}

	if cmd.IsSample {
		if !product.SampleAvailable {
			return domain.CartItem{}, fmt.Errorf("%w: product does not offer samples", ErrCartItemUnavailable)
		}
		line.IsSample = true
		line.UnitPrice = product.SamplePrice
		line.Quantity = 1
		return line, nil
	}

	variantID := strings.TrimSpace(cmd.VariantID)
	if variantID == "" {
		return domain.CartItem{}, fmt.Errorf("%w: variant is required", ErrCartInvalidInput)
	}
	variant, err := s.catalog.GetVariant(ctx, product.ID, variantID)
	if err != nil {
		if errors.Is(err, ErrCatalogNotFound) {
			return domain.CartItem{}, ErrCartItemUnavailable
		}
		return domain.CartItem{}, ErrCartUnavailable
	}

	line.VariantID = variant.ID
	line.Size = variant.Size
	line.UnitPrice = variant.Price
	if variant.Image != "" {
		line.Image = variant.Image
	}
	return line, nil
}

func (s *cartService) loadCart(ctx context.Context, uid string) (Cart, error) {
	cart, err := s.repo.GetCart(ctx, uid)
	if err != nil {
		return Cart{}, s.translateRepoError(err)
	}
	return s.normaliseCart(cart, uid), nil
}

func (s *cartService) newCart(uid string) Cart {
	now := s.now()
	return Cart{
		ID:        uid,
		UserID:    uid,
		Currency:  s.currency,
		Items:     []domain.CartItem{},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func (s *cartService) normaliseCart(cart Cart, uid string) Cart {
	if strings.TrimSpace(cart.ID) == "" {
		cart.ID = uid
	}
	if strings.TrimSpace(cart.UserID) == "" {
		cart.UserID = uid
	}
	if strings.TrimSpace(cart.Currency) == "" {
		cart.Currency = s.currency
	}
	if cart.Items == nil {
		cart.Items = []domain.CartItem{}
	}
	return cart
}

func cloneItems(items []domain.CartItem) []domain.CartItem {
	if items == nil {
		return nil
	}
	dup := make([]domain.CartItem, len(items))
	copy(dup, items)
	return dup
}

func (s *cartService) translateRepoError(err error) error {
	if err == nil {
		return nil
	}
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return ErrCartNotFound
		case repoErr.IsConflict():
			return ErrCartConflict
		case repoErr.IsUnavailable():
			return ErrCartUnavailable
		}
		return ErrCartUnavailable
	}
	return ErrCartUnavailable
}
