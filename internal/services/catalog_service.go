package services

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode"

	"github.com/microcosm-cc/bluemonday"
	"github.com/oklog/ulid/v2"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	domain "github.com/solventline/api/internal/domain"
	"github.com/solventline/api/internal/repositories"
)

const maxProductVariants = 25

var (
	productSlugSanitizer = regexp.MustCompile(`[^a-z0-9]+`)
	slugFoldTransformer  = transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
)

var (
	// ErrCatalogInvalidInput indicates the caller supplied invalid data to a catalog operation.
	ErrCatalogInvalidInput = errors.New("catalog service: invalid input")
	// ErrCatalogNotFound indicates the requested product or variant does not exist.
	ErrCatalogNotFound = errors.New("catalog service: not found")
	// ErrCatalogConflict indicates a slug collision or concurrent update.
	ErrCatalogConflict = errors.New("catalog service: conflict")
	// ErrCatalogUnavailable indicates the catalog backend could not serve the request.
	ErrCatalogUnavailable = errors.New("catalog service: unavailable")
	// ErrCatalogOutOfStock indicates a stock adjustment would take inventory below zero.
	ErrCatalogOutOfStock = errors.New("catalog service: insufficient stock")
)

// CatalogServiceDeps bundles constructor inputs for the catalog service.
type CatalogServiceDeps struct {
	Products    repositories.ProductRepository
	Clock       func() time.Time
	Logger      func(ctx context.Context, event string, fields map[string]any)
	IDGenerator func() string
}

type catalogService struct {
	repo      repositories.ProductRepository
	clock     func() time.Time
	logger    func(ctx context.Context, event string, fields map[string]any)
	idgen     func() string
	sanitizer *bluemonday.Policy
}

// NewCatalogService constructs the catalog service with the supplied dependencies.
func NewCatalogService(deps CatalogServiceDeps) (CatalogService, error) {
	if deps.Products == nil {
		return nil, fmt.Errorf("catalog service: product repository is required")
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
	return &catalogService{
		repo:      deps.Products,
		clock:     func() time.Time { return clock().UTC() },
		logger:    logger,
		idgen:     idgen,
		sanitizer: bluemonday.UGCPolicy(),
	}, nil
}

func (s *catalogService) ListProducts(ctx context.Context, filter ProductListFilter) (domain.CursorPage[domain.Product], error) {
	repoFilter := repositories.ProductListFilter{
		Slug:       normaliseSlugFilter(filter.Slug),
		SampleOnly: filter.SampleOnly,
		Pagination: filter.Pagination,
	}
	page, err := s.repo.List(ctx, repoFilter)
	if err != nil {
		return domain.CursorPage[domain.Product]{}, s.translateRepoError(err)
	}
	return page, nil
}

func (s *catalogService) GetProduct(ctx context.Context, productID string) (domain.Product, error) {
	productID = strings.TrimSpace(productID)
	if productID == "" {
		return domain.Product{}, fmt.Errorf("%w: product id is required", ErrCatalogInvalidInput)
	}
	product, err := s.repo.FindByID(ctx, productID)
	if err != nil {
		return domain.Product{}, s.translateRepoError(err)
	}
	return product, nil
}

func (s *catalogService) GetProductBySlug(ctx context.Context, slug string) (domain.Product, error) {
	slug = strings.TrimSpace(strings.ToLower(slug))
	if slug == "" {
		return domain.Product{}, fmt.Errorf("%w: slug is required", ErrCatalogInvalidInput)
	}
	product, err := s.repo.FindBySlug(ctx, slug)
	if err != nil {
		return domain.Product{}, s.translateRepoError(err)
	}
	return product, nil
}

func (s *catalogService) GetVariant(ctx context.Context, productID, variantID string) (domain.ProductVariant, error) {
	productID = strings.TrimSpace(productID)
	variantID = strings.TrimSpace(variantID)
	if productID == "" || variantID == "" {
		return domain.ProductVariant{}, fmt.Errorf("%w: product and variant ids are required", ErrCatalogInvalidInput)
	}
	variant, err := s.repo.GetVariant(ctx, productID, variantID)
	if err != nil {
		return domain.ProductVariant{}, s.translateRepoError(err)
	}
	return variant, nil
}

func (s *catalogService) UpsertProduct(ctx context.Context, cmd UpsertProductCommand) (domain.Product, error) {
	input := cmd.Product
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return domain.Product{}, fmt.Errorf("%w: product name is required", ErrCatalogInvalidInput)
	}
	if input.SampleAvailable && input.SamplePrice <= 0 {
		return domain.Product{}, fmt.Errorf("%w: sample price must be positive when samples are offered", ErrCatalogInvalidInput)
	}

	now := s.clock()
	product := domain.Product{
		ID:              strings.TrimSpace(input.ID),
		Name:            name,
		Slug:            strings.TrimSpace(strings.ToLower(input.Slug)),
		Description:     s.sanitizer.Sanitize(strings.TrimSpace(input.Description)),
		Features:        normaliseFeatures(input.Features),
		MainImage:       strings.TrimSpace(input.MainImage),
		SampleAvailable: input.SampleAvailable,
		SamplePrice:     input.SamplePrice,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if product.Slug == "" {
		product.Slug = Slugify(name)
	}
	if product.Slug == "" {
		return domain.Product{}, fmt.Errorf("%w: product name yields an empty slug", ErrCatalogInvalidInput)
	}

	if product.ID == "" {
		product.ID = s.idgen()
	} else {
		existing, err := s.repo.FindByID(ctx, product.ID)
		switch {
		case err == nil:
			product.Variants = existing.Variants
			product.CreatedAt = existing.CreatedAt
		case isRepoNotFound(err):
		default:
			return domain.Product{}, s.translateRepoError(err)
		}
	}

	if err := s.ensureSlugAvailable(ctx, product.Slug, product.ID); err != nil {
		return domain.Product{}, err
	}
	saved, err := s.repo.Upsert(ctx, product)
	if err != nil {
		return domain.Product{}, s.translateRepoError(err)
	}
	s.logger(ctx, "catalog.product_upserted", map[string]any{
		"productId": saved.ID,
		"slug":      saved.Slug,
		"actorId":   strings.TrimSpace(cmd.ActorID),
	})
	return saved, nil
}

func (s *catalogService) DeleteProduct(ctx context.Context, productID string) error {
	productID = strings.TrimSpace(productID)
	if productID == "" {
		return fmt.Errorf("%w: product id is required", ErrCatalogInvalidInput)
	}
	if err := s.repo.Delete(ctx, productID); err != nil {
		return s.translateRepoError(err)
	}
	s.logger(ctx, "catalog.product_deleted", map[string]any{"productId": productID})
	return nil
}

func (s *catalogService) UpsertVariant(ctx context.Context, cmd UpsertVariantCommand) (domain.ProductVariant, error) {
	input := cmd.Variant
	productID := strings.TrimSpace(input.ProductID)
	size := strings.TrimSpace(input.Size)
	switch {
	case productID == "":
		return domain.ProductVariant{}, fmt.Errorf("%w: product id is required", ErrCatalogInvalidInput)
	case size == "":
		return domain.ProductVariant{}, fmt.Errorf("%w: variant size is required", ErrCatalogInvalidInput)
	case input.Price <= 0:
		return domain.ProductVariant{}, fmt.Errorf("%w: variant price must be positive", ErrCatalogInvalidInput)
	case input.Stock < 0:
		return domain.ProductVariant{}, fmt.Errorf("%w: variant stock cannot be negative", ErrCatalogInvalidInput)
	}

	product, err := s.repo.FindByID(ctx, productID)
	if err != nil {
		return domain.ProductVariant{}, s.translateRepoError(err)
	}
	variantID := strings.TrimSpace(input.ID)
	if variantID == "" {
		if len(product.Variants) >= maxProductVariants {
			return domain.ProductVariant{}, fmt.Errorf("%w: product has too many variants", ErrCatalogInvalidInput)
		}
		variantID = s.idgen()
	}

	variant := domain.ProductVariant{
		ID:        variantID,
		ProductID: productID,
		Size:      size,
		Price:     input.Price,
		Stock:     input.Stock,
		Image:     strings.TrimSpace(input.Image),
		UpdatedAt: s.clock(),
	}
	saved, err := s.repo.UpsertVariant(ctx, variant)
	if err != nil {
		return domain.ProductVariant{}, s.translateRepoError(err)
	}
	s.logger(ctx, "catalog.variant_upserted", map[string]any{"productId": productID, "variantId": saved.ID})
	return saved, nil
}

func (s *catalogService) DeleteVariant(ctx context.Context, productID, variantID string) error {
	productID = strings.TrimSpace(productID)
	variantID = strings.TrimSpace(variantID)
	if productID == "" || variantID == "" {
		return fmt.Errorf("%w: product and variant ids are required", ErrCatalogInvalidInput)
	}
	if err := s.repo.DeleteVariant(ctx, productID, variantID); err != nil {
		return s.translateRepoError(err)
	}
	s.logger(ctx, "catalog.variant_deleted", map[string]any{"productId": productID, "variantId": variantID})
	return nil
}

func (s *catalogService) AdjustStock(ctx context.Context, cmd AdjustStockCommand) (int64, error) {
	productID := strings.TrimSpace(cmd.ProductID)
	variantID := strings.TrimSpace(cmd.VariantID)
	if productID == "" || variantID == "" {
		return 0, fmt.Errorf("%w: product and variant ids are required", ErrCatalogInvalidInput)
	}
	if cmd.Delta == 0 {
		return 0, fmt.Errorf("%w: delta must be non-zero", ErrCatalogInvalidInput)
	}
	remaining, err := s.repo.AdjustStock(ctx, productID, variantID, cmd.Delta)
	if err != nil {
		if isRepoConflict(err) {
			return 0, fmt.Errorf("%w: %s/%s", ErrCatalogOutOfStock, productID, variantID)
		}
		return 0, s.translateRepoError(err)
	}
	s.logger(ctx, "catalog.stock_adjusted", map[string]any{
		"productId": productID,
		"variantId": variantID,
		"delta":     cmd.Delta,
		"remaining": remaining,
	})
	return remaining, nil
}

func (s *catalogService) ensureSlugAvailable(ctx context.Context, slug, productID string) error {
	existing, err := s.repo.FindBySlug(ctx, slug)
	switch {
	case err == nil:
		if existing.ID != productID {
			return fmt.Errorf("%w: slug %q already in use", ErrCatalogConflict, slug)
		}
		return nil
	case isRepoNotFound(err):
		return nil
	default:
		return s.translateRepoError(err)
	}
}

func (s *catalogService) translateRepoError(err error) error {
	switch {
	case err == nil:
		return nil
	case isRepoNotFound(err):
		return fmt.Errorf("%w: %v", ErrCatalogNotFound, err)
	case isRepoConflict(err):
		return fmt.Errorf("%w: %v", ErrCatalogConflict, err)
	default:
		return fmt.Errorf("%w: %v", ErrCatalogUnavailable, err)
	}
}

// Slugify folds a display name to a lowercase ascii slug.
func Slugify(name string) string {
	folded, _, err := transform.String(slugFoldTransformer, name)
	if err != nil {
		folded = name
	}
	slug := productSlugSanitizer.ReplaceAllString(strings.ToLower(folded), "-")
	return strings.Trim(slug, "-")
}

func normaliseSlugFilter(slug *string) *string {
	if slug == nil {
		return nil
	}
	trimmed := strings.TrimSpace(strings.ToLower(*slug))
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

func normaliseFeatures(features []string) []string {
	if len(features) == 0 {
		return nil
	}
	result := make([]string, 0, len(features))
	seen := make(map[string]struct{}, len(features))
	for _, feature := range features {
		feature = strings.TrimSpace(feature)
		if feature == "" {
			continue
		}
		key := strings.ToLower(feature)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		result = append(result, feature)
	}
	if len(result) == 0 {
		return nil
	}
	return result
}
