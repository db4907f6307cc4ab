package firestore

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/solventline/api/internal/domain"
	pfirestore "github.com/solventline/api/internal/platform/firestore"
	"github.com/solventline/api/internal/repositories"
)

const productsCollection = "products"

// ProductRepository persists catalog products. Variants are embedded on the
// product document so reads never fan out and stock adjustments stay within
// a single transactional write.
type ProductRepository struct {
	base     *pfirestore.BaseRepository[productDocument]
	provider *pfirestore.Provider
}

// NewProductRepository constructs a Firestore-backed product repository.
func NewProductRepository(provider *pfirestore.Provider) (*ProductRepository, error) {
	if provider == nil {
		return nil, errors.New("product repository requires firestore provider")
	}
	base := pfirestore.NewBaseRepository[productDocument](provider, productsCollection, nil, nil)
	return &ProductRepository{
		base:     base,
		provider: provider,
	}, nil
}

// List returns products ordered by name. Variants come back ordered by price.
func (r *ProductRepository) List(ctx context.Context, filter repositories.ProductListFilter) (domain.CursorPage[domain.Product], error) {
	if r == nil || r.base == nil {
		return domain.CursorPage[domain.Product]{}, errors.New("product repository not initialised")
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
		name, docID, err := decodeProductListToken(token)
		if err != nil {
			return domain.CursorPage[domain.Product]{}, fmt.Errorf("product repository: invalid page token: %w", err)
		}
		startAfter = []any{name, docID}
	}

	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		if filter.Slug != nil {
			q = q.Where("slug", "==", strings.TrimSpace(*filter.Slug))
		}
		if filter.SampleOnly {
			q = q.Where("sampleAvailable", "==", true)
		}
		q = q.OrderBy("name", firestore.Asc).OrderBy(firestore.DocumentID, firestore.Asc)
		if len(startAfter) == 2 {
			q = q.StartAfter(startAfter...)
		}
		if fetchLimit > 0 {
			q = q.Limit(fetchLimit)
		}
		return q
	})
	if err != nil {
		return domain.CursorPage[domain.Product]{}, err
	}

	valueDocs := docs
	nextToken := ""
	if limit > 0 && len(valueDocs) == fetchLimit {
		last := valueDocs[len(valueDocs)-1]
		nextToken = encodeProductListToken(last.Data.Name, last.ID)
		valueDocs = valueDocs[:len(valueDocs)-1]
	}

	items := make([]domain.Product, 0, len(valueDocs))
	for _, doc := range valueDocs {
		items = append(items, decodeProduct(doc))
	}

	return domain.CursorPage[domain.Product]{
		Items:         items,
		NextPageToken: nextToken,
	}, nil
}

// FindByID loads a single product with its variants.
func (r *ProductRepository) FindByID(ctx context.Context, productID string) (domain.Product, error) {
	if r == nil || r.base == nil {
		return domain.Product{}, errors.New("product repository not initialised")
	}
	id := strings.TrimSpace(productID)
	if id == "" {
		return domain.Product{}, errors.New("product repository: product id is required")
	}

	doc, err := r.base.Get(ctx, id)
	if err != nil {
		return domain.Product{}, err
	}
	return decodeProduct(doc), nil
}

// FindBySlug resolves a product by its storefront slug.
func (r *ProductRepository) FindBySlug(ctx context.Context, slug string) (domain.Product, error) {
	if r == nil || r.base == nil {
		return domain.Product{}, errors.New("product repository not initialised")
	}
	trimmed := strings.TrimSpace(slug)
	if trimmed == "" {
		return domain.Product{}, errors.New("product repository: slug is required")
	}

	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("slug", "==", trimmed).Limit(1)
	})
	if err != nil {
		return domain.Product{}, err
	}
	if len(docs) == 0 {
		return domain.Product{}, pfirestore.NewNotFoundError("products.findbyslug", fmt.Errorf("product slug %q not found", trimmed))
	}
	return decodeProduct(docs[0]), nil
}

// GetVariant resolves a variant only when it belongs to the given product.
func (r *ProductRepository) GetVariant(ctx context.Context, productID string, variantID string) (domain.ProductVariant, error) {
	product, err := r.FindByID(ctx, productID)
	if err != nil {
		return domain.ProductVariant{}, err
	}
	vid := strings.TrimSpace(variantID)
	for _, variant := range product.Variants {
		if variant.ID == vid {
			return variant, nil
		}
	}
	return domain.ProductVariant{}, pfirestore.NewNotFoundError("products.getvariant", fmt.Errorf("variant %q not found on product %q", vid, product.ID))
}

// Upsert writes the full product document.
func (r *ProductRepository) Upsert(ctx context.Context, product domain.Product) (domain.Product, error) {
	if r == nil || r.base == nil {
		return domain.Product{}, errors.New("product repository not initialised")
	}
	id := strings.TrimSpace(product.ID)
	if id == "" {
		return domain.Product{}, errors.New("product repository: product id is required")
	}

	now := time.Now().UTC()
	createdAt := product.CreatedAt.UTC()
	if createdAt.IsZero() {
		createdAt = now
	}

	doc := encodeProduct(product, createdAt, now)
	result, err := r.base.Set(ctx, id, doc)
	if err != nil {
		return domain.Product{}, err
	}

	saved := product
	saved.ID = id
	saved.CreatedAt = createdAt
	saved.UpdatedAt = result.UpdateTime
	sortVariantsByPrice(saved.Variants)
	return saved, nil
}

// Delete removes the product document. Existing orders keep their
// denormalized snapshots.
func (r *ProductRepository) Delete(ctx context.Context, productID string) error {
	if r == nil || r.provider == nil {
		return errors.New("product repository not initialised")
	}
	id := strings.TrimSpace(productID)
	if id == "" {
		return errors.New("product repository: product id is required")
	}
	ref, err := r.base.DocumentRef(ctx, id)
	if err != nil {
		return err
	}
	if _, err := ref.Delete(ctx, firestore.Exists); err != nil {
		return pfirestore.WrapError("products.delete", err)
	}
	return nil
}

// UpsertVariant adds or replaces a single variant on the product document
// inside a transaction.
func (r *ProductRepository) UpsertVariant(ctx context.Context, variant domain.ProductVariant) (domain.ProductVariant, error) {
	if r == nil || r.provider == nil {
		return domain.ProductVariant{}, errors.New("product repository not initialised")
	}
	productID := strings.TrimSpace(variant.ProductID)
	variantID := strings.TrimSpace(variant.ID)
	if productID == "" || variantID == "" {
		return domain.ProductVariant{}, errors.New("product repository: product and variant ids are required")
	}

	now := time.Now().UTC()
	saved := variant
	saved.UpdatedAt = now

	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		ref, err := r.base.DocumentRef(ctx, productID)
		if err != nil {
			return err
		}
		snapshot, err := tx.Get(ref)
		if err != nil {
			return err
		}
		var doc productDocument
		if err := snapshot.DataTo(&doc); err != nil {
			return fmt.Errorf("firestore products decode %s: %w", productID, err)
		}

		next := encodeVariant(saved)
		replaced := false
		for i, existing := range doc.Variants {
			if existing.ID == variantID {
				doc.Variants[i] = next
				replaced = true
				break
			}
		}
		if !replaced {
			doc.Variants = append(doc.Variants, next)
		}

		return tx.Update(ref, []firestore.Update{
			{Path: "variants", Value: doc.Variants},
			{Path: "updatedAt", Value: now},
		})
	})
	if err != nil {
		return domain.ProductVariant{}, pfirestore.WrapError("products.upsertvariant", err)
	}
	return saved, nil
}

// DeleteVariant removes a variant from the product document.
func (r *ProductRepository) DeleteVariant(ctx context.Context, productID string, variantID string) error {
	if r == nil || r.provider == nil {
		return errors.New("product repository not initialised")
	}
	pid := strings.TrimSpace(productID)
	vid := strings.TrimSpace(variantID)
	if pid == "" || vid == "" {
		return errors.New("product repository: product and variant ids are required")
	}

	now := time.Now().UTC()
	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		ref, err := r.base.DocumentRef(ctx, pid)
		if err != nil {
			return err
		}
		snapshot, err := tx.Get(ref)
		if err != nil {
			return err
		}
		var doc productDocument
		if err := snapshot.DataTo(&doc); err != nil {
			return fmt.Errorf("firestore products decode %s: %w", pid, err)
		}

		kept := doc.Variants[:0]
		found := false
		for _, existing := range doc.Variants {
			if existing.ID == vid {
				found = true
				continue
			}
			kept = append(kept, existing)
		}
		if !found {
			return fmt.Errorf("variant %q not found on product %q", vid, pid)
		}

		return tx.Update(ref, []firestore.Update{
			{Path: "variants", Value: kept},
			{Path: "updatedAt", Value: now},
		})
	})
	if err != nil {
		return pfirestore.WrapError("products.deletevariant", err)
	}
	return nil
}

// AdjustStock applies a delta to a variant's stock level transactionally and
// returns the new level. Drops below zero surface as conflicts.
func (r *ProductRepository) AdjustStock(ctx context.Context, productID string, variantID string, delta int64) (int64, error) {
	if r == nil || r.provider == nil {
		return 0, errors.New("product repository not initialised")
	}
	pid := strings.TrimSpace(productID)
	vid := strings.TrimSpace(variantID)
	if pid == "" || vid == "" {
		return 0, errors.New("product repository: product and variant ids are required")
	}

	now := time.Now().UTC()
	var newLevel int64

	adjust := func(ctx context.Context, tx *firestore.Transaction) error {
		ref, err := r.base.DocumentRef(ctx, pid)
		if err != nil {
			return err
		}
		snapshot, err := tx.Get(ref)
		if err != nil {
			return err
		}
		var doc productDocument
		if err := snapshot.DataTo(&doc); err != nil {
			return fmt.Errorf("firestore products decode %s: %w", pid, err)
		}

		idx := -1
		for i, existing := range doc.Variants {
			if existing.ID == vid {
				idx = i
				break
			}
		}
		if idx < 0 {
			return fmt.Errorf("variant %q not found on product %q", vid, pid)
		}

		next := doc.Variants[idx].Stock + delta
		if next < 0 {
			return pfirestore.NewConflictError("products.adjuststock", fmt.Errorf("variant %q stock would drop to %d", vid, next))
		}
		doc.Variants[idx].Stock = next
		doc.Variants[idx].UpdatedAt = now
		newLevel = next

		return tx.Update(ref, []firestore.Update{
			{Path: "variants", Value: doc.Variants},
			{Path: "updatedAt", Value: now},
		})
	}

	var err error
	if tx := pfirestore.TransactionFromContext(ctx); tx != nil {
		err = adjust(ctx, tx)
	} else {
		err = r.provider.RunTransaction(ctx, adjust)
	}
	if err != nil {
		return 0, pfirestore.WrapError("products.adjuststock", err)
	}
	return newLevel, nil
}

func decodeProduct(doc pfirestore.Document[productDocument]) domain.Product {
	product := domain.Product{
		ID:              doc.ID,
		Name:            doc.Data.Name,
		Slug:            doc.Data.Slug,
		Description:     doc.Data.Description,
		Features:        append([]string(nil), doc.Data.Features...),
		MainImage:       doc.Data.MainImage,
		SampleAvailable: doc.Data.SampleAvailable,
		SamplePrice:     doc.Data.SamplePrice,
		CreatedAt:       doc.Data.CreatedAt,
		UpdatedAt:       doc.UpdateTime,
	}
	for _, variant := range doc.Data.Variants {
		product.Variants = append(product.Variants, domain.ProductVariant{
			ID:        variant.ID,
			ProductID: doc.ID,
			Size:      variant.Size,
			Price:     variant.Price,
			Stock:     variant.Stock,
			Image:     variant.Image,
			UpdatedAt: variant.UpdatedAt,
		})
	}
	sortVariantsByPrice(product.Variants)
	return product
}

func encodeProduct(product domain.Product, createdAt, updatedAt time.Time) productDocument {
	doc := productDocument{
		Name:            strings.TrimSpace(product.Name),
		Slug:            strings.TrimSpace(product.Slug),
		Description:     product.Description,
		Features:        append([]string(nil), product.Features...),
		MainImage:       strings.TrimSpace(product.MainImage),
		SampleAvailable: product.SampleAvailable,
		SamplePrice:     product.SamplePrice,
		CreatedAt:       createdAt,
		UpdatedAt:       updatedAt,
	}
	for _, variant := range product.Variants {
		doc.Variants = append(doc.Variants, encodeVariant(variant))
	}
	return doc
}

func encodeVariant(variant domain.ProductVariant) productVariantDocument {
	updatedAt := variant.UpdatedAt.UTC()
	if updatedAt.IsZero() {
		updatedAt = time.Now().UTC()
	}
	return productVariantDocument{
		ID:        strings.TrimSpace(variant.ID),
		Size:      strings.TrimSpace(variant.Size),
		Price:     variant.Price,
		Stock:     variant.Stock,
		Image:     strings.TrimSpace(variant.Image),
		UpdatedAt: updatedAt,
	}
}

func sortVariantsByPrice(variants []domain.ProductVariant) {
	sort.SliceStable(variants, func(i, j int) bool {
		return variants[i].Price < variants[j].Price
	})
}

func encodeProductListToken(name, docID string) string {
	return encodeCursorToken(name, docID)
}

func decodeProductListToken(token string) (string, string, error) {
	return decodeCursorToken(token)
}

type productDocument struct {
	Name            string                   `firestore:"name"`
	Slug            string                   `firestore:"slug"`
	Description     string                   `firestore:"description,omitempty"`
	Features        []string                 `firestore:"features,omitempty"`
	MainImage       string                   `firestore:"mainImage,omitempty"`
	SampleAvailable bool                     `firestore:"sampleAvailable"`
	SamplePrice     int64                    `firestore:"samplePrice,omitempty"`
	Variants        []productVariantDocument `firestore:"variants"`
	CreatedAt       time.Time                `firestore:"createdAt"`
	UpdatedAt       time.Time                `firestore:"updatedAt"`
}

type productVariantDocument struct {
	ID        string    `firestore:"id"`
	Size      string    `firestore:"size"`
	Price     int64     `firestore:"price"`
	Stock     int64     `firestore:"stock"`
	Image     string    `firestore:"image,omitempty"`
	UpdatedAt time.Time `firestore:"updatedAt"`
}

var _ repositories.ProductRepository = (*ProductRepository)(nil)
