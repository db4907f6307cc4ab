package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/solventline/api/internal/domain"
	pfirestore "github.com/solventline/api/internal/platform/firestore"
	"github.com/solventline/api/internal/repositories"
)

const ordersCollection = "orders"

// OrderRepository persists order headers with their denormalized line items.
// Writes issued inside a unit-of-work transaction join that transaction so
// header, items and counters commit or roll back together.
type OrderRepository struct {
	base     *pfirestore.BaseRepository[orderDocument]
	provider *pfirestore.Provider
}

// NewOrderRepository constructs a Firestore-backed order repository.
func NewOrderRepository(provider *pfirestore.Provider) (*OrderRepository, error) {
	if provider == nil {
		return nil, errors.New("order repository requires firestore provider")
	}
	base := pfirestore.NewBaseRepository[orderDocument](provider, ordersCollection, nil, nil)
	return &OrderRepository{
		base:     base,
		provider: provider,
	}, nil
}

// Insert creates the order document, failing when the ID already exists.
func (r *OrderRepository) Insert(ctx context.Context, order domain.Order) error {
	if r == nil || r.base == nil {
		return errors.New("order repository not initialised")
	}
	id := strings.TrimSpace(order.ID)
	if id == "" {
		return errors.New("order repository: order id is required")
	}

	ref, err := r.base.DocumentRef(ctx, id)
	if err != nil {
		return err
	}

	doc := encodeOrder(order)
	if tx := pfirestore.TransactionFromContext(ctx); tx != nil {
		if err := tx.Create(ref, doc); err != nil {
			return pfirestore.WrapError("orders.insert", err)
		}
		return nil
	}
	if _, err := ref.Create(ctx, doc); err != nil {
		return pfirestore.WrapError("orders.insert", err)
	}
	return nil
}

// Update replaces the order document, bumping nothing on its own; callers
// are expected to have advanced Version before handing the order over.
func (r *OrderRepository) Update(ctx context.Context, order domain.Order) error {
	if r == nil || r.base == nil {
		return errors.New("order repository not initialised")
	}
	id := strings.TrimSpace(order.ID)
	if id == "" {
		return errors.New("order repository: order id is required")
	}

	ref, err := r.base.DocumentRef(ctx, id)
	if err != nil {
		return err
	}

	doc := encodeOrder(order)
	if tx := pfirestore.TransactionFromContext(ctx); tx != nil {
		if err := tx.Set(ref, doc); err != nil {
			return pfirestore.WrapError("orders.update", err)
		}
		return nil
	}
	if _, err := ref.Set(ctx, doc); err != nil {
		return pfirestore.WrapError("orders.update", err)
	}
	return nil
}

// FindByID loads a single order.
func (r *OrderRepository) FindByID(ctx context.Context, orderID string) (domain.Order, error) {
	if r == nil || r.base == nil {
		return domain.Order{}, errors.New("order repository not initialised")
	}
	id := strings.TrimSpace(orderID)
	if id == "" {
		return domain.Order{}, errors.New("order repository: order id is required")
	}

	if tx := pfirestore.TransactionFromContext(ctx); tx != nil {
		ref, err := r.base.DocumentRef(ctx, id)
		if err != nil {
			return domain.Order{}, err
		}
		snapshot, err := tx.Get(ref)
		if err != nil {
			return domain.Order{}, pfirestore.WrapError("orders.findbyid", err)
		}
		var doc orderDocument
		if err := snapshot.DataTo(&doc); err != nil {
			return domain.Order{}, fmt.Errorf("firestore orders decode %s: %w", id, err)
		}
		return decodeOrder(pfirestore.Document[orderDocument]{
			ID:         snapshot.Ref.ID,
			Data:       doc,
			CreateTime: snapshot.CreateTime,
			UpdateTime: snapshot.UpdateTime,
		}), nil
	}

	doc, err := r.base.Get(ctx, id)
	if err != nil {
		return domain.Order{}, err
	}
	return decodeOrder(doc), nil
}

// List returns orders newest first, optionally scoped to a user, status set
// and creation date range.
func (r *OrderRepository) List(ctx context.Context, filter repositories.OrderListFilter) (domain.CursorPage[domain.Order], error) {
	if r == nil || r.base == nil {
		return domain.CursorPage[domain.Order]{}, errors.New("order repository not initialised")
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
		tokenTime, tokenID, err := decodeTimeCursorToken(token)
		if err != nil {
			return domain.CursorPage[domain.Order]{}, fmt.Errorf("order repository: invalid page token: %w", err)
		}
		startAfter = []any{tokenTime, tokenID}
	}

	statusFilters := make([]string, 0, len(filter.Status))
	for _, status := range filter.Status {
		trimmed := strings.TrimSpace(strings.ToLower(status))
		if trimmed != "" {
			statusFilters = append(statusFilters, trimmed)
		}
	}

	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		if uid := strings.TrimSpace(filter.UserID); uid != "" {
			q = q.Where("userId", "==", uid)
		}
		if len(statusFilters) == 1 {
			q = q.Where("status", "==", statusFilters[0])
		} else if len(statusFilters) > 1 {
			// Firestore in clause supports up to 10 values.
			if len(statusFilters) > 10 {
				statusFilters = statusFilters[:10]
			}
			q = q.Where("status", "in", statusFilters)
		}
		if filter.DateRange.From != nil {
			q = q.Where("createdAt", ">=", filter.DateRange.From.UTC())
		}
		if filter.DateRange.To != nil {
			q = q.Where("createdAt", "<=", filter.DateRange.To.UTC())
		}
		q = q.OrderBy("createdAt", firestore.Desc).OrderBy(firestore.DocumentID, firestore.Desc)
		if len(startAfter) == 2 {
			q = q.StartAfter(startAfter...)
		}
		if fetchLimit > 0 {
			q = q.Limit(fetchLimit)
		}
		return q
	})
	if err != nil {
		return domain.CursorPage[domain.Order]{}, err
	}

	valueDocs := docs
	nextToken := ""
	if limit > 0 && len(valueDocs) == fetchLimit {
		last := valueDocs[len(valueDocs)-1]
		tokenTime := last.Data.CreatedAt
		if tokenTime.IsZero() {
			tokenTime = last.UpdateTime
		}
		nextToken = encodeTimeCursorToken(tokenTime, last.ID)
		valueDocs = valueDocs[:len(valueDocs)-1]
	}

	items := make([]domain.Order, 0, len(valueDocs))
	for _, doc := range valueDocs {
		items = append(items, decodeOrder(doc))
	}

	return domain.CursorPage[domain.Order]{
		Items:         items,
		NextPageToken: nextToken,
	}, nil
}

func encodeOrder(order domain.Order) orderDocument {
	now := time.Now().UTC()
	createdAt := order.CreatedAt.UTC()
	if createdAt.IsZero() {
		createdAt = now
	}
	updatedAt := order.UpdatedAt.UTC()
	if updatedAt.IsZero() {
		updatedAt = now
	}

	doc := orderDocument{
		Number:        strings.TrimSpace(order.Number),
		UserID:        strings.TrimSpace(order.UserID),
		Currency:      strings.ToUpper(strings.TrimSpace(order.Currency)),
		Subtotal:      order.Subtotal,
		Tax:           order.Tax,
		Discount:      order.Discount,
		Total:         order.Total,
		CouponCode:    strings.TrimSpace(order.CouponCode),
		Status:        string(order.Status),
		PaymentStatus: string(order.PaymentStatus),
		PaymentMethod: string(order.PaymentMethod),
		PaymentID:     strings.TrimSpace(order.PaymentID),
		Shipping:      encodeAddress(order.ShippingAddress),
		Version:       order.Version,
		CreatedAt:     createdAt,
		UpdatedAt:     updatedAt,
	}
	for _, item := range order.Items {
		doc.Items = append(doc.Items, orderItemDocument{
			ProductID: item.ProductID,
			VariantID: item.VariantID,
			Name:      item.Name,
			Size:      item.Size,
			UnitPrice: item.UnitPrice,
			Quantity:  item.Quantity,
			IsSample:  item.IsSample,
		})
	}
	if order.GSTDetails != nil {
		doc.GST = &orderGSTDocument{
			GSTNumber:    strings.TrimSpace(order.GSTDetails.GSTNumber),
			BusinessName: strings.TrimSpace(order.GSTDetails.BusinessName),
			Address:      encodeAddress(order.GSTDetails.Address),
		}
	}
	return doc
}

func decodeOrder(doc pfirestore.Document[orderDocument]) domain.Order {
	order := domain.Order{
		ID:              doc.ID,
		Number:          doc.Data.Number,
		UserID:          doc.Data.UserID,
		Currency:        doc.Data.Currency,
		Subtotal:        doc.Data.Subtotal,
		Tax:             doc.Data.Tax,
		Discount:        doc.Data.Discount,
		Total:           doc.Data.Total,
		CouponCode:      doc.Data.CouponCode,
		Status:          domain.OrderStatus(doc.Data.Status),
		PaymentStatus:   domain.PaymentStatus(doc.Data.PaymentStatus),
		PaymentMethod:   domain.PaymentMethod(doc.Data.PaymentMethod),
		PaymentID:       doc.Data.PaymentID,
		ShippingAddress: decodeAddress(doc.Data.Shipping),
		Version:         doc.Data.Version,
		CreatedAt:       doc.Data.CreatedAt,
		UpdatedAt: func() time.Time {
			if !doc.UpdateTime.IsZero() {
				return doc.UpdateTime
			}
			return doc.Data.UpdatedAt
		}(),
	}
	for _, item := range doc.Data.Items {
		order.Items = append(order.Items, domain.OrderItem{
			ProductID: item.ProductID,
			VariantID: item.VariantID,
			Name:      item.Name,
			Size:      item.Size,
			UnitPrice: item.UnitPrice,
			Quantity:  item.Quantity,
			IsSample:  item.IsSample,
		})
	}
	if doc.Data.GST != nil {
		order.GSTDetails = &domain.GSTDetails{
			GSTNumber:    doc.Data.GST.GSTNumber,
			BusinessName: doc.Data.GST.BusinessName,
			Address:      decodeAddress(doc.Data.GST.Address),
		}
	}
	return order
}

func encodeAddress(addr domain.Address) addressDocument {
	country := strings.TrimSpace(addr.Country)
	if country == "" {
		country = "India"
	}
	return addressDocument{
		Name:       strings.TrimSpace(addr.Name),
		Email:      strings.TrimSpace(addr.Email),
		Phone:      strings.TrimSpace(addr.Phone),
		Street:     strings.TrimSpace(addr.Street),
		City:       strings.TrimSpace(addr.City),
		State:      strings.TrimSpace(addr.State),
		PostalCode: strings.TrimSpace(addr.PostalCode),
		Country:    country,
	}
}

func decodeAddress(doc addressDocument) domain.Address {
	return domain.Address{
		Name:       doc.Name,
		Email:      doc.Email,
		Phone:      doc.Phone,
		Street:     doc.Street,
		City:       doc.City,
		State:      doc.State,
		PostalCode: doc.PostalCode,
		Country:    doc.Country,
	}
}

type orderDocument struct {
	Number        string              `firestore:"number"`
	UserID        string              `firestore:"userId"`
	Currency      string              `firestore:"currency"`
	Items         []orderItemDocument `firestore:"items"`
	Subtotal      int64               `firestore:"subtotal"`
	Tax           int64               `firestore:"tax"`
	Discount      int64               `firestore:"discount,omitempty"`
	Total         int64               `firestore:"total"`
	CouponCode    string              `firestore:"couponCode,omitempty"`
	Status        string              `firestore:"status"`
	PaymentStatus string              `firestore:"paymentStatus"`
	PaymentMethod string              `firestore:"paymentMethod"`
	PaymentID     string              `firestore:"paymentId,omitempty"`
	Shipping      addressDocument     `firestore:"shipping"`
	GST           *orderGSTDocument   `firestore:"gst,omitempty"`
	Version       int64               `firestore:"version"`
	CreatedAt     time.Time           `firestore:"createdAt"`
	UpdatedAt     time.Time           `firestore:"updatedAt"`
}

type orderItemDocument struct {
	ProductID string `firestore:"productId"`
	VariantID string `firestore:"variantId,omitempty"`
	Name      string `firestore:"name"`
	Size      string `firestore:"size,omitempty"`
	UnitPrice int64  `firestore:"unitPrice"`
	Quantity  int64  `firestore:"quantity"`
	IsSample  bool   `firestore:"isSample,omitempty"`
}

type orderGSTDocument struct {
	GSTNumber    string          `firestore:"gstNumber"`
	BusinessName string          `firestore:"businessName,omitempty"`
	Address      addressDocument `firestore:"address"`
}

type addressDocument struct {
	Name       string `firestore:"name,omitempty"`
	Email      string `firestore:"email,omitempty"`
	Phone      string `firestore:"phone,omitempty"`
	Street     string `firestore:"street"`
	City       string `firestore:"city"`
	State      string `firestore:"state"`
	PostalCode string `firestore:"postalCode"`
	Country    string `firestore:"country"`
}

var _ repositories.OrderRepository = (*OrderRepository)(nil)
