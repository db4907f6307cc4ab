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
	"github.com/solventline/api/internal/platform/storage"
	"github.com/solventline/api/internal/services"
)

const (
	maxCatalogRequestBody = 256 * 1024
	imageUploadExpiry     = 15 * time.Minute
)

var allowedImageContentTypes = []string{"image/png", "image/jpeg", "image/webp"}

// UploadURLIssuer issues signed upload URLs for catalog media.
type UploadURLIssuer interface {
	SignedURL(ctx context.Context, bucket, object string, opts storage.SignedURLOptions) (storage.SignedURLResult, error)
}

// AdminCatalogHandlers exposes staff/admin catalog maintenance endpoints.
type AdminCatalogHandlers struct {
	authn   *auth.Authenticator
	catalog services.CatalogService
	uploads UploadURLIssuer
	bucket  string
}

// AdminCatalogOption customises admin catalog handler construction.
type AdminCatalogOption func(*AdminCatalogHandlers)

// WithImageUploads enables signed upload URL issuance against the given bucket.
func WithImageUploads(issuer UploadURLIssuer, bucket string) AdminCatalogOption {
	return func(h *AdminCatalogHandlers) {
		h.uploads = issuer
		h.bucket = strings.TrimSpace(bucket)
	}
}

// NewAdminCatalogHandlers constructs admin catalog handlers.
func NewAdminCatalogHandlers(authn *auth.Authenticator, catalog services.CatalogService, opts ...AdminCatalogOption) *AdminCatalogHandlers {
	h := &AdminCatalogHandlers{authn: authn, catalog: catalog}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

// Routes registers admin catalog endpoints.
func (h *AdminCatalogHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireFirebaseAuth(auth.RoleStaff, auth.RoleAdmin))
	}
	r.Post("/products", h.createProduct)
	r.Put("/products/{productID}", h.updateProduct)
	r.Delete("/products/{productID}", h.deleteProduct)
	r.Put("/products/{productID}/variants", h.upsertVariant)
	r.Delete("/products/{productID}/variants/{variantID}", h.deleteVariant)
	r.Post("/products/{productID}/variants/{variantID}/stock", h.adjustStock)
	r.Post("/products/{productID}/images", h.issueImageUpload)
}

func (h *AdminCatalogHandlers) createProduct(w http.ResponseWriter, r *http.Request) {
	h.saveProduct(w, r, "")
}

func (h *AdminCatalogHandlers) updateProduct(w http.ResponseWriter, r *http.Request) {
	h.saveProduct(w, r, chi.URLParam(r, "productID"))
}

func (h *AdminCatalogHandlers) saveProduct(w http.ResponseWriter, r *http.Request, productID string) {
	ctx := r.Context()
	identity, ok := h.requireIdentity(ctx, w)
	if !ok {
		return
	}

	body, err := readLimitedBody(r, maxCatalogRequestBody)
	if err != nil {
		writeCartBodyError(ctx, w, err)
		return
	}

	var req adminProductRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "request body must be valid JSON", http.StatusBadRequest))
		return
	}

	samplePrice, err := paiseFromRequest(req.SamplePrice, req.SamplePriceINR)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	product := domain.Product{
		ID:              strings.TrimSpace(productID),
		Name:            strings.TrimSpace(req.Name),
		Slug:            strings.TrimSpace(req.Slug),
		Description:     req.Description,
		Features:        req.Features,
		MainImage:       strings.TrimSpace(req.MainImage),
		SampleAvailable: req.SampleAvailable,
		SamplePrice:     samplePrice,
	}

	saved, err := h.catalog.UpsertProduct(ctx, services.UpsertProductCommand{
		Product: product,
		ActorID: identity.UID,
	})
	if err != nil {
		writeCatalogError(ctx, w, err)
		return
	}

	status := http.StatusOK
	if r.Method == http.MethodPost {
		status = http.StatusCreated
	}
	writeJSONResponse(w, status, productResponse{Product: buildProductPayload(saved)})
}

func (h *AdminCatalogHandlers) deleteProduct(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if _, ok := h.requireIdentity(ctx, w); !ok {
		return
	}

	productID := strings.TrimSpace(chi.URLParam(r, "productID"))
	if productID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "product id is required", http.StatusBadRequest))
		return
	}

	if err := h.catalog.DeleteProduct(ctx, productID); err != nil {
		writeCatalogError(ctx, w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *AdminCatalogHandlers) upsertVariant(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := h.requireIdentity(ctx, w)
	if !ok {
		return
	}

	productID := strings.TrimSpace(chi.URLParam(r, "productID"))
	if productID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "product id is required", http.StatusBadRequest))
		return
	}

	body, err := readLimitedBody(r, maxCatalogRequestBody)
	if err != nil {
		writeCartBodyError(ctx, w, err)
		return
	}

	var req adminVariantRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "request body must be valid JSON", http.StatusBadRequest))
		return
	}

	price, err := paiseFromRequest(req.Price, req.PriceINR)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	variant := domain.ProductVariant{
		ID:        strings.TrimSpace(req.ID),
		ProductID: productID,
		Size:      strings.TrimSpace(req.Size),
		Price:     price,
		Stock:     req.Stock,
		Image:     strings.TrimSpace(req.Image),
	}

	saved, err := h.catalog.UpsertVariant(ctx, services.UpsertVariantCommand{
		Variant: variant,
		ActorID: identity.UID,
	})
	if err != nil {
		writeCatalogError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, variantResponse{Variant: buildVariantPayload(saved)})
}

func (h *AdminCatalogHandlers) deleteVariant(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if _, ok := h.requireIdentity(ctx, w); !ok {
		return
	}

	productID := strings.TrimSpace(chi.URLParam(r, "productID"))
	variantID := strings.TrimSpace(chi.URLParam(r, "variantID"))
	if productID == "" || variantID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "product id and variant id are required", http.StatusBadRequest))
		return
	}

	if err := h.catalog.DeleteVariant(ctx, productID, variantID); err != nil {
		writeCatalogError(ctx, w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *AdminCatalogHandlers) adjustStock(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := h.requireIdentity(ctx, w)
	if !ok {
		return
	}

	productID := strings.TrimSpace(chi.URLParam(r, "productID"))
	variantID := strings.TrimSpace(chi.URLParam(r, "variantID"))
	if productID == "" || variantID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "product id and variant id are required", http.StatusBadRequest))
		return
	}

	body, err := readLimitedBody(r, maxCatalogRequestBody)
	if err != nil {
		writeCartBodyError(ctx, w, err)
		return
	}

	var req adjustStockRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "request body must be valid JSON", http.StatusBadRequest))
		return
	}
	if req.Delta == nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "delta is required", http.StatusBadRequest))
		return
	}

	remaining, err := h.catalog.AdjustStock(ctx, services.AdjustStockCommand{
		ProductID: productID,
		VariantID: variantID,
		Delta:     *req.Delta,
		ActorID:   identity.UID,
	})
	if err != nil {
		writeCatalogError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, adjustStockResponse{
		ProductID: productID,
		VariantID: variantID,
		Stock:     remaining,
	})
}

func (h *AdminCatalogHandlers) issueImageUpload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if _, ok := h.requireIdentity(ctx, w); !ok {
		return
	}
	if h.uploads == nil || h.bucket == "" {
		httpx.WriteError(ctx, w, httpx.NewError("uploads_unavailable", "image uploads are not configured", http.StatusServiceUnavailable))
		return
	}

	productID := strings.TrimSpace(chi.URLParam(r, "productID"))
	if productID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "product id is required", http.StatusBadRequest))
		return
	}

	body, err := readLimitedBody(r, maxCatalogRequestBody)
	if err != nil {
		writeCartBodyError(ctx, w, err)
		return
	}

	var req imageUploadRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "request body must be valid JSON", http.StatusBadRequest))
		return
	}

	params := storage.PathParams{
		ProductID: productID,
		VariantID: strings.TrimSpace(req.VariantID),
		FileName:  strings.TrimSpace(req.FileName),
	}
	purpose := storage.PurposeProductImage
	if params.VariantID != "" {
		purpose = storage.PurposeVariantImage
	}

	object, err := storage.BuildObjectPath(purpose, params)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	result, err := h.uploads.SignedURL(ctx, h.bucket, object, storage.SignedURLOptions{
		Upload: &storage.UploadOptions{
			Method:              http.MethodPut,
			ContentType:         strings.TrimSpace(req.ContentType),
			AllowedContentTypes: allowedImageContentTypes,
			ExpiresIn:           imageUploadExpiry,
		},
	})
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	payload := imageUploadResponse{
		ObjectPath: object,
		UploadURL:  result.URL,
		Method:     result.Method,
		Headers:    result.Headers,
	}
	if !result.ExpiresAt.IsZero() {
		payload.ExpiresAt = result.ExpiresAt.UTC().Format(time.RFC3339)
	}
	writeJSONResponse(w, http.StatusOK, payload)
}

func (h *AdminCatalogHandlers) requireIdentity(ctx context.Context, w http.ResponseWriter) (*auth.Identity, bool) {
	if h.catalog == nil {
		httpx.WriteError(ctx, w, httpx.NewError("catalog_service_unavailable", "catalog service unavailable", http.StatusServiceUnavailable))
		return nil, false
	}
	identity, ok := auth.IdentityFromContext(ctx)
	if !ok || identity == nil || strings.TrimSpace(identity.UID) == "" {
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return nil, false
	}
	return identity, true
}

type adminProductRequest struct {
	Name            string   `json:"name"`
	Slug            string   `json:"slug,omitempty"`
	Description     string   `json:"description,omitempty"`
	Features        []string `json:"features,omitempty"`
	MainImage       string   `json:"main_image,omitempty"`
	SampleAvailable bool     `json:"sample_available,omitempty"`
	SamplePrice     *int64   `json:"sample_price,omitempty"`
	SamplePriceINR  *int64   `json:"sample_price_inr,omitempty"`
}

type adminVariantRequest struct {
	ID       string `json:"id,omitempty"`
	Size     string `json:"size"`
	Price    *int64 `json:"price,omitempty"`
	PriceINR *int64 `json:"price_inr,omitempty"`
	Stock    int64  `json:"stock"`
	Image    string `json:"image,omitempty"`
}

type adjustStockRequest struct {
	Delta *int64 `json:"delta"`
}

type adjustStockResponse struct {
	ProductID string `json:"product_id"`
	VariantID string `json:"variant_id"`
	Stock     int64  `json:"stock"`
}

type imageUploadRequest struct {
	VariantID   string `json:"variant_id,omitempty"`
	FileName    string `json:"file_name"`
	ContentType string `json:"content_type"`
}

type imageUploadResponse struct {
	ObjectPath string            `json:"object_path"`
	UploadURL  string            `json:"upload_url"`
	Method     string            `json:"method"`
	Headers    map[string]string `json:"headers,omitempty"`
	ExpiresAt  string            `json:"expires_at,omitempty"`
}

// Rupee-denominated alternates are converted to paise here and nowhere else;
// everything past the HTTP layer carries paise.
func paiseFromRequest(paise *int64, rupees *int64) (int64, error) {
	switch {
	case paise != nil && rupees != nil:
		return 0, errors.New("amount may be given in paise or rupees, not both")
	case paise != nil:
		return *paise, nil
	case rupees != nil:
		return *rupees * 100, nil
	}
	return 0, nil
}
