package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	domain "github.com/solventline/api/internal/domain"
	"github.com/solventline/api/internal/platform/auth"
	"github.com/solventline/api/internal/platform/httpx"
	"github.com/solventline/api/internal/repositories"
	"github.com/solventline/api/internal/services"
)

const maxProfileBodySize = 64 * 1024

var (
	errBodyTooLarge     = errors.New("request body too large")
	errEmptyBody        = errors.New("request body is required")
	errNoEditableFields = errors.New("no editable fields provided")
)

// MeHandlers exposes authenticated profile endpoints for the current user.
type MeHandlers struct {
	authn *auth.Authenticator
	users services.UserService
}

// NewMeHandlers constructs handlers enforcing Firebase authentication before invoking the user service.
func NewMeHandlers(authn *auth.Authenticator, users services.UserService) *MeHandlers {
	return &MeHandlers{
		authn: authn,
		users: users,
	}
}

// Routes wires the /me endpoints onto the provided router.
func (h *MeHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireFirebaseAuth())
	}
	r.Get("/", h.getProfile)
	r.Put("/", h.updateProfile)
}

func (h *MeHandlers) getProfile(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.users == nil {
		httpx.WriteError(ctx, w, httpx.NewError("profile_service_unavailable", "profile service is unavailable", http.StatusServiceUnavailable))
		return
	}

	identity, ok := auth.IdentityFromContext(ctx)
	if !ok || identity == nil || strings.TrimSpace(identity.UID) == "" {
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return
	}

	profile, err := h.users.GetProfile(ctx, identity.UID)
	if err != nil {
		writeUserProfileError(ctx, w, err)
		return
	}

	payload := meResponse{Profile: buildProfilePayload(profile, identity)}
	writeJSONResponse(w, http.StatusOK, payload)
}

func (h *MeHandlers) updateProfile(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.users == nil {
		httpx.WriteError(ctx, w, httpx.NewError("profile_service_unavailable", "profile service is unavailable", http.StatusServiceUnavailable))
		return
	}

	identity, ok := auth.IdentityFromContext(ctx)
	if !ok || identity == nil || strings.TrimSpace(identity.UID) == "" {
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return
	}

	body, err := readLimitedBody(r, maxProfileBodySize)
	if err != nil {
		switch {
		case errors.Is(err, errBodyTooLarge):
			httpx.WriteError(ctx, w, httpx.NewError("payload_too_large", "request body exceeds allowed size", http.StatusRequestEntityTooLarge))
		default:
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		}
		return
	}

	updateReq, err := parseUpdateProfileRequest(body)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	cmd := services.UpdateProfileCommand{
		UserID:  identity.UID,
		ActorID: identity.UID,
	}
	if updateReq.hasDisplayName {
		cmd.DisplayName = cloneStringPointer(updateReq.displayName)
	}
	if updateReq.hasPhone {
		cmd.Phone = cloneStringPointer(updateReq.phone)
	}
	if updateReq.hasLocale {
		cmd.Locale = cloneStringPointer(updateReq.locale)
	}
	if updateReq.hasDefaultAddress {
		cmd.DefaultAddress = updateReq.defaultAddress
	}
	if updateReq.hasGSTDetails {
		cmd.GSTDetails = updateReq.gstDetails
	}

	updated, err := h.users.UpdateProfile(ctx, cmd)
	if err != nil {
		writeUserProfileError(ctx, w, err)
		return
	}

	payload := meResponse{Profile: buildProfilePayload(updated, identity)}
	writeJSONResponse(w, http.StatusOK, payload)
}

type meResponse struct {
	Profile meProfilePayload `json:"profile"`
}

type meProfilePayload struct {
	UID            string             `json:"uid"`
	Email          string             `json:"email"`
	DisplayName    string             `json:"display_name"`
	Phone          string             `json:"phone,omitempty"`
	Locale         string             `json:"locale,omitempty"`
	DefaultAddress *addressPayload    `json:"default_address,omitempty"`
	GSTDetails     *gstDetailsPayload `json:"gst_details,omitempty"`
	Roles          []string           `json:"roles"`
	CreatedAt      string             `json:"created_at,omitempty"`
	UpdatedAt      string             `json:"updated_at,omitempty"`
}

type addressPayload struct {
	Name       string `json:"name"`
	Email      string `json:"email,omitempty"`
	Phone      string `json:"phone"`
	Street     string `json:"street"`
	City       string `json:"city"`
	State      string `json:"state"`
	PostalCode string `json:"postal_code"`
	Country    string `json:"country"`
}

type gstDetailsPayload struct {
	GSTNumber    string          `json:"gst_number"`
	BusinessName string          `json:"business_name"`
	Address      *addressPayload `json:"address,omitempty"`
}

type updateProfileRequest struct {
	displayName       *string
	phone             *string
	locale            *string
	defaultAddress    *domain.Address
	gstDetails        *domain.GSTDetails
	hasDisplayName    bool
	hasPhone          bool
	hasLocale         bool
	hasDefaultAddress bool
	hasGSTDetails     bool
}

func readLimitedBody(r *http.Request, limit int64) ([]byte, error) {
	if r == nil || r.Body == nil {
		return nil, errEmptyBody
	}
	if limit <= 0 {
		limit = maxProfileBodySize
	}
	reader := io.LimitReader(r.Body, limit+1)
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, err
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil, errEmptyBody
	}
	if int64(len(data)) > limit {
		return nil, errBodyTooLarge
	}
	return data, nil
}

func parseUpdateProfileRequest(data []byte) (updateProfileRequest, error) {
	var req updateProfileRequest
	if len(strings.TrimSpace(string(data))) == 0 {
		return req, errEmptyBody
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return req, fmt.Errorf("invalid JSON payload: %w", err)
	}
	if len(raw) == 0 {
		return req, errNoEditableFields
	}

	updateFields := 0
	for key, value := range raw {
		switch key {
		case "display_name":
			if isJSONNull(value) {
				return req, errors.New("display_name must not be null")
			}
			var name string
			if err := json.Unmarshal(value, &name); err != nil {
				return req, errors.New("display_name must be a string")
			}
			req.displayName = &name
			req.hasDisplayName = true
			updateFields++
		case "phone":
			if isJSONNull(value) {
				empty := ""
				req.phone = &empty
			} else {
				var phone string
				if err := json.Unmarshal(value, &phone); err != nil {
					return req, errors.New("phone must be a string")
				}
				req.phone = &phone
			}
			req.hasPhone = true
			updateFields++
		case "locale":
			if isJSONNull(value) {
				empty := ""
				req.locale = &empty
			} else {
				var locale string
				if err := json.Unmarshal(value, &locale); err != nil {
					return req, errors.New("locale must be a string")
				}
				req.locale = &locale
			}
			req.hasLocale = true
			updateFields++
		case "default_address":
			req.hasDefaultAddress = true
			updateFields++
			if isJSONNull(value) {
				req.defaultAddress = nil
				continue
			}
			var addr addressPayload
			if err := json.Unmarshal(value, &addr); err != nil {
				return req, errors.New("default_address must be an address object or null")
			}
			parsed := addressFromPayload(addr)
			req.defaultAddress = &parsed
		case "gst_details":
			req.hasGSTDetails = true
			updateFields++
			if isJSONNull(value) {
				req.gstDetails = nil
				continue
			}
			var gst gstDetailsPayload
			if err := json.Unmarshal(value, &gst); err != nil {
				return req, errors.New("gst_details must be an object or null")
			}
			details := domain.GSTDetails{
				GSTNumber:    strings.TrimSpace(gst.GSTNumber),
				BusinessName: strings.TrimSpace(gst.BusinessName),
			}
			if gst.Address != nil {
				details.Address = addressFromPayload(*gst.Address)
			}
			req.gstDetails = &details
		default:
			return req, fmt.Errorf("field %q is not editable", key)
		}
	}

	if updateFields == 0 {
		return req, errNoEditableFields
	}

	return req, nil
}

func isJSONNull(value json.RawMessage) bool {
	return strings.EqualFold(strings.TrimSpace(string(value)), "null")
}

func parseRFC3339(value string) (time.Time, error) {
	layouts := []string{time.RFC3339Nano, time.RFC3339}
	for _, layout := range layouts {
		if parsed, err := time.Parse(layout, value); err == nil {
			return parsed.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid time %q", value)
}

func buildProfilePayload(profile services.UserProfile, identity *auth.Identity) meProfilePayload {
	email := strings.TrimSpace(strings.ToLower(profile.Email))
	if email == "" && identity != nil {
		email = strings.TrimSpace(strings.ToLower(identity.Email))
	}

	locale := strings.TrimSpace(profile.Locale)
	if locale == "" && identity != nil {
		locale = strings.TrimSpace(identity.Locale)
	}

	roles := slices.Clone(profile.Roles)
	if len(roles) == 0 && identity != nil {
		roles = slices.Clone(identity.Roles)
	}
	if len(roles) == 0 {
		roles = []string{}
	}

	payload := meProfilePayload{
		UID:         strings.TrimSpace(profile.UID),
		Email:       email,
		DisplayName: profile.DisplayName,
		Phone:       strings.TrimSpace(profile.Phone),
		Locale:      locale,
		Roles:       roles,
		CreatedAt:   formatTime(profile.CreatedAt),
		UpdatedAt:   formatTime(profile.UpdatedAt),
	}

	if profile.DefaultAddress != nil {
		addr := buildAddressPayload(*profile.DefaultAddress)
		payload.DefaultAddress = &addr
	}
	if profile.GSTDetails != nil {
		payload.GSTDetails = buildGSTDetailsPayload(profile.GSTDetails)
	}

	return payload
}

func buildAddressPayload(addr domain.Address) addressPayload {
	return addressPayload{
		Name:       strings.TrimSpace(addr.Name),
		Email:      strings.TrimSpace(addr.Email),
		Phone:      strings.TrimSpace(addr.Phone),
		Street:     strings.TrimSpace(addr.Street),
		City:       strings.TrimSpace(addr.City),
		State:      strings.TrimSpace(addr.State),
		PostalCode: strings.TrimSpace(addr.PostalCode),
		Country:    strings.TrimSpace(addr.Country),
	}
}

func addressFromPayload(payload addressPayload) domain.Address {
	return domain.Address{
		Name:       strings.TrimSpace(payload.Name),
		Email:      strings.TrimSpace(payload.Email),
		Phone:      strings.TrimSpace(payload.Phone),
		Street:     strings.TrimSpace(payload.Street),
		City:       strings.TrimSpace(payload.City),
		State:      strings.TrimSpace(payload.State),
		PostalCode: strings.TrimSpace(payload.PostalCode),
		Country:    strings.TrimSpace(payload.Country),
	}
}

func buildGSTDetailsPayload(details *domain.GSTDetails) *gstDetailsPayload {
	if details == nil {
		return nil
	}
	payload := &gstDetailsPayload{
		GSTNumber:    strings.TrimSpace(details.GSTNumber),
		BusinessName: strings.TrimSpace(details.BusinessName),
	}
	if details.Address != (domain.Address{}) {
		addr := buildAddressPayload(details.Address)
		payload.Address = &addr
	}
	return payload
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func writeJSONResponse(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func cloneStringPointer(value *string) *string {
	if value == nil {
		return nil
	}
	copy := *value
	return &copy
}

func writeUserProfileError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}

	switch {
	case errors.Is(err, services.ErrUserInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_profile_field", err.Error(), http.StatusBadRequest))
		return
	case errors.Is(err, services.ErrUserNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("profile_not_found", "profile not found", http.StatusNotFound))
		return
	case errors.Is(err, services.ErrUserUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("profile_service_unavailable", "profile repository unavailable", http.StatusServiceUnavailable))
		return
	}

	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			httpx.WriteError(ctx, w, httpx.NewError("profile_not_found", "profile not found", http.StatusNotFound))
			return
		case repoErr.IsUnavailable():
			httpx.WriteError(ctx, w, httpx.NewError("profile_service_unavailable", "profile repository unavailable", http.StatusServiceUnavailable))
			return
		}
	}

	httpx.WriteError(ctx, w, httpx.NewError("profile_error", err.Error(), http.StatusInternalServerError))
}
