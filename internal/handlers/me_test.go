package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	domain "github.com/solventline/api/internal/domain"
	"github.com/solventline/api/internal/platform/auth"
	"github.com/solventline/api/internal/services"
)

func TestMeHandlersGetProfileSuccess(t *testing.T) {
	created := time.Date(2025, 1, 15, 10, 0, 0, 0, time.UTC)
	service := &stubUserService{
		getProfileFunc: func(ctx context.Context, userID string) (services.UserProfile, error) {
			if userID != "user-1" {
				t.Fatalf("unexpected user id %q", userID)
			}
			return services.UserProfile{
				UID:         "user-1",
				Email:       "Asha@Example.com",
				DisplayName: "Asha Rao",
				Phone:       "+919800000001",
				Locale:      "en-IN",
				DefaultAddress: &domain.Address{
					Name:    "Asha Rao",
					Street:  "14 Industrial Estate",
					City:    "Pune",
					Country: "IN",
				},
				GSTDetails: &domain.GSTDetails{GSTNumber: "27AAPFU0939F1ZV", BusinessName: "Rao Coatings"},
				Roles:      []string{"user"},
				CreatedAt:  created,
			}, nil
		},
	}

	handler := NewMeHandlers(nil, service)
	router := chi.NewRouter()
	router.Route("/me", handler.Routes)

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req = req.WithContext(auth.WithIdentity(req.Context(), &auth.Identity{UID: "user-1"}))

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}

	var resp meResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Profile.Email != "asha@example.com" {
		t.Fatalf("expected lowercased email, got %q", resp.Profile.Email)
	}
	if resp.Profile.DefaultAddress == nil || resp.Profile.DefaultAddress.City != "Pune" {
		t.Fatalf("expected default address in payload, got %#v", resp.Profile.DefaultAddress)
	}
	if resp.Profile.GSTDetails == nil || resp.Profile.GSTDetails.GSTNumber != "27AAPFU0939F1ZV" {
		t.Fatalf("expected gst details in payload, got %#v", resp.Profile.GSTDetails)
	}
}

func TestMeHandlersGetProfileFallsBackToIdentity(t *testing.T) {
	service := &stubUserService{
		getProfileFunc: func(ctx context.Context, userID string) (services.UserProfile, error) {
			return services.UserProfile{UID: userID}, nil
		},
	}

	handler := NewMeHandlers(nil, service)
	router := chi.NewRouter()
	router.Route("/me", handler.Routes)

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req = req.WithContext(auth.WithIdentity(req.Context(), &auth.Identity{
		UID:    "user-2",
		Email:  "fallback@example.com",
		Locale: "hi-IN",
		Roles:  []string{"user"},
	}))

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}

	var resp meResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Profile.Email != "fallback@example.com" {
		t.Fatalf("expected identity email fallback, got %q", resp.Profile.Email)
	}
	if resp.Profile.Locale != "hi-IN" {
		t.Fatalf("expected identity locale fallback, got %q", resp.Profile.Locale)
	}
}

func TestMeHandlersUpdateProfilePartialPatch(t *testing.T) {
	var captured services.UpdateProfileCommand
	service := &stubUserService{
		updateProfileFunc: func(ctx context.Context, cmd services.UpdateProfileCommand) (services.UserProfile, error) {
			captured = cmd
			return services.UserProfile{UID: cmd.UserID, DisplayName: "New Name"}, nil
		},
	}

	handler := NewMeHandlers(nil, service)
	router := chi.NewRouter()
	router.Route("/me", handler.Routes)

	body := `{"display_name":"New Name","phone":null}`
	req := httptest.NewRequest(http.MethodPut, "/me", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req = req.WithContext(auth.WithIdentity(req.Context(), &auth.Identity{UID: "user-3"}))

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	if captured.DisplayName == nil || *captured.DisplayName != "New Name" {
		t.Fatalf("expected display name pointer, got %#v", captured.DisplayName)
	}
	if captured.Phone == nil || *captured.Phone != "" {
		t.Fatalf("expected phone cleared via null, got %#v", captured.Phone)
	}
	if captured.Locale != nil {
		t.Fatalf("expected locale untouched, got %#v", captured.Locale)
	}
}

func TestMeHandlersUpdateProfileClearsAddress(t *testing.T) {
	var captured services.UpdateProfileCommand
	service := &stubUserService{
		updateProfileFunc: func(ctx context.Context, cmd services.UpdateProfileCommand) (services.UserProfile, error) {
			captured = cmd
			return services.UserProfile{UID: cmd.UserID}, nil
		},
	}

	handler := NewMeHandlers(nil, service)
	router := chi.NewRouter()
	router.Route("/me", handler.Routes)

	req := httptest.NewRequest(http.MethodPut, "/me", strings.NewReader(`{"default_address":null}`))
	req.Header.Set("Content-Type", "application/json")
	req = req.WithContext(auth.WithIdentity(req.Context(), &auth.Identity{UID: "user-4"}))

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	if captured.DefaultAddress != nil {
		t.Fatalf("expected nil address to clear, got %#v", captured.DefaultAddress)
	}
}

func TestMeHandlersUpdateProfileRejectsNullDisplayName(t *testing.T) {
	handler := NewMeHandlers(nil, &stubUserService{})
	router := chi.NewRouter()
	router.Route("/me", handler.Routes)

	req := httptest.NewRequest(http.MethodPut, "/me", strings.NewReader(`{"display_name":null}`))
	req.Header.Set("Content-Type", "application/json")
	req = req.WithContext(auth.WithIdentity(req.Context(), &auth.Identity{UID: "user-1"}))

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rr.Code)
	}
}

func TestMeHandlersUpdateProfileRejectsUnknownField(t *testing.T) {
	handler := NewMeHandlers(nil, &stubUserService{})
	router := chi.NewRouter()
	router.Route("/me", handler.Routes)

	req := httptest.NewRequest(http.MethodPut, "/me", strings.NewReader(`{"roles":["admin"]}`))
	req.Header.Set("Content-Type", "application/json")
	req = req.WithContext(auth.WithIdentity(req.Context(), &auth.Identity{UID: "user-1"}))

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rr.Code)
	}
}

func TestMeHandlersUnauthenticated(t *testing.T) {
	handler := NewMeHandlers(nil, &stubUserService{})
	router := chi.NewRouter()
	router.Route("/me", handler.Routes)

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401, got %d", rr.Code)
	}
}

type stubUserService struct {
	getProfileFunc    func(ctx context.Context, userID string) (services.UserProfile, error)
	updateProfileFunc func(ctx context.Context, cmd services.UpdateProfileCommand) (services.UserProfile, error)
	listUsersFunc     func(ctx context.Context, filter services.UserListFilter) (domain.CursorPage[services.UserProfile], error)
}

func (s *stubUserService) GetProfile(ctx context.Context, userID string) (services.UserProfile, error) {
	if s.getProfileFunc != nil {
		return s.getProfileFunc(ctx, userID)
	}
	return services.UserProfile{}, errors.New("not implemented")
}

func (s *stubUserService) UpdateProfile(ctx context.Context, cmd services.UpdateProfileCommand) (services.UserProfile, error) {
	if s.updateProfileFunc != nil {
		return s.updateProfileFunc(ctx, cmd)
	}
	return services.UserProfile{}, errors.New("not implemented")
}

func (s *stubUserService) ListUsers(ctx context.Context, filter services.UserListFilter) (domain.CursorPage[services.UserProfile], error) {
	if s.listUsersFunc != nil {
		return s.listUsersFunc(ctx, filter)
	}
	return domain.CursorPage[services.UserProfile]{}, errors.New("not implemented")
}
