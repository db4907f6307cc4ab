package services

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	firebaseauth "firebase.google.com/go/v4/auth"

	domain "github.com/solventline/api/internal/domain"
	"github.com/solventline/api/internal/repositories"
)

type stubUserRepository struct {
	findByIDFunc      func(ctx context.Context, userID string) (domain.UserProfile, error)
	updateProfileFunc func(ctx context.Context, profile domain.UserProfile) (domain.UserProfile, error)
	listFunc          func(ctx context.Context, filter repositories.UserListFilter) (domain.CursorPage[domain.UserProfile], error)
}

func (s *stubUserRepository) FindByID(ctx context.Context, userID string) (domain.UserProfile, error) {
	if s.findByIDFunc == nil {
		return domain.UserProfile{}, errors.New("unexpected FindByID call")
	}
	return s.findByIDFunc(ctx, userID)
}

func (s *stubUserRepository) UpdateProfile(ctx context.Context, profile domain.UserProfile) (domain.UserProfile, error) {
	if s.updateProfileFunc == nil {
		return domain.UserProfile{}, errors.New("unexpected UpdateProfile call")
	}
	return s.updateProfileFunc(ctx, profile)
}

func (s *stubUserRepository) List(ctx context.Context, filter repositories.UserListFilter) (domain.CursorPage[domain.UserProfile], error) {
	if s.listFunc == nil {
		return domain.CursorPage[domain.UserProfile]{}, errors.New("unexpected List call")
	}
	return s.listFunc(ctx, filter)
}

type stubUserGetter struct {
	getUserFunc func(ctx context.Context, uid string) (*firebaseauth.UserRecord, error)
}

func (s *stubUserGetter) GetUser(ctx context.Context, uid string) (*firebaseauth.UserRecord, error) {
	if s.getUserFunc == nil {
		return nil, errors.New("unexpected GetUser call")
	}
	return s.getUserFunc(ctx, uid)
}

func newTestUserService(t *testing.T, repo repositories.UserRepository, firebase *stubUserGetter) UserService {
	t.Helper()
	deps := UserServiceDeps{
		Users: repo,
		Clock: func() time.Time { return time.Date(2025, 3, 4, 10, 0, 0, 0, time.UTC) },
	}
	if firebase != nil {
		deps.Firebase = firebase
	}
	service, err := NewUserService(deps)
	if err != nil {
		t.Fatalf("unexpected error constructing user service: %v", err)
	}
	return service
}

func TestUserGetProfileReturnsStored(t *testing.T) {
	repo := &stubUserRepository{
		findByIDFunc: func(ctx context.Context, userID string) (domain.UserProfile, error) {
			return domain.UserProfile{UID: userID, DisplayName: "Asha"}, nil
		},
	}
	service := newTestUserService(t, repo, nil)

	profile, err := service.GetProfile(context.Background(), "user-17")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if profile.DisplayName != "Asha" {
		t.Fatalf("expected stored profile, got %+v", profile)
	}
}

func TestUserGetProfileBootstrapsFromAuthRecord(t *testing.T) {
	var saved domain.UserProfile
	repo := &stubUserRepository{
		findByIDFunc: func(ctx context.Context, userID string) (domain.UserProfile, error) {
			return domain.UserProfile{}, &repositoryErrorStub{notFound: true}
		},
		updateProfileFunc: func(ctx context.Context, profile domain.UserProfile) (domain.UserProfile, error) {
			saved = profile
			return profile, nil
		},
	}
	firebase := &stubUserGetter{
		getUserFunc: func(ctx context.Context, uid string) (*firebaseauth.UserRecord, error) {
			return &firebaseauth.UserRecord{
				UserInfo: &firebaseauth.UserInfo{
					UID:         uid,
					Email:       "asha@example.in",
					DisplayName: "Asha Traders",
					PhoneNumber: "+919876543210",
				},
			}, nil
		},
	}
	service := newTestUserService(t, repo, firebase)

	profile, err := service.GetProfile(context.Background(), "user-17")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if saved.UID != "user-17" {
		t.Fatalf("expected profile persisted, got %+v", saved)
	}
	if profile.Email != "asha@example.in" || profile.DisplayName != "Asha Traders" {
		t.Fatalf("expected auth record copied into profile, got %+v", profile)
	}
	if profile.CreatedAt.IsZero() {
		t.Fatalf("expected creation timestamp")
	}
}

func TestUserGetProfileUnknownAuthUser(t *testing.T) {
	repo := &stubUserRepository{
		findByIDFunc: func(ctx context.Context, userID string) (domain.UserProfile, error) {
			return domain.UserProfile{}, &repositoryErrorStub{notFound: true}
		},
	}
	firebase := &stubUserGetter{
		getUserFunc: func(ctx context.Context, uid string) (*firebaseauth.UserRecord, error) {
			return nil, errors.New("no such user")
		},
	}
	service := newTestUserService(t, repo, firebase)

	_, err := service.GetProfile(context.Background(), "user-ghost")
	if !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
}

func TestUserUpdateProfilePatchesOnlySuppliedFields(t *testing.T) {
	stored := domain.UserProfile{
		UID:         "user-17",
		DisplayName: "Asha",
		Phone:       "+919876543210",
		Locale:      "en-IN",
	}
	var saved domain.UserProfile
	repo := &stubUserRepository{
		findByIDFunc: func(ctx context.Context, userID string) (domain.UserProfile, error) {
			return stored, nil
		},
		updateProfileFunc: func(ctx context.Context, profile domain.UserProfile) (domain.UserProfile, error) {
			saved = profile
			return profile, nil
		},
	}
	service := newTestUserService(t, repo, nil)

	_, err := service.UpdateProfile(context.Background(), UpdateProfileCommand{
		UserID:      "user-17",
		DisplayName: strPtr("Asha Paints"),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if saved.DisplayName != "Asha Paints" {
		t.Fatalf("expected display name patched, got %q", saved.DisplayName)
	}
	if saved.Phone != "+919876543210" || saved.Locale != "en-IN" {
		t.Fatalf("expected untouched fields preserved, got %+v", saved)
	}
}

func TestUserUpdateProfilePhoneValidation(t *testing.T) {
	repo := &stubUserRepository{
		findByIDFunc: func(ctx context.Context, userID string) (domain.UserProfile, error) {
			return domain.UserProfile{UID: userID}, nil
		},
		updateProfileFunc: func(ctx context.Context, profile domain.UserProfile) (domain.UserProfile, error) {
			return profile, nil
		},
	}
	service := newTestUserService(t, repo, nil)
	ctx := context.Background()

	valid := []string{"+919876543210", "9876543210", "+91 98765 43210"}
	for _, phone := range valid {
		if _, err := service.UpdateProfile(ctx, UpdateProfileCommand{UserID: "user-17", Phone: strPtr(phone)}); err != nil {
			t.Fatalf("expected %q accepted, got %v", phone, err)
		}
	}

	invalid := []string{"12345", "+911234567890", "98765432101", "+4477009001"}
	for _, phone := range invalid {
		if _, err := service.UpdateProfile(ctx, UpdateProfileCommand{UserID: "user-17", Phone: strPtr(phone)}); !errors.Is(err, ErrUserInvalidInput) {
			t.Fatalf("expected %q rejected, got %v", phone, err)
		}
	}
}

func TestUserUpdateProfileGSTINValidation(t *testing.T) {
	var saved domain.UserProfile
	repo := &stubUserRepository{
		findByIDFunc: func(ctx context.Context, userID string) (domain.UserProfile, error) {
			return domain.UserProfile{UID: userID}, nil
		},
		updateProfileFunc: func(ctx context.Context, profile domain.UserProfile) (domain.UserProfile, error) {
			saved = profile
			return profile, nil
		},
	}
	service := newTestUserService(t, repo, nil)
	ctx := context.Background()

	_, err := service.UpdateProfile(ctx, UpdateProfileCommand{
		UserID:     "user-17",
		GSTDetails: &GSTDetails{GSTNumber: "27aapfu0939f1zv", BusinessName: " Asha Traders "},
	})
	if err != nil {
		t.Fatalf("expected valid gstin accepted, got %v", err)
	}
	if saved.GSTDetails == nil || saved.GSTDetails.GSTNumber != "27AAPFU0939F1ZV" {
		t.Fatalf("expected uppercased gstin stored, got %+v", saved.GSTDetails)
	}
	if saved.GSTDetails.BusinessName != "Asha Traders" {
		t.Fatalf("expected trimmed business name, got %q", saved.GSTDetails.BusinessName)
	}

	_, err = service.UpdateProfile(ctx, UpdateProfileCommand{
		UserID:     "user-17",
		GSTDetails: &GSTDetails{GSTNumber: "INVALID123"},
	})
	if !errors.Is(err, ErrUserInvalidInput) {
		t.Fatalf("expected invalid gstin rejected, got %v", err)
	}

	// Empty GSTIN clears the registration.
	_, err = service.UpdateProfile(ctx, UpdateProfileCommand{
		UserID:     "user-17",
		GSTDetails: &GSTDetails{},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if saved.GSTDetails != nil {
		t.Fatalf("expected gst details cleared, got %+v", saved.GSTDetails)
	}
}

func TestUserUpdateProfileLocaleCanonicalised(t *testing.T) {
	var saved domain.UserProfile
	repo := &stubUserRepository{
		findByIDFunc: func(ctx context.Context, userID string) (domain.UserProfile, error) {
			return domain.UserProfile{UID: userID}, nil
		},
		updateProfileFunc: func(ctx context.Context, profile domain.UserProfile) (domain.UserProfile, error) {
			saved = profile
			return profile, nil
		},
	}
	service := newTestUserService(t, repo, nil)

	_, err := service.UpdateProfile(context.Background(), UpdateProfileCommand{
		UserID: "user-17",
		Locale: strPtr("en_in"),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if saved.Locale != "en-IN" {
		t.Fatalf("expected canonical locale en-IN, got %q", saved.Locale)
	}

	_, err = service.UpdateProfile(context.Background(), UpdateProfileCommand{
		UserID: "user-17",
		Locale: strPtr("!!nope!!"),
	})
	if !errors.Is(err, ErrUserInvalidInput) {
		t.Fatalf("expected invalid locale rejected, got %v", err)
	}
}

func TestUserUpdateProfileDisplayNameBounds(t *testing.T) {
	repo := &stubUserRepository{
		findByIDFunc: func(ctx context.Context, userID string) (domain.UserProfile, error) {
			return domain.UserProfile{UID: userID}, nil
		},
	}
	service := newTestUserService(t, repo, nil)
	ctx := context.Background()

	for _, name := range []string{"", "A", strings.Repeat("x", 101)} {
		if _, err := service.UpdateProfile(ctx, UpdateProfileCommand{UserID: "user-17", DisplayName: strPtr(name)}); !errors.Is(err, ErrUserInvalidInput) {
			t.Fatalf("expected display name %q rejected, got %v", name, err)
		}
	}
}

func TestUserListUsersNormalisesRole(t *testing.T) {
	var gotFilter repositories.UserListFilter
	repo := &stubUserRepository{
		listFunc: func(ctx context.Context, filter repositories.UserListFilter) (domain.CursorPage[domain.UserProfile], error) {
			gotFilter = filter
			return domain.CursorPage[domain.UserProfile]{}, nil
		},
	}
	service := newTestUserService(t, repo, nil)

	_, err := service.ListUsers(context.Background(), UserListFilter{Role: strPtr(" Admin ")})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotFilter.Role == nil || *gotFilter.Role != "admin" {
		t.Fatalf("expected lowercased role filter, got %v", gotFilter.Role)
	}
}
