package services

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/text/language"

	domain "github.com/solventline/api/internal/domain"
	"github.com/solventline/api/internal/platform/auth"
	"github.com/solventline/api/internal/repositories"
)

var (
	// ErrUserInvalidInput indicates the caller supplied invalid profile data.
	ErrUserInvalidInput = errors.New("user service: invalid input")
	// ErrUserNotFound indicates no profile or auth record exists for the uid.
	ErrUserNotFound = errors.New("user service: user not found")
	// ErrUserUnavailable indicates the profile backend could not serve the request.
	ErrUserUnavailable = errors.New("user service: unavailable")
)

var (
	gstinPattern       = regexp.MustCompile(`^[0-9]{2}[A-Z]{5}[0-9]{4}[A-Z][0-9A-Z]Z[0-9A-Z]$`)
	indianPhonePattern = regexp.MustCompile(`^(\+91)?[6-9][0-9]{9}$`)
)

// UserServiceDeps wires the dependencies required by the user service.
type UserServiceDeps struct {
	Users    repositories.UserRepository
	Firebase auth.UserGetter
	Clock    func() time.Time
	Logger   func(ctx context.Context, event string, fields map[string]any)
}

type userService struct {
	users    repositories.UserRepository
	firebase auth.UserGetter
	clock    func() time.Time
	logger   func(ctx context.Context, event string, fields map[string]any)
}

// NewUserService constructs a UserService validating required dependencies.
func NewUserService(deps UserServiceDeps) (UserService, error) {
	if deps.Users == nil {
		return nil, errors.New("user service: user repository is required")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &userService{
		users:    deps.Users,
		firebase: deps.Firebase,
		clock:    func() time.Time { return clock().UTC() },
		logger:   logger,
	}, nil
}

// GetProfile returns the stored profile, bootstrapping one from the auth
// record the first time a signed-in user touches the storefront.
func (s *userService) GetProfile(ctx context.Context, userID string) (domain.UserProfile, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return domain.UserProfile{}, fmt.Errorf("%w: user id is required", ErrUserInvalidInput)
	}

	profile, err := s.users.FindByID(ctx, userID)
	switch {
	case err == nil:
		return profile, nil
	case isRepoNotFound(err):
		return s.bootstrapProfile(ctx, userID)
	default:
		return domain.UserProfile{}, s.mapRepositoryError(err)
	}
}

func (s *userService) bootstrapProfile(ctx context.Context, userID string) (domain.UserProfile, error) {
	now := s.clock()
	profile := domain.UserProfile{
		UID:       userID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if s.firebase != nil {
		record, err := s.firebase.GetUser(ctx, userID)
		if err != nil {
			return domain.UserProfile{}, fmt.Errorf("%w: %s", ErrUserNotFound, userID)
		}
		if record != nil && record.UserInfo != nil {
			profile.Email = strings.TrimSpace(record.Email)
			profile.DisplayName = strings.TrimSpace(record.DisplayName)
			profile.Phone = strings.TrimSpace(record.PhoneNumber)
		}
	}

	saved, err := s.users.UpdateProfile(ctx, profile)
	if err != nil {
		return domain.UserProfile{}, s.mapRepositoryError(err)
	}
	s.logger(ctx, "user.profile_created", map[string]any{"userId": userID})
	return saved, nil
}

// UpdateProfile patches the fields carried as non-nil pointers. Locale tags
// are canonicalised so "en_in" and "en-IN" store identically.
func (s *userService) UpdateProfile(ctx context.Context, cmd UpdateProfileCommand) (domain.UserProfile, error) {
	userID := strings.TrimSpace(cmd.UserID)
	if userID == "" {
		return domain.UserProfile{}, fmt.Errorf("%w: user id is required", ErrUserInvalidInput)
	}

	profile, err := s.GetProfile(ctx, userID)
	if err != nil {
		return domain.UserProfile{}, err
	}

	if cmd.DisplayName != nil {
		name := strings.TrimSpace(*cmd.DisplayName)
		if err := validateDisplayName(name); err != nil {
			return domain.UserProfile{}, err
		}
		profile.DisplayName = name
	}
	if cmd.Phone != nil {
		phone := strings.ReplaceAll(strings.TrimSpace(*cmd.Phone), " ", "")
		if phone != "" && !indianPhonePattern.MatchString(phone) {
			return domain.UserProfile{}, fmt.Errorf("%w: phone %q is not a valid indian mobile number", ErrUserInvalidInput, phone)
		}
		profile.Phone = phone
	}
	if cmd.Locale != nil {
		locale, err := canonicaliseLanguageTag(*cmd.Locale)
		if err != nil {
			return domain.UserProfile{}, err
		}
		profile.Locale = locale
	}
	if cmd.DefaultAddress != nil {
		addr := normaliseAddress(*cmd.DefaultAddress)
		profile.DefaultAddress = &addr
	}
	if cmd.GSTDetails != nil {
		gst, err := normaliseGSTDetails(*cmd.GSTDetails)
		if err != nil {
			return domain.UserProfile{}, err
		}
		profile.GSTDetails = gst
	}

	profile.UpdatedAt = s.clock()
	saved, err := s.users.UpdateProfile(ctx, profile)
	if err != nil {
		return domain.UserProfile{}, s.mapRepositoryError(err)
	}
	s.logger(ctx, "user.profile_updated", map[string]any{
		"userId":  userID,
		"actorId": strings.TrimSpace(cmd.ActorID),
	})
	return saved, nil
}

func (s *userService) ListUsers(ctx context.Context, filter UserListFilter) (domain.CursorPage[domain.UserProfile], error) {
	page, err := s.users.List(ctx, repositories.UserListFilter{
		Role:       normaliseRoleFilter(filter.Role),
		Pagination: filter.Pagination,
	})
	if err != nil {
		return domain.CursorPage[domain.UserProfile]{}, s.mapRepositoryError(err)
	}
	return page, nil
}

func (s *userService) mapRepositoryError(err error) error {
	switch {
	case err == nil:
		return nil
	case isRepoNotFound(err):
		return fmt.Errorf("%w: %v", ErrUserNotFound, err)
	default:
		return fmt.Errorf("%w: %v", ErrUserUnavailable, err)
	}
}

func validateDisplayName(name string) error {
	if name == "" {
		return fmt.Errorf("%w: display name is required", ErrUserInvalidInput)
	}
	if length := utf8.RuneCountInString(name); length < 2 || length > 100 {
		return fmt.Errorf("%w: display name must be 2-100 characters", ErrUserInvalidInput)
	}
	return nil
}

func canonicaliseLanguageTag(tag string) (string, error) {
	tag = strings.ReplaceAll(strings.TrimSpace(tag), "_", "-")
	if tag == "" {
		return "", nil
	}
	parsed, err := language.Parse(tag)
	if err != nil {
		return "", fmt.Errorf("%w: invalid locale %q", ErrUserInvalidInput, tag)
	}
	return parsed.String(), nil
}

func normaliseGSTDetails(input domain.GSTDetails) (*domain.GSTDetails, error) {
	gstin := strings.ToUpper(strings.TrimSpace(input.GSTNumber))
	if gstin == "" {
		return nil, nil
	}
	if !gstinPattern.MatchString(gstin) {
		return nil, fmt.Errorf("%w: %q is not a valid gstin", ErrUserInvalidInput, gstin)
	}
	gst := domain.GSTDetails{
		GSTNumber:    gstin,
		BusinessName: strings.TrimSpace(input.BusinessName),
		Address:      normaliseAddress(input.Address),
	}
	return &gst, nil
}

func normaliseRoleFilter(role *string) *string {
	if role == nil {
		return nil
	}
	trimmed := strings.ToLower(strings.TrimSpace(*role))
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
