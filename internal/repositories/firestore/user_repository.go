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

const userCollection = "users"

// UserRepository persists storefront user profiles keyed by the auth UID.
type UserRepository struct {
	base     *pfirestore.BaseRepository[userDocument]
	provider *pfirestore.Provider
}

// NewUserRepository constructs a Firestore-backed user repository.
func NewUserRepository(provider *pfirestore.Provider) (*UserRepository, error) {
	if provider == nil {
		return nil, errors.New("user repository requires firestore provider")
	}

	base := pfirestore.NewBaseRepository[userDocument](provider, userCollection, nil, nil)
	return &UserRepository{base: base, provider: provider}, nil
}

// FindByID loads the user profile by UID.
func (r *UserRepository) FindByID(ctx context.Context, userID string) (domain.UserProfile, error) {
	if r == nil || r.base == nil {
		return domain.UserProfile{}, errors.New("user repository not initialised")
	}
	if strings.TrimSpace(userID) == "" {
		return domain.UserProfile{}, errors.New("user id is required")
	}

	doc, err := r.base.Get(ctx, userID)
	if err != nil {
		return domain.UserProfile{}, err
	}

	profile := toDomainProfile(doc.Data)
	profile.UID = doc.ID
	if profile.CreatedAt.IsZero() {
		profile.CreatedAt = doc.CreateTime
	}
	if profile.UpdatedAt.IsZero() {
		profile.UpdatedAt = doc.UpdateTime
	}
	return profile, nil
}

// UpdateProfile upserts the user profile document.
func (r *UserRepository) UpdateProfile(ctx context.Context, profile domain.UserProfile) (domain.UserProfile, error) {
	if r == nil || r.base == nil {
		return domain.UserProfile{}, errors.New("user repository not initialised")
	}
	uid := strings.TrimSpace(profile.UID)
	if uid == "" {
		return domain.UserProfile{}, errors.New("profile uid is required")
	}

	now := time.Now().UTC()
	doc := fromDomainProfile(profile, now)

	result, err := r.base.Set(ctx, uid, doc)
	if err != nil {
		return domain.UserProfile{}, err
	}
	saved := toDomainProfile(doc)
	saved.UID = uid
	saved.UpdatedAt = result.UpdateTime
	return saved, nil
}

// List returns profiles ordered by email, optionally filtered by role.
func (r *UserRepository) List(ctx context.Context, filter repositories.UserListFilter) (domain.CursorPage[domain.UserProfile], error) {
	if r == nil || r.base == nil {
		return domain.CursorPage[domain.UserProfile]{}, errors.New("user repository not initialised")
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
		email, docID, err := decodeCursorToken(token)
		if err != nil {
			return domain.CursorPage[domain.UserProfile]{}, fmt.Errorf("user repository: invalid page token: %w", err)
		}
		startAfter = []any{email, docID}
	}

	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		if filter.Role != nil {
			q = q.Where("roles", "array-contains", strings.ToLower(strings.TrimSpace(*filter.Role)))
		}
		q = q.OrderBy("email", firestore.Asc).OrderBy(firestore.DocumentID, firestore.Asc)
		if len(startAfter) == 2 {
			q = q.StartAfter(startAfter...)
		}
		if fetchLimit > 0 {
			q = q.Limit(fetchLimit)
		}
		return q
	})
	if err != nil {
		return domain.CursorPage[domain.UserProfile]{}, err
	}

	valueDocs := docs
	nextToken := ""
	if limit > 0 && len(valueDocs) == fetchLimit {
		last := valueDocs[len(valueDocs)-1]
		nextToken = encodeCursorToken(last.Data.Email, last.ID)
		valueDocs = valueDocs[:len(valueDocs)-1]
	}

	items := make([]domain.UserProfile, 0, len(valueDocs))
	for _, doc := range valueDocs {
		profile := toDomainProfile(doc.Data)
		profile.UID = doc.ID
		items = append(items, profile)
	}

	return domain.CursorPage[domain.UserProfile]{
		Items:         items,
		NextPageToken: nextToken,
	}, nil
}

type userDocument struct {
	UID         string            `firestore:"uid"`
	DisplayName string            `firestore:"displayName,omitempty"`
	Email       string            `firestore:"email"`
	Phone       string            `firestore:"phone,omitempty"`
	Locale      string            `firestore:"locale,omitempty"`
	Roles       []string          `firestore:"roles"`
	Address     *addressDocument  `firestore:"address,omitempty"`
	GST         *orderGSTDocument `firestore:"gst,omitempty"`
	CreatedAt   time.Time         `firestore:"createdAt"`
	UpdatedAt   time.Time         `firestore:"updatedAt"`
}

func toDomainProfile(doc userDocument) domain.UserProfile {
	profile := domain.UserProfile{
		DisplayName: doc.DisplayName,
		Email:       strings.TrimSpace(doc.Email),
		Phone:       strings.TrimSpace(doc.Phone),
		Locale:      strings.TrimSpace(doc.Locale),
		Roles:       cloneStringSlice(doc.Roles),
		CreatedAt:   doc.CreatedAt,
		UpdatedAt:   doc.UpdatedAt,
	}
	if doc.Address != nil {
		addr := decodeAddress(*doc.Address)
		profile.DefaultAddress = &addr
	}
	if doc.GST != nil {
		profile.GSTDetails = &domain.GSTDetails{
			GSTNumber:    doc.GST.GSTNumber,
			BusinessName: doc.GST.BusinessName,
			Address:      decodeAddress(doc.GST.Address),
		}
	}
	return profile
}

func fromDomainProfile(profile domain.UserProfile, now time.Time) userDocument {
	doc := userDocument{
		UID:         profile.UID,
		DisplayName: strings.TrimSpace(profile.DisplayName),
		Email:       strings.ToLower(strings.TrimSpace(profile.Email)),
		Phone:       strings.TrimSpace(profile.Phone),
		Locale:      strings.TrimSpace(profile.Locale),
		Roles:       normaliseRoles(profile.Roles),
		CreatedAt:   profile.CreatedAt,
		UpdatedAt:   now,
	}
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = now
	}
	if doc.Roles == nil {
		doc.Roles = []string{}
	}
	if profile.DefaultAddress != nil {
		addr := encodeAddress(*profile.DefaultAddress)
		doc.Address = &addr
	}
	if profile.GSTDetails != nil {
		doc.GST = &orderGSTDocument{
			GSTNumber:    strings.TrimSpace(profile.GSTDetails.GSTNumber),
			BusinessName: strings.TrimSpace(profile.GSTDetails.BusinessName),
			Address:      encodeAddress(profile.GSTDetails.Address),
		}
	}
	return doc
}

func cloneStringSlice(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	out := make([]string, len(values))
	copy(out, values)
	return out
}

func normaliseRoles(roles []string) []string {
	if len(roles) == 0 {
		return nil
	}
	uniq := make(map[string]struct{}, len(roles))
	for _, role := range roles {
		trimmed := strings.ToLower(strings.TrimSpace(role))
		if trimmed == "" {
			continue
		}
		uniq[trimmed] = struct{}{}
	}
	if len(uniq) == 0 {
		return nil
	}
	normalised := make([]string, 0, len(uniq))
	for role := range uniq {
		normalised = append(normalised, role)
	}
	sort.Strings(normalised)
	return normalised
}

var _ repositories.UserRepository = (*UserRepository)(nil)
