package payments

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Status enumerates the normalised payment states shared across providers.
type Status string

const (
	// StatusPending indicates the payment is awaiting customer action or gateway confirmation.
	StatusPending Status = "pending"
	// StatusSucceeded indicates the gateway reports the payment as captured.
	StatusSucceeded Status = "succeeded"
	// StatusFailed indicates the gateway reports a terminal failure.
	StatusFailed Status = "failed"
)

var (
	// ErrUnsupportedProvider is returned when the manager cannot locate a provider.
	ErrUnsupportedProvider = errors.New("payments: unsupported provider")
	// ErrGatewayRejected is returned when the gateway declines a request outright.
	ErrGatewayRejected = errors.New("payments: gateway rejected request")
	// ErrGatewayUnavailable is returned on transport failures and non-2xx gateway responses.
	ErrGatewayUnavailable = errors.New("payments: gateway unavailable")
)

// PayPageRequest captures the payload required to open a hosted pay page.
type PayPageRequest struct {
	// MerchantTransactionID keys the payment at the gateway. Callers reuse
	// the order id so retries land on the same transaction.
	MerchantTransactionID string
	MerchantUserID        string
	// Amount is in paise.
	Amount      int64
	RedirectURL string
	CallbackURL string
	Mobile      string
}

// PayPageSession is the gateway session returned to the client.
type PayPageSession struct {
	TransactionID string
	RedirectURL   string
	Raw           map[string]any
}

// StatusRequest identifies a transaction for reconciliation.
type StatusRequest struct {
	MerchantTransactionID string
}

// PaymentDetails normalises gateway specific fields for storage.
type PaymentDetails struct {
	Provider      string
	TransactionID string
	Status        Status
	Code          string
	Amount        int64
	Raw           map[string]any
}

// Provider defines the contract for hosted pay-page adapters.
type Provider interface {
	CreatePayPage(ctx context.Context, req PayPageRequest) (PayPageSession, error)
	LookupPayment(ctx context.Context, req StatusRequest) (PaymentDetails, error)
}

// Manager coordinates provider selection and exposes the aggregated interface.
type Manager struct {
	providers       map[string]Provider
	defaultProvider string
}

// ManagerOption configures optional behaviour when building a Manager.
type ManagerOption func(*Manager)

// WithDefaultProvider overrides the provider used when no preference is supplied.
func WithDefaultProvider(provider string) ManagerOption {
	return func(m *Manager) {
		m.defaultProvider = provider
	}
}

// NewManager constructs a Manager over the supplied providers.
func NewManager(providers map[string]Provider, opts ...ManagerOption) (*Manager, error) {
	if len(providers) == 0 {
		return nil, errors.New("payments: at least one provider is required")
	}
	copyMap := make(map[string]Provider, len(providers))
	for k, v := range providers {
		key := strings.TrimSpace(strings.ToLower(k))
		if key == "" || v == nil {
			return nil, fmt.Errorf("payments: invalid provider registration for key %q", k)
		}
		copyMap[key] = v
	}
	m := &Manager{providers: copyMap}
	if _, ok := copyMap["phonepe"]; ok {
		m.defaultProvider = "phonepe"
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

func (m *Manager) resolveProvider(preferred string) (string, Provider, error) {
	if m == nil || len(m.providers) == 0 {
		return "", nil, errors.New("payments: no providers registered")
	}
	if provider := strings.TrimSpace(strings.ToLower(preferred)); provider != "" {
		if p, ok := m.providers[provider]; ok {
			return provider, p, nil
		}
		return "", nil, ErrUnsupportedProvider
	}
	if def := strings.TrimSpace(strings.ToLower(m.defaultProvider)); def != "" {
		if p, ok := m.providers[def]; ok {
			return def, p, nil
		}
	}
	if len(m.providers) == 1 {
		for key, p := range m.providers {
			return key, p, nil
		}
	}
	return "", nil, ErrUnsupportedProvider
}

// CreatePayPage delegates to the resolved provider.
func (m *Manager) CreatePayPage(ctx context.Context, preferred string, req PayPageRequest) (PayPageSession, error) {
	_, provider, err := m.resolveProvider(preferred)
	if err != nil {
		return PayPageSession{}, err
	}
	return provider.CreatePayPage(ctx, req)
}

// LookupPayment delegates to the resolved provider.
func (m *Manager) LookupPayment(ctx context.Context, preferred string, req StatusRequest) (PaymentDetails, error) {
	key, provider, err := m.resolveProvider(preferred)
	if err != nil {
		return PaymentDetails{}, err
	}
	details, err := provider.LookupPayment(ctx, req)
	if err != nil {
		return PaymentDetails{}, err
	}
	if details.Provider == "" {
		details.Provider = key
	}
	return details, nil
}
