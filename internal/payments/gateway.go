package payments

import (
	"context"
	"errors"
	"strings"

	domain "github.com/solventline/api/internal/domain"
	"github.com/solventline/api/internal/services"
)

// Gateway adapts the provider manager to the checkout-facing contract.
// The order id doubles as the merchant transaction id so initiation and
// verification stay idempotent per order.
type Gateway struct {
	manager  *Manager
	provider string
}

var _ services.PaymentGateway = (*Gateway)(nil)

// NewGateway wraps a Manager as the checkout payment gateway.
func NewGateway(manager *Manager, provider string) (*Gateway, error) {
	if manager == nil {
		return nil, errors.New("payments: manager is required")
	}
	return &Gateway{
		manager:  manager,
		provider: strings.TrimSpace(strings.ToLower(provider)),
	}, nil
}

func (g *Gateway) Initiate(ctx context.Context, req services.GatewayInitiateRequest) (services.GatewayInitiateResult, error) {
	session, err := g.manager.CreatePayPage(ctx, g.provider, PayPageRequest{
		MerchantTransactionID: req.OrderID,
		MerchantUserID:        req.UserID,
		Amount:                req.Amount,
		RedirectURL:           req.CallbackURL,
		CallbackURL:           req.CallbackURL,
	})
	if err != nil {
		return services.GatewayInitiateResult{}, err
	}
	return services.GatewayInitiateResult{
		PaymentID:  session.TransactionID,
		PaymentURL: session.RedirectURL,
	}, nil
}

func (g *Gateway) Verify(ctx context.Context, req services.GatewayVerifyRequest) (services.GatewayVerifyResult, error) {
	details, err := g.manager.LookupPayment(ctx, g.provider, StatusRequest{
		MerchantTransactionID: req.OrderID,
	})
	if err != nil {
		return services.GatewayVerifyResult{}, err
	}
	return services.GatewayVerifyResult{
		Status: toDomainStatus(details.Status),
		Code:   details.Code,
	}, nil
}

func toDomainStatus(status Status) domain.PaymentStatus {
	switch status {
	case StatusSucceeded:
		return domain.PaymentStatusPaid
	case StatusFailed:
		return domain.PaymentStatusFailed
	default:
		return domain.PaymentStatusPending
	}
}
