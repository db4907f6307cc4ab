package payments

import (
	"context"
	"errors"
	"testing"
)

type fakeProvider struct {
	lastOp  string
	session PayPageSession
	payment PaymentDetails
	err     error
}

func (f *fakeProvider) CreatePayPage(ctx context.Context, req PayPageRequest) (PayPageSession, error) {
	f.lastOp = "pay"
	return f.session, f.err
}

func (f *fakeProvider) LookupPayment(ctx context.Context, req StatusRequest) (PaymentDetails, error) {
	f.lastOp = "lookup"
	return f.payment, f.err
}

func TestNewManagerRequiresProviders(t *testing.T) {
	if _, err := NewManager(nil); err == nil {
		t.Fatal("expected error for empty provider map")
	}
	if _, err := NewManager(map[string]Provider{"": &fakeProvider{}}); err == nil {
		t.Fatal("expected error for blank provider key")
	}
	if _, err := NewManager(map[string]Provider{"phonepe": nil}); err == nil {
		t.Fatal("expected error for nil provider")
	}
}

func TestManagerDefaultsToPhonePe(t *testing.T) {
	phonepe := &fakeProvider{session: PayPageSession{TransactionID: "order-1", RedirectURL: "https://pay.example/1"}}
	other := &fakeProvider{}
	manager, err := NewManager(map[string]Provider{"phonepe": phonepe, "other": other})
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}

	session, err := manager.CreatePayPage(context.Background(), "", PayPageRequest{MerchantTransactionID: "order-1"})
	if err != nil {
		t.Fatalf("CreatePayPage: %v", err)
	}
	if session.RedirectURL != "https://pay.example/1" {
		t.Fatalf("unexpected redirect url %q", session.RedirectURL)
	}
	if phonepe.lastOp != "pay" || other.lastOp != "" {
		t.Fatalf("expected default routing to phonepe, got phonepe=%q other=%q", phonepe.lastOp, other.lastOp)
	}
}

func TestManagerRejectsUnknownPreferred(t *testing.T) {
	manager, err := NewManager(map[string]Provider{"phonepe": &fakeProvider{}})
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	if _, err := manager.CreatePayPage(context.Background(), "razorpay", PayPageRequest{}); !errors.Is(err, ErrUnsupportedProvider) {
		t.Fatalf("expected ErrUnsupportedProvider, got %v", err)
	}
}

func TestManagerLookupFillsProviderKey(t *testing.T) {
	provider := &fakeProvider{payment: PaymentDetails{TransactionID: "order-2", Status: StatusSucceeded}}
	manager, err := NewManager(map[string]Provider{"phonepe": provider})
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}

	details, err := manager.LookupPayment(context.Background(), "phonepe", StatusRequest{MerchantTransactionID: "order-2"})
	if err != nil {
		t.Fatalf("LookupPayment: %v", err)
	}
	if details.Provider != "phonepe" {
		t.Fatalf("expected provider key to be filled, got %q", details.Provider)
	}
	if details.Status != StatusSucceeded {
		t.Fatalf("unexpected status %q", details.Status)
	}
}

func TestManagerSingleProviderFallback(t *testing.T) {
	provider := &fakeProvider{session: PayPageSession{TransactionID: "order-3"}}
	manager, err := NewManager(map[string]Provider{"custom": provider}, WithDefaultProvider(""))
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	if _, err := manager.CreatePayPage(context.Background(), "", PayPageRequest{}); err != nil {
		t.Fatalf("expected single provider fallback, got %v", err)
	}
}
