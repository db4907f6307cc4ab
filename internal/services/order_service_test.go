package services

import (
	"context"
	"errors"
	"testing"
	"time"

	domain "github.com/solventline/api/internal/domain"
)

type recordingStockAdjuster struct {
	calls []AdjustStockCommand
	err   error
}

func (a *recordingStockAdjuster) AdjustStock(ctx context.Context, cmd AdjustStockCommand) (int64, error) {
	a.calls = append(a.calls, cmd)
	if a.err != nil {
		return 0, a.err
	}
	return 0, nil
}

func orderFixture() domain.Order {
	return domain.Order{
		ID:     "order-1",
		Number: "SL-2025-00042",
		UserID: "user-17",
		Items: []domain.OrderItem{
			{ProductID: "prod-1", VariantID: "var-5l", Name: "NC Thinner", Size: "5L", UnitPrice: 29000, Quantity: 2},
			{ProductID: "prod-1", Name: "NC Thinner", UnitPrice: 4900, Quantity: 1, IsSample: true},
		},
		Currency:      "INR",
		Status:        domain.OrderStatusPending,
		PaymentStatus: domain.PaymentStatusPending,
		PaymentMethod: domain.PaymentMethodPhonePe,
		Version:       1,
	}
}

func newTestOrderService(t *testing.T, orders *memOrderRepository, stock stockAdjuster, events OrderEventPublisher) OrderService {
	t.Helper()
	service, err := NewOrderService(OrderServiceDeps{
		Orders: orders,
		Stock:  stock,
		Events: events,
		Clock:  func() time.Time { return time.Date(2025, 3, 5, 9, 0, 0, 0, time.UTC) },
	})
	if err != nil {
		t.Fatalf("unexpected error constructing order service: %v", err)
	}
	return service
}

func TestOrderTransitionAllowedPaths(t *testing.T) {
	cases := []struct {
		from domain.OrderStatus
		to   domain.OrderStatus
		ok   bool
	}{
		{domain.OrderStatusPending, domain.OrderStatusProcessing, true},
		{domain.OrderStatusPending, domain.OrderStatusCancelled, true},
		{domain.OrderStatusPending, domain.OrderStatusShipped, false},
		{domain.OrderStatusPending, domain.OrderStatusDelivered, false},
		{domain.OrderStatusProcessing, domain.OrderStatusShipped, true},
		{domain.OrderStatusProcessing, domain.OrderStatusCancelled, true},
		{domain.OrderStatusProcessing, domain.OrderStatusDelivered, false},
		{domain.OrderStatusShipped, domain.OrderStatusDelivered, true},
		{domain.OrderStatusShipped, domain.OrderStatusCancelled, false},
		{domain.OrderStatusDelivered, domain.OrderStatusCancelled, false},
		{domain.OrderStatusCancelled, domain.OrderStatusPending, false},
	}
	for _, tc := range cases {
		t.Run(string(tc.from)+"_to_"+string(tc.to), func(t *testing.T) {
			order := orderFixture()
			order.Status = tc.from
			repo := newMemOrderRepository(order)
			service := newTestOrderService(t, repo, nil, nil)

			updated, err := service.TransitionStatus(context.Background(), OrderStatusTransitionCommand{
				OrderID:      order.ID,
				TargetStatus: tc.to,
				ActorID:      "admin-1",
			})
			if tc.ok {
				if err != nil {
					t.Fatalf("expected transition to succeed, got %v", err)
				}
				if updated.Status != tc.to {
					t.Fatalf("expected status %s, got %s", tc.to, updated.Status)
				}
				if updated.Version != order.Version+1 {
					t.Fatalf("expected version bump, got %d", updated.Version)
				}
				return
			}
			if !errors.Is(err, ErrOrderInvalidState) {
				t.Fatalf("expected ErrOrderInvalidState, got %v", err)
			}
		})
	}
}

func TestOrderTransitionUnknownTarget(t *testing.T) {
	repo := newMemOrderRepository(orderFixture())
	service := newTestOrderService(t, repo, nil, nil)

	_, err := service.TransitionStatus(context.Background(), OrderStatusTransitionCommand{
		OrderID:      "order-1",
		TargetStatus: "refunded",
	})
	if !errors.Is(err, ErrOrderInvalidInput) {
		t.Fatalf("expected ErrOrderInvalidInput, got %v", err)
	}
}

func TestOrderTransitionVersionMismatch(t *testing.T) {
	order := orderFixture()
	order.Version = 4
	repo := newMemOrderRepository(order)
	service := newTestOrderService(t, repo, nil, nil)

	_, err := service.TransitionStatus(context.Background(), OrderStatusTransitionCommand{
		OrderID:         "order-1",
		TargetStatus:    domain.OrderStatusProcessing,
		ExpectedVersion: 3,
	})
	if !errors.Is(err, ErrOrderConflict) {
		t.Fatalf("expected ErrOrderConflict, got %v", err)
	}

	stored, _ := repo.FindByID(context.Background(), "order-1")
	if stored.Status != domain.OrderStatusPending {
		t.Fatalf("expected order untouched after conflict, got %s", stored.Status)
	}
}

func TestOrderTransitionCancelledRestocks(t *testing.T) {
	repo := newMemOrderRepository(orderFixture())
	stock := &recordingStockAdjuster{}
	publisher := &recordingPublisher{}
	service := newTestOrderService(t, repo, stock, publisher)

	_, err := service.TransitionStatus(context.Background(), OrderStatusTransitionCommand{
		OrderID:      "order-1",
		TargetStatus: domain.OrderStatusCancelled,
		ActorID:      "admin-1",
		Reason:       "customer request",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Only the variant line restocks; the sample line carries no inventory.
	if len(stock.calls) != 1 {
		t.Fatalf("expected 1 restock call, got %d", len(stock.calls))
	}
	if stock.calls[0].Delta != 2 {
		t.Fatalf("expected positive delta 2, got %d", stock.calls[0].Delta)
	}
	if len(publisher.events) != 1 || publisher.events[0].Type != "order.status_changed" {
		t.Fatalf("expected status change event, got %+v", publisher.events)
	}
	if publisher.events[0].Metadata["reason"] != "customer request" {
		t.Fatalf("expected reason in metadata, got %v", publisher.events[0].Metadata)
	}
}

func TestOrderTransitionNonCancelSkipsRestock(t *testing.T) {
	repo := newMemOrderRepository(orderFixture())
	stock := &recordingStockAdjuster{}
	service := newTestOrderService(t, repo, stock, nil)

	_, err := service.TransitionStatus(context.Background(), OrderStatusTransitionCommand{
		OrderID:      "order-1",
		TargetStatus: domain.OrderStatusProcessing,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(stock.calls) != 0 {
		t.Fatalf("expected no restock, got %d calls", len(stock.calls))
	}
}

func TestOrderCancelByBuyer(t *testing.T) {
	repo := newMemOrderRepository(orderFixture())
	stock := &recordingStockAdjuster{}
	service := newTestOrderService(t, repo, stock, nil)

	updated, err := service.Cancel(context.Background(), CancelOrderCommand{
		OrderID: "order-1",
		ActorID: "user-17",
		Reason:  "ordered wrong size",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if updated.Status != domain.OrderStatusCancelled {
		t.Fatalf("expected cancelled, got %s", updated.Status)
	}
	if updated.Version != 2 {
		t.Fatalf("expected version 2, got %d", updated.Version)
	}
	if len(stock.calls) != 1 {
		t.Fatalf("expected restock, got %d calls", len(stock.calls))
	}
}

func TestOrderCancelHidesForeignOrders(t *testing.T) {
	repo := newMemOrderRepository(orderFixture())
	service := newTestOrderService(t, repo, nil, nil)

	_, err := service.Cancel(context.Background(), CancelOrderCommand{
		OrderID: "order-1",
		ActorID: "user-other",
	})
	if !errors.Is(err, ErrOrderNotFound) {
		t.Fatalf("expected ErrOrderNotFound, got %v", err)
	}
}

func TestOrderCancelRefusedOncePaid(t *testing.T) {
	order := orderFixture()
	order.Status = domain.OrderStatusProcessing
	repo := newMemOrderRepository(order)
	service := newTestOrderService(t, repo, nil, nil)

	_, err := service.Cancel(context.Background(), CancelOrderCommand{
		OrderID: "order-1",
		ActorID: "user-17",
	})
	if !errors.Is(err, ErrOrderInvalidState) {
		t.Fatalf("expected ErrOrderInvalidState, got %v", err)
	}
}

func TestOrderGetOrderNotFound(t *testing.T) {
	repo := newMemOrderRepository()
	service := newTestOrderService(t, repo, nil, nil)

	_, err := service.GetOrder(context.Background(), "order-missing")
	if !errors.Is(err, ErrOrderNotFound) {
		t.Fatalf("expected ErrOrderNotFound, got %v", err)
	}
}

func TestOrderListFiltersByUser(t *testing.T) {
	mine := orderFixture()
	other := orderFixture()
	other.ID = "order-2"
	other.UserID = "user-other"
	repo := newMemOrderRepository(mine, other)
	service := newTestOrderService(t, repo, nil, nil)

	page, err := service.ListOrders(context.Background(), OrderListFilter{UserID: "user-17"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(page.Items) != 1 || page.Items[0].ID != "order-1" {
		t.Fatalf("expected only the user's order, got %+v", page.Items)
	}
}
