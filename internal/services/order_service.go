package services

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	domain "github.com/solventline/api/internal/domain"
	"github.com/solventline/api/internal/repositories"
)

const orderEventStatusChanged = "order.status_changed"

var (
	// ErrOrderInvalidInput indicates the caller supplied invalid input parameters.
	ErrOrderInvalidInput = errors.New("order service: invalid input")
	// ErrOrderNotFound indicates no order exists for the supplied id.
	ErrOrderNotFound = errors.New("order service: order not found")
	// ErrOrderInvalidState indicates the requested transition is not allowed from the current status.
	ErrOrderInvalidState = errors.New("order service: invalid state")
	// ErrOrderConflict indicates a concurrent modification was detected.
	ErrOrderConflict = errors.New("order service: conflict")
	// ErrOrderUnavailable indicates the order backend could not serve the request.
	ErrOrderUnavailable = errors.New("order service: unavailable")
)

// orderStateTransitions maps each status to the statuses it may move to.
var orderStateTransitions = map[domain.OrderStatus][]domain.OrderStatus{
	domain.OrderStatusPending:    {domain.OrderStatusProcessing, domain.OrderStatusCancelled},
	domain.OrderStatusProcessing: {domain.OrderStatusShipped, domain.OrderStatusCancelled},
	domain.OrderStatusShipped:    {domain.OrderStatusDelivered},
	domain.OrderStatusDelivered:  {},
	domain.OrderStatusCancelled:  {},
}

// stockAdjuster restores sold quantities when an order is cancelled.
type stockAdjuster interface {
	AdjustStock(ctx context.Context, cmd AdjustStockCommand) (int64, error)
}

// OrderServiceDeps wires the dependencies required by the order service.
type OrderServiceDeps struct {
	Orders     repositories.OrderRepository
	UnitOfWork repositories.UnitOfWork
	Stock      stockAdjuster
	Events     OrderEventPublisher
	Clock      func() time.Time
	Logger     func(ctx context.Context, event string, fields map[string]any)
}

type orderService struct {
	orders repositories.OrderRepository
	uow    repositories.UnitOfWork
	stock  stockAdjuster
	events OrderEventPublisher
	now    func() time.Time
	logger func(ctx context.Context, event string, fields map[string]any)
}

// NewOrderService constructs an OrderService validating required dependencies.
func NewOrderService(deps OrderServiceDeps) (OrderService, error) {
	if deps.Orders == nil {
		return nil, errors.New("order service: order repository is required")
	}
	uow := deps.UnitOfWork
	if uow == nil {
		uow = noopUnitOfWork{}
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &orderService{
		orders: deps.Orders,
		uow:    uow,
		stock:  deps.Stock,
		events: deps.Events,
		now:    func() time.Time { return clock().UTC() },
		logger: logger,
	}, nil
}

func (s *orderService) ListOrders(ctx context.Context, filter OrderListFilter) (domain.CursorPage[domain.Order], error) {
	page, err := s.orders.List(ctx, filter)
	if err != nil {
		return domain.CursorPage[domain.Order]{}, s.mapRepositoryError(err)
	}
	return page, nil
}

func (s *orderService) GetOrder(ctx context.Context, orderID string) (domain.Order, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return domain.Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}
	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return domain.Order{}, s.mapRepositoryError(err)
	}
	return order, nil
}

// TransitionStatus moves an order along the fulfilment state machine. When
// ExpectedVersion is set the update only applies if nobody moved the order
// in the meantime.
func (s *orderService) TransitionStatus(ctx context.Context, cmd OrderStatusTransitionCommand) (domain.Order, error) {
	orderID := strings.TrimSpace(cmd.OrderID)
	if orderID == "" {
		return domain.Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}
	target := domain.OrderStatus(strings.TrimSpace(string(cmd.TargetStatus)))
	if _, known := orderStateTransitions[target]; !known {
		return domain.Order{}, fmt.Errorf("%w: unknown status %q", ErrOrderInvalidInput, target)
	}

	var updated domain.Order
	var prevStatus domain.OrderStatus
	err := s.uow.RunInTx(ctx, func(txCtx context.Context) error {
		order, err := s.orders.FindByID(txCtx, orderID)
		if err != nil {
			return err
		}
		if cmd.ExpectedVersion > 0 && order.Version != cmd.ExpectedVersion {
			return fmt.Errorf("%w: expected version %d but was %d", ErrOrderConflict, cmd.ExpectedVersion, order.Version)
		}
		if !canTransition(order.Status, target) {
			return fmt.Errorf("%w: cannot move %q to %q", ErrOrderInvalidState, order.Status, target)
		}

		prevStatus = order.Status
		order.Status = target
		order.Version++
		order.UpdatedAt = s.now()
		if err := s.orders.Update(txCtx, order); err != nil {
			return err
		}
		updated = order
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrOrderConflict) || errors.Is(err, ErrOrderInvalidState) {
			return domain.Order{}, err
		}
		return domain.Order{}, s.mapRepositoryError(err)
	}

	if target == domain.OrderStatusCancelled {
		s.restock(ctx, updated)
	}
	s.logger(ctx, "order.status_transitioned", map[string]any{
		"orderId": updated.ID,
		"from":    string(prevStatus),
		"to":      string(updated.Status),
		"actorId": strings.TrimSpace(cmd.ActorID),
	})
	s.publishStatusEvent(ctx, updated, prevStatus, cmd.ActorID, cmd.Reason)
	return updated, nil
}

// Cancel lets the buyer abandon their own order while it is still pending.
// Staff cancellations of later states go through TransitionStatus.
func (s *orderService) Cancel(ctx context.Context, cmd CancelOrderCommand) (domain.Order, error) {
	orderID := strings.TrimSpace(cmd.OrderID)
	actorID := strings.TrimSpace(cmd.ActorID)
	if orderID == "" {
		return domain.Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}
	if actorID == "" {
		return domain.Order{}, fmt.Errorf("%w: actor id is required", ErrOrderInvalidInput)
	}

	var updated domain.Order
	var prevStatus domain.OrderStatus
	err := s.uow.RunInTx(ctx, func(txCtx context.Context) error {
		order, err := s.orders.FindByID(txCtx, orderID)
		if err != nil {
			return err
		}
		if order.UserID != actorID {
			return fmt.Errorf("%w: %s", ErrOrderNotFound, orderID)
		}
		if order.Status != domain.OrderStatusPending {
			return fmt.Errorf("%w: order status %q cannot be cancelled by the buyer", ErrOrderInvalidState, order.Status)
		}

		prevStatus = order.Status
		order.Status = domain.OrderStatusCancelled
		order.Version++
		order.UpdatedAt = s.now()
		if err := s.orders.Update(txCtx, order); err != nil {
			return err
		}
		updated = order
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrOrderNotFound) || errors.Is(err, ErrOrderInvalidState) {
			return domain.Order{}, err
		}
		return domain.Order{}, s.mapRepositoryError(err)
	}

	s.restock(ctx, updated)
	s.logger(ctx, "order.cancelled", map[string]any{
		"orderId": updated.ID,
		"actorId": actorID,
	})
	s.publishStatusEvent(ctx, updated, prevStatus, actorID, cmd.Reason)
	return updated, nil
}

// restock returns cancelled quantities to inventory. Failures are logged
// for manual reconciliation.
func (s *orderService) restock(ctx context.Context, order domain.Order) {
	if s.stock == nil {
		return
	}
	for _, item := range order.Items {
		if item.IsSample || item.VariantID == "" {
			continue
		}
		_, err := s.stock.AdjustStock(ctx, AdjustStockCommand{
			ProductID: item.ProductID,
			VariantID: item.VariantID,
			Delta:     item.Quantity,
		})
		if err != nil {
			s.logger(ctx, "order.restock_failed", map[string]any{
				"orderId":   order.ID,
				"productId": item.ProductID,
				"variantId": item.VariantID,
				"error":     err.Error(),
			})
		}
	}
}

func (s *orderService) publishStatusEvent(ctx context.Context, order domain.Order, prev domain.OrderStatus, actorID, reason string) {
	if s.events == nil {
		return
	}
	metadata := map[string]any{
		"orderNumber":    order.Number,
		"previousStatus": string(prev),
	}
	if actorID = strings.TrimSpace(actorID); actorID != "" {
		metadata["actorId"] = actorID
	}
	if reason = strings.TrimSpace(reason); reason != "" {
		metadata["reason"] = reason
	}
	event := OrderEvent{
		Type:       orderEventStatusChanged,
		OrderID:    order.ID,
		UserID:     order.UserID,
		Status:     order.Status,
		OccurredAt: order.UpdatedAt,
		Metadata:   metadata,
	}
	if err := s.events.PublishOrderEvent(ctx, event); err != nil {
		s.logger(ctx, "order.event_publish_failed", map[string]any{
			"orderId": order.ID,
			"type":    event.Type,
			"error":   err.Error(),
		})
	}
}

func (s *orderService) mapRepositoryError(err error) error {
	switch {
	case err == nil:
		return nil
	case isRepoNotFound(err):
		return fmt.Errorf("%w: %v", ErrOrderNotFound, err)
	case isRepoConflict(err):
		return fmt.Errorf("%w: %v", ErrOrderConflict, err)
	default:
		return fmt.Errorf("%w: %v", ErrOrderUnavailable, err)
	}
}

func canTransition(current, target domain.OrderStatus) bool {
	return slices.Contains(orderStateTransitions[current], target)
}

type noopUnitOfWork struct{}

func (noopUnitOfWork) RunInTx(ctx context.Context, fn func(context.Context) error) error {
	return fn(ctx)
}
