package services

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/kpta119/Drones-Project-sub001/internal/domain"
	"github.com/kpta119/Drones-Project-sub001/internal/repositories"
)

const (
	orderEventCreated       = "order.created"
	orderEventStatusChanged = "order.status.changed"

	orderIDPrefix = "ord_"
)

var (
	// ErrOrderInvalidInput signals the caller provided invalid data.
	ErrOrderInvalidInput = errors.New("order: invalid input")
	// ErrOrderNotFound indicates the order could not be located.
	ErrOrderNotFound = errors.New("order: not found")
	// ErrOperatorNotFound indicates the operator profile could not be located.
	ErrOperatorNotFound = errors.New("order: operator profile not found")
	// ErrOrderAlreadyMatched indicates a match attempt lost the race: the order
	// was no longer pending when the binding was applied.
	ErrOrderAlreadyMatched = errors.New("order: already matched")
	// ErrOrderInvalidState indicates an invalid status transition was attempted.
	ErrOrderInvalidState = errors.New("order: invalid status transition")
	// ErrOrderInProgressNotFound indicates the operator holds no in-progress order.
	ErrOrderInProgressNotFound = errors.New("order: no in-progress order for operator")
)

var orderStateTransitions = map[domain.OrderStatus][]domain.OrderStatus{
	domain.OrderStatusPending:    {domain.OrderStatusMatched, domain.OrderStatusCancelled},
	domain.OrderStatusMatched:    {domain.OrderStatusInProgress, domain.OrderStatusCancelled},
	domain.OrderStatusInProgress: {domain.OrderStatusCompleted, domain.OrderStatusCancelled},
}

// OrderEventPublisher publishes order domain events for downstream consumers.
type OrderEventPublisher interface {
	PublishOrderEvent(ctx context.Context, event OrderEvent) error
}

// OrderEvent captures metadata for emitted order domain events.
type OrderEvent struct {
	Type           string
	OrderID        string
	PreviousStatus domain.OrderStatus
	CurrentStatus  domain.OrderStatus
	ActorID        string
	OccurredAt     time.Time
	Metadata       map[string]any
}

// OrderServiceDeps bundles collaborators required to construct the order service.
type OrderServiceDeps struct {
	Orders      repositories.OrderRepository
	Operators   repositories.OperatorRepository
	Calendar    CalendarSync
	Events      OrderEventPublisher
	Clock       func() time.Time
	IDGenerator func() string
	Logger      func(ctx context.Context, event string, fields map[string]any)
}

type orderService struct {
	orders    repositories.OrderRepository
	operators repositories.OperatorRepository
	calendar  CalendarSync
	events    OrderEventPublisher
	clock     func() time.Time
	newID     func() string
	logger    func(context.Context, string, map[string]any)
}

// NewOrderService wires dependencies into a concrete OrderService implementation.
func NewOrderService(deps OrderServiceDeps) (OrderService, error) {
	if deps.Orders == nil {
		return nil, errors.New("order service: order repository is required")
	}
	if deps.Operators == nil {
		return nil, errors.New("order service: operator repository is required")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string {
			return ulid.Make().String()
		}
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &orderService{
		orders:    deps.Orders,
		operators: deps.Operators,
		calendar:  deps.Calendar,
		events:    deps.Events,
		clock: func() time.Time {
			return clock().UTC()
		},
		newID:  idGen,
		logger: logger,
	}, nil
}

func (s *orderService) CreateOrder(ctx context.Context, cmd CreateOrderCommand) (Order, error) {
	customerID := strings.TrimSpace(cmd.CustomerID)
	serviceID := strings.TrimSpace(cmd.ServiceID)

	if customerID == "" {
		return Order{}, fmt.Errorf("%w: customer id is required", ErrOrderInvalidInput)
	}
	if serviceID == "" {
		return Order{}, fmt.Errorf("%w: service id is required", ErrOrderInvalidInput)
	}
	if cmd.ScheduledAt.IsZero() {
		return Order{}, fmt.Errorf("%w: scheduled time is required", ErrOrderInvalidInput)
	}

	now := s.now()
	order := Order{
		ID:          orderIDPrefix + s.newID(),
		CustomerRef: customerID,
		ServiceRef:  serviceID,
		Status:      domain.OrderStatusPending,
		ScheduledAt: cmd.ScheduledAt.UTC(),
		Notes:       strings.TrimSpace(cmd.Notes),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if actor := strings.TrimSpace(cmd.ActorID); actor != "" {
		order.Audit.CreatedBy = &actor
		order.Audit.UpdatedBy = &actor
	}

	if err := s.orders.Insert(ctx, order); err != nil {
		return Order{}, s.mapRepositoryError(err)
	}

	s.publishEvent(ctx, OrderEvent{
		Type:          orderEventCreated,
		OrderID:       order.ID,
		CurrentStatus: order.Status,
		ActorID:       cmd.ActorID,
		OccurredAt:    now,
		Metadata: map[string]any{
			"serviceRef":  order.ServiceRef,
			"scheduledAt": order.ScheduledAt.Format(time.RFC3339),
		},
	})

	return order, nil
}

// MatchOperator applies the pending→matched transition as a compare-and-swap:
// of two concurrent match attempts exactly one observes pending and wins; the
// loser fails with ErrOrderAlreadyMatched and the recorded operator is the
// winner's. The calendar event is scheduled only after the transition has been
// durably committed; a sync failure is reported but never reverts the match.
func (s *orderService) MatchOperator(ctx context.Context, cmd MatchOperatorCommand) (MatchOperatorResult, error) {
	orderID := strings.TrimSpace(cmd.OrderID)
	operatorID := strings.TrimSpace(cmd.OperatorID)

	if orderID == "" {
		return MatchOperatorResult{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}
	if operatorID == "" {
		return MatchOperatorResult{}, fmt.Errorf("%w: operator id is required", ErrOrderInvalidInput)
	}

	if _, err := s.operators.FindByID(ctx, operatorID); err != nil {
		if isRepoNotFound(err) {
			return MatchOperatorResult{}, fmt.Errorf("%w: %s", ErrOperatorNotFound, operatorID)
		}
		return MatchOperatorResult{}, err
	}

	now := s.now()
	actor := strings.TrimSpace(cmd.ActorID)

	order, err := s.orders.UpdateStatusCAS(ctx, orderID, domain.OrderStatusPending, func(order *domain.Order) error {
		order.Status = domain.OrderStatusMatched
		order.OperatorRef = &operatorID
		order.MatchedAt = &now
		order.UpdatedAt = now
		if actor != "" {
			order.Audit.UpdatedBy = &actor
		}
		return nil
	})
	if err != nil {
		switch {
		case isRepoNotFound(err):
			return MatchOperatorResult{}, fmt.Errorf("%w: %s", ErrOrderNotFound, orderID)
		case isRepoConflict(err):
			return MatchOperatorResult{}, fmt.Errorf("%w: %s", ErrOrderAlreadyMatched, orderID)
		}
		return MatchOperatorResult{}, err
	}

	s.publishEvent(ctx, OrderEvent{
		Type:           orderEventStatusChanged,
		OrderID:        order.ID,
		PreviousStatus: domain.OrderStatusPending,
		CurrentStatus:  order.Status,
		ActorID:        actor,
		OccurredAt:     now,
		Metadata: map[string]any{
			"operatorRef": operatorID,
		},
	})

	result := MatchOperatorResult{Order: order}
	result.SyncErr = s.scheduleCalendarEvent(ctx, &result.Order)
	return result, nil
}

func (s *orderService) StartProgress(ctx context.Context, cmd TransitionCommand) (Order, error) {
	return s.transition(ctx, cmd, domain.OrderStatusMatched, domain.OrderStatusInProgress, func(order *domain.Order, now time.Time) {
		order.StartedAt = &now
	})
}

func (s *orderService) Complete(ctx context.Context, cmd TransitionCommand) (Order, error) {
	return s.transition(ctx, cmd, domain.OrderStatusInProgress, domain.OrderStatusCompleted, func(order *domain.Order, now time.Time) {
		order.CompletedAt = &now
	})
}

// Cancel moves the order to the terminal cancelled state from any
// non-terminal status. The operator binding is cleared so the presence
// invariant (operator set iff matched/in_progress/completed) holds, and any
// scheduled calendar event is removed best-effort.
func (s *orderService) Cancel(ctx context.Context, cmd CancelOrderCommand) (Order, error) {
	orderID := strings.TrimSpace(cmd.OrderID)
	if orderID == "" {
		return Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}

	current, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		if isRepoNotFound(err) {
			return Order{}, fmt.Errorf("%w: %s", ErrOrderNotFound, orderID)
		}
		return Order{}, s.mapRepositoryError(err)
	}
	if !canTransition(current.Status, domain.OrderStatusCancelled) {
		return Order{}, fmt.Errorf("%w: %s → %s", ErrOrderInvalidState, current.Status, domain.OrderStatusCancelled)
	}

	now := s.now()
	actor := strings.TrimSpace(cmd.ActorID)
	reason := strings.TrimSpace(cmd.Reason)

	var snapshot domain.Order
	order, err := s.orders.UpdateStatusCAS(ctx, orderID, current.Status, func(order *domain.Order) error {
		snapshot = *order
		order.Status = domain.OrderStatusCancelled
		order.OperatorRef = nil
		order.CancelledAt = &now
		order.UpdatedAt = now
		if reason != "" {
			order.CancelReason = &reason
		}
		if actor != "" {
			order.Audit.UpdatedBy = &actor
		}
		return nil
	})
	if err != nil {
		switch {
		case isRepoNotFound(err):
			return Order{}, fmt.Errorf("%w: %s", ErrOrderNotFound, orderID)
		case isRepoConflict(err):
			return Order{}, fmt.Errorf("%w: order %s changed concurrently", ErrOrderInvalidState, orderID)
		}
		return Order{}, err
	}

	s.publishEvent(ctx, OrderEvent{
		Type:           orderEventStatusChanged,
		OrderID:        order.ID,
		PreviousStatus: snapshot.Status,
		CurrentStatus:  order.Status,
		ActorID:        actor,
		OccurredAt:     now,
		Metadata: map[string]any{
			"reason": reason,
		},
	})

	s.cancelCalendarEvent(ctx, snapshot)

	return order, nil
}

func (s *orderService) GetOrder(ctx context.Context, orderID string) (Order, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}
	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		if isRepoNotFound(err) {
			return Order{}, fmt.Errorf("%w: %s", ErrOrderNotFound, orderID)
		}
		return Order{}, s.mapRepositoryError(err)
	}
	return order, nil
}

func (s *orderService) FindInProgressByOperator(ctx context.Context, operatorID string) (Order, error) {
	operatorID = strings.TrimSpace(operatorID)
	if operatorID == "" {
		return Order{}, fmt.Errorf("%w: operator id is required", ErrOrderInvalidInput)
	}
	order, err := s.orders.FindInProgressByOperator(ctx, operatorID)
	if err != nil {
		if isRepoNotFound(err) {
			return Order{}, fmt.Errorf("%w: %s", ErrOrderInProgressNotFound, operatorID)
		}
		return Order{}, s.mapRepositoryError(err)
	}
	return order, nil
}

func (s *orderService) ListOrders(ctx context.Context, filter repositories.OrderListFilter) (domain.CursorPage[Order], error) {
	page, err := s.orders.List(ctx, filter)
	if err != nil {
		return domain.CursorPage[Order]{}, s.mapRepositoryError(err)
	}
	return page, nil
}

func (s *orderService) transition(ctx context.Context, cmd TransitionCommand, expected, target domain.OrderStatus, stamp func(*domain.Order, time.Time)) (Order, error) {
	orderID := strings.TrimSpace(cmd.OrderID)
	if orderID == "" {
		return Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}

	now := s.now()
	actor := strings.TrimSpace(cmd.ActorID)

	order, err := s.orders.UpdateStatusCAS(ctx, orderID, expected, func(order *domain.Order) error {
		order.Status = target
		order.UpdatedAt = now
		stamp(order, now)
		if actor != "" {
			order.Audit.UpdatedBy = &actor
		}
		return nil
	})
	if err != nil {
		switch {
		case isRepoNotFound(err):
			return Order{}, fmt.Errorf("%w: %s", ErrOrderNotFound, orderID)
		case isRepoConflict(err):
			return Order{}, fmt.Errorf("%w: expected %s before %s", ErrOrderInvalidState, expected, target)
		}
		return Order{}, err
	}

	s.publishEvent(ctx, OrderEvent{
		Type:           orderEventStatusChanged,
		OrderID:        order.ID,
		PreviousStatus: expected,
		CurrentStatus:  target,
		ActorID:        actor,
		OccurredAt:     now,
	})

	return order, nil
}

// scheduleCalendarEvent runs the best-effort side channel after a committed
// match. The returned error is surfaced for visibility only.
func (s *orderService) scheduleCalendarEvent(ctx context.Context, order *Order) error {
	if s.calendar == nil {
		return nil
	}

	eventID, err := s.calendar.ScheduleEvent(ctx, *order)
	if err != nil {
		s.logger(ctx, "order.calendar.sync.failed", map[string]any{
			"order": order.ID,
			"error": err.Error(),
		})
		return err
	}

	now := s.now()
	order.CalendarEventID = &eventID
	if err := s.orders.SetCalendarEvent(ctx, order.ID, &eventID, now); err != nil {
		s.logger(ctx, "order.calendar.ref.persist.failed", map[string]any{
			"order": order.ID,
			"event": eventID,
			"error": err.Error(),
		})
	}
	return nil
}

// cancelCalendarEvent removes the external event using the pre-cancellation
// snapshot, which still carries the operator binding and event reference.
func (s *orderService) cancelCalendarEvent(ctx context.Context, snapshot Order) {
	if s.calendar == nil || snapshot.CalendarEventID == nil {
		return
	}
	if err := s.calendar.CancelEvent(ctx, snapshot); err != nil {
		s.logger(ctx, "order.calendar.cancel.failed", map[string]any{
			"order": snapshot.ID,
			"error": err.Error(),
		})
		return
	}
	if err := s.orders.SetCalendarEvent(ctx, snapshot.ID, nil, s.now()); err != nil {
		s.logger(ctx, "order.calendar.ref.clear.failed", map[string]any{
			"order": snapshot.ID,
			"error": err.Error(),
		})
	}
}

func (s *orderService) publishEvent(ctx context.Context, event OrderEvent) {
	if s.events == nil {
		return
	}
	if err := s.events.PublishOrderEvent(ctx, event); err != nil {
		s.logger(ctx, "order.event.publish.failed", map[string]any{
			"type":  event.Type,
			"order": event.OrderID,
			"error": err.Error(),
		})
	}
}

func (s *orderService) mapRepositoryError(err error) error {
	if err == nil {
		return nil
	}
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %v", ErrOrderNotFound, err)
		case repoErr.IsUnavailable():
			return fmt.Errorf("order: repository unavailable: %w", err)
		}
	}
	return err
}

func (s *orderService) now() time.Time {
	return s.clock()
}

func canTransition(current, target domain.OrderStatus) bool {
	next, ok := orderStateTransitions[current]
	if !ok {
		return false
	}
	return slices.Contains(next, target)
}

func isRepoNotFound(err error) bool {
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		return repoErr.IsNotFound()
	}
	return false
}

func isRepoConflict(err error) bool {
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		return repoErr.IsConflict()
	}
	return false
}
