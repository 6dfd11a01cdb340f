package services

import (
	"context"
	"errors"
	"testing"
	"time"

	domain "github.com/kpta119/Drones-Project-sub001/internal/domain"
	"github.com/kpta119/Drones-Project-sub001/internal/repositories"
)

type stubRepoError struct {
	msg         string
	notFound    bool
	conflict    bool
	unavailable bool
}

func (e stubRepoError) Error() string       { return e.msg }
func (e stubRepoError) IsNotFound() bool    { return e.notFound }
func (e stubRepoError) IsConflict() bool    { return e.conflict }
func (e stubRepoError) IsUnavailable() bool { return e.unavailable }

var (
	errStubNotFound = stubRepoError{msg: "not found", notFound: true}
	errStubConflict = stubRepoError{msg: "conflict", conflict: true}
)

type stubOrderRepository struct {
	insertFn           func(ctx context.Context, order domain.Order) error
	findByIDFn         func(ctx context.Context, orderID string) (domain.Order, error)
	updateStatusCASFn  func(ctx context.Context, orderID string, expected domain.OrderStatus, mutate repositories.OrderMutator) (domain.Order, error)
	setCalendarEventFn func(ctx context.Context, orderID string, eventID *string, updatedAt time.Time) error
	findInProgressFn   func(ctx context.Context, operatorID string) (domain.Order, error)
	listFn             func(ctx context.Context, filter repositories.OrderListFilter) (domain.CursorPage[domain.Order], error)
}

func (s *stubOrderRepository) Insert(ctx context.Context, order domain.Order) error {
	if s.insertFn == nil {
		return nil
	}
	return s.insertFn(ctx, order)
}

func (s *stubOrderRepository) FindByID(ctx context.Context, orderID string) (domain.Order, error) {
	if s.findByIDFn == nil {
		return domain.Order{}, errStubNotFound
	}
	return s.findByIDFn(ctx, orderID)
}

func (s *stubOrderRepository) UpdateStatusCAS(ctx context.Context, orderID string, expected domain.OrderStatus, mutate repositories.OrderMutator) (domain.Order, error) {
	if s.updateStatusCASFn == nil {
		return domain.Order{}, errStubNotFound
	}
	return s.updateStatusCASFn(ctx, orderID, expected, mutate)
}

func (s *stubOrderRepository) SetCalendarEvent(ctx context.Context, orderID string, eventID *string, updatedAt time.Time) error {
	if s.setCalendarEventFn == nil {
		return nil
	}
	return s.setCalendarEventFn(ctx, orderID, eventID, updatedAt)
}

func (s *stubOrderRepository) FindInProgressByOperator(ctx context.Context, operatorID string) (domain.Order, error) {
	if s.findInProgressFn == nil {
		return domain.Order{}, errStubNotFound
	}
	return s.findInProgressFn(ctx, operatorID)
}

func (s *stubOrderRepository) List(ctx context.Context, filter repositories.OrderListFilter) (domain.CursorPage[domain.Order], error) {
	if s.listFn == nil {
		return domain.CursorPage[domain.Order]{}, nil
	}
	return s.listFn(ctx, filter)
}

type stubOperatorRepository struct {
	createFn     func(ctx context.Context, profile domain.OperatorProfile) (domain.OperatorProfile, error)
	findByIDFn   func(ctx context.Context, operatorID string) (domain.OperatorProfile, error)
	findByUserFn func(ctx context.Context, userRef string) (domain.OperatorProfile, error)
	updateFn     func(ctx context.Context, profile domain.OperatorProfile) (domain.OperatorProfile, error)
}

func (s *stubOperatorRepository) Create(ctx context.Context, profile domain.OperatorProfile) (domain.OperatorProfile, error) {
	if s.createFn == nil {
		return profile, nil
	}
	return s.createFn(ctx, profile)
}

func (s *stubOperatorRepository) FindByID(ctx context.Context, operatorID string) (domain.OperatorProfile, error) {
	if s.findByIDFn == nil {
		return domain.OperatorProfile{ID: operatorID}, nil
	}
	return s.findByIDFn(ctx, operatorID)
}

func (s *stubOperatorRepository) FindByUser(ctx context.Context, userRef string) (domain.OperatorProfile, error) {
	if s.findByUserFn == nil {
		return domain.OperatorProfile{}, errStubNotFound
	}
	return s.findByUserFn(ctx, userRef)
}

func (s *stubOperatorRepository) Update(ctx context.Context, profile domain.OperatorProfile) (domain.OperatorProfile, error) {
	if s.updateFn == nil {
		return profile, nil
	}
	return s.updateFn(ctx, profile)
}

type stubCalendarSync struct {
	scheduleFn func(ctx context.Context, order Order) (string, error)
	cancelFn   func(ctx context.Context, order Order) error
	cancelled  []string
}

func (s *stubCalendarSync) ScheduleEvent(ctx context.Context, order Order) (string, error) {
	if s.scheduleFn == nil {
		return "evt_default", nil
	}
	return s.scheduleFn(ctx, order)
}

func (s *stubCalendarSync) CancelEvent(ctx context.Context, order Order) error {
	s.cancelled = append(s.cancelled, order.ID)
	if s.cancelFn == nil {
		return nil
	}
	return s.cancelFn(ctx, order)
}

type stubOrderEvents struct {
	events []OrderEvent
	err    error
}

func (s *stubOrderEvents) PublishOrderEvent(_ context.Context, event OrderEvent) error {
	s.events = append(s.events, event)
	return s.err
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func newTestOrderService(t *testing.T, deps OrderServiceDeps) OrderService {
	t.Helper()
	if deps.Orders == nil {
		deps.Orders = &stubOrderRepository{}
	}
	if deps.Operators == nil {
		deps.Operators = &stubOperatorRepository{}
	}
	if deps.Clock == nil {
		deps.Clock = fixedClock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	}
	if deps.IDGenerator == nil {
		deps.IDGenerator = func() string { return "TESTULID" }
	}
	svc, err := NewOrderService(deps)
	if err != nil {
		t.Fatalf("NewOrderService returned error: %v", err)
	}
	return svc
}

func TestCreateOrderInitialisesPendingOrder(t *testing.T) {
	var inserted domain.Order
	orders := &stubOrderRepository{
		insertFn: func(_ context.Context, order domain.Order) error {
			inserted = order
			return nil
		},
	}
	events := &stubOrderEvents{}
	svc := newTestOrderService(t, OrderServiceDeps{Orders: orders, Events: events})

	scheduled := time.Date(2025, 7, 1, 9, 0, 0, 0, time.UTC)
	order, err := svc.CreateOrder(context.Background(), CreateOrderCommand{
		CustomerID:  "usr_cust",
		ServiceID:   "svc_mapping",
		ScheduledAt: scheduled,
		Notes:       "  roof inspection  ",
		ActorID:     "usr_cust",
	})
	if err != nil {
		t.Fatalf("CreateOrder returned error: %v", err)
	}
	if order.Status != domain.OrderStatusPending {
		t.Fatalf("expected pending status, got %s", order.Status)
	}
	if order.OperatorRef != nil {
		t.Fatalf("expected no operator on a fresh order, got %v", *order.OperatorRef)
	}
	if order.ID != "ord_TESTULID" {
		t.Fatalf("unexpected order id %s", order.ID)
	}
	if order.Notes != "roof inspection" {
		t.Fatalf("expected trimmed notes, got %q", order.Notes)
	}
	if inserted.ID != order.ID {
		t.Fatalf("repository received different order: %s vs %s", inserted.ID, order.ID)
	}
	if len(events.events) != 1 || events.events[0].Type != orderEventCreated {
		t.Fatalf("expected one order.created event, got %+v", events.events)
	}
}

func TestCreateOrderRejectsMissingFields(t *testing.T) {
	svc := newTestOrderService(t, OrderServiceDeps{})

	cases := []struct {
		name string
		cmd  CreateOrderCommand
	}{
		{"missing customer", CreateOrderCommand{ServiceID: "svc_1", ScheduledAt: time.Now()}},
		{"missing service", CreateOrderCommand{CustomerID: "usr_1", ScheduledAt: time.Now()}},
		{"missing schedule", CreateOrderCommand{CustomerID: "usr_1", ServiceID: "svc_1"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := svc.CreateOrder(context.Background(), tc.cmd); !errors.Is(err, ErrOrderInvalidInput) {
				t.Fatalf("expected ErrOrderInvalidInput, got %v", err)
			}
		})
	}
}

func TestMatchOperatorBindsPendingOrder(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	var persistedEvent *string
	orders := &stubOrderRepository{
		updateStatusCASFn: func(_ context.Context, orderID string, expected domain.OrderStatus, mutate repositories.OrderMutator) (domain.Order, error) {
			if expected != domain.OrderStatusPending {
				t.Fatalf("expected CAS against pending, got %s", expected)
			}
			order := domain.Order{ID: orderID, CustomerRef: "usr_cust", Status: domain.OrderStatusPending}
			if err := mutate(&order); err != nil {
				return domain.Order{}, err
			}
			return order, nil
		},
		setCalendarEventFn: func(_ context.Context, _ string, eventID *string, _ time.Time) error {
			persistedEvent = eventID
			return nil
		},
	}
	calendar := &stubCalendarSync{
		scheduleFn: func(_ context.Context, order Order) (string, error) {
			if order.Status != domain.OrderStatusMatched {
				t.Fatalf("calendar saw order before commit: %s", order.Status)
			}
			return "evt_123", nil
		},
	}
	events := &stubOrderEvents{}
	svc := newTestOrderService(t, OrderServiceDeps{
		Orders:   orders,
		Calendar: calendar,
		Events:   events,
		Clock:    fixedClock(now),
	})

	result, err := svc.MatchOperator(context.Background(), MatchOperatorCommand{
		OrderID:    "ord_1",
		OperatorID: "op_9",
		ActorID:    "usr_admin",
	})
	if err != nil {
		t.Fatalf("MatchOperator returned error: %v", err)
	}
	if result.SyncErr != nil {
		t.Fatalf("expected clean sync, got %v", result.SyncErr)
	}
	if result.Order.Status != domain.OrderStatusMatched {
		t.Fatalf("expected matched status, got %s", result.Order.Status)
	}
	if result.Order.OperatorRef == nil || *result.Order.OperatorRef != "op_9" {
		t.Fatalf("expected operator op_9 bound, got %v", result.Order.OperatorRef)
	}
	if result.Order.MatchedAt == nil || !result.Order.MatchedAt.Equal(now) {
		t.Fatalf("expected MatchedAt %v, got %v", now, result.Order.MatchedAt)
	}
	if result.Order.CalendarEventID == nil || *result.Order.CalendarEventID != "evt_123" {
		t.Fatalf("expected calendar event evt_123, got %v", result.Order.CalendarEventID)
	}
	if persistedEvent == nil || *persistedEvent != "evt_123" {
		t.Fatalf("expected event reference persisted, got %v", persistedEvent)
	}
	if len(events.events) != 1 || events.events[0].Type != orderEventStatusChanged {
		t.Fatalf("expected one status-changed event, got %+v", events.events)
	}
}

func TestMatchOperatorConflictWhenNotPending(t *testing.T) {
	orders := &stubOrderRepository{
		updateStatusCASFn: func(context.Context, string, domain.OrderStatus, repositories.OrderMutator) (domain.Order, error) {
			return domain.Order{}, errStubConflict
		},
	}
	svc := newTestOrderService(t, OrderServiceDeps{Orders: orders})

	_, err := svc.MatchOperator(context.Background(), MatchOperatorCommand{OrderID: "ord_1", OperatorID: "op_9"})
	if !errors.Is(err, ErrOrderAlreadyMatched) {
		t.Fatalf("expected ErrOrderAlreadyMatched, got %v", err)
	}
}

func TestMatchOperatorUnknownOperator(t *testing.T) {
	operators := &stubOperatorRepository{
		findByIDFn: func(context.Context, string) (domain.OperatorProfile, error) {
			return domain.OperatorProfile{}, errStubNotFound
		},
	}
	svc := newTestOrderService(t, OrderServiceDeps{Operators: operators})

	_, err := svc.MatchOperator(context.Background(), MatchOperatorCommand{OrderID: "ord_1", OperatorID: "op_ghost"})
	if !errors.Is(err, ErrOperatorNotFound) {
		t.Fatalf("expected ErrOperatorNotFound, got %v", err)
	}
}

func TestMatchOperatorCalendarFailureDoesNotRevertMatch(t *testing.T) {
	orders := &stubOrderRepository{
		updateStatusCASFn: func(_ context.Context, orderID string, _ domain.OrderStatus, mutate repositories.OrderMutator) (domain.Order, error) {
			order := domain.Order{ID: orderID, Status: domain.OrderStatusPending}
			if err := mutate(&order); err != nil {
				return domain.Order{}, err
			}
			return order, nil
		},
	}
	calendar := &stubCalendarSync{
		scheduleFn: func(context.Context, Order) (string, error) {
			return "", ErrCalendarNotConnected
		},
	}
	svc := newTestOrderService(t, OrderServiceDeps{Orders: orders, Calendar: calendar})

	result, err := svc.MatchOperator(context.Background(), MatchOperatorCommand{OrderID: "ord_1", OperatorID: "op_9"})
	if err != nil {
		t.Fatalf("expected match to succeed despite sync failure, got %v", err)
	}
	if !errors.Is(result.SyncErr, ErrCalendarNotConnected) {
		t.Fatalf("expected ErrCalendarNotConnected surfaced, got %v", result.SyncErr)
	}
	if result.Order.Status != domain.OrderStatusMatched {
		t.Fatalf("expected matched status, got %s", result.Order.Status)
	}
	if result.Order.CalendarEventID != nil {
		t.Fatalf("expected no calendar event reference, got %v", *result.Order.CalendarEventID)
	}
}

func TestStartProgressRequiresMatched(t *testing.T) {
	orders := &stubOrderRepository{
		updateStatusCASFn: func(_ context.Context, orderID string, expected domain.OrderStatus, mutate repositories.OrderMutator) (domain.Order, error) {
			if expected != domain.OrderStatusMatched {
				t.Fatalf("expected CAS against matched, got %s", expected)
			}
			return domain.Order{}, errStubConflict
		},
	}
	svc := newTestOrderService(t, OrderServiceDeps{Orders: orders})

	_, err := svc.StartProgress(context.Background(), TransitionCommand{OrderID: "ord_1"})
	if !errors.Is(err, ErrOrderInvalidState) {
		t.Fatalf("expected ErrOrderInvalidState, got %v", err)
	}
}

func TestCompleteStampsCompletionTime(t *testing.T) {
	now := time.Date(2025, 6, 2, 15, 30, 0, 0, time.UTC)
	orders := &stubOrderRepository{
		updateStatusCASFn: func(_ context.Context, orderID string, expected domain.OrderStatus, mutate repositories.OrderMutator) (domain.Order, error) {
			if expected != domain.OrderStatusInProgress {
				t.Fatalf("expected CAS against in_progress, got %s", expected)
			}
			op := "op_9"
			order := domain.Order{ID: orderID, OperatorRef: &op, Status: domain.OrderStatusInProgress}
			if err := mutate(&order); err != nil {
				return domain.Order{}, err
			}
			return order, nil
		},
	}
	svc := newTestOrderService(t, OrderServiceDeps{Orders: orders, Clock: fixedClock(now)})

	order, err := svc.Complete(context.Background(), TransitionCommand{OrderID: "ord_1", ActorID: "op_9"})
	if err != nil {
		t.Fatalf("Complete returned error: %v", err)
	}
	if order.Status != domain.OrderStatusCompleted {
		t.Fatalf("expected completed status, got %s", order.Status)
	}
	if order.CompletedAt == nil || !order.CompletedAt.Equal(now) {
		t.Fatalf("expected CompletedAt %v, got %v", now, order.CompletedAt)
	}
	if order.OperatorRef == nil {
		t.Fatal("expected operator binding preserved on completion")
	}
}

func TestCancelClearsOperatorAndCalendarEvent(t *testing.T) {
	op := "op_9"
	evt := "evt_55"
	stored := domain.Order{
		ID:              "ord_1",
		CustomerRef:     "usr_cust",
		OperatorRef:     &op,
		Status:          domain.OrderStatusMatched,
		CalendarEventID: &evt,
	}
	var clearedEvent bool
	orders := &stubOrderRepository{
		findByIDFn: func(context.Context, string) (domain.Order, error) {
			return stored, nil
		},
		updateStatusCASFn: func(_ context.Context, _ string, expected domain.OrderStatus, mutate repositories.OrderMutator) (domain.Order, error) {
			if expected != domain.OrderStatusMatched {
				t.Fatalf("expected CAS against matched, got %s", expected)
			}
			order := stored
			if err := mutate(&order); err != nil {
				return domain.Order{}, err
			}
			return order, nil
		},
		setCalendarEventFn: func(_ context.Context, _ string, eventID *string, _ time.Time) error {
			if eventID == nil {
				clearedEvent = true
			}
			return nil
		},
	}
	calendar := &stubCalendarSync{
		cancelFn: func(_ context.Context, order Order) error {
			if order.OperatorRef == nil {
				t.Fatal("cancel snapshot lost the operator binding")
			}
			if order.CalendarEventID == nil || *order.CalendarEventID != "evt_55" {
				t.Fatalf("cancel snapshot lost the event reference: %v", order.CalendarEventID)
			}
			return nil
		},
	}
	svc := newTestOrderService(t, OrderServiceDeps{Orders: orders, Calendar: calendar})

	order, err := svc.Cancel(context.Background(), CancelOrderCommand{OrderID: "ord_1", Reason: "weather", ActorID: "usr_cust"})
	if err != nil {
		t.Fatalf("Cancel returned error: %v", err)
	}
	if order.Status != domain.OrderStatusCancelled {
		t.Fatalf("expected cancelled status, got %s", order.Status)
	}
	if order.OperatorRef != nil {
		t.Fatalf("expected operator cleared on cancellation, got %v", *order.OperatorRef)
	}
	if order.CancelReason == nil || *order.CancelReason != "weather" {
		t.Fatalf("expected cancel reason recorded, got %v", order.CancelReason)
	}
	if len(calendar.cancelled) != 1 {
		t.Fatalf("expected one calendar cancellation, got %d", len(calendar.cancelled))
	}
	if !clearedEvent {
		t.Fatal("expected calendar event reference cleared")
	}
}

func TestCancelRejectsTerminalStates(t *testing.T) {
	for _, status := range []domain.OrderStatus{domain.OrderStatusCompleted, domain.OrderStatusCancelled} {
		orders := &stubOrderRepository{
			findByIDFn: func(context.Context, string) (domain.Order, error) {
				return domain.Order{ID: "ord_1", Status: status}, nil
			},
		}
		svc := newTestOrderService(t, OrderServiceDeps{Orders: orders})

		if _, err := svc.Cancel(context.Background(), CancelOrderCommand{OrderID: "ord_1"}); !errors.Is(err, ErrOrderInvalidState) {
			t.Fatalf("status %s: expected ErrOrderInvalidState, got %v", status, err)
		}
	}
}

func TestCancelWithoutCalendarEventSkipsSync(t *testing.T) {
	stored := domain.Order{ID: "ord_1", Status: domain.OrderStatusPending}
	orders := &stubOrderRepository{
		findByIDFn: func(context.Context, string) (domain.Order, error) {
			return stored, nil
		},
		updateStatusCASFn: func(_ context.Context, _ string, _ domain.OrderStatus, mutate repositories.OrderMutator) (domain.Order, error) {
			order := stored
			if err := mutate(&order); err != nil {
				return domain.Order{}, err
			}
			return order, nil
		},
	}
	calendar := &stubCalendarSync{}
	svc := newTestOrderService(t, OrderServiceDeps{Orders: orders, Calendar: calendar})

	if _, err := svc.Cancel(context.Background(), CancelOrderCommand{OrderID: "ord_1"}); err != nil {
		t.Fatalf("Cancel returned error: %v", err)
	}
	if len(calendar.cancelled) != 0 {
		t.Fatalf("expected no calendar calls for an event-less order, got %d", len(calendar.cancelled))
	}
}

func TestFindInProgressByOperator(t *testing.T) {
	orders := &stubOrderRepository{
		findInProgressFn: func(_ context.Context, operatorID string) (domain.Order, error) {
			if operatorID != "op_9" {
				return domain.Order{}, errStubNotFound
			}
			op := operatorID
			return domain.Order{ID: "ord_busy", OperatorRef: &op, Status: domain.OrderStatusInProgress}, nil
		},
	}
	svc := newTestOrderService(t, OrderServiceDeps{Orders: orders})

	order, err := svc.FindInProgressByOperator(context.Background(), "op_9")
	if err != nil {
		t.Fatalf("FindInProgressByOperator returned error: %v", err)
	}
	if order.ID != "ord_busy" {
		t.Fatalf("unexpected order %s", order.ID)
	}

	if _, err := svc.FindInProgressByOperator(context.Background(), "op_idle"); !errors.Is(err, ErrOrderInProgressNotFound) {
		t.Fatalf("expected ErrOrderInProgressNotFound, got %v", err)
	}
}

func TestGetOrderNotFound(t *testing.T) {
	svc := newTestOrderService(t, OrderServiceDeps{})
	if _, err := svc.GetOrder(context.Background(), "ord_missing"); !errors.Is(err, ErrOrderNotFound) {
		t.Fatalf("expected ErrOrderNotFound, got %v", err)
	}
}

func TestEventPublishFailureIsSwallowed(t *testing.T) {
	orders := &stubOrderRepository{
		insertFn: func(context.Context, domain.Order) error { return nil },
	}
	events := &stubOrderEvents{err: errors.New("broker down")}
	var logged []string
	svc := newTestOrderService(t, OrderServiceDeps{
		Orders: orders,
		Events: events,
		Logger: func(_ context.Context, event string, _ map[string]any) {
			logged = append(logged, event)
		},
	})

	_, err := svc.CreateOrder(context.Background(), CreateOrderCommand{
		CustomerID:  "usr_cust",
		ServiceID:   "svc_1",
		ScheduledAt: time.Now(),
	})
	if err != nil {
		t.Fatalf("expected create to succeed despite publish failure, got %v", err)
	}
	if len(logged) != 1 || logged[0] != "order.event.publish.failed" {
		t.Fatalf("expected publish failure logged, got %v", logged)
	}
}
