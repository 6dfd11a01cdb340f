package repositories

import (
	"context"
	"time"

	domain "github.com/kpta119/Drones-Project-sub001/internal/domain"
)

// Registry exposes typed repository accessors and lifecycle hooks for dependency injection.
type Registry interface {
	Close(ctx context.Context) error

	Orders() OrderRepository
	Reviews() ReviewRepository
	Operators() OperatorRepository
	Services() ServiceRepository
	Users() UserRepository
}

// RepositoryError wraps low-level persistence failures with categorisation used by services.
type RepositoryError interface {
	error
	IsNotFound() bool
	IsConflict() bool
	IsUnavailable() bool
}

// OrderMutator applies an in-place mutation to an order inside a guarded update.
type OrderMutator func(order *domain.Order) error

// OrderRepository persists service orders and enforces per-order status atomicity.
type OrderRepository interface {
	Insert(ctx context.Context, order domain.Order) error
	FindByID(ctx context.Context, orderID string) (domain.Order, error)
	// UpdateStatusCAS re-reads the order transactionally, verifies the current
	// status equals expected, applies the mutation and writes the result.
	// A mismatched status yields a RepositoryError with IsConflict.
	UpdateStatusCAS(ctx context.Context, orderID string, expected domain.OrderStatus, mutate OrderMutator) (domain.Order, error)
	// SetCalendarEvent records (or clears) the external calendar event reference
	// without touching the lifecycle status.
	SetCalendarEvent(ctx context.Context, orderID string, eventID *string, updatedAt time.Time) error
	FindInProgressByOperator(ctx context.Context, operatorID string) (domain.Order, error)
	List(ctx context.Context, filter OrderListFilter) (domain.CursorPage[domain.Order], error)
}

// ReviewRepository stores reviews under a (order, author) uniqueness guarantee.
type ReviewRepository interface {
	// Insert persists the review create-only: a concurrent duplicate for the
	// same (OrderRef, AuthorRef) pair fails with a RepositoryError whose
	// IsConflict reports true.
	Insert(ctx context.Context, review domain.Review) (domain.Review, error)
	FindByID(ctx context.Context, reviewID string) (domain.Review, error)
	FindByOrderAuthor(ctx context.Context, orderID string, authorID string) (domain.Review, error)
	ListByTarget(ctx context.Context, targetID string, pager domain.Pagination) (domain.CursorPage[domain.Review], error)
}

// OperatorRepository stores operator profiles keyed by owning user.
type OperatorRepository interface {
	// Create persists the profile create-only; a second profile for the same
	// user fails with a conflict RepositoryError.
	Create(ctx context.Context, profile domain.OperatorProfile) (domain.OperatorProfile, error)
	FindByID(ctx context.Context, operatorID string) (domain.OperatorProfile, error)
	// FindByUser resolves the profile owned by the given user; not-found when
	// the user has no operator profile.
	FindByUser(ctx context.Context, userRef string) (domain.OperatorProfile, error)
	Update(ctx context.Context, profile domain.OperatorProfile) (domain.OperatorProfile, error)
}

// ServiceRepository stores the catalogue of bookable drone services.
type ServiceRepository interface {
	FindByID(ctx context.Context, serviceID string) (domain.DroneService, error)
	Upsert(ctx context.Context, service domain.DroneService) (domain.DroneService, error)
	List(ctx context.Context, filter ServiceListFilter) (domain.CursorPage[domain.DroneService], error)
}

// UserRepository stores user profiles including calendar connection state.
type UserRepository interface {
	FindByID(ctx context.Context, userID string) (domain.UserProfile, error)
	UpdateProfile(ctx context.Context, profile domain.UserProfile) (domain.UserProfile, error)
	SetCalendarAccount(ctx context.Context, userID string, account *domain.CalendarAccount, updatedAt time.Time) (domain.UserProfile, error)
}

// Filter DTOs shared across repositories ------------------------------------

type OrderListFilter struct {
	CustomerID string
	OperatorID string
	Status     []domain.OrderStatus
	DateRange  domain.RangeQuery[time.Time]
	Pagination domain.Pagination
}

type ServiceListFilter struct {
	Category   *string
	OnlyActive bool
	Pagination domain.Pagination
}
