package services

import (
	"context"
	"time"

	domain "github.com/kpta119/Drones-Project-sub001/internal/domain"
	"github.com/kpta119/Drones-Project-sub001/internal/repositories"
)

// Type aliases keep service signatures terse while the domain package owns the shapes.
type (
	Order           = domain.Order
	Review          = domain.Review
	OperatorProfile = domain.OperatorProfile
	DroneService    = domain.DroneService
	UserProfile     = domain.UserProfile
)

// OrderService owns the order lifecycle state machine.
type OrderService interface {
	CreateOrder(ctx context.Context, cmd CreateOrderCommand) (Order, error)
	// MatchOperator binds exactly one operator to a pending order. The calendar
	// side channel runs after the transition is durably committed; its outcome
	// is reported in the result and never reverts the match.
	MatchOperator(ctx context.Context, cmd MatchOperatorCommand) (MatchOperatorResult, error)
	StartProgress(ctx context.Context, cmd TransitionCommand) (Order, error)
	Complete(ctx context.Context, cmd TransitionCommand) (Order, error)
	Cancel(ctx context.Context, cmd CancelOrderCommand) (Order, error)
	GetOrder(ctx context.Context, orderID string) (Order, error)
	FindInProgressByOperator(ctx context.Context, operatorID string) (Order, error)
	ListOrders(ctx context.Context, filter repositories.OrderListFilter) (domain.CursorPage[Order], error)
}

// CreateOrderCommand captures inputs for creating a pending order.
type CreateOrderCommand struct {
	CustomerID  string
	ServiceID   string
	ScheduledAt time.Time
	Notes       string
	ActorID     string
}

// MatchOperatorCommand captures inputs for binding an operator to an order.
type MatchOperatorCommand struct {
	OrderID    string
	OperatorID string
	ActorID    string
}

// MatchOperatorResult reports the committed order and the calendar sync outcome.
// SyncErr is nil when the event was scheduled (or sync is disabled); otherwise
// it carries ErrCalendarNotConnected or ErrCalendarSyncFailed.
type MatchOperatorResult struct {
	Order   Order
	SyncErr error
}

// TransitionCommand captures inputs for start/complete transitions.
type TransitionCommand struct {
	OrderID string
	ActorID string
}

// CancelOrderCommand captures inputs for order cancellation.
type CancelOrderCommand struct {
	OrderID string
	Reason  string
	ActorID string
}

// ReviewService gates and persists reviews between order participants.
type ReviewService interface {
	// SubmitReview validates eligibility and persists the review. The target is
	// always the author's counterpart on the order; exactly one review may
	// exist per (order, author) pair.
	SubmitReview(ctx context.Context, cmd SubmitReviewCommand) (Review, error)
	GetReview(ctx context.Context, reviewID string) (Review, error)
	ListByTarget(ctx context.Context, targetID string, pager domain.Pagination) (domain.CursorPage[Review], error)
}

// SubmitReviewCommand captures inputs for review submission.
type SubmitReviewCommand struct {
	OrderID  string
	AuthorID string
	// AuthorOperatorRef carries the author's operator profile id when they own
	// one. Orders reference operators by profile id, so participation checks
	// accept either identity.
	AuthorOperatorRef string
	Rating            int
	Body              string
}

// OperatorService owns operator onboarding and portfolio assets.
type OperatorService interface {
	CreateProfile(ctx context.Context, cmd CreateOperatorProfileCommand) (OperatorProfile, error)
	UpdateProfile(ctx context.Context, cmd UpdateOperatorProfileCommand) (OperatorProfile, error)
	UploadPortfolio(ctx context.Context, cmd UploadPortfolioCommand) (OperatorProfile, error)
	RemovePortfolio(ctx context.Context, operatorID string, actorID string) (OperatorProfile, error)
}

// CreateOperatorProfileCommand captures operator onboarding inputs.
type CreateOperatorProfileCommand struct {
	UserID          string
	DisplayName     string
	Certificates    []string
	ServiceCenter   domain.GeoPoint
	ServiceRadiusKm float64
	ActorID         string
}

// UpdateOperatorProfileCommand captures mutable profile fields.
type UpdateOperatorProfileCommand struct {
	OperatorID      string
	DisplayName     *string
	Certificates    []string
	ServiceCenter   *domain.GeoPoint
	ServiceRadiusKm *float64
	ActorID         string
}

// UploadPortfolioCommand carries a portfolio file for an operator.
type UploadPortfolioCommand struct {
	OperatorID  string
	FileName    string
	ContentType string
	Data        []byte
	ActorID     string
}

// DirectoryService serves cached operator/service/user lookups and owns the
// invalidation hooks called at every write site of the corresponding entity.
type DirectoryService interface {
	GetOperator(ctx context.Context, operatorID string) (OperatorProfile, error)
	GetOperatorByUser(ctx context.Context, userRef string) (OperatorProfile, error)
	GetService(ctx context.Context, serviceID string) (DroneService, error)
	GetUser(ctx context.Context, userID string) (UserProfile, error)
	ListServices(ctx context.Context, filter repositories.ServiceListFilter) (domain.CursorPage[DroneService], error)
	InvalidateOperator(operatorID string)
	InvalidateService(serviceID string)
	InvalidateUser(userID string)

	ConnectCalendarAccount(ctx context.Context, cmd ConnectCalendarCommand) (UserProfile, error)
	DisconnectCalendarAccount(ctx context.Context, userID string) (UserProfile, error)
}

// ConnectCalendarCommand links a user's external calendar account.
type ConnectCalendarCommand struct {
	UserID     string
	Email      string
	CalendarID string
}

// FileStore abstracts blob storage used for operator portfolio assets.
type FileStore interface {
	UploadFile(ctx context.Context, objectName string, contentType string, data []byte) (string, error)
	DeleteFile(ctx context.Context, objectName string) error
}
