package domain

import (
	"errors"
	"time"
)

// Pagination defines standard cursor-based paging inputs for list operations.
type Pagination struct {
	PageSize  int
	PageToken string
}

// CursorPage wraps a page of results together with the continuation token.
type CursorPage[T any] struct {
	Items         []T
	NextPageToken string
}

// SortOrder indicates ascending or descending ordering for list queries.
type SortOrder string

const (
	// SortAsc sorts results in ascending order.
	SortAsc SortOrder = "asc"
	// SortDesc sorts results in descending order.
	SortDesc SortOrder = "desc"
)

// RangeQuery represents inclusive range filters for numeric or timestamp fields.
type RangeQuery[T comparable] struct {
	From *T
	To   *T
}

// OrderStatus enumerates valid lifecycle states for service orders.
type OrderStatus string

const (
	// OrderStatusPending indicates the order awaits an operator match.
	OrderStatusPending OrderStatus = "pending"
	// OrderStatusMatched indicates exactly one operator has been bound to the order.
	OrderStatusMatched OrderStatus = "matched"
	// OrderStatusInProgress indicates the operator is actively fulfilling the order.
	OrderStatusInProgress OrderStatus = "in_progress"
	// OrderStatusCompleted indicates the service was delivered. Terminal.
	OrderStatusCompleted OrderStatus = "completed"
	// OrderStatusCancelled indicates the order was cancelled before completion. Terminal.
	OrderStatusCancelled OrderStatus = "cancelled"
)

// IsTerminal reports whether the status permits no further transitions.
func (s OrderStatus) IsTerminal() bool {
	return s == OrderStatusCompleted || s == OrderStatusCancelled
}

// ErrNoCounterpart is returned when the counterpart participant cannot be derived.
var ErrNoCounterpart = errors.New("domain: order has no counterpart for the given participant")

// Order links a customer requesting a drone service to (eventually) one operator.
//
// OperatorRef is set if and only if the status is matched, in_progress or
// completed; cancellation clears it so the binding invariant holds in
// terminal states as well.
type Order struct {
	ID              string
	CustomerRef     string
	OperatorRef     *string
	ServiceRef      string
	Status          OrderStatus
	ScheduledAt     time.Time
	CalendarEventID *string
	Notes           string
	CancelReason    *string
	CreatedAt       time.Time
	UpdatedAt       time.Time
	MatchedAt       *time.Time
	StartedAt       *time.Time
	CompletedAt     *time.Time
	CancelledAt     *time.Time
	Audit           OrderAudit
}

// OrderAudit records the actors responsible for creating/updating the order.
type OrderAudit struct {
	CreatedBy *string
	UpdatedBy *string
}

// IsParticipant reports whether the given user is the customer or the operator.
func (o Order) IsParticipant(userID string) bool {
	if userID == "" {
		return false
	}
	if o.CustomerRef == userID {
		return true
	}
	return o.OperatorRef != nil && *o.OperatorRef == userID
}

// Counterpart returns the other participant of the order relative to userID.
func (o Order) Counterpart(userID string) (string, error) {
	switch {
	case o.CustomerRef == userID:
		if o.OperatorRef == nil || *o.OperatorRef == "" {
			return "", ErrNoCounterpart
		}
		return *o.OperatorRef, nil
	case o.OperatorRef != nil && *o.OperatorRef == userID:
		if o.CustomerRef == "" {
			return "", ErrNoCounterpart
		}
		return o.CustomerRef, nil
	default:
		return "", ErrNoCounterpart
	}
}

// Review captures a participant's rating of the counterpart after fulfilment.
// Reviews are immutable once persisted.
type Review struct {
	ID        string
	OrderRef  string
	AuthorRef string
	TargetRef string
	Rating    int
	Body      string
	CreatedAt time.Time
}

// GeoPoint is a WGS84 coordinate pair.
type GeoPoint struct {
	Latitude  float64
	Longitude float64
}

// OperatorProfile describes a drone operator offering services on the platform.
// Exactly one profile exists per owning user.
type OperatorProfile struct {
	ID              string
	UserRef         string
	DisplayName     string
	PortfolioRef    *string
	Certificates    []string
	ServiceCenter   GeoPoint
	ServiceRadiusKm float64
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// DroneService describes a bookable service offering (survey, photography, ...).
type DroneService struct {
	ID          string
	Name        string
	Category    string
	Description string
	DurationMin int
	Active      bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// CalendarAccount stores the external calendar connection for a user.
type CalendarAccount struct {
	Email       string
	CalendarID  string
	ConnectedAt time.Time
}

// UserProfile stores marketplace-facing user data.
type UserProfile struct {
	ID           string
	DisplayName  string
	Email        string
	Phone        string
	Roles        []string
	Calendar     *CalendarAccount
	CreatedAt    time.Time
	UpdatedAt    time.Time
	LastSyncTime time.Time
}

// CalendarConnected reports whether the user has a usable calendar account.
func (u UserProfile) CalendarConnected() bool {
	return u.Calendar != nil && u.Calendar.CalendarID != ""
}
