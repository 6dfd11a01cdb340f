package firestore

import (
	"fmt"
	"time"

	domain "github.com/kpta119/Drones-Project-sub001/internal/domain"
	"github.com/kpta119/Drones-Project-sub001/internal/platform/pagination"
)

const (
	ordersCollection    = "orders"
	reviewsCollection   = "reviews"
	operatorsCollection = "operators"
	servicesCollection  = "services"
	usersCollection     = "users"
)

// createdAtToken encodes a (createdAt, docID) cursor position. JSON cannot
// carry a time.Time natively, so the timestamp travels as RFC3339Nano text.
func createdAtToken(createdAt time.Time, docID string) (string, error) {
	return pagination.EncodeToken(pagination.Cursor{
		StartAfter: []any{createdAt.UTC().Format(time.RFC3339Nano), docID},
	})
}

// createdAtStartAfter restores the cursor's native types. StartAfter values
// must match the ordered field types or Firestore positions the cursor by
// type rank instead of by value.
func createdAtStartAfter(cursor pagination.Cursor) ([]any, error) {
	if len(cursor.StartAfter) == 0 {
		return nil, nil
	}
	raw, ok := cursor.StartAfter[0].(string)
	if !ok {
		return nil, fmt.Errorf("%w: cursor timestamp", pagination.ErrInvalidPageToken)
	}
	createdAt, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return nil, fmt.Errorf("%w: cursor timestamp", pagination.ErrInvalidPageToken)
	}
	return append([]any{createdAt}, cursor.StartAfter[1:]...), nil
}

type orderDoc struct {
	CustomerRef     string     `firestore:"customerRef"`
	OperatorRef     *string    `firestore:"operatorRef"`
	ServiceRef      string     `firestore:"serviceRef"`
	Status          string     `firestore:"status"`
	ScheduledAt     time.Time  `firestore:"scheduledAt"`
	CalendarEventID *string    `firestore:"calendarEventId"`
	Notes           string     `firestore:"notes,omitempty"`
	CancelReason    *string    `firestore:"cancelReason,omitempty"`
	CreatedAt       time.Time  `firestore:"createdAt"`
	UpdatedAt       time.Time  `firestore:"updatedAt"`
	MatchedAt       *time.Time `firestore:"matchedAt,omitempty"`
	StartedAt       *time.Time `firestore:"startedAt,omitempty"`
	CompletedAt     *time.Time `firestore:"completedAt,omitempty"`
	CancelledAt     *time.Time `firestore:"cancelledAt,omitempty"`
	CreatedBy       *string    `firestore:"createdBy,omitempty"`
	UpdatedBy       *string    `firestore:"updatedBy,omitempty"`
}

func orderToDoc(order domain.Order) orderDoc {
	return orderDoc{
		CustomerRef:     order.CustomerRef,
		OperatorRef:     order.OperatorRef,
		ServiceRef:      order.ServiceRef,
		Status:          string(order.Status),
		ScheduledAt:     order.ScheduledAt,
		CalendarEventID: order.CalendarEventID,
		Notes:           order.Notes,
		CancelReason:    order.CancelReason,
		CreatedAt:       order.CreatedAt,
		UpdatedAt:       order.UpdatedAt,
		MatchedAt:       order.MatchedAt,
		StartedAt:       order.StartedAt,
		CompletedAt:     order.CompletedAt,
		CancelledAt:     order.CancelledAt,
		CreatedBy:       order.Audit.CreatedBy,
		UpdatedBy:       order.Audit.UpdatedBy,
	}
}

func orderFromDoc(id string, doc orderDoc) domain.Order {
	return domain.Order{
		ID:              id,
		CustomerRef:     doc.CustomerRef,
		OperatorRef:     doc.OperatorRef,
		ServiceRef:      doc.ServiceRef,
		Status:          domain.OrderStatus(doc.Status),
		ScheduledAt:     doc.ScheduledAt,
		CalendarEventID: doc.CalendarEventID,
		Notes:           doc.Notes,
		CancelReason:    doc.CancelReason,
		CreatedAt:       doc.CreatedAt,
		UpdatedAt:       doc.UpdatedAt,
		MatchedAt:       doc.MatchedAt,
		StartedAt:       doc.StartedAt,
		CompletedAt:     doc.CompletedAt,
		CancelledAt:     doc.CancelledAt,
		Audit: domain.OrderAudit{
			CreatedBy: doc.CreatedBy,
			UpdatedBy: doc.UpdatedBy,
		},
	}
}

type reviewDoc struct {
	OrderRef  string    `firestore:"orderRef"`
	AuthorRef string    `firestore:"authorRef"`
	TargetRef string    `firestore:"targetRef"`
	Rating    int       `firestore:"rating"`
	Body      string    `firestore:"body,omitempty"`
	CreatedAt time.Time `firestore:"createdAt"`
}

func reviewToDoc(review domain.Review) reviewDoc {
	return reviewDoc{
		OrderRef:  review.OrderRef,
		AuthorRef: review.AuthorRef,
		TargetRef: review.TargetRef,
		Rating:    review.Rating,
		Body:      review.Body,
		CreatedAt: review.CreatedAt,
	}
}

func reviewFromDoc(id string, doc reviewDoc) domain.Review {
	return domain.Review{
		ID:        id,
		OrderRef:  doc.OrderRef,
		AuthorRef: doc.AuthorRef,
		TargetRef: doc.TargetRef,
		Rating:    doc.Rating,
		Body:      doc.Body,
		CreatedAt: doc.CreatedAt,
	}
}

type geoPointDoc struct {
	Latitude  float64 `firestore:"latitude"`
	Longitude float64 `firestore:"longitude"`
}

type operatorDoc struct {
	UserRef         string      `firestore:"userRef"`
	DisplayName     string      `firestore:"displayName"`
	PortfolioRef    *string     `firestore:"portfolioRef,omitempty"`
	Certificates    []string    `firestore:"certificates,omitempty"`
	ServiceCenter   geoPointDoc `firestore:"serviceCenter"`
	ServiceRadiusKm float64     `firestore:"serviceRadiusKm"`
	CreatedAt       time.Time   `firestore:"createdAt"`
	UpdatedAt       time.Time   `firestore:"updatedAt"`
}

func operatorToDoc(profile domain.OperatorProfile) operatorDoc {
	return operatorDoc{
		UserRef:      profile.UserRef,
		DisplayName:  profile.DisplayName,
		PortfolioRef: profile.PortfolioRef,
		Certificates: profile.Certificates,
		ServiceCenter: geoPointDoc{
			Latitude:  profile.ServiceCenter.Latitude,
			Longitude: profile.ServiceCenter.Longitude,
		},
		ServiceRadiusKm: profile.ServiceRadiusKm,
		CreatedAt:       profile.CreatedAt,
		UpdatedAt:       profile.UpdatedAt,
	}
}

func operatorFromDoc(id string, doc operatorDoc) domain.OperatorProfile {
	return domain.OperatorProfile{
		ID:           id,
		UserRef:      doc.UserRef,
		DisplayName:  doc.DisplayName,
		PortfolioRef: doc.PortfolioRef,
		Certificates: doc.Certificates,
		ServiceCenter: domain.GeoPoint{
			Latitude:  doc.ServiceCenter.Latitude,
			Longitude: doc.ServiceCenter.Longitude,
		},
		ServiceRadiusKm: doc.ServiceRadiusKm,
		CreatedAt:       doc.CreatedAt,
		UpdatedAt:       doc.UpdatedAt,
	}
}

type serviceDoc struct {
	Name        string    `firestore:"name"`
	Category    string    `firestore:"category"`
	Description string    `firestore:"description,omitempty"`
	DurationMin int       `firestore:"durationMin"`
	Active      bool      `firestore:"active"`
	CreatedAt   time.Time `firestore:"createdAt"`
	UpdatedAt   time.Time `firestore:"updatedAt"`
}

func serviceToDoc(service domain.DroneService) serviceDoc {
	return serviceDoc{
		Name:        service.Name,
		Category:    service.Category,
		Description: service.Description,
		DurationMin: service.DurationMin,
		Active:      service.Active,
		CreatedAt:   service.CreatedAt,
		UpdatedAt:   service.UpdatedAt,
	}
}

func serviceFromDoc(id string, doc serviceDoc) domain.DroneService {
	return domain.DroneService{
		ID:          id,
		Name:        doc.Name,
		Category:    doc.Category,
		Description: doc.Description,
		DurationMin: doc.DurationMin,
		Active:      doc.Active,
		CreatedAt:   doc.CreatedAt,
		UpdatedAt:   doc.UpdatedAt,
	}
}

type calendarAccountDoc struct {
	Email       string    `firestore:"email"`
	CalendarID  string    `firestore:"calendarId"`
	ConnectedAt time.Time `firestore:"connectedAt"`
}

type userDoc struct {
	DisplayName  string              `firestore:"displayName"`
	Email        string              `firestore:"email"`
	Phone        string              `firestore:"phone,omitempty"`
	Roles        []string            `firestore:"roles,omitempty"`
	Calendar     *calendarAccountDoc `firestore:"calendar,omitempty"`
	CreatedAt    time.Time           `firestore:"createdAt"`
	UpdatedAt    time.Time           `firestore:"updatedAt"`
	LastSyncTime time.Time           `firestore:"lastSyncTime,omitempty"`
}

func userToDoc(user domain.UserProfile) userDoc {
	doc := userDoc{
		DisplayName:  user.DisplayName,
		Email:        user.Email,
		Phone:        user.Phone,
		Roles:        user.Roles,
		CreatedAt:    user.CreatedAt,
		UpdatedAt:    user.UpdatedAt,
		LastSyncTime: user.LastSyncTime,
	}
	if user.Calendar != nil {
		doc.Calendar = &calendarAccountDoc{
			Email:       user.Calendar.Email,
			CalendarID:  user.Calendar.CalendarID,
			ConnectedAt: user.Calendar.ConnectedAt,
		}
	}
	return doc
}

func userFromDoc(id string, doc userDoc) domain.UserProfile {
	user := domain.UserProfile{
		ID:           id,
		DisplayName:  doc.DisplayName,
		Email:        doc.Email,
		Phone:        doc.Phone,
		Roles:        doc.Roles,
		CreatedAt:    doc.CreatedAt,
		UpdatedAt:    doc.UpdatedAt,
		LastSyncTime: doc.LastSyncTime,
	}
	if doc.Calendar != nil {
		user.Calendar = &domain.CalendarAccount{
			Email:       doc.Calendar.Email,
			CalendarID:  doc.Calendar.CalendarID,
			ConnectedAt: doc.Calendar.ConnectedAt,
		}
	}
	return user
}
