// Package calendar adapts order transitions onto the Google Calendar API.
// All operations are best-effort from the caller's perspective: errors are
// reported through the services sentinels and never block order state.
package calendar

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	gcal "google.golang.org/api/calendar/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	domain "github.com/kpta119/Drones-Project-sub001/internal/domain"
	"github.com/kpta119/Drones-Project-sub001/internal/services"
)

const (
	defaultEventDuration = time.Hour
	defaultSummaryTmpl   = "Drone service %s"
)

// AccountLookup resolves the calendar account that should receive events for
// an order. The operator bound to the order owns the event.
type AccountLookup interface {
	CalendarAccountForOperator(ctx context.Context, operatorID string) (domain.CalendarAccount, error)
}

// EventsAPI is the thin slice of the Google Calendar surface the adapter uses.
type EventsAPI interface {
	Insert(ctx context.Context, calendarID string, event *gcal.Event) (*gcal.Event, error)
	Delete(ctx context.Context, calendarID string, eventID string) error
}

// ServiceDurations resolves the booked service's duration for event length.
type ServiceDurations interface {
	GetService(ctx context.Context, serviceID string) (domain.DroneService, error)
}

// SyncDeps bundles collaborators for the calendar sync adapter.
type SyncDeps struct {
	Events      EventsAPI
	Accounts    AccountLookup
	Services    ServiceDurations
	SummaryTmpl string
}

type syncer struct {
	events      EventsAPI
	accounts    AccountLookup
	services    ServiceDurations
	summaryTmpl string
}

// NewSync wires dependencies into a services.CalendarSync implementation.
func NewSync(deps SyncDeps) (services.CalendarSync, error) {
	if deps.Events == nil {
		return nil, errors.New("calendar sync: events api is required")
	}
	if deps.Accounts == nil {
		return nil, errors.New("calendar sync: account lookup is required")
	}
	tmpl := strings.TrimSpace(deps.SummaryTmpl)
	if tmpl == "" {
		tmpl = defaultSummaryTmpl
	}
	return &syncer{
		events:      deps.Events,
		accounts:    deps.Accounts,
		services:    deps.Services,
		summaryTmpl: tmpl,
	}, nil
}

func (s *syncer) ScheduleEvent(ctx context.Context, order services.Order) (string, error) {
	if order.OperatorRef == nil || *order.OperatorRef == "" {
		return "", fmt.Errorf("%w: order %s has no operator", services.ErrCalendarSyncFailed, order.ID)
	}

	account, err := s.accounts.CalendarAccountForOperator(ctx, *order.OperatorRef)
	if err != nil {
		return "", err
	}

	start := order.ScheduledAt.UTC()
	event := &gcal.Event{
		Summary:     fmt.Sprintf(s.summaryTmpl, order.ServiceRef),
		Description: fmt.Sprintf("Order %s for customer %s", order.ID, order.CustomerRef),
		Start:       &gcal.EventDateTime{DateTime: start.Format(time.RFC3339)},
		End:         &gcal.EventDateTime{DateTime: start.Add(s.eventDuration(ctx, order.ServiceRef)).Format(time.RFC3339)},
	}

	created, err := s.events.Insert(ctx, account.CalendarID, event)
	if err != nil {
		return "", fmt.Errorf("%w: insert: %v", services.ErrCalendarSyncFailed, err)
	}
	return created.Id, nil
}

func (s *syncer) CancelEvent(ctx context.Context, order services.Order) error {
	if order.CalendarEventID == nil || *order.CalendarEventID == "" {
		return nil
	}
	if order.OperatorRef == nil || *order.OperatorRef == "" {
		return nil
	}

	account, err := s.accounts.CalendarAccountForOperator(ctx, *order.OperatorRef)
	if err != nil {
		if errors.Is(err, services.ErrCalendarNotConnected) {
			return nil
		}
		return err
	}

	if err := s.events.Delete(ctx, account.CalendarID, *order.CalendarEventID); err != nil {
		if isGone(err) {
			return nil
		}
		return fmt.Errorf("%w: delete: %v", services.ErrCalendarSyncFailed, err)
	}
	return nil
}

func (s *syncer) eventDuration(ctx context.Context, serviceID string) time.Duration {
	if s.services == nil {
		return defaultEventDuration
	}
	offering, err := s.services.GetService(ctx, serviceID)
	if err != nil || offering.DurationMin <= 0 {
		return defaultEventDuration
	}
	return time.Duration(offering.DurationMin) * time.Minute
}

// isGone treats already-removed events as successful deletes.
func isGone(err error) bool {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		return apiErr.Code == 404 || apiErr.Code == 410
	}
	return false
}

// googleEvents implements EventsAPI on top of the real Calendar service.
type googleEvents struct {
	svc *gcal.Service
}

// NewGoogleEvents builds the production EventsAPI using the shared Google API
// client options (credentials file, scoped token source, endpoint overrides).
func NewGoogleEvents(ctx context.Context, opts ...option.ClientOption) (EventsAPI, error) {
	svc, err := gcal.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("calendar: create service: %w", err)
	}
	return &googleEvents{svc: svc}, nil
}

func (g *googleEvents) Insert(ctx context.Context, calendarID string, event *gcal.Event) (*gcal.Event, error) {
	return g.svc.Events.Insert(calendarID, event).Context(ctx).Do()
}

func (g *googleEvents) Delete(ctx context.Context, calendarID string, eventID string) error {
	return g.svc.Events.Delete(calendarID, eventID).Context(ctx).Do()
}
