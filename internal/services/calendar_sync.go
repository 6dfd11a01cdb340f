package services

import (
	"context"
	"errors"
)

var (
	// ErrCalendarNotConnected indicates the relevant participant has no linked
	// external calendar account.
	ErrCalendarNotConnected = errors.New("calendar: account not connected")
	// ErrCalendarSyncFailed wraps transport or API failures from the external
	// calendar collaborator.
	ErrCalendarSyncFailed = errors.New("calendar: sync failed")
)

// CalendarSync translates order transitions into external calendar mutations.
// Implementations are best-effort collaborators: callers must treat failures
// as reportable, never as grounds to revert the committed order state.
type CalendarSync interface {
	// ScheduleEvent creates a calendar event for a freshly matched order and
	// returns the external event reference.
	ScheduleEvent(ctx context.Context, order Order) (string, error)
	// CancelEvent removes the event for a cancelled order. Invoking it for an
	// order without an event reference is a no-op.
	CancelEvent(ctx context.Context, order Order) error
}
