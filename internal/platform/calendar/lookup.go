package calendar

import (
	"context"
	"fmt"

	domain "github.com/kpta119/Drones-Project-sub001/internal/domain"
	"github.com/kpta119/Drones-Project-sub001/internal/services"
)

// DirectoryAccountLookup resolves operator calendar accounts through the
// cached directory, so match-time lookups skip Firestore on warm entries.
type DirectoryAccountLookup struct {
	Directory services.DirectoryService
}

func (l DirectoryAccountLookup) CalendarAccountForOperator(ctx context.Context, operatorID string) (domain.CalendarAccount, error) {
	profile, err := l.Directory.GetOperator(ctx, operatorID)
	if err != nil {
		return domain.CalendarAccount{}, fmt.Errorf("%w: operator %s: %v", services.ErrCalendarSyncFailed, operatorID, err)
	}

	user, err := l.Directory.GetUser(ctx, profile.UserRef)
	if err != nil {
		return domain.CalendarAccount{}, fmt.Errorf("%w: user %s: %v", services.ErrCalendarSyncFailed, profile.UserRef, err)
	}
	if !user.CalendarConnected() {
		return domain.CalendarAccount{}, fmt.Errorf("%w: user %s", services.ErrCalendarNotConnected, user.ID)
	}
	return *user.Calendar, nil
}
