package firestore

import (
	"context"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/kpta119/Drones-Project-sub001/internal/domain"
	platform "github.com/kpta119/Drones-Project-sub001/internal/platform/firestore"
)

type userRepository struct {
	base *platform.BaseRepository[userDoc]
}

func newUserRepository(provider *platform.Provider) *userRepository {
	return &userRepository{
		base: platform.NewBaseRepository[userDoc](provider, usersCollection, nil),
	}
}

func (r *userRepository) FindByID(ctx context.Context, userID string) (domain.UserProfile, error) {
	doc, err := r.base.Get(ctx, userID)
	if err != nil {
		return domain.UserProfile{}, err
	}
	return userFromDoc(doc.ID, doc.Data), nil
}

func (r *userRepository) UpdateProfile(ctx context.Context, profile domain.UserProfile) (domain.UserProfile, error) {
	if err := r.base.Set(ctx, profile.ID, userToDoc(profile)); err != nil {
		return domain.UserProfile{}, err
	}
	return profile, nil
}

// SetCalendarAccount is transactional so a concurrent profile update cannot
// drop or resurrect the calendar connection.
func (r *userRepository) SetCalendarAccount(ctx context.Context, userID string, account *domain.CalendarAccount, updatedAt time.Time) (domain.UserProfile, error) {
	ref, err := r.base.DocumentRef(ctx, userID)
	if err != nil {
		return domain.UserProfile{}, err
	}

	var updated domain.UserProfile
	err = r.base.Provider().RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(ref)
		if err != nil {
			return platform.WrapError("users.calendar.get", err)
		}
		doc, err := r.base.Decode(snap)
		if err != nil {
			return err
		}

		user := userFromDoc(doc.ID, doc.Data)
		user.Calendar = nil
		if account != nil {
			copied := *account
			user.Calendar = &copied
		}
		user.UpdatedAt = updatedAt

		updated = user
		return tx.Set(ref, userToDoc(user))
	})
	if err != nil {
		return domain.UserProfile{}, err
	}
	return updated, nil
}
