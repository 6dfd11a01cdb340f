package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	domain "github.com/kpta119/Drones-Project-sub001/internal/domain"
	"github.com/kpta119/Drones-Project-sub001/internal/platform/cache"
	"github.com/kpta119/Drones-Project-sub001/internal/repositories"
)

var (
	// ErrDirectoryInvalidInput signals a blank or malformed lookup key.
	ErrDirectoryInvalidInput = errors.New("directory: invalid input")
	// ErrServiceNotFound indicates the service offering could not be located.
	ErrServiceNotFound = errors.New("directory: service not found")
	// ErrUserNotFound indicates the user profile could not be located.
	ErrUserNotFound = errors.New("directory: user not found")
)

// DirectoryServiceDeps bundles collaborators required to construct the directory service.
//
// Each bucket carries independent idle-expiry and capacity settings; a service
// catalogue entry outliving its bucket never interferes with operator or user
// freshness.
type DirectoryServiceDeps struct {
	Operators repositories.OperatorRepository
	Services  repositories.ServiceRepository
	Users     repositories.UserRepository

	OperatorCache *cache.Cache[string, domain.OperatorProfile]
	ServiceCache  *cache.Cache[string, domain.DroneService]
	UserCache     *cache.Cache[string, domain.UserProfile]

	Clock func() time.Time
}

type directoryService struct {
	operators repositories.OperatorRepository
	services  repositories.ServiceRepository
	users     repositories.UserRepository

	operatorCache *cache.Cache[string, domain.OperatorProfile]
	serviceCache  *cache.Cache[string, domain.DroneService]
	userCache     *cache.Cache[string, domain.UserProfile]

	clock func() time.Time
}

// NewDirectoryService wires dependencies into a concrete DirectoryService implementation.
func NewDirectoryService(deps DirectoryServiceDeps) (DirectoryService, error) {
	if deps.Operators == nil {
		return nil, errors.New("directory service: operator repository is required")
	}
	if deps.Services == nil {
		return nil, errors.New("directory service: service repository is required")
	}
	if deps.Users == nil {
		return nil, errors.New("directory service: user repository is required")
	}
	if deps.OperatorCache == nil || deps.ServiceCache == nil || deps.UserCache == nil {
		return nil, errors.New("directory service: all cache buckets are required")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}

	return &directoryService{
		operators:     deps.Operators,
		services:      deps.Services,
		users:         deps.Users,
		operatorCache: deps.OperatorCache,
		serviceCache:  deps.ServiceCache,
		userCache:     deps.UserCache,
		clock: func() time.Time {
			return clock().UTC()
		},
	}, nil
}

func (s *directoryService) GetOperator(ctx context.Context, operatorID string) (OperatorProfile, error) {
	operatorID = strings.TrimSpace(operatorID)
	if operatorID == "" {
		return OperatorProfile{}, fmt.Errorf("%w: operator id is required", ErrDirectoryInvalidInput)
	}
	profile, err := s.operatorCache.Get(ctx, operatorID, func(ctx context.Context) (domain.OperatorProfile, error) {
		return s.operators.FindByID(ctx, operatorID)
	})
	if err != nil {
		if isRepoNotFound(err) {
			return OperatorProfile{}, fmt.Errorf("%w: %s", ErrOperatorProfileNotFound, operatorID)
		}
		return OperatorProfile{}, err
	}
	return profile, nil
}

// GetOperatorByUser bypasses the cache: the bucket is keyed by profile id and
// a user-keyed alias would dodge InvalidateOperator after profile updates.
func (s *directoryService) GetOperatorByUser(ctx context.Context, userRef string) (OperatorProfile, error) {
	userRef = strings.TrimSpace(userRef)
	if userRef == "" {
		return OperatorProfile{}, fmt.Errorf("%w: user ref is required", ErrDirectoryInvalidInput)
	}
	profile, err := s.operators.FindByUser(ctx, userRef)
	if err != nil {
		if isRepoNotFound(err) {
			return OperatorProfile{}, fmt.Errorf("%w: user %s", ErrOperatorProfileNotFound, userRef)
		}
		return OperatorProfile{}, err
	}
	return profile, nil
}

func (s *directoryService) GetService(ctx context.Context, serviceID string) (DroneService, error) {
	serviceID = strings.TrimSpace(serviceID)
	if serviceID == "" {
		return DroneService{}, fmt.Errorf("%w: service id is required", ErrDirectoryInvalidInput)
	}
	service, err := s.serviceCache.Get(ctx, serviceID, func(ctx context.Context) (domain.DroneService, error) {
		return s.services.FindByID(ctx, serviceID)
	})
	if err != nil {
		if isRepoNotFound(err) {
			return DroneService{}, fmt.Errorf("%w: %s", ErrServiceNotFound, serviceID)
		}
		return DroneService{}, err
	}
	return service, nil
}

func (s *directoryService) GetUser(ctx context.Context, userID string) (UserProfile, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return UserProfile{}, fmt.Errorf("%w: user id is required", ErrDirectoryInvalidInput)
	}
	user, err := s.userCache.Get(ctx, userID, func(ctx context.Context) (domain.UserProfile, error) {
		return s.users.FindByID(ctx, userID)
	})
	if err != nil {
		if isRepoNotFound(err) {
			return UserProfile{}, fmt.Errorf("%w: %s", ErrUserNotFound, userID)
		}
		return UserProfile{}, err
	}
	return user, nil
}

// ListServices queries the catalogue directly; list results are not cached,
// only individual lookups are.
func (s *directoryService) ListServices(ctx context.Context, filter repositories.ServiceListFilter) (domain.CursorPage[DroneService], error) {
	return s.services.List(ctx, filter)
}

func (s *directoryService) InvalidateOperator(operatorID string) {
	s.operatorCache.Invalidate(operatorID)
}

func (s *directoryService) InvalidateService(serviceID string) {
	s.serviceCache.Invalidate(serviceID)
}

func (s *directoryService) InvalidateUser(userID string) {
	s.userCache.Invalidate(userID)
}

func (s *directoryService) ConnectCalendarAccount(ctx context.Context, cmd ConnectCalendarCommand) (UserProfile, error) {
	userID := strings.TrimSpace(cmd.UserID)
	email := strings.TrimSpace(cmd.Email)
	calendarID := strings.TrimSpace(cmd.CalendarID)

	if userID == "" {
		return UserProfile{}, fmt.Errorf("%w: user id is required", ErrDirectoryInvalidInput)
	}
	if email == "" {
		return UserProfile{}, fmt.Errorf("%w: account email is required", ErrDirectoryInvalidInput)
	}
	if calendarID == "" {
		calendarID = "primary"
	}

	now := s.clock()
	account := &domain.CalendarAccount{
		Email:       email,
		CalendarID:  calendarID,
		ConnectedAt: now,
	}
	user, err := s.users.SetCalendarAccount(ctx, userID, account, now)
	if err != nil {
		if isRepoNotFound(err) {
			return UserProfile{}, fmt.Errorf("%w: %s", ErrUserNotFound, userID)
		}
		return UserProfile{}, err
	}

	s.userCache.Invalidate(userID)
	return user, nil
}

func (s *directoryService) DisconnectCalendarAccount(ctx context.Context, userID string) (UserProfile, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return UserProfile{}, fmt.Errorf("%w: user id is required", ErrDirectoryInvalidInput)
	}

	user, err := s.users.SetCalendarAccount(ctx, userID, nil, s.clock())
	if err != nil {
		if isRepoNotFound(err) {
			return UserProfile{}, fmt.Errorf("%w: %s", ErrUserNotFound, userID)
		}
		return UserProfile{}, err
	}

	s.userCache.Invalidate(userID)
	return user, nil
}
