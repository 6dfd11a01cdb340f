package services

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/kpta119/Drones-Project-sub001/internal/domain"
	"github.com/kpta119/Drones-Project-sub001/internal/repositories"
)

const (
	operatorIDPrefix      = "op_"
	portfolioMaxSizeBytes = 10 << 20
)

var (
	// ErrOperatorInvalidInput signals malformed profile data.
	ErrOperatorInvalidInput = errors.New("operator: invalid input")
	// ErrOperatorProfileExists indicates the user already owns a profile.
	ErrOperatorProfileExists = errors.New("operator: profile already exists for user")
	// ErrOperatorProfileNotFound indicates the profile could not be located.
	ErrOperatorProfileNotFound = errors.New("operator: profile not found")
	// ErrPortfolioUploadFailed wraps blob storage failures during portfolio uploads.
	ErrPortfolioUploadFailed = errors.New("operator: portfolio upload failed")
)

var portfolioContentTypes = map[string]string{
	"application/pdf": ".pdf",
	"image/jpeg":      ".jpg",
	"image/png":       ".png",
}

// OperatorCacheInvalidator evicts cached operator lookups after profile writes.
type OperatorCacheInvalidator interface {
	InvalidateOperator(operatorID string)
}

// OperatorServiceDeps bundles collaborators required to construct the operator service.
type OperatorServiceDeps struct {
	Operators   repositories.OperatorRepository
	Files       FileStore
	Cache       OperatorCacheInvalidator
	Clock       func() time.Time
	IDGenerator func() string
	Logger      func(ctx context.Context, event string, fields map[string]any)
}

type operatorService struct {
	operators repositories.OperatorRepository
	files     FileStore
	cache     OperatorCacheInvalidator
	clock     func() time.Time
	newID     func() string
	logger    func(context.Context, string, map[string]any)
}

// NewOperatorService wires dependencies into a concrete OperatorService implementation.
func NewOperatorService(deps OperatorServiceDeps) (OperatorService, error) {
	if deps.Operators == nil {
		return nil, errors.New("operator service: operator repository is required")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string {
			return ulid.Make().String()
		}
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &operatorService{
		operators: deps.Operators,
		files:     deps.Files,
		cache:     deps.Cache,
		clock: func() time.Time {
			return clock().UTC()
		},
		newID:  idGen,
		logger: logger,
	}, nil
}

func (s *operatorService) CreateProfile(ctx context.Context, cmd CreateOperatorProfileCommand) (OperatorProfile, error) {
	userID := strings.TrimSpace(cmd.UserID)
	displayName := strings.TrimSpace(cmd.DisplayName)

	if userID == "" {
		return OperatorProfile{}, fmt.Errorf("%w: user id is required", ErrOperatorInvalidInput)
	}
	if displayName == "" {
		return OperatorProfile{}, fmt.Errorf("%w: display name is required", ErrOperatorInvalidInput)
	}
	if err := validateGeoPoint(cmd.ServiceCenter); err != nil {
		return OperatorProfile{}, err
	}
	if cmd.ServiceRadiusKm <= 0 {
		return OperatorProfile{}, fmt.Errorf("%w: service radius must be positive", ErrOperatorInvalidInput)
	}

	now := s.clock()
	profile := OperatorProfile{
		ID:              operatorIDPrefix + s.newID(),
		UserRef:         userID,
		DisplayName:     displayName,
		Certificates:    normaliseCertificates(cmd.Certificates),
		ServiceCenter:   cmd.ServiceCenter,
		ServiceRadiusKm: cmd.ServiceRadiusKm,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	stored, err := s.operators.Create(ctx, profile)
	if err != nil {
		if isRepoConflict(err) {
			return OperatorProfile{}, fmt.Errorf("%w: %s", ErrOperatorProfileExists, userID)
		}
		return OperatorProfile{}, err
	}
	return stored, nil
}

func (s *operatorService) UpdateProfile(ctx context.Context, cmd UpdateOperatorProfileCommand) (OperatorProfile, error) {
	operatorID := strings.TrimSpace(cmd.OperatorID)
	if operatorID == "" {
		return OperatorProfile{}, fmt.Errorf("%w: operator id is required", ErrOperatorInvalidInput)
	}

	profile, err := s.operators.FindByID(ctx, operatorID)
	if err != nil {
		if isRepoNotFound(err) {
			return OperatorProfile{}, fmt.Errorf("%w: %s", ErrOperatorProfileNotFound, operatorID)
		}
		return OperatorProfile{}, err
	}

	if cmd.DisplayName != nil {
		name := strings.TrimSpace(*cmd.DisplayName)
		if name == "" {
			return OperatorProfile{}, fmt.Errorf("%w: display name cannot be empty", ErrOperatorInvalidInput)
		}
		profile.DisplayName = name
	}
	if cmd.Certificates != nil {
		profile.Certificates = normaliseCertificates(cmd.Certificates)
	}
	if cmd.ServiceCenter != nil {
		if err := validateGeoPoint(*cmd.ServiceCenter); err != nil {
			return OperatorProfile{}, err
		}
		profile.ServiceCenter = *cmd.ServiceCenter
	}
	if cmd.ServiceRadiusKm != nil {
		if *cmd.ServiceRadiusKm <= 0 {
			return OperatorProfile{}, fmt.Errorf("%w: service radius must be positive", ErrOperatorInvalidInput)
		}
		profile.ServiceRadiusKm = *cmd.ServiceRadiusKm
	}
	profile.UpdatedAt = s.clock()

	updated, err := s.operators.Update(ctx, profile)
	if err != nil {
		if isRepoNotFound(err) {
			return OperatorProfile{}, fmt.Errorf("%w: %s", ErrOperatorProfileNotFound, operatorID)
		}
		return OperatorProfile{}, err
	}

	s.invalidate(updated.ID)
	return updated, nil
}

func (s *operatorService) UploadPortfolio(ctx context.Context, cmd UploadPortfolioCommand) (OperatorProfile, error) {
	operatorID := strings.TrimSpace(cmd.OperatorID)
	if operatorID == "" {
		return OperatorProfile{}, fmt.Errorf("%w: operator id is required", ErrOperatorInvalidInput)
	}
	if s.files == nil {
		return OperatorProfile{}, fmt.Errorf("%w: file storage not configured", ErrPortfolioUploadFailed)
	}
	if len(cmd.Data) == 0 {
		return OperatorProfile{}, fmt.Errorf("%w: empty file", ErrOperatorInvalidInput)
	}
	if len(cmd.Data) > portfolioMaxSizeBytes {
		return OperatorProfile{}, fmt.Errorf("%w: file exceeds %d bytes", ErrOperatorInvalidInput, portfolioMaxSizeBytes)
	}
	ext, ok := portfolioContentTypes[cmd.ContentType]
	if !ok {
		return OperatorProfile{}, fmt.Errorf("%w: unsupported content type %q", ErrOperatorInvalidInput, cmd.ContentType)
	}

	profile, err := s.operators.FindByID(ctx, operatorID)
	if err != nil {
		if isRepoNotFound(err) {
			return OperatorProfile{}, fmt.Errorf("%w: %s", ErrOperatorProfileNotFound, operatorID)
		}
		return OperatorProfile{}, err
	}

	objectName := path.Join("portfolios", profile.ID, s.newID()+ext)
	ref, err := s.files.UploadFile(ctx, objectName, cmd.ContentType, cmd.Data)
	if err != nil {
		return OperatorProfile{}, fmt.Errorf("%w: %v", ErrPortfolioUploadFailed, err)
	}

	previous := profile.PortfolioRef
	profile.PortfolioRef = &ref
	profile.UpdatedAt = s.clock()

	updated, err := s.operators.Update(ctx, profile)
	if err != nil {
		// The profile write lost; remove the orphaned object so the bucket
		// only holds referenced assets.
		if delErr := s.files.DeleteFile(ctx, objectName); delErr != nil {
			s.logger(ctx, "operator.portfolio.orphan.cleanup.failed", map[string]any{
				"operator": operatorID,
				"object":   objectName,
				"error":    delErr.Error(),
			})
		}
		return OperatorProfile{}, err
	}

	if previous != nil && *previous != ref {
		if delErr := s.files.DeleteFile(ctx, *previous); delErr != nil {
			s.logger(ctx, "operator.portfolio.previous.cleanup.failed", map[string]any{
				"operator": operatorID,
				"object":   *previous,
				"error":    delErr.Error(),
			})
		}
	}

	s.invalidate(updated.ID)
	return updated, nil
}

func (s *operatorService) RemovePortfolio(ctx context.Context, operatorID string, actorID string) (OperatorProfile, error) {
	operatorID = strings.TrimSpace(operatorID)
	if operatorID == "" {
		return OperatorProfile{}, fmt.Errorf("%w: operator id is required", ErrOperatorInvalidInput)
	}

	profile, err := s.operators.FindByID(ctx, operatorID)
	if err != nil {
		if isRepoNotFound(err) {
			return OperatorProfile{}, fmt.Errorf("%w: %s", ErrOperatorProfileNotFound, operatorID)
		}
		return OperatorProfile{}, err
	}
	if profile.PortfolioRef == nil {
		return profile, nil
	}

	object := *profile.PortfolioRef
	profile.PortfolioRef = nil
	profile.UpdatedAt = s.clock()

	updated, err := s.operators.Update(ctx, profile)
	if err != nil {
		return OperatorProfile{}, err
	}

	if s.files != nil {
		if delErr := s.files.DeleteFile(ctx, object); delErr != nil {
			s.logger(ctx, "operator.portfolio.delete.failed", map[string]any{
				"operator": operatorID,
				"object":   object,
				"error":    delErr.Error(),
			})
		}
	}

	s.invalidate(updated.ID)
	return updated, nil
}

func (s *operatorService) invalidate(operatorID string) {
	if s.cache != nil {
		s.cache.InvalidateOperator(operatorID)
	}
}

func validateGeoPoint(point domain.GeoPoint) error {
	if point.Latitude < -90 || point.Latitude > 90 {
		return fmt.Errorf("%w: latitude %f out of range", ErrOperatorInvalidInput, point.Latitude)
	}
	if point.Longitude < -180 || point.Longitude > 180 {
		return fmt.Errorf("%w: longitude %f out of range", ErrOperatorInvalidInput, point.Longitude)
	}
	return nil
}

func normaliseCertificates(certs []string) []string {
	out := make([]string, 0, len(certs))
	seen := make(map[string]struct{}, len(certs))
	for _, cert := range certs {
		cert = strings.TrimSpace(cert)
		if cert == "" {
			continue
		}
		if _, dup := seen[cert]; dup {
			continue
		}
		seen[cert] = struct{}{}
		out = append(out, cert)
	}
	return out
}
