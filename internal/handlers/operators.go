package handlers

import (
	"context"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	domain "github.com/kpta119/Drones-Project-sub001/internal/domain"
	"github.com/kpta119/Drones-Project-sub001/internal/platform/auth"
	"github.com/kpta119/Drones-Project-sub001/internal/platform/httpx"
	"github.com/kpta119/Drones-Project-sub001/internal/repositories"
	"github.com/kpta119/Drones-Project-sub001/internal/services"
)

const (
	maxOperatorBodySize    = 32 * 1024
	maxPortfolioUploadSize = 10 << 20
)

// OperatorHandlers exposes operator onboarding and directory endpoints.
type OperatorHandlers struct {
	authn     *auth.Authenticator
	operators services.OperatorService
	directory services.DirectoryService
}

// NewOperatorHandlers constructs a new OperatorHandlers instance.
func NewOperatorHandlers(authn *auth.Authenticator, operators services.OperatorService, directory services.DirectoryService) *OperatorHandlers {
	return &OperatorHandlers{
		authn:     authn,
		operators: operators,
		directory: directory,
	}
}

// Routes registers the /operators endpoints.
func (h *OperatorHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireAuth())
	}

	r.Get("/{operatorID}", h.getOperator)

	if h.authn != nil {
		r = r.With(h.authn.RequireAuth(auth.RoleOperator, auth.RoleAdmin))
	}
	r.Post("/", h.createProfile)
	r.Patch("/{operatorID}", h.updateProfile)
	r.Post("/{operatorID}/portfolio", h.uploadPortfolio)
	r.Delete("/{operatorID}/portfolio", h.removePortfolio)
}

type geoPointPayload struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

type createOperatorRequest struct {
	DisplayName     string          `json:"displayName"`
	Certificates    []string        `json:"certificates"`
	ServiceCenter   geoPointPayload `json:"serviceCenter"`
	ServiceRadiusKm float64         `json:"serviceRadiusKm"`
}

type updateOperatorRequest struct {
	DisplayName     *string          `json:"displayName"`
	Certificates    []string         `json:"certificates"`
	ServiceCenter   *geoPointPayload `json:"serviceCenter"`
	ServiceRadiusKm *float64         `json:"serviceRadiusKm"`
}

type operatorPayload struct {
	ID              string          `json:"id"`
	UserID          string          `json:"userId"`
	DisplayName     string          `json:"displayName"`
	PortfolioRef    *string         `json:"portfolioRef,omitempty"`
	Certificates    []string        `json:"certificates,omitempty"`
	ServiceCenter   geoPointPayload `json:"serviceCenter"`
	ServiceRadiusKm float64         `json:"serviceRadiusKm"`
	CreatedAt       string          `json:"createdAt"`
	UpdatedAt       string          `json:"updatedAt"`
}

type operatorResponse struct {
	Operator operatorPayload `json:"operator"`
}

func (h *OperatorHandlers) createProfile(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}

	var req createOperatorRequest
	if !decodeJSONBody(ctx, w, r, maxOperatorBodySize, &req) {
		return
	}

	profile, err := h.operators.CreateProfile(ctx, services.CreateOperatorProfileCommand{
		UserID:       identity.UID,
		DisplayName:  strings.TrimSpace(req.DisplayName),
		Certificates: req.Certificates,
		ServiceCenter: domain.GeoPoint{
			Latitude:  req.ServiceCenter.Latitude,
			Longitude: req.ServiceCenter.Longitude,
		},
		ServiceRadiusKm: req.ServiceRadiusKm,
		ActorID:         identity.UID,
	})
	if err != nil {
		writeOperatorError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusCreated, operatorResponse{Operator: buildOperatorPayload(profile)})
}

func (h *OperatorHandlers) updateProfile(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}

	var req updateOperatorRequest
	if !decodeJSONBody(ctx, w, r, maxOperatorBodySize, &req) {
		return
	}

	cmd := services.UpdateOperatorProfileCommand{
		OperatorID:      chi.URLParam(r, "operatorID"),
		DisplayName:     req.DisplayName,
		Certificates:    req.Certificates,
		ServiceRadiusKm: req.ServiceRadiusKm,
		ActorID:         identity.UID,
	}
	if req.ServiceCenter != nil {
		cmd.ServiceCenter = &domain.GeoPoint{
			Latitude:  req.ServiceCenter.Latitude,
			Longitude: req.ServiceCenter.Longitude,
		}
	}

	profile, err := h.operators.UpdateProfile(ctx, cmd)
	if err != nil {
		writeOperatorError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, operatorResponse{Operator: buildOperatorPayload(profile)})
}

func (h *OperatorHandlers) uploadPortfolio(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}

	file, header, err := portfolioFile(r)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}
	defer func() {
		_ = file.Close()
	}()

	data, err := io.ReadAll(io.LimitReader(file, maxPortfolioUploadSize+1))
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "unable to read uploaded file", http.StatusBadRequest))
		return
	}
	if len(data) > maxPortfolioUploadSize {
		httpx.WriteError(ctx, w, httpx.NewError("payload_too_large", "portfolio file exceeds allowed size", http.StatusRequestEntityTooLarge))
		return
	}

	profile, err := h.operators.UploadPortfolio(ctx, services.UploadPortfolioCommand{
		OperatorID:  chi.URLParam(r, "operatorID"),
		FileName:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Data:        data,
		ActorID:     identity.UID,
	})
	if err != nil {
		writeOperatorError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, operatorResponse{Operator: buildOperatorPayload(profile)})
}

func (h *OperatorHandlers) removePortfolio(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}

	profile, err := h.operators.RemovePortfolio(ctx, chi.URLParam(r, "operatorID"), identity.UID)
	if err != nil {
		writeOperatorError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, operatorResponse{Operator: buildOperatorPayload(profile)})
}

func (h *OperatorHandlers) getOperator(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if _, ok := requireIdentity(ctx, w); !ok {
		return
	}

	profile, err := h.directory.GetOperator(ctx, chi.URLParam(r, "operatorID"))
	if err != nil {
		writeDirectoryError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, operatorResponse{Operator: buildOperatorPayload(profile)})
}

func portfolioFile(r *http.Request) (multipart.File, *multipart.FileHeader, error) {
	if err := r.ParseMultipartForm(maxPortfolioUploadSize); err != nil {
		return nil, nil, errors.New("multipart form with a file field is required")
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		return nil, nil, errors.New("file field is required")
	}
	return file, header, nil
}

func buildOperatorPayload(profile services.OperatorProfile) operatorPayload {
	return operatorPayload{
		ID:           profile.ID,
		UserID:       profile.UserRef,
		DisplayName:  profile.DisplayName,
		PortfolioRef: cloneStringPointer(profile.PortfolioRef),
		Certificates: profile.Certificates,
		ServiceCenter: geoPointPayload{
			Latitude:  profile.ServiceCenter.Latitude,
			Longitude: profile.ServiceCenter.Longitude,
		},
		ServiceRadiusKm: profile.ServiceRadiusKm,
		CreatedAt:       formatTime(profile.CreatedAt),
		UpdatedAt:       formatTime(profile.UpdatedAt),
	}
}

func writeOperatorError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	switch {
	case errors.Is(err, services.ErrOperatorInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrOperatorProfileExists):
		httpx.WriteError(ctx, w, httpx.NewError("operator_profile_exists", "an operator profile already exists for this user", http.StatusConflict))
	case errors.Is(err, services.ErrOperatorProfileNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("operator_not_found", "operator profile not found", http.StatusNotFound))
	case errors.Is(err, services.ErrPortfolioUploadFailed):
		httpx.WriteError(ctx, w, httpx.NewError("portfolio_upload_failed", "portfolio upload failed", http.StatusBadGateway))
	default:
		var repoErr repositories.RepositoryError
		if errors.As(err, &repoErr) && repoErr.IsUnavailable() {
			httpx.WriteError(ctx, w, httpx.NewError("operator_service_unavailable", "operator repository unavailable", http.StatusServiceUnavailable))
			return
		}
		httpx.WriteError(ctx, w, httpx.NewError("operator_error", "failed to process operator request", http.StatusInternalServerError))
	}
}
