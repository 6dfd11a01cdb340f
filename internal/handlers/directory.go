package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	domain "github.com/kpta119/Drones-Project-sub001/internal/domain"
	"github.com/kpta119/Drones-Project-sub001/internal/platform/auth"
	"github.com/kpta119/Drones-Project-sub001/internal/platform/httpx"
	"github.com/kpta119/Drones-Project-sub001/internal/platform/pagination"
	"github.com/kpta119/Drones-Project-sub001/internal/repositories"
	"github.com/kpta119/Drones-Project-sub001/internal/services"
)

const maxDirectoryBodySize = 16 * 1024

// DirectoryHandlers serves the service catalogue and user-scoped endpoints.
type DirectoryHandlers struct {
	authn     *auth.Authenticator
	directory services.DirectoryService
}

// NewDirectoryHandlers constructs a new DirectoryHandlers instance.
func NewDirectoryHandlers(authn *auth.Authenticator, directory services.DirectoryService) *DirectoryHandlers {
	return &DirectoryHandlers{
		authn:     authn,
		directory: directory,
	}
}

// ServiceRoutes registers the /services catalogue endpoints.
func (h *DirectoryHandlers) ServiceRoutes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireAuth())
	}
	r.Get("/", h.listServices)
	r.Get("/{serviceID}", h.getService)
}

// MeRoutes registers the /me endpoints.
func (h *DirectoryHandlers) MeRoutes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireAuth())
	}
	r.Get("/", h.getMe)
	r.Post("/calendar", h.connectCalendar)
	r.Delete("/calendar", h.disconnectCalendar)
}

type servicePayload struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Category    string `json:"category"`
	Description string `json:"description,omitempty"`
	DurationMin int    `json:"durationMin"`
	Active      bool   `json:"active"`
	CreatedAt   string `json:"createdAt"`
	UpdatedAt   string `json:"updatedAt"`
}

type serviceResponse struct {
	Service servicePayload `json:"service"`
}

type serviceListResponse struct {
	Services      []servicePayload `json:"services"`
	NextPageToken string           `json:"nextPageToken,omitempty"`
}

type calendarAccountPayload struct {
	Email       string `json:"email"`
	CalendarID  string `json:"calendarId"`
	ConnectedAt string `json:"connectedAt"`
}

type userPayload struct {
	ID          string                  `json:"id"`
	DisplayName string                  `json:"displayName"`
	Email       string                  `json:"email,omitempty"`
	Phone       string                  `json:"phone,omitempty"`
	Roles       []string                `json:"roles,omitempty"`
	Calendar    *calendarAccountPayload `json:"calendar,omitempty"`
	CreatedAt   string                  `json:"createdAt"`
	UpdatedAt   string                  `json:"updatedAt"`
}

type userResponse struct {
	User userPayload `json:"user"`
}

type connectCalendarRequest struct {
	Email      string `json:"email"`
	CalendarID string `json:"calendarId"`
}

func (h *DirectoryHandlers) getService(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if _, ok := requireIdentity(ctx, w); !ok {
		return
	}

	service, err := h.directory.GetService(ctx, chi.URLParam(r, "serviceID"))
	if err != nil {
		writeDirectoryError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, serviceResponse{Service: buildServicePayload(service)})
}

func (h *DirectoryHandlers) listServices(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if _, ok := requireIdentity(ctx, w); !ok {
		return
	}

	params, err := pagination.FromRequest(r, pagination.Options{})
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	filter := repositories.ServiceListFilter{
		OnlyActive: r.URL.Query().Get("includeInactive") != "true",
		Pagination: domain.Pagination{
			PageSize:  params.PageSize,
			PageToken: params.PageToken,
		},
	}
	if category := strings.TrimSpace(r.URL.Query().Get("category")); category != "" {
		filter.Category = &category
	}

	page, err := h.directory.ListServices(ctx, filter)
	if err != nil {
		writeDirectoryError(ctx, w, err)
		return
	}

	resp := serviceListResponse{
		Services:      make([]servicePayload, 0, len(page.Items)),
		NextPageToken: page.NextPageToken,
	}
	for _, service := range page.Items {
		resp.Services = append(resp.Services, buildServicePayload(service))
	}

	writeJSONResponse(w, http.StatusOK, resp)
}

func (h *DirectoryHandlers) getMe(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}

	user, err := h.directory.GetUser(ctx, identity.UID)
	if err != nil {
		writeDirectoryError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, userResponse{User: buildUserPayload(user)})
}

func (h *DirectoryHandlers) connectCalendar(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}

	var req connectCalendarRequest
	if !decodeJSONBody(ctx, w, r, maxDirectoryBodySize, &req) {
		return
	}

	user, err := h.directory.ConnectCalendarAccount(ctx, services.ConnectCalendarCommand{
		UserID:     identity.UID,
		Email:      strings.TrimSpace(req.Email),
		CalendarID: strings.TrimSpace(req.CalendarID),
	})
	if err != nil {
		writeDirectoryError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, userResponse{User: buildUserPayload(user)})
}

func (h *DirectoryHandlers) disconnectCalendar(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}

	user, err := h.directory.DisconnectCalendarAccount(ctx, identity.UID)
	if err != nil {
		writeDirectoryError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, userResponse{User: buildUserPayload(user)})
}

func buildServicePayload(service services.DroneService) servicePayload {
	return servicePayload{
		ID:          service.ID,
		Name:        service.Name,
		Category:    service.Category,
		Description: service.Description,
		DurationMin: service.DurationMin,
		Active:      service.Active,
		CreatedAt:   formatTime(service.CreatedAt),
		UpdatedAt:   formatTime(service.UpdatedAt),
	}
}

func buildUserPayload(user services.UserProfile) userPayload {
	payload := userPayload{
		ID:          user.ID,
		DisplayName: user.DisplayName,
		Email:       user.Email,
		Phone:       user.Phone,
		Roles:       user.Roles,
		CreatedAt:   formatTime(user.CreatedAt),
		UpdatedAt:   formatTime(user.UpdatedAt),
	}
	if user.Calendar != nil {
		payload.Calendar = &calendarAccountPayload{
			Email:       user.Calendar.Email,
			CalendarID:  user.Calendar.CalendarID,
			ConnectedAt: formatTime(user.Calendar.ConnectedAt),
		}
	}
	return payload
}

func writeDirectoryError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	switch {
	case errors.Is(err, services.ErrDirectoryInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrOperatorProfileNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("operator_not_found", "operator profile not found", http.StatusNotFound))
	case errors.Is(err, services.ErrServiceNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("service_not_found", "service not found", http.StatusNotFound))
	case errors.Is(err, services.ErrUserNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("user_not_found", "user not found", http.StatusNotFound))
	default:
		var repoErr repositories.RepositoryError
		if errors.As(err, &repoErr) && repoErr.IsUnavailable() {
			httpx.WriteError(ctx, w, httpx.NewError("directory_unavailable", "directory repository unavailable", http.StatusServiceUnavailable))
			return
		}
		httpx.WriteError(ctx, w, httpx.NewError("directory_error", "failed to process directory request", http.StatusInternalServerError))
	}
}
