package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	domain "github.com/kpta119/Drones-Project-sub001/internal/domain"
	"github.com/kpta119/Drones-Project-sub001/internal/platform/auth"
	"github.com/kpta119/Drones-Project-sub001/internal/platform/httpx"
	"github.com/kpta119/Drones-Project-sub001/internal/platform/pagination"
	"github.com/kpta119/Drones-Project-sub001/internal/repositories"
	"github.com/kpta119/Drones-Project-sub001/internal/services"
)

const maxOrderBodySize = 32 * 1024

// OrderHandlers exposes the order lifecycle endpoints.
type OrderHandlers struct {
	authn      *auth.Authenticator
	orders     services.OrderService
	createMW   []func(http.Handler) http.Handler
	timeLayout string
}

// OrderHandlersOption customises the handlers.
type OrderHandlersOption func(*OrderHandlers)

// WithOrderCreateMiddlewares wraps the create endpoint with extra middleware,
// used to attach the idempotency guard.
func WithOrderCreateMiddlewares(mw ...func(http.Handler) http.Handler) OrderHandlersOption {
	return func(h *OrderHandlers) {
		h.createMW = append(h.createMW, mw...)
	}
}

// NewOrderHandlers constructs a new OrderHandlers instance.
func NewOrderHandlers(authn *auth.Authenticator, orders services.OrderService, opts ...OrderHandlersOption) *OrderHandlers {
	h := &OrderHandlers{
		authn:      authn,
		orders:     orders,
		timeLayout: time.RFC3339,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

// Routes registers the /orders endpoints.
func (h *OrderHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireAuth())
	}

	create := r.With(h.createMW...)
	create.Post("/", h.createOrder)

	r.Get("/", h.listOrders)
	r.Get("/{orderID}", h.getOrder)
	r.Post("/{orderID}/match", h.matchOperator)
	r.Post("/{orderID}/start", h.startProgress)
	r.Post("/{orderID}/complete", h.complete)
	r.Post("/{orderID}/cancel", h.cancel)
	r.Get("/in-progress", h.inProgressForOperator)
}

type createOrderRequest struct {
	ServiceID   string `json:"serviceId"`
	ScheduledAt string `json:"scheduledAt"`
	Notes       string `json:"notes"`
}

type matchOperatorRequest struct {
	OperatorID string `json:"operatorId"`
}

type cancelOrderRequest struct {
	Reason string `json:"reason"`
}

type orderPayload struct {
	ID              string  `json:"id"`
	CustomerID      string  `json:"customerId"`
	OperatorID      *string `json:"operatorId,omitempty"`
	ServiceID       string  `json:"serviceId"`
	Status          string  `json:"status"`
	ScheduledAt     string  `json:"scheduledAt"`
	CalendarEventID *string `json:"calendarEventId,omitempty"`
	Notes           string  `json:"notes,omitempty"`
	CancelReason    *string `json:"cancelReason,omitempty"`
	CreatedAt       string  `json:"createdAt"`
	UpdatedAt       string  `json:"updatedAt"`
	MatchedAt       string  `json:"matchedAt,omitempty"`
	StartedAt       string  `json:"startedAt,omitempty"`
	CompletedAt     string  `json:"completedAt,omitempty"`
	CancelledAt     string  `json:"cancelledAt,omitempty"`
}

type orderResponse struct {
	Order orderPayload `json:"order"`
}

type matchOperatorResponse struct {
	Order        orderPayload `json:"order"`
	CalendarSync string       `json:"calendarSync"`
	SyncError    string       `json:"syncError,omitempty"`
}

type orderListResponse struct {
	Orders        []orderPayload `json:"orders"`
	NextPageToken string         `json:"nextPageToken,omitempty"`
}

func (h *OrderHandlers) createOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}

	var req createOrderRequest
	if !decodeJSONBody(ctx, w, r, maxOrderBodySize, &req) {
		return
	}

	scheduledAt, err := time.Parse(h.timeLayout, strings.TrimSpace(req.ScheduledAt))
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "scheduledAt must be an RFC 3339 timestamp", http.StatusBadRequest))
		return
	}

	order, err := h.orders.CreateOrder(ctx, services.CreateOrderCommand{
		CustomerID:  identity.UID,
		ServiceID:   strings.TrimSpace(req.ServiceID),
		ScheduledAt: scheduledAt,
		Notes:       req.Notes,
		ActorID:     identity.UID,
	})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusCreated, orderResponse{Order: buildOrderPayload(order)})
}

func (h *OrderHandlers) getOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if _, ok := requireIdentity(ctx, w); !ok {
		return
	}

	order, err := h.orders.GetOrder(ctx, chi.URLParam(r, "orderID"))
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, orderResponse{Order: buildOrderPayload(order)})
}

func (h *OrderHandlers) matchOperator(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}

	var req matchOperatorRequest
	if !decodeJSONBody(ctx, w, r, maxOrderBodySize, &req) {
		return
	}

	result, err := h.orders.MatchOperator(ctx, services.MatchOperatorCommand{
		OrderID:    chi.URLParam(r, "orderID"),
		OperatorID: strings.TrimSpace(req.OperatorID),
		ActorID:    identity.UID,
	})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	// The match stands even when the calendar side channel failed; the sync
	// outcome is reported alongside the committed order.
	resp := matchOperatorResponse{
		Order:        buildOrderPayload(result.Order),
		CalendarSync: "scheduled",
	}
	if result.SyncErr != nil {
		resp.CalendarSync = "failed"
		resp.SyncError = result.SyncErr.Error()
	}

	writeJSONResponse(w, http.StatusOK, resp)
}

func (h *OrderHandlers) startProgress(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.orders.StartProgress)
}

func (h *OrderHandlers) complete(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.orders.Complete)
}

func (h *OrderHandlers) transition(w http.ResponseWriter, r *http.Request, apply func(context.Context, services.TransitionCommand) (services.Order, error)) {
	ctx := r.Context()
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}

	order, err := apply(ctx, services.TransitionCommand{
		OrderID: chi.URLParam(r, "orderID"),
		ActorID: identity.UID,
	})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, orderResponse{Order: buildOrderPayload(order)})
}

func (h *OrderHandlers) cancel(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}

	var req cancelOrderRequest
	if body, err := readLimitedBody(r, maxOrderBodySize); err == nil {
		if err := json.Unmarshal(body, &req); err != nil {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid JSON payload", http.StatusBadRequest))
			return
		}
	} else if !errors.Is(err, errEmptyBody) {
		writeBodyError(ctx, w, err)
		return
	}

	order, err := h.orders.Cancel(ctx, services.CancelOrderCommand{
		OrderID: chi.URLParam(r, "orderID"),
		Reason:  strings.TrimSpace(req.Reason),
		ActorID: identity.UID,
	})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, orderResponse{Order: buildOrderPayload(order)})
}

func (h *OrderHandlers) listOrders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if _, ok := requireIdentity(ctx, w); !ok {
		return
	}

	params, err := pagination.FromRequest(r, pagination.Options{})
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	filter := repositories.OrderListFilter{
		CustomerID: strings.TrimSpace(r.URL.Query().Get("customerId")),
		OperatorID: strings.TrimSpace(r.URL.Query().Get("operatorId")),
		Pagination: domain.Pagination{
			PageSize:  params.PageSize,
			PageToken: params.PageToken,
		},
	}

	for _, raw := range r.URL.Query()["status"] {
		status := domain.OrderStatus(strings.TrimSpace(raw))
		switch status {
		case domain.OrderStatusPending, domain.OrderStatusMatched, domain.OrderStatusInProgress,
			domain.OrderStatusCompleted, domain.OrderStatusCancelled:
			filter.Status = append(filter.Status, status)
		case "":
		default:
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "unknown status filter", http.StatusBadRequest))
			return
		}
	}

	if filter.DateRange.From, err = parseTimeParam(r, "scheduledFrom"); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}
	if filter.DateRange.To, err = parseTimeParam(r, "scheduledTo"); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	page, err := h.orders.ListOrders(ctx, filter)
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	resp := orderListResponse{
		Orders:        make([]orderPayload, 0, len(page.Items)),
		NextPageToken: page.NextPageToken,
	}
	for _, order := range page.Items {
		resp.Orders = append(resp.Orders, buildOrderPayload(order))
	}

	writeJSONResponse(w, http.StatusOK, resp)
}

func (h *OrderHandlers) inProgressForOperator(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}

	operatorID := strings.TrimSpace(r.URL.Query().Get("operatorId"))
	if operatorID == "" {
		operatorID = identity.UID
	}

	order, err := h.orders.FindInProgressByOperator(ctx, operatorID)
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, orderResponse{Order: buildOrderPayload(order)})
}

func parseTimeParam(r *http.Request, name string) (*time.Time, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return nil, nil
	}
	parsed, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil, errors.New(name + " must be an RFC 3339 timestamp")
	}
	return &parsed, nil
}

func buildOrderPayload(order services.Order) orderPayload {
	return orderPayload{
		ID:              order.ID,
		CustomerID:      order.CustomerRef,
		OperatorID:      cloneStringPointer(order.OperatorRef),
		ServiceID:       order.ServiceRef,
		Status:          string(order.Status),
		ScheduledAt:     formatTime(order.ScheduledAt),
		CalendarEventID: cloneStringPointer(order.CalendarEventID),
		Notes:           order.Notes,
		CancelReason:    cloneStringPointer(order.CancelReason),
		CreatedAt:       formatTime(order.CreatedAt),
		UpdatedAt:       formatTime(order.UpdatedAt),
		MatchedAt:       formatTimePointer(order.MatchedAt),
		StartedAt:       formatTimePointer(order.StartedAt),
		CompletedAt:     formatTimePointer(order.CompletedAt),
		CancelledAt:     formatTimePointer(order.CancelledAt),
	}
}

func writeOrderError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	switch {
	case errors.Is(err, services.ErrOrderInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrOrderNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("order_not_found", "order not found", http.StatusNotFound))
	case errors.Is(err, services.ErrOrderInProgressNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("order_in_progress_not_found", "no in-progress order for operator", http.StatusNotFound))
	case errors.Is(err, services.ErrOperatorNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("operator_not_found", "operator profile not found", http.StatusNotFound))
	case errors.Is(err, services.ErrOrderAlreadyMatched):
		httpx.WriteError(ctx, w, httpx.NewError("order_already_matched", "order is no longer pending", http.StatusConflict))
	case errors.Is(err, services.ErrOrderInvalidState):
		httpx.WriteError(ctx, w, httpx.NewError("order_invalid_state", err.Error(), http.StatusConflict))
	default:
		var repoErr repositories.RepositoryError
		if errors.As(err, &repoErr) && repoErr.IsUnavailable() {
			httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order repository unavailable", http.StatusServiceUnavailable))
			return
		}
		httpx.WriteError(ctx, w, httpx.NewError("order_error", "failed to process order request", http.StatusInternalServerError))
	}
}

func requireIdentity(ctx context.Context, w http.ResponseWriter) (*auth.Identity, bool) {
	identity, ok := auth.IdentityFromContext(ctx)
	if !ok || strings.TrimSpace(identity.UID) == "" {
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return nil, false
	}
	return identity, true
}

func decodeJSONBody(ctx context.Context, w http.ResponseWriter, r *http.Request, limit int64, dst any) bool {
	body, err := readLimitedBody(r, limit)
	if err != nil {
		writeBodyError(ctx, w, err)
		return false
	}
	if err := json.Unmarshal(body, dst); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid JSON payload", http.StatusBadRequest))
		return false
	}
	return true
}

func writeBodyError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, errEmptyBody):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "request body is required", http.StatusBadRequest))
	case errors.Is(err, errBodyTooLarge):
		httpx.WriteError(ctx, w, httpx.NewError("payload_too_large", "request body exceeds allowed size", http.StatusRequestEntityTooLarge))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	}
}
