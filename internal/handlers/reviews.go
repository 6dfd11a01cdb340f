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

const maxReviewBodySize = 32 * 1024

// OperatorLookup resolves the operator profile owned by a user, if any.
type OperatorLookup interface {
	GetOperatorByUser(ctx context.Context, userRef string) (services.OperatorProfile, error)
}

// ReviewHandlers exposes endpoints for submitting and retrieving reviews.
type ReviewHandlers struct {
	authn     *auth.Authenticator
	reviews   services.ReviewService
	operators OperatorLookup
}

// NewReviewHandlers constructs a new ReviewHandlers instance. The operator
// lookup is optional; without it operator-authored submissions cannot be
// mapped to their profile id.
func NewReviewHandlers(authn *auth.Authenticator, reviews services.ReviewService, operators OperatorLookup) *ReviewHandlers {
	return &ReviewHandlers{
		authn:     authn,
		reviews:   reviews,
		operators: operators,
	}
}

// Routes registers the /reviews endpoints.
func (h *ReviewHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireAuth())
	}
	r.Post("/", h.submitReview)
	r.Get("/", h.listByTarget)
	r.Get("/{reviewID}", h.getReview)
}

type submitReviewRequest struct {
	OrderID string `json:"orderId"`
	Rating  int    `json:"rating"`
	Body    string `json:"body"`
}

type reviewPayload struct {
	ID        string `json:"id"`
	OrderID   string `json:"orderId"`
	AuthorID  string `json:"authorId"`
	TargetID  string `json:"targetId"`
	Rating    int    `json:"rating"`
	Body      string `json:"body"`
	CreatedAt string `json:"createdAt"`
}

type reviewResponse struct {
	Review reviewPayload `json:"review"`
}

type reviewListResponse struct {
	Reviews       []reviewPayload `json:"reviews"`
	NextPageToken string          `json:"nextPageToken,omitempty"`
}

func (h *ReviewHandlers) submitReview(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}

	var req submitReviewRequest
	if !decodeJSONBody(ctx, w, r, maxReviewBodySize, &req) {
		return
	}

	operatorRef, ok := h.resolveOperatorRef(ctx, w, identity.UID)
	if !ok {
		return
	}

	review, err := h.reviews.SubmitReview(ctx, services.SubmitReviewCommand{
		OrderID:           strings.TrimSpace(req.OrderID),
		AuthorID:          identity.UID,
		AuthorOperatorRef: operatorRef,
		Rating:            req.Rating,
		Body:              req.Body,
	})
	if err != nil {
		writeReviewError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusCreated, reviewResponse{Review: buildReviewPayload(review)})
}

// resolveOperatorRef maps the caller to their operator profile id. Users
// without a profile submit under their user id alone.
func (h *ReviewHandlers) resolveOperatorRef(ctx context.Context, w http.ResponseWriter, userID string) (string, bool) {
	if h.operators == nil {
		return "", true
	}
	profile, err := h.operators.GetOperatorByUser(ctx, userID)
	switch {
	case err == nil:
		return profile.ID, true
	case errors.Is(err, services.ErrOperatorProfileNotFound):
		return "", true
	default:
		writeReviewError(ctx, w, err)
		return "", false
	}
}

func (h *ReviewHandlers) getReview(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if _, ok := requireIdentity(ctx, w); !ok {
		return
	}

	review, err := h.reviews.GetReview(ctx, chi.URLParam(r, "reviewID"))
	if err != nil {
		writeReviewError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, reviewResponse{Review: buildReviewPayload(review)})
}

func (h *ReviewHandlers) listByTarget(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if _, ok := requireIdentity(ctx, w); !ok {
		return
	}

	targetID := strings.TrimSpace(r.URL.Query().Get("targetId"))
	if targetID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "targetId query parameter is required", http.StatusBadRequest))
		return
	}

	params, err := pagination.FromRequest(r, pagination.Options{})
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	page, err := h.reviews.ListByTarget(ctx, targetID, domain.Pagination{
		PageSize:  params.PageSize,
		PageToken: params.PageToken,
	})
	if err != nil {
		writeReviewError(ctx, w, err)
		return
	}

	resp := reviewListResponse{
		Reviews:       make([]reviewPayload, 0, len(page.Items)),
		NextPageToken: page.NextPageToken,
	}
	for _, review := range page.Items {
		resp.Reviews = append(resp.Reviews, buildReviewPayload(review))
	}

	writeJSONResponse(w, http.StatusOK, resp)
}

func buildReviewPayload(review services.Review) reviewPayload {
	return reviewPayload{
		ID:        review.ID,
		OrderID:   review.OrderRef,
		AuthorID:  review.AuthorRef,
		TargetID:  review.TargetRef,
		Rating:    review.Rating,
		Body:      review.Body,
		CreatedAt: formatTime(review.CreatedAt),
	}
}

func writeReviewError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	switch {
	case errors.Is(err, services.ErrReviewInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrReviewNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("review_not_found", "review not found", http.StatusNotFound))
	case errors.Is(err, services.ErrOrderNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("order_not_found", "order not found", http.StatusNotFound))
	case errors.Is(err, services.ErrReviewOrderNotEligible):
		httpx.WriteError(ctx, w, httpx.NewError("order_not_eligible", "order is not eligible for review", http.StatusUnprocessableEntity))
	case errors.Is(err, services.ErrReviewForbidden):
		httpx.WriteError(ctx, w, httpx.NewError("forbidden", "author is not a participant of the order", http.StatusForbidden))
	case errors.Is(err, services.ErrReviewInvalidTarget):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_target", "order has no review target", http.StatusUnprocessableEntity))
	case errors.Is(err, services.ErrReviewAlreadyExists):
		httpx.WriteError(ctx, w, httpx.NewError("review_already_exists", "a review was already submitted for this order", http.StatusConflict))
	case errors.Is(err, services.ErrReviewRejectedContent):
		httpx.WriteError(ctx, w, httpx.NewError("content_rejected", "review content was rejected", http.StatusUnprocessableEntity))
	default:
		var repoErr repositories.RepositoryError
		if errors.As(err, &repoErr) && repoErr.IsUnavailable() {
			httpx.WriteError(ctx, w, httpx.NewError("review_service_unavailable", "review repository unavailable", http.StatusServiceUnavailable))
			return
		}
		httpx.WriteError(ctx, w, httpx.NewError("review_error", "failed to process review request", http.StatusInternalServerError))
	}
}
