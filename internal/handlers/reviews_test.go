package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	domain "github.com/kpta119/Drones-Project-sub001/internal/domain"
	"github.com/kpta119/Drones-Project-sub001/internal/services"
)

type stubReviewService struct {
	submitFn func(ctx context.Context, cmd services.SubmitReviewCommand) (services.Review, error)
	getFn    func(ctx context.Context, reviewID string) (services.Review, error)
	listFn   func(ctx context.Context, targetID string, pager domain.Pagination) (domain.CursorPage[services.Review], error)
}

func (s *stubReviewService) SubmitReview(ctx context.Context, cmd services.SubmitReviewCommand) (services.Review, error) {
	return s.submitFn(ctx, cmd)
}

func (s *stubReviewService) GetReview(ctx context.Context, reviewID string) (services.Review, error) {
	return s.getFn(ctx, reviewID)
}

func (s *stubReviewService) ListByTarget(ctx context.Context, targetID string, pager domain.Pagination) (domain.CursorPage[services.Review], error) {
	return s.listFn(ctx, targetID, pager)
}

type stubOperatorLookup struct {
	byUserFn func(ctx context.Context, userRef string) (services.OperatorProfile, error)
}

func (s *stubOperatorLookup) GetOperatorByUser(ctx context.Context, userRef string) (services.OperatorProfile, error) {
	if s.byUserFn == nil {
		return services.OperatorProfile{}, services.ErrOperatorProfileNotFound
	}
	return s.byUserFn(ctx, userRef)
}

func newReviewTestRouter(svc services.ReviewService) http.Handler {
	return newReviewTestRouterWithLookup(svc, &stubOperatorLookup{})
}

func newReviewTestRouterWithLookup(svc services.ReviewService, operators OperatorLookup) http.Handler {
	h := NewReviewHandlers(nil, svc, operators)
	r := chi.NewRouter()
	r.Route("/reviews", h.Routes)
	return r
}

func sampleReview() services.Review {
	return services.Review{
		ID:        "rv_ord_1_usr_cust",
		OrderRef:  "ord_1",
		AuthorRef: "usr_cust",
		TargetRef: "op_9",
		Rating:    5,
		Body:      "sharp imagery",
		CreatedAt: time.Date(2026, 3, 20, 12, 0, 0, 0, time.UTC),
	}
}

func TestSubmitReviewDerivesAuthorFromIdentity(t *testing.T) {
	var captured services.SubmitReviewCommand
	svc := &stubReviewService{
		submitFn: func(_ context.Context, cmd services.SubmitReviewCommand) (services.Review, error) {
			captured = cmd
			return sampleReview(), nil
		},
	}
	router := newReviewTestRouter(svc)

	body := `{"orderId":"ord_1","rating":5,"body":"sharp imagery"}`
	req := asUser(httptest.NewRequest(http.MethodPost, "/reviews/", strings.NewReader(body)), "usr_cust")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	if captured.AuthorID != "usr_cust" {
		t.Fatalf("expected identity-derived author, got %q", captured.AuthorID)
	}

	var resp reviewResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if resp.Review.TargetID != "op_9" {
		t.Fatalf("unexpected target %q", resp.Review.TargetID)
	}
}

func TestSubmitReviewResolvesOperatorProfile(t *testing.T) {
	var captured services.SubmitReviewCommand
	svc := &stubReviewService{
		submitFn: func(_ context.Context, cmd services.SubmitReviewCommand) (services.Review, error) {
			captured = cmd
			review := sampleReview()
			review.AuthorRef = "op_9"
			review.TargetRef = "usr_cust"
			return review, nil
		},
	}
	lookup := &stubOperatorLookup{
		byUserFn: func(_ context.Context, userRef string) (services.OperatorProfile, error) {
			if userRef != "usr_op" {
				t.Fatalf("unexpected lookup for %q", userRef)
			}
			return services.OperatorProfile{ID: "op_9", UserRef: "usr_op"}, nil
		},
	}
	router := newReviewTestRouterWithLookup(svc, lookup)

	body := `{"orderId":"ord_1","rating":4,"body":"smooth handover"}`
	req := asUser(httptest.NewRequest(http.MethodPost, "/reviews/", strings.NewReader(body)), "usr_op")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	if captured.AuthorID != "usr_op" {
		t.Fatalf("expected identity-derived author, got %q", captured.AuthorID)
	}
	if captured.AuthorOperatorRef != "op_9" {
		t.Fatalf("expected resolved operator profile ref, got %q", captured.AuthorOperatorRef)
	}

	var resp reviewResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if resp.Review.AuthorID != "op_9" {
		t.Fatalf("unexpected author %q", resp.Review.AuthorID)
	}
}

func TestSubmitReviewErrorMapping(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
	}{
		{"order not found", services.ErrOrderNotFound, http.StatusNotFound},
		{"not eligible", services.ErrReviewOrderNotEligible, http.StatusUnprocessableEntity},
		{"forbidden", services.ErrReviewForbidden, http.StatusForbidden},
		{"no target", services.ErrReviewInvalidTarget, http.StatusUnprocessableEntity},
		{"duplicate", services.ErrReviewAlreadyExists, http.StatusConflict},
		{"rejected content", services.ErrReviewRejectedContent, http.StatusUnprocessableEntity},
		{"invalid input", services.ErrReviewInvalidInput, http.StatusBadRequest},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc := &stubReviewService{
				submitFn: func(context.Context, services.SubmitReviewCommand) (services.Review, error) {
					return services.Review{}, tc.err
				},
			}
			router := newReviewTestRouter(svc)

			req := asUser(httptest.NewRequest(http.MethodPost, "/reviews/", strings.NewReader(`{"orderId":"ord_1","rating":5}`)), "usr_cust")
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)

			if rec.Code != tc.status {
				t.Fatalf("expected %d, got %d", tc.status, rec.Code)
			}
		})
	}
}

func TestListReviewsRequiresTarget(t *testing.T) {
	router := newReviewTestRouter(&stubReviewService{})

	req := asUser(httptest.NewRequest(http.MethodGet, "/reviews/", nil), "usr_cust")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestListReviewsByTarget(t *testing.T) {
	svc := &stubReviewService{
		listFn: func(_ context.Context, targetID string, pager domain.Pagination) (domain.CursorPage[services.Review], error) {
			if targetID != "op_9" {
				t.Fatalf("unexpected target %q", targetID)
			}
			if pager.PageSize != 25 {
				t.Fatalf("unexpected page size %d", pager.PageSize)
			}
			return domain.CursorPage[services.Review]{Items: []services.Review{sampleReview()}}, nil
		},
	}
	router := newReviewTestRouter(svc)

	req := asUser(httptest.NewRequest(http.MethodGet, "/reviews/?targetId=op_9&pageSize=25", nil), "usr_cust")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var resp reviewListResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if len(resp.Reviews) != 1 || resp.Reviews[0].ID != "rv_ord_1_usr_cust" {
		t.Fatalf("unexpected payload %#v", resp)
	}
}

func TestGetReviewNotFound(t *testing.T) {
	svc := &stubReviewService{
		getFn: func(context.Context, string) (services.Review, error) {
			return services.Review{}, services.ErrReviewNotFound
		},
	}
	router := newReviewTestRouter(svc)

	req := asUser(httptest.NewRequest(http.MethodGet, "/reviews/rv_missing", nil), "usr_cust")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}
