package services

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/text/unicode/norm"

	domain "github.com/kpta119/Drones-Project-sub001/internal/domain"
	"github.com/kpta119/Drones-Project-sub001/internal/repositories"
)

const (
	reviewIDPrefix     = "rv_"
	reviewMinRating    = 1
	reviewMaxRating    = 5
	reviewMaxBodyRunes = 2000
)

var (
	// ErrReviewInvalidInput signals malformed submission data such as an
	// out-of-range rating.
	ErrReviewInvalidInput = errors.New("review: invalid input")
	// ErrReviewNotFound indicates the review could not be located.
	ErrReviewNotFound = errors.New("review: not found")
	// ErrReviewOrderNotEligible indicates the order has not reached a
	// reviewable status.
	ErrReviewOrderNotEligible = errors.New("review: order not eligible for review")
	// ErrReviewForbidden indicates the author is not a participant of the order.
	ErrReviewForbidden = errors.New("review: author is not an order participant")
	// ErrReviewInvalidTarget indicates no valid counterpart exists for the author.
	ErrReviewInvalidTarget = errors.New("review: no valid review target")
	// ErrReviewAlreadyExists indicates the author already reviewed this order.
	ErrReviewAlreadyExists = errors.New("review: already submitted for this order")
	// ErrReviewRejectedContent indicates the body failed content moderation.
	ErrReviewRejectedContent = errors.New("review: content rejected")
)

// ProfanityChecker reports whether the given text must be rejected.
type ProfanityChecker func(text string) bool

// ReviewServiceDeps bundles collaborators required to construct the review service.
type ReviewServiceDeps struct {
	Reviews     repositories.ReviewRepository
	Orders      repositories.OrderRepository
	Profanity   ProfanityChecker
	Clock       func() time.Time
	IDGenerator func() string
}

type reviewService struct {
	reviews   repositories.ReviewRepository
	orders    repositories.OrderRepository
	sanitizer *bluemonday.Policy
	profanity ProfanityChecker
	clock     func() time.Time
}

// NewReviewService wires dependencies into a concrete ReviewService implementation.
func NewReviewService(deps ReviewServiceDeps) (ReviewService, error) {
	if deps.Reviews == nil {
		return nil, errors.New("review service: review repository is required")
	}
	if deps.Orders == nil {
		return nil, errors.New("review service: order repository is required")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	profanity := deps.Profanity
	if profanity == nil {
		profanity = basicProfanityChecker
	}

	return &reviewService{
		reviews:   deps.Reviews,
		orders:    deps.Orders,
		sanitizer: bluemonday.StrictPolicy(),
		profanity: profanity,
		clock: func() time.Time {
			return clock().UTC()
		},
	}, nil
}

// SubmitReview runs the eligibility gate in a fixed order: order existence,
// reviewable status, author participation, target derivation, single-review
// guarantee, then rating and body validation. The single-review guarantee is
// also enforced at the persistence boundary, so concurrent duplicates surface
// as ErrReviewAlreadyExists rather than racing past the pre-check.
func (s *reviewService) SubmitReview(ctx context.Context, cmd SubmitReviewCommand) (Review, error) {
	orderID := strings.TrimSpace(cmd.OrderID)
	authorID := strings.TrimSpace(cmd.AuthorID)

	if orderID == "" {
		return Review{}, fmt.Errorf("%w: order id is required", ErrReviewInvalidInput)
	}
	if authorID == "" {
		return Review{}, fmt.Errorf("%w: author id is required", ErrReviewInvalidInput)
	}

	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		if isRepoNotFound(err) {
			return Review{}, fmt.Errorf("%w: %s", ErrOrderNotFound, orderID)
		}
		return Review{}, err
	}

	if order.Status != domain.OrderStatusInProgress && order.Status != domain.OrderStatusCompleted {
		return Review{}, fmt.Errorf("%w: order %s is %s", ErrReviewOrderNotEligible, orderID, order.Status)
	}
	// Operators appear on orders under their profile id rather than their user
	// id, so the author may participate under either ref.
	if !order.IsParticipant(authorID) {
		operatorRef := strings.TrimSpace(cmd.AuthorOperatorRef)
		if operatorRef == "" || !order.IsParticipant(operatorRef) {
			return Review{}, fmt.Errorf("%w: %s on order %s", ErrReviewForbidden, authorID, orderID)
		}
		authorID = operatorRef
	}

	targetID, err := order.Counterpart(authorID)
	if err != nil {
		return Review{}, fmt.Errorf("%w: %v", ErrReviewInvalidTarget, err)
	}
	// Degenerate orders can carry the same id on both sides; a review may
	// never point back at its author.
	if targetID == authorID {
		return Review{}, fmt.Errorf("%w: author %s is also the target on order %s", ErrReviewInvalidTarget, authorID, orderID)
	}

	if _, err := s.reviews.FindByOrderAuthor(ctx, orderID, authorID); err == nil {
		return Review{}, fmt.Errorf("%w: order %s author %s", ErrReviewAlreadyExists, orderID, authorID)
	} else if !isRepoNotFound(err) {
		return Review{}, err
	}

	if cmd.Rating < reviewMinRating || cmd.Rating > reviewMaxRating {
		return Review{}, fmt.Errorf("%w: rating %d outside [%d,%d]", ErrReviewInvalidInput, cmd.Rating, reviewMinRating, reviewMaxRating)
	}

	body, err := s.sanitizeBody(cmd.Body)
	if err != nil {
		return Review{}, err
	}

	review := Review{
		ID:        reviewID(orderID, authorID),
		OrderRef:  orderID,
		AuthorRef: authorID,
		TargetRef: targetID,
		Rating:    cmd.Rating,
		Body:      body,
		CreatedAt: s.clock(),
	}

	stored, err := s.reviews.Insert(ctx, review)
	if err != nil {
		if isRepoConflict(err) {
			return Review{}, fmt.Errorf("%w: order %s author %s", ErrReviewAlreadyExists, orderID, authorID)
		}
		return Review{}, err
	}
	return stored, nil
}

func (s *reviewService) GetReview(ctx context.Context, reviewID string) (Review, error) {
	reviewID = strings.TrimSpace(reviewID)
	if reviewID == "" {
		return Review{}, fmt.Errorf("%w: review id is required", ErrReviewInvalidInput)
	}
	review, err := s.reviews.FindByID(ctx, reviewID)
	if err != nil {
		if isRepoNotFound(err) {
			return Review{}, fmt.Errorf("%w: %s", ErrReviewNotFound, reviewID)
		}
		return Review{}, err
	}
	return review, nil
}

func (s *reviewService) ListByTarget(ctx context.Context, targetID string, pager domain.Pagination) (domain.CursorPage[Review], error) {
	targetID = strings.TrimSpace(targetID)
	if targetID == "" {
		return domain.CursorPage[Review]{}, fmt.Errorf("%w: target id is required", ErrReviewInvalidInput)
	}
	return s.reviews.ListByTarget(ctx, targetID, pager)
}

func (s *reviewService) sanitizeBody(body string) (string, error) {
	body = s.sanitizer.Sanitize(body)
	body = html.UnescapeString(body)
	body = norm.NFC.String(strings.TrimSpace(body))

	if runes := []rune(body); len(runes) > reviewMaxBodyRunes {
		return "", fmt.Errorf("%w: body exceeds %d characters", ErrReviewInvalidInput, reviewMaxBodyRunes)
	}
	if s.profanity(body) {
		return "", ErrReviewRejectedContent
	}
	return body, nil
}

// reviewID derives the document identifier from the (order, author) pair so
// the storage layer can enforce single-review semantics with a create-only
// write.
func reviewID(orderID, authorID string) string {
	return reviewIDPrefix + orderID + "_" + authorID
}

var profanityBlocklist = []string{
	"scam",
	"fraud",
}

func basicProfanityChecker(text string) bool {
	lowered := strings.ToLower(text)
	for _, word := range profanityBlocklist {
		if strings.Contains(lowered, word) {
			return true
		}
	}
	return false
}
