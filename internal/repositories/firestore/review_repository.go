package firestore

import (
	"context"
	"fmt"

	"cloud.google.com/go/firestore"

	domain "github.com/kpta119/Drones-Project-sub001/internal/domain"
	platform "github.com/kpta119/Drones-Project-sub001/internal/platform/firestore"
	"github.com/kpta119/Drones-Project-sub001/internal/platform/pagination"
)

type reviewRepository struct {
	base *platform.BaseRepository[reviewDoc]
}

func newReviewRepository(provider *platform.Provider) *reviewRepository {
	return &reviewRepository{
		base: platform.NewBaseRepository[reviewDoc](provider, reviewsCollection, nil),
	}
}

// Insert writes the review create-only. Review IDs are derived from the
// (order, author) pair, so a duplicate submission collides on the document ID
// and surfaces as a conflict regardless of interleaving.
func (r *reviewRepository) Insert(ctx context.Context, review domain.Review) (domain.Review, error) {
	if err := r.base.Create(ctx, review.ID, reviewToDoc(review)); err != nil {
		return domain.Review{}, err
	}
	return review, nil
}

func (r *reviewRepository) FindByID(ctx context.Context, reviewID string) (domain.Review, error) {
	doc, err := r.base.Get(ctx, reviewID)
	if err != nil {
		return domain.Review{}, err
	}
	return reviewFromDoc(doc.ID, doc.Data), nil
}

func (r *reviewRepository) FindByOrderAuthor(ctx context.Context, orderID string, authorID string) (domain.Review, error) {
	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.
			Where("orderRef", "==", orderID).
			Where("authorRef", "==", authorID).
			Limit(1)
	})
	if err != nil {
		return domain.Review{}, err
	}
	if len(docs) == 0 {
		return domain.Review{}, platform.NewNotFound("reviews.byorderauthor",
			fmt.Errorf("no review for order %s by %s", orderID, authorID))
	}
	return reviewFromDoc(docs[0].ID, docs[0].Data), nil
}

func (r *reviewRepository) ListByTarget(ctx context.Context, targetID string, pager domain.Pagination) (domain.CursorPage[domain.Review], error) {
	pageSize := pager.PageSize
	if pageSize <= 0 || pageSize > pagination.DefaultMaxPageSize {
		pageSize = pagination.DefaultPageSize
	}

	cursor, err := pagination.DecodeToken(pager.PageToken)
	if err != nil {
		return domain.CursorPage[domain.Review]{}, err
	}
	startAfter, err := createdAtStartAfter(cursor)
	if err != nil {
		return domain.CursorPage[domain.Review]{}, err
	}

	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		q = q.
			Where("targetRef", "==", targetID).
			OrderBy("createdAt", firestore.Desc).
			OrderBy(firestore.DocumentID, firestore.Desc)
		if len(startAfter) > 0 {
			q = q.StartAfter(startAfter...)
		}
		return q.Limit(pageSize + 1)
	})
	if err != nil {
		return domain.CursorPage[domain.Review]{}, err
	}

	page := domain.CursorPage[domain.Review]{}
	truncated := len(docs) > pageSize
	if truncated {
		docs = docs[:pageSize]
	}
	for _, doc := range docs {
		page.Items = append(page.Items, reviewFromDoc(doc.ID, doc.Data))
	}
	if truncated {
		last := docs[len(docs)-1]
		token, err := createdAtToken(last.Data.CreatedAt, last.ID)
		if err != nil {
			return domain.CursorPage[domain.Review]{}, err
		}
		page.NextPageToken = token
	}
	return page, nil
}
