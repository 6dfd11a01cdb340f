package firestore

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/kpta119/Drones-Project-sub001/internal/domain"
	platform "github.com/kpta119/Drones-Project-sub001/internal/platform/firestore"
	"github.com/kpta119/Drones-Project-sub001/internal/platform/pagination"
	"github.com/kpta119/Drones-Project-sub001/internal/repositories"
)

type orderRepository struct {
	base *platform.BaseRepository[orderDoc]
}

func newOrderRepository(provider *platform.Provider) *orderRepository {
	return &orderRepository{
		base: platform.NewBaseRepository[orderDoc](provider, ordersCollection, nil),
	}
}

func (r *orderRepository) Insert(ctx context.Context, order domain.Order) error {
	return r.base.Create(ctx, order.ID, orderToDoc(order))
}

func (r *orderRepository) FindByID(ctx context.Context, orderID string) (domain.Order, error) {
	doc, err := r.base.Get(ctx, orderID)
	if err != nil {
		return domain.Order{}, err
	}
	return orderFromDoc(doc.ID, doc.Data), nil
}

// UpdateStatusCAS re-reads the order inside a transaction, rejects the write
// when the stored status differs from expected and otherwise persists the
// mutated document. Firestore aborts and retries the transaction when the
// document changed underneath, so the status check always runs against the
// latest committed state.
func (r *orderRepository) UpdateStatusCAS(ctx context.Context, orderID string, expected domain.OrderStatus, mutate repositories.OrderMutator) (domain.Order, error) {
	ref, err := r.base.DocumentRef(ctx, orderID)
	if err != nil {
		return domain.Order{}, err
	}

	var updated domain.Order
	err = r.base.Provider().RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(ref)
		if err != nil {
			return platform.WrapError("orders.cas.get", err)
		}
		doc, err := r.base.Decode(snap)
		if err != nil {
			return fmt.Errorf("orders.cas: decode %s: %w", orderID, err)
		}

		order := orderFromDoc(doc.ID, doc.Data)
		if order.Status != expected {
			return platform.NewConflict("orders.cas",
				fmt.Errorf("order %s is %s, expected %s", orderID, order.Status, expected))
		}
		if err := mutate(&order); err != nil {
			return err
		}

		updated = order
		return tx.Set(ref, orderToDoc(order))
	})
	if err != nil {
		return domain.Order{}, err
	}
	return updated, nil
}

func (r *orderRepository) SetCalendarEvent(ctx context.Context, orderID string, eventID *string, updatedAt time.Time) error {
	var value any = firestore.Delete
	if eventID != nil {
		value = *eventID
	}
	return r.base.Update(ctx, orderID, []firestore.Update{
		{Path: "calendarEventId", Value: value},
		{Path: "updatedAt", Value: updatedAt},
	})
}

func (r *orderRepository) FindInProgressByOperator(ctx context.Context, operatorID string) (domain.Order, error) {
	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.
			Where("operatorRef", "==", operatorID).
			Where("status", "==", string(domain.OrderStatusInProgress)).
			Limit(1)
	})
	if err != nil {
		return domain.Order{}, err
	}
	if len(docs) == 0 {
		return domain.Order{}, platform.NewNotFound("orders.inprogress",
			fmt.Errorf("no in-progress order for operator %s", operatorID))
	}
	return orderFromDoc(docs[0].ID, docs[0].Data), nil
}

func (r *orderRepository) List(ctx context.Context, filter repositories.OrderListFilter) (domain.CursorPage[domain.Order], error) {
	pageSize := filter.Pagination.PageSize
	if pageSize <= 0 || pageSize > pagination.DefaultMaxPageSize {
		pageSize = pagination.DefaultPageSize
	}

	cursor, err := pagination.DecodeToken(filter.Pagination.PageToken)
	if err != nil {
		return domain.CursorPage[domain.Order]{}, err
	}
	startAfter, err := createdAtStartAfter(cursor)
	if err != nil {
		return domain.CursorPage[domain.Order]{}, err
	}

	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		if filter.CustomerID != "" {
			q = q.Where("customerRef", "==", filter.CustomerID)
		}
		if filter.OperatorID != "" {
			q = q.Where("operatorRef", "==", filter.OperatorID)
		}
		if len(filter.Status) > 0 {
			statuses := make([]string, 0, len(filter.Status))
			for _, status := range filter.Status {
				statuses = append(statuses, string(status))
			}
			q = q.Where("status", "in", statuses)
		}
		if filter.DateRange.From != nil {
			q = q.Where("scheduledAt", ">=", *filter.DateRange.From)
		}
		if filter.DateRange.To != nil {
			q = q.Where("scheduledAt", "<=", *filter.DateRange.To)
		}
		q = q.OrderBy("createdAt", firestore.Desc).OrderBy(firestore.DocumentID, firestore.Desc)
		if len(startAfter) > 0 {
			q = q.StartAfter(startAfter...)
		}
		return q.Limit(pageSize + 1)
	})
	if err != nil {
		return domain.CursorPage[domain.Order]{}, err
	}

	page := domain.CursorPage[domain.Order]{}
	truncated := len(docs) > pageSize
	if truncated {
		docs = docs[:pageSize]
	}
	for _, doc := range docs {
		page.Items = append(page.Items, orderFromDoc(doc.ID, doc.Data))
	}
	if truncated {
		last := docs[len(docs)-1]
		token, err := createdAtToken(last.Data.CreatedAt, last.ID)
		if err != nil {
			return domain.CursorPage[domain.Order]{}, err
		}
		page.NextPageToken = token
	}
	return page, nil
}
