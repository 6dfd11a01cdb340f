package firestore

import (
	"context"

	"cloud.google.com/go/firestore"

	domain "github.com/kpta119/Drones-Project-sub001/internal/domain"
	platform "github.com/kpta119/Drones-Project-sub001/internal/platform/firestore"
	"github.com/kpta119/Drones-Project-sub001/internal/platform/pagination"
	"github.com/kpta119/Drones-Project-sub001/internal/repositories"
)

type serviceRepository struct {
	base *platform.BaseRepository[serviceDoc]
}

func newServiceRepository(provider *platform.Provider) *serviceRepository {
	return &serviceRepository{
		base: platform.NewBaseRepository[serviceDoc](provider, servicesCollection, nil),
	}
}

func (r *serviceRepository) FindByID(ctx context.Context, serviceID string) (domain.DroneService, error) {
	doc, err := r.base.Get(ctx, serviceID)
	if err != nil {
		return domain.DroneService{}, err
	}
	return serviceFromDoc(doc.ID, doc.Data), nil
}

func (r *serviceRepository) Upsert(ctx context.Context, service domain.DroneService) (domain.DroneService, error) {
	if err := r.base.Set(ctx, service.ID, serviceToDoc(service)); err != nil {
		return domain.DroneService{}, err
	}
	return service, nil
}

func (r *serviceRepository) List(ctx context.Context, filter repositories.ServiceListFilter) (domain.CursorPage[domain.DroneService], error) {
	pageSize := filter.Pagination.PageSize
	if pageSize <= 0 || pageSize > pagination.DefaultMaxPageSize {
		pageSize = pagination.DefaultPageSize
	}

	cursor, err := pagination.DecodeToken(filter.Pagination.PageToken)
	if err != nil {
		return domain.CursorPage[domain.DroneService]{}, err
	}

	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		if filter.Category != nil {
			q = q.Where("category", "==", *filter.Category)
		}
		if filter.OnlyActive {
			q = q.Where("active", "==", true)
		}
		q = q.OrderBy("name", firestore.Asc).OrderBy(firestore.DocumentID, firestore.Asc)
		if len(cursor.StartAfter) > 0 {
			q = q.StartAfter(cursor.StartAfter...)
		}
		return q.Limit(pageSize + 1)
	})
	if err != nil {
		return domain.CursorPage[domain.DroneService]{}, err
	}

	page := domain.CursorPage[domain.DroneService]{}
	truncated := len(docs) > pageSize
	if truncated {
		docs = docs[:pageSize]
	}
	for _, doc := range docs {
		page.Items = append(page.Items, serviceFromDoc(doc.ID, doc.Data))
	}
	if truncated {
		last := docs[len(docs)-1]
		token, err := pagination.EncodeToken(pagination.Cursor{
			StartAfter: []any{last.Data.Name, last.ID},
		})
		if err != nil {
			return domain.CursorPage[domain.DroneService]{}, err
		}
		page.NextPageToken = token
	}
	return page, nil
}
