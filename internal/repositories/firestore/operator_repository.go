package firestore

import (
	"context"
	"fmt"

	"cloud.google.com/go/firestore"

	domain "github.com/kpta119/Drones-Project-sub001/internal/domain"
	platform "github.com/kpta119/Drones-Project-sub001/internal/platform/firestore"
)

type operatorRepository struct {
	base *platform.BaseRepository[operatorDoc]
}

func newOperatorRepository(provider *platform.Provider) *operatorRepository {
	return &operatorRepository{
		base: platform.NewBaseRepository[operatorDoc](provider, operatorsCollection, nil),
	}
}

// Create enforces one profile per owning user: a transaction checks the
// userRef index before the create-only write.
func (r *operatorRepository) Create(ctx context.Context, profile domain.OperatorProfile) (domain.OperatorProfile, error) {
	ref, err := r.base.DocumentRef(ctx, profile.ID)
	if err != nil {
		return domain.OperatorProfile{}, err
	}
	client, err := r.base.Provider().Client(ctx)
	if err != nil {
		return domain.OperatorProfile{}, err
	}

	err = r.base.Provider().RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		existing := client.Collection(operatorsCollection).
			Where("userRef", "==", profile.UserRef).
			Limit(1)
		snaps, err := tx.Documents(existing).GetAll()
		if err != nil {
			return platform.WrapError("operators.create.lookup", err)
		}
		if len(snaps) > 0 {
			return platform.NewConflict("operators.create",
				fmt.Errorf("user %s already owns profile %s", profile.UserRef, snaps[0].Ref.ID))
		}
		return tx.Create(ref, operatorToDoc(profile))
	})
	if err != nil {
		return domain.OperatorProfile{}, err
	}
	return profile, nil
}

func (r *operatorRepository) FindByID(ctx context.Context, operatorID string) (domain.OperatorProfile, error) {
	doc, err := r.base.Get(ctx, operatorID)
	if err != nil {
		return domain.OperatorProfile{}, err
	}
	return operatorFromDoc(doc.ID, doc.Data), nil
}

// FindByUser resolves a profile through the userRef index that Create keeps
// unique, so at most one document can match.
func (r *operatorRepository) FindByUser(ctx context.Context, userRef string) (domain.OperatorProfile, error) {
	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("userRef", "==", userRef).Limit(1)
	})
	if err != nil {
		return domain.OperatorProfile{}, err
	}
	if len(docs) == 0 {
		return domain.OperatorProfile{}, platform.NewNotFound("operators.findByUser",
			fmt.Errorf("user %s has no operator profile", userRef))
	}
	return operatorFromDoc(docs[0].ID, docs[0].Data), nil
}

func (r *operatorRepository) Update(ctx context.Context, profile domain.OperatorProfile) (domain.OperatorProfile, error) {
	if err := r.base.Set(ctx, profile.ID, operatorToDoc(profile)); err != nil {
		return domain.OperatorProfile{}, err
	}
	return profile, nil
}
