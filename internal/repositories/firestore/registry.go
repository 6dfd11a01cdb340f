// Package firestore implements the repository contracts on Cloud Firestore.
package firestore

import (
	"context"
	"errors"

	platform "github.com/kpta119/Drones-Project-sub001/internal/platform/firestore"
	"github.com/kpta119/Drones-Project-sub001/internal/repositories"
)

type registry struct {
	provider  *platform.Provider
	orders    *orderRepository
	reviews   *reviewRepository
	operators *operatorRepository
	services  *serviceRepository
	users     *userRepository
}

// NewRegistry builds the Firestore-backed repository registry.
func NewRegistry(provider *platform.Provider) (repositories.Registry, error) {
	if provider == nil {
		return nil, errors.New("firestore registry: provider is required")
	}
	return &registry{
		provider:  provider,
		orders:    newOrderRepository(provider),
		reviews:   newReviewRepository(provider),
		operators: newOperatorRepository(provider),
		services:  newServiceRepository(provider),
		users:     newUserRepository(provider),
	}, nil
}

func (r *registry) Orders() repositories.OrderRepository       { return r.orders }
func (r *registry) Reviews() repositories.ReviewRepository     { return r.reviews }
func (r *registry) Operators() repositories.OperatorRepository { return r.operators }
func (r *registry) Services() repositories.ServiceRepository   { return r.services }
func (r *registry) Users() repositories.UserRepository         { return r.users }

func (r *registry) Close(_ context.Context) error {
	return r.provider.Close()
}
