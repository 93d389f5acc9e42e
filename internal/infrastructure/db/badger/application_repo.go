package badgerdb

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/timshannon/badgerhold/v4"

	"github.com/retrofund/retrofund/internal/core/domain"
)

type applicationRepository struct {
	store *badgerhold.Store
}

func NewApplicationRepository(config ...interface{}) (domain.ApplicationRepository, error) {
	if len(config) != 1 {
		return nil, fmt.Errorf("invalid config")
	}
	store, ok := config[0].(*badgerhold.Store)
	if !ok {
		return nil, fmt.Errorf("cannot open application repository: invalid config, expected store at 0")
	}

	return &applicationRepository{store}, nil
}

func (r *applicationRepository) AddApplication(
	ctx context.Context, application domain.Application,
) error {
	err := withRetry(func() error {
		return r.store.Insert(application.Id, &application)
	})
	if err != nil {
		return fmt.Errorf("failed to insert application: %w", err)
	}
	return nil
}

func (r *applicationRepository) GetApplicationWithId(
	ctx context.Context, id string,
) (*domain.Application, error) {
	var application domain.Application
	err := r.store.Get(id, &application)
	if errors.Is(err, badgerhold.ErrNotFound) {
		return nil, domain.NewNotFoundError("application with id %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get application: %w", err)
	}
	return &application, nil
}

func (r *applicationRepository) GetRoundApplications(
	ctx context.Context, roundId string,
) ([]domain.Application, error) {
	var applications []domain.Application
	if err := r.store.Find(&applications, badgerhold.Where("RoundId").Eq(roundId)); err != nil {
		return nil, fmt.Errorf("failed to list round applications: %w", err)
	}
	sort.Slice(applications, func(i, j int) bool {
		if applications[i].CreatedAt.Equal(applications[j].CreatedAt) {
			return applications[i].Id < applications[j].Id
		}
		return applications[i].CreatedAt.Before(applications[j].CreatedAt)
	})
	return applications, nil
}

func (r *applicationRepository) Close() {}
