package badgerdb

import (
	"context"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"
	"github.com/timshannon/badgerhold/v4"

	"github.com/retrofund/retrofund/internal/core/domain"
)

type roundRepository struct {
	store *badgerhold.Store
}

func NewRoundRepository(config ...interface{}) (domain.RoundRepository, error) {
	if len(config) != 1 {
		return nil, fmt.Errorf("invalid config")
	}
	store, ok := config[0].(*badgerhold.Store)
	if !ok {
		return nil, fmt.Errorf("cannot open round repository: invalid config, expected store at 0")
	}

	return &roundRepository{store}, nil
}

func (r *roundRepository) AddOrUpdateRound(ctx context.Context, round domain.Round) error {
	// The slug check and the upsert share one transaction, mirroring the
	// unique index the relational backend puts on the slug column.
	return withRetry(func() error {
		return r.store.Badger().Update(func(txn *badger.Txn) error {
			var clashing []domain.Round
			if err := r.store.TxFind(
				txn, &clashing, badgerhold.Where("Slug").Eq(round.Slug).And("Id").Ne(round.Id),
			); err != nil {
				return fmt.Errorf("failed to check slug availability: %w", err)
			}
			if len(clashing) > 0 {
				return domain.NewConflictError("a round with slug %s already exists", round.Slug)
			}
			return r.store.TxUpsert(txn, round.Id, &round)
		})
	})
}

func (r *roundRepository) UpdateRound(
	ctx context.Context, id string, updateFn func(*domain.Round) (*domain.Round, error),
) (*domain.Round, error) {
	var updated *domain.Round
	err := withRetry(func() error {
		return r.store.Badger().Update(func(txn *badger.Txn) error {
			var round domain.Round
			err := r.store.TxGet(txn, id, &round)
			if errors.Is(err, badgerhold.ErrNotFound) {
				return domain.NewNotFoundError("round with id %s not found", id)
			}
			if err != nil {
				return fmt.Errorf("failed to get round: %w", err)
			}
			updated, err = updateFn(&round)
			if err != nil {
				return err
			}
			return r.store.TxUpsert(txn, id, updated)
		})
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (r *roundRepository) GetRoundWithId(ctx context.Context, id string) (*domain.Round, error) {
	var round domain.Round
	err := r.store.Get(id, &round)
	if errors.Is(err, badgerhold.ErrNotFound) {
		return nil, domain.NewNotFoundError("round with id %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get round: %w", err)
	}
	return &round, nil
}

func (r *roundRepository) GetRoundWithSlug(ctx context.Context, slug string) (*domain.Round, error) {
	var rounds []domain.Round
	if err := r.store.Find(&rounds, badgerhold.Where("Slug").Eq(slug)); err != nil {
		return nil, fmt.Errorf("failed to find round: %w", err)
	}
	if len(rounds) <= 0 {
		return nil, domain.NewNotFoundError("round with slug %s not found", slug)
	}
	return &rounds[0], nil
}

func (r *roundRepository) GetAllRounds(ctx context.Context) ([]domain.Round, error) {
	var rounds []domain.Round
	if err := r.store.Find(&rounds, nil); err != nil {
		return nil, fmt.Errorf("failed to list rounds: %w", err)
	}
	return rounds, nil
}

func (r *roundRepository) Close() {
	// The shared store is closed by the repo manager.
}

// txGetRound reads a round within an open badger transaction. Repositories
// that gate writes on round state (admin set, publish flag) use it so the
// check and the write see the same snapshot.
func txGetRound(
	store *badgerhold.Store, txn *badger.Txn, id string,
) (*domain.Round, error) {
	var round domain.Round
	err := store.TxGet(txn, id, &round)
	if errors.Is(err, badgerhold.ErrNotFound) {
		return nil, domain.NewNotFoundError("round with id %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get round: %w", err)
	}
	return &round, nil
}

// txRequireRoundAdmin re-verifies the requester's admin membership on the
// round inside an open write transaction.
func txRequireRoundAdmin(
	store *badgerhold.Store, txn *badger.Txn, roundId, requestingAddress string,
) error {
	round, err := txGetRound(store, txn, roundId)
	if err != nil {
		return err
	}
	if !round.IsAdmin(requestingAddress) {
		return domain.NewAuthorizationError(
			"address %s is not an admin of round %s", requestingAddress, round.Slug,
		)
	}
	return nil
}
