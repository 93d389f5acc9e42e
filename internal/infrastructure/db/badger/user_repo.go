package badgerdb

import (
	"context"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"
	"github.com/timshannon/badgerhold/v4"

	"github.com/retrofund/retrofund/internal/core/domain"
)

type userRepository struct {
	store *badgerhold.Store
}

func NewUserRepository(config ...interface{}) (domain.UserRepository, error) {
	if len(config) != 1 {
		return nil, fmt.Errorf("invalid config")
	}
	store, ok := config[0].(*badgerhold.Store)
	if !ok {
		return nil, fmt.Errorf("cannot open user repository: invalid config, expected store at 0")
	}

	return &userRepository{store}, nil
}

func (r *userRepository) GetOrCreateUser(
	ctx context.Context, walletAddress string,
) (*domain.User, error) {
	addr := domain.NormalizeAddress(walletAddress)

	var user domain.User
	err := withRetry(func() error {
		return r.store.Badger().Update(func(txn *badger.Txn) error {
			err := r.store.TxGet(txn, addr, &user)
			if errors.Is(err, badgerhold.ErrNotFound) {
				user = *domain.NewUser(addr)
				return r.store.TxInsert(txn, addr, &user)
			}
			return err
		})
	})
	if err != nil {
		return nil, fmt.Errorf("failed to upsert user: %w", err)
	}
	return &user, nil
}

func (r *userRepository) GetUserWithId(ctx context.Context, id string) (*domain.User, error) {
	var users []domain.User
	if err := r.store.Find(&users, badgerhold.Where("Id").Eq(id)); err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	if len(users) <= 0 {
		return nil, domain.NewNotFoundError("user with id %s not found", id)
	}
	return &users[0], nil
}

func (r *userRepository) Close() {}
