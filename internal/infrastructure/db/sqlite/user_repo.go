package sqlitedb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/retrofund/retrofund/internal/core/domain"
)

type userRepository struct {
	db *sql.DB
}

func NewUserRepository(config ...interface{}) (domain.UserRepository, error) {
	if len(config) != 1 {
		return nil, fmt.Errorf("invalid config")
	}
	db, ok := config[0].(*sql.DB)
	if !ok {
		return nil, fmt.Errorf("cannot open user repository: invalid config, expected db at 0")
	}

	return &userRepository{db: db}, nil
}

func (r *userRepository) GetOrCreateUser(
	ctx context.Context, walletAddress string,
) (*domain.User, error) {
	addr := domain.NormalizeAddress(walletAddress)
	candidate := domain.NewUser(addr)

	// The no-op update makes the insert race-safe: a concurrent insert of
	// the same address wins and the follow-up select returns its row.
	if _, err := r.db.ExecContext(ctx, `
		INSERT INTO app_user (id, wallet_address, created_at)
		VALUES (?, ?, ?)
		ON CONFLICT(wallet_address) DO UPDATE SET wallet_address = excluded.wallet_address`,
		candidate.Id, candidate.WalletAddress, candidate.CreatedAt.Unix(),
	); err != nil {
		return nil, fmt.Errorf("failed to upsert user: %w", err)
	}

	return r.getUserWithAddress(ctx, addr)
}

func (r *userRepository) GetUserWithId(ctx context.Context, id string) (*domain.User, error) {
	var user domain.User
	var createdAt int64
	err := r.db.QueryRowContext(ctx, `
		SELECT id, wallet_address, created_at FROM app_user WHERE id = ?`, id,
	).Scan(&user.Id, &user.WalletAddress, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NewNotFoundError("user with id %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	user.CreatedAt = time.Unix(createdAt, 0)
	return &user, nil
}

func (r *userRepository) Close() {
	_ = r.db.Close()
}

func (r *userRepository) getUserWithAddress(
	ctx context.Context, walletAddress string,
) (*domain.User, error) {
	var user domain.User
	var createdAt int64
	err := r.db.QueryRowContext(ctx, `
		SELECT id, wallet_address, created_at FROM app_user WHERE wallet_address = ?`,
		walletAddress,
	).Scan(&user.Id, &user.WalletAddress, &createdAt)
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	user.CreatedAt = time.Unix(createdAt, 0)
	return &user, nil
}
