package domain

import "context"

type RoundRepository interface {
	AddOrUpdateRound(ctx context.Context, round Round) error
	// UpdateRound loads the round, applies updateFn and persists the result
	// inside one transaction. The read, the closure and the write share the
	// transaction, so gates evaluated by the closure (admin membership, the
	// publish lock) cannot be invalidated by a concurrent round mutation
	// between check and commit.
	UpdateRound(ctx context.Context, id string, updateFn func(*Round) (*Round, error)) (*Round, error)
	GetRoundWithId(ctx context.Context, id string) (*Round, error)
	GetRoundWithSlug(ctx context.Context, slug string) (*Round, error)
	GetAllRounds(ctx context.Context) ([]Round, error)
	Close()
}
