package domain

import (
	"context"
	"time"
)

// RoundVoter is the (round, user) pair entitling a user to cast a ballot.
// WalletAddress is resolved from the user record for display.
type RoundVoter struct {
	RoundId       string
	UserId        string
	WalletAddress string
	CreatedAt     time.Time
}

type RoundVoterRepository interface {
	GetRoundVoters(ctx context.Context, roundId string) ([]RoundVoter, error)
	IsRoundVoter(ctx context.Context, roundId, userId string) (bool, error)
	// ReplaceRoster atomically swaps the whole roster for a round. It fails
	// with a ConflictError, committing nothing, if any voter being dropped
	// already has a recorded ballot for the round, and with an
	// AuthorizationError if requestingAddress is not a round admin. Both
	// checks run inside the same transaction as the delete/insert pair, so
	// a concurrent ballot or admin change cannot slip in between.
	ReplaceRoster(ctx context.Context, roundId string, voters []RoundVoter, requestingAddress string) error
	Close()
}
