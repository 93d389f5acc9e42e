package domain

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Ballot is one voter's per-application vote allocation for a round. At
// most one ballot exists per (round, voter); casting again replaces it.
type Ballot struct {
	Id          string
	RoundId     string
	VoterId     string
	Votes       map[string]float64
	SubmittedAt time.Time
}

func NewBallot(roundId, voterId string, votes map[string]float64) *Ballot {
	return &Ballot{
		Id:          uuid.New().String(),
		RoundId:     roundId,
		VoterId:     voterId,
		Votes:       votes,
		SubmittedAt: time.Now(),
	}
}

// Validate checks the ballot against the round's voting configuration and
// the set of applications belonging to the round.
func (b *Ballot) Validate(cfg VotingConfig, roundApplicationIds map[string]struct{}) error {
	if len(b.Votes) <= 0 {
		return NewValidationError("ballot must contain at least one vote")
	}
	if len(b.Votes) > cfg.MaxVotesPerVoter {
		return NewValidationError(fmt.Sprintf(
			"ballot has %d votes, the round allows at most %d per voter",
			len(b.Votes), cfg.MaxVotesPerVoter,
		))
	}
	for appId, value := range b.Votes {
		if _, ok := roundApplicationIds[appId]; !ok {
			return NewValidationError(fmt.Sprintf(
				"vote references application %s which does not belong to the round", appId,
			))
		}
		if value < 0 {
			return NewValidationError(fmt.Sprintf("vote for application %s is negative", appId))
		}
		if value > cfg.MaxVotesPerProjectPerVoter {
			return NewValidationError(fmt.Sprintf(
				"vote for application %s exceeds the per-project limit of %v",
				appId, cfg.MaxVotesPerProjectPerVoter,
			))
		}
	}
	return nil
}

type BallotRepository interface {
	// UpsertBallot inserts or replaces the voter's single ballot for the
	// round. Roster membership is re-verified inside the write transaction,
	// failing with an AuthorizationError, so a roster swap dropping the
	// voter cannot race the write. Race safety between concurrent voters
	// relies on the store's uniqueness constraint on (round, voter), not on
	// external locking.
	UpsertBallot(ctx context.Context, ballot Ballot) error
	GetBallot(ctx context.Context, roundId, voterId string) (*Ballot, error)
	GetRoundBallots(ctx context.Context, roundId string) ([]Ballot, error)
	Close()
}
