package badgerdb

import (
	"context"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"
	"github.com/timshannon/badgerhold/v4"

	"github.com/retrofund/retrofund/internal/core/domain"
)

type ballotRepository struct {
	store *badgerhold.Store
}

func NewBallotRepository(config ...interface{}) (domain.BallotRepository, error) {
	if len(config) != 1 {
		return nil, fmt.Errorf("invalid config")
	}
	store, ok := config[0].(*badgerhold.Store)
	if !ok {
		return nil, fmt.Errorf("cannot open ballot repository: invalid config, expected store at 0")
	}

	return &ballotRepository{store}, nil
}

func (r *ballotRepository) UpsertBallot(ctx context.Context, ballot domain.Ballot) error {
	// Roster membership is checked in the write transaction so a roster
	// swap dropping this voter cannot land between check and insert. The
	// (round, voter) key makes concurrent submissions from the same voter
	// collapse into a single record.
	return withRetry(func() error {
		return r.store.Badger().Update(func(txn *badger.Txn) error {
			var voter domain.RoundVoter
			err := r.store.TxGet(txn, voterKey(ballot.RoundId, ballot.VoterId), &voter)
			if errors.Is(err, badgerhold.ErrNotFound) {
				return domain.NewAuthorizationError("user is not on the voter roster for the round")
			}
			if err != nil {
				return fmt.Errorf("failed to check roster membership: %w", err)
			}
			return r.store.TxUpsert(txn, ballotKey(ballot.RoundId, ballot.VoterId), &ballot)
		})
	})
}

func (r *ballotRepository) GetBallot(
	ctx context.Context, roundId, voterId string,
) (*domain.Ballot, error) {
	var ballot domain.Ballot
	err := r.store.Get(ballotKey(roundId, voterId), &ballot)
	if errors.Is(err, badgerhold.ErrNotFound) {
		return nil, domain.NewNotFoundError(
			"no ballot recorded for voter %s in round %s", voterId, roundId,
		)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get ballot: %w", err)
	}
	return &ballot, nil
}

func (r *ballotRepository) GetRoundBallots(
	ctx context.Context, roundId string,
) ([]domain.Ballot, error) {
	var ballots []domain.Ballot
	if err := r.store.Find(&ballots, badgerhold.Where("RoundId").Eq(roundId)); err != nil {
		return nil, fmt.Errorf("failed to list round ballots: %w", err)
	}
	return ballots, nil
}

func (r *ballotRepository) Close() {}

func ballotKey(roundId, voterId string) string {
	return roundId + ":" + voterId
}
