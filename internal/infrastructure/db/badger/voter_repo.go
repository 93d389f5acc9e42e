package badgerdb

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/dgraph-io/badger/v4"
	"github.com/timshannon/badgerhold/v4"

	"github.com/retrofund/retrofund/internal/core/domain"
)

type roundVoterRepository struct {
	store *badgerhold.Store
}

func NewRoundVoterRepository(config ...interface{}) (domain.RoundVoterRepository, error) {
	if len(config) != 1 {
		return nil, fmt.Errorf("invalid config")
	}
	store, ok := config[0].(*badgerhold.Store)
	if !ok {
		return nil, fmt.Errorf("cannot open round voter repository: invalid config, expected store at 0")
	}

	return &roundVoterRepository{store}, nil
}

func (r *roundVoterRepository) GetRoundVoters(
	ctx context.Context, roundId string,
) ([]domain.RoundVoter, error) {
	var voters []domain.RoundVoter
	if err := r.store.Find(&voters, badgerhold.Where("RoundId").Eq(roundId)); err != nil {
		return nil, fmt.Errorf("failed to list round voters: %w", err)
	}
	sort.Slice(voters, func(i, j int) bool {
		return voters[i].WalletAddress < voters[j].WalletAddress
	})
	return voters, nil
}

func (r *roundVoterRepository) IsRoundVoter(
	ctx context.Context, roundId, userId string,
) (bool, error) {
	var voter domain.RoundVoter
	err := r.store.Get(voterKey(roundId, userId), &voter)
	if errors.Is(err, badgerhold.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check roster membership: %w", err)
	}
	return true, nil
}

func (r *roundVoterRepository) ReplaceRoster(
	ctx context.Context, roundId string, voters []domain.RoundVoter, requestingAddress string,
) error {
	kept := make(map[string]struct{}, len(voters))
	for _, voter := range voters {
		kept[voter.UserId] = struct{}{}
	}

	// One badger transaction covers the admin and publish checks, the
	// ballot check, the roster delete and the re-insert, so the swap is
	// all-or-nothing and the gates cannot be invalidated concurrently.
	return withRetry(func() error {
		return r.store.Badger().Update(func(txn *badger.Txn) error {
			round, err := txGetRound(r.store, txn, roundId)
			if err != nil {
				return err
			}
			if !round.IsAdmin(requestingAddress) {
				return domain.NewAuthorizationError(
					"address %s is not an admin of round %s", requestingAddress, round.Slug,
				)
			}
			if round.Published {
				return domain.NewConflictError(
					"the voter roster of round %s is frozen, the round is published", round.Slug,
				)
			}

			var ballots []domain.Ballot
			if err := r.store.TxFind(
				txn, &ballots, badgerhold.Where("RoundId").Eq(roundId),
			); err != nil {
				return fmt.Errorf("failed to load round ballots: %w", err)
			}
			for _, ballot := range ballots {
				if _, ok := kept[ballot.VoterId]; !ok {
					return domain.NewConflictError(
						"cannot remove voter %s, a ballot is already recorded for the round",
						ballot.VoterId,
					)
				}
			}

			if err := r.store.TxDeleteMatching(
				txn, &domain.RoundVoter{}, badgerhold.Where("RoundId").Eq(roundId),
			); err != nil {
				return fmt.Errorf("failed to clear roster: %w", err)
			}

			for _, voter := range voters {
				if err := r.store.TxInsert(
					txn, voterKey(voter.RoundId, voter.UserId), &voter,
				); err != nil {
					return fmt.Errorf("failed to insert round voter: %w", err)
				}
			}
			return nil
		})
	})
}

func (r *roundVoterRepository) Close() {}

func voterKey(roundId, userId string) string {
	return roundId + ":" + userId
}
