package sqlitedb

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/retrofund/retrofund/internal/core/domain"
)

type roundVoterRepository struct {
	db *sql.DB
}

func NewRoundVoterRepository(config ...interface{}) (domain.RoundVoterRepository, error) {
	if len(config) != 1 {
		return nil, fmt.Errorf("invalid config")
	}
	db, ok := config[0].(*sql.DB)
	if !ok {
		return nil, fmt.Errorf("cannot open round voter repository: invalid config, expected db at 0")
	}

	return &roundVoterRepository{db: db}, nil
}

func (r *roundVoterRepository) GetRoundVoters(
	ctx context.Context, roundId string,
) ([]domain.RoundVoter, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT v.round_id, v.user_id, u.wallet_address, v.created_at
		FROM round_voter v
		JOIN app_user u ON u.id = v.user_id
		WHERE v.round_id = ?
		ORDER BY v.created_at, u.wallet_address`, roundId,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list round voters: %w", err)
	}
	defer rows.Close()

	voters := make([]domain.RoundVoter, 0)
	for rows.Next() {
		var voter domain.RoundVoter
		var createdAt int64
		if err := rows.Scan(&voter.RoundId, &voter.UserId, &voter.WalletAddress, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan round voter: %w", err)
		}
		voter.CreatedAt = time.Unix(createdAt, 0)
		voters = append(voters, voter)
	}
	return voters, rows.Err()
}

func (r *roundVoterRepository) IsRoundVoter(
	ctx context.Context, roundId, userId string,
) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx, `
		SELECT EXISTS(SELECT 1 FROM round_voter WHERE round_id = ? AND user_id = ?)`,
		roundId, userId,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check roster membership: %w", err)
	}
	return exists, nil
}

func (r *roundVoterRepository) ReplaceRoster(
	ctx context.Context, roundId string, voters []domain.RoundVoter, requestingAddress string,
) error {
	kept := make(map[string]struct{}, len(voters))
	for _, voter := range voters {
		kept[voter.UserId] = struct{}{}
	}

	return execTx(ctx, r.db, func(tx *sql.Tx) error {
		// Admin membership and the publish lock are re-read in the write
		// transaction so a concurrent round mutation cannot invalidate them
		// between check and commit.
		round, err := getRoundTx(ctx, tx, roundId)
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

		// Voters being dropped must not leave recorded ballots behind. The
		// check shares the transaction with the delete/insert pair so a
		// concurrent ballot cannot slip in between.
		rows, err := tx.QueryContext(ctx, `
			SELECT voter_id FROM ballot WHERE round_id = ?`, roundId,
		)
		if err != nil {
			return fmt.Errorf("failed to load round ballots: %w", err)
		}
		defer rows.Close()

		for rows.Next() {
			var voterId string
			if err := rows.Scan(&voterId); err != nil {
				return fmt.Errorf("failed to scan ballot voter: %w", err)
			}
			if _, ok := kept[voterId]; !ok {
				return domain.NewConflictError(
					"cannot remove voter %s, a ballot is already recorded for the round", voterId,
				)
			}
		}
		if err := rows.Err(); err != nil {
			return err
		}

		if _, err := tx.ExecContext(ctx, `
			DELETE FROM round_voter WHERE round_id = ?`, roundId,
		); err != nil {
			return fmt.Errorf("failed to clear roster: %w", err)
		}

		for _, voter := range voters {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO round_voter (round_id, user_id, created_at)
				VALUES (?, ?, ?)`,
				voter.RoundId, voter.UserId, voter.CreatedAt.Unix(),
			); err != nil {
				return fmt.Errorf("failed to insert round voter: %w", err)
			}
		}
		return nil
	})
}

func (r *roundVoterRepository) Close() {
	_ = r.db.Close()
}
