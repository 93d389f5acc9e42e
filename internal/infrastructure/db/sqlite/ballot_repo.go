package sqlitedb

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/retrofund/retrofund/internal/core/domain"
)

type ballotRepository struct {
	db *sql.DB
}

func NewBallotRepository(config ...interface{}) (domain.BallotRepository, error) {
	if len(config) != 1 {
		return nil, fmt.Errorf("invalid config")
	}
	db, ok := config[0].(*sql.DB)
	if !ok {
		return nil, fmt.Errorf("cannot open ballot repository: invalid config, expected db at 0")
	}

	return &ballotRepository{db: db}, nil
}

func (r *ballotRepository) UpsertBallot(ctx context.Context, ballot domain.Ballot) error {
	votes, err := json.Marshal(ballot.Votes)
	if err != nil {
		return fmt.Errorf("failed to serialize votes: %w", err)
	}

	return execTx(ctx, r.db, func(tx *sql.Tx) error {
		// Roster membership is checked in the write transaction so a roster
		// swap dropping this voter cannot land between check and insert.
		var enrolled bool
		if err := tx.QueryRowContext(ctx, `
			SELECT EXISTS(SELECT 1 FROM round_voter WHERE round_id = ? AND user_id = ?)`,
			ballot.RoundId, ballot.VoterId,
		).Scan(&enrolled); err != nil {
			return fmt.Errorf("failed to check roster membership: %w", err)
		}
		if !enrolled {
			return domain.NewAuthorizationError("user is not on the voter roster for the round")
		}

		// The (round_id, voter_id) primary key makes concurrent submissions
		// from the same voter collapse into a single row.
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO ballot (id, round_id, voter_id, votes, submitted_at)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(round_id, voter_id) DO UPDATE SET
				id = excluded.id,
				votes = excluded.votes,
				submitted_at = excluded.submitted_at`,
			ballot.Id, ballot.RoundId, ballot.VoterId, string(votes), ballot.SubmittedAt.Unix(),
		); err != nil {
			return fmt.Errorf("failed to upsert ballot: %w", err)
		}
		return nil
	})
}

func (r *ballotRepository) GetBallot(
	ctx context.Context, roundId, voterId string,
) (*domain.Ballot, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, round_id, voter_id, votes, submitted_at
		FROM ballot WHERE round_id = ? AND voter_id = ?`, roundId, voterId,
	)
	ballot, err := scanBallot(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NewNotFoundError(
			"no ballot recorded for voter %s in round %s", voterId, roundId,
		)
	}
	return ballot, err
}

func (r *ballotRepository) GetRoundBallots(
	ctx context.Context, roundId string,
) ([]domain.Ballot, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, round_id, voter_id, votes, submitted_at
		FROM ballot WHERE round_id = ?`, roundId,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list round ballots: %w", err)
	}
	defer rows.Close()

	ballots := make([]domain.Ballot, 0)
	for rows.Next() {
		ballot, err := scanBallot(rows)
		if err != nil {
			return nil, err
		}
		ballots = append(ballots, *ballot)
	}
	return ballots, rows.Err()
}

func (r *ballotRepository) Close() {
	_ = r.db.Close()
}

func scanBallot(row rowScanner) (*domain.Ballot, error) {
	var ballot domain.Ballot
	var votes string
	var submittedAt int64
	if err := row.Scan(&ballot.Id, &ballot.RoundId, &ballot.VoterId, &votes, &submittedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan ballot: %w", err)
	}
	if err := json.Unmarshal([]byte(votes), &ballot.Votes); err != nil {
		return nil, fmt.Errorf("failed to deserialize votes: %w", err)
	}
	ballot.SubmittedAt = time.Unix(submittedAt, 0)
	return &ballot, nil
}
