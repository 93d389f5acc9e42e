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

type roundRepository struct {
	db *sql.DB
}

func NewRoundRepository(config ...interface{}) (domain.RoundRepository, error) {
	if len(config) != 1 {
		return nil, fmt.Errorf("invalid config")
	}
	db, ok := config[0].(*sql.DB)
	if !ok {
		return nil, fmt.Errorf("cannot open round repository: invalid config, expected db at 0")
	}

	return &roundRepository{db: db}, nil
}

func (r *roundRepository) AddOrUpdateRound(ctx context.Context, round domain.Round) error {
	return execTx(ctx, r.db, func(tx *sql.Tx) error {
		var taken bool
		if err := tx.QueryRowContext(ctx, `
			SELECT EXISTS(SELECT 1 FROM round WHERE slug = ? AND id <> ?)`,
			round.Slug, round.Id,
		).Scan(&taken); err != nil {
			return fmt.Errorf("failed to check slug availability: %w", err)
		}
		if taken {
			return domain.NewConflictError("a round with slug %s already exists", round.Slug)
		}
		return upsertRound(ctx, tx, round)
	})
}

func (r *roundRepository) UpdateRound(
	ctx context.Context, id string, updateFn func(*domain.Round) (*domain.Round, error),
) (*domain.Round, error) {
	var updated *domain.Round
	err := execTx(ctx, r.db, func(tx *sql.Tx) error {
		round, err := getRoundTx(ctx, tx, id)
		if err != nil {
			return err
		}
		updated, err = updateFn(round)
		if err != nil {
			return err
		}
		return upsertRound(ctx, tx, *updated)
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func upsertRound(ctx context.Context, tx *sql.Tx, round domain.Round) error {
	admins, err := json.Marshal(round.AdminAddresses)
	if err != nil {
		return fmt.Errorf("failed to serialize admin addresses: %w", err)
	}

	var override sql.NullInt64
	if round.PhaseOverride != nil {
		override = sql.NullInt64{Int64: int64(*round.PhaseOverride), Valid: true}
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO round (
			id, slug, published,
			application_period_start, application_period_end,
			voting_period_start, voting_period_end, results_period_start,
			max_votes_per_voter, max_votes_per_project_per_voter, allowed_voter_count,
			admin_addresses, phase_override, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			published = excluded.published,
			application_period_start = excluded.application_period_start,
			application_period_end = excluded.application_period_end,
			voting_period_start = excluded.voting_period_start,
			voting_period_end = excluded.voting_period_end,
			results_period_start = excluded.results_period_start,
			max_votes_per_voter = excluded.max_votes_per_voter,
			max_votes_per_project_per_voter = excluded.max_votes_per_project_per_voter,
			allowed_voter_count = excluded.allowed_voter_count,
			admin_addresses = excluded.admin_addresses,
			phase_override = excluded.phase_override`,
		round.Id, round.Slug, round.Published,
		round.ApplicationPeriodStart.Unix(), round.ApplicationPeriodEnd.Unix(),
		round.VotingPeriodStart.Unix(), round.VotingPeriodEnd.Unix(),
		round.ResultsPeriodStart.Unix(),
		round.VotingConfig.MaxVotesPerVoter,
		round.VotingConfig.MaxVotesPerProjectPerVoter,
		round.VotingConfig.AllowedVoterCount,
		string(admins), override, round.CreatedAt.Unix(),
	); err != nil {
		return fmt.Errorf("failed to upsert round: %w", err)
	}
	return nil
}

// getRoundTx reads a round within an open transaction. Repositories that
// gate writes on round state (admin set, publish flag) use it so the check
// and the write see the same snapshot.
func getRoundTx(ctx context.Context, tx *sql.Tx, id string) (*domain.Round, error) {
	round, err := scanRound(tx.QueryRowContext(ctx, selectRound+` WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NewNotFoundError("round with id %s not found", id)
	}
	return round, err
}

// requireRoundAdmin re-verifies the requester's admin membership on the
// round inside an open write transaction.
func requireRoundAdmin(ctx context.Context, tx *sql.Tx, roundId, requestingAddress string) error {
	round, err := getRoundTx(ctx, tx, roundId)
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

func (r *roundRepository) GetRoundWithId(ctx context.Context, id string) (*domain.Round, error) {
	round, err := scanRound(r.db.QueryRowContext(ctx, selectRound+` WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NewNotFoundError("round with id %s not found", id)
	}
	return round, err
}

func (r *roundRepository) GetRoundWithSlug(ctx context.Context, slug string) (*domain.Round, error) {
	round, err := scanRound(r.db.QueryRowContext(ctx, selectRound+` WHERE slug = ?`, slug))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NewNotFoundError("round with slug %s not found", slug)
	}
	return round, err
}

func (r *roundRepository) GetAllRounds(ctx context.Context) ([]domain.Round, error) {
	rows, err := r.db.QueryContext(ctx, selectRound+` ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list rounds: %w", err)
	}
	defer rows.Close()

	rounds := make([]domain.Round, 0)
	for rows.Next() {
		round, err := scanRound(rows)
		if err != nil {
			return nil, err
		}
		rounds = append(rounds, *round)
	}
	return rounds, rows.Err()
}

func (r *roundRepository) Close() {
	_ = r.db.Close()
}

const selectRound = `
	SELECT id, slug, published,
		application_period_start, application_period_end,
		voting_period_start, voting_period_end, results_period_start,
		max_votes_per_voter, max_votes_per_project_per_voter, allowed_voter_count,
		admin_addresses, phase_override, created_at
	FROM round`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRound(row rowScanner) (*domain.Round, error) {
	var round domain.Round
	var appStart, appEnd, voteStart, voteEnd, resultsStart, createdAt int64
	var admins string
	var override sql.NullInt64

	if err := row.Scan(
		&round.Id, &round.Slug, &round.Published,
		&appStart, &appEnd, &voteStart, &voteEnd, &resultsStart,
		&round.VotingConfig.MaxVotesPerVoter,
		&round.VotingConfig.MaxVotesPerProjectPerVoter,
		&round.VotingConfig.AllowedVoterCount,
		&admins, &override, &createdAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan round: %w", err)
	}

	round.ApplicationPeriodStart = time.Unix(appStart, 0)
	round.ApplicationPeriodEnd = time.Unix(appEnd, 0)
	round.VotingPeriodStart = time.Unix(voteStart, 0)
	round.VotingPeriodEnd = time.Unix(voteEnd, 0)
	round.ResultsPeriodStart = time.Unix(resultsStart, 0)
	round.CreatedAt = time.Unix(createdAt, 0)

	if err := json.Unmarshal([]byte(admins), &round.AdminAddresses); err != nil {
		return nil, fmt.Errorf("failed to deserialize admin addresses: %w", err)
	}
	if override.Valid {
		phase := domain.Phase(override.Int64)
		round.PhaseOverride = &phase
	}
	return &round, nil
}
