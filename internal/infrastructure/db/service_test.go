package db_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/retrofund/retrofund/internal/core/domain"
	"github.com/retrofund/retrofund/internal/core/ports"
	"github.com/retrofund/retrofund/internal/infrastructure/db"
)

const adminAddr = "0xadmin"

// Every repository test runs against both backends so the badger and the
// sqlite stores stay behaviorally interchangeable.
var stores = []struct {
	name  string
	setup func(t *testing.T) ports.RepoManager
}{
	{
		name: "repo_manager_with_badger_stores",
		setup: func(t *testing.T) ports.RepoManager {
			repoManager, err := db.NewService(db.ServiceConfig{
				DataStoreType: "badger",
				Logger:        log.New(),
			})
			require.NoError(t, err)
			t.Cleanup(repoManager.Close)
			return repoManager
		},
	},
	{
		name: "repo_manager_with_sqlite_stores",
		setup: func(t *testing.T) ports.RepoManager {
			repoManager, err := db.NewService(db.ServiceConfig{
				DataStoreType: "sqlite",
				DbDir:         t.TempDir(),
				MigrationPath: "file://sqlite/migration",
			})
			require.NoError(t, err)
			t.Cleanup(repoManager.Close)
			return repoManager
		},
	},
}

func newStoredRound(
	t *testing.T, ctx context.Context, repoManager ports.RepoManager, slug string,
) *domain.Round {
	round, err := domain.NewRound(
		slug, adminAddr,
		time.Now(), time.Now().Add(time.Hour),
		time.Now().Add(time.Hour), time.Now().Add(2*time.Hour),
		time.Now().Add(3*time.Hour),
		domain.VotingConfig{MaxVotesPerVoter: 5, MaxVotesPerProjectPerVoter: 1},
		nil,
	)
	require.NoError(t, err)
	require.NoError(t, repoManager.Rounds().AddOrUpdateRound(ctx, *round))
	return round
}

func TestNewServiceUnknownStoreType(t *testing.T) {
	_, err := db.NewService(db.ServiceConfig{DataStoreType: "mongo"})
	require.Error(t, err)
}

func TestRoundRepository(t *testing.T) {
	for _, store := range stores {
		t.Run(store.name, func(t *testing.T) {
			ctx := context.Background()
			repoManager := store.setup(t)

			round := newStoredRound(t, ctx, repoManager, "repo-round")

			got, err := repoManager.Rounds().GetRoundWithId(ctx, round.Id)
			require.NoError(t, err)
			require.Equal(t, round.Slug, got.Slug)

			got, err = repoManager.Rounds().GetRoundWithSlug(ctx, "repo-round")
			require.NoError(t, err)
			require.Equal(t, round.Id, got.Id)

			_, err = repoManager.Rounds().GetRoundWithSlug(ctx, "no-such-round")
			var notFoundErr *domain.NotFoundError
			require.ErrorAs(t, err, &notFoundErr)

			round.Published = true
			require.NoError(t, repoManager.Rounds().AddOrUpdateRound(ctx, *round))
			got, err = repoManager.Rounds().GetRoundWithId(ctx, round.Id)
			require.NoError(t, err)
			require.True(t, got.Published)

			all, err := repoManager.Rounds().GetAllRounds(ctx)
			require.NoError(t, err)
			require.Len(t, all, 1)
		})
	}
}

func TestRoundSlugUniqueness(t *testing.T) {
	for _, store := range stores {
		t.Run(store.name, func(t *testing.T) {
			ctx := context.Background()
			repoManager := store.setup(t)

			first := newStoredRound(t, ctx, repoManager, "same-slug")

			// A distinct round with the same slug is rejected by the store.
			second, err := domain.NewRound(
				"same-slug", adminAddr,
				time.Now(), time.Now().Add(time.Hour),
				time.Now().Add(time.Hour), time.Now().Add(2*time.Hour),
				time.Now().Add(3*time.Hour),
				domain.VotingConfig{MaxVotesPerVoter: 5, MaxVotesPerProjectPerVoter: 1},
				nil,
			)
			require.NoError(t, err)
			err = repoManager.Rounds().AddOrUpdateRound(ctx, *second)
			var conflictErr *domain.ConflictError
			require.ErrorAs(t, err, &conflictErr)

			all, err := repoManager.Rounds().GetAllRounds(ctx)
			require.NoError(t, err)
			require.Len(t, all, 1)

			// Re-upserting the round that owns the slug stays allowed.
			first.Published = true
			require.NoError(t, repoManager.Rounds().AddOrUpdateRound(ctx, *first))
		})
	}
}

func TestUpdateRound(t *testing.T) {
	for _, store := range stores {
		t.Run(store.name, func(t *testing.T) {
			ctx := context.Background()
			repoManager := store.setup(t)

			round := newStoredRound(t, ctx, repoManager, "closure-round")

			updated, err := repoManager.Rounds().UpdateRound(
				ctx, round.Id, func(r *domain.Round) (*domain.Round, error) {
					r.Published = true
					return r, nil
				},
			)
			require.NoError(t, err)
			require.True(t, updated.Published)

			got, err := repoManager.Rounds().GetRoundWithId(ctx, round.Id)
			require.NoError(t, err)
			require.True(t, got.Published)

			// A failing closure commits nothing.
			_, err = repoManager.Rounds().UpdateRound(
				ctx, round.Id, func(r *domain.Round) (*domain.Round, error) {
					r.Slug = "never-stored"
					return nil, domain.NewConflictError("round %s rejects the change", r.Slug)
				},
			)
			var conflictErr *domain.ConflictError
			require.ErrorAs(t, err, &conflictErr)
			got, err = repoManager.Rounds().GetRoundWithId(ctx, round.Id)
			require.NoError(t, err)
			require.Equal(t, "closure-round", got.Slug)

			_, err = repoManager.Rounds().UpdateRound(
				ctx, uuid.New().String(), func(r *domain.Round) (*domain.Round, error) {
					return r, nil
				},
			)
			var notFoundErr *domain.NotFoundError
			require.ErrorAs(t, err, &notFoundErr)
		})
	}
}

func TestGetOrCreateUser(t *testing.T) {
	for _, store := range stores {
		t.Run(store.name, func(t *testing.T) {
			ctx := context.Background()
			repoManager := store.setup(t)

			first, err := repoManager.Users().GetOrCreateUser(ctx, "0xsomeone")
			require.NoError(t, err)

			second, err := repoManager.Users().GetOrCreateUser(ctx, "0xsomeone")
			require.NoError(t, err)
			require.Equal(t, first.Id, second.Id)

			got, err := repoManager.Users().GetUserWithId(ctx, first.Id)
			require.NoError(t, err)
			require.Equal(t, "0xsomeone", got.WalletAddress)
		})
	}
}

func TestReplaceRosterProtectsBallots(t *testing.T) {
	for _, store := range stores {
		t.Run(store.name, func(t *testing.T) {
			ctx := context.Background()
			repoManager := store.setup(t)

			round := newStoredRound(t, ctx, repoManager, "roster-round")
			voterA, err := repoManager.Users().GetOrCreateUser(ctx, "0xa")
			require.NoError(t, err)
			voterB, err := repoManager.Users().GetOrCreateUser(ctx, "0xb")
			require.NoError(t, err)

			roster := []domain.RoundVoter{
				{RoundId: round.Id, UserId: voterA.Id, WalletAddress: "0xa", CreatedAt: time.Now()},
				{RoundId: round.Id, UserId: voterB.Id, WalletAddress: "0xb", CreatedAt: time.Now()},
			}
			require.NoError(t, repoManager.Voters().ReplaceRoster(ctx, round.Id, roster, adminAddr))

			isVoter, err := repoManager.Voters().IsRoundVoter(ctx, round.Id, voterA.Id)
			require.NoError(t, err)
			require.True(t, isVoter)

			isVoter, err = repoManager.Voters().IsRoundVoter(ctx, round.Id, "nobody")
			require.NoError(t, err)
			require.False(t, isVoter)

			ballot := domain.NewBallot(round.Id, voterA.Id, map[string]float64{uuid.New().String(): 1})
			require.NoError(t, repoManager.Ballots().UpsertBallot(ctx, *ballot))

			// Dropping a voter who already cast a ballot must fail.
			err = repoManager.Voters().ReplaceRoster(ctx, round.Id, roster[1:], adminAddr)
			var conflictErr *domain.ConflictError
			require.ErrorAs(t, err, &conflictErr)

			// The failed replacement must not have touched the roster.
			voters, err := repoManager.Voters().GetRoundVoters(ctx, round.Id)
			require.NoError(t, err)
			require.Len(t, voters, 2)

			// Keeping the balloted voter while dropping the other one is fine.
			require.NoError(t, repoManager.Voters().ReplaceRoster(ctx, round.Id, roster[:1], adminAddr))
			voters, err = repoManager.Voters().GetRoundVoters(ctx, round.Id)
			require.NoError(t, err)
			require.Len(t, voters, 1)
		})
	}
}

func TestReplaceRosterChecksRoundState(t *testing.T) {
	for _, store := range stores {
		t.Run(store.name, func(t *testing.T) {
			ctx := context.Background()
			repoManager := store.setup(t)

			round := newStoredRound(t, ctx, repoManager, "gated-roster-round")
			voter, err := repoManager.Users().GetOrCreateUser(ctx, "0xa")
			require.NoError(t, err)
			roster := []domain.RoundVoter{
				{RoundId: round.Id, UserId: voter.Id, WalletAddress: "0xa", CreatedAt: time.Now()},
			}

			// The store itself rejects a requester outside the admin set.
			err = repoManager.Voters().ReplaceRoster(ctx, round.Id, roster, "0xstranger")
			var authErr *domain.AuthorizationError
			require.ErrorAs(t, err, &authErr)

			var notFoundErr *domain.NotFoundError
			err = repoManager.Voters().ReplaceRoster(ctx, uuid.New().String(), roster, adminAddr)
			require.ErrorAs(t, err, &notFoundErr)

			require.NoError(t, repoManager.Voters().ReplaceRoster(ctx, round.Id, roster, adminAddr))

			// Publishing freezes the roster, even for admins.
			round.Published = true
			require.NoError(t, repoManager.Rounds().AddOrUpdateRound(ctx, *round))
			err = repoManager.Voters().ReplaceRoster(ctx, round.Id, nil, adminAddr)
			var conflictErr *domain.ConflictError
			require.ErrorAs(t, err, &conflictErr)
		})
	}
}

func TestUpsertBallot(t *testing.T) {
	for _, store := range stores {
		t.Run(store.name, func(t *testing.T) {
			ctx := context.Background()
			repoManager := store.setup(t)

			round := newStoredRound(t, ctx, repoManager, "ballot-round")
			voter, err := repoManager.Users().GetOrCreateUser(ctx, "0xa")
			require.NoError(t, err)
			roster := []domain.RoundVoter{
				{RoundId: round.Id, UserId: voter.Id, WalletAddress: "0xa", CreatedAt: time.Now()},
			}
			require.NoError(t, repoManager.Voters().ReplaceRoster(ctx, round.Id, roster, adminAddr))

			appId := uuid.New().String()

			ballot := domain.NewBallot(round.Id, voter.Id, map[string]float64{appId: 1})
			require.NoError(t, repoManager.Ballots().UpsertBallot(ctx, *ballot))

			replacement := domain.NewBallot(round.Id, voter.Id, map[string]float64{appId: 3})
			require.NoError(t, repoManager.Ballots().UpsertBallot(ctx, *replacement))

			got, err := repoManager.Ballots().GetBallot(ctx, round.Id, voter.Id)
			require.NoError(t, err)
			require.Equal(t, float64(3), got.Votes[appId])

			ballots, err := repoManager.Ballots().GetRoundBallots(ctx, round.Id)
			require.NoError(t, err)
			require.Len(t, ballots, 1)

			_, err = repoManager.Ballots().GetBallot(ctx, round.Id, "voter-2")
			var notFoundErr *domain.NotFoundError
			require.ErrorAs(t, err, &notFoundErr)

			// A ballot from a user outside the roster is rejected by the
			// store itself, so a roster swap cannot race the write.
			stray := domain.NewBallot(round.Id, "voter-2", map[string]float64{appId: 1})
			err = repoManager.Ballots().UpsertBallot(ctx, *stray)
			var authErr *domain.AuthorizationError
			require.ErrorAs(t, err, &authErr)
		})
	}
}

func TestDatasetRepository(t *testing.T) {
	for _, store := range stores {
		t.Run(store.name, func(t *testing.T) {
			ctx := context.Background()
			repoManager := store.setup(t)

			round := newStoredRound(t, ctx, repoManager, "dataset-round")
			appId := uuid.New().String()

			dataset, err := domain.NewCustomDataset(round.Id, "metrics")
			require.NoError(t, err)
			require.NoError(t, repoManager.Datasets().AddDataset(ctx, *dataset, adminAddr))

			rows := []domain.CustomDatasetRow{{
				DatasetId:     dataset.Id,
				ApplicationId: appId,
				Values:        map[string]string{"team_size": "4"},
			}}
			require.NoError(t, repoManager.Datasets().ReplaceRows(ctx, dataset.Id, rows, adminAddr))

			got, err := repoManager.Datasets().GetDatasetWithId(ctx, dataset.Id)
			require.NoError(t, err)
			require.Equal(t, 1, got.RowCount)

			row, err := repoManager.Datasets().GetRow(ctx, dataset.Id, appId)
			require.NoError(t, err)
			require.NotNil(t, row)
			require.Equal(t, "4", row.Values["team_size"])

			row, err = repoManager.Datasets().GetRow(ctx, dataset.Id, uuid.New().String())
			require.NoError(t, err)
			require.Nil(t, row)

			// Replacing rows swaps the whole set.
			require.NoError(t, repoManager.Datasets().ReplaceRows(ctx, dataset.Id, nil, adminAddr))
			got, err = repoManager.Datasets().GetDatasetWithId(ctx, dataset.Id)
			require.NoError(t, err)
			require.Zero(t, got.RowCount)

			require.NoError(t, repoManager.Datasets().UpdateDatasetVisibility(ctx, dataset.Id, true, adminAddr))
			got, err = repoManager.Datasets().GetDatasetWithId(ctx, dataset.Id)
			require.NoError(t, err)
			require.True(t, got.IsPublic)

			datasets, err := repoManager.Datasets().GetRoundDatasets(ctx, round.Id)
			require.NoError(t, err)
			require.Len(t, datasets, 1)
		})
	}
}

func TestDatasetMutationsRequireAdmin(t *testing.T) {
	for _, store := range stores {
		t.Run(store.name, func(t *testing.T) {
			ctx := context.Background()
			repoManager := store.setup(t)

			round := newStoredRound(t, ctx, repoManager, "guarded-dataset-round")

			dataset, err := domain.NewCustomDataset(round.Id, "metrics")
			require.NoError(t, err)

			var authErr *domain.AuthorizationError
			err = repoManager.Datasets().AddDataset(ctx, *dataset, "0xstranger")
			require.ErrorAs(t, err, &authErr)

			require.NoError(t, repoManager.Datasets().AddDataset(ctx, *dataset, adminAddr))

			err = repoManager.Datasets().ReplaceRows(ctx, dataset.Id, nil, "0xstranger")
			require.ErrorAs(t, err, &authErr)

			err = repoManager.Datasets().UpdateDatasetVisibility(ctx, dataset.Id, true, "0xstranger")
			require.ErrorAs(t, err, &authErr)

			got, err := repoManager.Datasets().GetDatasetWithId(ctx, dataset.Id)
			require.NoError(t, err)
			require.False(t, got.IsPublic)
		})
	}
}
