package domain_test

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/retrofund/retrofund/internal/core/domain"
)

func TestBallotValidate(t *testing.T) {
	appA := uuid.New().String()
	appB := uuid.New().String()
	appIds := map[string]struct{}{appA: {}, appB: {}}
	cfg := domain.VotingConfig{
		MaxVotesPerVoter:           2,
		MaxVotesPerProjectPerVoter: 5,
	}

	t.Run("valid ballot", func(t *testing.T) {
		ballot := domain.NewBallot("round", "voter", map[string]float64{appA: 3, appB: 0})
		require.NoError(t, ballot.Validate(cfg, appIds))
	})

	t.Run("empty ballot", func(t *testing.T) {
		ballot := domain.NewBallot("round", "voter", nil)
		require.Error(t, ballot.Validate(cfg, appIds))
	})

	t.Run("too many votes", func(t *testing.T) {
		ballot := domain.NewBallot("round", "voter", map[string]float64{
			appA: 1, appB: 1, uuid.New().String(): 1,
		})
		require.Error(t, ballot.Validate(cfg, appIds))
	})

	t.Run("unknown application", func(t *testing.T) {
		ballot := domain.NewBallot("round", "voter", map[string]float64{uuid.New().String(): 1})
		require.Error(t, ballot.Validate(cfg, appIds))
	})

	t.Run("negative vote", func(t *testing.T) {
		ballot := domain.NewBallot("round", "voter", map[string]float64{appA: -1})
		require.Error(t, ballot.Validate(cfg, appIds))
	})

	t.Run("vote exceeds per-project limit", func(t *testing.T) {
		ballot := domain.NewBallot("round", "voter", map[string]float64{appA: 6})
		require.Error(t, ballot.Validate(cfg, appIds))
	})
}
