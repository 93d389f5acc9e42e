package application_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/retrofund/retrofund/internal/core/application"
	"github.com/retrofund/retrofund/internal/core/domain"
	"github.com/retrofund/retrofund/internal/core/ports"
	"github.com/retrofund/retrofund/internal/infrastructure/db"
)

var (
	t0 = time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

	adminIdentity  = application.Identity{UserId: "admin-user", WalletAddress: "0xadmin"}
	otherIdentity  = application.Identity{UserId: "other-user", WalletAddress: "0xother"}
	submitIdentity = application.Identity{UserId: "submitter", WalletAddress: "0xsubmitter"}
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) set(now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = now
}

func newTestServices(t *testing.T) (application.Service, application.AdminService, *fakeClock) {
	repoManager, err := db.NewService(db.ServiceConfig{
		DataStoreType: "badger",
		Logger:        log.New(),
	})
	require.NoError(t, err)
	t.Cleanup(repoManager.Close)

	clk := &fakeClock{now: t0}
	return application.NewService(repoManager, clk),
		application.NewAdminService(repoManager, clk), clk
}

func createTestRound(
	t *testing.T, adminSvc application.AdminService, slug string,
) *domain.Round {
	round, err := adminSvc.CreateRound(context.Background(), application.CreateRoundRequest{
		Slug:                   slug,
		ApplicationPeriodStart: t0.Add(time.Hour),
		ApplicationPeriodEnd:   t0.Add(24 * time.Hour),
		VotingPeriodStart:      t0.Add(24 * time.Hour),
		VotingPeriodEnd:        t0.Add(48 * time.Hour),
		ResultsPeriodStart:     t0.Add(72 * time.Hour),
		VotingConfig: domain.VotingConfig{
			MaxVotesPerVoter:           10,
			MaxVotesPerProjectPerVoter: 5,
			AllowedVoterCount:          10,
		},
	}, adminIdentity)
	require.NoError(t, err)
	require.NotNil(t, round)
	return round
}

func TestRoundLifecycle(t *testing.T) {
	ctx := context.Background()
	svc, adminSvc, clk := newTestServices(t)

	round := createTestRound(t, adminSvc, "lifecycle")

	_, err := adminSvc.CreateRound(ctx, application.CreateRoundRequest{
		Slug: "lifecycle",
	}, adminIdentity)
	requireConflict(t, err)

	info, err := svc.GetRoundBySlug(ctx, "lifecycle")
	require.NoError(t, err)
	require.Equal(t, round.Id, info.Id)
	require.Equal(t, domain.DraftPhase, info.Phase)

	published, err := adminSvc.PublishRound(ctx, round.Id, adminIdentity)
	require.NoError(t, err)
	require.True(t, published.Published)

	_, err = adminSvc.UpdateRound(ctx, round.Id, application.CreateRoundRequest{}, adminIdentity)
	requireConflict(t, err)

	clk.set(t0.Add(2 * time.Hour))
	info, err = svc.GetRound(ctx, round.Id)
	require.NoError(t, err)
	require.Equal(t, domain.IntakePhase, info.Phase)

	_, err = svc.GetRound(ctx, "00000000-0000-0000-0000-000000000000")
	requireNotFound(t, err)
}

func TestUpdateRoundRequiresAdmin(t *testing.T) {
	ctx := context.Background()
	_, adminSvc, _ := newTestServices(t)

	round := createTestRound(t, adminSvc, "admin-only")

	_, err := adminSvc.UpdateRound(ctx, round.Id, application.CreateRoundRequest{}, otherIdentity)
	requireAuthorization(t, err)

	_, err = adminSvc.PublishRound(ctx, round.Id, otherIdentity)
	requireAuthorization(t, err)
}

func TestVoterRoster(t *testing.T) {
	ctx := context.Background()
	_, adminSvc, _ := newTestServices(t)

	round := createTestRound(t, adminSvc, "roster")

	_, err := adminSvc.SetRoundVoters(ctx, round.Id, []string{"0xA", "0xa"}, adminIdentity)
	requireValidation(t, err)

	voters, err := adminSvc.SetRoundVoters(ctx, round.Id, []string{"0xA", "0xB"}, adminIdentity)
	require.NoError(t, err)
	require.Len(t, voters, 2)
	require.Equal(t, "0xa", voters[0].WalletAddress)

	// Re-setting the roster before publishing replaces it wholesale.
	voters, err = adminSvc.SetRoundVoters(ctx, round.Id, []string{"0xC"}, adminIdentity)
	require.NoError(t, err)
	require.Len(t, voters, 1)

	got, err := adminSvc.GetRoundVoters(ctx, round.Id, adminIdentity)
	require.NoError(t, err)
	require.Len(t, got, 1)

	_, err = adminSvc.SetRoundVoters(ctx, round.Id, []string{"0xC"}, otherIdentity)
	requireAuthorization(t, err)

	_, err = adminSvc.PublishRound(ctx, round.Id, adminIdentity)
	require.NoError(t, err)

	_, err = adminSvc.SetRoundVoters(ctx, round.Id, []string{"0xD"}, adminIdentity)
	requireConflict(t, err)
}

func TestApplicationIntake(t *testing.T) {
	ctx := context.Background()
	svc, adminSvc, clk := newTestServices(t)

	round := createTestRound(t, adminSvc, "intake")

	// Draft rounds accept no applications.
	_, err := svc.SubmitApplication(ctx, round.Id, "Project", "https://proj.example", submitIdentity)
	requireConflict(t, err)

	_, err = adminSvc.PublishRound(ctx, round.Id, adminIdentity)
	require.NoError(t, err)

	// Still upcoming.
	_, err = svc.SubmitApplication(ctx, round.Id, "Project", "https://proj.example", submitIdentity)
	requireConflict(t, err)

	clk.set(t0.Add(2 * time.Hour))
	app, err := svc.SubmitApplication(ctx, round.Id, "Project", "https://proj.example", submitIdentity)
	require.NoError(t, err)
	require.Equal(t, submitIdentity.UserId, app.SubmitterId)

	infos, err := svc.GetRoundApplications(ctx, round.Id, application.Identity{})
	require.NoError(t, err)
	require.Len(t, infos, 1)

	clk.set(t0.Add(30 * time.Hour))
	_, err = svc.SubmitApplication(ctx, round.Id, "Late", "https://late.example", submitIdentity)
	requireConflict(t, err)
}

func TestBallots(t *testing.T) {
	ctx := context.Background()
	svc, adminSvc, clk := newTestServices(t)

	round := createTestRound(t, adminSvc, "ballots")

	voters, err := adminSvc.SetRoundVoters(ctx, round.Id, []string{"0xV1", "0xV2"}, adminIdentity)
	require.NoError(t, err)
	voter := application.Identity{UserId: voters[0].UserId, WalletAddress: voters[0].WalletAddress}

	_, err = adminSvc.PublishRound(ctx, round.Id, adminIdentity)
	require.NoError(t, err)

	clk.set(t0.Add(2 * time.Hour))
	app, err := svc.SubmitApplication(ctx, round.Id, "Project", "https://proj.example", submitIdentity)
	require.NoError(t, err)

	// Voting has not started yet.
	_, err = svc.CastBallot(ctx, round.Id, voter, map[string]float64{app.Id: 1})
	requireConflict(t, err)

	clk.set(t0.Add(30 * time.Hour))

	_, err = svc.CastBallot(ctx, round.Id, otherIdentity, map[string]float64{app.Id: 1})
	requireAuthorization(t, err)

	_, err = svc.CastBallot(ctx, round.Id, voter, map[string]float64{app.Id: 100})
	requireValidation(t, err)

	ballot, err := svc.CastBallot(ctx, round.Id, voter, map[string]float64{app.Id: 2})
	require.NoError(t, err)
	require.Equal(t, float64(2), ballot.Votes[app.Id])

	// Casting again replaces the previous ballot.
	_, err = svc.CastBallot(ctx, round.Id, voter, map[string]float64{app.Id: 4})
	require.NoError(t, err)

	own, err := svc.GetOwnBallot(ctx, round.Id, voter)
	require.NoError(t, err)
	require.Equal(t, float64(4), own.Votes[app.Id])

	// A ballot lookup against a round that does not exist reports the
	// missing round, not a missing ballot.
	_, err = svc.GetOwnBallot(ctx, "00000000-0000-0000-0000-000000000000", voter)
	requireNotFound(t, err)

	// Ballots stay sealed while voting is open, even for admins.
	_, err = adminSvc.GetRoundBallots(ctx, round.Id, adminIdentity)
	requireConflict(t, err)

	clk.set(t0.Add(80 * time.Hour))
	ballots, err := adminSvc.GetRoundBallots(ctx, round.Id, adminIdentity)
	require.NoError(t, err)
	require.Len(t, ballots, 1)

	_, err = adminSvc.GetRoundBallots(ctx, round.Id, otherIdentity)
	requireAuthorization(t, err)
}

func TestResults(t *testing.T) {
	ctx := context.Background()
	svc, adminSvc, clk := newTestServices(t)

	round := createTestRound(t, adminSvc, "results")

	voters, err := adminSvc.SetRoundVoters(ctx, round.Id, []string{"0xV1", "0xV2"}, adminIdentity)
	require.NoError(t, err)

	_, err = adminSvc.PublishRound(ctx, round.Id, adminIdentity)
	require.NoError(t, err)

	clk.set(t0.Add(2 * time.Hour))
	appA, err := svc.SubmitApplication(ctx, round.Id, "Alpha", "https://a.example", submitIdentity)
	require.NoError(t, err)
	appB, err := svc.SubmitApplication(ctx, round.Id, "Beta", "https://b.example", submitIdentity)
	require.NoError(t, err)

	clk.set(t0.Add(30 * time.Hour))
	for i, v := range voters {
		identity := application.Identity{UserId: v.UserId, WalletAddress: v.WalletAddress}
		_, err = svc.CastBallot(ctx, round.Id, identity, map[string]float64{
			appA.Id: float64(i + 1),
			appB.Id: 5,
		})
		require.NoError(t, err)
	}

	// Voting is still open: results are admin-only.
	_, err = svc.GetResults(ctx, round.Id, application.ResultsSum, otherIdentity)
	requireConflict(t, err)

	scores, err := svc.GetResults(ctx, round.Id, application.ResultsSum, adminIdentity)
	require.NoError(t, err)
	require.Len(t, scores, 2)
	require.Equal(t, appB.Id, scores[0].ApplicationId)
	require.Equal(t, float64(10), scores[0].Score)
	require.Equal(t, float64(3), scores[1].Score)

	clk.set(t0.Add(80 * time.Hour))
	scores, err = svc.GetResults(ctx, round.Id, application.ResultsAvg, application.Identity{})
	require.NoError(t, err)
	require.Equal(t, float64(5), scores[0].Score)
	require.Equal(t, float64(1.5), scores[1].Score)
}

func TestImportResults(t *testing.T) {
	ctx := context.Background()
	svc, adminSvc, clk := newTestServices(t)

	round := createTestRound(t, adminSvc, "import")
	_, err := adminSvc.PublishRound(ctx, round.Id, adminIdentity)
	require.NoError(t, err)

	clk.set(t0.Add(2 * time.Hour))
	appA, err := svc.SubmitApplication(ctx, round.Id, "Alpha", "https://a.example", submitIdentity)
	require.NoError(t, err)
	appB, err := svc.SubmitApplication(ctx, round.Id, "Beta", "https://b.example", submitIdentity)
	require.NoError(t, err)

	scores, err := adminSvc.ImportResults(ctx, round.Id, map[string]float64{
		appB.Id:   42,
		"unknown": 7,
	}, adminIdentity)
	require.NoError(t, err)
	require.Len(t, scores, 2)
	require.Equal(t, appB.Id, scores[0].ApplicationId)
	require.Equal(t, float64(42), scores[0].Score)
	require.Equal(t, appA.Id, scores[1].ApplicationId)
	require.Zero(t, scores[1].Score)

	_, err = adminSvc.ImportResults(ctx, round.Id, nil, otherIdentity)
	requireAuthorization(t, err)
}

func TestDatasets(t *testing.T) {
	ctx := context.Background()
	svc, adminSvc, clk := newTestServices(t)

	round := createTestRound(t, adminSvc, "datasets")
	_, err := adminSvc.PublishRound(ctx, round.Id, adminIdentity)
	require.NoError(t, err)

	clk.set(t0.Add(2 * time.Hour))
	app, err := svc.SubmitApplication(ctx, round.Id, "Alpha", "https://a.example", submitIdentity)
	require.NoError(t, err)

	dataset, err := adminSvc.CreateDataset(ctx, round.Id, "oss-metrics", adminIdentity)
	require.NoError(t, err)
	require.False(t, dataset.IsPublic)

	_, err = adminSvc.CreateDataset(ctx, round.Id, "oss-metrics", otherIdentity)
	requireAuthorization(t, err)

	csvText := fmt.Sprintf("applicationId,team_size\n%s,4\n", app.Id)
	dataset, err = adminSvc.UploadDatasetRows(ctx, dataset.Id, csvText, adminIdentity)
	require.NoError(t, err)
	require.Equal(t, 1, dataset.RowCount)

	_, err = adminSvc.UploadDatasetRows(ctx, dataset.Id, "name\nfoo\n", adminIdentity)
	requireValidation(t, err)

	// Private datasets are admin-only.
	datasets, err := svc.GetRoundDatasets(ctx, round.Id, otherIdentity)
	require.NoError(t, err)
	require.Empty(t, datasets)

	datasets, err = svc.GetRoundDatasets(ctx, round.Id, adminIdentity)
	require.NoError(t, err)
	require.Len(t, datasets, 1)

	_, err = adminSvc.SetDatasetVisibility(ctx, dataset.Id, true, adminIdentity)
	require.NoError(t, err)

	datasets, err = svc.GetRoundDatasets(ctx, round.Id, otherIdentity)
	require.NoError(t, err)
	require.Len(t, datasets, 1)

	info, err := svc.GetApplication(ctx, app.Id, otherIdentity)
	require.NoError(t, err)
	require.Len(t, info.CustomDatasetValues, 1)
	require.Equal(t, map[string]string{"team_size": "4"}, info.CustomDatasetValues[0].Values)
}

func TestDatasetCap(t *testing.T) {
	ctx := context.Background()
	_, adminSvc, _ := newTestServices(t)

	round := createTestRound(t, adminSvc, "dataset-cap")

	for i := 0; i < domain.MaxDatasetsPerRound; i++ {
		_, err := adminSvc.CreateDataset(ctx, round.Id, fmt.Sprintf("dataset-%d", i), adminIdentity)
		require.NoError(t, err)
	}

	_, err := adminSvc.CreateDataset(ctx, round.Id, "one-too-many", adminIdentity)
	requireConflict(t, err)
}

func TestExportRoundApplications(t *testing.T) {
	ctx := context.Background()
	svc, adminSvc, clk := newTestServices(t)

	round := createTestRound(t, adminSvc, "export")
	_, err := adminSvc.PublishRound(ctx, round.Id, adminIdentity)
	require.NoError(t, err)

	clk.set(t0.Add(2 * time.Hour))
	appA, err := svc.SubmitApplication(ctx, round.Id, "Alpha", "https://a.example", submitIdentity)
	require.NoError(t, err)
	appB, err := svc.SubmitApplication(ctx, round.Id, "Beta", "https://b.example", submitIdentity)
	require.NoError(t, err)

	dataset, err := adminSvc.CreateDataset(ctx, round.Id, "metrics", adminIdentity)
	require.NoError(t, err)
	csvText := fmt.Sprintf("applicationId,score,team_size\n%s,0.8,4\n", appA.Id)
	_, err = adminSvc.UploadDatasetRows(ctx, dataset.Id, csvText, adminIdentity)
	require.NoError(t, err)

	records, err := svc.ExportRoundApplications(ctx, round.Id, adminIdentity)
	require.NoError(t, err)
	require.Len(t, records, 3)
	require.Equal(t, []string{
		"applicationId", "projectName", "projectUrl", "submittedAt",
		"metrics:score", "metrics:team_size",
	}, records[0])

	byId := map[string][]string{records[1][0]: records[1], records[2][0]: records[2]}
	require.Equal(t, []string{"0.8", "4"}, byId[appA.Id][4:])
	// Applications without a dataset row export blank cells.
	require.Equal(t, []string{"", ""}, byId[appB.Id][4:])

	// The private dataset is invisible to non-admins.
	records, err = svc.ExportRoundApplications(ctx, round.Id, otherIdentity)
	require.NoError(t, err)
	require.Equal(t, []string{"applicationId", "projectName", "projectUrl", "submittedAt"}, records[0])
}

func TestPhaseOverride(t *testing.T) {
	ctx := context.Background()
	svc, adminSvc, _ := newTestServices(t)

	createTestRound(t, adminSvc, "override")

	round, err := adminSvc.SetPhaseOverride(ctx, "override", "VOTING")
	require.NoError(t, err)
	require.NotNil(t, round.PhaseOverride)
	// Forcing a post-draft phase publishes the round.
	require.True(t, round.Published)

	info, err := svc.GetRoundBySlug(ctx, "override")
	require.NoError(t, err)
	require.Equal(t, domain.VotingPhase, info.Phase)

	round, err = adminSvc.SetPhaseOverride(ctx, "override", "NONE")
	require.NoError(t, err)
	require.Nil(t, round.PhaseOverride)

	_, err = adminSvc.SetPhaseOverride(ctx, "override", "NOT_A_PHASE")
	requireValidation(t, err)
}

func requireConflict(t *testing.T, err error) {
	t.Helper()
	var conflictErr *domain.ConflictError
	require.ErrorAs(t, err, &conflictErr)
}

func requireValidation(t *testing.T, err error) {
	t.Helper()
	var validationErr *domain.ValidationError
	require.ErrorAs(t, err, &validationErr)
}

func requireAuthorization(t *testing.T, err error) {
	t.Helper()
	var authErr *domain.AuthorizationError
	require.ErrorAs(t, err, &authErr)
}

func requireNotFound(t *testing.T, err error) {
	t.Helper()
	var notFoundErr *domain.NotFoundError
	require.ErrorAs(t, err, &notFoundErr)
}

var _ ports.Clock = (*fakeClock)(nil)
