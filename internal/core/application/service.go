package application

import (
	"context"
	"fmt"
	"sort"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/retrofund/retrofund/internal/core/domain"
	"github.com/retrofund/retrofund/internal/core/ports"
)

// Service is the public surface of the round core: everything a voter or
// an anonymous reader may do. Admin-only operations live on AdminService.
type Service interface {
	GetRound(ctx context.Context, roundId string) (*RoundInfo, error)
	GetRoundBySlug(ctx context.Context, slug string) (*RoundInfo, error)
	GetAllRounds(ctx context.Context) ([]RoundInfo, error)

	SubmitApplication(
		ctx context.Context, roundId, projectName, projectUrl string, submitter Identity,
	) (*domain.Application, error)
	GetApplication(ctx context.Context, applicationId string, requester Identity) (*ApplicationInfo, error)
	GetRoundApplications(ctx context.Context, roundId string, requester Identity) ([]ApplicationInfo, error)
	ExportRoundApplications(ctx context.Context, roundId string, requester Identity) ([][]string, error)

	GetRoundDatasets(ctx context.Context, roundId string, requester Identity) ([]domain.CustomDataset, error)

	CastBallot(
		ctx context.Context, roundId string, voter Identity, votes map[string]float64,
	) (*domain.Ballot, error)
	GetOwnBallot(ctx context.Context, roundId string, voter Identity) (*domain.Ballot, error)

	GetResults(
		ctx context.Context, roundId string, method ResultsMethod, requester Identity,
	) ([]ApplicationScore, error)
}

type service struct {
	repoManager ports.RepoManager
	clock       ports.Clock
}

func NewService(repoManager ports.RepoManager, clock ports.Clock) Service {
	return &service{repoManager: repoManager, clock: clock}
}

func (s *service) GetRound(ctx context.Context, roundId string) (*RoundInfo, error) {
	round, err := s.repoManager.Rounds().GetRoundWithId(ctx, roundId)
	if err != nil {
		return nil, err
	}
	return s.roundInfo(round), nil
}

func (s *service) GetRoundBySlug(ctx context.Context, slug string) (*RoundInfo, error) {
	round, err := s.repoManager.Rounds().GetRoundWithSlug(ctx, slug)
	if err != nil {
		return nil, err
	}
	return s.roundInfo(round), nil
}

func (s *service) GetAllRounds(ctx context.Context) ([]RoundInfo, error) {
	rounds, err := s.repoManager.Rounds().GetAllRounds(ctx)
	if err != nil {
		return nil, err
	}
	infos := make([]RoundInfo, 0, len(rounds))
	for i := range rounds {
		infos = append(infos, *s.roundInfo(&rounds[i]))
	}
	return infos, nil
}

func (s *service) SubmitApplication(
	ctx context.Context, roundId, projectName, projectUrl string, submitter Identity,
) (*domain.Application, error) {
	round, err := s.repoManager.Rounds().GetRoundWithId(ctx, roundId)
	if err != nil {
		return nil, err
	}
	if phase := round.Phase(s.clock.Now()); phase != domain.IntakePhase {
		return nil, domain.NewConflictError(
			"round %s is not accepting applications in phase %s", round.Slug, phase,
		)
	}

	app, err := domain.NewApplication(roundId, projectName, projectUrl, submitter.UserId)
	if err != nil {
		return nil, err
	}
	if err := s.repoManager.Applications().AddApplication(ctx, *app); err != nil {
		return nil, err
	}

	log.WithFields(log.Fields{
		"round": round.Slug, "application": app.Id,
	}).Info("application submitted")
	return app, nil
}

func (s *service) GetApplication(
	ctx context.Context, applicationId string, requester Identity,
) (*ApplicationInfo, error) {
	app, err := s.repoManager.Applications().GetApplicationWithId(ctx, applicationId)
	if err != nil {
		return nil, err
	}
	round, err := s.repoManager.Rounds().GetRoundWithId(ctx, app.RoundId)
	if err != nil {
		return nil, err
	}

	values, err := s.datasetValuesForApplication(ctx, round, app.Id, requester)
	if err != nil {
		return nil, err
	}
	return &ApplicationInfo{Application: *app, CustomDatasetValues: values}, nil
}

func (s *service) GetRoundApplications(
	ctx context.Context, roundId string, requester Identity,
) ([]ApplicationInfo, error) {
	round, err := s.repoManager.Rounds().GetRoundWithId(ctx, roundId)
	if err != nil {
		return nil, err
	}
	apps, err := s.repoManager.Applications().GetRoundApplications(ctx, roundId)
	if err != nil {
		return nil, err
	}

	infos := make([]ApplicationInfo, 0, len(apps))
	for i := range apps {
		values, err := s.datasetValuesForApplication(ctx, round, apps[i].Id, requester)
		if err != nil {
			return nil, err
		}
		infos = append(infos, ApplicationInfo{Application: apps[i], CustomDatasetValues: values})
	}
	return infos, nil
}

// ExportRoundApplications produces tabular records for CSV export. Each
// dataset visible to the requester contributes one "<DatasetName>:<field>"
// column per field, left-joined on application id and blank where a
// dataset holds no row for the application.
func (s *service) ExportRoundApplications(
	ctx context.Context, roundId string, requester Identity,
) ([][]string, error) {
	round, err := s.repoManager.Rounds().GetRoundWithId(ctx, roundId)
	if err != nil {
		return nil, err
	}
	apps, err := s.repoManager.Applications().GetRoundApplications(ctx, roundId)
	if err != nil {
		return nil, err
	}
	datasets, err := s.visibleDatasets(ctx, round, requester)
	if err != nil {
		return nil, err
	}

	type datasetColumns struct {
		dataset domain.CustomDataset
		fields  []string
		rows    map[string]domain.CustomDatasetRow
	}
	columns := make([]datasetColumns, 0, len(datasets))
	for _, ds := range datasets {
		rows, err := s.repoManager.Datasets().GetDatasetRows(ctx, ds.Id)
		if err != nil {
			return nil, err
		}
		fieldSet := make(map[string]struct{})
		byApp := make(map[string]domain.CustomDatasetRow, len(rows))
		for _, row := range rows {
			byApp[row.ApplicationId] = row
			for field := range row.Values {
				fieldSet[field] = struct{}{}
			}
		}
		fields := make([]string, 0, len(fieldSet))
		for field := range fieldSet {
			fields = append(fields, field)
		}
		sort.Strings(fields)
		columns = append(columns, datasetColumns{dataset: ds, fields: fields, rows: byApp})
	}

	header := []string{"applicationId", "projectName", "projectUrl", "submittedAt"}
	for _, col := range columns {
		for _, field := range col.fields {
			header = append(header, fmt.Sprintf("%s:%s", col.dataset.Name, field))
		}
	}

	records := [][]string{header}
	for _, app := range apps {
		record := []string{
			app.Id, app.ProjectName, app.ProjectUrl, app.CreatedAt.Format(time.RFC3339),
		}
		for _, col := range columns {
			row, ok := col.rows[app.Id]
			for _, field := range col.fields {
				if !ok {
					record = append(record, "")
					continue
				}
				record = append(record, row.Values[field])
			}
		}
		records = append(records, record)
	}
	return records, nil
}

func (s *service) GetRoundDatasets(
	ctx context.Context, roundId string, requester Identity,
) ([]domain.CustomDataset, error) {
	round, err := s.repoManager.Rounds().GetRoundWithId(ctx, roundId)
	if err != nil {
		return nil, err
	}
	return s.visibleDatasets(ctx, round, requester)
}

func (s *service) CastBallot(
	ctx context.Context, roundId string, voter Identity, votes map[string]float64,
) (*domain.Ballot, error) {
	round, err := s.repoManager.Rounds().GetRoundWithId(ctx, roundId)
	if err != nil {
		return nil, err
	}

	isVoter, err := s.repoManager.Voters().IsRoundVoter(ctx, roundId, voter.UserId)
	if err != nil {
		return nil, err
	}
	if !isVoter {
		return nil, domain.NewAuthorizationError(
			"user %s is not on the voter roster of round %s", voter.UserId, round.Slug,
		)
	}

	if phase := round.Phase(s.clock.Now()); phase != domain.VotingPhase {
		return nil, domain.NewConflictError(
			"round %s is not open for voting in phase %s", round.Slug, phase,
		)
	}

	apps, err := s.repoManager.Applications().GetRoundApplications(ctx, roundId)
	if err != nil {
		return nil, err
	}
	appIds := make(map[string]struct{}, len(apps))
	for _, app := range apps {
		appIds[app.Id] = struct{}{}
	}

	ballot := domain.NewBallot(roundId, voter.UserId, votes)
	if err := ballot.Validate(round.VotingConfig, appIds); err != nil {
		return nil, err
	}
	if err := s.repoManager.Ballots().UpsertBallot(ctx, *ballot); err != nil {
		return nil, err
	}

	log.WithFields(log.Fields{
		"round": round.Slug, "voter": voter.UserId, "votes": len(votes),
	}).Info("ballot cast")
	return ballot, nil
}

func (s *service) GetOwnBallot(
	ctx context.Context, roundId string, voter Identity,
) (*domain.Ballot, error) {
	// An unknown round surfaces as a round lookup failure, not as a
	// missing ballot.
	if _, err := s.repoManager.Rounds().GetRoundWithId(ctx, roundId); err != nil {
		return nil, err
	}
	return s.repoManager.Ballots().GetBallot(ctx, roundId, voter.UserId)
}

func (s *service) GetResults(
	ctx context.Context, roundId string, method ResultsMethod, requester Identity,
) ([]ApplicationScore, error) {
	round, err := s.repoManager.Rounds().GetRoundWithId(ctx, roundId)
	if err != nil {
		return nil, err
	}
	if !round.IsAdmin(requester.WalletAddress) {
		if phase := round.Phase(s.clock.Now()); phase != domain.ResultsPhase {
			return nil, domain.NewConflictError(
				"results of round %s are not available in phase %s", round.Slug, phase,
			)
		}
	}

	apps, err := s.repoManager.Applications().GetRoundApplications(ctx, roundId)
	if err != nil {
		return nil, err
	}
	ballots, err := s.repoManager.Ballots().GetRoundBallots(ctx, roundId)
	if err != nil {
		return nil, err
	}

	appIds := make([]string, 0, len(apps))
	names := make(map[string]string, len(apps))
	for _, app := range apps {
		appIds = append(appIds, app.Id)
		names[app.Id] = app.ProjectName
	}

	scores, err := CalculateResultsForApplications(appIds, ballots, method)
	if err != nil {
		return nil, err
	}
	return rankScores(scores, names), nil
}

func (s *service) roundInfo(round *domain.Round) *RoundInfo {
	return &RoundInfo{Round: *round, Phase: round.Phase(s.clock.Now())}
}

// visibleDatasets returns the round's datasets readable by the requester:
// public ones for everybody, all of them for round admins.
func (s *service) visibleDatasets(
	ctx context.Context, round *domain.Round, requester Identity,
) ([]domain.CustomDataset, error) {
	datasets, err := s.repoManager.Datasets().GetRoundDatasets(ctx, round.Id)
	if err != nil {
		return nil, err
	}
	if round.IsAdmin(requester.WalletAddress) {
		return datasets, nil
	}
	visible := make([]domain.CustomDataset, 0, len(datasets))
	for _, ds := range datasets {
		if ds.IsPublic {
			visible = append(visible, ds)
		}
	}
	return visible, nil
}

func (s *service) datasetValuesForApplication(
	ctx context.Context, round *domain.Round, applicationId string, requester Identity,
) ([]DatasetValues, error) {
	datasets, err := s.visibleDatasets(ctx, round, requester)
	if err != nil {
		return nil, err
	}
	values := make([]DatasetValues, 0, len(datasets))
	for _, ds := range datasets {
		row, err := s.repoManager.Datasets().GetRow(ctx, ds.Id, applicationId)
		if err != nil {
			return nil, err
		}
		rowValues := make(map[string]string)
		if row != nil {
			rowValues = row.Values
		}
		values = append(values, DatasetValues{
			DatasetId:   ds.Id,
			DatasetName: ds.Name,
			Values:      rowValues,
		})
	}
	return values, nil
}

func rankScores(scores map[string]float64, names map[string]string) []ApplicationScore {
	ranked := make([]ApplicationScore, 0, len(scores))
	for appId, score := range scores {
		ranked = append(ranked, ApplicationScore{
			ApplicationId: appId,
			ProjectName:   names[appId],
			Score:         score,
		})
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].Score != ranked[j].Score {
			return ranked[i].Score > ranked[j].Score
		}
		return ranked[i].ApplicationId < ranked[j].ApplicationId
	})
	return ranked
}
