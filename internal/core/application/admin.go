package application

import (
	"context"
	"errors"

	log "github.com/sirupsen/logrus"

	"github.com/retrofund/retrofund/internal/core/domain"
	"github.com/retrofund/retrofund/internal/core/ports"
)

// AdminService is the round-admin surface: round setup, roster management,
// datasets and the testing-only phase override.
type AdminService interface {
	CreateRound(ctx context.Context, req CreateRoundRequest, creator Identity) (*domain.Round, error)
	UpdateRound(ctx context.Context, roundId string, req CreateRoundRequest, requester Identity) (*domain.Round, error)
	PublishRound(ctx context.Context, roundId string, requester Identity) (*domain.Round, error)

	GetRoundVoters(ctx context.Context, roundId string, requester Identity) ([]domain.RoundVoter, error)
	SetRoundVoters(
		ctx context.Context, roundId string, walletAddresses []string, requester Identity,
	) ([]domain.RoundVoter, error)

	CreateDataset(ctx context.Context, roundId, name string, requester Identity) (*domain.CustomDataset, error)
	UploadDatasetRows(
		ctx context.Context, datasetId, csvText string, requester Identity,
	) (*domain.CustomDataset, error)
	SetDatasetVisibility(
		ctx context.Context, datasetId string, isPublic bool, requester Identity,
	) (*domain.CustomDataset, error)

	GetRoundBallots(ctx context.Context, roundId string, requester Identity) ([]domain.Ballot, error)
	ImportResults(
		ctx context.Context, roundId string, scores map[string]float64, requester Identity,
	) ([]ApplicationScore, error)

	// SetPhaseOverride forces the derived phase of a round, or clears the
	// override when phase is empty or "NONE". Reserved for test fixtures;
	// the web layer only exposes it when explicitly enabled.
	SetPhaseOverride(ctx context.Context, roundSlug, phase string) (*domain.Round, error)
}

type adminService struct {
	repoManager ports.RepoManager
	clock       ports.Clock
}

func NewAdminService(repoManager ports.RepoManager, clock ports.Clock) AdminService {
	return &adminService{repoManager: repoManager, clock: clock}
}

func (a *adminService) CreateRound(
	ctx context.Context, req CreateRoundRequest, creator Identity,
) (*domain.Round, error) {
	// The store rejects a duplicate slug inside the insert transaction; the
	// lookup here only reports the conflict before the round is built.
	existing, err := a.repoManager.Rounds().GetRoundWithSlug(ctx, req.Slug)
	if err != nil {
		var notFound *domain.NotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}
	if existing != nil {
		return nil, domain.NewConflictError("a round with slug %s already exists", req.Slug)
	}

	round, err := domain.NewRound(
		req.Slug, creator.WalletAddress,
		req.ApplicationPeriodStart, req.ApplicationPeriodEnd,
		req.VotingPeriodStart, req.VotingPeriodEnd,
		req.ResultsPeriodStart,
		req.VotingConfig, req.AdminAddresses,
	)
	if err != nil {
		return nil, err
	}
	if err := a.repoManager.Rounds().AddOrUpdateRound(ctx, *round); err != nil {
		return nil, err
	}

	log.WithFields(log.Fields{"round": round.Slug, "id": round.Id}).Info("round created")
	return round, nil
}

func (a *adminService) UpdateRound(
	ctx context.Context, roundId string, req CreateRoundRequest, requester Identity,
) (*domain.Round, error) {
	// The admin and publish checks run in the closure, inside the store's
	// round transaction, so a concurrent admin removal or publish cannot
	// land between check and write.
	return a.repoManager.Rounds().UpdateRound(
		ctx, roundId, func(round *domain.Round) (*domain.Round, error) {
			if !round.IsAdmin(requester.WalletAddress) {
				return nil, domain.NewAuthorizationError(
					"user %s is not an admin of round %s", requester.UserId, round.Slug,
				)
			}
			if round.Published {
				return nil, domain.NewConflictError(
					"round %s is published and can no longer be edited", round.Slug,
				)
			}

			updated := *round
			updated.ApplicationPeriodStart = req.ApplicationPeriodStart
			updated.ApplicationPeriodEnd = req.ApplicationPeriodEnd
			updated.VotingPeriodStart = req.VotingPeriodStart
			updated.VotingPeriodEnd = req.VotingPeriodEnd
			updated.ResultsPeriodStart = req.ResultsPeriodStart
			updated.VotingConfig = req.VotingConfig
			if len(req.AdminAddresses) > 0 {
				// The creator's address is first in the stored set and is
				// never dropped by an admin-list update.
				updated.AdminAddresses = nil
				tmp, err := domain.NewRound(
					updated.Slug, round.AdminAddresses[0],
					req.ApplicationPeriodStart, req.ApplicationPeriodEnd,
					req.VotingPeriodStart, req.VotingPeriodEnd,
					req.ResultsPeriodStart,
					req.VotingConfig, req.AdminAddresses,
				)
				if err != nil {
					return nil, err
				}
				updated.AdminAddresses = tmp.AdminAddresses
			}
			if err := updated.Validate(); err != nil {
				return nil, err
			}
			return &updated, nil
		},
	)
}

func (a *adminService) PublishRound(
	ctx context.Context, roundId string, requester Identity,
) (*domain.Round, error) {
	round, err := a.repoManager.Rounds().UpdateRound(
		ctx, roundId, func(round *domain.Round) (*domain.Round, error) {
			if !round.IsAdmin(requester.WalletAddress) {
				return nil, domain.NewAuthorizationError(
					"user %s is not an admin of round %s", requester.UserId, round.Slug,
				)
			}
			if err := round.Publish(); err != nil {
				return nil, err
			}
			return round, nil
		},
	)
	if err != nil {
		return nil, err
	}

	log.WithFields(log.Fields{"round": round.Slug}).Info("round published")
	return round, nil
}

func (a *adminService) GetRoundVoters(
	ctx context.Context, roundId string, requester Identity,
) ([]domain.RoundVoter, error) {
	if _, err := a.adminRound(ctx, roundId, requester); err != nil {
		return nil, err
	}
	return a.repoManager.Voters().GetRoundVoters(ctx, roundId)
}

func (a *adminService) SetRoundVoters(
	ctx context.Context, roundId string, walletAddresses []string, requester Identity,
) ([]domain.RoundVoter, error) {
	round, err := a.adminRound(ctx, roundId, requester)
	if err != nil {
		return nil, err
	}
	if round.Published {
		return nil, domain.NewConflictError(
			"the voter roster of round %s is frozen, the round is published", round.Slug,
		)
	}

	seen := make(map[string]struct{}, len(walletAddresses))
	normalized := make([]string, 0, len(walletAddresses))
	for _, addr := range walletAddresses {
		lowered := domain.NormalizeAddress(addr)
		if len(lowered) <= 0 {
			return nil, domain.NewValidationError("wallet addresses must not be empty")
		}
		if _, ok := seen[lowered]; ok {
			return nil, domain.NewValidationError("duplicate wallet address: " + lowered)
		}
		seen[lowered] = struct{}{}
		normalized = append(normalized, lowered)
	}

	voters := make([]domain.RoundVoter, 0, len(normalized))
	for _, addr := range normalized {
		user, err := a.repoManager.Users().GetOrCreateUser(ctx, addr)
		if err != nil {
			return nil, err
		}
		voters = append(voters, domain.RoundVoter{
			RoundId:       roundId,
			UserId:        user.Id,
			WalletAddress: user.WalletAddress,
			CreatedAt:     a.clock.Now(),
		})
	}

	if err := a.repoManager.Voters().ReplaceRoster(
		ctx, roundId, voters, requester.WalletAddress,
	); err != nil {
		return nil, err
	}

	log.WithFields(log.Fields{
		"round": round.Slug, "voters": len(voters),
	}).Info("voter roster replaced")
	return voters, nil
}

func (a *adminService) CreateDataset(
	ctx context.Context, roundId, name string, requester Identity,
) (*domain.CustomDataset, error) {
	round, err := a.adminRound(ctx, roundId, requester)
	if err != nil {
		return nil, err
	}

	dataset, err := domain.NewCustomDataset(roundId, name)
	if err != nil {
		return nil, err
	}
	if err := a.repoManager.Datasets().AddDataset(ctx, *dataset, requester.WalletAddress); err != nil {
		return nil, err
	}

	log.WithFields(log.Fields{
		"round": round.Slug, "dataset": dataset.Name,
	}).Info("custom dataset created")
	return dataset, nil
}

func (a *adminService) UploadDatasetRows(
	ctx context.Context, datasetId, csvText string, requester Identity,
) (*domain.CustomDataset, error) {
	dataset, err := a.repoManager.Datasets().GetDatasetWithId(ctx, datasetId)
	if err != nil {
		return nil, err
	}
	round, err := a.adminRound(ctx, dataset.RoundId, requester)
	if err != nil {
		return nil, err
	}

	apps, err := a.repoManager.Applications().GetRoundApplications(ctx, dataset.RoundId)
	if err != nil {
		return nil, err
	}
	appIds := make(map[string]struct{}, len(apps))
	for _, app := range apps {
		appIds[app.Id] = struct{}{}
	}

	rows, errs := parseDatasetRows(datasetId, csvText, appIds)
	if len(errs) > 0 {
		return nil, domain.NewValidationError(errs...)
	}

	if err := a.repoManager.Datasets().ReplaceRows(
		ctx, datasetId, rows, requester.WalletAddress,
	); err != nil {
		return nil, err
	}

	log.WithFields(log.Fields{
		"round": round.Slug, "dataset": dataset.Name, "rows": len(rows),
	}).Info("dataset rows replaced")
	return a.repoManager.Datasets().GetDatasetWithId(ctx, datasetId)
}

func (a *adminService) SetDatasetVisibility(
	ctx context.Context, datasetId string, isPublic bool, requester Identity,
) (*domain.CustomDataset, error) {
	dataset, err := a.repoManager.Datasets().GetDatasetWithId(ctx, datasetId)
	if err != nil {
		return nil, err
	}
	if _, err := a.adminRound(ctx, dataset.RoundId, requester); err != nil {
		return nil, err
	}
	if err := a.repoManager.Datasets().UpdateDatasetVisibility(
		ctx, datasetId, isPublic, requester.WalletAddress,
	); err != nil {
		return nil, err
	}
	return a.repoManager.Datasets().GetDatasetWithId(ctx, datasetId)
}

func (a *adminService) GetRoundBallots(
	ctx context.Context, roundId string, requester Identity,
) ([]domain.Ballot, error) {
	round, err := a.adminRound(ctx, roundId, requester)
	if err != nil {
		return nil, err
	}
	// Individual ballots stay sealed until the voting window is over, even
	// for admins.
	if phase := round.Phase(a.clock.Now()); phase < domain.ResultsPhase {
		return nil, domain.NewConflictError(
			"ballots of round %s are sealed until the results phase, current phase is %s",
			round.Slug, phase.String(),
		)
	}
	return a.repoManager.Ballots().GetRoundBallots(ctx, roundId)
}

func (a *adminService) ImportResults(
	ctx context.Context, roundId string, scores map[string]float64, requester Identity,
) ([]ApplicationScore, error) {
	if _, err := a.adminRound(ctx, roundId, requester); err != nil {
		return nil, err
	}
	apps, err := a.repoManager.Applications().GetRoundApplications(ctx, roundId)
	if err != nil {
		return nil, err
	}

	appIds := make([]string, 0, len(apps))
	names := make(map[string]string, len(apps))
	for _, app := range apps {
		appIds = append(appIds, app.Id)
		names[app.Id] = app.ProjectName
	}
	return rankScores(NormalizeImportedResults(appIds, scores), names), nil
}

func (a *adminService) SetPhaseOverride(
	ctx context.Context, roundSlug, phase string,
) (*domain.Round, error) {
	round, err := a.repoManager.Rounds().GetRoundWithSlug(ctx, roundSlug)
	if err != nil {
		return nil, err
	}

	if len(phase) <= 0 || phase == "NONE" {
		round.PhaseOverride = nil
		log.WithFields(log.Fields{"round": round.Slug}).Warn("phase override cleared")
	} else {
		parsed, err := domain.ParsePhase(phase)
		if err != nil {
			return nil, domain.NewValidationError(err.Error())
		}
		round.PhaseOverride = &parsed
		if parsed != domain.DraftPhase {
			// Forcing a post-draft phase implies a published round.
			round.Published = true
		}
		log.WithFields(log.Fields{
			"round": round.Slug, "phase": parsed.String(),
		}).Warn("phase override set, derived phase is bypassed")
	}

	if err := a.repoManager.Rounds().AddOrUpdateRound(ctx, *round); err != nil {
		return nil, err
	}
	return round, nil
}

// adminRound loads a round and checks the requester's admin capability.
func (a *adminService) adminRound(
	ctx context.Context, roundId string, requester Identity,
) (*domain.Round, error) {
	round, err := a.repoManager.Rounds().GetRoundWithId(ctx, roundId)
	if err != nil {
		return nil, err
	}
	if !round.IsAdmin(requester.WalletAddress) {
		return nil, domain.NewAuthorizationError(
			"user %s is not an admin of round %s", requester.UserId, round.Slug,
		)
	}
	return round, nil
}
