package ports

import (
	"github.com/retrofund/retrofund/internal/core/domain"
)

type RepoManager interface {
	Rounds() domain.RoundRepository
	Users() domain.UserRepository
	Voters() domain.RoundVoterRepository
	Ballots() domain.BallotRepository
	Applications() domain.ApplicationRepository
	Datasets() domain.CustomDatasetRepository
	Close()
}
