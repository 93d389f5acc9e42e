package application

import (
	"time"

	"github.com/retrofund/retrofund/internal/core/domain"
)

// Identity is the already-authenticated caller, as established by the
// external auth collaborator. How it was established is not this core's
// concern.
type Identity struct {
	UserId        string
	WalletAddress string
}

type RoundInfo struct {
	domain.Round
	Phase domain.Phase
}

type CreateRoundRequest struct {
	Slug                   string
	ApplicationPeriodStart time.Time
	ApplicationPeriodEnd   time.Time
	VotingPeriodStart      time.Time
	VotingPeriodEnd        time.Time
	ResultsPeriodStart     time.Time
	VotingConfig           domain.VotingConfig
	AdminAddresses         []string
}

// DatasetValues is one visible dataset's row values for an application.
// Values is empty when the dataset holds no row for the application.
type DatasetValues struct {
	DatasetId   string
	DatasetName string
	Values      map[string]string
}

type ApplicationInfo struct {
	domain.Application
	CustomDatasetValues []DatasetValues
}

type ApplicationScore struct {
	ApplicationId string
	ProjectName   string
	Score         float64
}
