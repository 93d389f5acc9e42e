package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

const (
	// MaxDatasetsPerRound caps the number of live datasets per round.
	MaxDatasetsPerRound = 5
	// MaxDatasetFields caps the value columns of a dataset, the mandatory
	// applicationId column excluded.
	MaxDatasetFields = 10
)

// CustomDataset is an admin-supplied table of extra per-application
// values. Values are visible to non-admins only once IsPublic is set.
type CustomDataset struct {
	Id        string
	RoundId   string
	Name      string
	IsPublic  bool
	RowCount  int
	CreatedAt time.Time
}

func NewCustomDataset(roundId, name string) (*CustomDataset, error) {
	if len(name) <= 0 {
		return nil, NewValidationError("missing dataset name")
	}
	return &CustomDataset{
		Id:        uuid.New().String(),
		RoundId:   roundId,
		Name:      name,
		CreatedAt: time.Now(),
	}, nil
}

// CustomDatasetRow holds up to MaxDatasetFields named string values for
// one application. (DatasetId, ApplicationId) is unique within a dataset.
type CustomDatasetRow struct {
	DatasetId     string
	ApplicationId string
	Values        map[string]string
}

type CustomDatasetRepository interface {
	// AddDataset creates the dataset, failing with a ConflictError when the
	// round already has MaxDatasetsPerRound live datasets and with an
	// AuthorizationError when requestingAddress is not a round admin. Both
	// checks run inside the same transaction as the insert.
	AddDataset(ctx context.Context, dataset CustomDataset, requestingAddress string) error
	GetDatasetWithId(ctx context.Context, id string) (*CustomDataset, error)
	GetRoundDatasets(ctx context.Context, roundId string) ([]CustomDataset, error)
	// UpdateDatasetVisibility flips the public flag, re-verifying the
	// requester's admin membership on the owning round inside the write
	// transaction.
	UpdateDatasetVisibility(ctx context.Context, id string, isPublic bool, requestingAddress string) error
	// ReplaceRows atomically swaps all rows of the dataset with the given
	// set and refreshes the persisted row count. The requester's admin
	// membership on the owning round is checked inside the transaction.
	ReplaceRows(ctx context.Context, datasetId string, rows []CustomDatasetRow, requestingAddress string) error
	GetDatasetRows(ctx context.Context, datasetId string) ([]CustomDatasetRow, error)
	GetRow(ctx context.Context, datasetId, applicationId string) (*CustomDatasetRow, error)
	Close()
}
