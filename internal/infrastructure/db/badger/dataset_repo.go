package badgerdb

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/dgraph-io/badger/v4"
	"github.com/timshannon/badgerhold/v4"

	"github.com/retrofund/retrofund/internal/core/domain"
)

type datasetRepository struct {
	store *badgerhold.Store
}

func NewCustomDatasetRepository(config ...interface{}) (domain.CustomDatasetRepository, error) {
	if len(config) != 1 {
		return nil, fmt.Errorf("invalid config")
	}
	store, ok := config[0].(*badgerhold.Store)
	if !ok {
		return nil, fmt.Errorf("cannot open dataset repository: invalid config, expected store at 0")
	}

	return &datasetRepository{store}, nil
}

func (r *datasetRepository) AddDataset(
	ctx context.Context, dataset domain.CustomDataset, requestingAddress string,
) error {
	return withRetry(func() error {
		return r.store.Badger().Update(func(txn *badger.Txn) error {
			if err := txRequireRoundAdmin(r.store, txn, dataset.RoundId, requestingAddress); err != nil {
				return err
			}

			count, err := r.store.TxCount(
				txn, &domain.CustomDataset{}, badgerhold.Where("RoundId").Eq(dataset.RoundId),
			)
			if err != nil {
				return fmt.Errorf("failed to count round datasets: %w", err)
			}
			if count >= domain.MaxDatasetsPerRound {
				return domain.NewConflictError(
					"round already has the maximum of %d custom datasets", domain.MaxDatasetsPerRound,
				)
			}
			return r.store.TxInsert(txn, dataset.Id, &dataset)
		})
	})
}

func (r *datasetRepository) GetDatasetWithId(
	ctx context.Context, id string,
) (*domain.CustomDataset, error) {
	var dataset domain.CustomDataset
	err := r.store.Get(id, &dataset)
	if errors.Is(err, badgerhold.ErrNotFound) {
		return nil, domain.NewNotFoundError("dataset with id %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get dataset: %w", err)
	}
	return &dataset, nil
}

func (r *datasetRepository) GetRoundDatasets(
	ctx context.Context, roundId string,
) ([]domain.CustomDataset, error) {
	var datasets []domain.CustomDataset
	if err := r.store.Find(&datasets, badgerhold.Where("RoundId").Eq(roundId)); err != nil {
		return nil, fmt.Errorf("failed to list round datasets: %w", err)
	}
	sort.Slice(datasets, func(i, j int) bool {
		if datasets[i].CreatedAt.Equal(datasets[j].CreatedAt) {
			return datasets[i].Name < datasets[j].Name
		}
		return datasets[i].CreatedAt.Before(datasets[j].CreatedAt)
	})
	return datasets, nil
}

func (r *datasetRepository) UpdateDatasetVisibility(
	ctx context.Context, id string, isPublic bool, requestingAddress string,
) error {
	return withRetry(func() error {
		return r.store.Badger().Update(func(txn *badger.Txn) error {
			var dataset domain.CustomDataset
			err := r.store.TxGet(txn, id, &dataset)
			if errors.Is(err, badgerhold.ErrNotFound) {
				return domain.NewNotFoundError("dataset with id %s not found", id)
			}
			if err != nil {
				return fmt.Errorf("failed to get dataset: %w", err)
			}
			if err := txRequireRoundAdmin(r.store, txn, dataset.RoundId, requestingAddress); err != nil {
				return err
			}
			dataset.IsPublic = isPublic
			return r.store.TxUpdate(txn, id, &dataset)
		})
	})
}

func (r *datasetRepository) ReplaceRows(
	ctx context.Context, datasetId string, rows []domain.CustomDatasetRow, requestingAddress string,
) error {
	return withRetry(func() error {
		return r.store.Badger().Update(func(txn *badger.Txn) error {
			var dataset domain.CustomDataset
			err := r.store.TxGet(txn, datasetId, &dataset)
			if errors.Is(err, badgerhold.ErrNotFound) {
				return domain.NewNotFoundError("dataset with id %s not found", datasetId)
			}
			if err != nil {
				return fmt.Errorf("failed to get dataset: %w", err)
			}
			if err := txRequireRoundAdmin(r.store, txn, dataset.RoundId, requestingAddress); err != nil {
				return err
			}

			if err := r.store.TxDeleteMatching(
				txn, &domain.CustomDatasetRow{}, badgerhold.Where("DatasetId").Eq(datasetId),
			); err != nil {
				return fmt.Errorf("failed to clear dataset rows: %w", err)
			}

			for _, row := range rows {
				if err := r.store.TxInsert(
					txn, rowKey(row.DatasetId, row.ApplicationId), &row,
				); err != nil {
					return fmt.Errorf("failed to insert dataset row: %w", err)
				}
			}

			dataset.RowCount = len(rows)
			return r.store.TxUpdate(txn, datasetId, &dataset)
		})
	})
}

func (r *datasetRepository) GetDatasetRows(
	ctx context.Context, datasetId string,
) ([]domain.CustomDatasetRow, error) {
	var rows []domain.CustomDatasetRow
	if err := r.store.Find(&rows, badgerhold.Where("DatasetId").Eq(datasetId)); err != nil {
		return nil, fmt.Errorf("failed to list dataset rows: %w", err)
	}
	return rows, nil
}

func (r *datasetRepository) GetRow(
	ctx context.Context, datasetId, applicationId string,
) (*domain.CustomDatasetRow, error) {
	var row domain.CustomDatasetRow
	err := r.store.Get(rowKey(datasetId, applicationId), &row)
	if errors.Is(err, badgerhold.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get dataset row: %w", err)
	}
	return &row, nil
}

func (r *datasetRepository) Close() {}

func rowKey(datasetId, applicationId string) string {
	return datasetId + ":" + applicationId
}
