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

type datasetRepository struct {
	db *sql.DB
}

func NewCustomDatasetRepository(config ...interface{}) (domain.CustomDatasetRepository, error) {
	if len(config) != 1 {
		return nil, fmt.Errorf("invalid config")
	}
	db, ok := config[0].(*sql.DB)
	if !ok {
		return nil, fmt.Errorf("cannot open dataset repository: invalid config, expected db at 0")
	}

	return &datasetRepository{db: db}, nil
}

func (r *datasetRepository) AddDataset(
	ctx context.Context, dataset domain.CustomDataset, requestingAddress string,
) error {
	return execTx(ctx, r.db, func(tx *sql.Tx) error {
		if err := requireRoundAdmin(ctx, tx, dataset.RoundId, requestingAddress); err != nil {
			return err
		}

		var count int
		if err := tx.QueryRowContext(ctx, `
			SELECT COUNT(*) FROM custom_dataset WHERE round_id = ?`, dataset.RoundId,
		).Scan(&count); err != nil {
			return fmt.Errorf("failed to count round datasets: %w", err)
		}
		if count >= domain.MaxDatasetsPerRound {
			return domain.NewConflictError(
				"round already has the maximum of %d custom datasets", domain.MaxDatasetsPerRound,
			)
		}

		if _, err := tx.ExecContext(ctx, `
			INSERT INTO custom_dataset (id, round_id, name, is_public, row_count, created_at)
			VALUES (?, ?, ?, ?, ?, ?)`,
			dataset.Id, dataset.RoundId, dataset.Name, dataset.IsPublic,
			dataset.RowCount, dataset.CreatedAt.Unix(),
		); err != nil {
			return fmt.Errorf("failed to insert dataset: %w", err)
		}
		return nil
	})
}

func (r *datasetRepository) GetDatasetWithId(
	ctx context.Context, id string,
) (*domain.CustomDataset, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, round_id, name, is_public, row_count, created_at
		FROM custom_dataset WHERE id = ?`, id,
	)
	dataset, err := scanDataset(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NewNotFoundError("dataset with id %s not found", id)
	}
	return dataset, err
}

func (r *datasetRepository) GetRoundDatasets(
	ctx context.Context, roundId string,
) ([]domain.CustomDataset, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, round_id, name, is_public, row_count, created_at
		FROM custom_dataset WHERE round_id = ? ORDER BY created_at, name`, roundId,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list round datasets: %w", err)
	}
	defer rows.Close()

	datasets := make([]domain.CustomDataset, 0)
	for rows.Next() {
		dataset, err := scanDataset(rows)
		if err != nil {
			return nil, err
		}
		datasets = append(datasets, *dataset)
	}
	return datasets, rows.Err()
}

func (r *datasetRepository) UpdateDatasetVisibility(
	ctx context.Context, id string, isPublic bool, requestingAddress string,
) error {
	return execTx(ctx, r.db, func(tx *sql.Tx) error {
		dataset, err := getDatasetTx(ctx, tx, id)
		if err != nil {
			return err
		}
		if err := requireRoundAdmin(ctx, tx, dataset.RoundId, requestingAddress); err != nil {
			return err
		}

		if _, err := tx.ExecContext(ctx, `
			UPDATE custom_dataset SET is_public = ? WHERE id = ?`, isPublic, id,
		); err != nil {
			return fmt.Errorf("failed to update dataset visibility: %w", err)
		}
		return nil
	})
}

func (r *datasetRepository) ReplaceRows(
	ctx context.Context, datasetId string, rows []domain.CustomDatasetRow, requestingAddress string,
) error {
	return execTx(ctx, r.db, func(tx *sql.Tx) error {
		dataset, err := getDatasetTx(ctx, tx, datasetId)
		if err != nil {
			return err
		}
		if err := requireRoundAdmin(ctx, tx, dataset.RoundId, requestingAddress); err != nil {
			return err
		}

		if _, err := tx.ExecContext(ctx, `
			DELETE FROM custom_dataset_row WHERE dataset_id = ?`, datasetId,
		); err != nil {
			return fmt.Errorf("failed to clear dataset rows: %w", err)
		}

		for _, row := range rows {
			values, err := json.Marshal(row.Values)
			if err != nil {
				return fmt.Errorf("failed to serialize row values: %w", err)
			}
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO custom_dataset_row (dataset_id, application_id, field_values)
				VALUES (?, ?, ?)`,
				datasetId, row.ApplicationId, string(values),
			); err != nil {
				return fmt.Errorf("failed to insert dataset row: %w", err)
			}
		}

		if _, err := tx.ExecContext(ctx, `
			UPDATE custom_dataset SET row_count = ? WHERE id = ?`, len(rows), datasetId,
		); err != nil {
			return fmt.Errorf("failed to update dataset row count: %w", err)
		}
		return nil
	})
}

func (r *datasetRepository) GetDatasetRows(
	ctx context.Context, datasetId string,
) ([]domain.CustomDatasetRow, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT dataset_id, application_id, field_values
		FROM custom_dataset_row WHERE dataset_id = ?`, datasetId,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list dataset rows: %w", err)
	}
	defer rows.Close()

	result := make([]domain.CustomDatasetRow, 0)
	for rows.Next() {
		row, err := scanDatasetRow(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *row)
	}
	return result, rows.Err()
}

func (r *datasetRepository) GetRow(
	ctx context.Context, datasetId, applicationId string,
) (*domain.CustomDatasetRow, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT dataset_id, application_id, field_values
		FROM custom_dataset_row WHERE dataset_id = ? AND application_id = ?`,
		datasetId, applicationId,
	)
	datasetRow, err := scanDatasetRow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return datasetRow, err
}

func (r *datasetRepository) Close() {
	_ = r.db.Close()
}

func getDatasetTx(ctx context.Context, tx *sql.Tx, id string) (*domain.CustomDataset, error) {
	dataset, err := scanDataset(tx.QueryRowContext(ctx, `
		SELECT id, round_id, name, is_public, row_count, created_at
		FROM custom_dataset WHERE id = ?`, id,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NewNotFoundError("dataset with id %s not found", id)
	}
	return dataset, err
}

func scanDataset(row rowScanner) (*domain.CustomDataset, error) {
	var dataset domain.CustomDataset
	var createdAt int64
	if err := row.Scan(
		&dataset.Id, &dataset.RoundId, &dataset.Name,
		&dataset.IsPublic, &dataset.RowCount, &createdAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan dataset: %w", err)
	}
	dataset.CreatedAt = time.Unix(createdAt, 0)
	return &dataset, nil
}

func scanDatasetRow(row rowScanner) (*domain.CustomDatasetRow, error) {
	var datasetRow domain.CustomDatasetRow
	var values string
	if err := row.Scan(&datasetRow.DatasetId, &datasetRow.ApplicationId, &values); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan dataset row: %w", err)
	}
	if err := json.Unmarshal([]byte(values), &datasetRow.Values); err != nil {
		return nil, fmt.Errorf("failed to deserialize row values: %w", err)
	}
	return &datasetRow, nil
}
