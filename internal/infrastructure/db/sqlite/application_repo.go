package sqlitedb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/retrofund/retrofund/internal/core/domain"
)

type applicationRepository struct {
	db *sql.DB
}

func NewApplicationRepository(config ...interface{}) (domain.ApplicationRepository, error) {
	if len(config) != 1 {
		return nil, fmt.Errorf("invalid config")
	}
	db, ok := config[0].(*sql.DB)
	if !ok {
		return nil, fmt.Errorf("cannot open application repository: invalid config, expected db at 0")
	}

	return &applicationRepository{db: db}, nil
}

func (r *applicationRepository) AddApplication(
	ctx context.Context, application domain.Application,
) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO application (id, round_id, project_name, project_url, submitter_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		application.Id, application.RoundId, application.ProjectName,
		application.ProjectUrl, application.SubmitterId, application.CreatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert application: %w", err)
	}
	return nil
}

func (r *applicationRepository) GetApplicationWithId(
	ctx context.Context, id string,
) (*domain.Application, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, round_id, project_name, project_url, submitter_id, created_at
		FROM application WHERE id = ?`, id,
	)
	app, err := scanApplication(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NewNotFoundError("application with id %s not found", id)
	}
	return app, err
}

func (r *applicationRepository) GetRoundApplications(
	ctx context.Context, roundId string,
) ([]domain.Application, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, round_id, project_name, project_url, submitter_id, created_at
		FROM application WHERE round_id = ? ORDER BY created_at, id`, roundId,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list round applications: %w", err)
	}
	defer rows.Close()

	apps := make([]domain.Application, 0)
	for rows.Next() {
		app, err := scanApplication(rows)
		if err != nil {
			return nil, err
		}
		apps = append(apps, *app)
	}
	return apps, rows.Err()
}

func (r *applicationRepository) Close() {
	_ = r.db.Close()
}

func scanApplication(row rowScanner) (*domain.Application, error) {
	var app domain.Application
	var createdAt int64
	if err := row.Scan(
		&app.Id, &app.RoundId, &app.ProjectName, &app.ProjectUrl,
		&app.SubmitterId, &createdAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan application: %w", err)
	}
	app.CreatedAt = time.Unix(createdAt, 0)
	return &app, nil
}
