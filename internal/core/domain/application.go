package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Application is a project's entry into a round. The core only needs its
// identity and round membership; project metadata enrichment happens
// elsewhere.
type Application struct {
	Id          string
	RoundId     string
	ProjectName string
	ProjectUrl  string
	SubmitterId string
	CreatedAt   time.Time
}

func NewApplication(roundId, projectName, projectUrl, submitterId string) (*Application, error) {
	if len(projectName) <= 0 {
		return nil, NewValidationError("missing project name")
	}
	return &Application{
		Id:          uuid.New().String(),
		RoundId:     roundId,
		ProjectName: projectName,
		ProjectUrl:  projectUrl,
		SubmitterId: submitterId,
		CreatedAt:   time.Now(),
	}, nil
}

type ApplicationRepository interface {
	AddApplication(ctx context.Context, application Application) error
	GetApplicationWithId(ctx context.Context, id string) (*Application, error)
	GetRoundApplications(ctx context.Context, roundId string) ([]Application, error)
	Close()
}
