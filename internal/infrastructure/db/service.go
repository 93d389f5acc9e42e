package db

import (
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/dgraph-io/badger/v4"
	"github.com/golang-migrate/migrate/v4"
	sqlitemigrate "github.com/golang-migrate/migrate/v4/database/sqlite"
	_ "github.com/golang-migrate/migrate/v4/source/file"

	"github.com/retrofund/retrofund/internal/core/domain"
	"github.com/retrofund/retrofund/internal/core/ports"
	badgerdb "github.com/retrofund/retrofund/internal/infrastructure/db/badger"
	sqlitedb "github.com/retrofund/retrofund/internal/infrastructure/db/sqlite"
)

var (
	roundStoreTypes = map[string]func(...interface{}) (domain.RoundRepository, error){
		"badger": badgerdb.NewRoundRepository,
		"sqlite": sqlitedb.NewRoundRepository,
	}
	userStoreTypes = map[string]func(...interface{}) (domain.UserRepository, error){
		"badger": badgerdb.NewUserRepository,
		"sqlite": sqlitedb.NewUserRepository,
	}
	voterStoreTypes = map[string]func(...interface{}) (domain.RoundVoterRepository, error){
		"badger": badgerdb.NewRoundVoterRepository,
		"sqlite": sqlitedb.NewRoundVoterRepository,
	}
	ballotStoreTypes = map[string]func(...interface{}) (domain.BallotRepository, error){
		"badger": badgerdb.NewBallotRepository,
		"sqlite": sqlitedb.NewBallotRepository,
	}
	applicationStoreTypes = map[string]func(...interface{}) (domain.ApplicationRepository, error){
		"badger": badgerdb.NewApplicationRepository,
		"sqlite": sqlitedb.NewApplicationRepository,
	}
	datasetStoreTypes = map[string]func(...interface{}) (domain.CustomDatasetRepository, error){
		"badger": badgerdb.NewCustomDatasetRepository,
		"sqlite": sqlitedb.NewCustomDatasetRepository,
	}
)

const sqliteDbFile = "sqlite.db"

type ServiceConfig struct {
	DataStoreType string

	// sqlite: DbDir and MigrationPath. badger: DbDir and Logger; an empty
	// DbDir opens an in-memory store.
	DbDir         string
	MigrationPath string
	Logger        badger.Logger
}

type service struct {
	roundStore       domain.RoundRepository
	userStore        domain.UserRepository
	voterStore       domain.RoundVoterRepository
	ballotStore      domain.BallotRepository
	applicationStore domain.ApplicationRepository
	datasetStore     domain.CustomDatasetRepository

	close func()
}

func NewService(config ServiceConfig) (ports.RepoManager, error) {
	var storeConfig []interface{}
	var closeStore func()

	switch config.DataStoreType {
	case "sqlite":
		database, err := sqlitedb.OpenDb(filepath.Join(config.DbDir, sqliteDbFile))
		if err != nil {
			return nil, fmt.Errorf("failed to open sqlite db: %w", err)
		}
		if err := migrateSqlite(database, config.MigrationPath); err != nil {
			return nil, fmt.Errorf("failed to migrate sqlite: %w", err)
		}
		storeConfig = []interface{}{database}
		closeStore = func() { _ = database.Close() }
	case "badger":
		store, err := badgerdb.NewStore(config.DbDir, config.Logger)
		if err != nil {
			return nil, fmt.Errorf("failed to open badger store: %w", err)
		}
		storeConfig = []interface{}{store}
		closeStore = func() { _ = store.Close() }
	default:
		return nil, fmt.Errorf("invalid data store type: %s", config.DataStoreType)
	}

	roundStore, err := roundStoreTypes[config.DataStoreType](storeConfig...)
	if err != nil {
		return nil, fmt.Errorf("failed to create round store: %w", err)
	}
	userStore, err := userStoreTypes[config.DataStoreType](storeConfig...)
	if err != nil {
		return nil, fmt.Errorf("failed to create user store: %w", err)
	}
	voterStore, err := voterStoreTypes[config.DataStoreType](storeConfig...)
	if err != nil {
		return nil, fmt.Errorf("failed to create voter store: %w", err)
	}
	ballotStore, err := ballotStoreTypes[config.DataStoreType](storeConfig...)
	if err != nil {
		return nil, fmt.Errorf("failed to create ballot store: %w", err)
	}
	applicationStore, err := applicationStoreTypes[config.DataStoreType](storeConfig...)
	if err != nil {
		return nil, fmt.Errorf("failed to create application store: %w", err)
	}
	datasetStore, err := datasetStoreTypes[config.DataStoreType](storeConfig...)
	if err != nil {
		return nil, fmt.Errorf("failed to create dataset store: %w", err)
	}

	return &service{
		roundStore:       roundStore,
		userStore:        userStore,
		voterStore:       voterStore,
		ballotStore:      ballotStore,
		applicationStore: applicationStore,
		datasetStore:     datasetStore,
		close:            closeStore,
	}, nil
}

func (s *service) Rounds() domain.RoundRepository {
	return s.roundStore
}

func (s *service) Users() domain.UserRepository {
	return s.userStore
}

func (s *service) Voters() domain.RoundVoterRepository {
	return s.voterStore
}

func (s *service) Ballots() domain.BallotRepository {
	return s.ballotStore
}

func (s *service) Applications() domain.ApplicationRepository {
	return s.applicationStore
}

func (s *service) Datasets() domain.CustomDatasetRepository {
	return s.datasetStore
}

func (s *service) Close() {
	s.close()
}

func migrateSqlite(database *sql.DB, migrationPath string) error {
	if len(migrationPath) <= 0 {
		return errors.New("missing migration path")
	}

	driver, err := sqlitemigrate.WithInstance(database, &sqlitemigrate.Config{})
	if err != nil {
		return fmt.Errorf("failed to create sqlite driver: %w", err)
	}

	m, err := migrate.NewWithDatabaseInstance(migrationPath, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to migrate up: %w", err)
	}

	return nil
}
