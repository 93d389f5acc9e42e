package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/viper"

	"github.com/retrofund/retrofund/internal/core/application"
	"github.com/retrofund/retrofund/internal/core/ports"
	"github.com/retrofund/retrofund/internal/infrastructure/clock"
	"github.com/retrofund/retrofund/internal/infrastructure/db"
)

var supportedDbs = supportedType{
	"badger": {},
	"sqlite": {},
}

type Config struct {
	Datadir          string
	Port             uint32
	LogLevel         int
	EnableTestingApi bool

	DbType          string
	DbDir           string
	DbMigrationPath string

	repo     ports.RepoManager
	clock    ports.Clock
	svc      application.Service
	adminSvc application.AdminService
}

func (c *Config) String() string {
	json, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Sprintf("error while marshalling config JSON: %s", err)
	}
	return string(json)
}

var (
	Datadir          = "DATADIR"
	Port             = "PORT"
	DbType           = "DB_TYPE"
	DbMigrationPath  = "DB_MIGRATION_PATH"
	LogLevel         = "LOG_LEVEL"
	EnableTestingApi = "ENABLE_TESTING_API"

	defaultDatadir          = "./data"
	DefaultPort             = 7080
	defaultDbType           = "sqlite"
	defaultDbMigrationPath  = "file://internal/infrastructure/db/sqlite/migration"
	defaultLogLevel         = 4
	defaultEnableTestingApi = false
)

func LoadConfig() (*Config, error) {
	viper.SetEnvPrefix("RETROFUND")
	viper.AutomaticEnv()

	viper.SetDefault(Datadir, defaultDatadir)
	viper.SetDefault(Port, DefaultPort)
	viper.SetDefault(DbType, defaultDbType)
	viper.SetDefault(DbMigrationPath, defaultDbMigrationPath)
	viper.SetDefault(LogLevel, defaultLogLevel)
	viper.SetDefault(EnableTestingApi, defaultEnableTestingApi)

	if err := initDatadir(); err != nil {
		return nil, fmt.Errorf("error while creating datadir: %s", err)
	}

	return &Config{
		Datadir:          viper.GetString(Datadir),
		Port:             viper.GetUint32(Port),
		DbType:           viper.GetString(DbType),
		DbDir:            filepath.Join(viper.GetString(Datadir), "db"),
		DbMigrationPath:  viper.GetString(DbMigrationPath),
		LogLevel:         viper.GetInt(LogLevel),
		EnableTestingApi: viper.GetBool(EnableTestingApi),
	}, nil
}

func initDatadir() error {
	datadir := viper.GetString(Datadir)
	return makeDirectoryIfNotExists(datadir)
}

func makeDirectoryIfNotExists(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return os.MkdirAll(path, os.ModeDir|0755)
	}
	return nil
}

func (c *Config) Validate() error {
	if !supportedDbs.supports(c.DbType) {
		return fmt.Errorf("db type not supported, please select one of: %s", supportedDbs)
	}
	if c.Port <= 0 {
		return fmt.Errorf("invalid port")
	}

	if err := c.repoManager(); err != nil {
		return err
	}
	c.clock = clock.NewSystemClock()
	if err := c.appService(); err != nil {
		return err
	}
	if err := c.adminService(); err != nil {
		return err
	}
	return nil
}

func (c *Config) AppService() application.Service {
	return c.svc
}

func (c *Config) AdminService() application.AdminService {
	return c.adminSvc
}

func (c *Config) RepoManager() ports.RepoManager {
	return c.repo
}

func (c *Config) repoManager() error {
	svc, err := db.NewService(db.ServiceConfig{
		DataStoreType: c.DbType,
		DbDir:         c.DbDir,
		MigrationPath: c.DbMigrationPath,
		Logger:        log.New(),
	})
	if err != nil {
		return err
	}

	c.repo = svc
	return nil
}

func (c *Config) appService() error {
	c.svc = application.NewService(c.repo, c.clock)
	return nil
}

func (c *Config) adminService() error {
	c.adminSvc = application.NewAdminService(c.repo, c.clock)
	return nil
}

type supportedType map[string]struct{}

func (t supportedType) String() string {
	types := make([]string, 0, len(t))
	for tt := range t {
		types = append(types, tt)
	}
	return strings.Join(types, " | ")
}

func (t supportedType) supports(typeStr string) bool {
	_, ok := t[typeStr]
	return ok
}
