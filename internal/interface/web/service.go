package web

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"

	"github.com/retrofund/retrofund/internal/core/application"
)

type Config struct {
	Port uint32

	// EnableTestingApi exposes the phase override endpoint. Never enable
	// it outside test fixtures.
	EnableTestingApi bool
}

type Service struct {
	config Config
	server *http.Server
}

func NewService(
	config Config, appSvc application.Service, adminSvc application.AdminService,
) *Service {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	h := &handler{appSvc: appSvc, adminSvc: adminSvc}

	v1 := router.Group("/v1", identityMiddleware())

	v1.POST("/rounds", h.createRound)
	v1.GET("/rounds", h.listRounds)
	v1.GET("/rounds/slug/:slug", h.getRoundBySlug)
	v1.GET("/rounds/:roundId", h.getRound)
	v1.PUT("/rounds/:roundId", h.updateRound)
	v1.POST("/rounds/:roundId/publish", h.publishRound)

	v1.GET("/rounds/:roundId/voters", h.getRoundVoters)
	v1.PUT("/rounds/:roundId/voters", h.setRoundVoters)

	v1.POST("/rounds/:roundId/ballots", h.castBallot)
	v1.GET("/rounds/:roundId/ballots/me", h.getOwnBallot)
	v1.GET("/rounds/:roundId/ballots", h.listRoundBallots)

	v1.GET("/rounds/:roundId/results", h.getResults)
	v1.POST("/rounds/:roundId/results/import", h.importResults)

	v1.POST("/rounds/:roundId/applications", h.submitApplication)
	v1.GET("/rounds/:roundId/applications", h.listRoundApplications)
	v1.GET("/applications/:applicationId", h.getApplication)

	v1.GET("/rounds/:roundId/datasets", h.listRoundDatasets)
	v1.POST("/rounds/:roundId/datasets", h.createDataset)
	v1.POST("/datasets/:datasetId/rows", h.uploadDatasetRows)
	v1.PATCH("/datasets/:datasetId", h.setDatasetVisibility)

	if config.EnableTestingApi {
		v1.POST("/testing/rounds/:slug/phase", h.setPhaseOverride)
		log.Warn("testing api enabled, phase overrides are exposed over http")
	}

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return &Service{
		config: config,
		server: &http.Server{
			Addr:    fmt.Sprintf(":%d", config.Port),
			Handler: router,
		},
	}
}

func (s *Service) Start() {
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Fatal("web service exited")
		}
	}()
	log.Infof("started listening at %s", s.server.Addr)
}

func (s *Service) Stop() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	// nolint:all
	s.server.Shutdown(ctx)
	log.Info("stopped web service")
}

// Router exposes the configured handler for tests.
func (s *Service) Router() http.Handler {
	return s.server.Handler
}
