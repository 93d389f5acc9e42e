package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	"github.com/retrofund/retrofund/internal/config"
	"github.com/retrofund/retrofund/internal/interface/web"
)

//nolint:all
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	// A missing .env file is fine, the environment wins anyway.
	_ = godotenv.Load()

	app := &cli.App{
		Name:    "retrofundd",
		Usage:   "retroactive public goods funding round daemon",
		Version: version,
		Action:  serveAction,
		Commands: []*cli.Command{
			configCmd,
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func serveAction(_ *cli.Context) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.WithError(err).Fatal("invalid config")
	}

	log.SetLevel(log.Level(cfg.LogLevel))

	if err := cfg.Validate(); err != nil {
		log.WithError(err).Fatal("failed to initialize services")
	}

	svc := web.NewService(web.Config{
		Port:             cfg.Port,
		EnableTestingApi: cfg.EnableTestingApi,
	}, cfg.AppService(), cfg.AdminService())

	log.RegisterExitHandler(svc.Stop)
	log.RegisterExitHandler(cfg.RepoManager().Close)

	log.Info("starting service...")
	svc.Start()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGINT, syscall.SIGQUIT, os.Interrupt)
	<-sigChan

	log.Info("shutting down service...")
	log.Exit(0)
	return nil
}
