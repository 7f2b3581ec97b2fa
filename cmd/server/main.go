// cmd/server/main.go
package main

import (
	"context"
	"errors"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jason-s-yu/rally/internal/auth"
	"github.com/jason-s-yu/rally/internal/cache"
	"github.com/jason-s-yu/rally/internal/config"
	"github.com/jason-s-yu/rally/internal/coordinator"
	"github.com/jason-s-yu/rally/internal/database"
	"github.com/jason-s-yu/rally/internal/handlers"
	"github.com/jason-s-yu/rally/internal/live"
	"github.com/jason-s-yu/rally/internal/memstore"
	"github.com/jason-s-yu/rally/internal/metrics"
	"github.com/jason-s-yu/rally/internal/reservation"
	"github.com/jason-s-yu/rally/internal/schedule"
	_ "github.com/joho/godotenv/autoload"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
)

// store is everything the two services need from persistence.
type store interface {
	reservation.Store
	coordinator.Store
}

func main() {
	logger := logrus.New()

	app := &cli.App{
		Name:  "rally",
		Usage: "round-robin session scheduling service",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Value:   "config.yaml",
				Usage:   "path to the configuration file",
				EnvVars: []string{"RALLY_CONFIG"},
			},
		},
		Commands: []*cli.Command{
			{
				Name:  "serve",
				Usage: "run the HTTP API",
				Action: func(c *cli.Context) error {
					cfg, err := loadConfig(c, logger)
					if err != nil {
						return err
					}
					return serve(c.Context, cfg, logger)
				},
			},
			{
				Name:  "migrate",
				Usage: "create or update the database schema",
				Action: func(c *cli.Context) error {
					cfg, err := loadConfig(c, logger)
					if err != nil {
						return err
					}
					pool, err := database.ConnectDB(c.Context, cfg.Postgres.DSN)
					if err != nil {
						return err
					}
					defer pool.Close()
					if err := database.Migrate(c.Context, pool); err != nil {
						return err
					}
					logger.Info("schema is up to date")
					return nil
				},
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		logger.Fatal(err)
	}
}

func loadConfig(c *cli.Context, logger *logrus.Logger) (*config.Config, error) {
	cfg, err := config.LoadConfig(c.String("config"))
	if err != nil {
		return nil, err
	}
	logger.SetLevel(cfg.Level())
	return cfg, nil
}

func serve(ctx context.Context, cfg *config.Config, logger *logrus.Logger) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	var st store
	switch cfg.Storage {
	case config.StorageMemory:
		logger.Warn("using in-memory storage; data is lost on restart")
		st = memstore.New()
	default:
		pool, err := database.ConnectDB(ctx, cfg.Postgres.DSN)
		if err != nil {
			return err
		}
		defer pool.Close()
		st = database.New(pool)
		logger.Info("connected to database")
	}

	var activity reservation.ActivityPublisher
	rdb, err := cache.ConnectRedis(ctx, cfg.Redis.Addr, cfg.Redis.DB)
	if err != nil {
		logger.WithError(err).Warn("activity queue unavailable; session activity will not be recorded")
	} else {
		defer rdb.Close()
		activity = cache.NewActivityQueue(rdb, cfg.Redis.ActivityQueue)
	}

	authenticator, err := newAuthenticator(cfg)
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	gen := schedule.NewRandom()
	if cfg.Schedule.Seed != 0 {
		gen = schedule.New(rand.NewSource(cfg.Schedule.Seed))
	}

	hub := live.NewHub(logger)
	srv := &handlers.Server{
		Reservations:   reservation.NewService(st, activity, m, logger),
		Coordinator:    coordinator.NewService(st, gen, activity, hub, m, logger),
		Auth:           authenticator,
		Hub:            hub,
		Gatherer:       reg,
		Logger:         logger,
		AllowedOrigins: cfg.AllowedOrigins,
	}

	httpServer := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           srv.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Infof("Running on %s", httpServer.Addr)
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}

func newAuthenticator(cfg *config.Config) (*auth.Authenticator, error) {
	if cfg.Auth.PrivateKeyPath != "" {
		return auth.NewFromPath(cfg.Auth.PrivateKeyPath, cfg.Auth.PublicKeyPath, cfg.Auth.TokenTTL)
	}
	return auth.New(cfg.Auth.TokenTTL)
}
