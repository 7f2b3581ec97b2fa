// cmd/historian/main.go is an asynchronous historian service that pops session activity
// from a Redis queue and persists it to PostgreSQL.
package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/jason-s-yu/rally/internal/cache"
	"github.com/jason-s-yu/rally/internal/config"
	"github.com/jason-s-yu/rally/internal/database"
	"github.com/jason-s-yu/rally/internal/historian"
	_ "github.com/joho/godotenv/autoload"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
)

func main() {
	logger := logrus.New()

	app := &cli.App{
		Name:  "rally-historian",
		Usage: "persist queued session activity",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Value:   "config.yaml",
				Usage:   "path to the configuration file",
				EnvVars: []string{"RALLY_CONFIG"},
			},
		},
		Action: func(c *cli.Context) error {
			cfg, err := config.LoadConfig(c.String("config"))
			if err != nil {
				return err
			}
			logger.SetLevel(cfg.Level())

			ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
			defer stop()

			pool, err := database.ConnectDB(ctx, cfg.Postgres.DSN)
			if err != nil {
				return err
			}
			defer pool.Close()

			rdb, err := cache.ConnectRedis(ctx, cfg.Redis.Addr, cfg.Redis.DB)
			if err != nil {
				return err
			}
			defer rdb.Close()

			queue := cache.NewActivityQueue(rdb, cfg.Redis.ActivityQueue)
			logger.WithField("queue", queue.Name()).Info("draining activity queue")

			h := historian.New(queue, database.New(pool), logger, historian.Options{
				BatchSize:  cfg.Historian.BatchSize,
				FlushDelay: cfg.Historian.FlushDelay,
			})
			h.Run(ctx)
			return nil
		},
	}

	if err := app.Run(os.Args); err != nil {
		logger.Fatal(err)
	}
}
