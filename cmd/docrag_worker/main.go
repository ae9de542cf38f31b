package main

import (
	"context"
	"log"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/urfave/cli/v3"
	"go.uber.org/zap"

	"github.com/flarexio/docrag"
	"github.com/flarexio/docrag/internal/bootstrap"

	asynqQ "github.com/flarexio/docrag/queue/asynq"
)

func main() {
	godotenv.Load()

	flags := append(bootstrap.Flags(),
		&cli.IntFlag{
			Name:  "concurrency",
			Usage: "Number of documents ingested concurrently, defaults to ingestion.workers",
		},
		&cli.BoolFlag{
			Name:  "preload",
			Usage: "Load the embedding model before consuming tasks",
			Value: true,
		},
	)

	cmd := &cli.Command{
		Name:   "docrag_worker",
		Usage:  "DocRAG ingestion worker",
		Flags:  flags,
		Action: run,
	}

	err := cmd.Run(context.Background(), os.Args)
	if err != nil {
		log.Fatal(err.Error())
	}
}

func run(ctx context.Context, cmd *cli.Command) error {
	path := cmd.String("path")
	if path == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return err
		}

		path = filepath.Join(homeDir, ".flarex", "docrag")
	}

	log, err := zap.NewDevelopment()
	if err != nil {
		return err
	}
	defer log.Sync()

	zap.ReplaceGlobals(log)

	cfg, err := bootstrap.LoadConfig(cmd, path)
	if err != nil {
		return err
	}

	// the worker never dispatches, it processes what the server enqueued
	svc, provider, err := bootstrap.Service(ctx, cfg, nil)
	if err != nil {
		return err
	}
	defer svc.Close()

	if cmd.Bool("preload") {
		if err := provider.Preload(ctx); err != nil {
			return err
		}
	}

	svc = docrag.LoggingMiddleware(log)(svc)

	concurrency := int(cmd.Int("concurrency"))
	if concurrency <= 0 {
		concurrency = cfg.Ingestion.Workers
	}

	srv := asynqQ.NewServer(bootstrap.AsynqConfig(cfg.Ingestion), concurrency)
	mux := asynqQ.NewServeMux(docrag.IngestHandler(svc))

	log.Info("worker started",
		zap.String("redis", cfg.Ingestion.Redis.Addr),
		zap.Int("concurrency", concurrency),
	)

	// Run blocks until SIGTERM or SIGINT
	return srv.Run(mux)
}
