package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/micro"
	"github.com/urfave/cli/v3"
	"go.uber.org/zap"

	"github.com/flarexio/docrag"
	"github.com/flarexio/docrag/internal/bootstrap"
	"github.com/flarexio/docrag/queue/local"

	mcpE "github.com/flarexio/docrag/mcp"
	asynqQ "github.com/flarexio/docrag/queue/asynq"
	httpT "github.com/flarexio/docrag/transport/http"
	natsT "github.com/flarexio/docrag/transport/nats"
)

func main() {
	godotenv.Load()

	flags := append(bootstrap.Flags(),
		&cli.StringFlag{
			Name:    "nats",
			Usage:   "NATS server URL",
			Value:   "wss://nats.flarex.io",
			Sources: cli.EnvVars("NATS_URL"),
		},
		&cli.BoolFlag{
			Name:  "http",
			Usage: "Enable HTTP transport",
			Value: false,
		},
		&cli.StringFlag{
			Name:  "http-addr",
			Usage: "HTTP server address",
			Value: ":8080",
		},
		&cli.BoolFlag{
			Name:  "preload",
			Usage: "Load the embedding model before serving",
		},
		&cli.BoolFlag{
			Name:  "production",
			Usage: "Use production logging",
		},
	)

	cmd := &cli.Command{
		Name:   "docrag",
		Usage:  "DocRAG service",
		Flags:  flags,
		Action: run,
	}

	err := cmd.Run(context.Background(), os.Args)
	if err != nil {
		log.Fatal(err.Error())
	}
}

func run(ctx context.Context, cmd *cli.Command) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	path := cmd.String("path")
	if path == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return err
		}

		path = filepath.Join(homeDir, ".flarex", "docrag")
	}

	newLogger := zap.NewDevelopment
	if cmd.Bool("production") {
		newLogger = zap.NewProduction
	}

	log, err := newLogger()
	if err != nil {
		return err
	}
	defer log.Sync()

	zap.ReplaceGlobals(log)

	cfg, err := bootstrap.LoadConfig(cmd, path)
	if err != nil {
		return err
	}

	var (
		dispatcher docrag.Dispatcher
		workers    *local.Dispatcher
	)

	switch cfg.Ingestion.Queue {
	case docrag.QueueAsynq:
		d := asynqQ.NewDispatcher(bootstrap.AsynqConfig(cfg.Ingestion))
		defer d.Close()

		dispatcher = d

	default:
		workers = local.NewDispatcher(cfg.Ingestion.Workers, cfg.Ingestion.TaskTimeout.Duration())
		dispatcher = workers
	}

	svc, provider, err := bootstrap.Service(ctx, cfg, dispatcher)
	if err != nil {
		return err
	}
	defer svc.Close()

	if cmd.Bool("preload") {
		if err := provider.Preload(ctx); err != nil {
			return err
		}

		log.Info("embedding model loaded", zap.String("model", cfg.Embedding.Model))
	}

	svc = docrag.LoggingMiddleware(log)(svc)

	if workers != nil {
		workers.Run(ctx, docrag.IngestHandler(svc))
		defer workers.Close()
	}

	endpoints := docrag.MakeEndpointSet(svc)

	// Add NATS Transport
	idBytes, err := os.ReadFile(filepath.Join(path, "id"))
	switch {
	case err == nil:
		edgeID := strings.TrimSpace(string(idBytes))

		opts := []nats.Option{
			nats.Name("DocRAG Server - " + edgeID),
		}

		natsCreds := filepath.Join(path, "user.creds")
		if _, err := os.Stat(natsCreds); err == nil {
			opts = append(opts, nats.UserCredentials(natsCreds))
		}

		nc, err := nats.Connect(cmd.String("nats"), opts...)
		if err != nil {
			return err
		}
		defer nc.Drain()

		srv, err := micro.AddService(nc, micro.Config{
			Name:    "docrag",
			Version: "1.0.0",
		})

		if err != nil {
			return err
		}
		defer srv.Stop()

		topic := "edges." + edgeID + ".docrag"

		root := srv.AddGroup(topic)
		natsT.AddEndpoints(root, endpoints)

		log.Info("nats transport enabled", zap.String("topic", topic))

	case errors.Is(err, os.ErrNotExist):
		log.Info("edge id not found, nats transport disabled")

	default:
		return err
	}

	if cmd.Bool("http") {
		r := gin.Default()
		httpT.AddRouters(r, endpoints)
		httpT.AddStreamableRouters(r, mcpE.MakeEndpoints(svc))

		httpAddr := cmd.String("http-addr")
		go r.Run(httpAddr)
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	sign := <-quit

	log.Info("graceful shutdown", zap.String("signal", sign.String()))
	return nil
}
