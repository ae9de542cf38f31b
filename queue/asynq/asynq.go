package asynq

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"github.com/flarexio/docrag"
)

const (
	TypeIngestDocument = "document:ingest"
	DefaultQueue       = "default"
)

type Config struct {
	Redis   asynq.RedisClientOpt
	Queue   string
	Timeout time.Duration
}

// NewTask encodes job as an ingestion task. Tasks are never retried; a failed
// ingestion is reported and left for the caller to resubmit.
func NewTask(job docrag.IngestJob, queue string, timeout time.Duration) (*asynq.Task, error) {
	payload, err := json.Marshal(job)
	if err != nil {
		return nil, err
	}

	if queue == "" {
		queue = DefaultQueue
	}

	opts := []asynq.Option{
		asynq.MaxRetry(0),
		asynq.Queue(queue),
		asynq.TaskID(uuid.NewString()),
	}

	if timeout > 0 {
		opts = append(opts, asynq.Timeout(timeout))
	}

	return asynq.NewTask(TypeIngestDocument, payload, opts...), nil
}

func NewDispatcher(cfg Config) *Dispatcher {
	return &Dispatcher{
		client: asynq.NewClient(cfg.Redis),
		cfg:    cfg,
		log: zap.L().With(
			zap.String("component", "dispatcher"),
			zap.String("queue", "asynq"),
		),
	}
}

// Dispatcher enqueues ingestion jobs on Redis for cmd/docrag_worker.
type Dispatcher struct {
	client *asynq.Client
	cfg    Config
	log    *zap.Logger
}

func (d *Dispatcher) Dispatch(ctx context.Context, job docrag.IngestJob) error {
	task, err := NewTask(job, d.cfg.Queue, d.cfg.Timeout)
	if err != nil {
		return err
	}

	info, err := d.client.EnqueueContext(ctx, task)
	if err != nil {
		return err
	}

	d.log.Debug("job enqueued",
		zap.String("job_id", info.ID),
		zap.String("queue", info.Queue),
		zap.Int64("document_id", job.DocumentID),
	)

	return nil
}

func (d *Dispatcher) Close() error {
	return d.client.Close()
}

// HandleIngest adapts a JobHandler to an asynq handler.
func HandleIngest(handler docrag.JobHandler) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		var job docrag.IngestJob
		if err := json.Unmarshal(t.Payload(), &job); err != nil {
			return fmt.Errorf("decoding %s payload: %v: %w", t.Type(), err, asynq.SkipRetry)
		}

		return handler(ctx, job)
	}
}

func NewServeMux(handler docrag.JobHandler) *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.HandleFunc(TypeIngestDocument, HandleIngest(handler))
	return mux
}

// NewServer builds a worker server consuming the configured queue.
func NewServer(cfg Config, concurrency int) *asynq.Server {
	queue := cfg.Queue
	if queue == "" {
		queue = DefaultQueue
	}

	log := zap.L().With(
		zap.String("component", "worker"),
		zap.String("queue", queue),
	)

	return asynq.NewServer(cfg.Redis, asynq.Config{
		Concurrency: concurrency,
		Queues: map[string]int{
			queue: 1,
		},
		ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
			log.Error(err.Error(), zap.String("type", task.Type()))
		}),
		Logger: log.Sugar(),
	})
}
