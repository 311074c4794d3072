package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hibiken/asynq"

	"github.com/printhub/printhub/internal/platform/httpx"
)

// Worker runs the asynq server and, when cron entries are configured, the scheduler
// that feeds it.
type Worker struct {
	server    *asynq.Server
	mux       *asynq.ServeMux
	scheduler *asynq.Scheduler
	logger    *slog.Logger
}

// TaskHandler binds a task type to its handler.
type TaskHandler struct {
	Type    string
	Handler asynq.HandlerFunc
}

// CronRegistration schedules a prepared task on a cron expression.
type CronRegistration struct {
	Spec    string
	Task    *asynq.Task
	Options []asynq.Option
}

// WorkerConfig collects what the worker needs at startup.
type WorkerConfig struct {
	RedisOpts   asynq.RedisClientOpt
	Logger      *slog.Logger
	Concurrency int
	// Queues maps queue name to priority weight; DefaultQueues when empty.
	Queues      map[string]int
	Handlers    []TaskHandler
	Cron        []CronRegistration
}

// DefaultQueues weights API-driven tasks above housekeeping.
func DefaultQueues() map[string]int {
	return map[string]int{QueueDefault: 3, QueueMaintenance: 1}
}

// NewWorker builds the server, mux and scheduler. A handler entry missing its type or
// function is a programming error.
func NewWorker(cfg WorkerConfig) (*Worker, error) {
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 5
	}
	queues := cfg.Queues
	if len(queues) == 0 {
		queues = DefaultQueues()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	mux := asynq.NewServeMux()
	for _, h := range cfg.Handlers {
		if h.Type == "" || h.Handler == nil {
			return nil, fmt.Errorf("jobs: incomplete handler registration %q", h.Type)
		}
		mux.HandleFunc(h.Type, h.Handler)
	}

	srv := asynq.NewServer(cfg.RedisOpts, asynq.Config{
		Concurrency:  concurrency,
		Queues:       queues,
		ErrorHandler: asynq.ErrorHandlerFunc(reportFailure(logger)),
	})

	var scheduler *asynq.Scheduler
	if len(cfg.Cron) > 0 {
		scheduler = asynq.NewScheduler(cfg.RedisOpts, &asynq.SchedulerOpts{Location: time.UTC})
		for _, entry := range cfg.Cron {
			if entry.Spec == "" || entry.Task == nil {
				return nil, fmt.Errorf("jobs: incomplete cron registration %q", entry.Spec)
			}
			if _, err := scheduler.Register(entry.Spec, entry.Task, entry.Options...); err != nil {
				return nil, fmt.Errorf("jobs: register cron %s for %s: %w", entry.Spec, entry.Task.Type(), err)
			}
		}
	}

	return &Worker{server: srv, mux: mux, scheduler: scheduler, logger: logger}, nil
}

// reportFailure logs failed runs. Skipped payloads go to the archive without retries,
// so they are logged at warn; retryable failures carry the attempt count.
func reportFailure(logger *slog.Logger) func(context.Context, *asynq.Task, error) {
	return func(ctx context.Context, task *asynq.Task, err error) {
		if errors.Is(err, asynq.SkipRetry) {
			logger.Warn("job skipped", slog.String("type", task.Type()), slog.Any("error", err))
			return
		}
		retried, _ := asynq.GetRetryCount(ctx)
		maxRetry, _ := asynq.GetMaxRetry(ctx)
		logger.Error("job failed",
			slog.String("type", task.Type()),
			slog.Int("retried", retried),
			slog.Int("max_retry", maxRetry),
			slog.Any("error", err))
	}
}

// Run processes tasks until ctx is cancelled or the server stops on its own.
func (w *Worker) Run(ctx context.Context) error {
	if w == nil {
		return errors.New("jobs: worker not configured")
	}
	if w.scheduler != nil {
		if err := w.scheduler.Start(); err != nil {
			return fmt.Errorf("jobs: start scheduler: %w", err)
		}
		defer w.scheduler.Shutdown()
	}
	if err := w.server.Start(w.mux); err != nil {
		return fmt.Errorf("jobs: start server: %w", err)
	}
	w.logger.Info("worker started")
	<-ctx.Done()
	w.server.Shutdown()
	w.logger.Info("worker stopped")
	return ctx.Err()
}

// Client submits jobs to the queue.
type Client struct {
	client *asynq.Client
}

// NewClient constructs an Asynq client.
func NewClient(redisOpts asynq.RedisClientOpt) *Client {
	return &Client{client: asynq.NewClient(redisOpts)}
}

// EnqueueContext submits task to the default queue unless opts name another.
func (c *Client) EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	opts = append([]asynq.Option{asynq.Queue(QueueDefault)}, opts...)
	return c.client.EnqueueContext(ctx, task, opts...)
}

// Close releases client resources.
func (c *Client) Close() error {
	return c.client.Close()
}

// QueueInspector reports queue depth; *asynq.Inspector satisfies it.
type QueueInspector interface {
	GetQueueInfo(queue string) (*asynq.QueueInfo, error)
}

// Handler serves queue health for operators.
type Handler struct {
	inspector QueueInspector
	queues    []string
	logger    *slog.Logger
}

// NewHandler constructs the jobs HTTP handler. inspector is nil when jobs are disabled.
func NewHandler(inspector QueueInspector, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{inspector: inspector, queues: []string{QueueDefault, QueueMaintenance}, logger: logger}
}

// MountRoutes attaches job routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/health", h.health)
}

type queueHealth struct {
	Queue   string `json:"queue"`
	Pending int    `json:"pending"`
	Active  int    `json:"active"`
	Retry   int    `json:"retry"`
	Paused  bool   `json:"paused"`
}

type healthResponse struct {
	Enabled bool          `json:"enabled"`
	Queues  []queueHealth `json:"queues"`
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	if h.inspector == nil {
		httpx.JSON(w, http.StatusOK, healthResponse{Queues: []queueHealth{}})
		return
	}
	resp := healthResponse{Enabled: true, Queues: make([]queueHealth, 0, len(h.queues))}
	for _, queue := range h.queues {
		info, err := h.inspector.GetQueueInfo(queue)
		if errors.Is(err, asynq.ErrQueueNotFound) {
			resp.Queues = append(resp.Queues, queueHealth{Queue: queue})
			continue
		}
		if err != nil {
			h.logger.Warn("jobs health", slog.String("queue", queue), slog.Any("error", err))
			httpx.Problem(w, http.StatusServiceUnavailable, "queue "+queue+" unavailable")
			return
		}
		resp.Queues = append(resp.Queues, queueHealth{
			Queue:   queue,
			Pending: info.Pending,
			Active:  info.Active,
			Retry:   info.Retry,
			Paused:  info.Paused,
		})
	}
	httpx.JSON(w, http.StatusOK, resp)
}
