package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/printhub/printhub/internal/inventory"
	jobmetrics "github.com/printhub/printhub/internal/jobs"
	"github.com/printhub/printhub/internal/ledger"
)

type captureEnqueuer struct {
	tasks []*asynq.Task
	err   error
}

func (c *captureEnqueuer) EnqueueContext(_ context.Context, task *asynq.Task, _ ...asynq.Option) (*asynq.TaskInfo, error) {
	if c.err != nil {
		return nil, c.err
	}
	c.tasks = append(c.tasks, task)
	return &asynq.TaskInfo{Type: task.Type()}, nil
}

func TestMissReporterEnqueuesPayload(t *testing.T) {
	enqueuer := &captureEnqueuer{}
	reporter := NewMissReporter(enqueuer)
	at := time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)

	err := reporter.ReportMiss(context.Background(), inventory.Miss{
		ProductRef: "LEGACY-9",
		Branch:     "colombo",
		Quantity:   decimal.NewFromInt(3),
		Tried:      []string{"identity", "productId", "productCode", "catalog"},
		TaskID:     "task-1",
		At:         at,
	})
	require.NoError(t, err)
	require.Len(t, enqueuer.tasks, 1)
	require.Equal(t, TaskResolutionMiss, enqueuer.tasks[0].Type())

	var payload ResolutionMissPayload
	require.NoError(t, json.Unmarshal(enqueuer.tasks[0].Payload(), &payload))
	require.Equal(t, "LEGACY-9", payload.ProductRef)
	require.Equal(t, "3", payload.Quantity)
	require.Len(t, payload.Tried, 4)
	require.True(t, payload.At.Equal(at))

	enqueuer.err = errors.New("redis down")
	require.Error(t, reporter.ReportMiss(context.Background(), inventory.Miss{ProductRef: "X"}))
}

func TestResolutionMissJob(t *testing.T) {
	registry := prometheus.NewRegistry()
	job := NewResolutionMissJob(nil, jobmetrics.NewMetrics(registry))

	task, err := NewResolutionMissTask(inventory.Miss{ProductRef: "LEGACY-9", Branch: "colombo", Quantity: decimal.NewFromInt(1)})
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task))

	err = job.Handle(context.Background(), asynq.NewTask(TaskResolutionMiss, []byte("{")))
	require.ErrorIs(t, err, asynq.SkipRetry)
	err = job.Handle(context.Background(), asynq.NewTask(TaskResolutionMiss, []byte(`{"branch":"colombo"}`)))
	require.ErrorIs(t, err, asynq.SkipRetry)
}

func TestDeferredSweepReportsOverduePayments(t *testing.T) {
	store := ledger.NewMemoryStore()
	now := time.Date(2026, 5, 10, 12, 0, 0, 0, time.UTC)
	seed := []ledger.DeferredPayment{
		{ID: ledger.NewID(), TaskID: "t1", Branch: "colombo", Method: ledger.MethodCheque, Amount: decimal.NewFromInt(100), Status: ledger.ClearancePending, CreatedAt: now.Add(-96 * time.Hour)},
		{ID: ledger.NewID(), TaskID: "t2", Branch: "colombo", Method: ledger.MethodOnline, Amount: decimal.NewFromInt(50), Status: ledger.ClearancePending, CreatedAt: now.Add(-80 * time.Hour)},
		{ID: ledger.NewID(), TaskID: "t3", Branch: "colombo", Method: ledger.MethodCheque, Amount: decimal.NewFromInt(70), Status: ledger.ClearancePending, CreatedAt: now.Add(-time.Hour)},
		{ID: ledger.NewID(), TaskID: "t4", Branch: "colombo", Method: ledger.MethodCheque, Amount: decimal.NewFromInt(70), Status: ledger.ClearanceCleared, CreatedAt: now.Add(-200 * time.Hour)},
		{ID: ledger.NewID(), TaskID: "t5", Branch: "kandy", Method: ledger.MethodCheque, Amount: decimal.NewFromInt(30), Status: ledger.ClearancePending, CreatedAt: now.Add(-100 * time.Hour)},
	}
	require.NoError(t, store.WithTx(context.Background(), func(ctx context.Context, tx ledger.Tx) error {
		for _, payment := range seed {
			if err := tx.InsertDeferredPayment(ctx, payment); err != nil {
				return err
			}
		}
		return nil
	}))

	job := NewDeferredSweepJob(store, 72*time.Hour, nil, jobmetrics.NewMetrics(prometheus.NewRegistry()))
	job.clock = func() time.Time { return now }

	overdue, err := job.Sweep(context.Background(), "colombo")
	require.NoError(t, err)
	ids := make([]string, 0, len(overdue))
	for _, payment := range overdue {
		ids = append(ids, payment.TaskID)
	}
	require.ElementsMatch(t, []string{"t1", "t2"}, ids)

	task, err := NewDeferredSweepTask("")
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task))
	require.NoError(t, job.Handle(context.Background(), asynq.NewTask(TaskDeferredSweep, nil)))
}

type fakePruner struct {
	retention time.Duration
	err       error
}

func (f *fakePruner) Cleanup(_ context.Context, olderThan time.Duration) (int64, error) {
	f.retention = olderThan
	return 3, f.err
}

func TestIdempotencyCleanupJob(t *testing.T) {
	pruner := &fakePruner{}
	job := &IdempotencyCleanupJob{Store: pruner, Metrics: jobmetrics.NewMetrics(prometheus.NewRegistry())}

	task, err := NewIdempotencyCleanupTask(0)
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task))
	require.Equal(t, 7*24*time.Hour, pruner.retention)

	pruner.err = errors.New("db down")
	task, err = NewIdempotencyCleanupTask(time.Hour)
	require.NoError(t, err)
	require.Error(t, job.Handle(context.Background(), task))
	require.Equal(t, time.Hour, pruner.retention)
}

type fakeInspector struct {
	infos map[string]*asynq.QueueInfo
	err   error
}

func (f fakeInspector) GetQueueInfo(queue string) (*asynq.QueueInfo, error) {
	if f.err != nil {
		return nil, f.err
	}
	info, ok := f.infos[queue]
	if !ok {
		return nil, asynq.ErrQueueNotFound
	}
	return info, nil
}

func TestHealthEndpoint(t *testing.T) {
	cases := []struct {
		name      string
		inspector QueueInspector
		status    int
		enabled   bool
		pending   map[string]int
	}{
		{"disabled", nil, http.StatusOK, false, map[string]int{}},
		{
			"healthy",
			fakeInspector{infos: map[string]*asynq.QueueInfo{QueueDefault: {Queue: QueueDefault, Pending: 4}}},
			http.StatusOK, true,
			map[string]int{QueueDefault: 4, QueueMaintenance: 0},
		},
		{"unavailable", fakeInspector{err: errors.New("dial tcp")}, http.StatusServiceUnavailable, false, nil},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := chi.NewRouter()
			r.Route("/jobs", NewHandler(tc.inspector, nil).MountRoutes)
			rec := httptest.NewRecorder()
			r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/jobs/health", nil))
			require.Equal(t, tc.status, rec.Code)
			if tc.status != http.StatusOK {
				return
			}
			var body healthResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			require.Equal(t, tc.enabled, body.Enabled)
			pending := map[string]int{}
			for _, q := range body.Queues {
				pending[q.Queue] = q.Pending
			}
			require.Equal(t, tc.pending, pending)
		})
	}
}

func TestNewWorkerRejectsIncompleteRegistrations(t *testing.T) {
	_, err := NewWorker(WorkerConfig{Handlers: []TaskHandler{{Type: TaskResolutionMiss}}})
	require.Error(t, err)

	_, err = NewWorker(WorkerConfig{Cron: []CronRegistration{{Spec: "@hourly"}}})
	require.Error(t, err)
}
