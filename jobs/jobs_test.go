package jobs

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pharmaops/pharmaops/internal/inventory"
)

type observation struct {
	task string
	err  error
}

type recordingObserver struct {
	runs []observation
}

func (r *recordingObserver) ObserveJob(task string, err error) {
	r.runs = append(r.runs, observation{task: task, err: err})
}

type fakeWarmer struct {
	calls int
	err   error
}

func (f *fakeWarmer) Warmup(context.Context) error {
	f.calls++
	return f.err
}

func TestReportsWarmupJob(t *testing.T) {
	warmer := &fakeWarmer{}
	obs := &recordingObserver{}
	job := NewReportsWarmupJob(warmer, nil, obs)

	task, err := NewReportsWarmupTask("cron")
	require.NoError(t, err)
	require.Equal(t, TaskReportsWarmup, task.Type())
	require.NoError(t, job.Handle(context.Background(), task))
	assert.Equal(t, 1, warmer.calls)

	warmer.err = errors.New("redis down")
	err = job.Handle(context.Background(), task)
	require.ErrorIs(t, err, warmer.err)

	require.Len(t, obs.runs, 2)
	assert.NoError(t, obs.runs[0].err)
	assert.Error(t, obs.runs[1].err)
}

func TestMalformedPayloadSkipsRetry(t *testing.T) {
	obs := &recordingObserver{}
	job := NewReportsWarmupJob(&fakeWarmer{}, nil, obs)
	err := job.Handle(context.Background(), asynq.NewTask(TaskReportsWarmup, []byte("{not json")))
	require.ErrorIs(t, err, asynq.SkipRetry)
	require.Len(t, obs.runs, 1)
}

type fakeStock struct {
	levels []inventory.StockLevel
	lowArg bool
}

func (f *fakeStock) StockLevels(_ context.Context, lowOnly bool) ([]inventory.StockLevel, error) {
	f.lowArg = lowOnly
	return f.levels, nil
}

type fakeGauge struct{ value int }

func (g *fakeGauge) SetLowStock(n int) { g.value = n }

func TestLowStockScanSetsGauge(t *testing.T) {
	stock := &fakeStock{levels: []inventory.StockLevel{
		{StockItemID: 1, Name: "Amoxicillin", Quantity: 2, ReorderLevel: 10, LowStock: true},
		{StockItemID: 4, Name: "Cetirizine", Quantity: 0, ReorderLevel: 5, LowStock: true},
	}}
	gauge := &fakeGauge{value: -1}
	obs := &recordingObserver{}
	task, err := NewLowStockScanTask()
	require.NoError(t, err)

	require.NoError(t, NewLowStockScanJob(stock, gauge, nil, obs).Handle(context.Background(), task))
	assert.True(t, stock.lowArg)
	assert.Equal(t, 2, gauge.value)
	require.Len(t, obs.runs, 1)
	assert.Equal(t, TaskLowStockScan, obs.runs[0].task)
}

type fakeCleaner struct {
	olderThan time.Duration
}

func (f *fakeCleaner) Cleanup(_ context.Context, olderThan time.Duration) (int64, error) {
	f.olderThan = olderThan
	return 7, nil
}

func TestIdempotencyCleanupRetention(t *testing.T) {
	cleaner := &fakeCleaner{}
	job := NewIdempotencyCleanupJob(cleaner, nil, nil)

	task, err := NewIdempotencyCleanupTask(DefaultIdempotencyRetention)
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task))
	assert.Equal(t, 72*time.Hour, cleaner.olderThan)

	task, err = NewIdempotencyCleanupTask(24 * time.Hour)
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task))
	assert.Equal(t, 24*time.Hour, cleaner.olderThan)

	require.NoError(t, job.Handle(context.Background(), asynq.NewTask(TaskIdempotencyCleanup, nil)))
	assert.Equal(t, DefaultIdempotencyRetention, cleaner.olderThan)
}

func TestUnconfiguredJobsFail(t *testing.T) {
	task, _ := NewLowStockScanTask()
	assert.Error(t, (&LowStockScanJob{}).Handle(context.Background(), task))
	assert.Error(t, (&IdempotencyCleanupJob{}).Handle(context.Background(), task))
	assert.Error(t, (&ReportsWarmupJob{}).Handle(context.Background(), task))
}

type fakeEnqueuer struct {
	tasks []*asynq.Task
	err   error
}

func (f *fakeEnqueuer) EnqueueContext(_ context.Context, task *asynq.Task, _ ...asynq.Option) (*asynq.TaskInfo, error) {
	f.tasks = append(f.tasks, task)
	if f.err != nil {
		return nil, f.err
	}
	return &asynq.TaskInfo{Type: task.Type(), Queue: QueueDefault}, nil
}

type fakeCache struct {
	calls int
	err   error
}

func (f *fakeCache) Invalidate(context.Context) error {
	f.calls++
	return f.err
}

func TestWarmingInvalidator(t *testing.T) {
	cache := &fakeCache{}
	enq := &fakeEnqueuer{}
	inv := WarmingInvalidator{Cache: cache, Client: NewClientWith(enq)}

	require.NoError(t, inv.Invalidate(context.Background()))
	assert.Equal(t, 1, cache.calls)
	require.Len(t, enq.tasks, 1)
	assert.Equal(t, TaskReportsWarmup, enq.tasks[0].Type())

	enq.err = asynq.ErrDuplicateTask
	require.NoError(t, inv.Invalidate(context.Background()))

	enq.err = errors.New("redis unavailable")
	require.NoError(t, inv.Invalidate(context.Background()), "enqueue failures are not fatal")

	cache.err = errors.New("bump failed")
	require.Error(t, inv.Invalidate(context.Background()))
}

type fakeInspector struct {
	info *asynq.QueueInfo
	err  error
}

func (f fakeInspector) GetQueueInfo(string) (*asynq.QueueInfo, error) {
	return f.info, f.err
}

func TestHealthHandler(t *testing.T) {
	serve := func(h *Handler) *httptest.ResponseRecorder {
		r := chi.NewRouter()
		r.Route("/jobs", h.MountRoutes)
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/jobs/health", nil))
		return rec
	}

	rec := serve(NewHandler(fakeInspector{info: &asynq.QueueInfo{Queue: QueueDefault, Pending: 3, Retry: 1}}, nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"queue":"default","pending":3,"retry":1}`, rec.Body.String())

	rec = serve(NewHandler(fakeInspector{err: errors.New("redis down")}, nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
