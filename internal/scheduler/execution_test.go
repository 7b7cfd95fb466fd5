package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/samestrin/diskbalancer/internal/logging"
)

type fakeExecutionStore struct {
	mu         sync.Mutex
	stored     []ScheduleExecution
	updated    []ScheduleExecution
	deleteArgs []time.Time
}

func (f *fakeExecutionStore) StoreExecution(ctx context.Context, e ScheduleExecution) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stored = append(f.stored, e)
	return nil
}

func (f *fakeExecutionStore) UpdateExecution(ctx context.Context, e ScheduleExecution) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updated = append(f.updated, e)
	return nil
}

func (f *fakeExecutionStore) ListRunning(ctx context.Context) ([]ScheduleExecution, error) {
	return nil, nil
}

func (f *fakeExecutionStore) DeleteExecutionsOlderThan(ctx context.Context, cutoff time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleteArgs = append(f.deleteArgs, cutoff)
	return nil
}

type fakeRunner struct {
	mu    sync.Mutex
	calls int
}

func (f *fakeRunner) Run(ctx context.Context, cfg ScheduleConfig, attempt int) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return 1234, nil
}

func (f *fakeRunner) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func newTestScheduler(t *testing.T) (*Scheduler, *fakeExecutionStore, *fakeRunner) {
	t.Helper()
	store, err := NewConfigStore(t.TempDir())
	require.NoError(t, err)
	reg := &fakeRegistry{}
	execStore := &fakeExecutionStore{}
	runner := &fakeRunner{}
	s := New(store, reg, logging.Nop(), WithExecutionStore(execStore), WithRunner(runner))
	s.ctx = context.Background()
	return s, execStore, runner
}

func TestStartExecutionRecordsRunningState(t *testing.T) {
	s, execStore, _ := newTestScheduler(t)

	exec, err := s.StartExecution(context.Background(), "sched1", 100, 1)
	require.NoError(t, err)
	assert.Equal(t, StatusRunning, exec.Status)
	assert.Len(t, execStore.stored, 1)
}

func TestCompleteExecutionSuccessResetsFailureCount(t *testing.T) {
	s, execStore, _ := newTestScheduler(t)
	require.NoError(t, s.configs.Save(ScheduleConfig{ID: "sched1", Name: "S", CronExpr: "* * * * *", ConsecutiveFailures: 2}))

	exec, err := s.StartExecution(context.Background(), "sched1", 100, 1)
	require.NoError(t, err)

	require.NoError(t, s.CompleteExecution(context.Background(), exec.ID, 0, 10, 1000, ""))
	require.Len(t, execStore.updated, 1)
	assert.Equal(t, StatusSuccess, execStore.updated[0].Status)

	cfg, err := s.configs.Load("sched1")
	require.NoError(t, err)
	assert.Equal(t, 0, cfg.ConsecutiveFailures)
}

func TestCompleteExecutionFailureWithRetryableTypeSpawnsRetry(t *testing.T) {
	s, _, runner := newTestScheduler(t)
	require.NoError(t, s.configs.Save(ScheduleConfig{
		ID: "sched1", Name: "S", CronExpr: "* * * * *",
		Retry: RetryPolicy{Strategy: RetryFixed, BaseDelay: 10 * time.Millisecond, MaxAttempts: 3, Jitter: false},
	}))

	exec, err := s.StartExecution(context.Background(), "sched1", 100, 1)
	require.NoError(t, err)

	require.NoError(t, s.CompleteExecution(context.Background(), exec.ID, 1, 0, 0, "connection reset by peer"))

	assert.Eventually(t, func() bool { return runner.Calls() == 1 }, time.Second, 5*time.Millisecond)
}

func TestCompleteExecutionFailureNonRetryableIncrementsFailureCount(t *testing.T) {
	s, _, runner := newTestScheduler(t)
	require.NoError(t, s.configs.Save(ScheduleConfig{
		ID: "sched1", Name: "S", CronExpr: "* * * * *", FailureThreshold: 10,
		Retry: RetryPolicy{Strategy: RetryNone, MaxAttempts: 0},
	}))

	exec, err := s.StartExecution(context.Background(), "sched1", 100, 1)
	require.NoError(t, err)

	require.NoError(t, s.CompleteExecution(context.Background(), exec.ID, 1, 0, 0, "permission denied"))

	cfg, err := s.configs.Load("sched1")
	require.NoError(t, err)
	assert.Equal(t, 1, cfg.ConsecutiveFailures)
	assert.Equal(t, 0, runner.Calls())
}

func TestRepeatedFailuresAutoSuspendsSchedule(t *testing.T) {
	s, _, _ := newTestScheduler(t)
	reg := s.registry.(*fakeRegistry)
	require.NoError(t, s.configs.Save(ScheduleConfig{
		ID: "sched1", Name: "S", CronExpr: "* * * * *", Enabled: true, FailureThreshold: 2,
		Retry: RetryPolicy{Strategy: RetryNone, MaxAttempts: 0},
	}))
	require.NoError(t, s.register(context.Background(), mustLoad(t, s, "sched1")))

	for i := 0; i < 2; i++ {
		exec, err := s.StartExecution(context.Background(), "sched1", 100, 1)
		require.NoError(t, err)
		require.NoError(t, s.CompleteExecution(context.Background(), exec.ID, 1, 0, 0, "permission denied"))
	}

	cfg, err := s.configs.Load("sched1")
	require.NoError(t, err)
	assert.True(t, cfg.Suspended)
	assert.False(t, cfg.Enabled)
	assert.NotContains(t, reg.contents, "sched1")
}

func mustLoad(t *testing.T, s *Scheduler, id string) ScheduleConfig {
	t.Helper()
	cfg, err := s.configs.Load(id)
	require.NoError(t, err)
	return cfg
}

func TestCleanupOldExecutionsDelegatesToStore(t *testing.T) {
	s, execStore, _ := newTestScheduler(t)
	require.NoError(t, s.CleanupOldExecutions(context.Background(), 30))
	assert.Len(t, execStore.deleteArgs, 1)
}
