package dispatch

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/viant/cascade/internal/clock"
	"github.com/viant/cascade/model/job"
	jobdao "github.com/viant/cascade/service/dao/job"
	jobmemory "github.com/viant/cascade/service/dao/job/memory"
	msgmemory "github.com/viant/cascade/service/messaging/memory"
	monmemory "github.com/viant/cascade/service/monitor/memory"
	"github.com/viant/cascade/service/transport/memory"
)

type statusLog struct {
	mu      sync.Mutex
	records map[string][]job.Status
}

func (l *statusLog) listen(_ context.Context, spec *job.Spec, status job.Status) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.records[spec.ID()] = append(l.records[spec.ID()], status)
}

func (l *statusLog) statuses(jobID string) []job.Status {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]job.Status(nil), l.records[jobID]...)
}

type fixture struct {
	cluster    *memory.Cluster
	worker     *memory.Worker
	jobs       jobdao.Repository
	monitor    *monmemory.Monitor
	outcomes   *msgmemory.Queue[job.Outcome]
	log        *statusLog
	node       *job.ResourceNode
	dispatcher *Dispatcher
}

func newFixture(t *testing.T, handler memory.Handler, jobs jobdao.Repository) *fixture {
	t.Helper()
	if jobs == nil {
		repo, err := jobmemory.New()
		require.NoError(t, err)
		jobs = repo
	}
	f := &fixture{
		cluster:  memory.New(),
		jobs:     jobs,
		node:     &job.ResourceNode{ID: "n1", Address: "mem://n1"},
		outcomes: msgmemory.New[job.Outcome](msgmemory.DefaultConfig()),
		log:      &statusLog{records: map[string][]job.Status{}},
	}
	f.worker = f.cluster.AddWorker(f.node.Address, handler)
	f.monitor = monmemory.New(f.node)
	config := DefaultConfig()
	config.UpdateRetryDelay = time.Millisecond
	dispatcher, err := New(f.cluster, f.jobs,
		WithConfig(config),
		WithMonitor(f.monitor),
		WithListener(f.log.listen),
		WithOutcomes(f.outcomes),
	)
	require.NoError(t, err)
	f.dispatcher = dispatcher
	return f
}

func newJobSpec(id string, load int) *job.Spec {
	return &job.Spec{Job: &job.Job{ID: id, Load: load, Status: job.StatusQueued}}
}

func (f *fixture) dispatch(t *testing.T, spec *job.Spec) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, f.jobs.Add(ctx, spec))
	require.NoError(t, f.monitor.AssignLoad(ctx, f.node, spec.Job.Load))
	accepted, err := f.dispatcher.ExecuteRemotely(ctx, spec, f.node)
	require.NoError(t, err)
	require.True(t, accepted)
}

func blocking(started chan<- string) memory.Handler {
	return func(ctx context.Context, spec *job.Spec) (bool, error) {
		started <- spec.ID()
		<-ctx.Done()
		return false, ctx.Err()
	}
}

func TestDispatcher_ExecuteRemotely(t *testing.T) {
	testCases := []struct {
		name         string
		handler      memory.Handler
		expectStatus job.Status
		expectError  bool
	}{
		{name: "success", expectStatus: job.StatusSuccess},
		{
			name:         "falsy result",
			handler:      func(context.Context, *job.Spec) (bool, error) { return false, nil },
			expectStatus: job.StatusFailure,
			expectError:  true,
		},
		{
			name:         "remote error",
			handler:      func(context.Context, *job.Spec) (bool, error) { return false, errors.New("exit 2") },
			expectStatus: job.StatusFailure,
			expectError:  true,
		},
		{
			name:         "remote panic",
			handler:      func(context.Context, *job.Spec) (bool, error) { panic("segfault") },
			expectStatus: job.StatusFailure,
			expectError:  true,
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			ctx := context.Background()
			f := newFixture(t, tc.handler, nil)
			f.dispatch(t, newJobSpec("job-1", 2))
			assert.Equal(t, 2, f.monitor.Load("n1"))
			f.dispatcher.Wait()

			stored, err := f.jobs.Job(ctx, "job-1")
			require.NoError(t, err)
			assert.Equal(t, tc.expectStatus, stored.Job.Status)
			assert.Equal(t, tc.expectError, stored.Job.Error != "")
			assert.Equal(t, []job.Status{job.StatusExecuting, tc.expectStatus}, f.log.statuses("job-1"))
			assert.Equal(t, 0, f.monitor.Load("n1"))
			assert.Equal(t, 0, f.dispatcher.registry.Len())

			require.Equal(t, 1, f.outcomes.Len())
			message, err := f.outcomes.Consume(ctx)
			require.NoError(t, err)
			assert.Equal(t, tc.expectStatus, message.T().Status)
			assert.Equal(t, "n1", message.T().NodeID)
		})
	}
}

func TestDispatcher_OutcomeElapsed(t *testing.T) {
	var mu sync.Mutex
	start := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	now := start
	clock.NowFunc = func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return now
	}
	t.Cleanup(func() { clock.NowFunc = time.Now })

	ctx := context.Background()
	f := newFixture(t, func(context.Context, *job.Spec) (bool, error) {
		mu.Lock()
		now = now.Add(90 * time.Second)
		mu.Unlock()
		return true, nil
	}, nil)
	f.dispatch(t, newJobSpec("job-1", 1))
	f.dispatcher.Wait()

	stored, err := f.jobs.Job(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, start, stored.Job.StartedAt)
	assert.Equal(t, start.Add(90*time.Second), stored.Job.UpdatedAt)

	message, err := f.outcomes.Consume(ctx)
	require.NoError(t, err)
	assert.Equal(t, job.StatusSuccess, message.T().Status)
	assert.Equal(t, 90*time.Second, message.T().Elapsed)
	assert.Equal(t, start.Add(90*time.Second), message.T().At)
}

func TestDispatcher_NodeDown(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil, nil)
	f.worker.SetAlive(false)

	accepted, err := f.dispatcher.ExecuteRemotely(ctx, newJobSpec("job-1", 1), f.node)
	assert.False(t, accepted)
	assert.True(t, errors.Is(err, ErrNodeDown))
	assert.Equal(t, 0, f.dispatcher.registry.Len())
	assert.Empty(t, f.log.statuses("job-1"))

	accepted, err = f.dispatcher.ExecuteRemotely(ctx, newJobSpec("job-1", 1), &job.ResourceNode{ID: "n9", Address: "mem://n9"})
	assert.False(t, accepted)
	assert.True(t, errors.Is(err, ErrNodeDown))

	_, err = f.dispatcher.ExecuteRemotely(ctx, &job.Spec{}, f.node)
	assert.True(t, errors.Is(err, ErrInvalidSpec))
}

func TestDispatcher_AtMostOneDispatch(t *testing.T) {
	ctx := context.Background()
	started := make(chan string, 4)
	f := newFixture(t, blocking(started), nil)
	f.dispatch(t, newJobSpec("job-b", 1))
	f.dispatch(t, newJobSpec("job-a", 1))
	<-started
	<-started

	accepted, err := f.dispatcher.ExecuteRemotely(ctx, newJobSpec("job-a", 1), f.node)
	assert.False(t, accepted)
	assert.True(t, errors.Is(err, ErrAlreadyDispatched))
	assert.Equal(t, []string{"job-a", "job-b"}, f.dispatcher.JobsOnNode("n1"))

	for _, id := range []string{"job-a", "job-b"} {
		killed, err := f.dispatcher.KillJob(ctx, id, f.node)
		require.NoError(t, err)
		assert.True(t, killed)
	}
	f.dispatcher.Wait()
	for _, id := range []string{"job-a", "job-b"} {
		assert.Equal(t, []job.Status{job.StatusExecuting, job.StatusKilled}, f.log.statuses(id))
	}
}

func TestDispatcher_KillJob(t *testing.T) {
	ctx := context.Background()
	started := make(chan string, 1)
	f := newFixture(t, blocking(started), nil)
	f.dispatch(t, newJobSpec("job-1", 3))
	<-started
	dispatch, ok := f.dispatcher.Active("job-1")
	require.True(t, ok)

	killed, err := f.dispatcher.KillJob(ctx, "job-1", f.node)
	require.NoError(t, err)
	assert.True(t, killed)
	assert.Empty(t, f.dispatcher.JobsOnNode("n1"))

	select {
	case <-dispatch.Done():
	case <-time.After(time.Second):
		t.Fatal("proxy did not finish after kill")
	}
	assert.Equal(t, job.StatusKilled, dispatch.Status())
	f.dispatcher.Wait()

	stored, err := f.jobs.Job(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, job.StatusKilled, stored.Job.Status)
	assert.Equal(t, []job.Status{job.StatusExecuting, job.StatusKilled}, f.log.statuses("job-1"))
	assert.Equal(t, 3, f.monitor.Load("n1"), "killed job load is released by the caller")
	assert.Equal(t, 0, f.dispatcher.registry.Len())

	killed, err = f.dispatcher.KillJob(ctx, "job-1", f.node)
	assert.False(t, killed)
	assert.True(t, errors.Is(err, ErrJobTerminal))
}

func TestDispatcher_KillJobRejected(t *testing.T) {
	testCases := []struct {
		name      string
		prepare   func(t *testing.T, f *fixture)
		jobID     string
		expectErr error
	}{
		{
			name:      "unknown job",
			jobID:     "job-404",
			expectErr: ErrJobNotFound,
		},
		{
			name: "already succeeded",
			prepare: func(t *testing.T, f *fixture) {
				f.dispatch(t, newJobSpec("job-1", 1))
				f.dispatcher.Wait()
			},
			jobID:     "job-1",
			expectErr: ErrJobTerminal,
		},
		{
			name: "not running on node",
			prepare: func(t *testing.T, f *fixture) {
				spec := newJobSpec("job-1", 1)
				spec.Job.Status = job.StatusExecuting
				require.NoError(t, f.jobs.Add(context.Background(), spec))
			},
			jobID:     "job-1",
			expectErr: ErrKillRejected,
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			ctx := context.Background()
			f := newFixture(t, nil, nil)
			if tc.prepare != nil {
				tc.prepare(t, f)
			}
			var before *job.Spec
			if stored, err := f.jobs.Job(ctx, tc.jobID); err == nil {
				before = stored
			}
			killed, err := f.dispatcher.KillJob(ctx, tc.jobID, f.node)
			assert.False(t, killed)
			assert.True(t, errors.Is(err, tc.expectErr), err)
			if before != nil {
				after, err := f.jobs.Job(ctx, tc.jobID)
				require.NoError(t, err)
				assert.Equal(t, before.Job.Status, after.Job.Status)
			}
		})
	}
}

type flakyJobs struct {
	jobdao.Repository
	mu       sync.Mutex
	failures int
}

func (f *flakyJobs) Update(ctx context.Context, spec *job.Spec) error {
	f.mu.Lock()
	if f.failures > 0 {
		f.failures--
		f.mu.Unlock()
		return errors.New("database is locked")
	}
	f.mu.Unlock()
	return f.Repository.Update(ctx, spec)
}

func TestDispatcher_UpdateRetries(t *testing.T) {
	ctx := context.Background()
	repo, err := jobmemory.New()
	require.NoError(t, err)
	jobs := &flakyJobs{Repository: repo, failures: 2}
	f := newFixture(t, nil, jobs)
	f.dispatch(t, newJobSpec("job-1", 1))
	f.dispatcher.Wait()

	stored, err := f.jobs.Job(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, job.StatusSuccess, stored.Job.Status)
}
