package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/viant/cascade/model/job"
	"github.com/viant/cascade/runtime/execution"
	jobmemory "github.com/viant/cascade/service/dao/job/memory"
	"github.com/viant/cascade/service/dispatch"
	monmemory "github.com/viant/cascade/service/monitor/memory"
)

type fakeQueue struct {
	mu        sync.Mutex
	instances []*execution.Instance
	requeued  map[string]execution.State
}

func (q *fakeQueue) push(instances ...*execution.Instance) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.instances = append(q.instances, instances...)
}

func (q *fakeQueue) GetNext(context.Context) (*execution.Instance, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.instances) == 0 {
		return nil, false
	}
	ret := q.instances[0]
	q.instances = q.instances[1:]
	return ret, true
}

func (q *fakeQueue) SetState(_ context.Context, instanceID, modelID string, state execution.State) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.requeued[instanceID+"/"+modelID] = state
	return nil
}

type fakeDispatcher struct {
	mu       sync.Mutex
	err      error
	down     map[string]bool
	probed   []string
	accepted map[string]string
}

func (d *fakeDispatcher) ExecuteRemotely(_ context.Context, spec *job.Spec, node *job.ResourceNode) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.probed = append(d.probed, node.ID)
	if d.down[node.ID] {
		return false, fmt.Errorf("%w: %v", dispatch.ErrNodeDown, node.ID)
	}
	if d.err != nil {
		return false, d.err
	}
	d.accepted[spec.ID()] = node.ID
	return true, nil
}

func (d *fakeDispatcher) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.accepted)
}

func newInstance(jobID string, load int) *execution.Instance {
	return &execution.Instance{JobID: jobID, InstanceID: "wf-1", ModelID: jobID, JobInstance: "echo " + jobID, Load: load}
}

func TestService_ScheduleNext(t *testing.T) {
	testCases := []struct {
		name           string
		load           int
		dispatchErr    error
		expectDispatch bool
		expectRequeue  bool
		expectLoad     int
		expectStatus   job.Status
	}{
		{name: "accepted", load: 2, expectDispatch: true, expectLoad: 2, expectStatus: job.StatusScheduled},
		{name: "node down", load: 2, dispatchErr: errors.New("node down"), expectRequeue: true, expectLoad: 0, expectStatus: job.StatusScheduled},
		{name: "no capacity", load: 5, expectRequeue: true, expectLoad: 0, expectStatus: job.StatusScheduled},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			ctx := context.Background()
			queue := &fakeQueue{requeued: map[string]execution.State{}}
			dispatcher := &fakeDispatcher{err: tc.dispatchErr, accepted: map[string]string{}}
			jobs, err := jobmemory.New()
			require.NoError(t, err)
			balancer := monmemory.New(&job.ResourceNode{ID: "n1", Capacity: 4})
			srv, err := New(WithQueue(queue), WithDispatcher(dispatcher), WithJobRepository(jobs), WithBalancer(balancer))
			require.NoError(t, err)

			scheduled, err := srv.ScheduleNext(ctx)
			assert.False(t, scheduled)
			assert.NoError(t, err)

			queue.push(newInstance("job-1", tc.load))
			scheduled, err = srv.ScheduleNext(ctx)
			assert.Equal(t, tc.expectDispatch, scheduled)
			assert.Equal(t, tc.expectDispatch, err == nil)
			assert.Equal(t, tc.expectLoad, balancer.Load("n1"))
			if tc.expectDispatch {
				assert.Equal(t, "n1", dispatcher.accepted["job-1"])
			}
			state, requeued := queue.requeued["wf-1/job-1"]
			assert.Equal(t, tc.expectRequeue, requeued)
			if requeued {
				assert.Equal(t, execution.NameWaitingOnResources, state.Name)
				assert.NotEmpty(t, state.Message)
			}
			stored, err := jobs.Job(ctx, "job-1")
			require.NoError(t, err)
			assert.Equal(t, tc.expectStatus, stored.Job.Status)
			assert.Equal(t, tc.load, stored.Job.Load)
		})
	}
}

func TestService_ScheduleNext_SkipsDownNodes(t *testing.T) {
	testCases := []struct {
		name         string
		down         map[string]bool
		loads        map[string]int
		expectNode   string
		expectProbed []string
	}{
		{name: "idle node down", down: map[string]bool{"n1": true}, expectNode: "n2", expectProbed: []string{"n1", "n2"}},
		{name: "busy live node beats idle dead one", down: map[string]bool{"n1": true}, loads: map[string]int{"n2": 1, "n3": 2}, expectNode: "n2", expectProbed: []string{"n1", "n2"}},
		{name: "first two down", down: map[string]bool{"n1": true, "n2": true}, expectNode: "n3", expectProbed: []string{"n1", "n2", "n3"}},
		{name: "all down", down: map[string]bool{"n1": true, "n2": true, "n3": true}, expectProbed: []string{"n1", "n2", "n3"}},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			ctx := context.Background()
			queue := &fakeQueue{requeued: map[string]execution.State{}}
			dispatcher := &fakeDispatcher{down: tc.down, accepted: map[string]string{}}
			jobs, err := jobmemory.New()
			require.NoError(t, err)
			balancer := monmemory.New(&job.ResourceNode{ID: "n1"}, &job.ResourceNode{ID: "n2"}, &job.ResourceNode{ID: "n3"})
			for id, load := range tc.loads {
				require.NoError(t, balancer.AssignLoad(ctx, &job.ResourceNode{ID: id}, load))
			}
			srv, err := New(WithQueue(queue), WithDispatcher(dispatcher), WithJobRepository(jobs), WithBalancer(balancer))
			require.NoError(t, err)

			queue.push(newInstance("job-1", 1))
			scheduled, err := srv.ScheduleNext(ctx)
			assert.Equal(t, tc.expectProbed, dispatcher.probed)
			for id := range tc.down {
				assert.Equal(t, 0, balancer.Load(id), "load released on %v", id)
			}
			if tc.expectNode == "" {
				assert.False(t, scheduled)
				assert.ErrorIs(t, err, dispatch.ErrNodeDown)
				state, requeued := queue.requeued["wf-1/job-1"]
				require.True(t, requeued)
				assert.Equal(t, execution.NameWaitingOnResources, state.Name)
				return
			}
			require.NoError(t, err)
			assert.True(t, scheduled)
			assert.Equal(t, tc.expectNode, dispatcher.accepted["job-1"])
			assert.Equal(t, tc.loads[tc.expectNode]+1, balancer.Load(tc.expectNode))
			assert.Empty(t, queue.requeued)
		})
	}
}

func TestService_Workers(t *testing.T) {
	ctx := context.Background()
	queue := &fakeQueue{requeued: map[string]execution.State{}}
	dispatcher := &fakeDispatcher{accepted: map[string]string{}}
	jobs, err := jobmemory.New()
	require.NoError(t, err)
	balancer := monmemory.New(&job.ResourceNode{ID: "n1"}, &job.ResourceNode{ID: "n2"})
	config := DefaultConfig()
	config.WorkerCount = 2
	config.IdleBackoff = time.Millisecond
	config.MaxIdleBackoff = 5 * time.Millisecond
	srv, err := New(WithQueue(queue), WithDispatcher(dispatcher), WithJobRepository(jobs), WithBalancer(balancer), WithConfig(config))
	require.NoError(t, err)
	require.NoError(t, srv.Start(ctx))
	assert.Error(t, srv.Start(ctx))

	time.Sleep(10 * time.Millisecond)
	queue.push(newInstance("job-1", 1), newInstance("job-2", 1), newInstance("job-3", 1), newInstance("job-4", 1))
	assert.Eventually(t, func() bool { return dispatcher.count() == 4 }, time.Second, time.Millisecond)
	srv.Shutdown()
	srv.Shutdown()

	assert.Equal(t, 4, balancer.Load("n1")+balancer.Load("n2"))
}

func TestNew_Required(t *testing.T) {
	_, err := New()
	assert.Error(t, err)
	jobs, err := jobmemory.New()
	require.NoError(t, err)
	_, err = New(
		WithQueue(&fakeQueue{}),
		WithDispatcher(&fakeDispatcher{}),
		WithJobRepository(jobs),
		WithBalancer(monmemory.New()),
		WithWorkers(0),
	)
	assert.Error(t, err)
}
