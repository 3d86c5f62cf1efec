package queue

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/viant/cascade/model/metadata"
	"github.com/viant/cascade/model/paging"
	"github.com/viant/cascade/model/processor"
	"github.com/viant/cascade/runtime/execution"
	"github.com/viant/cascade/service/dao"
	"github.com/viant/cascade/service/dao/processor/memory"
)

func newTestManager(t *testing.T, options ...Option) *Manager {
	t.Helper()
	config := DefaultConfig()
	config.PollingInterval = 5 * time.Millisecond
	manager, err := New(append([]Option{WithConfig(config)}, options...)...)
	require.NoError(t, err)
	return manager
}

func TestNew_Config(t *testing.T) {
	negativeCache := DefaultConfig()
	negativeCache.ResidentCacheSize = -1
	noTimeout := DefaultConfig()
	noTimeout.DetectDeadlocks = true
	noTimeout.DeadlockTimeout = 0
	unknownPriority := DefaultConfig()
	unknownPriority.Priority = "random"
	testCases := []struct {
		name      string
		options   []Option
		expectErr bool
	}{
		{name: "defaults"},
		{name: "defaults with custom priority", options: []Option{WithPriorityManager(FIFO{})}},
		{name: "zero config", options: []Option{WithConfig(Config{})}, expectErr: true},
		{name: "zero config with custom priority", options: []Option{WithConfig(Config{}), WithPriorityManager(FIFO{})}, expectErr: true},
		{name: "negative cache with custom priority", options: []Option{WithConfig(negativeCache), WithPriorityManager(FIFO{})}, expectErr: true},
		{name: "detection without timeout", options: []Option{WithConfig(noTimeout)}, expectErr: true},
		{name: "unknown priority", options: []Option{WithConfig(unknownPriority)}, expectErr: true},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			manager, err := New(tc.options...)
			if tc.expectErr {
				assert.Error(t, err)
				assert.Nil(t, manager)
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, manager.priority)
		})
	}
}

func linearWorkflow(instanceID string) *processor.Processor {
	return processor.NewWorkflow(instanceID, "root", "linear",
		processor.NewTask("A", "a", "echo a"),
		processor.NewTask("B", "b", "echo b"),
	)
}

func runnableKeys(m *Manager) []string {
	var ret []string
	for _, stub := range m.Runnable() {
		ret = append(ret, stub.Key())
	}
	return ret
}

func TestManager_LinearWorkflow(t *testing.T) {
	ctx := context.Background()
	manager := newTestManager(t, WithRepository(memory.New()))
	require.NoError(t, manager.AddToQueue(ctx, linearWorkflow("wf-1")))

	require.NoError(t, manager.Promote(ctx))
	assert.Equal(t, []string{"wf-1/A"}, runnableKeys(manager))

	instance, ok := manager.GetNext(ctx)
	require.True(t, ok)
	assert.Equal(t, "A", instance.ModelID)
	assert.Equal(t, "echo a", instance.JobInstance)
	assert.NotEmpty(t, instance.JobID)
	assert.Len(t, manager.Executing(), 1)

	require.NoError(t, manager.Promote(ctx))
	_, ok = manager.GetNext(ctx)
	assert.False(t, ok, "handed out task must not be returned again")

	require.NoError(t, manager.SetState(ctx, "wf-1", "A", execution.StateExecuting))
	require.NoError(t, manager.SetState(ctx, "wf-1", "A", execution.StateSuccess))
	assert.Empty(t, manager.Executing())

	require.NoError(t, manager.Promote(ctx))
	assert.Equal(t, []string{"wf-1/B"}, runnableKeys(manager))

	instance, ok = manager.GetNext(ctx)
	require.True(t, ok)
	require.NoError(t, manager.SetState(ctx, "wf-1", instance.ModelID, execution.StateExecuting))
	require.NoError(t, manager.SetState(ctx, "wf-1", instance.ModelID, execution.StateSuccess))

	tree, err := manager.WorkflowProcessor(ctx, "wf-1")
	require.NoError(t, err)
	assert.Equal(t, execution.NameSuccess, tree.State.Name)

	require.NoError(t, manager.Promote(ctx))
	assert.Empty(t, manager.Runnable())
}

func TestManager_GetNextPriorityOrder(t *testing.T) {
	ctx := context.Background()
	manager := newTestManager(t)
	for i, priority := range []float64{3, 1, 2} {
		instanceID := fmt.Sprintf("wf-%d", i+1)
		tree := processor.NewWorkflow(instanceID, "root", "single",
			processor.NewTask("T", "t", "echo t").WithPriority(priority))
		require.NoError(t, manager.AddToQueue(ctx, tree))
	}
	require.NoError(t, manager.Promote(ctx))

	var actual []float64
	for {
		instance, ok := manager.GetNext(ctx)
		if !ok {
			break
		}
		actual = append(actual, instance.Priority)
	}
	assert.Equal(t, []float64{3, 2, 1}, actual)
}

func TestManager_SetState(t *testing.T) {
	testCases := []struct {
		name        string
		prepare     []execution.State
		target      execution.State
		expectErr   error
		expectState string
	}{
		{
			name:        "waiting to done is illegal",
			target:      execution.StateSuccess,
			expectErr:   execution.ErrIllegalTransition,
			expectState: execution.NameWaitingOnResources,
		},
		{
			name:        "waiting to executing",
			target:      execution.StateExecuting,
			expectState: execution.NameExecuting,
		},
		{
			name:        "executing to failure",
			prepare:     []execution.State{execution.StateExecuting},
			target:      execution.StateFailure,
			expectState: execution.NameFailure,
		},
		{
			name:        "success to executing is illegal",
			prepare:     []execution.State{execution.StateExecuting, execution.StateSuccess},
			target:      execution.StateExecuting,
			expectErr:   execution.ErrIllegalTransition,
			expectState: execution.NameSuccess,
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			ctx := context.Background()
			manager := newTestManager(t)
			require.NoError(t, manager.AddToQueue(ctx, linearWorkflow("wf-1")))
			require.NoError(t, manager.Promote(ctx))
			for _, state := range tc.prepare {
				require.NoError(t, manager.SetState(ctx, "wf-1", "A", state))
			}
			err := manager.SetState(ctx, "wf-1", "A", tc.target)
			if tc.expectErr != nil {
				assert.True(t, errors.Is(err, tc.expectErr), err)
			} else {
				require.NoError(t, err)
			}
			tree, err := manager.WorkflowProcessor(ctx, "wf-1")
			require.NoError(t, err)
			assert.Equal(t, tc.expectState, tree.Find("A").State.Name)
		})
	}
}

func TestManager_SetStateUnknown(t *testing.T) {
	ctx := context.Background()
	manager := newTestManager(t)
	err := manager.SetState(ctx, "missing", "A", execution.StateExecuting)
	assert.True(t, errors.Is(err, ErrNotFound))

	require.NoError(t, manager.AddToQueue(ctx, linearWorkflow("wf-1")))
	err = manager.SetState(ctx, "wf-1", "Z", execution.StateExecuting)
	assert.True(t, errors.Is(err, ErrNotFound))

	err = manager.SetState(ctx, "wf-1", "B", execution.StateSuccess)
	assert.True(t, errors.Is(err, execution.ErrIllegalTransition))
}

func TestManager_RevertState(t *testing.T) {
	ctx := context.Background()
	manager := newTestManager(t)
	require.NoError(t, manager.AddToQueue(ctx, linearWorkflow("wf-1")))
	require.NoError(t, manager.Promote(ctx))
	instance, ok := manager.GetNext(ctx)
	require.True(t, ok)
	require.NoError(t, manager.SetState(ctx, "wf-1", "A", execution.StateExecuting))

	require.NoError(t, manager.RevertState(ctx, "wf-1", "A"))
	tree, err := manager.WorkflowProcessor(ctx, "wf-1")
	require.NoError(t, err)
	assert.Equal(t, execution.NameWaitingOnResources, tree.Find("A").State.Name)
	assert.Equal(t, []string{"wf-1/A"}, runnableKeys(manager))

	again, ok := manager.GetNext(ctx)
	require.True(t, ok)
	assert.Equal(t, instance.JobID, again.JobID)

	err = manager.RevertState(ctx, "wf-1", "A")
	assert.True(t, errors.Is(err, ErrNoPreviousState))
}

func TestManager_PauseAndResume(t *testing.T) {
	ctx := context.Background()
	manager := newTestManager(t)
	require.NoError(t, manager.AddToQueue(ctx, linearWorkflow("wf-1")))

	require.NoError(t, manager.SetState(ctx, "wf-1", "", execution.StatePaused))
	require.NoError(t, manager.Promote(ctx))
	assert.Empty(t, manager.Runnable())
	page, err := manager.PageByCategory(ctx, paging.NewRequest(1, 10), execution.CategoryHolding)
	require.NoError(t, err)
	assert.Equal(t, 1, page.TotalHits)

	require.NoError(t, manager.RevertState(ctx, "wf-1", ""))
	require.NoError(t, manager.Promote(ctx))
	assert.Equal(t, []string{"wf-1/A"}, runnableKeys(manager))
}

func TestManager_SetPriority(t *testing.T) {
	ctx := context.Background()
	manager := newTestManager(t)
	require.NoError(t, manager.AddToQueue(ctx, processor.NewWorkflow("wf-1", "root", "p",
		processor.NewTask("A", "a", "echo a").WithPriority(1))))
	require.NoError(t, manager.AddToQueue(ctx, processor.NewWorkflow("wf-2", "root", "p",
		processor.NewTask("A", "a", "echo a").WithPriority(2))))
	require.NoError(t, manager.Promote(ctx))
	assert.Equal(t, []string{"wf-2/A", "wf-1/A"}, runnableKeys(manager))

	require.NoError(t, manager.SetPriority(ctx, "wf-1", "", 5))
	assert.Equal(t, []string{"wf-1/A", "wf-2/A"}, runnableKeys(manager))

	instance, ok := manager.GetNext(ctx)
	require.True(t, ok)
	assert.Equal(t, float64(5), instance.Priority)

	err := manager.SetPriority(ctx, "wf-1", "A", 7)
	assert.True(t, errors.Is(err, ErrExecuting))
	tree, err := manager.WorkflowProcessor(ctx, "wf-1")
	require.NoError(t, err)
	assert.Equal(t, float64(5), tree.Find("A").Priority)
}

func TestManager_DeleteWorkflowProcessor(t *testing.T) {
	ctx := context.Background()
	repo := memory.New()
	manager := newTestManager(t, WithRepository(repo))
	require.NoError(t, manager.AddToQueue(ctx, linearWorkflow("wf-1")))
	require.NoError(t, manager.AddToQueue(ctx, linearWorkflow("wf-2")))
	require.NoError(t, manager.Promote(ctx))
	_, ok := manager.GetNext(ctx)
	require.True(t, ok)

	require.NoError(t, manager.DeleteWorkflowProcessor(ctx, "wf-1"))
	assert.False(t, manager.ContainsWorkflow("wf-1"))
	assert.Equal(t, []string{"wf-2/A"}, runnableKeys(manager))
	assert.Empty(t, manager.Executing())
	assert.Equal(t, 1, manager.Len())
	assert.Equal(t, 1, manager.locks.Len())
	_, err := repo.Load(ctx, "wf-1")
	assert.True(t, errors.Is(err, dao.ErrNotFound))

	err = manager.DeleteWorkflowProcessor(ctx, "wf-1")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestManager_Readd(t *testing.T) {
	ctx := context.Background()
	manager := newTestManager(t)
	require.NoError(t, manager.AddToQueue(ctx, linearWorkflow("wf-1")))
	require.NoError(t, manager.Promote(ctx))
	_, ok := manager.GetNext(ctx)
	require.True(t, ok)

	require.NoError(t, manager.AddToQueue(ctx, linearWorkflow("wf-1")))
	assert.Empty(t, manager.Executing())
	assert.Empty(t, manager.Runnable())
	assert.Equal(t, 1, manager.Len())
	assert.True(t, errors.Is(manager.AddToQueue(ctx, nil), ErrInvalidTree))
}

func TestManager_Page(t *testing.T) {
	ctx := context.Background()
	manager := newTestManager(t, WithRepository(memory.New()), WithMetadataKeys("Site"))
	for i := 0; i < 7; i++ {
		tree := linearWorkflow(fmt.Sprintf("wf-%d", i))
		site := "east"
		if i%2 == 1 {
			site = "west"
		}
		tree.WithStaticMetadata("Site", site)
		require.NoError(t, manager.AddToQueue(ctx, tree))
	}

	seen := map[string]int{}
	for number := 1; number <= 3; number++ {
		page, err := manager.Page(ctx, paging.NewRequest(number, 3), nil, nil)
		require.NoError(t, err)
		assert.Equal(t, 7, page.TotalHits)
		for _, stub := range page.Items {
			seen[stub.InstanceID]++
		}
	}
	assert.Len(t, seen, 7)
	for id, count := range seen {
		assert.Equal(t, 1, count, id)
	}

	testCases := []struct {
		name   string
		page   func() (*paging.Page[*processor.Stub], error)
		expect int
	}{
		{
			name: "by metadata",
			page: func() (*paging.Page[*processor.Stub], error) {
				return manager.PageByMetadata(ctx, paging.NewRequest(1, 10), map[string][]string{"Site": {"west"}})
			},
			expect: 3,
		},
		{
			name: "by state",
			page: func() (*paging.Page[*processor.Stub], error) {
				return manager.PageByState(ctx, paging.NewRequest(1, 10), execution.NameQueued)
			},
			expect: 7,
		},
		{
			name: "by model id",
			page: func() (*paging.Page[*processor.Stub], error) {
				return manager.PageByModelID(ctx, paging.NewRequest(1, 10), "other")
			},
			expect: 0,
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			page, err := tc.page()
			require.NoError(t, err)
			assert.Equal(t, tc.expect, page.TotalHits)
			assert.Len(t, page.Items, tc.expect)
		})
	}

	require.NoError(t, manager.SetMetadata(ctx, "wf-0", "", metadata.Metadata{"Site": {"west"}}))
	page, err := manager.PageByMetadata(ctx, paging.NewRequest(1, 10), map[string][]string{"Site": {"west"}})
	require.NoError(t, err)
	assert.Equal(t, 4, page.TotalHits)

	sorted, err := manager.PageSorted(ctx, paging.NewRequest(1, 2), func(a, b *processor.Stub) bool {
		return a.InstanceID > b.InstanceID
	})
	require.NoError(t, err)
	require.Len(t, sorted.Items, 2)
	assert.Equal(t, "wf-6", sorted.Items[0].InstanceID)

	_, err = manager.Page(ctx, paging.Request{}, nil, nil)
	assert.True(t, errors.Is(err, paging.ErrInvalidRequest))
}

func TestManager_Restore(t *testing.T) {
	ctx := context.Background()
	repo := memory.New()

	waiting := linearWorkflow("wf-1")
	waiting.SetStateRecursive(execution.StateQueued)
	waiting.Find("A").SetState(execution.StateWaitingOnResources)
	require.NoError(t, repo.Store(ctx, waiting))

	executing := linearWorkflow("wf-2")
	executing.SetStateRecursive(execution.StateQueued)
	executing.Find("A").SetState(execution.StateExecuting)
	executing.Find("A").JobID = "job-2"
	require.NoError(t, repo.Store(ctx, executing))

	manager := newTestManager(t, WithRepository(repo))
	require.NoError(t, manager.Restore(ctx))
	assert.Equal(t, 2, manager.Len())
	assert.Equal(t, []string{"wf-1/A"}, runnableKeys(manager))
	require.Len(t, manager.Executing(), 1)
	assert.Equal(t, "wf-2/A", manager.Executing()[0].Key())

	require.NoError(t, manager.Restore(ctx))
	assert.Equal(t, 2, manager.Len())
}

func TestManager_StartShutdown(t *testing.T) {
	ctx := context.Background()
	manager := newTestManager(t)
	errCh := make(chan error, 1)
	go func() { errCh <- manager.Start(ctx) }()

	require.NoError(t, manager.AddToQueue(ctx, linearWorkflow("wf-1")))
	assert.Eventually(t, func() bool {
		return len(manager.Runnable()) == 1
	}, time.Second, 5*time.Millisecond)

	assert.Eventually(t, func() bool { return manager.started.Load() }, time.Second, time.Millisecond)
	require.NoError(t, manager.Shutdown())
	assert.NoError(t, <-errCh)
	assert.NoError(t, manager.Shutdown())
}
