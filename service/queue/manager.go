package queue

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/viant/cascade/internal/clock"
	"github.com/viant/cascade/internal/idgen"
	"github.com/viant/cascade/logger"
	"github.com/viant/cascade/model/metadata"
	"github.com/viant/cascade/model/processor"
	"github.com/viant/cascade/runtime/execution"
	daoprocessor "github.com/viant/cascade/service/dao/processor"
)

// Manager tracks workflow processor lifecycle and hands out runnable tasks
type Manager struct {
	config   Config
	repo     daoprocessor.Repository
	priority PriorityManager
	locks    *Locks
	window   *residentWindow
	logger   logger.Logger

	mu         sync.RWMutex
	processors map[string]*CachedProcessor

	runnableMu sync.Mutex
	runnable   []*processor.Stub

	executingMu sync.RWMutex
	executing   map[string]*processor.Stub

	started    atomic.Bool
	shutdownCh chan struct{}
	done       chan struct{}
	stopOnce   sync.Once
}

// New creates a queue manager
func New(options ...Option) (*Manager, error) {
	m := &Manager{
		config:     DefaultConfig(),
		locks:      NewLocks(),
		processors: map[string]*CachedProcessor{},
		executing:  map[string]*processor.Stub{},
		shutdownCh: make(chan struct{}),
		done:       make(chan struct{}),
	}
	for _, opt := range options {
		opt(m)
	}
	if m.logger == nil {
		m.logger = logger.Nop()
	}
	m.logger = m.logger.With("component", "queue")
	if err := m.config.Validate(); err != nil {
		return nil, err
	}
	if m.priority == nil {
		priority, err := NewPriorityManager(m.config.Priority)
		if err != nil {
			return nil, err
		}
		m.priority = priority
	}
	if m.config.ResidentCacheSize > 0 && m.repo != nil {
		window, err := newResidentWindow(m.config.ResidentCacheSize)
		if err != nil {
			return nil, fmt.Errorf("failed to create resident window: %w", err)
		}
		m.window = window
	}
	return m, nil
}

// AddToQueue registers a tree with every node set to Queued. Persistence
// failures are logged; the instance stays schedulable in memory.
func (m *Manager) AddToQueue(ctx context.Context, tree *processor.Processor) error {
	if tree == nil || tree.InstanceID == "" {
		return ErrInvalidTree
	}
	instanceID := tree.InstanceID
	m.locks.Lock(instanceID)
	defer m.locks.Unlock(instanceID)

	tree.Link()
	tree.SetStateRecursive(execution.StateQueued)
	m.purge(instanceID)
	cached := newCachedProcessor(instanceID, tree, m, clock.Now())
	if _, err := cached.Uncache(ctx); err != nil {
		return err
	}
	_ = cached.Cache(ctx)

	m.mu.Lock()
	m.processors[instanceID] = cached
	m.mu.Unlock()
	m.logger.Debug(ctx, "workflow enqueued", "instanceID", instanceID)
	return nil
}

// GetNext pops the highest priority runnable task and returns its execution
// descriptor; false when nothing is runnable.
func (m *Manager) GetNext(ctx context.Context) (*execution.Instance, bool) {
	for {
		stub := m.popRunnable()
		if stub == nil {
			return nil, false
		}
		instance, err := m.handOut(ctx, stub)
		if err != nil {
			m.logger.Warn(ctx, "discarded stale runnable task", "instanceID", stub.InstanceID, "modelID", stub.ModelID, "error", err)
			continue
		}
		return instance, true
	}
}

func (m *Manager) handOut(ctx context.Context, stub *processor.Stub) (*execution.Instance, error) {
	m.locks.Lock(stub.InstanceID)
	defer m.locks.Unlock(stub.InstanceID)
	cached := m.lookup(stub.InstanceID)
	if cached == nil {
		return nil, fmt.Errorf("%w: workflow %v", ErrNotFound, stub.InstanceID)
	}
	tree, err := cached.Uncache(ctx)
	if err != nil {
		return nil, err
	}
	node := tree.Find(stub.ModelID)
	if node == nil || !node.IsTask() {
		_ = cached.Release(ctx)
		return nil, fmt.Errorf("%w: task %v", ErrNotFound, stub.Key())
	}
	if node.State.Category != execution.CategoryWaitingOnResources {
		_ = cached.Release(ctx)
		return nil, fmt.Errorf("task %v is %v", stub.Key(), node.State.Name)
	}
	if node.JobID == "" {
		node.JobID = idgen.NewJobID()
	}
	instance := &execution.Instance{
		JobID:           node.JobID,
		InstanceID:      node.InstanceID,
		ModelID:         node.ModelID,
		Name:            node.Name,
		JobInstance:     node.JobInstance,
		Priority:        node.Priority,
		Load:            node.Load,
		DynamicMetadata: node.DynamicMetadata.Clone(),
		StaticMetadata:  node.StaticMetadata.Clone(),
	}
	m.addExecuting(stub)
	_ = cached.Cache(ctx)
	return instance, nil
}

// SetState applies state to the task identified by modelID, or to the whole
// tree when modelID is empty. Single node changes must be legal transitions;
// whole tree updates are administrative and bypass that check.
func (m *Manager) SetState(ctx context.Context, instanceID, modelID string, state execution.State) error {
	return m.mutate(ctx, instanceID, func(tree *processor.Processor) error {
		if modelID == "" {
			tree.SetStateRecursive(state)
			tree.Walk(m.syncTask)
			return nil
		}
		node := tree.Find(modelID)
		if node == nil {
			return fmt.Errorf("%w: %v", ErrNotFound, processor.Key(instanceID, modelID))
		}
		if err := execution.CanTransition(node.State, state); err != nil {
			m.logger.Warn(ctx, "rejected state change", "instanceID", instanceID, "modelID", modelID, "error", err)
			return err
		}
		node.SetState(state)
		m.syncTask(node)
		m.aggregate(tree)
		return nil
	})
}

// RevertState restores the previously captured state of the node, or of
// every node when modelID is empty, then re-validates the tree.
func (m *Manager) RevertState(ctx context.Context, instanceID, modelID string) error {
	return m.mutate(ctx, instanceID, func(tree *processor.Processor) error {
		target := tree
		if modelID != "" {
			if target = tree.Find(modelID); target == nil {
				return fmt.Errorf("%w: %v", ErrNotFound, processor.Key(instanceID, modelID))
			}
		}
		reverted := false
		revert := func(node *processor.Processor) {
			if node.Revert() {
				reverted = true
				m.syncTask(node)
			}
		}
		if modelID == "" {
			tree.Walk(revert)
		} else {
			revert(target)
		}
		if !reverted {
			return fmt.Errorf("%w: %v", ErrNoPreviousState, processor.Key(instanceID, modelID))
		}
		if err := tree.Validate(); err != nil {
			m.logger.Error(ctx, "invalid workflow processor after revert", "instanceID", instanceID, "error", err)
			if cached := m.lookup(instanceID); cached != nil {
				cached.markInvalid(err)
			}
		}
		if modelID != "" {
			m.aggregate(tree)
		}
		return nil
	})
}

// SetPriority updates priority of the node and its descendants. It is
// rejected with ErrExecuting while any affected task is in flight.
func (m *Manager) SetPriority(ctx context.Context, instanceID, modelID string, priority float64) error {
	return m.mutate(ctx, instanceID, func(tree *processor.Processor) error {
		target := tree
		if modelID != "" {
			if target = tree.Find(modelID); target == nil {
				return fmt.Errorf("%w: %v", ErrNotFound, processor.Key(instanceID, modelID))
			}
		}
		var keys []string
		for _, leaf := range target.Leaves() {
			key := processor.Key(leaf.InstanceID, leaf.ModelID)
			if m.isExecuting(key) {
				m.logger.Warn(ctx, "priority of executing task is frozen", "instanceID", instanceID, "modelID", leaf.ModelID)
				return fmt.Errorf("%w: %v", ErrExecuting, key)
			}
			keys = append(keys, key)
		}
		target.SetPriorityRecursive(priority)
		m.reprioritize(keys, priority)
		return nil
	})
}

// SetMetadata replaces dynamic metadata of the node (root when modelID is empty)
func (m *Manager) SetMetadata(ctx context.Context, instanceID, modelID string, md metadata.Metadata) error {
	return m.mutate(ctx, instanceID, func(tree *processor.Processor) error {
		target := tree
		if modelID != "" {
			if target = tree.Find(modelID); target == nil {
				return fmt.Errorf("%w: %v", ErrNotFound, processor.Key(instanceID, modelID))
			}
		}
		target.DynamicMetadata = md.Clone()
		if target.DynamicMetadata == nil {
			target.DynamicMetadata = metadata.Metadata{}
		}
		return nil
	})
}

// WorkflowProcessor returns a copy of the tree taken under the instance lock
func (m *Manager) WorkflowProcessor(ctx context.Context, instanceID string) (*processor.Processor, error) {
	m.locks.Lock(instanceID)
	defer m.locks.Unlock(instanceID)
	cached := m.lookup(instanceID)
	if cached == nil {
		return nil, fmt.Errorf("%w: workflow %v", ErrNotFound, instanceID)
	}
	tree, err := cached.Uncache(ctx)
	if err != nil {
		return nil, err
	}
	ret := tree.Clone()
	_ = cached.Release(ctx)
	return ret, nil
}

// ContainsWorkflow returns true if instanceID is registered
func (m *Manager) ContainsWorkflow(instanceID string) bool {
	return m.lookup(instanceID) != nil
}

// DeleteWorkflowProcessor unregisters the instance, purges its runnable and
// executing entries, deletes the persisted tree and forgets its lock.
func (m *Manager) DeleteWorkflowProcessor(ctx context.Context, instanceID string) error {
	m.locks.Lock(instanceID)
	cached := m.lookup(instanceID)
	if cached == nil {
		m.locks.Unlock(instanceID)
		return fmt.Errorf("%w: workflow %v", ErrNotFound, instanceID)
	}
	m.mu.Lock()
	delete(m.processors, instanceID)
	m.mu.Unlock()
	m.purge(instanceID)
	err := cached.Delete(ctx)
	m.locks.Unlock(instanceID)
	m.locks.Forget(instanceID)
	if err != nil {
		m.logger.Error(ctx, "failed to delete workflow processor", "instanceID", instanceID, "error", err)
	}
	return nil
}

// Runnable returns a snapshot of the runnable list in priority order
func (m *Manager) Runnable() []*processor.Stub {
	m.runnableMu.Lock()
	defer m.runnableMu.Unlock()
	ret := make([]*processor.Stub, len(m.runnable))
	for i, stub := range m.runnable {
		clone := *stub
		ret[i] = &clone
	}
	return ret
}

// Executing returns a snapshot of handed out tasks ordered by key
func (m *Manager) Executing() []*processor.Stub {
	m.executingMu.RLock()
	ret := make([]*processor.Stub, 0, len(m.executing))
	for _, stub := range m.executing {
		clone := *stub
		ret = append(ret, &clone)
	}
	m.executingMu.RUnlock()
	sort.Slice(ret, func(i, j int) bool { return ret[i].Key() < ret[j].Key() })
	return ret
}

// Len returns number of registered instances
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.processors)
}

func (m *Manager) mutate(ctx context.Context, instanceID string, fn func(tree *processor.Processor) error) error {
	m.locks.Lock(instanceID)
	defer m.locks.Unlock(instanceID)
	cached := m.lookup(instanceID)
	if cached == nil {
		return fmt.Errorf("%w: workflow %v", ErrNotFound, instanceID)
	}
	tree, err := cached.Uncache(ctx)
	if err != nil {
		return err
	}
	if err = fn(tree); err != nil {
		_ = cached.Release(ctx)
		return err
	}
	return cached.Cache(ctx)
}

func (m *Manager) lookup(instanceID string) *CachedProcessor {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.processors[instanceID]
}

func (m *Manager) instanceIDs() []string {
	m.mu.RLock()
	ret := make([]string, 0, len(m.processors))
	for id := range m.processors {
		ret = append(ret, id)
	}
	m.mu.RUnlock()
	sort.Strings(ret)
	return ret
}

// aggregate refreshes the root state from its task leaves
func (m *Manager) aggregate(tree *processor.Processor) {
	if tree.IsTask() {
		return
	}
	state := tree.Aggregate()
	if !state.Is(tree.State) {
		tree.State = state
	}
}

// syncTask aligns runnable and executing membership with a task state
func (m *Manager) syncTask(node *processor.Processor) {
	if !node.IsTask() {
		return
	}
	stub := node.Stub()
	stub.EnqueuedAt = clock.Now()
	key := stub.Key()
	if node.State.Category == execution.CategoryExecuting {
		m.addExecuting(stub)
	} else {
		m.removeExecuting(key)
	}
	if node.State.Category == execution.CategoryWaitingOnResources {
		m.pushRunnable(stub)
	} else {
		m.removeRunnable(key)
	}
}

// purge drops runnable and executing entries of an instance
func (m *Manager) purge(instanceID string) {
	m.runnableMu.Lock()
	kept := m.runnable[:0]
	for _, stub := range m.runnable {
		if stub.InstanceID != instanceID {
			kept = append(kept, stub)
		}
	}
	for i := len(kept); i < len(m.runnable); i++ {
		m.runnable[i] = nil
	}
	m.runnable = kept
	m.runnableMu.Unlock()

	m.executingMu.Lock()
	for key, stub := range m.executing {
		if stub.InstanceID == instanceID {
			delete(m.executing, key)
		}
	}
	m.executingMu.Unlock()
}

func (m *Manager) pushRunnable(stubs ...*processor.Stub) {
	if len(stubs) == 0 {
		return
	}
	m.runnableMu.Lock()
	defer m.runnableMu.Unlock()
	for _, stub := range stubs {
		replaced := false
		for i, candidate := range m.runnable {
			if candidate.Equal(stub) {
				m.runnable[i] = stub
				replaced = true
				break
			}
		}
		if !replaced {
			m.runnable = append(m.runnable, stub)
		}
	}
	m.priority.Sort(m.runnable)
}

func (m *Manager) popRunnable() *processor.Stub {
	m.runnableMu.Lock()
	defer m.runnableMu.Unlock()
	if len(m.runnable) == 0 {
		return nil
	}
	ret := m.runnable[0]
	m.runnable[0] = nil
	m.runnable = m.runnable[1:]
	return ret
}

func (m *Manager) removeRunnable(key string) {
	m.runnableMu.Lock()
	defer m.runnableMu.Unlock()
	for i, stub := range m.runnable {
		if stub.Key() == key {
			m.runnable = append(m.runnable[:i], m.runnable[i+1:]...)
			break
		}
	}
	m.priority.Sort(m.runnable)
}

func (m *Manager) reprioritize(keys []string, priority float64) {
	if len(keys) == 0 {
		return
	}
	index := make(map[string]bool, len(keys))
	for _, key := range keys {
		index[key] = true
	}
	m.runnableMu.Lock()
	defer m.runnableMu.Unlock()
	for i, stub := range m.runnable {
		if index[stub.Key()] {
			updated := *stub
			updated.Priority = priority
			m.runnable[i] = &updated
		}
	}
	m.priority.Sort(m.runnable)
}

func (m *Manager) addExecuting(stub *processor.Stub) {
	m.executingMu.Lock()
	defer m.executingMu.Unlock()
	m.executing[stub.Key()] = stub
}

func (m *Manager) removeExecuting(key string) {
	m.executingMu.Lock()
	defer m.executingMu.Unlock()
	delete(m.executing, key)
}

func (m *Manager) isExecuting(key string) bool {
	m.executingMu.RLock()
	defer m.executingMu.RUnlock()
	_, ok := m.executing[key]
	return ok
}
