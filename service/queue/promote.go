package queue

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"github.com/viant/cascade/internal/clock"
	"github.com/viant/cascade/model/processor"
	"github.com/viant/cascade/runtime/execution"
	"golang.org/x/sync/errgroup"
)

// Start runs the promotion loop until ctx is cancelled or Shutdown is called
func (m *Manager) Start(ctx context.Context) error {
	m.started.Store(true)
	defer close(m.done)
	ticker := time.NewTicker(m.config.PollingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-m.shutdownCh:
			return nil
		case <-ticker.C:
			if err := m.Promote(ctx); err != nil {
				m.logger.Debug(ctx, "promotion cycle interrupted", "error", err)
			}
		}
	}
}

// Shutdown stops the promotion loop and waits for it with a bounded timeout
func (m *Manager) Shutdown() error {
	m.stopOnce.Do(func() {
		close(m.shutdownCh)
	})
	if !m.started.Load() {
		return nil
	}
	timeout := m.config.ShutdownTimeout
	if timeout <= 0 {
		timeout = DefaultConfig().ShutdownTimeout
	}
	select {
	case <-m.done:
		return nil
	case <-time.After(timeout):
		return ErrShutdownTimeout
	}
}

// Promote runs one promotion cycle: every non terminal, valid instance gets
// its newly eligible task leaves marked WaitingOnResources and appended to
// the runnable list.
func (m *Manager) Promote(ctx context.Context) error {
	for _, instanceID := range m.instanceIDs() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-m.shutdownCh:
			return nil
		default:
		}
		if err := m.promote(ctx, instanceID); err != nil {
			m.logger.Warn(ctx, "failed to promote workflow", "instanceID", instanceID, "error", err)
		}
		if m.config.Yield > 0 {
			time.Sleep(m.config.Yield)
		} else {
			runtime.Gosched()
		}
	}
	return nil
}

func (m *Manager) promote(ctx context.Context, instanceID string) error {
	m.locks.Lock(instanceID)
	defer m.locks.Unlock(instanceID)
	cached := m.lookup(instanceID)
	if cached == nil || cached.Invalid() != nil {
		return nil
	}
	stub, err := cached.Stub(ctx)
	if err != nil {
		return err
	}
	if stub.State.IsTerminal() {
		return nil
	}
	tree, err := cached.Uncache(ctx)
	if err != nil {
		return err
	}
	if tree.State.IsTerminal() {
		return cached.Release(ctx)
	}
	now := clock.Now()
	var promoted []*processor.Stub
	for _, task := range tree.Runnable() {
		if err := execution.CanTransition(task.State, execution.StateWaitingOnResources); err != nil {
			continue
		}
		task.SetState(execution.StateWaitingOnResources)
		taskStub := task.Stub()
		taskStub.EnqueuedAt = now
		promoted = append(promoted, taskStub)
	}
	if len(promoted) == 0 {
		return cached.Release(ctx)
	}
	m.pushRunnable(promoted...)
	m.aggregate(tree)
	m.logger.Debug(ctx, "promoted tasks", "instanceID", instanceID, "count", len(promoted))
	return cached.Cache(ctx)
}

// Restore registers every instance stored in the repository and warms their
// stubs concurrently. Tasks persisted as waiting or executing re-enter the
// runnable list or the executing map.
func (m *Manager) Restore(ctx context.Context) error {
	if m.repo == nil {
		return nil
	}
	ids, err := m.repo.InstanceIDs(ctx)
	if err != nil {
		return fmt.Errorf("failed to list stored workflows: %w", err)
	}
	var restored []string
	m.mu.Lock()
	for _, id := range ids {
		if _, ok := m.processors[id]; ok {
			continue
		}
		m.processors[id] = newCachedProcessor(id, nil, m, clock.Now())
		restored = append(restored, id)
	}
	m.mu.Unlock()

	group, groupCtx := errgroup.WithContext(ctx)
	if m.config.RestoreConcurrency > 0 {
		group.SetLimit(m.config.RestoreConcurrency)
	}
	for _, id := range restored {
		instanceID := id
		group.Go(func() error {
			if err := m.warm(groupCtx, instanceID); err != nil {
				m.logger.Error(groupCtx, "failed to restore workflow", "instanceID", instanceID, "error", err)
			}
			return nil
		})
	}
	err = group.Wait()
	m.logger.Info(ctx, "restored workflows", "count", len(restored))
	return err
}

func (m *Manager) warm(ctx context.Context, instanceID string) error {
	m.locks.Lock(instanceID)
	defer m.locks.Unlock(instanceID)
	cached := m.lookup(instanceID)
	if cached == nil {
		return nil
	}
	tree, err := cached.Uncache(ctx)
	if err != nil {
		return err
	}
	for _, leaf := range tree.Leaves() {
		switch leaf.State.Category {
		case execution.CategoryWaitingOnResources, execution.CategoryExecuting:
			m.syncTask(leaf)
		}
	}
	return cached.Release(ctx)
}
