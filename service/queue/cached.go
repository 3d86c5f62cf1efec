package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru"
	"github.com/viant/cascade/logger"
	"github.com/viant/cascade/model/metadata"
	"github.com/viant/cascade/model/processor"
	"github.com/viant/cascade/service/dao"
	daoprocessor "github.com/viant/cascade/service/dao/processor"
)

// CachedProcessor wraps one workflow tree. The tree is resident while in use
// and released once the in-use counter drops to zero, leaving the stub and
// cached metadata behind.
type CachedProcessor struct {
	instanceID string
	repo       daoprocessor.Repository
	keys       []string
	window     *residentWindow
	logger     logger.Logger
	enqueuedAt time.Time

	mu        sync.Mutex
	tree      *processor.Processor
	stub      *processor.Stub
	metadata  metadata.Metadata
	inUse     int
	validated bool
	invalid   error
	dirty     bool
}

func newCachedProcessor(instanceID string, tree *processor.Processor, m *Manager, enqueuedAt time.Time) *CachedProcessor {
	return &CachedProcessor{
		instanceID: instanceID,
		tree:       tree,
		repo:       m.repo,
		keys:       m.config.MetadataKeys,
		window:     m.window,
		logger:     m.logger.With("instanceID", instanceID),
		enqueuedAt: enqueuedAt,
		dirty:      tree != nil,
	}
}

// InstanceID returns wrapped instance id
func (c *CachedProcessor) InstanceID() string {
	return c.instanceID
}

// Uncache returns the live tree, loading it from the repository when absent,
// and increments the in-use counter. The first uncache validates the tree.
func (c *CachedProcessor) Uncache(ctx context.Context) (*processor.Processor, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.tree == nil {
		if c.repo == nil {
			return nil, fmt.Errorf("%w: %v has no resident tree", ErrNotFound, c.instanceID)
		}
		tree, err := c.repo.Load(ctx, c.instanceID)
		if err != nil {
			if errors.Is(err, dao.ErrNotFound) {
				return nil, fmt.Errorf("%w: %v", ErrNotFound, err)
			}
			return nil, fmt.Errorf("failed to load %v: %w", c.instanceID, err)
		}
		c.tree = tree
		c.dirty = false
	}
	if !c.validated {
		c.validated = true
		if err := c.tree.Validate(); err != nil {
			c.invalid = err
			c.logger.Error(ctx, "invalid workflow processor", "error", err)
		}
	}
	c.inUse++
	return c.tree, nil
}

// Cache snapshots stub and metadata, persists the tree and releases one
// reference. Persistence failures are logged and keep the tree resident.
func (c *CachedProcessor) Cache(ctx context.Context) error {
	return c.release(ctx, true)
}

// Release drops one reference without persisting; used after read-only access.
func (c *CachedProcessor) Release(ctx context.Context) error {
	return c.release(ctx, false)
}

func (c *CachedProcessor) release(ctx context.Context, persist bool) error {
	c.mu.Lock()
	if c.inUse <= 0 || c.tree == nil {
		c.mu.Unlock()
		return fmt.Errorf("%w: %v", ErrNotInUse, c.instanceID)
	}
	c.snapshot()
	if persist {
		c.dirty = true
	}
	if c.dirty && c.repo != nil {
		if err := c.repo.Store(ctx, c.tree); err != nil {
			c.logger.Error(ctx, "failed to store workflow processor", "error", err)
		} else {
			c.dirty = false
		}
	}
	c.inUse--
	idle := c.inUse == 0 && !c.dirty
	if idle && c.window == nil {
		c.tree = nil
	}
	c.mu.Unlock()
	if idle && c.window != nil {
		c.window.add(c)
	}
	return nil
}

// evict releases an idle tree; called by the resident window
func (c *CachedProcessor) evict() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.inUse == 0 && !c.dirty {
		c.tree = nil
	}
}

func (c *CachedProcessor) snapshot() {
	stub := c.tree.Stub()
	stub.EnqueuedAt = c.enqueuedAt
	c.stub = stub
	md := c.tree.StaticMetadata.Merge(c.tree.DynamicMetadata)
	c.metadata = md.Subset(c.keys...)
}

// Stub returns the last snapshot, taking one when none exists yet
func (c *CachedProcessor) Stub(ctx context.Context) (*processor.Stub, error) {
	if err := c.ensureSnapshot(ctx); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	ret := *c.stub
	return &ret, nil
}

// CachedMetadata returns the interesting metadata subset
func (c *CachedProcessor) CachedMetadata(ctx context.Context) (metadata.Metadata, error) {
	if err := c.ensureSnapshot(ctx); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.metadata.Clone(), nil
}

func (c *CachedProcessor) ensureSnapshot(ctx context.Context) error {
	c.mu.Lock()
	ready := c.stub != nil
	c.mu.Unlock()
	if ready {
		return nil
	}
	if _, err := c.Uncache(ctx); err != nil {
		return err
	}
	return c.Release(ctx)
}

// Delete removes the persisted tree and drops the resident one
func (c *CachedProcessor) Delete(ctx context.Context) error {
	if c.window != nil {
		c.window.remove(c.instanceID)
	}
	c.mu.Lock()
	c.tree = nil
	c.dirty = false
	c.mu.Unlock()
	if c.repo == nil {
		return nil
	}
	if err := c.repo.Delete(ctx, c.instanceID); err != nil && !errors.Is(err, dao.ErrNotFound) {
		return err
	}
	return nil
}

// Invalid returns the validation error of the tree, nil when valid
func (c *CachedProcessor) Invalid() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.invalid
}

func (c *CachedProcessor) markInvalid(err error) {
	c.mu.Lock()
	c.invalid = err
	c.mu.Unlock()
}

// Resident returns true when the tree is in memory
func (c *CachedProcessor) Resident() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tree != nil
}

// InUse returns the in-use counter
func (c *CachedProcessor) InUse() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.inUse
}

// residentWindow keeps recently used idle trees in memory. Its methods must
// never be called while holding a CachedProcessor mutex.
type residentWindow struct {
	cache *lru.Cache
}

func newResidentWindow(size int) (*residentWindow, error) {
	cache, err := lru.NewWithEvict(size, func(_ interface{}, value interface{}) {
		if cached, ok := value.(*CachedProcessor); ok {
			cached.evict()
		}
	})
	if err != nil {
		return nil, err
	}
	return &residentWindow{cache: cache}, nil
}

func (w *residentWindow) add(c *CachedProcessor) {
	w.cache.Add(c.instanceID, c)
}

func (w *residentWindow) remove(instanceID string) {
	w.cache.Remove(instanceID)
}

func (w *residentWindow) len() int {
	return w.cache.Len()
}
