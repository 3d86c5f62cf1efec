package queue

import (
	"context"
	"sort"

	"github.com/viant/cascade/model/metadata"
	"github.com/viant/cascade/model/paging"
	"github.com/viant/cascade/model/processor"
	"github.com/viant/cascade/runtime/execution"
	"github.com/viant/cascade/service/dao"
	"github.com/viant/cascade/service/dao/criteria"
)

// Filter selects stubs; md holds the cached metadata subset
type Filter func(stub *processor.Stub, md metadata.Metadata) bool

// Less orders stubs
type Less func(a, b *processor.Stub) bool

func byInstanceID(a, b *processor.Stub) bool {
	return a.InstanceID < b.InstanceID
}

// Page returns one page of workflow stubs matching filter ordered by less;
// nil filter matches all, nil less orders by instance id.
func (m *Manager) Page(ctx context.Context, request paging.Request, filter Filter, less Less) (*paging.Page[*processor.Stub], error) {
	if err := request.Validate(); err != nil {
		return nil, err
	}
	if less == nil {
		less = byInstanceID
	}
	var stubs []*processor.Stub
	for _, instanceID := range m.instanceIDs() {
		stub, md, err := m.snapshot(ctx, instanceID, filter != nil)
		if err != nil {
			m.logger.Warn(ctx, "skipped workflow in listing", "instanceID", instanceID, "error", err)
			continue
		}
		if stub == nil || (filter != nil && !filter(stub, md)) {
			continue
		}
		stubs = append(stubs, stub)
	}
	sort.SliceStable(stubs, func(i, j int) bool { return less(stubs[i], stubs[j]) })
	return paging.Slice(stubs, request)
}

// PageFiltered pages stubs matching filter
func (m *Manager) PageFiltered(ctx context.Context, request paging.Request, filter Filter) (*paging.Page[*processor.Stub], error) {
	return m.Page(ctx, request, filter, nil)
}

// PageSorted pages all stubs ordered by less
func (m *Manager) PageSorted(ctx context.Context, request paging.Request, less Less) (*paging.Page[*processor.Stub], error) {
	return m.Page(ctx, request, nil, less)
}

// PageByState pages stubs whose state name is one of names
func (m *Manager) PageByState(ctx context.Context, request paging.Request, names ...string) (*paging.Page[*processor.Stub], error) {
	return m.Page(ctx, request, func(stub *processor.Stub, _ metadata.Metadata) bool {
		return criteria.MatchState(stub.State, names...)
	}, nil)
}

// PageByCategory pages stubs whose state category is one of categories
func (m *Manager) PageByCategory(ctx context.Context, request paging.Request, categories ...execution.Category) (*paging.Page[*processor.Stub], error) {
	return m.Page(ctx, request, func(stub *processor.Stub, _ metadata.Metadata) bool {
		return criteria.MatchCategory(stub.State, categories...)
	}, nil)
}

// PageByModelID pages workflows built from the given root model id
func (m *Manager) PageByModelID(ctx context.Context, request paging.Request, modelID string) (*paging.Page[*processor.Stub], error) {
	return m.Page(ctx, request, func(stub *processor.Stub, _ metadata.Metadata) bool {
		return stub.ModelID == modelID
	}, nil)
}

// PageByMetadata pages workflows whose cached metadata holds, for every key,
// one of the allowed values.
func (m *Manager) PageByMetadata(ctx context.Context, request paging.Request, filter map[string][]string) (*paging.Page[*processor.Stub], error) {
	parameters := dao.NewParameters(filter)
	return m.Page(ctx, request, func(_ *processor.Stub, md metadata.Metadata) bool {
		return criteria.MatchMetadata(md, parameters)
	}, nil)
}

func (m *Manager) snapshot(ctx context.Context, instanceID string, withMetadata bool) (*processor.Stub, metadata.Metadata, error) {
	m.locks.Lock(instanceID)
	defer m.locks.Unlock(instanceID)
	cached := m.lookup(instanceID)
	if cached == nil {
		return nil, nil, nil
	}
	stub, err := cached.Stub(ctx)
	if err != nil {
		return nil, nil, err
	}
	if !withMetadata {
		return stub, nil, nil
	}
	md, err := cached.CachedMetadata(ctx)
	if err != nil {
		return nil, nil, err
	}
	return stub, md, nil
}
