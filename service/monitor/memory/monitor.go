// Package memory keeps node load in process.
package memory

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"

	"github.com/viant/cascade/model/job"
	"github.com/viant/cascade/service/monitor"
)

type entry struct {
	node *job.ResourceNode
	load int
}

// Monitor is an in-memory load ledger
type Monitor struct {
	mu    sync.Mutex
	nodes map[string]*entry
}

// New creates a monitor with nodes registered
func New(nodes ...*job.ResourceNode) *Monitor {
	ret := &Monitor{nodes: map[string]*entry{}}
	for _, node := range nodes {
		ret.Register(node)
	}
	return ret
}

// Register adds node, keeping the current load of a known node
func (m *Monitor) Register(node *job.ResourceNode) {
	if node == nil || node.ID == "" {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.nodes[node.ID]; ok {
		existing.node = node
		return
	}
	m.nodes[node.ID] = &entry{node: node}
}

// AssignLoad adds amount to node load
func (m *Monitor) AssignLoad(_ context.Context, node *job.ResourceNode, amount int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, err := m.lookup(node)
	if err != nil {
		return err
	}
	entry.load += amount
	return nil
}

// ReduceLoad subtracts amount from node load, never below zero
func (m *Monitor) ReduceLoad(_ context.Context, node *job.ResourceNode, amount int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, err := m.lookup(node)
	if err != nil {
		return err
	}
	entry.load -= amount
	if entry.load < 0 {
		entry.load = 0
	}
	return nil
}

func (m *Monitor) lookup(node *job.ResourceNode) (*entry, error) {
	if node == nil {
		return nil, fmt.Errorf("%w: nil", monitor.ErrUnknownNode)
	}
	entry, ok := m.nodes[node.ID]
	if !ok {
		return nil, fmt.Errorf("%w: %v", monitor.ErrUnknownNode, node.ID)
	}
	return entry, nil
}

// Load returns current node load
func (m *Monitor) Load(nodeID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if entry, ok := m.nodes[nodeID]; ok {
		return entry.load
	}
	return 0
}

// Nodes returns registered nodes ordered by id
func (m *Monitor) Nodes() []*job.ResourceNode {
	m.mu.Lock()
	ret := make([]*job.ResourceNode, 0, len(m.nodes))
	for _, entry := range m.nodes {
		ret = append(ret, entry.node)
	}
	m.mu.Unlock()
	sort.Slice(ret, func(i, j int) bool { return ret[i].ID < ret[j].ID })
	return ret
}

// LeastLoaded returns the node with the lowest load that still fits amount,
// skipping excluded node ids. A zero capacity means unbounded; ties go to the
// lower node id.
func (m *Monitor) LeastLoaded(_ context.Context, amount int, exclude ...string) (*job.ResourceNode, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var best *entry
	for id, candidate := range m.nodes {
		if slices.Contains(exclude, id) {
			continue
		}
		capacity := candidate.node.Capacity
		if capacity > 0 && candidate.load+amount > capacity {
			continue
		}
		if best == nil || candidate.load < best.load ||
			(candidate.load == best.load && candidate.node.ID < best.node.ID) {
			best = candidate
		}
	}
	if best == nil {
		return nil, monitor.ErrNoCapacity
	}
	return best.node, nil
}

var _ monitor.Balancer = (*Monitor)(nil)
