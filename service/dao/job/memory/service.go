package memory

import (
	"context"
	"fmt"
	"sort"

	"github.com/hashicorp/go-memdb"
	"github.com/viant/cascade/model/job"
	"github.com/viant/cascade/service/dao"
	daojob "github.com/viant/cascade/service/dao/job"
)

const (
	table       = "jobs"
	indexID     = "id"
	indexStatus = "status"
)

type record struct {
	ID     string
	Status string
	Spec   *job.Spec
}

func schema() *memdb.DBSchema {
	return &memdb.DBSchema{
		Tables: map[string]*memdb.TableSchema{
			table: {
				Name: table,
				Indexes: map[string]*memdb.IndexSchema{
					indexID: {
						Name:    indexID,
						Unique:  true,
						Indexer: &memdb.StringFieldIndex{Field: "ID"},
					},
					indexStatus: {
						Name:         indexStatus,
						AllowMissing: true,
						Indexer:      &memdb.StringFieldIndex{Field: "Status"},
					},
				},
			},
		},
	}
}

// Service is an in-memory job repository backed by go-memdb
type Service struct {
	db *memdb.MemDB
}

var _ daojob.Repository = (*Service)(nil)

func (s *Service) Job(_ context.Context, id string) (*job.Spec, error) {
	if id == "" {
		return nil, dao.ErrInvalidID
	}
	txn := s.db.Txn(false)
	defer txn.Abort()
	raw, err := txn.First(table, indexID, id)
	if err != nil {
		return nil, fmt.Errorf("failed to lookup job %v: %w", id, err)
	}
	if raw == nil {
		return nil, fmt.Errorf("%w: job %v", dao.ErrNotFound, id)
	}
	return raw.(*record).Spec.Clone(), nil
}

func (s *Service) Add(_ context.Context, spec *job.Spec) error {
	if spec == nil || spec.Job == nil {
		return dao.ErrNilEntity
	}
	if spec.ID() == "" {
		return dao.ErrInvalidID
	}
	txn := s.db.Txn(true)
	defer txn.Abort()
	if err := txn.Insert(table, newRecord(spec)); err != nil {
		return fmt.Errorf("failed to add job %v: %w", spec.ID(), err)
	}
	txn.Commit()
	return nil
}

func (s *Service) Update(_ context.Context, spec *job.Spec) error {
	if spec == nil || spec.Job == nil {
		return dao.ErrNilEntity
	}
	if spec.ID() == "" {
		return dao.ErrInvalidID
	}
	txn := s.db.Txn(true)
	defer txn.Abort()
	existing, err := txn.First(table, indexID, spec.ID())
	if err != nil {
		return fmt.Errorf("failed to lookup job %v: %w", spec.ID(), err)
	}
	if existing == nil {
		return fmt.Errorf("%w: job %v", dao.ErrNotFound, spec.ID())
	}
	if err = txn.Insert(table, newRecord(spec)); err != nil {
		return fmt.Errorf("failed to update job %v: %w", spec.ID(), err)
	}
	txn.Commit()
	return nil
}

func (s *Service) Delete(_ context.Context, id string) error {
	if id == "" {
		return dao.ErrInvalidID
	}
	txn := s.db.Txn(true)
	defer txn.Abort()
	existing, err := txn.First(table, indexID, id)
	if err != nil {
		return fmt.Errorf("failed to lookup job %v: %w", id, err)
	}
	if existing == nil {
		return fmt.Errorf("%w: job %v", dao.ErrNotFound, id)
	}
	if err = txn.Delete(table, existing); err != nil {
		return fmt.Errorf("failed to delete job %v: %w", id, err)
	}
	txn.Commit()
	return nil
}

func (s *Service) List(_ context.Context, statuses ...job.Status) ([]*job.Spec, error) {
	txn := s.db.Txn(false)
	defer txn.Abort()
	var ret []*job.Spec
	if len(statuses) == 0 {
		it, err := txn.Get(table, indexID)
		if err != nil {
			return nil, fmt.Errorf("failed to list jobs: %w", err)
		}
		for raw := it.Next(); raw != nil; raw = it.Next() {
			ret = append(ret, raw.(*record).Spec.Clone())
		}
		return ret, nil
	}
	for _, status := range statuses {
		it, err := txn.Get(table, indexStatus, string(status))
		if err != nil {
			return nil, fmt.Errorf("failed to list %v jobs: %w", status, err)
		}
		for raw := it.Next(); raw != nil; raw = it.Next() {
			ret = append(ret, raw.(*record).Spec.Clone())
		}
	}
	sortByID(ret)
	return ret, nil
}

func sortByID(specs []*job.Spec) {
	sort.SliceStable(specs, func(i, j int) bool { return specs[i].ID() < specs[j].ID() })
}

func newRecord(spec *job.Spec) *record {
	clone := spec.Clone()
	return &record{ID: clone.Job.ID, Status: string(clone.Job.Status), Spec: clone}
}

// New creates a memory job repository
func New() (*Service, error) {
	db, err := memdb.NewMemDB(schema())
	if err != nil {
		return nil, fmt.Errorf("failed to create job store: %w", err)
	}
	return &Service{db: db}, nil
}
