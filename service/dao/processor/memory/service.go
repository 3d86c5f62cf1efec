package memory

import (
	"context"
	"strings"

	"github.com/viant/cascade/model/processor"
	"github.com/viant/cascade/service/dao"
	daoprocessor "github.com/viant/cascade/service/dao/processor"
	"github.com/viant/cascade/service/dao/store"
)

// Service implements an in-memory processor tree repository. Trees are
// cloned on store and load.
type Service struct {
	store *store.MemoryStore[string, processor.Processor]
}

var _ daoprocessor.Repository = (*Service)(nil)

func (s *Service) Store(ctx context.Context, tree *processor.Processor) error {
	if tree == nil {
		return dao.ErrNilEntity
	}
	return s.store.Save(ctx, tree)
}

func (s *Service) Load(ctx context.Context, instanceID string) (*processor.Processor, error) {
	if instanceID == "" {
		return nil, dao.ErrInvalidID
	}
	return s.store.Load(ctx, instanceID)
}

func (s *Service) Delete(ctx context.Context, instanceID string) error {
	if instanceID == "" {
		return dao.ErrInvalidID
	}
	return s.store.Delete(ctx, instanceID)
}

func (s *Service) InstanceIDs(_ context.Context) ([]string, error) {
	return s.store.Keys(func(a, b string) bool { return strings.Compare(a, b) < 0 }), nil
}

// New creates a memory repository
func New() *Service {
	return &Service{
		store: store.NewMemoryStore[string, processor.Processor](
			func(p *processor.Processor) string { return p.InstanceID },
			func(p *processor.Processor) *processor.Processor { return p.Clone() },
		),
	}
}
