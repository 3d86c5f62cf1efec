package fs

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	neturl "net/url"
	"sort"
	"strings"
	"sync"

	"github.com/viant/afs"
	"github.com/viant/afs/file"
	"github.com/viant/afs/option"
	"github.com/viant/afs/url"
	"github.com/viant/cascade/model/processor"
	"github.com/viant/cascade/service/dao"
	daoprocessor "github.com/viant/cascade/service/dao/processor"
)

const ext = ".json"

// Service persists processor trees as one JSON document per instance on
// any afs supported storage.
type Service struct {
	baseURL string
	fs      afs.Service
	mu      sync.RWMutex
}

var _ daoprocessor.Repository = (*Service)(nil)

// Store writes the tree document
func (s *Service) Store(ctx context.Context, tree *processor.Processor) error {
	if tree == nil {
		return dao.ErrNilEntity
	}
	if tree.InstanceID == "" {
		return dao.ErrInvalidID
	}
	data, err := json.Marshal(tree)
	if err != nil {
		return fmt.Errorf("failed to marshal processor %v: %w", tree.InstanceID, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	location := s.location(tree.InstanceID)
	if err = s.fs.Upload(ctx, location, file.DefaultFileOsMode, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("failed to store processor to %s: %w", location, err)
	}
	return nil
}

// Load reads and links the tree document
func (s *Service) Load(ctx context.Context, instanceID string) (*processor.Processor, error) {
	if instanceID == "" {
		return nil, dao.ErrInvalidID
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	location := s.location(instanceID)
	exists, err := s.fs.Exists(ctx, location)
	if err != nil {
		return nil, fmt.Errorf("failed to check processor %v: %w", instanceID, err)
	}
	if !exists {
		return nil, fmt.Errorf("%w: processor %v", dao.ErrNotFound, instanceID)
	}
	data, err := s.fs.DownloadWithURL(ctx, location)
	if err != nil {
		return nil, fmt.Errorf("failed to read processor %v: %w", instanceID, err)
	}
	ret := &processor.Processor{}
	if err = json.Unmarshal(data, ret); err != nil {
		return nil, fmt.Errorf("failed to unmarshal processor %v: %w", instanceID, err)
	}
	ret.Link()
	return ret, nil
}

// Delete removes the tree document
func (s *Service) Delete(ctx context.Context, instanceID string) error {
	if instanceID == "" {
		return dao.ErrInvalidID
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	location := s.location(instanceID)
	exists, err := s.fs.Exists(ctx, location)
	if err != nil {
		return fmt.Errorf("failed to check processor %v: %w", instanceID, err)
	}
	if !exists {
		return fmt.Errorf("%w: processor %v", dao.ErrNotFound, instanceID)
	}
	if err = s.fs.Delete(ctx, location); err != nil {
		return fmt.Errorf("failed to delete processor %v: %w", instanceID, err)
	}
	return nil
}

// InstanceIDs lists stored instance ids in lexicographic order
func (s *Service) InstanceIDs(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	objects, err := s.fs.List(ctx, s.baseURL, option.NewRecursive(false))
	if err != nil {
		return nil, fmt.Errorf("failed to list processors: %w", err)
	}
	var ret []string
	for _, object := range objects {
		if object.IsDir() || !strings.HasSuffix(object.Name(), ext) {
			continue
		}
		id, err := neturl.PathUnescape(strings.TrimSuffix(object.Name(), ext))
		if err != nil {
			continue
		}
		ret = append(ret, id)
	}
	sort.Strings(ret)
	return ret, nil
}

func (s *Service) location(instanceID string) string {
	return url.Join(s.baseURL, neturl.PathEscape(instanceID)+ext)
}

// New creates a repository rooted at baseURL, creating it when missing.
func New(ctx context.Context, baseURL string) (*Service, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("base URL cannot be empty")
	}
	fs := afs.New()
	baseURL = url.Normalize(baseURL, file.Scheme)
	exists, _ := fs.Exists(ctx, baseURL)
	if !exists {
		if err := fs.Create(ctx, baseURL, file.DefaultDirOsMode, true); err != nil {
			return nil, fmt.Errorf("failed to create base directory: %w", err)
		}
	}
	return &Service{baseURL: baseURL, fs: fs}, nil
}
