package persistence

import (
	"context"
	"sync"

	"github.com/vextrus/vextrus-erp-sub018/pkg/api"
)

// InMemoryStore is a goroutine-safe InstanceStore and HistoryStore backed by
// maps. Instances and events round-trip through the gob codec so in-memory
// behavior matches the durable backends (no shared pointers, payloads must
// be encodable).
type InMemoryStore struct {
	mu        sync.RWMutex
	instances map[string][]byte
	histories map[string][]api.HistoryEvent
}

// NewInMemoryStore creates a new InMemoryStore.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		instances: make(map[string][]byte),
		histories: make(map[string][]api.HistoryEvent),
	}
}

var (
	_ InstanceStore = (*InMemoryStore)(nil)
	_ HistoryStore  = (*InMemoryStore)(nil)
)

func (s *InMemoryStore) SaveInstance(ctx context.Context, inst *api.WorkflowInstance) error {
	data, err := EncodeInstance(inst)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.instances[inst.ID]; ok {
		return ErrDuplicateInstance
	}
	s.instances[inst.ID] = data
	return nil
}

func (s *InMemoryStore) UpdateInstance(ctx context.Context, inst *api.WorkflowInstance) error {
	data, err := EncodeInstance(inst)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.instances[inst.ID]; !ok {
		return ErrInstanceNotFound
	}
	s.instances[inst.ID] = data
	return nil
}

func (s *InMemoryStore) GetInstance(ctx context.Context, id string) (*api.WorkflowInstance, error) {
	s.mu.RLock()
	data, ok := s.instances[id]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrInstanceNotFound
	}
	return DecodeInstance(data)
}

func (s *InMemoryStore) ListInstances(ctx context.Context, filter api.ListFilter) ([]*api.WorkflowInstance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*api.WorkflowInstance
	for _, data := range s.instances {
		inst, err := DecodeInstance(data)
		if err != nil {
			return nil, err
		}
		if !matches(inst, filter) {
			continue
		}
		result = append(result, inst)
	}
	return result, nil
}

func (s *InMemoryStore) AppendEvents(ctx context.Context, instanceID string, events []api.HistoryEvent) error {
	// Round-trip through gob so replayed payloads have the same shape a
	// durable store would produce.
	data, err := EncodeEvents(events)
	if err != nil {
		return err
	}
	decoded, err := DecodeEvents(data)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.histories[instanceID] = append(s.histories[instanceID], decoded...)
	return nil
}

func (s *InMemoryStore) LoadHistory(ctx context.Context, instanceID string) ([]api.HistoryEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	events := s.histories[instanceID]
	out := make([]api.HistoryEvent, len(events))
	copy(out, events)
	return out, nil
}

func matches(inst *api.WorkflowInstance, filter api.ListFilter) bool {
	if filter.TenantID != "" && inst.TenantID != filter.TenantID {
		return false
	}
	if filter.Status != "" && inst.Status != filter.Status {
		return false
	}
	if filter.Type != "" && inst.Type != filter.Type {
		return false
	}
	return true
}
