package persistence

import (
	"context"
	"errors"

	"github.com/vextrus/vextrus-erp-sub018/pkg/api"
)

// ErrInstanceNotFound is returned when a workflow instance is not found.
var ErrInstanceNotFound = errors.New("instance not found")

// ErrDuplicateInstance is returned when saving an instance whose ID is
// already taken.
var ErrDuplicateInstance = errors.New("instance already exists")

// InstanceStore handles storage of workflow instance records. The record is
// the queryable snapshot (status, wait state, signal buffer); the source of
// truth for execution state is the history.
type InstanceStore interface {
	// SaveInstance inserts a new instance. Fails with ErrDuplicateInstance
	// if the ID is already present.
	SaveInstance(ctx context.Context, inst *api.WorkflowInstance) error
	UpdateInstance(ctx context.Context, inst *api.WorkflowInstance) error
	GetInstance(ctx context.Context, id string) (*api.WorkflowInstance, error)
	ListInstances(ctx context.Context, filter api.ListFilter) ([]*api.WorkflowInstance, error)
}

// HistoryStore is the append-only log of recorded suspension outcomes.
// Events are totally ordered per instance by their sequence number; a store
// must return them in that order.
type HistoryStore interface {
	AppendEvents(ctx context.Context, instanceID string, events []api.HistoryEvent) error
	LoadHistory(ctx context.Context, instanceID string) ([]api.HistoryEvent, error)
}

// Persistence bundles the store interfaces so the runtime can depend on a
// single abstraction.
type Persistence struct {
	Instances InstanceStore
	History   HistoryStore
}
