package persistence

import (
	"context"
	"errors"

	"github.com/redis/go-redis/v9"

	"github.com/vextrus/vextrus-erp-sub018/pkg/api"
)

// RedisStore is an InstanceStore and HistoryStore backed by Redis.
// It uses a simple key structure:
//
//	<prefix>inst:<id>             => gob-encoded instance record
//	<prefix>hist:<id>             => LIST of gob-encoded history events
//	<prefix>idx:all               => SET of all instance IDs
//
// Filtering in ListInstances is done client-side over the decoded records;
// the index set only bounds the scan.
type RedisStore struct {
	client *redis.Client
	prefix string
}

var (
	_ InstanceStore = (*RedisStore)(nil)
	_ HistoryStore  = (*RedisStore)(nil)
)

// NewRedisStore creates a RedisStore. prefix is optional but recommended
// (e.g. "approvalflow:").
func NewRedisStore(client *redis.Client, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "approvalflow:"
	}
	return &RedisStore{client: client, prefix: prefix}
}

func (s *RedisStore) keyInstance(id string) string { return s.prefix + "inst:" + id }
func (s *RedisStore) keyHistory(id string) string  { return s.prefix + "hist:" + id }
func (s *RedisStore) keyAll() string               { return s.prefix + "idx:all" }

func (s *RedisStore) SaveInstance(ctx context.Context, inst *api.WorkflowInstance) error {
	data, err := EncodeInstance(inst)
	if err != nil {
		return err
	}
	ok, err := s.client.SetNX(ctx, s.keyInstance(inst.ID), data, 0).Result()
	if err != nil {
		return err
	}
	if !ok {
		return ErrDuplicateInstance
	}
	return s.client.SAdd(ctx, s.keyAll(), inst.ID).Err()
}

func (s *RedisStore) UpdateInstance(ctx context.Context, inst *api.WorkflowInstance) error {
	data, err := EncodeInstance(inst)
	if err != nil {
		return err
	}
	ok, err := s.client.SetXX(ctx, s.keyInstance(inst.ID), data, 0).Result()
	if err != nil {
		return err
	}
	if !ok {
		return ErrInstanceNotFound
	}
	return nil
}

func (s *RedisStore) GetInstance(ctx context.Context, id string) (*api.WorkflowInstance, error) {
	data, err := s.client.Get(ctx, s.keyInstance(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrInstanceNotFound
		}
		return nil, err
	}
	return DecodeInstance(data)
}

func (s *RedisStore) ListInstances(ctx context.Context, filter api.ListFilter) ([]*api.WorkflowInstance, error) {
	ids, err := s.client.SMembers(ctx, s.keyAll()).Result()
	if err != nil {
		return nil, err
	}

	var result []*api.WorkflowInstance
	for _, id := range ids {
		inst, err := s.GetInstance(ctx, id)
		if err != nil {
			if errors.Is(err, ErrInstanceNotFound) {
				// Index entry outlived its record; skip.
				continue
			}
			return nil, err
		}
		if !matches(inst, filter) {
			continue
		}
		result = append(result, inst)
	}
	return result, nil
}

func (s *RedisStore) AppendEvents(ctx context.Context, instanceID string, events []api.HistoryEvent) error {
	if len(events) == 0 {
		return nil
	}
	values := make([]any, 0, len(events))
	for _, ev := range events {
		data, err := EncodeEvent(ev)
		if err != nil {
			return err
		}
		values = append(values, data)
	}
	return s.client.RPush(ctx, s.keyHistory(instanceID), values...).Err()
}

func (s *RedisStore) LoadHistory(ctx context.Context, instanceID string) ([]api.HistoryEvent, error) {
	raw, err := s.client.LRange(ctx, s.keyHistory(instanceID), 0, -1).Result()
	if err != nil {
		return nil, err
	}
	events := make([]api.HistoryEvent, 0, len(raw))
	for _, item := range raw {
		ev, err := DecodeEvent([]byte(item))
		if err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	return events, nil
}
