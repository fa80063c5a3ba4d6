package memory

import (
	"context"
	"sync"
)

// KVRepo keeps values for the lifetime of the process only.
type KVRepo struct {
	mu     sync.RWMutex
	values map[string]string
}

func NewKVRepo() *KVRepo {
	return &KVRepo{values: make(map[string]string)}
}

func (r *KVRepo) Get(_ context.Context, key string) (string, bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	value, ok := r.values[key]
	return value, ok, nil
}

func (r *KVRepo) Set(_ context.Context, key, value string) error {
	r.mu.Lock()
	r.values[key] = value
	r.mu.Unlock()
	return nil
}

func (r *KVRepo) Delete(_ context.Context, keys ...string) error {
	r.mu.Lock()
	for _, key := range keys {
		delete(r.values, key)
	}
	r.mu.Unlock()
	return nil
}

func (r *KVRepo) Purge(_ context.Context) error {
	r.mu.Lock()
	r.values = make(map[string]string)
	r.mu.Unlock()
	return nil
}

func (r *KVRepo) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.values)
}
