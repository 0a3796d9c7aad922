package vkr

import (
	"sync"
	"sync/atomic"
)

// registry maps opaque gfx handles to Vulkan objects. Handles come from a
// counter shared by every registry of a device, so no two objects share one.
type registry[T any] struct {
	mu    sync.RWMutex
	ids   *atomic.Uint64
	items map[uint64]T
}

func newRegistry[T any](ids *atomic.Uint64) *registry[T] {
	return &registry[T]{ids: ids, items: make(map[uint64]T)}
}

func (r *registry[T]) add(v T) uint64 {
	h := r.ids.Add(1)
	r.mu.Lock()
	r.items[h] = v
	r.mu.Unlock()
	return h
}

func (r *registry[T]) get(h uint64) (T, bool) {
	r.mu.RLock()
	v, ok := r.items[h]
	r.mu.RUnlock()
	return v, ok
}

func (r *registry[T]) remove(h uint64) (T, bool) {
	r.mu.Lock()
	v, ok := r.items[h]
	delete(r.items, h)
	r.mu.Unlock()
	return v, ok
}

func (r *registry[T]) len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.items)
}

// drain empties the registry and returns what was left in it.
func (r *registry[T]) drain() []T {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]T, 0, len(r.items))
	for h, v := range r.items {
		out = append(out, v)
		delete(r.items, h)
	}
	return out
}
