package vkgpu

import (
	"github.com/vkngwrapper/bloom/internal/gpu"
)

// registry maps the handles given out to the renderer onto driver objects.
// Handles are drawn from one counter shared by every registry of a Backend,
// so a handle is never reused for another object.
type registry[T any] struct {
	next *gpu.Handle
	objs map[gpu.Handle]T
}

func newRegistry[T any](next *gpu.Handle) registry[T] {
	return registry[T]{next: next, objs: make(map[gpu.Handle]T)}
}

func (r registry[T]) add(obj T) gpu.Handle {
	*r.next++
	r.objs[*r.next] = obj
	return *r.next
}

func (r registry[T]) get(h gpu.Handle) (T, bool) {
	obj, ok := r.objs[h]
	return obj, ok
}

// take removes h and returns what it pointed at.
func (r registry[T]) take(h gpu.Handle) (T, bool) {
	obj, ok := r.objs[h]
	if ok {
		delete(r.objs, h)
	}
	return obj, ok
}

func (r registry[T]) len() int {
	return len(r.objs)
}

// handles lists every live handle.
func (r registry[T]) handles() []gpu.Handle {
	out := make([]gpu.Handle, 0, len(r.objs))
	for h := range r.objs {
		out = append(out, h)
	}
	return out
}
