package peer

import "sync"

// guarded pairs a value with the mutex that protects it. Every read or
// check-then-mutate goes through with, so the critical section is explicit.
type guarded[T any] struct {
	mu sync.Mutex
	v  T
}

func (g *guarded[T]) with(fn func(v *T) error) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return fn(&g.v)
}
