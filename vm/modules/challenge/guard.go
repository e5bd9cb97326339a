package challenge

import "sync/atomic"

// Guard is a non-blocking mutual-exclusion flag. Enter fails immediately
// instead of waiting when the flag is already held.
type Guard struct {
	held atomic.Bool
}

// Enter acquires the guard and returns its release function.
func (g *Guard) Enter() (release func(), err error) {
	if !g.held.CompareAndSwap(false, true) {
		return nil, ErrReentrantCall
	}
	return func() { g.held.Store(false) }, nil
}

// Held reports whether an operation currently holds the guard.
func (g *Guard) Held() bool {
	return g.held.Load()
}
