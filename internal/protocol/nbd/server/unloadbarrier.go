package server

import "sync"

// UnloadBarrier is a process-wide barrier preventing a plugin or filter
// from being unloaded while any connection still has requests in flight
// against it, mirroring the refcounted unload-prevention lock in
// original_source/server/locks.c. Every accepted connection holds a
// read-lock for its lifetime; unloading a backend takes the write lock,
// which only succeeds once every in-flight connection has finished.
type UnloadBarrier struct {
	mu sync.RWMutex
}

func NewUnloadBarrier() *UnloadBarrier { return &UnloadBarrier{} }

// RLock/RUnlock are held by a connection for as long as it is accepted
// and being served.
func (b *UnloadBarrier) RLock()   { b.mu.RLock() }
func (b *UnloadBarrier) RUnlock() { b.mu.RUnlock() }

// Lock/Unlock are taken before unloading a plugin or filter, blocking
// until every connection currently holding the read lock has released it.
func (b *UnloadBarrier) Lock()   { b.mu.Lock() }
func (b *UnloadBarrier) Unlock() { b.mu.Unlock() }
