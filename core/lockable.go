package qcore

import "sync"

// threadLock hands a thread over to the goroutine holding its Locker. The
// thread accepts acquire only between two events, then blocks in yield
// until release.
type threadLock struct {
	acquire chan struct{}
	release chan struct{}
}

func newThreadLock() *threadLock {
	return &threadLock{
		acquire: make(chan struct{}),
		release: make(chan struct{}),
	}
}

func (l *threadLock) Lock()   { l.acquire <- struct{}{} }
func (l *threadLock) Unlock() { l.release <- struct{}{} }

// yield is called by the thread after receiving from acquire.
func (l *threadLock) yield() { <-l.release }

// Locker returns a sync.Locker for mutually exclusive execution with the
// thread's event processing. Locking waits until the thread is between two
// events and guarantees that no event is delivered until unlocked, so the
// objects living in the thread can be accessed safely from another goroutine
// while holding the lock.
//
// Lock blocks until the thread processes events, so it must not be used on
// a thread that is not running an event loop.
func (t *Thread) Locker() sync.Locker {
	return t.lock
}
