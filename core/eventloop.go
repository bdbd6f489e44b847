package qcore

import (
	"sync/atomic"
	"time"
)

// EventLoop runs a (possibly nested) event loop in the thread it lives in.
// Deferred deletions posted while a nested loop runs are held back until the
// loop that was running when they were posted gets control again.
type EventLoop struct {
	Object

	running atomic.Bool
	exit    atomic.Bool
	code    atomic.Int32
}

// Exec processes events until Exit or Quit is called and returns the exit
// code. It must be called from the goroutine running the loop's thread.
func (l *EventLoop) Exec(flags ProcessEventsFlags) int {
	if l.d == nil {
		fallbackWarner.warn("eventloop").Msg("event loop is not initialized")
		return -1
	}
	t := l.d.thread.Load()

	t.mu.Lock()
	if t.quitNow {
		t.mu.Unlock()
		return -1
	}
	if l.running.Load() {
		t.mu.Unlock()
		l.d.warn("eventloop").Msg("event loop is already running")
		return -1
	}
	l.running.Store(true)
	l.exit.Store(false)
	l.code.Store(0)
	t.loops = append(t.loops, l)
	t.mu.Unlock()
	t.loopLevel.Add(1)

	defer func() {
		t.mu.Lock()
		if n := len(t.loops); n > 0 && t.loops[n-1] == l {
			t.loops = t.loops[:n-1]
		}
		l.running.Store(false)
		t.mu.Unlock()
		t.loopLevel.Add(-1)
	}()

	for !l.exit.Load() {
		t.processEvents(flags|WaitForMoreEvents|EventLoopExec, time.Time{})
	}
	return int(l.code.Load())
}

// Exit makes Exec return code once control returns to the loop.
func (l *EventLoop) Exit(code int) {
	l.code.Store(int32(code))
	l.exit.Store(true)
	if l.d != nil {
		l.d.thread.Load().wakeUp()
	}
}

// Quit is Exit(0).
func (l *EventLoop) Quit() {
	l.Exit(0)
}

func (l *EventLoop) IsRunning() bool {
	return l.running.Load()
}

// ProcessEvents is Thread.ProcessEvents for the loop's thread.
func (l *EventLoop) ProcessEvents(flags ProcessEventsFlags) bool {
	if l.d == nil {
		return false
	}
	return l.d.thread.Load().processEvents(flags, time.Time{})
}

func (l *EventLoop) WakeUp() {
	if l.d != nil {
		l.d.thread.Load().wakeUp()
	}
}
