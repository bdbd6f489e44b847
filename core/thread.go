package qcore

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"time"
)

// ProcessEventsFlags control which events ProcessEvents delivers.
type ProcessEventsFlags int

const (
	AllEvents ProcessEventsFlags = 0x00
	// ExcludeUserInputEvents leaves user input events queued for a later
	// pass.
	ExcludeUserInputEvents ProcessEventsFlags = 0x01
	// ExcludeSocketNotifiers is accepted for compatibility and has no effect.
	ExcludeSocketNotifiers ProcessEventsFlags = 0x02
	// WaitForMoreEvents blocks until at least one event was delivered or the
	// loop was asked to exit.
	WaitForMoreEvents ProcessEventsFlags = 0x04
	EventLoopExec     ProcessEventsFlags = 0x20
)

type postedEvent struct {
	receiver *objectData
	event    Event
	priority int
	seq      uint64
}

// Thread is an event-processing context. Every object lives in exactly one
// Thread, and posted events and queued calls for it are delivered by that
// thread's event loop. A Thread runs on its own goroutine from the
// application's worker pool once started; the main thread runs on whichever
// goroutine calls Application.Exec.
type Thread struct {
	app  *Application
	name string
	id   uint64
	main bool

	mu       sync.Mutex
	queue    []postedEvent
	seq      uint64
	loops    []*EventLoop
	quitNow  bool
	exitCode int

	wake       chan struct{}
	loopLevel  atomic.Int32
	scopeLevel atomic.Int32

	started  atomic.Bool
	running  atomic.Bool
	finished chan struct{}

	lock *threadLock
}

func newThread(a *Application, name string, id uint64, main bool) *Thread {
	return &Thread{
		app:      a,
		name:     name,
		id:       id,
		main:     main,
		wake:     make(chan struct{}, 1),
		finished: make(chan struct{}),
		lock:     newThreadLock(),
	}
}

func (t *Thread) Name() string { return t.name }

func (t *Thread) String() string {
	return fmt.Sprintf("%s#%d", t.name, t.id)
}

func (t *Thread) IsMain() bool { return t.main }

// IsRunning reports whether the thread's goroutine is running. The main
// thread is running while Application.Exec is.
func (t *Thread) IsRunning() bool { return t.running.Load() }

// LoopLevel is the number of event loops currently running in the thread.
func (t *Thread) LoopLevel() int { return int(t.loopLevel.Load()) }

// Init initializes obj to live in this thread, optionally with a parent.
// The parent must live in this thread as well.
func (t *Thread) Init(obj AnyObject, parent AnyObject) error {
	return initObject(t.app, obj, t, parent)
}

func (t *Thread) wakeUp() {
	select {
	case t.wake <- struct{}{}:
	default:
	}
}

// interrupted reports whether a running loop has been asked to exit, which
// ends any wait for more events.
func (t *Thread) interrupted() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.quitNow {
		return true
	}
	for _, l := range t.loops {
		if l.exit.Load() {
			return true
		}
	}
	return false
}

// insertLocked keeps the queue sorted by descending priority, FIFO within a
// priority.
func (t *Thread) insertLocked(pe postedEvent) {
	t.seq++
	pe.seq = t.seq
	i := len(t.queue)
	for i > 0 && t.queue[i-1].priority < pe.priority {
		i--
	}
	t.queue = slices.Insert(t.queue, i, pe)
}

// lockData locks the thread d currently lives in, retrying if the object is
// moved concurrently.
func (d *objectData) lockData() *Thread {
	for {
		t := d.thread.Load()
		t.mu.Lock()
		if d.thread.Load() == t {
			return t
		}
		t.mu.Unlock()
	}
}

func (d *objectData) postEvent(e Event, priority int) {
	if d.wasDeleted.Load() {
		dropEvent(e)
		return
	}
	t := d.lockData()
	if dd, ok := e.(*DeferredDeleteEvent); ok {
		loop, scope := int(t.loopLevel.Load()), int(t.scopeLevel.Load())
		if scope == 0 && loop != 0 {
			scope = 1
		}
		dd.level = loop + scope
	}
	e.base().posted = true
	d.postedEvents.Add(1)
	t.insertLocked(postedEvent{receiver: d, event: e, priority: priority})
	n := len(t.queue)
	t.mu.Unlock()
	t.wakeUp()

	if limit := t.app.cfg.QueueWarnLength; limit > 0 && n >= limit {
		d.warn("queue").Str("thread", t.String()).Int("length", n).Msg("posted event queue is growing")
	}
}

// dropEvent releases anything waiting on an event that will never be
// delivered.
func dropEvent(e Event) {
	switch e := e.(type) {
	case *MetaCallEvent:
		e.finish()
	case *TimerEvent:
		if e.timer != nil {
			e.timer.delivered()
		}
	}
}

// RemovePostedEvents discards events posted to receiver that have not been
// delivered. A zero eventType removes all of them.
func RemovePostedEvents(receiver AnyObject, eventType EventType) {
	if d := dataOf(receiver); d != nil {
		d.removePostedEvents(eventType)
	}
}

func (d *objectData) removePostedEvents(eventType EventType) {
	t := d.lockData()
	var dropped []Event
	t.queue = slices.DeleteFunc(t.queue, func(pe postedEvent) bool {
		if pe.receiver != d || (eventType != EventNone && pe.event.Type() != eventType) {
			return false
		}
		dropped = append(dropped, pe.event)
		return true
	})
	t.mu.Unlock()
	d.postedEvents.Add(-int32(len(dropped)))
	for _, e := range dropped {
		dropEvent(e)
	}
}

func (t *Thread) allowDeferredDelete(e *DeferredDeleteEvent, explicit bool) bool {
	eventLevel := e.level
	loopLevel := int(t.loopLevel.Load() + t.scopeLevel.Load())
	return eventLevel > loopLevel ||
		(eventLevel == 0 && loopLevel > 0) ||
		(explicit && eventLevel == loopLevel)
}

// takeLocked removes and returns the first deliverable event that was posted
// no later than limit.
func (t *Thread) takeLocked(receiver *objectData, eventType EventType, flags ProcessEventsFlags, limit uint64) (postedEvent, bool) {
	explicit := eventType == EventDeferredDelete
	for i, pe := range t.queue {
		if pe.seq > limit {
			continue
		}
		if receiver != nil && pe.receiver != receiver {
			continue
		}
		if eventType != EventNone && pe.event.Type() != eventType {
			continue
		}
		if flags&ExcludeUserInputEvents != 0 && pe.event.Type().IsUserInput() {
			continue
		}
		if dd, ok := pe.event.(*DeferredDeleteEvent); ok && !t.allowDeferredDelete(dd, explicit) {
			continue
		}
		t.queue = slices.Delete(t.queue, i, i+1)
		return pe, true
	}
	return postedEvent{}, false
}

// sendPostedEvents delivers the events queued when it was called, leaving
// events posted meanwhile for the next pass.
func (t *Thread) sendPostedEvents(receiver *objectData, eventType EventType, flags ProcessEventsFlags, deadline time.Time) bool {
	t.mu.Lock()
	limit := t.seq
	t.mu.Unlock()

	processed := false
	for deadline.IsZero() || time.Now().Before(deadline) {
		t.mu.Lock()
		pe, ok := t.takeLocked(receiver, eventType, flags, limit)
		t.mu.Unlock()
		if !ok {
			break
		}
		pe.receiver.postedEvents.Add(-1)
		t.deliver(pe)
		processed = true
	}
	return processed
}

func (t *Thread) deliver(pe postedEvent) {
	if pe.receiver.wasDeleted.Load() {
		dropEvent(pe.event)
		return
	}
	if te, ok := pe.event.(*TimerEvent); ok && te.timer != nil {
		te.timer.delivered()
	}
	t.scopeLevel.Add(1)
	defer t.scopeLevel.Add(-1)
	pe.receiver.notify(pe.event)
}

// SendPostedEvents immediately delivers events posted to receiver, or to
// every object of the thread if receiver is nil, in the calling goroutine.
// A zero eventType delivers all types. Passing EventDeferredDelete also
// delivers deletions posted at the current loop level.
//
// It must only be called from the goroutine running the thread.
func (t *Thread) SendPostedEvents(receiver AnyObject, eventType EventType) {
	var d *objectData
	if receiver != nil {
		if d = dataOf(receiver); d == nil {
			return
		}
		if d.thread.Load() != t {
			d.warn("event").Msg("cannot send posted events of an object living in another thread")
			return
		}
	}
	t.sendPostedEvents(d, eventType, AllEvents, time.Time{})
}

// ProcessEvents delivers pending events in the calling goroutine, which
// must be the one running the thread. It returns whether any event was
// delivered. With WaitForMoreEvents it blocks until an event arrives or a
// running loop is asked to exit.
func (t *Thread) ProcessEvents(flags ProcessEventsFlags) bool {
	return t.processEvents(flags, time.Time{})
}

// ProcessEventsFor is ProcessEvents limited to the duration d.
func (t *Thread) ProcessEventsFor(flags ProcessEventsFlags, d time.Duration) bool {
	return t.processEvents(flags, time.Now().Add(d))
}

func (t *Thread) processEvents(flags ProcessEventsFlags, deadline time.Time) bool {
	for {
		select {
		case <-t.lock.acquire:
			t.lock.yield()
		default:
		}
		if t.sendPostedEvents(nil, EventNone, flags, deadline) {
			return true
		}
		if flags&WaitForMoreEvents == 0 || t.interrupted() {
			return false
		}

		var (
			timer   *time.Timer
			timeout <-chan time.Time
		)
		if !deadline.IsZero() {
			wait := time.Until(deadline)
			if wait <= 0 {
				return false
			}
			timer = time.NewTimer(wait)
			timeout = timer.C
		}
		select {
		case <-t.wake:
		case <-t.lock.acquire:
			t.lock.yield()
		case <-timeout:
			return false
		}
		if timer != nil {
			timer.Stop()
		}
	}
}

// Exec runs an event loop in the calling goroutine until Exit or Quit is
// called, and returns the exit code.
func (t *Thread) Exec() int {
	t.mu.Lock()
	t.quitNow = false
	t.exitCode = 0
	t.mu.Unlock()
	return t.exec()
}

func (t *Thread) exec() int {
	loop := &EventLoop{}
	if err := initObject(t.app, loop, t, nil); err != nil {
		t.app.warner.warn("thread").Err(err).Str("thread", t.String()).Msg("cannot start event loop")
		return -1
	}
	defer loop.d.destroy()
	code := loop.Exec(AllEvents)

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.quitNow {
		return t.exitCode
	}
	return code
}

// Exit tells every event loop running in the thread to return code.
func (t *Thread) Exit(code int) {
	t.mu.Lock()
	t.quitNow = true
	t.exitCode = code
	for _, l := range t.loops {
		l.code.Store(int32(code))
		l.exit.Store(true)
	}
	t.mu.Unlock()
	t.wakeUp()
}

func (t *Thread) Quit() { t.Exit(0) }

// Start runs the thread's event loop on a goroutine from the application's
// worker pool. Deferred deletions still pending when the loop returns are
// delivered before the thread finishes.
func (t *Thread) Start() error {
	if t.main {
		return ErrMainThread
	}
	if !t.started.CompareAndSwap(false, true) {
		return ErrThreadRunning
	}
	t.mu.Lock()
	t.quitNow = false
	t.exitCode = 0
	t.mu.Unlock()
	t.running.Store(true)
	err := t.app.pool.Submit(func() {
		defer close(t.finished)
		defer t.running.Store(false)
		defer t.sendPostedEvents(nil, EventDeferredDelete, AllEvents, time.Time{})
		code := t.exec()
		t.app.warner.debug().Str("thread", t.String()).Int("code", code).Msg("thread finished")
	})
	if err != nil {
		t.running.Store(false)
		t.started.Store(false)
		return fmt.Errorf("qcore: start thread %s: %w", t, err)
	}
	return nil
}

// Finished is closed once a started thread has returned from its loop.
func (t *Thread) Finished() <-chan struct{} { return t.finished }

// Wait blocks until the thread has finished or ctx is done.
func (t *Thread) Wait(ctx context.Context) error {
	if t.main || !t.started.Load() {
		return nil
	}
	select {
	case <-t.finished:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// PendingEvents returns the number of events queued in the thread.
func (t *Thread) PendingEvents() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.queue)
}
