package qcore

import (
	"reflect"
	"sync"
	"sync/atomic"
	"time"
)

type objectTimer struct {
	id       int
	interval time.Duration
	stopped  atomic.Bool

	mu      sync.Mutex
	timer   *time.Timer
	pending bool
	// parked is set when the timer fired while its event was still queued.
	// It is rearmed when that event is delivered.
	parked bool
}

// StartTimer starts a timer that posts a TimerEvent to the object every
// interval, and returns its id. At most one event per timer is pending at a
// time; ticks while one is queued are dropped.
func (o *Object) StartTimer(interval time.Duration) int {
	d := o.d
	if d == nil {
		return 0
	}
	if interval < 0 {
		d.warn("timer").Dur("interval", interval).Msg("timers cannot have a negative interval")
		return 0
	}
	if d.destroying.Load() {
		return 0
	}
	tm := &objectTimer{
		id:       int(d.app.nextTimerID.Add(1)),
		interval: interval,
	}
	d.mu.Lock()
	if d.timers == nil {
		d.timers = make(map[int]*objectTimer)
	}
	d.timers[tm.id] = tm
	tm.mu.Lock()
	tm.timer = time.AfterFunc(interval, func() { d.timerFired(tm) })
	tm.mu.Unlock()
	d.mu.Unlock()
	return tm.id
}

func (d *objectData) timerFired(tm *objectTimer) {
	if tm.stopped.Load() || d.wasDeleted.Load() {
		return
	}
	tm.mu.Lock()
	if tm.pending {
		tm.parked = true
		tm.mu.Unlock()
		return
	}
	tm.pending = true
	if !tm.stopped.Load() {
		tm.timer.Reset(tm.interval)
	}
	tm.mu.Unlock()
	d.postEvent(&TimerEvent{BaseEvent: NewBaseEvent(EventTimer), id: tm.id, timer: tm}, NormalEventPriority)
}

// delivered clears the pending event of the timer, delivered or dropped.
func (tm *objectTimer) delivered() {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	tm.pending = false
	if tm.parked && !tm.stopped.Load() {
		tm.parked = false
		tm.timer.Reset(tm.interval)
	}
}

func (tm *objectTimer) stop() {
	tm.stopped.Store(true)
	tm.mu.Lock()
	tm.timer.Stop()
	tm.mu.Unlock()
}

// KillTimer stops the timer with the given id. Events it already posted are
// discarded on delivery.
func (o *Object) KillTimer(id int) {
	d := o.d
	if d == nil {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	tm, ok := d.timers[id]
	if !ok {
		d.warn("timer").Int("id", id).Msg("cannot kill a timer the object did not start")
		return
	}
	tm.stop()
	delete(d.timers, id)
}

func (d *objectData) killAllTimers() {
	d.mu.Lock()
	defer d.mu.Unlock()
	for id, tm := range d.timers {
		tm.stop()
		delete(d.timers, id)
	}
}

// Timer is an object that emits Timeout when its interval elapses, once or
// repeatedly. Events are delivered by the thread the timer lives in. Start
// and Stop belong to that thread; IsActive may be called from anywhere.
type Timer struct {
	Object

	Timeout func()

	Interval   time.Duration `json:"interval"`
	SingleShot bool          `json:"singleShot"`

	id atomic.Int64
}

// Start (re)starts the timer with its current interval.
func (t *Timer) Start() {
	t.Stop()
	t.id.Store(int64(t.StartTimer(t.Interval)))
}

func (t *Timer) Stop() {
	if id := t.id.Swap(0); id != 0 {
		t.KillTimer(int(id))
	}
}

func (t *Timer) SetInterval(interval time.Duration) {
	if t.Interval == interval {
		return
	}
	t.Interval = interval
	if t.IsActive() {
		t.Start()
	}
	t.Emit("intervalChanged")
}

func (t *Timer) IsActive() bool {
	return t.id.Load() != 0
}

func (t *Timer) TimerEvent(e *TimerEvent) {
	if int64(e.TimerID()) != t.id.Load() {
		return
	}
	if t.SingleShot {
		t.Stop()
	}
	t.Timeout()
}

// SingleShot calls fn in receiver's thread once d has elapsed, unless
// receiver is destroyed first.
func SingleShot(d time.Duration, receiver AnyObject, fn func()) {
	rd := dataOf(receiver)
	if rd == nil || fn == nil {
		fallbackWarner.warn("timer").Msg("single shot needs an initialized receiver and a function")
		return
	}
	t := target{kind: funcTarget, fn: reflect.ValueOf(fn)}
	time.AfterFunc(d, func() {
		rd.postEvent(&MetaCallEvent{BaseEvent: NewBaseEvent(EventMetaCall), target: t}, NormalEventPriority)
	})
}
