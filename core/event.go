package qcore

import (
	"reflect"
	"sync"
	"weak"
)

type EventType int

const (
	EventNone                  EventType = 0
	EventTimer                 EventType = 1
	EventMouseButtonPress      EventType = 2
	EventMouseButtonRelease    EventType = 3
	EventMouseButtonDblClick   EventType = 4
	EventMouseMove             EventType = 5
	EventKeyPress              EventType = 6
	EventKeyRelease            EventType = 7
	EventQuit                  EventType = 20
	EventWheel                 EventType = 31
	EventThreadChange          EventType = 22
	EventMetaCall              EventType = 43
	EventChildAdded            EventType = 68
	EventChildPolished         EventType = 69
	EventChildRemoved          EventType = 71
	EventDeferredDelete        EventType = 52
	EventTabletMove            EventType = 87
	EventTabletPress           EventType = 92
	EventTabletRelease         EventType = 93
	EventHoverEnter            EventType = 127
	EventHoverLeave            EventType = 128
	EventHoverMove             EventType = 129
	EventDynamicPropertyChange EventType = 170
	EventTouchBegin            EventType = 194
	EventTouchUpdate           EventType = 195
	EventTouchEnd              EventType = 196
	EventTouchCancel           EventType = 209
	EventUser                  EventType = 1000
	EventMaxUser               EventType = 65535
)

// Priorities for PostEvent. Events with a higher priority are delivered
// first; equal priorities keep posting order.
const (
	HighEventPriority   = 1
	NormalEventPriority = 0
	LowEventPriority    = -1
)

var userInputEvents = map[EventType]bool{
	EventMouseButtonPress:    true,
	EventMouseButtonRelease:  true,
	EventMouseButtonDblClick: true,
	EventMouseMove:           true,
	EventKeyPress:            true,
	EventKeyRelease:          true,
	EventWheel:               true,
	EventTabletMove:          true,
	EventTabletPress:         true,
	EventTabletRelease:       true,
	EventTouchBegin:          true,
	EventTouchUpdate:         true,
	EventTouchEnd:            true,
	EventTouchCancel:         true,
	EventHoverEnter:          true,
	EventHoverLeave:          true,
	EventHoverMove:           true,
}

// IsUserInput reports whether events of this type are held back by
// ExcludeUserInputEvents.
func (t EventType) IsUserInput() bool {
	return userInputEvents[t]
}

var (
	registeredTypesMu sync.Mutex
	registeredTypes   = make(map[EventType]bool)
)

// RegisterEventType reserves a custom event type between EventUser and
// EventMaxUser.
// The hint is used if it is free, otherwise the highest free type is
// returned. It returns -1 when every type is taken.
func RegisterEventType(hint int) EventType {
	registeredTypesMu.Lock()
	defer registeredTypesMu.Unlock()
	if h := EventType(hint); h >= EventUser && h <= EventMaxUser && !registeredTypes[h] {
		registeredTypes[h] = true
		return h
	}
	for t := EventMaxUser; t >= EventUser; t-- {
		if !registeredTypes[t] {
			registeredTypes[t] = true
			return t
		}
	}
	return -1
}

// Event is implemented by all events. Custom events embed BaseEvent.
type Event interface {
	Type() EventType
	IsAccepted() bool
	SetAccepted(accepted bool)
	Spontaneous() bool
	base() *BaseEvent
}

type BaseEvent struct {
	typ         EventType
	accepted    bool
	posted      bool
	spontaneous bool
}

// NewEvent returns a plain event of type t, accepted by default.
func NewEvent(t EventType) *BaseEvent {
	return &BaseEvent{typ: t, accepted: true}
}

// NewBaseEvent is used to initialize a BaseEvent embedded in a custom event.
func NewBaseEvent(t EventType) BaseEvent {
	return BaseEvent{typ: t, accepted: true}
}

func (e *BaseEvent) Type() EventType           { return e.typ }
func (e *BaseEvent) IsAccepted() bool          { return e.accepted }
func (e *BaseEvent) SetAccepted(accepted bool) { e.accepted = accepted }
func (e *BaseEvent) Accept()                   { e.accepted = true }
func (e *BaseEvent) Ignore()                   { e.accepted = false }
func (e *BaseEvent) Spontaneous() bool         { return e.spontaneous }
func (e *BaseEvent) base() *BaseEvent          { return e }

// DeferredDeleteEvent is posted by DeleteLater. It records the loop level it
// was posted at, which decides when it may be delivered.
type DeferredDeleteEvent struct {
	BaseEvent
	level int
}

func (e *DeferredDeleteEvent) LoopLevel() int { return e.level }

// MetaCallEvent carries a queued slot call.
type MetaCallEvent struct {
	BaseEvent
	conn   *Connection
	sender *objectData
	args   []reflect.Value
	target target
	result *error
	done   func()
	once   sync.Once
}

// finish releases a blocked emitter, whether or not the call happened.
func (e *MetaCallEvent) finish() {
	e.once.Do(func() {
		if e.done != nil {
			e.done()
		}
	})
}

func (e *MetaCallEvent) deliver(d *objectData) {
	defer e.finish()
	if e.conn != nil && !e.conn.alive.Load() {
		return
	}
	sender := e.sender
	if sender != nil && sender.wasDeleted.Load() {
		sender = nil
	}
	prev := d.swapSender(sender)
	defer d.swapSender(prev)
	out := d.call(e.target, e.args)
	if e.result != nil {
		*e.result = returnedError(out)
	}
}

type ChildEvent struct {
	BaseEvent
	child AnyObject
}

func (e *ChildEvent) Child() AnyObject { return e.child }
func (e *ChildEvent) Added() bool      { return e.typ == EventChildAdded }
func (e *ChildEvent) Removed() bool    { return e.typ == EventChildRemoved }

type DynamicPropertyChangeEvent struct {
	BaseEvent
	name string
}

func (e *DynamicPropertyChangeEvent) PropertyName() string { return e.name }

type TimerEvent struct {
	BaseEvent
	id    int
	timer *objectTimer
}

func (e *TimerEvent) TimerID() int { return e.id }

// EventHandler is implemented by objects that handle events themselves.
// Event returns true if the event was handled; otherwise the default
// handling runs.
type EventHandler interface {
	Event(e Event) bool
}

// EventFilterer is implemented by objects installed as event filters.
// Returning true stops the event from reaching its receiver.
type EventFilterer interface {
	EventFilter(watched AnyObject, e Event) bool
}

type TimerEventHandler interface {
	TimerEvent(e *TimerEvent)
}

type ChildEventHandler interface {
	ChildEvent(e *ChildEvent)
}

// SendEvent delivers e to receiver synchronously in the calling goroutine,
// through the receiver's event filters, and returns whether it was handled.
func SendEvent(receiver AnyObject, e Event) bool {
	d := dataOf(receiver)
	if d == nil || e == nil {
		fallbackWarner.warn("event").Msg("cannot send an event to a nil or uninitialized object")
		return false
	}
	e.base().spontaneous = false
	return d.notify(e)
}

// PostEvent queues e for receiver's thread and returns immediately. The
// event is delivered by that thread's event loop, or dropped if the receiver
// is destroyed first.
func PostEvent(receiver AnyObject, e Event, priority ...int) {
	d := dataOf(receiver)
	if d == nil || e == nil {
		fallbackWarner.warn("event").Msg("cannot post an event to a nil or uninitialized object")
		return
	}
	p := NormalEventPriority
	if len(priority) > 0 {
		p = priority[0]
	}
	d.postEvent(e, p)
}

func (d *objectData) notify(e Event) bool {
	if d.wasDeleted.Load() {
		return false
	}
	for _, f := range d.filterSnapshot() {
		if f.wasDeleted.Load() || f.thread.Load() != d.thread.Load() {
			continue
		}
		if ef, ok := f.self.(EventFilterer); ok && ef.EventFilter(d.self, e) {
			return true
		}
	}
	if h, ok := d.self.(EventHandler); ok && h.Event(e) {
		return true
	}
	return d.event(e)
}

// event is the default event handling every object gets.
func (d *objectData) event(e Event) bool {
	switch ev := e.(type) {
	case *MetaCallEvent:
		ev.deliver(d)
		return true
	case *DeferredDeleteEvent:
		d.destroy()
		return true
	case *TimerEvent:
		if ev.timer != nil && ev.timer.stopped.Load() {
			return true
		}
		if h, ok := d.self.(TimerEventHandler); ok {
			h.TimerEvent(ev)
			return true
		}
	case *ChildEvent:
		if h, ok := d.self.(ChildEventHandler); ok {
			h.ChildEvent(ev)
			return true
		}
	}
	return false
}

// InstallEventFilter makes filter see every event sent or posted to the
// object before the object does. The most recently installed filter runs
// first. A filter living in another thread is ignored.
func (o *Object) InstallEventFilter(filter AnyObject) {
	d, fd := o.d, dataOf(filter)
	if d == nil || fd == nil {
		fallbackWarner.warn("event").Msg("cannot install a nil or uninitialized event filter")
		return
	}
	if fd.thread.Load() != d.thread.Load() {
		d.warn("event").Str("class", d.typ.name).Msg("cannot install an event filter from a different thread")
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.removeFilterLocked(fd)
	d.filters = append(d.filters, weak.Make(fd))
}

func (o *Object) RemoveEventFilter(filter AnyObject) {
	d, fd := o.d, dataOf(filter)
	if d == nil || fd == nil {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.removeFilterLocked(fd)
}

func (d *objectData) removeFilterLocked(fd *objectData) {
	kept := d.filters[:0]
	for _, f := range d.filters {
		if v := f.Value(); v != nil && v != fd {
			kept = append(kept, f)
		}
	}
	d.filters = kept
}

// filterSnapshot returns the live filters, most recently installed first.
func (d *objectData) filterSnapshot() []*objectData {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.filters) == 0 {
		return nil
	}
	out := make([]*objectData, 0, len(d.filters))
	for i := len(d.filters) - 1; i >= 0; i-- {
		if f := d.filters[i].Value(); f != nil {
			out = append(out, f)
		}
	}
	return out
}
