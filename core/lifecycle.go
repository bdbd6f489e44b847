package qcore

import (
	"reflect"
	"slices"
)

// Delete destroys obj immediately: destroyed is emitted, all its
// connections are removed, its children are deleted, it is removed from its
// parent and its pending posted events are discarded. Deleting an object
// twice has no further effect.
//
// Delete must be called from the object's thread. Use DeleteLater to delete
// an object from one of its own slots or from another thread.
func Delete(obj AnyObject) {
	if d := dataOf(obj); d != nil {
		d.destroy()
	}
}

func (d *objectData) destroy() {
	if !d.destroying.CompareAndSwap(false, true) {
		return
	}
	d.blockSig.Store(false)
	d.activate(destroyedSignal, []reflect.Value{reflect.ValueOf(&d.self).Elem()})

	d.disconnectAll()

	d.mu.Lock()
	children := d.children
	d.children = nil
	d.mu.Unlock()
	for _, c := range children {
		c.mu.Lock()
		c.parent = nil
		c.mu.Unlock()
		c.destroy()
	}

	if p := d.parentData(); p != nil {
		p.removeChild(d)
		d.mu.Lock()
		d.parent = nil
		d.mu.Unlock()
	}

	d.killAllTimers()
	d.removePostedEvents(EventNone)
	d.wasDeleted.Store(true)
}

// DeleteLater schedules the object for deletion by its thread's event loop.
// The deletion happens once control returns to the loop that was running
// when DeleteLater was called, or when the next loop starts if none was.
// Calling it more than once has no further effect.
func (o *Object) DeleteLater() {
	d := o.d
	if d == nil || d.destroying.Load() {
		return
	}
	if d.deleteLaterCalled.CompareAndSwap(false, true) {
		d.postEvent(&DeferredDeleteEvent{BaseEvent: NewBaseEvent(EventDeferredDelete)}, NormalEventPriority)
	}
}

func (d *objectData) parentData() *objectData {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.parent
}

func (o *Object) Parent() AnyObject {
	if o.d == nil {
		return nil
	}
	if p := o.d.parentData(); p != nil {
		return p.self
	}
	return nil
}

// Children returns the direct children in the order they were added.
func (o *Object) Children() []AnyObject {
	if o.d == nil {
		return nil
	}
	o.d.mu.Lock()
	defer o.d.mu.Unlock()
	children := make([]AnyObject, len(o.d.children))
	for i, c := range o.d.children {
		children[i] = c.self
	}
	return children
}

func (d *objectData) childrenSnapshot() []*objectData {
	d.mu.Lock()
	defer d.mu.Unlock()
	return slices.Clone(d.children)
}

// FindChild returns the first descendant named name, searching direct
// children before their descendants. An empty name matches any object.
func (o *Object) FindChild(name string) AnyObject {
	if o.d == nil {
		return nil
	}
	if c := o.d.findChild(name); c != nil {
		return c.self
	}
	return nil
}

func (d *objectData) findChild(name string) *objectData {
	children := d.childrenSnapshot()
	for _, c := range children {
		if name == "" || c.objectName() == name {
			return c
		}
	}
	for _, c := range children {
		if found := c.findChild(name); found != nil {
			return found
		}
	}
	return nil
}

// FindChildren returns every descendant named name, depth first. An empty
// name matches all descendants.
func (o *Object) FindChildren(name string) []AnyObject {
	if o.d == nil {
		return nil
	}
	var out []AnyObject
	var walk func(d *objectData)
	walk = func(d *objectData) {
		for _, c := range d.childrenSnapshot() {
			if name == "" || c.objectName() == name {
				out = append(out, c.self)
			}
			walk(c)
		}
	}
	walk(o.d)
	return out
}

func (d *objectData) objectName() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.name
}

// isAncestorOf reports whether d is o or one of its ancestors.
func (d *objectData) isAncestorOf(o *objectData) bool {
	for p := o; p != nil; p = p.parentData() {
		if p == d {
			return true
		}
	}
	return false
}

// subtree returns d and all its descendants, parents first.
func (d *objectData) subtree() []*objectData {
	out := []*objectData{d}
	for i := 0; i < len(out); i++ {
		out = append(out, out[i].childrenSnapshot()...)
	}
	return out
}

func (d *objectData) pendingEventsInTree() int {
	n := 0
	for _, o := range d.subtree() {
		n += int(o.postedEvents.Load())
	}
	return n
}

// SetParent makes parent the new parent of the object, or removes it from
// its parent if parent is nil. The old and new parent receive ChildRemoved
// and ChildAdded events.
//
// A parent living in another thread moves the object and its descendants to
// that thread, which is refused while they have posted events pending.
func (o *Object) SetParent(parent AnyObject) error {
	d := o.d
	if d == nil {
		return ErrNotInitialized
	}
	var pd *objectData
	if parent != nil {
		if pd = dataOf(parent); pd == nil {
			return ErrNotInitialized
		}
	}
	return d.setParent(pd)
}

func (d *objectData) setParent(pd *objectData) error {
	old := d.parentData()
	if old == pd {
		return nil
	}
	if pd != nil {
		if pd.destroying.Load() {
			return ErrObjectDestroyed
		}
		if d.isAncestorOf(pd) {
			d.warn("parent").Str("class", d.typ.name).Msg("an object cannot become a child of itself or its descendants")
			return ErrParentCycle
		}
		if t := pd.thread.Load(); t != d.thread.Load() {
			if n := d.pendingEventsInTree(); n > 0 {
				d.warn("parent").Str("class", d.typ.name).Int("pending", n).
					Msg("cannot set a parent in another thread while events are pending")
				return ErrPendingEvents
			}
			d.moveTree(t)
		}
	}

	if old != nil {
		old.removeChild(d)
	}
	d.mu.Lock()
	d.parent = pd
	d.mu.Unlock()
	if pd != nil {
		pd.addChild(d)
	}
	return nil
}

func (d *objectData) addChild(c *objectData) {
	d.mu.Lock()
	d.children = append(d.children, c)
	d.mu.Unlock()
	e := &ChildEvent{BaseEvent: NewBaseEvent(EventChildAdded), child: c.self}
	d.notify(e)
}

func (d *objectData) removeChild(c *objectData) {
	d.mu.Lock()
	i := slices.Index(d.children, c)
	if i >= 0 {
		d.children = slices.Delete(d.children, i, i+1)
	}
	d.mu.Unlock()
	if i >= 0 && !d.destroying.Load() {
		e := &ChildEvent{BaseEvent: NewBaseEvent(EventChildRemoved), child: c.self}
		d.notify(e)
	}
}

// MoveToThread changes the thread affinity of the object and all its
// children. Pending posted events follow the objects to the new thread.
// Objects with a parent cannot be moved.
func (o *Object) MoveToThread(t *Thread) error {
	d := o.d
	if d == nil {
		return ErrNotInitialized
	}
	if t == nil {
		d.warn("thread").Str("class", d.typ.name).Msg("cannot move an object to a nil thread")
		return ErrNilThread
	}
	if t.app != d.app {
		d.warn("thread").Str("class", d.typ.name).Msg("cannot move an object to a thread of another application")
		return ErrDifferentThread
	}
	if d.thread.Load() == t {
		return nil
	}
	if d.parentData() != nil {
		d.warn("thread").Str("class", d.typ.name).Msg("cannot move objects with a parent")
		return ErrHasParent
	}
	d.moveTree(t)
	return nil
}

func (d *objectData) moveTree(t *Thread) {
	objs := d.subtree()
	for _, o := range objs {
		o.notify(NewEvent(EventThreadChange))
	}

	set := make(map[*objectData]bool, len(objs))
	for _, o := range objs {
		set[o] = true
	}

	for {
		from := d.thread.Load()
		if from == t {
			return
		}
		// Lock both threads in id order
		first, second := from, t
		if second.id < first.id {
			first, second = second, first
		}
		first.mu.Lock()
		second.mu.Lock()
		if d.thread.Load() != from {
			second.mu.Unlock()
			first.mu.Unlock()
			continue
		}

		var moved []postedEvent
		from.queue = slices.DeleteFunc(from.queue, func(pe postedEvent) bool {
			if set[pe.receiver] {
				moved = append(moved, pe)
				return true
			}
			return false
		})
		for _, o := range objs {
			o.thread.Store(t)
		}
		for _, pe := range moved {
			t.insertLocked(pe)
		}

		second.mu.Unlock()
		first.mu.Unlock()
		if len(moved) > 0 {
			t.wakeUp()
		}
		return
	}
}

// WasDeleted reports whether the object has been destroyed.
func (o *Object) WasDeleted() bool {
	return o.d != nil && o.d.wasDeleted.Load()
}
