package qcore

import (
	"fmt"
	"reflect"
	"sync"
	"sync/atomic"
	"weak"

	"github.com/rs/zerolog"
	uuid "github.com/satori/go.uuid"
)

// AnyObject is implemented by every struct that embeds Object.
type AnyObject interface {
	qObject() *Object
}

// Object must be embedded by value in any struct that takes part in the
// object system. The embedding struct is the class: its func fields are
// signals, its other exported fields are properties and its exported
// methods are slots. Embedding another object type makes it the superclass.
//
// An Object is unusable until it is initialized with Application.Init or
// Thread.Init, which wires the signal fields so that calling one emits it.
type Object struct {
	d *objectData

	// Destroyed is emitted at the start of destruction, while the object
	// and its children are still intact. It cannot be blocked.
	Destroyed         func(obj AnyObject) `qcore:"obj"`
	ObjectNameChanged func(name string)   `qcore:"objectName"`
}

func (o *Object) qObject() *Object { return o }

// If an object type implements Initializer, InitObject is called once,
// immediately after the object is initialized.
type Initializer interface {
	AnyObject
	InitObject()
}

// ConnectNotifier is implemented by objects that want to know when one of
// their signals is connected or disconnected.
type ConnectNotifier interface {
	ConnectNotify(signal *SignalDescriptor)
	DisconnectNotify(signal *SignalDescriptor)
}

type objectData struct {
	self AnyObject
	app  *Application
	typ  *TypeDescriptor
	id   string

	thread atomic.Pointer[Thread]

	// mu guards the fields below it
	mu            sync.Mutex
	parent        *objectData
	children      []*objectData
	name          string
	propNames     []string
	propValues    []any
	filters       []weak.Pointer[objectData]
	senders       []*Connection
	currentSender *objectData
	timers        map[int]*objectTimer

	connMu   sync.Mutex
	outgoing atomic.Pointer[connectionLists]

	postedEvents      atomic.Int32
	blockSig          atomic.Bool
	deleteLaterCalled atomic.Bool
	destroying        atomic.Bool
	wasDeleted        atomic.Bool
}

// dataOf returns the private data of an initialized object, or nil.
func dataOf(obj AnyObject) *objectData {
	if obj == nil {
		return nil
	}
	v := reflect.ValueOf(obj)
	if v.Kind() == reflect.Pointer && v.IsNil() {
		return nil
	}
	return obj.qObject().d
}

func (d *objectData) warn(category string) *zerolog.Event {
	if d == nil || d.app == nil {
		return fallbackWarner.warn(category)
	}
	return d.app.warner.warn(category)
}

func initObject(a *Application, obj AnyObject, t *Thread, parent AnyObject) error {
	if obj == nil {
		return ErrNilObject
	}
	if v := reflect.ValueOf(obj); v.Kind() != reflect.Pointer || v.IsNil() {
		return fmt.Errorf("%w: %T must be a non-nil pointer", ErrNotObject, obj)
	}
	o := obj.qObject()
	if o.d != nil {
		// Already initialized; nothing changes
		return nil
	}
	if a.closed.Load() {
		return ErrClosed
	}

	desc, err := a.registry.Register(obj)
	if err != nil {
		return err
	}
	u, _ := uuid.NewV4()
	d := &objectData{
		self: obj,
		app:  a,
		typ:  desc,
		id:   u.String(),
	}
	d.thread.Store(t)
	d.outgoing.Store(&connectionLists{bySignal: make([][]*Connection, len(desc.signals))})
	o.d = d

	initSignals(d)

	var perr error
	if parent != nil {
		pd := dataOf(parent)
		if pd == nil {
			perr = fmt.Errorf("%w: parent", ErrNotInitialized)
		} else {
			perr = d.setParent(pd)
		}
		if perr != nil {
			d.warn("init").Err(perr).Str("class", desc.name).Msg("object created without parent")
		}
	}

	if io, ok := obj.(Initializer); ok {
		io.InitObject()
	}
	return perr
}

// initSignals assigns an emitting function to every nil signal field.
func initSignals(d *objectData) {
	v := reflect.ValueOf(d.self).Elem()
	for _, s := range d.typ.signals {
		if s.fieldIndex == nil {
			continue
		}
		field := v.FieldByIndex(s.fieldIndex)
		if !field.IsNil() {
			continue
		}
		index := s.Index
		f := reflect.MakeFunc(field.Type(), func(args []reflect.Value) []reflect.Value {
			d.activate(index, args)
			return nil
		})
		field.Set(f)
	}
}

// Initialized reports whether the object has been initialized.
func (o *Object) Initialized() bool {
	return o.d != nil
}

// Self returns the outermost object the Object is embedded in.
func (o *Object) Self() AnyObject {
	if o.d == nil {
		return nil
	}
	return o.d.self
}

// Identifier is a unique string for the object.
func (o *Object) Identifier() string {
	if o.d == nil {
		return ""
	}
	return o.d.id
}

// Type returns the class descriptor of the object.
func (o *Object) Type() *TypeDescriptor {
	if o.d == nil {
		return nil
	}
	return o.d.typ
}

func (o *Object) Inherits(className string) bool {
	return o.d != nil && o.d.typ.Inherits(className)
}

func (o *Object) Application() *Application {
	if o.d == nil {
		return nil
	}
	return o.d.app
}

// Thread returns the thread the object lives in. Events posted to the object
// and queued slot calls are delivered on that thread.
func (o *Object) Thread() *Thread {
	if o.d == nil {
		return nil
	}
	return o.d.thread.Load()
}

func (o *Object) ObjectName() string {
	if o.d == nil {
		return ""
	}
	o.d.mu.Lock()
	defer o.d.mu.Unlock()
	return o.d.name
}

func (o *Object) SetObjectName(name string) {
	d := o.d
	if d == nil {
		return
	}
	d.mu.Lock()
	if d.name == name {
		d.mu.Unlock()
		return
	}
	d.name = name
	d.mu.Unlock()
	d.activate(d.typ.IndexOfSignal("objectNameChanged"), []reflect.Value{reflect.ValueOf(name)})
}

// BlockSignals blocks or unblocks emission of all signals except destroyed,
// returning the previous state.
func (o *Object) BlockSignals(block bool) bool {
	if o.d == nil {
		return false
	}
	return o.d.blockSig.Swap(block)
}

func (o *Object) SignalsBlocked() bool {
	return o.d != nil && o.d.blockSig.Load()
}

// Sender returns the object whose signal invoked the slot currently running
// on this object, or nil outside of a slot call.
func (o *Object) Sender() AnyObject {
	d := o.d
	if d == nil {
		return nil
	}
	d.mu.Lock()
	s := d.currentSender
	d.mu.Unlock()
	if s == nil || s.wasDeleted.Load() {
		return nil
	}
	return s.self
}

func (d *objectData) swapSender(s *objectData) *objectData {
	d.mu.Lock()
	prev := d.currentSender
	d.currentSender = s
	d.mu.Unlock()
	return prev
}

// ObjectCast returns obj as T when the dynamic class of obj is T or inherits
// from it through embedding.
func ObjectCast[T AnyObject](obj AnyObject) (T, bool) {
	var zero T
	if t, ok := obj.(T); ok {
		return t, true
	}
	d := dataOf(obj)
	if d == nil {
		return zero, false
	}
	target := reflect.TypeOf((*T)(nil)).Elem()
	if target.Kind() != reflect.Pointer {
		return zero, false
	}
	v := reflect.ValueOf(d.self).Elem()
	for desc := d.typ; desc != nil; desc = desc.super {
		if desc.goType == target.Elem() {
			return v.Addr().Interface().(T), true
		}
		if desc.super == nil {
			break
		}
		v = v.FieldByIndex(desc.superIndex)
	}
	return zero, false
}

// IsObject reports whether v is an initialized object.
func IsObject(v any) bool {
	obj, ok := v.(AnyObject)
	return ok && dataOf(obj) != nil
}
