package qcore

import (
	"fmt"
	"reflect"
	"runtime"
	"slices"
	"strings"
	"sync/atomic"
	"weak"
)

type ConnectionType int

const (
	// AutoConnection calls the slot directly when sender and receiver live
	// in the same thread at emission time, and queues it otherwise.
	AutoConnection ConnectionType = iota
	// DirectConnection calls the slot synchronously from the emitter.
	DirectConnection
	// QueuedConnection posts the call to the receiver's thread.
	QueuedConnection
	// BlockingQueuedConnection posts the call and waits for it to finish.
	BlockingQueuedConnection

	// UniqueConnection may be combined with any other type. Connect then
	// fails if the same sender, signal, receiver and slot are already
	// connected. Functions are never duplicates of each other.
	UniqueConnection ConnectionType = 0x80
)

func (t ConnectionType) kind() ConnectionType {
	return t &^ UniqueConnection
}

func (t ConnectionType) String() string {
	var s string
	switch t.kind() {
	case AutoConnection:
		s = "auto"
	case DirectConnection:
		s = "direct"
	case QueuedConnection:
		s = "queued"
	case BlockingQueuedConnection:
		s = "blocking-queued"
	default:
		s = fmt.Sprintf("ConnectionType(%d)", int(t.kind()))
	}
	if t&UniqueConnection != 0 {
		s += "|unique"
	}
	return s
}

type targetKind int

const (
	slotTarget targetKind = iota
	signalTarget
	funcTarget
)

// target is what a connection invokes on its receiver.
type target struct {
	kind   targetKind
	index  int
	fn     reflect.Value
	params []reflect.Type
}

// same reports whether t and o name the same slot or signal. Function
// values cannot be compared, so a function target matches nothing.
func (t target) same(o target) bool {
	return t.kind != funcTarget && t.kind == o.kind && t.index == o.index
}

// A Connection links one signal of a sender to one slot of a receiver. It
// stays valid until either end is destroyed or it is disconnected.
type Connection struct {
	sender   weak.Pointer[objectData]
	receiver weak.Pointer[objectData]
	signal   *SignalDescriptor
	target   target
	typ      ConnectionType
	alive    atomic.Bool
}

// connectionLists is an immutable snapshot of a sender's outgoing
// connections, indexed by signal. Writers replace the whole snapshot.
type connectionLists struct {
	bySignal [][]*Connection
}

func (c *Connection) Connected() bool {
	return c != nil && c.alive.Load()
}

func (c *Connection) Type() ConnectionType {
	return c.typ
}

func (c *Connection) Signal() *SignalDescriptor {
	return c.signal
}

func (c *Connection) Sender() AnyObject {
	if d := c.sender.Value(); d != nil && !d.wasDeleted.Load() {
		return d.self
	}
	return nil
}

func (c *Connection) Receiver() AnyObject {
	if d := c.receiver.Value(); d != nil && !d.wasDeleted.Load() {
		return d.self
	}
	return nil
}

// Disconnect removes the connection. It returns false if the connection was
// already disconnected.
func (c *Connection) Disconnect() bool {
	if c == nil || !c.detach() {
		return false
	}
	if sd := c.sender.Value(); sd != nil {
		sd.disconnectNotify(c.signal)
	}
	return true
}

// detach marks the connection dead and unlinks it from both ends. Only the
// first caller does any work.
func (c *Connection) detach() bool {
	if !c.alive.CompareAndSwap(true, false) {
		return false
	}
	if sd := c.sender.Value(); sd != nil {
		sd.removeOutgoing(c)
	}
	if rd := c.receiver.Value(); rd != nil {
		rd.mu.Lock()
		rd.senders = slices.DeleteFunc(rd.senders, func(o *Connection) bool { return o == c })
		rd.mu.Unlock()
	}
	return true
}

func (d *objectData) removeOutgoing(c *Connection) {
	d.connMu.Lock()
	defer d.connMu.Unlock()
	old := d.outgoing.Load()
	i := c.signal.Index
	if i >= len(old.bySignal) || !slices.Contains(old.bySignal[i], c) {
		return
	}
	lists := &connectionLists{bySignal: slices.Clone(old.bySignal)}
	lists.bySignal[i] = slices.DeleteFunc(slices.Clone(old.bySignal[i]), func(o *Connection) bool { return o == c })
	d.outgoing.Store(lists)
}

func (d *objectData) connectNotify(s *SignalDescriptor) {
	if n, ok := d.self.(ConnectNotifier); ok {
		n.ConnectNotify(s)
	}
}

func (d *objectData) disconnectNotify(s *SignalDescriptor) {
	if d.destroying.Load() {
		return
	}
	if n, ok := d.self.(ConnectNotifier); ok {
		n.DisconnectNotify(s)
	}
}

// resolveSignal accepts a signal name, a *SignalDescriptor of the class or a
// pointer to one of the object's signal fields.
func (d *objectData) resolveSignal(signal any) (*SignalDescriptor, error) {
	switch s := signal.(type) {
	case string:
		if sd := d.typ.Signal(s); sd != nil {
			return sd, nil
		}
		return nil, fmt.Errorf("%w: %s::%s", ErrUnknownSignal, d.typ.name, s)
	case *SignalDescriptor:
		if s != nil && s.Index < len(d.typ.signals) && d.typ.signals[s.Index].Name == s.Name {
			return d.typ.signals[s.Index], nil
		}
		return nil, fmt.Errorf("%w: descriptor does not belong to %s", ErrUnknownSignal, d.typ.name)
	}

	v := reflect.ValueOf(signal)
	if v.Kind() == reflect.Pointer && !v.IsNil() && v.Elem().Kind() == reflect.Func {
		addr := v.Pointer()
		self := reflect.ValueOf(d.self).Elem()
		for _, sd := range d.typ.signals {
			if sd.fieldIndex != nil && self.FieldByIndex(sd.fieldIndex).Addr().Pointer() == addr {
				return sd, nil
			}
		}
	}
	return nil, fmt.Errorf("%w: %T is not a signal of %s", ErrUnknownSignal, signal, d.typ.name)
}

// resolveTarget accepts a slot or signal name, a pointer to a signal field, a
// method expression of one of the receiver's slots, or any other function.
// Method values are plain functions: they stay bound to their own receiver.
func (d *objectData) resolveTarget(slot any) (target, error) {
	if name, ok := slot.(string); ok {
		if i := d.typ.IndexOfSlot(name); i >= 0 {
			return target{kind: slotTarget, index: i, params: d.typ.slots[i].Params}, nil
		}
		if i := d.typ.IndexOfSignal(name); i >= 0 {
			return target{kind: signalTarget, index: i, params: d.typ.signals[i].Params}, nil
		}
		return target{}, fmt.Errorf("%w: %s::%s", ErrUnknownSlot, d.typ.name, name)
	}

	v := reflect.ValueOf(slot)
	switch {
	case v.Kind() == reflect.Pointer && !v.IsNil() && v.Elem().Kind() == reflect.Func:
		sd, err := d.resolveSignal(slot)
		if err != nil {
			return target{}, fmt.Errorf("%w: %w", ErrUnknownSlot, err)
		}
		return target{kind: signalTarget, index: sd.Index, params: sd.Params}, nil
	case v.Kind() != reflect.Func || v.IsNil():
		return target{}, fmt.Errorf("%w: %T is not callable", ErrUnknownSlot, slot)
	}

	ft := v.Type()
	if f := runtime.FuncForPC(v.Pointer()); f != nil {
		typeName, method, bound := parseFuncName(f.Name())
		i := d.typ.IndexOfSlot(lowerFirst(method))
		if !bound && i >= 0 && d.inheritsGoType(typeName) &&
			ft.NumIn() > 0 && reflect.TypeOf(d.self).AssignableTo(ft.In(0)) {
			return target{kind: slotTarget, index: i, params: d.typ.slots[i].Params}, nil
		}
	}
	if ft.IsVariadic() {
		return target{}, fmt.Errorf("%w: variadic functions cannot be slots", ErrIncompatibleArguments)
	}
	return target{kind: funcTarget, fn: v, params: funcParams(ft)}, nil
}

func (d *objectData) inheritsGoType(name string) bool {
	for c := d.typ; c != nil; c = c.super {
		if c.goType.Name() == name {
			return true
		}
	}
	return false
}

// parseFuncName splits a runtime function name such as
// "example.com/pkg.(*Counter).SetValue-fm" into its receiver type name and
// method name. bound reports a method value.
func parseFuncName(name string) (typeName, method string, bound bool) {
	name, bound = strings.CutSuffix(name, "-fm")
	i := strings.LastIndex(name, ".")
	if i < 0 {
		return "", name, bound
	}
	method = name[i+1:]
	rest := name[:i]
	if strings.HasSuffix(rest, ")") {
		if j := strings.LastIndex(rest, "("); j >= 0 {
			typeName = strings.TrimPrefix(rest[j+1:len(rest)-1], "*")
		}
	} else if j := strings.LastIndex(rest, "."); j >= 0 {
		typeName = rest[j+1:]
	}
	if k := strings.Index(typeName, "["); k >= 0 {
		typeName = typeName[:k]
	}
	return typeName, method, bound
}

// argumentsMatch reports whether a slot taking slotParams can receive the
// arguments of a signal with signalParams. The slot may ignore trailing
// signal arguments.
func argumentsMatch(signalParams, slotParams []reflect.Type) bool {
	if len(slotParams) > len(signalParams) {
		return false
	}
	for i, p := range slotParams {
		if !signalParams[i].AssignableTo(p) {
			return false
		}
	}
	return true
}

// Connect connects signal of sender to slot of receiver and returns the new
// connection.
//
// signal is a signal name, a *SignalDescriptor or a pointer to the sender's
// signal field. slot is a slot or signal name of the receiver, a pointer to
// one of its signal fields, a method expression of one of its slots, or any
// function. Functions, method values included, are called as they are in
// the receiver's thread, so receiver only serves as their context; a nil
// receiver uses the sender.
//
// The slot must take no more arguments than the signal, and each must be
// assignable from the corresponding signal argument.
func Connect(sender AnyObject, signal any, receiver AnyObject, slot any, typ ...ConnectionType) (*Connection, error) {
	ct := AutoConnection
	if len(typ) > 0 {
		ct = typ[0]
	}
	sd := dataOf(sender)
	if receiver == nil {
		receiver = sender
	}
	rd := dataOf(receiver)
	if sd == nil || rd == nil {
		fallbackWarner.warn("connect").Msg("cannot connect a nil or uninitialized object")
		return nil, fmt.Errorf("%w: connect", ErrNotInitialized)
	}
	if ct.kind() > BlockingQueuedConnection {
		return nil, fmt.Errorf("qcore: invalid connection type %d", ct)
	}
	if sd.destroying.Load() || rd.destroying.Load() {
		return nil, ErrObjectDestroyed
	}

	sig, err := sd.resolveSignal(signal)
	if err != nil {
		sd.warn("connect").Err(err).Msg("connect failed")
		return nil, err
	}
	tgt, err := rd.resolveTarget(slot)
	if err != nil {
		sd.warn("connect").Err(err).Str("signal", sig.Name).Msg("connect failed")
		return nil, err
	}
	if !argumentsMatch(sig.Params, tgt.params) {
		err = fmt.Errorf("%w: %s::%s cannot be connected to %v", ErrIncompatibleArguments, sd.typ.name, sig.Name, tgt.params)
		sd.warn("connect").Err(err).Msg("connect failed")
		return nil, err
	}

	c := &Connection{
		sender:   weak.Make(sd),
		receiver: weak.Make(rd),
		signal:   sig,
		target:   tgt,
		typ:      ct,
	}
	c.alive.Store(true)

	sd.connMu.Lock()
	if ct&UniqueConnection != 0 {
		for _, o := range sd.outgoing.Load().bySignal[sig.Index] {
			if o.alive.Load() && o.receiver.Value() == rd && o.target.same(tgt) {
				sd.connMu.Unlock()
				return nil, ErrDuplicateConnection
			}
		}
	}
	old := sd.outgoing.Load()
	lists := &connectionLists{bySignal: slices.Clone(old.bySignal)}
	lists.bySignal[sig.Index] = append(slices.Clip(old.bySignal[sig.Index]), c)
	sd.outgoing.Store(lists)
	sd.connMu.Unlock()

	rd.mu.Lock()
	rd.senders = append(rd.senders, c)
	rd.mu.Unlock()

	sd.connectNotify(sig)
	return c, nil
}

// ConnectFunc connects signal of sender to fn, called in the sender's thread.
func ConnectFunc(sender AnyObject, signal any, fn any, typ ...ConnectionType) (*Connection, error) {
	return Connect(sender, signal, nil, fn, typ...)
}

// Disconnect removes every connection of sender matching the arguments and
// reports whether any was removed. A nil signal, receiver or slot matches
// anything; slot is only considered together with a receiver. Connections
// to functions are removed through their Connection, or by a nil slot.
func Disconnect(sender AnyObject, signal any, receiver AnyObject, slot any) bool {
	sd := dataOf(sender)
	if sd == nil {
		fallbackWarner.warn("disconnect").Msg("cannot disconnect a nil or uninitialized object")
		return false
	}
	var sig *SignalDescriptor
	if signal != nil && signal != "" {
		var err error
		if sig, err = sd.resolveSignal(signal); err != nil {
			sd.warn("disconnect").Err(err).Msg("disconnect failed")
			return false
		}
	}
	var rd *objectData
	if receiver != nil {
		if rd = dataOf(receiver); rd == nil {
			return false
		}
	}
	var tgt *target
	if slot != nil && rd != nil {
		t, err := rd.resolveTarget(slot)
		if err != nil {
			sd.warn("disconnect").Err(err).Msg("disconnect failed")
			return false
		}
		if t.kind == funcTarget {
			sd.warn("disconnect").Msg("functions are disconnected through their Connection")
			return false
		}
		tgt = &t
	}

	var matched []*Connection
	for i, conns := range sd.outgoing.Load().bySignal {
		if sig != nil && i != sig.Index {
			continue
		}
		for _, c := range conns {
			if rd != nil && c.receiver.Value() != rd {
				continue
			}
			if tgt != nil && !c.target.same(*tgt) {
				continue
			}
			matched = append(matched, c)
		}
	}

	removed := false
	for _, c := range matched {
		if c.detach() {
			removed = true
		}
	}
	if removed {
		sd.disconnectNotify(sig)
	}
	return removed
}

// disconnectAll removes every connection the object takes part in, as sender
// or receiver.
func (d *objectData) disconnectAll() {
	d.connMu.Lock()
	lists := d.outgoing.Load()
	d.outgoing.Store(&connectionLists{bySignal: make([][]*Connection, len(lists.bySignal))})
	d.connMu.Unlock()
	for _, conns := range lists.bySignal {
		for _, c := range conns {
			c.detach()
		}
	}

	d.mu.Lock()
	senders := d.senders
	d.senders = nil
	d.mu.Unlock()
	for _, c := range senders {
		c.detach()
	}
}

// Receivers returns the number of live connections to the named signal.
func (o *Object) Receivers(signal any) int {
	d := o.d
	if d == nil {
		return 0
	}
	sig, err := d.resolveSignal(signal)
	if err != nil {
		return 0
	}
	n := 0
	for _, c := range d.outgoing.Load().bySignal[sig.Index] {
		if c.alive.Load() {
			n++
		}
	}
	return n
}

func (o *Object) IsSignalConnected(signal any) bool {
	return o.Receivers(signal) > 0
}

// Senders returns the number of live connections targeting the object.
func (o *Object) Senders() int {
	d := o.d
	if d == nil {
		return 0
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.senders)
}
