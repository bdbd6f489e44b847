package qcore

import (
	"context"
	"encoding"
	"fmt"
	"reflect"

	"golang.org/x/sync/semaphore"
)

const destroyedSignal = 0

// activate delivers an emission of the signal at index to every connection
// that exists when the emission starts.
func (d *objectData) activate(index int, args []reflect.Value) {
	if index < 0 || d.wasDeleted.Load() {
		return
	}
	if index != destroyedSignal && d.blockSig.Load() {
		return
	}
	lists := d.outgoing.Load()
	if index >= len(lists.bySignal) {
		return
	}
	senderThread := d.thread.Load()

	for _, c := range lists.bySignal[index] {
		if !c.alive.Load() {
			continue
		}
		rd := c.receiver.Value()
		if rd == nil || rd.wasDeleted.Load() {
			continue
		}

		kind := c.typ.kind()
		if kind == AutoConnection {
			kind = DirectConnection
			if rd.thread.Load() != senderThread {
				kind = QueuedConnection
			}
		}

		switch kind {
		case DirectConnection:
			c.invoke(d, rd, args)
		case QueuedConnection:
			rd.postMetaCall(c, d, args, nil)
		case BlockingQueuedConnection:
			if rd.thread.Load() == senderThread {
				d.warn("deadlock").Str("signal", c.signal.Name).Str("receiver", rd.typ.name).
					Msg("blocking queued connection between objects in the same thread would deadlock; call skipped")
				continue
			}
			sem := semaphore.NewWeighted(1)
			_ = sem.Acquire(context.Background(), 1)
			rd.postMetaCall(c, d, args, func() { sem.Release(1) })
			_ = sem.Acquire(context.Background(), 1)
		}

		// A slot may have destroyed the sender
		if d.wasDeleted.Load() || (index != destroyedSignal && d.destroying.Load()) {
			return
		}
	}
}

// invoke calls the connection's target on the receiver in the current
// goroutine. Panics in the slot propagate to the caller.
func (c *Connection) invoke(sender, rd *objectData, args []reflect.Value) {
	prev := rd.swapSender(sender)
	defer rd.swapSender(prev)
	rd.call(c.target, args)
}

func (d *objectData) call(t target, args []reflect.Value) []reflect.Value {
	in := args[:len(t.params)]
	switch t.kind {
	case slotTarget:
		return reflect.ValueOf(d.self).Method(d.typ.slots[t.index].methodIndex).Call(in)
	case signalTarget:
		d.activate(t.index, in)
		return nil
	default:
		return t.fn.Call(in)
	}
}

func (d *objectData) postMetaCall(c *Connection, sender *objectData, args []reflect.Value, done func()) {
	e := &MetaCallEvent{
		BaseEvent: BaseEvent{typ: EventMetaCall, accepted: true},
		conn:      c,
		sender:    sender,
		args:      append([]reflect.Value(nil), args...),
		target:    c.target,
		done:      done,
	}
	d.postEvent(e, NormalEventPriority)
}

// Emit emits the named signal. The arguments must match the signal's
// parameters in number, and are converted as InvokeMethod converts them.
func (o *Object) Emit(signal string, args ...any) error {
	d := o.d
	if d == nil {
		return ErrNotInitialized
	}
	sig := d.typ.Signal(signal)
	if sig == nil {
		err := fmt.Errorf("%w: %s::%s", ErrUnknownSignal, d.typ.name, signal)
		d.warn("emit").Err(err).Msg("emit failed")
		return err
	}
	values, err := convertArgs(sig.Name, sig.Params, args)
	if err != nil {
		d.warn("emit").Err(err).Msg("emit failed")
		return err
	}
	d.activate(sig.Index, values)
	return nil
}

var textUnmarshalerType = reflect.TypeOf((*encoding.TextUnmarshaler)(nil)).Elem()

func convertArgs(name string, params []reflect.Type, inArgs []any) ([]reflect.Value, error) {
	if len(inArgs) != len(params) {
		return nil, fmt.Errorf("%w: wrong number of arguments for %s; expected %d, provided %d",
			ErrIncompatibleArguments, name, len(params), len(inArgs))
	}
	values := make([]reflect.Value, len(params))
	for i, inArg := range inArgs {
		v, err := convertArg(inArg, params[i])
		if err != nil {
			return nil, fmt.Errorf("argument %d to %s: %w", i, name, err)
		}
		values[i] = v
	}
	return values, nil
}

// convertArg returns inArg as a value of exactly argType, converting or
// unmarshaling it if possible.
func convertArg(inArg any, argType reflect.Type) (reflect.Value, error) {
	inValue := reflect.ValueOf(inArg)
	var arg reflect.Value

	switch {
	case !inValue.IsValid():
		// Zero value, argument is nil
		return reflect.Zero(argType), nil
	case inValue.Type().AssignableTo(argType):
		arg = reflect.New(argType).Elem()
		arg.Set(inValue)
		return arg, nil
	case inValue.Type().ConvertibleTo(argType) && inValue.Kind() != reflect.String && argType.Kind() != reflect.String:
		return inValue.Convert(argType), nil
	case inValue.Kind() == reflect.String:
		// Attempt to unmarshal via TextUnmarshaler, directly or by pointer
		var um encoding.TextUnmarshaler
		if argType.Kind() == reflect.Pointer && argType.Implements(textUnmarshalerType) {
			arg = reflect.New(argType.Elem())
			um = arg.Interface().(encoding.TextUnmarshaler)
		} else if reflect.PointerTo(argType).Implements(textUnmarshalerType) {
			p := reflect.New(argType)
			um = p.Interface().(encoding.TextUnmarshaler)
			arg = p.Elem()
		}
		if um != nil {
			if err := um.UnmarshalText([]byte(inValue.String())); err != nil {
				return reflect.Value{}, fmt.Errorf("%w: expected %s, unmarshal failed: %w",
					ErrIncompatibleArguments, argType, err)
			}
			return arg, nil
		}
		if inValue.Type().ConvertibleTo(argType) && argType.Kind() == reflect.String {
			return inValue.Convert(argType), nil
		}
	}
	return reflect.Value{}, fmt.Errorf("%w: expected %s, provided %s",
		ErrIncompatibleArguments, argType, inValue.Type())
}

// InvokeMethod calls the named slot of obj with args, converted to the slot's
// parameter types.
//
// AutoConnection behaves as DirectConnection, since the calling goroutine is
// not associated with a thread. QueuedConnection posts the call to the
// object's thread and returns immediately. BlockingQueuedConnection posts it
// and waits for ctx or for the call to finish. For direct and blocking calls
// an error returned by the slot is returned.
func InvokeMethod(ctx context.Context, obj AnyObject, method string, typ ConnectionType, args ...any) error {
	d := dataOf(obj)
	if d == nil {
		return ErrNotInitialized
	}
	var t target
	if i := d.typ.IndexOfSlot(method); i >= 0 {
		t = target{kind: slotTarget, index: i, params: d.typ.slots[i].Params}
	} else if i := d.typ.IndexOfSignal(method); i >= 0 {
		t = target{kind: signalTarget, index: i, params: d.typ.signals[i].Params}
	} else {
		err := fmt.Errorf("%w: %s::%s", ErrUnknownSlot, d.typ.name, method)
		d.warn("invoke").Err(err).Msg("invoke failed")
		return err
	}
	values, err := convertArgs(method, t.params, args)
	if err != nil {
		d.warn("invoke").Err(err).Msg("invoke failed")
		return err
	}

	switch typ.kind() {
	case AutoConnection, DirectConnection:
		return returnedError(d.call(t, values))
	case QueuedConnection:
		d.postEvent(&MetaCallEvent{
			BaseEvent: BaseEvent{typ: EventMetaCall, accepted: true},
			args:      values,
			target:    t,
		}, NormalEventPriority)
		return nil
	case BlockingQueuedConnection:
		var result error
		sem := semaphore.NewWeighted(1)
		_ = sem.Acquire(context.Background(), 1)
		d.postEvent(&MetaCallEvent{
			BaseEvent: BaseEvent{typ: EventMetaCall, accepted: true},
			args:      values,
			target:    t,
			result:    &result,
			done:      func() { sem.Release(1) },
		}, NormalEventPriority)
		if err := sem.Acquire(ctx, 1); err != nil {
			return err
		}
		return result
	default:
		return fmt.Errorf("qcore: invalid connection type %d", typ)
	}
}

func returnedError(values []reflect.Value) error {
	for _, v := range values {
		if v.Type().Implements(errorType) && !v.IsNil() {
			return v.Interface().(error)
		}
	}
	return nil
}
