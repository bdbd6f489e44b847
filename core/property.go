package qcore

import (
	"fmt"
	"reflect"
	"slices"
)

// SetProperty sets the named property. A declared property is written
// through its Set method if the class has one, and otherwise assigned
// directly with its change signal emitted when the value changed. Any other
// name sets a dynamic property; a nil value removes it. Changing a dynamic
// property sends a DynamicPropertyChange event to the object.
func (o *Object) SetProperty(name string, value any) error {
	d := o.d
	if d == nil {
		return ErrNotInitialized
	}
	if name == "" {
		return fmt.Errorf("%w: empty name", ErrUnknownProperty)
	}
	if p := d.typ.Property(name); p != nil {
		if err := d.writeProperty(p, value); err != nil {
			d.warn("property").Err(err).Str("property", name).Msg("cannot set property")
			return err
		}
		return nil
	}

	d.mu.Lock()
	i := slices.Index(d.propNames, name)
	switch {
	case value == nil && i < 0:
		d.mu.Unlock()
		return nil
	case value == nil:
		d.propNames = slices.Delete(d.propNames, i, i+1)
		d.propValues = slices.Delete(d.propValues, i, i+1)
	case i < 0:
		d.propNames = append(d.propNames, name)
		d.propValues = append(d.propValues, value)
	default:
		old := d.propValues[i]
		if reflect.TypeOf(old) == reflect.TypeOf(value) && reflect.DeepEqual(old, value) {
			d.mu.Unlock()
			return nil
		}
		d.propValues[i] = value
	}
	d.mu.Unlock()

	d.notify(&DynamicPropertyChangeEvent{BaseEvent: NewBaseEvent(EventDynamicPropertyChange), name: name})
	return nil
}

func (d *objectData) writeProperty(p *PropertyDescriptor, value any) error {
	v, err := convertArg(value, p.Type)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidPropertyValue, err)
	}
	self := reflect.ValueOf(d.self)
	if p.setter != "" {
		m := self.MethodByName(p.setter)
		in, err := convertArg(v.Interface(), m.Type().In(0))
		if err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidPropertyValue, err)
		}
		return returnedError(m.Call([]reflect.Value{in}))
	}

	field := self.Elem().FieldByIndex(p.fieldIndex)
	if reflect.DeepEqual(field.Interface(), v.Interface()) {
		return nil
	}
	field.Set(v)
	var args []reflect.Value
	if p.notifyIndex >= 0 && len(d.typ.signals[p.notifyIndex].Params) == 1 {
		args = []reflect.Value{v}
	}
	d.activate(p.notifyIndex, args)
	return nil
}

// Property returns the value of the named declared or dynamic property, or
// nil if there is none.
func (o *Object) Property(name string) any {
	v, _ := o.property(name)
	return v
}

func (o *Object) property(name string) (any, bool) {
	d := o.d
	if d == nil {
		return nil, false
	}
	if p := d.typ.Property(name); p != nil {
		self := reflect.ValueOf(d.self)
		if p.getter != "" {
			return self.MethodByName(p.getter).Call(nil)[0].Interface(), true
		}
		return self.Elem().FieldByIndex(p.fieldIndex).Interface(), true
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if i := slices.Index(d.propNames, name); i >= 0 {
		return d.propValues[i], true
	}
	return nil, false
}

// DynamicPropertyNames returns the names of the dynamic properties in the
// order they were first set.
func (o *Object) DynamicPropertyNames() []string {
	if o.d == nil {
		return nil
	}
	o.d.mu.Lock()
	defer o.d.mu.Unlock()
	return slices.Clone(o.d.propNames)
}

// PropertyAs returns the named property of obj as a T.
func PropertyAs[T any](obj AnyObject, name string) (T, error) {
	var zero T
	if dataOf(obj) == nil {
		return zero, ErrNotInitialized
	}
	v, ok := obj.qObject().property(name)
	if !ok {
		return zero, fmt.Errorf("%w: %s", ErrUnknownProperty, name)
	}
	if v == nil {
		return zero, nil
	}
	if t, ok := v.(T); ok {
		return t, nil
	}
	cv, err := convertArg(v, reflect.TypeOf((*T)(nil)).Elem())
	if err != nil {
		return zero, fmt.Errorf("%w: property %s holds %T", ErrInvalidPropertyValue, name, v)
	}
	return cv.Interface().(T), nil
}
