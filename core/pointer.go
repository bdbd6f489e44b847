package qcore

import "weak"

// Pointer is a guarded reference to an object. It does not keep the object
// alive, and Get returns nil once the object has been destroyed.
type Pointer[T any, PT interface {
	*T
	AnyObject
}] struct {
	wp weak.Pointer[T]
}

func NewPointer[T any, PT interface {
	*T
	AnyObject
}](obj PT) Pointer[T, PT] {
	if obj == nil {
		return Pointer[T, PT]{}
	}
	return Pointer[T, PT]{wp: weak.Make((*T)(obj))}
}

// Get returns the object, or nil if it was destroyed or collected.
func (p Pointer[T, PT]) Get() PT {
	v := p.wp.Value()
	if v == nil {
		return nil
	}
	obj := PT(v)
	if d := dataOf(obj); d != nil && d.destroying.Load() {
		return nil
	}
	return obj
}

func (p Pointer[T, PT]) IsNull() bool {
	return p.Get() == nil
}
