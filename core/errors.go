package qcore

import "errors"

var (
	ErrNilObject             = errors.New("qcore: nil object")
	ErrNotObject             = errors.New("qcore: type does not embed qcore.Object")
	ErrNotInitialized        = errors.New("qcore: object is not initialized")
	ErrObjectDestroyed       = errors.New("qcore: object is being destroyed")
	ErrUnknownSignal         = errors.New("qcore: unknown signal")
	ErrUnknownSlot           = errors.New("qcore: unknown slot")
	ErrUnknownProperty       = errors.New("qcore: unknown property")
	ErrInvalidPropertyValue  = errors.New("qcore: value cannot be stored in property")
	ErrIncompatibleArguments = errors.New("qcore: incompatible arguments")
	ErrDuplicateConnection   = errors.New("qcore: connection already exists")
	ErrDifferentThread       = errors.New("qcore: objects live in different threads")
	ErrHasParent             = errors.New("qcore: object has a parent")
	ErrParentCycle           = errors.New("qcore: parent would become its own descendant")
	ErrPendingEvents         = errors.New("qcore: object has pending posted events")
	ErrNilThread             = errors.New("qcore: nil thread")
	ErrThreadRunning         = errors.New("qcore: thread already started")
	ErrMainThread            = errors.New("qcore: operation not allowed on the main thread")
	ErrDeadlock              = errors.New("qcore: blocking call would deadlock")
	ErrClosed                = errors.New("qcore: application closed")
)
