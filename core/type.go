package qcore

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strings"
	"sync"
)

// Methods that are never exposed as slots, beyond the methods of Object
// itself. These are the hooks an object type may implement.
var methodBlacklist = []string{
	"Event",
	"EventFilter",
	"TimerEvent",
	"ChildEvent",
	"InitObject",
	"ConnectNotify",
	"DisconnectNotify",
	"ClassName",
}

// A ClassNamer overrides the class name registered for its type, which is
// otherwise the Go type name.
type ClassNamer interface {
	ClassName() string
}

// SignalDescriptor describes one signal of a class. Index is the absolute
// signal index, counting inherited signals first.
type SignalDescriptor struct {
	Name       string         `json:"name"`
	Index      int            `json:"index"`
	Params     []reflect.Type `json:"-"`
	ParamNames []string       `json:"params,omitempty"`
	Class      string         `json:"class"`

	// nil for change signals synthesized for properties
	fieldIndex []int
}

// SlotDescriptor describes an exported method callable through connections
// and InvokeMethod.
type SlotDescriptor struct {
	Name   string         `json:"name"`
	Index  int            `json:"index"`
	Params []reflect.Type `json:"-"`
	Class  string         `json:"class"`

	goName      string
	methodIndex int
	hasError    bool
}

type PropertyDescriptor struct {
	Name   string       `json:"name"`
	Index  int          `json:"index"`
	Type   reflect.Type `json:"-"`
	Notify string       `json:"notify,omitempty"`
	Class  string       `json:"class"`

	notifyIndex int
	fieldIndex  []int
	getter      string
	setter      string
}

// TypeDescriptor is the immutable, registry-owned description of an object
// class: its name, its superclass, and its signals, slots and properties in
// declaration order with inherited members first.
type TypeDescriptor struct {
	name       string
	super      *TypeDescriptor
	goType     reflect.Type
	superIndex []int

	signals    []*SignalDescriptor
	slots      []*SlotDescriptor
	properties []*PropertyDescriptor

	signalByName   map[string]int
	slotByName     map[string]int
	propertyByName map[string]int
}

func (t *TypeDescriptor) Name() string           { return t.name }
func (t *TypeDescriptor) Super() *TypeDescriptor { return t.super }
func (t *TypeDescriptor) GoType() reflect.Type   { return t.goType }

func (t *TypeDescriptor) SignalCount() int   { return len(t.signals) }
func (t *TypeDescriptor) SlotCount() int     { return len(t.slots) }
func (t *TypeDescriptor) PropertyCount() int { return len(t.properties) }

func (t *TypeDescriptor) SignalAt(i int) *SignalDescriptor     { return t.signals[i] }
func (t *TypeDescriptor) SlotAt(i int) *SlotDescriptor         { return t.slots[i] }
func (t *TypeDescriptor) PropertyAt(i int) *PropertyDescriptor { return t.properties[i] }

// Inherits reports whether the class or any of its superclasses is named
// className.
func (t *TypeDescriptor) Inherits(className string) bool {
	for c := t; c != nil; c = c.super {
		if c.name == className {
			return true
		}
	}
	return false
}

// IndexOfSignal returns the absolute index of the named signal, or -1.
func (t *TypeDescriptor) IndexOfSignal(name string) int {
	if i, ok := t.signalByName[name]; ok {
		return i
	}
	return -1
}

func (t *TypeDescriptor) IndexOfSlot(name string) int {
	if i, ok := t.slotByName[name]; ok {
		return i
	}
	return -1
}

func (t *TypeDescriptor) IndexOfProperty(name string) int {
	if i, ok := t.propertyByName[name]; ok {
		return i
	}
	return -1
}

func (t *TypeDescriptor) Signal(name string) *SignalDescriptor {
	if i := t.IndexOfSignal(name); i >= 0 {
		return t.signals[i]
	}
	return nil
}

func (t *TypeDescriptor) Slot(name string) *SlotDescriptor {
	if i := t.IndexOfSlot(name); i >= 0 {
		return t.slots[i]
	}
	return nil
}

func (t *TypeDescriptor) Property(name string) *PropertyDescriptor {
	if i := t.IndexOfProperty(name); i >= 0 {
		return t.properties[i]
	}
	return nil
}

func (t *TypeDescriptor) String() string {
	var super string
	if t.super != nil {
		super = t.super.name
	}
	str, _ := json.MarshalIndent(struct {
		Name       string                `json:"name"`
		Super      string                `json:"super,omitempty"`
		Signals    []*SignalDescriptor   `json:"signals"`
		Slots      []*SlotDescriptor     `json:"slots"`
		Properties []*PropertyDescriptor `json:"properties"`
	}{t.name, super, t.signals, t.slots, t.properties}, "", "  ")
	return string(str)
}

// Registry maps Go types to their class descriptors. Descriptors are built
// on first use and never change afterwards.
type Registry struct {
	mu     sync.Mutex
	byType map[reflect.Type]*TypeDescriptor
	byName map[string]*TypeDescriptor
}

func NewRegistry() *Registry {
	return &Registry{
		byType: make(map[reflect.Type]*TypeDescriptor),
		byName: make(map[string]*TypeDescriptor),
	}
}

var (
	objectType      = reflect.TypeOf(Object{})
	anyObjectType   = reflect.TypeOf((*AnyObject)(nil)).Elem()
	errorType       = reflect.TypeOf((*error)(nil)).Elem()
	objectMethodSet = methodNames(reflect.PointerTo(objectType))
)

func methodNames(t reflect.Type) map[string]bool {
	names := make(map[string]bool, t.NumMethod())
	for i := 0; i < t.NumMethod(); i++ {
		names[t.Method(i).Name] = true
	}
	return names
}

// typeIsObject reports whether t is Object or embeds it by value, directly or
// through another object type.
func typeIsObject(t reflect.Type) bool {
	return t.Kind() == reflect.Struct && reflect.PointerTo(t).Implements(anyObjectType)
}

// superField finds the embedded field that makes t an object type.
func superField(t reflect.Type) (reflect.StructField, bool) {
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if f.Anonymous && f.Type.Kind() == reflect.Struct && typeIsObject(f.Type) {
			return f, true
		}
	}
	return reflect.StructField{}, false
}

// lowerFirst converts a Go identifier to the member naming convention.
func lowerFirst(name string) string {
	if len(name) > 0 {
		name = strings.ToLower(name[:1]) + name[1:]
	}
	return name
}

func typeShouldIgnoreField(field reflect.StructField) bool {
	if field.PkgPath != "" || field.Tag.Get("qcore") == "-" {
		return true
	}
	return field.Type.Kind() != reflect.Func && field.Tag.Get("json") == "-"
}

func typeShouldIgnoreMethod(method reflect.Method) bool {
	if method.PkgPath != "" || objectMethodSet[method.Name] {
		return true
	}
	for _, badName := range methodBlacklist {
		if method.Name == badName {
			return true
		}
	}
	return false
}

func typeFieldName(field reflect.StructField) string {
	name := lowerFirst(field.Name)
	if field.Type.Kind() != reflect.Func {
		if tag := field.Tag.Get("json"); len(tag) > 0 {
			if tags := strings.Split(tag, ","); len(tags[0]) > 0 {
				name = tags[0]
			}
		}
	}
	return name
}

func typeFieldChangedName(fieldName string) string {
	return fieldName + "Changed"
}

// Lookup returns the descriptor registered under className, or nil.
func (r *Registry) Lookup(className string) *TypeDescriptor {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.byName[className]
}

// Register returns the descriptor for the dynamic type of obj, which must be
// a pointer to a struct embedding Object. Registering an already known type
// returns the existing descriptor.
func (r *Registry) Register(obj any) (*TypeDescriptor, error) {
	t := reflect.TypeOf(obj)
	if t == nil {
		return nil, ErrNilObject
	}
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.registerLocked(t)
}

func (r *Registry) registerLocked(t reflect.Type) (*TypeDescriptor, error) {
	if desc, exists := r.byType[t]; exists {
		return desc, nil
	}
	if !typeIsObject(t) {
		return nil, fmt.Errorf("%w: %s", ErrNotObject, t)
	}
	if t == objectType {
		desc := buildObjectDescriptor()
		r.byType[t] = desc
		r.byName[desc.name] = desc
		return desc, nil
	}

	sf, ok := superField(t)
	if !ok {
		// Object is reachable only through a pointer or an unexported path
		return nil, fmt.Errorf("%w: %s must embed an object type by value", ErrNotObject, t)
	}
	super, err := r.registerLocked(sf.Type)
	if err != nil {
		return nil, err
	}

	name := t.Name()
	if cn, ok := reflect.New(t).Interface().(ClassNamer); ok {
		if n := cn.ClassName(); n != "" {
			name = n
		}
	}
	if name == "" {
		return nil, fmt.Errorf("%w: anonymous struct types cannot be registered", ErrNotObject)
	}
	if other, exists := r.byName[name]; exists && other.goType != t {
		return nil, fmt.Errorf("qcore: class name %q is already registered for %s", name, other.goType)
	}

	desc, err := buildDescriptor(name, t, super, sf.Index)
	if err != nil {
		return nil, err
	}
	r.byType[t] = desc
	r.byName[name] = desc
	return desc, nil
}

func newDescriptor(name string, t reflect.Type, super *TypeDescriptor, superIndex []int) *TypeDescriptor {
	return &TypeDescriptor{
		name:           name,
		super:          super,
		goType:         t,
		superIndex:     superIndex,
		signalByName:   make(map[string]int),
		slotByName:     make(map[string]int),
		propertyByName: make(map[string]int),
	}
}

func (t *TypeDescriptor) addSignal(s *SignalDescriptor) error {
	if _, exists := t.signalByName[s.Name]; exists {
		return fmt.Errorf("qcore: class %s declares signal %q twice", t.name, s.Name)
	}
	s.Index = len(t.signals)
	t.signalByName[s.Name] = s.Index
	t.signals = append(t.signals, s)
	return nil
}

func (t *TypeDescriptor) addSlot(s *SlotDescriptor) {
	s.Index = len(t.slots)
	t.slotByName[s.Name] = s.Index
	t.slots = append(t.slots, s)
}

func (t *TypeDescriptor) addProperty(p *PropertyDescriptor) error {
	if _, exists := t.propertyByName[p.Name]; exists {
		return fmt.Errorf("qcore: class %s declares property %q twice", t.name, p.Name)
	}
	p.Index = len(t.properties)
	t.propertyByName[p.Name] = p.Index
	t.properties = append(t.properties, p)
	return nil
}

func buildObjectDescriptor() *TypeDescriptor {
	desc := newDescriptor("Object", objectType, nil, nil)
	fields := []string{"Destroyed", "ObjectNameChanged"}
	for _, fname := range fields {
		f, _ := objectType.FieldByName(fname)
		_ = desc.addSignal(&SignalDescriptor{
			Name:       typeFieldName(f),
			Params:     funcParams(f.Type),
			ParamNames: strings.Split(f.Tag.Get("qcore"), ","),
			Class:      desc.name,
			fieldIndex: f.Index,
		})
	}
	_ = desc.addProperty(&PropertyDescriptor{
		Name:        "objectName",
		Type:        reflect.TypeOf(""),
		Notify:      "objectNameChanged",
		Class:       desc.name,
		notifyIndex: desc.IndexOfSignal("objectNameChanged"),
		getter:      "ObjectName",
		setter:      "SetObjectName",
	})
	pt := reflect.PointerTo(objectType)
	m, _ := pt.MethodByName("DeleteLater")
	desc.addSlot(&SlotDescriptor{
		Name:        "deleteLater",
		Class:       desc.name,
		goName:      m.Name,
		methodIndex: m.Index,
	})
	return desc
}

func funcParams(ft reflect.Type) []reflect.Type {
	params := make([]reflect.Type, ft.NumIn())
	for i := range params {
		params[i] = ft.In(i)
	}
	return params
}

func buildDescriptor(name string, t reflect.Type, super *TypeDescriptor, superIndex []int) (*TypeDescriptor, error) {
	desc := newDescriptor(name, t, super, superIndex)
	pt := reflect.PointerTo(t)

	// Inherited members keep their indexes; their field paths are rebased
	// onto this type.
	for _, s := range super.signals {
		c := *s
		if s.fieldIndex != nil {
			c.fieldIndex = joinIndex(superIndex, s.fieldIndex)
		}
		if err := desc.addSignal(&c); err != nil {
			return nil, err
		}
	}
	for _, p := range super.properties {
		c := *p
		if p.fieldIndex != nil {
			c.fieldIndex = joinIndex(superIndex, p.fieldIndex)
		}
		if err := desc.addProperty(&c); err != nil {
			return nil, err
		}
	}
	for _, s := range super.slots {
		c := *s
		// Resolve against this type so overriding methods are called
		if m, ok := pt.MethodByName(s.goName); ok {
			c.methodIndex = m.Index
		}
		desc.addSlot(&c)
	}

	var props []reflect.StructField
	if err := typeFieldsToDescriptor(desc, t, nil, &props); err != nil {
		return nil, err
	}

	for _, f := range props {
		pname := typeFieldName(f)
		prop := &PropertyDescriptor{
			Name:        pname,
			Type:        f.Type,
			Class:       name,
			fieldIndex:  f.Index,
			notifyIndex: -1,
		}
		if m, ok := pt.MethodByName("Set" + f.Name); ok && !objectMethodSet[m.Name] &&
			m.Type.NumIn() == 2 && f.Type.AssignableTo(m.Type.In(1)) {
			prop.setter = m.Name
		}

		// Create change signals for all properties, adopting explicit ones if they exist
		signalName := typeFieldChangedName(pname)
		if i := desc.IndexOfSignal(signalName); i >= 0 {
			params := desc.signals[i].Params
			if len(params) > 1 || (len(params) == 1 && !f.Type.AssignableTo(params[0])) {
				return nil, fmt.Errorf("qcore: signal %q is a property change signal, but has incompatible parameters", signalName)
			}
			prop.notifyIndex = i
		} else {
			s := &SignalDescriptor{Name: signalName, Class: name}
			if err := desc.addSignal(s); err != nil {
				return nil, err
			}
			prop.notifyIndex = s.Index
		}
		prop.Notify = signalName
		if err := desc.addProperty(prop); err != nil {
			return nil, err
		}
	}

	for i := 0; i < pt.NumMethod(); i++ {
		method := pt.Method(i)
		if typeShouldIgnoreMethod(method) {
			continue
		}
		if _, inherited := desc.slotByName[lowerFirst(method.Name)]; inherited {
			continue
		}
		mt := method.Type
		slot := &SlotDescriptor{
			Name:        lowerFirst(method.Name),
			Class:       name,
			goName:      method.Name,
			methodIndex: method.Index,
		}
		for p := 1; p < mt.NumIn(); p++ {
			slot.Params = append(slot.Params, mt.In(p))
		}
		for o := 0; o < mt.NumOut(); o++ {
			if mt.Out(o).Implements(errorType) {
				slot.hasError = true
			}
		}
		desc.addSlot(slot)
	}

	return desc, nil
}

// typeFieldsToDescriptor adds the signals declared by t and collects its
// property fields. Anonymous structs are flattened breadth-first, as their
// fields are promoted.
func typeFieldsToDescriptor(desc *TypeDescriptor, t reflect.Type, index []int, props *[]reflect.StructField) error {
	var anonStructs []reflect.StructField

	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		if field.Anonymous && typeIsObject(field.Type) {
			// The superclass, handled by inheritance
			continue
		}
		if typeShouldIgnoreField(field) {
			continue
		} else if field.Anonymous {
			if field.Type.Kind() == reflect.Struct {
				anonStructs = append(anonStructs, field)
			}
			continue
		}
		name := typeFieldName(field)
		field.Index = joinIndex(index, field.Index)

		// Signals are func fields. The qcore tag optionally names each
		// parameter.
		if field.Type.Kind() == reflect.Func {
			if field.Type.NumOut() > 0 {
				return fmt.Errorf("qcore: signal %q of %s must not return values", name, desc.name)
			}
			var paramNames []string
			if tag := field.Tag.Get("qcore"); tag != "" {
				paramNames = strings.Split(tag, ",")
				if len(paramNames) != field.Type.NumIn() {
					return fmt.Errorf("qcore: signal %q has %d parameters, but names %d", name, field.Type.NumIn(), len(paramNames))
				}
			}
			err := desc.addSignal(&SignalDescriptor{
				Name:       name,
				Params:     funcParams(field.Type),
				ParamNames: paramNames,
				Class:      desc.name,
				fieldIndex: field.Index,
			})
			if err != nil {
				return err
			}
		} else {
			*props = append(*props, field)
		}
	}

	for _, ast := range anonStructs {
		if err := typeFieldsToDescriptor(desc, ast.Type, joinIndex(index, ast.Index), props); err != nil {
			return err
		}
	}
	return nil
}

func joinIndex(a, b []int) []int {
	r := make([]int, 0, len(a)+len(b))
	return append(append(r, a...), b...)
}
