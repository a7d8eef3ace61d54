// Package object implements September's prototype Object: named Slots,
// ordered prototype lists, and C3 linearization for method/property lookup
// across multiple inheritance.
//
// No teacher file implements a prototype object model (the teacher's
// Instance in pkg/vm/vm.go is single-superclass, class-based); this package
// is built fresh against spec.md §3.3/§3.10, in the teacher's
// struct-with-methods style, with Slot expressed as an interface per the
// teacher's Opcode/Instruction separation of "what" from "how" (§4.2a).
package object

import (
	"fmt"

	"github.com/septvm/septvm/pkg/heap"
	"github.com/septvm/septvm/pkg/value"
)

// Invoker is the capability an Object needs to call September functions
// (property-slot getters/setters, bound methods) without pkg/object
// importing pkg/vm and creating an import cycle.
type Invoker interface {
	Invoke(fn value.Value, args []value.Value) (value.Value, error)
}

// SlotKind identifies which Slot variant is in play.
type SlotKind uint8

const (
	FieldSlotKind SlotKind = iota
	MethodSlotKind
	BuiltinSlotKind
	PropertySlotKind
)

// Slot is the polymorphic storage unit behind every named entry in an
// Object. Field slots hold a plain Value; method/builtin slots hold
// callables bound to the receiver on read; property slots run a
// getter/setter pair.
type Slot interface {
	Kind() SlotKind
	// Read resolves the slot's value as observed on recv (recv is the
	// object the lookup started from, which may differ from the object
	// that actually owns this slot, for inherited slots).
	Read(recv value.Value, inv Invoker) (value.Value, error)
	// Write stores v into the slot as observed on recv. ok is false when
	// the slot refuses writes (e.g. a property slot with no setter).
	Write(recv value.Value, v value.Value, inv Invoker) (ok bool, err error)
}

type fieldSlot struct {
	value    value.Value
	readOnly bool
}

func NewFieldSlot(v value.Value) Slot { return &fieldSlot{value: v} }

func NewReadOnlyFieldSlot(v value.Value) Slot { return &fieldSlot{value: v, readOnly: true} }

func (s *fieldSlot) Kind() SlotKind { return FieldSlotKind }

func (s *fieldSlot) Read(value.Value, Invoker) (value.Value, error) { return s.value, nil }

func (s *fieldSlot) Write(_ value.Value, v value.Value, _ Invoker) (bool, error) {
	if s.readOnly {
		return false, nil
	}
	s.value = v
	return true, nil
}

// methodSlot holds a callable (Function/BuiltinFunction Value). Reading it
// binds the receiver, producing a BoundMethod Value rather than the raw
// callable, so a later CALL dispatches with `self` set correctly.
type methodSlot struct {
	fn   value.Value
	bind func(fn value.Value, self value.Value) value.Value
}

// NewMethodSlot stores fn (a Function or BuiltinFunction Value) as a method.
// bind is supplied by pkg/code to avoid object depending on code's
// BoundMethod type.
func NewMethodSlot(fn value.Value, bind func(value.Value, value.Value) value.Value) Slot {
	return &methodSlot{fn: fn, bind: bind}
}

func (s *methodSlot) Kind() SlotKind { return MethodSlotKind }

func (s *methodSlot) Read(recv value.Value, _ Invoker) (value.Value, error) {
	return s.bind(s.fn, recv), nil
}

func (s *methodSlot) Write(value.Value, value.Value, Invoker) (bool, error) { return false, nil }

// builtinSlot is identical in shape to methodSlot but kept distinct so
// Object.Slots()/introspection can report which entries are native.
type builtinSlot struct {
	fn   value.Value
	bind func(fn value.Value, self value.Value) value.Value
}

func NewBuiltinSlot(fn value.Value, bind func(value.Value, value.Value) value.Value) Slot {
	return &builtinSlot{fn: fn, bind: bind}
}

func (s *builtinSlot) Kind() SlotKind { return BuiltinSlotKind }

func (s *builtinSlot) Read(recv value.Value, _ Invoker) (value.Value, error) {
	return s.bind(s.fn, recv), nil
}

func (s *builtinSlot) Write(value.Value, value.Value, Invoker) (bool, error) { return false, nil }

// propertySlot runs user-level getter/setter functions on read/write.
type propertySlot struct {
	getter value.Value // Nothing if write-only
	setter value.Value // Nothing if read-only
}

func NewPropertySlot(getter, setter value.Value) Slot {
	return &propertySlot{getter: getter, setter: setter}
}

func (s *propertySlot) Kind() SlotKind { return PropertySlotKind }

func (s *propertySlot) Read(recv value.Value, inv Invoker) (value.Value, error) {
	if s.getter.IsNothing() {
		return value.Nothing(), fmt.Errorf("property has no getter")
	}
	return inv.Invoke(s.getter, []value.Value{recv})
}

func (s *propertySlot) Write(recv value.Value, v value.Value, inv Invoker) (bool, error) {
	if s.setter.IsNothing() {
		return false, nil
	}
	_, err := inv.Invoke(s.setter, []value.Value{recv, v})
	return err == nil, err
}

// Object is a heap-allocated prototype object: an ordered map of named
// slots plus an ordered list of prototype Values, linearized with C3 for
// lookup.
type Object struct {
	heap.Header
	slots      map[string]Slot
	order      []string // insertion order, for reflective enumeration
	protos     []value.Value
	protoStamp uint64 // bumped whenever protos changes, invalidates linCache
	linCache   []*Object
	linStamp   uint64
}

// ErrCannotLinearize is returned when no consistent C3 merge order exists.
var ErrCannotLinearize = fmt.Errorf("cannot linearize: inconsistent prototype hierarchy")

func New(mgr *heap.Manager) *Object {
	o := &Object{
		Header: heap.NewHeader(value.HeapObjectKind),
		slots:  make(map[string]Slot),
	}
	mgr.Register(o)
	return o
}

func (o *Object) References() []value.Value {
	refs := make([]value.Value, 0, len(o.slots)+len(o.protos))
	refs = append(refs, o.protos...)
	for _, name := range o.order {
		if fs, ok := o.slots[name].(*fieldSlot); ok {
			refs = append(refs, fs.value)
		}
		if ms, ok := o.slots[name].(*methodSlot); ok {
			refs = append(refs, ms.fn)
		}
		if bs, ok := o.slots[name].(*builtinSlot); ok {
			refs = append(refs, bs.fn)
		}
		if ps, ok := o.slots[name].(*propertySlot); ok {
			refs = append(refs, ps.getter, ps.setter)
		}
	}
	return refs
}

// SetPrototypes replaces the object's prototype list (in priority order)
// and invalidates any cached linearization.
func (o *Object) SetPrototypes(protos []value.Value) {
	o.protos = append([]value.Value(nil), protos...)
	o.protoStamp++
	o.linCache = nil
}

func (o *Object) Prototypes() []value.Value { return o.protos }

// define installs a slot under name, recording insertion order the first
// time a name is seen.
func (o *Object) define(name string, s Slot) {
	if _, exists := o.slots[name]; !exists {
		o.order = append(o.order, name)
	}
	o.slots[name] = s
}

func (o *Object) DefineField(name string, v value.Value) { o.define(name, NewFieldSlot(v)) }

func (o *Object) DefineReadOnlyField(name string, v value.Value) {
	o.define(name, NewReadOnlyFieldSlot(v))
}

func (o *Object) DefineMethod(name string, fn value.Value, bind func(value.Value, value.Value) value.Value) {
	o.define(name, NewMethodSlot(fn, bind))
}

func (o *Object) DefineBuiltin(name string, fn value.Value, bind func(value.Value, value.Value) value.Value) {
	o.define(name, NewBuiltinSlot(fn, bind))
}

func (o *Object) DefineProperty(name string, getter, setter value.Value) {
	o.define(name, NewPropertySlot(getter, setter))
}

// OwnSlot returns the slot defined directly on o (not inherited), if any.
func (o *Object) OwnSlot(name string) (Slot, bool) {
	s, ok := o.slots[name]
	return s, ok
}

// Slots returns every slot name this object defines directly, in insertion
// order (spec.md §3.3: "insertion order is preserved for iteration").
func (o *Object) Slots() []string {
	return append([]string(nil), o.order...)
}

// resolveProto turns a prototype Value into its backing *Object, skipping
// non-Reference or non-Object entries: Linearize ignores such entries
// rather than reporting them.
func resolveProto(v value.Value) (*Object, bool) {
	h, ok := v.Heap()
	if !ok {
		return nil, false
	}
	obj, ok := h.(*Object)
	return obj, ok
}

// Linearize computes (and caches) this object's C3 method-resolution order,
// starting with the object itself. The cache records the sum of the
// prototype stamps of every object in the cached order; stamps only grow,
// so a prototype change on this object or on any ancestor changes that sum
// and the order is recomputed on the next call.
func (o *Object) Linearize() ([]*Object, error) {
	if o.linCache != nil {
		var sum uint64
		for _, anc := range o.linCache {
			sum += anc.protoStamp
		}
		if sum == o.linStamp {
			return o.linCache, nil
		}
	}

	protoObjs := make([]*Object, 0, len(o.protos))
	lists := make([][]*Object, 0, len(o.protos)+1)
	for _, pv := range o.protos {
		p, ok := resolveProto(pv)
		if !ok {
			continue
		}
		protoObjs = append(protoObjs, p)
		pl, err := p.Linearize()
		if err != nil {
			return nil, err
		}
		lists = append(lists, append([]*Object(nil), pl...))
	}
	lists = append(lists, protoObjs)

	merged, err := c3Merge(lists)
	if err != nil {
		return nil, err
	}

	full := make([]*Object, 0, len(merged)+1)
	full = append(full, o)
	full = append(full, merged...)

	o.linCache = full
	o.linStamp = 0
	for _, anc := range full {
		o.linStamp += anc.protoStamp
	}
	return full, nil
}

// c3Merge implements the standard C3 linearization merge: repeatedly take
// the head of the first list that does not appear in the tail of any other
// list, until every list is exhausted.
func c3Merge(lists [][]*Object) ([]*Object, error) {
	var result []*Object
	for {
		lists = dropEmpty(lists)
		if len(lists) == 0 {
			return result, nil
		}
		var head *Object
		for _, l := range lists {
			candidate := l[0]
			if !inAnyTail(candidate, lists) {
				head = candidate
				break
			}
		}
		if head == nil {
			return nil, ErrCannotLinearize
		}
		result = append(result, head)
		for i, l := range lists {
			lists[i] = removeFirst(l, head)
		}
	}
}

func dropEmpty(lists [][]*Object) [][]*Object {
	out := lists[:0]
	for _, l := range lists {
		if len(l) > 0 {
			out = append(out, l)
		}
	}
	return out
}

func inAnyTail(o *Object, lists [][]*Object) bool {
	for _, l := range lists {
		for _, t := range l[1:] {
			if t == o {
				return true
			}
		}
	}
	return false
}

func removeFirst(l []*Object, o *Object) []*Object {
	if len(l) > 0 && l[0] == o {
		return l[1:]
	}
	return l
}

// Lookup searches o's C3 linearization for name, returning the slot and the
// object that actually owns it.
func (o *Object) Lookup(name string) (Slot, *Object, error) {
	chain, err := o.Linearize()
	if err != nil {
		return nil, nil, err
	}
	for _, anc := range chain {
		if s, ok := anc.slots[name]; ok {
			return s, anc, nil
		}
	}
	return nil, nil, nil
}

// SetProperty implements STORE_PROP's copy-down semantics (DESIGN.md Open
// Question 2): mutating an instance must never mutate a shared prototype.
// An inherited field slot is always shadowed with a new field on o rather
// than written through, since a fieldSlot holds its value directly and is
// shared by every object in the chain that inherits it. A property slot's
// Write runs a setter function bound to recv rather than storing into
// shared slot state, so it's invoked wherever it's found in the chain; if
// it refuses (e.g. a getter-only property), the refusal shadows with a new
// field slot on the receiver same as an unknown name. A wholly unknown
// name always creates a new field slot directly on o.
func (o *Object) SetProperty(name string, v value.Value, inv Invoker, recv value.Value) error {
	slot, owner, err := o.Lookup(name)
	if err != nil {
		return err
	}
	if slot != nil {
		if slot.Kind() == FieldSlotKind && owner != o {
			o.DefineField(name, v)
			return nil
		}
		ok, werr := slot.Write(recv, v, inv)
		if werr != nil {
			return werr
		}
		if ok {
			return nil
		}
		if owner == o {
			// Owner refused (e.g. read-only field): leave as-is, caller
			// decides whether that's an error.
			return nil
		}
	}
	o.DefineField(name, v)
	return nil
}
