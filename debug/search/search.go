// Package search implements the memory-search side of the debug
// front-end: scan a guest range for cells matching a predicate, then
// repeatedly narrow the surviving cells as the program runs. It only
// reads guest memory; it never owns or mutates execution state.
package search

import (
	"fmt"
	"math"

	"github.com/pkg/errors"

	"github.com/minirop/xenia/memory"
)

// Kind is the scalar width a search operates on. The set is closed;
// every switch over Kind handles all four cases.
type Kind int

const (
	Kind8 Kind = iota
	Kind16
	Kind32
	KindFloat
)

// Size is the width of one cell in bytes.
func (k Kind) Size() uint32 {
	switch k {
	case Kind8:
		return 1
	case Kind16:
		return 2
	case Kind32:
		return 4
	case KindFloat:
		return 4
	}

	panic(fmt.Sprintf("search: unknown kind %d", k))
}

func (k Kind) String() string {
	switch k {
	case Kind8:
		return "8 bits"
	case Kind16:
		return "16 bits"
	case Kind32:
		return "32 bits"
	case KindFloat:
		return "float"
	}

	panic(fmt.Sprintf("search: unknown kind %d", k))
}

// Value is one scalar read from guest memory, tagged with its kind.
// Integer kinds carry the value zero-extended in bits; KindFloat carries
// the raw IEEE-754 bits.
type Value struct {
	kind Kind
	bits uint32
}

func U8(v uint8) Value {
	return Value{kind: Kind8, bits: uint32(v)}
}

func U16(v uint16) Value {
	return Value{kind: Kind16, bits: uint32(v)}
}

func U32(v uint32) Value {
	return Value{kind: Kind32, bits: v}
}

func F32(v float32) Value {
	return Value{kind: KindFloat, bits: math.Float32bits(v)}
}

func (v Value) Kind() Kind {
	return v.kind
}

// Uint returns the integer value. Meaningless for KindFloat.
func (v Value) Uint() uint32 {
	return v.bits
}

// Float returns the floating-point value. Meaningless for integer kinds.
func (v Value) Float() float32 {
	return math.Float32frombits(v.bits)
}

func (v Value) String() string {
	if v.kind == KindFloat {
		return fmt.Sprintf("%v", v.Float())
	}

	return fmt.Sprintf("%#x", v.bits)
}

func (v Value) less(o Value) bool {
	if v.kind == KindFloat {
		return v.Float() < o.Float()
	}

	return v.bits < o.bits
}

func (v Value) equal(o Value) bool {
	if v.kind == KindFloat {
		return v.Float() == o.Float()
	}

	return v.bits == o.bits
}

// Predicate decides whether a cell survives a scan or filter pass. All
// predicates compare uniformly across the four kinds.
type Predicate struct {
	kind  Kind
	match func(Value) bool
	desc  string
}

// Equal keeps cells whose value equals v.
func Equal(v Value) Predicate {
	return Predicate{
		kind:  v.kind,
		match: func(x Value) bool { return x.equal(v) },
		desc:  fmt.Sprintf("== %s", v),
	}
}

// NotEqual keeps cells whose value differs from v.
func NotEqual(v Value) Predicate {
	return Predicate{
		kind:  v.kind,
		match: func(x Value) bool { return !x.equal(v) },
		desc:  fmt.Sprintf("!= %s", v),
	}
}

// Range keeps cells with min <= value < max.
func Range(min, max Value) Predicate {
	return Predicate{
		kind:  min.kind,
		match: func(x Value) bool { return !x.less(min) && x.less(max) },
		desc:  fmt.Sprintf("in [%s, %s)", min, max),
	}
}

func (p Predicate) Match(v Value) bool {
	return p.match(v)
}

func (p Predicate) String() string {
	return p.desc
}

var ErrKindMismatch = errors.New("search: predicate value kind does not match session kind")

// Session is one ongoing search over a guest range: Scan populates the
// cell set from scratch, Filter narrows it against current memory
// contents.
type Session struct {
	mem  *memory.Memory
	kind Kind

	base, length uint32

	cells []uint32
}

func NewSession(mem *memory.Memory, kind Kind, base, length uint32) *Session {
	return &Session{
		mem:    mem,
		kind:   kind,
		base:   base,
		length: length,
	}
}

func (s *Session) Kind() Kind {
	return s.kind
}

// Cells returns the guest addresses still matching, in ascending order.
func (s *Session) Cells() []uint32 {
	return s.cells
}

// Value reads the current contents of one cell.
func (s *Session) Value(addr uint32) (Value, error) {
	switch s.kind {
	case Kind8:
		v, err := s.mem.ReadU8(addr)
		return Value{kind: Kind8, bits: uint32(v)}, err
	case Kind16:
		v, err := s.mem.ReadU16(addr)
		return Value{kind: Kind16, bits: uint32(v)}, err
	case Kind32:
		v, err := s.mem.ReadU32(addr)
		return Value{kind: Kind32, bits: v}, err
	case KindFloat:
		v, err := s.mem.ReadU32(addr)
		return Value{kind: KindFloat, bits: v}, err
	}

	panic(fmt.Sprintf("search: unknown kind %d", s.kind))
}

// Scan discards any previous result set and walks the whole range,
// keeping every cell the predicate matches.
func (s *Session) Scan(pred Predicate) error {
	if pred.kind != s.kind {
		return errors.Wrapf(ErrKindMismatch, "session=%s predicate=%s", s.kind, pred.kind)
	}

	s.cells = s.cells[:0]

	step := s.kind.Size()

	for off := uint32(0); off+step <= s.length; off += step {
		addr := s.base + off

		val, err := s.Value(addr)
		if err != nil {
			return err
		}

		if pred.Match(val) {
			s.cells = append(s.cells, addr)
		}
	}

	return nil
}

// Filter re-reads the surviving cells and drops those the predicate no
// longer matches.
func (s *Session) Filter(pred Predicate) error {
	if pred.kind != s.kind {
		return errors.Wrapf(ErrKindMismatch, "session=%s predicate=%s", s.kind, pred.kind)
	}

	kept := s.cells[:0]

	for _, addr := range s.cells {
		val, err := s.Value(addr)
		if err != nil {
			return err
		}

		if pred.Match(val) {
			kept = append(kept, addr)
		}
	}

	s.cells = kept

	return nil
}
