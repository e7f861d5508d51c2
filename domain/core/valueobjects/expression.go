package valueobjects

import (
	"sort"

	"github.com/channl/dynamodb-relay-graph-sub000/domain/core/entities"
)

// Range is a range descriptor for a single attribute. After and Before are
// exclusive bounds; a bound that is set with a nil value means "unbounded on
// this side" and is compiled to a type-specific sentinel.
type Range struct {
	After      any
	Before     any
	BeginsWith any

	HasAfter      bool
	HasBefore     bool
	HasBeginsWith bool
}

// After returns a range matching values strictly greater than v.
func After(v any) Range {
	return Range{After: v, HasAfter: true}
}

// Before returns a range matching values strictly less than v.
func Before(v any) Range {
	return Range{Before: v, HasBefore: true}
}

// BeginsWith returns a range matching values with the given prefix.
func BeginsWith(v any) Range {
	return Range{BeginsWith: v, HasBeginsWith: true}
}

// WithAfter adds a lower bound.
func (r Range) WithAfter(v any) Range {
	r.After, r.HasAfter = v, true
	return r
}

// WithBefore adds an upper bound.
func (r Range) WithBefore(v any) Range {
	r.Before, r.HasBefore = v, true
	return r
}

// Expression constrains a traversal step. Each attribute maps either to a
// literal (equality) or to a Range. The "type" attribute names the model type
// and is never treated as a constraint.
type Expression map[string]any

// Type returns the model type the expression targets.
func (e Expression) Type() string {
	t, _ := e[entities.AttrType].(string)
	return t
}

// Names returns the constrained attribute names (excluding "type") in sorted
// order so compiled output is deterministic.
func (e Expression) Names() []string {
	names := make([]string, 0, len(e))
	for name := range e {
		if name == entities.AttrType {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// IsRange reports whether the attribute is constrained by a Range.
func (e Expression) IsRange(name string) bool {
	_, ok := e.Range(name)
	return ok
}

// Range returns the attribute's range descriptor, if any.
func (e Expression) Range(name string) (Range, bool) {
	switch r := e[name].(type) {
	case Range:
		return r, true
	case *Range:
		if r == nil {
			return Range{}, false
		}
		return *r, true
	}
	return Range{}, false
}

// IsTypeOnly reports whether the expression has no constraints besides "type".
func (e Expression) IsTypeOnly() bool {
	return len(e.Names()) == 0
}

// HasEquality reports whether every named attribute is constrained by a
// literal value.
func (e Expression) HasEquality(names ...string) bool {
	for _, name := range names {
		v, ok := e[name]
		if !ok || v == nil || e.IsRange(name) {
			return false
		}
	}
	return true
}

// Specifies reports whether the expression consists of exactly the given
// attributes, all constrained by equality.
func (e Expression) Specifies(names ...string) bool {
	return len(e.Names()) == len(names) && e.HasEquality(names...)
}

// With returns a copy of the expression with one extra constraint.
func (e Expression) With(name string, value any) Expression {
	out := make(Expression, len(e)+1)
	for k, v := range e {
		out[k] = v
	}
	out[name] = value
	return out
}
