// Package filter evaluates payload predicate trees against point payloads.
// A Filter is either a leaf comparison against one payload key, or a
// boolean combinator (And/Or/Not) over child filters.
package filter

import (
	"strconv"
	"strings"
)

// Op identifies a leaf comparison or boolean combinator.
type Op string

const (
	OpEquals      Op = "equals"
	OpNotEquals   Op = "not_equals"
	OpGreaterThan Op = "greater_than"
	OpLessThan    Op = "less_than"
	OpGreaterEq   Op = "greater_eq"
	OpLessEq      Op = "less_eq"
	OpContains    Op = "contains"
	OpAnd         Op = "and"
	OpOr          Op = "or"
	OpNot         Op = "not"
)

// Filter is a node in the predicate tree. Leaf nodes set Key/Value; And/Or
// take Children; Not takes exactly Children[0].
type Filter struct {
	Op       Op
	Key      string
	Value    interface{}
	Children []Filter
}

// Eq builds a leaf equality filter.
func Eq(key string, value interface{}) Filter { return Filter{Op: OpEquals, Key: key, Value: value} }

// NotEq builds a leaf inequality filter.
func NotEq(key string, value interface{}) Filter {
	return Filter{Op: OpNotEquals, Key: key, Value: value}
}

// Gt builds a leaf greater-than filter.
func Gt(key string, value interface{}) Filter {
	return Filter{Op: OpGreaterThan, Key: key, Value: value}
}

// Lt builds a leaf less-than filter.
func Lt(key string, value interface{}) Filter { return Filter{Op: OpLessThan, Key: key, Value: value} }

// Gte builds a leaf greater-or-equal filter.
func Gte(key string, value interface{}) Filter {
	return Filter{Op: OpGreaterEq, Key: key, Value: value}
}

// Lte builds a leaf less-or-equal filter.
func Lte(key string, value interface{}) Filter {
	return Filter{Op: OpLessEq, Key: key, Value: value}
}

// Contains builds a leaf substring/membership filter: strings match by
// substring, slices by element equality.
func Contains(key string, value interface{}) Filter {
	return Filter{Op: OpContains, Key: key, Value: value}
}

// And combines children with boolean AND. An empty And matches everything.
func And(children ...Filter) Filter { return Filter{Op: OpAnd, Children: children} }

// Or combines children with boolean OR. An empty Or matches nothing.
func Or(children ...Filter) Filter { return Filter{Op: OpOr, Children: children} }

// Not negates a single child.
func Not(child Filter) Filter { return Filter{Op: OpNot, Children: []Filter{child}} }

// Match evaluates f against payload, returning true if payload satisfies it.
func Match(f Filter, payload map[string]interface{}) bool {
	switch f.Op {
	case OpAnd:
		for _, c := range f.Children {
			if !Match(c, payload) {
				return false
			}
		}
		return true
	case OpOr:
		for _, c := range f.Children {
			if Match(c, payload) {
				return true
			}
		}
		return false
	case OpNot:
		if len(f.Children) != 1 {
			return false
		}
		return !Match(f.Children[0], payload)
	default:
		return matchLeaf(f, payload)
	}
}

func matchLeaf(f Filter, payload map[string]interface{}) bool {
	actual, present := payload[f.Key]

	switch f.Op {
	case OpEquals:
		if !present {
			return false
		}
		return equalValues(actual, f.Value)
	case OpNotEquals:
		if !present {
			return true
		}
		return !equalValues(actual, f.Value)
	case OpGreaterThan, OpLessThan, OpGreaterEq, OpLessEq:
		if !present {
			return false
		}
		a, ok1 := toFloat64(actual)
		b, ok2 := toFloat64(f.Value)
		if !ok1 || !ok2 {
			return false
		}
		switch f.Op {
		case OpGreaterThan:
			return a > b
		case OpLessThan:
			return a < b
		case OpGreaterEq:
			return a >= b
		default:
			return a <= b
		}
	case OpContains:
		if !present {
			return false
		}
		return containsValue(actual, f.Value)
	}
	return false
}

func equalValues(a, b interface{}) bool {
	if af, aok := toFloat64(a); aok {
		if bf, bok := toFloat64(b); bok {
			return af == bf
		}
	}
	return a == b
}

// toFloat64 coerces the numeric payload value types Match sees (plus
// numeric strings from JSON-decoded query bodies) into a comparable
// float64, so >, <, >=, <= work across int/float/string literals.
func toFloat64(v interface{}) (float64, bool) {
	switch val := v.(type) {
	case float64:
		return val, true
	case float32:
		return float64(val), true
	case int:
		return float64(val), true
	case int64:
		return float64(val), true
	case int32:
		return float64(val), true
	case uint:
		return float64(val), true
	case uint64:
		return float64(val), true
	case uint32:
		return float64(val), true
	case string:
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			return f, true
		}
	}
	return 0, false
}

func containsValue(haystack, needle interface{}) bool {
	switch h := haystack.(type) {
	case string:
		s, ok := needle.(string)
		return ok && strings.Contains(h, s)
	case []interface{}:
		for _, elem := range h {
			if equalValues(elem, needle) {
				return true
			}
		}
		return false
	case []string:
		s, ok := needle.(string)
		if !ok {
			return false
		}
		for _, elem := range h {
			if elem == s {
				return true
			}
		}
		return false
	default:
		return false
	}
}
