package docstore

import (
	"encoding/json"
	"fmt"
	"reflect"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Op is the closed set of condition operators.
type Op int

const (
	OpEq Op = iota
	OpIn
	OpNe
	OpGt
	OpLt
	OpRegex
)

var opNames = map[Op]string{
	OpEq:    "$eq",
	OpIn:    "$in",
	OpNe:    "$ne",
	OpGt:    "$gt",
	OpLt:    "$lt",
	OpRegex: "$regex",
}

func (o Op) String() string {
	if name, ok := opNames[o]; ok {
		return name
	}
	return fmt.Sprintf("Op(%d)", int(o))
}

// Condition is a single operator applied to one field.
type Condition struct {
	Op     Op
	Value  any   // OpEq, OpNe, OpGt, OpLt
	Values []any // OpIn
	Regexp *regexp.Regexp
}

// Eq matches values equal to v.
func Eq(v any) Condition { return Condition{Op: OpEq, Value: v} }

// Ne matches values not equal to v. Missing fields match.
func Ne(v any) Condition { return Condition{Op: OpNe, Value: v} }

// Gt matches values ordered after v.
func Gt(v any) Condition { return Condition{Op: OpGt, Value: v} }

// Lt matches values ordered before v.
func Lt(v any) Condition { return Condition{Op: OpLt, Value: v} }

// In matches values equal to any of vs.
func In(vs ...any) Condition { return Condition{Op: OpIn, Values: vs} }

// Regex matches values whose string form matches pattern. options accepts
// the flags i, m and s.
func Regex(pattern, options string) (Condition, error) {
	flags := ""
	for _, o := range options {
		switch o {
		case 'i', 'm', 's':
			if !strings.ContainsRune(flags, o) {
				flags += string(o)
			}
		default:
			return Condition{}, errors.Wrapf(ErrInvalidQuery, "unsupported regex option %q", o)
		}
	}
	if flags != "" {
		pattern = "(?" + flags + ")" + pattern
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return Condition{}, errors.Wrapf(ErrInvalidQuery, "bad regex: %v", err)
	}
	return Condition{Op: OpRegex, Regexp: re}, nil
}

// Match reports whether value satisfies c using exact comparison. present
// is false when the field is absent from the record.
func (c Condition) Match(value any, present bool) bool {
	return c.match(exact, value, present)
}

func (c Condition) match(cmp comparison, value any, present bool) bool {
	if !present {
		value = nil
	}
	switch c.Op {
	case OpEq:
		return cmp.equal(value, c.Value)
	case OpNe:
		return !cmp.equal(value, c.Value)
	case OpIn:
		for _, v := range c.Values {
			if cmp.equal(value, v) {
				return true
			}
		}
		return false
	case OpGt:
		order, ok := cmp.order(value, c.Value)
		return ok && order > 0
	case OpLt:
		order, ok := cmp.order(value, c.Value)
		return ok && order < 0
	case OpRegex:
		s, ok := formatValue(value)
		return ok && c.Regexp != nil && c.Regexp.MatchString(s)
	default:
		return false
	}
}

// Predicate binds a condition to a field.
type Predicate struct {
	Field string
	Cond  Condition
}

// Query is a conjunction of predicates.
type Query []Predicate

// Where starts a query with one predicate.
func Where(field string, cond Condition) Query {
	return Query{{Field: field, Cond: cond}}
}

// And appends a predicate.
func (q Query) And(field string, cond Condition) Query {
	return append(q, Predicate{Field: field, Cond: cond})
}

// Matches reports whether rec satisfies every predicate using exact
// comparison.
func (q Query) Matches(rec Record) bool {
	return q.match(exact, rec)
}

func (q Query) match(cmp comparison, rec Record) bool {
	for _, p := range q {
		v, ok := rec[p.Field]
		if !p.Cond.match(cmp, v, ok) {
			return false
		}
	}
	return true
}

// ParseQuery converts a decoded JSON query into a Query. Each entry maps a
// field to a literal or to an operator object such as {"$gt": 30}. Several
// operators in one object are ANDed.
func ParseQuery(raw map[string]any) (Query, error) {
	fields := make([]string, 0, len(raw))
	for f := range raw {
		fields = append(fields, f)
	}
	sort.Strings(fields)

	q := make(Query, 0, len(raw))
	for _, field := range fields {
		conds, err := parseCondition(raw[field])
		if err != nil {
			return nil, errors.WithMessagef(err, "field %q", field)
		}
		for _, c := range conds {
			q = append(q, Predicate{Field: field, Cond: c})
		}
	}
	return q, nil
}

func parseCondition(v any) ([]Condition, error) {
	switch t := v.(type) {
	case Condition:
		return []Condition{t}, nil
	case map[string]any:
		return parseOperatorObject(t)
	case Record:
		return parseOperatorObject(t)
	default:
		return []Condition{Eq(v)}, nil
	}
}

func parseOperatorObject(obj map[string]any) ([]Condition, error) {
	ops := 0
	for k := range obj {
		if strings.HasPrefix(k, "$") {
			ops++
		}
	}
	if ops == 0 {
		return []Condition{Eq(obj)}, nil
	}
	if ops != len(obj) {
		return nil, errors.Wrap(ErrInvalidQuery, "operators cannot be mixed with plain fields")
	}

	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	conds := make([]Condition, 0, len(obj))
	for _, k := range keys {
		arg := obj[k]
		switch k {
		case "$eq":
			conds = append(conds, Eq(arg))
		case "$ne":
			conds = append(conds, Ne(arg))
		case "$gt":
			conds = append(conds, Gt(arg))
		case "$lt":
			conds = append(conds, Lt(arg))
		case "$in":
			values, ok := toSlice(arg)
			if !ok {
				return nil, errors.Wrap(ErrInvalidQuery, "$in expects a list")
			}
			conds = append(conds, In(values...))
		case "$regex":
			pattern, ok := arg.(string)
			if !ok {
				return nil, errors.Wrap(ErrInvalidQuery, "$regex expects a string")
			}
			options := ""
			if raw, ok := obj["$options"]; ok {
				if options, ok = raw.(string); !ok {
					return nil, errors.Wrap(ErrInvalidQuery, "$options expects a string")
				}
			}
			c, err := Regex(pattern, options)
			if err != nil {
				return nil, err
			}
			conds = append(conds, c)
		case "$options":
			if _, ok := obj["$regex"]; !ok {
				return nil, errors.Wrap(ErrInvalidQuery, "$options without $regex")
			}
		default:
			return nil, errors.Wrapf(ErrInvalidQuery, "unknown operator %s", k)
		}
	}
	return conds, nil
}

func toSlice(v any) ([]any, bool) {
	if s, ok := v.([]any); ok {
		return s, true
	}
	rv := reflect.ValueOf(v)
	if !rv.IsValid() || (rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array) {
		return nil, false
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out, true
}

// toFloat converts Go numeric kinds and json.Number.
func toFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case json.Number:
		f, err := t.Float64()
		return f, err == nil
	case nil, string, bool:
		return 0, false
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(rv.Int()), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return float64(rv.Uint()), true
	case reflect.Float32, reflect.Float64:
		return rv.Float(), true
	default:
		return 0, false
	}
}

// comparison decides how a stored value meets a query literal.
type comparison struct {
	// parseStrings lets a string operand stand in for a number or a bool
	// when the other operand is one. Hash storage reads every value back
	// as a string, so only hash collections compare this way.
	parseStrings bool
}

var (
	exact      = comparison{}
	fromString = comparison{parseStrings: true}
)

// numbers returns both operands as float64 when they are comparable as
// numbers.
func (cmp comparison) numbers(a, b any) (float64, float64, bool) {
	fa, aNum := toFloat(a)
	fb, bNum := toFloat(b)
	switch {
	case aNum && bNum:
		return fa, fb, true
	case !cmp.parseStrings:
		return 0, 0, false
	case aNum:
		if f, ok := parseNumber(b); ok {
			return fa, f, true
		}
	case bNum:
		if f, ok := parseNumber(a); ok {
			return f, fb, true
		}
	}
	return 0, 0, false
}

func parseNumber(v any) (float64, bool) {
	s, ok := v.(string)
	if !ok {
		return 0, false
	}
	f, err := strconv.ParseFloat(s, 64)
	return f, err == nil
}

func (cmp comparison) equal(a, b any) bool {
	if fa, fb, ok := cmp.numbers(a, b); ok {
		return fa == fb
	}
	if cmp.parseStrings {
		if s, ok := a.(string); ok {
			if bb, ok := b.(bool); ok {
				return s == strconv.FormatBool(bb)
			}
		}
		if s, ok := b.(string); ok {
			if ab, ok := a.(bool); ok {
				return s == strconv.FormatBool(ab)
			}
		}
	}
	if sa, ok := a.(string); ok {
		sb, ok := b.(string)
		return ok && sa == sb
	}
	return reflect.DeepEqual(normalize(a), normalize(b))
}

// order compares numbers numerically and strings lexicographically. Any
// other pairing is unordered.
func (cmp comparison) order(a, b any) (int, bool) {
	if fa, fb, ok := cmp.numbers(a, b); ok {
		switch {
		case fa < fb:
			return -1, true
		case fa > fb:
			return 1, true
		default:
			return 0, true
		}
	}
	sa, aok := a.(string)
	sb, bok := b.(string)
	if aok && bok {
		return strings.Compare(sa, sb), true
	}
	return 0, false
}

// normalize maps structured values onto their JSON shape so that a Record
// and a map[string]any, or int and float64 members, compare equal.
func normalize(v any) any {
	switch v.(type) {
	case nil, string, bool, float64:
		return v
	}
	if f, ok := toFloat(v); ok {
		return f
	}
	b, err := json.Marshal(v)
	if err != nil {
		return v
	}
	var out any
	if err := json.Unmarshal(b, &out); err != nil {
		return v
	}
	return out
}
