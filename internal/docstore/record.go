package docstore

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Identifier fields, checked in this order.
const (
	FieldID     = "id"
	FieldUserID = "userId"
)

// Reserved key segments inside a namespace.
const (
	indexSegment   = "index"
	trackedSegment = "indexed"
)

// Record is one stored document.
type Record map[string]any

// ID returns the record's identifier formatted for use in a key.
func (r Record) ID() (string, error) {
	for _, field := range []string{FieldID, FieldUserID} {
		s, ok := formatValue(r[field])
		if !ok || s == "" {
			continue
		}
		if strings.HasPrefix(s, indexSegment+":") || strings.HasPrefix(s, trackedSegment+":") {
			return "", errors.Wrapf(ErrValidation, "identifier %q uses a reserved prefix", s)
		}
		return s, nil
	}
	return "", errors.Wrapf(ErrValidation, "record has no %q or %q field", FieldID, FieldUserID)
}

// Clone returns a deep copy of r.
func (r Record) Clone() Record {
	if r == nil {
		return nil
	}
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case Record:
		return t.Clone()
	case map[string]any:
		return map[string]any(Record(t).Clone())
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = cloneValue(e)
		}
		return out
	case []string:
		return append([]string(nil), t...)
	case []float64:
		return append([]float64(nil), t...)
	case []int:
		return append([]int(nil), t...)
	default:
		return v
	}
}

// formatValue renders a scalar the way it appears in keys: strings verbatim,
// numbers in shortest decimal form, bools as true/false. Structured values
// are JSON encoded. nil reports false.
func formatValue(v any) (string, bool) {
	switch t := v.(type) {
	case nil:
		return "", false
	case string:
		return t, true
	case bool:
		return strconv.FormatBool(t), true
	case int:
		return strconv.FormatInt(int64(t), 10), true
	case int8:
		return strconv.FormatInt(int64(t), 10), true
	case int16:
		return strconv.FormatInt(int64(t), 10), true
	case int32:
		return strconv.FormatInt(int64(t), 10), true
	case int64:
		return strconv.FormatInt(t, 10), true
	case uint:
		return strconv.FormatUint(uint64(t), 10), true
	case uint8:
		return strconv.FormatUint(uint64(t), 10), true
	case uint16:
		return strconv.FormatUint(uint64(t), 10), true
	case uint32:
		return strconv.FormatUint(uint64(t), 10), true
	case uint64:
		return strconv.FormatUint(t, 10), true
	case float32:
		return formatFloat(float64(t)), true
	case float64:
		return formatFloat(t), true
	case json.Number:
		if f, err := t.Float64(); err == nil {
			return formatFloat(f), true
		}
		return t.String(), true
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return "", false
		}
		return string(b), true
	}
}

func formatFloat(f float64) string {
	if f == math.Trunc(f) && math.Abs(f) < 1e15 {
		return strconv.FormatInt(int64(f), 10)
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}
