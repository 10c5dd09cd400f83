package record

import (
	"fmt"
	"time"
)

// Kind identifies the dynamic type carried by a Value.
type Kind int

const (
	KindNull Kind = iota
	KindString
	KindInt
	KindFloat
	KindBool
	KindTime
	KindDuration
	KindSequence
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindString:
		return "string"
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindBool:
		return "bool"
	case KindTime:
		return "time"
	case KindDuration:
		return "duration"
	case KindSequence:
		return "sequence"
	default:
		return "unknown"
	}
}

// Value is a dynamically-typed record field value. It is the tagged union
// spec.md §3 and §9 call for: a Kind tag plus the Go-native payload for
// that kind, so callers never need a type assertion on interface{} without
// knowing which branch to expect.
type Value struct {
	Kind     Kind
	Str      string
	Int      int64
	Float    float64
	Bool     bool
	Time     time.Time
	Duration time.Duration
	Seq      []Value
}

// Null is the shared null value.
var Null = Value{Kind: KindNull}

func NewString(v string) Value       { return Value{Kind: KindString, Str: v} }
func NewInt(v int64) Value           { return Value{Kind: KindInt, Int: v} }
func NewFloat(v float64) Value       { return Value{Kind: KindFloat, Float: v} }
func NewBool(v bool) Value           { return Value{Kind: KindBool, Bool: v} }
func NewTime(v time.Time) Value      { return Value{Kind: KindTime, Time: v} }
func NewDuration(v time.Duration) Value {
	return Value{Kind: KindDuration, Duration: v}
}
func NewSequence(v []Value) Value {
	cloned := make([]Value, len(v))
	for i, item := range v {
		cloned[i] = item.Clone()
	}
	return Value{Kind: KindSequence, Seq: cloned}
}

// IsNull reports whether the value is the null sentinel.
func (v Value) IsNull() bool { return v.Kind == KindNull }

// Clone returns a value with no shared mutable state. Scalars are copied by
// value already; only Sequence needs a recursive copy.
func (v Value) Clone() Value {
	if v.Kind != KindSequence {
		return v
	}
	cloned := make([]Value, len(v.Seq))
	for i, item := range v.Seq {
		cloned[i] = item.Clone()
	}
	return Value{Kind: KindSequence, Seq: cloned}
}

// Equal reports structural equality between two values. Cross-kind
// comparisons are false except where numeric promotion applies (int vs
// float), matching the comparison-promotion rule in spec.md §4.3/§9.
func (v Value) Equal(other Value) bool {
	if v.Kind == KindNull || other.Kind == KindNull {
		return v.Kind == KindNull && other.Kind == KindNull
	}
	if f1, ok1 := v.asFloat(); ok1 {
		if f2, ok2 := other.asFloat(); ok2 {
			return f1 == f2
		}
	}
	if v.Kind != other.Kind {
		return false
	}
	switch v.Kind {
	case KindString:
		return v.Str == other.Str
	case KindBool:
		return v.Bool == other.Bool
	case KindTime:
		return v.Time.Equal(other.Time)
	case KindDuration:
		return v.Duration == other.Duration
	case KindSequence:
		if len(v.Seq) != len(other.Seq) {
			return false
		}
		for i := range v.Seq {
			if !v.Seq[i].Equal(other.Seq[i]) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

func (v Value) asFloat() (float64, bool) {
	switch v.Kind {
	case KindInt:
		return float64(v.Int), true
	case KindFloat:
		return v.Float, true
	default:
		return 0, false
	}
}

// Compare returns -1, 0, 1 for less-than/equal/greater-than, following the
// decimal-then-timestamp-then-string ordinal promotion chain from spec.md
// §4.3. ok is false when no ordering applies (e.g. bool vs string).
func (v Value) Compare(other Value) (result int, ok bool) {
	if f1, ok1 := v.asFloat(); ok1 {
		if f2, ok2 := other.asFloat(); ok2 {
			return compareFloat(f1, f2), true
		}
	}
	if v.Kind == KindTime && other.Kind == KindTime {
		switch {
		case v.Time.Before(other.Time):
			return -1, true
		case v.Time.After(other.Time):
			return 1, true
		default:
			return 0, true
		}
	}
	if v.Kind == KindDuration && other.Kind == KindDuration {
		switch {
		case v.Duration < other.Duration:
			return -1, true
		case v.Duration > other.Duration:
			return 1, true
		default:
			return 0, true
		}
	}
	if v.Kind == KindString && other.Kind == KindString {
		switch {
		case v.Str < other.Str:
			return -1, true
		case v.Str > other.Str:
			return 1, true
		default:
			return 0, true
		}
	}
	return 0, false
}

func compareFloat(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// String renders the value for logging and LogMessage templating.
func (v Value) String() string {
	switch v.Kind {
	case KindNull:
		return ""
	case KindString:
		return v.Str
	case KindInt:
		return fmt.Sprintf("%d", v.Int)
	case KindFloat:
		return fmt.Sprintf("%g", v.Float)
	case KindBool:
		return fmt.Sprintf("%t", v.Bool)
	case KindTime:
		return v.Time.Format(time.RFC3339Nano)
	case KindDuration:
		return v.Duration.String()
	case KindSequence:
		parts := make([]string, len(v.Seq))
		for i, item := range v.Seq {
			parts[i] = item.String()
		}
		return fmt.Sprintf("%v", parts)
	default:
		return ""
	}
}

// IsEmpty reports whether the value is null or an empty string/sequence,
// used by the is-null-or-empty rule condition.
func (v Value) IsEmpty() bool {
	switch v.Kind {
	case KindNull:
		return true
	case KindString:
		return v.Str == ""
	case KindSequence:
		return len(v.Seq) == 0
	default:
		return false
	}
}
