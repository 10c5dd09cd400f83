// Package rules implements the declarative rule engine: AND-combined
// conditions, ordered actions, and priority-ordered evaluation against a
// record.
package rules

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/dataforge/etlengine/pkg/record"
)

// Operator is one of the condition comparison operators spec.md §4.3
// defines.
type Operator string

const (
	OpEquals             Operator = "equals"
	OpNotEquals          Operator = "not_equals"
	OpGreaterThan        Operator = "greater_than"
	OpGreaterThanOrEqual Operator = "greater_than_or_equal"
	OpLessThan           Operator = "less_than"
	OpLessThanOrEqual    Operator = "less_than_or_equal"
	OpContains           Operator = "contains"
	OpStartsWith         Operator = "starts_with"
	OpEndsWith           Operator = "ends_with"
	OpRegexMatch         Operator = "regex_match"
	OpIsNullOrEmpty      Operator = "is_null_or_empty"
	OpIsNotNullOrEmpty   Operator = "is_not_null_or_empty"
	OpIn                 Operator = "in"
	OpNotIn              Operator = "not_in"
)

// Condition tests one field of a record against a comparison value. All
// conditions on a rule are AND-combined.
type Condition struct {
	Field    string
	Operator Operator
	Value    record.Value
}

// Evaluate reports whether the condition holds for r. A missing field
// yields null, matching only equals-null, is-null-or-empty, or not-in of
// a non-null list, per spec.md §4.3.
func (c Condition) Evaluate(r *record.Record) bool {
	actual := r.GetOrNull(c.Field)

	if actual.IsNull() {
		switch c.Operator {
		case OpEquals:
			return c.Value.IsNull()
		case OpIsNullOrEmpty:
			return true
		case OpNotIn:
			return !c.Value.IsNull()
		default:
			return false
		}
	}

	switch c.Operator {
	case OpEquals:
		return actual.Equal(c.Value)
	case OpNotEquals:
		return !actual.Equal(c.Value)
	case OpGreaterThan:
		result, ok := actual.Compare(c.Value)
		return ok && result > 0
	case OpGreaterThanOrEqual:
		result, ok := actual.Compare(c.Value)
		return ok && result >= 0
	case OpLessThan:
		result, ok := actual.Compare(c.Value)
		return ok && result < 0
	case OpLessThanOrEqual:
		result, ok := actual.Compare(c.Value)
		return ok && result <= 0
	case OpContains:
		return strings.Contains(actual.String(), c.Value.String())
	case OpStartsWith:
		return strings.HasPrefix(actual.String(), c.Value.String())
	case OpEndsWith:
		return strings.HasSuffix(actual.String(), c.Value.String())
	case OpRegexMatch:
		matched, err := regexp.MatchString(c.Value.String(), actual.String())
		return err == nil && matched
	case OpIsNullOrEmpty:
		return actual.IsEmpty()
	case OpIsNotNullOrEmpty:
		return !actual.IsEmpty()
	case OpIn:
		return containsValue(candidateList(c.Value), actual)
	case OpNotIn:
		return !containsValue(candidateList(c.Value), actual)
	default:
		return false
	}
}

// candidateList normalizes the comparison value for in/not_in into a
// slice of values, accepting either a sequence or a comma-separated
// string per spec.md §4.3.
func candidateList(v record.Value) []record.Value {
	if v.Kind == record.KindSequence {
		return v.Seq
	}
	if v.Kind == record.KindString {
		parts := strings.Split(v.Str, ",")
		out := make([]record.Value, len(parts))
		for i, p := range parts {
			out[i] = record.NewString(strings.TrimSpace(p))
		}
		return out
	}
	return []record.Value{v}
}

func containsValue(candidates []record.Value, actual record.Value) bool {
	for _, c := range candidates {
		if actual.Equal(c) {
			return true
		}
		// allow numeric-as-string comparisons in comma lists
		if c.Kind == record.KindString && actual.Kind != record.KindString {
			if n, err := strconv.ParseFloat(c.Str, 64); err == nil {
				if f, ok := actual.Compare(record.NewFloat(n)); ok && f == 0 {
					return true
				}
			}
		}
	}
	return false
}
