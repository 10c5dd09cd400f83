// Package record implements the field-indexed Record value that flows
// between pipeline stages and transformations.
package record

import "time"

// Record is an ordered mapping from field name to Value. Field order is
// preserved for deterministic iteration (serialization, logging) even
// though lookups are by name.
type Record struct {
	order  []string
	fields map[string]Value
}

// New creates an empty record.
func New() *Record {
	return &Record{fields: make(map[string]Value)}
}

// FromMap builds a record from a plain map, useful for tests and for
// adapting connector payloads. Iteration order of the input map is not
// preserved (maps have none); callers needing a specific field order
// should build the record with repeated Set calls instead.
func FromMap(values map[string]Value) *Record {
	r := New()
	for k, v := range values {
		r.Set(k, v)
	}
	return r
}

// Fields returns the field names in insertion order.
func (r *Record) Fields() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// Len returns the number of fields.
func (r *Record) Len() int { return len(r.order) }

// Get returns the value for a field and whether it was present. A missing
// field is distinct from a field explicitly set to Null.
func (r *Record) Get(name string) (Value, bool) {
	v, ok := r.fields[name]
	return v, ok
}

// GetOrNull returns the field value, or Null if the field is absent —
// the lookup semantics spec.md §4.3 assigns to rule condition evaluation.
func (r *Record) GetOrNull(name string) Value {
	if v, ok := r.fields[name]; ok {
		return v
	}
	return Null
}

// GetString returns the field as a string, accepting only KindString.
func (r *Record) GetString(name string) (string, bool) {
	v, ok := r.fields[name]
	if !ok || v.Kind != KindString {
		return "", false
	}
	return v.Str, true
}

// GetInt returns the field as an integer, accepting only KindInt.
func (r *Record) GetInt(name string) (int64, bool) {
	v, ok := r.fields[name]
	if !ok || v.Kind != KindInt {
		return 0, false
	}
	return v.Int, true
}

// GetFloat returns the field as a float, promoting KindInt.
func (r *Record) GetFloat(name string) (float64, bool) {
	v, ok := r.fields[name]
	if !ok {
		return 0, false
	}
	if f, ok := v.asFloat(); ok {
		return f, true
	}
	return 0, false
}

// GetBool returns the field as a bool, accepting only KindBool.
func (r *Record) GetBool(name string) (bool, bool) {
	v, ok := r.fields[name]
	if !ok || v.Kind != KindBool {
		return false, false
	}
	return v.Bool, true
}

// GetTime returns the field as a timestamp, accepting only KindTime.
func (r *Record) GetTime(name string) (time.Time, bool) {
	v, ok := r.fields[name]
	if !ok || v.Kind != KindTime {
		return time.Time{}, false
	}
	return v.Time, true
}

// GetDuration returns the field as a duration, accepting only KindDuration.
func (r *Record) GetDuration(name string) (time.Duration, bool) {
	v, ok := r.fields[name]
	if !ok || v.Kind != KindDuration {
		return 0, false
	}
	return v.Duration, true
}

// Set assigns a field value, appending to the field order on first write.
// Set always stores a clone of v so the record never shares mutable state
// with its caller — the invariant spec.md §3 requires.
func (r *Record) Set(name string, v Value) {
	if _, exists := r.fields[name]; !exists {
		r.order = append(r.order, name)
	}
	r.fields[name] = v.Clone()
}

// Remove deletes a field, returning whether it was present.
func (r *Record) Remove(name string) bool {
	if _, ok := r.fields[name]; !ok {
		return false
	}
	delete(r.fields, name)
	for i, f := range r.order {
		if f == name {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return true
}

// Clone deep-copies the record so that modifying the clone never affects
// the original — the round-trip law spec.md §8 requires.
func (r *Record) Clone() *Record {
	out := &Record{
		order:  make([]string, len(r.order)),
		fields: make(map[string]Value, len(r.fields)),
	}
	copy(out.order, r.order)
	for k, v := range r.fields {
		out.fields[k] = v.Clone()
	}
	return out
}

// Equal reports whether two records hold the same fields and values,
// irrespective of field order.
func (r *Record) Equal(other *Record) bool {
	if other == nil {
		return false
	}
	if len(r.fields) != len(other.fields) {
		return false
	}
	for k, v := range r.fields {
		ov, ok := other.fields[k]
		if !ok || !v.Equal(ov) {
			return false
		}
	}
	return true
}

// ToMap returns a shallow snapshot of the record's fields, primarily for
// JSON serialization on the HTTP control surface.
func (r *Record) ToMap() map[string]Value {
	out := make(map[string]Value, len(r.fields))
	for k, v := range r.fields {
		out[k] = v
	}
	return out
}
