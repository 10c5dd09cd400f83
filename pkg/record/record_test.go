package record

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecord_SetThenGet(t *testing.T) {
	r := New()
	r.Set("id", NewInt(1))
	r.Set("name", NewString("alice"))
	r.Set("active", NewBool(true))

	id, ok := r.GetInt("id")
	require.True(t, ok)
	assert.Equal(t, int64(1), id)

	name, ok := r.GetString("name")
	require.True(t, ok)
	assert.Equal(t, "alice", name)

	active, ok := r.GetBool("active")
	require.True(t, ok)
	assert.True(t, active)
}

func TestRecord_GetMissingField(t *testing.T) {
	r := New()
	_, ok := r.GetString("missing")
	assert.False(t, ok)
	assert.True(t, r.GetOrNull("missing").IsNull())
}

func TestRecord_Clone_NoSharedMutableState(t *testing.T) {
	r := New()
	r.Set("tags", NewSequence([]Value{NewString("a"), NewString("b")}))

	clone := r.Clone()
	require.True(t, r.Equal(clone))

	// Mutate the clone's sequence field by replacing it; the original
	// must remain untouched.
	clone.Set("tags", NewSequence([]Value{NewString("z")}))

	orig, _ := r.Get("tags")
	cloned, _ := clone.Get("tags")
	assert.NotEqual(t, orig.Seq[0].Str, cloned.Seq[0].Str)
	assert.Equal(t, "a", orig.Seq[0].Str)
}

func TestRecord_Remove(t *testing.T) {
	r := New()
	r.Set("a", NewInt(1))
	r.Set("b", NewInt(2))

	assert.True(t, r.Remove("a"))
	assert.False(t, r.Remove("a"))

	_, ok := r.Get("a")
	assert.False(t, ok)
	assert.Equal(t, []string{"b"}, r.Fields())
}

func TestValue_Equal_NumericPromotion(t *testing.T) {
	assert.True(t, NewInt(5).Equal(NewFloat(5.0)))
	assert.False(t, NewInt(5).Equal(NewFloat(5.1)))
	assert.True(t, Null.Equal(Value{}))
}

func TestValue_Compare_Promotion(t *testing.T) {
	result, ok := NewInt(1).Compare(NewFloat(2.0))
	require.True(t, ok)
	assert.Equal(t, -1, result)

	now := time.Now()
	later := now.Add(time.Hour)
	result, ok = NewTime(now).Compare(NewTime(later))
	require.True(t, ok)
	assert.Equal(t, -1, result)

	_, ok = NewBool(true).Compare(NewString("x"))
	assert.False(t, ok)
}

func TestValue_IsEmpty(t *testing.T) {
	assert.True(t, Null.IsEmpty())
	assert.True(t, NewString("").IsEmpty())
	assert.False(t, NewString("x").IsEmpty())
	assert.True(t, NewSequence(nil).IsEmpty())
}
