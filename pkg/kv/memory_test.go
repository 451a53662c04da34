package kv

import (
	"context"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryBackend_Strings(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryBackend()

	_, err := m.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrNil)

	require.NoError(t, m.Set(ctx, "k", "v1"))
	require.NoError(t, m.Set(ctx, "k", "v2"))

	v, err := m.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "v2", v)

	require.NoError(t, m.Del(ctx, "k", "never-existed"))
	_, err = m.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrNil)
}

func TestMemoryBackend_Hashes(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryBackend()

	fields, err := m.HGetAll(ctx, "h")
	require.NoError(t, err)
	assert.Empty(t, fields)

	require.NoError(t, m.HSet(ctx, "h", map[string]string{"a": "1", "b": "2"}))
	require.NoError(t, m.HSet(ctx, "h", map[string]string{"b": "3"}))

	fields, err = m.HGetAll(ctx, "h")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"a": "1", "b": "3"}, fields)

	// returned map is a copy
	fields["a"] = "changed"
	again, _ := m.HGetAll(ctx, "h")
	assert.Equal(t, "1", again["a"])
}

func TestMemoryBackend_Sets(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryBackend()

	require.NoError(t, m.SAdd(ctx, "s1", "a", "b", "c"))
	require.NoError(t, m.SAdd(ctx, "s1", "a"))
	require.NoError(t, m.SAdd(ctx, "s2", "b", "c", "d"))

	members, err := m.SMembers(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, members)

	inter, err := m.SInter(ctx, "s1", "s2")
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "c"}, inter)

	inter, err = m.SInter(ctx, "s1", "missing")
	require.NoError(t, err)
	assert.Empty(t, inter)

	require.NoError(t, m.SRem(ctx, "s1", "a", "b", "c"))
	keys, err := m.Keys(ctx, "s*")
	require.NoError(t, err)
	assert.Equal(t, []string{"s2"}, keys, "empty set should disappear")
}

func TestMemoryBackend_WrongType(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryBackend()

	require.NoError(t, m.SAdd(ctx, "s", "a"))

	_, err := m.Get(ctx, "s")
	assert.ErrorIs(t, err, ErrWrongType)

	_, err = m.HGetAll(ctx, "s")
	assert.ErrorIs(t, err, ErrWrongType)

	require.NoError(t, m.Set(ctx, "str", "x"))
	assert.ErrorIs(t, m.SAdd(ctx, "str", "a"), ErrWrongType)
}

func TestMemoryBackend_Keys(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryBackend()

	require.NoError(t, m.Set(ctx, "users:1", "{}"))
	require.NoError(t, m.Set(ctx, "users:2", "{}"))
	require.NoError(t, m.SAdd(ctx, "users:index:role:admin", "users:1"))
	require.NoError(t, m.Set(ctx, "orders:1", "{}"))

	keys, err := m.Keys(ctx, "users:*")
	require.NoError(t, err)
	assert.Equal(t, []string{"users:1", "users:2", "users:index:role:admin"}, keys)

	keys, err = m.Keys(ctx, "users:index:role:*")
	require.NoError(t, err)
	assert.Equal(t, []string{"users:index:role:admin"}, keys)

	keys, err = m.Keys(ctx, "users:?")
	require.NoError(t, err)
	assert.Equal(t, []string{"users:1", "users:2"}, keys)
}

func TestMemoryBackend_Expire(t *testing.T) {
	ctx := context.Background()
	clock := clockwork.NewFakeClock()
	m := NewMemoryBackend(WithClock(clock))

	require.NoError(t, m.Set(ctx, "k", "v"))
	require.NoError(t, m.Expire(ctx, "k", time.Minute))

	clock.Advance(30 * time.Second)
	v, err := m.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "v", v)

	clock.Advance(31 * time.Second)
	_, err = m.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrNil)

	keys, err := m.Keys(ctx, "*")
	require.NoError(t, err)
	assert.Empty(t, keys)

	t.Run("set clears expiry", func(t *testing.T) {
		require.NoError(t, m.Set(ctx, "k2", "v"))
		require.NoError(t, m.Expire(ctx, "k2", time.Second))
		require.NoError(t, m.Set(ctx, "k2", "v2"))

		clock.Advance(time.Hour)
		v, err := m.Get(ctx, "k2")
		require.NoError(t, err)
		assert.Equal(t, "v2", v)
	})
}
