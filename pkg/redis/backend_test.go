package redis

import (
	"context"
	"sort"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Zereker/docstore/pkg/kv"
)

func newTestBackend(t *testing.T) (*Backend, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	b := NewBackend(client, 2)
	t.Cleanup(func() { _ = b.Close() })
	return b, mr
}

func TestBackend_StringsAndHashes(t *testing.T) {
	ctx := context.Background()
	b, _ := newTestBackend(t)

	_, err := b.Get(ctx, "missing")
	assert.ErrorIs(t, err, kv.ErrNil)

	require.NoError(t, b.Set(ctx, "users:1", `{"id":"1"}`))
	v, err := b.Get(ctx, "users:1")
	require.NoError(t, err)
	assert.Equal(t, `{"id":"1"}`, v)

	require.NoError(t, b.HSet(ctx, "users:2", map[string]string{"id": "2", "role": "admin"}))
	fields, err := b.HGetAll(ctx, "users:2")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"id": "2", "role": "admin"}, fields)

	fields, err = b.HGetAll(ctx, "users:3")
	require.NoError(t, err)
	assert.Empty(t, fields)

	require.NoError(t, b.Del(ctx, "users:1", "users:2"))
	_, err = b.Get(ctx, "users:1")
	assert.ErrorIs(t, err, kv.ErrNil)
}

func TestBackend_Sets(t *testing.T) {
	ctx := context.Background()
	b, _ := newTestBackend(t)

	require.NoError(t, b.SAdd(ctx, "a", "1", "2", "3"))
	require.NoError(t, b.SAdd(ctx, "b", "2", "3", "4"))
	require.NoError(t, b.SRem(ctx, "a", "3"))

	members, err := b.SMembers(ctx, "a")
	require.NoError(t, err)
	sort.Strings(members)
	assert.Equal(t, []string{"1", "2"}, members)

	inter, err := b.SInter(ctx, "a", "b")
	require.NoError(t, err)
	assert.Equal(t, []string{"2"}, inter)
}

func TestBackend_KeysScansWholeKeyspace(t *testing.T) {
	ctx := context.Background()
	b, _ := newTestBackend(t)

	for _, k := range []string{"users:1", "users:2", "users:3", "users:4", "users:5", "orders:1"} {
		require.NoError(t, b.Set(ctx, k, "{}"))
	}

	keys, err := b.Keys(ctx, "users:*")
	require.NoError(t, err)
	sort.Strings(keys)
	assert.Equal(t, []string{"users:1", "users:2", "users:3", "users:4", "users:5"}, keys)
}

func TestBackend_Expire(t *testing.T) {
	ctx := context.Background()
	b, mr := newTestBackend(t)

	require.NoError(t, b.Set(ctx, "k", "v"))
	require.NoError(t, b.Expire(ctx, "k", time.Minute))
	assert.Equal(t, time.Minute, mr.TTL("k"))

	mr.FastForward(2 * time.Minute)
	_, err := b.Get(ctx, "k")
	assert.ErrorIs(t, err, kv.ErrNil)
}

func TestBackend_WrongTypePropagates(t *testing.T) {
	ctx := context.Background()
	b, _ := newTestBackend(t)

	require.NoError(t, b.SAdd(ctx, "s", "x"))
	_, err := b.Get(ctx, "s")
	require.Error(t, err)
	assert.ErrorIs(t, err, kv.ErrWrongType)
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{name: "disabled", cfg: Config{}, wantErr: false},
		{name: "enabled without addr", cfg: Config{Enabled: true}, wantErr: true},
		{name: "negative db", cfg: Config{Enabled: true, Addr: "localhost:6379", DB: -1}, wantErr: true},
		{name: "valid", cfg: Config{Enabled: true, Addr: "localhost:6379"}, wantErr: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestInitAndClose(t *testing.T) {
	mr := miniredis.RunT(t)

	require.NoError(t, Init(Config{}))
	assert.Nil(t, Client())

	require.NoError(t, Init(Config{Enabled: true, Addr: mr.Addr()}))
	require.NotNil(t, Client())
	require.NoError(t, Close())
	assert.Nil(t, Client())
}
