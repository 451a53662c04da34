package docstore

import (
	"context"
	"sort"
	"testing"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/Zereker/docstore/pkg/kv"
	"github.com/Zereker/docstore/pkg/redis"
)

type backendFactory struct {
	name string
	new  func(t *testing.T) kv.Backend
}

var backends = []backendFactory{
	{
		name: "memory",
		new: func(t *testing.T) kv.Backend {
			return kv.NewMemoryBackend()
		},
	},
	{
		name: "redis",
		new: func(t *testing.T) kv.Backend {
			mr := miniredis.RunT(t)
			b := redis.NewBackend(goredis.NewClient(&goredis.Options{Addr: mr.Addr()}), 10)
			t.Cleanup(func() { _ = b.Close() })
			return b
		},
	},
}

// forEachBackend runs fn once per backend implementation.
func forEachBackend(t *testing.T, fn func(t *testing.T, backend kv.Backend)) {
	for _, bf := range backends {
		t.Run(bf.name, func(t *testing.T) {
			fn(t, bf.new(t))
		})
	}
}

func newUsers(t *testing.T, backend kv.Backend, mode Mode) *Collection {
	t.Helper()
	c, err := NewCollection(backend, "users", Options{Mode: mode, Indexes: []string{"role", "age"}})
	require.NoError(t, err)
	return c
}

func mustParse(t *testing.T, raw map[string]any) Query {
	t.Helper()
	q, err := ParseQuery(raw)
	require.NoError(t, err)
	return q
}

func ids(records []Record) []string {
	out := make([]string, 0, len(records))
	for _, r := range records {
		id, _ := r.ID()
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

func members(t *testing.T, backend kv.Backend, key string) []string {
	t.Helper()
	m, err := backend.SMembers(context.Background(), key)
	require.NoError(t, err)
	sort.Strings(m)
	return m
}
