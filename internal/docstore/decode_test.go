package docstore

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Zereker/docstore/pkg/kv"
)

type user struct {
	ID      string            `json:"id"`
	Role    string            `json:"role"`
	Age     int               `json:"age"`
	Active  bool              `json:"active"`
	Tags    []string          `json:"tags"`
	Profile map[string]string `json:"profile"`
	Joined  time.Time         `json:"joined"`
}

func TestDecode(t *testing.T) {
	joined := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	t.Run("document record", func(t *testing.T) {
		var u user
		err := Decode(Record{
			"id":      "1",
			"role":    "admin",
			"age":     float64(42),
			"active":  true,
			"tags":    []any{"a", "b"},
			"profile": map[string]any{"city": "Paris"},
			"joined":  joined.Format(time.RFC3339Nano),
		}, &u)
		require.NoError(t, err)
		assert.True(t, joined.Equal(u.Joined))

		u.Joined = time.Time{}
		assert.Equal(t, user{
			ID: "1", Role: "admin", Age: 42, Active: true,
			Tags: []string{"a", "b"}, Profile: map[string]string{"city": "Paris"},
		}, u)
	})

	t.Run("hash record read back", func(t *testing.T) {
		ctx := context.Background()
		c, err := NewCollection(kv.NewMemoryBackend(), "users", Options{Mode: ModeHash})
		require.NoError(t, err)

		_, err = c.Set(ctx, Record{
			"id":      1,
			"role":    "admin",
			"age":     42,
			"active":  true,
			"tags":    []any{"a", "b"},
			"profile": map[string]any{"city": "Paris"},
			"joined":  joined.Format(time.RFC3339Nano),
		})
		require.NoError(t, err)

		rec, err := c.FindOne(ctx, Where("id", Eq("1")))
		require.NoError(t, err)

		var u user
		require.NoError(t, Decode(rec, &u))
		assert.Equal(t, 42, u.Age)
		assert.True(t, u.Active)
		assert.Equal(t, []string{"a", "b"}, u.Tags)
		assert.Equal(t, "Paris", u.Profile["city"])
		assert.True(t, joined.Equal(u.Joined))
	})

	t.Run("type mismatch", func(t *testing.T) {
		var u user
		assert.Error(t, Decode(Record{"age": "forty"}, &u))
	})
}
