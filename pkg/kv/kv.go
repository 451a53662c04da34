// Package kv defines the key-value backend contract the document store is
// built on, plus an in-process implementation used for tests and for running
// without Redis.
package kv

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNil is returned by Get when the key does not exist.
	ErrNil = errors.New("kv: nil")

	// ErrWrongType is returned when a key holds a value of another kind.
	ErrWrongType = errors.New("kv: operation against a key holding the wrong kind of value")
)

// Backend is the minimal surface the document store needs: string values,
// field maps, expiry and set primitives.
type Backend interface {
	// Get returns the string stored at key, or ErrNil.
	Get(ctx context.Context, key string) (string, error)

	// Set stores value at key, replacing any previous value and expiry.
	Set(ctx context.Context, key, value string) error

	// HGetAll returns all fields of the hash at key; empty when absent.
	HGetAll(ctx context.Context, key string) (map[string]string, error)

	// HSet writes the given fields into the hash at key.
	HSet(ctx context.Context, key string, fields map[string]string) error

	// Del removes the keys. Missing keys are ignored.
	Del(ctx context.Context, keys ...string) error

	// Expire sets a time-to-live on key.
	Expire(ctx context.Context, key string, ttl time.Duration) error

	// SAdd adds members to the set at key.
	SAdd(ctx context.Context, key string, members ...string) error

	// SRem removes members from the set at key.
	SRem(ctx context.Context, key string, members ...string) error

	// SMembers lists the members of the set at key.
	SMembers(ctx context.Context, key string) ([]string, error)

	// SInter returns the intersection of the sets at keys.
	SInter(ctx context.Context, keys ...string) ([]string, error)

	// Keys lists the keys matching a glob-style pattern.
	Keys(ctx context.Context, pattern string) ([]string, error)

	// Close releases the backend connection.
	Close() error
}
