package kv

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/tidwall/match"
)

// 确保 MemoryBackend 实现 Backend 接口
var _ Backend = (*MemoryBackend)(nil)

type entryKind int

const (
	kindString entryKind = iota
	kindHash
	kindSet
)

type entry struct {
	kind     entryKind
	str      string
	hash     map[string]string
	set      map[string]struct{}
	expireAt time.Time
}

func (e *entry) expired(now time.Time) bool {
	return !e.expireAt.IsZero() && !now.Before(e.expireAt)
}

// MemoryBackend 内存 KV 存储（用于测试和无 Redis 的场景）
// Safe for concurrent use. Expired keys are dropped lazily on access.
type MemoryBackend struct {
	mu    sync.Mutex
	clock clockwork.Clock
	data  map[string]*entry
}

// MemoryOption configures a MemoryBackend.
type MemoryOption func(*MemoryBackend)

// WithClock sets the clock used for expiry.
func WithClock(clock clockwork.Clock) MemoryOption {
	return func(m *MemoryBackend) {
		m.clock = clock
	}
}

// NewMemoryBackend creates an empty in-memory backend.
func NewMemoryBackend(opts ...MemoryOption) *MemoryBackend {
	m := &MemoryBackend{
		clock: clockwork.NewRealClock(),
		data:  make(map[string]*entry),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// lookup returns the live entry at key. Caller holds mu.
func (m *MemoryBackend) lookup(key string) *entry {
	e, ok := m.data[key]
	if !ok {
		return nil
	}
	if e.expired(m.clock.Now()) {
		delete(m.data, key)
		return nil
	}
	return e
}

func (m *MemoryBackend) lookupKind(key string, kind entryKind) (*entry, error) {
	e := m.lookup(key)
	if e == nil {
		return nil, nil
	}
	if e.kind != kind {
		return nil, ErrWrongType
	}
	return e, nil
}

// dropIfEmpty mirrors Redis: empty hashes and sets cease to exist.
func (m *MemoryBackend) dropIfEmpty(key string, e *entry) {
	if (e.kind == kindSet && len(e.set) == 0) || (e.kind == kindHash && len(e.hash) == 0) {
		delete(m.data, key)
	}
}

func (m *MemoryBackend) Get(_ context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, err := m.lookupKind(key, kindString)
	if err != nil {
		return "", err
	}
	if e == nil {
		return "", ErrNil
	}
	return e.str, nil
}

func (m *MemoryBackend) Set(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.data[key] = &entry{kind: kindString, str: value}
	return nil
}

func (m *MemoryBackend) HGetAll(_ context.Context, key string) (map[string]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, err := m.lookupKind(key, kindHash)
	if err != nil {
		return nil, err
	}
	out := make(map[string]string)
	if e == nil {
		return out, nil
	}
	for k, v := range e.hash {
		out[k] = v
	}
	return out, nil
}

func (m *MemoryBackend) HSet(_ context.Context, key string, fields map[string]string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, err := m.lookupKind(key, kindHash)
	if err != nil {
		return err
	}
	if e == nil {
		e = &entry{kind: kindHash, hash: make(map[string]string)}
		m.data[key] = e
	}
	for k, v := range fields {
		e.hash[k] = v
	}
	m.dropIfEmpty(key, e)
	return nil
}

func (m *MemoryBackend) Del(_ context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, key := range keys {
		delete(m.data, key)
	}
	return nil
}

func (m *MemoryBackend) Expire(_ context.Context, key string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	e := m.lookup(key)
	if e == nil {
		return nil
	}
	if ttl <= 0 {
		delete(m.data, key)
		return nil
	}
	e.expireAt = m.clock.Now().Add(ttl)
	return nil
}

func (m *MemoryBackend) SAdd(_ context.Context, key string, members ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, err := m.lookupKind(key, kindSet)
	if err != nil {
		return err
	}
	if e == nil {
		e = &entry{kind: kindSet, set: make(map[string]struct{})}
		m.data[key] = e
	}
	for _, member := range members {
		e.set[member] = struct{}{}
	}
	m.dropIfEmpty(key, e)
	return nil
}

func (m *MemoryBackend) SRem(_ context.Context, key string, members ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, err := m.lookupKind(key, kindSet)
	if err != nil || e == nil {
		return err
	}
	for _, member := range members {
		delete(e.set, member)
	}
	m.dropIfEmpty(key, e)
	return nil
}

func (m *MemoryBackend) SMembers(_ context.Context, key string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, err := m.lookupKind(key, kindSet)
	if err != nil {
		return nil, err
	}
	if e == nil {
		return []string{}, nil
	}
	return sortedMembers(e.set), nil
}

func (m *MemoryBackend) SInter(_ context.Context, keys ...string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(keys) == 0 {
		return []string{}, nil
	}

	sets := make([]map[string]struct{}, 0, len(keys))
	for _, key := range keys {
		e, err := m.lookupKind(key, kindSet)
		if err != nil {
			return nil, err
		}
		if e == nil {
			return []string{}, nil
		}
		sets = append(sets, e.set)
	}

	out := make(map[string]struct{})
	for member := range sets[0] {
		inAll := true
		for _, s := range sets[1:] {
			if _, ok := s[member]; !ok {
				inAll = false
				break
			}
		}
		if inAll {
			out[member] = struct{}{}
		}
	}
	return sortedMembers(out), nil
}

func (m *MemoryBackend) Keys(_ context.Context, pattern string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.clock.Now()
	keys := make([]string, 0)
	for key, e := range m.data {
		if e.expired(now) {
			delete(m.data, key)
			continue
		}
		if match.Match(key, pattern) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

func (m *MemoryBackend) Close() error {
	return nil
}

func sortedMembers(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for member := range set {
		out = append(out, member)
	}
	sort.Strings(out)
	return out
}
