package docstore

import (
	"github.com/Zereker/docstore/pkg/kv"
)

// Repository hands out collections that share one backend, one set of
// default options and one per-key write lock table.
type Repository struct {
	backend   kv.Backend
	defaults  Options
	overrides map[string]Options
	locks     *keyLocks
	notifier  *Notifier
}

// RepositoryOption customises a Repository.
type RepositoryOption func(*Repository)

// WithCollectionOptions replaces the defaults for the collection called name.
func WithCollectionOptions(name string, opts Options) RepositoryOption {
	return func(r *Repository) {
		r.overrides[name] = opts
	}
}

// WithChangeNotifier attaches n to every collection handed out.
func WithChangeNotifier(n *Notifier) RepositoryOption {
	return func(r *Repository) {
		r.notifier = n
	}
}

// NewRepository creates a repository over backend.
func NewRepository(backend kv.Backend, defaults Options, opts ...RepositoryOption) *Repository {
	r := &Repository{
		backend:   backend,
		defaults:  defaults,
		overrides: make(map[string]Options),
		locks:     newKeyLocks(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Options returns the options a collection called name is built with.
func (r *Repository) Options(name string) Options {
	if opts, ok := r.overrides[name]; ok {
		return opts
	}
	return r.defaults
}

// Collection returns a handle on the collection called name. Handles hold
// no state beyond their configuration, so a fresh one is built per call.
func (r *Repository) Collection(name string) (*Collection, error) {
	return NewCollection(r.backend, name, r.Options(name),
		withLocks(r.locks),
		WithNotifier(r.notifier),
	)
}

// Close closes the shared backend.
func (r *Repository) Close() error {
	return r.backend.Close()
}
