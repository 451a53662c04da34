package docstore

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/Zereker/docstore/pkg/kv"
	"github.com/Zereker/docstore/pkg/log"
)

// Options configure a collection. They are fixed once the collection exists.
type Options struct {
	// Mode selects the storage layout. Empty means ModeDocument.
	Mode Mode

	// TTL is the default expiry applied on every write. Zero disables it.
	TTL time.Duration

	// Indexes names the fields mirrored into index sets.
	Indexes []string
}

// Validate checks the options.
func (o Options) Validate() error {
	if o.Mode != "" && !o.Mode.Valid() {
		return errors.Wrapf(ErrValidation, "unknown storage mode %q", o.Mode)
	}
	if o.TTL < 0 {
		return errors.Wrap(ErrValidation, "ttl must not be negative")
	}
	for _, field := range o.Indexes {
		if field == "" {
			return errors.Wrap(ErrValidation, "index field name must not be empty")
		}
	}
	return nil
}

// Collection owns one namespace of records and its secondary indexes.
type Collection struct {
	logger   *slog.Logger
	name     string
	backend  kv.Backend
	storage  Storage
	ttl      time.Duration
	indexes  []string
	indexed  map[string]struct{}
	locks    *keyLocks
	notifier *Notifier
	cmp      comparison
}

// CollectionOption customises a Collection.
type CollectionOption func(*Collection)

// WithNotifier publishes change events through n.
func WithNotifier(n *Notifier) CollectionOption {
	return func(c *Collection) {
		c.notifier = n
	}
}

func withLocks(l *keyLocks) CollectionOption {
	return func(c *Collection) {
		c.locks = l
	}
}

// NewCollection binds a collection named name to backend.
func NewCollection(backend kv.Backend, name string, opts Options, copts ...CollectionOption) (*Collection, error) {
	if name == "" || strings.ContainsAny(name, ":*?[]\\") {
		return nil, errors.Wrapf(ErrValidation, "invalid collection name %q", name)
	}
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	storage, err := NewStorage(opts.Mode, backend)
	if err != nil {
		return nil, err
	}

	c := &Collection{
		logger:  log.Logger("docstore").With("collection", name),
		name:    name,
		backend: backend,
		storage: storage,
		ttl:     opts.TTL,
		indexed: make(map[string]struct{}, len(opts.Indexes)),
		cmp:     exact,
	}
	if storage.Mode() == ModeHash {
		c.cmp = fromString
	}
	for _, field := range opts.Indexes {
		if _, dup := c.indexed[field]; dup {
			continue
		}
		c.indexed[field] = struct{}{}
		c.indexes = append(c.indexes, field)
	}
	sort.Strings(c.indexes)

	for _, opt := range copts {
		opt(c)
	}
	if c.locks == nil {
		c.locks = newKeyLocks()
	}

	return c, nil
}

// Name returns the namespace.
func (c *Collection) Name() string { return c.name }

// Mode returns the storage mode.
func (c *Collection) Mode() Mode { return c.storage.Mode() }

// Indexes returns the indexed field names, sorted.
func (c *Collection) Indexes() []string {
	return append([]string(nil), c.indexes...)
}

// SetOption customises a single Set call.
type SetOption func(*setOptions)

type setOptions struct {
	ttl time.Duration
}

// WithTTL overrides the collection's default expiry for one write.
func WithTTL(ttl time.Duration) SetOption {
	return func(o *setOptions) {
		o.ttl = ttl
	}
}

// Set stores rec under its identifier, replacing any previous record, and
// rewrites its index memberships. The caller keeps ownership of rec; a copy
// is stored and returned.
//
// Records read back carry JSON shapes, not the Go types they were written
// with: in document mode every number is a float64 and nested objects are
// map[string]any; in hash mode every value is a string. Use Decode to get
// typed values back.
func (c *Collection) Set(ctx context.Context, rec Record, opts ...SetOption) (Record, error) {
	id, err := rec.ID()
	if err != nil {
		return nil, err
	}

	so := setOptions{ttl: c.ttl}
	for _, opt := range opts {
		opt(&so)
	}
	if so.ttl < 0 {
		return nil, errors.Wrap(ErrValidation, "ttl must not be negative")
	}

	stored := rec.Clone()
	key := c.recordKey(id)

	unlock := c.locks.lock(key)
	err = c.write(ctx, id, key, stored, so.ttl)
	unlock()
	if err != nil {
		return nil, err
	}

	c.notifier.notify(c.name, OpSet, key, stored)
	return stored.Clone(), nil
}

// write persists rec and its indexes. Caller holds the key lock.
func (c *Collection) write(ctx context.Context, id, key string, rec Record, ttl time.Duration) error {
	if err := c.storage.Save(ctx, key, rec); err != nil {
		return errors.WithMessagef(err, "save %s", key)
	}
	if err := c.reindex(ctx, id, key, rec, ttl); err != nil {
		return err
	}
	if ttl > 0 {
		if err := c.backend.Expire(ctx, key, ttl); err != nil {
			return errors.WithMessagef(err, "expire %s", key)
		}
	}
	return nil
}

// split separates the predicates an index set answers from those left for
// in-memory filtering. Only string equality on an indexed field is served
// by an index.
func (c *Collection) split(q Query) (indexed, residual Query) {
	for _, p := range q {
		if _, ok := c.indexed[p.Field]; ok && p.Cond.Op == OpEq {
			if _, ok := p.Cond.Value.(string); ok {
				indexed = append(indexed, p)
				continue
			}
		}
		residual = append(residual, p)
	}
	return indexed, residual
}

// plan turns q into index set keys plus the residual predicates.
func (c *Collection) plan(q Query) (indexKeys []string, residual Query) {
	indexed, residual := c.split(q)
	for _, p := range indexed {
		indexKeys = append(indexKeys, c.indexKey(p.Field, p.Cond.Value.(string)))
	}
	return indexKeys, residual
}

// stillMatches re-evaluates q on a record re-read under its lock by the
// rules Find used: an indexed literal matches when the field's key form
// equals it, everything else goes through the collection's comparison.
func (c *Collection) stillMatches(q Query, rec Record) bool {
	indexed, residual := c.split(q)
	for _, p := range indexed {
		s, ok := formatValue(rec[p.Field])
		if !ok || s != p.Cond.Value.(string) {
			return false
		}
	}
	return residual.match(c.cmp, rec)
}

func (c *Collection) candidates(ctx context.Context, indexKeys []string) ([]string, error) {
	switch len(indexKeys) {
	case 0:
		keys, err := c.backend.Keys(ctx, escapeGlob(c.name)+":*")
		if err != nil {
			return nil, errors.WithMessagef(err, "scan namespace %s", c.name)
		}
		out := keys[:0]
		for _, key := range keys {
			if c.isRecordKey(key) {
				out = append(out, key)
			}
		}
		return out, nil
	case 1:
		keys, err := c.backend.SMembers(ctx, indexKeys[0])
		return keys, errors.WithMessagef(err, "read index %s", indexKeys[0])
	default:
		keys, err := c.backend.SInter(ctx, indexKeys...)
		return keys, errors.WithMessagef(err, "intersect indexes %v", indexKeys)
	}
}

// Find returns every record matching q, in backend order. Literals compare
// exactly in document mode; hash collections also let a numeric or boolean
// literal match its string form. See Set for the shape of returned values.
func (c *Collection) Find(ctx context.Context, q Query) ([]Record, error) {
	indexKeys, residual := c.plan(q)

	c.logger.Debug("find",
		"indexed", len(indexKeys),
		"filtered", len(residual),
	)

	keys, err := c.candidates(ctx, indexKeys)
	if err != nil {
		return nil, err
	}

	results := make([]Record, 0, len(keys))
	for _, key := range keys {
		rec, err := c.storage.Load(ctx, key)
		if errors.Is(err, ErrCorrupt) {
			c.logger.Warn("skipping unreadable record", "key", key, "error", err)
			continue
		}
		if err != nil {
			return nil, errors.WithMessagef(err, "load %s", key)
		}
		if rec == nil {
			c.pruneDangling(ctx, key, indexKeys)
			continue
		}
		if residual.match(c.cmp, rec) {
			results = append(results, rec)
		}
	}

	return results, nil
}

// pruneDangling drops a vanished (usually expired) record from the index
// sets that still list it.
func (c *Collection) pruneDangling(ctx context.Context, key string, indexKeys []string) {
	for _, indexKey := range indexKeys {
		if err := c.backend.SRem(ctx, indexKey, key); err != nil {
			c.logger.Warn("failed to prune dangling index entry", "key", key, "index", indexKey, "error", err)
		}
	}
}

// FindOne returns the first match of q, or nil when nothing matches.
func (c *Collection) FindOne(ctx context.Context, q Query) (Record, error) {
	results, err := c.Find(ctx, q)
	if err != nil || len(results) == 0 {
		return nil, err
	}
	return results[0], nil
}

// Count returns the number of records matching q.
func (c *Collection) Count(ctx context.Context, q Query) (int, error) {
	results, err := c.Find(ctx, q)
	return len(results), err
}

// Update merges patch into every record matching q and returns how many
// records were rewritten. Each match is handled on its own: failures are
// collected in a *BatchError and the remaining matches are still processed.
// The patch may not touch the identifier fields.
func (c *Collection) Update(ctx context.Context, q Query, patch Record) (int, error) {
	for _, field := range []string{FieldID, FieldUserID} {
		if _, ok := patch[field]; ok {
			return 0, errors.Wrapf(ErrValidation, "update cannot change %q", field)
		}
	}

	matches, err := c.Find(ctx, q)
	if err != nil {
		return 0, err
	}

	patch = patch.Clone()
	updated := 0
	var failures []Failure

	for _, match := range matches {
		id, err := match.ID()
		if err != nil {
			failures = append(failures, Failure{Key: c.name + ":?", Err: err})
			continue
		}
		key := c.recordKey(id)

		rec, ok, err := c.updateOne(ctx, id, key, q, patch)
		if err != nil {
			failures = append(failures, Failure{Key: key, Err: err})
			continue
		}
		if !ok {
			continue
		}
		updated++
		c.notifier.notify(c.name, OpUpdate, key, rec)
	}

	return updated, c.batchError(OpUpdate, failures)
}

// updateOne re-reads the record under its lock so a concurrent writer's
// change is not overwritten with a stale copy. It reports false when the
// record vanished or stopped matching q in between.
func (c *Collection) updateOne(ctx context.Context, id, key string, q Query, patch Record) (Record, bool, error) {
	unlock := c.locks.lock(key)
	defer unlock()

	current, err := c.storage.Load(ctx, key)
	if err != nil {
		return nil, false, errors.WithMessagef(err, "load %s", key)
	}
	if current == nil || !c.stillMatches(q, current) {
		return nil, false, nil
	}

	for k, v := range patch {
		current[k] = cloneValue(v)
	}

	if err := c.write(ctx, id, key, current, c.ttl); err != nil {
		return nil, false, err
	}
	return current, true, nil
}

// Delete removes every record matching q together with its index
// memberships and returns how many were removed. Failure handling matches
// Update.
func (c *Collection) Delete(ctx context.Context, q Query) (int, error) {
	matches, err := c.Find(ctx, q)
	if err != nil {
		return 0, err
	}

	deleted := 0
	var failures []Failure

	for _, match := range matches {
		id, err := match.ID()
		if err != nil {
			failures = append(failures, Failure{Key: c.name + ":?", Err: err})
			continue
		}
		key := c.recordKey(id)

		rec, ok, err := c.deleteOne(ctx, id, key, q)
		if err != nil {
			failures = append(failures, Failure{Key: key, Err: err})
			continue
		}
		if !ok {
			continue
		}
		deleted++
		c.notifier.notify(c.name, OpDelete, key, rec)
	}

	return deleted, c.batchError(OpDelete, failures)
}

func (c *Collection) deleteOne(ctx context.Context, id, key string, q Query) (Record, bool, error) {
	unlock := c.locks.lock(key)
	defer unlock()

	current, err := c.storage.Load(ctx, key)
	if err != nil {
		return nil, false, errors.WithMessagef(err, "load %s", key)
	}
	if current == nil || !c.stillMatches(q, current) {
		return nil, false, nil
	}

	if err := c.unindex(ctx, id, key, current); err != nil {
		return nil, false, err
	}
	if err := c.backend.Del(ctx, key); err != nil {
		return nil, false, errors.WithMessagef(err, "delete %s", key)
	}
	return current, true, nil
}

func (c *Collection) batchError(op string, failures []Failure) error {
	if len(failures) == 0 {
		return nil
	}
	for _, f := range failures {
		c.logger.Error(op+" failed", "key", f.Key, "error", f.Err)
	}
	return &BatchError{Op: op, Failures: failures}
}
