package docstore

import (
	"context"
	"strings"
	"time"

	"github.com/pkg/errors"
)

func (c *Collection) recordKey(id string) string {
	return c.name + ":" + id
}

func (c *Collection) indexKey(field, value string) string {
	return c.name + ":" + indexSegment + ":" + field + ":" + value
}

// trackKey holds the field -> value pairs a record is currently indexed
// under, so rewrites can drop exactly the stale memberships.
func (c *Collection) trackKey(id string) string {
	return c.name + ":" + trackedSegment + ":" + id
}

// isRecordKey filters the namespace scan down to primary keys.
func (c *Collection) isRecordKey(key string) bool {
	rest, ok := strings.CutPrefix(key, c.name+":")
	if !ok || rest == "" {
		return false
	}
	return !strings.HasPrefix(rest, indexSegment+":") && !strings.HasPrefix(rest, trackedSegment+":")
}

// indexValues returns the encoded value of every indexed field present on rec.
func (c *Collection) indexValues(rec Record) map[string]string {
	values := make(map[string]string, len(c.indexes))
	for _, field := range c.indexes {
		v, ok := rec[field]
		if !ok {
			continue
		}
		if s, ok := formatValue(v); ok {
			values[field] = s
		}
	}
	return values
}

// reindex brings the index sets in line with rec, stored at key.
//
// Previous memberships come from the tracking hash. Records written without
// one are cleaned by scanning every value variant of each indexed field,
// which costs one round trip per distinct value.
func (c *Collection) reindex(ctx context.Context, id, key string, rec Record, ttl time.Duration) error {
	current := c.indexValues(rec)

	previous, err := c.backend.HGetAll(ctx, c.trackKey(id))
	if err != nil {
		return errors.WithMessagef(err, "read index tracking for %s", key)
	}

	if len(previous) > 0 {
		for field, value := range previous {
			if v, ok := current[field]; ok && v == value {
				continue
			}
			if err := c.backend.SRem(ctx, c.indexKey(field, value), key); err != nil {
				return errors.WithMessagef(err, "drop %s from index %s", key, field)
			}
		}
	} else if err := c.scrubIndexes(ctx, key); err != nil {
		return err
	}

	for _, field := range c.indexes {
		value, ok := current[field]
		if !ok {
			continue
		}
		if err := c.backend.SAdd(ctx, c.indexKey(field, value), key); err != nil {
			return errors.WithMessagef(err, "add %s to index %s", key, field)
		}
	}

	return c.writeTracking(ctx, id, current, ttl)
}

// scrubIndexes removes key from every index set of every indexed field.
func (c *Collection) scrubIndexes(ctx context.Context, key string) error {
	for _, field := range c.indexes {
		pattern := escapeGlob(c.indexKey(field, "")) + "*"
		indexKeys, err := c.backend.Keys(ctx, pattern)
		if err != nil {
			return errors.WithMessagef(err, "scan index %s", field)
		}
		for _, indexKey := range indexKeys {
			if err := c.backend.SRem(ctx, indexKey, key); err != nil {
				return errors.WithMessagef(err, "drop %s from %s", key, indexKey)
			}
		}
	}
	return nil
}

func (c *Collection) writeTracking(ctx context.Context, id string, values map[string]string, ttl time.Duration) error {
	trackKey := c.trackKey(id)
	if err := c.backend.Del(ctx, trackKey); err != nil {
		return errors.WithMessagef(err, "reset index tracking %s", trackKey)
	}
	if len(values) == 0 {
		return nil
	}
	if err := c.backend.HSet(ctx, trackKey, values); err != nil {
		return errors.WithMessagef(err, "write index tracking %s", trackKey)
	}
	if ttl > 0 {
		if err := c.backend.Expire(ctx, trackKey, ttl); err != nil {
			return errors.WithMessagef(err, "expire index tracking %s", trackKey)
		}
	}
	return nil
}

// unindex removes key from the index sets it belongs to and drops its
// tracking hash. Without tracking, rec's own field values are used.
func (c *Collection) unindex(ctx context.Context, id, key string, rec Record) error {
	trackKey := c.trackKey(id)

	values, err := c.backend.HGetAll(ctx, trackKey)
	if err != nil {
		return errors.WithMessagef(err, "read index tracking for %s", key)
	}
	if len(values) == 0 {
		values = c.indexValues(rec)
	}

	for field, value := range values {
		if err := c.backend.SRem(ctx, c.indexKey(field, value), key); err != nil {
			return errors.WithMessagef(err, "drop %s from index %s", key, field)
		}
	}

	if err := c.backend.Del(ctx, trackKey); err != nil {
		return errors.WithMessagef(err, "delete index tracking %s", trackKey)
	}
	return nil
}

// escapeGlob quotes the glob metacharacters in s.
func escapeGlob(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch r {
		case '*', '?', '[', ']', '\\':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}
