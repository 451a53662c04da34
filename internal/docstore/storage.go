package docstore

import (
	"context"
	"encoding/json"

	"github.com/pkg/errors"

	"github.com/Zereker/docstore/pkg/kv"
)

// Mode selects how records are laid out in the backend.
type Mode string

const (
	// ModeDocument stores each record as one JSON string.
	ModeDocument Mode = "document"

	// ModeHash stores each record as a flat field map. Strings are stored
	// verbatim, every other value JSON encoded; reads return strings.
	ModeHash Mode = "hash"
)

// Valid reports whether m names a known storage mode.
func (m Mode) Valid() bool {
	return m == ModeDocument || m == ModeHash
}

// Storage persists and loads whole records.
type Storage interface {
	// Save replaces the record stored at key.
	Save(ctx context.Context, key string, rec Record) error

	// Load returns the record at key, nil when absent, or an ErrCorrupt
	// wrapped error when the stored value cannot be read as a record.
	Load(ctx context.Context, key string) (Record, error)

	Mode() Mode
}

// NewStorage returns the storage strategy for mode. The empty mode selects
// ModeDocument.
func NewStorage(mode Mode, backend kv.Backend) (Storage, error) {
	switch mode {
	case ModeDocument, "":
		return &documentStorage{backend: backend}, nil
	case ModeHash:
		return &hashStorage{backend: backend}, nil
	default:
		return nil, errors.Wrapf(ErrValidation, "unknown storage mode %q", mode)
	}
}

type documentStorage struct {
	backend kv.Backend
}

func (s *documentStorage) Mode() Mode { return ModeDocument }

func (s *documentStorage) Save(ctx context.Context, key string, rec Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return errors.Wrapf(ErrValidation, "record %s is not serialisable: %v", key, err)
	}
	return s.backend.Set(ctx, key, string(data))
}

func (s *documentStorage) Load(ctx context.Context, key string) (Record, error) {
	raw, err := s.backend.Get(ctx, key)
	if errors.Is(err, kv.ErrNil) {
		return nil, nil
	}
	if errors.Is(err, kv.ErrWrongType) {
		return nil, errors.Wrapf(ErrCorrupt, "%s is not a document", key)
	}
	if err != nil {
		return nil, err
	}

	var rec Record
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		return nil, errors.Wrapf(ErrCorrupt, "%s: %v", key, err)
	}
	if rec == nil {
		return nil, errors.Wrapf(ErrCorrupt, "%s holds null", key)
	}
	return rec, nil
}

type hashStorage struct {
	backend kv.Backend
}

func (s *hashStorage) Mode() Mode { return ModeHash }

// Save replaces the whole hash so fields dropped from rec do not linger.
func (s *hashStorage) Save(ctx context.Context, key string, rec Record) error {
	fields, err := flatten(rec)
	if err != nil {
		return errors.Wrapf(ErrValidation, "record %s: %v", key, err)
	}
	if err := s.backend.Del(ctx, key); err != nil {
		return err
	}
	return s.backend.HSet(ctx, key, fields)
}

func (s *hashStorage) Load(ctx context.Context, key string) (Record, error) {
	fields, err := s.backend.HGetAll(ctx, key)
	if errors.Is(err, kv.ErrWrongType) {
		return nil, errors.Wrapf(ErrCorrupt, "%s is not a hash", key)
	}
	if err != nil {
		return nil, err
	}
	if len(fields) == 0 {
		return nil, nil
	}

	rec := make(Record, len(fields))
	for k, v := range fields {
		rec[k] = v
	}
	return rec, nil
}

func flatten(rec Record) (map[string]string, error) {
	fields := make(map[string]string, len(rec))
	for k, v := range rec {
		switch t := v.(type) {
		case string:
			fields[k] = t
		case nil:
			fields[k] = ""
		default:
			if s, ok := formatValue(t); ok {
				fields[k] = s
				continue
			}
			return nil, errors.Errorf("field %q cannot be encoded", k)
		}
	}
	return fields, nil
}
