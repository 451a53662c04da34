package mcp

import (
	"context"
	"encoding/json"
	"time"

	"github.com/pkg/errors"

	"github.com/Zereker/docstore/internal/docstore"
)

var (
	errUnknownTool  = errors.New("unknown tool")
	errBadArguments = errors.New("invalid arguments")
)

// Handler runs docstore tools against a repository.
type Handler struct {
	repo *docstore.Repository
}

// NewHandler creates a new MCP handler
func NewHandler(repo *docstore.Repository) *Handler {
	return &Handler{
		repo: repo,
	}
}

// toolArgs is the union of every tool's arguments.
type toolArgs struct {
	Collection string          `json:"collection"`
	Record     docstore.Record `json:"record"`
	TTL        string          `json:"ttl"`
	Query      map[string]any  `json:"query"`
	Patch      docstore.Record `json:"patch"`
}

// RecordResult carries one record; Record is null when nothing matched.
type RecordResult struct {
	Record docstore.Record `json:"record"`
}

// RecordsResult carries the records a find returned.
type RecordsResult struct {
	Records []docstore.Record `json:"records"`
	Count   int               `json:"count"`
}

// CountResult reports how many records matched or were changed.
type CountResult struct {
	Count int `json:"count"`
}

// Call runs tool name with raw JSON arguments. Update and delete may return
// a CountResult together with a *docstore.BatchError.
func (h *Handler) Call(ctx context.Context, name string, raw json.RawMessage) (any, error) {
	var args toolArgs
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &args); err != nil {
			return nil, errors.Wrapf(errBadArguments, "%s: %v", name, err)
		}
	}

	switch name {
	case "docstore_set":
		return h.set(ctx, args)
	case "docstore_find":
		return h.find(ctx, args)
	case "docstore_find_one":
		return h.findOne(ctx, args)
	case "docstore_count":
		return h.count(ctx, args)
	case "docstore_update":
		return h.update(ctx, args)
	case "docstore_delete":
		return h.delete(ctx, args)
	default:
		return nil, errors.Wrap(errUnknownTool, name)
	}
}

func (h *Handler) set(ctx context.Context, args toolArgs) (any, error) {
	coll, err := h.repo.Collection(args.Collection)
	if err != nil {
		return nil, err
	}

	var opts []docstore.SetOption
	if args.TTL != "" {
		ttl, err := time.ParseDuration(args.TTL)
		if err != nil {
			return nil, errors.Wrapf(errBadArguments, "ttl: %v", err)
		}
		opts = append(opts, docstore.WithTTL(ttl))
	}

	stored, err := coll.Set(ctx, args.Record, opts...)
	if err != nil {
		return nil, err
	}
	return RecordResult{Record: stored}, nil
}

func (h *Handler) find(ctx context.Context, args toolArgs) (any, error) {
	coll, q, err := h.prepare(args)
	if err != nil {
		return nil, err
	}

	records, err := coll.Find(ctx, q)
	if err != nil {
		return nil, err
	}
	if records == nil {
		records = []docstore.Record{}
	}
	return RecordsResult{Records: records, Count: len(records)}, nil
}

func (h *Handler) findOne(ctx context.Context, args toolArgs) (any, error) {
	coll, q, err := h.prepare(args)
	if err != nil {
		return nil, err
	}

	rec, err := coll.FindOne(ctx, q)
	if err != nil {
		return nil, err
	}
	return RecordResult{Record: rec}, nil
}

func (h *Handler) count(ctx context.Context, args toolArgs) (any, error) {
	coll, q, err := h.prepare(args)
	if err != nil {
		return nil, err
	}

	n, err := coll.Count(ctx, q)
	if err != nil {
		return nil, err
	}
	return CountResult{Count: n}, nil
}

func (h *Handler) update(ctx context.Context, args toolArgs) (any, error) {
	coll, q, err := h.prepare(args)
	if err != nil {
		return nil, err
	}

	n, err := coll.Update(ctx, q, args.Patch)
	return CountResult{Count: n}, err
}

func (h *Handler) delete(ctx context.Context, args toolArgs) (any, error) {
	coll, q, err := h.prepare(args)
	if err != nil {
		return nil, err
	}

	n, err := coll.Delete(ctx, q)
	return CountResult{Count: n}, err
}

// prepare resolves the collection and parses the query shared by the read
// and write tools.
func (h *Handler) prepare(args toolArgs) (*docstore.Collection, docstore.Query, error) {
	coll, err := h.repo.Collection(args.Collection)
	if err != nil {
		return nil, nil, err
	}

	q, err := docstore.ParseQuery(args.Query)
	if err != nil {
		return nil, nil, err
	}
	return coll, q, nil
}
