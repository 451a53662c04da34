// Package docstore is a small document store layered on a key-value backend.
//
// Records are JSON-like maps stored under "<namespace>:<id>". Selected fields
// are mirrored into secondary index sets at "<namespace>:index:<field>:<value>"
// so that exact-match string queries can be answered from set lookups and
// intersections. Every other predicate is evaluated in memory against the
// candidate records.
//
//	repo := docstore.NewRepository(backend, docstore.Options{
//	    Mode:    docstore.ModeDocument,
//	    Indexes: []string{"role", "age"},
//	})
//	users, _ := repo.Collection("users")
//	_, _ = users.Set(ctx, docstore.Record{"id": "1", "role": "admin", "age": 42})
//	q, _ := docstore.ParseQuery(map[string]any{"age": map[string]any{"$gt": 30}})
//	found, _ := users.Find(ctx, q)
//
// Index maintenance is not transactional. Writes to one primary key are
// serialised inside a process; writers in different processes can still race.
package docstore
