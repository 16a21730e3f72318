// Package warehouse is the relational star-schema boundary. Consumers only
// depend on the Store capability; the postgres implementation lives alongside.
package warehouse

import "context"

// Store is the generic upsert capability the processors write through.
// Upsert must be a no-op when a row with the same key columns already exists.
type Store interface {
	// Upsert inserts values into table with do-nothing-on-conflict semantics
	// keyed by keyColumns.
	Upsert(ctx context.Context, table string, keyColumns []string, values map[string]any) error

	// Update applies values to rows matching where and reports how many rows
	// were touched. Zero rows is not an error.
	Update(ctx context.Context, table string, where map[string]any, values map[string]any) (int64, error)
}
