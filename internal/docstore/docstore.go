// Package docstore abstracts the remote document database the app syncs
// against: named collections of documents, filtered queries and push-based
// listeners that deliver full snapshots.
package docstore

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Update when the target document does not exist.
var ErrNotFound = errors.New("document not found")

// Op is a filter operator.
type Op string

const (
	OpEqual         Op = "=="
	OpNotEqual      Op = "!="
	OpArrayContains Op = "array-contains"
	OpIn            Op = "in"
)

// Filter restricts a query to documents whose Field satisfies Op against Value.
type Filter struct {
	Field string
	Op    Op
	Value any
}

// Query describes a read over one collection. Collection may be a nested
// path such as "chats/u1_u2/messages".
type Query struct {
	Collection string
	Filters    []Filter
	OrderBy    string
	Descending bool
	Limit      int
}

// Collection starts a query over the given collection path.
func Collection(path string) Query {
	return Query{Collection: path}
}

// Where returns a copy of q with an additional filter.
func (q Query) Where(field string, op Op, value any) Query {
	filters := make([]Filter, len(q.Filters), len(q.Filters)+1)
	copy(filters, q.Filters)
	q.Filters = append(filters, Filter{Field: field, Op: op, Value: value})
	return q
}

// Order returns a copy of q ordered by field.
func (q Query) Order(field string, descending bool) Query {
	q.OrderBy = field
	q.Descending = descending
	return q
}

// Take returns a copy of q limited to n documents.
func (q Query) Take(n int) Query {
	q.Limit = n
	return q
}

// Snapshot is one delivery of a listener: the full result set at a point
// in time, or the error that terminated the listener.
type Snapshot struct {
	Docs []Document
	Err  error
}

type serverTimestamp struct{}

// ServerTimestamp is a field value the backend replaces with its commit time.
var ServerTimestamp any = serverTimestamp{}

// Store is the document database collaborator.
type Store interface {
	// Get returns the document or nil when it does not exist.
	Get(ctx context.Context, collection, id string) (*Document, error)
	// Set creates or overwrites a document.
	Set(ctx context.Context, collection, id string, data map[string]any) error
	// Update merges fields into an existing document.
	Update(ctx context.Context, collection, id string, fields map[string]any) error
	Delete(ctx context.Context, collection, id string) error
	// NewID returns a fresh document id for the collection without writing.
	NewID(collection string) string
	Query(ctx context.Context, q Query) ([]Document, error)
	// Listen delivers a snapshot for the initial result and after every
	// change. The returned func stops the listener and may be called more
	// than once; the channel is closed once the listener has stopped.
	Listen(ctx context.Context, q Query) (<-chan Snapshot, func())
}
