package docstore

import (
	"context"
	"fmt"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Firestore is a Store backed by Cloud Firestore.
type Firestore struct {
	client *firestore.Client
}

// NewFirestore wraps an initialized Firestore client.
func NewFirestore(client *firestore.Client) *Firestore {
	return &Firestore{client: client}
}

func (f *Firestore) NewID(collection string) string {
	return f.client.Collection(collection).NewDoc().ID
}

func (f *Firestore) Get(ctx context.Context, collection, id string) (*Document, error) {
	snap, err := f.client.Collection(collection).Doc(id).Get(ctx)
	if status.Code(err) == codes.NotFound {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get %s/%s: %w", collection, id, err)
	}
	return &Document{ID: snap.Ref.ID, Data: snap.Data()}, nil
}

func (f *Firestore) Set(ctx context.Context, collection, id string, data map[string]any) error {
	if _, err := f.client.Collection(collection).Doc(id).Set(ctx, toFirestore(data)); err != nil {
		return fmt.Errorf("set %s/%s: %w", collection, id, err)
	}
	return nil
}

func (f *Firestore) Update(ctx context.Context, collection, id string, fields map[string]any) error {
	updates := make([]firestore.Update, 0, len(fields))
	for k, v := range toFirestore(fields) {
		updates = append(updates, firestore.Update{Path: k, Value: v})
	}
	_, err := f.client.Collection(collection).Doc(id).Update(ctx, updates)
	if status.Code(err) == codes.NotFound {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("update %s/%s: %w", collection, id, err)
	}
	return nil
}

func (f *Firestore) Delete(ctx context.Context, collection, id string) error {
	if _, err := f.client.Collection(collection).Doc(id).Delete(ctx); err != nil {
		return fmt.Errorf("delete %s/%s: %w", collection, id, err)
	}
	return nil
}

func (f *Firestore) Query(ctx context.Context, q Query) ([]Document, error) {
	iter := f.build(q).Documents(ctx)
	defer iter.Stop()

	var docs []Document
	for {
		snap, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("query %s: %w", q.Collection, err)
		}
		docs = append(docs, Document{ID: snap.Ref.ID, Data: snap.Data()})
	}
	return docs, nil
}

func (f *Firestore) Listen(ctx context.Context, q Query) (<-chan Snapshot, func()) {
	ctx, cancel := context.WithCancel(ctx)
	out := make(chan Snapshot, 16)
	it := f.build(q).Snapshots(ctx)

	go func() {
		defer close(out)
		defer it.Stop()
		for {
			qs, err := it.Next()
			if err != nil {
				// Cancellation is the normal way out; anything else ends the
				// listener after being reported once.
				if ctx.Err() == nil && status.Code(err) != codes.Canceled {
					select {
					case out <- Snapshot{Err: fmt.Errorf("listen %s: %w", q.Collection, err)}:
					case <-ctx.Done():
					}
				}
				return
			}
			docs, err := qs.Documents.GetAll()
			snapshot := Snapshot{Err: err}
			if err == nil {
				snapshot.Docs = make([]Document, 0, len(docs))
				for _, d := range docs {
					snapshot.Docs = append(snapshot.Docs, Document{ID: d.Ref.ID, Data: d.Data()})
				}
			}
			select {
			case out <- snapshot:
			case <-ctx.Done():
				return
			}
		}
	}()

	return out, cancel
}

func (f *Firestore) build(q Query) firestore.Query {
	fq := f.client.Collection(q.Collection).Query
	for _, flt := range q.Filters {
		fq = fq.Where(flt.Field, string(flt.Op), flt.Value)
	}
	if q.OrderBy != "" {
		dir := firestore.Asc
		if q.Descending {
			dir = firestore.Desc
		}
		fq = fq.OrderBy(q.OrderBy, dir)
	}
	if q.Limit > 0 {
		fq = fq.Limit(q.Limit)
	}
	return fq
}

func toFirestore(data map[string]any) map[string]any {
	out := make(map[string]any, len(data))
	for k, v := range data {
		if v == ServerTimestamp {
			out[k] = firestore.ServerTimestamp
			continue
		}
		out[k] = v
	}
	return out
}
