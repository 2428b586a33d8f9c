package docstore

import (
	"context"
	"reflect"
	"sync"
	"time"

	"github.com/matheus3301/thriveup/internal/bus"
	"github.com/oklog/ulid/v2"
)

// Memory is an in-process Store. Listeners are driven by change events on
// a bus: every write to a collection re-evaluates the listeners on it.
type Memory struct {
	mu          sync.RWMutex
	collections map[string]map[string]map[string]any
	bus         *bus.Bus
	now         func() time.Time
}

// NewMemory creates an empty in-memory store. A nil bus gets a private one.
func NewMemory(b *bus.Bus) *Memory {
	if b == nil {
		b = bus.New()
	}
	return &Memory{
		collections: make(map[string]map[string]map[string]any),
		bus:         b,
		now:         time.Now,
	}
}

func changeKind(collection string) string {
	return "docstore." + collection + "#"
}

// NewID returns a monotonic ULID so auto ids sort in creation order.
func (m *Memory) NewID(string) string {
	return ulid.Make().String()
}

func (m *Memory) Get(_ context.Context, collection, id string) (*Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.collections[collection][id]
	if !ok {
		return nil, nil
	}
	return &Document{ID: id, Data: copyData(data)}, nil
}

func (m *Memory) Set(_ context.Context, collection, id string, data map[string]any) error {
	m.mu.Lock()
	docs, ok := m.collections[collection]
	if !ok {
		docs = make(map[string]map[string]any)
		m.collections[collection] = docs
	}
	docs[id] = m.resolve(data)
	m.mu.Unlock()

	m.bus.Emit(changeKind(collection), id)
	return nil
}

func (m *Memory) Update(_ context.Context, collection, id string, fields map[string]any) error {
	m.mu.Lock()
	existing, ok := m.collections[collection][id]
	if !ok {
		m.mu.Unlock()
		return ErrNotFound
	}
	for k, v := range m.resolve(fields) {
		existing[k] = v
	}
	m.mu.Unlock()

	m.bus.Emit(changeKind(collection), id)
	return nil
}

func (m *Memory) Delete(_ context.Context, collection, id string) error {
	m.mu.Lock()
	_, existed := m.collections[collection][id]
	delete(m.collections[collection], id)
	m.mu.Unlock()

	if existed {
		m.bus.Emit(changeKind(collection), id)
	}
	return nil
}

func (m *Memory) Query(ctx context.Context, q Query) ([]Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	docs := make([]Document, 0, len(m.collections[q.Collection]))
	for id, data := range m.collections[q.Collection] {
		docs = append(docs, Document{ID: id, Data: copyData(data)})
	}
	m.mu.RUnlock()
	return evaluate(docs, q), nil
}

func (m *Memory) Listen(ctx context.Context, q Query) (<-chan Snapshot, func()) {
	ctx, cancel := context.WithCancel(ctx)
	// Subscribe before the first read so no write can slip in between.
	changes, unsub := m.bus.Subscribe(changeKind(q.Collection), 64)
	out := make(chan Snapshot, 16)

	go func() {
		defer close(out)
		defer unsub()

		var last []Document
		first := true
		emit := func() bool {
			docs, err := m.Query(ctx, q)
			if err != nil {
				return false
			}
			if !first && reflect.DeepEqual(last, docs) {
				return true
			}
			first = false
			last = docs
			select {
			case out <- Snapshot{Docs: docs}:
				return true
			case <-ctx.Done():
				return false
			}
		}

		if !emit() {
			return
		}
		for {
			select {
			case <-changes:
				if !emit() {
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	return out, cancel
}

// resolve copies data, replacing ServerTimestamp with the current time.
func (m *Memory) resolve(data map[string]any) map[string]any {
	out := copyData(data)
	for k, v := range out {
		if v == ServerTimestamp {
			out[k] = m.now().UTC()
		}
	}
	return out
}

func copyData(data map[string]any) map[string]any {
	out := make(map[string]any, len(data))
	for k, v := range data {
		out[k] = copyValue(v)
	}
	return out
}

func copyValue(v any) any {
	switch t := v.(type) {
	case []string:
		return append([]string(nil), t...)
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = copyValue(e)
		}
		return out
	case map[string]any:
		return copyData(t)
	}
	return v
}
