package directory

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// Memory is an in-memory directory store for tests and local development.
// Safe for concurrent use.
type Memory struct {
	mu          sync.RWMutex
	collections map[string]map[string]Record
}

// NewMemory creates an empty in-memory directory.
func NewMemory() *Memory {
	return &Memory{
		collections: make(map[string]map[string]Record),
	}
}

// Read returns the record with the given id, or ErrNotFound.
func (m *Memory) Read(_ context.Context, collection, id string) (Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, ok := m.collections[collection][id]
	if !ok {
		return nil, ErrNotFound
	}
	return clone(rec), nil
}

// Query returns every record in the collection matching the filter, in
// unspecified order.
func (m *Memory) Query(_ context.Context, collection, filter string) (*QueryResult, error) {
	pred, err := parseFilter(filter)
	if err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	result := []Record{}
	for _, rec := range m.collections[collection] {
		if pred(rec) {
			result = append(result, clone(rec))
		}
	}
	return &QueryResult{ResultCount: len(result), Result: result}, nil
}

// Create stores a new record. A missing _id is assigned a UUID.
func (m *Memory) Create(_ context.Context, collection string, payload Record) (Record, error) {
	rec := clone(payload)
	if rec.ID() == "" {
		rec["_id"] = uuid.New().String()
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.collections[collection] == nil {
		m.collections[collection] = make(map[string]Record)
	}
	m.collections[collection][rec.ID()] = rec
	return clone(rec), nil
}

// Patch applies the operations to the record with the given id.
func (m *Memory) Patch(_ context.Context, collection, id string, ops []PatchOp) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.collections[collection][id]
	if !ok {
		return ErrNotFound
	}
	for _, op := range ops {
		switch op.Operation {
		case OpReplace:
			rec[op.Field] = op.Value
		case OpRemove:
			delete(rec, op.Field)
		default:
			return fmt.Errorf("unsupported patch operation %q", op.Operation)
		}
	}
	return nil
}

// Delete removes and returns the record with the given id.
func (m *Memory) Delete(_ context.Context, collection, id string) (Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.collections[collection][id]
	if !ok {
		return nil, ErrNotFound
	}
	delete(m.collections[collection], id)
	return rec, nil
}

func clone(rec Record) Record {
	out := make(Record, len(rec))
	for k, v := range rec {
		if s, ok := v.([]any); ok {
			v = append([]any(nil), s...)
		}
		out[k] = v
	}
	return out
}

var _ Client = (*Memory)(nil)
