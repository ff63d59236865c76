package documentstore

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
)

// Memory is an in-process Store for tests and cache-only local runs.
// Documents are deep-copied through JSON on the way in and out, matching
// the value semantics of the real store.
type Memory struct {
	mu          sync.Mutex
	collections map[string]map[string]Document
	reads       map[string]int // per-collection read counter, for tests
	failWrites  bool
	failReads   bool
}

// NewMemory creates an empty in-memory document store.
func NewMemory() *Memory {
	return &Memory{
		collections: make(map[string]map[string]Document),
		reads:       make(map[string]int),
	}
}

// Reads returns how many Get/Query calls a collection has served.
func (m *Memory) Reads(collection string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.reads[collection]
}

// FailWrites toggles simulated write failures (Insert/Update/Delete/BatchWrite).
func (m *Memory) FailWrites(fail bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failWrites = fail
}

// FailReads toggles simulated read failures (Get/Query).
func (m *Memory) FailReads(fail bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failReads = fail
}

func deepCopy(doc Document) Document {
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil
	}
	out := Document{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil
	}
	return out
}

func (m *Memory) Get(ctx context.Context, collection, id string) (Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reads[collection]++
	if m.failReads {
		return nil, fmt.Errorf("documentstore: simulated read failure")
	}
	doc, ok := m.collections[collection][id]
	if !ok {
		return nil, ErrNotFound
	}
	return deepCopy(doc), nil
}

// normalize flattens values through JSON so that e.g. int(5) from a filter
// matches float64(5) decoded from a stored document.
func normalize(v any) string {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(raw)
}

func (m *Memory) Query(ctx context.Context, collection string, q Query) ([]Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reads[collection]++
	if m.failReads {
		return nil, fmt.Errorf("documentstore: simulated read failure")
	}

	var out []Document
	for _, doc := range m.collections[collection] {
		match := true
		for field, want := range q.Filters {
			got, ok := doc[field]
			if !ok || normalize(got) != normalize(want) {
				match = false
				break
			}
		}
		if match {
			out = append(out, deepCopy(doc))
		}
	}

	if q.OrderBy != "" {
		sort.Slice(out, func(i, j int) bool {
			a := normalize(out[i][q.OrderBy])
			b := normalize(out[j][q.OrderBy])
			if q.Descending {
				return a > b
			}
			return a < b
		})
	}
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

func (m *Memory) Insert(ctx context.Context, collection, id string, doc Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWrites {
		return fmt.Errorf("documentstore: simulated write failure")
	}
	if m.collections[collection] == nil {
		m.collections[collection] = make(map[string]Document)
	}
	if _, exists := m.collections[collection][id]; exists {
		return fmt.Errorf("documentstore: duplicate id %q in %s", id, collection)
	}
	m.collections[collection][id] = deepCopy(doc)
	return nil
}

func (m *Memory) Update(ctx context.Context, collection, id string, fields Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWrites {
		return fmt.Errorf("documentstore: simulated write failure")
	}
	doc, ok := m.collections[collection][id]
	if !ok {
		return ErrNotFound
	}
	merged := deepCopy(doc)
	for k, v := range deepCopy(fields) {
		merged[k] = v
	}
	m.collections[collection][id] = merged
	return nil
}

func (m *Memory) Delete(ctx context.Context, collection, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWrites {
		return fmt.Errorf("documentstore: simulated write failure")
	}
	delete(m.collections[collection], id)
	return nil
}

func (m *Memory) BatchWrite(ctx context.Context, collection string, docs []BatchDoc) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWrites {
		return fmt.Errorf("documentstore: simulated write failure")
	}
	if m.collections[collection] == nil {
		m.collections[collection] = make(map[string]Document)
	}
	for _, d := range docs {
		m.collections[collection][d.ID] = deepCopy(d.Doc)
	}
	return nil
}

func (m *Memory) Count(ctx context.Context, collection string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.collections[collection]), nil
}
