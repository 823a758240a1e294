package store

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"sync"

	"github.com/jackzampolin/folio/internal/defra"
)

// MemoryStore implements Store with in-memory storage for unit tests.
// It stores documents as map[string]any keyed by collection and docID and
// understands the filter shapes produced by defra.QueryBuilder (_eq and _in,
// literal or variable). Results are returned in docID order.
// Error injection is supported for testing error handling paths.
type MemoryStore struct {
	mu sync.RWMutex

	// docs maps collection -> docID -> document fields
	docs map[string]map[string]map[string]any

	// autoID tracks the next auto-generated doc ID per collection
	autoID map[string]int

	// unique maps collection -> field names carrying a unique index
	unique map[string][]string

	writes []defra.WriteOp

	// --- Error injection fields for testing ---

	// ExecuteErr is returned by Execute when non-nil
	ExecuteErr error

	// BatchErr is returned by Batch when non-nil
	BatchErr error

	// ErrOnCollection causes reads and writes on specific collections to fail
	ErrOnCollection map[string]error

	// ErrAfterNWrites causes an error after N successful writes.
	// A batch counts as one write.
	ErrAfterNWrites int
	errWriteCount   int
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		docs:   make(map[string]map[string]map[string]any),
		autoID: make(map[string]int),
		unique: make(map[string][]string),
	}
}

// UniqueIndex mirrors a schema `@index(unique: true)` on collection.field.
func (m *MemoryStore) UniqueIndex(collection, field string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.unique[collection] = append(m.unique[collection], field)
}

func (m *MemoryStore) Execute(_ context.Context, query string, variables map[string]any) (*defra.GQLResponse, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.ExecuteErr != nil {
		return nil, m.ExecuteErr
	}

	collection, filters := parseQuery(query, variables)
	if collection == "" {
		return &defra.GQLResponse{Data: map[string]any{}}, nil
	}
	if err, ok := m.ErrOnCollection[collection]; ok {
		return nil, err
	}

	ids := sortedIDs(m.docs[collection])
	results := make([]any, 0, len(ids))
	for _, docID := range ids {
		doc := m.docs[collection][docID]
		if matchesFilters(doc, docID, filters) {
			copied := copyDoc(doc)
			copied["_docID"] = docID
			results = append(results, copied)
		}
	}

	return &defra.GQLResponse{Data: map[string]any{collection: results}}, nil
}

func (m *MemoryStore) Create(_ context.Context, collection string, input map[string]any) (defra.WriteResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	op := defra.WriteOp{Collection: collection, Document: input, Op: defra.OpCreate}
	if err := m.checkWrite(op); err != nil {
		return defra.WriteResult{}, err
	}
	if err := m.checkUnique(collection, "", input, nil); err != nil {
		return defra.WriteResult{}, err
	}
	return defra.WriteResult{DocID: m.applyOp(op)}, nil
}

func (m *MemoryStore) Update(_ context.Context, collection, docID string, input map[string]any) (defra.WriteResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	op := defra.WriteOp{Collection: collection, DocID: docID, Document: input, Op: defra.OpUpdate}
	if err := m.checkWrite(op); err != nil {
		return defra.WriteResult{}, err
	}
	if _, ok := m.docs[collection][docID]; !ok {
		return defra.WriteResult{}, fmt.Errorf("update error: document %s not found in %s", docID, collection)
	}
	if err := m.checkUnique(collection, docID, input, nil); err != nil {
		return defra.WriteResult{}, err
	}
	return defra.WriteResult{DocID: m.applyOp(op)}, nil
}

func (m *MemoryStore) Delete(_ context.Context, collection, docID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	op := defra.WriteOp{Collection: collection, DocID: docID, Op: defra.OpDelete}
	if err := m.checkWrite(op); err != nil {
		return err
	}
	m.applyOp(op)
	return nil
}

// Batch validates every op before applying any of them, matching the
// single-transaction behavior of defra.Client.Batch.
func (m *MemoryStore) Batch(_ context.Context, ops []defra.WriteOp) ([]defra.WriteResult, error) {
	if len(ops) == 0 {
		return nil, nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.BatchErr != nil {
		return nil, m.BatchErr
	}
	if err := m.countWrite(); err != nil {
		return nil, err
	}

	// pending tracks unique values claimed earlier in this batch.
	pending := make(map[string]bool)
	for i, op := range ops {
		if err, ok := m.ErrOnCollection[op.Collection]; ok {
			return nil, fmt.Errorf("batch op %d: %w", i, err)
		}
		switch op.Op {
		case defra.OpCreate:
			if err := m.checkUnique(op.Collection, "", op.Document, pending); err != nil {
				return nil, fmt.Errorf("batch op %d: %w", i, err)
			}
		case defra.OpUpdate:
			if _, ok := m.docs[op.Collection][op.DocID]; !ok {
				return nil, fmt.Errorf("batch op %d: document %s not found in %s", i, op.DocID, op.Collection)
			}
			if err := m.checkUnique(op.Collection, op.DocID, op.Document, pending); err != nil {
				return nil, fmt.Errorf("batch op %d: %w", i, err)
			}
		case defra.OpDelete:
		default:
			return nil, fmt.Errorf("batch op %d: unknown op type %q", i, op.Op)
		}
	}

	results := make([]defra.WriteResult, len(ops))
	for i, op := range ops {
		results[i] = defra.WriteResult{DocID: m.applyOp(op)}
	}
	return results, nil
}

// checkWrite applies error injection. Must be called with m.mu held.
func (m *MemoryStore) checkWrite(op defra.WriteOp) error {
	if err, ok := m.ErrOnCollection[op.Collection]; ok {
		return err
	}
	return m.countWrite()
}

func (m *MemoryStore) countWrite() error {
	if m.ErrAfterNWrites > 0 {
		m.errWriteCount++
		if m.errWriteCount > m.ErrAfterNWrites {
			return fmt.Errorf("injected error after %d writes", m.ErrAfterNWrites)
		}
	}
	return nil
}

// checkUnique rejects writes that would duplicate a uniquely indexed value.
// Must be called with m.mu held.
func (m *MemoryStore) checkUnique(collection, selfID string, input map[string]any, pending map[string]bool) error {
	for _, field := range m.unique[collection] {
		val, ok := input[field]
		if !ok || val == nil {
			continue
		}
		want := fmt.Sprintf("%v", val)
		key := collection + "." + field + "=" + want
		if pending[key] {
			return fmt.Errorf("%w: %s", defra.ErrUniqueViolation, key)
		}
		for docID, doc := range m.docs[collection] {
			if docID == selfID {
				continue
			}
			if existing, ok := doc[field]; ok && fmt.Sprintf("%v", existing) == want {
				return fmt.Errorf("%w: %s", defra.ErrUniqueViolation, key)
			}
		}
		if pending != nil {
			pending[key] = true
		}
	}
	return nil
}

// applyOp applies a write operation to the in-memory store.
// Must be called with m.mu held.
func (m *MemoryStore) applyOp(op defra.WriteOp) string {
	m.writes = append(m.writes, op)
	if m.docs[op.Collection] == nil {
		m.docs[op.Collection] = make(map[string]map[string]any)
	}

	switch op.Op {
	case defra.OpCreate:
		m.autoID[op.Collection]++
		docID := op.DocID
		if docID == "" {
			docID = fmt.Sprintf("auto-%s-%04d", op.Collection, m.autoID[op.Collection])
		}
		m.docs[op.Collection][docID] = copyDoc(op.Document)
		return docID

	case defra.OpUpdate:
		existing := m.docs[op.Collection][op.DocID]
		if existing == nil {
			existing = make(map[string]any)
			m.docs[op.Collection][op.DocID] = existing
		}
		for k, v := range op.Document {
			if v == nil {
				delete(existing, k)
			} else {
				existing[k] = v
			}
		}
		return op.DocID

	case defra.OpDelete:
		delete(m.docs[op.Collection], op.DocID)
		return op.DocID
	}
	return ""
}

// --- Test helper methods ---

// GetDoc returns a copy of a document for test assertions.
func (m *MemoryStore) GetDoc(collection, docID string) map[string]any {
	m.mu.RLock()
	defer m.mu.RUnlock()
	doc, ok := m.docs[collection][docID]
	if !ok {
		return nil
	}
	return copyDoc(doc)
}

// SetDoc directly sets a document in the store for test setup.
func (m *MemoryStore) SetDoc(collection, docID string, doc map[string]any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.docs[collection] == nil {
		m.docs[collection] = make(map[string]map[string]any)
	}
	m.docs[collection][docID] = copyDoc(doc)
}

// Count returns the number of documents in a collection.
func (m *MemoryStore) Count(collection string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.docs[collection])
}

// WriteCount returns the number of applied write operations.
func (m *MemoryStore) WriteCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.writes)
}

// SetErrorOnCollection configures an error for operations on a collection.
func (m *MemoryStore) SetErrorOnCollection(collection string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ErrOnCollection == nil {
		m.ErrOnCollection = make(map[string]error)
	}
	m.ErrOnCollection[collection] = err
}

// SetErrorAfterNWrites configures an error to occur after N successful writes.
func (m *MemoryStore) SetErrorAfterNWrites(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ErrAfterNWrites = n
	m.errWriteCount = 0
}

// ClearErrors removes all error injection settings.
func (m *MemoryStore) ClearErrors() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ExecuteErr = nil
	m.BatchErr = nil
	m.ErrOnCollection = nil
	m.ErrAfterNWrites = 0
	m.errWriteCount = 0
}

// --- Query parser ---
// Handles patterns like: query($v0: String) { Collection(filter: {field: {_eq: $v0}}) { ... } }

var (
	collectionRe = regexp.MustCompile(`\{\s*(\w+)\s*(?:\(|\{)`)
	filterRe     = regexp.MustCompile(`(\w+)\s*:\s*\{\s*(_eq|_in)\s*:\s*(?:"([^"]*)"|\$(\w+))`)
)

type filterCondition struct {
	field  string
	op     string
	values []string
}

func parseQuery(query string, variables map[string]any) (string, []filterCondition) {
	match := collectionRe.FindStringSubmatch(query)
	if len(match) < 2 {
		return "", nil
	}
	collection := match[1]

	var filters []filterCondition
	for _, fm := range filterRe.FindAllStringSubmatch(query, -1) {
		cond := filterCondition{field: fm[1], op: fm[2]}
		if fm[4] != "" {
			cond.values = variableValues(variables[fm[4]])
		} else {
			cond.values = []string{fm[3]}
		}
		filters = append(filters, cond)
	}
	return collection, filters
}

func variableValues(v any) []string {
	switch val := v.(type) {
	case []string:
		return val
	case []any:
		out := make([]string, 0, len(val))
		for _, item := range val {
			out = append(out, fmt.Sprintf("%v", item))
		}
		return out
	case nil:
		return nil
	default:
		return []string{fmt.Sprintf("%v", val)}
	}
}

func matchesFilters(doc map[string]any, docID string, filters []filterCondition) bool {
	for _, f := range filters {
		var got string
		if f.field == "_docID" {
			got = docID
		} else {
			val, ok := doc[f.field]
			if !ok {
				return false
			}
			got = fmt.Sprintf("%v", val)
		}
		matched := false
		for _, want := range f.values {
			if got == want {
				matched = true
				break
			}
		}
		if !matched {
			return false
		}
	}
	return true
}

func sortedIDs(docs map[string]map[string]any) []string {
	ids := make([]string, 0, len(docs))
	for id := range docs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func copyDoc(doc map[string]any) map[string]any {
	copied := make(map[string]any, len(doc)+1)
	for k, v := range doc {
		copied[k] = v
	}
	return copied
}
