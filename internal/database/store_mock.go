package database

import (
	"context"
	"sync"
)

// MockCollection is a mock implementation of the Collection interface for testing.
// Uses function fields to allow tests to inject custom behavior. When a function
// field is nil, documents are kept in memory.
type MockCollection struct {
	NameValue  string
	CountFunc  func(ctx context.Context) (int, error)
	InsertFunc func(ctx context.Context, doc Document) error

	mu   sync.Mutex
	docs []Document
}

// Name returns NameValue or "mock" if not set
func (m *MockCollection) Name() string {
	if m.NameValue != "" {
		return m.NameValue
	}
	return "mock"
}

// Count calls the mock function or returns the number of stored documents
func (m *MockCollection) Count(ctx context.Context) (int, error) {
	if m.CountFunc != nil {
		return m.CountFunc(ctx)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.docs), nil
}

// Insert calls the mock function or stores the document in memory
func (m *MockCollection) Insert(ctx context.Context, doc Document) error {
	if m.InsertFunc != nil {
		return m.InsertFunc(ctx, doc)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.docs = append(m.docs, doc)
	return nil
}

// Documents returns the documents stored in memory
func (m *MockCollection) Documents() []Document {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Document, len(m.docs))
	copy(out, m.docs)
	return out
}
