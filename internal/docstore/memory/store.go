// Package memory provides an in-process implementation of docstore.Store.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/dodocare/dodocare/internal/docstore"
	"github.com/google/uuid"
)

// Store keeps documents in memory. It is safe for concurrent use.
type Store struct {
	mu          sync.RWMutex
	collections map[string]map[string]docstore.Document
	now         func() time.Time
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		collections: make(map[string]map[string]docstore.Document),
		now:         time.Now,
	}
}

// All returns every document of a collection.
func (s *Store) All(ctx context.Context, collection string) ([]docstore.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("list %s: %w: %w", collection, docstore.ErrUnavailable, err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	docs := make([]docstore.Document, 0, len(s.collections[collection]))
	for _, d := range s.collections[collection] {
		docs = append(docs, copyDocument(d))
	}
	return docs, nil
}

// Get returns a single document.
func (s *Store) Get(ctx context.Context, collection, id string) (*docstore.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("get %s/%s: %w: %w", collection, id, docstore.ErrUnavailable, err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	d, ok := s.collections[collection][id]
	if !ok {
		return nil, docstore.ErrNotFound
	}
	out := copyDocument(d)
	return &out, nil
}

// Create stores a new document under a generated id.
func (s *Store) Create(ctx context.Context, collection string, fields docstore.Fields) (string, error) {
	id := uuid.New().String()
	if err := s.Put(ctx, collection, id, fields); err != nil {
		return "", err
	}
	return id, nil
}

// Put creates or replaces a document.
func (s *Store) Put(ctx context.Context, collection, id string, fields docstore.Fields) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("put %s/%s: %w: %w", collection, id, docstore.ErrUnavailable, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	coll, ok := s.collections[collection]
	if !ok {
		coll = make(map[string]docstore.Document)
		s.collections[collection] = coll
	}

	created := now
	if existing, ok := coll[id]; ok {
		created = existing.CreatedAt
	}
	coll[id] = docstore.Document{
		ID:        id,
		Fields:    fields.Clone(),
		CreatedAt: created,
		UpdatedAt: now,
	}
	return nil
}

// Update merges fields into an existing document.
func (s *Store) Update(ctx context.Context, collection, id string, fields docstore.Fields) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("update %s/%s: %w: %w", collection, id, docstore.ErrUnavailable, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	d, ok := s.collections[collection][id]
	if !ok {
		return docstore.ErrNotFound
	}
	merged := d.Fields.Clone()
	for k, v := range fields {
		merged[k] = v
	}
	d.Fields = merged
	d.UpdatedAt = s.now()
	s.collections[collection][id] = d
	return nil
}

// Delete removes a document.
func (s *Store) Delete(ctx context.Context, collection, id string) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("delete %s/%s: %w: %w", collection, id, docstore.ErrUnavailable, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.collections[collection][id]; !ok {
		return docstore.ErrNotFound
	}
	delete(s.collections[collection], id)
	return nil
}

// OrderedBy returns the documents of a collection sorted by the text value of field.
func (s *Store) OrderedBy(ctx context.Context, collection, field string, descending bool) ([]docstore.Document, error) {
	docs, err := s.All(ctx, collection)
	if err != nil {
		return nil, err
	}

	sort.Slice(docs, func(i, j int) bool {
		a, b := docs[i].Fields.String(field), docs[j].Fields.String(field)
		if a == b {
			return docs[i].ID < docs[j].ID
		}
		if descending {
			return a > b
		}
		return a < b
	})
	return docs, nil
}

func copyDocument(d docstore.Document) docstore.Document {
	d.Fields = d.Fields.Clone()
	return d
}
