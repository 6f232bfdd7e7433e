package memory

import (
	"encoding/json"
	"fmt"
	"sync"

	"medidispatch/internal/repositories/interfaces"
	"medidispatch/internal/utils"
)

// store keeps documents as encoded JSON so callers never share memory with
// the stored copy, mirroring what a round trip through a database gives.
type store[T any] struct {
	mu      sync.RWMutex
	kind    string
	docs    map[string][]byte
	order   []string
	idOf    func(*T) string
	version func(*T) *int64
}

func newStore[T any](kind string, idOf func(*T) string, version func(*T) *int64) *store[T] {
	return &store[T]{
		kind:    kind,
		docs:    make(map[string][]byte),
		idOf:    idOf,
		version: version,
	}
}

func (s *store[T]) create(doc *T) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", s.kind, err)
	}

	id := s.idOf(doc)

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.docs[id]; exists {
		return fmt.Errorf("%s %s: %w", s.kind, id, interfaces.ErrDuplicate)
	}
	s.docs[id] = data
	s.order = append(s.order, id)
	return nil
}

func (s *store[T]) get(id string) (*T, error) {
	s.mu.RLock()
	data, ok := s.docs[id]
	s.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%s %s: %w", s.kind, id, interfaces.ErrNotFound)
	}
	return s.decode(data)
}

// update is the compare-and-swap: it succeeds only when the stored version
// equals the document's, and bumps the document's version.
func (s *store[T]) update(doc *T) error {
	id := s.idOf(doc)
	version := s.version(doc)

	s.mu.Lock()
	defer s.mu.Unlock()

	data, ok := s.docs[id]
	if !ok {
		return fmt.Errorf("%s %s: %w", s.kind, id, interfaces.ErrNotFound)
	}

	stored, err := s.decode(data)
	if err != nil {
		return err
	}
	if *s.version(stored) != *version {
		return fmt.Errorf("%s %s at version %d: %w", s.kind, id, *version, interfaces.ErrVersionConflict)
	}

	*version++
	next, err := json.Marshal(doc)
	if err != nil {
		*version--
		return fmt.Errorf("failed to encode %s: %w", s.kind, err)
	}
	s.docs[id] = next
	return nil
}

// filter returns matching documents newest first.
func (s *store[T]) filter(match func(*T) bool) ([]*T, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*T, 0)
	for i := len(s.order) - 1; i >= 0; i-- {
		doc, err := s.decode(s.docs[s.order[i]])
		if err != nil {
			return nil, err
		}
		if match == nil || match(doc) {
			out = append(out, doc)
		}
	}
	return out, nil
}

// page applies the status filter and offset paging of params.
func (s *store[T]) page(params *utils.PaginationParams, statusOf func(*T) string, match func(*T) bool) ([]*T, int64, error) {
	all, err := s.filter(func(doc *T) bool {
		if match != nil && !match(doc) {
			return false
		}
		return params == nil || params.Status == "" || statusOf(doc) == params.Status
	})
	if err != nil {
		return nil, 0, err
	}

	total := int64(len(all))
	if params != nil && params.Order == "asc" {
		reverse(all)
	}

	skip, limit := 0, utils.DefaultPageSize
	if params != nil {
		if params.PageSize > 0 {
			limit = params.PageSize
		}
		if params.Page > 1 {
			skip = (params.Page - 1) * limit
		}
	}
	if skip >= len(all) {
		return []*T{}, total, nil
	}
	end := skip + limit
	if end > len(all) {
		end = len(all)
	}
	return all[skip:end], total, nil
}

func (s *store[T]) decode(data []byte) (*T, error) {
	var doc T
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", s.kind, err)
	}
	return &doc, nil
}

func reverse[T any](items []*T) {
	for i, j := 0, len(items)-1; i < j; i, j = i+1, j-1 {
		items[i], items[j] = items[j], items[i]
	}
}
