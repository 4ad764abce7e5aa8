package persistence

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"linkhealth/domain/repository"
)

// MemoryStore is an in-process document store. Documents are kept as JSON so
// callers never share memory with stored values.
type MemoryStore struct {
	mu   sync.RWMutex
	seq  uint64
	data map[string]map[string]memoryDoc
}

type memoryDoc struct {
	raw []byte
	seq uint64
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string]map[string]memoryDoc)}
}

func (s *MemoryStore) Put(ctx context.Context, collection, id string, doc any) error {
	raw, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode %s/%s: %w", collection, id, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.data[collection] == nil {
		s.data[collection] = make(map[string]memoryDoc)
	}
	s.seq++
	s.data[collection][id] = memoryDoc{raw: raw, seq: s.seq}
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, collection, id string, out any) error {
	s.mu.RLock()
	doc, ok := s.data[collection][id]
	s.mu.RUnlock()
	if !ok {
		return repository.ErrNotFound
	}
	return json.Unmarshal(doc.raw, out)
}

// Query returns matches in write order.
func (s *MemoryStore) Query(ctx context.Context, collection string, filter repository.Filter, out any) error {
	s.mu.RLock()
	matches := make([]memoryDoc, 0)
	for _, doc := range s.data[collection] {
		ok, err := matchesFilter(doc.raw, filter)
		if err != nil {
			s.mu.RUnlock()
			return err
		}
		if ok {
			matches = append(matches, doc)
		}
	}
	s.mu.RUnlock()

	sort.Slice(matches, func(i, j int) bool { return matches[i].seq < matches[j].seq })
	raws := make([][]byte, len(matches))
	for i, m := range matches {
		raws[i] = m.raw
	}
	return decodeList(raws, out)
}

func matchesFilter(raw []byte, filter repository.Filter) (bool, error) {
	if len(filter) == 0 {
		return true, nil
	}
	var fields map[string]any
	if err := json.Unmarshal(raw, &fields); err != nil {
		return false, err
	}
	for k, want := range filter {
		got, ok := fields[k]
		if !ok || filterValue(got) != filterValue(want) {
			return false, nil
		}
	}
	return true, nil
}
