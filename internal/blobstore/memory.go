package blobstore

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// MemoryStore keeps blobs in memory, for tests and local runs without GCS.
type MemoryStore struct {
	mu    sync.RWMutex
	blobs map[string][]byte
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{blobs: make(map[string][]byte)}
}

func (s *MemoryStore) Put(ctx context.Context, objectName string, contentType string, data []byte) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := make([]byte, len(data))
	copy(cp, data)
	s.blobs[objectName] = cp
	return "mem://" + objectName, nil
}

func (s *MemoryStore) Fetch(ctx context.Context, uri string) ([]byte, error) {
	objectName := strings.TrimPrefix(uri, "mem://")

	s.mu.RLock()
	defer s.mu.RUnlock()

	data, ok := s.blobs[objectName]
	if !ok {
		return nil, fmt.Errorf("blob not found: %s", uri)
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	return cp, nil
}

var _ Store = (*MemoryStore)(nil)
