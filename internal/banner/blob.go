package banner

import (
	"strings"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

// BlobPrefix starts every transient handle.
const BlobPrefix = "blob:"

// Blobs creates and releases transient image handles.
type Blobs interface {
	Create(data []byte, mimeType string) string
	Revoke(ref string) bool
}

type blob struct {
	data     []byte
	mimeType string
}

// BlobStore keeps image bytes in memory behind "blob:<uuid>" handles until
// they are revoked.
type BlobStore struct {
	mu    sync.RWMutex
	blobs map[string]blob

	created atomic.Int64
	revoked atomic.Int64
}

// NewBlobStore returns an empty store.
func NewBlobStore() *BlobStore {
	return &BlobStore{blobs: make(map[string]blob)}
}

// Create stores data and returns its handle.
func (s *BlobStore) Create(data []byte, mimeType string) string {
	id := uuid.NewString()
	s.mu.Lock()
	s.blobs[id] = blob{data: data, mimeType: mimeType}
	s.mu.Unlock()
	s.created.Add(1)
	return BlobPrefix + id
}

// Get returns the bytes and MIME type behind a handle or a bare id.
func (s *BlobStore) Get(ref string) ([]byte, string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.blobs[strings.TrimPrefix(ref, BlobPrefix)]
	return b.data, b.mimeType, ok
}

// Revoke releases a handle. It reports false if the handle was unknown.
func (s *BlobStore) Revoke(ref string) bool {
	id := strings.TrimPrefix(ref, BlobPrefix)
	s.mu.Lock()
	_, ok := s.blobs[id]
	delete(s.blobs, id)
	s.mu.Unlock()
	if ok {
		s.revoked.Add(1)
	}
	return ok
}

// Len returns the number of live handles.
func (s *BlobStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.blobs)
}

// BlobStats counts handles over the store's lifetime.
type BlobStats struct {
	Live    int   `json:"live"`
	Created int64 `json:"created"`
	Revoked int64 `json:"revoked"`
}

// Stats returns handle counters.
func (s *BlobStore) Stats() BlobStats {
	return BlobStats{Live: s.Len(), Created: s.created.Load(), Revoked: s.revoked.Load()}
}
