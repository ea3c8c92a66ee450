package blobstore

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"sync"

	"github.com/gabriel-vasile/mimetype"

	"spmirror/internal/core"
)

// MemoryBlobStore is an in-memory BlobStore for tests. Safe for
// concurrent use.
type MemoryBlobStore struct {
	mu      sync.RWMutex
	content map[string][]byte
}

// NewMemoryBlobStore creates an empty in-memory blob store.
func NewMemoryBlobStore() *MemoryBlobStore {
	return &MemoryBlobStore{content: make(map[string][]byte)}
}

func (m *MemoryBlobStore) Put(r io.Reader, mimeHint string) (string, int64, string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return "", 0, "", core.StorageError("Put", err)
	}

	h := sha256.Sum256(data)
	checksum := hex.EncodeToString(h[:])

	mime := mimeHint
	if mime == "" {
		mime = mimetype.Detect(data).String()
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.content[checksum]; !exists {
		m.content[checksum] = data
	}
	return checksum, int64(len(data)), mime, nil
}

func (m *MemoryBlobStore) Open(sha256hex string) (io.ReadCloser, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	data, ok := m.content[sha256hex]
	if !ok {
		return nil, core.NotFoundError("Open", fmt.Errorf("blob not found: %s", sha256hex))
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (m *MemoryBlobStore) Delete(sha256hex string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.content, sha256hex)
	return nil
}

func (m *MemoryBlobStore) Verify(sha256hex string, expectedSize int64) (core.VerifyResult, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	data, ok := m.content[sha256hex]
	if !ok {
		return core.VerifyMissing, nil
	}
	h := sha256.Sum256(data)
	if int64(len(data)) != expectedSize || hex.EncodeToString(h[:]) != sha256hex {
		return core.VerifyCorrupt, nil
	}
	return core.VerifyOK, nil
}

var _ core.BlobStore = (*MemoryBlobStore)(nil)
