// Package cas provides content-addressable blob storage and the digest
// functions used to key it.
package cas

import (
	"crypto/sha256"
	"encoding/hex"
	"os"
	"sync"

	"github.com/javanhut/vers/internal/verr"
	"github.com/pkg/errors"
	"lukechampine.com/blake3"
)

// HashSize is the digest length in bytes; hex form is twice that.
const HashSize = 32

// Hash represents a 256-bit content digest.
type Hash [HashSize]byte

// String returns the hexadecimal representation of the hash.
func (h Hash) String() string {
	return hex.EncodeToString(h[:])
}

// IsZero reports whether h is the zero hash.
func (h Hash) IsZero() bool {
	return h == Hash{}
}

// ParseHash parses a 64-character lowercase hex digest.
func ParseHash(s string) (Hash, error) {
	var h Hash
	if len(s) != 2*HashSize {
		return h, verr.Errorf(verr.ErrInvalidInput, "parse hash", "", "want %d hex chars, got %d", 2*HashSize, len(s))
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if !(c >= '0' && c <= '9' || c >= 'a' && c <= 'f') {
			return h, verr.Errorf(verr.ErrInvalidInput, "parse hash", "", "invalid hex char %q at %d", c, i)
		}
	}
	if _, err := hex.Decode(h[:], []byte(s)); err != nil {
		return h, verr.E(verr.ErrInvalidInput, "parse hash", "", err)
	}
	return h, nil
}

// Hasher computes content digests. Same bytes always give the same Hash.
type Hasher interface {
	Name() string
	Sum(data []byte) Hash
}

type sha256Hasher struct{}

func (sha256Hasher) Name() string         { return "sha256" }
func (sha256Hasher) Sum(data []byte) Hash { return sha256.Sum256(data) }

type blake3Hasher struct{}

func (blake3Hasher) Name() string         { return "blake3" }
func (blake3Hasher) Sum(data []byte) Hash { return blake3.Sum256(data) }

// Available hashers.
var (
	SHA256 Hasher = sha256Hasher{}
	BLAKE3 Hasher = blake3Hasher{}
)

// HasherByName returns the hasher registered under name.
func HasherByName(name string) (Hasher, error) {
	switch name {
	case "", SHA256.Name():
		return SHA256, nil
	case BLAKE3.Name():
		return BLAKE3, nil
	default:
		return nil, verr.Errorf(verr.ErrInvalidInput, "select hasher", "", "unknown hash algorithm %q", name)
	}
}

// HashFile reads path and returns its digest together with the exact bytes
// that were hashed.
func HashFile(h Hasher, path string) (Hash, []byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Hash{}, nil, verr.E(verr.ErrNotFound, "hash", path, err)
		}
		return Hash{}, nil, verr.E(verr.ErrStorage, "hash", path, errors.Wrap(err, "reading file"))
	}
	return h.Sum(data), data, nil
}

// BlobStore stores byte content keyed by its digest, one copy per key.
type BlobStore interface {
	// Put stores data under hash. created is false when the blob was
	// already present.
	Put(hash Hash, data []byte) (created bool, err error)

	// Get retrieves data by its hash.
	Get(hash Hash) ([]byte, error)

	// Has checks if data exists for the given hash.
	Has(hash Hash) (bool, error)

	// Delete removes the blob. Deleting a missing blob is not an error.
	Delete(hash Hash) error
}

// MemoryCAS implements BlobStore using in-memory storage with thread-safe access.
type MemoryCAS struct {
	mu     sync.RWMutex
	hasher Hasher
	data   map[Hash][]byte
}

// NewMemoryCAS creates a new in-memory CAS verifying keys with h.
func NewMemoryCAS(h Hasher) *MemoryCAS {
	return &MemoryCAS{
		hasher: h,
		data:   make(map[Hash][]byte),
	}
}

// Put implements BlobStore.Put.
func (m *MemoryCAS) Put(hash Hash, data []byte) (bool, error) {
	if computed := m.hasher.Sum(data); computed != hash {
		return false, verr.Errorf(verr.ErrInvalidInput, "put", hash.String(), "hash mismatch: content hashes to %s", computed)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.data[hash]; ok {
		return false, nil
	}

	// Store a copy to avoid external mutations
	dataCopy := make([]byte, len(data))
	copy(dataCopy, data)
	m.data[hash] = dataCopy

	return true, nil
}

// Get implements BlobStore.Get.
func (m *MemoryCAS) Get(hash Hash) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	data, exists := m.data[hash]
	if !exists {
		return nil, verr.E(verr.ErrNotFound, "get", hash.String(), nil)
	}

	result := make([]byte, len(data))
	copy(result, data)
	return result, nil
}

// Has implements BlobStore.Has.
func (m *MemoryCAS) Has(hash Hash) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	_, exists := m.data[hash]
	return exists, nil
}

// Delete implements BlobStore.Delete.
func (m *MemoryCAS) Delete(hash Hash) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, hash)
	return nil
}

// Len returns the number of objects stored in the CAS.
func (m *MemoryCAS) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.data)
}
