// Package blobstore stores archived documents under caller-chosen keys. It
// provides an in-memory store for tests and development and an S3 store for
// deployments.
package blobstore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"
)

var (
	ErrBlobNotFound = errors.New("blob not found")
	ErrFileTooLarge = errors.New("blob exceeds maximum allowed size")
	ErrMissingKey   = errors.New("blob key is required")
)

// MaxBlobSize is the maximum allowed blob size in bytes (100 MB).
const MaxBlobSize = 100 * 1024 * 1024

// Object describes a stored blob.
type Object struct {
	Key         string    `json:"key"`
	ContentType string    `json:"content_type"`
	Size        int64     `json:"size"`
	Hash        string    `json:"hash"`
	StoredAt    time.Time `json:"stored_at"`
}

// Store is the contract for blob storage backends. Put overwrites any blob
// already stored under key.
type Store interface {
	Put(ctx context.Context, key string, data []byte, contentType string) (*Object, error)
	Get(ctx context.Context, key string) ([]byte, *Object, error)
	Delete(ctx context.Context, key string) error
}

func describe(key string, data []byte, contentType string) (*Object, error) {
	if key == "" {
		return nil, ErrMissingKey
	}
	if len(data) > MaxBlobSize {
		return nil, ErrFileTooLarge
	}
	h := sha256.Sum256(data)
	return &Object{
		Key:         key,
		ContentType: contentType,
		Size:        int64(len(data)),
		Hash:        hex.EncodeToString(h[:]),
		StoredAt:    time.Now().UTC(),
	}, nil
}

type storedBlob struct {
	object Object
	data   []byte
}

// InMemoryStore is a thread-safe, in-memory Store.
type InMemoryStore struct {
	mu    sync.RWMutex
	blobs map[string]*storedBlob
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{blobs: make(map[string]*storedBlob)}
}

func (s *InMemoryStore) Put(_ context.Context, key string, data []byte, contentType string) (*Object, error) {
	obj, err := describe(key, data, contentType)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.blobs[key] = &storedBlob{object: *obj, data: append([]byte(nil), data...)}
	s.mu.Unlock()
	return obj, nil
}

func (s *InMemoryStore) Get(_ context.Context, key string) ([]byte, *Object, error) {
	s.mu.RLock()
	blob, ok := s.blobs[key]
	s.mu.RUnlock()
	if !ok {
		return nil, nil, ErrBlobNotFound
	}
	obj := blob.object
	return append([]byte(nil), blob.data...), &obj, nil
}

func (s *InMemoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.blobs[key]; !ok {
		return ErrBlobNotFound
	}
	delete(s.blobs, key)
	return nil
}

// Keys lists stored keys with the given prefix in lexical order.
func (s *InMemoryStore) Keys(prefix string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []string
	for k := range s.blobs {
		if strings.HasPrefix(k, prefix) {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out
}
