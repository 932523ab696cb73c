package objectstore

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"
)

// MemoryStore is an in-memory ObjectStore used by tests and local runs.
type MemoryStore struct {
	mu      sync.RWMutex
	objects map[string][]byte
	mtimes  map[string]time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		objects: map[string][]byte{},
		mtimes:  map[string]time.Time{},
	}
}

func (m *MemoryStore) path(bucket, key string) string {
	return bucket + "/" + key
}

func (m *MemoryStore) Get(_ context.Context, bucket, key string) (io.ReadCloser, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	body, ok := m.objects[m.path(bucket, key)]
	if !ok {
		return nil, fmt.Errorf("object %s/%s does not exist", bucket, key)
	}
	return io.NopCloser(bytes.NewReader(body)), nil
}

func (m *MemoryStore) Put(_ context.Context, bucket, key string, body []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[m.path(bucket, key)] = append([]byte(nil), body...)
	m.mtimes[m.path(bucket, key)] = time.Now()
	return nil
}

func (m *MemoryStore) Size(_ context.Context, bucket, key string) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	body, ok := m.objects[m.path(bucket, key)]
	if !ok {
		return 0, fmt.Errorf("object %s/%s does not exist", bucket, key)
	}
	return int64(len(body)), nil
}

func (m *MemoryStore) Delete(_ context.Context, bucket, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, m.path(bucket, key))
	delete(m.mtimes, m.path(bucket, key))
	return nil
}

func (m *MemoryStore) ListWithPrefix(_ context.Context, bucket, prefix string) ([]Object, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	objects := make([]Object, 0)
	for path, body := range m.objects {
		if strings.HasPrefix(path, bucket+"/"+prefix) {
			objects = append(objects, Object{
				Key:              strings.TrimPrefix(path, bucket+"/"),
				Size:             int64(len(body)),
				LastModifiedTime: m.mtimes[path],
			})
		}
	}
	sort.Slice(objects, func(i, j int) bool { return objects[i].Key < objects[j].Key })
	return objects, nil
}
