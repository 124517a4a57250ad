package store

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// Memory is an in-process store for tests and ephemeral runs.
type Memory struct {
	mu     sync.RWMutex
	kv     map[string]string
	hashes map[string]map[string]string
	logs   map[string][][]byte
	blobs  map[string][]byte
}

func NewMemory() *Memory {
	return &Memory{
		kv:     map[string]string{},
		hashes: map[string]map[string]string{},
		logs:   map[string][][]byte{},
		blobs:  map[string][]byte{},
	}
}

func (m *Memory) Get(_ context.Context, key string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	value, ok := m.kv[key]
	if !ok {
		return "", ErrNotFound
	}
	return value, nil
}

func (m *Memory) Set(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.kv[key] = value
	return nil
}

func (m *Memory) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.kv, key)
	return nil
}

func (m *Memory) HGet(_ context.Context, key, field string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	value, ok := m.hashes[key][field]
	if !ok {
		return "", ErrNotFound
	}
	return value, nil
}

func (m *Memory) HSet(_ context.Context, key, field, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.hashes[key] == nil {
		m.hashes[key] = map[string]string{}
	}
	m.hashes[key][field] = value
	return nil
}

func (m *Memory) HSetAll(_ context.Context, key string, fields map[string]string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.hashes[key] == nil {
		m.hashes[key] = map[string]string{}
	}
	for field, value := range fields {
		m.hashes[key][field] = value
	}
	return nil
}

func (m *Memory) HGetAll(_ context.Context, key string) (map[string]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	fields := make(map[string]string, len(m.hashes[key]))
	for field, value := range m.hashes[key] {
		fields[field] = value
	}
	return fields, nil
}

func (m *Memory) LogAppend(_ context.Context, key string, value []byte, max int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry := make([]byte, len(value))
	copy(entry, value)
	log := append(m.logs[key], entry)
	if max > 0 && len(log) > max {
		log = log[len(log)-max:]
	}
	m.logs[key] = log
	return nil
}

func (m *Memory) LogRange(_ context.Context, key string, limit int) ([][]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	log := m.logs[key]
	if limit > 0 && len(log) > limit {
		log = log[len(log)-limit:]
	}
	out := make([][]byte, len(log))
	copy(out, log)
	return out, nil
}

func (m *Memory) LogDelete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.logs, key)
	return nil
}

func (m *Memory) PutBlob(_ context.Context, data []byte) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := uuid.NewString()
	stored := make([]byte, len(data))
	copy(stored, data)
	m.blobs[key] = stored
	return key, nil
}

func (m *Memory) GetBlob(_ context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.blobs[key]
	if !ok {
		return nil, ErrNotFound
	}
	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}

func (m *Memory) DeleteBlob(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.blobs, key)
	return nil
}

func (m *Memory) Close() error { return nil }
