package store

import (
	"context"
	"sort"
	"sync"
)

type key struct {
	namespace string
	scope     string
}

// Memory is a process local Store. Documents do not survive a restart
type Memory struct {
	mu        sync.Mutex
	documents map[key][]byte
	locks     map[key]*sync.Mutex
}

func NewMemory() *Memory {
	return &Memory{documents: map[key][]byte{}, locks: map[key]*sync.Mutex{}}
}

func (m *Memory) Get(ctx context.Context, namespace string, scope string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return clone(m.documents[key{namespace, scope}]), nil
}

func (m *Memory) Update(ctx context.Context, namespace string, scope string, fn func(current []byte) ([]byte, error)) error {

	k := key{namespace, scope}
	lock := m.lock(k)
	lock.Lock()
	defer lock.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	current, _ := m.Get(ctx, namespace, scope)
	next, err := fn(current)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.put(k, next)
	return nil
}

func (m *Memory) Scopes(ctx context.Context, namespace string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	scopes := []string{}
	for k := range m.documents {
		if k.namespace == namespace {
			scopes = append(scopes, k.scope)
		}
	}
	sort.Strings(scopes)
	return scopes, nil
}

func (m *Memory) Close() error {
	return nil
}

// Must be called with m.mu held
func (m *Memory) put(k key, data []byte) {
	if data == nil {
		delete(m.documents, k)
		return
	}
	m.documents[k] = clone(data)
}

func (m *Memory) lock(k key) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	lock, ok := m.locks[k]
	if !ok {
		lock = &sync.Mutex{}
		m.locks[k] = lock
	}
	return lock
}

func clone(data []byte) []byte {
	if data == nil {
		return nil
	}
	return append([]byte(nil), data...)
}
