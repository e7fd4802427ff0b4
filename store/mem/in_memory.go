package mem

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/warriorguo/eventflow/store"
)

var (
	_ store.Store = &memStore{}
)

func NewMemStore() store.Store {
	return &memStore{
		m: make(map[string][]byte),
		// setup no error as default
		mockErrHandler: defaultNoErr,
	}
}

// NewMemStoreWithErrHandler returns a store whose every call reports the error of errHandler.
func NewMemStoreWithErrHandler(errHandler func() error) store.Store {
	return &memStore{
		m:              make(map[string][]byte),
		mockErrHandler: errHandler,
	}
}

func defaultNoErr() error {
	return nil
}

/**
 * memStore keeps flows and execution logs in process memory, it aims to
 * provide a backend for debug & testing.
 * NEVER use it in the Production!
 */
type memStore struct {
	mu sync.Mutex

	mockErrHandler func() error

	m map[string][]byte
}

func storeKey(prefix, key string) string {
	return prefix + "|" + key
}

func (m *memStore) String() string {
	m.mu.Lock()
	defer m.mu.Unlock()

	keys := make([]string, 0, len(m.m))
	for key := range m.m {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	sb := strings.Builder{}
	sb.WriteString("\n----------\n")
	for _, key := range keys {
		sb.WriteString(fmt.Sprintf("%s: %s\n", key, string(m.m[key])))
	}
	sb.WriteString("----------\n")
	return sb.String()
}

func (m *memStore) Get(ctx context.Context, prefix, key string) ([]byte, error) {
	if err := m.mockErrHandler(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	value, exists := m.m[storeKey(prefix, key)]
	if !exists {
		return nil, nil
	}
	// callers may keep the slice, hand out a copy
	return append([]byte{}, value...), nil
}

func (m *memStore) Set(ctx context.Context, prefix, key string, value []byte) error {
	if err := m.mockErrHandler(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	m.m[storeKey(prefix, key)] = append([]byte{}, value...)
	return nil
}

func (m *memStore) Remove(ctx context.Context, prefix, key string) error {
	if err := m.mockErrHandler(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.m, storeKey(prefix, key))
	return nil
}

func (m *memStore) List(ctx context.Context, prefix string, iterator func(key string) bool) error {
	if err := m.mockErrHandler(); err != nil {
		return err
	}
	m.mu.Lock()

	prefix = storeKey(prefix, "")
	matchedKeys := make([]string, 0)
	for key := range m.m {
		if !strings.HasPrefix(key, prefix) {
			continue
		}
		matchedKeys = append(matchedKeys, strings.TrimPrefix(key, prefix))
	}
	m.mu.Unlock()

	sort.Strings(matchedKeys)
	for _, key := range matchedKeys {
		if !iterator(key) {
			break
		}
	}
	return nil
}

func (m *memStore) Close() error {
	return nil
}
