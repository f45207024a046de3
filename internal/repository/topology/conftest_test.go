package topology

import "context"

// mockStore implements the consumer interface for tests.
type mockStore struct {
	hsetFn         func(ctx context.Context, key string, fields map[string]string) error
	hgetAllFn      func(ctx context.Context, key string) (map[string]string, error)
	hgetAllMultiFn func(ctx context.Context, keys []string) ([]map[string]string, error)
	delFn          func(ctx context.Context, key string) error
	scanFn         func(ctx context.Context, pattern string) ([]string, error)
}

func (m *mockStore) HSet(ctx context.Context, key string, fields map[string]string) error {
	if m.hsetFn != nil {
		return m.hsetFn(ctx, key, fields)
	}
	return nil
}

func (m *mockStore) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	if m.hgetAllFn != nil {
		return m.hgetAllFn(ctx, key)
	}
	return map[string]string{}, nil
}

func (m *mockStore) HGetAllMulti(ctx context.Context, keys []string) ([]map[string]string, error) {
	if m.hgetAllMultiFn != nil {
		return m.hgetAllMultiFn(ctx, keys)
	}
	return nil, nil
}

func (m *mockStore) Del(ctx context.Context, key string) error {
	if m.delFn != nil {
		return m.delFn(ctx, key)
	}
	return nil
}

func (m *mockStore) Scan(ctx context.Context, pattern string) ([]string, error) {
	if m.scanFn != nil {
		return m.scanFn(ctx, pattern)
	}
	return nil, nil
}

// memStore is a hash store kept in a map.
type memStore struct {
	mockStore
	hashes map[string]map[string]string
}

func newMemStore() *memStore {
	s := &memStore{hashes: make(map[string]map[string]string)}
	s.hsetFn = func(_ context.Context, key string, fields map[string]string) error {
		s.hashes[key] = fields
		return nil
	}
	s.delFn = func(_ context.Context, key string) error {
		delete(s.hashes, key)
		return nil
	}
	s.hgetAllFn = func(_ context.Context, key string) (map[string]string, error) {
		return s.hashes[key], nil
	}
	s.scanFn = func(_ context.Context, _ string) ([]string, error) {
		keys := make([]string, 0, len(s.hashes))
		for k := range s.hashes {
			keys = append(keys, k)
		}
		return keys, nil
	}
	s.hgetAllMultiFn = func(_ context.Context, keys []string) ([]map[string]string, error) {
		out := make([]map[string]string, len(keys))
		for i, k := range keys {
			out[i] = s.hashes[k]
		}
		return out, nil
	}
	return s
}
