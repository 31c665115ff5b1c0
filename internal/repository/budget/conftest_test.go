package budget

import (
	"context"
	"testing"

	"github.com/dgraph-io/badger/v4"
)

// mockStore implements the consumer interface for tests.
type mockStore struct {
	pingFn    func(ctx context.Context) error
	hsetFn    func(ctx context.Context, key string, fields map[string]string) error
	hgetAllFn func(ctx context.Context, key string) (map[string]string, error)
	delFn     func(ctx context.Context, key string) error
	evalFn    func(ctx context.Context, script string, keys, args []string) ([]string, error)
}

func (m *mockStore) Ping(ctx context.Context) error {
	if m.pingFn != nil {
		return m.pingFn(ctx)
	}
	return nil
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

func (m *mockStore) Del(ctx context.Context, key string) error {
	if m.delFn != nil {
		return m.delFn(ctx, key)
	}
	return nil
}

func (m *mockStore) Eval(ctx context.Context, script string, keys, args []string) ([]string, error) {
	if m.evalFn != nil {
		return m.evalFn(ctx, script, keys, args)
	}
	return nil, nil
}

func newTestKVStore(t *testing.T) (*KVStore, *mockStore) {
	t.Helper()
	ms := &mockStore{}
	return NewKVStore(ms, "tokgov:"), ms
}

func newTestBadgerStore(t *testing.T) *BadgerStore {
	t.Helper()
	db, err := badger.Open(badger.DefaultOptions("").WithInMemory(true).WithLogger(nil))
	if err != nil {
		t.Fatalf("open badger: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return NewBadgerStore(db, "")
}
