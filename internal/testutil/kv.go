package testutil

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"github.com/roach88/cartctx/internal/store"
)

// ErrInjected is returned by FaultyKV when a fault is armed.
var ErrInjected = errors.New("injected storage fault")

// OpenStore opens a temp-dir SQLite store closed at test cleanup.
func OpenStore(t testing.TB) *store.Store {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "cartctx.db"))
	if err != nil {
		t.Fatalf("store.Open() failed: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}

// FaultyKV wraps a store.KV and fails reads and/or commits on demand.
// It also counts commits so tests can assert on grouped writes.
type FaultyKV struct {
	inner store.KV

	mu          sync.Mutex
	failReads   bool
	failCommits bool
	commits     int
}

// NewFaultyKV wraps inner with no faults armed.
func NewFaultyKV(inner store.KV) *FaultyKV {
	return &FaultyKV{inner: inner}
}

// FailReads arms or disarms read faults.
func (f *FaultyKV) FailReads(on bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failReads = on
}

// FailCommits arms or disarms commit faults.
func (f *FaultyKV) FailCommits(on bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failCommits = on
}

// Commits returns the number of successful commits.
func (f *FaultyKV) Commits() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.commits
}

func (f *FaultyKV) Get(ctx context.Context, key string) (string, bool, error) {
	f.mu.Lock()
	fail := f.failReads
	f.mu.Unlock()
	if fail {
		return "", false, ErrInjected
	}
	return f.inner.Get(ctx, key)
}

func (f *FaultyKV) GetMany(ctx context.Context, keys ...string) (map[string]string, error) {
	f.mu.Lock()
	fail := f.failReads
	f.mu.Unlock()
	if fail {
		return nil, ErrInjected
	}
	return f.inner.GetMany(ctx, keys...)
}

func (f *FaultyKV) Commit(ctx context.Context, b *store.Batch) error {
	f.mu.Lock()
	fail := f.failCommits
	f.mu.Unlock()
	if fail {
		return ErrInjected
	}
	if err := f.inner.Commit(ctx, b); err != nil {
		return err
	}
	f.mu.Lock()
	f.commits++
	f.mu.Unlock()
	return nil
}
