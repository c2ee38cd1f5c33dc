package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGet_MissingKey(t *testing.T) {
	s := createTestStore(t)

	v, ok, err := s.Get(context.Background(), KeySessionID)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Empty(t, v)
}

func TestCommit_SetsAndOverwrites(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Commit(ctx, new(Batch).Set(KeySessionID, "a").Set(KeyLoginType, "individual")))
	require.NoError(t, s.Commit(ctx, new(Batch).Set(KeySessionID, "b")))

	v, ok, err := s.Get(ctx, KeySessionID)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "b", v)

	lt, ok, err := s.Get(ctx, KeyLoginType)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "individual", lt)
}

func TestCommit_DeletesAndEmptyValues(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Commit(ctx, new(Batch).
		Set(KeyOriginalSessionID, "").
		Set(KeyNotificationCartID, "cart123")))

	// Empty string is a stored value, not absence.
	v, ok, err := s.Get(ctx, KeyOriginalSessionID)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "", v)

	require.NoError(t, s.Commit(ctx, new(Batch).Delete(NotificationKeys...)))

	got, err := s.GetMany(ctx, NotificationKeys...)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestCommit_EmptyBatchIsNoop(t *testing.T) {
	s := createTestStore(t)
	require.NoError(t, s.Commit(context.Background(), nil))
	require.NoError(t, s.Commit(context.Background(), &Batch{}))
}

func TestCommit_RollsBackOnCancelledContext(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.Commit(ctx, new(Batch).Set(KeySessionID, "keep")))

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	err := s.Commit(cancelled, new(Batch).Set(KeySessionID, "lost").Set(KeyLoginType, "business"))
	require.Error(t, err)

	v, _, err := s.Get(ctx, KeySessionID)
	require.NoError(t, err)
	assert.Equal(t, "keep", v)
	_, ok, err := s.Get(ctx, KeyLoginType)
	require.NoError(t, err)
	assert.False(t, ok, "partial batch must not be visible")
}

func TestGetMany_OmitsAbsent(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.Commit(ctx, new(Batch).Set(KeySessionIndividual, "sid1")))

	got, err := s.GetMany(ctx, KeySessionIndividual, KeySessionBusiness)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{KeySessionIndividual: "sid1"}, got)

	empty, err := s.GetMany(ctx)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestBatch_LaterOpWins(t *testing.T) {
	b := new(Batch).Set("k", "1").Delete("k").Set("k", "2")
	assert.Equal(t, 1, b.Len())

	v, deleted, ok := b.Value("k")
	assert.True(t, ok)
	assert.False(t, deleted)
	assert.Equal(t, "2", v)

	b.Delete("k")
	_, deleted, _ = b.Value("k")
	assert.True(t, deleted)
}

func TestBatch_Merge(t *testing.T) {
	a := new(Batch).Set("x", "1").Set("y", "1")
	b := new(Batch).Set("y", "2").Delete("z")
	a.Merge(b).Merge(nil)

	assert.Equal(t, []string{"x", "y", "z"}, a.Keys())
	v, _, _ := a.Value("y")
	assert.Equal(t, "2", v)
}

func TestDump(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.Commit(ctx, new(Batch).Set("a", "1").Set("b", "2")))

	all, err := s.Dump(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"a": "1", "b": "2"}, all)
}

func TestSessionKeyFor(t *testing.T) {
	assert.Equal(t, KeySessionIndividual, SessionKeyFor("individual"))
	assert.Equal(t, KeySessionBusiness, SessionKeyFor("business"))
}
