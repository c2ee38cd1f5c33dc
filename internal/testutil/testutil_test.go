package testutil

import (
	"context"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/cartctx/internal/store"
)

func TestFakeClock_AdvanceAndSet(t *testing.T) {
	c := NewFakeClock()
	assert.Equal(t, DefaultEpoch, c.Now())

	c.Advance(2500 * time.Millisecond)
	assert.Equal(t, DefaultEpoch.Add(2500*time.Millisecond), c.Now())

	at := time.Date(2030, 5, 1, 0, 0, 0, 0, time.UTC)
	c.Set(at)
	assert.Equal(t, at, c.Now())
}

func TestFixedGenerator_ReturnsInOrderThenPanics(t *testing.T) {
	gen := NewFixedGenerator("a", "b")
	assert.Equal(t, "a", gen.Generate())
	assert.Equal(t, "b", gen.Generate())
	assert.Panics(t, func() { gen.Generate() })
}

func TestSequenceGenerator(t *testing.T) {
	gen := NewSequenceGenerator("sfx")
	assert.Equal(t, "sfx00001", gen.Generate())
	assert.Equal(t, "sfx00002", gen.Generate())
}

func TestFaultyKV_InjectsAndCounts(t *testing.T) {
	kv := NewFaultyKV(OpenStore(t))
	ctx := context.Background()

	require.NoError(t, kv.Commit(ctx, new(store.Batch).Set("k", "v")))
	assert.Equal(t, 1, kv.Commits())

	kv.FailCommits(true)
	assert.ErrorIs(t, kv.Commit(ctx, new(store.Batch).Set("k", "x")), ErrInjected)
	assert.Equal(t, 1, kv.Commits())

	kv.FailReads(true)
	_, _, err := kv.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrInjected)
	_, err = kv.GetMany(ctx, "k")
	assert.ErrorIs(t, err, ErrInjected)

	kv.FailReads(false)
	v, ok, err := kv.Get(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "v", v)
}

func TestFakeBackend_QueuesAndRecords(t *testing.T) {
	fb := NewFakeBackend(t)
	fb.On("GET /api/cart", Fail(http.StatusNotFound, "CART_NOT_FOUND", "gone"), OK(EmptyCartData()))

	resp, err := http.Get(fb.URL() + "/api/cart?sessionId=s1")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	for i := 0; i < 2; i++ {
		resp, err = http.Get(fb.URL() + "/api/cart")
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode, "last queued response repeats")
	}

	resp, err = http.Post(fb.URL()+"/api/cart/item", "application/json", strings.NewReader(`{"quantity":2}`))
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, 3, fb.Count("GET /api/cart"))
	last, ok := fb.Last("POST /api/cart/item")
	require.True(t, ok)
	assert.Equal(t, "2", last.BodyMap()["quantity"].(interface{ String() string }).String())

	first := fb.Requests()[0]
	assert.Equal(t, "s1", first.Query.Get("sessionId"))

	fb.Reset()
	assert.Empty(t, fb.Requests())
}
