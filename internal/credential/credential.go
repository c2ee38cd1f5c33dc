// Package credential adapts the externally owned access/refresh token keys.
//
// The session layer only needs a presence check, the raw access token for the
// Authorization header, and the ability to clear both tokens after a 401.
package credential

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/roach88/cartctx/internal/store"
)

// Tokens reads and clears the two token keys.
type Tokens struct {
	kv     store.KV
	logger *slog.Logger
}

// New creates a Tokens adapter over kv. A nil logger uses slog.Default().
func New(kv store.KV, logger *slog.Logger) *Tokens {
	if logger == nil {
		logger = slog.Default()
	}
	return &Tokens{kv: kv, logger: logger}
}

// AccessToken returns the stored access token. Storage faults read as absent.
func (t *Tokens) AccessToken(ctx context.Context) (string, bool) {
	v, ok, err := t.kv.Get(ctx, store.KeyAccessToken)
	if err != nil {
		t.logger.Warn("access token read failed", "error", err)
		return "", false
	}
	return v, ok && v != ""
}

// IsAuthenticated reports whether an access token is present.
// Freshness is not checked here.
func (t *Tokens) IsAuthenticated(ctx context.Context) bool {
	_, ok := t.AccessToken(ctx)
	return ok
}

// Set stores both tokens. An empty refresh token removes the key.
func (t *Tokens) Set(ctx context.Context, access, refresh string) error {
	b := new(store.Batch).Set(store.KeyAccessToken, access)
	if refresh == "" {
		b.Delete(store.KeyRefreshToken)
	} else {
		b.Set(store.KeyRefreshToken, refresh)
	}
	if err := t.kv.Commit(ctx, b); err != nil {
		return fmt.Errorf("set tokens: %w", err)
	}
	return nil
}

// Clear removes both tokens in one commit.
func (t *Tokens) Clear(ctx context.Context) error {
	if err := t.kv.Commit(ctx, new(store.Batch).Delete(store.KeyAccessToken, store.KeyRefreshToken)); err != nil {
		return fmt.Errorf("clear tokens: %w", err)
	}
	return nil
}
