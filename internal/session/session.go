// Package session resolves, creates and persists the anonymous session
// identifier each account mode's cart belongs to.
//
// Every operation is best-effort: a storage fault degrades to "no session"
// (logged) rather than failing, because the cart must stay usable when
// local persistence misbehaves.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/roach88/cartctx/internal/clock"
	"github.com/roach88/cartctx/internal/fault"
	"github.com/roach88/cartctx/internal/model"
	"github.com/roach88/cartctx/internal/store"
)

// TokenReader is the slice of the credential store the session layer reads.
type TokenReader interface {
	IsAuthenticated(ctx context.Context) bool
}

// SuffixGenerator produces the random tail of a session id.
type SuffixGenerator interface {
	Generate() string
}

// Store resolves the current session identity.
type Store struct {
	kv     store.KV
	tokens TokenReader
	stamp  *clock.Monotonic
	suffix SuffixGenerator
	logger *slog.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithClock sets the clock used for id timestamps.
func WithClock(c clock.Clock) Option {
	return func(s *Store) { s.stamp = clock.NewMonotonic(c) }
}

// WithSuffixGenerator overrides the random id suffix source.
func WithSuffixGenerator(g SuffixGenerator) Option {
	return func(s *Store) { s.suffix = g }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// New creates a Store over kv. tokens supplies the authenticated signal.
func New(kv store.KV, tokens TokenReader, opts ...Option) *Store {
	s := &Store{
		kv:     kv,
		tokens: tokens,
		stamp:  clock.NewMonotonic(nil),
		suffix: uuidSuffix{},
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ResolveLoginType returns the persisted mode, or individual. Never fails.
func (s *Store) ResolveLoginType(ctx context.Context) model.LoginType {
	v, ok, err := s.kv.Get(ctx, store.KeyLoginType)
	if err != nil {
		s.logger.Warn("login type read failed, using default", "error", err)
		return model.DefaultLoginType
	}
	if !ok {
		return model.DefaultLoginType
	}
	lt, valid := model.ParseLoginType(v)
	if !valid {
		return model.DefaultLoginType
	}
	return lt
}

// SetLoginType persists the mode preference. An unknown mode is a validation
// error; a failed write is a storage fault.
func (s *Store) SetLoginType(ctx context.Context, lt model.LoginType) error {
	if !lt.Valid() {
		return fault.Validation("session.set_login_type", fmt.Sprintf("unknown login type %q", lt))
	}
	if err := s.kv.Commit(ctx, new(store.Batch).Set(store.KeyLoginType, lt.String())); err != nil {
		return fault.Storage("session.set_login_type", err)
	}
	return nil
}

// GetOrCreateSessionID returns the session id for lt, creating one if none
// exists or forceNew is set. An empty lt resolves the persisted mode.
//
// A new id is persisted under both the mode-scoped key and the generic
// "sessionId" key in one commit. If storage is unavailable ok is false and
// the caller must treat this call as having no session.
func (s *Store) GetOrCreateSessionID(ctx context.Context, lt model.LoginType, forceNew bool) (id string, ok bool) {
	if !lt.Valid() {
		lt = s.ResolveLoginType(ctx)
	}

	if !forceNew {
		existing, found, err := s.kv.Get(ctx, store.SessionKeyFor(lt.String()))
		if err != nil {
			s.logger.Warn("session read failed", "login_type", lt, "error", err)
			return "", false
		}
		if found && existing != "" {
			return existing, true
		}
	}

	id = s.NewSessionID(lt)
	if err := s.kv.Commit(ctx, s.CurrentBatch(lt, id)); err != nil {
		s.logger.Warn("session persist failed", "login_type", lt, "error", err)
		return "", false
	}

	s.logger.Debug("session created", "login_type", lt, "session_id", id, "forced", forceNew)
	return id, true
}

// CurrentSessionID looks up the session id for the resolved mode.
// It never creates one.
func (s *Store) CurrentSessionID(ctx context.Context) (string, bool) {
	lt := s.ResolveLoginType(ctx)
	v, ok, err := s.kv.Get(ctx, store.SessionKeyFor(lt.String()))
	if err != nil {
		s.logger.Warn("session read failed", "login_type", lt, "error", err)
		return "", false
	}
	return v, ok && v != ""
}

// SetCurrentSessionID overwrites the mode-scoped and generic keys for the
// resolved mode. Only the notification overlay moves the pointer this way.
func (s *Store) SetCurrentSessionID(ctx context.Context, id string) error {
	lt := s.ResolveLoginType(ctx)
	if err := s.kv.Commit(ctx, s.CurrentBatch(lt, id)); err != nil {
		return fmt.Errorf("set current session: %w", err)
	}
	return nil
}

// CurrentBatch stages the current-pointer writes for (lt, id). Callers may
// merge it into a larger grouped commit.
func (s *Store) CurrentBatch(lt model.LoginType, id string) *store.Batch {
	return new(store.Batch).
		Set(store.SessionKeyFor(lt.String()), id).
		Set(store.KeySessionID, id)
}

// NewSessionID mints "sid_<loginType>_<unix-millis>_<alnum8>". Ids are not
// globally unique; the backend deduplicates.
func (s *Store) NewSessionID(lt model.LoginType) string {
	return fmt.Sprintf("sid_%s_%d_%s", lt, s.stamp.Next(), s.suffix.Generate())
}

// Identity composes the descriptor sent with every cart request.
// A guest always gets a session id unless storage is down.
func (s *Store) Identity(ctx context.Context) model.SessionIdentity {
	lt := s.ResolveLoginType(ctx)
	id, _ := s.GetOrCreateSessionID(ctx, lt, false)
	return model.SessionIdentity{
		LoginType:       lt,
		SessionID:       id,
		IsAuthenticated: s.tokens != nil && s.tokens.IsAuthenticated(ctx),
	}
}

// SelectedAddressID returns the delivery address chosen by the user, or "".
func (s *Store) SelectedAddressID(ctx context.Context) string {
	v, _, err := s.kv.Get(ctx, store.KeySelectedAddressID)
	if err != nil {
		s.logger.Warn("address read failed", "error", err)
		return ""
	}
	return v
}

// SetSelectedAddressID stores the chosen address. Empty clears it.
func (s *Store) SetSelectedAddressID(ctx context.Context, id string) error {
	b := new(store.Batch)
	if id = strings.TrimSpace(id); id == "" {
		b.Delete(store.KeySelectedAddressID)
	} else {
		b.Set(store.KeySelectedAddressID, id)
	}
	if err := s.kv.Commit(ctx, b); err != nil {
		return fmt.Errorf("set selected address: %w", err)
	}
	return nil
}

// uuidSuffix takes eight alphanumeric characters from a random UUID.
type uuidSuffix struct{}

func (uuidSuffix) Generate() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}
