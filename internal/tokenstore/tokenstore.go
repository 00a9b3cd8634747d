// Package tokenstore holds the persisted session: the authenticated user and
// the access/refresh token pair. Every change is written to a Backend and
// published to subscribers.
package tokenstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/aussiebroadwan/loyalty/pkg/loyaltysdk"
)

// State is an immutable snapshot of the session.
type State struct {
	User         *loyaltysdk.UserProfile
	AccessToken  string
	RefreshToken string
}

// IsAuthenticated is derived: a user and an access token are both present.
func (s State) IsAuthenticated() bool {
	return s.User != nil && s.AccessToken != ""
}

// Tokens returns the token pair held in s.
func (s State) Tokens() loyaltysdk.TokenPair {
	return loyaltysdk.TokenPair{AccessToken: s.AccessToken, RefreshToken: s.RefreshToken}
}

// Store is the single source of truth for the session.
//
// Writers are serialised: each mutation updates memory, persists, then
// notifies subscribers before the next mutation starts. Subscribers must not
// mutate the store from inside their callback.
type Store struct {
	backend Backend
	log     *slog.Logger

	wmu   sync.Mutex // serialises writers
	mu    sync.RWMutex
	state State

	subMu   sync.Mutex
	subs    map[int]func(State)
	nextSub int

	hydrateOnce sync.Once
	hydrated    chan struct{}
}

func New(backend Backend, log *slog.Logger) *Store {
	if log == nil {
		log = slog.Default()
	}
	return &Store{
		backend:  backend,
		log:      log,
		subs:     make(map[int]func(State)),
		hydrated: make(chan struct{}),
	}
}

// Snapshot returns the current state.
func (s *Store) Snapshot() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// IsAuthenticated is shorthand for Snapshot().IsAuthenticated().
func (s *Store) IsAuthenticated() bool {
	return s.Snapshot().IsAuthenticated()
}

// Subscribe registers fn to receive every new state. It returns a function
// that removes the subscription.
func (s *Store) Subscribe(fn func(State)) (unsubscribe func()) {
	s.subMu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	s.subMu.Unlock()

	return func() {
		s.subMu.Lock()
		delete(s.subs, id)
		s.subMu.Unlock()
	}
}

// Hydrated is closed once Hydrate has finished, successfully or not.
func (s *Store) Hydrated() <-chan struct{} {
	return s.hydrated
}

// IsHydrated reports whether Hydrate has finished.
func (s *Store) IsHydrated() bool {
	select {
	case <-s.hydrated:
		return true
	default:
		return false
	}
}

// Hydrate loads the persisted session. The persisted authenticated flag is
// ignored and recomputed. An unreadable record is discarded and the store
// starts empty.
func (s *Store) Hydrate(ctx context.Context) error {
	defer s.hydrateOnce.Do(func() { close(s.hydrated) })

	raw, err := s.backend.Load(ctx, StorageKey)
	if errors.Is(err, ErrNotFound) {
		return nil
	}

	var st State
	if err == nil {
		st, err = decodeState(raw)
	}
	if errors.Is(err, ErrCorrupt) {
		s.log.Warn("discarding unreadable persisted session", "err", err)
		if derr := s.backend.Delete(ctx, StorageKey); derr != nil {
			return fmt.Errorf("failed to discard persisted session: %w", derr)
		}
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to load persisted session: %w", err)
	}

	s.wmu.Lock()
	defer s.wmu.Unlock()
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()

	s.log.Debug("session rehydrated", "authenticated", st.IsAuthenticated())
	s.publish(st)
	return nil
}

// SetUser replaces the user.
func (s *Store) SetUser(ctx context.Context, user *loyaltysdk.UserProfile) error {
	return s.update(ctx, func(st *State) { st.User = user })
}

// SetToken replaces the access token.
func (s *Store) SetToken(ctx context.Context, token string) error {
	return s.update(ctx, func(st *State) { st.AccessToken = token })
}

// SetRefreshToken replaces the refresh token.
func (s *Store) SetRefreshToken(ctx context.Context, token string) error {
	return s.update(ctx, func(st *State) { st.RefreshToken = token })
}

// SetTokens replaces both tokens in one transition. An empty refresh token
// keeps the current one.
func (s *Store) SetTokens(ctx context.Context, pair loyaltysdk.TokenPair) error {
	return s.update(ctx, func(st *State) {
		st.AccessToken = pair.AccessToken
		if pair.RefreshToken != "" {
			st.RefreshToken = pair.RefreshToken
		}
	})
}

// Login moves to a fully authenticated state in one transition.
func (s *Store) Login(ctx context.Context, user *loyaltysdk.UserProfile, accessToken, refreshToken string) error {
	return s.update(ctx, func(st *State) {
		*st = State{User: user, AccessToken: accessToken, RefreshToken: refreshToken}
	})
}

// Logout moves to the empty state and persists it.
func (s *Store) Logout(ctx context.Context) error {
	return s.update(ctx, func(st *State) { *st = State{} })
}

// ClearAuth moves to the empty state and deletes the persisted record.
func (s *Store) ClearAuth(ctx context.Context) error {
	s.wmu.Lock()
	defer s.wmu.Unlock()

	s.mu.Lock()
	s.state = State{}
	s.mu.Unlock()

	err := s.backend.Delete(ctx, StorageKey)
	if err != nil {
		s.log.Error("failed to wipe persisted session", "err", err)
		err = fmt.Errorf("failed to wipe persisted session: %w", err)
	}
	s.publish(State{})
	return err
}

// Close releases the backend.
func (s *Store) Close() error {
	return s.backend.Close()
}

func (s *Store) update(ctx context.Context, mutate func(*State)) error {
	s.wmu.Lock()
	defer s.wmu.Unlock()

	s.mu.Lock()
	next := s.state
	mutate(&next)
	s.state = next
	s.mu.Unlock()

	err := s.persist(ctx, next)
	s.publish(next)
	return err
}

func (s *Store) persist(ctx context.Context, st State) error {
	raw, err := encodeState(st)
	if err != nil {
		return fmt.Errorf("failed to encode session: %w", err)
	}
	if err := s.backend.Save(ctx, StorageKey, raw); err != nil {
		s.log.Error("failed to persist session", "err", err)
		return fmt.Errorf("failed to persist session: %w", err)
	}
	return nil
}

func (s *Store) publish(st State) {
	s.subMu.Lock()
	fns := make([]func(State), 0, len(s.subs))
	for _, fn := range s.subs {
		fns = append(fns, fn)
	}
	s.subMu.Unlock()

	for _, fn := range fns {
		fn(st)
	}
}
