package tokenstore_test

import (
	"context"
	"encoding/json"
	"path/filepath"
	"sync"
	"testing"

	"github.com/aussiebroadwan/loyalty/internal/tokenstore"
	"github.com/aussiebroadwan/loyalty/internal/tokenstore/drivers/memory"
	"github.com/aussiebroadwan/loyalty/internal/tokenstore/drivers/sqlite"
	"github.com/aussiebroadwan/loyalty/pkg/cryptox"
	"github.com/aussiebroadwan/loyalty/pkg/loyaltysdk"
	"github.com/aussiebroadwan/loyalty/pkg/slogx"
	"github.com/stretchr/testify/require"
)

func testUser() *loyaltysdk.UserProfile {
	return &loyaltysdk.UserProfile{ID: "u1", Email: "admin@loyalty.test", Status: loyaltysdk.UserStatusActive}
}

func newStore(t *testing.T, b tokenstore.Backend) *tokenstore.Store {
	t.Helper()
	s := tokenstore.New(b, slogx.Discard())
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestDerivedAuthentication(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := newStore(t, memory.New())

	require.False(t, s.IsAuthenticated())

	require.NoError(t, s.SetUser(ctx, testUser()))
	require.False(t, s.IsAuthenticated(), "user without token")

	require.NoError(t, s.SetToken(ctx, "access"))
	require.True(t, s.IsAuthenticated())

	require.NoError(t, s.SetToken(ctx, ""))
	require.False(t, s.IsAuthenticated())

	require.NoError(t, s.SetUser(ctx, nil))
	require.NoError(t, s.SetToken(ctx, "access"))
	require.False(t, s.IsAuthenticated(), "token without user")
}

func TestLoginLogout(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := newStore(t, memory.New())

	require.NoError(t, s.Login(ctx, testUser(), "access", "refresh"))
	st := s.Snapshot()
	require.True(t, st.IsAuthenticated())
	require.Equal(t, loyaltysdk.TokenPair{AccessToken: "access", RefreshToken: "refresh"}, st.Tokens())

	require.NoError(t, s.Logout(ctx))
	require.Equal(t, tokenstore.State{}, s.Snapshot())
}

func TestSetTokensKeepsRefreshWhenEmpty(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := newStore(t, memory.New())

	require.NoError(t, s.Login(ctx, testUser(), "a1", "r1"))
	require.NoError(t, s.SetTokens(ctx, loyaltysdk.TokenPair{AccessToken: "a2"}))
	require.Equal(t, "r1", s.Snapshot().RefreshToken)

	require.NoError(t, s.SetTokens(ctx, loyaltysdk.TokenPair{AccessToken: "a3", RefreshToken: "r3"}))
	require.Equal(t, loyaltysdk.TokenPair{AccessToken: "a3", RefreshToken: "r3"}, s.Snapshot().Tokens())
}

func TestPersistedRecordShape(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	b := memory.New()
	s := newStore(t, b)

	require.NoError(t, s.Login(ctx, testUser(), "access", "refresh"))

	raw, err := b.Load(ctx, tokenstore.StorageKey)
	require.NoError(t, err)

	var rec struct {
		State   map[string]any `json:"state"`
		Version int            `json:"version"`
	}
	require.NoError(t, json.Unmarshal(raw, &rec))
	require.Equal(t, "access", rec.State["token"])
	require.Equal(t, "refresh", rec.State["refreshToken"])
	require.Equal(t, true, rec.State["isAuthenticated"])
	require.NotNil(t, rec.State["user"])

	require.NoError(t, s.Logout(ctx))
	raw, err = b.Load(ctx, tokenstore.StorageKey)
	require.NoError(t, err)
	rec.State = nil
	require.NoError(t, json.Unmarshal(raw, &rec))
	require.Nil(t, rec.State["token"])
	require.Equal(t, false, rec.State["isAuthenticated"])
}

func TestClearAuthWipesRecord(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	b := memory.New()
	s := newStore(t, b)

	require.NoError(t, s.Login(ctx, testUser(), "access", "refresh"))
	require.NoError(t, s.ClearAuth(ctx))

	_, err := b.Load(ctx, tokenstore.StorageKey)
	require.ErrorIs(t, err, tokenstore.ErrNotFound)
	require.False(t, s.IsAuthenticated())
}

func TestHydrate(t *testing.T) {
	t.Parallel()

	t.Run("restores previous session", func(t *testing.T) {
		t.Parallel()
		ctx := context.Background()
		b := memory.New()

		first := tokenstore.New(b, slogx.Discard())
		require.NoError(t, first.Login(ctx, testUser(), "access", "refresh"))

		second := newStore(t, b)
		require.False(t, second.IsHydrated())
		require.NoError(t, second.Hydrate(ctx))
		require.True(t, second.IsHydrated())
		require.True(t, second.IsAuthenticated())
		require.Equal(t, "u1", second.Snapshot().User.ID)
	})

	t.Run("tampered flag is recomputed", func(t *testing.T) {
		t.Parallel()
		ctx := context.Background()
		b := memory.New()
		raw := []byte(`{"state":{"user":{"id":"u1","email":"a@b.c"},"token":null,"refreshToken":"r","isAuthenticated":true},"version":0}`)
		require.NoError(t, b.Save(ctx, tokenstore.StorageKey, raw))

		s := newStore(t, b)
		require.NoError(t, s.Hydrate(ctx))
		require.False(t, s.IsAuthenticated())
		require.Equal(t, "r", s.Snapshot().RefreshToken)
	})

	t.Run("missing record", func(t *testing.T) {
		t.Parallel()
		s := newStore(t, memory.New())
		require.NoError(t, s.Hydrate(context.Background()))
		require.True(t, s.IsHydrated())
		require.False(t, s.IsAuthenticated())
	})

	t.Run("corrupt record is discarded", func(t *testing.T) {
		t.Parallel()
		ctx := context.Background()
		b := memory.New()
		require.NoError(t, b.Save(ctx, tokenstore.StorageKey, []byte("{not json")))

		s := newStore(t, b)
		require.NoError(t, s.Hydrate(ctx))
		require.False(t, s.IsAuthenticated())

		_, err := b.Load(ctx, tokenstore.StorageKey)
		require.ErrorIs(t, err, tokenstore.ErrNotFound)
	})
}

func TestSubscribe(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := newStore(t, memory.New())

	var (
		mu   sync.Mutex
		seen []bool
	)
	unsubscribe := s.Subscribe(func(st tokenstore.State) {
		mu.Lock()
		seen = append(seen, st.IsAuthenticated())
		mu.Unlock()
	})

	require.NoError(t, s.Login(ctx, testUser(), "access", "refresh"))
	require.NoError(t, s.Logout(ctx))
	unsubscribe()
	require.NoError(t, s.SetToken(ctx, "ignored"))

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, []bool{true, false}, seen)
}

func TestSealedBackend(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	inner := memory.New()

	sealer, err := cryptox.NewSealer("correct horse battery staple")
	require.NoError(t, err)

	s := newStore(t, tokenstore.Seal(inner, sealer))
	require.NoError(t, s.Login(ctx, testUser(), "access-token-value", "refresh"))

	raw, err := inner.Load(ctx, tokenstore.StorageKey)
	require.NoError(t, err)
	require.NotContains(t, string(raw), "access-token-value")

	restored := newStore(t, tokenstore.Seal(inner, sealer))
	require.NoError(t, restored.Hydrate(ctx))
	require.True(t, restored.IsAuthenticated())

	other, err := cryptox.NewSealer("a different passphrase")
	require.NoError(t, err)
	wrongKey := newStore(t, tokenstore.Seal(inner, other))
	require.NoError(t, wrongKey.Hydrate(ctx))
	require.False(t, wrongKey.IsAuthenticated())
}

func TestSQLiteBackend(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	dsn := filepath.Join(t.TempDir(), "session.db")

	db, err := sqlite.Open(dsn)
	require.NoError(t, err)
	require.NoError(t, db.Ping(ctx))

	_, err = db.Load(ctx, tokenstore.StorageKey)
	require.ErrorIs(t, err, tokenstore.ErrNotFound)

	s := tokenstore.New(db, slogx.Discard())
	require.NoError(t, s.Login(ctx, testUser(), "access", "refresh"))
	require.NoError(t, s.SetToken(ctx, "access-2"))

	at, err := db.UpdatedAt(ctx, tokenstore.StorageKey)
	require.NoError(t, err)
	require.False(t, at.IsZero())
	require.NoError(t, s.Close())

	reopened, err := sqlite.Open(dsn)
	require.NoError(t, err)
	restored := newStore(t, reopened)
	require.NoError(t, restored.Hydrate(ctx))
	require.Equal(t, "access-2", restored.Snapshot().AccessToken)

	require.NoError(t, restored.ClearAuth(ctx))
	_, err = reopened.Load(ctx, tokenstore.StorageKey)
	require.ErrorIs(t, err, tokenstore.ErrNotFound)
}
