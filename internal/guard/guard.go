package guard

import (
	"context"
	"log/slog"
	"sync"

	"github.com/aussiebroadwan/loyalty/internal/tokenstore"
)

// Guard tracks the current view and re-evaluates it on every navigation and
// every session change. It is "checking" until the store has hydrated and
// makes no redirect decision while checking.
type Guard struct {
	rules Rules
	store *tokenstore.Store
	log   *slog.Logger

	// OnChange, when set, is told every time the resolved view changes
	OnChange func(ctx context.Context, res Result)

	mu       sync.Mutex
	path     string
	checking bool
	last     Result

	unsubscribe func()
}

func New(store *tokenstore.Store, rules Rules, log *slog.Logger) *Guard {
	if log == nil {
		log = slog.Default()
	}
	g := &Guard{
		rules:    rules,
		store:    store,
		log:      log,
		checking: !store.IsHydrated(),
	}
	g.unsubscribe = store.Subscribe(func(tokenstore.State) {
		g.reevaluate(context.Background())
	})
	return g
}

func (g *Guard) Close() {
	g.unsubscribe()
}

// Checking reports whether the guard is still waiting for hydration.
func (g *Guard) Checking() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.checking
}

// Path returns the view the guard currently resolves to.
func (g *Guard) Path() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.path
}

// Current returns the latest decision.
func (g *Guard) Current() Result {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.last
}

// Ready blocks until the store has hydrated, clears the checking flag and
// resolves the current path.
func (g *Guard) Ready(ctx context.Context) (Result, error) {
	select {
	case <-g.store.Hydrated():
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}

	g.mu.Lock()
	g.checking = false
	g.mu.Unlock()
	return g.reevaluate(ctx), nil
}

// Navigate moves to path. It satisfies the session Navigator.
func (g *Guard) Navigate(ctx context.Context, path string) {
	g.Resolve(ctx, path)
}

// Resolve moves to path and returns the decision. A redirect moves the guard
// to the target; redirects are never chained.
func (g *Guard) Resolve(ctx context.Context, path string) Result {
	g.mu.Lock()
	g.path = path
	g.mu.Unlock()
	return g.reevaluate(ctx)
}

func (g *Guard) reevaluate(ctx context.Context) Result {
	g.mu.Lock()
	st := g.store.Snapshot()
	in := Input{Path: g.path, User: st.User, Authed: st.IsAuthenticated(), Checking: g.checking}

	res := g.rules.Evaluate(in)
	if res.Decision == Redirect {
		if res.Target == in.Path {
			res = Result{Decision: Render, Path: in.Path}
		} else {
			g.path = res.Target
			landed := in
			landed.Path = res.Target
			if next := g.rules.Evaluate(landed); next.Decision == Redirect {
				g.log.Warn("redirect target redirects again, staying put", "from", in.Path, "to", res.Target, "next", next.Target)
			}
			g.log.Debug("redirecting", "from", in.Path, "to", res.Target)
		}
	}

	changed := res != g.last
	g.last = res
	onChange := g.OnChange
	g.mu.Unlock()

	if changed && onChange != nil {
		onChange(ctx, res)
	}
	return res
}
