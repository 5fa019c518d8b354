package main

import (
	"context"
	"time"

	"github.com/pawsitive/pawsync/internal/config"
	"github.com/pawsitive/pawsync/internal/gateway"
	"github.com/pawsitive/pawsync/internal/gateway/memgw"
	"github.com/pawsitive/pawsync/internal/gateway/remote"
	"github.com/pawsitive/pawsync/internal/lobby"
	"github.com/pawsitive/pawsync/internal/store"
	"github.com/pawsitive/pawsync/internal/sync"
)

// loadTimeout bounds the wait for a session's first snapshot.
const loadTimeout = 15 * time.Second

// openGateway connects to the configured store. watch enables the sqlite
// change feed for long-running commands. Exits on failure.
func openGateway(watch bool) (gateway.Gateway, func()) {
	if err := cfg.CheckStore(); err != nil {
		fatal("%w", err)
	}
	switch cfg.Store.Driver {
	case config.DriverSQLite:
		st, err := store.Open(cfg.Store.Path, &store.Config{
			Watch:         watch,
			WatchDebounce: cfg.Sync.WatchDebounce,
			Logger:        logs.New("store"),
		})
		if err != nil {
			fatal("failed to open store: %w", err)
		}
		return st, func() { _ = st.Close() }
	case config.DriverRemote:
		c, err := remote.New(cfg.Store.URL, &remote.Config{
			Token:     cfg.Store.Token,
			Reconnect: true,
			Logger:    logs.New("remote"),
		})
		if err != nil {
			fatal("%w", err)
		}
		return c, func() {}
	default:
		return memgw.New(), func() {}
	}
}

func newLobby(gw gateway.Gateway) *lobby.Lobby {
	return lobby.New(gw, nil, &lobby.Config{Logger: logs.New("lobby")})
}

// mountEngine starts a sync engine on id and waits for the session to
// load. Exits when the session cannot be loaded.
func mountEngine(ctx context.Context, gw gateway.Gateway, id string) *sync.Engine {
	e := sync.New(gw, lobby.NormalizeCode(id), &sync.Config{
		Debounce:       cfg.Sync.Debounce,
		NoticeDuration: cfg.Sync.Notice,
		Logger:         logs.New("sync"),
	})
	if err := e.Start(ctx); err != nil {
		fatal("%w", err)
	}
	wctx, cancel := context.WithTimeout(ctx, loadTimeout)
	defer cancel()
	if err := e.WaitLoaded(wctx); err != nil {
		_ = e.Close()
		if gateway.IsNotFound(err) {
			fatal("session %s not found", e.ID())
		}
		fatal("failed to load session %s: %w", e.ID(), err)
	}
	return e
}

// finish flushes pending edits and closes the engine.
func finish(ctx context.Context, e *sync.Engine) {
	err := e.Flush(ctx)
	_ = e.Close()
	if err != nil {
		fatal("failed to save session %s: %w", e.ID(), err)
	}
}
