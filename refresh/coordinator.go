// Package refresh serializes refresh-token exchanges. However many requests
// fail authorization at the same instant, at most one exchange is in flight
// system-wide; everyone else waits for its outcome.
package refresh

import (
	"context"
	"sync"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/paystream/go-session-client/api"
	interrors "github.com/paystream/go-session-client/internal/errors"
	"github.com/paystream/go-session-client/tokenstore"
)

// Exchanger performs the refresh-token exchange against the backend.
type Exchanger interface {
	Exchange(ctx context.Context, refreshToken string) (*api.RefreshResponse, error)
}

// ExchangerFunc adapts a function to the Exchanger interface.
type ExchangerFunc func(ctx context.Context, refreshToken string) (*api.RefreshResponse, error)

func (f ExchangerFunc) Exchange(ctx context.Context, refreshToken string) (*api.RefreshResponse, error) {
	return f(ctx, refreshToken)
}

// Coordinator guards the refresh exchange with a single-flight lock. Callers
// whose requests failed authorization call Authorize and block until a fresh
// access token is in the store, or until refreshing is known to be
// impossible.
type Coordinator struct {
	store     tokenstore.Store
	exchanger Exchanger
	logger    zerolog.Logger

	lock     sync.Mutex
	inFlight bool
	waiters  []chan error
	stopped  bool
}

// NewCoordinator wires the coordinator to the token store it updates and the
// exchanger that talks to the backend.
func NewCoordinator(store tokenstore.Store, exchanger Exchanger, logger zerolog.Logger) (*Coordinator, error) {
	if store == nil {
		return nil, errors.New("[NewCoordinator] store is required")
	}
	if exchanger == nil {
		return nil, errors.New("[NewCoordinator] exchanger is required")
	}
	return &Coordinator{
		store:     store,
		exchanger: exchanger,
		logger:    logger.With().Str("component", "refresh").Logger(),
	}, nil
}

// Authorize blocks until a refresh exchange completes and returns its
// outcome. If an exchange is already in flight the caller joins its waiter
// queue instead of issuing another one; waiters are released in arrival
// order. On success the new access token is in the store before any waiter
// is released. On failure the store is cleared before any waiter is
// rejected, so no caller can observe a stale valid-looking token.
func (c *Coordinator) Authorize(ctx context.Context) error {
	c.lock.Lock()
	if c.stopped {
		c.lock.Unlock()
		return interrors.ErrNoSession
	}

	if c.inFlight {
		waiter := make(chan error, 1)
		c.waiters = append(c.waiters, waiter)
		c.lock.Unlock()

		select {
		case err := <-waiter:
			return err
		case <-ctx.Done():
			// The waiter channel is buffered, so the eventual release
			// cannot block on an abandoned caller.
			return ctx.Err()
		}
	}

	c.inFlight = true
	c.lock.Unlock()

	err := c.exchange(ctx)
	c.release(err)
	return err
}

// Pending reports how many callers are queued behind the in-flight exchange.
func (c *Coordinator) Pending() int {
	c.lock.Lock()
	defer c.lock.Unlock()
	return len(c.waiters)
}

// Stop prevents new callers from queueing. An in-flight exchange still runs
// to completion and its queued waiters are honored.
func (c *Coordinator) Stop() {
	c.lock.Lock()
	defer c.lock.Unlock()
	c.stopped = true
}

// exchange performs exactly one refresh-token exchange and updates the store
// before returning.
func (c *Coordinator) exchange(ctx context.Context) error {
	state, err := c.store.Load()
	if err != nil || state.RefreshToken == "" {
		_ = c.store.Clear()
		return interrors.ErrNoRefreshToken
	}

	response, err := c.exchanger.Exchange(ctx, state.RefreshToken)
	if err != nil {
		_ = c.store.Clear()
		c.logger.Warn().Err(err).Msg("refresh exchange failed")
		return interrors.Wrapf(interrors.ErrRefreshFailed, "%v", err)
	}

	state.AccessToken = response.AccessToken
	if response.RefreshToken != nil {
		// The backend rotated the refresh token.
		state.RefreshToken = *response.RefreshToken
	}
	if err := c.store.Save(state); err != nil {
		c.logger.Warn().Err(err).Msg("refreshed tokens not persisted")
	}

	c.logger.Debug().Msg("access token refreshed")
	return nil
}

// release clears the single-flight lock and fans the outcome out to every
// waiter in FIFO arrival order. The lock and the waiter list are cleared
// together.
func (c *Coordinator) release(err error) {
	c.lock.Lock()
	waiters := c.waiters
	c.waiters = nil
	c.inFlight = false
	c.lock.Unlock()

	for _, waiter := range waiters {
		waiter <- err
	}
}
