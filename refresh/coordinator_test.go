package refresh_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/paystream/go-session-client/api"
	interrors "github.com/paystream/go-session-client/internal/errors"
	"github.com/paystream/go-session-client/internal/utils"
	"github.com/paystream/go-session-client/refresh"
	"github.com/paystream/go-session-client/tokenstore"
)

const (
	oldAccessToken  = "access-old"
	newAccessToken  = "access-new"
	testRefreshTok  = "refresh-1"
	rotatedRefresh  = "refresh-2"
	concurrentCalls = 8
)

// gatedExchanger blocks every exchange until released, counting calls.
type gatedExchanger struct {
	gate     chan struct{}
	calls    atomic.Int32
	rotate   bool
	fail     bool
	failWith error
}

func newGatedExchanger() *gatedExchanger {
	return &gatedExchanger{gate: make(chan struct{})}
}

func (e *gatedExchanger) Exchange(ctx context.Context, refreshToken string) (*api.RefreshResponse, error) {
	e.calls.Add(1)
	<-e.gate
	if e.fail {
		return nil, e.failWith
	}
	response := &api.RefreshResponse{AccessToken: newAccessToken}
	if e.rotate {
		response.RefreshToken = utils.Ptr(rotatedRefresh)
	}
	return response, nil
}

func seededStore(t *testing.T) tokenstore.Store {
	t.Helper()
	store := tokenstore.NewMemoryStore()
	require.NoError(t, store.Save(&tokenstore.State{
		AccessToken:  oldAccessToken,
		RefreshToken: testRefreshTok,
	}))
	return store
}

func newCoordinator(t *testing.T, store tokenstore.Store, exchanger refresh.Exchanger) *refresh.Coordinator {
	t.Helper()
	coordinator, err := refresh.NewCoordinator(store, exchanger, zerolog.Nop())
	require.NoError(t, err)
	return coordinator
}

func TestAuthorize_SingleFlight(t *testing.T) {
	store := seededStore(t)
	exchanger := newGatedExchanger()
	coordinator := newCoordinator(t, store, exchanger)

	var wg sync.WaitGroup
	observed := make([]string, concurrentCalls)
	errs := make([]error, concurrentCalls)
	for i := 0; i < concurrentCalls; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = coordinator.Authorize(context.Background())
			state, _ := store.Load()
			observed[i] = state.AccessToken
		}(i)
	}

	// Wait until one caller is inside the exchange and the rest are queued
	// as waiters, then release the exchange.
	require.Eventually(t, func() bool {
		return exchanger.calls.Load() == 1 && coordinator.Pending() == concurrentCalls-1
	}, time.Second, time.Millisecond)
	close(exchanger.gate)
	wg.Wait()

	require.EqualValues(t, 1, exchanger.calls.Load(), "exactly one exchange for N concurrent callers")
	for i := 0; i < concurrentCalls; i++ {
		require.NoError(t, errs[i])
		require.Equal(t, newAccessToken, observed[i], "token written before waiter %d released", i)
	}
}

func TestAuthorize_RotatesRefreshToken(t *testing.T) {
	store := seededStore(t)
	exchanger := newGatedExchanger()
	exchanger.rotate = true
	close(exchanger.gate)
	coordinator := newCoordinator(t, store, exchanger)

	require.NoError(t, coordinator.Authorize(context.Background()))

	state, err := store.Load()
	require.NoError(t, err)
	require.Equal(t, newAccessToken, state.AccessToken)
	require.Equal(t, rotatedRefresh, state.RefreshToken)
}

func TestAuthorize_KeepsRefreshTokenWithoutRotation(t *testing.T) {
	store := seededStore(t)
	exchanger := newGatedExchanger()
	close(exchanger.gate)
	coordinator := newCoordinator(t, store, exchanger)

	require.NoError(t, coordinator.Authorize(context.Background()))

	state, err := store.Load()
	require.NoError(t, err)
	require.Equal(t, testRefreshTok, state.RefreshToken)
}

func TestAuthorize_FailureClearsStoreBeforeRejecting(t *testing.T) {
	store := seededStore(t)
	exchanger := newGatedExchanger()
	exchanger.fail = true
	exchanger.failWith = interrors.ErrUnauthorized
	coordinator := newCoordinator(t, store, exchanger)

	var wg sync.WaitGroup
	stale := make([]bool, concurrentCalls)
	errs := make([]error, concurrentCalls)
	for i := 0; i < concurrentCalls; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = coordinator.Authorize(context.Background())
			state, _ := store.Load()
			stale[i] = state.HasTokens()
		}(i)
	}

	require.Eventually(t, func() bool {
		return exchanger.calls.Load() == 1 && coordinator.Pending() == concurrentCalls-1
	}, time.Second, time.Millisecond)
	close(exchanger.gate)
	wg.Wait()

	require.EqualValues(t, 1, exchanger.calls.Load())
	for i := 0; i < concurrentCalls; i++ {
		require.ErrorIs(t, errs[i], interrors.ErrRefreshFailed)
		require.False(t, stale[i], "waiter %d observed a stale valid-looking token", i)
	}
}

func TestAuthorize_NoRefreshToken(t *testing.T) {
	store := tokenstore.NewMemoryStore()
	coordinator := newCoordinator(t, store, newGatedExchanger())

	err := coordinator.Authorize(context.Background())
	require.ErrorIs(t, err, interrors.ErrNoRefreshToken)
}

func TestAuthorize_AfterStop(t *testing.T) {
	store := seededStore(t)
	coordinator := newCoordinator(t, store, newGatedExchanger())

	coordinator.Stop()
	err := coordinator.Authorize(context.Background())
	require.ErrorIs(t, err, interrors.ErrNoSession)
}

func TestAuthorize_StopHonorsQueuedWaiters(t *testing.T) {
	store := seededStore(t)
	exchanger := newGatedExchanger()
	coordinator := newCoordinator(t, store, exchanger)

	initiatorErr := make(chan error, 1)
	go func() { initiatorErr <- coordinator.Authorize(context.Background()) }()
	require.Eventually(t, func() bool { return exchanger.calls.Load() == 1 }, time.Second, time.Millisecond)

	// Stopping mid-flight: the running exchange completes, but nothing new
	// queues afterwards.
	coordinator.Stop()
	close(exchanger.gate)

	require.NoError(t, <-initiatorErr)
	state, err := store.Load()
	require.NoError(t, err)
	require.Equal(t, newAccessToken, state.AccessToken)
	require.ErrorIs(t, coordinator.Authorize(context.Background()), interrors.ErrNoSession)
}

func TestAuthorize_CanceledWaiter(t *testing.T) {
	store := seededStore(t)
	exchanger := newGatedExchanger()
	coordinator := newCoordinator(t, store, exchanger)

	initiatorErr := make(chan error, 1)
	go func() { initiatorErr <- coordinator.Authorize(context.Background()) }()
	require.Eventually(t, func() bool { return exchanger.calls.Load() == 1 }, time.Second, time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	waiterErr := make(chan error, 1)
	go func() { waiterErr <- coordinator.Authorize(ctx) }()
	cancel()

	require.ErrorIs(t, <-waiterErr, context.Canceled)

	// The abandoned waiter must not wedge the exchange.
	close(exchanger.gate)
	require.NoError(t, <-initiatorErr)
}
