// Package session orchestrates the credential lifecycle of one admin console
// tab: boot-time token verification, login, logout, idle-timeout eviction and
// the wiring between the token store, activity tracker, refresh coordinator,
// request gateway and presence emitter.
package session

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/paystream/go-session-client/activity"
	"github.com/paystream/go-session-client/api"
	"github.com/paystream/go-session-client/gateway"
	"github.com/paystream/go-session-client/internal/config"
	interrors "github.com/paystream/go-session-client/internal/errors"
	"github.com/paystream/go-session-client/presence"
	"github.com/paystream/go-session-client/refresh"
	"github.com/paystream/go-session-client/tokenstore"
)

// Navigator abstracts the console's location bar so forced logouts can
// redirect to the login entry point without this package knowing how the
// shell renders routes.
type Navigator interface {
	CurrentPath() string
	Navigate(path string)
}

// Controller owns the session state machine. It is the only writer of the
// Session's status and user fields; the token store is written only here and
// in the refresh coordinator.
type Controller struct {
	store     tokenstore.Store
	gateway   *gateway.Gateway
	refresher *refresh.Coordinator
	tracker   *activity.Tracker
	emitter   *presence.Emitter
	navigator Navigator
	logger    zerolog.Logger
	nowTime   func() time.Time

	warningFn func(remaining time.Duration)

	lock       lockedState
	listenerID int
	listeners  map[int]chan Status
}

// lockedState is the mutable session snapshot guarded by its own mutex.
type lockedState struct {
	mu     sync.Mutex
	status Status
	user   *api.Profile
}

// Option defines a function type to modify the Controller instance.
type Option func(*Controller)

// WithStore overrides the token store (primarily for testing).
func WithStore(store tokenstore.Store) Option {
	return func(c *Controller) {
		c.store = store
	}
}

// WithNowTime sets the now time function (primarily for testing)
func WithNowTime(nowFunc func() time.Time) Option {
	return func(c *Controller) {
		c.nowTime = nowFunc
	}
}

// WithIdleWarning registers a callback fired once per idle episode when the
// session is approaching its idle timeout.
func WithIdleWarning(fn func(remaining time.Duration)) Option {
	return func(c *Controller) {
		c.warningFn = fn
	}
}

// New wires up the full session stack. The controller starts in
// Initializing; call Bootstrap to verify any persisted token pair.
func New(cfg *config.AppConfig, navigator Navigator, logger zerolog.Logger, options ...Option) (*Controller, error) {
	if cfg == nil {
		return nil, errors.New("[session.New] config is required")
	}
	if navigator == nil {
		return nil, errors.New("[session.New] navigator is required")
	}

	controller := &Controller{
		navigator: navigator,
		logger:    logger.With().Str("component", "session").Logger(),
		nowTime:   time.Now,
		listeners: make(map[int]chan Status),
	}
	controller.lock.status = StatusInitializing

	for _, opt := range options {
		opt(controller)
	}

	if controller.store == nil {
		controller.store = tokenstore.NewPersistent(cfg.Storage.DataFolder, logger)
	}

	gw, err := gateway.New(gateway.Config{
		BaseURL:     cfg.Backend.BaseURL,
		HTTPTimeout: cfg.Backend.HTTPTimeout,
		UserAgent:   cfg.Backend.UserAgent,
	}, controller.store, logger)
	if err != nil {
		return nil, err
	}

	refresher, err := refresh.NewCoordinator(controller.store, refresh.ExchangerFunc(gw.ExchangeRefreshToken), logger)
	if err != nil {
		return nil, err
	}
	gw.UseAuthorizer(refresher)
	gw.OnInvalidSession(func() { controller.evict("refresh unrecoverable") })

	tracker, err := activity.NewTracker(activity.Config{
		IdleTimeout:   cfg.Session.IdleTimeout,
		WarningLead:   cfg.Session.WarningLead,
		CheckInterval: cfg.Session.CheckInterval,
		TouchThrottle: cfg.Session.TouchThrottle,
	}, activity.Hooks{
		OnWarning: controller.idleWarning,
		OnExpired: func() { controller.evict("idle timeout") },
	}, logger, activity.WithNowTime(func() time.Time { return controller.nowTime() }))
	if err != nil {
		return nil, err
	}

	emitter, err := presence.NewEmitter(presence.Config{
		Interval:    cfg.Presence.Interval,
		GuardWindow: cfg.Presence.GuardWindow,
	}, gw, controller.store, cfg.Backend.UserAgent, logger,
		presence.WithNowTime(func() time.Time { return controller.nowTime() }))
	if err != nil {
		return nil, err
	}

	controller.gateway = gw
	controller.refresher = refresher
	controller.tracker = tracker
	controller.emitter = emitter
	return controller, nil
}

// Gateway exposes the authenticated HTTP surface the console's UI modules
// use for every backend call.
func (c *Controller) Gateway() *gateway.Gateway {
	return c.gateway
}

// Tracker exposes the activity tracker so the console shell can forward user
// interaction events.
func (c *Controller) Tracker() *activity.Tracker {
	return c.tracker
}

// Status returns the current session status.
func (c *Controller) Status() Status {
	c.lock.mu.Lock()
	defer c.lock.mu.Unlock()
	return c.lock.status
}

// IsAuthenticated reports whether the session currently holds a verified
// identity. Refreshing counts: the session is still live while an exchange
// is in flight.
func (c *Controller) IsAuthenticated() bool {
	status := c.Status()
	return status == StatusAuthenticated || status == StatusRefreshing
}

// User returns the authenticated user's profile, or nil.
func (c *Controller) User() *api.Profile {
	c.lock.mu.Lock()
	defer c.lock.mu.Unlock()
	return c.lock.user
}

// Subscribe registers a state-change listener. The returned channel receives
// every status transition until Unsubscribe is called with the returned id.
func (c *Controller) Subscribe() (int, <-chan Status) {
	c.lock.mu.Lock()
	defer c.lock.mu.Unlock()
	c.listenerID++
	ch := make(chan Status, 8)
	c.listeners[c.listenerID] = ch
	return c.listenerID, ch
}

// Unsubscribe removes a state-change listener.
func (c *Controller) Unsubscribe(id int) {
	c.lock.mu.Lock()
	defer c.lock.mu.Unlock()
	if ch, ok := c.listeners[id]; ok {
		delete(c.listeners, id)
		close(ch)
	}
}

// Bootstrap verifies any persisted token pair: a stale access token is
// refreshed first (reading its exp claim saves a verification call that is
// guaranteed to fail), then the user profile is fetched to prove the pair is
// live. Success lands in Authenticated with the activity tracker and
// presence emitter running; any failure clears the store and lands in
// Unauthenticated.
func (c *Controller) Bootstrap(ctx context.Context) error {
	state, err := c.store.Load()
	if err != nil {
		state = &tokenstore.State{}
	}
	c.ensureSessionID(state)

	if !state.HasTokens() {
		c.setStatus(StatusUnauthenticated)
		return nil
	}

	if api.AccessTokenExpired(state.AccessToken, c.nowTime()) {
		c.logger.Debug().Msg("persisted access token stale, refreshing before verification")
		c.setStatus(StatusRefreshing)
		if err := c.refresher.Authorize(ctx); err != nil {
			c.clearSession()
			c.setStatus(StatusUnauthenticated)
			return interrors.Wrapf(err, "bootstrap refresh")
		}
	}

	var profile api.Profile
	if err := c.gateway.GetJSON(ctx, api.RouteAuthMe, &profile); err != nil {
		c.clearSession()
		c.setStatus(StatusUnauthenticated)
		return interrors.Wrapf(err, "bootstrap verification")
	}

	c.setUser(&profile)
	c.setStatus(StatusAuthenticated)
	c.startTimers()
	c.logger.Info().Str("user", profile.Email).Msg("session restored")
	return nil
}

// Login exchanges credentials for a token pair. On failure the session stays
// Unauthenticated and the error surfaces to the caller; on success the pair
// is persisted and the session becomes Authenticated with timers running.
func (c *Controller) Login(ctx context.Context, email, password string) error {
	var response api.TokenResponse
	err := c.gateway.SendPublic(ctx, http.MethodPost, api.RouteAuthLogin,
		api.LoginRequest{Email: email, Password: password}, &response)
	if err != nil {
		c.setStatus(StatusUnauthenticated)
		var statusErr *gateway.StatusError
		if errors.As(err, &statusErr) && statusErr.IsAuthError() {
			return interrors.ErrInvalidCredentials
		}
		return interrors.Wrapf(err, "login")
	}

	state, loadErr := c.store.Load()
	if loadErr != nil {
		state = &tokenstore.State{}
	}
	state.AccessToken = response.AccessToken
	state.RefreshToken = response.RefreshToken
	state.User = response.User
	if state.SessionID == "" {
		state.SessionID = tokenstore.NewSessionID()
	}
	if err := c.store.Save(state); err != nil {
		c.logger.Warn().Err(err).Msg("session state not persisted")
	}

	c.setUser(response.User)
	c.setStatus(StatusAuthenticated)
	c.startTimers()
	c.logger.Info().Str("user", email).Msg("logged in")
	return nil
}

// Logout clears the session and stops all timers. Logging out twice has no
// additional observable effect. With redirect set, the navigator is pointed
// at the login entry point unless it is already there.
func (c *Controller) Logout(redirect bool) {
	if !c.swapStatus(StatusUnauthenticated, StatusUnauthenticated) {
		return
	}

	c.stopTimers()
	c.clearSession()
	c.setUser(nil)
	c.logger.Info().Msg("logged out")

	if redirect && c.navigator.CurrentPath() != api.RouteLoginPage {
		c.navigator.Navigate(api.RouteLoginPageExpired)
	}
}

// RefreshToken forces a refresh exchange through the single-flight
// coordinator. An unrecoverable exchange evicts the session.
func (c *Controller) RefreshToken(ctx context.Context) error {
	if !c.IsAuthenticated() {
		return interrors.ErrNoSession
	}
	c.setStatus(StatusRefreshing)
	if err := c.refresher.Authorize(ctx); err != nil {
		c.evict("manual refresh failed")
		return err
	}
	c.setStatus(StatusAuthenticated)
	return nil
}

// Shutdown is the tab-teardown path: it fires the best-effort offline signal
// and stops the timers, but keeps the persisted tokens so the next launch
// can restore the session.
func (c *Controller) Shutdown() {
	c.emitter.Offline()
	c.stopTimers()
	c.refresher.Stop()
	c.logger.Debug().Msg("session controller shut down")
}

// evict is the forced-logout path shared by the idle timeout, unrecoverable
// refreshes and manual refresh failures. The transition to Unauthenticated
// happens exactly once; a second eviction is a no-op.
func (c *Controller) evict(reason string) {
	if !c.swapStatus(StatusExpired, StatusUnauthenticated, StatusExpired) {
		return
	}
	c.logger.Info().Str("reason", reason).Msg("session evicted")
	c.Logout(true)
}

func (c *Controller) idleWarning(remaining time.Duration) {
	if c.warningFn != nil {
		c.warningFn(remaining)
		return
	}
	c.logger.Info().Dur("remaining", remaining).Msg("session approaching idle timeout")
}

func (c *Controller) startTimers() {
	c.tracker.Start()
	c.emitter.Start()
}

func (c *Controller) stopTimers() {
	c.tracker.Stop()
	c.emitter.Stop()
}

// clearSession wipes the credential pair and profile but keeps the per-tab
// session identifier, which names this tab rather than any one login.
func (c *Controller) clearSession() {
	state, err := c.store.Load()
	sessionID := ""
	if err == nil {
		sessionID = state.SessionID
	}
	if err := c.store.Clear(); err != nil {
		c.logger.Warn().Err(err).Msg("persisted session state not cleared")
	}
	if sessionID != "" {
		_ = c.store.Save(&tokenstore.State{SessionID: sessionID})
	}
}

func (c *Controller) ensureSessionID(state *tokenstore.State) {
	if state.SessionID != "" {
		return
	}
	state.SessionID = tokenstore.NewSessionID()
	if err := c.store.Save(state); err != nil {
		c.logger.Warn().Err(err).Msg("session identifier not persisted")
	}
}

func (c *Controller) setUser(user *api.Profile) {
	c.lock.mu.Lock()
	defer c.lock.mu.Unlock()
	c.lock.user = user
}

// swapStatus atomically transitions to the given status unless the current
// status is one of the blocked values. It reports whether the transition
// happened, which gates the exactly-once side effects of logout and
// eviction.
func (c *Controller) swapStatus(to Status, blocked ...Status) bool {
	c.lock.mu.Lock()
	defer c.lock.mu.Unlock()
	for _, b := range blocked {
		if c.lock.status == b {
			return false
		}
	}
	c.lock.status = to
	for _, ch := range c.listeners {
		select {
		case ch <- to:
		default:
		}
	}
	return true
}

// setStatus records a transition and fans it out to subscribers. Listeners
// that cannot keep up miss intermediate transitions rather than blocking the
// state machine.
func (c *Controller) setStatus(status Status) {
	c.lock.mu.Lock()
	defer c.lock.mu.Unlock()
	if c.lock.status == status {
		return
	}
	c.lock.status = status
	for _, ch := range c.listeners {
		select {
		case ch <- status:
		default:
		}
	}
}
