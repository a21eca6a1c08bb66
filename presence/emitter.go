// Package presence reports session liveness to the backend. Heartbeats are
// advisory: they feed the "who is online" views and are never load-bearing
// for authentication, so every failure here is logged and swallowed.
package presence

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/paystream/go-session-client/api"
	"github.com/paystream/go-session-client/tokenstore"
)

// Sender is the slice of the request gateway the emitter needs.
type Sender interface {
	PostJSON(ctx context.Context, path string, body, out any) error
	FireAndForget(path string, body any)
}

// Config holds the heartbeat cadence. GuardWindow suppresses re-entrant
// heartbeats from rapid stop/start cycles.
type Config struct {
	Interval    time.Duration
	GuardWindow time.Duration
}

// Emitter sends a periodic heartbeat while the session is authenticated and
// a best-effort offline signal on teardown.
type Emitter struct {
	config    Config
	sender    Sender
	store     tokenstore.Store
	userAgent string
	logger    zerolog.Logger
	nowTime   func() time.Time

	lock     sync.Mutex
	stopCh   chan struct{}
	lastBeat time.Time
}

// EmitterOption defines a function type to modify the Emitter instance.
type EmitterOption func(*Emitter)

// WithNowTime sets the now time function (primarily for testing)
func WithNowTime(nowFunc func() time.Time) EmitterOption {
	return func(e *Emitter) {
		e.nowTime = nowFunc
	}
}

// NewEmitter creates a stopped emitter. The store supplies the per-tab
// session identifier carried by each heartbeat.
func NewEmitter(config Config, sender Sender, store tokenstore.Store, userAgent string, logger zerolog.Logger, options ...EmitterOption) (*Emitter, error) {
	if config.Interval <= 0 {
		return nil, errors.New("[NewEmitter] Interval must be positive")
	}
	if sender == nil {
		return nil, errors.New("[NewEmitter] sender is required")
	}
	if store == nil {
		return nil, errors.New("[NewEmitter] store is required")
	}

	emitter := &Emitter{
		config:    config,
		sender:    sender,
		store:     store,
		userAgent: userAgent,
		logger:    logger.With().Str("component", "presence").Logger(),
		nowTime:   time.Now,
	}

	for _, opt := range options {
		opt(emitter)
	}

	return emitter, nil
}

// Start begins the heartbeat loop, sending one immediately. Starting a
// running emitter has no effect; restarting inside the guard window does not
// produce an extra heartbeat.
func (e *Emitter) Start() {
	e.lock.Lock()
	if e.stopCh != nil {
		e.lock.Unlock()
		return
	}
	stopCh := make(chan struct{})
	e.stopCh = stopCh
	e.lock.Unlock()

	e.beat()

	go func() {
		ticker := time.NewTicker(e.config.Interval)
		defer ticker.Stop()
		for {
			select {
			case <-stopCh:
				return
			case <-ticker.C:
				e.beat()
			}
		}
	}()
	e.logger.Debug().Dur("interval", e.config.Interval).Msg("presence heartbeat started")
}

// Stop ends the heartbeat loop synchronously. Stopping a stopped emitter has
// no effect.
func (e *Emitter) Stop() {
	e.lock.Lock()
	defer e.lock.Unlock()
	if e.stopCh == nil {
		return
	}
	close(e.stopCh)
	e.stopCh = nil
	e.logger.Debug().Msg("presence heartbeat stopped")
}

// Running reports whether the heartbeat loop is active.
func (e *Emitter) Running() bool {
	e.lock.Lock()
	defer e.lock.Unlock()
	return e.stopCh != nil
}

// Offline fires the best-effort "going offline" signal. It never blocks on
// the network and never reports failure; teardown must not be delayed.
func (e *Emitter) Offline() {
	e.sender.FireAndForget(api.RoutePresenceOffline, e.payload())
}

// beat sends one heartbeat unless a previous one was sent inside the guard
// window.
func (e *Emitter) beat() {
	e.lock.Lock()
	now := e.nowTime()
	if !e.lastBeat.IsZero() && now.Sub(e.lastBeat) < e.config.GuardWindow {
		e.lock.Unlock()
		return
	}
	e.lastBeat = now
	e.lock.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), e.config.Interval)
	defer cancel()
	if err := e.sender.PostJSON(ctx, api.RoutePresenceActivity, e.payload(), nil); err != nil {
		e.logger.Debug().Err(err).Msg("heartbeat dropped")
	}
}

func (e *Emitter) payload() api.HeartbeatRequest {
	request := api.HeartbeatRequest{UserAgent: e.userAgent}
	if state, err := e.store.Load(); err == nil {
		request.SessionID = state.SessionID
	}
	return request
}
