// Package activity observes user interaction and reports idle time. It knows
// nothing about tokens or sessions - the controller subscribes to its idle
// signals and decides what they mean.
package activity

import (
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

// Source identifies the kind of user interaction that produced a touch.
// Touch bursts are throttled per source, so holding a key or dragging the
// pointer costs at most one timestamp write per source per throttle tick.
type Source string

const (
	SourcePointer Source = "pointer"
	SourceKey     Source = "key"
	SourceScroll  Source = "scroll"
	SourceClick   Source = "click"
)

// Hooks are the tracker's outbound signals. OnExpired fires once when the
// idle timeout elapses; OnWarning fires at most once per idle episode when
// the session is approaching the timeout, carrying the time remaining.
type Hooks struct {
	OnWarning func(remaining time.Duration)
	OnExpired func()
}

// Config holds the tracker's idle policy.
type Config struct {
	IdleTimeout   time.Duration // Inactivity span after which the session expires
	WarningLead   time.Duration // How long before expiry the warning fires
	CheckInterval time.Duration // How often idle time is evaluated
	TouchThrottle time.Duration // Minimum spacing between touches per source
}

// Tracker records the timestamp of the last user interaction and runs a
// recurring check against the configured idle thresholds.
type Tracker struct {
	config  Config
	hooks   Hooks
	logger  zerolog.Logger
	nowTime func() time.Time

	lock         sync.Mutex
	lastActivity time.Time
	lastTouch    map[Source]time.Time
	warned       bool
	stopCh       chan struct{}
	stopOnce     *sync.Once
}

// TrackerOption defines a function type to modify the Tracker instance.
type TrackerOption func(*Tracker)

// WithNowTime sets the now time function (primarily for testing)
func WithNowTime(nowFunc func() time.Time) TrackerOption {
	return func(t *Tracker) {
		t.nowTime = nowFunc
	}
}

// NewTracker creates a stopped tracker. Call Start to begin the idle check.
func NewTracker(config Config, hooks Hooks, logger zerolog.Logger, options ...TrackerOption) (*Tracker, error) {
	if config.IdleTimeout <= 0 {
		return nil, errors.New("[NewTracker] IdleTimeout must be positive")
	}
	if config.WarningLead < 0 || config.WarningLead >= config.IdleTimeout {
		return nil, errors.New("[NewTracker] WarningLead must be shorter than IdleTimeout")
	}
	if config.CheckInterval <= 0 {
		return nil, errors.New("[NewTracker] CheckInterval must be positive")
	}
	if hooks.OnExpired == nil {
		return nil, errors.New("[NewTracker] OnExpired hook is required")
	}

	tracker := &Tracker{
		config:    config,
		hooks:     hooks,
		logger:    logger.With().Str("component", "activity").Logger(),
		nowTime:   time.Now,
		lastTouch: make(map[Source]time.Time),
	}

	for _, opt := range options {
		opt(tracker)
	}

	return tracker, nil
}

// Start begins the recurring idle check. Starting an already running tracker
// has no effect. The idle clock is reset on each start.
func (t *Tracker) Start() {
	t.lock.Lock()
	defer t.lock.Unlock()

	if t.stopCh != nil {
		return
	}
	t.lastActivity = t.nowTime()
	t.warned = false
	t.stopCh = make(chan struct{})
	t.stopOnce = &sync.Once{}

	go t.run(t.stopCh)
	t.logger.Debug().Dur("idle_timeout", t.config.IdleTimeout).Msg("activity tracking started")
}

// Stop tears down the idle check synchronously. Stopping a stopped tracker
// has no effect.
func (t *Tracker) Stop() {
	t.lock.Lock()
	defer t.lock.Unlock()
	t.stopLocked()
}

func (t *Tracker) stopLocked() {
	if t.stopCh == nil {
		return
	}
	stopCh, once := t.stopCh, t.stopOnce
	once.Do(func() { close(stopCh) })
	t.stopCh = nil
	t.logger.Debug().Msg("activity tracking stopped")
}

// Running reports whether the idle check is active.
func (t *Tracker) Running() bool {
	t.lock.Lock()
	defer t.lock.Unlock()
	return t.stopCh != nil
}

// Touch records a user interaction from the given source, resetting the idle
// clock. Bursts from the same source within the throttle window are dropped.
func (t *Tracker) Touch(source Source) {
	t.lock.Lock()
	defer t.lock.Unlock()

	now := t.nowTime()
	if last, ok := t.lastTouch[source]; ok && now.Sub(last) < t.config.TouchThrottle {
		return
	}
	t.lastTouch[source] = now

	// lastActivity only moves forward.
	if now.After(t.lastActivity) {
		t.lastActivity = now
	}
	t.warned = false
}

// IdleFor returns the elapsed time since the last touch.
func (t *Tracker) IdleFor() time.Duration {
	t.lock.Lock()
	defer t.lock.Unlock()
	return t.nowTime().Sub(t.lastActivity)
}

func (t *Tracker) run(stopCh chan struct{}) {
	ticker := time.NewTicker(t.config.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
			if t.check() {
				return
			}
		}
	}
}

// check evaluates the idle thresholds once. It returns true when the session
// expired and the tracker stopped itself.
func (t *Tracker) check() bool {
	t.lock.Lock()

	idle := t.nowTime().Sub(t.lastActivity)
	if idle >= t.config.IdleTimeout {
		t.stopLocked()
		t.lock.Unlock()
		t.logger.Info().Dur("idle", idle).Msg("idle timeout reached")
		t.hooks.OnExpired()
		return true
	}

	if idle >= t.config.IdleTimeout-t.config.WarningLead && !t.warned {
		t.warned = true
		remaining := t.config.IdleTimeout - idle
		t.lock.Unlock()
		t.logger.Info().Dur("remaining", remaining).Msg("idle timeout approaching")
		if t.hooks.OnWarning != nil {
			t.hooks.OnWarning(remaining)
		}
		return false
	}

	t.lock.Unlock()
	return false
}
