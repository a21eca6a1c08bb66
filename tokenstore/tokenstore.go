// Package tokenstore persists the session's credential state across console
// reloads. It is pure storage: no validation, no expiry policy, no side
// effects beyond reading and writing the state document. Persistence is best
// effort - when the backing storage is unavailable the in-memory session
// remains authoritative and callers carry on without it.
package tokenstore

import (
	"github.com/google/uuid"

	"github.com/paystream/go-session-client/api"
)

// State is the full persisted session state. Absent fields mean "no session",
// never an error.
type State struct {
	AccessToken  string       `json:"access_token,omitempty"`
	RefreshToken string       `json:"refresh_token,omitempty"`
	User         *api.Profile `json:"user,omitempty"`
	SessionID    string       `json:"session_id,omitempty"`
}

// HasTokens reports whether a credential pair is present.
func (s *State) HasTokens() bool {
	return s != nil && s.AccessToken != "" && s.RefreshToken != ""
}

// Store persists session state. Implementations must be safe for concurrent
// use and must be callable before any other component initializes.
type Store interface {
	// Load returns the last persisted state. A missing or unreadable
	// backing store yields an empty state rather than an error.
	Load() (*State, error)

	// Save persists the state, replacing whatever was there.
	Save(state *State) error

	// Clear removes all persisted session data. Clearing an already empty
	// store is a no-op.
	Clear() error
}

// NewSessionID generates the per-tab session identifier carried by presence
// heartbeats. Generated once per local session and persisted alongside the
// tokens.
func NewSessionID() string {
	return uuid.NewString()
}
