package api

// RoleType represents an administrative role within the billing platform.
type RoleType string

const (
	RoleSuperAdmin  RoleType = "super_admin"  // Platform operator, manages all tenants
	RoleTenantAdmin RoleType = "tenant_admin" // Manages a single tenant's billing data
	RoleTenantUser  RoleType = "tenant_user"  // Regular tenant console user
)

// Profile is the authenticated user's identity as returned by the backend.
// It is immutable for the lifetime of a token pair and replaced wholesale
// on re-login.
type Profile struct {
	ID       string   `json:"id"`
	Email    string   `json:"email"`
	Role     RoleType `json:"role"`
	Elevated bool     `json:"elevated"` // Elevated privileges (super-admin console access)
}

// LoginRequest is the credential exchange payload sent to /auth/login.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// TokenResponse is returned from /auth/login: a full token pair plus the
// profile of the user the pair was issued to.
type TokenResponse struct {
	// AccessToken is the short-lived JWT attached to authenticated requests.
	// Usage: "Authorization: Bearer <access_token>"
	AccessToken string `json:"access_token"`

	// RefreshToken is the opaque long-lived token exchanged for new access
	// tokens via /auth/refresh.
	RefreshToken string `json:"refresh_token"`

	// User is the profile of the authenticated user.
	User *Profile `json:"user"`
}

// RefreshRequest is the payload sent to /auth/refresh.
type RefreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// RefreshResponse is returned from /auth/refresh. The refresh token is only
// present when the backend rotates it; a nil value means the old refresh
// token remains valid.
type RefreshResponse struct {
	AccessToken  string  `json:"access_token"`
	RefreshToken *string `json:"refresh_token,omitempty"`
}

// HeartbeatRequest is the presence payload sent to /presence/activity and
// /presence/offline. SessionID is the generated per-tab identifier, stable
// for the lifetime of the local session state.
type HeartbeatRequest struct {
	SessionID string `json:"session_id"`
	UserAgent string `json:"user_agent,omitempty"`
}

// ErrorResponse is the backend's error envelope for 4xx/5xx responses.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}
