package api

// Backend route constants
// All backend endpoints the session client talks to are defined here to
// ensure consistency and prevent typos
const (
	// Auth endpoints
	RouteAuthLogin   = "/auth/login"
	RouteAuthRefresh = "/auth/refresh"
	RouteAuthMe      = "/auth/me"

	// Presence endpoints
	RoutePresenceActivity = "/presence/activity"
	RoutePresenceOffline  = "/presence/offline"

	// Login entry point of the admin console, used for forced-logout redirects
	RouteLoginPage        = "/login"
	RouteLoginPageExpired = "/login?expired=true"
)
