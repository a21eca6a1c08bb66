package session

// Status is the controller's current position in the session state machine.
//
//	Initializing  -> Authenticated | Unauthenticated
//	Authenticated -> Refreshing | Expired | Unauthenticated
//	Refreshing    -> Authenticated | Expired
//	Expired       -> Unauthenticated
//
// Unauthenticated is the terminal sink: storage cleared, timers stopped.
type Status string

const (
	StatusInitializing    Status = "initializing"
	StatusUnauthenticated Status = "unauthenticated"
	StatusAuthenticated   Status = "authenticated"
	StatusRefreshing      Status = "refreshing"
	StatusExpired         Status = "expired"
)
