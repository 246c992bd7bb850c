package server

// Route path constants
// All gateway routes are defined here to ensure consistency and prevent typos
const (
	// Auth Routes
	RouteAuthState      = "/auth/state"
	RouteAuthLogin      = "/auth/login"
	RouteAuthQuickLogin = "/auth/quick-login"
	RouteAuthDemoUsers  = "/auth/demo-users"
	RouteAuthLogout     = "/auth/logout"

	// Identity provider redirect flow
	RouteAzureLogin = "/auth/azure/login"
	RouteCallback   = "/callback"

	// Backend API proxy (subtree)
	RouteAPIProxy = "/api/v1/"

	// Operations
	RouteMetrics = "/metrics"
	RouteHealthz = "/healthz"

	// SPA
	RouteLogin = "/login"
	RouteIndex = "/"
)
