package server

const (
	RouteHealth = "/healthz"

	RouteAuthRegister = "/api/v1/auth/register"
	RouteAuthLogin    = "/api/v1/auth/login"
	RouteAuthRefresh  = "/api/v1/auth/refresh"
	RouteAuthLogout   = "/api/v1/auth/logout"
	RouteAuthSessions = "/api/v1/auth/sessions"
	RouteAuthPassword = "/api/v1/auth/password"

	RouteAccounts          = "/api/v1/accounts"
	RouteAccountConnect    = "/api/v1/accounts/connect/{provider}"
	RouteAccountLabel      = "/api/v1/accounts/{id}/label"
	RouteAccountRefresh    = "/api/v1/accounts/{id}/refresh"
	RouteAccountHealth     = "/api/v1/accounts/{id}/health"
	RouteAccountDisconnect = "/api/v1/accounts/{id}"
)

func (s *Server) initRoutes() {
	s.RegisterRouteFunc("GET "+RouteHealth, s.HealthHandler())

	// Session lifecycle. Register and login run before any access token
	// exists, so they carry only the standard middleware.
	s.RegisterRouteHandler("POST "+RouteAuthRegister, ChainMiddleware(s.RegisterHandler(), s.APIMiddleware()...))
	s.RegisterRouteHandler("POST "+RouteAuthLogin, ChainMiddleware(s.LoginHandler(), s.APIMiddleware()...))
	s.RegisterRouteHandler("POST "+RouteAuthRefresh, ChainMiddleware(s.RefreshHandler(), s.APIMiddleware()...))
	s.RegisterRouteHandler("POST "+RouteAuthLogout, ChainMiddleware(s.LogoutHandler(), s.APIMiddleware()...))
	s.RegisterRouteHandler("GET "+RouteAuthSessions, ChainMiddleware(s.SessionsHandler(), s.AuthenticatedMiddleware()...))
	s.RegisterRouteHandler("POST "+RouteAuthPassword, ChainMiddleware(s.ResetPasswordHandler(), s.AuthenticatedMiddleware()...))

	// Connected accounts. Everything below requires a verified access token.
	s.RegisterRouteHandler("GET "+RouteAccounts, ChainMiddleware(s.ListAccountsHandler(), s.AuthenticatedMiddleware()...))
	s.RegisterRouteHandler("POST "+RouteAccountConnect, ChainMiddleware(s.ConnectAccountHandler(), s.AuthenticatedMiddleware()...))
	s.RegisterRouteHandler("PATCH "+RouteAccountLabel, ChainMiddleware(s.RelabelAccountHandler(), s.AuthenticatedMiddleware()...))
	s.RegisterRouteHandler("POST "+RouteAccountRefresh, ChainMiddleware(s.RefreshAccountHandler(), s.AuthenticatedMiddleware()...))
	s.RegisterRouteHandler("GET "+RouteAccountHealth, ChainMiddleware(s.AccountHealthHandler(), s.AuthenticatedMiddleware()...))
	s.RegisterRouteHandler("DELETE "+RouteAccountDisconnect, ChainMiddleware(s.DisconnectAccountHandler(), s.AuthenticatedMiddleware()...))
}
