// Package router defines how HTTP routes are registered for the API.
package router

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/thursday-diner/internal/handler"
	"github.com/iliyamo/thursday-diner/internal/middleware"
	"github.com/iliyamo/thursday-diner/internal/model"
)

// RegisterRoutes registers the operational endpoints: the health check,
// which pings db when one is given, and the Prometheus scrape endpoint.
func RegisterRoutes(e *echo.Echo, db handler.Pinger, metrics http.Handler) {
	e.GET("/healthz", handler.Health(db))
	if metrics != nil {
		e.GET("/metrics", echo.WrapHandler(metrics))
	}
}

// RegisterAuth registers all authentication-related routes.  Unauthenticated
// operations live under /v1/auth, while /v1/me requires a valid access token.
func RegisterAuth(e *echo.Echo, a *handler.AuthHandler, jwtSecret string) {
	g := e.Group("/v1/auth")
	g.POST("/register", a.Register)
	g.POST("/login", a.Login)
	// rotates the refresh token
	g.POST("/refresh", a.Refresh)
	// new access token, same refresh token
	g.POST("/refresh-access", a.RefreshAccess)
	// no JWTAuth: a refresh token alone is enough to end a session
	g.POST("/logout", a.Logout)

	auth := e.Group("/v1", middleware.JWTAuth(jwtSecret), middleware.RequireRole(model.RoleUser, model.RoleAdmin))
	auth.GET("/me", a.Me)
}

// RegisterPublic registers the unauthenticated read endpoints.  cache, when
// non-nil, wraps the restaurant listing.
func RegisterPublic(e *echo.Echo, r *handler.RestaurantHandler, d *handler.DinerHandler, cache echo.MiddlewareFunc) {
	var mw []echo.MiddlewareFunc
	if cache != nil {
		mw = append(mw, cache)
	}
	e.GET(handler.RestaurantsRoute, r.List, mw...)
	e.GET("/v1/diner/weeks/:week/count", d.WeekCount)
}
