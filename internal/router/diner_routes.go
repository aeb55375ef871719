package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/thursday-diner/internal/handler"
	"github.com/iliyamo/thursday-diner/internal/middleware"
	"github.com/iliyamo/thursday-diner/internal/model"
)

// RegisterDiner registers the registrant endpoints under /v1/diner.  All
// routes require a valid JWT with the USER or ADMIN role.  limit, when
// non-nil, throttles new registrations.
func RegisterDiner(e *echo.Echo, h *handler.DinerHandler, jwtSecret string, limit echo.MiddlewareFunc) {
	g := e.Group(
		"/v1/diner",
		middleware.JWTAuth(jwtSecret),
		middleware.RequireRole(model.RoleUser, model.RoleAdmin),
	)
	var mw []echo.MiddlewareFunc
	if limit != nil {
		mw = append(mw, limit)
	}
	g.POST("/registrations", h.Register, mw...)
	g.GET("/registrations", h.History)
	g.GET("/registrations/current", h.Current)
	g.DELETE("/registrations/current", h.Cancel)
}

// RegisterAdmin registers the administrator endpoints: diner overrides under
// /v1/admin/diner and restaurant maintenance under /v1/admin/restaurants.
func RegisterAdmin(e *echo.Echo, a *handler.AdminDinerHandler, r *handler.RestaurantHandler, jwtSecret string) {
	g := e.Group(
		"/v1/admin",
		middleware.JWTAuth(jwtSecret),
		middleware.RequireRole(model.RoleAdmin),
	)

	g.GET("/diner/weeks/:week/registrants", a.Registrants)
	g.GET("/diner/weeks/:week/stats", a.Stats)
	g.POST("/diner/weeks/:week/assign", a.AssignPending)
	g.PUT("/diner/registrants/:id/restaurant", a.ForceAssign)
	g.POST("/diner/registrants/:id/reassign", a.Reassign)
	g.POST("/diner/registrants/:id/reveal", a.Reveal)
	g.POST("/diner/registrants/:id/hide", a.Hide)

	g.POST("/restaurants", r.Create)
	g.PUT("/restaurants/:id", r.Update)
	g.PATCH("/restaurants/:id", r.Patch)
	g.DELETE("/restaurants/:id", r.Delete)
}
