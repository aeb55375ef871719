package handler

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/thursday-diner/internal/diner"
	"github.com/iliyamo/thursday-diner/internal/model"
)

// AdminDinerHandler exposes the administrative overrides.  Every handler
// runs behind RequireRole(ADMIN).
type AdminDinerHandler struct {
	Svc *diner.Service
	Log *zap.Logger
}

// NewAdminDinerHandler constructs an AdminDinerHandler and panics on a nil service.
func NewAdminDinerHandler(svc *diner.Service, log *zap.Logger) *AdminDinerHandler {
	if svc == nil {
		panic("nil service passed to NewAdminDinerHandler")
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &AdminDinerHandler{Svc: svc, Log: log.Named("http.admin")}
}

// Registrants handles GET /v1/admin/diner/weeks/:week/registrants.  Unlike
// the registrant view, assigned restaurant IDs are always included.
func (h *AdminDinerHandler) Registrants(c echo.Context) error {
	week := weekParam(c, h.Svc)
	ctx, cancel := requestContext(c)
	defer cancel()

	regs, err := h.Svc.ListWeek(ctx, week)
	if err != nil {
		return dinerError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"week": week, "items": regs, "count": len(regs)})
}

// Stats handles GET /v1/admin/diner/weeks/:week/stats.
func (h *AdminDinerHandler) Stats(c echo.Context) error {
	week := weekParam(c, h.Svc)
	ctx, cancel := requestContext(c)
	defer cancel()

	stats, err := h.Svc.WeekStats(ctx, week)
	if err != nil {
		return dinerError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, stats)
}

// AssignPending handles POST /v1/admin/diner/weeks/:week/assign.
func (h *AdminDinerHandler) AssignPending(c echo.Context) error {
	adminID, err := getUserID(c)
	if err != nil {
		return unauthorized(c)
	}
	week := weekParam(c, h.Svc)
	ctx, cancel := requestContext(c)
	defer cancel()

	n, err := h.Svc.AssignPending(ctx, adminID, week)
	if err != nil {
		return dinerError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"week": week, "assigned": n})
}

type forceAssignReq struct {
	RestaurantID uint64 `json:"restaurant_id"`
}

// ForceAssign handles PUT /v1/admin/diner/registrants/:id/restaurant.
func (h *AdminDinerHandler) ForceAssign(c echo.Context) error {
	adminID, err := getUserID(c)
	if err != nil {
		return unauthorized(c)
	}
	id, ok := parseID(c, "id")
	if !ok {
		return badRequest(c, "invalid registrant id")
	}
	var req forceAssignReq
	if err := c.Bind(&req); err != nil || req.RestaurantID == 0 {
		return badRequest(c, "restaurant_id required")
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	reg, err := h.Svc.ForceAssign(ctx, adminID, id, req.RestaurantID)
	if err != nil {
		return dinerError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, reg)
}

// Reassign handles POST /v1/admin/diner/registrants/:id/reassign.
func (h *AdminDinerHandler) Reassign(c echo.Context) error {
	return h.override(c, h.Svc.Reassign)
}

// Reveal handles POST /v1/admin/diner/registrants/:id/reveal.
func (h *AdminDinerHandler) Reveal(c echo.Context) error {
	return h.override(c, h.Svc.ForceReveal)
}

// Hide handles POST /v1/admin/diner/registrants/:id/hide.
func (h *AdminDinerHandler) Hide(c echo.Context) error {
	return h.override(c, h.Svc.ForceHide)
}

// overrideFunc is the shape shared by the per-registrant overrides.
type overrideFunc func(ctx context.Context, adminID, registrantID uint64) (model.Registrant, error)

func (h *AdminDinerHandler) override(c echo.Context, op overrideFunc) error {
	adminID, err := getUserID(c)
	if err != nil {
		return unauthorized(c)
	}
	id, ok := parseID(c, "id")
	if !ok {
		return badRequest(c, "invalid registrant id")
	}
	ctx, cancel := requestContext(c)
	defer cancel()

	reg, err := op(ctx, adminID, id)
	if err != nil {
		return dinerError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, reg)
}
