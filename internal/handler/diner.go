package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/thursday-diner/internal/diner"
)

// DinerHandler serves the registrant side of the weekly dinner.
type DinerHandler struct {
	Svc *diner.Service
	Log *zap.Logger
}

// NewDinerHandler constructs a DinerHandler and panics on a nil service.
func NewDinerHandler(svc *diner.Service, log *zap.Logger) *DinerHandler {
	if svc == nil {
		panic("nil service passed to NewDinerHandler")
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &DinerHandler{Svc: svc, Log: log.Named("http")}
}

type registerDinerReq struct {
	PricePreference     string   `json:"price_preference"`
	DietaryRestrictions []string `json:"dietary_restrictions"`
	CuisinePreference   string   `json:"cuisine_preference"`
}

// Register handles POST /v1/diner/registrations.
func (h *DinerHandler) Register(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return unauthorized(c)
	}
	var req registerDinerReq
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	reg, err := h.Svc.Register(ctx, diner.RegisterInput{
		UserID:              uid,
		PricePreference:     req.PricePreference,
		DietaryRestrictions: req.DietaryRestrictions,
		CuisinePreference:   req.CuisinePreference,
	})
	if err != nil {
		return dinerError(c, h.Log, err)
	}
	return c.JSON(http.StatusCreated, h.Svc.Present(reg))
}

// Current handles GET /v1/diner/registrations/current.  The restaurant is
// only included once the registrant has been revealed.
func (h *DinerHandler) Current(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return unauthorized(c)
	}
	ctx, cancel := requestContext(c)
	defer cancel()

	a, err := h.Svc.Current(ctx, uid)
	if err != nil {
		return dinerError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, a)
}

// Cancel handles DELETE /v1/diner/registrations/current.
func (h *DinerHandler) Cancel(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return unauthorized(c)
	}
	ctx, cancel := requestContext(c)
	defer cancel()

	if err := h.Svc.Cancel(ctx, uid); err != nil {
		return dinerError(c, h.Log, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// History handles GET /v1/diner/registrations.
func (h *DinerHandler) History(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return unauthorized(c)
	}
	ctx, cancel := requestContext(c)
	defer cancel()

	list, err := h.Svc.History(ctx, uid)
	if err != nil {
		return dinerError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"items": list, "count": len(list)})
}

// WeekCount handles GET /v1/diner/weeks/:week/count.
func (h *DinerHandler) WeekCount(c echo.Context) error {
	week := weekParam(c, h.Svc)
	ctx, cancel := requestContext(c)
	defer cancel()

	n, err := h.Svc.WeekCount(ctx, week)
	if err != nil {
		return dinerError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"week": week, "registered": n})
}

// weekParam reads the :week path parameter; "current" names the upcoming
// Thursday.
func weekParam(c echo.Context, svc *diner.Service) string {
	week := c.Param("week")
	if week == "current" {
		return diner.WeekID(svc.UpcomingWeek())
	}
	return week
}
