// Package handler contains the echo handlers of the HTTP API.  Handlers
// bind and validate the request, call the diner service under a short
// timeout and render JSON; every error body has the shape {"error": "..."}.
package handler

import (
	"context"
	"errors"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/thursday-diner/internal/diner"
	"github.com/iliyamo/thursday-diner/internal/middleware"
)

// requestTimeout bounds the store calls a single request may make.
const requestTimeout = 5 * time.Second

func requestContext(c echo.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.Request().Context(), requestTimeout)
}

// getUserID extracts the user_id set by JWTAuth and converts it to uint64.
// Zero, negative and fractional ids are rejected.
func getUserID(c echo.Context) (uint64, error) {
	switch t := c.Get(middleware.ContextUserID).(type) {
	case uint64:
		if t > 0 {
			return t, nil
		}
	case int:
		if t > 0 {
			return uint64(t), nil
		}
	case int64:
		if t > 0 {
			return uint64(t), nil
		}
	case float64:
		if t > 0 && t == math.Trunc(t) && t < math.MaxUint64 {
			return uint64(t), nil
		}
	case string:
		if n, err := strconv.ParseUint(t, 10, 64); err == nil && n > 0 {
			return n, nil
		}
	}
	return 0, errors.New("invalid user_id in context")
}

// parseID reads a positive numeric path parameter.
func parseID(c echo.Context, name string) (uint64, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	return id, err == nil && id > 0
}

func badRequest(c echo.Context, msg string) error {
	return c.JSON(http.StatusBadRequest, echo.Map{"error": msg})
}

func unauthorized(c echo.Context) error {
	return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
}

// dinerError maps the diner error classes onto status codes.  Unknown
// errors are logged and reported as 500 without their text.
func dinerError(c echo.Context, log *zap.Logger, err error) error {
	switch {
	case errors.Is(err, diner.ErrValidation):
		return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
	case errors.Is(err, diner.ErrAlreadyRegistered):
		return c.JSON(http.StatusConflict, echo.Map{"error": diner.ErrAlreadyRegistered.Error()})
	case errors.Is(err, diner.ErrNotFound):
		return c.JSON(http.StatusNotFound, echo.Map{"error": err.Error()})
	case errors.Is(err, diner.ErrNotAssigned), errors.Is(err, diner.ErrConflict):
		return c.JSON(http.StatusConflict, echo.Map{"error": err.Error()})
	}
	if log != nil {
		log.Error("request failed",
			zap.String("method", c.Request().Method),
			zap.String("route", c.Path()),
			zap.Error(err))
	}
	return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal error"})
}
