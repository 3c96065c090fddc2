package http

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/cellsia/S-Show-Region-Stats/internal/core/ports"
	"github.com/cellsia/S-Show-Region-Stats/internal/core/usecases"
	"github.com/cellsia/S-Show-Region-Stats/internal/pkg/geometry"
)

// APIError is a structured error response.
type APIError struct {
	Status    int    `json:"status"`
	Code      string `json:"code"`    // bad_request, invalid_polygon, not_found, ...
	Message   string `json:"message"` // Human-readable message
	RequestID string `json:"request_id,omitempty"`
}

// newError builds a JSON error response with a request ID.
func newError(c *fiber.Ctx, status int, code string, message string) error {
	reqID, _ := c.Locals("requestid").(string)
	return c.Status(status).JSON(APIError{
		Status:    status,
		Code:      code,
		Message:   message,
		RequestID: reqID,
	})
}

func errBadRequest(c *fiber.Ctx, msg string) error {
	return newError(c, fiber.StatusBadRequest, "bad_request", msg)
}

func errNotFound(c *fiber.Ctx, msg string) error {
	return newError(c, fiber.StatusNotFound, "not_found", msg)
}

func errInternal(c *fiber.Ctx, msg string) error {
	return newError(c, fiber.StatusInternalServerError, "internal_error", msg)
}

func errUnavailable(c *fiber.Ctx, msg string) error {
	return newError(c, fiber.StatusServiceUnavailable, "unavailable", msg)
}

// errFrom maps service errors onto status codes.
func errFrom(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, geometry.ErrInvalidPolygon):
		return newError(c, fiber.StatusUnprocessableEntity, "invalid_polygon", err.Error())
	case errors.Is(err, geometry.ErrInvalidPoint):
		return newError(c, fiber.StatusUnprocessableEntity, "invalid_point", err.Error())
	case errors.Is(err, usecases.ErrInvalidRequest):
		return errBadRequest(c, err.Error())
	case errors.Is(err, ports.ErrNotFound):
		return errNotFound(c, err.Error())
	default:
		return errInternal(c, err.Error())
	}
}
