package response

import (
	"errors"
	"fmt"

	"github.com/gofiber/fiber/v2"

	apperrors "github.com/Rohianon/ptracker/pkg/errors"
	"github.com/Rohianon/ptracker/pkg/logger"
)

// ErrorHandler is a Fiber error handler that converts errors to standard response format
func ErrorHandler(c *fiber.Ctx, err error) error {
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		if appErr.HTTPStatus >= fiber.StatusInternalServerError {
			logger.Error().
				Err(err).
				Str("code", appErr.Code).
				Str("path", c.Path()).
				Str("request_id", GetRequestID(c)).
				Msg("Request failed")
		}
		return Error(c, appErr.HTTPStatus, appErr.Code, appErr.Message, detailStrings(appErr.Details)...)
	}

	var fiberErr *fiber.Error
	if errors.As(err, &fiberErr) {
		return Error(c, fiberErr.Code, httpStatusToErrorCode(fiberErr.Code), fiberErr.Message)
	}

	logger.Error().Err(err).Str("path", c.Path()).Msg("Unhandled error")
	return Error(c, fiber.StatusInternalServerError, apperrors.ErrInternal.Code, apperrors.ErrInternal.Message)
}

func detailStrings(details any) []string {
	switch d := details.(type) {
	case nil:
		return nil
	case string:
		return []string{d}
	case []string:
		return d
	case fmt.Stringer:
		return []string{d.String()}
	default:
		return []string{fmt.Sprint(d)}
	}
}

func httpStatusToErrorCode(status int) string {
	switch status {
	case fiber.StatusBadRequest:
		return "BAD_REQUEST"
	case fiber.StatusUnauthorized:
		return "UNAUTHORIZED"
	case fiber.StatusForbidden:
		return "FORBIDDEN"
	case fiber.StatusNotFound:
		return "NOT_FOUND"
	case fiber.StatusMethodNotAllowed:
		return "METHOD_NOT_ALLOWED"
	case fiber.StatusConflict:
		return "CONFLICT"
	case fiber.StatusUnprocessableEntity:
		return "VALIDATION_ERROR"
	case fiber.StatusRequestEntityTooLarge:
		return "PAYLOAD_TOO_LARGE"
	case fiber.StatusTooManyRequests:
		return "RATE_LIMITED"
	case fiber.StatusInternalServerError:
		return "INTERNAL_ERROR"
	case fiber.StatusServiceUnavailable:
		return "SERVICE_UNAVAILABLE"
	default:
		return "UNKNOWN_ERROR"
	}
}
