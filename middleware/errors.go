package middleware

import (
	"coursemarket/apperr"
	"coursemarket/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/pkg/errors"
)

var statusByKind = map[apperr.Kind]int{
	apperr.KindNotFound:           fiber.StatusNotFound,
	apperr.KindForbidden:          fiber.StatusForbidden,
	apperr.KindBadRequest:         fiber.StatusBadRequest,
	apperr.KindConflict:           fiber.StatusConflict,
	apperr.KindUpstreamFailure:    fiber.StatusBadGateway,
	apperr.KindServiceUnavailable: fiber.StatusServiceUnavailable,
}

// ErrorResponse writes err in the standard envelope. Classified errors keep
// their message; anything else is reported and hidden behind a generic one.
func ErrorResponse(c *fiber.Ctx, err error) error {
	status, ok := statusByKind[apperr.KindOf(err)]
	if !ok {
		status = fiber.StatusInternalServerError
	}

	message := "Something went wrong, please try again later!"
	var appErr *apperr.Error
	if status != fiber.StatusInternalServerError && errors.As(err, &appErr) {
		message = appErr.Message
	}
	if status >= fiber.StatusInternalServerError {
		utils.ReportError("HTTP", err, map[string]interface{}{"method": c.Method(), "path": c.Path()})
	}
	return JsonResponse(c, status, false, message, nil)
}

// FiberErrorHandler renders errors returned by handlers and fiber itself,
// such as unknown routes, in the standard envelope.
func FiberErrorHandler(c *fiber.Ctx, err error) error {
	var fe *fiber.Error
	if errors.As(err, &fe) {
		return JsonResponse(c, fe.Code, false, fe.Message, nil)
	}
	return ErrorResponse(c, err)
}
