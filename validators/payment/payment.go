package paymentValidator

import (
	"coursemarket/middleware"
	"coursemarket/validators"

	"github.com/gofiber/fiber/v2"
)

type CreateOrder struct {
	CourseID uint `json:"courseId" validate:"required"`
}

func CreateTelebirrOrder() fiber.Handler {
	return func(c *fiber.Ctx) error {
		reqData := new(CreateOrder)
		if err := c.BodyParser(reqData); err != nil {
			return middleware.JsonResponse(c, fiber.StatusBadRequest, false, "Invalid request body!", nil)
		}
		if errors := validators.Struct(reqData); len(errors) > 0 {
			return middleware.ValidationErrorResponse(c, errors)
		}
		c.Locals("validatedOrder", reqData)
		return c.Next()
	}
}
