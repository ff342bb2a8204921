package paymentRoutes

import (
	controllers "coursemarket/controllers/payment"
	"coursemarket/middleware"
	validators "coursemarket/validators/payment"

	"github.com/gofiber/fiber/v2"
)

func SetupPaymentRoutes(app fiber.Router, h *controllers.PaymentController) {
	telebirrGroup := app.Group("/payments/telebirr")

	telebirrGroup.Post("/create-order", middleware.JWTMiddleware, validators.CreateTelebirrOrder(), h.CreateTelebirrOrder)

	// Called by Telebirr, no user token
	telebirrGroup.Post("/notify", h.TelebirrNotify)
}
