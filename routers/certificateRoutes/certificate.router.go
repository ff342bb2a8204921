package certificateRoutes

import (
	controllers "coursemarket/controllers/certificate"
	"coursemarket/middleware"

	"github.com/gofiber/fiber/v2"
)

func SetupCertificateRoutes(app fiber.Router, h *controllers.CertificateController) {
	certGroup := app.Group("/certificates")

	certGroup.Get("/me", middleware.JWTMiddleware, h.GetMyCertificates)
	certGroup.Get("/verify/:number", h.VerifyCertificate)
}
