package controllers

import (
	"coursemarket/middleware"
	"coursemarket/services/certificate"
	"strings"

	"github.com/gofiber/fiber/v2"
)

type CertificateController struct {
	Issuer *certificate.Issuer
}

func NewCertificateController(issuer *certificate.Issuer) *CertificateController {
	return &CertificateController{Issuer: issuer}
}

func (h *CertificateController) GetMyCertificates(c *fiber.Ctx) error {
	p, ok := middleware.CurrentPrincipal(c)
	if !ok {
		return middleware.JsonResponse(c, fiber.StatusUnauthorized, false, "Unauthorized!", nil)
	}
	certs, err := h.Issuer.ListForUser(c.UserContext(), p.ID)
	if err != nil {
		return middleware.ErrorResponse(c, err)
	}
	return middleware.JsonResponse(c, fiber.StatusOK, true, "Certificates fetched successfully!", certs)
}

// VerifyCertificate is public: anyone holding a certificate number can
// check it.
func (h *CertificateController) VerifyCertificate(c *fiber.Ctx) error {
	number := strings.TrimSpace(c.Params("number"))
	if number == "" {
		return middleware.JsonResponse(c, fiber.StatusBadRequest, false, "Certificate number is required!", nil)
	}
	cert, err := h.Issuer.Verify(c.UserContext(), number)
	if err != nil {
		return middleware.ErrorResponse(c, err)
	}
	return middleware.JsonResponse(c, fiber.StatusOK, true, "Certificate is valid!", fiber.Map{
		"certificateNumber": cert.CertificateNumber,
		"recipientName":     cert.RecipientName,
		"courseTitle":       cert.CourseTitle,
		"issuedAt":          cert.IssuedAt,
		"template":          cert.Template,
	})
}
