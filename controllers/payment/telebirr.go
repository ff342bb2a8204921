package controllers

import (
	"coursemarket/middleware"
	"coursemarket/services/payment"
	validators "coursemarket/validators/payment"
	"log"

	"github.com/gofiber/fiber/v2"
)

type PaymentController struct {
	Orchestrator *payment.Orchestrator
}

func NewPaymentController(o *payment.Orchestrator) *PaymentController {
	return &PaymentController{Orchestrator: o}
}

func (h *PaymentController) CreateTelebirrOrder(c *fiber.Ctx) error {
	p, ok := middleware.CurrentPrincipal(c)
	if !ok {
		return middleware.JsonResponse(c, fiber.StatusUnauthorized, false, "Unauthorized!", nil)
	}
	reqData := c.Locals("validatedOrder").(*validators.CreateOrder)

	checkout, err := h.Orchestrator.CreateOrder(c.UserContext(), p, reqData.CourseID)
	if err != nil {
		return middleware.ErrorResponse(c, err)
	}
	return middleware.JsonResponse(c, fiber.StatusOK, true, "Checkout created successfully!", checkout)
}

// TelebirrNotify is the settlement webhook. It always answers 200 so the
// provider does not keep retrying; success tells whether it was applied.
func (h *PaymentController) TelebirrNotify(c *fiber.Ctx) error {
	n, err := payment.ParseNotification(c.Body())
	if err != nil {
		log.Printf("[PAYMENT] unreadable notification from %s: %v", c.IP(), err)
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"success": false})
	}
	ok := h.Orchestrator.HandleNotification(c.UserContext(), n)
	return c.Status(fiber.StatusOK).JSON(fiber.Map{"success": ok})
}
