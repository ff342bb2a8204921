package controllers

import (
	"coursemarket/middleware"
	courseModels "coursemarket/models/course"
	"coursemarket/services/enrollment"
	validators "coursemarket/validators/enrollment"

	"github.com/gofiber/fiber/v2"
)

// EnrollmentController exposes the enrollment state machine over HTTP.
type EnrollmentController struct {
	Service *enrollment.Service
}

func NewEnrollmentController(svc *enrollment.Service) *EnrollmentController {
	return &EnrollmentController{Service: svc}
}

func (h *EnrollmentController) RequestEnrollment(c *fiber.Ctx) error {
	p, ok := middleware.CurrentPrincipal(c)
	if !ok {
		return middleware.JsonResponse(c, fiber.StatusUnauthorized, false, "Unauthorized!", nil)
	}
	reqData := c.Locals("validatedEnrollment").(*validators.RequestEnrollment)

	e, err := h.Service.Request(c.UserContext(), p, reqData.CourseID)
	if err != nil {
		return middleware.ErrorResponse(c, err)
	}
	return middleware.JsonResponse(c, fiber.StatusCreated, true, "Enrollment requested successfully!", e)
}

func (h *EnrollmentController) UpdateProgress(c *fiber.Ctx) error {
	p, ok := middleware.CurrentPrincipal(c)
	if !ok {
		return middleware.JsonResponse(c, fiber.StatusUnauthorized, false, "Unauthorized!", nil)
	}
	id := c.Locals("enrollmentID").(uint)
	reqData := c.Locals("validatedProgress").(*validators.CompleteLesson)

	e, err := h.Service.CompleteLesson(c.UserContext(), p, id, reqData.ModuleID, reqData.LessonID)
	if err != nil {
		return middleware.ErrorResponse(c, err)
	}
	return middleware.JsonResponse(c, fiber.StatusOK, true, "Progress updated successfully!", e)
}

// SubmitQuiz answers with the enrollment plus the grading outcome in meta.
func (h *EnrollmentController) SubmitQuiz(c *fiber.Ctx) error {
	p, ok := middleware.CurrentPrincipal(c)
	if !ok {
		return middleware.JsonResponse(c, fiber.StatusUnauthorized, false, "Unauthorized!", nil)
	}
	id := c.Locals("enrollmentID").(uint)
	reqData := c.Locals("validatedQuiz").(*validators.SubmitQuiz)

	e, result, err := h.Service.SubmitQuiz(c.UserContext(), p, id, reqData.ModuleID, reqData.Answers)
	if err != nil {
		return middleware.ErrorResponse(c, err)
	}

	message := "Quiz passed!"
	if !result.Passed {
		message = "Quiz not passed, try again!"
	}
	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"status":  true,
		"message": message,
		"data":    e,
		"meta": fiber.Map{
			"score":        result.Score,
			"passed":       result.Passed,
			"passingScore": result.PassingScore,
		},
	})
}

func (h *EnrollmentController) RateEnrollment(c *fiber.Ctx) error {
	p, ok := middleware.CurrentPrincipal(c)
	if !ok {
		return middleware.JsonResponse(c, fiber.StatusUnauthorized, false, "Unauthorized!", nil)
	}
	id := c.Locals("enrollmentID").(uint)
	reqData := c.Locals("validatedRating").(*validators.Rate)

	e, err := h.Service.Rate(c.UserContext(), p, id, *reqData.Rating, reqData.Review)
	if err != nil {
		return middleware.ErrorResponse(c, err)
	}
	return middleware.JsonResponse(c, fiber.StatusOK, true, "Rating saved successfully!", e)
}

func (h *EnrollmentController) ReviewEnrollment(c *fiber.Ctx) error {
	p, ok := middleware.CurrentPrincipal(c)
	if !ok {
		return middleware.JsonResponse(c, fiber.StatusUnauthorized, false, "Unauthorized!", nil)
	}
	id := c.Locals("enrollmentID").(uint)
	reqData := c.Locals("validatedReview").(*validators.Review)

	status := courseModels.ApprovalStatus(reqData.Status)
	e, err := h.Service.Review(c.UserContext(), p, id, status, reqData.RejectionReason)
	if err != nil {
		return middleware.ErrorResponse(c, err)
	}
	return middleware.JsonResponse(c, fiber.StatusOK, true, "Enrollment "+string(status)+"!", e)
}

func (h *EnrollmentController) GetEnrollment(c *fiber.Ctx) error {
	p, ok := middleware.CurrentPrincipal(c)
	if !ok {
		return middleware.JsonResponse(c, fiber.StatusUnauthorized, false, "Unauthorized!", nil)
	}
	e, err := h.Service.Get(c.UserContext(), p, c.Locals("enrollmentID").(uint))
	if err != nil {
		return middleware.ErrorResponse(c, err)
	}
	return middleware.JsonResponse(c, fiber.StatusOK, true, "Enrollment fetched successfully!", e)
}

func (h *EnrollmentController) GetMyEnrollments(c *fiber.Ctx) error {
	p, ok := middleware.CurrentPrincipal(c)
	if !ok {
		return middleware.JsonResponse(c, fiber.StatusUnauthorized, false, "Unauthorized!", nil)
	}
	list, err := h.Service.ListMine(c.UserContext(), p)
	if err != nil {
		return middleware.ErrorResponse(c, err)
	}
	return middleware.JsonResponse(c, fiber.StatusOK, true, "Enrollments fetched successfully!", list)
}

func (h *EnrollmentController) GetCourseEnrollments(c *fiber.Ctx) error {
	p, ok := middleware.CurrentPrincipal(c)
	if !ok {
		return middleware.JsonResponse(c, fiber.StatusUnauthorized, false, "Unauthorized!", nil)
	}
	courseID := c.Locals("courseID").(uint)
	status, _ := c.Locals("statusFilter").(string)

	list, err := h.Service.ListForCourse(c.UserContext(), p, courseID, status)
	if err != nil {
		return middleware.ErrorResponse(c, err)
	}
	return middleware.JsonResponse(c, fiber.StatusOK, true, "Enrollments fetched successfully!", list)
}
