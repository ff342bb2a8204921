package enrollmentRoutes

import (
	controllers "coursemarket/controllers/enrollment"
	"coursemarket/middleware"
	"coursemarket/models"
	validators "coursemarket/validators/enrollment"

	"github.com/gofiber/fiber/v2"
)

// SetupEnrollmentRoutes sets up the enrollment lifecycle routes
func SetupEnrollmentRoutes(app fiber.Router, h *controllers.EnrollmentController) {
	enrollGroup := app.Group("/enrollments", middleware.JWTMiddleware)

	enrollGroup.Post("/", validators.EnrollCourse(), h.RequestEnrollment)
	enrollGroup.Get("/me", h.GetMyEnrollments)
	enrollGroup.Get("/:id", validators.GetEnrollment(), h.GetEnrollment)

	// Learning progress
	enrollGroup.Put("/:id/progress", validators.UpdateProgress(), h.UpdateProgress)
	enrollGroup.Put("/:id/quiz", validators.SubmitQuizAnswers(), h.SubmitQuiz)
	enrollGroup.Put("/:id/rating", validators.RateEnrollment(), h.RateEnrollment)

	// Approval by the course owner or an admin
	enrollGroup.Put("/:id/review",
		middleware.RequireRole(models.RoleInstructor, models.RoleAdmin),
		validators.ReviewEnrollment(), h.ReviewEnrollment)
}
