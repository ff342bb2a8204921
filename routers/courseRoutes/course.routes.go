package courseRoutes

import (
	controllers "coursemarket/controllers/enrollment"
	"coursemarket/middleware"
	"coursemarket/models"
	validators "coursemarket/validators/enrollment"

	"github.com/gofiber/fiber/v2"
)

// SetupCourseRoutes sets up the instructor and admin views of a course.
func SetupCourseRoutes(app fiber.Router, h *controllers.EnrollmentController) {
	courseGroup := app.Group("/courses", middleware.JWTMiddleware)

	// Roster, optionally filtered by ?status=
	courseGroup.Get("/:id/enrollments",
		middleware.RequireRole(models.RoleInstructor, models.RoleAdmin),
		validators.CourseEnrollments(), h.GetCourseEnrollments)
}
