package enrollmentValidator

import (
	"coursemarket/middleware"
	"coursemarket/validators"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"
)

type RequestEnrollment struct {
	CourseID uint `json:"courseId" validate:"required"`
}

type CompleteLesson struct {
	ModuleID uint `json:"moduleId" validate:"required"`
	LessonID uint `json:"lessonId" validate:"required"`
}

type SubmitQuiz struct {
	ModuleID uint          `json:"moduleId" validate:"required"`
	Answers  []interface{} `json:"answers" validate:"required,max=200"`
}

// Rate leaves the 1-5 range check to the enrollment service.
type Rate struct {
	Rating *int   `json:"rating" validate:"required"`
	Review string `json:"review" validate:"max=2000"`
}

type Review struct {
	Status          string `json:"status" validate:"required,oneof=approved rejected"`
	RejectionReason string `json:"rejectionReason" validate:"max=500"`
}

// ParamID parses a positive numeric route parameter.
func ParamID(c *fiber.Ctx, name string) (uint, bool) {
	raw := strings.TrimSpace(c.Params(name))
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || id == 0 {
		return 0, false
	}
	return uint(id), true
}

// body parses and validates the request body into T, then stores it under
// key for the controller.
func body[T any](key string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		reqData := new(T)
		if err := c.BodyParser(reqData); err != nil {
			return middleware.JsonResponse(c, fiber.StatusBadRequest, false, "Invalid request body!", nil)
		}
		if errors := validators.Struct(reqData); len(errors) > 0 {
			return middleware.ValidationErrorResponse(c, errors)
		}
		c.Locals(key, reqData)
		return c.Next()
	}
}

// withEnrollmentID checks the :id parameter before running next.
func withEnrollmentID(next fiber.Handler) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, ok := ParamID(c, "id")
		if !ok {
			return middleware.JsonResponse(c, fiber.StatusBadRequest, false, "Invalid Enrollment ID!", nil)
		}
		c.Locals("enrollmentID", id)
		return next(c)
	}
}

func EnrollCourse() fiber.Handler {
	return body[RequestEnrollment]("validatedEnrollment")
}

func UpdateProgress() fiber.Handler {
	return withEnrollmentID(body[CompleteLesson]("validatedProgress"))
}

func SubmitQuizAnswers() fiber.Handler {
	return withEnrollmentID(body[SubmitQuiz]("validatedQuiz"))
}

func RateEnrollment() fiber.Handler {
	return withEnrollmentID(body[Rate]("validatedRating"))
}

func ReviewEnrollment() fiber.Handler {
	return withEnrollmentID(body[Review]("validatedReview"))
}

// GetEnrollment validates the :id parameter only.
func GetEnrollment() fiber.Handler {
	return withEnrollmentID(func(c *fiber.Ctx) error { return c.Next() })
}

// CourseEnrollments validates :id and the optional status filter.
func CourseEnrollments() fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, ok := ParamID(c, "id")
		if !ok {
			return middleware.JsonResponse(c, fiber.StatusBadRequest, false, "Invalid Course ID!", nil)
		}
		query := new(struct {
			Status string `query:"status" json:"status" validate:"omitempty,oneof=pending approved rejected"`
		})
		if err := c.QueryParser(query); err != nil {
			return middleware.JsonResponse(c, fiber.StatusBadRequest, false, "Invalid query parameters!", nil)
		}
		if errors := validators.Struct(query); len(errors) > 0 {
			return middleware.ValidationErrorResponse(c, errors)
		}
		c.Locals("courseID", id)
		c.Locals("statusFilter", query.Status)
		return c.Next()
	}
}
