package enrollment

import (
	"math"

	"coursemarket/apperr"
	courseModels "coursemarket/models/course"

	"github.com/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// approvedStatuses are the stored values that grant access. Rows written
// before approval existed carry an empty status.
var approvedStatuses = []string{string(courseModels.ApprovalApproved), ""}

func forUpdate(tx *gorm.DB) *gorm.DB {
	return tx.Clauses(clause.Locking{Strength: "UPDATE"})
}

// lockEnrollment loads an enrollment and its progress rows, holding the row
// lock until the surrounding transaction ends.
func lockEnrollment(tx *gorm.DB, id uint) (courseModels.Enrollment, error) {
	var e courseModels.Enrollment
	err := forUpdate(tx).First(&e, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return e, apperr.NotFound("enrollment not found")
	}
	if err != nil {
		return e, errors.Wrapf(err, "load enrollment %d", id)
	}
	return e, loadProgress(tx, &e)
}

// lockByUserCourse is like lockEnrollment but keyed by (user, course).
// found is false when the user never enrolled.
func lockByUserCourse(tx *gorm.DB, userID, courseID uint) (e courseModels.Enrollment, found bool, err error) {
	err = forUpdate(tx).
		Where("user_id = ? AND course_id = ?", userID, courseID).
		Limit(1).Find(&e).Error
	if err != nil {
		return e, false, errors.Wrap(err, "load enrollment")
	}
	if e.ID == 0 {
		return e, false, nil
	}
	return e, true, loadProgress(tx, &e)
}

func lockByMerchOrder(tx *gorm.DB, merchOrderID string) (courseModels.Enrollment, error) {
	var e courseModels.Enrollment
	err := forUpdate(tx).Where("merch_order_id = ?", merchOrderID).Limit(1).Find(&e).Error
	if err != nil {
		return e, errors.Wrap(err, "load enrollment by order")
	}
	if e.ID == 0 || merchOrderID == "" {
		return e, apperr.NotFound("no enrollment for order %s", merchOrderID)
	}
	return e, nil
}

func loadProgress(tx *gorm.DB, e *courseModels.Enrollment) error {
	if err := tx.Where("enrollment_id = ?", e.ID).Order("id").Find(&e.CompletedLessons).Error; err != nil {
		return errors.Wrap(err, "load lesson completions")
	}
	if err := tx.Where("enrollment_id = ?", e.ID).Order("module_id").Find(&e.CompletedQuizzes).Error; err != nil {
		return errors.Wrap(err, "load quiz results")
	}
	return nil
}

// loadCourse loads a course with its live modules, lessons and quizzes.
func loadCourse(tx *gorm.DB, id uint) (courseModels.Course, error) {
	var c courseModels.Course
	err := tx.Where("is_deleted = ?", false).
		Preload("Modules", "is_deleted = ?", false).
		Preload("Modules.Lessons", "is_deleted = ?", false).
		Preload("Modules.Quiz.Questions").
		First(&c, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return c, apperr.NotFound("course not found")
	}
	if err != nil {
		return c, errors.Wrapf(err, "load course %d", id)
	}
	return c, nil
}

func findCourse(tx *gorm.DB, id uint) (courseModels.Course, error) {
	var c courseModels.Course
	err := tx.Where("is_deleted = ?", false).First(&c, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return c, apperr.NotFound("course not found")
	}
	if err != nil {
		return c, errors.Wrapf(err, "load course %d", id)
	}
	return c, nil
}

func saveEnrollment(tx *gorm.DB, e *courseModels.Enrollment) error {
	if err := tx.Omit(clause.Associations).Save(e).Error; err != nil {
		return errors.Wrapf(err, "save enrollment %d", e.ID)
	}
	return nil
}

// clearProgress removes every completion record and the rating. The caller
// saves the enrollment.
func clearProgress(tx *gorm.DB, e *courseModels.Enrollment) error {
	if err := tx.Where("enrollment_id = ?", e.ID).Delete(&courseModels.LessonCompletion{}).Error; err != nil {
		return errors.Wrap(err, "clear lesson completions")
	}
	if err := tx.Where("enrollment_id = ?", e.ID).Delete(&courseModels.QuizResult{}).Error; err != nil {
		return errors.Wrap(err, "clear quiz results")
	}
	e.CompletedLessons = nil
	e.CompletedQuizzes = nil
	e.PercentComplete = 0
	e.CompletionStatus = courseModels.CompletionNotStarted
	e.CompletedAt = nil
	e.Rating = nil
	e.Review = ""
	e.RatedAt = nil
	return nil
}

// approveIfNot flips the enrollment to approved unless it already is. The
// conditional update makes concurrent approvals (admin review racing a
// payment notification) apply their side effects once.
func approveIfNot(tx *gorm.DB, id uint, fields map[string]interface{}) (bool, error) {
	updates := map[string]interface{}{
		"approval_status":  courseModels.ApprovalApproved,
		"rejection_reason": "",
	}
	for k, v := range fields {
		updates[k] = v
	}
	res := tx.Model(&courseModels.Enrollment{}).
		Where("id = ? AND approval_status NOT IN ?", id, approvedStatuses).
		Updates(updates)
	if res.Error != nil {
		return false, errors.Wrapf(res.Error, "approve enrollment %d", id)
	}
	return res.RowsAffected == 1, nil
}

// refreshAggregates recomputes the course counters from its enrollments.
func refreshAggregates(tx *gorm.DB, courseID uint) error {
	var agg struct {
		Total   int64
		Reviews int64
		Average *float64
	}
	err := tx.Model(&courseModels.Enrollment{}).
		Select("COUNT(*) AS total, COUNT(rating) AS reviews, AVG(rating) AS average").
		Where("course_id = ? AND approval_status IN ?", courseID, approvedStatuses).
		Scan(&agg).Error
	if err != nil {
		return errors.Wrapf(err, "aggregate enrollments of course %d", courseID)
	}

	average := 0.0
	if agg.Average != nil {
		average = math.Round(*agg.Average*100) / 100
	}
	err = tx.Model(&courseModels.Course{}).Where("id = ?", courseID).Updates(map[string]interface{}{
		"total_enrollments": agg.Total,
		"average_rating":    average,
		"number_of_reviews": agg.Reviews,
	}).Error
	return errors.Wrapf(err, "update aggregates of course %d", courseID)
}
