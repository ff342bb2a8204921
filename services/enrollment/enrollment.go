// Package enrollment is the enrollment state machine: requests, reviews,
// progress, quizzes, ratings and payment settlement all go through here.
package enrollment

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"coursemarket/apperr"
	"coursemarket/auth"
	"coursemarket/database"
	"coursemarket/models"
	courseModels "coursemarket/models/course"
	"coursemarket/services/notification"
	"coursemarket/services/progress"
	"coursemarket/services/quiz"
	"coursemarket/utils"

	"github.com/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// CertificateIssuer issues a certificate for a completed enrollment.
type CertificateIssuer interface {
	IssueIfEligible(ctx context.Context, c courseModels.Course, e courseModels.Enrollment) (*courseModels.Certificate, bool, error)
}

type Service struct {
	db       *gorm.DB
	issuer   CertificateIssuer
	notifier notification.Notifier
	now      func() time.Time
}

// NewService wires the state machine. issuer and notifier may be nil.
func NewService(db *gorm.DB, issuer CertificateIssuer, notifier notification.Notifier) *Service {
	return &Service{db: db, issuer: issuer, notifier: notifier, now: time.Now}
}

// Request asks for access to a free course. A rejected enrollment is
// reopened with its progress cleared; pending or approved ones conflict.
func (s *Service) Request(ctx context.Context, p auth.Principal, courseID uint) (*courseModels.Enrollment, error) {
	var (
		e courseModels.Enrollment
		c courseModels.Course
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		if c, err = findCourse(tx, courseID); err != nil {
			return err
		}
		if !c.IsPublished {
			return apperr.NotFound("course not found")
		}
		if c.IsPriced() {
			return apperr.BadRequest("this is a paid course, purchase it to enroll")
		}

		var found bool
		if e, found, err = lockByUserCourse(tx, p.ID, courseID); err != nil {
			return err
		}
		now := s.now()
		if !found {
			e = courseModels.Enrollment{
				UserID:           p.ID,
				CourseID:         courseID,
				ApprovalStatus:   courseModels.ApprovalPending,
				CompletionStatus: courseModels.CompletionNotStarted,
				EnrolledAt:       now,
			}
			if err := tx.Create(&e).Error; err != nil {
				if database.IsDuplicate(err) {
					return apperr.Conflict("already enrolled in this course")
				}
				return errors.Wrap(err, "create enrollment")
			}
			return nil
		}

		if e.ApprovalStatus != courseModels.ApprovalRejected {
			return apperr.Conflict("already enrolled in this course")
		}
		if err := clearProgress(tx, &e); err != nil {
			return err
		}
		e.ApprovalStatus = courseModels.ApprovalPending
		e.RejectionReason = ""
		e.ReviewedAt = nil
		e.EnrolledAt = now
		return saveEnrollment(tx, &e)
	})
	if err != nil {
		return nil, err
	}

	recipients, err := notification.AdminIDs(ctx, s.db)
	if err != nil {
		log.Printf("[ENROLLMENT] load admins: %v", err)
	}
	s.notify(ctx, append(recipients, c.OwnerID), notification.Event{
		Type:    models.NotificationEnrollmentRequested,
		Title:   "New enrollment request",
		Message: fmt.Sprintf("A student asked to join %s.", c.Title),
		Link:    fmt.Sprintf("/courses/%d/enrollments?status=pending", c.ID),
		Meta:    map[string]interface{}{"courseId": c.ID, "enrollmentId": e.ID, "userId": e.UserID},
	})
	return &e, nil
}

// Review approves or rejects an enrollment. Reviewing into the state the
// enrollment is already in changes nothing.
func (s *Service) Review(ctx context.Context, p auth.Principal, enrollmentID uint, status courseModels.ApprovalStatus, reason string) (*courseModels.Enrollment, error) {
	if status != courseModels.ApprovalApproved && status != courseModels.ApprovalRejected {
		return nil, apperr.BadRequest("status must be approved or rejected")
	}

	var (
		e       courseModels.Enrollment
		c       courseModels.Course
		changed bool
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		if e, err = lockEnrollment(tx, enrollmentID); err != nil {
			return err
		}
		if c, err = findCourse(tx, e.CourseID); err != nil {
			return err
		}
		if !p.IsAdmin() && c.OwnerID != p.ID {
			return apperr.Forbidden("only an admin or the course owner can review enrollments")
		}

		now := s.now()
		switch status {
		case courseModels.ApprovalApproved:
			if e.IsApproved() {
				return nil
			}
			if changed, err = approveIfNot(tx, e.ID, map[string]interface{}{"reviewed_at": now}); err != nil || !changed {
				return err
			}
			e.ApprovalStatus = courseModels.ApprovalApproved
			e.RejectionReason = ""
			e.ReviewedAt = &now
		case courseModels.ApprovalRejected:
			if e.ApprovalStatus == courseModels.ApprovalRejected {
				return nil
			}
			if err := clearProgress(tx, &e); err != nil {
				return err
			}
			reason = strings.TrimSpace(reason)
			if reason == "" {
				reason = courseModels.DefaultRejectionReason
			}
			e.ApprovalStatus = courseModels.ApprovalRejected
			e.RejectionReason = reason
			e.ReviewedAt = &now
			if err := saveEnrollment(tx, &e); err != nil {
				return err
			}
			changed = true
		}
		return refreshAggregates(tx, c.ID)
	})
	if err != nil {
		return nil, err
	}
	if !changed {
		return &e, nil
	}

	ev := notification.Event{
		Type:    models.NotificationEnrollmentApproved,
		Title:   "Enrollment approved",
		Message: fmt.Sprintf("You now have access to %s.", c.Title),
		Link:    fmt.Sprintf("/enrollments/%d", e.ID),
		Meta:    map[string]interface{}{"courseId": c.ID, "enrollmentId": e.ID},
	}
	if status == courseModels.ApprovalRejected {
		ev.Type = models.NotificationEnrollmentRejected
		ev.Title = "Enrollment not approved"
		ev.Message = fmt.Sprintf("Your request to join %s was rejected: %s", c.Title, e.RejectionReason)
	}
	s.notify(ctx, []uint{e.UserID}, ev)
	return &e, nil
}

// CompleteLesson records a lesson as done. Completing a lesson twice is a
// no-op.
func (s *Service) CompleteLesson(ctx context.Context, p auth.Principal, enrollmentID, moduleID, lessonID uint) (*courseModels.Enrollment, error) {
	var (
		e           courseModels.Enrollment
		c           courseModels.Course
		wasComplete bool
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		if e, c, err = s.lockForProgress(tx, p, enrollmentID); err != nil {
			return err
		}
		wasComplete = e.CompletionStatus == courseModels.CompletionCompleted

		shape := progress.ShapeOf(c)
		m, ok := shape.Module(moduleID)
		if !ok {
			return apperr.NotFound("module not found in this course")
		}
		if !m.HasLesson(lessonID) {
			return apperr.NotFound("lesson not found in this module")
		}
		if err := progress.CheckGate(shape, progress.PassedQuizzes(e), moduleID); err != nil {
			return err
		}

		if !hasLesson(e, moduleID, lessonID) {
			row := courseModels.LessonCompletion{
				EnrollmentID: e.ID,
				ModuleID:     moduleID,
				LessonID:     lessonID,
				CompletedAt:  s.now(),
			}
			if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&row).Error; err != nil {
				return errors.Wrap(err, "record lesson completion")
			}
			e.CompletedLessons = append(e.CompletedLessons, row)
		}

		s.recompute(&e, c)
		return saveEnrollment(tx, &e)
	})
	if err != nil {
		return nil, err
	}
	s.afterProgress(ctx, c, e, wasComplete)
	return &e, nil
}

// SubmitQuiz grades a module quiz and stores the result, replacing any
// earlier attempt. The module gate does not apply: passing the quiz is how a
// student unblocks the next module.
func (s *Service) SubmitQuiz(ctx context.Context, p auth.Principal, enrollmentID, moduleID uint, answers []interface{}) (*courseModels.Enrollment, quiz.Result, error) {
	var (
		e           courseModels.Enrollment
		c           courseModels.Course
		result      quiz.Result
		wasComplete bool
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		if e, c, err = s.lockForProgress(tx, p, enrollmentID); err != nil {
			return err
		}
		wasComplete = e.CompletionStatus == courseModels.CompletionCompleted

		var module *courseModels.Module
		for i := range c.Modules {
			if c.Modules[i].ID == moduleID {
				module = &c.Modules[i]
				break
			}
		}
		if module == nil {
			return apperr.NotFound("module not found in this course")
		}
		if !module.HasQuiz() {
			return apperr.BadRequest("this module has no quiz")
		}

		if result, err = quiz.Grade(quiz.DefinitionOf(*module.Quiz), answers); err != nil {
			return err
		}

		row := courseModels.QuizResult{
			EnrollmentID: e.ID,
			ModuleID:     moduleID,
			Score:        result.Score,
			Passed:       result.Passed,
			CompletedAt:  s.now(),
		}
		err = tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "enrollment_id"}, {Name: "module_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"score", "passed", "completed_at"}),
		}).Create(&row).Error
		if err != nil {
			return errors.Wrap(err, "store quiz result")
		}
		setQuizResult(&e, row)

		s.recompute(&e, c)
		return saveEnrollment(tx, &e)
	})
	if err != nil {
		return nil, quiz.Result{}, err
	}
	s.afterProgress(ctx, c, e, wasComplete)
	return &e, result, nil
}

// Rate stores the student's rating and review and refreshes the course
// rating aggregates.
func (s *Service) Rate(ctx context.Context, p auth.Principal, enrollmentID uint, rating int, review string) (*courseModels.Enrollment, error) {
	if rating < 1 || rating > 5 {
		return nil, apperr.BadRequest("rating must be an integer between 1 and 5")
	}

	var e courseModels.Enrollment
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		if e, err = lockEnrollment(tx, enrollmentID); err != nil {
			return err
		}
		if !p.Owns(e.UserID) {
			return apperr.Forbidden("you can only rate your own enrollment")
		}
		if !e.IsApproved() {
			return apperr.Forbidden("only approved enrollments can be rated")
		}
		now := s.now()
		e.Rating = &rating
		e.Review = strings.TrimSpace(review)
		e.RatedAt = &now
		if err := saveEnrollment(tx, &e); err != nil {
			return err
		}
		return refreshAggregates(tx, e.CourseID)
	})
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// lockForProgress loads the enrollment and its course for a progress
// mutation by the enrolled student.
func (s *Service) lockForProgress(tx *gorm.DB, p auth.Principal, enrollmentID uint) (courseModels.Enrollment, courseModels.Course, error) {
	e, err := lockEnrollment(tx, enrollmentID)
	if err != nil {
		return e, courseModels.Course{}, err
	}
	if !p.Owns(e.UserID) {
		return e, courseModels.Course{}, apperr.Forbidden("you can only update your own enrollment")
	}
	if !e.IsApproved() {
		return e, courseModels.Course{}, apperr.Forbidden("enrollment must be approved before recording progress")
	}
	c, err := loadCourse(tx, e.CourseID)
	return e, c, err
}

func (s *Service) recompute(e *courseModels.Enrollment, c courseModels.Course) {
	e.PercentComplete = progress.ForEnrollment(c, *e)
	hasActivity := len(e.CompletedLessons) > 0 || len(e.CompletedQuizzes) > 0
	e.CompletionStatus = progress.StatusFor(e.PercentComplete, hasActivity)
	if e.CompletionStatus != courseModels.CompletionCompleted {
		e.CompletedAt = nil
		return
	}
	if e.CompletedAt == nil {
		now := s.now()
		e.CompletedAt = &now
	}
}

// afterProgress runs the post-commit side effects of a progress mutation.
// Failures are logged and retried on the next qualifying mutation.
func (s *Service) afterProgress(ctx context.Context, c courseModels.Course, e courseModels.Enrollment, wasComplete bool) {
	if e.CompletionStatus != courseModels.CompletionCompleted {
		return
	}
	if !wasComplete {
		s.notify(ctx, []uint{e.UserID}, notification.Event{
			Type:    models.NotificationCourseCompleted,
			Title:   "Course completed",
			Message: fmt.Sprintf("You completed %s.", c.Title),
			Link:    fmt.Sprintf("/enrollments/%d", e.ID),
			Meta:    map[string]interface{}{"courseId": c.ID, "enrollmentId": e.ID},
		})
	}
	if s.issuer == nil {
		return
	}
	if _, _, err := s.issuer.IssueIfEligible(ctx, c, e); err != nil {
		utils.ReportError("CERTIFICATE", err, map[string]interface{}{"enrollmentId": e.ID})
	}
}

func (s *Service) notify(ctx context.Context, userIDs []uint, ev notification.Event) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Notify(ctx, userIDs, ev); err != nil {
		log.Printf("[ENROLLMENT] notify %s failed: %v", ev.Type, err)
	}
}

func hasLesson(e courseModels.Enrollment, moduleID, lessonID uint) bool {
	for _, l := range e.CompletedLessons {
		if l.ModuleID == moduleID && l.LessonID == lessonID {
			return true
		}
	}
	return false
}

func setQuizResult(e *courseModels.Enrollment, row courseModels.QuizResult) {
	for i := range e.CompletedQuizzes {
		if e.CompletedQuizzes[i].ModuleID == row.ModuleID {
			row.ID = e.CompletedQuizzes[i].ID
			e.CompletedQuizzes[i] = row
			return
		}
	}
	e.CompletedQuizzes = append(e.CompletedQuizzes, row)
}
