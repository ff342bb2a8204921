package enrollment

import (
	"context"

	"coursemarket/apperr"
	"coursemarket/auth"
	courseModels "coursemarket/models/course"

	"github.com/pkg/errors"
	"gorm.io/gorm"
)

func withProgress(db *gorm.DB) *gorm.DB {
	return db.Preload("CompletedLessons").Preload("CompletedQuizzes")
}

// Get returns an enrollment visible to the student, the course owner or an
// admin.
func (s *Service) Get(ctx context.Context, p auth.Principal, id uint) (*courseModels.Enrollment, error) {
	db := s.db.WithContext(ctx)

	var e courseModels.Enrollment
	err := withProgress(db).First(&e, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.NotFound("enrollment not found")
	}
	if err != nil {
		return nil, errors.Wrapf(err, "load enrollment %d", id)
	}
	if p.Owns(e.UserID) || p.IsAdmin() {
		return &e, nil
	}

	c, err := findCourse(db, e.CourseID)
	if err != nil {
		return nil, err
	}
	if c.OwnerID != p.ID {
		return nil, apperr.Forbidden("you cannot view this enrollment")
	}
	return &e, nil
}

// ListMine returns the caller's enrollments, newest first.
func (s *Service) ListMine(ctx context.Context, p auth.Principal) ([]courseModels.Enrollment, error) {
	var list []courseModels.Enrollment
	err := withProgress(s.db.WithContext(ctx)).
		Where("user_id = ?", p.ID).
		Order("created_at desc").
		Find(&list).Error
	if err != nil {
		return nil, errors.Wrap(err, "list enrollments")
	}
	return list, nil
}

// ListForCourse returns a course's enrollments for its owner or an admin,
// optionally filtered by approval status.
func (s *Service) ListForCourse(ctx context.Context, p auth.Principal, courseID uint, status string) ([]courseModels.Enrollment, error) {
	db := s.db.WithContext(ctx)
	c, err := findCourse(db, courseID)
	if err != nil {
		return nil, err
	}
	if !p.IsAdmin() && c.OwnerID != p.ID {
		return nil, apperr.Forbidden("only an admin or the course owner can list enrollments")
	}

	q := withProgress(db).Where("course_id = ?", courseID)
	switch courseModels.ApprovalStatus(status) {
	case "":
	case courseModels.ApprovalApproved:
		q = q.Where("approval_status IN ?", approvedStatuses)
	case courseModels.ApprovalPending, courseModels.ApprovalRejected:
		q = q.Where("approval_status = ?", status)
	default:
		return nil, apperr.BadRequest("unknown status %q", status)
	}

	var list []courseModels.Enrollment
	if err := q.Order("created_at desc").Find(&list).Error; err != nil {
		return nil, errors.Wrap(err, "list course enrollments")
	}
	return list, nil
}

// RefreshCourseAggregates recomputes one course's enrollment count and
// rating from its approved enrollments.
func (s *Service) RefreshCourseAggregates(ctx context.Context, courseID uint) error {
	return refreshAggregates(s.db.WithContext(ctx), courseID)
}

// RefreshAllCourseAggregates repairs every course's aggregates and returns
// how many courses were refreshed.
func (s *Service) RefreshAllCourseAggregates(ctx context.Context) (int, error) {
	var ids []uint
	if err := s.db.WithContext(ctx).Model(&courseModels.Course{}).
		Where("is_deleted = ?", false).
		Pluck("id", &ids).Error; err != nil {
		return 0, errors.Wrap(err, "list courses")
	}
	for i, id := range ids {
		if err := ctx.Err(); err != nil {
			return i, err
		}
		if err := s.RefreshCourseAggregates(ctx, id); err != nil {
			return i, err
		}
	}
	return len(ids), nil
}
