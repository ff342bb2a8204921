package enrollment

import (
	"context"
	"fmt"

	"coursemarket/apperr"
	"coursemarket/auth"
	"coursemarket/database"
	"coursemarket/models"
	courseModels "coursemarket/models/course"
	"coursemarket/services/notification"

	"github.com/pkg/errors"
	"gorm.io/gorm"
)

// AttachPaymentOrder records a new checkout attempt for the caller's
// enrollment in a priced course, creating the enrollment if needed. Only the
// latest merchant order id is kept.
func (s *Service) AttachPaymentOrder(ctx context.Context, p auth.Principal, courseID uint, merchOrderID string) (*courseModels.Enrollment, error) {
	var e courseModels.Enrollment
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var (
			found bool
			err   error
		)
		if e, found, err = lockByUserCourse(tx, p.ID, courseID); err != nil {
			return err
		}
		now := s.now()
		if !found {
			e = courseModels.Enrollment{
				UserID:           p.ID,
				CourseID:         courseID,
				ApprovalStatus:   courseModels.ApprovalPending,
				PaymentStatus:    courseModels.PaymentPending,
				CompletionStatus: courseModels.CompletionNotStarted,
				MerchOrderID:     merchOrderID,
				EnrolledAt:       now,
			}
			if err := tx.Create(&e).Error; err != nil {
				if database.IsDuplicate(err) {
					return apperr.Conflict("a checkout for this course is already in progress")
				}
				return errors.Wrap(err, "create enrollment")
			}
			return nil
		}

		if e.IsApproved() {
			return apperr.Conflict("you already have access to this course")
		}
		if e.ApprovalStatus == courseModels.ApprovalRejected {
			if err := clearProgress(tx, &e); err != nil {
				return err
			}
			e.ApprovalStatus = courseModels.ApprovalPending
			e.RejectionReason = ""
			e.ReviewedAt = nil
		}
		e.PaymentStatus = courseModels.PaymentPending
		e.MerchOrderID = merchOrderID
		e.PaymentOrderID = ""
		return saveEnrollment(tx, &e)
	})
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// MarkPaid settles a successful payment: the enrollment becomes paid and,
// unless it already was, approved. approved reports whether this call
// granted access.
func (s *Service) MarkPaid(ctx context.Context, merchOrderID, paymentOrderID string) (e *courseModels.Enrollment, approved bool, err error) {
	var (
		row       courseModels.Enrollment
		c         courseModels.Course
		newlyPaid bool
	)
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		if row, err = lockByMerchOrder(tx, merchOrderID); err != nil {
			return err
		}
		if c, err = findCourse(tx, row.CourseID); err != nil {
			return err
		}

		now := s.now()
		newlyPaid = row.PaymentStatus != courseModels.PaymentPaid
		updates := map[string]interface{}{"payment_status": courseModels.PaymentPaid}
		if paymentOrderID != "" {
			updates["payment_order_id"] = paymentOrderID
			row.PaymentOrderID = paymentOrderID
		}
		if row.PaidAt == nil {
			updates["paid_at"] = now
			row.PaidAt = &now
		}
		if err := tx.Model(&row).Updates(updates).Error; err != nil {
			return errors.Wrap(err, "mark enrollment paid")
		}
		row.PaymentStatus = courseModels.PaymentPaid

		if approved, err = approveIfNot(tx, row.ID, map[string]interface{}{"reviewed_at": now}); err != nil || !approved {
			return err
		}
		row.ApprovalStatus = courseModels.ApprovalApproved
		row.RejectionReason = ""
		row.ReviewedAt = &now
		return refreshAggregates(tx, row.CourseID)
	})
	if err != nil {
		return nil, false, err
	}

	if newlyPaid {
		s.notify(ctx, []uint{row.UserID}, notification.Event{
			Type:    models.NotificationPaymentSucceeded,
			Title:   "Payment received",
			Message: fmt.Sprintf("We received your payment for %s.", c.Title),
			Link:    fmt.Sprintf("/enrollments/%d", row.ID),
			Meta:    map[string]interface{}{"courseId": c.ID, "merchOrderId": merchOrderID},
		})
	}
	if approved {
		s.notify(ctx, []uint{row.UserID}, notification.Event{
			Type:    models.NotificationEnrollmentApproved,
			Title:   "Enrollment approved",
			Message: fmt.Sprintf("You now have access to %s.", c.Title),
			Link:    fmt.Sprintf("/enrollments/%d", row.ID),
			Meta:    map[string]interface{}{"courseId": c.ID, "enrollmentId": row.ID},
		})
	}
	return &row, approved, nil
}

// MarkPaymentFailed records a failed payment. Approval is left alone so the
// student can retry, and a payment already settled as paid stays paid.
func (s *Service) MarkPaymentFailed(ctx context.Context, merchOrderID, paymentOrderID string) (*courseModels.Enrollment, error) {
	var (
		row     courseModels.Enrollment
		changed bool
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		if row, err = lockByMerchOrder(tx, merchOrderID); err != nil {
			return err
		}
		if row.PaymentStatus == courseModels.PaymentPaid || row.PaymentStatus == courseModels.PaymentFailed {
			return nil
		}
		updates := map[string]interface{}{"payment_status": courseModels.PaymentFailed}
		if paymentOrderID != "" {
			updates["payment_order_id"] = paymentOrderID
			row.PaymentOrderID = paymentOrderID
		}
		if err := tx.Model(&row).Updates(updates).Error; err != nil {
			return errors.Wrap(err, "mark payment failed")
		}
		row.PaymentStatus = courseModels.PaymentFailed
		changed = true
		return nil
	})
	if err != nil {
		return nil, err
	}
	if changed {
		s.notify(ctx, []uint{row.UserID}, notification.Event{
			Type:    models.NotificationPaymentFailed,
			Title:   "Payment failed",
			Message: "Your payment could not be completed. You can try again from the course page.",
			Link:    fmt.Sprintf("/courses/%d", row.CourseID),
			Meta:    map[string]interface{}{"courseId": row.CourseID, "merchOrderId": merchOrderID},
		})
	}
	return &row, nil
}
