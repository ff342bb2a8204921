// Package certificate mints completion certificates, at most one per enrollment.
package certificate

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"coursemarket/apperr"
	"coursemarket/database"
	"coursemarket/models"
	courseModels "coursemarket/models/course"
	"coursemarket/services/notification"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// NumberPrefix starts every certificate number.
const NumberPrefix = "CERT-"

const suffixLength = 12

// Issuer creates certificates for completed enrollments.
type Issuer struct {
	db       *gorm.DB
	notifier notification.Notifier
	now      func() time.Time
}

func NewIssuer(db *gorm.DB, notifier notification.Notifier) *Issuer {
	return &Issuer{db: db, notifier: notifier, now: time.Now}
}

// NewNumber returns a fresh certificate number: the prefix followed by a
// random upper-case alphanumeric suffix.
func NewNumber() string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))
	return NumberPrefix + suffix[:suffixLength]
}

// IssueIfEligible returns the enrollment's certificate, creating it when the
// enrollment is completed and the course template is enabled. issued is true
// only when this call created it. Concurrent callers are reconciled by the
// unique index on enrollment_id: the loser gets the winner's certificate.
func (is *Issuer) IssueIfEligible(ctx context.Context, c courseModels.Course, e courseModels.Enrollment) (cert *courseModels.Certificate, issued bool, err error) {
	if e.CompletionStatus != courseModels.CompletionCompleted || !e.IsApproved() || !c.CertificatesEnabled() {
		return nil, false, nil
	}

	db := is.db.WithContext(ctx)
	if existing, err := is.findByEnrollment(db, e.ID); err != nil || existing != nil {
		return existing, false, err
	}

	var user models.User
	if err := db.Select("id", "name").First(&user, e.UserID).Error; err != nil {
		return nil, false, errors.Wrapf(err, "load recipient %d", e.UserID)
	}

	for attempt := 0; attempt < 3; attempt++ {
		candidate := courseModels.Certificate{
			EnrollmentID:      e.ID,
			UserID:            e.UserID,
			CourseID:          c.ID,
			CertificateNumber: NewNumber(),
			RecipientName:     user.Name,
			CourseTitle:       c.Title,
			Template:          datatypes.NewJSONType(c.CertificateTemplate()),
			IssuedAt:          is.now(),
		}
		err := db.Create(&candidate).Error
		if err == nil {
			is.announce(ctx, c, candidate)
			return &candidate, true, nil
		}
		if !database.IsDuplicate(err) {
			return nil, false, errors.Wrap(err, "create certificate")
		}
		// either someone else issued it first or the number collided
		existing, findErr := is.findByEnrollment(db, e.ID)
		if findErr != nil || existing != nil {
			return existing, false, findErr
		}
	}
	return nil, false, errors.Errorf("could not allocate a unique certificate number for enrollment %d", e.ID)
}

func (is *Issuer) findByEnrollment(db *gorm.DB, enrollmentID uint) (*courseModels.Certificate, error) {
	var cert courseModels.Certificate
	err := db.Where("enrollment_id = ?", enrollmentID).Limit(1).Find(&cert).Error
	if err != nil {
		return nil, errors.Wrap(err, "look up certificate")
	}
	if cert.ID == 0 {
		return nil, nil
	}
	return &cert, nil
}

func (is *Issuer) announce(ctx context.Context, c courseModels.Course, cert courseModels.Certificate) {
	if is.notifier == nil {
		return
	}
	err := is.notifier.Notify(ctx, []uint{cert.UserID}, notification.Event{
		Type:    models.NotificationCertificateIssued,
		Title:   "Your certificate is ready",
		Message: fmt.Sprintf("Congratulations on completing %s. Certificate number: %s", c.Title, cert.CertificateNumber),
		Link:    "/certificates/verify/" + cert.CertificateNumber,
		Meta: map[string]interface{}{
			"courseId":          c.ID,
			"certificateNumber": cert.CertificateNumber,
		},
	})
	if err != nil {
		log.Printf("[CERTIFICATE] notify user %d failed: %v", cert.UserID, err)
	}
}

// ListForUser returns the user's certificates, newest first.
func (is *Issuer) ListForUser(ctx context.Context, userID uint) ([]courseModels.Certificate, error) {
	var certs []courseModels.Certificate
	if err := is.db.WithContext(ctx).Where("user_id = ?", userID).Order("issued_at desc").Find(&certs).Error; err != nil {
		return nil, errors.Wrap(err, "list certificates")
	}
	return certs, nil
}

// Verify looks a certificate up by its public number.
func (is *Issuer) Verify(ctx context.Context, number string) (*courseModels.Certificate, error) {
	number = strings.ToUpper(strings.TrimSpace(number))
	if !strings.HasPrefix(number, NumberPrefix) {
		return nil, apperr.BadRequest("invalid certificate number")
	}
	var cert courseModels.Certificate
	err := is.db.WithContext(ctx).Where("certificate_number = ?", number).First(&cert).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.NotFound("certificate not found")
	}
	if err != nil {
		return nil, errors.Wrap(err, "verify certificate")
	}
	return &cert, nil
}
