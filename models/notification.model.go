package models

import (
	"time"

	"gorm.io/datatypes"
)

// Notification types emitted by the enrollment engine
const (
	NotificationEnrollmentRequested = "ENROLLMENT_REQUESTED"
	NotificationEnrollmentApproved  = "ENROLLMENT_APPROVED"
	NotificationEnrollmentRejected  = "ENROLLMENT_REJECTED"
	NotificationCourseCompleted     = "COURSE_COMPLETED"
	NotificationCertificateIssued   = "CERTIFICATE_ISSUED"
	NotificationPaymentSucceeded    = "PAYMENT_SUCCEEDED"
	NotificationPaymentFailed       = "PAYMENT_FAILED"
)

// Notification is one in-app message for one recipient.
type Notification struct {
	ID        uint           `gorm:"primaryKey" json:"id"`
	UserID    uint           `gorm:"not null;index" json:"userId"`
	Type      string         `gorm:"size:50;not null" json:"type"`
	Title     string         `gorm:"size:255;not null" json:"title"`
	Message   string         `gorm:"type:text;not null" json:"message"`
	Link      string         `gorm:"size:500" json:"link,omitempty"`
	Meta      datatypes.JSON `json:"meta,omitempty"`
	IsRead    bool           `gorm:"default:false" json:"isRead"`
	CreatedAt time.Time      `gorm:"autoCreateTime" json:"createdAt"`
	ReadAt    *time.Time     `json:"readAt,omitempty"`
}
