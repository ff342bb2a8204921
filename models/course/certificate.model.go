package course

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// CertificateTemplate is the display data printed on a certificate.
type CertificateTemplate struct {
	Enabled   bool   `json:"enabled"`
	Title     string `json:"title"`
	Signatory string `json:"signatory,omitempty"`
	Body      string `json:"body,omitempty"`
}

// Certificate represents an issued certificate for course completion. It is
// never modified after creation.
type Certificate struct {
	gorm.Model
	EnrollmentID      uint                                    `json:"enrollmentId" gorm:"uniqueIndex;not null"`
	UserID            uint                                    `json:"userId" gorm:"index;not null"`
	CourseID          uint                                    `json:"courseId" gorm:"index;not null"`
	CertificateNumber string                                  `json:"certificateNumber" gorm:"type:varchar(32);uniqueIndex;not null"`
	RecipientName     string                                  `json:"recipientName"`
	CourseTitle       string                                  `json:"courseTitle"`
	Template          datatypes.JSONType[CertificateTemplate] `json:"template"`
	IssuedAt          time.Time                               `json:"issuedAt"`
}
