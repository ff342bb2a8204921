package course

import (
	"time"

	"gorm.io/gorm"
)

// ApprovalStatus is the admin controlled access gate.
type ApprovalStatus string

const (
	ApprovalPending  ApprovalStatus = "pending"
	ApprovalApproved ApprovalStatus = "approved"
	ApprovalRejected ApprovalStatus = "rejected"
)

// PaymentStatus is only meaningful for priced courses.
type PaymentStatus string

const (
	PaymentNone    PaymentStatus = ""
	PaymentPending PaymentStatus = "pending"
	PaymentPaid    PaymentStatus = "paid"
	PaymentFailed  PaymentStatus = "failed"
)

// CompletionStatus is derived from PercentComplete.
type CompletionStatus string

const (
	CompletionNotStarted CompletionStatus = "not_started"
	CompletionInProgress CompletionStatus = "in_progress"
	CompletionCompleted  CompletionStatus = "completed"
)

// DefaultRejectionReason is recorded when a reviewer gives none.
const DefaultRejectionReason = "Your enrollment request was not approved."

// Enrollment tracks a user's enrollment in a course with progress. There is
// at most one row per (user, course).
type Enrollment struct {
	gorm.Model
	UserID   uint `json:"userId" gorm:"uniqueIndex:idx_enrollment_user_course;not null"`
	CourseID uint `json:"courseId" gorm:"uniqueIndex:idx_enrollment_user_course;not null"`

	ApprovalStatus   ApprovalStatus   `json:"approvalStatus" gorm:"type:varchar(20);default:'pending'"`
	PaymentStatus    PaymentStatus    `json:"paymentStatus" gorm:"type:varchar(20);default:''"`
	CompletionStatus CompletionStatus `json:"completionStatus" gorm:"type:varchar(20);default:'not_started'"`
	PercentComplete  int              `json:"percentComplete" gorm:"default:0"`

	CompletedLessons []LessonCompletion `json:"completedLessons" gorm:"foreignKey:EnrollmentID"`
	CompletedQuizzes []QuizResult       `json:"completedQuizzes" gorm:"foreignKey:EnrollmentID"`

	Rating          *int   `json:"rating"`
	Review          string `json:"review" gorm:"type:text"`
	RejectionReason string `json:"rejectionReason" gorm:"type:text"`

	MerchOrderID   string `json:"merchOrderId" gorm:"type:varchar(64);index"`
	PaymentOrderID string `json:"paymentOrderId" gorm:"type:varchar(128)"`

	EnrolledAt  time.Time  `json:"enrolledAt"`
	CompletedAt *time.Time `json:"completedAt"`
	ReviewedAt  *time.Time `json:"reviewedAt"`
	RatedAt     *time.Time `json:"ratedAt"`
	PaidAt      *time.Time `json:"paidAt"`
}

// IsApproved treats legacy rows without an approval status as approved.
func (e Enrollment) IsApproved() bool {
	return e.ApprovalStatus == ApprovalApproved || e.ApprovalStatus == ""
}

// LessonCompletion records that one lesson of one module was completed.
type LessonCompletion struct {
	ID           uint      `json:"-" gorm:"primaryKey"`
	EnrollmentID uint      `json:"-" gorm:"uniqueIndex:idx_lesson_completion;not null"`
	ModuleID     uint      `json:"moduleId" gorm:"uniqueIndex:idx_lesson_completion;not null"`
	LessonID     uint      `json:"lessonId" gorm:"uniqueIndex:idx_lesson_completion;not null"`
	CompletedAt  time.Time `json:"completedAt"`
}

// QuizResult is the latest graded attempt of a module quiz.
type QuizResult struct {
	ID           uint      `json:"-" gorm:"primaryKey"`
	EnrollmentID uint      `json:"-" gorm:"uniqueIndex:idx_quiz_result;not null"`
	ModuleID     uint      `json:"moduleId" gorm:"uniqueIndex:idx_quiz_result;not null"`
	Score        int       `json:"score"`
	Passed       bool      `json:"passed"`
	CompletedAt  time.Time `json:"completedAt"`
}
