package course

import "gorm.io/gorm"

// Course represents a learning course. Authoring happens elsewhere; the
// enrollment engine only reads the structure and maintains the aggregates.
type Course struct {
	gorm.Model
	Title        string  `json:"title"`
	Description  string  `json:"description"`
	OwnerID      uint    `json:"ownerId" gorm:"index;not null"`
	Price        float64 `json:"price" gorm:"default:0"` // 0 means free
	Currency     string  `json:"currency" gorm:"type:varchar(8);default:'ETB'"`
	ThumbnailURL string  `json:"thumbnailUrl"`
	IsPublished  bool    `json:"isPublished" gorm:"default:false"`
	IsApproved   bool    `json:"isApproved" gorm:"default:false"`

	// Aggregates, always recomputed from enrollments
	TotalEnrollments int     `json:"totalEnrollments" gorm:"default:0"`
	AverageRating    float64 `json:"averageRating" gorm:"default:0"`
	NumberOfReviews  int     `json:"numberOfReviews" gorm:"default:0"`

	// Certificate template; nil CertificateEnabled means enabled
	CertificateEnabled   *bool  `json:"certificateEnabled"`
	CertificateTitle     string `json:"certificateTitle"`
	CertificateSignatory string `json:"certificateSignatory"`
	CertificateBody      string `json:"certificateBody" gorm:"type:text"`

	Modules   []Module `json:"modules,omitempty" gorm:"foreignKey:CourseID"`
	IsDeleted bool     `json:"-" gorm:"default:false"`
}

// IsPriced reports whether the course must be bought before approval.
func (c Course) IsPriced() bool {
	return c.Price > 0
}

// CertificatesEnabled is false only when the template was explicitly disabled.
func (c Course) CertificatesEnabled() bool {
	return c.CertificateEnabled == nil || *c.CertificateEnabled
}

// CertificateTemplate returns the template fields as they are right now.
func (c Course) CertificateTemplate() CertificateTemplate {
	title := c.CertificateTitle
	if title == "" {
		title = "Certificate of Completion"
	}
	return CertificateTemplate{
		Enabled:   c.CertificatesEnabled(),
		Title:     title,
		Signatory: c.CertificateSignatory,
		Body:      c.CertificateBody,
	}
}
