package course

import (
	"strings"

	"coursemarket/apperr"

	"github.com/bytedance/sonic"
	"github.com/pkg/errors"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Module represents a section/module within a course
type Module struct {
	gorm.Model
	CourseID    uint     `json:"courseId" gorm:"index;not null"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Order       int      `json:"order" gorm:"column:module_order;default:0"` // Module order in course
	Lessons     []Lesson `json:"lessons,omitempty" gorm:"foreignKey:ModuleID"`
	Quiz        *Quiz    `json:"quiz,omitempty" gorm:"foreignKey:ModuleID"`
	IsDeleted   bool     `json:"-" gorm:"default:false"`
}

// HasQuiz reports whether the module carries a gradable quiz.
func (m Module) HasQuiz() bool {
	return m.Quiz != nil && len(m.Quiz.Questions) > 0
}

// LessonKind is the discriminator of the lesson content union.
type LessonKind string

const (
	LessonVideo LessonKind = "video"
	LessonPDF   LessonKind = "pdf"
	LessonText  LessonKind = "text"
	LessonImage LessonKind = "image"
)

// LessonContent is implemented by each lesson variant. Each variant carries
// only the fields its kind needs.
type LessonContent interface {
	Kind() LessonKind
	validate() error
}

type VideoContent struct {
	URL             string `json:"url"`
	DurationSeconds int    `json:"durationSeconds,omitempty"`
}

type PDFContent struct {
	URL   string `json:"url"`
	Pages int    `json:"pages,omitempty"`
}

type TextContent struct {
	Body string `json:"body"`
}

type ImageContent struct {
	URL     string `json:"url"`
	Caption string `json:"caption,omitempty"`
}

func (VideoContent) Kind() LessonKind { return LessonVideo }
func (PDFContent) Kind() LessonKind   { return LessonPDF }
func (TextContent) Kind() LessonKind  { return LessonText }
func (ImageContent) Kind() LessonKind { return LessonImage }

func (v VideoContent) validate() error {
	if strings.TrimSpace(v.URL) == "" {
		return apperr.BadRequest("video lesson requires a url")
	}
	if v.DurationSeconds < 0 {
		return apperr.BadRequest("video duration cannot be negative")
	}
	return nil
}

func (p PDFContent) validate() error {
	if strings.TrimSpace(p.URL) == "" {
		return apperr.BadRequest("pdf lesson requires a url")
	}
	return nil
}

func (t TextContent) validate() error {
	if strings.TrimSpace(t.Body) == "" {
		return apperr.BadRequest("text lesson requires a body")
	}
	return nil
}

func (i ImageContent) validate() error {
	if strings.TrimSpace(i.URL) == "" {
		return apperr.BadRequest("image lesson requires a url")
	}
	return nil
}

// Lesson is a unit of content inside a module. Content holds the JSON of the
// variant named by Kind.
type Lesson struct {
	gorm.Model
	ModuleID   uint           `json:"moduleId" gorm:"index;not null"`
	Title      string         `json:"title"`
	IsFree     bool           `json:"isFree" gorm:"default:false"`
	OrderIndex int            `json:"orderIndex" gorm:"default:0"`
	Kind       LessonKind     `json:"kind" gorm:"type:varchar(10);not null"`
	Content    datatypes.JSON `json:"content"`
	IsDeleted  bool           `json:"-" gorm:"default:false"`
}

// NewLesson builds a lesson after validating the content variant.
func NewLesson(moduleID uint, title string, content LessonContent) (Lesson, error) {
	if content == nil {
		return Lesson{}, apperr.BadRequest("lesson content is required")
	}
	if strings.TrimSpace(title) == "" {
		return Lesson{}, apperr.BadRequest("lesson title is required")
	}
	if err := content.validate(); err != nil {
		return Lesson{}, err
	}
	raw, err := sonic.Marshal(content)
	if err != nil {
		return Lesson{}, errors.Wrap(err, "encode lesson content")
	}
	return Lesson{
		ModuleID: moduleID,
		Title:    title,
		Kind:     content.Kind(),
		Content:  datatypes.JSON(raw),
	}, nil
}

// Decode returns the typed content variant of the lesson.
func (l Lesson) Decode() (LessonContent, error) {
	var content LessonContent
	switch l.Kind {
	case LessonVideo:
		content = &VideoContent{}
	case LessonPDF:
		content = &PDFContent{}
	case LessonText:
		content = &TextContent{}
	case LessonImage:
		content = &ImageContent{}
	default:
		return nil, apperr.BadRequest("unknown lesson kind %q", l.Kind)
	}
	if err := sonic.Unmarshal([]byte(l.Content), content); err != nil {
		return nil, apperr.BadRequest("malformed %s lesson content", l.Kind)
	}
	if err := content.validate(); err != nil {
		return nil, err
	}
	return content, nil
}
