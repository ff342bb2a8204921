package course

import (
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// DefaultPassingScore applies when a quiz has no passing score of its own.
const DefaultPassingScore = 70

// Quiz is the optional end-of-module quiz.
type Quiz struct {
	gorm.Model
	ModuleID     uint           `json:"moduleId" gorm:"uniqueIndex;not null"`
	PassingScore int            `json:"passingScore" gorm:"default:70"` // 0-100
	Questions    []QuizQuestion `json:"questions" gorm:"foreignKey:QuizID"`
}

// QuizQuestion is a single choice question; CorrectIndex points into Options.
type QuizQuestion struct {
	gorm.Model
	QuizID       uint                        `json:"quizId" gorm:"index;not null"`
	Prompt       string                      `json:"prompt"`
	Options      datatypes.JSONSlice[string] `json:"options"`
	CorrectIndex int                         `json:"-"`
	OrderIndex   int                         `json:"orderIndex" gorm:"default:0"`
}
