// Package progress computes completion percentages and enforces quiz-gated
// module sequencing. Everything here is pure.
package progress

import (
	"math"
	"sort"

	"coursemarket/apperr"
	courseModels "coursemarket/models/course"
)

// Shape is the structural view of a course the calculator needs.
type Shape struct {
	Modules []ModuleShape
}

// ModuleShape describes one module: its lessons and whether it has a quiz.
type ModuleShape struct {
	ID        uint
	Title     string
	Order     int
	LessonIDs []uint
	HasQuiz   bool
}

// LessonKey identifies a completed lesson inside a module.
type LessonKey struct {
	ModuleID uint
	LessonID uint
}

// ShapeOf extracts the shape of a loaded course, ignoring deleted content.
// Modules are sorted by Order.
func ShapeOf(c courseModels.Course) Shape {
	shape := Shape{Modules: make([]ModuleShape, 0, len(c.Modules))}
	for _, m := range c.Modules {
		if m.IsDeleted {
			continue
		}
		ms := ModuleShape{ID: m.ID, Title: m.Title, Order: m.Order, HasQuiz: m.HasQuiz()}
		for _, l := range m.Lessons {
			if l.IsDeleted {
				continue
			}
			ms.LessonIDs = append(ms.LessonIDs, l.ID)
		}
		shape.Modules = append(shape.Modules, ms)
	}
	sort.SliceStable(shape.Modules, func(i, j int) bool {
		return shape.Modules[i].Order < shape.Modules[j].Order
	})
	return shape
}

// Module returns the module with the given id.
func (s Shape) Module(id uint) (ModuleShape, bool) {
	for _, m := range s.Modules {
		if m.ID == id {
			return m, true
		}
	}
	return ModuleShape{}, false
}

// HasLesson reports whether lessonID belongs to the module.
func (m ModuleShape) HasLesson(lessonID uint) bool {
	for _, id := range m.LessonIDs {
		if id == lessonID {
			return true
		}
	}
	return false
}

// Calculate returns the integer percent of valid completion items done.
// Valid items are every lesson of every module plus one item per module with
// a quiz; a quiz item counts once it has been passed. Completions that point
// at lessons or modules no longer in the course are ignored.
func Calculate(shape Shape, lessons []LessonKey, passed map[uint]bool) int {
	valid := make(map[LessonKey]struct{})
	quizModules := make(map[uint]struct{})
	for _, m := range shape.Modules {
		for _, id := range m.LessonIDs {
			valid[LessonKey{ModuleID: m.ID, LessonID: id}] = struct{}{}
		}
		if m.HasQuiz {
			quizModules[m.ID] = struct{}{}
		}
	}

	total := len(valid) + len(quizModules)
	if total == 0 {
		return 0
	}

	done := 0
	seen := make(map[LessonKey]struct{}, len(lessons))
	for _, k := range lessons {
		if _, ok := valid[k]; !ok {
			continue
		}
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		done++
	}
	for moduleID, ok := range passed {
		if !ok {
			continue
		}
		if _, isQuiz := quizModules[moduleID]; isQuiz {
			done++
		}
	}

	percent := int(math.Round(100 * float64(done) / float64(total)))
	if percent < 0 {
		return 0
	}
	if percent > 100 {
		return 100
	}
	return percent
}

// StatusFor derives the completion status from a percentage.
func StatusFor(percent int, hasActivity bool) courseModels.CompletionStatus {
	switch {
	case percent >= 100:
		return courseModels.CompletionCompleted
	case percent > 0 || hasActivity:
		return courseModels.CompletionInProgress
	default:
		return courseModels.CompletionNotStarted
	}
}

// IsBlocked reports whether a module at the given order is locked behind an
// earlier module's quiz that has not been passed.
func IsBlocked(shape Shape, passed map[uint]bool, order int) bool {
	_, blocked := blocker(shape, passed, order)
	return blocked
}

// CheckGate returns a Forbidden error when progress against moduleID is not
// yet allowed.
func CheckGate(shape Shape, passed map[uint]bool, moduleID uint) error {
	m, ok := shape.Module(moduleID)
	if !ok {
		return apperr.NotFound("module not found in this course")
	}
	if prev, blocked := blocker(shape, passed, m.Order); blocked {
		return apperr.Forbidden("you must pass the quiz of module %q before continuing", prev.Title)
	}
	return nil
}

func blocker(shape Shape, passed map[uint]bool, order int) (ModuleShape, bool) {
	for _, m := range shape.Modules {
		if m.Order < order && m.HasQuiz && !passed[m.ID] {
			return m, true
		}
	}
	return ModuleShape{}, false
}

// LessonKeys lists the enrollment's recorded lesson completions.
func LessonKeys(e courseModels.Enrollment) []LessonKey {
	keys := make([]LessonKey, 0, len(e.CompletedLessons))
	for _, l := range e.CompletedLessons {
		keys = append(keys, LessonKey{ModuleID: l.ModuleID, LessonID: l.LessonID})
	}
	return keys
}

// PassedQuizzes maps module id to the passed flag of its latest quiz result.
func PassedQuizzes(e courseModels.Enrollment) map[uint]bool {
	passed := make(map[uint]bool, len(e.CompletedQuizzes))
	for _, q := range e.CompletedQuizzes {
		passed[q.ModuleID] = q.Passed
	}
	return passed
}

// ForEnrollment recomputes the enrollment's percentage against the course.
func ForEnrollment(c courseModels.Course, e courseModels.Enrollment) int {
	return Calculate(ShapeOf(c), LessonKeys(e), PassedQuizzes(e))
}
