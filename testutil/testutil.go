// Package testutil builds throwaway databases and fixtures for tests.
package testutil

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"coursemarket/database"
	"coursemarket/models"
	courseModels "coursemarket/models/course"
	"coursemarket/services/notification"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// NewDB returns a migrated in-memory SQLite database private to the test.
func NewDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_foreign_keys=on", uuid.NewString())
	db, err := database.Open(sqlite.Open(dsn), true)
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	// one connection keeps every query on the same in-memory database
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, database.Migrate(db))
	return db
}

// CreateUser inserts a user with the given role.
func CreateUser(t *testing.T, db *gorm.DB, name, role string) models.User {
	t.Helper()
	u := models.User{
		Name:               name,
		Email:              fmt.Sprintf("%s-%s@example.com", name, uuid.NewString()[:8]),
		Mobile:             "251911000000",
		Role:               role,
		EmailNotifications: true,
	}
	require.NoError(t, db.Create(&u).Error)
	return u
}

// CourseOptions tweak the fixture course.
type CourseOptions struct {
	Price              float64
	Unpublished        bool
	CertificateEnabled *bool
}

// CreateTwoModuleCourse builds a published course with two modules:
// module 1 has one lesson and a two question quiz (answers 0 then 1,
// passing score 70), module 2 has one lesson and no quiz.
func CreateTwoModuleCourse(t *testing.T, db *gorm.DB, ownerID uint, opts CourseOptions) courseModels.Course {
	t.Helper()

	intro, err := courseModels.NewLesson(0, "Welcome", courseModels.VideoContent{URL: "https://cdn.example.com/intro.mp4", DurationSeconds: 120})
	require.NoError(t, err)
	outro, err := courseModels.NewLesson(0, "Wrap up", courseModels.TextContent{Body: "Thanks for following along."})
	require.NoError(t, err)

	c := courseModels.Course{
		Title:                "Go Basics",
		Description:          "Learn Go",
		OwnerID:              ownerID,
		Price:                opts.Price,
		Currency:             "ETB",
		IsPublished:          !opts.Unpublished,
		IsApproved:           true,
		CertificateEnabled:   opts.CertificateEnabled,
		CertificateSignatory: "Course Market Academy",
		Modules: []courseModels.Module{
			{
				Title:   "Getting started",
				Order:   1,
				Lessons: []courseModels.Lesson{intro},
				Quiz: &courseModels.Quiz{
					PassingScore: 70,
					Questions: []courseModels.QuizQuestion{
						{Prompt: "Is Go compiled?", Options: []string{"yes", "no"}, CorrectIndex: 0, OrderIndex: 1},
						{Prompt: "Does Go have classes?", Options: []string{"yes", "no"}, CorrectIndex: 1, OrderIndex: 2},
					},
				},
			},
			{
				Title:   "Next steps",
				Order:   2,
				Lessons: []courseModels.Lesson{outro},
			},
		},
	}
	require.NoError(t, db.Create(&c).Error)
	return c
}

// Modules returns the two fixture modules in order.
func Modules(c courseModels.Course) (first, second courseModels.Module) {
	return c.Modules[0], c.Modules[1]
}

// Recorder is a Notifier that keeps every event in memory.
type Recorder struct {
	mu     sync.Mutex
	Events []Delivery
}

// Delivery is one recorded Notify call.
type Delivery struct {
	UserIDs []uint
	Event   notification.Event
}

func (r *Recorder) Notify(_ context.Context, userIDs []uint, ev notification.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Events = append(r.Events, Delivery{UserIDs: append([]uint(nil), userIDs...), Event: ev})
	return nil
}

// Types lists the recorded event types in order.
func (r *Recorder) Types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	types := make([]string, 0, len(r.Events))
	for _, d := range r.Events {
		types = append(types, d.Event.Type)
	}
	return types
}
