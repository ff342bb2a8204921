package notification_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"coursemarket/models"
	"coursemarket/services/notification"
	"coursemarket/testutil"

	"github.com/bytedance/sonic"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sentMail struct {
	toEmail string
	subject string
	html    string
}

type fakeMailer struct {
	mu   sync.Mutex
	sent []sentMail
	done chan struct{}
}

func (m *fakeMailer) Send(_ context.Context, _, toEmail, subject, _, htmlBody string) error {
	m.mu.Lock()
	m.sent = append(m.sent, sentMail{toEmail: toEmail, subject: subject, html: htmlBody})
	m.mu.Unlock()
	m.done <- struct{}{}
	return nil
}

func TestNotifyStoresAndMails(t *testing.T) {
	ctx := context.Background()
	db := testutil.NewDB(t)
	alice := testutil.CreateUser(t, db, "alice", models.RoleUser)
	bob := testutil.CreateUser(t, db, "bob", models.RoleUser)
	require.NoError(t, db.Model(&bob).Update("email_notifications", false).Error)

	mailer := &fakeMailer{done: make(chan struct{}, 4)}
	svc := notification.NewService(db, mailer, "Course Market")

	err := svc.Notify(ctx, []uint{alice.ID, bob.ID, alice.ID, 0}, notification.Event{
		Type:    models.NotificationEnrollmentApproved,
		Title:   "Enrollment approved",
		Message: "You can start Go Basics.",
		Link:    "/courses/1",
		Meta:    map[string]interface{}{"courseId": 1},
	})
	require.NoError(t, err)

	var rows []models.Notification
	require.NoError(t, db.Order("user_id").Find(&rows).Error)
	require.Len(t, rows, 2)
	assert.Equal(t, alice.ID, rows[0].UserID)
	assert.Equal(t, bob.ID, rows[1].UserID)
	assert.Equal(t, models.NotificationEnrollmentApproved, rows[0].Type)
	assert.False(t, rows[0].IsRead)

	var meta map[string]interface{}
	require.NoError(t, sonic.Unmarshal([]byte(rows[0].Meta), &meta))
	assert.EqualValues(t, 1, meta["courseId"])

	select {
	case <-mailer.done:
	case <-time.After(2 * time.Second):
		t.Fatal("no e-mail sent")
	}
	// bob opted out, give a stray send a moment to show up
	time.Sleep(50 * time.Millisecond)

	mailer.mu.Lock()
	defer mailer.mu.Unlock()
	require.Len(t, mailer.sent, 1)
	assert.Equal(t, alice.Email, mailer.sent[0].toEmail)
	assert.Equal(t, "Enrollment approved", mailer.sent[0].subject)
	assert.Contains(t, mailer.sent[0].html, "You can start Go Basics.")
	assert.Contains(t, mailer.sent[0].html, "/courses/1")
}

func TestNotifyWithoutRecipients(t *testing.T) {
	db := testutil.NewDB(t)
	svc := notification.NewService(db, nil, "Course Market")

	require.NoError(t, svc.Notify(context.Background(), []uint{0}, notification.Event{Type: "X", Title: "t", Message: "m"}))

	var n int64
	require.NoError(t, db.Model(&models.Notification{}).Count(&n).Error)
	assert.Zero(t, n)
}

func TestAdminIDs(t *testing.T) {
	db := testutil.NewDB(t)
	admin := testutil.CreateUser(t, db, "admin", models.RoleAdmin)
	gone := testutil.CreateUser(t, db, "gone", models.RoleAdmin)
	testutil.CreateUser(t, db, "student", models.RoleUser)
	require.NoError(t, db.Model(&gone).Update("is_deleted", true).Error)

	ids, err := notification.AdminIDs(context.Background(), db)
	require.NoError(t, err)
	assert.Equal(t, []uint{admin.ID}, ids)
}

type slowMailer struct {
	mu   sync.Mutex
	errs []error
}

func (m *slowMailer) Send(ctx context.Context, _, _, _, _, _ string) error {
	<-ctx.Done()
	m.mu.Lock()
	m.errs = append(m.errs, ctx.Err())
	m.mu.Unlock()
	return ctx.Err()
}

func TestMailDeliveryIsBoundedAndDrained(t *testing.T) {
	db := testutil.NewDB(t)
	alice := testutil.CreateUser(t, db, "alice", models.RoleUser)

	mailer := &slowMailer{}
	svc := notification.NewService(db, mailer, "Course Market").WithMailTimeout(50 * time.Millisecond)

	// the request context ending must not cut the e-mail short
	reqCtx, cancel := context.WithCancel(context.Background())
	require.NoError(t, svc.Notify(reqCtx, []uint{alice.ID}, notification.Event{Type: "X", Title: "t", Message: "m"}))
	cancel()

	drainCtx, stop := context.WithTimeout(context.Background(), 2*time.Second)
	defer stop()
	require.NoError(t, svc.Drain(drainCtx))

	mailer.mu.Lock()
	defer mailer.mu.Unlock()
	require.Len(t, mailer.errs, 1)
	assert.ErrorIs(t, mailer.errs[0], context.DeadlineExceeded)
}

func TestDrainGivesUp(t *testing.T) {
	db := testutil.NewDB(t)
	alice := testutil.CreateUser(t, db, "alice", models.RoleUser)
	svc := notification.NewService(db, &slowMailer{}, "Course Market").WithMailTimeout(time.Second)
	require.NoError(t, svc.Notify(context.Background(), []uint{alice.ID}, notification.Event{Type: "X", Title: "t", Message: "m"}))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, svc.Drain(ctx), context.DeadlineExceeded)

	require.NoError(t, svc.Drain(context.Background()))
}
