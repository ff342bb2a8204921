// Package notification fans enrollment events out to users as in-app
// notifications and, when enabled, e-mails.
package notification

import (
	"context"
	"log"
	"sync"
	"time"

	"coursemarket/models"

	"github.com/bytedance/sonic"
	"github.com/pkg/errors"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Event is a structured message emitted by the enrollment engine.
type Event struct {
	Type    string
	Title   string
	Message string
	Link    string
	Meta    map[string]interface{}
}

// Notifier delivers an event to a set of users.
type Notifier interface {
	Notify(ctx context.Context, userIDs []uint, ev Event) error
}

// Mailer sends a single e-mail.
type Mailer interface {
	Send(ctx context.Context, toName, toEmail, subject, plain, htmlBody string) error
}

// DefaultMailTimeout bounds a single e-mail delivery.
const DefaultMailTimeout = 30 * time.Second

// Service stores notifications and mails users who opted in.
type Service struct {
	db          *gorm.DB
	mailer      Mailer
	appName     string
	mailTimeout time.Duration
	pending     sync.WaitGroup
}

var _ Notifier = (*Service)(nil)

// NewService returns a notifier; mailer may be nil to disable e-mail.
func NewService(db *gorm.DB, mailer Mailer, appName string) *Service {
	return &Service{db: db, mailer: mailer, appName: appName, mailTimeout: DefaultMailTimeout}
}

// WithMailTimeout overrides the per e-mail deadline.
func (s *Service) WithMailTimeout(d time.Duration) *Service {
	if d > 0 {
		s.mailTimeout = d
	}
	return s
}

// Drain waits for in-flight e-mails until ctx is done.
func (s *Service) Drain(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.pending.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return errors.Wrap(ctx.Err(), "drain e-mail deliveries")
	}
}

func (s *Service) Notify(ctx context.Context, userIDs []uint, ev Event) error {
	userIDs = dedupe(userIDs)
	if len(userIDs) == 0 {
		return nil
	}

	var meta datatypes.JSON
	if len(ev.Meta) > 0 {
		raw, err := sonic.Marshal(ev.Meta)
		if err != nil {
			return errors.Wrap(err, "encode notification meta")
		}
		meta = datatypes.JSON(raw)
	}

	rows := make([]models.Notification, 0, len(userIDs))
	for _, id := range userIDs {
		rows = append(rows, models.Notification{
			UserID:  id,
			Type:    ev.Type,
			Title:   ev.Title,
			Message: ev.Message,
			Link:    ev.Link,
			Meta:    meta,
		})
	}
	if err := s.db.WithContext(ctx).Create(&rows).Error; err != nil {
		return errors.Wrap(err, "store notifications")
	}

	if s.mailer == nil {
		return nil
	}

	var users []models.User
	if err := s.db.WithContext(ctx).
		Where("id IN ? AND email_notifications = ? AND is_deleted = ?", userIDs, true, false).
		Find(&users).Error; err != nil {
		return errors.Wrap(err, "load notification recipients")
	}
	for _, u := range users {
		if u.Email == "" {
			continue
		}
		u := u
		s.pending.Add(1)
		// e-mail delivery must not hold up the request
		go func() {
			defer s.pending.Done()
			mailCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.mailTimeout)
			defer cancel()
			if err := s.mailer.Send(mailCtx, u.Name, u.Email, ev.Title, ev.Message, renderHTML(s.appName, ev)); err != nil {
				log.Printf("[NOTIFY] e-mail to user %d failed: %v", u.ID, err)
			}
		}()
	}
	return nil
}

// AdminIDs returns the ids of all admin users.
func AdminIDs(ctx context.Context, db *gorm.DB) ([]uint, error) {
	var ids []uint
	err := db.WithContext(ctx).Model(&models.User{}).
		Where("role = ? AND is_deleted = ?", models.RoleAdmin, false).
		Pluck("id", &ids).Error
	return ids, err
}

func dedupe(ids []uint) []uint {
	seen := make(map[uint]struct{}, len(ids))
	out := make([]uint, 0, len(ids))
	for _, id := range ids {
		if id == 0 {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
