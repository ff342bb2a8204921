// Package payment drives priced-course purchases through Telebirr: it
// creates checkout orders and reconciles settlement notifications.
package payment

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"coursemarket/apperr"
	"coursemarket/auth"
	"coursemarket/models"
	courseModels "coursemarket/models/course"
	"coursemarket/services/enrollment"
	"coursemarket/services/telebirr"
	"coursemarket/utils"
	"coursemarket/validators"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"gorm.io/gorm"
)

// Provider is the name stored on gateway events.
const Provider = "telebirr"

// Gateway is the part of the Telebirr client the orchestrator uses.
type Gateway interface {
	Configured() bool
	ApplyFabricToken(ctx context.Context) (string, error)
	CreatePreOrder(ctx context.Context, token string, order telebirr.PreOrder) (string, error)
	CheckoutURL(prepayID string) (string, error)
	VerifyNotification(fields map[string]string) error
}

// Options is the configuration-absence policy.
type Options struct {
	Production      bool
	PlaceholderURL  string
	FallbackOnError bool // non-production only
}

// Checkout is what the student's client needs to continue to payment.
type Checkout struct {
	CheckoutURL  string `json:"checkoutUrl"`
	MerchOrderID string `json:"merchOrderId"`
	PrepayID     string `json:"prepayId,omitempty"`
	Placeholder  bool   `json:"placeholder,omitempty"`
}

type Orchestrator struct {
	db          *gorm.DB
	enrollments *enrollment.Service
	gateway     Gateway
	opts        Options
	now         func() time.Time
}

// NewOrchestrator wires the orchestrator; gateway is nil when Telebirr is not
// configured.
func NewOrchestrator(db *gorm.DB, enrollments *enrollment.Service, gateway Gateway, opts Options) *Orchestrator {
	return &Orchestrator{db: db, enrollments: enrollments, gateway: gateway, opts: opts, now: time.Now}
}

// CreateOrder starts a checkout for a priced course.
func (o *Orchestrator) CreateOrder(ctx context.Context, p auth.Principal, courseID uint) (*Checkout, error) {
	db := o.db.WithContext(ctx)

	var c courseModels.Course
	err := db.Where("is_deleted = ?", false).First(&c, courseID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.NotFound("course not found")
	}
	if err != nil {
		return nil, errors.Wrapf(err, "load course %d", courseID)
	}
	if !c.IsPublished || !c.IsApproved {
		return nil, apperr.BadRequest("this course is not available for purchase")
	}
	if !c.IsPriced() {
		return nil, apperr.BadRequest("this course is free, request enrollment instead")
	}

	var user models.User
	err = db.Where("is_deleted = ?", false).First(&user, p.ID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.NotFound("user not found")
	}
	if err != nil {
		return nil, errors.Wrapf(err, "load user %d", p.ID)
	}
	if !validators.IsMobile(user.Mobile) {
		return nil, apperr.BadRequest("add a valid phone number to your profile before paying")
	}

	configured := o.gateway != nil && o.gateway.Configured()
	if !configured && (o.opts.Production || o.opts.PlaceholderURL == "") {
		return nil, apperr.ServiceUnavailable("payments are not available right now")
	}

	merchOrderID := NewMerchOrderID(c.ID, p.ID, o.now())
	if _, err := o.enrollments.AttachPaymentOrder(ctx, p, c.ID, merchOrderID); err != nil {
		return nil, err
	}

	if !configured {
		log.Printf("[PAYMENT] Telebirr not configured, placeholder checkout for %s", merchOrderID)
		return o.placeholder(merchOrderID), nil
	}

	checkout, err := o.checkout(ctx, c, merchOrderID)
	if err == nil {
		return checkout, nil
	}
	utils.ReportError("PAYMENT", err, map[string]interface{}{"merchOrderId": merchOrderID, "courseId": c.ID})
	if o.opts.FallbackOnError && !o.opts.Production && o.opts.PlaceholderURL != "" {
		return o.placeholder(merchOrderID), nil
	}
	return nil, apperr.Upstream(err, "could not start the payment, please try again")
}

func (o *Orchestrator) checkout(ctx context.Context, c courseModels.Course, merchOrderID string) (*Checkout, error) {
	token, err := o.gateway.ApplyFabricToken(ctx)
	if err != nil {
		return nil, err
	}
	prepayID, err := o.gateway.CreatePreOrder(ctx, token, telebirr.PreOrder{
		MerchOrderID: merchOrderID,
		Title:        c.Title,
		Amount:       c.Price,
		Currency:     c.Currency,
	})
	if err != nil {
		return nil, err
	}
	checkoutURL, err := o.gateway.CheckoutURL(prepayID)
	if err != nil {
		return nil, err
	}
	return &Checkout{CheckoutURL: checkoutURL, MerchOrderID: merchOrderID, PrepayID: prepayID}, nil
}

func (o *Orchestrator) placeholder(merchOrderID string) *Checkout {
	sep := "?"
	if strings.Contains(o.opts.PlaceholderURL, "?") {
		sep = "&"
	}
	return &Checkout{
		CheckoutURL:  o.opts.PlaceholderURL + sep + "merch_order_id=" + merchOrderID,
		MerchOrderID: merchOrderID,
		Placeholder:  true,
	}
}

// NewMerchOrderID returns an alphanumeric order id unique per attempt.
func NewMerchOrderID(courseID, userID uint, at time.Time) string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))[:6]
	return fmt.Sprintf("C%dU%dT%d%s", courseID, userID, at.UnixMilli(), suffix)
}
