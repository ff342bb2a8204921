package payment_test

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"coursemarket/apperr"
	"coursemarket/auth"
	"coursemarket/models"
	courseModels "coursemarket/models/course"
	paymentModels "coursemarket/models/payment"
	"coursemarket/services/enrollment"
	"coursemarket/services/payment"
	"coursemarket/services/telebirr"
	"coursemarket/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type fakeGateway struct {
	configured bool
	preErr     error
	verifyErr  error
	orders     []telebirr.PreOrder
}

func (f *fakeGateway) Configured() bool { return f.configured }

func (f *fakeGateway) ApplyFabricToken(context.Context) (string, error) { return "Bearer t", nil }

func (f *fakeGateway) CreatePreOrder(_ context.Context, token string, order telebirr.PreOrder) (string, error) {
	f.orders = append(f.orders, order)
	if f.preErr != nil {
		return "", f.preErr
	}
	return "prepay-" + order.MerchOrderID, nil
}

func (f *fakeGateway) CheckoutURL(prepayID string) (string, error) {
	return "https://pay.example.com/checkout?prepay_id=" + prepayID, nil
}

func (f *fakeGateway) VerifyNotification(map[string]string) error { return f.verifyErr }

type fixture struct {
	db      *gorm.DB
	svc     *enrollment.Service
	course  courseModels.Course
	student auth.Principal
}

func newFixture(t *testing.T, price float64) *fixture {
	t.Helper()
	db := testutil.NewDB(t)
	owner := testutil.CreateUser(t, db, "owner", models.RoleInstructor)
	student := testutil.CreateUser(t, db, "student", models.RoleUser)
	return &fixture{
		db:      db,
		svc:     enrollment.NewService(db, nil, nil),
		course:  testutil.CreateTwoModuleCourse(t, db, owner.ID, testutil.CourseOptions{Price: price}),
		student: auth.Principal{ID: student.ID, Role: student.Role},
	}
}

func (f *fixture) enrollment(t *testing.T) courseModels.Enrollment {
	t.Helper()
	var e courseModels.Enrollment
	require.NoError(t, f.db.Where("user_id = ? AND course_id = ?", f.student.ID, f.course.ID).First(&e).Error)
	return e
}

func TestCreateOrder(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 300)
	gw := &fakeGateway{configured: true}
	o := payment.NewOrchestrator(f.db, f.svc, gw, payment.Options{Production: true})

	checkout, err := o.CreateOrder(ctx, f.student, f.course.ID)
	require.NoError(t, err)
	assert.Regexp(t, regexp.MustCompile(`^[A-Za-z0-9]+$`), checkout.MerchOrderID)
	assert.Equal(t, "prepay-"+checkout.MerchOrderID, checkout.PrepayID)
	assert.Contains(t, checkout.CheckoutURL, checkout.PrepayID)
	assert.False(t, checkout.Placeholder)

	require.Len(t, gw.orders, 1)
	assert.InDelta(t, 300.0, gw.orders[0].Amount, 0.001)
	assert.Equal(t, f.course.Title, gw.orders[0].Title)

	e := f.enrollment(t)
	assert.Equal(t, courseModels.ApprovalPending, e.ApprovalStatus)
	assert.Equal(t, courseModels.PaymentPending, e.PaymentStatus)
	assert.Equal(t, checkout.MerchOrderID, e.MerchOrderID)

	// a retry gets a new order id on the same enrollment
	time.Sleep(2 * time.Millisecond)
	retry, err := o.CreateOrder(ctx, f.student, f.course.ID)
	require.NoError(t, err)
	assert.NotEqual(t, checkout.MerchOrderID, retry.MerchOrderID)
	assert.Equal(t, retry.MerchOrderID, f.enrollment(t).MerchOrderID)

	assert.True(t, o.HandleNotification(ctx, payment.Notification{MerchOrderID: retry.MerchOrderID, TradeStatus: "Completed"}))
	_, err = o.CreateOrder(ctx, f.student, f.course.ID)
	assert.True(t, apperr.Is(err, apperr.KindConflict), "already purchased")
}

func TestCreateOrderRejectsUnpurchasable(t *testing.T) {
	ctx := context.Background()
	gw := &fakeGateway{configured: true}

	t.Run("free course", func(t *testing.T) {
		f := newFixture(t, 0)
		o := payment.NewOrchestrator(f.db, f.svc, gw, payment.Options{})
		_, err := o.CreateOrder(ctx, f.student, f.course.ID)
		assert.True(t, apperr.Is(err, apperr.KindBadRequest))
	})

	t.Run("unpublished course", func(t *testing.T) {
		f := newFixture(t, 300)
		require.NoError(t, f.db.Model(&f.course).Update("is_published", false).Error)
		o := payment.NewOrchestrator(f.db, f.svc, gw, payment.Options{})
		_, err := o.CreateOrder(ctx, f.student, f.course.ID)
		assert.True(t, apperr.Is(err, apperr.KindBadRequest))
	})

	t.Run("missing course", func(t *testing.T) {
		f := newFixture(t, 300)
		o := payment.NewOrchestrator(f.db, f.svc, gw, payment.Options{})
		_, err := o.CreateOrder(ctx, f.student, 9999)
		assert.True(t, apperr.Is(err, apperr.KindNotFound))
	})

	t.Run("no phone number", func(t *testing.T) {
		f := newFixture(t, 300)
		require.NoError(t, f.db.Model(&models.User{}).Where("id = ?", f.student.ID).Update("mobile", "").Error)
		o := payment.NewOrchestrator(f.db, f.svc, gw, payment.Options{})
		_, err := o.CreateOrder(ctx, f.student, f.course.ID)
		assert.True(t, apperr.Is(err, apperr.KindBadRequest))
	})

	t.Run("malformed phone number", func(t *testing.T) {
		f := newFixture(t, 300)
		require.NoError(t, f.db.Model(&models.User{}).Where("id = ?", f.student.ID).Update("mobile", "09-11-abc").Error)
		o := payment.NewOrchestrator(f.db, f.svc, gw, payment.Options{})
		_, err := o.CreateOrder(ctx, f.student, f.course.ID)
		assert.True(t, apperr.Is(err, apperr.KindBadRequest))
	})
}

func TestCreateOrderConfigurationPolicy(t *testing.T) {
	ctx := context.Background()
	providerDown := errors.New("connection refused")
	placeholder := "https://example.com/fake-checkout"

	tests := []struct {
		name            string
		gateway         payment.Gateway
		opts            payment.Options
		wantKind        apperr.Kind
		wantPlaceholder bool
		wantPersisted   bool
	}{
		{
			name:     "production without credentials",
			opts:     payment.Options{Production: true, PlaceholderURL: placeholder},
			wantKind: apperr.KindServiceUnavailable,
		},
		{
			name:     "development without credentials or placeholder",
			opts:     payment.Options{},
			wantKind: apperr.KindServiceUnavailable,
		},
		{
			name:            "development without credentials uses placeholder",
			gateway:         &fakeGateway{configured: false},
			opts:            payment.Options{PlaceholderURL: placeholder},
			wantPlaceholder: true,
			wantPersisted:   true,
		},
		{
			name:          "provider failure with credentials is a hard error",
			gateway:       &fakeGateway{configured: true, preErr: providerDown},
			opts:          payment.Options{PlaceholderURL: placeholder},
			wantKind:      apperr.KindUpstreamFailure,
			wantPersisted: true,
		},
		{
			name:            "provider failure falls back when asked to",
			gateway:         &fakeGateway{configured: true, preErr: providerDown},
			opts:            payment.Options{PlaceholderURL: placeholder, FallbackOnError: true},
			wantPlaceholder: true,
			wantPersisted:   true,
		},
		{
			name:          "fallback never applies in production",
			gateway:       &fakeGateway{configured: true, preErr: providerDown},
			opts:          payment.Options{Production: true, PlaceholderURL: placeholder, FallbackOnError: true},
			wantKind:      apperr.KindUpstreamFailure,
			wantPersisted: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, 300)
			o := payment.NewOrchestrator(f.db, f.svc, tt.gateway, tt.opts)

			checkout, err := o.CreateOrder(ctx, f.student, f.course.ID)
			if tt.wantKind != "" {
				assert.Equal(t, tt.wantKind, apperr.KindOf(err))
			} else {
				require.NoError(t, err)
				assert.Equal(t, tt.wantPlaceholder, checkout.Placeholder)
				assert.Contains(t, checkout.CheckoutURL, placeholder+"?merch_order_id=")
			}

			var count int64
			require.NoError(t, f.db.Model(&courseModels.Enrollment{}).Where("merch_order_id <> ''").Count(&count).Error)
			if tt.wantPersisted {
				assert.EqualValues(t, 1, count)
			} else {
				assert.Zero(t, count)
			}
		})
	}
}

func TestHandleNotification(t *testing.T) {
	ctx := context.Background()

	t.Run("unknown order", func(t *testing.T) {
		f := newFixture(t, 300)
		o := payment.NewOrchestrator(f.db, f.svc, &fakeGateway{configured: true}, payment.Options{})

		ok := o.HandleNotification(ctx, payment.Notification{MerchOrderID: "NOPE", TradeStatus: "Completed", Raw: []byte(`{"merch_order_id":"NOPE"}`)})
		assert.False(t, ok)

		var ev paymentModels.GatewayEvent
		require.NoError(t, f.db.First(&ev).Error)
		assert.Equal(t, paymentModels.GatewayEventIgnored, ev.Status)
		assert.Equal(t, "NOPE", ev.MerchOrderID)
		assert.NotNil(t, ev.ProcessedAt)
		assert.Equal(t, 0, reloadCourse(t, f).TotalEnrollments)
	})

	t.Run("duplicate success counts once", func(t *testing.T) {
		f := newFixture(t, 300)
		o := payment.NewOrchestrator(f.db, f.svc, &fakeGateway{configured: true}, payment.Options{})
		checkout, err := o.CreateOrder(ctx, f.student, f.course.ID)
		require.NoError(t, err)

		n := payment.Notification{MerchOrderID: checkout.MerchOrderID, PaymentOrderID: "TB-1", TradeStatus: "Completed"}
		assert.True(t, o.HandleNotification(ctx, n))
		assert.True(t, o.HandleNotification(ctx, n))

		e := f.enrollment(t)
		assert.Equal(t, courseModels.ApprovalApproved, e.ApprovalStatus)
		assert.Equal(t, courseModels.PaymentPaid, e.PaymentStatus)
		assert.Equal(t, "TB-1", e.PaymentOrderID)
		assert.Equal(t, 1, reloadCourse(t, f).TotalEnrollments)

		var events []paymentModels.GatewayEvent
		require.NoError(t, f.db.Find(&events).Error)
		require.Len(t, events, 2)
		for _, ev := range events {
			assert.Equal(t, paymentModels.GatewayEventProcessed, ev.Status)
			require.NotNil(t, ev.EnrollmentID)
			assert.Equal(t, e.ID, *ev.EnrollmentID)
		}
	})

	t.Run("failure leaves approval alone", func(t *testing.T) {
		f := newFixture(t, 300)
		o := payment.NewOrchestrator(f.db, f.svc, &fakeGateway{configured: true}, payment.Options{})
		checkout, err := o.CreateOrder(ctx, f.student, f.course.ID)
		require.NoError(t, err)

		assert.True(t, o.HandleNotification(ctx, payment.Notification{MerchOrderID: checkout.MerchOrderID, TradeStatus: "Failure"}))
		e := f.enrollment(t)
		assert.Equal(t, courseModels.PaymentFailed, e.PaymentStatus)
		assert.Equal(t, courseModels.ApprovalPending, e.ApprovalStatus)
	})

	t.Run("bad signature", func(t *testing.T) {
		f := newFixture(t, 300)
		gw := &fakeGateway{configured: true}
		o := payment.NewOrchestrator(f.db, f.svc, gw, payment.Options{})
		checkout, err := o.CreateOrder(ctx, f.student, f.course.ID)
		require.NoError(t, err)

		gw.verifyErr = errors.New("verify signature: crypto/rsa: verification error")
		assert.False(t, o.HandleNotification(ctx, payment.Notification{MerchOrderID: checkout.MerchOrderID, TradeStatus: "Completed"}))
		assert.Equal(t, courseModels.PaymentPending, f.enrollment(t).PaymentStatus)
	})

	t.Run("order_status success settles", func(t *testing.T) {
		f := newFixture(t, 300)
		o := payment.NewOrchestrator(f.db, f.svc, &fakeGateway{configured: true}, payment.Options{})
		checkout, err := o.CreateOrder(ctx, f.student, f.course.ID)
		require.NoError(t, err)

		n, err := payment.ParseNotification([]byte(`{"merch_order_id":"` + checkout.MerchOrderID + `","order_status":"Completed","payment_order_id":"P1"}`))
		require.NoError(t, err)
		assert.True(t, o.HandleNotification(ctx, n))

		e := f.enrollment(t)
		assert.Equal(t, courseModels.PaymentPaid, e.PaymentStatus)
		assert.Equal(t, courseModels.ApprovalApproved, e.ApprovalStatus)
		assert.Equal(t, "P1", e.PaymentOrderID)
	})

	t.Run("missing status changes nothing", func(t *testing.T) {
		f := newFixture(t, 300)
		o := payment.NewOrchestrator(f.db, f.svc, &fakeGateway{configured: true}, payment.Options{})
		checkout, err := o.CreateOrder(ctx, f.student, f.course.ID)
		require.NoError(t, err)

		n, err := payment.ParseNotification([]byte(`{"merch_order_id":"` + checkout.MerchOrderID + `","payment_order_id":"P1"}`))
		require.NoError(t, err)
		assert.False(t, o.HandleNotification(ctx, n))
		assert.Equal(t, courseModels.PaymentPending, f.enrollment(t).PaymentStatus)

		var ev paymentModels.GatewayEvent
		require.NoError(t, f.db.First(&ev).Error)
		assert.Equal(t, paymentModels.GatewayEventIgnored, ev.Status)
	})

	t.Run("missing order id", func(t *testing.T) {
		f := newFixture(t, 300)
		o := payment.NewOrchestrator(f.db, f.svc, nil, payment.Options{})
		assert.False(t, o.HandleNotification(ctx, payment.Notification{TradeStatus: "Completed"}))
	})
}

func reloadCourse(t *testing.T, f *fixture) courseModels.Course {
	t.Helper()
	var c courseModels.Course
	require.NoError(t, f.db.First(&c, f.course.ID).Error)
	return c
}

func TestParseNotification(t *testing.T) {
	n, err := payment.ParseNotification([]byte(`{"merch_order_id":" C1U2T3 ","payment_order_id":"TB-9","trade_status":"Completed","total_amount":300,"sign":"abc","extra":{"a":1},"nothing":null}`))
	require.NoError(t, err)
	assert.Equal(t, "C1U2T3", n.MerchOrderID)
	assert.Equal(t, "TB-9", n.PaymentOrderID)
	assert.Equal(t, "Completed", n.TradeStatus)
	assert.Equal(t, "300", n.Fields["total_amount"])
	assert.Equal(t, "abc", n.Fields["sign"])
	assert.NotContains(t, n.Fields, "extra")
	assert.NotContains(t, n.Fields, "nothing")

	cases := []struct {
		name string
		body string
		want string
	}{
		{"order_status only", `{"merch_order_id":"C1","order_status":"Completed"}`, "Completed"},
		{"trade_status wins", `{"merch_order_id":"C1","trade_status":"Failure","order_status":"Completed"}`, "Failure"},
		{"blank trade_status falls back", `{"merch_order_id":"C1","trade_status":" ","order_status":"PAY_SUCCESS"}`, "PAY_SUCCESS"},
		{"neither", `{"merch_order_id":"C1"}`, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			n, err := payment.ParseNotification([]byte(tc.body))
			require.NoError(t, err)
			assert.Equal(t, tc.want, n.TradeStatus)
		})
	}

	_, err = payment.ParseNotification([]byte(`not json`))
	assert.True(t, apperr.Is(err, apperr.KindBadRequest))
}

func TestIsSuccess(t *testing.T) {
	for _, s := range []string{"Completed", "SUCCESS", "pay_success", " paid "} {
		assert.True(t, payment.IsSuccess(s), s)
	}
	for _, s := range []string{"", "Failure", "Pending", "expired"} {
		assert.False(t, payment.IsSuccess(s), s)
	}
}

func TestNewMerchOrderID(t *testing.T) {
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	id := payment.NewMerchOrderID(7, 42, at)
	assert.Regexp(t, `^C7U42T\d+[0-9A-F]{6}$`, id)
	assert.LessOrEqual(t, len(id), 64)
	assert.NotEqual(t, id, payment.NewMerchOrderID(7, 42, at), "same instant still yields distinct ids")
}
