package payment

import (
	"context"
	"fmt"
	"strings"

	"coursemarket/apperr"
	paymentModels "coursemarket/models/payment"
	"coursemarket/utils"

	"github.com/bytedance/sonic"
	"gorm.io/datatypes"
)

// Notification is a settlement callback from Telebirr. Fields keeps every
// value as a string for signature checks.
type Notification struct {
	MerchOrderID   string
	PaymentOrderID string
	TradeStatus    string
	Fields         map[string]string
	Raw            []byte
}

// ParseNotification decodes a callback body. Telebirr sends flat JSON with
// string values; numbers are tolerated.
func ParseNotification(body []byte) (Notification, error) {
	var raw map[string]interface{}
	if err := sonic.Unmarshal(body, &raw); err != nil {
		return Notification{Raw: body}, apperr.BadRequest("malformed notification body")
	}
	fields := make(map[string]string, len(raw))
	for k, v := range raw {
		switch val := v.(type) {
		case nil:
		case string:
			fields[k] = val
		case map[string]interface{}, []interface{}:
			// nested values are not part of the signed set
		default:
			fields[k] = fmt.Sprint(val)
		}
	}
	return Notification{
		MerchOrderID:   strings.TrimSpace(fields["merch_order_id"]),
		PaymentOrderID: strings.TrimSpace(fields["payment_order_id"]),
		TradeStatus:    tradeStatus(fields),
		Fields:         fields,
		Raw:            body,
	}, nil
}

// tradeStatus reads trade_status, falling back to order_status which some
// callback versions send instead.
func tradeStatus(fields map[string]string) string {
	for _, key := range []string{"trade_status", "order_status"} {
		if v := strings.TrimSpace(fields[key]); v != "" {
			return v
		}
	}
	return ""
}

// IsSuccess reports whether a trade status means the money arrived.
func IsSuccess(tradeStatus string) bool {
	switch strings.ToLower(strings.TrimSpace(tradeStatus)) {
	case "completed", "success", "pay_success", "paid":
		return true
	}
	return false
}

// HandleNotification reconciles a settlement notification and reports
// whether it was applied. It never returns an error: the provider always
// gets an acknowledgement, failures are logged and reported.
func (o *Orchestrator) HandleNotification(ctx context.Context, n Notification) bool {
	ev := o.recordEvent(ctx, n)

	if o.gateway != nil {
		if err := o.gateway.VerifyNotification(n.Fields); err != nil {
			utils.ReportWarning("PAYMENT", "rejected notification with a bad signature", map[string]interface{}{"merchOrderId": n.MerchOrderID, "error": err.Error()})
			o.finishEvent(ctx, ev, paymentModels.GatewayEventIgnored, nil, "bad signature")
			return false
		}
	}
	if n.MerchOrderID == "" {
		utils.ReportWarning("PAYMENT", "notification without merch_order_id", nil)
		o.finishEvent(ctx, ev, paymentModels.GatewayEventIgnored, nil, "missing merch_order_id")
		return false
	}
	if n.TradeStatus == "" {
		utils.ReportWarning("PAYMENT", "notification without trade status", map[string]interface{}{"merchOrderId": n.MerchOrderID})
		o.finishEvent(ctx, ev, paymentModels.GatewayEventIgnored, nil, "missing trade_status")
		return false
	}

	var (
		enrollmentID uint
		err          error
	)
	if IsSuccess(n.TradeStatus) {
		e, _, markErr := o.enrollments.MarkPaid(ctx, n.MerchOrderID, n.PaymentOrderID)
		if e != nil {
			enrollmentID = e.ID
		}
		err = markErr
	} else {
		e, markErr := o.enrollments.MarkPaymentFailed(ctx, n.MerchOrderID, n.PaymentOrderID)
		if e != nil {
			enrollmentID = e.ID
		}
		err = markErr
	}

	extras := map[string]interface{}{"merchOrderId": n.MerchOrderID, "tradeStatus": n.TradeStatus}
	switch {
	case apperr.Is(err, apperr.KindNotFound):
		utils.ReportWarning("PAYMENT", "notification for unknown order", extras)
		o.finishEvent(ctx, ev, paymentModels.GatewayEventIgnored, nil, "unknown order")
		return false
	case err != nil:
		utils.ReportError("PAYMENT", err, extras)
		o.finishEvent(ctx, ev, paymentModels.GatewayEventFailed, nil, err.Error())
		return false
	}
	o.finishEvent(ctx, ev, paymentModels.GatewayEventProcessed, &enrollmentID, "")
	return true
}

func (o *Orchestrator) recordEvent(ctx context.Context, n Notification) *paymentModels.GatewayEvent {
	ev := &paymentModels.GatewayEvent{
		Provider:       Provider,
		MerchOrderID:   n.MerchOrderID,
		PaymentOrderID: n.PaymentOrderID,
		TradeStatus:    n.TradeStatus,
		Status:         paymentModels.GatewayEventReceived,
		ReceivedAt:     o.now(),
	}
	if len(n.Raw) > 0 && sonic.Valid(n.Raw) {
		ev.Payload = datatypes.JSON(n.Raw)
	}
	if err := o.db.WithContext(ctx).Create(ev).Error; err != nil {
		utils.ReportError("PAYMENT", err, map[string]interface{}{"merchOrderId": n.MerchOrderID, "step": "record gateway event"})
		return nil
	}
	return ev
}

func (o *Orchestrator) finishEvent(ctx context.Context, ev *paymentModels.GatewayEvent, status paymentModels.GatewayEventStatus, enrollmentID *uint, msg string) {
	if ev == nil {
		return
	}
	now := o.now()
	updates := map[string]interface{}{
		"status":       status,
		"error":        msg,
		"processed_at": now,
	}
	if enrollmentID != nil && *enrollmentID != 0 {
		updates["enrollment_id"] = *enrollmentID
	}
	if err := o.db.WithContext(ctx).Model(ev).Updates(updates).Error; err != nil {
		utils.ReportError("PAYMENT", err, map[string]interface{}{"gatewayEventId": ev.ID})
	}
}
