package payment

import (
	"time"

	"gorm.io/datatypes"
)

// GatewayEventStatus is the internal processing outcome of a notification.
type GatewayEventStatus string

const (
	GatewayEventReceived  GatewayEventStatus = "received"
	GatewayEventProcessed GatewayEventStatus = "processed"
	GatewayEventIgnored   GatewayEventStatus = "ignored"
	GatewayEventFailed    GatewayEventStatus = "failed"
)

// GatewayEvent logs every settlement notification received from a payment
// provider, including the ones that could not be matched to an order.
type GatewayEvent struct {
	ID             uint               `gorm:"primaryKey" json:"id"`
	Provider       string             `gorm:"type:varchar(30);not null" json:"provider"`
	MerchOrderID   string             `gorm:"type:varchar(64);index" json:"merchOrderId"`
	PaymentOrderID string             `gorm:"type:varchar(128)" json:"paymentOrderId"`
	TradeStatus    string             `gorm:"type:varchar(40)" json:"tradeStatus"`
	EnrollmentID   *uint              `gorm:"index" json:"enrollmentId"`
	Payload        datatypes.JSON     `json:"payload"`
	Status         GatewayEventStatus `gorm:"type:varchar(20);not null;default:'received'" json:"status"`
	Error          string             `gorm:"type:text" json:"error,omitempty"`
	ReceivedAt     time.Time          `gorm:"not null" json:"receivedAt"`
	ProcessedAt    *time.Time         `json:"processedAt"`
}

func (GatewayEvent) TableName() string {
	return "payment_gateway_events"
}
