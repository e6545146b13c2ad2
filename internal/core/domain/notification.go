package domain

import "strconv"

// PushType classifies a push notification for routing and priority.
type PushType string

const (
	PushTypePaymentReceived PushType = "payment_received"
	PushTypeFundsReleased   PushType = "funds_released"
	PushTypeRefundIssued    PushType = "refund_issued"
	PushTypePaymentFailed   PushType = "payment_failed"
	PushTypeDeliveryUpdate  PushType = "delivery_update"
)

// PushPayload is the typed data payload attached to a push notification.
// Fields are serialized to text once, here, with a fixed schema — call sites
// never build ad hoc string maps.
type PushPayload struct {
	Type          PushType
	BookingID     string
	TransactionID string
	Amount        int64
	Currency      string
	Reason        string
}

// Data renders the payload as the string map the push transport requires.
// Zero-valued optional fields are omitted; Type and BookingID are always set.
func (p PushPayload) Data() map[string]string {
	m := map[string]string{
		"type":      string(p.Type),
		"bookingId": p.BookingID,
	}
	if p.TransactionID != "" {
		m["transactionId"] = p.TransactionID
	}
	if p.Amount > 0 {
		m["amount"] = strconv.FormatInt(p.Amount, 10)
	}
	if p.Currency != "" {
		m["currency"] = p.Currency
	}
	if p.Reason != "" {
		m["reason"] = p.Reason
	}
	return m
}

// Priority returns the delivery priority hint. Delivery updates use normal
// priority so they do not raise heads-up overlays; money movements are high.
func (p PushPayload) Priority() string {
	if p.Type == PushTypeDeliveryUpdate {
		return "normal"
	}
	return "high"
}

// ChannelID returns the Android notification channel for the payload type.
func (p PushPayload) ChannelID() string {
	switch p.Type {
	case PushTypeDeliveryUpdate:
		return "trip_updates"
	case PushTypePaymentReceived, PushTypeFundsReleased, PushTypeRefundIssued, PushTypePaymentFailed:
		return "payments"
	}
	return "general"
}
