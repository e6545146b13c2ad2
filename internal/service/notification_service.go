package service

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"strings"

	"crowdwave-ledger/internal/core/domain"
	"crowdwave-ledger/internal/core/ports"

	"github.com/rs/zerolog"
)

var emailTemplates = template.Must(template.New("emails").Parse(`
{{define "payment_receipt"}}
<h2>Payment received</h2>
<p>Your payment of {{.AmountDisplay}} for booking {{.BookingID}} is being held
securely until the delivery is completed.</p>
<p>Transaction: {{.TransactionID}}</p>
{{end}}
{{define "funds_released"}}
<h2>You got paid!</h2>
<p>{{.AmountDisplay}} has been released to your CrowdWave wallet for booking
{{.BookingID}}. You can withdraw it at any time.</p>
<p>Transaction: {{.TransactionID}}</p>
{{end}}
{{define "refund_issued"}}
<h2>Refund issued</h2>
<p>Your payment of {{.AmountDisplay}} for booking {{.BookingID}} has been
refunded.{{if .Reason}} Reason: {{.Reason}}.{{end}}</p>
<p>Transaction: {{.TransactionID}}</p>
{{end}}
`))

type emailData struct {
	BookingID     string
	TransactionID string
	AmountDisplay string
	Reason        string
}

// NotificationServiceImpl fans out push and email after ledger transitions.
// Every delivery is best-effort: failures are logged and never propagate to
// the financial path.
type NotificationServiceImpl struct {
	contacts ports.ContactRepository
	push     ports.PushNotifier
	mailer   ports.Mailer
	log      zerolog.Logger
}

// NewNotificationService creates a new NotificationServiceImpl. push and
// mailer may be nil when the corresponding channel is not configured.
func NewNotificationService(
	contacts ports.ContactRepository,
	push ports.PushNotifier,
	mailer ports.Mailer,
	log zerolog.Logger,
) *NotificationServiceImpl {
	return &NotificationServiceImpl{
		contacts: contacts,
		push:     push,
		mailer:   mailer,
		log:      log,
	}
}

// HoldPlaced notifies the sender that their payment is held in escrow.
func (s *NotificationServiceImpl) HoldPlaced(ctx context.Context, hold *domain.EscrowHold, txn *domain.Transaction) {
	payload := payloadFor(domain.PushTypePaymentReceived, hold, txn, "")
	s.notify(ctx, hold.SenderID,
		"Payment received",
		fmt.Sprintf("Your payment of %s is held in escrow for booking %s.", amountDisplay(txn), hold.BookingID),
		payload,
		"Payment received — CrowdWave", "payment_receipt", "")
}

// FundsReleased notifies the traveler that escrowed funds are now theirs.
func (s *NotificationServiceImpl) FundsReleased(ctx context.Context, hold *domain.EscrowHold, txn *domain.Transaction) {
	payload := payloadFor(domain.PushTypeFundsReleased, hold, txn, "")
	s.notify(ctx, hold.TravelerID,
		"You got paid!",
		fmt.Sprintf("%s has been added to your wallet for booking %s.", amountDisplay(txn), hold.BookingID),
		payload,
		"You got paid! — CrowdWave", "funds_released", "")
}

// RefundIssued notifies the sender that their payment came back.
func (s *NotificationServiceImpl) RefundIssued(ctx context.Context, hold *domain.EscrowHold, txn *domain.Transaction) {
	reason := txn.Metadata["reason"]
	payload := payloadFor(domain.PushTypeRefundIssued, hold, txn, reason)
	s.notify(ctx, hold.SenderID,
		"Refund issued",
		fmt.Sprintf("Your payment of %s for booking %s was refunded.", amountDisplay(txn), hold.BookingID),
		payload,
		"Refund issued — CrowdWave", "refund_issued", reason)
}

// PaymentFailed notifies the sender that their card payment did not go
// through. Push only, no wallet mutation happened.
func (s *NotificationServiceImpl) PaymentFailed(ctx context.Context, bookingID, userID, reason string) {
	if userID == "" {
		return
	}
	payload := domain.PushPayload{
		Type:      domain.PushTypePaymentFailed,
		BookingID: bookingID,
		Reason:    reason,
	}
	body := "Your payment could not be processed."
	if reason != "" {
		body = "Your payment could not be processed: " + reason
	}
	s.sendPush(ctx, userID, "Payment failed", body, payload)
}

// notify delivers push and email to one user, each independently best-effort.
func (s *NotificationServiceImpl) notify(ctx context.Context, userID, title, body string, payload domain.PushPayload, subject, templateName, reason string) {
	s.sendPush(ctx, userID, title, body, payload)
	s.sendEmail(ctx, userID, subject, templateName, emailData{
		BookingID:     payload.BookingID,
		TransactionID: payload.TransactionID,
		AmountDisplay: formatAmount(payload.Amount, payload.Currency),
		Reason:        reason,
	}, body)
}

func (s *NotificationServiceImpl) sendPush(ctx context.Context, userID, title, body string, payload domain.PushPayload) {
	if s.push == nil {
		return
	}
	contact, err := s.contacts.Get(ctx, userID)
	if err != nil {
		s.log.Warn().Err(err).Str("user_id", userID).Msg("notify: contact lookup failed")
		return
	}
	if contact == nil || contact.PushToken == "" {
		s.log.Debug().Str("user_id", userID).Msg("notify: no push token registered")
		return
	}
	if err := s.push.Send(ctx, contact.PushToken, title, body, payload); err != nil {
		s.log.Warn().Err(err).Str("user_id", userID).Str("type", string(payload.Type)).Msg("notify: push delivery failed")
	}
}

func (s *NotificationServiceImpl) sendEmail(ctx context.Context, userID, subject, templateName string, data emailData, textBody string) {
	if s.mailer == nil {
		return
	}
	contact, err := s.contacts.Get(ctx, userID)
	if err != nil {
		s.log.Warn().Err(err).Str("user_id", userID).Msg("notify: contact lookup failed")
		return
	}
	if contact == nil || contact.Email == "" {
		return
	}

	var html bytes.Buffer
	if err := emailTemplates.ExecuteTemplate(&html, templateName, data); err != nil {
		s.log.Error().Err(err).Str("template", templateName).Msg("notify: template render failed")
		return
	}

	msg := ports.EmailMessage{
		To:       contact.Email,
		Subject:  subject,
		HTMLBody: html.String(),
		TextBody: textBody,
	}
	if err := s.mailer.Send(ctx, msg); err != nil {
		s.log.Warn().Err(err).Str("user_id", userID).Str("subject", subject).Msg("notify: email delivery failed")
	}
}

func payloadFor(pushType domain.PushType, hold *domain.EscrowHold, txn *domain.Transaction, reason string) domain.PushPayload {
	return domain.PushPayload{
		Type:          pushType,
		BookingID:     hold.BookingID,
		TransactionID: txn.ID.String(),
		Amount:        txn.Amount,
		Currency:      txn.Currency,
		Reason:        reason,
	}
}

func amountDisplay(txn *domain.Transaction) string {
	return formatAmount(txn.Amount, txn.Currency)
}

// formatAmount renders minor units as a decimal figure, e.g. 2500 usd ->
// "25.00 USD".
func formatAmount(amount int64, currency string) string {
	if currency == "" {
		return fmt.Sprintf("%d", amount)
	}
	return fmt.Sprintf("%d.%02d %s", amount/100, amount%100, strings.ToUpper(currency))
}
