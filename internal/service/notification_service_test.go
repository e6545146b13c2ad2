package service

import (
	"context"
	"errors"
	"testing"

	"crowdwave-ledger/internal/core/domain"
	"crowdwave-ledger/internal/core/ports"
	"crowdwave-ledger/internal/core/ports/mocks"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"go.uber.org/mock/gomock"
)

type notifyTestDeps struct {
	svc      *NotificationServiceImpl
	contacts *mocks.MockContactRepository
	push     *mocks.MockPushNotifier
	mailer   *mocks.MockMailer
	ctrl     *gomock.Controller
}

func setupNotificationService(t *testing.T) *notifyTestDeps {
	ctrl := gomock.NewController(t)
	d := &notifyTestDeps{
		contacts: mocks.NewMockContactRepository(ctrl),
		push:     mocks.NewMockPushNotifier(ctrl),
		mailer:   mocks.NewMockMailer(ctrl),
		ctrl:     ctrl,
	}
	d.svc = NewNotificationService(d.contacts, d.push, d.mailer, zerolog.Nop())
	return d
}

func notifyFixtures() (*domain.EscrowHold, *domain.Transaction) {
	hold := &domain.EscrowHold{
		BookingID:  "booking-1",
		TravelerID: "traveler-1",
		SenderID:   "sender-1",
		Amount:     2500,
		Currency:   "usd",
	}
	txn := &domain.Transaction{
		ID:       uuid.New(),
		Amount:   2500,
		Currency: "usd",
		Metadata: map[string]string{},
	}
	return hold, txn
}

func TestNotificationService_FundsReleased_PushAndEmail(t *testing.T) {
	d := setupNotificationService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	hold, txn := notifyFixtures()
	contact := &domain.Contact{UserID: "traveler-1", PushToken: "tok-1", Email: "t@example.com"}

	d.contacts.EXPECT().Get(ctx, "traveler-1").Return(contact, nil).Times(2)
	d.push.EXPECT().Send(ctx, "tok-1", "You got paid!", gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, _, _, _ string, payload domain.PushPayload) error {
			assert.Equal(t, domain.PushTypeFundsReleased, payload.Type)
			assert.Equal(t, "booking-1", payload.BookingID)
			return nil
		})
	d.mailer.EXPECT().Send(ctx, gomock.Any()).DoAndReturn(
		func(_ context.Context, msg ports.EmailMessage) error {
			assert.Equal(t, "t@example.com", msg.To)
			assert.Contains(t, msg.HTMLBody, "25.00 USD")
			assert.Contains(t, msg.HTMLBody, "booking-1")
			return nil
		})

	d.svc.FundsReleased(ctx, hold, txn)
}

func TestNotificationService_HoldPlaced_NotifiesSender(t *testing.T) {
	d := setupNotificationService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	hold, txn := notifyFixtures()
	contact := &domain.Contact{UserID: "sender-1", PushToken: "tok-s", Email: "s@example.com"}

	d.contacts.EXPECT().Get(ctx, "sender-1").Return(contact, nil).Times(2)
	d.push.EXPECT().Send(ctx, "tok-s", "Payment received", gomock.Any(), gomock.Any()).Return(nil)
	d.mailer.EXPECT().Send(ctx, gomock.Any()).Return(nil)

	d.svc.HoldPlaced(ctx, hold, txn)
}

func TestNotificationService_RefundIssued_IncludesReason(t *testing.T) {
	d := setupNotificationService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	hold, txn := notifyFixtures()
	txn.Metadata["reason"] = "trip cancelled"
	contact := &domain.Contact{UserID: "sender-1", PushToken: "tok-s", Email: "s@example.com"}

	d.contacts.EXPECT().Get(ctx, "sender-1").Return(contact, nil).Times(2)
	d.push.EXPECT().Send(ctx, "tok-s", "Refund issued", gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, _, _, _ string, payload domain.PushPayload) error {
			assert.Equal(t, "trip cancelled", payload.Reason)
			return nil
		})
	d.mailer.EXPECT().Send(ctx, gomock.Any()).DoAndReturn(
		func(_ context.Context, msg ports.EmailMessage) error {
			assert.Contains(t, msg.HTMLBody, "trip cancelled")
			return nil
		})

	d.svc.RefundIssued(ctx, hold, txn)
}

func TestNotificationService_NoContact_Skips(t *testing.T) {
	d := setupNotificationService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	hold, txn := notifyFixtures()

	d.contacts.EXPECT().Get(ctx, "traveler-1").Return(nil, nil).Times(2)

	// no push.Send / mailer.Send expectations: nothing must be delivered
	d.svc.FundsReleased(ctx, hold, txn)
}

func TestNotificationService_DeliveryFailureDoesNotPanic(t *testing.T) {
	d := setupNotificationService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	hold, txn := notifyFixtures()
	contact := &domain.Contact{UserID: "traveler-1", PushToken: "tok-1", Email: "t@example.com"}

	d.contacts.EXPECT().Get(ctx, "traveler-1").Return(contact, nil).Times(2)
	d.push.EXPECT().Send(ctx, "tok-1", gomock.Any(), gomock.Any(), gomock.Any()).Return(errors.New("gateway down"))
	d.mailer.EXPECT().Send(ctx, gomock.Any()).Return(errors.New("smtp down"))

	d.svc.FundsReleased(ctx, hold, txn)
}

func TestNotificationService_PaymentFailed(t *testing.T) {
	d := setupNotificationService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	contact := &domain.Contact{UserID: "sender-1", PushToken: "tok-s"}

	d.contacts.EXPECT().Get(ctx, "sender-1").Return(contact, nil)
	d.push.EXPECT().Send(ctx, "tok-s", "Payment failed", gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, _, _, body string, payload domain.PushPayload) error {
			assert.Contains(t, body, "card declined")
			assert.Equal(t, domain.PushTypePaymentFailed, payload.Type)
			return nil
		})

	d.svc.PaymentFailed(ctx, "booking-1", "sender-1", "card declined")
}

func TestNotificationService_PaymentFailed_NoUser(t *testing.T) {
	d := setupNotificationService(t)
	defer d.ctrl.Finish()

	d.svc.PaymentFailed(context.Background(), "booking-1", "", "card declined")
}
