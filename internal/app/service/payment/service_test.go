package payment

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/jameswitika/iei.org.au/internal/app/service/activitylog"
	"github.com/jameswitika/iei.org.au/internal/app/service/identity"
	"github.com/jameswitika/iei.org.au/internal/models"
	"github.com/jameswitika/iei.org.au/internal/platform/db/testdb"
	"github.com/jameswitika/iei.org.au/internal/platform/gateway"
	"github.com/jameswitika/iei.org.au/pkg/config"
	"github.com/jameswitika/iei.org.au/pkg/errs"
	"github.com/jameswitika/iei.org.au/pkg/types"
)

type recordingMailer struct {
	sent int
}

func (m *recordingMailer) Send(context.Context, []string, string, string) error {
	m.sent++
	return nil
}

type fixture struct {
	db     *gorm.DB
	svc    *Service
	mailer *recordingMailer
}

func newFixture(t *testing.T) *fixture {
	db := testdb.New(t)
	log := zap.NewNop().Sugar()
	cfg := &config.Config{
		Server: config.ServerConfig{BaseURL: "https://iei.example.org"},
		Mail:   config.MailConfig{AdminEmail: "admin@example.org"},
		Membership: config.MembershipConfig{
			Currency:     "AUD",
			NumberPrefix: "IEI-",
			NumberWidth:  6,
			NextNumber:   1,
			Prices:       map[string]string{"associate": "145"},
		},
		Stripe: config.StripeConfig{WebhookSecret: "whsec_test", Enabled: true},
		Auth:   config.AuthConfig{JWTSecret: "test-secret", FormTokenTTLMinutes: 60, PasswordLinkTTLHours: 48},
	}
	audit := activitylog.NewService(db, log)
	ident := identity.NewService(cfg, db, log, audit)
	mailer := &recordingMailer{}
	svc := NewService(cfg, db, log, audit, ident, mailer,
		gateway.NewStripeClient(cfg, log), gateway.NewPayPalClient(cfg, log))
	return &fixture{db: db, svc: svc, mailer: mailer}
}

// seedPending creates a user, member, and pending subscription owing due.
func (f *fixture) seedPending(t *testing.T, email string, due string) (*models.Member, *models.Subscription) {
	user := &models.User{Email: email, FirstName: "Test", LastName: "Member", Role: types.MembershipRolePendingPayment}
	require.NoError(t, f.db.Create(user).Error)
	member := &models.Member{
		UserID:         user.ID,
		MembershipType: types.MembershipTypeAssociate,
		Status:         types.MemberStatusPendingPayment,
	}
	require.NoError(t, f.db.Create(member).Error)
	amount, err := decimal.NewFromString(due)
	require.NoError(t, err)
	sub := &models.Subscription{
		MemberID:       member.ID,
		MembershipYear: 2026,
		StartDate:      time.Date(2025, time.September, 1, 0, 0, 0, 0, time.UTC),
		EndDate:        time.Date(2026, time.June, 30, 0, 0, 0, 0, time.UTC),
		AmountDue:      amount,
		Status:         types.SubscriptionStatusPendingPayment,
		DueDate:        time.Date(2025, time.September, 1, 0, 0, 0, 0, time.UTC),
	}
	require.NoError(t, f.db.Create(sub).Error)
	return member, sub
}

func TestReconcileActivatesSubscriptionAndMember(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	member, sub := f.seedPending(t, "pay1@example.org", "120.83")

	p, err := f.svc.Reconcile(ctx, &ReconcileInput{
		SubscriptionID:   sub.ID,
		Amount:           decimal.RequireFromString("120.83"),
		Currency:         "AUD",
		Gateway:          types.PaymentGatewayStripe,
		GatewayReference: "pi_123",
	})
	require.NoError(t, err)
	require.Equal(t, types.PaymentStatusPaid, p.Status)

	var gotSub models.Subscription
	require.NoError(t, f.db.First(&gotSub, sub.ID).Error)
	require.Equal(t, types.SubscriptionStatusActive, gotSub.Status)
	require.True(t, gotSub.AmountPaid.Equal(gotSub.AmountDue))
	require.NotNil(t, gotSub.PaidAt)
	require.Equal(t, 2025, gotSub.StartDate.Year())
	require.Equal(t, time.July, gotSub.StartDate.Month())
	require.Equal(t, time.June, gotSub.EndDate.Month())

	var gotMember models.Member
	require.NoError(t, f.db.First(&gotMember, member.ID).Error)
	require.Equal(t, types.MemberStatusActive, gotMember.Status)
	require.NotNil(t, gotMember.ActivatedAt)
	require.NotNil(t, gotMember.MembershipNumber)
	require.Equal(t, "IEI-000001", *gotMember.MembershipNumber)

	var user models.User
	require.NoError(t, f.db.First(&user, member.UserID).Error)
	require.Equal(t, types.MembershipRoleMember, user.Role)

	require.Equal(t, 1, f.mailer.sent)
}

func TestReconcileReplayIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, sub := f.seedPending(t, "pay2@example.org", "145")

	in := &ReconcileInput{
		SubscriptionID:   sub.ID,
		Amount:           decimal.NewFromInt(145),
		Currency:         "AUD",
		Gateway:          types.PaymentGatewayStripe,
		GatewayReference: "pi_replay",
	}
	_, err := f.svc.Reconcile(ctx, in)
	require.NoError(t, err)
	_, err = f.svc.Reconcile(ctx, in)
	require.NoError(t, err)

	var paidCount int64
	require.NoError(t, f.db.Model(&models.Payment{}).
		Where("subscription_id = ? AND status = ?", sub.ID, types.PaymentStatusPaid).
		Count(&paidCount).Error)
	require.EqualValues(t, 1, paidCount)
	require.Equal(t, 1, f.mailer.sent)
}

func TestReconcileDuplicateBackfillsMembershipNumber(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	member, sub := f.seedPending(t, "pay8@example.org", "145")
	require.NoError(t, f.db.Model(&models.Subscription{}).
		Where("id = ?", sub.ID).
		Updates(map[string]any{
			"status":      types.SubscriptionStatusActive,
			"amount_paid": sub.AmountDue,
		}).Error)

	_, err := f.svc.Reconcile(ctx, &ReconcileInput{
		SubscriptionID:   sub.ID,
		Amount:           decimal.NewFromInt(145),
		Currency:         "AUD",
		Gateway:          types.PaymentGatewayStripe,
		GatewayReference: "pi_backfill",
	})
	require.NoError(t, err)

	var gotMember models.Member
	require.NoError(t, f.db.First(&gotMember, member.ID).Error)
	require.NotNil(t, gotMember.MembershipNumber)
	require.Equal(t, "IEI-000001", *gotMember.MembershipNumber)
	require.Zero(t, f.mailer.sent)
}

func TestReconcileAmountMismatchDoesNotActivate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	member, sub := f.seedPending(t, "pay3@example.org", "145")

	_, err := f.svc.Reconcile(ctx, &ReconcileInput{
		SubscriptionID:   sub.ID,
		Amount:           decimal.NewFromInt(100),
		Currency:         "AUD",
		Gateway:          types.PaymentGatewayStripe,
		GatewayReference: "pi_short",
	})
	require.ErrorIs(t, err, errs.ErrAmountMismatch)

	var gotSub models.Subscription
	require.NoError(t, f.db.First(&gotSub, sub.ID).Error)
	require.Equal(t, types.SubscriptionStatusPendingPayment, gotSub.Status)

	var gotMember models.Member
	require.NoError(t, f.db.First(&gotMember, member.ID).Error)
	require.Equal(t, types.MemberStatusPendingPayment, gotMember.Status)
	require.Nil(t, gotMember.MembershipNumber)

	var failed models.Payment
	require.NoError(t, f.db.Where("subscription_id = ?", sub.ID).First(&failed).Error)
	require.Equal(t, types.PaymentStatusFailed, failed.Status)
	require.Equal(t, 0, f.mailer.sent)
}

func TestReconcileToleratesRoundingDrift(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, sub := f.seedPending(t, "pay4@example.org", "120.83")

	_, err := f.svc.Reconcile(ctx, &ReconcileInput{
		SubscriptionID:   sub.ID,
		Amount:           decimal.RequireFromString("120.84"),
		Currency:         "AUD",
		Gateway:          types.PaymentGatewayPayPal,
		GatewayReference: "cap_1",
	})
	require.NoError(t, err)
}

func TestMembershipNumberFloorsOnExistingData(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// Pre-existing member holds a higher number than the counter knows.
	taken := "IEI-000007"
	holder := &models.User{Email: "old@example.org", Role: types.MembershipRoleMember}
	require.NoError(t, f.db.Create(holder).Error)
	require.NoError(t, f.db.Create(&models.Member{
		UserID:           holder.ID,
		MembershipType:   types.MembershipTypeAssociate,
		Status:           types.MemberStatusActive,
		MembershipNumber: &taken,
	}).Error)

	member, sub := f.seedPending(t, "pay5@example.org", "145")
	_, err := f.svc.Reconcile(ctx, &ReconcileInput{
		SubscriptionID:   sub.ID,
		Amount:           decimal.NewFromInt(145),
		Currency:         "AUD",
		Gateway:          types.PaymentGatewayStripe,
		GatewayReference: "pi_floor",
	})
	require.NoError(t, err)

	var gotMember models.Member
	require.NoError(t, f.db.First(&gotMember, member.ID).Error)
	require.Equal(t, "IEI-000008", *gotMember.MembershipNumber)

	var counter models.Counter
	require.NoError(t, f.db.Where("name = ?", models.CounterMembershipNumberNext).First(&counter).Error)
	require.EqualValues(t, 9, counter.Value)
}

func TestMarkPaidManuallyUsesOutstandingAmount(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	member, sub := f.seedPending(t, "pay6@example.org", "70")

	admin := &models.User{Email: "admin2@example.org", Role: types.MembershipRolePreapprovalOfficer}
	require.NoError(t, f.db.Create(admin).Error)

	p, err := f.svc.MarkPaidManually(ctx, sub.ID, "EFT 20250901", admin.ID)
	require.NoError(t, err)
	require.Equal(t, types.PaymentStatusPaid, p.Status)
	require.Equal(t, types.PaymentGatewayManual, p.Gateway)
	require.Equal(t, "EFT 20250901", p.Reference)

	var gotMember models.Member
	require.NoError(t, f.db.First(&gotMember, member.ID).Error)
	require.Equal(t, types.MemberStatusActive, gotMember.Status)
}

func TestReconcileSubscriptionNotFound(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Reconcile(context.Background(), &ReconcileInput{
		SubscriptionID: 9999,
		Amount:         decimal.NewFromInt(145),
		Currency:       "AUD",
		Gateway:        types.PaymentGatewayManual,
	})
	require.True(t, errs.IsNotFound(err))
}

func stripeSignature(secret string, payload []byte, ts int64) string {
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%d.", ts)
	mac.Write(payload)
	return fmt.Sprintf("t=%d,v1=%s", ts, hex.EncodeToString(mac.Sum(nil)))
}

func TestStripeWebhookActivatesSubscription(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	member, sub := f.seedPending(t, "hook1@example.org", "145")

	payload := []byte(fmt.Sprintf(`{
		"id": "evt_1",
		"type": "checkout.session.completed",
		"data": {"object": {
			"id": "cs_1",
			"payment_intent": "pi_hook",
			"payment_status": "paid",
			"amount_total": 14500,
			"currency": "aud",
			"metadata": {"subscription_id": "%d"}
		}}
	}`, sub.ID))
	sig := stripeSignature("whsec_test", payload, time.Now().Unix())

	require.NoError(t, f.svc.HandleStripeWebhook(ctx, payload, sig))

	var gotMember models.Member
	require.NoError(t, f.db.First(&gotMember, member.ID).Error)
	require.Equal(t, types.MemberStatusActive, gotMember.Status)

	// Redelivery of the same event stays quiet.
	require.NoError(t, f.svc.HandleStripeWebhook(ctx, payload, sig))
	var paidCount int64
	require.NoError(t, f.db.Model(&models.Payment{}).
		Where("subscription_id = ? AND status = ?", sub.ID, types.PaymentStatusPaid).
		Count(&paidCount).Error)
	require.EqualValues(t, 1, paidCount)
	require.Equal(t, 1, f.mailer.sent)
}

func TestStripeWebhookRejectsBadSignatureQuietly(t *testing.T) {
	f := newFixture(t)
	_, sub := f.seedPending(t, "hook2@example.org", "145")

	payload := []byte(`{"id":"evt_2","type":"checkout.session.completed","data":{"object":{}}}`)
	require.NoError(t, f.svc.HandleStripeWebhook(context.Background(), payload, "t=1,v1=deadbeef"))

	var gotSub models.Subscription
	require.NoError(t, f.db.First(&gotSub, sub.ID).Error)
	require.Equal(t, types.SubscriptionStatusPendingPayment, gotSub.Status)
}

func TestSubscriptionIDFromInvoice(t *testing.T) {
	id, ok := subscriptionIDFromInvoice("IEI-SUB-42")
	require.True(t, ok)
	require.EqualValues(t, 42, id)

	_, ok = subscriptionIDFromInvoice("INV-42")
	require.False(t, ok)
}
