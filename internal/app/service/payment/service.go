// Package payment turns verified gateway notifications and manual admin
// actions into subscription activations through one reconcile entry point.
package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/jameswitika/iei.org.au/internal/app/service/activitylog"
	"github.com/jameswitika/iei.org.au/internal/app/service/identity"
	"github.com/jameswitika/iei.org.au/internal/models"
	"github.com/jameswitika/iei.org.au/internal/platform/gateway"
	"github.com/jameswitika/iei.org.au/internal/platform/mail"
	"github.com/jameswitika/iei.org.au/pkg/config"
	"github.com/jameswitika/iei.org.au/pkg/errs"
	"github.com/jameswitika/iei.org.au/pkg/logctx"
	"github.com/jameswitika/iei.org.au/pkg/types"
)

// amountTolerance absorbs rounding differences between the gateway's minor
// units and the stored decimal amount.
var amountTolerance = decimal.NewFromFloat(0.01)

type Service struct {
	cfg      *config.Config
	db       *gorm.DB
	log      *zap.SugaredLogger
	audit    *activitylog.Service
	identity *identity.Service
	mailer   mail.Mailer
	stripe   *gateway.StripeClient
	paypal   *gateway.PayPalClient

	now func() time.Time
}

func NewService(cfg *config.Config, db *gorm.DB, log *zap.SugaredLogger, audit *activitylog.Service, ident *identity.Service, mailer mail.Mailer, stripe *gateway.StripeClient, paypal *gateway.PayPalClient) *Service {
	return &Service{cfg: cfg, db: db, log: log, audit: audit, identity: ident, mailer: mailer, stripe: stripe, paypal: paypal, now: time.Now}
}

// ReconcileInput is one observed payment, whatever the channel.
type ReconcileInput struct {
	SubscriptionID   uint64
	Amount           decimal.Decimal
	Currency         string
	Gateway          types.PaymentGateway
	GatewayReference string
	Reference        string
	ActorUserID      *uint64
	Meta             map[string]any
}

// Reconcile applies a payment to a subscription. Replays of an already
// active subscription are side-effect-free successes; amount mismatches are
// recorded as failed attempts and never activate.
func (s *Service) Reconcile(ctx context.Context, in *ReconcileInput) (*models.Payment, error) {
	sub, member, err := s.loadSubscription(ctx, in.SubscriptionID)
	if err != nil {
		return nil, err
	}

	if sub.Status == types.SubscriptionStatusActive {
		p, err := s.upsertPaidPayment(ctx, sub, member, in)
		if err != nil {
			return nil, err
		}
		if err := s.ensureMembershipNumber(ctx, member); err != nil {
			return nil, err
		}
		s.audit.Member(ctx, member.ID, "payment_duplicate_ignored", map[string]any{
			"subscription_id":   sub.ID,
			"gateway_reference": in.GatewayReference,
		}, in.ActorUserID, nil)
		return p, nil
	}

	expectedDue := sub.AmountDue.Sub(sub.AmountPaid)
	if expectedDue.IsPositive() && expectedDue.Sub(in.Amount).Abs().GreaterThan(amountTolerance) {
		p := s.newPaymentRow(sub, member, in, types.PaymentStatusFailed)
		if err := s.db.WithContext(ctx).Create(p).Error; err != nil {
			return nil, fmt.Errorf("record failed payment: %w", err)
		}
		s.audit.Member(ctx, member.ID, "payment_amount_mismatch", map[string]any{
			"subscription_id": sub.ID,
			"expected":        expectedDue,
			"received":        in.Amount,
		}, in.ActorUserID, nil)
		return p, fmt.Errorf("%w: subscription %d expects %s, received %s",
			errs.ErrAmountMismatch, sub.ID, expectedDue.StringFixed(2), in.Amount.StringFixed(2))
	}

	return s.activate(ctx, sub, member, in)
}

func (s *Service) activate(ctx context.Context, sub *models.Subscription, member *models.Member, in *ReconcileInput) (*models.Payment, error) {
	now := s.now()
	start, end := cycleDates(sub.MembershipYear, sub.StartDate.Location())

	res := s.db.WithContext(ctx).Model(&models.Subscription{}).
		Where("id = ? AND status <> ?", sub.ID, types.SubscriptionStatusActive).
		Updates(map[string]any{
			"status":      types.SubscriptionStatusActive,
			"amount_paid": sub.AmountDue,
			"paid_at":     now,
			"start_date":  start,
			"end_date":    end,
		})
	if res.Error != nil {
		return nil, fmt.Errorf("activate subscription: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		// A concurrent delivery already activated; fall into the
		// duplicate path for the payment row.
		p, err := s.upsertPaidPayment(ctx, sub, member, in)
		if err != nil {
			return nil, err
		}
		if err := s.ensureMembershipNumber(ctx, member); err != nil {
			return nil, err
		}
		s.audit.Member(ctx, member.ID, "payment_duplicate_ignored", map[string]any{
			"subscription_id":   sub.ID,
			"gateway_reference": in.GatewayReference,
		}, in.ActorUserID, nil)
		return p, nil
	}
	s.audit.Member(ctx, member.ID, "payment_marked_paid", map[string]any{
		"subscription_id": sub.ID,
		"amount":          in.Amount,
		"gateway":         in.Gateway,
	}, in.ActorUserID, nil)

	p, err := s.upsertPaidPayment(ctx, sub, member, in)
	if err != nil {
		return nil, err
	}
	s.audit.Member(ctx, member.ID, "payment_recorded", map[string]any{
		"payment_id":        p.ID,
		"subscription_id":   sub.ID,
		"gateway_reference": in.GatewayReference,
	}, in.ActorUserID, nil)

	if err := s.activateMember(ctx, member, now, in.ActorUserID); err != nil {
		return nil, err
	}

	s.sendActivationEmail(ctx, member, sub, in.Amount, start, end)
	s.audit.Member(ctx, member.ID, "membership_activated", map[string]any{
		"subscription_id": sub.ID,
		"membership_year": sub.MembershipYear,
	}, in.ActorUserID, nil)
	return p, nil
}

// upsertPaidPayment records the payment as paid, deduplicating first on the
// gateway transaction id and then on any existing paid row for the
// subscription.
func (s *Service) upsertPaidPayment(ctx context.Context, sub *models.Subscription, member *models.Member, in *ReconcileInput) (*models.Payment, error) {
	now := s.now()

	var existing models.Payment
	found := false
	if in.GatewayReference != "" {
		err := s.db.WithContext(ctx).
			Where("gateway_transaction_id = ?", in.GatewayReference).
			First(&existing).Error
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("look up payment by transaction: %w", err)
		}
		found = err == nil
	}
	if !found {
		err := s.db.WithContext(ctx).
			Where("subscription_id = ? AND status = ?", sub.ID, types.PaymentStatusPaid).
			First(&existing).Error
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("look up paid payment: %w", err)
		}
		found = err == nil
	}

	if found {
		updates := map[string]any{
			"status":      types.PaymentStatusPaid,
			"amount":      in.Amount,
			"received_at": now,
		}
		if in.GatewayReference != "" && existing.GatewayTransactionID == nil {
			updates["gateway_transaction_id"] = in.GatewayReference
		}
		if err := s.db.WithContext(ctx).Model(&existing).Updates(updates).Error; err != nil {
			return nil, fmt.Errorf("update payment: %w", err)
		}
		return &existing, nil
	}

	p := s.newPaymentRow(sub, member, in, types.PaymentStatusPaid)
	p.ReceivedAt = &now
	if err := s.db.WithContext(ctx).Create(p).Error; err != nil {
		return nil, fmt.Errorf("record payment: %w", err)
	}
	return p, nil
}

func (s *Service) newPaymentRow(sub *models.Subscription, member *models.Member, in *ReconcileInput, status types.PaymentStatus) *models.Payment {
	p := &models.Payment{
		MemberID:       member.ID,
		SubscriptionID: &sub.ID,
		ApplicationID:  member.ApplicationID,
		Amount:         in.Amount,
		Currency:       in.Currency,
		PaymentMethod:  string(in.Gateway),
		Gateway:        in.Gateway,
		Status:         status,
		Reference:      in.Reference,
	}
	if in.GatewayReference != "" {
		p.GatewayTransactionID = &in.GatewayReference
	}
	if len(in.Meta) > 0 {
		if raw, err := json.Marshal(in.Meta); err == nil {
			p.Meta = datatypes.JSON(raw)
		}
	}
	return p
}

// ensureMembershipNumber assigns the member's permanent number if they do
// not have one yet.
func (s *Service) ensureMembershipNumber(ctx context.Context, member *models.Member) error {
	if member.MembershipNumber != nil {
		return nil
	}
	number, err := s.nextMembershipNumber(ctx)
	if err != nil {
		return err
	}
	if err := s.db.WithContext(ctx).Model(member).Update("membership_number", number).Error; err != nil {
		return fmt.Errorf("assign membership number: %w", err)
	}
	member.MembershipNumber = &number
	return nil
}

func (s *Service) activateMember(ctx context.Context, member *models.Member, now time.Time, actorUserID *uint64) error {
	if err := s.ensureMembershipNumber(ctx, member); err != nil {
		return err
	}

	updates := map[string]any{"status": types.MemberStatusActive}
	if member.ActivatedAt == nil {
		updates["activated_at"] = now
		member.ActivatedAt = &now
	}
	if err := s.db.WithContext(ctx).Model(member).Updates(updates).Error; err != nil {
		return fmt.Errorf("activate member: %w", err)
	}
	member.Status = types.MemberStatusActive

	if err := s.identity.AssignRole(ctx, member.UserID, types.MembershipRoleMember, actorUserID); err != nil {
		return err
	}
	s.audit.Member(ctx, member.ID, "member_activated_after_payment", map[string]any{
		"membership_number": member.MembershipNumber,
	}, actorUserID, nil)
	return nil
}

// nextMembershipNumber reserves the next sequential number. The floor is the
// larger of the persisted counter and the highest suffix already in use, so
// a stale counter can never reissue an existing number.
func (s *Service) nextMembershipNumber(ctx context.Context) (string, error) {
	var counter models.Counter
	err := s.db.WithContext(ctx).
		Where(models.Counter{Name: models.CounterMembershipNumberNext}).
		Attrs(models.Counter{Value: s.cfg.Membership.NextNumber}).
		FirstOrCreate(&counter).Error
	if err != nil {
		return "", fmt.Errorf("load membership counter: %w", err)
	}

	maxSuffix, err := s.maxAssignedSuffix(ctx)
	if err != nil {
		return "", err
	}

	next := counter.Value
	if maxSuffix+1 > next {
		next = maxSuffix + 1
	}

	err = s.db.WithContext(ctx).Model(&models.Counter{}).
		Where("name = ?", models.CounterMembershipNumberNext).
		Update("value", next+1).Error
	if err != nil {
		return "", fmt.Errorf("advance membership counter: %w", err)
	}

	return fmt.Sprintf("%s%0*d", s.cfg.Membership.NumberPrefix, s.cfg.Membership.NumberWidth, next), nil
}

func (s *Service) maxAssignedSuffix(ctx context.Context) (int64, error) {
	var numbers []string
	err := s.db.WithContext(ctx).Model(&models.Member{}).
		Where("membership_number IS NOT NULL").
		Pluck("membership_number", &numbers).Error
	if err != nil {
		return 0, fmt.Errorf("list membership numbers: %w", err)
	}

	var maxSuffix int64
	for _, n := range numbers {
		suffix := strings.TrimPrefix(n, s.cfg.Membership.NumberPrefix)
		v, err := strconv.ParseInt(suffix, 10, 64)
		if err != nil {
			continue
		}
		if v > maxSuffix {
			maxSuffix = v
		}
	}
	return maxSuffix, nil
}

func (s *Service) sendActivationEmail(ctx context.Context, member *models.Member, sub *models.Subscription, amount decimal.Decimal, start, end time.Time) {
	user, err := s.identity.Get(ctx, member.UserID)
	if err != nil {
		logctx.FromCtx(ctx, s.log).Errorw("activation_email_user_lookup_failed", "member_id", member.ID, "err", err)
		return
	}

	number := ""
	if member.MembershipNumber != nil {
		number = *member.MembershipNumber
	}
	portalURL := s.cfg.Server.BaseURL + "/account"
	n := mail.NewMembershipActivated(user.FullName(), number, amount, s.cfg.Membership.Currency,
		start.Format("2 January 2006"), end.Format("2 January 2006"), portalURL)
	if err := s.mailer.Send(ctx, []string{user.Email}, n.Subject, n.Body); err != nil {
		logctx.FromCtx(ctx, s.log).Errorw("activation_email_failed", "member_id", member.ID, "err", err)
	}
}

// MarkPaidManually records an admin-entered payment for the outstanding
// amount, so the reconcile mismatch guard never blocks it.
func (s *Service) MarkPaidManually(ctx context.Context, subscriptionID uint64, reference string, actorUserID uint64) (*models.Payment, error) {
	sub, _, err := s.loadSubscription(ctx, subscriptionID)
	if err != nil {
		return nil, err
	}
	amount := sub.Outstanding()
	if amount.IsZero() {
		amount = sub.AmountDue
	}
	return s.Reconcile(ctx, &ReconcileInput{
		SubscriptionID: subscriptionID,
		Amount:         amount,
		Currency:       s.cfg.Membership.Currency,
		Gateway:        types.PaymentGatewayManual,
		Reference:      reference,
		ActorUserID:    &actorUserID,
	})
}

func (s *Service) loadSubscription(ctx context.Context, subscriptionID uint64) (*models.Subscription, *models.Member, error) {
	var sub models.Subscription
	if err := s.db.WithContext(ctx).First(&sub, subscriptionID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, errs.NotFoundf("subscription %d", subscriptionID)
		}
		return nil, nil, fmt.Errorf("load subscription: %w", err)
	}
	var member models.Member
	if err := s.db.WithContext(ctx).First(&member, sub.MemberID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, errs.NotFoundf("member %d", sub.MemberID)
		}
		return nil, nil, fmt.Errorf("load member: %w", err)
	}
	return &sub, &member, nil
}

// cycleDates normalizes a membership year to its July 1 to June 30 span.
func cycleDates(membershipYear int, loc *time.Location) (start, end time.Time) {
	if loc == nil {
		loc = time.UTC
	}
	start = time.Date(membershipYear-1, time.July, 1, 0, 0, 0, 0, loc)
	end = time.Date(membershipYear, time.June, 30, 0, 0, 0, 0, loc)
	return start, end
}
