package payment

import (
	"context"
	"fmt"
	"regexp"
	"strconv"

	"github.com/jameswitika/iei.org.au/internal/models"
	"github.com/jameswitika/iei.org.au/internal/platform/gateway"
	"github.com/jameswitika/iei.org.au/pkg/errs"
	"github.com/jameswitika/iei.org.au/pkg/types"
)

// subscriptionInvoicePattern matches the invoice reference stamped on every
// checkout, the fallback channel for recovering the subscription id.
var subscriptionInvoicePattern = regexp.MustCompile(`IEI-SUB-(\d+)`)

func subscriptionInvoiceID(subscriptionID uint64) string {
	return fmt.Sprintf("IEI-SUB-%d", subscriptionID)
}

func subscriptionIDFromInvoice(invoice string) (uint64, bool) {
	m := subscriptionInvoicePattern.FindStringSubmatch(invoice)
	if m == nil {
		return 0, false
	}
	id, err := strconv.ParseUint(m[1], 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}

// StartStripeCheckout creates a hosted Stripe checkout session for the
// outstanding amount and records a pending payment attempt.
func (s *Service) StartStripeCheckout(ctx context.Context, subscriptionID uint64) (*gateway.Checkout, error) {
	if !s.cfg.Stripe.Enabled {
		return nil, errs.InvalidStatef("stripe payments are not enabled")
	}
	req, sub, member, err := s.checkoutRequest(ctx, subscriptionID)
	if err != nil {
		return nil, err
	}
	req.ReturnURL = s.cfg.Server.BaseURL + "/account/payment/success"
	req.CancelURL = s.cfg.Server.BaseURL + "/account/payment/cancelled"

	checkout, err := s.stripe.CreateCheckoutSession(ctx, req)
	if err != nil {
		s.audit.Member(ctx, member.ID, "stripe_checkout_create_failed", map[string]any{
			"subscription_id": sub.ID,
		}, nil, nil)
		return nil, err
	}

	s.recordAttempt(ctx, sub, member, types.PaymentGatewayStripe, checkout.ID)
	return checkout, nil
}

// StartPayPalOrder creates a PayPal order for the outstanding amount and
// records a pending payment attempt.
func (s *Service) StartPayPalOrder(ctx context.Context, subscriptionID uint64) (*gateway.Checkout, error) {
	if !s.cfg.PayPal.Enabled {
		return nil, errs.InvalidStatef("paypal payments are not enabled")
	}
	req, sub, member, err := s.checkoutRequest(ctx, subscriptionID)
	if err != nil {
		return nil, err
	}
	req.ReturnURL = s.cfg.Server.BaseURL + "/account/payment/success"
	req.CancelURL = s.cfg.Server.BaseURL + "/account/payment/cancelled"

	checkout, err := s.paypal.CreateOrder(ctx, req)
	if err != nil {
		s.audit.Member(ctx, member.ID, "paypal_order_create_failed", map[string]any{
			"subscription_id": sub.ID,
		}, nil, nil)
		return nil, err
	}

	s.recordAttempt(ctx, sub, member, types.PaymentGatewayPayPal, checkout.ID)
	return checkout, nil
}

// CapturePayPalOrder captures an approved order and reconciles the result.
// Used by the return-from-approval flow, where no webhook is involved.
func (s *Service) CapturePayPalOrder(ctx context.Context, orderID string) (*models.Payment, error) {
	order, err := s.paypal.CaptureOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	subID, ok := s.subscriptionIDFromOrder(ctx, order)
	if !ok {
		return nil, errs.NotFoundf("subscription for paypal order %s", orderID)
	}
	reference := order.CaptureID
	if reference == "" {
		reference = order.ID
	}
	return s.Reconcile(ctx, &ReconcileInput{
		SubscriptionID:   subID,
		Amount:           order.Amount,
		Currency:         order.Currency,
		Gateway:          types.PaymentGatewayPayPal,
		GatewayReference: reference,
		Meta:             map[string]any{"order_id": order.ID, "order_status": order.Status},
	})
}

func (s *Service) checkoutRequest(ctx context.Context, subscriptionID uint64) (*gateway.CheckoutRequest, *models.Subscription, *models.Member, error) {
	sub, member, err := s.loadSubscription(ctx, subscriptionID)
	if err != nil {
		return nil, nil, nil, err
	}
	if sub.Status == types.SubscriptionStatusActive {
		return nil, nil, nil, errs.InvalidStatef("subscription %d is already paid", subscriptionID)
	}
	user, err := s.identity.Get(ctx, member.UserID)
	if err != nil {
		return nil, nil, nil, err
	}

	amount := sub.Outstanding()
	if amount.IsZero() {
		amount = sub.AmountDue
	}
	req := &gateway.CheckoutRequest{
		Amount:        amount,
		Currency:      s.cfg.Membership.Currency,
		Description:   fmt.Sprintf("Membership subscription %d/%d", sub.MembershipYear-1, sub.MembershipYear),
		CustomerEmail: user.Email,
		InvoiceID:     subscriptionInvoiceID(sub.ID),
		Metadata:      map[string]string{"subscription_id": strconv.FormatUint(sub.ID, 10)},
	}
	return req, sub, member, nil
}

// recordAttempt writes a pending payment row for a created checkout so
// abandoned sessions stay visible to admins.
func (s *Service) recordAttempt(ctx context.Context, sub *models.Subscription, member *models.Member, gw types.PaymentGateway, checkoutID string) {
	p := &models.Payment{
		MemberID:       member.ID,
		SubscriptionID: &sub.ID,
		ApplicationID:  member.ApplicationID,
		Amount:         sub.Outstanding(),
		Currency:       s.cfg.Membership.Currency,
		PaymentMethod:  string(gw),
		Gateway:        gw,
		Status:         types.PaymentStatusPending,
		Reference:      checkoutID,
	}
	if err := s.db.WithContext(ctx).Create(p).Error; err != nil {
		s.log.Errorw("payment_attempt_record_failed", "subscription_id", sub.ID, "err", err)
	}
}
