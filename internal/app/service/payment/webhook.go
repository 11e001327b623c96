package payment

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/shopspring/decimal"

	"github.com/jameswitika/iei.org.au/internal/platform/gateway"
	"github.com/jameswitika/iei.org.au/pkg/logctx"
	"github.com/jameswitika/iei.org.au/pkg/types"
)

// HandleStripeWebhook verifies and applies one Stripe event. Unverified,
// malformed, or irrelevant deliveries return nil so the transport layer acks
// them and stops the retry loop.
func (s *Service) HandleStripeWebhook(ctx context.Context, payload []byte, signatureHeader string) error {
	log := logctx.FromCtx(ctx, s.log)

	event := s.stripe.VerifyEvent(payload, signatureHeader)
	if event == nil {
		log.Warnw("stripe_webhook_rejected", "reason", "signature")
		return nil
	}
	if event.Type != "checkout.session.completed" {
		return nil
	}

	var session gateway.StripeCheckoutObject
	if err := json.Unmarshal(event.Data.Object, &session); err != nil {
		log.Warnw("stripe_webhook_rejected", "reason", "malformed_object", "event_id", event.ID)
		return nil
	}
	if session.PaymentStatus != "paid" {
		return nil
	}

	subID, ok := parseSubscriptionID(session.Metadata["subscription_id"])
	if !ok {
		log.Warnw("stripe_webhook_rejected", "reason", "no_subscription_id", "event_id", event.ID)
		return nil
	}

	reference := session.PaymentIntent
	if reference == "" {
		reference = session.ID
	}
	_, err := s.Reconcile(ctx, &ReconcileInput{
		SubscriptionID:   subID,
		Amount:           decimal.New(session.AmountTotal, -2),
		Currency:         session.Currency,
		Gateway:          types.PaymentGatewayStripe,
		GatewayReference: reference,
		Meta:             map[string]any{"event_id": event.ID, "session_id": session.ID},
	})
	return err
}

// payPalWebhookEvent is the envelope of a PayPal notification.
type payPalWebhookEvent struct {
	ID        string `json:"id"`
	EventType string `json:"event_type"`
	Resource  struct {
		ID        string `json:"id"`
		Status    string `json:"status"`
		CustomID  string `json:"custom_id"`
		InvoiceID string `json:"invoice_id"`
		Amount    struct {
			Value        string `json:"value"`
			CurrencyCode string `json:"currency_code"`
		} `json:"amount"`
		SupplementaryData struct {
			RelatedIDs struct {
				OrderID string `json:"order_id"`
			} `json:"related_ids"`
		} `json:"supplementary_data"`
	} `json:"resource"`
}

// HandlePayPalWebhook verifies and applies one PayPal event. As with
// Stripe, anything that cannot be trusted or parsed is acked as a no-op.
func (s *Service) HandlePayPalWebhook(ctx context.Context, headers http.Header, payload []byte) error {
	log := logctx.FromCtx(ctx, s.log)

	if !s.paypal.VerifyWebhook(ctx, headers, payload) {
		log.Warnw("paypal_webhook_rejected", "reason", "signature")
		return nil
	}

	var event payPalWebhookEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		log.Warnw("paypal_webhook_rejected", "reason", "malformed")
		return nil
	}
	if event.EventType != "PAYMENT.CAPTURE.COMPLETED" {
		return nil
	}

	amount, err := decimal.NewFromString(event.Resource.Amount.Value)
	if err != nil {
		log.Warnw("paypal_webhook_rejected", "reason", "bad_amount", "event_id", event.ID)
		return nil
	}

	subID, ok := s.extractPayPalSubscriptionID(ctx, &event)
	if !ok {
		log.Warnw("paypal_webhook_rejected", "reason", "no_subscription_id", "event_id", event.ID)
		return nil
	}

	_, err = s.Reconcile(ctx, &ReconcileInput{
		SubscriptionID:   subID,
		Amount:           amount,
		Currency:         event.Resource.Amount.CurrencyCode,
		Gateway:          types.PaymentGatewayPayPal,
		GatewayReference: event.Resource.ID,
		Meta:             map[string]any{"event_id": event.ID, "capture_status": event.Resource.Status},
	})
	return err
}

// extractPayPalSubscriptionID recovers the subscription id from the capture:
// custom_id first, then the invoice reference, then a live order lookup.
func (s *Service) extractPayPalSubscriptionID(ctx context.Context, event *payPalWebhookEvent) (uint64, bool) {
	if id, ok := parseSubscriptionID(event.Resource.CustomID); ok {
		return id, true
	}
	if id, ok := subscriptionIDFromInvoice(event.Resource.InvoiceID); ok {
		return id, true
	}

	orderID := event.Resource.SupplementaryData.RelatedIDs.OrderID
	if orderID == "" {
		return 0, false
	}
	order, err := s.paypal.GetOrder(ctx, orderID)
	if err != nil {
		logctx.FromCtx(ctx, s.log).Errorw("paypal_order_lookup_failed", "order_id", orderID, "err", err)
		return 0, false
	}
	return s.subscriptionIDFromOrder(ctx, order)
}

func (s *Service) subscriptionIDFromOrder(_ context.Context, order *gateway.Order) (uint64, bool) {
	if id, ok := parseSubscriptionID(order.CustomID); ok {
		return id, true
	}
	return subscriptionIDFromInvoice(order.InvoiceID)
}

func parseSubscriptionID(raw string) (uint64, bool) {
	if raw == "" {
		return 0, false
	}
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || id == 0 {
		return 0, false
	}
	return id, true
}
