package gateway

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"github.com/jameswitika/iei.org.au/pkg/config"
	"github.com/jameswitika/iei.org.au/pkg/errs"
)

// StripeClient calls the Stripe Checkout API and verifies webhook events.
type StripeClient struct {
	cfg        config.StripeConfig
	httpClient *http.Client
	log        *zap.SugaredLogger
}

func NewStripeClient(cfg *config.Config, log *zap.SugaredLogger) *StripeClient {
	return &StripeClient{
		cfg:        cfg.Stripe,
		httpClient: &http.Client{Timeout: requestTimeout},
		log:        log,
	}
}

// StripeEvent is the subset of a webhook event the payment service consumes.
type StripeEvent struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Data struct {
		Object json.RawMessage `json:"object"`
	} `json:"data"`
}

// StripeCheckoutObject is the checkout.session object inside an event.
type StripeCheckoutObject struct {
	ID            string            `json:"id"`
	PaymentIntent string            `json:"payment_intent"`
	PaymentStatus string            `json:"payment_status"`
	AmountTotal   int64             `json:"amount_total"`
	Currency      string            `json:"currency"`
	CustomerEmail string            `json:"customer_email"`
	Metadata      map[string]string `json:"metadata"`
}

// CreateCheckoutSession creates a hosted checkout session for a single line
// item. Amounts go over the wire in minor units.
func (c *StripeClient) CreateCheckoutSession(ctx context.Context, req *CheckoutRequest) (*Checkout, error) {
	if c.cfg.SecretKey == "" {
		return nil, fmt.Errorf("%w: stripe secret key is not configured", errs.ErrGatewayFailure)
	}

	form := url.Values{}
	form.Set("mode", "payment")
	form.Set("success_url", req.ReturnURL)
	form.Set("cancel_url", req.CancelURL)
	form.Set("customer_email", req.CustomerEmail)
	form.Set("line_items[0][price_data][currency]", strings.ToLower(req.Currency))
	form.Set("line_items[0][price_data][product_data][name]", req.Description)
	form.Set("line_items[0][price_data][unit_amount]", fmt.Sprintf("%d", req.Amount.Mul(decimalHundred).IntPart()))
	form.Set("line_items[0][quantity]", "1")
	for k, v := range req.Metadata {
		form.Set("metadata["+k+"]", v)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.APIBase+"/v1/checkout/sessions", strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errs.ErrGatewayFailure, err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.cfg.SecretKey)
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: stripe request failed: %v", errs.ErrGatewayFailure, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errs.ErrGatewayFailure, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.log.Errorw("stripe_checkout_create_failed", "status", resp.StatusCode)
		return nil, fmt.Errorf("%w: stripe checkout session creation failed (status %d)", errs.ErrGatewayFailure, resp.StatusCode)
	}

	var parsed struct {
		ID  string `json:"id"`
		URL string `json:"url"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil || parsed.ID == "" {
		return nil, fmt.Errorf("%w: unexpected stripe response", errs.ErrGatewayFailure)
	}
	return &Checkout{ID: parsed.ID, ApproveURL: parsed.URL, RawResponse: body}, nil
}

// VerifyEvent checks the Stripe-Signature header (HMAC-SHA256 over
// "timestamp.payload") and returns the parsed event on success. A nil event
// means the payload must not be trusted.
func (c *StripeClient) VerifyEvent(payload []byte, signatureHeader string) *StripeEvent {
	if c.cfg.WebhookSecret == "" || signatureHeader == "" || len(payload) == 0 {
		return nil
	}

	var timestamp string
	var v1Sigs []string
	for _, segment := range strings.Split(signatureHeader, ",") {
		k, v, found := strings.Cut(strings.TrimSpace(segment), "=")
		if !found {
			continue
		}
		switch strings.TrimSpace(k) {
		case "t":
			timestamp = strings.TrimSpace(v)
		case "v1":
			v1Sigs = append(v1Sigs, strings.TrimSpace(v))
		}
	}
	if timestamp == "" || len(v1Sigs) == 0 {
		return nil
	}

	mac := hmac.New(sha256.New, []byte(c.cfg.WebhookSecret))
	mac.Write([]byte(timestamp + "."))
	mac.Write(payload)
	expected := hex.EncodeToString(mac.Sum(nil))

	verified := false
	for _, candidate := range v1Sigs {
		if hmac.Equal([]byte(expected), []byte(candidate)) {
			verified = true
			break
		}
	}
	if !verified {
		return nil
	}

	var event StripeEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil
	}
	return &event
}
