package gateway

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/jameswitika/iei.org.au/pkg/config"
	"github.com/jameswitika/iei.org.au/pkg/errs"
)

// PayPalClient calls the PayPal Orders API and delegates webhook
// verification to the remote verify-webhook-signature endpoint.
type PayPalClient struct {
	cfg        config.PayPalConfig
	httpClient *http.Client
	log        *zap.SugaredLogger
}

func NewPayPalClient(cfg *config.Config, log *zap.SugaredLogger) *PayPalClient {
	return &PayPalClient{
		cfg:        cfg.PayPal,
		httpClient: &http.Client{Timeout: requestTimeout},
		log:        log,
	}
}

// CreateOrder creates a CAPTURE-intent order carrying the subscription
// reference in both invoice_id and custom_id.
func (c *PayPalClient) CreateOrder(ctx context.Context, req *CheckoutRequest) (*Checkout, error) {
	body := map[string]any{
		"intent": "CAPTURE",
		"purchase_units": []map[string]any{{
			"amount": map[string]string{
				"currency_code": strings.ToUpper(req.Currency),
				"value":         req.Amount.StringFixed(2),
			},
			"invoice_id":  req.InvoiceID,
			"custom_id":   req.Metadata["subscription_id"],
			"description": req.Description,
		}},
		"application_context": map[string]string{
			"return_url":  req.ReturnURL,
			"cancel_url":  req.CancelURL,
			"user_action": "PAY_NOW",
		},
	}

	raw, err := c.request(ctx, http.MethodPost, "/v2/checkout/orders", body)
	if err != nil {
		return nil, err
	}

	var parsed struct {
		ID    string `json:"id"`
		Links []struct {
			Rel  string `json:"rel"`
			Href string `json:"href"`
		} `json:"links"`
	}
	if err := json.Unmarshal(raw, &parsed); err != nil || parsed.ID == "" {
		return nil, fmt.Errorf("%w: unexpected paypal order response", errs.ErrGatewayFailure)
	}
	checkout := &Checkout{ID: parsed.ID, RawResponse: raw}
	for _, link := range parsed.Links {
		if link.Rel == "approve" {
			checkout.ApproveURL = link.Href
		}
	}
	return checkout, nil
}

// CaptureOrder completes an approved order.
func (c *PayPalClient) CaptureOrder(ctx context.Context, orderID string) (*Order, error) {
	raw, err := c.request(ctx, http.MethodPost, "/v2/checkout/orders/"+url.PathEscape(orderID)+"/capture", map[string]any{})
	if err != nil {
		return nil, err
	}
	return parseOrder(raw)
}

// GetOrder fetches an order, used as the last-resort subscription lookup
// when a webhook payload carries neither custom_id nor invoice_id.
func (c *PayPalClient) GetOrder(ctx context.Context, orderID string) (*Order, error) {
	raw, err := c.request(ctx, http.MethodGet, "/v2/checkout/orders/"+url.PathEscape(orderID), nil)
	if err != nil {
		return nil, err
	}
	return parseOrder(raw)
}

// VerifyWebhook asks PayPal to confirm the transmission signature. Any
// missing header short-circuits to unverified.
func (c *PayPalClient) VerifyWebhook(ctx context.Context, headers http.Header, rawEvent json.RawMessage) bool {
	if c.cfg.WebhookID == "" {
		return false
	}

	verification := map[string]any{
		"transmission_id":   headers.Get("Paypal-Transmission-Id"),
		"transmission_time": headers.Get("Paypal-Transmission-Time"),
		"cert_url":          headers.Get("Paypal-Cert-Url"),
		"auth_algo":         headers.Get("Paypal-Auth-Algo"),
		"transmission_sig":  headers.Get("Paypal-Transmission-Sig"),
		"webhook_id":        c.cfg.WebhookID,
		"webhook_event":     rawEvent,
	}
	for _, key := range []string{"transmission_id", "transmission_time", "cert_url", "auth_algo", "transmission_sig"} {
		if verification[key] == "" {
			return false
		}
	}

	raw, err := c.request(ctx, http.MethodPost, "/v1/notifications/verify-webhook-signature", verification)
	if err != nil {
		c.log.Errorw("paypal_webhook_verify_failed", "err", err)
		return false
	}
	var parsed struct {
		VerificationStatus string `json:"verification_status"`
	}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return false
	}
	return strings.EqualFold(parsed.VerificationStatus, "SUCCESS")
}

func parseOrder(raw json.RawMessage) (*Order, error) {
	var parsed struct {
		ID            string `json:"id"`
		Status        string `json:"status"`
		PurchaseUnits []struct {
			CustomID  string `json:"custom_id"`
			InvoiceID string `json:"invoice_id"`
			Amount    struct {
				CurrencyCode string `json:"currency_code"`
				Value        string `json:"value"`
			} `json:"amount"`
			Payments struct {
				Captures []struct {
					ID     string `json:"id"`
					Status string `json:"status"`
					Amount struct {
						CurrencyCode string `json:"currency_code"`
						Value        string `json:"value"`
					} `json:"amount"`
				} `json:"captures"`
			} `json:"payments"`
		} `json:"purchase_units"`
	}
	if err := json.Unmarshal(raw, &parsed); err != nil || parsed.ID == "" {
		return nil, fmt.Errorf("%w: unexpected paypal order payload", errs.ErrGatewayFailure)
	}

	order := &Order{ID: parsed.ID, Status: parsed.Status, RawResponse: raw}
	if len(parsed.PurchaseUnits) > 0 {
		unit := parsed.PurchaseUnits[0]
		order.CustomID = unit.CustomID
		order.InvoiceID = unit.InvoiceID
		order.Currency = unit.Amount.CurrencyCode
		if amt, err := decimal.NewFromString(unit.Amount.Value); err == nil {
			order.Amount = amt
		}
		if len(unit.Payments.Captures) > 0 {
			capture := unit.Payments.Captures[0]
			order.CaptureID = capture.ID
			order.Currency = capture.Amount.CurrencyCode
			if amt, err := decimal.NewFromString(capture.Amount.Value); err == nil {
				order.Amount = amt
			}
		}
	}
	return order, nil
}

func (c *PayPalClient) request(ctx context.Context, method, path string, body any) (json.RawMessage, error) {
	token, err := c.accessToken(ctx)
	if err != nil {
		return nil, err
	}

	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", errs.ErrGatewayFailure, err)
		}
		reader = bytes.NewReader(encoded)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, c.cfg.APIBase+path, reader)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errs.ErrGatewayFailure, err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+token)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: paypal api request failed: %v", errs.ErrGatewayFailure, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errs.ErrGatewayFailure, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.log.Errorw("paypal_api_error", "status", resp.StatusCode, "path", path)
		return nil, fmt.Errorf("%w: paypal api returned status %d", errs.ErrGatewayFailure, resp.StatusCode)
	}
	return raw, nil
}

func (c *PayPalClient) accessToken(ctx context.Context) (string, error) {
	if c.cfg.ClientID == "" || c.cfg.Secret == "" {
		return "", fmt.Errorf("%w: paypal credentials are not configured", errs.ErrGatewayFailure)
	}

	form := url.Values{}
	form.Set("grant_type", "client_credentials")

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.APIBase+"/v1/oauth2/token", strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("%w: %v", errs.ErrGatewayFailure, err)
	}
	basic := base64.StdEncoding.EncodeToString([]byte(c.cfg.ClientID + ":" + c.cfg.Secret))
	httpReq.Header.Set("Authorization", "Basic "+basic)
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("%w: paypal auth failed: %v", errs.ErrGatewayFailure, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("%w: %v", errs.ErrGatewayFailure, err)
	}
	var parsed struct {
		AccessToken string `json:"access_token"`
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 || json.Unmarshal(raw, &parsed) != nil || parsed.AccessToken == "" {
		return "", fmt.Errorf("%w: failed to fetch paypal access token", errs.ErrGatewayFailure)
	}
	return parsed.AccessToken, nil
}
